package service

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"strings"
	"time"

	"dwiju-assistant/backend/internal/models"
	"dwiju-assistant/backend/internal/store"
	"dwiju-assistant/backend/pkg/cache"
	"dwiju-assistant/backend/pkg/logger"

	"gorm.io/datatypes"
)

const (
	defaultFeatureVersion = "1.0.0"
	categoriesKey         = "categories"
	categoriesTTL         = 5 * time.Minute
)

var slugSeparators = regexp.MustCompile(`[^a-z0-9]+`)

// Slug turns a title into a URL fragment.
func Slug(title string) string {
	return strings.Trim(slugSeparators.ReplaceAllString(strings.ToLower(title), "-"), "-")
}

// FeatureService manages the capability catalog.
type FeatureService struct {
	features   store.FeatureStore
	categories *cache.Cache[string, []models.CategoryGroup]
	log        *logger.Logger
}

// NewFeatureService creates the service.
func NewFeatureService(features store.FeatureStore, log *logger.Logger) *FeatureService {
	if log == nil {
		log = logger.GetGlobal()
	}
	return &FeatureService{
		features:   features,
		categories: cache.New[string, []models.CategoryGroup](cache.Options{TTL: categoriesTTL}),
		log:        log,
	}
}

// FeatureListQuery is the public listing query. Active is "true", "false"
// or "all".
type FeatureListQuery struct {
	Page      int
	Limit     int
	Category  string
	Search    string
	Active    string
	SortBy    string
	SortOrder string
}

// List returns one page of features.
func (s *FeatureService) List(ctx context.Context, q FeatureListQuery) ([]models.Feature, models.Pagination, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 || q.Limit > 100 {
		q.Limit = 20
	}

	sq := store.FeatureQuery{
		Page:     q.Page,
		Limit:    q.Limit,
		Category: q.Category,
		Search:   strings.TrimSpace(q.Search),
		SortBy:   q.SortBy,
		Desc:     strings.EqualFold(q.SortOrder, "desc"),
	}
	switch q.Active {
	case "all":
	case "false":
		f := false
		sq.Active = &f
	default:
		t := true
		sq.Active = &t
	}

	features, total, err := s.features.List(ctx, sq)
	if err != nil {
		return nil, models.Pagination{}, err
	}
	for i := range features {
		features[i].Slug = Slug(features[i].Title)
	}
	return features, models.NewPagination(q.Page, q.Limit, total), nil
}

// Categories groups the active features by category. The grouping is cached
// until the next catalog write or categoriesTTL.
func (s *FeatureService) Categories(ctx context.Context) ([]models.CategoryGroup, error) {
	return s.categories.GetOrLoad(categoriesKey, func() ([]models.CategoryGroup, error) {
		return s.groupByCategory(ctx)
	})
}

func (s *FeatureService) groupByCategory(ctx context.Context) ([]models.CategoryGroup, error) {
	features, err := s.features.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	groups := make(map[string]*models.CategoryGroup)
	for _, f := range features {
		g, ok := groups[f.Category]
		if !ok {
			g = &models.CategoryGroup{Category: f.Category}
			groups[f.Category] = g
		}
		g.Count++
		g.Features = append(g.Features, models.FeatureSummary{ID: f.ID, Title: f.Title, Description: f.Description})
	}

	out := make([]models.CategoryGroup, 0, len(groups))
	for _, g := range groups {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out, nil
}

// Get returns one feature.
func (s *FeatureService) Get(ctx context.Context, id int) (*models.Feature, error) {
	f, err := s.features.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	f.Slug = Slug(f.Title)
	return f, nil
}

// Create adds a feature with the next free id.
func (s *FeatureService) Create(ctx context.Context, in models.FeatureInput, actor string) (*models.Feature, error) {
	in.ID = 0
	f, err := buildFeature(in, actor)
	if err != nil {
		return nil, err
	}
	if err := s.features.Create(ctx, f); err != nil {
		return nil, err
	}
	s.categories.Flush()
	f.Slug = Slug(f.Title)
	s.log.Info("feature created", "feature_id", f.ID, "user_id", actor)
	return f, nil
}

// Update applies patch. The id and creation fields are never changed.
func (s *FeatureService) Update(ctx context.Context, id int, patch models.FeaturePatch, actor string) (*models.Feature, error) {
	if patch.Category != nil && !models.ValidCategory(*patch.Category) {
		return nil, invalid("category", "category %q is not a known category", *patch.Category)
	}
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return nil, invalid("title", "title is required")
	}
	if patch.Description != nil && strings.TrimSpace(*patch.Description) == "" {
		return nil, invalid("description", "description is required")
	}

	f, err := s.features.Update(ctx, id, func(f *models.Feature) error {
		if patch.Title != nil {
			f.Title = strings.TrimSpace(*patch.Title)
		}
		if patch.Description != nil {
			f.Description = *patch.Description
		}
		if patch.Category != nil {
			f.Category = *patch.Category
		}
		if patch.Tags != nil {
			f.Tags = datatypes.JSONSlice[string](trimTags(patch.Tags))
		}
		if patch.Active != nil {
			f.Active = *patch.Active
		}
		if patch.Locked != nil {
			f.Locked = *patch.Locked
		}
		if patch.Priority != nil {
			f.Priority = *patch.Priority
		}
		if patch.Version != nil {
			f.Version = *patch.Version
		}
		if patch.Metadata != nil {
			f.Metadata = datatypes.JSONMap(patch.Metadata)
		}
		f.UpdatedBy = actor
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.categories.Flush()
	f.Slug = Slug(f.Title)
	return f, nil
}

// Delete deactivates a feature, or removes it when permanent is set.
func (s *FeatureService) Delete(ctx context.Context, id int, permanent bool, actor string) error {
	defer s.categories.Flush()
	if permanent {
		if err := s.features.Delete(ctx, id); err != nil {
			return err
		}
		s.log.Warn("feature deleted", "feature_id", id, "user_id", actor)
		return nil
	}
	_, err := s.features.Update(ctx, id, func(f *models.Feature) error {
		f.Active = false
		f.UpdatedBy = actor
		return nil
	})
	return err
}

// BulkImport creates features from items. Existing ids are skipped unless
// overwrite is set; invalid items are reported and skipped.
func (s *FeatureService) BulkImport(ctx context.Context, items []models.FeatureInput, overwrite bool, actor string) (*models.BulkImportResult, error) {
	res := &models.BulkImportResult{Errors: []models.BulkImportError{}}
	defer s.categories.Flush()
	for _, item := range items {
		f, err := buildFeature(item, actor)
		if err != nil {
			res.Errors = append(res.Errors, models.BulkImportError{ID: item.ID, Title: item.Title, Error: err.Error()})
			continue
		}

		if f.ID > 0 {
			existing, err := s.features.Get(ctx, f.ID)
			switch {
			case err == nil && !overwrite:
				res.Skipped++
				continue
			case err == nil:
				f.CreatedBy = existing.CreatedBy
				f.CreatedAt = existing.CreatedAt
				f.UpdatedBy = actor
				if err := s.features.Save(ctx, f); err != nil {
					res.Errors = append(res.Errors, models.BulkImportError{ID: item.ID, Title: item.Title, Error: err.Error()})
					continue
				}
				res.Imported++
				continue
			case !errors.Is(err, store.ErrNotFound):
				return nil, err
			}
		}

		if err := s.features.Create(ctx, f); err != nil {
			if _, ok := store.IsDuplicateKey(err); ok && !overwrite {
				res.Skipped++
				continue
			}
			res.Errors = append(res.Errors, models.BulkImportError{ID: item.ID, Title: item.Title, Error: err.Error()})
			continue
		}
		res.Imported++
	}
	s.log.Info("features imported", "imported", res.Imported, "skipped", res.Skipped, "errors", len(res.Errors), "user_id", actor)
	return res, nil
}

type featureFields struct {
	Title       string `validate:"required,max=200"`
	Description string `validate:"required"`
	Category    string `validate:"required"`
	ID          int    `validate:"gte=0"`
}

func buildFeature(in models.FeatureInput, actor string) (*models.Feature, error) {
	fields := featureFields{
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Category:    in.Category,
		ID:          in.ID,
	}
	if err := validateStruct(fields); err != nil {
		return nil, err
	}
	if !models.ValidCategory(in.Category) {
		return nil, invalid("category", "category %q is not a known category", in.Category)
	}

	f := &models.Feature{
		ID:          in.ID,
		Title:       fields.Title,
		Description: in.Description,
		Category:    in.Category,
		Tags:        datatypes.JSONSlice[string](trimTags(in.Tags)),
		Active:      true,
		Version:     in.Version,
		CreatedBy:   actor,
		Metadata:    datatypes.JSONMap(in.Metadata),
	}
	if in.Active != nil {
		f.Active = *in.Active
	}
	if in.Locked != nil {
		f.Locked = *in.Locked
	}
	if in.Priority != nil {
		f.Priority = *in.Priority
	}
	if f.Version == "" {
		f.Version = defaultFeatureVersion
	}
	if f.Metadata == nil {
		f.Metadata = datatypes.JSONMap{}
	}
	return f, nil
}

func trimTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
