package store

import (
	"context"

	"dwiju-assistant/backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// featureIDLock serializes id issuance through a transaction-scoped
// advisory lock.
const featureIDLock = 7_340_021

var featureSortColumns = map[string]string{
	"id":        "id",
	"title":     "title",
	"category":  "category",
	"priority":  "priority",
	"createdAt": "created_at",
}

// GormFeatureStore stores catalog features in Postgres.
type GormFeatureStore struct {
	db *gorm.DB
}

// NewGormFeatureStore creates a store over db.
func NewGormFeatureStore(db *gorm.DB) *GormFeatureStore {
	return &GormFeatureStore{db: db}
}

func (s *GormFeatureStore) Create(ctx context.Context, f *models.Feature) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if f.ID == 0 {
			if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", featureIDLock).Error; err != nil {
				return err
			}
			var maxID int
			if err := tx.Model(&models.Feature{}).Select("COALESCE(MAX(id), 0)").Scan(&maxID).Error; err != nil {
				return err
			}
			f.ID = maxID + 1
		}
		return tx.Create(f).Error
	})
	return translateError(err)
}

func (s *GormFeatureStore) Get(ctx context.Context, id int) (*models.Feature, error) {
	var f models.Feature
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&f).Error; err != nil {
		return nil, translateError(err)
	}
	return &f, nil
}

func (s *GormFeatureStore) List(ctx context.Context, q FeatureQuery) ([]models.Feature, int64, error) {
	page, limit := normalizePage(q.Page, q.Limit, 20)

	query := s.db.WithContext(ctx).Model(&models.Feature{})
	if q.Category != "" {
		query = query.Where("category = ?", q.Category)
	}
	if q.Active != nil {
		query = query.Where("active = ?", *q.Active)
	}
	if q.Search != "" {
		p := likePattern(q.Search)
		query = query.Where("title ILIKE ? OR description ILIKE ? OR tags::text ILIKE ?", p, p, p)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, translateError(err)
	}

	col, ok := featureSortColumns[q.SortBy]
	if !ok {
		col = "id"
	}

	var features []models.Feature
	err := query.
		Order(clause.OrderByColumn{Column: clause.Column{Name: col}, Desc: q.Desc}).
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&features).Error
	return features, total, translateError(err)
}

func (s *GormFeatureStore) ListActive(ctx context.Context) ([]models.Feature, error) {
	var features []models.Feature
	err := s.db.WithContext(ctx).Where("active = ?", true).Order("id ASC").Find(&features).Error
	return features, translateError(err)
}

func (s *GormFeatureStore) Update(ctx context.Context, id int, fn func(*models.Feature) error) (*models.Feature, error) {
	var out models.Feature
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&out).Error; err != nil {
			return err
		}
		if err := fn(&out); err != nil {
			return err
		}
		out.ID = id
		return tx.Save(&out).Error
	})
	if err != nil {
		return nil, translateError(err)
	}
	return &out, nil
}

func (s *GormFeatureStore) Save(ctx context.Context, f *models.Feature) error {
	return translateError(s.db.WithContext(ctx).Save(f).Error)
}

func (s *GormFeatureStore) Delete(ctx context.Context, id int) error {
	res := s.db.WithContext(ctx).Delete(&models.Feature{}, id)
	if res.Error != nil {
		return translateError(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
