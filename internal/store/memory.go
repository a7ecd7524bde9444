package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"dwiju-assistant/backend/internal/models"
)

// NewMemoryStores returns in-process stores. Data does not survive a restart.
func NewMemoryStores() *Stores {
	return &Stores{
		Conversations: NewMemoryConversationStore(),
		Accounts:      NewMemoryAccountStore(),
		Features:      NewMemoryFeatureStore(),
	}
}

// MemoryConversationStore keeps conversations in a map guarded by a mutex.
// Records are copied on the way in and out so callers never share state.
type MemoryConversationStore struct {
	mu     sync.Mutex
	bySID  map[string]*models.Conversation
	nextID uint
	now    func() time.Time
}

// NewMemoryConversationStore creates an empty store.
func NewMemoryConversationStore() *MemoryConversationStore {
	return &MemoryConversationStore{bySID: make(map[string]*models.Conversation), now: time.Now}
}

func (s *MemoryConversationStore) Mutate(ctx context.Context, accountID, sessionID string, init func() *models.Conversation, fn MutateFunc) (*models.Conversation, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.bySID[sessionID]
	var (
		conv    *models.Conversation
		created bool
	)
	switch {
	case ok && existing.AccountID != accountID:
		if init != nil {
			return nil, false, &DuplicateKeyError{Field: "sessionId"}
		}
		return nil, false, ErrNotFound
	case ok:
		conv = cloneConversation(existing)
	case init != nil:
		conv = init()
		created = true
		s.nextID++
		conv.ID = s.nextID
		conv.SessionID = sessionID
		conv.AccountID = accountID
		conv.Messages = nil
		now := s.now()
		conv.CreatedAt = now
		conv.UpdatedAt = now
	default:
		return nil, false, ErrNotFound
	}

	if err := fn(conv); err != nil {
		return nil, false, err
	}

	seen := make(map[string]struct{}, len(conv.Messages))
	for _, m := range conv.Messages {
		if _, dup := seen[m.MessageID]; dup {
			return nil, false, &DuplicateKeyError{Field: "messageId"}
		}
		seen[m.MessageID] = struct{}{}
	}

	conv.UpdatedAt = s.now()
	s.bySID[sessionID] = conv
	return cloneConversation(conv), created, nil
}

func (s *MemoryConversationStore) Get(ctx context.Context, accountID, sessionID string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.bySID[sessionID]
	if !ok || conv.AccountID != accountID {
		return nil, ErrNotFound
	}
	return cloneConversation(conv), nil
}

func (s *MemoryConversationStore) List(ctx context.Context, accountID string, q ConversationQuery) ([]models.ConversationSummary, int64, error) {
	page, limit := normalizePage(q.Page, q.Limit, 20)

	s.mu.Lock()
	var matched []models.ConversationSummary
	for _, conv := range s.bySID {
		if conv.AccountID != accountID || (q.ActiveOnly && !conv.Active) {
			continue
		}
		matched = append(matched, conv.Summary())
	}
	s.mu.Unlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].LastActivity.After(matched[j].LastActivity)
	})

	total := int64(len(matched))
	start := (page - 1) * limit
	if start >= len(matched) {
		return []models.ConversationSummary{}, total, nil
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (s *MemoryConversationStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bySID[sessionID]; !ok {
		return ErrNotFound
	}
	delete(s.bySID, sessionID)
	return nil
}

func (s *MemoryConversationStore) DeactivateIdle(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, conv := range s.bySID {
		if conv.Active && conv.LastActivity.Before(cutoff) {
			conv.Active = false
			n++
		}
	}
	return n, nil
}

func cloneConversation(c *models.Conversation) *models.Conversation {
	out := *c
	if c.Messages != nil {
		out.Messages = make([]models.Message, len(c.Messages))
		for i, m := range c.Messages {
			if m.Metadata.Attachments != nil {
				m.Metadata.Attachments = append(m.Metadata.Attachments[:0:0], m.Metadata.Attachments...)
			}
			out.Messages[i] = m
		}
	}
	return &out
}

// MemoryAccountStore keeps accounts in memory.
type MemoryAccountStore struct {
	mu   sync.Mutex
	byID map[string]*models.Account
	now  func() time.Time
}

// NewMemoryAccountStore creates an empty store.
func NewMemoryAccountStore() *MemoryAccountStore {
	return &MemoryAccountStore{byID: make(map[string]*models.Account), now: time.Now}
}

func (s *MemoryAccountStore) Create(ctx context.Context, account *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[account.ID]; ok {
		return &DuplicateKeyError{Field: "id"}
	}
	for _, a := range s.byID {
		if a.Username == account.Username {
			return &DuplicateKeyError{Field: "username"}
		}
		if a.Email == account.Email {
			return &DuplicateKeyError{Field: "email"}
		}
	}
	now := s.now()
	account.CreatedAt = now
	account.UpdatedAt = now
	cp := *account
	s.byID[account.ID] = &cp
	return nil
}

func (s *MemoryAccountStore) GetByID(ctx context.Context, id string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryAccountStore) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.byID {
		if a.Email == email {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryAccountStore) List(ctx context.Context, page, limit int) ([]models.Account, int64, error) {
	page, limit = normalizePage(page, limit, 20)

	s.mu.Lock()
	all := make([]models.Account, 0, len(s.byID))
	for _, a := range s.byID {
		all = append(all, *a)
	}
	s.mu.Unlock()

	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	total := int64(len(all))
	start := (page - 1) * limit
	if start >= len(all) {
		return []models.Account{}, total, nil
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

func (s *MemoryAccountStore) IncrementUsage(ctx context.Context, id string, kind models.UsageKind) error {
	return s.update(id, func(a *models.Account) {
		switch kind {
		case models.UsageVoice:
			a.Usage.VoiceRequests++
		case models.UsageVision:
			a.Usage.VisionRequests++
		default:
			a.Usage.ChatRequests++
		}
	})
}

func (s *MemoryAccountStore) ResetUsage(ctx context.Context, id string, at time.Time) error {
	return s.update(id, func(a *models.Account) {
		a.Usage = models.Usage{LastReset: at}
	})
}

func (s *MemoryAccountStore) RecordLogin(ctx context.Context, id string, at time.Time) error {
	return s.update(id, func(a *models.Account) {
		a.LastLogin = &at
		a.LoginCount++
	})
}

func (s *MemoryAccountStore) UpdateRole(ctx context.Context, id, role string) error {
	return s.update(id, func(a *models.Account) { a.Role = role })
}

func (s *MemoryAccountStore) SetActive(ctx context.Context, id string, active bool) error {
	return s.update(id, func(a *models.Account) { a.Active = active })
}

func (s *MemoryAccountStore) update(id string, fn func(*models.Account)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	fn(a)
	a.UpdatedAt = s.now()
	return nil
}

// MemoryFeatureStore keeps catalog features in memory.
type MemoryFeatureStore struct {
	mu   sync.Mutex
	byID map[int]*models.Feature
	now  func() time.Time
}

// NewMemoryFeatureStore creates an empty store.
func NewMemoryFeatureStore() *MemoryFeatureStore {
	return &MemoryFeatureStore{byID: make(map[int]*models.Feature), now: time.Now}
}

func (s *MemoryFeatureStore) Create(ctx context.Context, f *models.Feature) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f.ID == 0 {
		for id := range s.byID {
			if id > f.ID {
				f.ID = id
			}
		}
		f.ID++
	} else if _, ok := s.byID[f.ID]; ok {
		return &DuplicateKeyError{Field: "id"}
	}
	now := s.now()
	f.CreatedAt = now
	f.UpdatedAt = now
	s.byID[f.ID] = cloneFeature(f)
	return nil
}

func (s *MemoryFeatureStore) Get(ctx context.Context, id int) (*models.Feature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneFeature(f), nil
}

func (s *MemoryFeatureStore) List(ctx context.Context, q FeatureQuery) ([]models.Feature, int64, error) {
	page, limit := normalizePage(q.Page, q.Limit, 20)
	search := strings.ToLower(q.Search)

	s.mu.Lock()
	var matched []models.Feature
	for _, f := range s.byID {
		if q.Category != "" && f.Category != q.Category {
			continue
		}
		if q.Active != nil && f.Active != *q.Active {
			continue
		}
		if search != "" && !featureMatches(f, search) {
			continue
		}
		matched = append(matched, *cloneFeature(f))
	}
	s.mu.Unlock()

	sort.SliceStable(matched, func(i, j int) bool {
		if q.Desc {
			return featureLess(&matched[j], &matched[i], q.SortBy)
		}
		return featureLess(&matched[i], &matched[j], q.SortBy)
	})

	total := int64(len(matched))
	start := (page - 1) * limit
	if start >= len(matched) {
		return []models.Feature{}, total, nil
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (s *MemoryFeatureStore) ListActive(ctx context.Context) ([]models.Feature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Feature
	for _, f := range s.byID {
		if f.Active {
			out = append(out, *cloneFeature(f))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryFeatureStore) Update(ctx context.Context, id int, fn func(*models.Feature) error) (*models.Feature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := cloneFeature(f)
	if err := fn(cp); err != nil {
		return nil, err
	}
	cp.ID = id
	cp.UpdatedAt = s.now()
	s.byID[id] = cp
	return cloneFeature(cp), nil
}

func (s *MemoryFeatureStore) Save(ctx context.Context, f *models.Feature) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if prev, ok := s.byID[f.ID]; ok {
		f.CreatedAt = prev.CreatedAt
	} else if f.CreatedAt.IsZero() {
		f.CreatedAt = now
	}
	f.UpdatedAt = now
	s.byID[f.ID] = cloneFeature(f)
	return nil
}

func (s *MemoryFeatureStore) Delete(ctx context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[id]; !ok {
		return ErrNotFound
	}
	delete(s.byID, id)
	return nil
}

func featureMatches(f *models.Feature, search string) bool {
	if strings.Contains(strings.ToLower(f.Title), search) || strings.Contains(strings.ToLower(f.Description), search) {
		return true
	}
	for _, t := range f.Tags {
		if strings.Contains(strings.ToLower(t), search) {
			return true
		}
	}
	return false
}

func featureLess(a, b *models.Feature, sortBy string) bool {
	switch sortBy {
	case "title":
		return a.Title < b.Title
	case "category":
		return a.Category < b.Category
	case "priority":
		return a.Priority < b.Priority
	case "createdAt":
		return a.CreatedAt.Before(b.CreatedAt)
	default:
		return a.ID < b.ID
	}
}

func cloneFeature(f *models.Feature) *models.Feature {
	out := *f
	if f.Tags != nil {
		out.Tags = append(f.Tags[:0:0], f.Tags...)
	}
	if f.Metadata != nil {
		out.Metadata = make(map[string]any, len(f.Metadata))
		for k, v := range f.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}
