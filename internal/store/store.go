// Package store persists accounts, conversations and catalog features.
//
// Every store has a GORM/Postgres implementation for production and an
// in-memory implementation used by tests and the memory backend.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dwiju-assistant/backend/internal/models"
)

// ErrNotFound is returned when the referenced record does not exist or is
// not visible to the caller.
var ErrNotFound = errors.New("record not found")

// DuplicateKeyError reports a unique-constraint violation on Field.
type DuplicateKeyError struct {
	Field string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate value for %s", e.Field)
}

// IsDuplicateKey reports whether err is a DuplicateKeyError and returns it.
func IsDuplicateKey(err error) (*DuplicateKeyError, bool) {
	var dup *DuplicateKeyError
	ok := errors.As(err, &dup)
	return dup, ok
}

// ConversationQuery selects a page of an account's conversations.
type ConversationQuery struct {
	Page       int
	Limit      int
	ActiveOnly bool
}

// MutateFunc edits a conversation in place. Messages may be appended to
// Messages or removed from it; existing messages must not be edited.
type MutateFunc func(*models.Conversation) error

// ConversationStore persists conversations and their transcripts.
type ConversationStore interface {
	// Mutate loads the conversation sessionID owned by accountID and applies
	// fn to it as one atomic read-modify-write.
	//
	// When the conversation does not exist and init is non-nil, the
	// conversation returned by init is created first; concurrent callers
	// racing on the same sessionID all end up mutating that single record.
	// When init is nil a missing or foreign conversation yields ErrNotFound.
	// A sessionID owned by another account yields DuplicateKeyError{sessionId}
	// when init is non-nil. created reports whether this call inserted the
	// record; init may be invoked even when it did not.
	Mutate(ctx context.Context, accountID, sessionID string, init func() *models.Conversation, fn MutateFunc) (conv *models.Conversation, created bool, err error)
	// Get returns the conversation with its transcript in order.
	Get(ctx context.Context, accountID, sessionID string) (*models.Conversation, error)
	// List returns one page of accountID's conversations ordered by
	// last activity, newest first, and the total matching count.
	List(ctx context.Context, accountID string, q ConversationQuery) ([]models.ConversationSummary, int64, error)
	// Delete removes the conversation and its messages permanently.
	Delete(ctx context.Context, sessionID string) error
	// DeactivateIdle marks active conversations idle since before cutoff inactive.
	DeactivateIdle(ctx context.Context, cutoff time.Time) (int64, error)
}

// AccountStore persists accounts.
type AccountStore interface {
	Create(ctx context.Context, account *models.Account) error
	GetByID(ctx context.Context, id string) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	List(ctx context.Context, page, limit int) ([]models.Account, int64, error)
	// IncrementUsage atomically adds one to the kind counter.
	IncrementUsage(ctx context.Context, id string, kind models.UsageKind) error
	ResetUsage(ctx context.Context, id string, at time.Time) error
	RecordLogin(ctx context.Context, id string, at time.Time) error
	UpdateRole(ctx context.Context, id, role string) error
	SetActive(ctx context.Context, id string, active bool) error
}

// FeatureQuery selects a page of catalog features.
type FeatureQuery struct {
	Page     int
	Limit    int
	Category string
	Search   string
	// Active filters on the active flag; nil returns both.
	Active *bool
	// SortBy is one of id, title, category, priority, createdAt.
	SortBy string
	Desc   bool
}

// FeatureStore persists catalog features.
type FeatureStore interface {
	// Create inserts f. When f.ID is zero the next id (max + 1) is issued
	// inside the same write.
	Create(ctx context.Context, f *models.Feature) error
	Get(ctx context.Context, id int) (*models.Feature, error)
	List(ctx context.Context, q FeatureQuery) ([]models.Feature, int64, error)
	ListActive(ctx context.Context) ([]models.Feature, error)
	Update(ctx context.Context, id int, fn func(*models.Feature) error) (*models.Feature, error)
	// Save inserts f or replaces the feature with the same id.
	Save(ctx context.Context, f *models.Feature) error
	Delete(ctx context.Context, id int) error
}

// Stores bundles every store behind one backend.
type Stores struct {
	Conversations ConversationStore
	Accounts      AccountStore
	Features      FeatureStore
}

func normalizePage(page, limit, defLimit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defLimit
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit
}
