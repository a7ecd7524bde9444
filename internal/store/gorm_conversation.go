package store

import (
	"context"
	"time"

	"dwiju-assistant/backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormConversationStore stores conversations in Postgres. Messages live in
// their own table keyed by conversation and ordered by Seq.
type GormConversationStore struct {
	db *gorm.DB
}

// NewGormConversationStore creates a store over db.
func NewGormConversationStore(db *gorm.DB) *GormConversationStore {
	return &GormConversationStore{db: db}
}

// Mutate implements ConversationStore. The conversation row is locked with
// SELECT ... FOR UPDATE for the duration of fn.
func (s *GormConversationStore) Mutate(ctx context.Context, accountID, sessionID string, init func() *models.Conversation, fn MutateFunc) (*models.Conversation, bool, error) {
	var (
		out     *models.Conversation
		created bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if init != nil {
			seed := init()
			seed.ID = 0
			seed.SessionID = sessionID
			seed.AccountID = accountID
			seed.Messages = nil
			res := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "session_id"}},
				DoNothing: true,
			}).Omit(clause.Associations).Create(seed)
			if res.Error != nil {
				return res.Error
			}
			created = res.RowsAffected == 1
		}

		var conv models.Conversation
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("session_id = ?", sessionID).
			First(&conv).Error
		if err != nil {
			return err
		}
		if conv.AccountID != accountID {
			if init != nil {
				return &DuplicateKeyError{Field: "sessionId"}
			}
			return ErrNotFound
		}

		if err := tx.Where("conversation_id = ?", conv.ID).Order("seq ASC").Find(&conv.Messages).Error; err != nil {
			return err
		}

		before := make(map[uint]struct{}, len(conv.Messages))
		maxSeq := 0
		for _, m := range conv.Messages {
			before[m.ID] = struct{}{}
			if m.Seq > maxSeq {
				maxSeq = m.Seq
			}
		}

		if err := fn(&conv); err != nil {
			return err
		}

		// Removed messages.
		kept := make(map[uint]struct{}, len(conv.Messages))
		for _, m := range conv.Messages {
			if m.ID != 0 {
				kept[m.ID] = struct{}{}
			}
		}
		var removed []uint
		for id := range before {
			if _, ok := kept[id]; !ok {
				removed = append(removed, id)
			}
		}
		if len(removed) > 0 {
			if err := tx.Where("conversation_id = ? AND id IN ?", conv.ID, removed).Delete(&models.Message{}).Error; err != nil {
				return err
			}
		}

		// Appended messages.
		for i := range conv.Messages {
			m := &conv.Messages[i]
			if m.ID != 0 {
				continue
			}
			maxSeq++
			m.ConversationID = conv.ID
			m.Seq = maxSeq
			if err := tx.Create(m).Error; err != nil {
				return err
			}
		}

		err = tx.Model(&models.Conversation{}).Where("id = ?", conv.ID).Updates(map[string]any{
			"title":                conv.Title,
			"settings_model":       conv.Settings.Model,
			"settings_temperature": conv.Settings.Temperature,
			"settings_max_tokens":  conv.Settings.MaxTokens,
			"settings_language":    conv.Settings.Language,
			"settings_persona":     conv.Settings.Persona,
			"active":               conv.Active,
			"message_count":        conv.MessageCount,
			"token_count":          conv.TokenCount,
			"last_activity":        conv.LastActivity,
		}).Error
		if err != nil {
			return err
		}

		out = &conv
		return nil
	})
	if err != nil {
		return nil, false, translateError(err)
	}
	return out, created, nil
}

// Get implements ConversationStore.
func (s *GormConversationStore) Get(ctx context.Context, accountID, sessionID string) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.WithContext(ctx).
		Preload("Messages", func(db *gorm.DB) *gorm.DB { return db.Order("seq ASC") }).
		Where("session_id = ? AND account_id = ?", sessionID, accountID).
		First(&conv).Error
	if err != nil {
		return nil, translateError(err)
	}
	return &conv, nil
}

// List implements ConversationStore.
func (s *GormConversationStore) List(ctx context.Context, accountID string, q ConversationQuery) ([]models.ConversationSummary, int64, error) {
	page, limit := normalizePage(q.Page, q.Limit, 20)

	query := s.db.WithContext(ctx).Model(&models.Conversation{}).Where("account_id = ?", accountID)
	if q.ActiveOnly {
		query = query.Where("active = ?", true)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, translateError(err)
	}

	var rows []models.Conversation
	err := query.
		Select("session_id", "title", "active", "message_count", "token_count", "last_activity", "created_at").
		Order("last_activity DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&rows).Error
	if err != nil {
		return nil, 0, translateError(err)
	}

	out := make([]models.ConversationSummary, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].Summary())
	}
	return out, total, nil
}

// Delete implements ConversationStore.
func (s *GormConversationStore) Delete(ctx context.Context, sessionID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var conv models.Conversation
		if err := tx.Select("id").Where("session_id = ?", sessionID).First(&conv).Error; err != nil {
			return translateError(err)
		}
		if err := tx.Where("conversation_id = ?", conv.ID).Delete(&models.Message{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Conversation{}, conv.ID).Error
	})
}

// DeactivateIdle implements ConversationStore.
func (s *GormConversationStore) DeactivateIdle(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("active = ? AND last_activity < ?", true, cutoff).
		Update("active", false)
	return res.RowsAffected, translateError(res.Error)
}
