package store

import (
	"context"
	"time"

	"dwiju-assistant/backend/internal/models"

	"gorm.io/gorm"
)

// GormAccountStore stores accounts in Postgres.
type GormAccountStore struct {
	db *gorm.DB
}

// NewGormAccountStore creates a store over db.
func NewGormAccountStore(db *gorm.DB) *GormAccountStore {
	return &GormAccountStore{db: db}
}

func (s *GormAccountStore) Create(ctx context.Context, account *models.Account) error {
	return translateError(s.db.WithContext(ctx).Create(account).Error)
}

func (s *GormAccountStore) GetByID(ctx context.Context, id string) (*models.Account, error) {
	var account models.Account
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&account).Error; err != nil {
		return nil, translateError(err)
	}
	return &account, nil
}

func (s *GormAccountStore) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	var account models.Account
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&account).Error; err != nil {
		return nil, translateError(err)
	}
	return &account, nil
}

func (s *GormAccountStore) List(ctx context.Context, page, limit int) ([]models.Account, int64, error) {
	page, limit = normalizePage(page, limit, 20)

	var total int64
	if err := s.db.WithContext(ctx).Model(&models.Account{}).Count(&total).Error; err != nil {
		return nil, 0, translateError(err)
	}

	var accounts []models.Account
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&accounts).Error
	return accounts, total, translateError(err)
}

// IncrementUsage issues a single UPDATE ... SET col = col + 1.
func (s *GormAccountStore) IncrementUsage(ctx context.Context, id string, kind models.UsageKind) error {
	col := kind.Column()
	return s.update(ctx, id, map[string]any{col: gorm.Expr(col + " + 1")})
}

func (s *GormAccountStore) ResetUsage(ctx context.Context, id string, at time.Time) error {
	return s.update(ctx, id, map[string]any{
		"usage_chat_requests":   0,
		"usage_voice_requests":  0,
		"usage_vision_requests": 0,
		"usage_last_reset":      at,
	})
}

func (s *GormAccountStore) RecordLogin(ctx context.Context, id string, at time.Time) error {
	return s.update(ctx, id, map[string]any{
		"last_login":  at,
		"login_count": gorm.Expr("login_count + 1"),
	})
}

func (s *GormAccountStore) UpdateRole(ctx context.Context, id, role string) error {
	return s.update(ctx, id, map[string]any{"role": role})
}

func (s *GormAccountStore) SetActive(ctx context.Context, id string, active bool) error {
	return s.update(ctx, id, map[string]any{"active": active})
}

func (s *GormAccountStore) update(ctx context.Context, id string, values map[string]any) error {
	res := s.db.WithContext(ctx).Model(&models.Account{}).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return translateError(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
