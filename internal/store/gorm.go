package store

import (
	"context"
	"errors"
	"strings"

	"dwiju-assistant/backend/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const pgUniqueViolation = "23505"

// constraintFields maps unique constraints onto the field clients know.
var constraintFields = map[string]string{
	"idx_accounts_username":             "username",
	"idx_accounts_email":                "email",
	"idx_conversations_session_id":      "sessionId",
	"idx_messages_conversation_message": "messageId",
	"features_pkey":                     "id",
}

// NewGormStores returns Postgres-backed stores sharing db.
func NewGormStores(db *gorm.DB) *Stores {
	return &Stores{
		Conversations: NewGormConversationStore(db),
		Accounts:      NewGormAccountStore(db),
		Features:      NewGormFeatureStore(db),
	}
}

// AutoMigrate creates or updates the schema.
func AutoMigrate(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).AutoMigrate(
		&models.Account{},
		&models.Conversation{},
		&models.Message{},
		&models.Feature{},
	)
}

// translateError maps driver errors onto the store errors.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return &DuplicateKeyError{Field: fieldForConstraint(pgErr.ConstraintName)}
	}
	return err
}

func fieldForConstraint(name string) string {
	if f, ok := constraintFields[name]; ok {
		return f
	}
	// idx_<table>_<column>
	if parts := strings.SplitN(name, "_", 3); len(parts) == 3 && parts[0] == "idx" {
		return parts[2]
	}
	return name
}

// likePattern escapes s for use inside an ILIKE '%...%' pattern.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}
