// Package secrets resolves credentials such as the token-signing secret and
// provider API keys. Values come from Vault when it is enabled and from the
// environment otherwise.
package secrets

import (
	"context"
	"errors"
)

// Well-known secret keys.
const (
	KeyJWTSecret    = "jwt_secret"
	KeyOpenAIAPIKey = "openai_api_key"
	KeyGeminiAPIKey = "gemini_api_key"
	KeyDBPassword   = "db_password"
)

// Manager provides access to secrets from various sources
type Manager interface {
	// GetSecret retrieves a secret by key
	GetSecret(ctx context.Context, key string) (string, error)

	// GetSecretWithDefault retrieves a secret with a default value if not found
	GetSecretWithDefault(ctx context.Context, key, defaultValue string) string
}

// Common errors
var (
	ErrSecretNotFound = errors.New("secret not found")
	ErrNoVaultToken   = errors.New("no vault token provided")
	ErrNoVaultAddress = errors.New("no vault address provided")
)

// Static is a fixed set of secrets, for tests and the memory backend.
type Static map[string]string

// GetSecret returns the value for key.
func (s Static) GetSecret(_ context.Context, key string) (string, error) {
	if v, ok := s[key]; ok && v != "" {
		return v, nil
	}
	return "", ErrSecretNotFound
}

// GetSecretWithDefault returns the value for key or defaultValue.
func (s Static) GetSecretWithDefault(ctx context.Context, key, defaultValue string) string {
	if v, err := s.GetSecret(ctx, key); err == nil {
		return v
	}
	return defaultValue
}
