package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"dwiju-assistant/backend/internal/models"
	"dwiju-assistant/backend/internal/store"
	"dwiju-assistant/backend/pkg/jwt"
	"dwiju-assistant/backend/pkg/logger"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// TokenIssuer signs access tokens.
type TokenIssuer interface {
	GenerateToken(userID string, role jwt.Role) (string, error)
}

// AccountService handles registration, login and account administration.
type AccountService struct {
	accounts store.AccountStore
	tokens   TokenIssuer
	log      *logger.Logger
	now      func() time.Time
	cost     int
}

// NewAccountService creates the service.
func NewAccountService(accounts store.AccountStore, tokens TokenIssuer, log *logger.Logger) *AccountService {
	if log == nil {
		log = logger.GetGlobal()
	}
	return &AccountService{accounts: accounts, tokens: tokens, log: log, now: time.Now, cost: bcrypt.DefaultCost}
}

type registration struct {
	Username string `validate:"required,min=3,max=50"`
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=6"`
}

// AuthResult is returned by Register and Login.
type AuthResult struct {
	Account *models.Account `json:"user"`
	Token   string          `json:"token"`
}

// Register creates an account and returns it with a fresh token. The
// password is hashed before the first write.
func (s *AccountService) Register(ctx context.Context, req models.RegisterRequest) (*AuthResult, error) {
	in := registration{
		Username: strings.TrimSpace(req.Username),
		Email:    normalizeEmail(req.Email),
		Password: req.Password,
	}
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, err
	}

	now := s.now()
	account := &models.Account{
		ID:           uuid.NewString(),
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: string(hash),
		Role:         models.RoleUser,
		Active:       true,
		Profile:      models.Profile{Language: "en", Voice: "default", Theme: "auto"},
		Usage:        models.Usage{LastReset: now},
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, err
	}
	s.log.Info("account registered", "user_id", account.ID)

	token, err := s.tokens.GenerateToken(account.ID, jwt.Role(account.Role))
	if err != nil {
		return nil, err
	}
	return &AuthResult{Account: account, Token: token}, nil
}

// Login verifies credentials and records the login.
func (s *AccountService) Login(ctx context.Context, req models.LoginRequest) (*AuthResult, error) {
	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, invalid("email", "email and password are required")
	}

	account, err := s.accounts.GetByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(req.Password)) != nil {
		return nil, ErrInvalidCredentials
	}
	if !account.Active {
		return nil, ErrAccountDisabled
	}

	now := s.now()
	if err := s.accounts.RecordLogin(ctx, account.ID, now); err != nil {
		return nil, err
	}
	account.LastLogin = &now
	account.LoginCount++

	token, err := s.tokens.GenerateToken(account.ID, jwt.Role(account.Role))
	if err != nil {
		return nil, err
	}
	return &AuthResult{Account: account, Token: token}, nil
}

// Get returns an account by id.
func (s *AccountService) Get(ctx context.Context, id string) (*models.Account, error) {
	return s.accounts.GetByID(ctx, id)
}

// List returns one page of accounts.
func (s *AccountService) List(ctx context.Context, page, limit int) ([]models.Account, models.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	accounts, total, err := s.accounts.List(ctx, page, limit)
	if err != nil {
		return nil, models.Pagination{}, err
	}
	return accounts, models.NewPagination(page, limit, total), nil
}

// UpdateRole changes an account's role.
func (s *AccountService) UpdateRole(ctx context.Context, id, role string) error {
	if _, err := jwt.ParseRole(role); err != nil {
		return invalid("role", "role must be one of user, moderator, admin")
	}
	if err := s.accounts.UpdateRole(ctx, id, role); err != nil {
		return err
	}
	s.log.Info("account role updated", "user_id", id, "role", role)
	return nil
}

// SetActive activates or deactivates an account. Accounts are never deleted.
func (s *AccountService) SetActive(ctx context.Context, id string, active bool) error {
	if err := s.accounts.SetActive(ctx, id, active); err != nil {
		return err
	}
	s.log.Info("account activation changed", "user_id", id, "active", active)
	return nil
}

// ResetUsage zeroes the usage counters.
func (s *AccountService) ResetUsage(ctx context.Context, id string) error {
	return s.accounts.ResetUsage(ctx, id, s.now())
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
