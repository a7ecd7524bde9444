package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"dwiju-assistant/backend/internal/provider"
	"dwiju-assistant/backend/internal/rpc"
	"dwiju-assistant/backend/internal/service"
	"dwiju-assistant/backend/internal/store"
	"dwiju-assistant/backend/internal/ws"
	"dwiju-assistant/backend/pkg/config"
	"dwiju-assistant/backend/pkg/health"
	"dwiju-assistant/backend/pkg/jwt"
	"dwiju-assistant/backend/pkg/logger"
	"dwiju-assistant/backend/pkg/middleware"
	"dwiju-assistant/backend/pkg/resilience"
	"dwiju-assistant/backend/pkg/secrets"
	"dwiju-assistant/backend/shared/observability"
	"dwiju-assistant/backend/shared/redis"

	"gorm.io/gorm"
)

const serviceName = "dwiju-assistant"

// Container holds all the dependencies for the application
type Container struct {
	Config  *config.Config
	Logger  *logger.Logger
	Secrets secrets.Manager

	// DB is nil on the memory backend.
	DB     *gorm.DB
	Stores *store.Stores
	// Redis is nil unless REDIS_URL is set.
	Redis     *redis.RedisClient
	RateLimit middleware.LimitStore

	Tokens   *jwt.Service
	Provider provider.Completer

	Ledger   *service.Ledger
	Chat     *service.ChatService
	Accounts *service.AccountService
	Features *service.FeatureService

	Metrics        *observability.Metrics
	MetricsHandler http.Handler
	Health         *health.Checker
	Hub            *ws.Hub
	RPC            *rpc.Server

	closers []func(context.Context) error
}

type options struct {
	stores   *store.Stores
	provider provider.Completer
	secrets  secrets.Manager
}

// Option overrides a dependency New would otherwise build from configuration.
type Option func(*options)

// WithStores uses stores instead of opening the configured backend.
func WithStores(s *store.Stores) Option {
	return func(o *options) { o.stores = s }
}

// WithProvider uses p instead of the configured text-generation backend.
func WithProvider(p provider.Completer) Option {
	return func(o *options) { o.provider = p }
}

// WithSecrets resolves credentials from m instead of Vault or the environment.
func WithSecrets(m secrets.Manager) Option {
	return func(o *options) { o.secrets = m }
}

// New wires the application from cfg. Close releases whatever it opened,
// including on error paths.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger, opts ...Option) (*Container, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if log == nil {
		log = logger.GetGlobal()
	}

	c := &Container{Config: cfg, Logger: log}
	if err := c.build(ctx, o); err != nil {
		_ = c.Close(context.Background())
		return nil, err
	}
	return c, nil
}

func (c *Container) build(ctx context.Context, o options) error {
	cfg := c.Config

	if err := c.setupSecrets(o.secrets); err != nil {
		return err
	}

	jwtSecret := c.Secrets.GetSecretWithDefault(ctx, secrets.KeyJWTSecret, cfg.JWT.Secret)
	tokens, err := jwt.NewService(jwtSecret, cfg.JWT.Expiry)
	if err != nil {
		return fmt.Errorf("jwt: %w", err)
	}
	c.Tokens = tokens

	if err := c.setupStores(ctx, o.stores); err != nil {
		return err
	}
	if err := c.setupRedis(); err != nil {
		return err
	}
	if err := c.setupObservability(); err != nil {
		return err
	}

	c.Health = health.NewChecker(c.Logger, cfg.Server.Version, 30*time.Second)
	if c.DB != nil {
		db := c.DB
		c.Health.RegisterDatabaseCheck(func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		})
	}
	if c.Redis != nil {
		c.Health.RegisterRedisCheck(c.Redis.Ping)
	}

	if err := c.setupProvider(ctx, o.provider); err != nil {
		return err
	}
	c.guardProvider()

	c.Ledger = service.NewLedger(c.Stores.Conversations, c.Stores.Accounts, service.LedgerConfig{
		Model:       c.model(),
		Temperature: cfg.Provider.Temperature,
		MaxTokens:   cfg.Provider.MaxTokens,
		Persona:     cfg.Ledger.DefaultPersona,
		WindowSize:  cfg.Ledger.WindowSize,
	}, c.Logger)
	c.Chat = service.NewChatService(c.Ledger, c.Provider, cfg.Provider.Timeout, c.Metrics, c.Logger)
	c.Accounts = service.NewAccountService(c.Stores.Accounts, c.Tokens, c.Logger)
	c.Features = service.NewFeatureService(c.Stores.Features, c.Logger)

	c.Hub = ws.NewHub()
	c.RPC = rpc.NewServer(c.Logger)
	c.Health.OnChange(c.RPC.SetServing)

	return nil
}

func (c *Container) setupSecrets(m secrets.Manager) error {
	if m != nil {
		c.Secrets = m
		return nil
	}
	vcfg := c.Config.Vault
	vm, err := secrets.NewVaultManager(secrets.VaultConfig{
		Enabled:     vcfg.Enabled,
		Address:     vcfg.Address,
		Token:       vcfg.Token,
		Namespace:   vcfg.Namespace,
		SecretsPath: vcfg.SecretsPath,
		MaxRetries:  3,
	}, c.Logger)
	if err != nil {
		return fmt.Errorf("secrets: %w", err)
	}
	c.Secrets = vm
	c.closers = append(c.closers, func(context.Context) error {
		vm.Close()
		return nil
	})
	return nil
}

func (c *Container) setupStores(ctx context.Context, s *store.Stores) error {
	if s != nil {
		c.Stores = s
		return nil
	}

	switch strings.ToLower(c.Config.Database.Backend) {
	case "memory":
		c.Logger.Warn("using in-memory store; data will not survive a restart")
		c.Stores = store.NewMemoryStores()
		return nil
	case "postgres", "":
	default:
		return fmt.Errorf("unknown store backend %q", c.Config.Database.Backend)
	}

	if pw, err := c.Secrets.GetSecret(ctx, secrets.KeyDBPassword); err == nil {
		c.Config.Database.Password = pw
	}
	db, err := config.NewDB(c.Config)
	if err != nil {
		return err
	}
	c.DB = db
	c.closers = append(c.closers, func(context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})

	if c.Config.Database.AutoMigrate {
		if err := store.AutoMigrate(ctx, db); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	c.Stores = store.NewGormStores(db)
	c.Logger.Info("connected to database", "host", c.Config.Database.Host, "name", c.Config.Database.Name)
	return nil
}

func (c *Container) setupRedis() error {
	sec := c.Config.Security
	opts := middleware.RateLimiterOptions{Points: sec.RateLimitPoints, Window: sec.RateLimitWindow}

	if c.Config.Redis.URL != "" {
		rc, err := redis.NewRedisClient(c.Config.Redis.URL)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		c.Redis = rc
		c.closers = append(c.closers, func(context.Context) error { return rc.Close() })
	}

	if strings.EqualFold(sec.RateLimitStore, "redis") {
		if c.Redis == nil {
			return errors.New("RATE_LIMIT_STORE=redis requires REDIS_URL")
		}
		c.RateLimit = middleware.NewRedisLimitStore(c.Redis, opts)
		return nil
	}
	c.RateLimit = middleware.NewMemoryLimitStore(opts)
	return nil
}

func (c *Container) setupObservability() error {
	obs := c.Config.Observability
	if obs.MetricsEnabled {
		m, handler, mp, err := observability.SetupPrometheusMetrics()
		if err != nil {
			return err
		}
		c.Metrics = m
		c.MetricsHandler = handler
		c.closers = append(c.closers, mp.Shutdown)
	}
	if obs.TracingEnabled {
		shutdown, err := observability.SetupTracing(serviceName, os.Stdout)
		if err != nil {
			return err
		}
		c.closers = append(c.closers, shutdown)
	}
	return nil
}

func (c *Container) setupProvider(ctx context.Context, p provider.Completer) error {
	backend := strings.ToLower(c.Config.Provider.Backend)
	if p != nil {
		c.Provider = p
		c.Health.RegisterProviderCheck(backend, true)
		return nil
	}

	switch backend {
	case "gemini":
		key := c.Secrets.GetSecretWithDefault(ctx, secrets.KeyGeminiAPIKey, c.Config.Provider.GeminiAPIKey)
		c.Health.RegisterProviderCheck(backend, key != "")
		if key == "" {
			c.Logger.Warn("gemini api key is not configured; chat requests will fail")
			c.Provider = provider.Unconfigured{Name: backend}
			return nil
		}
		g, err := provider.NewGemini(ctx, key)
		if err != nil {
			return err
		}
		c.Provider = g
		c.closers = append(c.closers, func(context.Context) error { return g.Close() })
	case "openai", "":
		key := c.Secrets.GetSecretWithDefault(ctx, secrets.KeyOpenAIAPIKey, c.Config.Provider.APIKey)
		c.Health.RegisterProviderCheck("openai", key != "")
		if key == "" {
			c.Logger.Warn("openai api key is not configured; chat requests will fail")
			c.Provider = provider.Unconfigured{Name: "openai"}
			return nil
		}
		oa, err := provider.NewOpenAI(provider.OpenAIConfig{
			APIKey:  key,
			BaseURL: c.Config.Provider.BaseURL,
			Timeout: c.Config.Provider.Timeout,
		})
		if err != nil {
			return err
		}
		c.Provider = oa
	default:
		return fmt.Errorf("unknown AI provider %q", c.Config.Provider.Backend)
	}
	return nil
}

// guardProvider puts a circuit breaker in front of a configured provider and
// reports its state as a non-critical health component.
func (c *Container) guardProvider() {
	if _, ok := c.Provider.(provider.Unconfigured); ok {
		return
	}
	guarded := provider.NewGuarded(c.Provider, resilience.Config{
		Name:             strings.ToLower(c.Config.Provider.Backend),
		FailureThreshold: uint(max(c.Config.Provider.BreakerThreshold, 0)),
		Cooldown:         c.Config.Provider.BreakerCooldown,
	}, c.Logger)
	c.Provider = guarded

	c.Health.RegisterCheck("provider_circuit", false, func(context.Context) (health.Status, string, error) {
		if guarded.Breaker().State() == resilience.StateOpen {
			return health.StatusDegraded, "Provider circuit is open", nil
		}
		return health.StatusUp, "Provider circuit is closed", nil
	})
}

func (c *Container) model() string {
	if strings.EqualFold(c.Config.Provider.Backend, "gemini") {
		return c.Config.Provider.GeminiModel
	}
	return c.Config.Provider.Model
}

// Start runs the background loops: health probing and limiter sweeps. They
// stop with ctx.
func (c *Container) Start(ctx context.Context) {
	c.Health.Start(ctx)
	if mem, ok := c.RateLimit.(*middleware.MemoryLimitStore); ok {
		go mem.Cleanup(ctx, 5*time.Minute)
	}
}

// Close releases resources in reverse order of acquisition.
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	if c.Hub != nil {
		c.Hub.Shutdown()
	}
	return errors.Join(errs...)
}
