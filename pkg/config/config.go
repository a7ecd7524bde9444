package config

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server struct {
		Port     string
		Env      string
		Timeout  time.Duration
		GRPCPort string
		Version  string
		// SwaggerUIPath is a directory of static Swagger UI assets; empty
		// disables /swagger-ui.
		SwaggerUIPath string
	}

	// Database configuration
	Database struct {
		Backend        string
		Host           string
		Port           string
		User           string
		Password       string
		Name           string
		SSLMode        string
		MaxConns       int
		ConnectRetries int
		RetryDelay     time.Duration
		AutoMigrate    bool
	}

	// JWT configuration
	JWT struct {
		Secret string
		Expiry time.Duration
	}

	// Security configuration
	Security struct {
		RateLimitPoints int
		RateLimitWindow time.Duration
		RateLimitStore  string
		AllowedOrigins  []string
		MaxBodySize     int64
	}

	// Logging configuration
	Logging struct {
		Level  string
		Format string
		File   string
	}

	// Text-generation provider
	Provider struct {
		Backend      string
		APIKey       string
		BaseURL      string
		Model        string
		GeminiAPIKey string
		GeminiModel  string
		Timeout      time.Duration
		MaxTokens    int
		Temperature  float64

		BreakerThreshold int
		BreakerCooldown  time.Duration
	}

	// Conversation ledger defaults
	Ledger struct {
		WindowSize     int
		DefaultPersona string
		IdleDays       int
	}

	Redis struct {
		URL string
	}

	Vault struct {
		Enabled     bool
		Address     string
		Token       string
		Namespace   string
		SecretsPath string
	}

	Observability struct {
		TracingEnabled bool
		MetricsEnabled bool
	}
}

const (
	minProviderTimeout = 20 * time.Second
	maxProviderTimeout = 60 * time.Second
)

var (
	instance *Config
	once     sync.Once
)

// New returns the process-wide Config, loading it from the environment
// (and an optional .env file) on first use.
func New() *Config {
	once.Do(func() {
		// Load .env file if exists
		_ = godotenv.Load()
		instance = Load()
	})

	return instance
}

// Get returns the singleton Config instance
func Get() *Config {
	if instance == nil {
		return New()
	}
	return instance
}

// Load builds a fresh Config from the current environment.
func Load() *Config {
	cfg := &Config{}

	// Server config
	cfg.Server.Port = getEnvString("PORT", "3001")
	cfg.Server.Env = getEnvString("APP_ENV", "development")
	cfg.Server.Timeout = getEnvDuration("SERVER_TIMEOUT", 30*time.Second)
	cfg.Server.GRPCPort = getEnvString("GRPC_PORT", "9094")
	cfg.Server.Version = getEnvString("APP_VERSION", "1.0.0")
	cfg.Server.SwaggerUIPath = getEnvString("SWAGGER_UI_PATH", "")

	// Database config
	cfg.Database.Backend = getEnvString("STORE_BACKEND", "postgres")
	cfg.Database.Host = getEnvString("DB_HOST", "localhost")
	cfg.Database.Port = getEnvString("DB_PORT", "5432")
	cfg.Database.User = getEnvString("DB_USER", "postgres")
	cfg.Database.Password = getEnvString("DB_PASSWORD", "postgres")
	cfg.Database.Name = getEnvString("DB_NAME", "dwiju")
	cfg.Database.SSLMode = getEnvString("DB_SSL_MODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 20)
	cfg.Database.ConnectRetries = getEnvInt("DB_CONNECT_RETRIES", 5)
	cfg.Database.RetryDelay = getEnvDuration("DB_RETRY_DELAY", 5*time.Second)
	cfg.Database.AutoMigrate = getEnvBool("DB_AUTO_MIGRATE", true)

	// JWT config. The secret is usually overridden from the secrets manager.
	cfg.JWT.Secret = getEnvString("JWT_SECRET", "")
	cfg.JWT.Expiry = getEnvDuration("JWT_EXPIRY", 24*time.Hour)

	// Security config
	cfg.Security.RateLimitPoints = getEnvInt("RATE_LIMIT_MAX_REQUESTS", 100)
	cfg.Security.RateLimitWindow = getEnvDuration("RATE_LIMIT_WINDOW", 60*time.Second)
	cfg.Security.RateLimitStore = getEnvString("RATE_LIMIT_STORE", "memory")
	cfg.Security.AllowedOrigins = getEnvStringSlice("CORS_ORIGIN", []string{"http://localhost:3000"})
	cfg.Security.MaxBodySize = getEnvInt64("MAX_BODY_SIZE", 10<<20) // 10MB

	// Logging config
	cfg.Logging.Level = getEnvString("LOG_LEVEL", "info")
	cfg.Logging.Format = getEnvString("LOG_FORMAT", "json")
	cfg.Logging.File = getEnvString("LOG_FILE", "")

	// Provider config
	cfg.Provider.Backend = getEnvString("AI_PROVIDER", "openai")
	cfg.Provider.APIKey = getEnvString("OPENAI_API_KEY", "")
	cfg.Provider.BaseURL = getEnvString("OPENAI_BASE_URL", "")
	cfg.Provider.Model = getEnvString("OPENAI_MODEL", "gpt-4-turbo-preview")
	cfg.Provider.GeminiAPIKey = getEnvString("GEMINI_API_KEY", "")
	cfg.Provider.GeminiModel = getEnvString("GEMINI_MODEL", "gemini-1.5-flash")
	cfg.Provider.Timeout = clampDuration(getEnvDuration("AI_TIMEOUT", 30*time.Second), minProviderTimeout, maxProviderTimeout)
	cfg.Provider.MaxTokens = getEnvInt("AI_MAX_TOKENS", 4000)
	cfg.Provider.Temperature = getEnvFloat("AI_TEMPERATURE", 0.7)
	cfg.Provider.BreakerThreshold = getEnvInt("AI_BREAKER_THRESHOLD", 5)
	cfg.Provider.BreakerCooldown = getEnvDuration("AI_BREAKER_COOLDOWN", 60*time.Second)

	// Ledger config
	cfg.Ledger.WindowSize = getEnvInt("CHAT_WINDOW_SIZE", 10)
	cfg.Ledger.DefaultPersona = getEnvString("CHAT_DEFAULT_PERSONA", "dwiju")
	cfg.Ledger.IdleDays = getEnvInt("SESSION_IDLE_DAYS", 30)

	cfg.Redis.URL = getEnvString("REDIS_URL", "")

	cfg.Vault.Enabled = getEnvBool("VAULT_ENABLED", false)
	cfg.Vault.Address = getEnvString("VAULT_ADDR", "http://localhost:8200")
	cfg.Vault.Token = getEnvString("VAULT_TOKEN", "")
	cfg.Vault.Namespace = getEnvString("VAULT_NAMESPACE", "")
	cfg.Vault.SecretsPath = getEnvString("VAULT_SECRETS_PATH", "dwiju")

	cfg.Observability.TracingEnabled = getEnvBool("TRACING_ENABLED", false)
	cfg.Observability.MetricsEnabled = getEnvBool("METRICS_ENABLED", true)

	return cfg
}

// IsProduction reports whether the service runs with APP_ENV=production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Server.Env, "production")
}

func clampDuration(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}

// Helper functions to read environment variables with default values

func getEnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("90s") or a bare millisecond count.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}
