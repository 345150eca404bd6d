package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Multi-tenancy strategies.
const (
	StrategyNone      = "none"
	StrategyHeader    = "header"
	StrategySubdomain = "subdomain"
)

// Config holds the application configuration
type Config struct {
	Environment string
	ServerPort  int
	LogLevel    string

	DatabaseURL string
	Database    DatabaseConfig

	RedisURL string
	CacheTTL time.Duration

	JWT JWTConfig

	MultiTenancyStrategy string
	HostMainDomain       string
	DomainGuardEnabled   bool

	AuditLogDir        string
	AuditRetention     time.Duration
	CORSAllowedOrigins []string

	SMTP       SMTPConfig
	Cloudflare CloudflareConfig

	JobMaxRetry       int
	JobRetryDelay     time.Duration
	WorkerEnabled     bool
	WorkerConcurrency int

	RateLimitPerMinute     int
	LoginAttemptsPerMinute int

	OTLPEndpoint string
}

// DatabaseConfig is used when DATABASE_URL is not set.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

// JWTConfig holds signing material for access, refresh and purpose tokens.
type JWTConfig struct {
	Secret           string
	Algorithm        string
	AccessTTL        time.Duration
	RefreshSecret    string
	RefreshAlgorithm string
	RefreshTTL       time.Duration
	PurposeTTL       time.Duration
	Issuer           string
}

// SMTPConfig configures the mail sender used by the email-sending job.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

// CloudflareConfig configures tenant DNS updates.
type CloudflareConfig struct {
	APIToken string
	ZoneID   string
	Target   string
	BaseURL  string
}

// MultiTenancyEnabled reports whether requests are resolved to tenants.
func (c *Config) MultiTenancyEnabled() bool {
	return c.MultiTenancyStrategy != StrategyNone
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	port, err := getEnvInt("SERVER_PORT", 8080)
	if err != nil {
		return nil, err
	}
	dbPort, err := getEnvInt("DB_PORT", 5432)
	if err != nil {
		return nil, err
	}
	cacheTTL, err := getEnvInt("CACHE_TTL_SECONDS", 300)
	if err != nil {
		return nil, err
	}
	accessTTL, err := getEnvInt("JWT_ACCESS_TTL_MINUTES", 15)
	if err != nil {
		return nil, err
	}
	refreshTTL, err := getEnvInt("JWT_REFRESH_TTL_HOURS", 24*7)
	if err != nil {
		return nil, err
	}
	purposeTTL, err := getEnvInt("JWT_PURPOSE_TTL_HOURS", 24)
	if err != nil {
		return nil, err
	}
	smtpPort, err := getEnvInt("SMTP_PORT", 587)
	if err != nil {
		return nil, err
	}
	maxRetry, err := getEnvInt("JOB_MAX_RETRY", 5)
	if err != nil {
		return nil, err
	}
	retryDelay, err := getEnvInt("JOB_RETRY_DELAY_SECONDS", 60)
	if err != nil {
		return nil, err
	}
	concurrency, err := getEnvInt("WORKER_CONCURRENCY", 10)
	if err != nil {
		return nil, err
	}
	rateLimit, err := getEnvInt("RATE_LIMIT_PER_MINUTE", 600)
	if err != nil {
		return nil, err
	}
	loginAttempts, err := getEnvInt("LOGIN_ATTEMPTS_PER_MINUTE", 10)
	if err != nil {
		return nil, err
	}
	retentionDays, err := getEnvInt("AUDIT_RETENTION_DAYS", 0)
	if err != nil {
		return nil, err
	}

	secret := getEnv("JWT_SECRET", "change-me-in-production")
	algorithm := getEnv("JWT_ALGORITHM", "HS256")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		ServerPort:  port,
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("DB_USER", "saasforge"),
			Password: getEnv("DB_PASSWORD", "dev"),
			Name:     getEnv("DB_NAME", "saasforge"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379"),
		CacheTTL: time.Duration(cacheTTL) * time.Second,
		JWT: JWTConfig{
			Secret:           secret,
			Algorithm:        algorithm,
			AccessTTL:        time.Duration(accessTTL) * time.Minute,
			RefreshSecret:    getEnv("JWT_REFRESH_SECRET", secret+"-refresh"),
			RefreshAlgorithm: getEnv("JWT_REFRESH_ALGORITHM", algorithm),
			RefreshTTL:       time.Duration(refreshTTL) * time.Hour,
			PurposeTTL:       time.Duration(purposeTTL) * time.Hour,
			Issuer:           getEnv("JWT_ISSUER", "saasforge"),
		},
		MultiTenancyStrategy: strings.ToLower(getEnv("MULTI_TENANCY_STRATEGY", StrategyNone)),
		HostMainDomain:       strings.ToLower(os.Getenv("HOST_MAIN_DOMAIN")),
		DomainGuardEnabled:   getEnvBool("DOMAIN_GUARD_ENABLED", false),
		AuditLogDir:          getEnv("AUDIT_LOG_DIR", os.TempDir()),
		AuditRetention:       time.Duration(retentionDays) * 24 * time.Hour,
		CORSAllowedOrigins: parseCSVEnv("CORS_ALLOWED_ORIGINS", []string{
			"http://localhost:5173",
			"http://localhost:3000",
		}),
		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     smtpPort,
			User:     os.Getenv("SMTP_USER"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     getEnv("SMTP_FROM", "no-reply@localhost"),
		},
		Cloudflare: CloudflareConfig{
			APIToken: os.Getenv("CLOUDFLARE_API_TOKEN"),
			ZoneID:   os.Getenv("CLOUDFLARE_ZONE_ID"),
			Target:   os.Getenv("DNS_TARGET"),
			BaseURL:  getEnv("CLOUDFLARE_API_URL", "https://api.cloudflare.com/client/v4"),
		},
		JobMaxRetry:            maxRetry,
		JobRetryDelay:          time.Duration(retryDelay) * time.Second,
		WorkerEnabled:          getEnvBool("WORKER_ENABLED", true),
		WorkerConcurrency:      concurrency,
		RateLimitPerMinute:     rateLimit,
		LoginAttemptsPerMinute: loginAttempts,
		OTLPEndpoint:           os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.MultiTenancyStrategy {
	case StrategyNone, StrategyHeader, StrategySubdomain:
	default:
		return fmt.Errorf("invalid MULTI_TENANCY_STRATEGY %q", c.MultiTenancyStrategy)
	}
	if c.MultiTenancyStrategy == StrategySubdomain && c.HostMainDomain == "" {
		return fmt.Errorf("HOST_MAIN_DOMAIN is required for the subdomain strategy")
	}
	if c.JWT.Secret == c.JWT.RefreshSecret {
		return fmt.Errorf("JWT_REFRESH_SECRET must differ from JWT_SECRET")
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("CACHE_TTL_SECONDS must be positive")
	}
	return nil
}

// DSN returns the Postgres connection string.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	d := c.Database
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvBool(key string, defaultValue bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return defaultValue
	}
}

func parseCSVEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
