package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port              string        `mapstructure:"PORT"`
	Env               string        `mapstructure:"ENV"`
	DatabaseURL       string        `mapstructure:"DATABASE_URL"`
	DBMaxConns        int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns        int32         `mapstructure:"DB_MIN_CONNS"`
	AuthSigningSecret string        `mapstructure:"AUTH_SIGNING_SECRET"`
	TokenTTL          time.Duration `mapstructure:"TOKEN_TTL"`
	RefreshTokenTTL   time.Duration `mapstructure:"REFRESH_TOKEN_TTL"`
	LockoutThreshold  int           `mapstructure:"LOCKOUT_THRESHOLD"`
	LockoutDuration   time.Duration `mapstructure:"LOCKOUT_DURATION"`
	MinPasswordLength int           `mapstructure:"MIN_PASSWORD_LENGTH"`
	AuditExemptPaths  string        `mapstructure:"AUDIT_EXEMPT_PATHS"`
	AuditQueueSize    int           `mapstructure:"AUDIT_QUEUE_SIZE"`
	AuditWriteTimeout time.Duration `mapstructure:"AUDIT_WRITE_TIMEOUT"`
	RateLimitRPS      float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst    int           `mapstructure:"RATE_LIMIT_BURST"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("TOKEN_TTL", "8h")
	v.SetDefault("REFRESH_TOKEN_TTL", "168h")
	v.SetDefault("LOCKOUT_THRESHOLD", 5)
	v.SetDefault("LOCKOUT_DURATION", "30m")
	v.SetDefault("MIN_PASSWORD_LENGTH", 12)
	v.SetDefault("AUDIT_EXEMPT_PATHS", "/health,/metrics")
	v.SetDefault("AUDIT_QUEUE_SIZE", 1024)
	v.SetDefault("AUDIT_WRITE_TIMEOUT", "5s")
	v.SetDefault("RATE_LIMIT_RPS", 10)
	v.SetDefault("RATE_LIMIT_BURST", 20)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("AUTH_SIGNING_SECRET")
	v.BindEnv("TOKEN_TTL")
	v.BindEnv("REFRESH_TOKEN_TTL")
	v.BindEnv("LOCKOUT_THRESHOLD")
	v.BindEnv("LOCKOUT_DURATION")
	v.BindEnv("MIN_PASSWORD_LENGTH")
	v.BindEnv("AUDIT_EXEMPT_PATHS")
	v.BindEnv("AUDIT_QUEUE_SIZE")
	v.BindEnv("AUDIT_WRITE_TIMEOUT")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ExemptPaths returns the request paths excluded from audit capture
// (health checks, metrics scrapes).
func (c *Config) ExemptPaths() []string {
	if c.AuditExemptPaths == "" {
		return nil
	}
	parts := strings.Split(c.AuditExemptPaths, ",")
	paths := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

// Validate checks that the configuration is safe to run. Outside development
// a signing secret is mandatory so credential tokens cannot be forged, and
// the lockout and token settings must be coherent.
func (c *Config) Validate() error {
	if !c.IsDev() && len(c.AuthSigningSecret) < 32 {
		return fmt.Errorf("AUTH_SIGNING_SECRET must be at least 32 characters outside development (ENV=%q)", c.Env)
	}
	if c.LockoutThreshold < 1 {
		return fmt.Errorf("LOCKOUT_THRESHOLD must be >= 1, got %d", c.LockoutThreshold)
	}
	if c.LockoutDuration <= 0 {
		return fmt.Errorf("LOCKOUT_DURATION must be positive, got %s", c.LockoutDuration)
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive, got %s", c.TokenTTL)
	}
	if c.RefreshTokenTTL <= c.TokenTTL {
		return fmt.Errorf("REFRESH_TOKEN_TTL (%s) must exceed TOKEN_TTL (%s)", c.RefreshTokenTTL, c.TokenTTL)
	}
	if c.MinPasswordLength < 8 {
		return fmt.Errorf("MIN_PASSWORD_LENGTH must be >= 8, got %d", c.MinPasswordLength)
	}
	if c.AuditQueueSize < 1 {
		return fmt.Errorf("AUDIT_QUEUE_SIZE must be >= 1, got %d", c.AuditQueueSize)
	}
	return nil
}
