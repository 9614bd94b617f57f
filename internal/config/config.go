package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all configuration required by the gateway process.
// All values come from env (or an env-file loaded by the process runner).
// No component should read raw environment variables.
type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	SlowDown  SlowDownConfig
	Agent     AgentConfig
	Upstream  UpstreamConfig
}

type AppConfig struct {
	Env            string `env:"APP_ENV"`
	Port           int    `env:"APP_PORT" envDefault:"8080"`
	MetricsEnabled bool   `env:"METRICS_ENABLED" envDefault:"true"`
}

type DBConfig struct {
	Host     string `env:"DB_HOST"`
	Port     int    `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER"`
	Password string `env:"DB_PASSWORD"`
	Name     string `env:"DB_NAME"`

	// SSLMode accepts: disable, require, verify-ca, verify-full
	SSLMode string `env:"DB_SSLMODE"`

	AutoMigrate bool `env:"DB_AUTO_MIGRATE" envDefault:"false"`
}

type RedisConfig struct {
	Host     string `env:"REDIS_HOST"`
	Port     int    `env:"REDIS_PORT" envDefault:"6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`

	// OpTimeout bounds every store round-trip on a security path.
	OpTimeout time.Duration `env:"REDIS_OP_TIMEOUT" envDefault:"250ms"`
}

type AuthConfig struct {
	AccessSecret  string        `env:"JWT_ACCESS_SECRET"`
	RefreshSecret string        `env:"JWT_REFRESH_SECRET"`
	Issuer        string        `env:"JWT_ISSUER"`
	Audience      string        `env:"JWT_AUDIENCE"`
	AccessTTL     time.Duration `env:"JWT_ACCESS_TTL" envDefault:"15m"`
	RefreshTTL    time.Duration `env:"JWT_REFRESH_TTL" envDefault:"168h"`

	// CookiePath scopes the refresh cookie to the authentication routes only.
	CookiePath string `env:"AUTH_COOKIE_PATH" envDefault:"/api/auth"`
}

// PolicyConfig is one endpoint class of the rate limiter.
// Zero values are replaced by the class defaults in Validate.
type PolicyConfig struct {
	Window       time.Duration `env:"WINDOW"`
	Max          int           `env:"MAX"`
	OnStoreError string        `env:"ON_STORE_ERROR"`
}

type RateLimitConfig struct {
	// TrustedIPHeader is set by the edge (CDN / load balancer) and wins over X-Forwarded-For.
	TrustedIPHeader string `env:"RATE_LIMIT_TRUSTED_IP_HEADER" envDefault:"CF-Connecting-IP"`

	Auth     PolicyConfig `envPrefix:"RATE_LIMIT_AUTH_"`
	Checkout PolicyConfig `envPrefix:"RATE_LIMIT_CHECKOUT_"`
	Recovery PolicyConfig `envPrefix:"RATE_LIMIT_RECOVERY_"`
	Agent    PolicyConfig `envPrefix:"RATE_LIMIT_AGENT_"`
	Global   PolicyConfig `envPrefix:"RATE_LIMIT_GLOBAL_"`
}

type SlowDownConfig struct {
	Window   time.Duration `env:"SLOWDOWN_WINDOW" envDefault:"60s"`
	After    int           `env:"SLOWDOWN_AFTER" envDefault:"3"`
	Step     time.Duration `env:"SLOWDOWN_STEP" envDefault:"500ms"`
	MaxDelay time.Duration `env:"SLOWDOWN_MAX" envDefault:"5s"`
}

type AgentConfig struct {
	// KeySalt keys the API key hash. It must be stable across restarts.
	KeySalt       string        `env:"AGENT_KEY_SALT"`
	KeyHeader     string        `env:"AGENT_KEY_HEADER" envDefault:"X-Agent-Key"`
	LookupTimeout time.Duration `env:"AGENT_LOOKUP_TIMEOUT" envDefault:"500ms"`
}

type UpstreamConfig struct {
	StorefrontURL string `env:"STOREFRONT_URL"`
}

// Store outage behaviours accepted by PolicyConfig.OnStoreError.
const (
	OnStoreErrorClosed = "closed"
	OnStoreErrorOpen   = "open"
	OnStoreErrorLocal  = "local"
)

const minProductionSecretLen = 32

// Load parses the environment and validates the result.
func Load() (*Config, error) {
	c := &Config{}
	if err := env.Parse(c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks invariants and fills class defaults. Every problem is reported at once.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}
	if c.Redis.OpTimeout <= 0 {
		c.Redis.OpTimeout = 250 * time.Millisecond
	}

	errs = append(errs, c.validateAuth()...)
	errs = append(errs, c.validateRateLimits()...)

	if c.Agent.KeySalt == "" {
		errs = append(errs, errors.New("AGENT_KEY_SALT is required"))
	}
	if c.Agent.KeyHeader == "" {
		c.Agent.KeyHeader = "X-Agent-Key"
	}
	if c.Agent.LookupTimeout <= 0 {
		c.Agent.LookupTimeout = 500 * time.Millisecond
	}

	if c.Upstream.StorefrontURL == "" {
		errs = append(errs, errors.New("STOREFRONT_URL is required"))
	} else if u, err := url.Parse(c.Upstream.StorefrontURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("STOREFRONT_URL must be an absolute URL, got %q", c.Upstream.StorefrontURL))
	}

	return joinErrors(errs)
}

func (c *Config) validateAuth() []error {
	var errs []error
	a := &c.Auth

	if a.AccessSecret == "" {
		errs = append(errs, errors.New("JWT_ACCESS_SECRET is required"))
	}
	if a.RefreshSecret == "" {
		errs = append(errs, errors.New("JWT_REFRESH_SECRET is required"))
	}
	if a.AccessSecret != "" && a.AccessSecret == a.RefreshSecret {
		errs = append(errs, errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ"))
	}
	if c.IsProduction() {
		if len(a.AccessSecret) < minProductionSecretLen {
			errs = append(errs, fmt.Errorf("JWT_ACCESS_SECRET must be at least %d bytes in production", minProductionSecretLen))
		}
		if len(a.RefreshSecret) < minProductionSecretLen {
			errs = append(errs, fmt.Errorf("JWT_REFRESH_SECRET must be at least %d bytes in production", minProductionSecretLen))
		}
	}

	if a.AccessTTL <= 0 {
		a.AccessTTL = 15 * time.Minute
	}
	if a.RefreshTTL <= 0 {
		a.RefreshTTL = 7 * 24 * time.Hour
	}
	if a.RefreshTTL <= a.AccessTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}
	if a.CookiePath == "" {
		a.CookiePath = "/api/auth"
	}
	if !strings.HasPrefix(a.CookiePath, "/") {
		errs = append(errs, fmt.Errorf("AUTH_COOKIE_PATH must start with /, got %q", a.CookiePath))
	}
	return errs
}

func (c *Config) validateRateLimits() []error {
	var errs []error
	r := &c.RateLimit

	classes := []struct {
		name string
		p    *PolicyConfig
		def  PolicyConfig
	}{
		{"AUTH", &r.Auth, PolicyConfig{Window: time.Minute, Max: 5, OnStoreError: OnStoreErrorClosed}},
		{"CHECKOUT", &r.Checkout, PolicyConfig{Window: time.Minute, Max: 10, OnStoreError: OnStoreErrorLocal}},
		{"RECOVERY", &r.Recovery, PolicyConfig{Window: 10 * time.Minute, Max: 3, OnStoreError: OnStoreErrorClosed}},
		{"AGENT", &r.Agent, PolicyConfig{Window: time.Minute, Max: 60, OnStoreError: OnStoreErrorClosed}},
		{"GLOBAL", &r.Global, PolicyConfig{Window: time.Minute, Max: 120, OnStoreError: OnStoreErrorLocal}},
	}
	for _, cl := range classes {
		if cl.p.Window == 0 {
			cl.p.Window = cl.def.Window
		}
		if cl.p.Max == 0 {
			cl.p.Max = cl.def.Max
		}
		if cl.p.OnStoreError == "" {
			cl.p.OnStoreError = cl.def.OnStoreError
		}
		if cl.p.Window < time.Second {
			errs = append(errs, fmt.Errorf("RATE_LIMIT_%s_WINDOW must be at least 1s, got %s", cl.name, cl.p.Window))
		}
		if cl.p.Max < 0 {
			errs = append(errs, fmt.Errorf("RATE_LIMIT_%s_MAX must be positive, got %d", cl.name, cl.p.Max))
		}
		if !isValidOnStoreError(cl.p.OnStoreError) {
			errs = append(errs, fmt.Errorf("RATE_LIMIT_%s_ON_STORE_ERROR must be one of closed, open, local, got %q", cl.name, cl.p.OnStoreError))
		}
	}

	s := &c.SlowDown
	if *s == (SlowDownConfig{}) {
		*s = SlowDownConfig{After: 3, Step: 500 * time.Millisecond, MaxDelay: 5 * time.Second}
	}
	if s.Window <= 0 {
		s.Window = time.Minute
	}
	if s.After < 0 {
		errs = append(errs, fmt.Errorf("SLOWDOWN_AFTER must not be negative, got %d", s.After))
	}
	if s.Step <= 0 || s.MaxDelay < s.Step {
		errs = append(errs, fmt.Errorf("SLOWDOWN_STEP must be positive and not exceed SLOWDOWN_MAX, got %s / %s", s.Step, s.MaxDelay))
	}
	return errs
}

func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c *Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func isValidOnStoreError(v string) bool {
	switch v {
	case OnStoreErrorClosed, OnStoreErrorOpen, OnStoreErrorLocal:
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
