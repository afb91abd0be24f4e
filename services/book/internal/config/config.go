package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file, overridable with BOOK_CONFIG_PATH.
const ConfigPath = "config.yaml"

const jwksPathSuffix = "/protocol/openid-connect/certs"

// FileConfig represents configuration loaded from YAML, then overridden by
// environment variables.
type FileConfig struct {
	Port     string `yaml:"port" env:"PORT"`
	LogLevel string `yaml:"logLevel" env:"LOG_LEVEL"`

	DatabaseDriver   string `yaml:"databaseDriver" env:"DATABASE_DRIVER"`
	DatabaseHost     string `yaml:"databaseHost" env:"DATABASE_HOST"`
	DatabasePort     int    `yaml:"databasePort" env:"DATABASE_PORT"`
	DatabaseUser     string `yaml:"databaseUser" env:"DATABASE_USER"`
	DatabasePassword string `yaml:"databasePassword" env:"DATABASE_PASSWORD"`
	DatabaseName     string `yaml:"databaseName" env:"DATABASE_NAME"`
	DatabaseURL      string `yaml:"databaseURL" env:"DATABASE_URL"`
	DBMaxOpenConns   int    `yaml:"dbMaxOpenConns" env:"DB_MAX_OPEN_CONNS"`
	DBMaxRetries     int    `yaml:"dbMaxRetries" env:"DB_MAX_RETRIES"`
	DBRetryDelay     string `yaml:"dbRetryDelay" env:"DB_RETRY_DELAY"`

	IdentityProviderURL   string `yaml:"identityProviderURL" env:"IDENTITY_PROVIDER_URL"`
	JWKSURL               string `yaml:"jwksURL" env:"JWKS_URL"`
	JWTIssuer             string `yaml:"jwtIssuer" env:"JWT_ISSUER"`
	JWTAudience           string `yaml:"jwtAudience" env:"JWT_AUDIENCE"`
	JWTLeeway             string `yaml:"jwtLeeway" env:"JWT_LEEWAY"`
	JWKSCacheTTL          string `yaml:"jwksCacheTTL" env:"JWKS_CACHE_TTL"`
	JWKSRequestsPerMinute int    `yaml:"jwksRequestsPerMinute" env:"JWKS_REQUESTS_PER_MINUTE"`

	RedisAddr     string `yaml:"redisAddr" env:"REDIS_ADDR"`
	RedisPassword string `yaml:"redisPassword" env:"REDIS_PASSWORD"`

	// Parsed by Load from the duration strings above.
	retryDelay time.Duration
	leeway     time.Duration
	cacheTTL   time.Duration
}

// Path returns the config file path for this process.
func Path() string {
	if v := strings.TrimSpace(os.Getenv("BOOK_CONFIG_PATH")); v != "" {
		return v
	}
	return ConfigPath
}

// Load reads config from path (defaults to config.yaml). A missing file is
// not an error: every key can come from the environment instead.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return cfg, fmt.Errorf("read config: %w", err)
	}
	// Override with environment variables
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	if err := parseDurations(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *FileConfig) {
	if cfg.Port == "" {
		cfg.Port = "4002"
	}
	if cfg.DatabaseDriver == "" {
		cfg.DatabaseDriver = "mysql"
	}
	cfg.DatabaseDriver = strings.ToLower(strings.TrimSpace(cfg.DatabaseDriver))
	if cfg.DatabaseHost == "" {
		cfg.DatabaseHost = "mysql"
	}
	if cfg.DatabaseUser == "" {
		cfg.DatabaseUser = "root"
	}
	if cfg.DatabaseName == "" {
		cfg.DatabaseName = "bookStore"
	}
	if cfg.DBMaxOpenConns == 0 {
		cfg.DBMaxOpenConns = 1
	}
	if cfg.DBMaxRetries == 0 {
		cfg.DBMaxRetries = 10
	}
	if cfg.DBRetryDelay == "" {
		cfg.DBRetryDelay = "5s"
	}
	cfg.IdentityProviderURL = strings.TrimRight(strings.TrimSpace(cfg.IdentityProviderURL), "/")
	if cfg.JWKSURL == "" && cfg.IdentityProviderURL != "" {
		cfg.JWKSURL = cfg.IdentityProviderURL + jwksPathSuffix
	}
	if cfg.JWTIssuer == "" {
		cfg.JWTIssuer = cfg.IdentityProviderURL
	}
	if cfg.JWTAudience == "" {
		cfg.JWTAudience = "react-client"
	}
	if cfg.JWTLeeway == "" {
		cfg.JWTLeeway = "30s"
	}
	if cfg.JWKSCacheTTL == "" {
		cfg.JWKSCacheTTL = "10m"
	}
	if cfg.JWKSRequestsPerMinute == 0 {
		cfg.JWKSRequestsPerMinute = 5
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml or PORT)")
	}
	switch cfg.DatabaseDriver {
	case "mysql", "postgres":
	default:
		return fmt.Errorf("config: unsupported databaseDriver %q (mysql or postgres)", cfg.DatabaseDriver)
	}
	if cfg.DatabaseURL == "" && cfg.DatabaseHost == "" {
		return errors.New("config: databaseHost or databaseURL is required")
	}
	if cfg.DBMaxOpenConns < 0 || cfg.DBMaxRetries < 0 {
		return errors.New("config: dbMaxOpenConns and dbMaxRetries must be >= 0")
	}
	if strings.TrimSpace(cfg.JWKSURL) == "" {
		return errors.New("config: identityProviderURL or jwksURL is required (set in config.yaml or IDENTITY_PROVIDER_URL)")
	}
	if strings.TrimSpace(cfg.JWTIssuer) == "" {
		return errors.New("config: jwtIssuer is required when identityProviderURL is not set")
	}
	if cfg.JWKSRequestsPerMinute < 0 {
		return errors.New("config: jwksRequestsPerMinute must be >= 0")
	}
	return nil
}

func parseDurations(cfg *FileConfig) error {
	var err error
	if cfg.retryDelay, err = ParseDuration("dbRetryDelay", cfg.DBRetryDelay); err != nil {
		return err
	}
	if cfg.leeway, err = ParseDuration("jwtLeeway", cfg.JWTLeeway); err != nil {
		return err
	}
	if cfg.cacheTTL, err = ParseDuration("jwksCacheTTL", cfg.JWKSCacheTTL); err != nil {
		return err
	}
	return nil
}

// ParseDuration parses an optional duration string for the named key.
func ParseDuration(name, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", name, err)
	}
	if dur < 0 {
		return 0, fmt.Errorf("invalid %s duration: must be >= 0", name)
	}
	return dur, nil
}

// RetryDelay returns dbRetryDelay as parsed by Load.
func (c FileConfig) RetryDelay() time.Duration {
	return c.retryDelay
}

// Leeway returns jwtLeeway as parsed by Load.
func (c FileConfig) Leeway() time.Duration {
	return c.leeway
}

// CacheTTL returns jwksCacheTTL as parsed by Load.
func (c FileConfig) CacheTTL() time.Duration {
	return c.cacheTTL
}
