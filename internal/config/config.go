package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the process configuration. Business tunables live in the
// parameter store instead.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Cache    CacheConfig    `yaml:"cache"`
	Params   ParamsConfig   `yaml:"params"`
	Sweep    SweepConfig    `yaml:"sweep"`
	Auth     AuthConfig     `yaml:"auth"`
	Log      LogConfig      `yaml:"log"`
	Timezone string         `yaml:"timezone" validate:"required"`
}

type ServerConfig struct {
	Port int `yaml:"port" validate:"min=1,max=65535"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver" validate:"oneof=sqlite mysql"`
	DSN      string `yaml:"dsn" validate:"required"`
	LogLevel string `yaml:"log_level" validate:"oneof=silent error warn info"`
}

type CacheConfig struct {
	Driver       string        `yaml:"driver" validate:"oneof=memory badger none"`
	BadgerDir    string        `yaml:"badger_dir" validate:"required_if=Driver badger"`
	MissCountTTL time.Duration `yaml:"miss_count_ttl" validate:"gt=0"`
}

type ParamsConfig struct {
	CacheTTL    time.Duration `yaml:"cache_ttl" validate:"gt=0"`
	SeedOnStart bool          `yaml:"seed_on_start"`
}

type SweepConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval" validate:"gt=0"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret" validate:"required"`
	Issuer    string        `yaml:"issuer" validate:"required"`
	Audience  string        `yaml:"audience" validate:"required"`
	TokenTTL  time.Duration `yaml:"token_ttl" validate:"gt=0"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json text"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{
		Sweep:  SweepConfig{Enabled: true},
		Params: ParamsConfig{SeedOnStart: true},
	}
	cfg.applyDefaults()
	cfg.applyEnv()
	return cfg
}

// Load reads the YAML file at path. An empty path yields Default().
func Load(path string) (*Config, error) {
	if path == "" {
		cfg := Default()
		if err := cfg.validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML, fills defaults, applies environment overrides and validates.
func Parse(data []byte) (*Config, error) {
	cfg := Config{
		Sweep:  SweepConfig{Enabled: true},
		Params: ParamsConfig{SeedOnStart: true},
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8008
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.DSN == "" && c.Database.Driver == "sqlite" {
		c.Database.DSN = "task-tracker.db"
	}
	if c.Database.LogLevel == "" {
		c.Database.LogLevel = "warn"
	}
	if c.Cache.Driver == "" {
		c.Cache.Driver = "memory"
	}
	if c.Cache.MissCountTTL == 0 {
		c.Cache.MissCountTTL = 300 * time.Second
	}
	if c.Params.CacheTTL == 0 {
		c.Params.CacheTTL = 30 * time.Second
	}
	if c.Sweep.Interval == 0 {
		c.Sweep.Interval = 60 * time.Second
	}
	if c.Auth.JWTSecret == "" {
		c.Auth.JWTSecret = "development-insecure-secret-change-me"
	}
	if c.Auth.Issuer == "" {
		c.Auth.Issuer = "task-tracker-api"
	}
	if c.Auth.Audience == "" {
		c.Auth.Audience = "task-tracker-clients"
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = 24 * time.Hour
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// applyEnv lets deployment environments override the file.
func (c *Config) applyEnv() {
	if p, err := strconv.Atoi(getEnv("PORT", "")); err == nil {
		c.Server.Port = p
	}
	c.Database.Driver = getEnv("DATABASE_DRIVER", c.Database.Driver)
	c.Database.DSN = getEnv("DATABASE_DSN", c.Database.DSN)
	c.Cache.Driver = getEnv("CACHE_DRIVER", c.Cache.Driver)
	c.Auth.JWTSecret = getEnv("JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.Issuer = getEnv("JWT_ISSUER", c.Auth.Issuer)
	c.Auth.Audience = getEnv("JWT_AUDIENCE", c.Auth.Audience)
	c.Log.Level = strings.ToLower(getEnv("LOG_LEVEL", c.Log.Level))
	c.Timezone = getEnv("TZ_NAME", c.Timezone)
}

var validate = validator.New()

func (c *Config) validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("config: %s fails %q", fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("config: %w", err)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("config: timezone %q: %w", c.Timezone, err)
	}
	return nil
}

// Location returns the configured timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
