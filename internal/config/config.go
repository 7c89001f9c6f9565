package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     Server     `yaml:"server"`
	Storage    Storage    `yaml:"storage"`
	Postgres   Postgres   `yaml:"postgres"`
	SQLite     SQLite     `yaml:"sqlite"`
	Similarity Similarity `yaml:"similarity"`
	Feed       Feed       `yaml:"feed"`
	Log        Log        `yaml:"log"`
}

type Server struct {
	Port           string        `yaml:"port" validate:"required,numeric"`
	JWTSecret      string        `yaml:"jwt_secret" validate:"required,min=16"`
	TokenTTL       time.Duration `yaml:"token_ttl" validate:"gt=0"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	PageSize       int           `yaml:"page_size" validate:"gte=1,lte=100"`
}

type Storage struct {
	Type string `yaml:"type" validate:"oneof=memory postgres sqlite"`
}

type Postgres struct {
	DSN string `yaml:"dsn" validate:"required_if=Enabled true"`
	// Enabled is derived from Storage.Type and never read from the file.
	Enabled bool `yaml:"-"`
}

type SQLite struct {
	Path    string `yaml:"path" validate:"required_if=Enabled true"`
	Enabled bool   `yaml:"-"`
}

type Similarity struct {
	Breaker Breaker `yaml:"breaker"`
}

type Breaker struct {
	MaxRequests  uint32        `yaml:"max_requests" validate:"gte=1"`
	Interval     time.Duration `yaml:"interval" validate:"gte=0"`
	Timeout      time.Duration `yaml:"timeout" validate:"gt=0"`
	FailureRatio float64       `yaml:"failure_ratio" validate:"gt=0,lte=1"`
	MinRequests  uint32        `yaml:"min_requests" validate:"gte=1"`
}

type Feed struct {
	Buffer       int           `yaml:"buffer" validate:"gte=1"`
	WriteTimeout time.Duration `yaml:"write_timeout" validate:"gt=0"`
}

type Log struct {
	Level       string `yaml:"level" validate:"oneof=debug info warn error"`
	Development bool   `yaml:"development"`
}

var validate = validator.New()

func Default() *Config {
	return &Config{
		Server: Server{
			Port:      "8080",
			JWTSecret: "change-me-in-production",
			TokenTTL:  24 * time.Hour,
			PageSize:  20,
		},
		Storage: Storage{Type: "memory"},
		SQLite:  SQLite{Path: "fritter.db"},
		Similarity: Similarity{Breaker: Breaker{
			MaxRequests:  1,
			Interval:     time.Minute,
			Timeout:      30 * time.Second,
			FailureRatio: 0.6,
			MinRequests:  5,
		}},
		Feed: Feed{Buffer: 16, WriteTimeout: 5 * time.Second},
		Log:  Log{Level: "info"},
	}
}

// Load reads the YAML file at path over the defaults. A missing file is not
// an error. Environment variables take precedence over the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if val := os.Getenv("FRITTER_PORT"); val != "" {
		c.Server.Port = val
	}
	if val := os.Getenv("FRITTER_JWT_SECRET"); val != "" {
		c.Server.JWTSecret = val
	}
	if val := os.Getenv("FRITTER_STORAGE"); val != "" {
		c.Storage.Type = val
	}
	if val := os.Getenv("DATABASE_URL"); val != "" {
		c.Postgres.DSN = val
	}
	if val := os.Getenv("FRITTER_LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}
}

// Validate checks the whole config, including the section of the selected
// storage backend.
func (c *Config) Validate() error {
	c.Postgres.Enabled = c.Storage.Type == "postgres"
	c.SQLite.Enabled = c.Storage.Type == "sqlite"

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		msgs := make([]string, 0, len(verrs))
		for _, e := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s failed %q", e.Namespace(), e.Tag()))
		}
		return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
	}
	return nil
}
