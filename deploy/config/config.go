package config

import (
	"fmt"
	"log"
	"log/slog"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/langowen/fxledger/internal/date"
	"github.com/pkg/errors"
)

type Config struct {
	Storage    Storage
	HTTPServer HTTPServer
	Fetcher    Fetcher
	ETL        ETL
	Redis      Redis
	LogLevel   string `env:"LOG_LEVEL" env-default:"info"`
}

type Storage struct {
	Timeout  time.Duration `env:"BD_TIMEOUT" env-default:"10s"`
	Host     string        `env:"BD_HOST" env-required:"true"`
	Port     int           `env:"BD_PORT" env-required:"true"`
	User     string        `env:"BD_USER" env-required:"true"`
	Password string        `env:"BD_PASSWORD" env-required:"true"`
	DBName   string        `env:"BD_DBNAME" env-required:"true"`
	SSLMode  string        `env:"BD_SSL_MODE" env-default:"disable"`
	Schema   string        `env:"BD_SCHEMA" env-default:"public"`
}

type HTTPServer struct {
	Port        string        `env:"HTTP_PORT" env-default:"8082"`
	Timeout     time.Duration `env:"HTTP_TIMEOUT" env-default:"2m"`
	IdleTimeout time.Duration `env:"HTTP_IDLE_TIMEOUT" env-default:"60s"`
	CacheTTL    time.Duration `env:"API_CACHE_TTL" env-default:"5m"`
}

type Fetcher struct {
	Provider    string        `env:"FETCHER_PROVIDER" env-default:"ecb"`
	URL         string        `env:"FETCHER_URL"`
	APIKey      string        `env:"FETCHER_API_KEY"`
	Timeout     time.Duration `env:"FETCHER_TIMEOUT" env-default:"60s"`
	MaxTries    int           `env:"FETCHER_MAX_TRIES" env-default:"5"`
	Backoff     time.Duration `env:"FETCHER_BACKOFF" env-default:"1s"`
	Concurrency int           `env:"FETCHER_CONCURRENCY" env-default:"4"`
}

type ETL struct {
	Table     string        `env:"ETL_TABLE" env-required:"true"`
	StartDate string        `env:"ETL_START_DATE"`
	Pivot     string        `env:"ETL_PIVOT" env-default:"EUR"`
	Bases     string        `env:"ETL_BASES" env-default:"USD"`
	Targets   string        `env:"ETL_TARGETS"`
	Interval  time.Duration `env:"ETL_INTERVAL" env-default:"0s"`
}

type Redis struct {
	Host     string        `env:"REDIS_HOST"`
	Password string        `env:"REDIS_PASSWORD"`
	DB       int           `env:"REDIS_DB" env-default:"0"`
	TTL      time.Duration `env:"REDIS_TTL" env-default:"24h"`
}

// NewConfig loads the settings shared by both binaries.
func NewConfig() *Config {
	return mustLoad(Read)
}

// NewETLConfig also requires the extraction settings of the ETL.
func NewETLConfig() *Config {
	return mustLoad(ReadETL)
}

func mustLoad(read func() (*Config, error)) *Config {
	_ = godotenv.Load(".env")

	cfg, err := read()
	if err != nil {
		log.Fatalf("Error reading env: %v", err)
	}

	return cfg
}

// Read loads the configuration from the environment and validates the
// settings every binary needs.
func Read() (*Config, error) {
	const op = "config.Read"

	cfg := &Config{}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, errors.Wrap(err, op)
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, op)
	}

	return cfg, nil
}

// ReadETL is Read plus ValidateETL.
func ReadETL() (*Config, error) {
	const op = "config.ReadETL"

	cfg, err := Read()
	if err != nil {
		return nil, err
	}

	if err := cfg.ValidateETL(); err != nil {
		return nil, errors.Wrap(err, op)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.ETL.Table) == "" {
		return fmt.Errorf("ETL_TABLE is empty")
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// ValidateETL checks the settings only the ETL reads.
func (c *Config) ValidateETL() error {
	if _, err := c.ETL.Start(); err != nil {
		return err
	}
	if len(c.ETL.TargetList()) == 0 {
		return fmt.Errorf("ETL_TARGETS is empty")
	}
	if strings.TrimSpace(c.ETL.Pivot) == "" {
		return fmt.Errorf("ETL_PIVOT is empty")
	}
	switch strings.ToLower(c.Fetcher.Provider) {
	case "ecb":
	case "fixer":
		if c.Fetcher.APIKey == "" {
			return fmt.Errorf("FETCHER_API_KEY is required for the fixer provider")
		}
	default:
		return fmt.Errorf("unknown FETCHER_PROVIDER %q", c.Fetcher.Provider)
	}
	return nil
}

// DSN builds the pgx connection string.
func (s Storage) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s search_path=%s",
		s.Host,
		s.Port,
		s.User,
		s.Password,
		s.DBName,
		s.SSLMode,
		s.Schema,
	)
}

func (e ETL) Start() (date.Date, error) {
	d, err := date.Parse(strings.TrimSpace(e.StartDate))
	if err != nil {
		return date.Date{}, fmt.Errorf("ETL_START_DATE: %w", err)
	}
	return d, nil
}

func (e ETL) BaseList() []string   { return Split(e.Bases) }
func (e ETL) TargetList() []string { return Split(e.Targets) }

// SlogLevel maps LOG_LEVEL onto a slog level.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return level, nil
}

// Split parses a comma separated list of currency codes, upper-casing them
// and dropping blanks and duplicates while keeping the first occurrence.
func Split(s string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, part := range strings.Split(s, ",") {
		code := strings.ToUpper(strings.TrimSpace(part))
		if code == "" {
			continue
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	return out
}

// LogValue keeps secrets out of "starting application" log lines.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("db_host", c.Storage.Host),
		slog.String("db_name", c.Storage.DBName),
		slog.String("table", c.ETL.Table),
		slog.String("provider", c.Fetcher.Provider),
		slog.String("pivot", c.ETL.Pivot),
		slog.Any("bases", c.ETL.BaseList()),
		slog.Any("targets", c.ETL.TargetList()),
		slog.String("start", c.ETL.StartDate),
		slog.Duration("interval", c.ETL.Interval),
	)
}
