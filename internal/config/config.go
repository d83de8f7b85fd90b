package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type APIConfig struct {
	Addr     string `envconfig:"POKEDEN_API_ADDR" default:":8080"`
	LogLevel string `envconfig:"POKEDEN_LOG_LEVEL" default:"info"`

	Store          string `envconfig:"POKEDEN_STORE" default:"postgres"`
	DatabaseURL    string `envconfig:"DATABASE_URL"`
	DBMaxConns     int32  `envconfig:"POKEDEN_DB_MAX_CONNS" default:"20"`
	DBMinConns     int32  `envconfig:"POKEDEN_DB_MIN_CONNS" default:"2"`
	MigrateOnStart bool   `envconfig:"POKEDEN_MIGRATE" default:"true"`

	SupabaseURL       string `envconfig:"SUPABASE_URL" required:"true"`
	SupabaseAnonKey   string `envconfig:"SUPABASE_ANON_KEY" required:"true"`
	SupabaseJWTSecret string `envconfig:"SUPABASE_JWT_SECRET"`

	SpeciesBaseURL  string        `envconfig:"POKEDEN_SPECIES_BASE_URL" default:"https://pokeapi.co/api/v2"`
	SpeciesRPS      float64       `envconfig:"POKEDEN_SPECIES_RPS" default:"10"`
	SpeciesBurst    int           `envconfig:"POKEDEN_SPECIES_BURST" default:"5"`
	SpeciesCacheTTL time.Duration `envconfig:"POKEDEN_SPECIES_CACHE_TTL" default:"24h"`
	RedisURL        string        `envconfig:"REDIS_URL"`

	BalanceFile string `envconfig:"POKEDEN_BALANCE_FILE"`
	SeedItems   bool   `envconfig:"POKEDEN_SEED_ITEMS" default:"true"`
}

type WorkerConfig struct {
	LogLevel    string `envconfig:"POKEDEN_LOG_LEVEL" default:"info"`
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMaxConns  int32  `envconfig:"POKEDEN_DB_MAX_CONNS" default:"4"`

	PruneSchedule string        `envconfig:"POKEDEN_PRUNE_SCHEDULE" default:"@hourly"`
	Retention     time.Duration `envconfig:"POKEDEN_IDEMPOTENCY_RETENTION" default:"72h"`
	RunOnce       bool          `envconfig:"POKEDEN_WORKER_RUN_ONCE" default:"false"`
	MetricsAddr   string        `envconfig:"POKEDEN_WORKER_METRICS_ADDR"`
}

type CLIConfig struct {
	APIBaseURL string `envconfig:"PKD_API_BASE_URL" default:"http://localhost:8080"`
}

func LoadAPIFromEnv() (APIConfig, error) {
	var cfg APIConfig
	if err := load(&cfg); err != nil {
		return cfg, err
	}
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		if !strings.HasPrefix(port, ":") {
			port = ":" + port
		}
		cfg.Addr = port
	}
	cfg.SupabaseURL = strings.TrimRight(strings.TrimSpace(cfg.SupabaseURL), "/")
	cfg.DatabaseURL = strings.TrimSpace(cfg.DatabaseURL)
	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))
	return cfg, cfg.Validate()
}

func (c APIConfig) Validate() error {
	switch c.Store {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("POKEDEN_STORE must be %q or %q", StorePostgres, StoreMemory)
	}
	if c.SupabaseURL == "" {
		return fmt.Errorf("SUPABASE_URL is required")
	}
	if c.SupabaseAnonKey == "" {
		return fmt.Errorf("SUPABASE_ANON_KEY is required")
	}
	if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("invalid POKEDEN_DB_MIN_CONNS/POKEDEN_DB_MAX_CONNS")
	}
	if c.SpeciesRPS <= 0 || c.SpeciesBurst <= 0 {
		return fmt.Errorf("POKEDEN_SPECIES_RPS and POKEDEN_SPECIES_BURST must be positive")
	}
	return nil
}

func LoadWorkerFromEnv() (WorkerConfig, error) {
	var cfg WorkerConfig
	if err := load(&cfg); err != nil {
		return cfg, err
	}
	if cfg.Retention <= 0 {
		return cfg, fmt.Errorf("POKEDEN_IDEMPOTENCY_RETENTION must be positive")
	}
	if strings.TrimSpace(cfg.PruneSchedule) == "" {
		return cfg, fmt.Errorf("POKEDEN_PRUNE_SCHEDULE is required")
	}
	return cfg, nil
}

func LoadCLIFromEnv() CLIConfig {
	var cfg CLIConfig
	if err := load(&cfg); err != nil {
		cfg.APIBaseURL = "http://localhost:8080"
	}
	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	return cfg
}

// load reads an optional .env from the working directory before the environment.
func load(cfg any) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	if err := envconfig.Process("", cfg); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	return nil
}

func ParseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
