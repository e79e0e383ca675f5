package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the YAML file read when CONFIG_FILE is not set.
const DefaultConfigFile = "fundamentallm.yaml"

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config holds application configuration. Values are layered as
// defaults < YAML file < environment variables.
type Config struct {
	HTTPPort           string        `yaml:"http_port"`
	RequestTimeout     time.Duration `yaml:"request_timeout"`
	CORSAllowedOrigins []string      `yaml:"cors_allowed_origins"`

	Store   Store   `yaml:"store"`
	LLM     LLM     `yaml:"llm"`
	Cache   Cache   `yaml:"cache"`
	NATS    NATS    `yaml:"nats"`
	Metrics Metrics `yaml:"metrics"`
	Log     Log     `yaml:"log"`
}

// Store selects and configures conversation storage.
type Store struct {
	Driver        string   `yaml:"driver"`
	DatabaseURL   string   `yaml:"database_url"`
	RunMigrations bool     `yaml:"run_migrations"`
	Postgres      Postgres `yaml:"postgres"`
}

// Postgres holds the parts DatabaseURL is built from when it is not given.
type Postgres struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DB       string `yaml:"db"`
}

// LLM configures the OpenAI-compatible model provider.
type LLM struct {
	APIKey     string        `yaml:"api_key"`
	BaseURL    string        `yaml:"base_url"`
	ChatModel  string        `yaml:"chat_model"`
	TitleModel string        `yaml:"title_model"`
	Timeout    time.Duration `yaml:"timeout"`
}

// Cache configures the in-process conversation cache.
type Cache struct {
	Enabled      bool          `yaml:"enabled"`
	MaxCostBytes int64         `yaml:"max_cost_bytes"`
	TTL          time.Duration `yaml:"ttl"`
}

// NATS configures lifecycle event publishing. An empty URL disables it.
type NATS struct {
	URL string `yaml:"url"`
}

// Metrics configures OTLP metric export. An empty endpoint disables it.
type Metrics struct {
	OTLPEndpoint string        `yaml:"otlp_endpoint"`
	Interval     time.Duration `yaml:"interval"`
}

// Log configures the global logger.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults returns the configuration used when nothing else is set.
func Defaults() Config {
	return Config{
		HTTPPort:           "8000",
		RequestTimeout:     120 * time.Second,
		CORSAllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		Store: Store{
			Driver:        StoreDriverPostgres,
			RunMigrations: true,
			Postgres: Postgres{
				Host:     "db",
				Port:     "5432",
				User:     "postgres",
				Password: "postgres",
				DB:       "postgres",
			},
		},
		LLM: LLM{
			BaseURL:    "https://api.deepinfra.com/v1/openai",
			ChatModel:  "Qwen/Qwen3-235B-A22B",
			TitleModel: "Qwen/Qwen3-235B-A22B",
			Timeout:    90 * time.Second,
		},
		Cache: Cache{
			Enabled:      false,
			MaxCostBytes: 64 << 20,
			TTL:          10 * time.Minute,
		},
		Metrics: Metrics{Interval: 30 * time.Second},
		Log:     Log{Level: "info", Format: "json"},
	}
}

// LoadConfig loads configuration from a .env file, the YAML file named by
// CONFIG_FILE (default fundamentallm.yaml) and the environment.
func LoadConfig() (*Config, error) {
	// Attempt to load .env file (useful for development)
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("Could not load .env file. Using environment variables only.")
	}

	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		path = DefaultConfigFile
	}
	return LoadFrom(path)
}

// LoadFrom applies defaults < YAML at path < environment. A missing YAML
// file is not an error.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}
	if err := loadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config env: %w", err)
	}
	if cfg.Store.DatabaseURL == "" {
		cfg.Store.DatabaseURL = cfg.Store.Postgres.URL()
	}
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}
	return &cfg, nil
}

// URL builds a postgres connection string from the individual settings.
func (p Postgres) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     p.Host + ":" + p.Port,
		Path:     "/" + p.DB,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// loadEnv overlays non-empty environment variables onto cfg.
func loadEnv(cfg *Config) error {
	setString(&cfg.HTTPPort, "HTTP_PORT")
	setString(&cfg.Store.Driver, "STORE_DRIVER")
	setString(&cfg.Store.DatabaseURL, "DATABASE_URL")
	setString(&cfg.Store.Postgres.Host, "POSTGRES_HOST")
	setString(&cfg.Store.Postgres.Port, "POSTGRES_PORT")
	setString(&cfg.Store.Postgres.User, "POSTGRES_USER")
	setString(&cfg.Store.Postgres.Password, "POSTGRES_PASSWORD")
	setString(&cfg.Store.Postgres.DB, "POSTGRES_DB")
	setString(&cfg.LLM.APIKey, "DEEPINFRA_API_KEY")
	setString(&cfg.LLM.BaseURL, "LLM_BASE_URL")
	setString(&cfg.LLM.ChatModel, "LLM_CHAT_MODEL")
	setString(&cfg.LLM.TitleModel, "LLM_TITLE_MODEL")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.Metrics.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Log.Format, "LOG_FORMAT")
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.CORSAllowedOrigins = splitList(v)
	}

	var errs []error
	errs = append(errs,
		setDuration(&cfg.RequestTimeout, "REQUEST_TIMEOUT"),
		setDuration(&cfg.LLM.Timeout, "LLM_TIMEOUT"),
		setDuration(&cfg.Cache.TTL, "CACHE_TTL"),
		setDuration(&cfg.Metrics.Interval, "METRICS_INTERVAL"),
		setBool(&cfg.Store.RunMigrations, "RUN_MIGRATIONS"),
		setBool(&cfg.Cache.Enabled, "CACHE_ENABLED"),
		setInt64(&cfg.Cache.MaxCostBytes, "CACHE_MAX_COST_BYTES"),
	)
	return errors.Join(errs...)
}

func validate(cfg *Config) error {
	if cfg.HTTPPort == "" {
		return errors.New("http_port is required")
	}
	if _, err := strconv.Atoi(cfg.HTTPPort); err != nil {
		return fmt.Errorf("http_port must be numeric, got %q", cfg.HTTPPort)
	}
	switch cfg.Store.Driver {
	case StoreDriverPostgres:
		if cfg.Store.DatabaseURL == "" {
			return errors.New("store.database_url is required for the postgres driver")
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("store.driver must be %q or %q, got %q", StoreDriverPostgres, StoreDriverMemory, cfg.Store.Driver)
	}
	if cfg.RequestTimeout <= 0 {
		return errors.New("request_timeout must be positive")
	}
	if cfg.Cache.Enabled && cfg.Cache.MaxCostBytes < 1024 {
		return errors.New("cache.max_cost_bytes must be at least 1024")
	}
	if cfg.Metrics.OTLPEndpoint != "" && cfg.Metrics.Interval <= 0 {
		return errors.New("metrics.interval must be positive")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func setBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}

func setInt64(dst *int64, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
