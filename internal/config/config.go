// Package config loads service configuration from a YAML file with environment
// variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Storage backends
const (
	BackendMemory   = "memory"
	BackendSqlite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config errors
var (
	ErrMissingRPCEndpoint = errors.New("missing RPC endpoint")
	ErrInvalidBackend     = errors.New("storage backend must be memory, sqlite or postgres")
	ErrMissingDSN         = errors.New("missing database DSN")
	ErrInvalidSlippage    = errors.New("default slippage must be a percentage within [0, 100]")
	ErrInvalidLogFormat   = errors.New("log format must be text or json")
)

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ChainConfig configures the node RPC client.
type ChainConfig struct {
	RPCEndpoint string        `yaml:"rpcEndpoint"`
	WSEndpoint  string        `yaml:"wsEndpoint"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  int           `yaml:"maxRetries"`
	RateLimit   float64       `yaml:"rateLimit"` // requests per second, 0 = unlimited
	RateBurst   int           `yaml:"rateBurst"`
}

// StorageConfig selects where slips, quotes and submissions are kept.
type StorageConfig struct {
	Backend       string `yaml:"backend"`
	SqlitePath    string `yaml:"sqlitePath"`
	PostgresDSN   string `yaml:"postgresDSN"`
	ClickhouseDSN string `yaml:"clickhouseDSN"` // optional quote history
}

// RedisConfig configures the pool cache. Empty Addr disables it.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
	Prefix   string        `yaml:"prefix"`
}

// KafkaConfig configures submission events. No brokers disables publishing.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// SlipConfig configures the owned slip.
type SlipConfig struct {
	ID              string        `yaml:"id"`
	Account         string        `yaml:"account"`
	DefaultSlippage string        `yaml:"defaultSlippage"` // percent
	RefreshInterval time.Duration `yaml:"refreshInterval"`
}

// Config is the complete service configuration.
type Config struct {
	ListenAddress   string        `yaml:"listen"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	Log             LogConfig     `yaml:"log"`
	Chain           ChainConfig   `yaml:"chain"`
	Storage         StorageConfig `yaml:"storage"`
	Redis           RedisConfig   `yaml:"redis"`
	Kafka           KafkaConfig   `yaml:"kafka"`
	Slip            SlipConfig    `yaml:"slip"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		ListenAddress:   ":8080",
		ShutdownTimeout: 30 * time.Second,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Chain: ChainConfig{
			Timeout:    30 * time.Second,
			MaxRetries: 3,
			RateBurst:  1,
		},
		Storage: StorageConfig{
			Backend:    BackendMemory,
			SqlitePath: "data/tradeslip.db",
		},
		Redis: RedisConfig{
			TTL:    5 * time.Minute,
			Prefix: "tradeslip",
		},
		Kafka: KafkaConfig{
			Topic: "tradeslip.submissions",
		},
		Slip: SlipConfig{
			ID:              "default",
			DefaultSlippage: "1",
			RefreshInterval: 12 * time.Second,
		},
	}
}

// LoadDotEnv loads variables from the given .env files, ".env" if none are given.
// Variables already set are not overridden and missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads the configuration like Read and validates the result.
func Load(path string) (Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Read decodes the YAML file at path, if any, over the defaults and applies environment
// overrides. The result is not validated, so callers can layer flags on top first.
func Read(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := yaml.NewDecoder(file)
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("decode config: %w", err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.ListenAddress, "LISTEN_ADDR")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Log.Format, "LOG_FORMAT")
	setString(&c.Chain.RPCEndpoint, "RPC_ENDPOINT")
	setString(&c.Chain.WSEndpoint, "WS_ENDPOINT")
	setString(&c.Storage.Backend, "STORAGE_BACKEND")
	setString(&c.Storage.SqlitePath, "SQLITE_PATH")
	setString(&c.Storage.PostgresDSN, "POSTGRES_DSN")
	setString(&c.Storage.ClickhouseDSN, "CLICKHOUSE_DSN")
	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")
	setString(&c.Kafka.Topic, "KAFKA_TOPIC")
	setString(&c.Slip.ID, "SLIP_ID")
	setString(&c.Slip.Account, "TRADER_ACCOUNT")
	setString(&c.Slip.DefaultSlippage, "SLIPPAGE_PCT")

	if raw := os.Getenv("KAFKA_BROKERS"); raw != "" {
		c.Kafka.Brokers = splitList(raw)
	}
	if raw := os.Getenv("RPC_RATE_LIMIT"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("RPC_RATE_LIMIT: %w", err)
		}
		c.Chain.RateLimit = v
	}
	if raw := os.Getenv("REFRESH_INTERVAL"); raw != "" {
		v, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("REFRESH_INTERVAL: %w", err)
		}
		c.Slip.RefreshInterval = v
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Validate checks required fields and value ranges.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Chain.RPCEndpoint) == "" {
		return ErrMissingRPCEndpoint
	}
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendSqlite:
		if c.Storage.SqlitePath == "" {
			return fmt.Errorf("%w: sqlite path", ErrMissingDSN)
		}
	case BackendPostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("%w: postgres", ErrMissingDSN)
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidBackend, c.Storage.Backend)
	}
	if _, err := c.Slippage(); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, c.Log.Format)
	}
	return nil
}

// Slippage returns the default slippage percentage.
func (c Config) Slippage() (decimal.Decimal, error) {
	pct, err := decimal.NewFromString(strings.TrimSpace(c.Slip.DefaultSlippage))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidSlippage, c.Slip.DefaultSlippage)
	}
	if pct.IsNegative() || pct.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidSlippage, pct)
	}
	return pct, nil
}
