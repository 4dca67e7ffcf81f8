// Package config loads the tracker configuration from YAML with defaults,
// environment overrides and validation.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment variables overriding file values
const EnvPrefix = "TRACKER"

// Storage drivers
const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

// Config represents the application configuration
type Config struct {
	Server      ServerConfig     `yaml:"server"`
	Database    DatabaseConfig   `yaml:"database"`
	Storage     StorageConfig    `yaml:"storage"`
	Session     SessionConfig    `yaml:"session"`
	ParentChain ChainConfig      `yaml:"parent_chain" split_words:"true"`
	ChildChain  ChainConfig      `yaml:"child_chain" split_words:"true"`
	Eras        ErasConfig       `yaml:"eras"`
	Indexer     IndexerConfig    `yaml:"indexer"`
	Polling     PollingConfig    `yaml:"polling"`
	Backfill    BackfillConfig   `yaml:"backfill"`
	Monitoring  MonitoringConfig `yaml:"monitoring"`
	Logging     LoggingConfig    `yaml:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" split_words:"true"`
	WriteTimeout    time.Duration `yaml:"write_timeout" split_words:"true"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" split_words:"true"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" split_words:"true"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	Database     string `yaml:"database"`
	SSLMode      string `yaml:"ssl_mode" split_words:"true"`
	MaxOpenConns int    `yaml:"max_open_conns" split_words:"true"`
}

// StorageConfig selects the durable storage backing the tracker documents
type StorageConfig struct {
	Driver string `yaml:"driver" validate:"oneof=postgres memory"`
}

// SessionConfig identifies the account whose transfers are tracked
type SessionConfig struct {
	Account string `yaml:"account" validate:"required,eth_addr"`
}

// ChainConfig contains RPC settings for one chain
type ChainConfig struct {
	RPCURL         string        `yaml:"rpc_url" envconfig:"RPC_URL" validate:"required,url"`
	ChainID        uint64        `yaml:"chain_id" split_words:"true" validate:"required"`
	RequestTimeout time.Duration `yaml:"request_timeout" split_words:"true"`
	BlockCacheSize int           `yaml:"block_cache_size" split_words:"true"`
}

// ErasConfig describes the classic and current bridge deployments and where the switch happened
type ErasConfig struct {
	ParentBoundary uint64          `yaml:"parent_boundary" split_words:"true"`
	ChildBoundary  uint64          `yaml:"child_boundary" split_words:"true"`
	Classic        ContractsConfig `yaml:"classic"`
	Current        ContractsConfig `yaml:"current"`
}

// ContractsConfig lists the bridge contracts of one era
type ContractsConfig struct {
	ParentBridge   string   `yaml:"parent_bridge" split_words:"true" validate:"omitempty,eth_addr"`
	ParentInbox    string   `yaml:"parent_inbox" split_words:"true" validate:"omitempty,eth_addr"`
	ParentGateways []string `yaml:"parent_gateways" split_words:"true" validate:"dive,eth_addr"`
	ChildGateways  []string `yaml:"child_gateways" split_words:"true" validate:"dive,eth_addr"`
}

// IndexerConfig contains indexer client settings
type IndexerConfig struct {
	Enabled bool          `yaml:"enabled"`
	URL     string        `yaml:"url" validate:"required_if=Enabled true,omitempty,url"`
	Timeout time.Duration `yaml:"timeout"`
}

// PollingConfig contains status polling settings
type PollingConfig struct {
	Interval        time.Duration `yaml:"interval" validate:"gt=0"`
	MaxConcurrent   int64         `yaml:"max_concurrent" split_words:"true" validate:"min=1"`
	InitialBackoff  time.Duration `yaml:"initial_backoff" split_words:"true"`
	MaxBackoff      time.Duration `yaml:"max_backoff" split_words:"true"`
	ChallengePeriod time.Duration `yaml:"challenge_period" split_words:"true"`
}

// BackfillConfig contains historical backfill settings
type BackfillConfig struct {
	PageSize       uint64        `yaml:"page_size" split_words:"true" validate:"min=1"`
	MaxRetries     uint64        `yaml:"max_retries" split_words:"true"`
	RetryDelay     time.Duration `yaml:"retry_delay" split_words:"true"`
	ParentLookback uint64        `yaml:"parent_lookback" split_words:"true"`
	ChildLookback  uint64        `yaml:"child_lookback" split_words:"true"`
	SkipOnStartup  bool          `yaml:"skip_on_startup" split_words:"true"`
}

// MonitoringConfig contains monitoring and metrics settings
type MonitoringConfig struct {
	Disabled bool `yaml:"disabled"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format" validate:"oneof=json console"`
	OutputPath string `yaml:"output_path" split_words:"true"`
}

// SetDefaults fills unset values and is invoked by defaults.Set.
// Defaults must not live in `default` tags: envconfig reads the same tag.
func (c *Config) SetDefaults() {
	setIfZero(&c.Server.Host, "0.0.0.0")
	setIfZero(&c.Server.Port, 8080)
	setIfZero(&c.Server.ReadTimeout, 15*time.Second)
	setIfZero(&c.Server.WriteTimeout, 15*time.Second)
	setIfZero(&c.Server.IdleTimeout, 60*time.Second)
	setIfZero(&c.Server.ShutdownTimeout, 30*time.Second)

	setIfZero(&c.Database.Host, "localhost")
	setIfZero(&c.Database.Port, 5432)
	setIfZero(&c.Database.Database, "bridge_tracker")
	setIfZero(&c.Database.SSLMode, "disable")
	setIfZero(&c.Database.MaxOpenConns, 10)

	setIfZero(&c.Storage.Driver, StorageDriverPostgres)

	for _, chain := range []*ChainConfig{&c.ParentChain, &c.ChildChain} {
		setIfZero(&chain.RequestTimeout, 30*time.Second)
		setIfZero(&chain.BlockCacheSize, 1024)
	}

	setIfZero(&c.Indexer.Timeout, 20*time.Second)

	setIfZero(&c.Polling.Interval, 10*time.Second)
	setIfZero(&c.Polling.MaxConcurrent, 8)
	setIfZero(&c.Polling.InitialBackoff, 10*time.Second)
	setIfZero(&c.Polling.MaxBackoff, 5*time.Minute)
	setIfZero(&c.Polling.ChallengePeriod, 7*24*time.Hour)

	setIfZero(&c.Backfill.PageSize, 5000)
	setIfZero(&c.Backfill.MaxRetries, 3)
	setIfZero(&c.Backfill.RetryDelay, time.Second)
	setIfZero(&c.Backfill.ParentLookback, 100_000)
	setIfZero(&c.Backfill.ChildLookback, 1_000_000)

	setIfZero(&c.Logging.Level, "info")
	setIfZero(&c.Logging.Format, "json")
	setIfZero(&c.Logging.OutputPath, "stdout")
}

func setIfZero[T comparable](field *T, value T) {
	var zero T
	if *field == zero {
		*field = value
	}
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse builds a configuration from YAML bytes, applying defaults and environment overrides
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("failed to set config defaults: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return err
	}
	if cfg.Storage.Driver == StorageDriverPostgres && cfg.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if cfg.Eras.Current.ParentInbox == "" && cfg.Eras.Current.ParentBridge == "" {
		return fmt.Errorf("eras.current requires parent_bridge or parent_inbox")
	}
	return nil
}

// GetConnectionString returns a PostgreSQL connection string
func (c *DatabaseConfig) GetConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
