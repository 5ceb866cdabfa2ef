package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

type Config struct {
	RPCAddress           string  `toml:"RPCAddress" env:"QUGATE_RPC_ADDRESS"`
	DataDir              string  `toml:"DataDir" env:"QUGATE_DATA_DIR"`
	StorageBackend       string  `toml:"StorageBackend" env:"QUGATE_STORAGE_BACKEND"`
	GenesisFile          string  `toml:"GenesisFile" env:"QUGATE_GENESIS_FILE"`
	Environment          string  `toml:"Environment" env:"QUGATE_ENV"`
	LogFile              string  `toml:"LogFile" env:"QUGATE_LOG_FILE"`
	EpochIntervalSeconds uint64  `toml:"EpochIntervalSeconds" env:"QUGATE_EPOCH_INTERVAL_SECONDS"`
	RPCJWTSecret         string  `toml:"RPCJWTSecret" env:"QUGATE_RPC_JWT_SECRET"`
	RPCRateLimit         float64 `toml:"RPCRateLimit" env:"QUGATE_RPC_RATE_LIMIT"`
	RPCRateBurst         int     `toml:"RPCRateBurst" env:"QUGATE_RPC_RATE_BURST"`
	RPCReadTimeout       uint64  `toml:"RPCReadTimeout" env:"QUGATE_RPC_READ_TIMEOUT"`
	RPCWriteTimeout      uint64  `toml:"RPCWriteTimeout" env:"QUGATE_RPC_WRITE_TIMEOUT"`

	Journal   Journal   `toml:"journal" envPrefix:"QUGATE_JOURNAL_"`
	Telemetry Telemetry `toml:"telemetry" envPrefix:"QUGATE_OTEL_"`
}

// Journal selects where gate events are archived. An empty driver disables it.
type Journal struct {
	Driver string `toml:"Driver" env:"DRIVER"`
	DSN    string `toml:"DSN" env:"DSN"`
}

// Telemetry configures the OTLP exporters.
type Telemetry struct {
	Endpoint string `toml:"Endpoint" env:"ENDPOINT"`
	Insecure bool   `toml:"Insecure" env:"INSECURE"`
	Headers  string `toml:"Headers" env:"HEADERS"`
	Traces   bool   `toml:"Traces" env:"TRACES"`
	Metrics  bool   `toml:"Metrics" env:"METRICS"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists, then applies QUGATE_* environment overrides.
func Load(path string) (*Config, error) {
	var cfg *Config
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg, err = createDefault(path)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = Default()
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, err
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config file %s: unknown key %s", path, undecoded[0])
		}
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration written for a fresh node.
func Default() *Config {
	return &Config{
		RPCAddress:           "127.0.0.1:8547",
		DataDir:              "./qugate-data",
		StorageBackend:       "leveldb",
		Environment:          "local",
		EpochIntervalSeconds: 60,
		RPCRateLimit:         20,
		RPCRateBurst:         40,
		RPCReadTimeout:       15,
		RPCWriteTimeout:      15,
	}
}

func (c *Config) normalize() {
	c.StorageBackend = strings.ToLower(strings.TrimSpace(c.StorageBackend))
	c.Journal.Driver = strings.ToLower(strings.TrimSpace(c.Journal.Driver))
	if strings.TrimSpace(c.Environment) == "" {
		c.Environment = "local"
	}
}

// Validate rejects settings the node cannot start with.
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case "memory", "leveldb", "bolt":
	default:
		return fmt.Errorf("config: unknown StorageBackend %q", c.StorageBackend)
	}
	switch c.Journal.Driver {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("config: unknown journal Driver %q", c.Journal.Driver)
	}
	if c.Journal.Driver == "postgres" && strings.TrimSpace(c.Journal.DSN) == "" {
		return errors.New("config: postgres journal requires a DSN")
	}
	if c.EpochIntervalSeconds == 0 {
		return errors.New("config: EpochIntervalSeconds must be positive")
	}
	if c.RPCRateLimit < 0 || c.RPCRateBurst < 0 {
		return errors.New("config: rate limits must not be negative")
	}
	return nil
}

// EpochInterval is the wall-clock length of one epoch.
func (c *Config) EpochInterval() time.Duration {
	return time.Duration(c.EpochIntervalSeconds) * time.Second
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
