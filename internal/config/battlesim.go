package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "BEASTCALL_"

// DatabaseConfig selects where finished battles are stored.
// An empty Driver disables persistence.
type DatabaseConfig struct {
	Driver string `yaml:"driver" env:"DRIVER"` // "postgres", "sqlite" or ""
	DSN    string `yaml:"dsn" env:"DSN"`
}

// BattleSim holds all configuration for the battlesim command.
type BattleSim struct {
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`

	CatalogPath string `yaml:"catalog_path" env:"CATALOG_PATH"`
	RosterPath  string `yaml:"roster_path" env:"ROSTER_PATH"`

	// Seed drives all combat rolls; 0 picks a random seed.
	Seed       uint64 `yaml:"seed" env:"SEED"`
	AutoBattle bool   `yaml:"auto_battle" env:"AUTO_BATTLE"`

	// FeedAddr enables the websocket event feed when non-empty.
	FeedAddr      string `yaml:"feed_addr" env:"FEED_ADDR"`
	FeedQueueSize int    `yaml:"feed_queue_size" env:"FEED_QUEUE_SIZE"`

	Database DatabaseConfig `yaml:"database" envPrefix:"DB_"`
	Battle   Battle         `yaml:"battle" envPrefix:"BATTLE_"`
}

// DefaultBattleSim returns BattleSim config with sensible defaults.
func DefaultBattleSim() BattleSim {
	return BattleSim{
		LogLevel:      "info",
		AutoBattle:    true,
		FeedQueueSize: 256,
		Battle:        DefaultBattle(),
	}
}

// LoadBattleSim loads battlesim config from a YAML file.
// If the file doesn't exist, returns defaults.
func LoadBattleSim(path string) (BattleSim, error) {
	cfg := DefaultBattleSim()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}

// ApplyEnv overrides cfg fields from BEASTCALL_* environment variables.
// Unset variables leave the loaded values untouched.
func ApplyEnv(cfg *BattleSim) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
