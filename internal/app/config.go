package app

import (
	"fmt"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/taskly/core/config"
	coredatabase "github.com/m3rciful/taskly/core/database"
	"github.com/m3rciful/taskly/internal/conversation"
	"github.com/m3rciful/taskly/internal/localtime"
	"github.com/m3rciful/taskly/internal/scheduler"
)

const (
	// StoragePostgres keeps the ledger in Postgres.
	StoragePostgres = "postgres"
	// StorageMemory keeps the ledger in process memory; data is lost on restart.
	StorageMemory = "memory"
)

// DeliveryConfig tunes outbound Telegram calls.
type DeliveryConfig struct {
	Attempts  int `yaml:"attempts" envconfig:"TASKLY_DELIVERY_ATTEMPTS"`
	BackoffMS int `yaml:"backoff_ms" envconfig:"TASKLY_DELIVERY_BACKOFF_MS"`
	QueueSize int `yaml:"queue_size"`
	Workers   int `yaml:"workers"`
}

// StateConfig tunes per-chat conversation memory.
type StateConfig struct {
	// TTLMinutes evicts chats idle longer than this. Zero keeps them forever.
	TTLMinutes int `yaml:"ttl_minutes" envconfig:"TASKLY_STATE_TTL_MINUTES"`
}

// Config is the full Taskly configuration file.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Database     coredatabase.Config       `yaml:"database"`
	Storage      string                    `yaml:"storage" envconfig:"TASKLY_STORAGE"`
	Timezone     string                    `yaml:"timezone" envconfig:"TASKLY_TIMEZONE"`
	WorkingHours conversation.WorkingHours `yaml:"working_hours"`
	Schedule     scheduler.Config          `yaml:"schedule"`
	TimeBlocks   []scheduler.TimeBlock     `yaml:"time_blocks" ignored:"true"`
	Delivery     DeliveryConfig            `yaml:"delivery"`
	State        StateConfig               `yaml:"state"`

	location *time.Location
}

// CoreConfig exposes the embedded core section to core/cmd.
func (c *Config) CoreConfig() *coreconfig.Config {
	if c == nil {
		return nil
	}
	return &c.Config
}

// Location is the resolved operating timezone. Valid after Normalize.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return localtime.Tehran
	}
	return c.location
}

// Load reads path, overlays the environment and normalizes the result.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates cfg and fills defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	if err := coreconfig.Normalize(&cfg.Config); err != nil {
		return err
	}

	storage := strings.ToLower(strings.TrimSpace(cfg.Storage))
	if storage == "" {
		storage = StoragePostgres
	}
	switch storage {
	case StoragePostgres:
		if err := cfg.Database.Validate(); err != nil {
			return err
		}
	case StorageMemory:
	default:
		return fmt.Errorf("invalid storage %q; allowed: postgres, memory", cfg.Storage)
	}
	cfg.Storage = storage

	loc, err := localtime.Load(strings.TrimSpace(cfg.Timezone))
	if err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	cfg.location = loc

	if cfg.WorkingHours == (conversation.WorkingHours{}) {
		cfg.WorkingHours = conversation.DefaultWorkingHours()
	}
	if err := cfg.WorkingHours.Validate(); err != nil {
		return err
	}

	cfg.Schedule = cfg.Schedule.WithDefaults()
	if err := cfg.Schedule.Validate(cfg.TimeBlocks); err != nil {
		return err
	}

	if cfg.Delivery.Attempts <= 0 {
		cfg.Delivery.Attempts = 3
	}
	switch {
	case cfg.Delivery.BackoffMS < 0:
		return fmt.Errorf("delivery.backoff_ms must be >= 0")
	case cfg.Delivery.BackoffMS == 0:
		cfg.Delivery.BackoffMS = 500
	}
	if cfg.State.TTLMinutes < 0 {
		return fmt.Errorf("state.ttl_minutes must be >= 0")
	}
	return nil
}
