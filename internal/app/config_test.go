package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/taskly/core/config"
	coredatabase "github.com/m3rciful/taskly/core/database"
	"github.com/m3rciful/taskly/internal/conversation"
	"github.com/m3rciful/taskly/internal/localtime"
	"github.com/m3rciful/taskly/internal/scheduler"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func validConfig() Config {
	return Config{
		Config:  coreconfig.Config{Telegram: coreconfig.TelegramConfig{Token: "t"}},
		Storage: StorageMemory,
	}
}

func TestLoadFillsDefaults(t *testing.T) {
	path := writeConfig(t, `
telegram:
  token: from-yaml
storage: memory
time_blocks:
  - type: Focus
    start_time: "08:00:00"
    end_time: "10:00:00"
  - type: Half
    start_time: "13:00"
`)
	t.Setenv("TASKLY_TIMEZONE", "Europe/Berlin")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-yaml", cfg.Telegram.Token)
	assert.Equal(t, coreconfig.RunModeLongpoll, cfg.Telegram.RunMode)
	assert.Equal(t, "Europe/Berlin", cfg.Location().String())
	assert.Equal(t, conversation.DefaultWorkingHours(), cfg.WorkingHours)
	assert.Equal(t, scheduler.DefaultConfig(), cfg.Schedule)
	require.Len(t, cfg.TimeBlocks, 2)
	assert.Equal(t, scheduler.BlockHalf, cfg.TimeBlocks[1].Type)
	assert.Equal(t, 3, cfg.Delivery.Attempts)
	assert.Equal(t, 500, cfg.Delivery.BackoffMS)
}

func TestNormalizeDefaultsToTehranAndPostgres(t *testing.T) {
	cfg := validConfig()
	cfg.Storage = ""
	cfg.Database = coredatabase.Config{Host: "db", Name: "taskly"}
	require.NoError(t, Normalize(&cfg))
	assert.Equal(t, StoragePostgres, cfg.Storage)
	assert.Equal(t, localtime.Tehran, cfg.Location())
	assert.Equal(t, &cfg.Config, cfg.CoreConfig())
}

func TestNormalizeRejectsBadValues(t *testing.T) {
	cases := map[string]func(*Config){
		"missing token":       func(c *Config) { c.Telegram.Token = "" },
		"unknown storage":     func(c *Config) { c.Storage = "sqlite" },
		"postgres without db": func(c *Config) { c.Storage = StoragePostgres },
		"unknown timezone":    func(c *Config) { c.Timezone = "Mars/Olympus" },
		"inverted hours":      func(c *Config) { c.WorkingHours = conversation.WorkingHours{Start: 18, End: 9} },
		"bad rrule":           func(c *Config) { c.Schedule.ForceClose = []string{"FREQ=SOMETIMES"} },
		"bad block type": func(c *Config) {
			c.TimeBlocks = []scheduler.TimeBlock{{Type: "Nap", StartTime: "14:00"}}
		},
		"bad block time": func(c *Config) {
			c.TimeBlocks = []scheduler.TimeBlock{{Type: scheduler.BlockFocus, StartTime: "25:99"}}
		},
		"negative ttl": func(c *Config) { c.State.TTLMinutes = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			mutate(&cfg)
			assert.Error(t, Normalize(&cfg))
		})
	}
}
