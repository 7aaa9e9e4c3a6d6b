package scheduler

import (
	"fmt"
	"strings"
	"time"
)

// BlockType classifies a time block.
type BlockType string

const (
	BlockFocus BlockType = "Focus"
	BlockBreak BlockType = "Break"
	// BlockHalf is the midday break, announced as lunch.
	BlockHalf BlockType = "Half"
)

// TimeBlock is one entry of the daily work rhythm.
type TimeBlock struct {
	Type      BlockType `yaml:"type"`
	StartTime string    `yaml:"start_time"`
	EndTime   string    `yaml:"end_time"`
}

// MessageKey is the catalog key announced when the block starts.
func (b TimeBlock) MessageKey() string {
	switch b.Type {
	case BlockFocus:
		return "notifications.focus"
	case BlockBreak:
		return "notifications.break"
	default:
		return "notifications.lunch"
	}
}

// Validate checks the type and the start time.
func (b TimeBlock) Validate() error {
	switch b.Type {
	case BlockFocus, BlockBreak, BlockHalf:
	default:
		return fmt.Errorf("time block type %q; allowed: Focus, Break, Half", b.Type)
	}
	if _, _, _, err := ParseClock(b.StartTime); err != nil {
		return err
	}
	if b.EndTime != "" {
		if _, _, _, err := ParseClock(b.EndTime); err != nil {
			return err
		}
	}
	return nil
}

// ParseClock reads "HH:MM" or "HH:MM:SS".
func ParseClock(s string) (hour, minute, second int, err error) {
	s = strings.TrimSpace(s)
	layout := "15:04:05"
	if strings.Count(s, ":") == 1 {
		layout = "15:04"
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid clock time %q: want HH:MM[:SS]", s)
	}
	return t.Hour(), t.Minute(), t.Second(), nil
}

// Config holds the recurrence rules, in the operating timezone.
type Config struct {
	DailyReport     []string `yaml:"daily_report"`
	MorningReminder []string `yaml:"morning_reminder"`
	ForceClose      []string `yaml:"force_close"`
	// TimeBlockDays is an RRULE BYDAY list such as "SA,SU,MO,TU,WE,TH".
	TimeBlockDays string `yaml:"time_block_days" envconfig:"TASKLY_TIME_BLOCK_DAYS"`
}

const workWeek = "SA,SU,MO,TU,WE,TH"

// DefaultConfig is the Saturday to Thursday work week with Friday off.
func DefaultConfig() Config {
	return Config{
		DailyReport: []string{
			Weekly("TH", 12, 45, 0),
			Weekly("SA,SU,MO,TU,WE", 16, 45, 0),
		},
		MorningReminder: []string{Weekly(workWeek, 8, 0, 0)},
		ForceClose:      []string{"FREQ=DAILY;BYHOUR=22;BYMINUTE=0;BYSECOND=0"},
		TimeBlockDays:   workWeek,
	}
}

// WithDefaults fills empty fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if len(c.DailyReport) == 0 {
		c.DailyReport = d.DailyReport
	}
	if len(c.MorningReminder) == 0 {
		c.MorningReminder = d.MorningReminder
	}
	if len(c.ForceClose) == 0 {
		c.ForceClose = d.ForceClose
	}
	if strings.TrimSpace(c.TimeBlockDays) == "" {
		c.TimeBlockDays = d.TimeBlockDays
	}
	return c
}

// Validate parses every rule and time block.
func (c Config) Validate(blocks []TimeBlock) error {
	anchor := time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)
	for name, rules := range map[string][]string{
		"daily_report":     c.DailyReport,
		"morning_reminder": c.MorningReminder,
		"force_close":      c.ForceClose,
	} {
		if _, err := ParseSchedule(anchor, rules...); err != nil {
			return fmt.Errorf("schedule.%s: %w", name, err)
		}
	}
	for i, b := range blocks {
		if err := b.Validate(); err != nil {
			return fmt.Errorf("time_blocks[%d]: %w", i, err)
		}
		h, m, s, _ := ParseClock(b.StartTime)
		if _, err := ParseSchedule(anchor, Weekly(c.TimeBlockDays, h, m, s)); err != nil {
			return fmt.Errorf("schedule.time_block_days: %w", err)
		}
	}
	return nil
}
