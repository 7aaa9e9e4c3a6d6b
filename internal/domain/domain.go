// Package domain holds the entities shared by the ledger, the conversation and the scheduler.
package domain

import "time"

// Language is a user's interface language.
type Language string

const (
	// LanguagePrimary is Persian, the default.
	LanguagePrimary Language = "fa"
	// LanguageSecondary is English.
	LanguageSecondary Language = "en"
)

// Valid reports whether l is a supported language.
func (l Language) Valid() bool {
	return l == LanguagePrimary || l == LanguageSecondary
}

// User is a Telegram account known to the bot.
type User struct {
	ID         int64     `db:"id"`
	TelegramID int64     `db:"telegram_id"`
	Username   string    `db:"username"`
	FirstName  string    `db:"first_name"`
	CreatedAt  time.Time `db:"created_at"`
}

// Settings are per-user preferences.
type Settings struct {
	Reminder    bool     `db:"reminder"`
	FocusAlerts bool     `db:"focus_alerts"`
	Language    Language `db:"language"`
}

// DefaultSettings is what a new user starts with.
func DefaultSettings() Settings {
	return Settings{Reminder: true, FocusAlerts: false, Language: LanguagePrimary}
}

// SettingsPatch changes only the fields that are set.
type SettingsPatch struct {
	Reminder    *bool
	FocusAlerts *bool
	Language    *Language
}

// Apply returns s with the patch applied.
func (p SettingsPatch) Apply(s Settings) Settings {
	if p.Reminder != nil {
		s.Reminder = *p.Reminder
	}
	if p.FocusAlerts != nil {
		s.FocusAlerts = *p.FocusAlerts
	}
	if p.Language != nil {
		s.Language = *p.Language
	}
	return s
}

// Task is a named activity scoped to the local day it was created on.
type Task struct {
	ID        int64     `db:"id"`
	UserID    int64     `db:"user_id"`
	Name      string    `db:"name"`
	CreatedAt time.Time `db:"created_at"`
}

// Session is one start/stop interval on a task. EndTime nil means open.
type Session struct {
	ID        int64      `db:"id"`
	TaskID    int64      `db:"task_id"`
	UserID    int64      `db:"user_id"`
	StartTime time.Time  `db:"start_time"`
	EndTime   *time.Time `db:"end_time"`
	// Duration is whole minutes, set on close.
	Duration *int `db:"duration"`
}

// Open reports whether the session has not been closed.
func (s Session) Open() bool { return s.EndTime == nil }

// TaskSession is a session joined with its task's name.
type TaskSession struct {
	Session
	TaskName string `db:"task_name"`
}

// OpenSession is an open session with the owner's chat identity, as seen by the forced close.
type OpenSession struct {
	TaskSession
	TelegramID int64 `db:"telegram_id"`
}

// TaskReport is a task with its sessions ordered by start time.
type TaskReport struct {
	Task
	Sessions []Session
}

// ClosedSession describes a session closed by the forced close job.
type ClosedSession struct {
	SessionID  int64  `db:"session_id"`
	TaskID     int64  `db:"task_id"`
	TaskName   string `db:"task_name"`
	UserID     int64  `db:"user_id"`
	TelegramID int64  `db:"telegram_id"`
	Duration   int    `db:"duration"`
}
