package ledger

import (
	"context"
	"time"

	"github.com/m3rciful/taskly/internal/domain"
)

// UserFilter selects users by their settings. A false field is not a constraint.
type UserFilter struct {
	Reminder    bool
	FocusAlerts bool
}

// Store is the persistence contract. Every method is atomic on its own; the
// ones that check and then act must not let a concurrent caller slip in between.
type Store interface {
	// UpsertUser creates the user keyed by TelegramID or refreshes its profile
	// fields, creating settings with defaults when the user is new.
	UpsertUser(ctx context.Context, u domain.User, defaults domain.Settings) (domain.User, bool, error)
	UserByTelegramID(ctx context.Context, telegramID int64) (domain.User, error)
	Settings(ctx context.Context, userID int64) (domain.Settings, error)
	SaveSettings(ctx context.Context, userID int64, s domain.Settings) error
	Users(ctx context.Context, filter UserFilter) ([]domain.User, error)

	// CreateTaskIfAbsent returns the user's task named name created within
	// [dayStart, dayEnd], or creates one at createdAt. created reports which.
	CreateTaskIfAbsent(ctx context.Context, userID int64, name string, createdAt, dayStart, dayEnd time.Time) (task domain.Task, created bool, err error)
	TaskByID(ctx context.Context, taskID int64) (domain.Task, error)
	// TasksCreatedBetween lists tasks ordered by creation time.
	TasksCreatedBetween(ctx context.Context, userID int64, from, to time.Time) ([]domain.Task, error)
	CountTasksCreatedBetween(ctx context.Context, userID int64, from, to time.Time) (int, error)
	// RenameTask renames the task unless another task of the same user created
	// within [dayStart, dayEnd] already has newName, in which case renamed is false.
	RenameTask(ctx context.Context, taskID int64, newName string, dayStart, dayEnd time.Time) (task domain.Task, renamed bool, err error)
	// DeleteTaskIfIdle deletes the user's task and its sessions. It returns
	// ErrNotFound for an unknown task and ErrTaskActive if a session is open.
	DeleteTaskIfIdle(ctx context.Context, taskID, userID int64) error

	// SessionsForTasks lists sessions of the given tasks ordered by start time.
	SessionsForTasks(ctx context.Context, taskIDs []int64) ([]domain.Session, error)
	// ActiveSession returns the user's open session, or nil.
	ActiveSession(ctx context.Context, userID int64) (*domain.TaskSession, error)
	// OpenSession opens a session on taskID unless the user already has one
	// open, in which case the existing one is returned with created false.
	OpenSession(ctx context.Context, userID, taskID int64, start time.Time) (session domain.TaskSession, created bool, err error)
	// CloseSession closes the session if it is still open and reports whether it did.
	CloseSession(ctx context.Context, sessionID int64, end time.Time, duration int) (bool, error)
	// OpenSessions lists every open session system wide.
	OpenSessions(ctx context.Context) ([]domain.OpenSession, error)
}
