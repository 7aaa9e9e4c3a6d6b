// Package ledger owns tasks and their timed sessions.
//
// At most one session per user is open at any time. Durations are whole
// minutes between UTC instants; local time only decides which day a task
// belongs to.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/m3rciful/taskly/core/logger"
	"github.com/m3rciful/taskly/internal/domain"
	"github.com/m3rciful/taskly/internal/localtime"
)

// Ledger implements task, session and settings operations on top of a Store.
type Ledger struct {
	store Store
	clock *localtime.Clock
}

// New returns a ledger. A nil clock uses the default timezone and the system clock.
func New(store Store, clock *localtime.Clock) *Ledger {
	if clock == nil {
		clock = localtime.New(nil)
	}
	return &Ledger{store: store, clock: clock}
}

// Clock exposes the time authority used by the ledger.
func (l *Ledger) Clock() *localtime.Clock { return l.clock }

// GetOrCreateTask returns today's task with the given name, creating it if needed.
// existed is true when the task had already been created today.
func (l *Ledger) GetOrCreateTask(ctx context.Context, userID int64, name string) (domain.Task, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Task{}, false, ErrEmptyTaskName
	}
	now := l.clock.NowUTC()
	dayStart, dayEnd := l.clock.LocalDayRange(now)
	task, created, err := l.store.CreateTaskIfAbsent(ctx, userID, name, now, dayStart, dayEnd)
	if err != nil {
		return domain.Task{}, false, fmt.Errorf("create task: %w", err)
	}
	if created {
		logger.LogEvent(ctx, logger.SVCLedger, slog.LevelInfo, "task.created",
			slog.Int64("task_id", task.ID),
			slog.Int64("owner_id", userID),
		)
	}
	return task, !created, nil
}

// GetTask loads a task by id.
func (l *Ledger) GetTask(ctx context.Context, taskID int64) (domain.Task, error) {
	task, err := l.store.TaskByID(ctx, taskID)
	if errors.Is(err, ErrNotFound) {
		return domain.Task{}, ErrTaskNotFound
	}
	if err != nil {
		return domain.Task{}, fmt.Errorf("load task: %w", err)
	}
	return task, nil
}

// TodayTasks lists the tasks the user created on the current local day.
func (l *Ledger) TodayTasks(ctx context.Context, userID int64) ([]domain.Task, error) {
	from, to := l.clock.Today()
	tasks, err := l.store.TasksCreatedBetween(ctx, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// GetActiveSession returns the user's open session or nil when there is none.
func (l *Ledger) GetActiveSession(ctx context.Context, userID int64) (*domain.TaskSession, error) {
	s, err := l.store.ActiveSession(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("active session: %w", err)
	}
	return s, nil
}

// StartTask opens a session on task. If the user already has an open session
// it is returned unchanged and started is false.
func (l *Ledger) StartTask(ctx context.Context, userID int64, task domain.Task) (domain.TaskSession, bool, error) {
	if task.UserID != userID {
		return domain.TaskSession{}, false, ErrTaskNotFound
	}
	s, created, err := l.store.OpenSession(ctx, userID, task.ID, l.clock.NowUTC())
	if errors.Is(err, ErrNotFound) {
		return domain.TaskSession{}, false, ErrTaskNotFound
	}
	if err != nil {
		return domain.TaskSession{}, false, fmt.Errorf("open session: %w", err)
	}
	if created {
		logger.LogEvent(ctx, logger.SVCLedger, slog.LevelInfo, "session.started",
			slog.Int64("session_id", s.ID),
			slog.Int64("task_id", s.TaskID),
			slog.Int64("owner_id", userID),
		)
	}
	return s, created, nil
}

// EndTask closes the user's open session. It returns nil when nothing was open
// or when another caller closed it first.
func (l *Ledger) EndTask(ctx context.Context, userID int64) (*domain.TaskSession, error) {
	active, err := l.store.ActiveSession(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("active session: %w", err)
	}
	if active == nil {
		return nil, nil
	}
	closed, err := l.close(ctx, *active)
	if err != nil || closed == nil {
		return nil, err
	}
	logger.LogEvent(ctx, logger.SVCLedger, slog.LevelInfo, "session.ended",
		slog.Int64("session_id", closed.ID),
		slog.Int64("task_id", closed.TaskID),
		slog.Int("minutes", *closed.Duration),
	)
	return closed, nil
}

func (l *Ledger) close(ctx context.Context, s domain.TaskSession) (*domain.TaskSession, error) {
	now := l.clock.NowUTC()
	minutes := localtime.DiffMinutes(s.StartTime, now)
	ok, err := l.store.CloseSession(ctx, s.ID, now, minutes)
	if err != nil {
		return nil, fmt.Errorf("close session %d: %w", s.ID, err)
	}
	if !ok {
		return nil, nil
	}
	s.EndTime = &now
	s.Duration = &minutes
	return &s, nil
}

// DeleteTask removes the user's task with its sessions and returns how many
// tasks remain for today. A task with an open session is refused with ErrTaskActive.
func (l *Ledger) DeleteTask(ctx context.Context, taskID, userID int64) (int, error) {
	err := l.store.DeleteTaskIfIdle(ctx, taskID, userID)
	switch {
	case errors.Is(err, ErrNotFound):
		return 0, ErrTaskNotFound
	case errors.Is(err, ErrTaskActive):
		return 0, ErrTaskActive
	case err != nil:
		return 0, fmt.Errorf("delete task: %w", err)
	}
	logger.LogEvent(ctx, logger.SVCLedger, slog.LevelInfo, "task.deleted",
		slog.Int64("task_id", taskID),
		slog.Int64("owner_id", userID),
	)
	from, to := l.clock.Today()
	n, err := l.store.CountTasksCreatedBetween(ctx, userID, from, to)
	if err != nil {
		return 0, fmt.Errorf("count tasks: %w", err)
	}
	return n, nil
}

// UpdateTask renames a task. It returns nil when another task of the same user
// created on the same local day already carries newName.
func (l *Ledger) UpdateTask(ctx context.Context, taskID int64, newName string) (*domain.Task, error) {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return nil, ErrEmptyTaskName
	}
	current, err := l.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	dayStart, dayEnd := l.clock.LocalDayRange(current.CreatedAt)
	task, renamed, err := l.store.RenameTask(ctx, taskID, newName, dayStart, dayEnd)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("rename task: %w", err)
	}
	if !renamed {
		return nil, nil
	}
	return &task, nil
}

// TodayReport returns today's tasks, each with all of its sessions.
func (l *Ledger) TodayReport(ctx context.Context, userID int64) ([]domain.TaskReport, error) {
	tasks, err := l.TodayTasks(ctx, userID)
	if err != nil || len(tasks) == 0 {
		return nil, err
	}
	ids := make([]int64, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	sessions, err := l.store.SessionsForTasks(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	byTask := make(map[int64][]domain.Session, len(tasks))
	for _, s := range sessions {
		byTask[s.TaskID] = append(byTask[s.TaskID], s)
	}
	out := make([]domain.TaskReport, len(tasks))
	for i, t := range tasks {
		out[i] = domain.TaskReport{Task: t, Sessions: byTask[t.ID]}
	}
	return out, nil
}

// ForceCloseAllActiveSessions closes every open session. A session closed
// concurrently by its owner is skipped. Failures on single sessions do not stop
// the sweep; they are joined into the returned error.
func (l *Ledger) ForceCloseAllActiveSessions(ctx context.Context) ([]domain.ClosedSession, error) {
	open, err := l.store.OpenSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list open sessions: %w", err)
	}
	var (
		out  []domain.ClosedSession
		errs []error
	)
	for _, s := range open {
		closed, err := l.close(ctx, s.TaskSession)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if closed == nil {
			continue
		}
		out = append(out, domain.ClosedSession{
			SessionID:  closed.ID,
			TaskID:     closed.TaskID,
			TaskName:   closed.TaskName,
			UserID:     closed.UserID,
			TelegramID: s.TelegramID,
			Duration:   *closed.Duration,
		})
	}
	logger.LogEvent(ctx, logger.SVCLedger, slog.LevelInfo, "session.force_closed",
		slog.Int("open", len(open)),
		slog.Int("closed", len(out)),
		slog.Int("failed", len(errs)),
	)
	return out, errors.Join(errs...)
}
