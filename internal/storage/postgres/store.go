// Package postgres is the production ledger.Store backed by sqlx and lib/pq.
//
// Operations that check and then write take a row lock on the owning user, so
// two updates for the same user never interleave. The partial unique index on
// open sessions backs the one-open-session rule at the schema level.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/m3rciful/taskly/core/logger"
	"github.com/m3rciful/taskly/internal/domain"
	"github.com/m3rciful/taskly/internal/ledger"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// Store implements ledger.Store on a Postgres database.
type Store struct {
	db *sqlx.DB
}

var _ ledger.Store = (*Store)(nil)

// New wraps an open connection pool.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func pqCode(err error) pq.ErrorCode {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code
	}
	return ""
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.ErrNotFound
	}
	return err
}

// inTx runs fn in a transaction and commits when fn returns nil.
func (s *Store) inTx(ctx context.Context, op string, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			logger.LogEvent(ctx, logger.DB, slog.LevelWarn, "db.rollback.failed",
				slog.String("op", op),
				slog.String("err", rbErr.Error()),
			)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}
	return nil
}

func lockUser(ctx context.Context, tx *sqlx.Tx, userID int64) error {
	var id int64
	err := tx.GetContext(ctx, &id, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, userID)
	return notFound(err)
}

type upsertedUser struct {
	domain.User
	Inserted bool `db:"inserted"`
}

func (s *Store) UpsertUser(ctx context.Context, u domain.User, defaults domain.Settings) (domain.User, bool, error) {
	var row upsertedUser
	err := s.inTx(ctx, "upsert user", func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &row, `
			INSERT INTO users (telegram_id, username, first_name, created_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (telegram_id) DO UPDATE
				SET username = EXCLUDED.username, first_name = EXCLUDED.first_name
			RETURNING id, telegram_id, username, first_name, created_at, (xmax = 0) AS inserted`,
			u.TelegramID, u.Username, u.FirstName, u.CreatedAt); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO user_settings (user_id, reminder, focus_alerts, language)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (user_id) DO NOTHING`,
			row.ID, defaults.Reminder, defaults.FocusAlerts, string(defaults.Language))
		return err
	})
	if err != nil {
		return domain.User{}, false, err
	}
	return row.User, row.Inserted, nil
}

func (s *Store) UserByTelegramID(ctx context.Context, telegramID int64) (domain.User, error) {
	var u domain.User
	err := s.db.GetContext(ctx, &u,
		`SELECT id, telegram_id, username, first_name, created_at FROM users WHERE telegram_id = $1`, telegramID)
	return u, notFound(err)
}

func (s *Store) Settings(ctx context.Context, userID int64) (domain.Settings, error) {
	var st domain.Settings
	err := s.db.GetContext(ctx, &st,
		`SELECT reminder, focus_alerts, language FROM user_settings WHERE user_id = $1`, userID)
	return st, notFound(err)
}

func (s *Store) SaveSettings(ctx context.Context, userID int64, st domain.Settings) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_settings (user_id, reminder, focus_alerts, language, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (user_id) DO UPDATE
			SET reminder = EXCLUDED.reminder,
			    focus_alerts = EXCLUDED.focus_alerts,
			    language = EXCLUDED.language,
			    updated_at = now()`,
		userID, st.Reminder, st.FocusAlerts, string(st.Language))
	if pqCode(err) == codeForeignKeyViolation {
		return ledger.ErrNotFound
	}
	return err
}

func (s *Store) Users(ctx context.Context, f ledger.UserFilter) ([]domain.User, error) {
	var out []domain.User
	err := s.db.SelectContext(ctx, &out, `
		SELECT u.id, u.telegram_id, u.username, u.first_name, u.created_at
		FROM users u
		LEFT JOIN user_settings st ON st.user_id = u.id
		WHERE (NOT $1 OR COALESCE(st.reminder, TRUE))
		  AND (NOT $2 OR COALESCE(st.focus_alerts, FALSE))
		ORDER BY u.id`,
		f.Reminder, f.FocusAlerts)
	return out, err
}

const taskColumns = `id, user_id, name, created_at`

func (s *Store) CreateTaskIfAbsent(ctx context.Context, userID int64, name string, createdAt, dayStart, dayEnd time.Time) (domain.Task, bool, error) {
	var (
		task    domain.Task
		created bool
	)
	err := s.inTx(ctx, "create task", func(tx *sqlx.Tx) error {
		if err := lockUser(ctx, tx, userID); err != nil {
			return err
		}
		err := tx.GetContext(ctx, &task, `
			SELECT `+taskColumns+` FROM tasks
			WHERE user_id = $1 AND name = $2 AND created_at BETWEEN $3 AND $4
			ORDER BY created_at, id
			LIMIT 1`,
			userID, name, dayStart, dayEnd)
		if err == nil {
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		created = true
		return tx.GetContext(ctx, &task, `
			INSERT INTO tasks (user_id, name, created_at) VALUES ($1, $2, $3)
			RETURNING `+taskColumns,
			userID, name, createdAt)
	})
	if err != nil {
		return domain.Task{}, false, err
	}
	return task, created, nil
}

func (s *Store) TaskByID(ctx context.Context, taskID int64) (domain.Task, error) {
	var t domain.Task
	err := s.db.GetContext(ctx, &t, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, taskID)
	return t, notFound(err)
}

func (s *Store) TasksCreatedBetween(ctx context.Context, userID int64, from, to time.Time) ([]domain.Task, error) {
	var out []domain.Task
	err := s.db.SelectContext(ctx, &out, `
		SELECT `+taskColumns+` FROM tasks
		WHERE user_id = $1 AND created_at BETWEEN $2 AND $3
		ORDER BY created_at, id`,
		userID, from, to)
	return out, err
}

func (s *Store) CountTasksCreatedBetween(ctx context.Context, userID int64, from, to time.Time) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		`SELECT count(*) FROM tasks WHERE user_id = $1 AND created_at BETWEEN $2 AND $3`,
		userID, from, to)
	return n, err
}

func (s *Store) RenameTask(ctx context.Context, taskID int64, newName string, dayStart, dayEnd time.Time) (domain.Task, bool, error) {
	var t domain.Task
	err := s.db.GetContext(ctx, &t, `
		UPDATE tasks t SET name = $2
		WHERE t.id = $1 AND NOT EXISTS (
			SELECT 1 FROM tasks o
			WHERE o.user_id = t.user_id AND o.id <> t.id AND o.name = $2
			  AND o.created_at BETWEEN $3 AND $4)
		RETURNING t.id, t.user_id, t.name, t.created_at`,
		taskID, newName, dayStart, dayEnd)
	if err == nil {
		return t, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Task{}, false, err
	}
	cur, err := s.TaskByID(ctx, taskID)
	if err != nil {
		return domain.Task{}, false, err
	}
	return cur, false, nil
}

func (s *Store) DeleteTaskIfIdle(ctx context.Context, taskID, userID int64) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM tasks t
		WHERE t.id = $1 AND t.user_id = $2 AND NOT EXISTS (
			SELECT 1 FROM task_sessions s WHERE s.task_id = t.id AND s.end_time IS NULL)`,
		taskID, userID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil || n > 0 {
		return err
	}
	var exists bool
	if err := s.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM tasks WHERE id = $1 AND user_id = $2)`, taskID, userID); err != nil {
		return err
	}
	if exists {
		return ledger.ErrTaskActive
	}
	return ledger.ErrNotFound
}

const sessionColumns = `s.id, s.task_id, s.user_id, s.start_time, s.end_time, s.duration`

func (s *Store) SessionsForTasks(ctx context.Context, taskIDs []int64) ([]domain.Session, error) {
	if len(taskIDs) == 0 {
		return nil, nil
	}
	var out []domain.Session
	err := s.db.SelectContext(ctx, &out, `
		SELECT `+sessionColumns+` FROM task_sessions s
		WHERE s.task_id = ANY($1)
		ORDER BY s.start_time, s.id`,
		pq.Array(taskIDs))
	return out, err
}

const activeQuery = `
	SELECT ` + sessionColumns + `, t.name AS task_name
	FROM task_sessions s
	JOIN tasks t ON t.id = s.task_id
	WHERE s.user_id = $1 AND s.end_time IS NULL
	ORDER BY s.start_time DESC
	LIMIT 1`

func activeSession(ctx context.Context, q sqlx.QueryerContext, userID int64) (*domain.TaskSession, error) {
	var ts domain.TaskSession
	err := sqlx.GetContext(ctx, q, &ts, activeQuery, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ts, nil
}

func (s *Store) ActiveSession(ctx context.Context, userID int64) (*domain.TaskSession, error) {
	return activeSession(ctx, s.db, userID)
}

func (s *Store) OpenSession(ctx context.Context, userID, taskID int64, start time.Time) (domain.TaskSession, bool, error) {
	var (
		out     domain.TaskSession
		created bool
	)
	err := s.inTx(ctx, "open session", func(tx *sqlx.Tx) error {
		if err := lockUser(ctx, tx, userID); err != nil {
			return err
		}
		cur, err := activeSession(ctx, tx, userID)
		if err != nil {
			return err
		}
		if cur != nil {
			out = *cur
			return nil
		}
		if err := tx.GetContext(ctx, &out.TaskName,
			`SELECT name FROM tasks WHERE id = $1 AND user_id = $2`, taskID, userID); err != nil {
			return notFound(err)
		}
		if err := tx.GetContext(ctx, &out.Session, `
			INSERT INTO task_sessions AS s (task_id, user_id, start_time) VALUES ($1, $2, $3)
			RETURNING `+sessionColumns,
			taskID, userID, start); err != nil {
			return err
		}
		created = true
		return nil
	})
	if pqCode(err) == codeUniqueViolation {
		cur, getErr := activeSession(ctx, s.db, userID)
		if getErr != nil || cur == nil {
			return domain.TaskSession{}, false, err
		}
		return *cur, false, nil
	}
	if err != nil {
		return domain.TaskSession{}, false, err
	}
	return out, created, nil
}

func (s *Store) CloseSession(ctx context.Context, sessionID int64, end time.Time, duration int) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE task_sessions SET end_time = $2, duration = $3 WHERE id = $1 AND end_time IS NULL`,
		sessionID, end, duration)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *Store) OpenSessions(ctx context.Context) ([]domain.OpenSession, error) {
	var out []domain.OpenSession
	err := s.db.SelectContext(ctx, &out, `
		SELECT `+sessionColumns+`, t.name AS task_name, u.telegram_id
		FROM task_sessions s
		JOIN tasks t ON t.id = s.task_id
		JOIN users u ON u.id = s.user_id
		WHERE s.end_time IS NULL
		ORDER BY s.id`)
	return out, err
}
