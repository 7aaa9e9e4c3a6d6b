package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/m3rciful/taskly/core/logger"
	"github.com/m3rciful/taskly/internal/domain"
)

// EnsureUser creates or refreshes the user identified by telegramID.
func (l *Ledger) EnsureUser(ctx context.Context, telegramID int64, username, firstName string) (domain.User, error) {
	u, created, err := l.store.UpsertUser(ctx, domain.User{
		TelegramID: telegramID,
		Username:   username,
		FirstName:  firstName,
		CreatedAt:  l.clock.NowUTC(),
	}, domain.DefaultSettings())
	if err != nil {
		return domain.User{}, fmt.Errorf("upsert user: %w", err)
	}
	if created {
		logger.LogEvent(ctx, logger.SVCUsers, slog.LevelInfo, "user.created",
			slog.Int64("owner_id", u.ID),
		)
	}
	return u, nil
}

// UserByTelegramID resolves a Telegram account. It returns ErrNotFound for unknown accounts.
func (l *Ledger) UserByTelegramID(ctx context.Context, telegramID int64) (domain.User, error) {
	u, err := l.store.UserByTelegramID(ctx, telegramID)
	if err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// GetUserSettings returns the user's settings, or the defaults when none are stored.
func (l *Ledger) GetUserSettings(ctx context.Context, userID int64) (domain.Settings, error) {
	s, err := l.store.Settings(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return domain.DefaultSettings(), nil
	}
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	return s, nil
}

// UpdateUserSettings merges patch into the stored settings, creating the row if absent.
func (l *Ledger) UpdateUserSettings(ctx context.Context, userID int64, patch domain.SettingsPatch) (domain.Settings, error) {
	if patch.Language != nil && !patch.Language.Valid() {
		return domain.Settings{}, fmt.Errorf("unsupported language %q", *patch.Language)
	}
	current, err := l.GetUserSettings(ctx, userID)
	if err != nil {
		return domain.Settings{}, err
	}
	next := patch.Apply(current)
	if err := l.store.SaveSettings(ctx, userID, next); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}
	logger.LogEvent(ctx, logger.SVCUsers, slog.LevelInfo, "settings.updated",
		slog.Int64("owner_id", userID),
		slog.Bool("reminder", next.Reminder),
		slog.Bool("focus_alerts", next.FocusAlerts),
		slog.String("language", string(next.Language)),
	)
	return next, nil
}

// UsersWithReminders lists users that opted into reports and reminders.
func (l *Ledger) UsersWithReminders(ctx context.Context) ([]domain.User, error) {
	return l.store.Users(ctx, UserFilter{Reminder: true})
}

// UsersWithFocusAlerts lists users that opted into time-block notifications.
func (l *Ledger) UsersWithFocusAlerts(ctx context.Context) ([]domain.User, error) {
	return l.store.Users(ctx, UserFilter{FocusAlerts: true})
}
