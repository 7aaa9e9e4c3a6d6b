package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/taskly/internal/domain"
	"github.com/m3rciful/taskly/internal/ledger"
)

func TestUpsertUserConverges(t *testing.T) {
	ctx := context.Background()
	s := New()
	first, created, err := s.UpsertUser(ctx, domain.User{TelegramID: 10, FirstName: "a"}, domain.DefaultSettings())
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := s.UpsertUser(ctx, domain.User{TelegramID: 10, FirstName: "b"}, domain.DefaultSettings())
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "b", second.FirstName)

	st, err := s.Settings(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultSettings(), st)
}

func TestUsersFilter(t *testing.T) {
	ctx := context.Background()
	s := New()
	a, _, _ := s.UpsertUser(ctx, domain.User{TelegramID: 1}, domain.DefaultSettings())
	b, _, _ := s.UpsertUser(ctx, domain.User{TelegramID: 2}, domain.DefaultSettings())
	require.NoError(t, s.SaveSettings(ctx, b.ID, domain.Settings{FocusAlerts: true, Language: domain.LanguageSecondary}))

	reminders, err := s.Users(ctx, ledger.UserFilter{Reminder: true})
	require.NoError(t, err)
	require.Len(t, reminders, 1)
	assert.Equal(t, a.ID, reminders[0].ID)

	focus, err := s.Users(ctx, ledger.UserFilter{FocusAlerts: true})
	require.NoError(t, err)
	require.Len(t, focus, 1)
	assert.Equal(t, b.ID, focus[0].ID)

	assert.ErrorIs(t, s.SaveSettings(ctx, 999, domain.DefaultSettings()), ledger.ErrNotFound)
}

func TestOpenSessionKeepsExisting(t *testing.T) {
	ctx := context.Background()
	s := New()
	u, _, _ := s.UpsertUser(ctx, domain.User{TelegramID: 1}, domain.DefaultSettings())
	now := time.Date(2025, 1, 1, 6, 0, 0, 0, time.UTC)
	a, _, _ := s.CreateTaskIfAbsent(ctx, u.ID, "a", now, now.Add(-time.Hour), now.Add(time.Hour))
	b, _, _ := s.CreateTaskIfAbsent(ctx, u.ID, "b", now, now.Add(-time.Hour), now.Add(time.Hour))

	first, created, err := s.OpenSession(ctx, u.ID, a.ID, now)
	require.NoError(t, err)
	assert.True(t, created)
	again, created, err := s.OpenSession(ctx, u.ID, b.ID, now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, "a", again.TaskName)

	ok, err := s.CloseSession(ctx, first.ID, now.Add(time.Hour), 60)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.CloseSession(ctx, first.ID, now.Add(2*time.Hour), 120)
	require.NoError(t, err)
	assert.False(t, ok)

	sessions, err := s.SessionsForTasks(ctx, []int64{a.ID})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, 60, *sessions[0].Duration)
}

func TestDeleteTaskIfIdle(t *testing.T) {
	ctx := context.Background()
	s := New()
	u, _, _ := s.UpsertUser(ctx, domain.User{TelegramID: 1}, domain.DefaultSettings())
	other, _, _ := s.UpsertUser(ctx, domain.User{TelegramID: 2}, domain.DefaultSettings())
	now := time.Now().UTC()
	task, _, _ := s.CreateTaskIfAbsent(ctx, u.ID, "a", now, now, now)
	sess, _, err := s.OpenSession(ctx, u.ID, task.ID, now)
	require.NoError(t, err)

	assert.ErrorIs(t, s.DeleteTaskIfIdle(ctx, task.ID, other.ID), ledger.ErrNotFound)
	assert.ErrorIs(t, s.DeleteTaskIfIdle(ctx, task.ID, u.ID), ledger.ErrTaskActive)

	_, err = s.CloseSession(ctx, sess.ID, now, 0)
	require.NoError(t, err)
	require.NoError(t, s.DeleteTaskIfIdle(ctx, task.ID, u.ID))

	_, err = s.TaskByID(ctx, task.ID)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	left, err := s.SessionsForTasks(ctx, []int64{task.ID})
	require.NoError(t, err)
	assert.Empty(t, left)
}
