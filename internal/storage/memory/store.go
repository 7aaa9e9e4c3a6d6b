// Package memory is an in-process ledger.Store. One mutex guards everything,
// so every primitive is atomic.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/m3rciful/taskly/internal/domain"
	"github.com/m3rciful/taskly/internal/ledger"
)

// Store keeps users, settings, tasks and sessions in maps.
type Store struct {
	mu       sync.Mutex
	nextID   int64
	users    map[int64]*domain.User
	byTG     map[int64]int64
	settings map[int64]domain.Settings
	tasks    map[int64]*domain.Task
	sessions map[int64]*domain.Session
}

var _ ledger.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		users:    make(map[int64]*domain.User),
		byTG:     make(map[int64]int64),
		settings: make(map[int64]domain.Settings),
		tasks:    make(map[int64]*domain.Task),
		sessions: make(map[int64]*domain.Session),
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func within(t, from, to time.Time) bool {
	return !t.Before(from) && !t.After(to)
}

func (s *Store) UpsertUser(_ context.Context, u domain.User, defaults domain.Settings) (domain.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byTG[u.TelegramID]; ok {
		cur := s.users[id]
		cur.Username = u.Username
		cur.FirstName = u.FirstName
		return *cur, false, nil
	}
	u.ID = s.id()
	s.users[u.ID] = &u
	s.byTG[u.TelegramID] = u.ID
	s.settings[u.ID] = defaults
	return u, true, nil
}

func (s *Store) UserByTelegramID(_ context.Context, telegramID int64) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byTG[telegramID]
	if !ok {
		return domain.User{}, ledger.ErrNotFound
	}
	return *s.users[id], nil
}

func (s *Store) Settings(_ context.Context, userID int64) (domain.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.settings[userID]
	if !ok {
		return domain.Settings{}, ledger.ErrNotFound
	}
	return st, nil
}

func (s *Store) SaveSettings(_ context.Context, userID int64, st domain.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return ledger.ErrNotFound
	}
	s.settings[userID] = st
	return nil
}

func (s *Store) Users(_ context.Context, f ledger.UserFilter) ([]domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.User
	for id, u := range s.users {
		st, ok := s.settings[id]
		if !ok {
			st = domain.DefaultSettings()
		}
		if f.Reminder && !st.Reminder || f.FocusAlerts && !st.FocusAlerts {
			continue
		}
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CreateTaskIfAbsent(_ context.Context, userID int64, name string, createdAt, dayStart, dayEnd time.Time) (domain.Task, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return domain.Task{}, false, ledger.ErrNotFound
	}
	for _, t := range s.tasks {
		if t.UserID == userID && t.Name == name && within(t.CreatedAt, dayStart, dayEnd) {
			return *t, false, nil
		}
	}
	t := &domain.Task{ID: s.id(), UserID: userID, Name: name, CreatedAt: createdAt}
	s.tasks[t.ID] = t
	return *t, true, nil
}

func (s *Store) TaskByID(_ context.Context, taskID int64) (domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return domain.Task{}, ledger.ErrNotFound
	}
	return *t, nil
}

func (s *Store) tasksBetween(userID int64, from, to time.Time) []domain.Task {
	var out []domain.Task
	for _, t := range s.tasks {
		if t.UserID == userID && within(t.CreatedAt, from, to) {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *Store) TasksCreatedBetween(_ context.Context, userID int64, from, to time.Time) ([]domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasksBetween(userID, from, to), nil
}

func (s *Store) CountTasksCreatedBetween(_ context.Context, userID int64, from, to time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasksBetween(userID, from, to)), nil
}

func (s *Store) RenameTask(_ context.Context, taskID int64, newName string, dayStart, dayEnd time.Time) (domain.Task, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return domain.Task{}, false, ledger.ErrNotFound
	}
	for _, other := range s.tasks {
		if other.ID != t.ID && other.UserID == t.UserID && other.Name == newName && within(other.CreatedAt, dayStart, dayEnd) {
			return *t, false, nil
		}
	}
	t.Name = newName
	return *t, true, nil
}

func (s *Store) DeleteTaskIfIdle(_ context.Context, taskID, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok || t.UserID != userID {
		return ledger.ErrNotFound
	}
	for _, sess := range s.sessions {
		if sess.TaskID == taskID && sess.Open() {
			return ledger.ErrTaskActive
		}
	}
	for id, sess := range s.sessions {
		if sess.TaskID == taskID {
			delete(s.sessions, id)
		}
	}
	delete(s.tasks, taskID)
	return nil
}

func (s *Store) SessionsForTasks(_ context.Context, taskIDs []int64) ([]domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[int64]struct{}, len(taskIDs))
	for _, id := range taskIDs {
		want[id] = struct{}{}
	}
	var out []domain.Session
	for _, sess := range s.sessions {
		if _, ok := want[sess.TaskID]; ok {
			out = append(out, copySession(sess))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out, nil
}

func copySession(in *domain.Session) domain.Session {
	out := *in
	if in.EndTime != nil {
		end := *in.EndTime
		out.EndTime = &end
	}
	if in.Duration != nil {
		d := *in.Duration
		out.Duration = &d
	}
	return out
}

func (s *Store) active(userID int64) *domain.TaskSession {
	var best *domain.Session
	for _, sess := range s.sessions {
		if sess.UserID != userID || !sess.Open() {
			continue
		}
		if best == nil || sess.StartTime.After(best.StartTime) {
			best = sess
		}
	}
	if best == nil {
		return nil
	}
	out := &domain.TaskSession{Session: copySession(best)}
	if t, ok := s.tasks[best.TaskID]; ok {
		out.TaskName = t.Name
	}
	return out
}

func (s *Store) ActiveSession(_ context.Context, userID int64) (*domain.TaskSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active(userID), nil
}

func (s *Store) OpenSession(_ context.Context, userID, taskID int64, start time.Time) (domain.TaskSession, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur := s.active(userID); cur != nil {
		return *cur, false, nil
	}
	t, ok := s.tasks[taskID]
	if !ok || t.UserID != userID {
		return domain.TaskSession{}, false, ledger.ErrNotFound
	}
	sess := &domain.Session{ID: s.id(), TaskID: taskID, UserID: userID, StartTime: start}
	s.sessions[sess.ID] = sess
	return domain.TaskSession{Session: copySession(sess), TaskName: t.Name}, true, nil
}

func (s *Store) CloseSession(_ context.Context, sessionID int64, end time.Time, duration int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok || !sess.Open() {
		return false, nil
	}
	sess.EndTime = &end
	sess.Duration = &duration
	return true, nil
}

func (s *Store) OpenSessions(_ context.Context) ([]domain.OpenSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.OpenSession
	for _, sess := range s.sessions {
		if !sess.Open() {
			continue
		}
		o := domain.OpenSession{TaskSession: domain.TaskSession{Session: copySession(sess)}}
		if t, ok := s.tasks[sess.TaskID]; ok {
			o.TaskName = t.Name
		}
		if u, ok := s.users[sess.UserID]; ok {
			o.TelegramID = u.TelegramID
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
