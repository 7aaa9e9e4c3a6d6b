package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/taskly/core/logger"
	"github.com/m3rciful/taskly/internal/domain"
	"github.com/m3rciful/taskly/internal/i18n"
	"github.com/m3rciful/taskly/internal/ledger"
	"github.com/m3rciful/taskly/internal/report"
)

// Notifier delivers a message without an inbound update.
type Notifier interface {
	Notify(ctx context.Context, chatID int64, text string, opts ...interface{}) error
	// NotifySeq delivers texts to one chat in the given order.
	NotifySeq(ctx context.Context, chatID int64, texts ...string) error
	// Send returns once the message is delivered or has failed.
	Send(ctx context.Context, chatID int64, text string, opts ...interface{}) (*tele.Message, error)
}

// Refresher updates a chat whose selected task was closed by the forced close.
type Refresher interface {
	RefreshAfterForcedClose(ctx context.Context, closed domain.ClosedSession) error
}

// Deps are the collaborators the jobs act through.
type Deps struct {
	Ledger     *ledger.Ledger
	Translator *i18n.Translator
	Notifier   Notifier
	// Refresher is optional.
	Refresher Refresher
	// Fanout bounds concurrent per-user work inside one run. Default 8.
	Fanout int
}

const (
	JobDailyReport     = "daily_report"
	JobMorningReminder = "morning_reminder"
	JobForceClose      = "force_close"
	jobTimeBlockPrefix = "time_block"
)

// New builds the scheduler with every Taskly job. cfg must already carry defaults.
func New(cfg Config, blocks []TimeBlock, deps Deps) (*Scheduler, error) {
	if deps.Ledger == nil || deps.Translator == nil || deps.Notifier == nil {
		return nil, errors.New("scheduler: ledger, translator and notifier are required")
	}
	if deps.Fanout <= 0 {
		deps.Fanout = 8
	}
	clock := deps.Ledger.Clock()
	dayStart, _ := clock.Today()
	anchor := dayStart.In(clock.Location())
	r := &runner{deps: deps}

	var jobs []Job
	add := func(name string, rules []string, run func(context.Context) error) error {
		sched, err := ParseSchedule(anchor, rules...)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		jobs = append(jobs, Job{Name: name, Schedule: sched, Run: run})
		return nil
	}
	if err := add(JobDailyReport, cfg.DailyReport, r.dailyReport); err != nil {
		return nil, err
	}
	if err := add(JobMorningReminder, cfg.MorningReminder, r.morningReminder); err != nil {
		return nil, err
	}
	if err := add(JobForceClose, cfg.ForceClose, r.forceClose); err != nil {
		return nil, err
	}
	for _, b := range blocks {
		h, m, s, err := ParseClock(b.StartTime)
		if err != nil {
			return nil, err
		}
		name := fmt.Sprintf("%s.%s.%02d%02d%02d", jobTimeBlockPrefix, strings.ToLower(string(b.Type)), h, m, s)
		if err := add(name, []string{Weekly(cfg.TimeBlockDays, h, m, s)}, r.timeBlock(b)); err != nil {
			return nil, err
		}
	}
	return NewScheduler(clock.NowUTC, jobs...), nil
}

type runner struct {
	deps Deps
}

// eachUser runs fn for every user with bounded concurrency. Failures are
// logged per user and never stop the batch.
func (r *runner) eachUser(ctx context.Context, users []domain.User, fn func(ctx context.Context, u domain.User) error) {
	var (
		g      errgroup.Group
		failed atomic.Int64
	)
	g.SetLimit(r.deps.Fanout)
	for _, u := range users {
		u := u
		g.Go(func() error {
			uctx := logger.WithChat(ctx, u.TelegramID)
			if err := fn(uctx, u); err != nil {
				failed.Add(1)
				logger.LogEvent(uctx, logger.Sched, slog.LevelWarn, "job.user.failed",
					slog.Int64("owner_id", u.ID),
					slog.String("err", logger.Err(err)),
				)
			}
			return nil
		})
	}
	_ = g.Wait()
	logger.LogEvent(ctx, logger.Sched, slog.LevelInfo, "job.broadcast",
		slog.Int("users", len(users)),
		slog.Int64("failed", failed.Load()),
	)
}

func (r *runner) dailyReport(ctx context.Context) error {
	users, err := r.deps.Ledger.UsersWithReminders(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	clock := r.deps.Ledger.Clock()
	r.eachUser(ctx, users, func(ctx context.Context, u domain.User) error {
		tasks, err := r.deps.Ledger.TodayReport(ctx, u.ID)
		if err != nil {
			return err
		}
		p := r.deps.Translator.For(ctx, u.ID)
		text := report.Render(p, clock, tasks, report.Options{Automatic: true})
		return r.deps.Notifier.NotifySeq(ctx, u.TelegramID, text, p.T("reminders.dailyFollowUp"))
	})
	return nil
}

func (r *runner) morningReminder(ctx context.Context) error {
	users, err := r.deps.Ledger.UsersWithReminders(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	r.eachUser(ctx, users, func(ctx context.Context, u domain.User) error {
		p := r.deps.Translator.For(ctx, u.ID)
		return r.deps.Notifier.Notify(ctx, u.TelegramID, p.T("reminders.morning"))
	})
	return nil
}

func (r *runner) forceClose(ctx context.Context) error {
	closed, closeErr := r.deps.Ledger.ForceCloseAllActiveSessions(ctx)
	var g errgroup.Group
	g.SetLimit(r.deps.Fanout)
	for _, c := range closed {
		c := c
		g.Go(func() error {
			r.announceForcedClose(logger.WithChat(ctx, c.TelegramID), c)
			return nil
		})
	}
	_ = g.Wait()
	return closeErr
}

// announceForcedClose delivers the notice, then refreshes the chat's menu.
func (r *runner) announceForcedClose(ctx context.Context, c domain.ClosedSession) {
	p := r.deps.Translator.For(ctx, c.UserID)
	if _, err := r.deps.Notifier.Send(ctx, c.TelegramID, p.T("notifications.autoClosed", i18n.Params{"name": c.TaskName})); err != nil {
		logger.LogEvent(ctx, logger.Sched, slog.LevelWarn, "force_close.notify.failed",
			slog.Int64("session_id", c.SessionID),
			slog.String("err", logger.Err(err)),
		)
	}
	if r.deps.Refresher == nil {
		return
	}
	if err := r.deps.Refresher.RefreshAfterForcedClose(ctx, c); err != nil {
		logger.LogEvent(ctx, logger.Sched, slog.LevelWarn, "force_close.refresh.failed",
			slog.Int64("task_id", c.TaskID),
			slog.String("err", logger.Err(err)),
		)
	}
}

func (r *runner) timeBlock(b TimeBlock) func(context.Context) error {
	key := b.MessageKey()
	return func(ctx context.Context) error {
		users, err := r.deps.Ledger.UsersWithFocusAlerts(ctx)
		if err != nil {
			return fmt.Errorf("list users: %w", err)
		}
		r.eachUser(ctx, users, func(ctx context.Context, u domain.User) error {
			p := r.deps.Translator.For(ctx, u.ID)
			return r.deps.Notifier.Notify(ctx, u.TelegramID, p.T(key))
		})
		return nil
	}
}
