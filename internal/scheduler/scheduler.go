// Package scheduler fires reports, reminders, the nightly forced close and
// time-block notifications at local wall-clock times.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/m3rciful/taskly/core/logger"
)

// Job is one named recurring action.
type Job struct {
	Name     string
	Schedule *Schedule
	Run      func(ctx context.Context) error
}

// JobInfo describes a job for listings.
type JobInfo struct {
	Name     string
	Schedule string
	Next     time.Time
}

// Scheduler runs each job in its own loop until stopped.
type Scheduler struct {
	jobs []Job
	now  func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	group   *errgroup.Group
	running bool
}

// NewScheduler wraps prepared jobs. now defaults to time.Now.
func NewScheduler(now func() time.Time, jobs ...Job) *Scheduler {
	if now == nil {
		now = time.Now
	}
	return &Scheduler{jobs: jobs, now: now}
}

var errAlreadyRunning = errors.New("scheduler: already running")

// Start launches the job loops. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	for _, job := range s.jobs {
		job := job
		g.Go(func() error {
			return s.loop(gctx, job)
		})
	}
	s.cancel, s.group, s.running = cancel, g, true
	logger.LogEvent(ctx, logger.Sched, slog.LevelInfo, "scheduler.started",
		slog.Int("jobs", len(s.jobs)),
	)
	return nil
}

// Stop cancels every loop and waits for running jobs to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	cancel, g := s.cancel, s.group
	s.running = false
	s.mu.Unlock()

	cancel()
	err := g.Wait()
	logger.LogEvent(logger.Background(), logger.Sched, slog.LevelInfo, "scheduler.stopped")
	return err
}

// Jobs lists every job with its next fire time, soonest first.
func (s *Scheduler) Jobs() []JobInfo {
	now := s.now()
	out := make([]JobInfo, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, JobInfo{Name: j.Name, Schedule: j.Schedule.String(), Next: j.Schedule.Next(now)})
	}
	sort.SliceStable(out, func(i, k int) bool { return out[i].Next.Before(out[k].Next) })
	return out
}

// RunNow executes the named job once, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	for _, j := range s.jobs {
		if j.Name == name {
			return s.execute(ctx, j)
		}
	}
	return fmt.Errorf("scheduler: unknown job %q", name)
}

func (s *Scheduler) loop(ctx context.Context, job Job) error {
	for {
		now := s.now()
		next := job.Schedule.Next(now)
		if next.IsZero() {
			logger.LogEvent(ctx, logger.Sched, slog.LevelWarn, "job.exhausted",
				slog.String("job", job.Name),
			)
			return nil
		}
		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		// A failed run is logged and the loop waits for the next occurrence.
		_ = s.execute(ctx, job)
	}
}

func (s *Scheduler) execute(ctx context.Context, job Job) (err error) {
	ctx = logger.WithJob(ctx, job.Name)
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name, r)
			logger.LogEvent(ctx, logger.Sched, slog.LevelError, "job.panic",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
		status := "ok"
		level := slog.LevelInfo
		attrs := []slog.Attr{slog.Duration("duration", logger.Took(start))}
		if err != nil {
			status, level = "fail", slog.LevelError
			attrs = append(attrs, slog.String("err", logger.Err(err)))
		}
		attrs = append([]slog.Attr{slog.String("status", status)}, attrs...)
		logger.LogEvent(ctx, logger.Sched, level, "job.run", attrs...)
	}()
	return job.Run(ctx)
}
