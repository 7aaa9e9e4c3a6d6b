package middleware

import (
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/taskly/core/logger"
	tghelpers "github.com/m3rciful/taskly/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// RateLimitOptions configures behaviour of the rate limit middleware.
type RateLimitOptions struct {
	Interval  time.Duration
	Exclude   map[string]struct{}
	OnLimited tele.HandlerFunc
	// Now overrides the clock in tests.
	Now func() time.Time
}

// updateKind names an update the way rate_limit.exclude_updates does.
func updateKind(upd tele.Update) string {
	switch {
	case upd.Callback != nil:
		return "callback"
	case upd.Message != nil:
		return "message"
	}
	return "other"
}

// RateLimitMiddleware enforces a minimum interval between updates from one user.
func RateLimitMiddleware(opts RateLimitOptions) tele.MiddlewareFunc {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	var (
		mu       sync.Mutex
		lastSeen = make(map[int64]time.Time)
		lastGC   time.Time
	)
	allow := func(userID int64) bool {
		mu.Lock()
		defer mu.Unlock()
		t := now()
		if t.Sub(lastGC) > time.Minute {
			for id, seen := range lastSeen {
				if t.Sub(seen) > opts.Interval {
					delete(lastSeen, id)
				}
			}
			lastGC = t
		}
		if last, ok := lastSeen[userID]; ok && t.Sub(last) < opts.Interval {
			return false
		}
		lastSeen[userID] = t
		return true
	}

	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user == nil || opts.Interval <= 0 {
				return next(c)
			}
			kind := updateKind(c.Update())
			if _, skip := opts.Exclude[kind]; skip {
				return next(c)
			}
			if allow(user.ID) {
				return next(c)
			}

			logger.LogEvent(tghelpers.BuildContext(c), logger.TG, slog.LevelWarn, "tg.rate_limit",
				slog.String("status", "skip"),
				slog.String("kind", kind),
			)
			if opts.OnLimited != nil {
				_ = opts.OnLimited(c)
			}
			return nil
		}
	}
}
