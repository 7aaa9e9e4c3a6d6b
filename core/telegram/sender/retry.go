package sender

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/m3rciful/taskly/core/logger"
)

// Policy bounds the attempts made for one outbound call.
type Policy struct {
	Attempts int
	// Backoff is multiplied by the attempt number between tries.
	Backoff time.Duration
}

func (p Policy) normalized() Policy {
	if p.Attempts <= 0 {
		p.Attempts = 3
	}
	if p.Backoff < 0 {
		p.Backoff = 0
	}
	return p
}

type attemptResult struct {
	attempts int
	err      error
}

// do runs fn until it succeeds, fails permanently, or the policy is exhausted.
// Permanent failures are returned wrapped in ErrRecipientUnreachable.
func do(ctx context.Context, p Policy, action string, fn func() error) attemptResult {
	p = p.normalized()
	var lastErr error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attemptResult{attempts: attempt - 1, err: err}
		}
		lastErr = fn()
		if lastErr == nil {
			return attemptResult{attempts: attempt}
		}
		if IsPermanent(lastErr) {
			return attemptResult{attempts: attempt, err: fmt.Errorf("%w: %w", ErrRecipientUnreachable, lastErr)}
		}
		if !IsTransient(lastErr) || attempt == p.Attempts {
			return attemptResult{attempts: attempt, err: lastErr}
		}

		delay := p.Backoff * time.Duration(attempt)
		if wait := time.Duration(retryAfter(lastErr)) * time.Second; wait > delay {
			delay = wait
		}
		logger.Debug(ctx, "tg.sender", "send.retry.backoff",
			slog.String("action", action),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error_kind", classifyError(lastErr)),
		)
		if delay <= 0 {
			continue
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attemptResult{attempts: attempt, err: ctx.Err()}
		case <-timer.C:
		}
	}
	return attemptResult{attempts: p.Attempts, err: lastErr}
}
