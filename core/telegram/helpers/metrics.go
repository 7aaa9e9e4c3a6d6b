package helpers

import (
	"context"
	"sync/atomic"

	tele "gopkg.in/telebot.v4"
)

// Counters tracks outbound messages produced while handling one update.
type Counters struct {
	messages atomic.Int32
	keyboard atomic.Bool
}

type countersKey struct{}

// WithCounters attaches fresh counters to ctx.
func WithCounters(ctx context.Context) (context.Context, *Counters) {
	c := &Counters{}
	return context.WithValue(ctx, countersKey{}, c), c
}

// CountersFrom returns the counters bound to ctx, or nil.
func CountersFrom(ctx context.Context) *Counters {
	if ctx == nil {
		return nil
	}
	c, _ := ctx.Value(countersKey{}).(*Counters)
	return c
}

// RecordSend bumps the counters in ctx after a successful send.
func RecordSend(ctx context.Context, opts []interface{}) {
	c := CountersFrom(ctx)
	if c == nil {
		return
	}
	c.messages.Add(1)
	if HasKeyboard(opts) {
		c.keyboard.Store(true)
	}
}

// Snapshot returns the message count and whether any message carried a keyboard.
func (c *Counters) Snapshot() (int, bool) {
	if c == nil {
		return 0, false
	}
	return int(c.messages.Load()), c.keyboard.Load()
}

// HasKeyboard reports whether send options carry reply markup.
func HasKeyboard(opts []interface{}) bool {
	for _, o := range opts {
		switch v := o.(type) {
		case *tele.SendOptions:
			if v != nil && v.ReplyMarkup != nil {
				return true
			}
		case *tele.ReplyMarkup:
			if v != nil {
				return true
			}
		}
	}
	return false
}
