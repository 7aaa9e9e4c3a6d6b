package middleware

import (
	tghelpers "github.com/m3rciful/taskly/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// MessageMetricsMiddleware binds per-update send counters to the update context.
// The delivery gateway increments them; handler summaries read them back.
func MessageMetricsMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := tghelpers.BuildContext(c)
		if tghelpers.CountersFrom(ctx) == nil {
			ctx, _ = tghelpers.WithCounters(ctx)
			tghelpers.StoreContext(c, ctx)
		}
		return next(c)
	}
}

// GetCounters reads message count and keyboard presence for the current update.
func GetCounters(c tele.Context) (int, bool) {
	ctx, ok := tghelpers.ContextFrom(c)
	if !ok {
		return 0, false
	}
	return tghelpers.CountersFrom(ctx).Snapshot()
}
