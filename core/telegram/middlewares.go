package telegram

import (
	"strings"
	"time"

	coreconfig "github.com/m3rciful/taskly/core/config"
	"github.com/m3rciful/taskly/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// DefaultMiddlewares builds the global chain. The logger runs first so the rid
// context exists before recover, metrics or the rate limiter need it.
func DefaultMiddlewares(cfg *coreconfig.Config, onLimited func(tele.Context) error) []Middleware {
	mws := []Middleware{
		{Name: "logger", Use: middleware.LoggerMiddleware},
		{Name: "recover", Use: middleware.RecoverMiddleware},
		{Name: "metrics", Use: middleware.MessageMetricsMiddleware},
	}
	if cfg == nil {
		return mws
	}

	interval := time.Duration(cfg.RateLimit.IntervalMS) * time.Millisecond
	if interval <= 0 {
		return mws
	}
	ex := make(map[string]struct{}, len(cfg.RateLimit.ExcludeUpdates))
	for _, t := range cfg.RateLimit.ExcludeUpdates {
		ex[strings.ToLower(t)] = struct{}{}
	}
	opts := middleware.RateLimitOptions{Interval: interval, Exclude: ex}
	if onLimited != nil {
		opts.OnLimited = onLimited
	}
	return append(mws, Middleware{Name: "rate_limit", Use: middleware.RateLimitMiddleware(opts)})
}
