package router

import (
	"log/slog"
	"sort"
	"time"

	"github.com/m3rciful/taskly/core/logger"
	tg "github.com/m3rciful/taskly/core/telegram"
	"github.com/m3rciful/taskly/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// CommandRouteOptions configures how commands are wrapped and exposed.
type CommandRouteOptions struct {
	AdminID       int64
	OnAdminReject tele.HandlerFunc
}

// CommandRoutes prepares command handlers wrapped with shared middleware.
func CommandRoutes(reg *tg.Registry, opts CommandRouteOptions) []tg.Route {
	if reg == nil {
		return nil
	}

	adminOnly := middleware.AdminOnlyMiddleware(middleware.AdminOptions{
		AdminID:  opts.AdminID,
		OnReject: opts.OnAdminReject,
	})

	names := make([]string, 0, len(reg.Commands()))
	for name := range reg.Commands() {
		names = append(names, name)
	}
	sort.Strings(names)

	routes := make([]tg.Route, 0, len(names))
	for _, name := range names {
		def := reg.Commands()[name]
		handlerName := normalizeHandlerName(name)
		cmdHandler := def.Handler
		if def.AdminOnly {
			cmdHandler = adminOnly(cmdHandler)
		}
		h := func(c tele.Context) error {
			return handleWithSummary(c, handlerName, time.Now(), "", "", func() error {
				return cmdHandler(c)
			})
		}
		routes = append(routes, tg.Route{
			Endpoint: name,
			Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(h)),
		})
	}

	logger.TWire.Info("tg.wire",
		slog.String("event", "complete"),
		slog.Int("commands", len(names)),
		slog.Int("callbacks", len(reg.ListCallbacks())),
	)
	return routes
}
