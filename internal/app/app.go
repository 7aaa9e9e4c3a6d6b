// Package app assembles Taskly from its parts and hands the result to the
// Telegram runtime.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/taskly/core/bootstrap"
	"github.com/m3rciful/taskly/core/logger"
	coretelegram "github.com/m3rciful/taskly/core/telegram"
	"github.com/m3rciful/taskly/core/telegram/commands"
	"github.com/m3rciful/taskly/core/telegram/helpers"
	"github.com/m3rciful/taskly/core/telegram/keyboard"
	"github.com/m3rciful/taskly/core/telegram/router"
	"github.com/m3rciful/taskly/core/telegram/sender"
	"github.com/m3rciful/taskly/core/telegram/state"
	"github.com/m3rciful/taskly/internal/conversation"
	"github.com/m3rciful/taskly/internal/i18n"
	"github.com/m3rciful/taskly/internal/ledger"
	"github.com/m3rciful/taskly/internal/localtime"
	"github.com/m3rciful/taskly/internal/scheduler"
	"github.com/m3rciful/taskly/internal/storage/memory"
	"github.com/m3rciful/taskly/internal/storage/postgres"

	tele "gopkg.in/telebot.v4"
)

// App owns every long-lived Taskly component.
type App struct {
	cfg        *Config
	infra      *bootstrap.Result
	ledger     *ledger.Ledger
	dispatcher *sender.Dispatcher
	gateway    *sender.Gateway
	machine    *conversation.Machine
	scheduler  *scheduler.Scheduler
	registry   *coretelegram.Registry

	stopOnce     sync.Once
	stopEviction context.CancelFunc
	evictionDone chan struct{}
}

// New initializes logging and storage and wires the bot.
func New(cfg *Config) (*App, error) {
	return build(cfg, bootstrap.Options{})
}

func build(cfg *Config, opts bootstrap.Options) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	opts.Config = cfg.CoreConfig()
	opts.Database = cfg.Database
	opts.SkipDatabase = cfg.Storage == StorageMemory
	infra, err := bootstrap.Run(opts)
	if err != nil {
		return nil, err
	}

	var store ledger.Store
	if cfg.Storage == StorageMemory {
		store = memory.New()
	} else {
		store = postgres.New(infra.DB)
	}
	led := ledger.New(store, localtime.New(cfg.Location()))
	tr := i18n.NewTranslator(i18n.MustLoad(), led)

	dispatcher := sender.NewDispatcher(sender.Options{
		QueueSize: cfg.Delivery.QueueSize,
		Workers:   cfg.Delivery.Workers,
	})
	gateway := sender.NewGateway(sender.Policy{
		Attempts: cfg.Delivery.Attempts,
		Backoff:  time.Duration(cfg.Delivery.BackoffMS) * time.Millisecond,
	}, dispatcher)

	machine := conversation.New(conversation.Options{
		Ledger:       led,
		Translator:   tr,
		Outbox:       gateway,
		WorkingHours: cfg.WorkingHours,
		State:        state.Options{TTL: time.Duration(cfg.State.TTLMinutes) * time.Minute},
	})
	sched, err := scheduler.New(cfg.Schedule, cfg.TimeBlocks, scheduler.Deps{
		Ledger:     led,
		Translator: tr,
		Notifier:   gateway,
		Refresher:  machine,
	})
	if err != nil {
		dispatcher.Close()
		_ = infra.Close()
		return nil, fmt.Errorf("app: %w", err)
	}
	machine.SetJobs(sched)

	a := &App{
		cfg:        cfg,
		infra:      infra,
		ledger:     led,
		dispatcher: dispatcher,
		gateway:    gateway,
		machine:    machine,
		scheduler:  sched,
		registry:   coretelegram.NewRegistry(),
	}
	a.register()
	return a, nil
}

func (a *App) register() {
	a.registry.RegisterCommand("/start", commands.Command{
		Handler:     a.onStart,
		Description: "Start Taskly and open the main menu",
	})
	a.registry.RegisterCommand("/jobs", commands.Command{
		Handler:     a.onJobs,
		Description: "List scheduled jobs",
		AdminOnly:   true,
	})
	if err := a.registry.RegisterCallback(keyboard.CancelKey, a.onCallback); err != nil {
		logger.TWire.Warn("callback not registered",
			slog.String("event", "register.callback.failed"),
			slog.String("err", err.Error()),
		)
	}
}

// TelegramRunOptions builds the routes and lifecycle hooks for core/telegram.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	core := a.cfg.CoreConfig()
	routes := router.TextRoutes(a.registry, router.TextOptions{Conversation: a.onText})
	routes = append(routes, router.CallbackRoute(a.registry, router.CallbackOptions{}))
	routes = append(routes, router.CommandRoutes(a.registry, router.CommandRouteOptions{
		AdminID: core.Telegram.AdminID,
	})...)

	return coretelegram.RunOptions{
		Config:      core,
		Registry:    a.registry,
		Dispatcher:  a.dispatcher,
		Middlewares: coretelegram.DefaultMiddlewares(core, nil),
		Routes:      routes,
		OnStart:     a.start,
		OnStop:      a.stop,
	}, nil
}

func (a *App) start(ctx context.Context, rt coretelegram.Runtime) error {
	if rt.Bot != nil {
		a.gateway.Bind(rt.Bot)
	}
	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("app: scheduler: %w", err)
	}
	evCtx, cancel := context.WithCancel(ctx)
	a.stopEviction = cancel
	a.evictionDone = make(chan struct{})
	go func() {
		defer close(a.evictionDone)
		a.machine.States().RunEviction(evCtx, evictionInterval(a.cfg.State))
	}()
	logger.Info(ctx, "app", "components.started",
		slog.String("storage", a.cfg.Storage),
		slog.String("timezone", a.cfg.Location().String()),
		slog.Int("jobs", len(a.scheduler.Jobs())),
	)
	return nil
}

func (a *App) stop(context.Context, coretelegram.Runtime) error {
	var err error
	a.stopOnce.Do(func() {
		if a.stopEviction != nil {
			a.stopEviction()
			<-a.evictionDone
		}
		err = a.scheduler.Stop()
	})
	return err
}

// Close stops background work and releases storage.
func (a *App) Close() error {
	stopErr := a.stop(context.Background(), coretelegram.Runtime{})
	a.dispatcher.Close()
	return errors.Join(stopErr, a.infra.Close())
}

func evictionInterval(cfg StateConfig) time.Duration {
	if cfg.TTLMinutes <= 0 {
		return 0
	}
	interval := time.Duration(cfg.TTLMinutes) * time.Minute / 4
	return max(interval, time.Minute)
}

func (a *App) onText(c tele.Context) error {
	return a.machine.HandleText(helpers.BuildContext(c), textEvent(c))
}

func (a *App) onStart(c tele.Context) error {
	return a.machine.HandleStart(helpers.BuildContext(c), textEvent(c))
}

func (a *App) onJobs(c tele.Context) error {
	return a.machine.HandleJobs(helpers.BuildContext(c), textEvent(c))
}

func (a *App) onCallback(c tele.Context) error {
	return a.machine.HandleCallback(helpers.BuildContext(c), callbackEvent(c))
}
