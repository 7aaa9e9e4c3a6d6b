package telegram

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/taskly/core/config"
	"github.com/m3rciful/taskly/core/telegram/commands"

	tele "gopkg.in/telebot.v4"
)

func noop(tele.Context) error { return nil }

type fakeSetter struct {
	got []tele.Command
	err error
}

func (f *fakeSetter) SetCommands(opts ...interface{}) error {
	if len(opts) > 0 {
		f.got, _ = opts[0].([]tele.Command)
	}
	return f.err
}

func TestRegistryCommands(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterCommand("/start", commands.Command{Handler: noop, Description: "start", Aliases: []string{"menu"}})
	reg.RegisterCommand("/jobs", commands.Command{Handler: noop, Description: "jobs", AdminOnly: true})
	reg.RegisterCommand("bad", commands.Command{Handler: noop, Description: "x"})
	reg.RegisterCommand("/start", commands.Command{Handler: noop, Description: "dup"})

	assert.Len(t, reg.Commands(), 2)
	assert.Equal(t, []tele.Command{{Text: "/start", Description: "start"}}, reg.ListCommands(true))
	assert.Len(t, reg.ListCommands(false), 2)

	key, _, ok := reg.LookupCommand("/menu")
	require.True(t, ok)
	assert.Equal(t, "/start", key)
	key, _, ok = reg.LookupCommand("/start@taskly_bot now")
	require.True(t, ok)
	assert.Equal(t, "/start", key)
	_, _, ok = reg.LookupCommand("/nope")
	assert.False(t, ok)

	setter := &fakeSetter{}
	InitBotCommands(setter, reg)
	assert.Equal(t, reg.ListCommands(true), setter.got)
	InitBotCommands(&fakeSetter{err: errors.New("boom")}, reg)
}

func TestRegistryCallbacks(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.RegisterCallback("cancel", noop))
	assert.Error(t, reg.RegisterCallback("cancel", noop))
	assert.Error(t, reg.RegisterCallback("", noop))

	_, ok := reg.GetCallback("cancel")
	assert.True(t, ok)
	assert.Equal(t, []string{"cancel"}, reg.ListCallbacks())
	assert.NotNil(t, reg.CallbackNotFound())
}

func TestBuildPoller(t *testing.T) {
	lp, ok := BuildPoller(PollerOptions{RunMode: "longpoll"}).(*tele.LongPoller)
	require.True(t, ok)
	assert.Equal(t, 10*time.Second, lp.Timeout)
	assert.Equal(t, allowedUpdates, lp.AllowedUpdates)

	wh, ok := BuildPoller(PollerOptions{
		RunMode: coreconfig.RunModeWebhook,
		Webhook: WebhookOptions{Listen: "0.0.0.0", Port: 8443, URL: "https://example.org/hook"},
	}).(*tele.Webhook)
	require.True(t, ok)
	assert.Equal(t, "0.0.0.0:8443", wh.Listen)
	assert.Equal(t, "https://example.org/hook", wh.Endpoint.PublicURL)
	assert.Equal(t, allowedUpdates, wh.AllowedUpdates)
}

func TestDefaultMiddlewaresOrder(t *testing.T) {
	names := func(mws []Middleware) []string {
		out := make([]string, len(mws))
		for i, m := range mws {
			out[i] = m.Name
		}
		return out
	}
	assert.Equal(t, []string{"logger", "recover", "metrics"}, names(DefaultMiddlewares(nil, nil)))

	cfg := &coreconfig.Config{RateLimit: coreconfig.RateLimitConfig{IntervalMS: 300}}
	assert.Equal(t, []string{"logger", "recover", "metrics", "rate_limit"}, names(DefaultMiddlewares(cfg, nil)))
}

func TestTelegramMethodHidesToken(t *testing.T) {
	assert.Equal(t, "sendMessage", telegramMethod("/bot123:secret/sendMessage"))
	assert.Equal(t, "getMe", telegramMethod("getMe"))
}
