package sender

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync/atomic"

	"github.com/m3rciful/taskly/core/logger"
	tghelpers "github.com/m3rciful/taskly/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// API is the subset of *tele.Bot the gateway needs.
type API interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	EditReplyMarkup(msg tele.Editable, markup *tele.ReplyMarkup) (*tele.Message, error)
}

type boundAPI struct{ API }

// Gateway delivers outbound messages with bounded retry.
// It is created before the bot and bound once the bot exists.
type Gateway struct {
	api        atomic.Pointer[boundAPI]
	policy     Policy
	dispatcher *Dispatcher
}

// NewGateway creates an unbound gateway. dispatcher may be nil, in which case Notify is synchronous.
func NewGateway(policy Policy, dispatcher *Dispatcher) *Gateway {
	return &Gateway{policy: policy.normalized(), dispatcher: dispatcher}
}

// Bind attaches the Telegram API client.
func (g *Gateway) Bind(api API) {
	if api == nil {
		g.api.Store(nil)
		return
	}
	g.api.Store(&boundAPI{api})
}

func (g *Gateway) client() (API, error) {
	b := g.api.Load()
	if b == nil {
		return nil, ErrNotBound
	}
	return b.API, nil
}

// Send delivers text to chatID and returns the sent message.
func (g *Gateway) Send(ctx context.Context, chatID int64, text string, opts ...interface{}) (*tele.Message, error) {
	api, err := g.client()
	if err != nil {
		return nil, err
	}
	ctx = logger.WithChat(ctx, chatID)
	var msg *tele.Message
	res := do(ctx, g.policy, "send.text", func() error {
		m, sendErr := api.Send(tele.ChatID(chatID), text, opts...)
		if sendErr == nil {
			msg = m
		}
		return sendErr
	})
	if res.err != nil {
		g.logFailure(ctx, "send.text", res)
		return nil, res.err
	}
	tghelpers.RecordSend(ctx, opts)
	return msg, nil
}

// EditControls replaces the inline keyboard of a sent message.
func (g *Gateway) EditControls(ctx context.Context, chatID int64, messageID int, markup *tele.ReplyMarkup) error {
	api, err := g.client()
	if err != nil {
		return err
	}
	ctx = logger.WithChat(ctx, chatID)
	ref := tele.StoredMessage{MessageID: strconv.Itoa(messageID), ChatID: chatID}
	res := do(ctx, g.policy, "edit.markup", func() error {
		_, editErr := api.EditReplyMarkup(ref, markup)
		return editErr
	})
	if res.err != nil {
		g.logFailure(ctx, "edit.markup", res)
		return res.err
	}
	return nil
}

// Notify queues a message on the dispatcher, falling back to a synchronous
// send when no dispatcher is configured or the queue is saturated.
func (g *Gateway) Notify(ctx context.Context, chatID int64, text string, opts ...interface{}) error {
	api, err := g.client()
	if err != nil {
		return err
	}
	if g.dispatcher == nil {
		_, err := g.Send(ctx, chatID, text, opts...)
		return err
	}
	ctx = logger.WithChat(ctx, chatID)
	err = g.dispatcher.Enqueue(ctx, "notify", "sendMessage", func() error {
		_, sendErr := api.Send(tele.ChatID(chatID), text, opts...)
		return sendErr
	})
	if errors.Is(err, ErrQueueFull) || errors.Is(err, ErrQueueClosed) {
		logger.Warn(ctx, "tg.sender", "queue.fallback",
			slog.String("action", "notify"),
			slog.String("err", err.Error()),
		)
		_, err = g.Send(ctx, chatID, text, opts...)
	}
	return err
}

// NotifySeq queues texts for one chat as a single job so they arrive in order.
// A retry resumes at the first undelivered text.
func (g *Gateway) NotifySeq(ctx context.Context, chatID int64, texts ...string) error {
	api, err := g.client()
	if err != nil {
		return err
	}
	if g.dispatcher == nil {
		return g.sendSeq(ctx, chatID, texts)
	}
	ctx = logger.WithChat(ctx, chatID)
	next := 0
	err = g.dispatcher.Enqueue(ctx, "notify.seq", "sendMessage", func() error {
		for next < len(texts) {
			if _, sendErr := api.Send(tele.ChatID(chatID), texts[next]); sendErr != nil {
				return sendErr
			}
			next++
		}
		return nil
	})
	if errors.Is(err, ErrQueueFull) || errors.Is(err, ErrQueueClosed) {
		logger.Warn(ctx, "tg.sender", "queue.fallback",
			slog.String("action", "notify.seq"),
			slog.String("err", err.Error()),
		)
		err = g.sendSeq(ctx, chatID, texts)
	}
	return err
}

func (g *Gateway) sendSeq(ctx context.Context, chatID int64, texts []string) error {
	for _, text := range texts {
		if _, err := g.Send(ctx, chatID, text); err != nil {
			return err
		}
	}
	return nil
}

func (g *Gateway) logFailure(ctx context.Context, action string, res attemptResult) {
	level := slog.LevelError
	if errors.Is(res.err, ErrRecipientUnreachable) {
		level = slog.LevelWarn
	}
	logger.Event(ctx, "tg.sender", level, "send.fail",
		slog.String("status", "fail"),
		slog.String("action", action),
		slog.Int("attempts", res.attempts),
		slog.String("error", sanitizeErrorMessage(res.err)),
		slog.String("error_kind", classifyError(res.err)),
	)
}
