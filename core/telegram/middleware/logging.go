package middleware

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/taskly/core/logger"
	"github.com/m3rciful/taskly/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/taskly/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

const receiptTTL = 10 * time.Second

// receipts remembers recently logged update IDs; routes wrap the logger more than once.
var receipts = struct {
	sync.Mutex
	seen map[int]time.Time
}{seen: make(map[int]time.Time)}

func firstReceipt(updateID int, now time.Time) bool {
	receipts.Lock()
	defer receipts.Unlock()
	for id, ts := range receipts.seen {
		if now.Sub(ts) > receiptTTL {
			delete(receipts.seen, id)
		}
	}
	if _, ok := receipts.seen[updateID]; ok {
		return false
	}
	receipts.seen[updateID] = now
	return true
}

func bindUpdateContext(c tele.Context) (context.Context, int64, int64) {
	var chatID, userID int64
	if chat := c.Chat(); chat != nil {
		chatID = chat.ID
	}
	if user := c.Sender(); user != nil {
		userID = user.ID
	}
	upd := c.Update()
	rid := logger.BuildRID(upd.ID, chatID, userID)
	c.Set("rid", rid)

	ctx := logger.WithRID(logger.Background(), rid)
	ctx = logger.WithUpdateMeta(ctx, upd.ID, userID, chatID)
	ctx = logger.WithLogger(ctx, logger.TG)
	tghelpers.StoreContext(c, ctx)
	return ctx, chatID, userID
}

// LoggerMiddleware binds the update's rid context and logs one sampled receipt line per update.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		if _, ok := tghelpers.ContextFrom(c); ok {
			return next(c)
		}
		ctx, chatID, _ := bindUpdateContext(c)
		upd := c.Update()
		if !logger.ShouldSampleDebug() || !firstReceipt(upd.ID, time.Now()) {
			return next(c)
		}

		attrs := []slog.Attr{
			slog.String("status", "ok"),
			slog.String("kind", updateKind(upd)),
		}
		if chatID != 0 {
			attrs = append(attrs, slog.String("chat_type", string(c.Chat().Type)))
		}
		if user := c.Sender(); user != nil && user.Username != "" {
			attrs = append(attrs, slog.String("username", logger.SanitizeLimit(user.Username, 64)))
		}
		switch {
		case upd.Callback != nil:
			key, payload := callbacks.ParseCallbackData(upd.Callback.Data)
			attrs = append(attrs, slog.String("cb_key", logger.SanitizeLimit(key, 128)))
			if payload != "" {
				attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(payload, 256)))
			}
		case upd.Message != nil:
			attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(c.Text(), 256)))
		}
		logger.LogEvent(ctx, logger.TG, slog.LevelDebug, "update.received", attrs...)
		return next(c)
	}
}
