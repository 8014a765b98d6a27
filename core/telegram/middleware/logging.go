package middleware

import (
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/xlbot/core/logger"
	"github.com/m3rciful/xlbot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/xlbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// recent holds update ids already logged; the middleware may wrap several routes.
var (
	recentMu sync.Mutex
	recent   = make(map[int]time.Time)
	keepFor  = 10 * time.Second
)

func alreadyLogged(updateID int) bool {
	now := time.Now()
	recentMu.Lock()
	defer recentMu.Unlock()
	for id, ts := range recent {
		if now.Sub(ts) > keepFor {
			delete(recent, id)
		}
	}
	if _, ok := recent[updateID]; ok {
		return true
	}
	recent[updateID] = now
	return false
}

// LoggerMiddleware assigns the rid, caches the update context and logs one
// sampled update.received line per update.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		upd := c.Update()
		var chatID, userID int64
		if chat := c.Chat(); chat != nil {
			chatID = chat.ID
		}
		user := c.Sender()
		if user != nil {
			userID = user.ID
		}
		rid := logger.BuildRID(upd.ID, chatID, userID)
		c.Set("rid", rid)
		c.Set("update_start", time.Now())

		ctx := logger.WithRID(logger.Background(), rid)
		ctx = logger.WithUpdateMeta(ctx, upd.ID, userID, chatID)
		ctx = logger.WithLogger(ctx, logger.Component("tg"))
		tghelpers.StoreContext(c, ctx)

		if logger.ShouldSampleDebug() && !alreadyLogged(upd.ID) {
			attrs := []slog.Attr{slog.String("status", "ok")}
			if user != nil && user.Username != "" {
				attrs = append(attrs, slog.String("username", logger.SanitizeLimit(user.Username, 64)))
			}
			switch {
			case upd.Callback != nil:
				key, payload := callbacks.KeyAndPayload(upd.Callback)
				attrs = append(attrs,
					slog.String("cb_key", logger.SanitizeLimit(key, 128)),
					slog.String("payload", logger.SanitizeLimit(payload, 256)),
				)
			case upd.Message != nil:
				// Free text can be an OTP; only its length is logged.
				attrs = append(attrs, slog.Int("text_len", len([]rune(c.Text()))))
			}
			logger.LogEvent(ctx, nil, slog.LevelDebug, "update.received", attrs...)
		}
		return next(c)
	}
}
