package helpers

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/m3rciful/xlbot/core/logger"
	"github.com/m3rciful/xlbot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

var globalDispatcher atomic.Pointer[sender.Dispatcher]

// SetDispatcher wires the asynchronous sender used by helper functions.
func SetDispatcher(d *sender.Dispatcher) {
	globalDispatcher.Store(d)
}

func currentDispatcher() *sender.Dispatcher {
	return globalDispatcher.Load()
}

// enqueue runs fn on the dispatcher, or inline when none is wired or the queue rejects it.
func enqueue(ctx context.Context, action, endpoint string, run func() error) error {
	disp := currentDispatcher()
	if disp == nil {
		return run()
	}
	if err := disp.Enqueue(ctx, action, endpoint, run); err != nil {
		if errors.Is(err, sender.ErrQueueFull) || errors.Is(err, sender.ErrQueueClosed) {
			logger.Warn(ctx, "tg.sender", "queue.fallback",
				slog.String("action", action),
				slog.String("endpoint", endpoint),
				slog.String("err", err.Error()),
			)
			return run()
		}
		return err
	}
	return nil
}

func mdOptions(markup []*tele.ReplyMarkup) *tele.SendOptions {
	var rm *tele.ReplyMarkup
	if len(markup) > 0 {
		rm = markup[0]
	}
	return &tele.SendOptions{ParseMode: tele.ModeMarkdown, ReplyMarkup: rm, DisableWebPagePreview: true}
}

// SendText sends raw text (no parse mode) to the current recipient.
func SendText(c tele.Context, text string, opts ...*tele.SendOptions) error {
	return enqueue(BuildContext(c), "send.text", "sendMessage", func() error {
		if len(opts) > 0 && opts[0] != nil {
			return c.Send(text, opts[0])
		}
		return c.Send(text)
	})
}

// SendMD sends a message with Markdown parse mode and optional reply markup.
func SendMD(c tele.Context, text string, markup ...*tele.ReplyMarkup) error {
	opts := mdOptions(markup)
	return enqueue(BuildContext(c), "send.md", "sendMessage", func() error {
		return c.Send(text, opts)
	})
}

// EditOrSendMD edits the message behind a callback (Markdown) or sends a new one.
func EditOrSendMD(c tele.Context, text string, markup ...*tele.ReplyMarkup) error {
	opts := mdOptions(markup)
	return enqueue(BuildContext(c), "edit.md", "editMessageText", func() error {
		return c.EditOrSend(text, opts)
	})
}

// SendTo delivers text to an arbitrary chat outside of an update, e.g. operator notifications.
func SendTo(ctx context.Context, bot *tele.Bot, chatID int64, text string) error {
	if bot == nil {
		return errors.New("telegram: bot not started")
	}
	return enqueue(ctx, "send.notify", "sendMessage", func() error {
		_, err := bot.Send(tele.ChatID(chatID), text, &tele.SendOptions{DisableWebPagePreview: true})
		return err
	})
}
