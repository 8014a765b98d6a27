// Package activity records user-visible events (logins, purchases) to audit
// sinks and forwards them to the operator.
package activity

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/m3rciful/xlbot/core/logger"
)

// Event kinds.
const (
	KindLogin          = "login"
	KindPurchase       = "purchase"
	KindPurchaseFailed = "purchase_failed"
)

// Actor identifies the Telegram user an event belongs to.
type Actor struct {
	ID       int64
	Username string
	FullName string
}

// Event is one recorded line.
type Event struct {
	Actor Actor
	Kind  string
	Text  string
	At    time.Time
}

// Line renders the event the way it is written to the activity file and sent to the operator.
func (e Event) Line() string {
	username := "-"
	if e.Actor.Username != "" {
		username = "@" + e.Actor.Username
	}
	name := strings.TrimSpace(e.Actor.FullName)
	if name == "" {
		name = "-"
	}
	return fmt.Sprintf("[%s] %s (id=%d, username=%s)", e.Text, name, e.Actor.ID, username)
}

// Sink persists events. Implementations must be safe for concurrent use.
type Sink interface {
	Name() string
	Write(ctx context.Context, ev Event) error
}

// Notifier forwards a rendered line to a human operator.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, text string) error

func (f NotifierFunc) Notify(ctx context.Context, text string) error { return f(ctx, text) }

// Recorder fans events out to sinks and the notifier. Failures are logged and
// dropped: recording never changes what the user sees.
type Recorder struct {
	sinks    []Sink
	notifier Notifier
	now      func() time.Time
	timeout  time.Duration
}

// DefaultTimeout bounds each sink write and notification.
const DefaultTimeout = 5 * time.Second

type Option func(*Recorder)

func WithSink(s Sink) Option {
	return func(r *Recorder) {
		if s != nil {
			r.sinks = append(r.sinks, s)
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(r *Recorder) { r.notifier = n }
}

// WithTimeout bounds every sink write and the notification separately.
// Non-positive values keep DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

func NewRecorder(opts ...Option) *Recorder {
	r := &Recorder{now: time.Now, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record writes text for actor to every sink, then notifies the operator.
func (r *Recorder) Record(ctx context.Context, actor Actor, kind, text string) {
	if r == nil {
		return
	}
	ev := Event{Actor: actor, Kind: kind, Text: text, At: r.now()}
	for _, s := range r.sinks {
		if err := r.bounded(ctx, func(ctx context.Context) error { return s.Write(ctx, ev) }); err != nil {
			logger.Warn(ctx, "activity", "activity.sink_failed",
				slog.String("status", "fail"),
				slog.String("sink", s.Name()),
				slog.String("err", err.Error()),
			)
		}
	}
	if r.notifier != nil {
		if err := r.bounded(ctx, func(ctx context.Context) error { return r.notifier.Notify(ctx, ev.Line()) }); err != nil {
			logger.Warn(ctx, "activity", "activity.notify_failed",
				slog.String("status", "fail"),
				slog.String("err", err.Error()),
			)
		}
	}
	logger.Info(ctx, "activity", "activity.recorded",
		slog.String("kind", kind),
		slog.Int64("user_id", actor.ID),
	)
}

// bounded runs fn under the recorder's timeout. The caller holds the user's
// turn lock, so a hung sink must not outlive it.
func (r *Recorder) bounded(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return fn(ctx)
}
