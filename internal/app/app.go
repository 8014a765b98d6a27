// Package app wires the xlbot components together and adapts them to Telegram.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/xlbot/core/bootstrap"
	corecmd "github.com/m3rciful/xlbot/core/cmd"
	"github.com/m3rciful/xlbot/core/logger"
	tghelpers "github.com/m3rciful/xlbot/core/telegram/helpers"
	"github.com/m3rciful/xlbot/internal/activity"
	"github.com/m3rciful/xlbot/internal/auth"
	"github.com/m3rciful/xlbot/internal/conversation"
	"github.com/m3rciful/xlbot/internal/metrics"
	"github.com/m3rciful/xlbot/internal/selection"
	"github.com/m3rciful/xlbot/internal/session"
	"github.com/m3rciful/xlbot/internal/xlapi"
)

var errBotNotStarted = errors.New("app: bot not started")

// App holds the long-lived components. The bot pointer is set once
// Telegram is up and cleared on shutdown.
type App struct {
	cfg   *Config
	infra *bootstrap.Result

	store    *session.Store
	sel      *selection.Correlator
	api      *xlapi.Client
	metrics  *metrics.Metrics
	recorder *activity.Recorder
	machine  *conversation.Machine

	bot atomic.Pointer[tele.Bot]
}

// Bootstrap implements the cmd.Options hook: logger, optional database, then the app.
func Bootstrap(carrier corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
	cfg, ok := carrier.(*Config)
	if !ok {
		return nil, fmt.Errorf("app: unexpected config type %T", carrier)
	}
	infra, err := bootstrap.Run(bootstrap.Options{
		Config:   &cfg.Config,
		Database: cfg.Database,
	})
	if err != nil {
		return nil, err
	}
	return New(cfg, infra), nil
}

// New builds the app. infra may be nil or carry a nil DB.
func New(cfg *Config, infra *bootstrap.Result) *App {
	a := &App{
		cfg:   cfg,
		infra: infra,
		store: session.NewStore(),
		sel:   selection.New(),
		api:   xlapi.New(cfg.XL, nil),
	}
	a.metrics = metrics.New(a.store.Stats)

	opts := []activity.Option{
		activity.WithSink(activity.NewFileSink(cfg.Activity.File)),
		activity.WithTimeout(cfg.Activity.Timeout),
	}
	if infra != nil && infra.DB != nil {
		opts = append(opts, activity.WithSink(activity.NewPostgresSink(infra.DB)))
	}
	if cfg.Activity.NotifyAdmin {
		opts = append(opts, activity.WithNotifier(activity.NotifierFunc(a.notifyAdmin)))
	}
	a.recorder = activity.NewRecorder(opts...)

	a.machine = conversation.New(conversation.Deps{
		Store:       a.store,
		Tokens:      auth.NewManager(a.api, auth.WithTimeout(cfg.Auth.RefreshTimeout), auth.WithObserver(a.metrics.TokenRefresh)),
		Selection:   a.sel,
		API:         a.api,
		Recorder:    a.recorder,
		Observer:    a.metrics,
		ValidPhone:  xlapi.ValidContact,
		CallTimeout: cfg.Conversation.CallTimeout,
	})

	logger.Info(context.Background(), "app", "app.wired",
		slog.String("api", a.api.String()),
		slog.Bool("db", infra != nil && infra.DB != nil),
		slog.Bool("notify_admin", cfg.Activity.NotifyAdmin),
		slog.String("listen", cfg.Metrics.Listen),
	)
	return a
}

func (a *App) notifyAdmin(ctx context.Context, text string) error {
	bot := a.bot.Load()
	if bot == nil {
		return errBotNotStarted
	}
	return tghelpers.SendTo(ctx, bot, a.cfg.Telegram.AdminID, text)
}

// Services implements cmd.ServiceProvider.
func (a *App) Services() []corecmd.Service {
	if a.cfg.Metrics.Listen == "" {
		return nil
	}
	return []corecmd.Service{func(ctx context.Context) error {
		return a.metrics.Serve(ctx, a.cfg.Metrics)
	}}
}

// Close releases the database handle.
func (a *App) Close() error {
	var result *multierror.Error
	if a.infra != nil {
		if err := a.infra.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close database: %w", err))
		}
	}
	return result.ErrorOrNil()
}
