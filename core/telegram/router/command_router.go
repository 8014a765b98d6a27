package router

import (
	"log/slog"
	"time"

	"github.com/m3rciful/xlbot/core/logger"
	tg "github.com/m3rciful/xlbot/core/telegram"
	"github.com/m3rciful/xlbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// CommandRouteOptions configures how commands are wrapped and exposed.
type CommandRouteOptions struct {
	AdminID       int64
	OnAdminReject tele.HandlerFunc
}

// CommandRoutes binds every registered command and alias to its wrapped handler.
func CommandRoutes(reg *tg.Registry, opts CommandRouteOptions) []tg.Route {
	if reg == nil {
		return nil
	}
	adminOpts := middleware.AdminOptions{
		AdminID:  opts.AdminID,
		OnReject: opts.OnAdminReject,
	}

	var routes []tg.Route
	for name, def := range reg.Commands() {
		inner := def.Handler
		if def.AdminOnly {
			inner = middleware.AdminOnlyMiddleware(adminOpts)(inner)
		}
		handlerName := normalizeHandlerName(name)
		h := func(c tele.Context) error {
			return handleWithSummary(c, handlerName, time.Now(), func() error {
				return inner(c)
			})
		}
		h = middleware.RecoverMiddleware(middleware.LoggerMiddleware(h))

		routes = append(routes, tg.Route{Endpoint: name, Handler: h})
		for _, alias := range def.Aliases {
			if alias == "" {
				continue
			}
			if alias[0] != '/' {
				alias = "/" + alias
			}
			routes = append(routes, tg.Route{Endpoint: alias, Handler: h})
		}
	}

	logger.TWire.Info("tg.wire",
		slog.String("event", "complete"),
		slog.Int("commands", len(reg.Commands())),
		slog.Int("routes", len(routes)),
		slog.Int("callbacks", len(reg.ListCallbacks())),
	)
	return routes
}
