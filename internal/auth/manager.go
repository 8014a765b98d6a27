// Package auth keeps a session's token set fresh before protected partner calls.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/m3rciful/xlbot/core/logger"
	"github.com/m3rciful/xlbot/internal/models"
	"github.com/m3rciful/xlbot/internal/session"
)

// ErrSessionExpired means the session has no usable tokens; the user must log in again.
var ErrSessionExpired = errors.New("session expired")

const defaultRefreshTimeout = 10 * time.Second

// Refresher exchanges a refresh token for a new token set.
type Refresher interface {
	RefreshTokens(ctx context.Context, refreshToken string) (models.TokenSet, error)
}

// Observer receives the outcome of every refresh attempt ("ok" or "fail").
type Observer func(outcome string)

type Option func(*Manager)

// WithTimeout bounds each refresh call.
func WithTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

func WithObserver(o Observer) Option {
	return func(m *Manager) { m.observe = o }
}

// Manager refreshes tokens on every call; nothing is cached between calls.
type Manager struct {
	refresher Refresher
	timeout   time.Duration
	observe   Observer
}

func NewManager(r Refresher, opts ...Option) *Manager {
	m := &Manager{
		refresher: r,
		timeout:   defaultRefreshTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// EnsureFresh refreshes the session's tokens and stores the new set on sess.
// Any failure yields ErrSessionExpired and leaves sess untouched; the caller
// resets the session. The old tokens are never reused after a failed refresh.
func (m *Manager) EnsureFresh(ctx context.Context, sess *session.Session) (models.TokenSet, error) {
	current, ok := sess.Tokens()
	if !ok {
		m.report(ctx, "fail", 0, slog.String("reason", "no_tokens"))
		return models.TokenSet{}, ErrSessionExpired
	}

	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	start := time.Now()
	fresh, err := m.refresher.RefreshTokens(callCtx, current.RefreshToken)
	took := time.Since(start)
	if err != nil {
		m.report(ctx, "fail", took, slog.String("err", err.Error()))
		return models.TokenSet{}, fmt.Errorf("%w: %w", ErrSessionExpired, err)
	}
	if !fresh.Valid() {
		m.report(ctx, "fail", took, slog.String("reason", "incomplete_tokens"))
		return models.TokenSet{}, ErrSessionExpired
	}
	if err := sess.ReplaceTokens(fresh); err != nil {
		return models.TokenSet{}, fmt.Errorf("%w: %w", ErrSessionExpired, err)
	}
	m.report(ctx, "ok", took)
	return fresh, nil
}

func (m *Manager) report(ctx context.Context, outcome string, took time.Duration, attrs ...slog.Attr) {
	if m.observe != nil {
		m.observe(outcome)
	}
	level := slog.LevelDebug
	if outcome != "ok" {
		level = slog.LevelWarn
	}
	attrs = append([]slog.Attr{
		slog.String("outcome", outcome),
		slog.Duration("duration", took),
	}, attrs...)
	logger.Event(ctx, "auth", level, "auth.refresh", attrs...)
}
