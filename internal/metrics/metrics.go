// Package metrics exposes bot counters in the Prometheus text format.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/m3rciful/xlbot/core/logger"
	"github.com/m3rciful/xlbot/internal/session"
)

const namespace = "xlbot"

// Config selects where metrics are served. An empty Listen disables the endpoint.
type Config struct {
	Listen string `yaml:"listen" envconfig:"METRICS_LISTEN"`
	Path   string `yaml:"path" envconfig:"METRICS_PATH"`
}

// Metrics owns a private registry so tests can build as many as they like.
type Metrics struct {
	reg *prometheus.Registry

	logins       *prometheus.CounterVec
	purchases    *prometheus.CounterVec
	tokenRefresh *prometheus.CounterVec
	actions      *prometheus.CounterVec
}

// New registers the bot collectors. stats, when set, backs the sessions gauge.
func New(stats func() session.Stats) *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "OTP login attempts by outcome.",
		}, []string{"outcome"}),
		purchases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purchases_total",
			Help:      "Package purchases by outcome.",
		}, []string{"outcome"}),
		tokenRefresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_refresh_total",
			Help:      "Token refresh attempts by outcome.",
		}, []string{"outcome"}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Handled conversation actions by kind.",
		}, []string{"kind"}),
	}
	m.reg.MustRegister(
		m.logins, m.purchases, m.tokenRefresh, m.actions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if stats != nil {
		m.reg.MustRegister(newSessionCollector(stats))
	}
	return m
}

func (m *Metrics) Login(outcome string)        { m.logins.WithLabelValues(outcome).Inc() }
func (m *Metrics) Purchase(outcome string)     { m.purchases.WithLabelValues(outcome).Inc() }
func (m *Metrics) TokenRefresh(outcome string) { m.tokenRefresh.WithLabelValues(outcome).Inc() }
func (m *Metrics) Action(kind string)          { m.actions.WithLabelValues(kind).Inc() }

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Serve runs the metrics endpoint until ctx is done.
func (m *Metrics) Serve(ctx context.Context, cfg Config) error {
	path := cfg.Path
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logger.Info(ctx, "metrics", "metrics.listen", slog.String("listen", cfg.Listen), slog.String("path", path))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type sessionCollector struct {
	stats func() session.Stats
	desc  *prometheus.Desc
}

func newSessionCollector(stats func() session.Stats) *sessionCollector {
	return &sessionCollector{
		stats: stats,
		desc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "sessions"),
			"In-memory sessions by kind.",
			[]string{"kind"}, nil,
		),
	}
}

func (c *sessionCollector) Describe(ch chan<- *prometheus.Desc) { ch <- c.desc }

func (c *sessionCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()
	ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(s.Total), "total")
	ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(s.Authenticated), "authenticated")
	ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(s.MidLogin), "mid_login")
}
