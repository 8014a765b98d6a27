package cmd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/xlbot/core/config"
	coretelegram "github.com/m3rciful/xlbot/core/telegram"
)

type carrier struct{ cfg *coreconfig.Config }

func (c carrier) CoreConfig() *coreconfig.Config { return c.cfg }

type fakeApp struct {
	services []Service
	closed   bool
}

func (a *fakeApp) TelegramRunOptions() (coretelegram.RunOptions, error) {
	return coretelegram.RunOptions{}, nil
}
func (a *fakeApp) Services() []Service { return a.services }
func (a *fakeApp) Close() error        { a.closed = true; return nil }

func TestResolveConfigPath(t *testing.T) {
	t.Setenv("XLBOT_TEST_CONFIG", "")
	o := Options{ConfigEnvVar: "XLBOT_TEST_CONFIG", DefaultConfigPath: "config.yaml"}
	p, err := o.ResolveConfigPath()
	require.NoError(t, err)
	assert.Equal(t, "config.yaml", p)

	t.Setenv("XLBOT_TEST_CONFIG", "/etc/xlbot.yaml")
	p, _ = o.ResolveConfigPath()
	assert.Equal(t, "/etc/xlbot.yaml", p)

	o.ConfigPath = "flag.yaml"
	p, _ = o.ResolveConfigPath()
	assert.Equal(t, "flag.yaml", p)

	t.Setenv("XLBOT_TEST_CONFIG", "")
	_, err = Options{ConfigEnvVar: "XLBOT_TEST_CONFIG"}.ResolveConfigPath()
	assert.Error(t, err)
}

func TestRunStopsServicesWithBot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	svcStopped := false
	app := &fakeApp{services: []Service{func(ctx context.Context) error {
		<-ctx.Done()
		svcStopped = true
		return nil
	}}}
	botErr := errors.New("poller died")

	err := Run(Options{
		ConfigPath:     path,
		LoadConfig:     func(string) (ConfigCarrier, error) { return carrier{cfg: &coreconfig.Config{}}, nil },
		Bootstrap:      func(ConfigCarrier) (TelegramApp, error) { return app, nil },
		ShutdownLogger: func() error { return nil },
		RunTelegram: func(ctx context.Context, opts coretelegram.RunOptions) error {
			return botErr
		},
	})
	require.ErrorIs(t, err, botErr)
	assert.True(t, svcStopped)
	assert.True(t, app.closed)
}
