package app

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/xlbot/internal/activity"
)

const sampleYAML = `
telegram:
  token: tg-token
  admin_id: 99
xl:
  base_url: https://api.example.test
  api_key: key-1
  package_family: FAM-1
  timeout: 15s
conversation:
  call_timeout: 45s
activity:
  notify_admin: true
metrics:
  listen: ":9100"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "tg-token", cfg.CoreConfig().Telegram.Token)
	assert.Equal(t, int64(99), cfg.Telegram.AdminID)
	assert.Equal(t, "https://api.example.test", cfg.XL.BaseURL)
	assert.Equal(t, 15*time.Second, cfg.XL.Timeout)
	assert.Equal(t, defaultXLMaxRetries, cfg.XL.MaxRetries)
	assert.Equal(t, 45*time.Second, cfg.Conversation.CallTimeout)
	assert.Equal(t, defaultRefreshTimeout, cfg.Auth.RefreshTimeout)
	assert.Equal(t, defaultActivityFile, cfg.Activity.File)
	assert.Equal(t, activity.DefaultTimeout, cfg.Activity.Timeout)
	assert.Equal(t, ":9100", cfg.Metrics.Listen)
	assert.False(t, cfg.Database.Enabled())
}

func TestLoadConfigHonoursZeroRetries(t *testing.T) {
	body := strings.Replace(sampleYAML, "  timeout: 15s\n", "  timeout: 15s\n  max_retries: 0\n", 1)
	require.Contains(t, body, "max_retries: 0")

	cfg, err := LoadConfig(writeConfig(t, body))
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.XL.MaxRetries)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("MYXL_API_KEY", "key-from-env")
	t.Setenv("DB_HOST", "db.local")

	cfg, err := LoadConfig(writeConfig(t, sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, "key-from-env", cfg.XL.APIKey)
	assert.True(t, cfg.Database.Enabled())
}

func TestNormalizeReportsEverything(t *testing.T) {
	cfg := &Config{}
	cfg.XL.BaseURL = "ftp://nope"
	cfg.XL.MaxRetries = -1
	cfg.Activity.NotifyAdmin = true

	err := cfg.Normalize()
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{
		"telegram token is required",
		"xl.base_url must be an http(s) URL",
		"xl.api_key is required",
		"xl.package_family is required",
		"xl.max_retries must be >= 0",
		"activity.notify_admin requires telegram.admin_id",
	} {
		assert.Contains(t, msg, want)
	}
}
