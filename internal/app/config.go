package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	coreconfig "github.com/m3rciful/xlbot/core/config"
	coredatabase "github.com/m3rciful/xlbot/core/database"
	"github.com/m3rciful/xlbot/internal/activity"
	"github.com/m3rciful/xlbot/internal/conversation"
	"github.com/m3rciful/xlbot/internal/metrics"
	"github.com/m3rciful/xlbot/internal/xlapi"
)

const (
	defaultXLTimeout      = 20 * time.Second
	defaultXLMaxRetries   = 2
	defaultRefreshTimeout = 10 * time.Second
	defaultCallTimeout    = 30 * time.Second
	defaultActivityFile   = "activity.log"
)

// AuthConfig bounds token refresh calls.
type AuthConfig struct {
	RefreshTimeout time.Duration `yaml:"refresh_timeout" envconfig:"AUTH_REFRESH_TIMEOUT"`
}

// ActivityConfig selects the audit sinks.
type ActivityConfig struct {
	File string `yaml:"file" envconfig:"ACTIVITY_FILE"`
	// NotifyAdmin forwards every event to telegram.admin_id.
	NotifyAdmin bool `yaml:"notify_admin" envconfig:"ACTIVITY_NOTIFY_ADMIN"`
	// Timeout bounds each sink write and the admin notification.
	Timeout time.Duration `yaml:"timeout" envconfig:"ACTIVITY_TIMEOUT"`
}

// Config is the full bot configuration: the core sections plus the bot's own.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	XL           xlapi.Config        `yaml:"xl"`
	Auth         AuthConfig          `yaml:"auth"`
	Conversation conversation.Config `yaml:"conversation"`
	Activity     ActivityConfig      `yaml:"activity"`
	Database     coredatabase.Config `yaml:"database"`
	Metrics      metrics.Config      `yaml:"metrics"`
}

// CoreConfig implements cmd.ConfigCarrier.
func (c *Config) CoreConfig() *coreconfig.Config {
	if c == nil {
		return nil
	}
	return &c.Config
}

// LoadConfig reads path (plus .env and environment) and validates every section.
func LoadConfig(path string) (*Config, error) {
	cfg := defaults()
	if err := coreconfig.Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// defaults seeds values that an explicit zero in the file or environment
// must be able to override, such as xl.max_retries: 0.
func defaults() Config {
	var cfg Config
	cfg.XL.MaxRetries = defaultXLMaxRetries
	return cfg
}

// Normalize fills defaults and reports all invalid settings together.
func (c *Config) Normalize() error {
	var result *multierror.Error
	if err := coreconfig.Normalize(&c.Config); err != nil {
		result = multierror.Append(result, err)
	}

	c.XL.BaseURL = strings.TrimSpace(c.XL.BaseURL)
	if c.XL.BaseURL == "" {
		result = multierror.Append(result, fmt.Errorf("xl.base_url is required"))
	} else if !strings.HasPrefix(c.XL.BaseURL, "http://") && !strings.HasPrefix(c.XL.BaseURL, "https://") {
		result = multierror.Append(result, fmt.Errorf("xl.base_url must be an http(s) URL, got %q", c.XL.BaseURL))
	}
	if strings.TrimSpace(c.XL.APIKey) == "" {
		result = multierror.Append(result, fmt.Errorf("xl.api_key is required"))
	}
	if strings.TrimSpace(c.XL.PackageFamily) == "" {
		result = multierror.Append(result, fmt.Errorf("xl.package_family is required"))
	}
	if c.XL.Timeout <= 0 {
		c.XL.Timeout = defaultXLTimeout
	}
	if c.XL.MaxRetries < 0 {
		result = multierror.Append(result, fmt.Errorf("xl.max_retries must be >= 0"))
	}

	if c.Auth.RefreshTimeout <= 0 {
		c.Auth.RefreshTimeout = defaultRefreshTimeout
	}
	if c.Conversation.CallTimeout <= 0 {
		c.Conversation.CallTimeout = defaultCallTimeout
	}
	if c.Activity.File == "" {
		c.Activity.File = defaultActivityFile
	}
	if c.Activity.Timeout <= 0 {
		c.Activity.Timeout = activity.DefaultTimeout
	}
	if c.Activity.NotifyAdmin && c.Telegram.AdminID == 0 {
		result = multierror.Append(result, fmt.Errorf("activity.notify_admin requires telegram.admin_id"))
	}
	return result.ErrorOrNil()
}
