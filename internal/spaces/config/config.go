// Package config loads service configuration from an optional YAML file,
// with environment variables taking precedence over file values.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bdobrica/spaces/common/environment"
	"github.com/bdobrica/spaces/internal/spaces/oauth"
)

// Config is the full service configuration.
type Config struct {
	// HTTPAddr is the listen address, e.g. ":8080".
	HTTPAddr string `yaml:"http_addr"`
	// BaseURL is the public origin spaces are reached through.
	BaseURL string `yaml:"base_url"`
	// PathMode routes spaces by path behind a fronting proxy instead of by
	// per-space host port.
	PathMode bool `yaml:"path_mode"`
	// FrontendURL is where OAuth callbacks send the browser back to.
	FrontendURL string `yaml:"frontend_url"`
	// AllowedOrigins feeds the CORS policy.
	AllowedOrigins []string `yaml:"allowed_origins"`

	Database struct {
		// Driver is "postgres" or "sqlite".
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
	} `yaml:"database"`

	Reconciler struct {
		Interval      Duration `yaml:"interval"`
		SessionBudget Duration `yaml:"session_budget"`
	} `yaml:"reconciler"`

	// OpTimeout bounds each container engine interaction.
	OpTimeout Duration `yaml:"op_timeout"`

	Directory struct {
		BaseURL string `yaml:"base_url"`
		APIKey  string `yaml:"api_key"`
	} `yaml:"directory"`

	Mail struct {
		Endpoint string `yaml:"endpoint"`
		APIKey   string `yaml:"api_key"`
	} `yaml:"mail"`

	OAuth oauth.Config `yaml:"oauth"`

	// LogLevel is "debug", "info", "warn", or "error".
	LogLevel string `yaml:"log_level"`
}

// Load reads the YAML file at path (skipped when path is empty or the file
// is absent), then applies environment overrides and defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config file %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base_url is required (SPACES_BASE_URL)")
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.HTTPAddr = environment.StringOr("SPACES_HTTP_ADDR", c.HTTPAddr)
	c.BaseURL = environment.StringOr("SPACES_BASE_URL", c.BaseURL)
	c.PathMode = environment.BoolOr("SPACES_PATH_MODE", c.PathMode)
	c.FrontendURL = environment.StringOr("SPACES_FRONTEND_URL", c.FrontendURL)
	c.AllowedOrigins = environment.StringSliceOr("SPACES_ALLOWED_ORIGINS", c.AllowedOrigins)

	c.Database.Driver = environment.StringOr("SPACES_DB_DRIVER", c.Database.Driver)
	c.Database.DSN = environment.StringOr("SPACES_DB_DSN", c.Database.DSN)

	c.Directory.BaseURL = environment.StringOr("SPACES_DIRECTORY_URL", c.Directory.BaseURL)
	c.Directory.APIKey = environment.StringOr("SPACES_DIRECTORY_API_KEY", c.Directory.APIKey)

	c.Mail.Endpoint = environment.StringOr("SPACES_MAIL_ENDPOINT", c.Mail.Endpoint)
	c.Mail.APIKey = environment.StringOr("SPACES_MAIL_API_KEY", c.Mail.APIKey)

	c.OAuth.AuthorizeURL = environment.StringOr("SPACES_OAUTH_AUTHORIZE_URL", c.OAuth.AuthorizeURL)
	c.OAuth.TokenURL = environment.StringOr("SPACES_OAUTH_TOKEN_URL", c.OAuth.TokenURL)
	c.OAuth.UserInfoURL = environment.StringOr("SPACES_OAUTH_USERINFO_URL", c.OAuth.UserInfoURL)
	c.OAuth.ClientID = environment.StringOr("SPACES_OAUTH_CLIENT_ID", c.OAuth.ClientID)
	c.OAuth.ClientSecret = environment.StringOr("SPACES_OAUTH_CLIENT_SECRET", c.OAuth.ClientSecret)
	c.OAuth.RedirectURL = environment.StringOr("SPACES_OAUTH_REDIRECT_URL", c.OAuth.RedirectURL)

	c.LogLevel = environment.StringOr("SPACES_LOG_LEVEL", c.LogLevel)

	c.Reconciler.Interval = Duration(environment.DurationOr("SPACES_RECONCILE_INTERVAL", c.Reconciler.Interval.Std()))
	c.Reconciler.SessionBudget = Duration(environment.DurationOr("SPACES_SESSION_BUDGET", c.Reconciler.SessionBudget.Std()))
	c.OpTimeout = Duration(environment.DurationOr("SPACES_OP_TIMEOUT", c.OpTimeout.Std()))
}

func (c *Config) applyDefaults() {
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8080"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Database.DSN == "" && c.Database.Driver == "sqlite" {
		c.Database.DSN = "spaces.db"
	}
	if c.Reconciler.Interval == 0 {
		c.Reconciler.Interval = Duration(5 * time.Minute)
	}
	if c.Reconciler.SessionBudget == 0 {
		c.Reconciler.SessionBudget = Duration(3 * time.Hour)
	}
	if c.OpTimeout == 0 {
		c.OpTimeout = Duration(30 * time.Second)
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.FrontendURL == "" {
		c.FrontendURL = c.BaseURL
	}
}
