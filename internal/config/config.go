package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// LEDGERDASH_UPSTREAM_URL for upstream.url.
const EnvPrefix = "LEDGERDASH"

// Config holds all configuration for ledger-dash.
type Config struct {
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Web      WebConfig      `mapstructure:"web"`
	Log      LogConfig      `mapstructure:"log"`
}

// UpstreamConfig describes the ledger server the dashboard reads from.
type UpstreamConfig struct {
	URL       string        `mapstructure:"url"`
	StatePath string        `mapstructure:"state_path"`
	MinePath  string        `mapstructure:"mine_path"`
	LoginPath string        `mapstructure:"login_path"`
	Username  string        `mapstructure:"username"`
	Password  string        `mapstructure:"password"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// SyncConfig controls when the sync cycle runs besides startup, mining and
// operator refreshes. A zero Interval disables periodic polling.
type SyncConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// WebConfig holds the dashboard listener and optional operator login.
type WebConfig struct {
	Port          string `mapstructure:"port"`
	AdminUsername string `mapstructure:"admin_username"`
	AdminPassword string `mapstructure:"admin_password"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level      string `mapstructure:"level"` // DEBUG, INFO, WARN, ERROR
	MaxEntries int    `mapstructure:"max_entries"`
}

// AuthEnabled reports whether the dashboard requires an operator session.
func (w WebConfig) AuthEnabled() bool {
	return w.AdminPassword != ""
}

// SetDefaults registers every key with its default so that environment
// overrides are picked up by Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("upstream.url", "http://127.0.0.1:5000")
	v.SetDefault("upstream.state_path", "/api/system_state")
	v.SetDefault("upstream.mine_path", "/api/mine")
	v.SetDefault("upstream.login_path", "/admin_login")
	v.SetDefault("upstream.username", "")
	v.SetDefault("upstream.password", "")
	v.SetDefault("upstream.timeout", 10*time.Second)
	v.SetDefault("sync.interval", time.Duration(0))
	v.SetDefault("web.port", "8080")
	v.SetDefault("web.admin_username", "admin")
	v.SetDefault("web.admin_password", "")
	v.SetDefault("log.level", "INFO")
	v.SetDefault("log.max_entries", 200)
}

// New returns a viper instance with defaults and environment overrides wired.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the optional config file, decodes the merged settings and
// validates that the required values are usable.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the decoded configuration.
func (c *Config) Validate() error {
	if c.Upstream.URL == "" {
		return fmt.Errorf("upstream.url is required")
	}
	u, err := url.Parse(c.Upstream.URL)
	if err != nil {
		return fmt.Errorf("upstream.url is invalid: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("upstream.url must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("upstream.url has no host")
	}
	for key, p := range map[string]string{
		"upstream.state_path": c.Upstream.StatePath,
		"upstream.mine_path":  c.Upstream.MinePath,
		"upstream.login_path": c.Upstream.LoginPath,
	} {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("%s must start with /, got %q", key, p)
		}
	}
	if c.Upstream.Username != "" && c.Upstream.Password == "" {
		return fmt.Errorf("upstream.password is required when upstream.username is set")
	}
	if c.Upstream.Timeout < 0 {
		return fmt.Errorf("upstream.timeout must not be negative")
	}
	if c.Sync.Interval < 0 {
		return fmt.Errorf("sync.interval must not be negative")
	}
	if c.Web.Port == "" {
		return fmt.Errorf("web.port is required")
	}
	if c.Log.MaxEntries <= 0 {
		return fmt.Errorf("log.max_entries must be positive")
	}
	return nil
}
