package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ProviderConfig is one provider registration from the config file.
type ProviderConfig struct {
	// Name is the unique provider name used in routes.
	Name string `yaml:"name"`
	// Strategy is the factory reference ("developer", or a qualified name).
	Strategy string `yaml:"strategy"`
	// Options are passed to the strategy factory as-is.
	Options map[string]any `yaml:"options"`
}

type Config struct {
	App struct {
		// dev | staging | prod
		Env string `yaml:"app_env"`
	} `yaml:"app"`

	Server struct {
		Addr               string   `yaml:"addr"`
		CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	} `yaml:"server"`

	Storage struct {
		// postgres | memory
		Driver   string `yaml:"driver"`
		DSN      string `yaml:"dsn"`
		Postgres struct {
			MaxConns        int    `yaml:"max_conns"`
			ConnMaxLifetime string `yaml:"conn_max_lifetime"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Session struct {
		// cookie | token | redis | memory
		Store      string `yaml:"store"`
		CookieName string `yaml:"cookie_name"`
		Domain     string `yaml:"domain"`
		SameSite   string `yaml:"samesite"`
		Secure     bool   `yaml:"secure"`
		TTL        string `yaml:"ttl"`
		Secret     string `yaml:"secret"`
		Redis      struct {
			Addr   string `yaml:"addr"`
			DB     int    `yaml:"db"`
			Prefix string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"session"`

	Auth struct {
		// Prefix under which provider routes are mounted.
		Prefix          string `yaml:"prefix"`
		SuccessRedirect string `yaml:"success_redirect"`
		FailureRedirect string `yaml:"failure_redirect"`

		// Secret signs identity-ref handoff tokens.
		Secret string `yaml:"secret"`

		AutoCreate          *bool `yaml:"auto_create"`
		UpdateIdentity      *bool `yaml:"update_identity"`
		SkipStatusChecks    bool  `yaml:"skip_status_checks"`
		VerificationEnabled bool  `yaml:"verification_enabled"`
		TwoFactorPolicy     bool  `yaml:"two_factor_policy"`

		RemovalRequiresPassword bool `yaml:"removal_requires_password"`

		CSRF struct {
			Enabled    bool   `yaml:"enabled"`
			HeaderName string `yaml:"header_name"`
			ParamName  string `yaml:"param_name"`
			CookieName string `yaml:"cookie_name"`
		} `yaml:"csrf"`
	} `yaml:"auth"`

	Providers []ProviderConfig `yaml:"providers"`

	SMTP struct {
		Enabled            bool   `yaml:"enabled"`
		Host               string `yaml:"host"`
		Port               int    `yaml:"port"`
		Username           string `yaml:"username"`
		Password           string `yaml:"password"`
		From               string `yaml:"from"`
		TLS                string `yaml:"tls"` // auto | starttls | ssl | none
		InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
	} `yaml:"smtp"`

	Flags struct {
		Migrate bool `yaml:"migrate"`
	} `yaml:"flags"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	// sane defaults
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Storage.Postgres.MaxConns == 0 {
		c.Storage.Postgres.MaxConns = 10
	}
	if c.Session.Store == "" {
		c.Session.Store = "cookie"
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = "authbridge_session"
	}
	if c.Session.SameSite == "" {
		c.Session.SameSite = "Lax"
	}
	if c.Session.TTL == "" {
		c.Session.TTL = "24h"
	}
	if c.Session.Redis.Prefix == "" {
		c.Session.Redis.Prefix = "sess:"
	}
	if c.Auth.Prefix == "" {
		c.Auth.Prefix = "/auth"
	}
	if c.Auth.SuccessRedirect == "" {
		c.Auth.SuccessRedirect = "/"
	}
	if c.Auth.FailureRedirect == "" {
		c.Auth.FailureRedirect = "/login"
	}
	if c.SMTP.TLS == "" {
		c.SMTP.TLS = "auto"
	}

	// validate string durations
	if c.Storage.Postgres.ConnMaxLifetime != "" {
		if _, err := time.ParseDuration(c.Storage.Postgres.ConnMaxLifetime); err != nil {
			return nil, err
		}
	}
	if _, err := time.ParseDuration(c.Session.TTL); err != nil {
		return nil, err
	}

	c.applyEnvOverrides()
	return &c, nil
}

// AutoCreateEnabled reports the auto-create toggle, on by default.
func (c *Config) AutoCreateEnabled() bool {
	return c.Auth.AutoCreate == nil || *c.Auth.AutoCreate
}

// UpdateIdentityEnabled reports the identity-refresh toggle, on by default.
func (c *Config) UpdateIdentityEnabled() bool {
	return c.Auth.UpdateIdentity == nil || *c.Auth.UpdateIdentity
}

// SessionTTL returns the parsed session TTL. Load already validated it.
func (c *Config) SessionTTL() time.Duration {
	d, _ := time.ParseDuration(c.Session.TTL)
	return d
}

func getEnvStr(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	return v, ok && strings.TrimSpace(v) != ""
}

func getEnvInt(key string) (int, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	return n, err == nil
}

func getEnvBool(key string) (bool, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return false, false
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	return b, err == nil
}

// applyEnvOverrides lets deployment-sensitive values come from the
// environment instead of the file.
func (c *Config) applyEnvOverrides() {
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = v
	}
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvStr("STORAGE_DRIVER"); ok {
		c.Storage.Driver = v
	}
	if v, ok := getEnvStr("STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvStr("SESSION_STORE"); ok {
		c.Session.Store = v
	}
	if v, ok := getEnvStr("SESSION_SECRET"); ok {
		c.Session.Secret = v
	}
	if v, ok := getEnvStr("AUTH_SECRET"); ok {
		c.Auth.Secret = v
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Session.Redis.Addr = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Session.Redis.DB = v
	}
	if v, ok := getEnvStr("SMTP_HOST"); ok {
		c.SMTP.Host = v
	}
	if v, ok := getEnvInt("SMTP_PORT"); ok {
		c.SMTP.Port = v
	}
	if v, ok := getEnvStr("SMTP_USERNAME"); ok {
		c.SMTP.Username = v
	}
	if v, ok := getEnvStr("SMTP_PASSWORD"); ok {
		c.SMTP.Password = v
	}
	if v, ok := getEnvBool("FLAG_MIGRATE"); ok {
		c.Flags.Migrate = v
	}
}

// Validate checks the combinations Load cannot default away. Called once at
// startup; any error is fatal.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "postgres":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			return fmt.Errorf("storage.dsn is required with the postgres driver")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}

	switch c.Session.Store {
	case "cookie", "token":
		if strings.TrimSpace(c.Session.Secret) == "" {
			return fmt.Errorf("session.secret is required with the %s store", c.Session.Store)
		}
	case "redis":
		if strings.TrimSpace(c.Session.Redis.Addr) == "" {
			return fmt.Errorf("session.redis.addr is required with the redis store")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown session.store %q", c.Session.Store)
	}

	if strings.TrimSpace(c.Auth.Secret) == "" {
		return fmt.Errorf("auth.secret is required")
	}

	seen := make(map[string]bool, len(c.Providers))
	for _, p := range c.Providers {
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("provider with empty name")
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate provider %q", p.Name)
		}
		seen[p.Name] = true
		if strings.TrimSpace(p.Strategy) == "" {
			return fmt.Errorf("provider %q: strategy is required", p.Name)
		}
	}

	if c.SMTP.Enabled && strings.TrimSpace(c.SMTP.Host) == "" {
		return fmt.Errorf("smtp.host is required when smtp is enabled")
	}
	return nil
}
