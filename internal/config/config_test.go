package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	c, err := Load(writeConfig(t, "auth:\n  secret: s3cret\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if c.App.Env != "dev" {
		t.Errorf("env = %q", c.App.Env)
	}
	if c.Server.Addr != ":8080" {
		t.Errorf("addr = %q", c.Server.Addr)
	}
	if c.Storage.Driver != "memory" {
		t.Errorf("driver = %q", c.Storage.Driver)
	}
	if c.Session.Store != "cookie" {
		t.Errorf("session store = %q", c.Session.Store)
	}
	if c.Auth.Prefix != "/auth" {
		t.Errorf("prefix = %q", c.Auth.Prefix)
	}
	if c.Auth.FailureRedirect != "/login" {
		t.Errorf("failure redirect = %q", c.Auth.FailureRedirect)
	}
	if got := c.SessionTTL(); got != 24*time.Hour {
		t.Errorf("ttl = %v", got)
	}
	if !c.AutoCreateEnabled() || !c.UpdateIdentityEnabled() {
		t.Error("resolution toggles should default on")
	}
}

func TestLoadExplicitToggles(t *testing.T) {
	c, err := Load(writeConfig(t, `
auth:
  secret: s3cret
  auto_create: false
  update_identity: false
  verification_enabled: true
providers:
  - name: google
    strategy: google
    options:
      client_id: cid
      client_secret: cs
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.AutoCreateEnabled() {
		t.Error("auto_create: false not honored")
	}
	if c.UpdateIdentityEnabled() {
		t.Error("update_identity: false not honored")
	}
	if !c.Auth.VerificationEnabled {
		t.Error("verification_enabled lost")
	}
	if len(c.Providers) != 1 || c.Providers[0].Options["client_id"] != "cid" {
		t.Errorf("providers = %+v", c.Providers)
	}
}

func TestLoadRejectsBadTTL(t *testing.T) {
	if _, err := Load(writeConfig(t, "session:\n  ttl: not-a-duration\n")); err == nil {
		t.Fatal("bad ttl accepted")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "postgres")
	t.Setenv("STORAGE_DSN", "postgres://u:p@localhost/db")
	t.Setenv("AUTH_SECRET", "from-env")

	c, err := Load(writeConfig(t, "auth:\n  secret: from-file\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Storage.Driver != "postgres" || c.Storage.DSN == "" {
		t.Errorf("storage override lost: %+v", c.Storage)
	}
	if c.Auth.Secret != "from-env" {
		t.Errorf("auth secret = %q", c.Auth.Secret)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		c, err := Load(writeConfig(t, "auth:\n  secret: s3cret\nsession:\n  store: memory\n"))
		if err != nil {
			t.Fatal(err)
		}
		return c
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	c := base()
	c.Storage.Driver = "postgres"
	if err := c.Validate(); err == nil {
		t.Error("postgres without dsn accepted")
	}

	c = base()
	c.Session.Store = "cookie"
	c.Session.Secret = ""
	if err := c.Validate(); err == nil {
		t.Error("cookie store without secret accepted")
	}

	c = base()
	c.Session.Store = "redis"
	if err := c.Validate(); err == nil {
		t.Error("redis store without addr accepted")
	}

	c = base()
	c.Auth.Secret = ""
	if err := c.Validate(); err == nil {
		t.Error("missing auth secret accepted")
	}

	c = base()
	c.Providers = []ProviderConfig{
		{Name: "google", Strategy: "google"},
		{Name: "google", Strategy: "google"},
	}
	if err := c.Validate(); err == nil {
		t.Error("duplicate provider accepted")
	}

	c = base()
	c.Providers = []ProviderConfig{{Name: "google"}}
	if err := c.Validate(); err == nil {
		t.Error("provider without strategy accepted")
	}

	c = base()
	c.SMTP.Enabled = true
	if err := c.Validate(); err == nil {
		t.Error("smtp enabled without host accepted")
	}
}
