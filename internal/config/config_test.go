package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JakeFAU/profile-crawler/internal/crawler"
	"github.com/JakeFAU/profile-crawler/internal/report"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
logging:
  development: false
  level: warn
browser:
  headless: false
  user_agent: test-agent
  nav_timeout_seconds: 30
  element_timeout_seconds: 5
crawl:
  pin_grace: 5
  max_posts: 40
  pause_min_ms: 10
  pause_max_ms: 20
selectors:
  next:
    - "css:button.next"
    - "xpath://a[@rel='next']"
output:
  dir: out
  empty_policy: skip
storage:
  backend: gcs
  bucket: bucket
  prefix: logs
db:
  dsn: postgres://localhost/crawler
  max_conns: 8
pubsub:
  project_id: proj
  topic_name: runs
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
sentiment:
  backend: remote
  endpoint: https://sentiment.example/score
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.Crawl.PinGrace != 5 || cfg.Crawl.MaxPosts != 40 {
		t.Fatalf("expected crawl overrides to apply: %+v", cfg.Crawl)
	}
	if cfg.Crawl.MaxLoadMoreRounds != 50 {
		t.Fatalf("expected default load-more budget, got %d", cfg.Crawl.MaxLoadMoreRounds)
	}
	if cfg.Browser.Headless || cfg.Browser.UserAgent != "test-agent" {
		t.Fatalf("expected browser overrides to apply: %+v", cfg.Browser)
	}
	if got := cfg.NavTimeout(); got != 30*time.Second {
		t.Fatalf("expected nav timeout 30s, got %v", got)
	}
	if lo, hi := cfg.PauseBounds(); lo != 10*time.Millisecond || hi != 20*time.Millisecond {
		t.Fatalf("unexpected pause bounds %v..%v", lo, hi)
	}
	if cfg.EmptyPolicy() != report.EmptySkip {
		t.Fatalf("expected skip policy, got %q", cfg.EmptyPolicy())
	}
	if cfg.DB.MaxConns != 8 || cfg.DB.PostsTable != "posts" {
		t.Fatalf("unexpected db config %+v", cfg.DB)
	}

	locs, err := cfg.ResolvedLocators()
	if err != nil {
		t.Fatalf("ResolvedLocators() error = %v", err)
	}
	if len(locs.Next) != 2 || locs.Next[0] != crawler.CSS("button.next") || locs.Next[1] != crawler.XPath("//a[@rel='next']") {
		t.Fatalf("unexpected next locators %v", locs.Next)
	}
	if len(locs.Timestamp) == 0 {
		t.Fatalf("expected default timestamp locators to remain")
	}
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Crawl.PinGrace != crawler.DefaultPinGrace {
		t.Fatalf("expected default pin grace, got %d", cfg.Crawl.PinGrace)
	}
	if cfg.Storage.Backend != BackendLocal || cfg.Output.EmptyPolicy != "metadata" {
		t.Fatalf("unexpected defaults %+v %+v", cfg.Storage, cfg.Output)
	}
	if cfg.Sentiment.Backend != SentimentLexicon {
		t.Fatalf("expected lexicon sentiment, got %q", cfg.Sentiment.Backend)
	}
	if got := Default(); got.Server.Port != cfg.Server.Port || got.Crawl.LoginURL != cfg.Crawl.LoginURL {
		t.Fatalf("Default() disagrees with Load(\"\")")
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Default()

	tests := []struct {
		name string
		edit func(*Config)
		want string
	}{
		{"invalid port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"negative pin grace", func(c *Config) { c.Crawl.PinGrace = -2 }, "crawl.pin_grace"},
		{"negative max posts", func(c *Config) { c.Crawl.MaxPosts = -1 }, "crawl.max_posts"},
		{"negative action rate", func(c *Config) { c.Crawl.ActionsPerMinute = -1 }, "crawl.actions_per_minute"},
		{"zero load more", func(c *Config) { c.Crawl.MaxLoadMoreRounds = 0 }, "crawl.max_load_more_rounds"},
		{"reversed pause", func(c *Config) { c.Crawl.PauseMinMs = 10; c.Crawl.PauseMaxMs = 5 }, "crawl.pause_min_ms"},
		{"zero nav timeout", func(c *Config) { c.Browser.NavTimeoutSeconds = 0 }, "browser.nav_timeout_seconds"},
		{"unknown empty policy", func(c *Config) { c.Output.EmptyPolicy = "drop" }, "output.empty_policy"},
		{"bad selector", func(c *Config) { c.Selectors.Next = []string{"xpath:"} }, "selectors.next"},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "s3" }, "storage.backend"},
		{"gcs without bucket", func(c *Config) { c.Storage.Backend = BackendGCS }, "storage.bucket"},
		{"half pubsub", func(c *Config) { c.PubSub.ProjectID = "p" }, "pubsub.project_id"},
		{"auth missing api key", func(c *Config) { c.Auth.Enabled = true }, "auth.api_key"},
		{"remote without endpoint", func(c *Config) { c.Sentiment.Backend = SentimentRemote }, "sentiment.endpoint"},
		{"login without url", func(c *Config) { c.Crawl.Username = "u"; c.Crawl.LoginURL = "" }, "crawl.login_url"},
	}

	if err := base.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			cfg.Selectors = SelectorsConfig{}
			tt.edit(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
