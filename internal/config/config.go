// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/profile-crawler/internal/crawler"
	"github.com/JakeFAU/profile-crawler/internal/extract"
	"github.com/JakeFAU/profile-crawler/internal/report"
)

// Storage backends.
const (
	BackendLocal  = "local"
	BackendMemory = "memory"
	BackendGCS    = "gcs"
)

// Sentiment backends.
const (
	SentimentLexicon = "lexicon"
	SentimentRemote  = "remote"
)

// Config captures all knobs loaded via Viper.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Crawl     CrawlConfig     `mapstructure:"crawl"`
	Selectors SelectorsConfig `mapstructure:"selectors"`
	Output    OutputConfig    `mapstructure:"output"`
	Storage   StorageConfig   `mapstructure:"storage"`
	DB        DBConfig        `mapstructure:"db"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Sentiment SentimentConfig `mapstructure:"sentiment"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// TelemetryConfig names the service in traces; an empty name disables tracing.
type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// BrowserConfig configures the Chrome instance driven by chromedp.
type BrowserConfig struct {
	Headless              bool   `mapstructure:"headless"`
	NoSandbox             bool   `mapstructure:"no_sandbox"`
	ExecPath              string `mapstructure:"exec_path"`
	UserAgent             string `mapstructure:"user_agent"`
	UserDataDir           string `mapstructure:"user_data_dir"`
	WindowWidth           int    `mapstructure:"window_width"`
	WindowHeight          int    `mapstructure:"window_height"`
	NavTimeoutSeconds     int    `mapstructure:"nav_timeout_seconds"`
	ElementTimeoutSeconds int    `mapstructure:"element_timeout_seconds"`
}

// CrawlConfig governs the walk over a profile's posts.
type CrawlConfig struct {
	LoginURL              string `mapstructure:"login_url"`
	Username              string `mapstructure:"username"`
	Password              string `mapstructure:"password"`
	PinGrace              int    `mapstructure:"pin_grace"`
	MaxPosts              int    `mapstructure:"max_posts"`
	MaxLoadMoreRounds     int    `mapstructure:"max_load_more_rounds"`
	StallRounds           int    `mapstructure:"stall_rounds"`
	PauseMinMs            int    `mapstructure:"pause_min_ms"`
	PauseMaxMs            int    `mapstructure:"pause_max_ms"`
	AdvanceTimeoutSeconds int    `mapstructure:"advance_timeout_seconds"`
	VisitedCapacity       int    `mapstructure:"visited_capacity"`
	// ActionsPerMinute caps paced page actions; 0 disables the cap.
	ActionsPerMinute float64 `mapstructure:"actions_per_minute"`
}

// SelectorsConfig overrides the built-in locators field by field. Each
// entry is "css:<selector>", "xpath:<expr>", or a bare expression.
type SelectorsConfig struct {
	Timestamp        []string `mapstructure:"timestamp"`
	LikeCount        []string `mapstructure:"like_count"`
	CommentContainer []string `mapstructure:"comment_container"`
	CommentItems     []string `mapstructure:"comment_items"`
	Caption          []string `mapstructure:"caption"`
	LoadMore         []string `mapstructure:"load_more"`
	Next             []string `mapstructure:"next"`
	FirstPost        []string `mapstructure:"first_post"`
	UsernameField    []string `mapstructure:"username_field"`
	PasswordField    []string `mapstructure:"password_field"`
	LoginSubmit      []string `mapstructure:"login_submit"`
}

// OutputConfig controls where CSV files land and how empty posts render.
type OutputConfig struct {
	Dir         string `mapstructure:"dir"`
	EmptyPolicy string `mapstructure:"empty_policy"`
}

// StorageConfig selects the artifact blob store.
type StorageConfig struct {
	Backend  string `mapstructure:"backend"`
	LocalDir string `mapstructure:"local_dir"`
	Bucket   string `mapstructure:"bucket"`
	Prefix   string `mapstructure:"prefix"`
}

// DBConfig controls access to the post store. An empty DSN disables it.
type DBConfig struct {
	DSN                    string `mapstructure:"dsn"`
	PostsTable             string `mapstructure:"posts_table"`
	CommentsTable          string `mapstructure:"comments_table"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeMinutes int    `mapstructure:"max_conn_lifetime_minutes"`
}

// PubSubConfig holds metadata for run-completion notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// SentimentConfig selects the comment sentiment scorer.
type SentimentConfig struct {
	Backend        string `mapstructure:"backend"`
	Endpoint       string `mapstructure:"endpoint"`
	Token          string `mapstructure:"token"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Default returns the configuration Load produces without a file or environment.
func Default() Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.no_sandbox", false)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.user_data_dir", "")
	v.SetDefault("browser.window_width", 1280)
	v.SetDefault("browser.window_height", 900)
	v.SetDefault("browser.nav_timeout_seconds", 45)
	v.SetDefault("browser.element_timeout_seconds", 15)
	v.SetDefault("crawl.login_url", "https://www.instagram.com/accounts/login/")
	v.SetDefault("crawl.username", "")
	v.SetDefault("crawl.password", "")
	v.SetDefault("crawl.pin_grace", crawler.DefaultPinGrace)
	v.SetDefault("crawl.max_posts", 0)
	v.SetDefault("crawl.max_load_more_rounds", 50)
	v.SetDefault("crawl.stall_rounds", 3)
	v.SetDefault("crawl.pause_min_ms", 1500)
	v.SetDefault("crawl.pause_max_ms", 4000)
	v.SetDefault("crawl.advance_timeout_seconds", 15)
	v.SetDefault("crawl.visited_capacity", crawler.DefaultVisitedCapacity)
	v.SetDefault("crawl.actions_per_minute", 0)
	v.SetDefault("output.dir", "output")
	v.SetDefault("output.empty_policy", string(report.EmptyMetadata))
	v.SetDefault("storage.backend", BackendLocal)
	v.SetDefault("storage.local_dir", "artifacts")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.prefix", "runs")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.posts_table", "posts")
	v.SetDefault("db.comments_table", "post_comments")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime_minutes", 30)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 30)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("sentiment.backend", SentimentLexicon)
	v.SetDefault("sentiment.endpoint", "")
	v.SetDefault("sentiment.token", "")
	v.SetDefault("sentiment.timeout_seconds", 10)
	v.SetDefault("telemetry.service_name", "profile-crawler")
	for _, key := range selectorKeys {
		v.SetDefault("selectors."+key, []string{})
	}
}

var selectorKeys = []string{
	"timestamp", "like_count", "comment_container", "comment_items", "caption",
	"load_more", "next", "first_post", "username_field", "password_field", "login_submit",
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Browser.NavTimeoutSeconds <= 0 {
		return fmt.Errorf("browser.nav_timeout_seconds must be > 0")
	}
	if c.Browser.ElementTimeoutSeconds <= 0 {
		return fmt.Errorf("browser.element_timeout_seconds must be > 0")
	}
	if c.Crawl.PinGrace < -1 {
		return fmt.Errorf("crawl.pin_grace must be >= -1")
	}
	if c.Crawl.MaxPosts < 0 {
		return fmt.Errorf("crawl.max_posts must be >= 0")
	}
	if c.Crawl.MaxLoadMoreRounds <= 0 {
		return fmt.Errorf("crawl.max_load_more_rounds must be > 0")
	}
	if c.Crawl.PauseMinMs < 0 || c.Crawl.PauseMaxMs < c.Crawl.PauseMinMs {
		return fmt.Errorf("crawl.pause_min_ms and crawl.pause_max_ms must satisfy 0 <= min <= max")
	}
	if c.Crawl.ActionsPerMinute < 0 {
		return fmt.Errorf("crawl.actions_per_minute must be >= 0")
	}
	if c.Crawl.AdvanceTimeoutSeconds <= 0 {
		return fmt.Errorf("crawl.advance_timeout_seconds must be > 0")
	}
	if c.Crawl.Username != "" && c.Crawl.LoginURL == "" {
		return fmt.Errorf("crawl.login_url must be set when crawl.username is set")
	}
	if _, err := report.ParseEmptyPolicy(c.Output.EmptyPolicy); err != nil {
		return fmt.Errorf("output.empty_policy: %w", err)
	}
	if _, err := c.Selectors.Locators(); err != nil {
		return err
	}
	switch c.Storage.Backend {
	case BackendLocal:
		if strings.TrimSpace(c.Storage.LocalDir) == "" {
			return fmt.Errorf("storage.local_dir must be set for the local backend")
		}
	case BackendMemory:
	case BackendGCS:
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend must be one of local, memory, gcs (got %q)", c.Storage.Backend)
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set together")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Sentiment.Backend {
	case SentimentLexicon:
	case SentimentRemote:
		if c.Sentiment.Endpoint == "" {
			return fmt.Errorf("sentiment.endpoint must be set for the remote backend")
		}
	default:
		return fmt.Errorf("sentiment.backend must be lexicon or remote (got %q)", c.Sentiment.Backend)
	}
	return nil
}

// Locators parses every configured override. Unset fields stay empty.
func (s SelectorsConfig) Locators() (extract.Locators, error) {
	var out extract.Locators
	fields := []struct {
		key  string
		raw  []string
		dest *crawler.LocatorSet
	}{
		{"timestamp", s.Timestamp, &out.Timestamp},
		{"like_count", s.LikeCount, &out.LikeCount},
		{"comment_container", s.CommentContainer, &out.CommentContainer},
		{"comment_items", s.CommentItems, &out.CommentItems},
		{"caption", s.Caption, &out.Caption},
		{"load_more", s.LoadMore, &out.LoadMore},
		{"next", s.Next, &out.Next},
		{"first_post", s.FirstPost, &out.FirstPost},
		{"username_field", s.UsernameField, &out.UsernameField},
		{"password_field", s.PasswordField, &out.PasswordField},
		{"login_submit", s.LoginSubmit, &out.LoginSubmit},
	}
	for _, f := range fields {
		if len(f.raw) == 0 {
			continue
		}
		set, err := crawler.ParseLocatorSet(f.raw)
		if err != nil {
			return extract.Locators{}, fmt.Errorf("selectors.%s: %w", f.key, err)
		}
		*f.dest = set
	}
	return out, nil
}

// ResolvedLocators layers the configured overrides over the built-in defaults.
func (c Config) ResolvedLocators() (extract.Locators, error) {
	overrides, err := c.Selectors.Locators()
	if err != nil {
		return extract.Locators{}, err
	}
	return extract.DefaultLocators().Override(overrides), nil
}

// EmptyPolicy returns the parsed output.empty_policy.
func (c Config) EmptyPolicy() report.EmptyPolicy {
	p, err := report.ParseEmptyPolicy(c.Output.EmptyPolicy)
	if err != nil {
		return report.EmptyMetadata
	}
	return p
}

// NavTimeout converts browser.nav_timeout_seconds.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Browser.NavTimeoutSeconds) * time.Second
}

// ElementTimeout converts browser.element_timeout_seconds.
func (c Config) ElementTimeout() time.Duration {
	return time.Duration(c.Browser.ElementTimeoutSeconds) * time.Second
}

// PauseBounds converts the crawl jitter bounds.
func (c Config) PauseBounds() (time.Duration, time.Duration) {
	return time.Duration(c.Crawl.PauseMinMs) * time.Millisecond,
		time.Duration(c.Crawl.PauseMaxMs) * time.Millisecond
}

// AdvanceTimeout converts crawl.advance_timeout_seconds.
func (c Config) AdvanceTimeout() time.Duration {
	return time.Duration(c.Crawl.AdvanceTimeoutSeconds) * time.Second
}

// RequestTimeout converts server.request_timeout_seconds.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}
