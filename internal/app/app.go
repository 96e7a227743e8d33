// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	gpubsub "cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/profile-crawler/internal/config"
	"github.com/JakeFAU/profile-crawler/internal/crawler"
	"github.com/JakeFAU/profile-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/profile-crawler/internal/sentiment"
	"github.com/JakeFAU/profile-crawler/internal/storage/gcs"
	"github.com/JakeFAU/profile-crawler/internal/storage/local"
	"github.com/JakeFAU/profile-crawler/internal/storage/memory"
	"github.com/JakeFAU/profile-crawler/internal/storage/postgres"
	"github.com/JakeFAU/profile-crawler/internal/telemetry"
)

// PostStore persists runs and their records.
type PostStore interface {
	crawler.RecordSink
	StartRun(ctx context.Context, runID string, startedAt time.Time, profiles []string, window crawler.Window) error
	CompleteRun(ctx context.Context, runID string, finishedAt time.Time, status string, errText string) error
	Close()
}

// App holds the shared, long-lived services built from one Config.
// It is initialized once by the CLI and passed to the commands that need it.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	blobs     crawler.BlobStore
	posts     PostStore
	publisher crawler.Publisher
	scorer    sentiment.Scorer
	closers   []func() error
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config {
	return a.cfg
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Blobs returns the artifact store.
func (a *App) Blobs() crawler.BlobStore {
	return a.blobs
}

// Posts returns the post store, or nil when db.dsn is empty.
func (a *App) Posts() PostStore {
	return a.posts
}

// Publisher returns the completion publisher, or nil when Pub/Sub is not configured.
func (a *App) Publisher() crawler.Publisher {
	return a.publisher
}

// Scorer returns the comment sentiment scorer.
func (a *App) Scorer() sentiment.Scorer {
	return a.scorer
}

// Option customizes New.
type Option func(*options)

type options struct {
	storageClient func(context.Context) (*storage.Client, error)
	pubsubClient  func(context.Context, string) (*gpubsub.Client, error)
	postStore     func(context.Context, postgres.Config) (PostStore, error)
}

// WithStorageClient overrides how the GCS client is built.
func WithStorageClient(f func(context.Context) (*storage.Client, error)) Option {
	return func(o *options) { o.storageClient = f }
}

// WithPubSubClient overrides how the Pub/Sub client is built.
func WithPubSubClient(f func(context.Context, string) (*gpubsub.Client, error)) Option {
	return func(o *options) { o.pubsubClient = f }
}

// WithPostStore overrides how the Postgres post store is opened.
func WithPostStore(f func(context.Context, postgres.Config) (PostStore, error)) Option {
	return func(o *options) { o.postStore = f }
}

// New creates the services described by cfg. It fails fast when a
// configured backend cannot be initialized and releases whatever was
// already opened.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{
		storageClient: func(ctx context.Context) (*storage.Client, error) { return storage.NewClient(ctx) },
		pubsubClient: func(ctx context.Context, project string) (*gpubsub.Client, error) {
			return gpubsub.NewClient(ctx, project)
		},
		postStore: func(ctx context.Context, c postgres.Config) (PostStore, error) {
			store, err := postgres.New(ctx, c)
			if err != nil {
				return nil, err
			}
			if err := store.EnsureSchema(ctx); err != nil {
				store.Close()
				return nil, err
			}
			return store, nil
		},
	}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{cfg: cfg, logger: logger}
	l := logger.Named("app")

	if name := cfg.Telemetry.ServiceName; name != "" {
		tp, err := telemetry.InitTracerProvider(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracing: %w", err)
		}
		a.closers = append(a.closers, func() error { return tp.Shutdown(context.Background()) })
	}

	blobs, err := a.buildBlobStore(ctx, o)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.blobs = blobs
	l.Info("artifact store ready", zap.String("backend", cfg.Storage.Backend))

	if cfg.DB.DSN != "" {
		posts, err := o.postStore(ctx, postgres.Config{
			DSN:             cfg.DB.DSN,
			PostsTable:      cfg.DB.PostsTable,
			CommentsTable:   cfg.DB.CommentsTable,
			MaxConns:        cfg.DB.MaxConns,
			MinConns:        cfg.DB.MinConns,
			MaxConnLifetime: time.Duration(cfg.DB.MaxConnLifetimeMinutes) * time.Minute,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize post store: %w", err)
		}
		a.posts = posts
		a.closers = append(a.closers, func() error { posts.Close(); return nil })
		l.Info("post store ready", zap.String("table", cfg.DB.PostsTable))
	}

	if cfg.PubSub.ProjectID != "" {
		client, err := o.pubsubClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize pubsub: %w", err)
		}
		pub := pubsub.New(client, cfg.PubSub.TopicName)
		a.publisher = pub
		a.closers = append(a.closers, pub.Close)
		l.Info("pubsub publisher ready", zap.String("topic", cfg.PubSub.TopicName))
	}

	scorer, err := buildScorer(cfg.Sentiment)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize sentiment: %w", err)
	}
	a.scorer = scorer
	return a, nil
}

func (a *App) buildBlobStore(ctx context.Context, o options) (crawler.BlobStore, error) {
	s := a.cfg.Storage
	switch s.Backend {
	case config.BackendMemory:
		return memory.NewBlobStore(), nil
	case config.BackendGCS:
		client, err := o.storageClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		store, err := gcs.New(client, gcs.Config{Bucket: s.Bucket, Prefix: s.Prefix})
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	case config.BackendLocal, "":
		return local.New(local.Config{BaseDir: s.LocalDir, Prefix: s.Prefix})
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", s.Backend)
	}
}

func buildScorer(cfg config.SentimentConfig) (sentiment.Scorer, error) {
	if cfg.Backend == config.SentimentRemote {
		return sentiment.NewRemote(sentiment.RemoteConfig{
			Endpoint: cfg.Endpoint,
			Token:    cfg.Token,
			Timeout:  time.Duration(cfg.TimeoutSeconds) * time.Second,
		})
	}
	return sentiment.NewLexicon(nil, nil), nil
}

// Close shuts down the services in reverse order of creation and flushes the logger.
func (a *App) Close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("error closing services", zap.Error(err))
	}
	_ = a.logger.Sync()
}
