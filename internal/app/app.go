// Package app assembles the service from configuration and runs it until a
// signal arrives or the notification pipeline fails.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/segmentio/kafka-go"

	"github.com/user/githubalerts/internal/broker"
	"github.com/user/githubalerts/internal/codec"
	"github.com/user/githubalerts/internal/config"
	"github.com/user/githubalerts/internal/github"
	"github.com/user/githubalerts/internal/lifecycle"
	"github.com/user/githubalerts/internal/notifier"
	"github.com/user/githubalerts/internal/server"
	"github.com/user/githubalerts/internal/storage"
	"github.com/user/githubalerts/internal/subscription"
	"github.com/user/githubalerts/internal/tracing"
	"github.com/user/githubalerts/pkg/logger"
)

// ErrPipelineStopped is returned by Run when the notification pipeline ends
// on its own.
var ErrPipelineStopped = errors.New("notification pipeline stopped")

// App holds the running components.
type App struct {
	cfg     *config.Config
	version string

	stack    lifecycle.Stack
	codec    codec.Codec
	db       *storage.Database
	server   *server.Server
	pipeline *notifier.Pipeline
}

// New creates an app from a validated configuration.
func New(cfg *config.Config, version string) *App {
	return &App{cfg: cfg, version: version}
}

// Start acquires every component in dependency order: tracing, the store,
// the topics, the lifecycle producer, the GitHub client and coordinator, the
// pipeline and finally the HTTP listener. If any step fails, what was
// acquired so far is released in reverse.
func (a *App) Start(ctx context.Context) error {
	c, err := codec.ByName(a.cfg.Kafka.Codec)
	if err != nil {
		return err
	}
	a.codec = c
	compression, err := broker.ParseCompression(a.cfg.Kafka.Compression)
	if err != nil {
		return err
	}
	brokers := a.cfg.Kafka.Brokers()
	newWriter := func(topic string, balancer kafka.Balancer) *kafka.Writer {
		w := broker.NewWriter(brokers, topic, balancer)
		w.Compression = compression
		return w
	}

	if err := a.stack.Acquire(ctx, "tracing", func(ctx context.Context) (lifecycle.Release, error) {
		shutdown, err := tracing.Setup(ctx, a.cfg.OTel, a.version)
		return lifecycle.Release(shutdown), err
	}); err != nil {
		return err
	}

	if err := a.stack.Acquire(ctx, "store", func(ctx context.Context) (lifecycle.Release, error) {
		db, err := storage.NewDatabase(ctx, a.cfg.Database.Driver, a.cfg.Database.DSN)
		if err != nil {
			return nil, err
		}
		a.db = db
		logger.Info().Str("driver", a.cfg.Database.Driver).Msg("Database initialized")
		return func(context.Context) error { return db.Close() }, nil
	}); err != nil {
		return err
	}

	if a.cfg.Kafka.CreateTopics {
		if err := a.stack.Acquire(ctx, "topics", func(ctx context.Context) (lifecycle.Release, error) {
			return nil, broker.EnsureTopics(ctx, brokers, Topics(a.cfg.Kafka.Topics))
		}); err != nil {
			return err
		}
	}

	var watch *broker.WatchProducer
	if err := a.stack.Acquire(ctx, "lifecycle producer", func(context.Context) (lifecycle.Release, error) {
		w := newWriter(a.cfg.Kafka.Topics.Subscription.Name, &kafka.Hash{})
		watch = broker.NewWatchProducer(w, a.codec)
		return func(context.Context) error { return watch.Close() }, nil
	}); err != nil {
		return err
	}

	var gh *github.Client
	if err := a.stack.Acquire(ctx, "github client", func(context.Context) (lifecycle.Release, error) {
		var err error
		gh, err = github.NewClient(github.Options{
			BaseURL:         a.cfg.GitHub.URL,
			Token:           a.cfg.GitHub.Token,
			Attempts:        a.cfg.GitHub.RetryAttempts,
			InitialInterval: a.cfg.GitHub.RetryInitial,
		})
		return nil, err
	}); err != nil {
		return err
	}

	users := storage.NewUserStore(a.db)
	subs := storage.NewSubscriptionStore(a.db)
	svc := subscription.NewService(subs, users, gh, watch)

	if err := a.stack.Acquire(ctx, "pipeline", func(ctx context.Context) (lifecycle.Release, error) {
		reader := broker.NewReader(brokers, a.cfg.Kafka.Topics.Event.Name, a.cfg.Kafka.GroupID)
		writer := newWriter(a.cfg.Kafka.Topics.Notification.Name, nil)
		a.pipeline = notifier.NewPipeline(reader, writer, notifier.NewMatcher(subs, users), a.codec, a.cfg.Pipeline.RecordTimeout)
		// The loop outlives the startup context; only Stop ends it.
		a.pipeline.Start(context.WithoutCancel(ctx))
		return func(context.Context) error {
			// A loop failure is already logged and reported by Run.
			_ = a.pipeline.Stop()
			return errors.Join(reader.Close(), writer.Close())
		}, nil
	}); err != nil {
		return err
	}

	var webhook *github.WebhookHandler
	if a.cfg.GitHub.WebhookEnabled {
		if err := a.stack.Acquire(ctx, "event producer", func(context.Context) (lifecycle.Release, error) {
			events := broker.NewEventProducer(newWriter(a.cfg.Kafka.Topics.Event.Name, nil))
			webhook = github.NewWebhookHandler(a.cfg.GitHub.WebhookSecret, events)
			return func(context.Context) error { return events.Close() }, nil
		}); err != nil {
			return err
		}
	}

	return a.stack.Acquire(ctx, "http server", func(context.Context) (lifecycle.Release, error) {
		opts := server.Options{
			Addr:               a.cfg.ServerAddress(),
			Subscriptions:      svc,
			SlackSigningSecret: a.cfg.Slack.SigningSecret,
			Checks: map[string]server.HealthCheck{
				"store":  a.db.PingContext,
				"broker": func(ctx context.Context) error { return broker.Ping(ctx, brokers) },
			},
			Development: a.cfg.Server.Development(),
			PreWait:     a.cfg.Server.PreWait,
			Grace:       a.cfg.Server.Grace,
			Timeout:     a.cfg.Server.Timeout,
		}
		if webhook != nil {
			opts.Webhook = webhook
		}
		a.server = server.New(opts)
		if err := a.server.Start(); err != nil {
			return nil, err
		}
		return a.server.Shutdown, nil
	})
}

// Run starts the app and blocks until ctx is cancelled, the pipeline ends or
// the HTTP server fails, then shuts down. A pipeline or server failure is
// returned so the process exits non-zero and can be restarted.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}
	logger.Info().Str("version", a.version).Msg("Service started")

	var cause error
	select {
	case <-ctx.Done():
		logger.Info().Msg("Shutting down...")
	case <-a.pipeline.Done():
		cause = ErrPipelineStopped
		logger.Error().Err(a.pipeline.Err()).Msg("Shutting down after pipeline failure")
	case err := <-a.server.Errors():
		cause = fmt.Errorf("http server: %w", err)
		logger.Error().Err(cause).Msg("Shutting down after server failure")
	}

	err := a.Shutdown(context.WithoutCancel(ctx))
	// The loop error itself is carried by the pipeline release.
	if cause == nil && a.pipeline.Err() != nil {
		cause = ErrPipelineStopped
	}
	if err == nil {
		logger.Info().Msg("Shutdown complete")
	}
	return errors.Join(cause, err)
}

// stopPipeline ends the loop, then closes its broker handles. The loop error
// is returned alongside any close error.
func stopPipeline(p *notifier.Pipeline, handles ...io.Closer) lifecycle.Release {
	return func(context.Context) error {
		var errs []error
		if err := p.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop pipeline: %w", err))
		}
		for _, h := range handles {
			errs = append(errs, h.Close())
		}
		return errors.Join(errs...)
	}
}

// Shutdown releases every component in reverse acquisition order.
func (a *App) Shutdown(ctx context.Context) error {
	return a.stack.Release(ctx)
}

// Topics converts the configured topics for the admin client.
func Topics(cfg config.TopicsConfig) []broker.Topic {
	var out []broker.Topic
	for _, t := range cfg.All() {
		out = append(out, broker.Topic{
			Name:              t.Name,
			Partitions:        t.Partitions,
			ReplicationFactor: t.ReplicationFactor,
		})
	}
	return out
}
