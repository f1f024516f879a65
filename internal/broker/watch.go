package broker

import (
	"context"
	"fmt"

	"github.com/user/githubalerts/internal/codec"
	"github.com/user/githubalerts/internal/domain"
	"github.com/user/githubalerts/internal/metrics"
	"github.com/user/githubalerts/pkg/logger"
)

// WatchProducer publishes repository watch lifecycle events. It is safe for
// concurrent use when the underlying writer is.
type WatchProducer struct {
	w     Writer
	codec codec.Codec
}

// NewWatchProducer creates a producer writing to w.
func NewWatchProducer(w Writer, c codec.Codec) *WatchProducer {
	return &WatchProducer{w: w, codec: c}
}

// Publish announces that repo gained its first subscriber.
func (p *WatchProducer) Publish(ctx context.Context, repo domain.Repository) error {
	return p.send(ctx, domain.WatchLifecycleEvent{Repository: repo, Kind: domain.WatchCreated})
}

// Delete announces that repo lost its last subscriber.
func (p *WatchProducer) Delete(ctx context.Context, repo domain.Repository) error {
	return p.send(ctx, domain.WatchLifecycleEvent{Repository: repo, Kind: domain.WatchDeleted})
}

func (p *WatchProducer) send(ctx context.Context, ev domain.WatchLifecycleEvent) error {
	msg, err := EncodeLifecycle(p.codec, ev)
	if err != nil {
		return err
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s for %s: %w", ev.Kind, ev.Repository, err)
	}
	metrics.LifecycleEvents.WithLabelValues(string(ev.Kind)).Inc()
	logger.Info().
		Str("repository", ev.Repository.String()).
		Str("kind", string(ev.Kind)).
		Msg("Watch lifecycle event published")
	return nil
}

// Close closes the underlying writer.
func (p *WatchProducer) Close() error {
	return p.w.Close()
}
