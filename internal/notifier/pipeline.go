package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/user/githubalerts/internal/broker"
	"github.com/user/githubalerts/internal/codec"
	"github.com/user/githubalerts/internal/domain"
	"github.com/user/githubalerts/internal/metrics"
	"github.com/user/githubalerts/pkg/logger"
)

// EventMatcher resolves the notifications for one raw event.
type EventMatcher interface {
	Match(ctx context.Context, raw string) ([]domain.Notification, error)
}

// Pipeline consumes raw events, fans each out to one notification per
// subscriber and commits the event offset once every notification has been
// acknowledged. Delivery is at least once: a failure before the commit leaves
// the event to be consumed again.
type Pipeline struct {
	reader        broker.Reader
	writer        broker.Writer
	matcher       EventMatcher
	codec         codec.Codec
	recordTimeout time.Duration
	tracer        trace.Tracer

	cancel context.CancelFunc
	wg     sync.WaitGroup
	done   chan struct{}
	mu     sync.Mutex
	err    error
}

// NewPipeline creates a pipeline reading from reader and producing to writer.
// recordTimeout bounds the work on a single event, including after Stop.
func NewPipeline(reader broker.Reader, writer broker.Writer, matcher EventMatcher, c codec.Codec, recordTimeout time.Duration) *Pipeline {
	if recordTimeout <= 0 {
		recordTimeout = 30 * time.Second
	}
	return &Pipeline{
		reader:        reader,
		writer:        writer,
		matcher:       matcher,
		codec:         c,
		recordTimeout: recordTimeout,
		tracer:        otel.Tracer("github.com/user/githubalerts/internal/notifier"),
		done:          make(chan struct{}),
	}
}

// Start runs the loop in the background until ctx is cancelled, Stop is
// called or processing fails.
func (p *Pipeline) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer close(p.done)
		err := p.Run(ctx)
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
		if err != nil {
			logger.Error().Err(err).Msg("Notification pipeline stopped")
		}
	}()
	logger.Info().Msg("Notification pipeline started")
}

// Stop cancels the loop, waits for the event in flight and returns the
// error the loop ended with, if any.
func (p *Pipeline) Stop() error {
	logger.Info().Msg("Stopping notification pipeline")
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	return p.Err()
}

// Done is closed when the loop has returned.
func (p *Pipeline) Done() <-chan struct{} {
	return p.done
}

// Err returns the error the loop ended with.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Run processes events until ctx is cancelled, which returns nil, or until
// fetching, producing or committing fails. Events that cannot be matched are
// logged and committed without notifications.
func (p *Pipeline) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		msg, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch event: %w", err)
		}
		if err := p.process(ctx, msg); err != nil {
			return err
		}
	}
}

// process handles one event to completion. It runs detached from ctx
// cancellation so an event is never left half produced because of shutdown.
func (p *Pipeline) process(ctx context.Context, msg kafka.Message) (err error) {
	start := time.Now()
	carrier := broker.HeaderCarrier{Headers: &msg.Headers}
	recCtx := otel.GetTextMapPropagator().Extract(context.WithoutCancel(ctx), carrier)
	recCtx, cancel := context.WithTimeout(recCtx, p.recordTimeout)
	defer cancel()

	recCtx, span := p.tracer.Start(recCtx, "pipeline.record", trace.WithAttributes(
		attribute.String("messaging.destination.name", msg.Topic),
		attribute.Int("messaging.kafka.partition", msg.Partition),
		attribute.Int64("messaging.kafka.offset", msg.Offset),
	))
	defer span.End()

	log := logger.Ctx(recCtx).With().
		Str("topic", msg.Topic).
		Int("partition", msg.Partition).
		Int64("offset", msg.Offset).
		Logger()

	result := metrics.ResultDelivered
	defer func() {
		if err != nil {
			result = metrics.ResultFailed
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		metrics.PipelineRecords.WithLabelValues(result).Inc()
		metrics.PipelineRecordDuration.Observe(time.Since(start).Seconds())
	}()

	notifications, err := p.matcher.Match(recCtx, string(msg.Value))
	var matchErr *MatchError
	switch {
	case errors.As(err, &matchErr):
		log.Info().
			Str("kind", string(matchErr.Kind)).
			Str("fragment", matchErr.Fragment).
			Msg("Event skipped")
		notifications = nil
		result = metrics.ResultSkipped
	case err != nil:
		return fmt.Errorf("match event at offset %d: %w", msg.Offset, err)
	case len(notifications) == 0:
		result = metrics.ResultNoMatch
	}

	if len(notifications) > 0 {
		out := make([]kafka.Message, 0, len(notifications))
		for _, n := range notifications {
			m, err := broker.EncodeNotification(p.codec, n)
			if err != nil {
				return err
			}
			otel.GetTextMapPropagator().Inject(recCtx, broker.HeaderCarrier{Headers: &m.Headers})
			out = append(out, m)
		}
		if err := p.writer.WriteMessages(recCtx, out...); err != nil {
			var writeErrs kafka.WriteErrors
			if errors.As(err, &writeErrs) {
				log.Error().
					Int("failed", writeErrs.Count()).
					Int("total", len(out)).
					Msg("Notification fan-out partially failed")
			}
			return fmt.Errorf("produce notifications for offset %d: %w", msg.Offset, err)
		}
		metrics.PipelineNotifications.Add(float64(len(out)))
		span.SetAttributes(attribute.Int("notifications", len(out)))
	}

	if err := p.reader.CommitMessages(recCtx, msg); err != nil {
		return fmt.Errorf("commit offset %d: %w", msg.Offset, err)
	}

	log.Debug().Int("notifications", len(notifications)).Msg("Event processed")
	return nil
}
