package outbox

import (
	"context"
	"fmt"
	"time"

	pubsubv2 "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/giftmarket/giftmarket-backend/pkg/db/models"
	"github.com/giftmarket/giftmarket-backend/pkg/logger"
	"github.com/giftmarket/giftmarket-backend/pkg/metrics"
)

const publisherJobName = "outbox_publish"

// eventSink delivers a raw event to the broker and returns its message id.
type eventSink interface {
	Publish(ctx context.Context, data []byte, attrs map[string]string) (string, error)
}

// PubSubSink adapts a Pub/Sub publisher handle to the sink interface.
type PubSubSink struct {
	pub *pubsubv2.Publisher
}

func NewPubSubSink(pub *pubsubv2.Publisher) (*PubSubSink, error) {
	if pub == nil {
		return nil, fmt.Errorf("pubsub publisher required")
	}
	return &PubSubSink{pub: pub}, nil
}

func (s *PubSubSink) Publish(ctx context.Context, data []byte, attrs map[string]string) (string, error) {
	result := s.pub.Publish(ctx, &pubsubv2.Message{
		Data:       data,
		Attributes: attrs,
	})
	return result.Get(ctx)
}

type publisherRepo interface {
	FetchUnpublished(limit int) ([]models.OutboxEvent, error)
	MarkPublished(id uuid.UUID) error
	MarkFailed(id uuid.UUID, err error) error
}

// Publisher drains the outbox table into the broker. Rows stay in the table
// until the broker acknowledges them, so delivery is at-least-once and
// consumers deduplicate on the envelope event id.
type Publisher struct {
	repo         publisherRepo
	sink         eventSink
	batchSize    int
	pollInterval time.Duration
	maxAttempts  int
	metrics      *metrics.JobMetrics
	logg         *logger.Logger
}

// PublisherOptions configures the drain loop.
type PublisherOptions struct {
	BatchSize    int
	PollInterval time.Duration
	MaxAttempts  int
	Metrics      *metrics.JobMetrics
}

// NewPublisher validates the wiring and returns a drain loop.
func NewPublisher(repo publisherRepo, sink eventSink, opts PublisherOptions, logg *logger.Logger) (*Publisher, error) {
	if repo == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	if sink == nil {
		return nil, fmt.Errorf("event sink required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 10
	}
	return &Publisher{
		repo:         repo,
		sink:         sink,
		batchSize:    opts.BatchSize,
		pollInterval: opts.PollInterval,
		maxAttempts:  opts.MaxAttempts,
		metrics:      opts.Metrics,
		logg:         logg,
	}, nil
}

// Run polls the outbox until the context is cancelled.
func (p *Publisher) Run(ctx context.Context) error {
	p.logg.Info(p.logg.WithFields(ctx, map[string]any{
		"batch_size":    p.batchSize,
		"poll_interval": p.pollInterval.String(),
	}), "outbox publisher started")

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logg.Info(ctx, "outbox publisher stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := p.DrainOnce(ctx); err != nil {
				p.logg.Error(ctx, "draining outbox", err)
			}
		}
	}
}

// DrainOnce publishes one batch of unpublished rows. It reports how many rows
// were handed to the broker; a row that fails to publish is marked failed and
// retried on a later pass.
func (p *Publisher) DrainOnce(ctx context.Context) (int, error) {
	start := time.Now()

	rows, err := p.repo.FetchUnpublished(p.batchSize)
	if err != nil {
		p.metrics.IncFailure(publisherJobName)
		return 0, fmt.Errorf("fetching unpublished events: %w", err)
	}

	published := 0
	for i := range rows {
		row := rows[i]
		if ctx.Err() != nil {
			break
		}
		if row.AttemptCount >= p.maxAttempts {
			p.logg.Warn(p.logg.WithFields(ctx, map[string]any{
				"event_id":   row.ID,
				"event_type": row.EventType,
				"attempts":   row.AttemptCount,
			}), "outbox event exhausted its attempts, leaving for retention")
			continue
		}
		if err := p.publishRow(ctx, row); err != nil {
			logCtx := p.logg.WithFields(ctx, map[string]any{
				"event_id":   row.ID,
				"event_type": row.EventType,
			})
			p.logg.Error(logCtx, "publishing outbox event", err)
			if markErr := p.repo.MarkFailed(row.ID, err); markErr != nil {
				p.logg.Error(logCtx, "marking outbox event failed", markErr)
			}
			continue
		}
		if err := p.repo.MarkPublished(row.ID); err != nil {
			// The broker has the message; the row will be republished and
			// consumers drop the duplicate by event id.
			p.logg.Error(ctx, "marking outbox event published", err)
			continue
		}
		published++
	}

	p.metrics.ObserveDuration(publisherJobName, time.Since(start))
	p.metrics.IncSuccess(publisherJobName)
	return published, nil
}

func (p *Publisher) publishRow(ctx context.Context, row models.OutboxEvent) error {
	_, err := p.sink.Publish(ctx, row.Payload, map[string]string{
		"event_type":     string(row.EventType),
		"aggregate_type": string(row.AggregateType),
		"aggregate_id":   row.AggregateID.String(),
	})
	return err
}
