package eventbus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/terravest/estatecore/internal/domain"
	"github.com/terravest/estatecore/internal/repository"
	"go.uber.org/zap"
)

// Publisher pushes domain events to a Redis channel for downstream
// consumers.
type Publisher struct {
	client  *redis.Client
	channel string
	log     *zap.Logger
}

func NewPublisher(client *redis.Client, channel string, log *zap.Logger) *Publisher {
	return &Publisher{client: client, channel: channel, log: log}
}

type envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   uint64          `json:"aggregate_id"`
	TenantID      uint64          `json:"tenant_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

func (p *Publisher) Publish(ctx context.Context, event domain.DomainEvent) error {
	body, err := json.Marshal(envelope{
		ID:            event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		TenantID:      event.TenantID,
		EventType:     event.EventType,
		Payload:       event.Payload,
		OccurredAt:    event.OccurredAt,
	})
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, p.channel, body).Err()
}

// Relay polls the transactional outbox and publishes unpublished events in
// order. A failed publish stops the batch; the unmarked tail is retried on
// the next tick, so consumers may see duplicates but never gaps.
type Relay struct {
	events    repository.EventRepository
	publisher *Publisher
	interval  time.Duration
	batchSize int
	log       *zap.Logger
}

func NewRelay(
	events repository.EventRepository,
	publisher *Publisher,
	interval time.Duration,
	batchSize int,
	log *zap.Logger,
) *Relay {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Relay{
		events:    events,
		publisher: publisher,
		interval:  interval,
		batchSize: batchSize,
		log:       log,
	}
}

// Run blocks until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Info("Outbox relay started",
		zap.Duration("interval", r.interval),
		zap.Int("batch_size", r.batchSize),
	)

	for {
		select {
		case <-ctx.Done():
			r.log.Info("Outbox relay stopped")
			return
		case <-ticker.C:
			if err := r.drain(ctx); err != nil {
				r.log.Error("Outbox relay pass failed", zap.Error(err))
			}
		}
	}
}

func (r *Relay) drain(ctx context.Context) error {
	events, err := r.events.FetchUnpublished(ctx, r.batchSize)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	published := make([]string, 0, len(events))
	for _, event := range events {
		if err := r.publisher.Publish(ctx, event); err != nil {
			r.log.Warn("Event publish failed, stopping batch",
				zap.String("event_id", event.ID),
				zap.String("event_type", event.EventType),
				zap.Error(err),
			)
			break
		}
		published = append(published, event.ID)
	}

	if len(published) == 0 {
		return nil
	}
	return r.events.MarkPublished(ctx, published)
}
