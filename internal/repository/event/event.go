package eventrepo

import (
	"context"
	"time"

	"github.com/terravest/estatecore/internal/domain"
	"github.com/terravest/estatecore/internal/model"
	"github.com/terravest/estatecore/internal/repository"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// eventRepository is the transactional outbox. Append runs inside the same
// gorm transaction as the mutation that produced the events; the relay polls
// FetchUnpublished from a separate connection.
type eventRepository struct {
	db         *gorm.DB
	meter      metric.Meter
	tracer     trace.Tracer
	log        *zap.Logger
	appended   metric.Int64Counter
	errorCount metric.Int64Counter
}

// Append implements repository.EventRepository.
func (e *eventRepository) Append(ctx context.Context, events ...domain.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}

	ctx, span := e.tracer.Start(ctx, "repository.AppendEvents")
	defer span.End()

	rows := make([]model.DomainEvent, len(events))
	for i, ev := range events {
		rows[i] = model.EventFromEntity(&ev)
	}

	if err := e.db.WithContext(ctx).Create(&rows).Error; err != nil {
		span.SetStatus(codes.Error, "Error appending events")
		span.RecordError(err)
		e.errorCount.Add(ctx, 1, metric.WithAttributes(attribute.String("table", "domain_events")))
		e.log.Error("Error appending domain events",
			zap.Error(err),
			zap.Int("count", len(events)),
			zap.String("trace_id", span.SpanContext().TraceID().String()),
		)
		return err
	}

	e.appended.Add(ctx, int64(len(events)))

	span.SetStatus(codes.Ok, "Events appended")
	span.SetAttributes(attribute.Int("result.count", len(events)))

	return nil
}

// FetchUnpublished implements repository.EventRepository, oldest first.
func (e *eventRepository) FetchUnpublished(ctx context.Context, batchSize int) ([]domain.DomainEvent, error) {
	ctx, span := e.tracer.Start(ctx, "repository.FetchUnpublishedEvents")
	defer span.End()

	var rows []model.DomainEvent
	err := e.db.WithContext(ctx).
		Where("published_at IS NULL").
		Order("occurred_at ASC, id ASC").
		Limit(batchSize).
		Find(&rows).Error
	if err != nil {
		span.SetStatus(codes.Error, "Error fetching unpublished events")
		span.RecordError(err)
		e.errorCount.Add(ctx, 1, metric.WithAttributes(attribute.String("table", "domain_events")))
		e.log.Error("Error fetching unpublished events",
			zap.Error(err),
			zap.String("trace_id", span.SpanContext().TraceID().String()),
		)
		return nil, err
	}

	span.SetStatus(codes.Ok, "Unpublished events fetched")
	span.SetAttributes(attribute.Int("result.count", len(rows)))

	return model.EventsToEntity(rows), nil
}

// MarkPublished implements repository.EventRepository.
func (e *eventRepository) MarkPublished(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	ctx, span := e.tracer.Start(ctx, "repository.MarkEventsPublished")
	defer span.End()

	now := time.Now().UTC()
	err := e.db.WithContext(ctx).Model(&model.DomainEvent{}).
		Where("id IN ?", ids).
		Update("published_at", now).Error
	if err != nil {
		span.SetStatus(codes.Error, "Error marking events published")
		span.RecordError(err)
		e.errorCount.Add(ctx, 1, metric.WithAttributes(attribute.String("table", "domain_events")))
		e.log.Error("Error marking events published",
			zap.Error(err),
			zap.Int("count", len(ids)),
			zap.String("trace_id", span.SpanContext().TraceID().String()),
		)
		return err
	}

	span.SetStatus(codes.Ok, "Events marked published")
	return nil
}

func NewEventRepository(
	db *gorm.DB,
	meter metric.Meter,
	tracer trace.Tracer,
	log *zap.Logger,
) repository.EventRepository {
	appended, _ := meter.Int64Counter(
		"events.appended.count",
		metric.WithDescription("Number of domain events appended to the outbox"),
		metric.WithUnit("{event}"),
	)

	errorCount, _ := meter.Int64Counter(
		"db.error.count",
		metric.WithDescription("Number of database errors"),
		metric.WithUnit("{error}"),
	)

	return &eventRepository{
		db:         db,
		meter:      meter,
		tracer:     tracer,
		log:        log,
		appended:   appended,
		errorCount: errorCount,
	}
}
