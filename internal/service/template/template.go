package templatesrv

import (
	"context"
	"time"

	"github.com/terravest/estatecore/internal/domain"
	"github.com/terravest/estatecore/internal/repository"
	"github.com/terravest/estatecore/internal/service"
	"github.com/terravest/estatecore/pkg/common"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type templateService struct {
	templateRepository repository.TemplateRepository

	meter             metric.Meter
	tracer            trace.Tracer
	log               *zap.Logger
	operationDuration metric.Float64Histogram
	operationCount    metric.Int64Counter
	errorCount        metric.Int64Counter
}

func (s *templateService) start(ctx context.Context, op string) (context.Context, trace.Span, time.Time) {
	ctx, span := s.tracer.Start(ctx, "service."+op)
	s.operationCount.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("operation", op),
			attribute.String("service", "template"),
		),
	)
	return ctx, span, time.Now()
}

func (s *templateService) fail(ctx context.Context, span trace.Span, op, errType string, err error) error {
	span.SetStatus(codes.Error, err.Error())
	span.RecordError(err)
	s.errorCount.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("operation", op),
			attribute.String("service", "template"),
			attribute.String("error_type", errType),
		),
	)
	s.log.Warn("Template operation failed",
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.Error(err),
	)
	return err
}

func (s *templateService) done(ctx context.Context, span trace.Span, start time.Time, op string) {
	s.operationDuration.Record(ctx, float64(time.Since(start).Milliseconds()),
		metric.WithAttributes(
			attribute.String("operation", op),
			attribute.String("service", "template"),
			attribute.String("status", "success"),
		),
	)
	span.SetStatus(codes.Ok, op)
}

// List implements service.TemplateService.
func (s *templateService) List(ctx context.Context) ([]domain.PaymentMethodTemplate, error) {
	ctx, span, startAt := s.start(ctx, "ListTemplates")
	defer span.End()

	templates, err := s.templateRepository.FindAll(ctx)
	if err != nil {
		return nil, s.fail(ctx, span, "ListTemplates", "repository_error", err)
	}

	s.done(ctx, span, startAt, "ListTemplates")
	return templates, nil
}

// GetByID implements service.TemplateService.
func (s *templateService) GetByID(ctx context.Context, id uint) (*domain.PaymentMethodTemplate, error) {
	ctx, span, startAt := s.start(ctx, "GetTemplate")
	defer span.End()

	span.SetAttributes(attribute.Int64("template.id", int64(id)))

	template, err := s.templateRepository.FindByID(ctx, id)
	if err != nil {
		return nil, s.fail(ctx, span, "GetTemplate", "repository_error", err)
	}
	if template == nil {
		return nil, s.fail(ctx, span, "GetTemplate", "not_found",
			common.NotFound("payment method template %d not found", id))
	}

	s.done(ctx, span, startAt, "GetTemplate")
	return template, nil
}

func NewTemplateService(
	templateRepository repository.TemplateRepository,
	meter metric.Meter,
	tracer trace.Tracer,
	log *zap.Logger,
) service.TemplateService {
	operationDuration, _ := meter.Float64Histogram(
		"service.operation.duration",
		metric.WithDescription("Duration of service operations"),
		metric.WithUnit("ms"),
	)

	operationCount, _ := meter.Int64Counter(
		"service.operation.count",
		metric.WithDescription("Number of service operations"),
		metric.WithUnit("{operation}"),
	)

	errorCount, _ := meter.Int64Counter(
		"service.error.count",
		metric.WithDescription("Number of service errors"),
		metric.WithUnit("{error}"),
	)

	return &templateService{
		templateRepository: templateRepository,

		meter:             meter,
		tracer:            tracer,
		log:               log,
		operationDuration: operationDuration,
		operationCount:    operationCount,
		errorCount:        errorCount,
	}
}
