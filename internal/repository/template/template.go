package templaterepo

import (
	"errors"
	"time"

	"context"

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

type templateRepository struct {
	db            *gorm.DB
	meter         metric.Meter
	tracer        trace.Tracer
	log           *zap.Logger
	queryDuration metric.Float64Histogram
	queryCount    metric.Int64Counter
	errorCount    metric.Int64Counter
}

// FindByID implements repository.TemplateRepository. The whole template graph
// (phases, plans, step and document definitions) is loaded in one shot
// because the factory snapshots all of it.
func (t *templateRepository) FindByID(ctx context.Context, id uint) (*domain.PaymentMethodTemplate, error) {
	ctx, span := t.tracer.Start(ctx, "repository.FindTemplateByID")
	defer span.End()

	start := time.Now()

	t.queryCount.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("operation", "select"),
			attribute.String("table", "payment_method_templates"),
		),
	)

	span.SetAttributes(
		attribute.String("db.operation", "select"),
		attribute.String("db.table", "payment_method_templates"),
		attribute.Int64("template.id", int64(id)),
	)

	var template model.PaymentMethodTemplate
	err := t.db.WithContext(ctx).
		Preload("Phases", func(db *gorm.DB) *gorm.DB {
			return db.Order("template_phases.phase_order ASC")
		}).
		Preload("Phases.AmortizationPlan").
		Preload("Phases.StepDefinitions", func(db *gorm.DB) *gorm.DB {
			return db.Order("step_definitions.step_order ASC")
		}).
		Preload("Phases.DocumentRequirements").
		First(&template, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.SetStatus(codes.Ok, "Template not found")
			return nil, nil
		}

		span.SetStatus(codes.Error, "Error finding template")
		span.RecordError(err)

		t.log.Error("Error finding template",
			zap.Uint("template_id", id),
			zap.String("trace_id", span.SpanContext().TraceID().String()),
			zap.Error(err),
		)

		t.errorCount.Add(ctx, 1,
			metric.WithAttributes(
				attribute.String("operation", "select"),
				attribute.String("table", "payment_method_templates"),
			),
		)

		return nil, err
	}

	duration := float64(time.Since(start).Milliseconds())
	t.queryDuration.Record(ctx, duration,
		metric.WithAttributes(
			attribute.String("operation", "select"),
			attribute.String("table", "payment_method_templates"),
			attribute.String("status", "success"),
		),
	)

	span.SetStatus(codes.Ok, "Template found")

	return model.TemplateToEntity(template), nil
}

// FindAll implements repository.TemplateRepository.
func (t *templateRepository) FindAll(ctx context.Context) ([]domain.PaymentMethodTemplate, error) {
	ctx, span := t.tracer.Start(ctx, "repository.FindAllTemplates")
	defer span.End()

	t.queryCount.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("operation", "select_all"),
			attribute.String("table", "payment_method_templates"),
		),
	)

	var templates []model.PaymentMethodTemplate
	err := t.db.WithContext(ctx).
		Preload("Phases", func(db *gorm.DB) *gorm.DB {
			return db.Order("template_phases.phase_order ASC")
		}).
		Preload("Phases.AmortizationPlan").
		Find(&templates).Error
	if err != nil {
		span.SetStatus(codes.Error, "Error listing templates")
		span.RecordError(err)

		t.log.Error("Error listing templates",
			zap.String("trace_id", span.SpanContext().TraceID().String()),
			zap.Error(err),
		)

		t.errorCount.Add(ctx, 1,
			metric.WithAttributes(
				attribute.String("operation", "select_all"),
				attribute.String("table", "payment_method_templates"),
			),
		)

		return nil, err
	}

	span.SetStatus(codes.Ok, "Templates listed")
	span.SetAttributes(attribute.Int("result.count", len(templates)))

	return model.TemplatesToEntity(templates), nil
}

// FindPlanByID implements repository.TemplateRepository.
func (t *templateRepository) FindPlanByID(ctx context.Context, id uint) (*domain.AmortizationPlan, error) {
	ctx, span := t.tracer.Start(ctx, "repository.FindPlanByID")
	defer span.End()

	t.queryCount.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("operation", "select"),
			attribute.String("table", "amortization_plans"),
		),
	)

	span.SetAttributes(attribute.Int64("plan.id", int64(id)))

	var plan model.AmortizationPlan
	err := t.db.WithContext(ctx).First(&plan, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.SetStatus(codes.Ok, "Plan not found")
			return nil, nil
		}

		span.SetStatus(codes.Error, "Error finding plan")
		span.RecordError(err)

		t.log.Error("Error finding amortization plan",
			zap.Uint("plan_id", id),
			zap.String("trace_id", span.SpanContext().TraceID().String()),
			zap.Error(err),
		)

		t.errorCount.Add(ctx, 1,
			metric.WithAttributes(
				attribute.String("operation", "select"),
				attribute.String("table", "amortization_plans"),
			),
		)

		return nil, err
	}

	span.SetStatus(codes.Ok, "Plan found")

	return model.AmortizationPlanToEntity(plan), nil
}

func NewTemplateRepository(
	db *gorm.DB,
	meter metric.Meter,
	tracer trace.Tracer,
	log *zap.Logger,
) repository.TemplateRepository {
	queryDuration, _ := meter.Float64Histogram(
		"db.query.duration",
		metric.WithDescription("Duration of database queries"),
		metric.WithUnit("ms"),
	)

	queryCount, _ := meter.Int64Counter(
		"db.query.count",
		metric.WithDescription("Number of database queries"),
		metric.WithUnit("{query}"),
	)

	errorCount, _ := meter.Int64Counter(
		"db.error.count",
		metric.WithDescription("Number of database errors"),
		metric.WithUnit("{error}"),
	)

	return &templateRepository{
		db:            db,
		meter:         meter,
		tracer:        tracer,
		log:           log,
		queryDuration: queryDuration,
		queryCount:    queryCount,
		errorCount:    errorCount,
	}
}
