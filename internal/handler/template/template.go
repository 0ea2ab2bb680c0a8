package templatehandler

import (
	"context"
	"time"

	"github.com/terravest/estatecore/internal/dto"
	"github.com/terravest/estatecore/internal/service"
	"github.com/terravest/estatecore/pkg/common"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type TemplateHandler struct {
	templateService service.TemplateService

	meter        metric.Meter
	tracer       trace.Tracer
	log          *zap.Logger
	requestCount metric.Int64Counter
	errorCount   metric.Int64Counter
}

func NewTemplateHandler(
	templateService service.TemplateService,
	meter metric.Meter,
	tracer trace.Tracer,
	log *zap.Logger,
) *TemplateHandler {
	requestCount, err := meter.Int64Counter(
		"api.request.count",
		metric.WithDescription("Number of API requests received"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		zap.L().Fatal("Failed to create request count metric", zap.Error(err))
	}

	errorCount, err := meter.Int64Counter(
		"api.error.count",
		metric.WithDescription("Number of API errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		zap.L().Fatal("Failed to create error count metric", zap.Error(err))
	}

	return &TemplateHandler{
		templateService: templateService,
		meter:           meter,
		tracer:          tracer,
		log:             log,
		requestCount:    requestCount,
		errorCount:      errorCount,
	}
}

func (h *TemplateHandler) List(c *fiber.Ctx) error {
	ctx := c.UserContext()
	ctx, span := h.tracer.Start(ctx, "handler.ListTemplates")
	defer span.End()

	h.requestCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", c.Path()),
		attribute.String("method", c.Method()),
	))

	serviceCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	templates, err := h.templateService.List(serviceCtx)
	if err != nil {
		h.errorCount.Add(ctx, 1, metric.WithAttributes(
			attribute.String("endpoint", c.Path()),
			attribute.String("error_type", "service_error"),
		))
		span.RecordError(err)
		h.log.Error("List templates failed",
			zap.String("trace_id", span.SpanContext().TraceID().String()),
			zap.Error(err),
		)
		return common.ErrorResponse(c, fiber.StatusInternalServerError, "Internal server error")
	}

	responses := make([]dto.TemplateResponse, len(templates))
	for i := range templates {
		responses[i] = dto.TemplateToResponse(&templates[i])
	}

	return common.SuccessResponse(c, fiber.StatusOK, responses)
}

func (h *TemplateHandler) GetByID(c *fiber.Ctx) error {
	ctx := c.UserContext()
	ctx, span := h.tracer.Start(ctx, "handler.GetTemplate")
	defer span.End()

	h.requestCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", c.Path()),
		attribute.String("method", c.Method()),
	))

	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return common.DomainErrorResponse(c, common.Validation("invalid id"))
	}

	serviceCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	template, err := h.templateService.GetByID(serviceCtx, uint(id))
	if err != nil {
		if common.KindOf(err) != "" {
			return common.DomainErrorResponse(c, err)
		}
		h.errorCount.Add(ctx, 1, metric.WithAttributes(
			attribute.String("endpoint", c.Path()),
			attribute.String("error_type", "service_error"),
		))
		span.RecordError(err)
		h.log.Error("Get template failed",
			zap.String("trace_id", span.SpanContext().TraceID().String()),
			zap.Error(err),
		)
		return common.ErrorResponse(c, fiber.StatusInternalServerError, "Internal server error")
	}

	return common.SuccessResponse(c, fiber.StatusOK, dto.TemplateToResponse(template))
}
