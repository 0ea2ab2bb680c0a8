package paymenthandler

import (
	"context"
	"strings"
	"time"

	"github.com/terravest/estatecore/internal/dto"
	"github.com/terravest/estatecore/internal/service"
	"github.com/terravest/estatecore/middleware"
	"github.com/terravest/estatecore/pkg/common"
	"github.com/terravest/estatecore/pkg/idempotency"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type PaymentHandler struct {
	ledgerService   service.LedgerService
	callbackGuard   *idempotency.Guard
	validate        *validator.Validate
	meter           metric.Meter
	tracer          trace.Tracer
	log             *zap.Logger
	requestCount    metric.Int64Counter
	requestDuration metric.Float64Histogram
	errorCount      metric.Int64Counter
}

func NewPaymentHandler(
	ledgerService service.LedgerService,
	callbackGuard *idempotency.Guard,
	meter metric.Meter,
	tracer trace.Tracer,
	log *zap.Logger,
) *PaymentHandler {
	requestCount, err := meter.Int64Counter(
		"api.request.count",
		metric.WithDescription("Number of API requests received"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		zap.L().Fatal("Failed to create request count metric", zap.Error(err))
	}

	requestDuration, err := meter.Float64Histogram(
		"api.request.duration",
		metric.WithDescription("Duration of API requests"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		zap.L().Fatal("Failed to create request duration metric", zap.Error(err))
	}

	errorCount, err := meter.Int64Counter(
		"api.error.count",
		metric.WithDescription("Number of API errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		zap.L().Fatal("Failed to create error count metric", zap.Error(err))
	}

	return &PaymentHandler{
		ledgerService:   ledgerService,
		callbackGuard:   callbackGuard,
		validate:        validator.New(validator.WithRequiredStructEnabled()),
		meter:           meter,
		tracer:          tracer,
		log:             log,
		requestCount:    requestCount,
		requestDuration: requestDuration,
		errorCount:      errorCount,
	}
}

func (h *PaymentHandler) begin(c *fiber.Ctx, op string) (context.Context, trace.Span, time.Time) {
	ctx := c.UserContext()
	ctx, span := h.tracer.Start(ctx, "handler."+op)

	span.SetAttributes(
		attribute.String("http.method", c.Method()),
		attribute.String("http.route", c.Path()),
		attribute.String("http.client_ip", c.IP()),
	)

	h.requestCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", c.Path()),
		attribute.String("method", c.Method()),
	))

	return ctx, span, time.Now()
}

func (h *PaymentHandler) recordError(
	ctx context.Context, span trace.Span, c *fiber.Ctx,
	start time.Time, err error, statusCode int, errorType, message string, fields ...zap.Field) error {
	h.errorCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", c.Path()),
		attribute.String("method", c.Method()),
		attribute.String("error_type", errorType),
		attribute.Int("status_code", statusCode),
	))

	duration := float64(time.Since(start).Nanoseconds()) / 1e6
	h.requestDuration.Record(ctx, duration, metric.WithAttributes(
		attribute.String("endpoint", c.Path()),
		attribute.String("method", c.Method()),
		attribute.Int("status_code", statusCode),
	))

	span.SetAttributes(
		attribute.String("error.type", errorType),
		attribute.String("error.message", err.Error()),
		attribute.Int("http.status_code", statusCode),
	)
	span.RecordError(err)

	logFields := append([]zap.Field{
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.Int("status_code", statusCode),
		zap.String("error_type", errorType),
		zap.Float64("duration_ms", duration),
	}, fields...)

	h.log.Error(message, logFields...)

	return common.ErrorResponse(c, statusCode, message)
}

func (h *PaymentHandler) domainError(
	ctx context.Context, span trace.Span, c *fiber.Ctx, start time.Time, err error) error {
	kind := common.KindOf(err)
	if kind == "" {
		return h.recordError(ctx, span, c, start, err,
			fiber.StatusInternalServerError, "service_error", "Internal server error", zap.Error(err))
	}

	statusCode := common.HTTPStatus(err)
	errorType := strings.ToLower(string(kind))

	h.errorCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", c.Path()),
		attribute.String("method", c.Method()),
		attribute.String("error_type", errorType),
		attribute.Int("status_code", statusCode),
	))

	duration := float64(time.Since(start).Nanoseconds()) / 1e6
	h.requestDuration.Record(ctx, duration, metric.WithAttributes(
		attribute.String("endpoint", c.Path()),
		attribute.String("method", c.Method()),
		attribute.Int("status_code", statusCode),
	))

	span.SetAttributes(
		attribute.String("error.type", errorType),
		attribute.Int("http.status_code", statusCode),
	)
	span.RecordError(err)

	h.log.Warn("Request rejected",
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.Int("status_code", statusCode),
		zap.String("error_type", errorType),
		zap.Error(err),
	)

	return common.DomainErrorResponse(c, err)
}

func (h *PaymentHandler) recordSuccess(
	ctx context.Context, span trace.Span, c *fiber.Ctx,
	start time.Time, statusCode int, responseData any, fields ...zap.Field) error {
	duration := float64(time.Since(start).Nanoseconds()) / 1e6
	h.requestDuration.Record(ctx, duration, metric.WithAttributes(
		attribute.String("endpoint", c.Path()),
		attribute.String("method", c.Method()),
		attribute.Int("status_code", statusCode),
	))

	span.SetAttributes(
		attribute.Int("http.status_code", statusCode),
		attribute.Float64("request.duration_ms", duration),
	)

	logFields := append([]zap.Field{
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.Int("status_code", statusCode),
		zap.Float64("duration_ms", duration),
	}, fields...)

	h.log.Info("Request completed successfully", logFields...)

	return common.SuccessResponse(c, statusCode, responseData)
}

func (h *PaymentHandler) Record(c *fiber.Ctx) error {
	ctx, span, start := h.begin(c, "RecordPayment")
	defer span.End()

	claims, err := middleware.GetClaimsFromLocals(c)
	if err != nil {
		return h.recordError(ctx, span, c, start, err,
			fiber.StatusUnauthorized, "auth_error", "Could not parse user claims")
	}

	var req dto.RecordPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return h.recordError(ctx, span, c, start, err,
			fiber.StatusBadRequest, "parse_error", "Cannot parse request body", zap.Error(err))
	}
	if err := h.validate.Struct(req); err != nil {
		return h.recordError(ctx, span, c, start, err,
			fiber.StatusBadRequest, "validation_error", "Validation failed", zap.Error(err))
	}

	span.SetAttributes(
		attribute.Int64("contract.id", int64(req.ContractID)),
		attribute.String("payment.reference", req.Reference),
		attribute.String("payment.amount", req.Amount.String()),
	)

	serviceCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	payment, err := h.ledgerService.RecordPayment(serviceCtx, claims.TenantID, req)
	if err != nil {
		return h.domainError(ctx, span, c, start, err)
	}

	return h.recordSuccess(ctx, span, c, start, fiber.StatusCreated, dto.PaymentToResponse(payment),
		zap.Uint64("payment_id", payment.ID),
		zap.String("reference", payment.Reference),
	)
}

// Callback is the gateway confirmation endpoint. It is unauthenticated and
// idempotent on the payment reference.
func (h *PaymentHandler) Callback(c *fiber.Ctx) error {
	ctx, span, start := h.begin(c, "PaymentCallback")
	defer span.End()

	var req dto.PaymentCallbackRequest
	if err := c.BodyParser(&req); err != nil {
		return h.recordError(ctx, span, c, start, err,
			fiber.StatusBadRequest, "parse_error", "Cannot parse request body", zap.Error(err))
	}
	if err := h.validate.Struct(req); err != nil {
		return h.recordError(ctx, span, c, start, err,
			fiber.StatusBadRequest, "validation_error", "Validation failed", zap.Error(err))
	}

	span.SetAttributes(
		attribute.String("payment.reference", req.Reference),
		attribute.String("payment.status", req.Status),
	)

	serviceCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	// Gateways retry aggressively; only one delivery per reference runs at
	// a time, the rest are told to come back.
	acquired, err := h.callbackGuard.Acquire(serviceCtx, "callback:"+req.Reference)
	if err != nil {
		return h.recordError(ctx, span, c, start, err,
			fiber.StatusServiceUnavailable, "guard_error", "Callback guard unavailable", zap.Error(err))
	}
	if !acquired {
		return h.recordError(ctx, span, c, start,
			common.Concurrency(nil),
			fiber.StatusConflict, "duplicate_delivery", "Callback already in flight",
			zap.String("reference", req.Reference))
	}
	defer h.callbackGuard.Release(context.WithoutCancel(serviceCtx), "callback:"+req.Reference)

	payment, err := h.ledgerService.ProcessCallback(serviceCtx, req)
	if err != nil {
		return h.domainError(ctx, span, c, start, err)
	}

	return h.recordSuccess(ctx, span, c, start, fiber.StatusOK, dto.PaymentToResponse(payment),
		zap.String("reference", req.Reference),
		zap.String("status", string(payment.Status)),
	)
}

func (h *PaymentHandler) PayAhead(c *fiber.Ctx) error {
	ctx, span, start := h.begin(c, "PayAhead")
	defer span.End()

	claims, err := middleware.GetClaimsFromLocals(c)
	if err != nil {
		return h.recordError(ctx, span, c, start, err,
			fiber.StatusUnauthorized, "auth_error", "Could not parse user claims")
	}

	contractID, err := c.ParamsInt("id")
	if err != nil || contractID <= 0 {
		return h.domainError(ctx, span, c, start, common.Validation("invalid id"))
	}

	var req dto.PayAheadRequest
	if err := c.BodyParser(&req); err != nil {
		return h.recordError(ctx, span, c, start, err,
			fiber.StatusBadRequest, "parse_error", "Cannot parse request body", zap.Error(err))
	}
	if err := h.validate.Struct(req); err != nil {
		return h.recordError(ctx, span, c, start, err,
			fiber.StatusBadRequest, "validation_error", "Validation failed", zap.Error(err))
	}

	span.SetAttributes(
		attribute.Int64("contract.id", int64(contractID)),
		attribute.String("payment.amount", req.Amount.String()),
	)

	serviceCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	res, err := h.ledgerService.PayAhead(serviceCtx, claims.TenantID, uint64(contractID), req)
	if err != nil {
		return h.domainError(ctx, span, c, start, err)
	}

	return h.recordSuccess(ctx, span, c, start, fiber.StatusOK, res,
		zap.Uint64("contract_id", uint64(contractID)),
		zap.String("applied", res.AppliedAmount.String()),
	)
}

func (h *PaymentHandler) ListByContract(c *fiber.Ctx) error {
	ctx, span, start := h.begin(c, "ListPayments")
	defer span.End()

	claims, err := middleware.GetClaimsFromLocals(c)
	if err != nil {
		return h.recordError(ctx, span, c, start, err,
			fiber.StatusUnauthorized, "auth_error", "Could not parse user claims")
	}

	contractID, err := c.ParamsInt("id")
	if err != nil || contractID <= 0 {
		return h.domainError(ctx, span, c, start, common.Validation("invalid id"))
	}

	serviceCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	payments, err := h.ledgerService.ListByContract(serviceCtx, claims.TenantID, uint64(contractID))
	if err != nil {
		return h.domainError(ctx, span, c, start, err)
	}

	responses := make([]dto.PaymentResponse, len(payments))
	for i := range payments {
		responses[i] = dto.PaymentToResponse(&payments[i])
	}

	return h.recordSuccess(ctx, span, c, start, fiber.StatusOK, responses,
		zap.Uint64("contract_id", uint64(contractID)),
	)
}
