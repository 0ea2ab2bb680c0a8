package changehandler

import (
	"context"
	"strings"
	"time"

	"github.com/terravest/estatecore/internal/domain"
	"github.com/terravest/estatecore/internal/dto"
	"github.com/terravest/estatecore/internal/service"
	"github.com/terravest/estatecore/middleware"
	"github.com/terravest/estatecore/pkg/common"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type ChangeHandler struct {
	changeService   service.ChangeService
	validate        *validator.Validate
	meter           metric.Meter
	tracer          trace.Tracer
	log             *zap.Logger
	requestCount    metric.Int64Counter
	requestDuration metric.Float64Histogram
	errorCount      metric.Int64Counter
}

func NewChangeHandler(
	changeService service.ChangeService,
	meter metric.Meter,
	tracer trace.Tracer,
	log *zap.Logger,
) *ChangeHandler {
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

	return &ChangeHandler{
		changeService:   changeService,
		validate:        validator.New(validator.WithRequiredStructEnabled()),
		meter:           meter,
		tracer:          tracer,
		log:             log,
		requestCount:    requestCount,
		requestDuration: requestDuration,
		errorCount:      errorCount,
	}
}

func (h *ChangeHandler) begin(c *fiber.Ctx, op string) (context.Context, trace.Span, time.Time, *domain.JwtCustomClaims, error) {
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

	claims, err := middleware.GetClaimsFromLocals(c)
	return ctx, span, time.Now(), claims, err
}

func (h *ChangeHandler) recordError(
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

func (h *ChangeHandler) domainError(
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

func (h *ChangeHandler) recordSuccess(
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

func (h *ChangeHandler) Create(c *fiber.Ctx) error {
	ctx, span, start, claims, err := h.begin(c, "CreateChangeRequest")
	defer span.End()
	if err != nil {
		return h.recordError(ctx, span, c, start, err,
			fiber.StatusUnauthorized, "auth_error", "Could not parse user claims")
	}

	contractID, err := c.ParamsInt("id")
	if err != nil || contractID <= 0 {
		return h.domainError(ctx, span, c, start, common.Validation("invalid id"))
	}

	var req dto.CreateChangeRequest
	if err := c.BodyParser(&req); err != nil {
		return h.recordError(ctx, span, c, start, err,
			fiber.StatusBadRequest, "parse_error", "Cannot parse request body", zap.Error(err))
	}
	if err := h.validate.Struct(req); err != nil {
		return h.recordError(ctx, span, c, start, err,
			fiber.StatusBadRequest, "validation_error", "Validation failed", zap.Error(err))
	}

	serviceCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	request, err := h.changeService.Create(serviceCtx, claims.TenantID, uint64(contractID), claims.UserID, req)
	if err != nil {
		return h.domainError(ctx, span, c, start, err)
	}

	return h.recordSuccess(ctx, span, c, start, fiber.StatusCreated, dto.ChangeRequestToResponse(request),
		zap.Uint64("change_request_id", request.ID),
		zap.Uint64("contract_id", uint64(contractID)),
	)
}

func (h *ChangeHandler) requestID(c *fiber.Ctx) (uint64, error) {
	v, err := c.ParamsInt("requestId")
	if err != nil || v <= 0 {
		return 0, common.Validation("invalid requestId")
	}
	return uint64(v), nil
}

func (h *ChangeHandler) SubmitDocument(c *fiber.Ctx) error {
	ctx, span, start, claims, err := h.begin(c, "SubmitChangeDocument")
	defer span.End()
	if err != nil {
		return h.recordError(ctx, span, c, start, err,
			fiber.StatusUnauthorized, "auth_error", "Could not parse user claims")
	}

	requestID, err := h.requestID(c)
	if err != nil {
		return h.domainError(ctx, span, c, start, err)
	}

	name := c.FormValue("name")
	if name == "" {
		return h.recordError(ctx, span, c, start, common.Validation("document name is required"),
			fiber.StatusBadRequest, "validation_error", "Document name is required")
	}
	file, err := c.FormFile("file")
	if err != nil {
		return h.recordError(ctx, span, c, start, err,
			fiber.StatusBadRequest, "parse_error", "Document file is required", zap.Error(err))
	}

	serviceCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	request, err := h.changeService.SubmitDocument(serviceCtx, claims.TenantID, requestID, claims.UserID, name, file)
	if err != nil {
		return h.domainError(ctx, span, c, start, err)
	}

	return h.recordSuccess(ctx, span, c, start, fiber.StatusOK, dto.ChangeRequestToResponse(request),
		zap.Uint64("change_request_id", requestID),
	)
}

func (h *ChangeHandler) StartReview(c *fiber.Ctx) error {
	ctx, span, start, claims, err := h.begin(c, "StartChangeReview")
	defer span.End()
	if err != nil {
		return h.recordError(ctx, span, c, start, err,
			fiber.StatusUnauthorized, "auth_error", "Could not parse user claims")
	}

	requestID, err := h.requestID(c)
	if err != nil {
		return h.domainError(ctx, span, c, start, err)
	}

	serviceCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	request, err := h.changeService.StartReview(serviceCtx, claims.TenantID, requestID, claims.UserID)
	if err != nil {
		return h.domainError(ctx, span, c, start, err)
	}

	return h.recordSuccess(ctx, span, c, start, fiber.StatusOK, dto.ChangeRequestToResponse(request),
		zap.Uint64("change_request_id", requestID),
	)
}

func (h *ChangeHandler) Approve(c *fiber.Ctx) error {
	ctx, span, start, claims, err := h.begin(c, "ApproveChangeRequest")
	defer span.End()
	if err != nil {
		return h.recordError(ctx, span, c, start, err,
			fiber.StatusUnauthorized, "auth_error", "Could not parse user claims")
	}

	requestID, err := h.requestID(c)
	if err != nil {
		return h.domainError(ctx, span, c, start, err)
	}

	// The notes body is optional.
	var req dto.ReviewNotesRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return h.recordError(ctx, span, c, start, err,
				fiber.StatusBadRequest, "parse_error", "Cannot parse request body", zap.Error(err))
		}
	}

	serviceCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	request, err := h.changeService.Approve(serviceCtx, claims.TenantID, requestID, claims.UserID, req.Notes)
	if err != nil {
		return h.domainError(ctx, span, c, start, err)
	}

	return h.recordSuccess(ctx, span, c, start, fiber.StatusOK, dto.ChangeRequestToResponse(request),
		zap.Uint64("change_request_id", requestID),
	)
}

func (h *ChangeHandler) Reject(c *fiber.Ctx) error {
	ctx, span, start, claims, err := h.begin(c, "RejectChangeRequest")
	defer span.End()
	if err != nil {
		return h.recordError(ctx, span, c, start, err,
			fiber.StatusUnauthorized, "auth_error", "Could not parse user claims")
	}

	requestID, err := h.requestID(c)
	if err != nil {
		return h.domainError(ctx, span, c, start, err)
	}

	var req dto.RejectChangeRequest
	if err := c.BodyParser(&req); err != nil {
		return h.recordError(ctx, span, c, start, err,
			fiber.StatusBadRequest, "parse_error", "Cannot parse request body", zap.Error(err))
	}
	if err := h.validate.Struct(req); err != nil {
		return h.recordError(ctx, span, c, start, err,
			fiber.StatusBadRequest, "validation_error", "Validation failed", zap.Error(err))
	}

	serviceCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	request, err := h.changeService.Reject(serviceCtx, claims.TenantID, requestID, claims.UserID, req.Reason)
	if err != nil {
		return h.domainError(ctx, span, c, start, err)
	}

	return h.recordSuccess(ctx, span, c, start, fiber.StatusOK, dto.ChangeRequestToResponse(request),
		zap.Uint64("change_request_id", requestID),
	)
}

func (h *ChangeHandler) Cancel(c *fiber.Ctx) error {
	ctx, span, start, claims, err := h.begin(c, "CancelChangeRequest")
	defer span.End()
	if err != nil {
		return h.recordError(ctx, span, c, start, err,
			fiber.StatusUnauthorized, "auth_error", "Could not parse user claims")
	}

	requestID, err := h.requestID(c)
	if err != nil {
		return h.domainError(ctx, span, c, start, err)
	}

	serviceCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	request, err := h.changeService.Cancel(serviceCtx, claims.TenantID, requestID, claims.UserID)
	if err != nil {
		return h.domainError(ctx, span, c, start, err)
	}

	return h.recordSuccess(ctx, span, c, start, fiber.StatusOK, dto.ChangeRequestToResponse(request),
		zap.Uint64("change_request_id", requestID),
	)
}

func (h *ChangeHandler) Execute(c *fiber.Ctx) error {
	ctx, span, start, claims, err := h.begin(c, "ExecuteChangeRequest")
	defer span.End()
	if err != nil {
		return h.recordError(ctx, span, c, start, err,
			fiber.StatusUnauthorized, "auth_error", "Could not parse user claims")
	}

	requestID, err := h.requestID(c)
	if err != nil {
		return h.domainError(ctx, span, c, start, err)
	}

	serviceCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	request, err := h.changeService.Execute(serviceCtx, claims.TenantID, requestID, claims.UserID)
	if err != nil {
		return h.domainError(ctx, span, c, start, err)
	}

	return h.recordSuccess(ctx, span, c, start, fiber.StatusOK, dto.ChangeRequestToResponse(request),
		zap.Uint64("change_request_id", requestID),
	)
}

func (h *ChangeHandler) ListPendingReview(c *fiber.Ctx) error {
	ctx, span, start, _, err := h.begin(c, "ListPendingReview")
	defer span.End()
	if err != nil {
		return h.recordError(ctx, span, c, start, err,
			fiber.StatusUnauthorized, "auth_error", "Could not parse user claims")
	}

	params := domain.Params{
		Page:  c.QueryInt("page", 1),
		Limit: c.QueryInt("limit", 20),
	}

	serviceCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	page, err := h.changeService.ListPendingReview(serviceCtx, params)
	if err != nil {
		return h.domainError(ctx, span, c, start, err)
	}

	requests := page.Data.([]domain.PaymentMethodChangeRequest)
	responses := make([]dto.ChangeRequestResponse, len(requests))
	for i := range requests {
		responses[i] = dto.ChangeRequestToResponse(&requests[i])
	}

	return h.recordSuccess(ctx, span, c, start, fiber.StatusOK, fiber.Map{
		"requests":    responses,
		"total":       page.Total,
		"page":        page.Page,
		"limit":       page.Limit,
		"total_pages": page.TotalPages,
	})
}

func (h *ChangeHandler) GetByID(c *fiber.Ctx) error {
	ctx, span, start, claims, err := h.begin(c, "GetChangeRequest")
	defer span.End()
	if err != nil {
		return h.recordError(ctx, span, c, start, err,
			fiber.StatusUnauthorized, "auth_error", "Could not parse user claims")
	}

	requestID, err := h.requestID(c)
	if err != nil {
		return h.domainError(ctx, span, c, start, err)
	}

	serviceCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	request, err := h.changeService.GetByID(serviceCtx, claims.TenantID, requestID)
	if err != nil {
		return h.domainError(ctx, span, c, start, err)
	}

	return h.recordSuccess(ctx, span, c, start, fiber.StatusOK, dto.ChangeRequestToResponse(request),
		zap.Uint64("change_request_id", requestID),
	)
}
