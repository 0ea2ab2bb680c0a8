package contracthandler

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

type ContractHandler struct {
	contractService service.ContractService
	validate        *validator.Validate
	meter           metric.Meter
	tracer          trace.Tracer
	log             *zap.Logger
	requestCount    metric.Int64Counter
	requestDuration metric.Float64Histogram
	errorCount      metric.Int64Counter
}

func NewContractHandler(
	contractService service.ContractService,
	meter metric.Meter,
	tracer trace.Tracer,
	log *zap.Logger,
) *ContractHandler {
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

	return &ContractHandler{
		contractService: contractService,
		validate:        validator.New(validator.WithRequiredStructEnabled()),
		meter:           meter,
		tracer:          tracer,
		log:             log,
		requestCount:    requestCount,
		requestDuration: requestDuration,
		errorCount:      errorCount,
	}
}

// begin sets up span, request metrics and claims for an endpoint.
func (h *ContractHandler) begin(c *fiber.Ctx, op string) (context.Context, trace.Span, time.Time, *domain.JwtCustomClaims, error) {
	ctx := c.UserContext()
	ctx, span := h.tracer.Start(ctx, "handler."+op)
	start := time.Now()

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
	return ctx, span, start, claims, err
}

func (h *ContractHandler) recordError(
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

// domainError routes a service error to the client: classified errors keep
// their kind, anything else is a 500.
func (h *ContractHandler) domainError(
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

func (h *ContractHandler) recordSuccess(
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

func paramID(c *fiber.Ctx, name string) (uint64, error) {
	v, err := c.ParamsInt(name)
	if err != nil || v <= 0 {
		return 0, common.Validation("invalid %s", name)
	}
	return uint64(v), nil
}

func (h *ContractHandler) Create(c *fiber.Ctx) error {
	ctx, span, start, claims, err := h.begin(c, "CreateContract")
	defer span.End()
	if err != nil {
		return h.recordError(ctx, span, c, start, err,
			fiber.StatusUnauthorized, "auth_error", "Could not parse user claims")
	}

	var req dto.CreateContractRequest
	if err := c.BodyParser(&req); err != nil {
		return h.recordError(ctx, span, c, start, err,
			fiber.StatusBadRequest, "parse_error", "Cannot parse request body", zap.Error(err))
	}
	if err := h.validate.Struct(req); err != nil {
		return h.recordError(ctx, span, c, start, err,
			fiber.StatusBadRequest, "validation_error", "Validation failed", zap.Error(err))
	}

	span.SetAttributes(
		attribute.Int64("buyer.id", int64(req.BuyerID)),
		attribute.Int64("unit.id", int64(req.PropertyUnitID)),
		attribute.Int64("template.id", int64(req.TemplateID)),
	)

	serviceCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	contract, err := h.contractService.Create(serviceCtx, claims.TenantID, claims.UserID, req)
	if err != nil {
		return h.domainError(ctx, span, c, start, err)
	}

	return h.recordSuccess(ctx, span, c, start, fiber.StatusCreated, dto.ContractToResponse(contract),
		zap.Uint64("contract_id", contract.ID),
	)
}

func (h *ContractHandler) GetDetail(c *fiber.Ctx) error {
	ctx, span, start, claims, err := h.begin(c, "GetContract")
	defer span.End()
	if err != nil {
		return h.recordError(ctx, span, c, start, err,
			fiber.StatusUnauthorized, "auth_error", "Could not parse user claims")
	}

	contractID, err := paramID(c, "id")
	if err != nil {
		return h.domainError(ctx, span, c, start, err)
	}

	serviceCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	contract, err := h.contractService.GetDetail(serviceCtx, claims.TenantID, contractID)
	if err != nil {
		return h.domainError(ctx, span, c, start, err)
	}

	return h.recordSuccess(ctx, span, c, start, fiber.StatusOK, dto.ContractToResponse(contract),
		zap.Uint64("contract_id", contractID),
	)
}

func (h *ContractHandler) List(c *fiber.Ctx) error {
	ctx, span, start, claims, err := h.begin(c, "ListContracts")
	defer span.End()
	if err != nil {
		return h.recordError(ctx, span, c, start, err,
			fiber.StatusUnauthorized, "auth_error", "Could not parse user claims")
	}

	params := domain.Params{
		Status: c.Query("status"),
		Page:   c.QueryInt("page", 1),
		Limit:  c.QueryInt("limit", 20),
	}

	serviceCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	page, err := h.contractService.List(serviceCtx, claims.TenantID, params)
	if err != nil {
		return h.domainError(ctx, span, c, start, err)
	}

	contracts := page.Data.([]domain.Contract)
	responses := make([]dto.ContractResponse, len(contracts))
	for i := range contracts {
		responses[i] = dto.ContractToResponse(&contracts[i])
	}

	return h.recordSuccess(ctx, span, c, start, fiber.StatusOK, fiber.Map{
		"contracts":   responses,
		"total":       page.Total,
		"page":        page.Page,
		"limit":       page.Limit,
		"total_pages": page.TotalPages,
	})
}

func (h *ContractHandler) ListPhases(c *fiber.Ctx) error {
	ctx, span, start, claims, err := h.begin(c, "ListPhases")
	defer span.End()
	if err != nil {
		return h.recordError(ctx, span, c, start, err,
			fiber.StatusUnauthorized, "auth_error", "Could not parse user claims")
	}

	contractID, err := paramID(c, "id")
	if err != nil {
		return h.domainError(ctx, span, c, start, err)
	}

	serviceCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	phases, err := h.contractService.ListPhases(serviceCtx, claims.TenantID, contractID)
	if err != nil {
		return h.domainError(ctx, span, c, start, err)
	}

	responses := make([]dto.PhaseResponse, len(phases))
	for i := range phases {
		responses[i] = dto.PhaseToResponse(&phases[i])
	}

	return h.recordSuccess(ctx, span, c, start, fiber.StatusOK, responses,
		zap.Uint64("contract_id", contractID),
	)
}

func (h *ContractHandler) ListInstallments(c *fiber.Ctx) error {
	ctx, span, start, claims, err := h.begin(c, "ListInstallments")
	defer span.End()
	if err != nil {
		return h.recordError(ctx, span, c, start, err,
			fiber.StatusUnauthorized, "auth_error", "Could not parse user claims")
	}

	contractID, err := paramID(c, "id")
	if err != nil {
		return h.domainError(ctx, span, c, start, err)
	}
	phaseID, err := paramID(c, "phaseId")
	if err != nil {
		return h.domainError(ctx, span, c, start, err)
	}

	serviceCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	installments, err := h.contractService.ListInstallments(serviceCtx, claims.TenantID, contractID, phaseID)
	if err != nil {
		return h.domainError(ctx, span, c, start, err)
	}

	responses := make([]dto.InstallmentResponse, len(installments))
	for i, ins := range installments {
		responses[i] = dto.InstallmentToResponse(ins)
	}

	return h.recordSuccess(ctx, span, c, start, fiber.StatusOK, responses,
		zap.Uint64("contract_id", contractID),
		zap.Uint64("phase_id", phaseID),
	)
}

func (h *ContractHandler) ListTransitions(c *fiber.Ctx) error {
	ctx, span, start, claims, err := h.begin(c, "ListTransitions")
	defer span.End()
	if err != nil {
		return h.recordError(ctx, span, c, start, err,
			fiber.StatusUnauthorized, "auth_error", "Could not parse user claims")
	}

	contractID, err := paramID(c, "id")
	if err != nil {
		return h.domainError(ctx, span, c, start, err)
	}

	serviceCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	transitions, err := h.contractService.ListTransitions(serviceCtx, claims.TenantID, contractID)
	if err != nil {
		return h.domainError(ctx, span, c, start, err)
	}

	responses := make([]dto.TransitionResponse, len(transitions))
	for i, t := range transitions {
		responses[i] = dto.TransitionToResponse(t)
	}

	return h.recordSuccess(ctx, span, c, start, fiber.StatusOK, responses,
		zap.Uint64("contract_id", contractID),
	)
}

func (h *ContractHandler) Sign(c *fiber.Ctx) error {
	ctx, span, start, claims, err := h.begin(c, "SignContract")
	defer span.End()
	if err != nil {
		return h.recordError(ctx, span, c, start, err,
			fiber.StatusUnauthorized, "auth_error", "Could not parse user claims")
	}

	contractID, err := paramID(c, "id")
	if err != nil {
		return h.domainError(ctx, span, c, start, err)
	}

	serviceCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	contract, err := h.contractService.Sign(serviceCtx, claims.TenantID, contractID, claims.UserID)
	if err != nil {
		return h.domainError(ctx, span, c, start, err)
	}

	return h.recordSuccess(ctx, span, c, start, fiber.StatusOK, dto.ContractToResponse(contract),
		zap.Uint64("contract_id", contractID),
	)
}

func (h *ContractHandler) Terminate(c *fiber.Ctx) error {
	ctx, span, start, claims, err := h.begin(c, "TerminateContract")
	defer span.End()
	if err != nil {
		return h.recordError(ctx, span, c, start, err,
			fiber.StatusUnauthorized, "auth_error", "Could not parse user claims")
	}

	contractID, err := paramID(c, "id")
	if err != nil {
		return h.domainError(ctx, span, c, start, err)
	}

	var req dto.TerminateContractRequest
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

	contract, err := h.contractService.Terminate(serviceCtx, claims.TenantID, contractID, claims.UserID, req.Reason)
	if err != nil {
		return h.domainError(ctx, span, c, start, err)
	}

	return h.recordSuccess(ctx, span, c, start, fiber.StatusOK, dto.ContractToResponse(contract),
		zap.Uint64("contract_id", contractID),
	)
}

func (h *ContractHandler) ActivatePhase(c *fiber.Ctx) error {
	ctx, span, start, claims, err := h.begin(c, "ActivatePhase")
	defer span.End()
	if err != nil {
		return h.recordError(ctx, span, c, start, err,
			fiber.StatusUnauthorized, "auth_error", "Could not parse user claims")
	}

	contractID, err := paramID(c, "id")
	if err != nil {
		return h.domainError(ctx, span, c, start, err)
	}
	phaseID, err := paramID(c, "phaseId")
	if err != nil {
		return h.domainError(ctx, span, c, start, err)
	}

	serviceCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	phase, err := h.contractService.ActivatePhase(serviceCtx, claims.TenantID, contractID, phaseID, claims.UserID)
	if err != nil {
		return h.domainError(ctx, span, c, start, err)
	}

	return h.recordSuccess(ctx, span, c, start, fiber.StatusOK, dto.PhaseToResponse(phase),
		zap.Uint64("contract_id", contractID),
		zap.Uint64("phase_id", phaseID),
	)
}

func (h *ContractHandler) CompleteStep(c *fiber.Ctx) error {
	ctx, span, start, claims, err := h.begin(c, "CompleteStep")
	defer span.End()
	if err != nil {
		return h.recordError(ctx, span, c, start, err,
			fiber.StatusUnauthorized, "auth_error", "Could not parse user claims")
	}

	contractID, err := paramID(c, "id")
	if err != nil {
		return h.domainError(ctx, span, c, start, err)
	}
	phaseID, err := paramID(c, "phaseId")
	if err != nil {
		return h.domainError(ctx, span, c, start, err)
	}
	stepID, err := paramID(c, "stepId")
	if err != nil {
		return h.domainError(ctx, span, c, start, err)
	}

	serviceCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	phase, err := h.contractService.CompleteStep(serviceCtx, claims.TenantID, contractID, phaseID, stepID, claims.UserID)
	if err != nil {
		return h.domainError(ctx, span, c, start, err)
	}

	return h.recordSuccess(ctx, span, c, start, fiber.StatusOK, dto.PhaseToResponse(phase),
		zap.Uint64("contract_id", contractID),
		zap.Uint64("phase_id", phaseID),
		zap.Uint64("step_id", stepID),
	)
}

func (h *ContractHandler) SubmitDocument(c *fiber.Ctx) error {
	ctx, span, start, claims, err := h.begin(c, "SubmitDocument")
	defer span.End()
	if err != nil {
		return h.recordError(ctx, span, c, start, err,
			fiber.StatusUnauthorized, "auth_error", "Could not parse user claims")
	}

	contractID, err := paramID(c, "id")
	if err != nil {
		return h.domainError(ctx, span, c, start, err)
	}
	phaseID, err := paramID(c, "phaseId")
	if err != nil {
		return h.domainError(ctx, span, c, start, err)
	}
	documentID, err := paramID(c, "documentId")
	if err != nil {
		return h.domainError(ctx, span, c, start, err)
	}

	file, err := c.FormFile("file")
	if err != nil {
		return h.recordError(ctx, span, c, start, err,
			fiber.StatusBadRequest, "parse_error", "Document file is required", zap.Error(err))
	}

	serviceCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	document, err := h.contractService.SubmitDocument(serviceCtx, claims.TenantID, contractID, phaseID, documentID, claims.UserID, file)
	if err != nil {
		return h.domainError(ctx, span, c, start, err)
	}

	return h.recordSuccess(ctx, span, c, start, fiber.StatusOK, dto.DocumentToResponse(document),
		zap.Uint64("contract_id", contractID),
		zap.Uint64("document_id", documentID),
	)
}

func (h *ContractHandler) ReviewDocument(c *fiber.Ctx) error {
	ctx, span, start, claims, err := h.begin(c, "ReviewDocument")
	defer span.End()
	if err != nil {
		return h.recordError(ctx, span, c, start, err,
			fiber.StatusUnauthorized, "auth_error", "Could not parse user claims")
	}

	contractID, err := paramID(c, "id")
	if err != nil {
		return h.domainError(ctx, span, c, start, err)
	}
	phaseID, err := paramID(c, "phaseId")
	if err != nil {
		return h.domainError(ctx, span, c, start, err)
	}
	documentID, err := paramID(c, "documentId")
	if err != nil {
		return h.domainError(ctx, span, c, start, err)
	}

	var req dto.ReviewDocumentRequest
	if err := c.BodyParser(&req); err != nil {
		return h.recordError(ctx, span, c, start, err,
			fiber.StatusBadRequest, "parse_error", "Cannot parse request body", zap.Error(err))
	}

	serviceCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	phase, err := h.contractService.ReviewDocument(serviceCtx, claims.TenantID, contractID, phaseID, documentID, claims.UserID, req.Approved)
	if err != nil {
		return h.domainError(ctx, span, c, start, err)
	}

	return h.recordSuccess(ctx, span, c, start, fiber.StatusOK, dto.PhaseToResponse(phase),
		zap.Uint64("contract_id", contractID),
		zap.Uint64("document_id", documentID),
		zap.Bool("approved", req.Approved),
	)
}

func (h *ContractHandler) SkipPhase(c *fiber.Ctx) error {
	ctx, span, start, claims, err := h.begin(c, "SkipPhase")
	defer span.End()
	if err != nil {
		return h.recordError(ctx, span, c, start, err,
			fiber.StatusUnauthorized, "auth_error", "Could not parse user claims")
	}

	contractID, err := paramID(c, "id")
	if err != nil {
		return h.domainError(ctx, span, c, start, err)
	}
	phaseID, err := paramID(c, "phaseId")
	if err != nil {
		return h.domainError(ctx, span, c, start, err)
	}

	var req dto.SkipPhaseRequest
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

	phase, err := h.contractService.SkipPhase(serviceCtx, claims.TenantID, contractID, phaseID, claims.UserID, req.Reason)
	if err != nil {
		return h.domainError(ctx, span, c, start, err)
	}

	return h.recordSuccess(ctx, span, c, start, fiber.StatusOK, dto.PhaseToResponse(phase),
		zap.Uint64("contract_id", contractID),
		zap.Uint64("phase_id", phaseID),
	)
}

func (h *ContractHandler) ReopenPhase(c *fiber.Ctx) error {
	ctx, span, start, claims, err := h.begin(c, "ReopenPhase")
	defer span.End()
	if err != nil {
		return h.recordError(ctx, span, c, start, err,
			fiber.StatusUnauthorized, "auth_error", "Could not parse user claims")
	}

	contractID, err := paramID(c, "id")
	if err != nil {
		return h.domainError(ctx, span, c, start, err)
	}
	phaseID, err := paramID(c, "phaseId")
	if err != nil {
		return h.domainError(ctx, span, c, start, err)
	}

	var req dto.ReopenPhaseRequest
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

	phase, err := h.contractService.ReopenPhase(serviceCtx, claims.TenantID, contractID, phaseID, claims.UserID, req.Reason, req.Cascade)
	if err != nil {
		return h.domainError(ctx, span, c, start, err)
	}

	return h.recordSuccess(ctx, span, c, start, fiber.StatusOK, dto.PhaseToResponse(phase),
		zap.Uint64("contract_id", contractID),
		zap.Uint64("phase_id", phaseID),
		zap.Bool("cascade", req.Cascade),
	)
}
