package changerepo

import (
	"context"
	"errors"
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

type changeRequestRepository struct {
	db            *gorm.DB
	meter         metric.Meter
	tracer        trace.Tracer
	log           *zap.Logger
	queryDuration metric.Float64Histogram
	queryCount    metric.Int64Counter
	errorCount    metric.Int64Counter
}

func (c *changeRequestRepository) fail(ctx context.Context, span trace.Span, table, msg string, err error, fields ...zap.Field) error {
	span.SetStatus(codes.Error, msg)
	span.RecordError(err)

	c.errorCount.Add(ctx, 1,
		metric.WithAttributes(attribute.String("table", table)),
	)

	fields = append(fields,
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.Error(err),
	)
	c.log.Error(msg, fields...)

	return err
}

// Create implements repository.ChangeRequestRepository.
func (c *changeRequestRepository) Create(ctx context.Context, request *domain.PaymentMethodChangeRequest) error {
	ctx, span := c.tracer.Start(ctx, "repository.CreateChangeRequest")
	defer span.End()

	start := time.Now()

	c.queryCount.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("operation", "insert"),
			attribute.String("table", "payment_method_change_requests"),
		),
	)

	span.SetAttributes(
		attribute.Int64("contract.id", int64(request.ContractID)),
		attribute.Int64("template.from", int64(request.FromTemplateID)),
		attribute.Int64("template.to", int64(request.ToTemplateID)),
	)

	data := model.ChangeRequestFromEntity(request)
	if err := c.db.WithContext(ctx).Create(&data).Error; err != nil {
		return c.fail(ctx, span, "payment_method_change_requests", "Error creating change request", err,
			zap.Uint64("contract_id", request.ContractID),
		)
	}

	c.queryDuration.Record(ctx, float64(time.Since(start).Milliseconds()),
		metric.WithAttributes(
			attribute.String("operation", "insert"),
			attribute.String("table", "payment_method_change_requests"),
			attribute.String("status", "success"),
		),
	)

	span.SetStatus(codes.Ok, "Change request created")
	request.ID = data.ID

	return nil
}

// FindByID implements repository.ChangeRequestRepository.
func (c *changeRequestRepository) FindByID(ctx context.Context, id uint64) (*domain.PaymentMethodChangeRequest, error) {
	ctx, span := c.tracer.Start(ctx, "repository.FindChangeRequestByID")
	defer span.End()

	span.SetAttributes(attribute.Int64("change_request.id", int64(id)))

	var request model.PaymentMethodChangeRequest
	err := c.db.WithContext(ctx).
		Preload("Documents").
		First(&request, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.SetStatus(codes.Ok, "Change request not found")
			return nil, nil
		}
		return nil, c.fail(ctx, span, "payment_method_change_requests", "Error finding change request", err,
			zap.Uint64("change_request_id", id),
		)
	}

	span.SetStatus(codes.Ok, "Change request found")
	return model.ChangeRequestToEntity(request), nil
}

// FindActiveByContractID implements repository.ChangeRequestRepository. At
// most one non-terminal request exists per contract.
func (c *changeRequestRepository) FindActiveByContractID(ctx context.Context, contractID uint64) (*domain.PaymentMethodChangeRequest, error) {
	ctx, span := c.tracer.Start(ctx, "repository.FindActiveChangeRequest")
	defer span.End()

	span.SetAttributes(attribute.Int64("contract.id", int64(contractID)))

	var request model.PaymentMethodChangeRequest
	err := c.db.WithContext(ctx).
		Where("contract_id = ?", contractID).
		Where("status IN ?", []string{
			string(domain.ChangePendingDocuments),
			string(domain.ChangeDocumentsSubmitted),
			string(domain.ChangeUnderReview),
			string(domain.ChangeApproved),
		}).
		First(&request).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.SetStatus(codes.Ok, "No active change request")
			return nil, nil
		}
		return nil, c.fail(ctx, span, "payment_method_change_requests", "Error finding active change request", err,
			zap.Uint64("contract_id", contractID),
		)
	}

	span.SetStatus(codes.Ok, "Active change request found")
	return model.ChangeRequestToEntity(request), nil
}

// Update implements repository.ChangeRequestRepository.
func (c *changeRequestRepository) Update(ctx context.Context, request *domain.PaymentMethodChangeRequest) error {
	ctx, span := c.tracer.Start(ctx, "repository.UpdateChangeRequest")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("change_request.id", int64(request.ID)),
		attribute.String("change_request.status", string(request.Status)),
	)

	data := model.ChangeRequestFromEntity(request)
	err := c.db.WithContext(ctx).Model(&model.PaymentMethodChangeRequest{ID: request.ID}).
		Select("status", "reviewer_id", "review_notes", "rejection_reason",
			"current_outstanding", "new_term_months", "new_interest_rate",
			"new_monthly_payment", "reviewed_at", "executed_at").
		Updates(&data).Error
	if err != nil {
		return c.fail(ctx, span, "payment_method_change_requests", "Error updating change request", err,
			zap.Uint64("change_request_id", request.ID),
		)
	}

	span.SetStatus(codes.Ok, "Change request updated")
	return nil
}

// AddDocument implements repository.ChangeRequestRepository.
func (c *changeRequestRepository) AddDocument(ctx context.Context, document *domain.ChangeRequestDocument) error {
	ctx, span := c.tracer.Start(ctx, "repository.AddChangeRequestDocument")
	defer span.End()

	data := model.ChangeRequestDocument{
		ChangeRequestID: document.ChangeRequestID,
		Name:            document.Name,
		FileURL:         document.FileURL,
	}

	if err := c.db.WithContext(ctx).Create(&data).Error; err != nil {
		return c.fail(ctx, span, "change_request_documents", "Error adding change request document", err,
			zap.Uint64("change_request_id", document.ChangeRequestID),
		)
	}

	span.SetStatus(codes.Ok, "Change request document added")
	document.ID = data.ID
	document.UploadedAt = data.UploadedAt

	return nil
}

// FindPendingReview implements repository.ChangeRequestRepository: the
// reviewer work queue, oldest submissions first.
func (c *changeRequestRepository) FindPendingReview(ctx context.Context, params domain.Params) ([]domain.PaymentMethodChangeRequest, int64, error) {
	ctx, span := c.tracer.Start(ctx, "repository.FindChangeRequestsPendingReview")
	defer span.End()

	span.SetAttributes(
		attribute.Int("pagination.page", params.Page),
		attribute.Int("pagination.limit", params.Limit),
	)

	statuses := []string{
		string(domain.ChangeDocumentsSubmitted),
		string(domain.ChangeUnderReview),
	}

	var total int64
	if err := c.db.WithContext(ctx).Model(&model.PaymentMethodChangeRequest{}).
		Where("status IN ?", statuses).
		Count(&total).Error; err != nil {
		return nil, 0, c.fail(ctx, span, "payment_method_change_requests", "Error counting pending reviews", err)
	}

	var requests []model.PaymentMethodChangeRequest
	offset := (params.Page - 1) * params.Limit
	err := c.db.WithContext(ctx).
		Where("status IN ?", statuses).
		Order("updated_at ASC").
		Limit(params.Limit).Offset(offset).
		Find(&requests).Error
	if err != nil {
		return nil, 0, c.fail(ctx, span, "payment_method_change_requests", "Error finding pending reviews", err)
	}

	span.SetStatus(codes.Ok, "Pending reviews found")
	span.SetAttributes(attribute.Int64("result.total", total))

	return model.ChangeRequestsToEntity(requests), total, nil
}

func NewChangeRequestRepository(
	db *gorm.DB,
	meter metric.Meter,
	tracer trace.Tracer,
	log *zap.Logger,
) repository.ChangeRequestRepository {
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

	return &changeRequestRepository{
		db:            db,
		meter:         meter,
		tracer:        tracer,
		log:           log,
		queryDuration: queryDuration,
		queryCount:    queryCount,
		errorCount:    errorCount,
	}
}
