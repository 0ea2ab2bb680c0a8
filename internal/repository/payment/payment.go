package paymentrepo

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

type paymentRepository struct {
	db            *gorm.DB
	meter         metric.Meter
	tracer        trace.Tracer
	log           *zap.Logger
	queryDuration metric.Float64Histogram
	queryCount    metric.Int64Counter
	errorCount    metric.Int64Counter
}

func (p *paymentRepository) fail(ctx context.Context, span trace.Span, msg string, err error, fields ...zap.Field) error {
	span.SetStatus(codes.Error, msg)
	span.RecordError(err)

	p.errorCount.Add(ctx, 1,
		metric.WithAttributes(attribute.String("table", "contract_payments")),
	)

	fields = append(fields,
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.Error(err),
	)
	p.log.Error(msg, fields...)

	return err
}

// CreatePayment implements repository.PaymentRepository. The unique index on
// reference turns a concurrent double submission into a storage error the
// service maps to the idempotent replay path.
func (p *paymentRepository) CreatePayment(ctx context.Context, payment *domain.ContractPayment) error {
	ctx, span := p.tracer.Start(ctx, "repository.CreatePayment")
	defer span.End()

	start := time.Now()

	p.queryCount.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("operation", "insert"),
			attribute.String("table", "contract_payments"),
		),
	)

	span.SetAttributes(
		attribute.Int64("contract.id", int64(payment.ContractID)),
		attribute.String("payment.reference", payment.Reference),
	)

	data := model.PaymentFromEntity(payment)
	if err := p.db.WithContext(ctx).Create(&data).Error; err != nil {
		return p.fail(ctx, span, "Error creating payment", err,
			zap.Uint64("contract_id", payment.ContractID),
			zap.String("reference", payment.Reference),
		)
	}

	p.queryDuration.Record(ctx, float64(time.Since(start).Milliseconds()),
		metric.WithAttributes(
			attribute.String("operation", "insert"),
			attribute.String("table", "contract_payments"),
			attribute.String("status", "success"),
		),
	)

	span.SetStatus(codes.Ok, "Payment created")
	payment.ID = data.ID

	return nil
}

// FindByID implements repository.PaymentRepository.
func (p *paymentRepository) FindByID(ctx context.Context, id uint64) (*domain.ContractPayment, error) {
	ctx, span := p.tracer.Start(ctx, "repository.FindPaymentByID")
	defer span.End()

	var payment model.ContractPayment
	err := p.db.WithContext(ctx).First(&payment, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.SetStatus(codes.Ok, "Payment not found")
			return nil, nil
		}
		return nil, p.fail(ctx, span, "Error finding payment", err,
			zap.Uint64("payment_id", id),
		)
	}

	span.SetStatus(codes.Ok, "Payment found")
	return model.PaymentToEntity(payment), nil
}

// FindByReference implements repository.PaymentRepository. The reference is
// the caller-supplied idempotency key.
func (p *paymentRepository) FindByReference(ctx context.Context, reference string) (*domain.ContractPayment, error) {
	ctx, span := p.tracer.Start(ctx, "repository.FindPaymentByReference")
	defer span.End()

	span.SetAttributes(attribute.String("payment.reference", reference))

	var payment model.ContractPayment
	err := p.db.WithContext(ctx).Where("reference = ?", reference).First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.SetStatus(codes.Ok, "Payment not found")
			return nil, nil
		}
		return nil, p.fail(ctx, span, "Error finding payment by reference", err,
			zap.String("reference", reference),
		)
	}

	span.SetStatus(codes.Ok, "Payment found")
	return model.PaymentToEntity(payment), nil
}

// UpdatePayment implements repository.PaymentRepository.
func (p *paymentRepository) UpdatePayment(ctx context.Context, payment *domain.ContractPayment) error {
	ctx, span := p.tracer.Start(ctx, "repository.UpdatePayment")
	defer span.End()

	data := model.PaymentFromEntity(payment)
	err := p.db.WithContext(ctx).Model(&model.ContractPayment{ID: payment.ID}).
		Select("status", "applied_amount", "phase_id", "installment_id",
			"gateway_transaction_id", "completed_at").
		Updates(&data).Error
	if err != nil {
		return p.fail(ctx, span, "Error updating payment", err,
			zap.Uint64("payment_id", payment.ID),
		)
	}

	span.SetStatus(codes.Ok, "Payment updated")
	return nil
}

// FindByContractID implements repository.PaymentRepository.
func (p *paymentRepository) FindByContractID(ctx context.Context, contractID uint64) ([]domain.ContractPayment, error) {
	ctx, span := p.tracer.Start(ctx, "repository.FindPaymentsByContractID")
	defer span.End()

	span.SetAttributes(attribute.Int64("contract.id", int64(contractID)))

	var payments []model.ContractPayment
	err := p.db.WithContext(ctx).
		Where("contract_id = ?", contractID).
		Order("created_at DESC, id DESC").
		Find(&payments).Error
	if err != nil {
		return nil, p.fail(ctx, span, "Error finding payments", err,
			zap.Uint64("contract_id", contractID),
		)
	}

	span.SetStatus(codes.Ok, "Payments found")
	span.SetAttributes(attribute.Int("result.count", len(payments)))

	return model.PaymentsToEntity(payments), nil
}

func NewPaymentRepository(
	db *gorm.DB,
	meter metric.Meter,
	tracer trace.Tracer,
	log *zap.Logger,
) repository.PaymentRepository {
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

	return &paymentRepository{
		db:            db,
		meter:         meter,
		tracer:        tracer,
		log:           log,
		queryDuration: queryDuration,
		queryCount:    queryCount,
		errorCount:    errorCount,
	}
}
