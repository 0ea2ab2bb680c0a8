package ledgersrv

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/terravest/estatecore/internal/domain"
	"github.com/terravest/estatecore/internal/dto"
	"github.com/terravest/estatecore/internal/repository"
	contractrepo "github.com/terravest/estatecore/internal/repository/contract"
	eventrepo "github.com/terravest/estatecore/internal/repository/event"
	paymentrepo "github.com/terravest/estatecore/internal/repository/payment"
	templaterepo "github.com/terravest/estatecore/internal/repository/template"
	unitrepo "github.com/terravest/estatecore/internal/repository/unit"
	"github.com/terravest/estatecore/internal/service"
	"github.com/terravest/estatecore/internal/service/lifecycle"
	"github.com/terravest/estatecore/pkg/common"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ledgerService struct {
	db                *gorm.DB
	paymentRepository repository.PaymentRepository

	meter             metric.Meter
	tracer            trace.Tracer
	log               *zap.Logger
	operationDuration metric.Float64Histogram
	operationCount    metric.Int64Counter
	errorCount        metric.Int64Counter
	paymentsRecorded  metric.Int64Counter
	paymentsApplied   metric.Int64Counter
	amountApplied     metric.Float64Counter
}

func (s *ledgerService) start(ctx context.Context, op string) (context.Context, trace.Span, time.Time) {
	ctx, span := s.tracer.Start(ctx, "service."+op)
	s.operationCount.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("operation", op),
			attribute.String("service", "ledger"),
		),
	)
	return ctx, span, time.Now()
}

func (s *ledgerService) fail(ctx context.Context, span trace.Span, op, errType string, err error, fields ...zap.Field) error {
	span.SetStatus(codes.Error, err.Error())
	span.RecordError(err)

	s.errorCount.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("operation", op),
			attribute.String("service", "ledger"),
			attribute.String("error_type", errType),
		),
	)

	fields = append(fields,
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.Error(err),
	)
	s.log.Warn("Ledger operation failed", fields...)

	return err
}

func (s *ledgerService) done(ctx context.Context, span trace.Span, start time.Time, op, msg string, fields ...zap.Field) {
	duration := float64(time.Since(start).Milliseconds())
	s.operationDuration.Record(ctx, duration,
		metric.WithAttributes(
			attribute.String("operation", op),
			attribute.String("service", "ledger"),
			attribute.String("status", "success"),
		),
	)

	fields = append(fields,
		zap.Float64("duration_ms", duration),
		zap.String("trace_id", span.SpanContext().TraceID().String()),
	)
	s.log.Info(msg, fields...)

	span.SetStatus(codes.Ok, msg)
}

func (s *ledgerService) deps(tx *gorm.DB) lifecycle.Deps {
	return lifecycle.Deps{
		Contracts: contractrepo.NewContractRepository(tx, s.meter, s.tracer, s.log),
		Templates: templaterepo.NewTemplateRepository(tx, s.meter, s.tracer, s.log),
		Units:     unitrepo.NewUnitRepository(tx, s.meter, s.tracer, s.log),
		Events:    eventrepo.NewEventRepository(tx, s.meter, s.tracer, s.log),
	}
}

func outstandingTotal(open []domain.ContractInstallment) decimal.Decimal {
	total := decimal.Zero
	for _, ins := range open {
		total = total.Add(ins.Outstanding())
	}
	return total
}

// RecordPayment implements service.LedgerService: a PENDING payment row
// against the named installment or the contract as a whole. Replaying the
// same reference returns the existing payment instead of a duplicate.
func (s *ledgerService) RecordPayment(ctx context.Context, tenantID uint64, data dto.RecordPaymentRequest) (*domain.ContractPayment, error) {
	ctx, span, startAt := s.start(ctx, "RecordPayment")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("contract.id", int64(data.ContractID)),
		attribute.String("payment.reference", data.Reference),
	)

	if !data.Amount.IsPositive() {
		return nil, s.fail(ctx, span, "RecordPayment", "validation",
			common.Validation("payment amount must be positive, got %s", data.Amount))
	}

	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}
	defer tx.Rollback()

	d := s.deps(tx)
	payments := paymentrepo.NewPaymentRepository(tx, s.meter, s.tracer, s.log)

	existing, err := payments.FindByReference(ctx, data.Reference)
	if err != nil {
		return nil, s.fail(ctx, span, "RecordPayment", "repository_error", err)
	}
	if existing != nil {
		if existing.ContractID != data.ContractID || !existing.Amount.Equal(data.Amount) {
			return nil, s.fail(ctx, span, "RecordPayment", "state_conflict",
				common.StateConflict("reference %q is already used by another payment", data.Reference))
		}
		owner, err := d.Contracts.FindByID(ctx, data.ContractID)
		if err != nil {
			return nil, s.fail(ctx, span, "RecordPayment", "repository_error", err)
		}
		if owner == nil || owner.TenantID != tenantID {
			return nil, s.fail(ctx, span, "RecordPayment", "not_found",
				common.NotFound("contract %d not found", data.ContractID))
		}
		span.SetAttributes(attribute.Bool("payment.replayed", true))
		s.done(ctx, span, startAt, "RecordPayment", "Payment replayed",
			zap.Uint64("payment_id", existing.ID),
			zap.String("reference", data.Reference),
		)
		return existing, nil
	}

	contract, err := d.Contracts.FindByIDWithLock(ctx, data.ContractID)
	if err != nil {
		return nil, s.fail(ctx, span, "RecordPayment", "repository_error", err)
	}
	if contract == nil || contract.TenantID != tenantID {
		return nil, s.fail(ctx, span, "RecordPayment", "not_found",
			common.NotFound("contract %d not found", data.ContractID))
	}
	if contract.Status != domain.ContractActive {
		return nil, s.fail(ctx, span, "RecordPayment", "state_conflict",
			common.StateConflict("contract %d is %s, payments require an ACTIVE contract", contract.ID, contract.Status))
	}

	open, err := d.Contracts.FindOpenInstallments(ctx, contract.ID)
	if err != nil {
		return nil, s.fail(ctx, span, "RecordPayment", "repository_error", err)
	}

	payment := &domain.ContractPayment{
		ContractID:    contract.ID,
		Amount:        data.Amount,
		AppliedAmount: decimal.Zero,
		Method:        data.Method,
		Status:        domain.PaymentPending,
		Reference:     data.Reference,
	}

	if data.InstallmentID != nil {
		installment, err := d.Contracts.FindInstallmentByID(ctx, *data.InstallmentID)
		if err != nil {
			return nil, s.fail(ctx, span, "RecordPayment", "repository_error", err)
		}
		if installment == nil {
			return nil, s.fail(ctx, span, "RecordPayment", "not_found",
				common.NotFound("installment %d not found", *data.InstallmentID))
		}
		owned := false
		for _, ins := range open {
			if ins.ID == installment.ID {
				owned = true
				break
			}
		}
		if !owned {
			return nil, s.fail(ctx, span, "RecordPayment", "state_conflict",
				common.StateConflict("installment %d is not open on contract %d", installment.ID, contract.ID))
		}
		if data.Amount.GreaterThan(installment.Outstanding()) {
			return nil, s.fail(ctx, span, "RecordPayment", "overpayment",
				common.Overpayment("amount %s exceeds installment outstanding %s", data.Amount, installment.Outstanding()))
		}
		payment.InstallmentID = &installment.ID
		payment.PhaseID = &installment.PhaseID
	} else if data.Amount.GreaterThan(outstandingTotal(open)) {
		return nil, s.fail(ctx, span, "RecordPayment", "overpayment",
			common.Overpayment("amount %s exceeds contract outstanding %s", data.Amount, outstandingTotal(open)))
	}

	if err := payments.CreatePayment(ctx, payment); err != nil {
		return nil, s.fail(ctx, span, "RecordPayment", "repository_error", err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.paymentsRecorded.Add(ctx, 1)
	s.done(ctx, span, startAt, "RecordPayment", "Payment recorded",
		zap.Uint64("payment_id", payment.ID),
		zap.String("reference", payment.Reference),
		zap.String("amount", payment.Amount.String()),
	)
	return payment, nil
}

// ProcessCallback implements service.LedgerService: the gateway confirmation
// that actually moves money. The COMPLETED path applies the amount against
// the named installment first, then oldest-first across the remaining open
// installments. Replayed callbacks with the same outcome are no-ops.
func (s *ledgerService) ProcessCallback(ctx context.Context, data dto.PaymentCallbackRequest) (*domain.ContractPayment, error) {
	ctx, span, startAt := s.start(ctx, "ProcessPaymentCallback")
	defer span.End()

	span.SetAttributes(
		attribute.String("payment.reference", data.Reference),
		attribute.String("callback.status", data.Status),
	)

	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}
	defer tx.Rollback()

	d := s.deps(tx)
	payments := paymentrepo.NewPaymentRepository(tx, s.meter, s.tracer, s.log)

	payment, err := payments.FindByReference(ctx, data.Reference)
	if err != nil {
		return nil, s.fail(ctx, span, "ProcessPaymentCallback", "repository_error", err)
	}
	if payment == nil {
		return nil, s.fail(ctx, span, "ProcessPaymentCallback", "not_found",
			common.NotFound("payment with reference %q not found", data.Reference))
	}

	if payment.Status != domain.PaymentPending {
		if string(payment.Status) == data.Status {
			span.SetAttributes(attribute.Bool("callback.replayed", true))
			s.done(ctx, span, startAt, "ProcessPaymentCallback", "Callback replayed",
				zap.Uint64("payment_id", payment.ID),
			)
			return payment, nil
		}
		return nil, s.fail(ctx, span, "ProcessPaymentCallback", "state_conflict",
			common.StateConflict("payment %d is already %s", payment.ID, payment.Status))
	}

	contract, err := d.Contracts.FindByIDWithLock(ctx, payment.ContractID)
	if err != nil {
		return nil, s.fail(ctx, span, "ProcessPaymentCallback", "repository_error", err)
	}
	if contract == nil {
		return nil, s.fail(ctx, span, "ProcessPaymentCallback", "not_found",
			common.NotFound("contract %d not found", payment.ContractID))
	}

	now := time.Now()
	payment.GatewayTransactionID = data.GatewayTransactionID

	if data.Status == string(domain.PaymentFailed) {
		payment.Status = domain.PaymentFailed
		payment.CompletedAt = &now
		if err := payments.UpdatePayment(ctx, payment); err != nil {
			return nil, s.fail(ctx, span, "ProcessPaymentCallback", "repository_error", err)
		}
		if err := d.Events.Append(ctx, domain.NewEvent(domain.AggregateContract, contract.ID, contract.TenantID,
			domain.EventPaymentFailed, map[string]any{
				"payment_id": payment.ID,
				"reference":  payment.Reference,
			})); err != nil {
			return nil, s.fail(ctx, span, "ProcessPaymentCallback", "repository_error", err)
		}
		if err := tx.Commit().Error; err != nil {
			return nil, fmt.Errorf("failed to commit transaction: %w", err)
		}

		s.done(ctx, span, startAt, "ProcessPaymentCallback", "Payment marked failed",
			zap.Uint64("payment_id", payment.ID),
		)
		return payment, nil
	}

	open, err := d.Contracts.FindOpenInstallments(ctx, contract.ID)
	if err != nil {
		return nil, s.fail(ctx, span, "ProcessPaymentCallback", "repository_error", err)
	}
	if payment.InstallmentID != nil {
		// The cap was checked when the payment was recorded, but other
		// payments may have landed on the installment since. Re-check
		// before applying so nothing spills into the rest of the schedule.
		outstanding := decimal.Zero
		for i := range open {
			if open[i].ID == *payment.InstallmentID {
				outstanding = open[i].Outstanding()
				break
			}
		}
		if payment.Amount.GreaterThan(outstanding) {
			return nil, s.fail(ctx, span, "ProcessPaymentCallback", "overpayment",
				common.Overpayment("payment %s exceeds outstanding %s on installment %d",
					payment.Amount, outstanding, *payment.InstallmentID))
		}
		open = prioritize(open, *payment.InstallmentID)
	}

	applied, _, err := lifecycle.ApplyPayment(ctx, d, contract, open, payment.Amount, fmt.Sprintf("payment:%d", payment.ID), now)
	if err != nil {
		return nil, s.fail(ctx, span, "ProcessPaymentCallback", "apply_failed", err)
	}

	payment.Status = domain.PaymentCompleted
	payment.AppliedAmount = applied
	payment.CompletedAt = &now
	if err := payments.UpdatePayment(ctx, payment); err != nil {
		return nil, s.fail(ctx, span, "ProcessPaymentCallback", "repository_error", err)
	}

	if err := d.Events.Append(ctx, domain.NewEvent(domain.AggregateContract, contract.ID, contract.TenantID,
		domain.EventPaymentCompleted, map[string]any{
			"payment_id": payment.ID,
			"reference":  payment.Reference,
			"amount":     payment.Amount,
			"applied":    applied,
		})); err != nil {
		return nil, s.fail(ctx, span, "ProcessPaymentCallback", "repository_error", err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.paymentsApplied.Add(ctx, 1)
	applF, _ := applied.Float64()
	s.amountApplied.Add(ctx, applF)
	s.done(ctx, span, startAt, "ProcessPaymentCallback", "Payment applied",
		zap.Uint64("payment_id", payment.ID),
		zap.String("applied", applied.String()),
	)
	return payment, nil
}

// prioritize moves the named installment to the front of the allocation
// order without disturbing the rest.
func prioritize(open []domain.ContractInstallment, installmentID uint64) []domain.ContractInstallment {
	for i := range open {
		if open[i].ID == installmentID {
			first := open[i]
			rest := append(append([]domain.ContractInstallment{}, open[:i]...), open[i+1:]...)
			return append([]domain.ContractInstallment{first}, rest...)
		}
	}
	return open
}

// PayAhead implements service.LedgerService: one completed payment allocated
// oldest-first across every open installment of the contract's active
// payment phases. The remainder above the total outstanding stays unapplied
// and is reported back; it never rolls into phases that are not yet active.
func (s *ledgerService) PayAhead(ctx context.Context, tenantID, contractID uint64, data dto.PayAheadRequest) (*dto.PayAheadResponse, error) {
	ctx, span, startAt := s.start(ctx, "PayAhead")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("contract.id", int64(contractID)),
		attribute.String("payment.reference", data.Reference),
	)

	if !data.Amount.IsPositive() {
		return nil, s.fail(ctx, span, "PayAhead", "validation",
			common.Validation("pay-ahead amount must be positive, got %s", data.Amount))
	}

	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}
	defer tx.Rollback()

	d := s.deps(tx)
	payments := paymentrepo.NewPaymentRepository(tx, s.meter, s.tracer, s.log)

	existing, err := payments.FindByReference(ctx, data.Reference)
	if err != nil {
		return nil, s.fail(ctx, span, "PayAhead", "repository_error", err)
	}
	if existing != nil {
		if existing.ContractID != contractID || !existing.Amount.Equal(data.Amount) {
			return nil, s.fail(ctx, span, "PayAhead", "state_conflict",
				common.StateConflict("reference %q is already used by another payment", data.Reference))
		}
		owner, err := d.Contracts.FindByID(ctx, contractID)
		if err != nil {
			return nil, s.fail(ctx, span, "PayAhead", "repository_error", err)
		}
		if owner == nil || owner.TenantID != tenantID {
			return nil, s.fail(ctx, span, "PayAhead", "not_found",
				common.NotFound("contract %d not found", contractID))
		}
		span.SetAttributes(attribute.Bool("payment.replayed", true))
		s.done(ctx, span, startAt, "PayAhead", "Pay-ahead replayed",
			zap.Uint64("payment_id", existing.ID),
		)
		return &dto.PayAheadResponse{
			PaymentID:       existing.ID,
			Amount:          existing.Amount,
			AppliedAmount:   existing.AppliedAmount,
			UnappliedAmount: existing.Amount.Sub(existing.AppliedAmount),
		}, nil
	}

	contract, err := d.Contracts.FindByIDWithLock(ctx, contractID)
	if err != nil {
		return nil, s.fail(ctx, span, "PayAhead", "repository_error", err)
	}
	if contract == nil || contract.TenantID != tenantID {
		return nil, s.fail(ctx, span, "PayAhead", "not_found",
			common.NotFound("contract %d not found", contractID))
	}
	if contract.Status != domain.ContractActive {
		return nil, s.fail(ctx, span, "PayAhead", "state_conflict",
			common.StateConflict("contract %d is %s, pay-ahead requires an ACTIVE contract", contractID, contract.Status))
	}

	open, err := d.Contracts.FindOpenInstallments(ctx, contractID)
	if err != nil {
		return nil, s.fail(ctx, span, "PayAhead", "repository_error", err)
	}
	if len(open) == 0 {
		return nil, s.fail(ctx, span, "PayAhead", "state_conflict",
			common.StateConflict("contract %d has no open installments", contractID))
	}

	now := time.Now()
	payment := &domain.ContractPayment{
		ContractID:    contractID,
		Amount:        data.Amount,
		AppliedAmount: decimal.Zero,
		Method:        data.Method,
		Status:        domain.PaymentPending,
		Reference:     data.Reference,
	}
	if err := payments.CreatePayment(ctx, payment); err != nil {
		return nil, s.fail(ctx, span, "PayAhead", "repository_error", err)
	}

	applied, hit, err := lifecycle.ApplyPayment(ctx, d, contract, open, data.Amount, fmt.Sprintf("payment:%d", payment.ID), now)
	if err != nil {
		return nil, s.fail(ctx, span, "PayAhead", "apply_failed", err)
	}

	payment.Status = domain.PaymentCompleted
	payment.AppliedAmount = applied
	payment.CompletedAt = &now
	if err := payments.UpdatePayment(ctx, payment); err != nil {
		return nil, s.fail(ctx, span, "PayAhead", "repository_error", err)
	}

	if err := d.Events.Append(ctx, domain.NewEvent(domain.AggregateContract, contractID, tenantID,
		domain.EventPaymentCompleted, map[string]any{
			"payment_id": payment.ID,
			"reference":  payment.Reference,
			"amount":     payment.Amount,
			"applied":    applied,
			"pay_ahead":  true,
		})); err != nil {
		return nil, s.fail(ctx, span, "PayAhead", "repository_error", err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.paymentsApplied.Add(ctx, 1)
	applF, _ := applied.Float64()
	s.amountApplied.Add(ctx, applF)
	s.done(ctx, span, startAt, "PayAhead", "Pay-ahead applied",
		zap.Uint64("payment_id", payment.ID),
		zap.String("applied", applied.String()),
		zap.Int("installments_hit", hit),
	)

	return &dto.PayAheadResponse{
		PaymentID:       payment.ID,
		Amount:          payment.Amount,
		AppliedAmount:   applied,
		UnappliedAmount: payment.Amount.Sub(applied),
		InstallmentsHit: hit,
	}, nil
}

// ListByContract implements service.LedgerService.
func (s *ledgerService) ListByContract(ctx context.Context, tenantID, contractID uint64) ([]domain.ContractPayment, error) {
	ctx, span, startAt := s.start(ctx, "ListContractPayments")
	defer span.End()

	contracts := contractrepo.NewContractRepository(s.db, s.meter, s.tracer, s.log)
	contract, err := contracts.FindByID(ctx, contractID)
	if err != nil {
		return nil, s.fail(ctx, span, "ListContractPayments", "repository_error", err)
	}
	if contract == nil || contract.TenantID != tenantID {
		return nil, s.fail(ctx, span, "ListContractPayments", "not_found",
			common.NotFound("contract %d not found", contractID))
	}

	list, err := s.paymentRepository.FindByContractID(ctx, contractID)
	if err != nil {
		return nil, s.fail(ctx, span, "ListContractPayments", "repository_error", err)
	}

	s.done(ctx, span, startAt, "ListContractPayments", "Payments listed",
		zap.Uint64("contract_id", contractID),
		zap.Int("count", len(list)),
	)
	return list, nil
}

func NewLedgerService(
	db *gorm.DB,
	paymentRepository repository.PaymentRepository,
	meter metric.Meter,
	tracer trace.Tracer,
	log *zap.Logger,
) service.LedgerService {
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

	paymentsRecorded, _ := meter.Int64Counter(
		"service.payments.recorded",
		metric.WithDescription("Number of payments recorded"),
		metric.WithUnit("{payment}"),
	)

	paymentsApplied, _ := meter.Int64Counter(
		"service.payments.applied",
		metric.WithDescription("Number of payments applied to installments"),
		metric.WithUnit("{payment}"),
	)

	amountApplied, _ := meter.Float64Counter(
		"service.payments.amount_applied",
		metric.WithDescription("Total monetary amount applied to installments"),
		metric.WithUnit("{money}"),
	)

	return &ledgerService{
		db:                db,
		paymentRepository: paymentRepository,

		meter:             meter,
		tracer:            tracer,
		log:               log,
		operationDuration: operationDuration,
		operationCount:    operationCount,
		errorCount:        errorCount,
		paymentsRecorded:  paymentsRecorded,
		paymentsApplied:   paymentsApplied,
		amountApplied:     amountApplied,
	}
}
