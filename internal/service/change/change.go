package changesrv

import (
	"context"
	"fmt"
	"mime/multipart"
	"time"

	"github.com/shopspring/decimal"
	"github.com/terravest/estatecore/internal/amortization"
	"github.com/terravest/estatecore/internal/domain"
	"github.com/terravest/estatecore/internal/dto"
	"github.com/terravest/estatecore/internal/repository"
	changerepo "github.com/terravest/estatecore/internal/repository/change"
	contractrepo "github.com/terravest/estatecore/internal/repository/contract"
	eventrepo "github.com/terravest/estatecore/internal/repository/event"
	templaterepo "github.com/terravest/estatecore/internal/repository/template"
	"github.com/terravest/estatecore/internal/service"
	"github.com/terravest/estatecore/pkg/common"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type changeService struct {
	db                      *gorm.DB
	changeRequestRepository repository.ChangeRequestRepository
	contractRepository      repository.ContractRepository
	media                   service.MediaService

	meter             metric.Meter
	tracer            trace.Tracer
	log               *zap.Logger
	operationDuration metric.Float64Histogram
	operationCount    metric.Int64Counter
	errorCount        metric.Int64Counter
	requestsCreated   metric.Int64Counter
	requestsExecuted  metric.Int64Counter
}

func (s *changeService) start(ctx context.Context, op string) (context.Context, trace.Span, time.Time) {
	ctx, span := s.tracer.Start(ctx, "service."+op)
	s.operationCount.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("operation", op),
			attribute.String("service", "change"),
		),
	)
	return ctx, span, time.Now()
}

func (s *changeService) fail(ctx context.Context, span trace.Span, op, errType string, err error, fields ...zap.Field) error {
	span.SetStatus(codes.Error, err.Error())
	span.RecordError(err)

	s.errorCount.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("operation", op),
			attribute.String("service", "change"),
			attribute.String("error_type", errType),
		),
	)

	fields = append(fields,
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.Error(err),
	)
	s.log.Warn("Change workflow operation failed", fields...)

	return err
}

func (s *changeService) done(ctx context.Context, span trace.Span, start time.Time, op, msg string, fields ...zap.Field) {
	duration := float64(time.Since(start).Milliseconds())
	s.operationDuration.Record(ctx, duration,
		metric.WithAttributes(
			attribute.String("operation", op),
			attribute.String("service", "change"),
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

// paymentPlanOf returns the first payment phase definition of a template and
// its amortization plan.
func paymentPlanOf(template *domain.PaymentMethodTemplate) (*domain.TemplatePhase, *domain.AmortizationPlan) {
	for i := range template.Phases {
		if template.Phases[i].PaymentPhase() && template.Phases[i].AmortizationPlan != nil {
			return &template.Phases[i], template.Phases[i].AmortizationPlan
		}
	}
	return nil, nil
}

// activeOutstanding sums the remaining amounts of the contract's ACTIVE
// payment phases.
func activeOutstanding(phases []domain.ContractPhase) decimal.Decimal {
	total := decimal.Zero
	for _, p := range phases {
		if p.Category == domain.CategoryPayment && p.Status == domain.PhaseActive {
			total = total.Add(p.RemainingAmount)
		}
	}
	return total
}

// Create implements service.ChangeService. The outstanding balance is
// snapshotted and the new terms previewed with the engine, so the reviewer
// sees the numbers the execution will reproduce.
func (s *changeService) Create(ctx context.Context, tenantID, contractID, initiatorID uint64, data dto.CreateChangeRequest) (*domain.PaymentMethodChangeRequest, error) {
	ctx, span, startAt := s.start(ctx, "CreateChangeRequest")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("contract.id", int64(contractID)),
		attribute.Int64("template.to", int64(data.ToTemplateID)),
	)

	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}
	defer tx.Rollback()

	contracts := contractrepo.NewContractRepository(tx, s.meter, s.tracer, s.log)
	templates := templaterepo.NewTemplateRepository(tx, s.meter, s.tracer, s.log)
	changes := changerepo.NewChangeRequestRepository(tx, s.meter, s.tracer, s.log)
	events := eventrepo.NewEventRepository(tx, s.meter, s.tracer, s.log)

	contract, err := contracts.FindByIDWithLock(ctx, contractID)
	if err != nil {
		return nil, s.fail(ctx, span, "CreateChangeRequest", "repository_error", err)
	}
	if contract == nil || contract.TenantID != tenantID {
		return nil, s.fail(ctx, span, "CreateChangeRequest", "not_found",
			common.NotFound("contract %d not found", contractID))
	}
	if contract.Status != domain.ContractActive {
		return nil, s.fail(ctx, span, "CreateChangeRequest", "state_conflict",
			common.StateConflict("contract %d is %s, payment method changes require an ACTIVE contract", contractID, contract.Status))
	}

	active, err := changes.FindActiveByContractID(ctx, contractID)
	if err != nil {
		return nil, s.fail(ctx, span, "CreateChangeRequest", "repository_error", err)
	}
	if active != nil {
		return nil, s.fail(ctx, span, "CreateChangeRequest", "state_conflict",
			common.StateConflict("contract %d already has change request %d in progress", contractID, active.ID))
	}

	if data.ToTemplateID == contract.PaymentMethodTemplateID {
		return nil, s.fail(ctx, span, "CreateChangeRequest", "validation",
			common.Validation("target template equals the contract's current template"))
	}

	template, err := templates.FindByID(ctx, data.ToTemplateID)
	if err != nil {
		return nil, s.fail(ctx, span, "CreateChangeRequest", "repository_error", err)
	}
	if template == nil {
		return nil, s.fail(ctx, span, "CreateChangeRequest", "not_found",
			common.NotFound("payment method template %d not found", data.ToTemplateID))
	}
	_, plan := paymentPlanOf(template)
	if plan == nil {
		return nil, s.fail(ctx, span, "CreateChangeRequest", "validation",
			common.Validation("template %q has no payment phase with an amortization plan", template.Name))
	}

	phases, err := contracts.FindPhasesByContractID(ctx, contractID)
	if err != nil {
		return nil, s.fail(ctx, span, "CreateChangeRequest", "repository_error", err)
	}
	outstanding := activeOutstanding(phases)
	if !outstanding.IsPositive() {
		return nil, s.fail(ctx, span, "CreateChangeRequest", "state_conflict",
			common.StateConflict("contract %d has no outstanding balance on an active payment phase", contractID))
	}

	termMonths, monthlyPayment, err := amortization.Preview(outstanding, *plan, time.Now())
	if err != nil {
		return nil, s.fail(ctx, span, "CreateChangeRequest", "validation", err)
	}

	request := &domain.PaymentMethodChangeRequest{
		ContractID:         contractID,
		FromTemplateID:     contract.PaymentMethodTemplateID,
		ToTemplateID:       data.ToTemplateID,
		Reason:             data.Reason,
		CurrentOutstanding: outstanding,
		NewTermMonths:      termMonths,
		NewInterestRate:    plan.AnnualRate,
		NewMonthlyPayment:  monthlyPayment,
		Status:             domain.ChangePendingDocuments,
		InitiatorID:        initiatorID,
	}

	if err := changes.Create(ctx, request); err != nil {
		return nil, s.fail(ctx, span, "CreateChangeRequest", "repository_error", err)
	}

	if err := events.Append(ctx, domain.NewEvent(domain.AggregateChangeRequest, request.ID, tenantID,
		domain.EventChangeRequested, map[string]any{
			"contract_id":   contractID,
			"from_template": request.FromTemplateID,
			"to_template":   request.ToTemplateID,
			"outstanding":   outstanding,
		})); err != nil {
		return nil, s.fail(ctx, span, "CreateChangeRequest", "repository_error", err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.requestsCreated.Add(ctx, 1)
	s.done(ctx, span, startAt, "CreateChangeRequest", "Change request created",
		zap.Uint64("change_request_id", request.ID),
		zap.Uint64("contract_id", contractID),
		zap.String("outstanding", outstanding.String()),
	)
	return request, nil
}

// load fetches a request and checks tenant ownership through its contract.
func (s *changeService) load(ctx context.Context, changes repository.ChangeRequestRepository, contracts repository.ContractRepository, tenantID, requestID uint64) (*domain.PaymentMethodChangeRequest, *domain.Contract, error) {
	request, err := changes.FindByID(ctx, requestID)
	if err != nil {
		return nil, nil, err
	}
	if request == nil {
		return nil, nil, common.NotFound("change request %d not found", requestID)
	}
	contract, err := contracts.FindByID(ctx, request.ContractID)
	if err != nil {
		return nil, nil, err
	}
	if contract == nil || contract.TenantID != tenantID {
		return nil, nil, common.NotFound("change request %d not found", requestID)
	}
	return request, contract, nil
}

// SubmitDocument implements service.ChangeService.
func (s *changeService) SubmitDocument(ctx context.Context, tenantID, requestID, actorID uint64, name string, file *multipart.FileHeader) (*domain.PaymentMethodChangeRequest, error) {
	ctx, span, startAt := s.start(ctx, "SubmitChangeDocument")
	defer span.End()

	if file == nil {
		return nil, s.fail(ctx, span, "SubmitChangeDocument", "validation",
			common.Validation("document file is required"))
	}

	fileURL, err := s.media.Upload(ctx, file, fmt.Sprintf("change-requests/%d", requestID))
	if err != nil {
		return nil, s.fail(ctx, span, "SubmitChangeDocument", "upload_failed", err)
	}

	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}
	defer tx.Rollback()

	changes := changerepo.NewChangeRequestRepository(tx, s.meter, s.tracer, s.log)
	contracts := contractrepo.NewContractRepository(tx, s.meter, s.tracer, s.log)

	request, _, err := s.load(ctx, changes, contracts, tenantID, requestID)
	if err != nil {
		return nil, s.fail(ctx, span, "SubmitChangeDocument", "not_found", err)
	}
	if request.Status != domain.ChangePendingDocuments && request.Status != domain.ChangeDocumentsSubmitted {
		return nil, s.fail(ctx, span, "SubmitChangeDocument", "state_conflict",
			common.StateConflict("change request %d is %s, documents are no longer accepted", requestID, request.Status))
	}

	if err := changes.AddDocument(ctx, &domain.ChangeRequestDocument{
		ChangeRequestID: requestID,
		Name:            name,
		FileURL:         fileURL,
	}); err != nil {
		return nil, s.fail(ctx, span, "SubmitChangeDocument", "repository_error", err)
	}

	if request.Status == domain.ChangePendingDocuments {
		request.Status = domain.ChangeDocumentsSubmitted
		if err := changes.Update(ctx, request); err != nil {
			return nil, s.fail(ctx, span, "SubmitChangeDocument", "repository_error", err)
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.done(ctx, span, startAt, "SubmitChangeDocument", "Change document submitted",
		zap.Uint64("change_request_id", requestID),
		zap.String("file_url", fileURL),
	)
	return request, nil
}

// review moves a request through one reviewer transition.
func (s *changeService) review(ctx context.Context, span trace.Span, op string, tenantID, requestID uint64, to domain.ChangeRequestStatus, mutate func(*domain.PaymentMethodChangeRequest), eventType string) (*domain.PaymentMethodChangeRequest, error) {
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}
	defer tx.Rollback()

	changes := changerepo.NewChangeRequestRepository(tx, s.meter, s.tracer, s.log)
	contracts := contractrepo.NewContractRepository(tx, s.meter, s.tracer, s.log)
	events := eventrepo.NewEventRepository(tx, s.meter, s.tracer, s.log)

	request, contract, err := s.load(ctx, changes, contracts, tenantID, requestID)
	if err != nil {
		return nil, s.fail(ctx, span, op, "not_found", err)
	}
	if !request.Status.CanTransition(to) {
		return nil, s.fail(ctx, span, op, "state_conflict",
			common.StateConflict("change request %d cannot go from %s to %s", requestID, request.Status, to))
	}

	request.Status = to
	mutate(request)

	if err := changes.Update(ctx, request); err != nil {
		return nil, s.fail(ctx, span, op, "repository_error", err)
	}

	if eventType != "" {
		if err := events.Append(ctx, domain.NewEvent(domain.AggregateChangeRequest, request.ID, contract.TenantID,
			eventType, map[string]any{
				"contract_id": request.ContractID,
				"status":      request.Status,
			})); err != nil {
			return nil, s.fail(ctx, span, op, "repository_error", err)
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return request, nil
}

// StartReview implements service.ChangeService.
func (s *changeService) StartReview(ctx context.Context, tenantID, requestID, reviewerID uint64) (*domain.PaymentMethodChangeRequest, error) {
	ctx, span, startAt := s.start(ctx, "StartChangeReview")
	defer span.End()

	request, err := s.review(ctx, span, "StartChangeReview", tenantID, requestID, domain.ChangeUnderReview,
		func(r *domain.PaymentMethodChangeRequest) {
			r.ReviewerID = &reviewerID
		}, "")
	if err != nil {
		return nil, err
	}

	s.done(ctx, span, startAt, "StartChangeReview", "Change request under review",
		zap.Uint64("change_request_id", requestID),
		zap.Uint64("reviewer_id", reviewerID),
	)
	return request, nil
}

// Approve implements service.ChangeService.
func (s *changeService) Approve(ctx context.Context, tenantID, requestID, reviewerID uint64, notes string) (*domain.PaymentMethodChangeRequest, error) {
	ctx, span, startAt := s.start(ctx, "ApproveChangeRequest")
	defer span.End()

	now := time.Now()
	request, err := s.review(ctx, span, "ApproveChangeRequest", tenantID, requestID, domain.ChangeApproved,
		func(r *domain.PaymentMethodChangeRequest) {
			r.ReviewerID = &reviewerID
			r.ReviewNotes = notes
			r.ReviewedAt = &now
		}, domain.EventChangeApproved)
	if err != nil {
		return nil, err
	}

	s.done(ctx, span, startAt, "ApproveChangeRequest", "Change request approved",
		zap.Uint64("change_request_id", requestID),
	)
	return request, nil
}

// Reject implements service.ChangeService.
func (s *changeService) Reject(ctx context.Context, tenantID, requestID, reviewerID uint64, reason string) (*domain.PaymentMethodChangeRequest, error) {
	ctx, span, startAt := s.start(ctx, "RejectChangeRequest")
	defer span.End()

	if reason == "" {
		return nil, s.fail(ctx, span, "RejectChangeRequest", "validation",
			common.Validation("rejection reason is required"))
	}

	now := time.Now()
	request, err := s.review(ctx, span, "RejectChangeRequest", tenantID, requestID, domain.ChangeRejected,
		func(r *domain.PaymentMethodChangeRequest) {
			r.ReviewerID = &reviewerID
			r.RejectionReason = reason
			r.ReviewedAt = &now
		}, domain.EventChangeRejected)
	if err != nil {
		return nil, err
	}

	s.done(ctx, span, startAt, "RejectChangeRequest", "Change request rejected",
		zap.Uint64("change_request_id", requestID),
		zap.String("reason", reason),
	)
	return request, nil
}

// Cancel implements service.ChangeService. Only the initiator can cancel,
// and only before a review decision.
func (s *changeService) Cancel(ctx context.Context, tenantID, requestID, actorID uint64) (*domain.PaymentMethodChangeRequest, error) {
	ctx, span, startAt := s.start(ctx, "CancelChangeRequest")
	defer span.End()

	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}
	defer tx.Rollback()

	changes := changerepo.NewChangeRequestRepository(tx, s.meter, s.tracer, s.log)
	contracts := contractrepo.NewContractRepository(tx, s.meter, s.tracer, s.log)
	events := eventrepo.NewEventRepository(tx, s.meter, s.tracer, s.log)

	request, contract, err := s.load(ctx, changes, contracts, tenantID, requestID)
	if err != nil {
		return nil, s.fail(ctx, span, "CancelChangeRequest", "not_found", err)
	}
	if request.InitiatorID != actorID {
		return nil, s.fail(ctx, span, "CancelChangeRequest", "validation",
			common.Validation("only the initiator can cancel change request %d", requestID))
	}
	if !request.Status.CanTransition(domain.ChangeCancelled) {
		return nil, s.fail(ctx, span, "CancelChangeRequest", "state_conflict",
			common.StateConflict("change request %d is %s and cannot be cancelled", requestID, request.Status))
	}

	request.Status = domain.ChangeCancelled
	if err := changes.Update(ctx, request); err != nil {
		return nil, s.fail(ctx, span, "CancelChangeRequest", "repository_error", err)
	}
	if err := events.Append(ctx, domain.NewEvent(domain.AggregateChangeRequest, request.ID, contract.TenantID,
		domain.EventChangeCancelled, map[string]any{"contract_id": request.ContractID})); err != nil {
		return nil, s.fail(ctx, span, "CancelChangeRequest", "repository_error", err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.done(ctx, span, startAt, "CancelChangeRequest", "Change request cancelled",
		zap.Uint64("change_request_id", requestID),
	)
	return request, nil
}

// Execute implements service.ChangeService: the atomic cut-over. Active
// payment phases freeze as SUPERSEDED with their paid amounts intact, a
// replacement phase activates on the new plan against the recomputed
// outstanding, and the contract's template reference swaps. Executing an
// already EXECUTED request returns it unchanged.
func (s *changeService) Execute(ctx context.Context, tenantID, requestID, actorID uint64) (*domain.PaymentMethodChangeRequest, error) {
	ctx, span, startAt := s.start(ctx, "ExecuteChangeRequest")
	defer span.End()

	span.SetAttributes(attribute.Int64("change_request.id", int64(requestID)))

	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}
	defer tx.Rollback()

	changes := changerepo.NewChangeRequestRepository(tx, s.meter, s.tracer, s.log)
	contracts := contractrepo.NewContractRepository(tx, s.meter, s.tracer, s.log)
	templates := templaterepo.NewTemplateRepository(tx, s.meter, s.tracer, s.log)
	events := eventrepo.NewEventRepository(tx, s.meter, s.tracer, s.log)

	request, err := changes.FindByID(ctx, requestID)
	if err != nil {
		return nil, s.fail(ctx, span, "ExecuteChangeRequest", "repository_error", err)
	}
	if request == nil {
		return nil, s.fail(ctx, span, "ExecuteChangeRequest", "not_found",
			common.NotFound("change request %d not found", requestID))
	}
	if request.Status == domain.ChangeExecuted {
		span.SetAttributes(attribute.Bool("change.replayed", true))
		s.done(ctx, span, startAt, "ExecuteChangeRequest", "Change request already executed",
			zap.Uint64("change_request_id", requestID),
		)
		return request, nil
	}
	if request.Status != domain.ChangeApproved {
		return nil, s.fail(ctx, span, "ExecuteChangeRequest", "state_conflict",
			common.StateConflict("change request %d is %s, only APPROVED requests execute", requestID, request.Status))
	}

	contract, err := contracts.FindByIDWithLock(ctx, request.ContractID)
	if err != nil {
		return nil, s.fail(ctx, span, "ExecuteChangeRequest", "repository_error", err)
	}
	if contract == nil || contract.TenantID != tenantID {
		return nil, s.fail(ctx, span, "ExecuteChangeRequest", "not_found",
			common.NotFound("change request %d not found", requestID))
	}
	if contract.Status != domain.ContractActive {
		return nil, s.fail(ctx, span, "ExecuteChangeRequest", "state_conflict",
			common.StateConflict("contract %d is %s, changes only execute on ACTIVE contracts", contract.ID, contract.Status))
	}

	template, err := templates.FindByID(ctx, request.ToTemplateID)
	if err != nil {
		return nil, s.fail(ctx, span, "ExecuteChangeRequest", "repository_error", err)
	}
	if template == nil {
		return nil, s.fail(ctx, span, "ExecuteChangeRequest", "not_found",
			common.NotFound("payment method template %d not found", request.ToTemplateID))
	}
	def, plan := paymentPlanOf(template)
	if plan == nil {
		return nil, s.fail(ctx, span, "ExecuteChangeRequest", "validation",
			common.Validation("template %q has no payment phase with an amortization plan", template.Name))
	}

	phases, err := contracts.FindPhasesByContractID(ctx, contract.ID)
	if err != nil {
		return nil, s.fail(ctx, span, "ExecuteChangeRequest", "repository_error", err)
	}

	// The outstanding is recomputed under the lock; payments that landed
	// between approval and execution shrink the replacement schedule instead
	// of being lost.
	now := time.Now()
	actor := fmt.Sprintf("user:%d", actorID)
	outstanding := decimal.Zero
	replacedOrder := uint(0)

	for i := range phases {
		p := &phases[i]
		if p.Category != domain.CategoryPayment || p.Status != domain.PhaseActive {
			continue
		}
		outstanding = outstanding.Add(p.RemainingAmount)
		if replacedOrder == 0 || p.Order < replacedOrder {
			replacedOrder = p.Order
		}

		p.Status = domain.PhaseSuperseded
		p.SupersededAt = &now
		if err := contracts.UpdatePhase(ctx, p); err != nil {
			return nil, s.fail(ctx, span, "ExecuteChangeRequest", "repository_error", err)
		}
		if err := contracts.AppendTransition(ctx, &domain.ContractTransition{
			ContractID: contract.ID,
			PhaseID:    &p.ID,
			Scope:      domain.ScopePhase,
			FromStatus: string(domain.PhaseActive),
			ToStatus:   string(domain.PhaseSuperseded),
			Actor:      actor,
			Reason:     fmt.Sprintf("change request %d", request.ID),
		}); err != nil {
			return nil, s.fail(ctx, span, "ExecuteChangeRequest", "repository_error", err)
		}
	}

	if !outstanding.IsPositive() {
		return nil, s.fail(ctx, span, "ExecuteChangeRequest", "state_conflict",
			common.StateConflict("contract %d has no outstanding balance to refinance", contract.ID))
	}

	drafts, summary, err := amortization.Generate(amortization.Input{
		Principal:        outstanding,
		AnnualRate:       plan.AnnualRate,
		InstallmentCount: plan.InstallmentCount,
		Frequency:        plan.Frequency,
		GracePeriodDays:  plan.GracePeriodDays,
		StartDate:        now,
	})
	if err != nil {
		return nil, s.fail(ctx, span, "ExecuteChangeRequest", "validation", err)
	}

	replacement := &domain.ContractPhase{
		ContractID:       contract.ID,
		Order:            replacedOrder,
		Name:             def.Name + " (Changed)",
		Category:         domain.CategoryPayment,
		Type:             def.Type,
		Status:           domain.PhaseActive,
		TargetAmount:     outstanding,
		PaidAmount:       decimal.Zero,
		RemainingAmount:  summary.TotalPayable,
		InterestRate:     plan.AnnualRate,
		Frequency:        plan.Frequency,
		InstallmentCount: plan.InstallmentCount,
		GracePeriodDays:  plan.GracePeriodDays,
		ActivatedAt:      &now,
	}
	if err := contracts.CreatePhase(ctx, replacement); err != nil {
		return nil, s.fail(ctx, span, "ExecuteChangeRequest", "repository_error", err)
	}

	installments := make([]domain.ContractInstallment, len(drafts))
	for i, draft := range drafts {
		installments[i] = domain.ContractInstallment{
			PhaseID:   replacement.ID,
			Sequence:  draft.Sequence,
			DueDate:   draft.DueDate,
			AmountDue: draft.AmountDue,
			Status:    domain.InstallmentPending,
		}
	}
	if err := contracts.CreateInstallments(ctx, installments); err != nil {
		return nil, s.fail(ctx, span, "ExecuteChangeRequest", "repository_error", err)
	}
	if err := contracts.AppendTransition(ctx, &domain.ContractTransition{
		ContractID: contract.ID,
		PhaseID:    &replacement.ID,
		Scope:      domain.ScopePhase,
		FromStatus: string(domain.PhasePending),
		ToStatus:   string(domain.PhaseActive),
		Actor:      actor,
		Reason:     fmt.Sprintf("change request %d", request.ID),
	}); err != nil {
		return nil, s.fail(ctx, span, "ExecuteChangeRequest", "repository_error", err)
	}

	contract.PaymentMethodTemplateID = request.ToTemplateID
	if err := contracts.UpdateContract(ctx, contract); err != nil {
		return nil, s.fail(ctx, span, "ExecuteChangeRequest", "repository_error", err)
	}

	request.Status = domain.ChangeExecuted
	request.ExecutedAt = &now
	request.CurrentOutstanding = outstanding
	request.NewTermMonths = amortization.TermMonths(plan.Frequency, plan.InstallmentCount)
	request.NewInterestRate = plan.AnnualRate
	request.NewMonthlyPayment = summary.PeriodicPayment
	if err := changes.Update(ctx, request); err != nil {
		return nil, s.fail(ctx, span, "ExecuteChangeRequest", "repository_error", err)
	}

	if err := events.Append(ctx,
		domain.NewEvent(domain.AggregateChangeRequest, request.ID, tenantID,
			domain.EventChangeExecuted, map[string]any{
				"contract_id": contract.ID,
				"outstanding": outstanding,
				"new_phase":   replacement.ID,
			}),
		domain.NewEvent(domain.AggregateContract, contract.ID, tenantID,
			domain.EventContractAmended, map[string]any{
				"change_request_id": request.ID,
				"template_id":       request.ToTemplateID,
			}),
	); err != nil {
		return nil, s.fail(ctx, span, "ExecuteChangeRequest", "repository_error", err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.requestsExecuted.Add(ctx, 1)
	s.done(ctx, span, startAt, "ExecuteChangeRequest", "Change request executed",
		zap.Uint64("change_request_id", requestID),
		zap.Uint64("contract_id", contract.ID),
		zap.String("outstanding", outstanding.String()),
		zap.Uint64("replacement_phase_id", replacement.ID),
	)
	return request, nil
}

// ListPendingReview implements service.ChangeService.
func (s *changeService) ListPendingReview(ctx context.Context, params domain.Params) (*domain.Paginated, error) {
	ctx, span, startAt := s.start(ctx, "ListPendingReview")
	defer span.End()

	if params.Page < 1 {
		params.Page = 1
	}
	if params.Limit < 1 || params.Limit > 100 {
		params.Limit = 20
	}

	requests, total, err := s.changeRequestRepository.FindPendingReview(ctx, params)
	if err != nil {
		return nil, s.fail(ctx, span, "ListPendingReview", "repository_error", err)
	}

	s.done(ctx, span, startAt, "ListPendingReview", "Pending reviews listed",
		zap.Int64("total", total),
	)

	return &domain.Paginated{
		Data:       requests,
		Total:      total,
		Page:       params.Page,
		Limit:      params.Limit,
		TotalPages: int((total + int64(params.Limit) - 1) / int64(params.Limit)),
	}, nil
}

// GetByID implements service.ChangeService.
func (s *changeService) GetByID(ctx context.Context, tenantID, requestID uint64) (*domain.PaymentMethodChangeRequest, error) {
	ctx, span, startAt := s.start(ctx, "GetChangeRequest")
	defer span.End()

	request, _, err := s.load(ctx, s.changeRequestRepository, s.contractRepository, tenantID, requestID)
	if err != nil {
		return nil, s.fail(ctx, span, "GetChangeRequest", "not_found", err)
	}

	s.done(ctx, span, startAt, "GetChangeRequest", "Change request retrieved",
		zap.Uint64("change_request_id", requestID),
	)
	return request, nil
}

func NewChangeService(
	db *gorm.DB,
	changeRequestRepository repository.ChangeRequestRepository,
	contractRepository repository.ContractRepository,
	media service.MediaService,
	meter metric.Meter,
	tracer trace.Tracer,
	log *zap.Logger,
) service.ChangeService {
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

	requestsCreated, _ := meter.Int64Counter(
		"service.change_requests.created",
		metric.WithDescription("Number of change requests created"),
		metric.WithUnit("{request}"),
	)

	requestsExecuted, _ := meter.Int64Counter(
		"service.change_requests.executed",
		metric.WithDescription("Number of change requests executed"),
		metric.WithUnit("{request}"),
	)

	return &changeService{
		db:                      db,
		changeRequestRepository: changeRequestRepository,
		contractRepository:      contractRepository,
		media:                   media,

		meter:             meter,
		tracer:            tracer,
		log:               log,
		operationDuration: operationDuration,
		operationCount:    operationCount,
		errorCount:        errorCount,
		requestsCreated:   requestsCreated,
		requestsExecuted:  requestsExecuted,
	}
}
