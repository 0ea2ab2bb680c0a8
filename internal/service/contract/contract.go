package contractsrv

import (
	"context"
	"fmt"
	"mime/multipart"
	"time"

	"github.com/shopspring/decimal"
	"github.com/terravest/estatecore/internal/domain"
	"github.com/terravest/estatecore/internal/dto"
	"github.com/terravest/estatecore/internal/repository"
	contractrepo "github.com/terravest/estatecore/internal/repository/contract"
	eventrepo "github.com/terravest/estatecore/internal/repository/event"
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

var hundred = decimal.NewFromInt(100)

type contractService struct {
	db                 *gorm.DB
	contractRepository repository.ContractRepository
	templateRepository repository.TemplateRepository
	media              service.MediaService

	meter             metric.Meter
	tracer            trace.Tracer
	log               *zap.Logger
	operationDuration metric.Float64Histogram
	operationCount    metric.Int64Counter
	errorCount        metric.Int64Counter
	contractsCreated  metric.Int64Counter
	phasesActivated   metric.Int64Counter
	phasesCompleted   metric.Int64Counter
}

func actorTag(actorID uint64) string {
	return fmt.Sprintf("user:%d", actorID)
}

func (s *contractService) start(ctx context.Context, op string) (context.Context, trace.Span, time.Time) {
	ctx, span := s.tracer.Start(ctx, "service."+op)
	s.operationCount.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("operation", op),
			attribute.String("service", "contract"),
		),
	)
	return ctx, span, time.Now()
}

func (s *contractService) fail(ctx context.Context, span trace.Span, op, errType string, err error, fields ...zap.Field) error {
	span.SetStatus(codes.Error, err.Error())
	span.RecordError(err)

	s.errorCount.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("operation", op),
			attribute.String("service", "contract"),
			attribute.String("error_type", errType),
		),
	)

	fields = append(fields,
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.Error(err),
	)
	s.log.Warn("Contract operation failed", fields...)

	return err
}

func (s *contractService) done(ctx context.Context, span trace.Span, start time.Time, op, msg string, fields ...zap.Field) {
	duration := float64(time.Since(start).Milliseconds())
	s.operationDuration.Record(ctx, duration,
		metric.WithAttributes(
			attribute.String("operation", op),
			attribute.String("service", "contract"),
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

func (s *contractService) deps(tx *gorm.DB) lifecycle.Deps {
	return lifecycle.Deps{
		Contracts: contractrepo.NewContractRepository(tx, s.meter, s.tracer, s.log),
		Templates: templaterepo.NewTemplateRepository(tx, s.meter, s.tracer, s.log),
		Units:     unitrepo.NewUnitRepository(tx, s.meter, s.tracer, s.log),
		Events:    eventrepo.NewEventRepository(tx, s.meter, s.tracer, s.log),
	}
}

// lockContract loads the contract FOR UPDATE and checks tenant ownership.
func lockContract(ctx context.Context, d lifecycle.Deps, tenantID, contractID uint64) (*domain.Contract, error) {
	contract, err := d.Contracts.FindByIDWithLock(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if contract == nil || contract.TenantID != tenantID {
		return nil, common.NotFound("contract %d not found", contractID)
	}
	return contract, nil
}

// Create implements service.ContractService: validate the template, reserve
// the unit, clone the phase plan with computed target amounts, persist the
// DRAFT aggregate. Everything runs in one transaction so a failed step rolls
// the reservation back.
func (s *contractService) Create(ctx context.Context, tenantID, actorID uint64, data dto.CreateContractRequest) (*domain.Contract, error) {
	ctx, span, startAt := s.start(ctx, "CreateContract")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("tenant.id", int64(tenantID)),
		attribute.Int64("contract.buyer_id", int64(data.BuyerID)),
		attribute.Int64("contract.unit_id", int64(data.PropertyUnitID)),
		attribute.Int64("contract.template_id", int64(data.TemplateID)),
	)

	startDate, err := time.Parse("2006-01-02", data.StartDate)
	if err != nil {
		return nil, s.fail(ctx, span, "CreateContract", "validation",
			common.Validation("start_date must be YYYY-MM-DD, got %q", data.StartDate))
	}

	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}
	defer tx.Rollback()

	d := s.deps(tx)

	template, err := d.Templates.FindByID(ctx, data.TemplateID)
	if err != nil {
		return nil, s.fail(ctx, span, "CreateContract", "repository_error", err)
	}
	if template == nil {
		return nil, s.fail(ctx, span, "CreateContract", "not_found",
			common.NotFound("payment method template %d not found", data.TemplateID))
	}
	if err := validateTemplate(template); err != nil {
		return nil, s.fail(ctx, span, "CreateContract", "validation", err)
	}

	unit, err := d.Units.FindByIDWithLock(ctx, data.PropertyUnitID)
	if err != nil {
		return nil, s.fail(ctx, span, "CreateContract", "repository_error", err)
	}
	if unit == nil || unit.TenantID != tenantID {
		return nil, s.fail(ctx, span, "CreateContract", "not_found",
			common.NotFound("property unit %d not found", data.PropertyUnitID))
	}
	if err := d.Units.Reserve(ctx, unit.ID, data.BuyerID); err != nil {
		return nil, s.fail(ctx, span, "CreateContract", "state_conflict", err)
	}

	contract := &domain.Contract{
		TenantID:                tenantID,
		BuyerID:                 data.BuyerID,
		PropertyUnitID:          unit.ID,
		PaymentMethodTemplateID: template.ID,
		TotalAmount:             unit.Price,
		TotalPaidToDate:         decimal.Zero,
		Status:                  domain.ContractDraft,
		StartDate:               &startDate,
		Phases:                  clonePhases(template, unit.Price),
	}

	if err := d.Contracts.CreateContract(ctx, contract); err != nil {
		return nil, s.fail(ctx, span, "CreateContract", "repository_error", err)
	}

	if err := d.Contracts.AppendTransition(ctx, &domain.ContractTransition{
		ContractID: contract.ID,
		Scope:      domain.ScopeContract,
		FromStatus: "",
		ToStatus:   string(domain.ContractDraft),
		Actor:      actorTag(actorID),
	}); err != nil {
		return nil, s.fail(ctx, span, "CreateContract", "repository_error", err)
	}

	if err := d.Events.Append(ctx, domain.NewEvent(domain.AggregateContract, contract.ID, tenantID,
		domain.EventContractCreated, map[string]any{
			"buyer_id":    contract.BuyerID,
			"unit_id":     contract.PropertyUnitID,
			"template_id": contract.PaymentMethodTemplateID,
			"total":       contract.TotalAmount,
		})); err != nil {
		return nil, s.fail(ctx, span, "CreateContract", "repository_error", err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.contractsCreated.Add(ctx, 1)
	s.done(ctx, span, startAt, "CreateContract", "Contract created",
		zap.Uint64("contract_id", contract.ID),
		zap.Uint64("buyer_id", contract.BuyerID),
	)
	span.SetAttributes(attribute.Int64("contract.id", int64(contract.ID)))

	return contract, nil
}

// validateTemplate enforces the structural rules a contract depends on:
// contiguous phase ordering, payment percents summing to exactly 100, and a
// plan reference on every multi-installment payment phase.
func validateTemplate(template *domain.PaymentMethodTemplate) error {
	if len(template.Phases) == 0 {
		return common.Validation("template %q has no phases", template.Name)
	}

	percentTotal := decimal.Zero
	seen := map[uint]bool{}
	for _, phase := range template.Phases {
		if seen[phase.Order] {
			return common.Validation("template %q has duplicate phase order %d", template.Name, phase.Order)
		}
		seen[phase.Order] = true

		if phase.PaymentPhase() {
			if !phase.PercentOfPrice.IsPositive() {
				return common.Validation("payment phase %q must have a positive percent of price", phase.Name)
			}
			if phase.AmortizationPlan == nil {
				return common.Validation("payment phase %q has no amortization plan", phase.Name)
			}
			percentTotal = percentTotal.Add(phase.PercentOfPrice)
		} else if !phase.PercentOfPrice.IsZero() {
			return common.Validation("non-payment phase %q must not carry a percent of price", phase.Name)
		}
	}

	if !percentTotal.Equal(hundred) {
		return common.Validation("payment phase percents must sum to 100, got %s", percentTotal)
	}

	return nil
}

// clonePhases materializes contract phases from the template. Target amounts
// are the unit price split by percent, rounded to the minor unit, with the
// last payment phase absorbing the rounding residue so the targets sum to
// the price exactly. Plan terms, steps and document requirements are copied
/// onto the phases here: once the contract exists it owns its definitions and
// later template edits or swaps cannot reach back into it.
func clonePhases(template *domain.PaymentMethodTemplate, price decimal.Decimal) []domain.ContractPhase {
	phases := make([]domain.ContractPhase, 0, len(template.Phases))

	lastPayment := -1
	allocated := decimal.Zero
	for _, tp := range template.Phases {
		phase := domain.ContractPhase{
			Order:           tp.Order,
			Name:            tp.Name,
			Category:        tp.Category,
			Type:            tp.Type,
			Status:          domain.PhasePending,
			TargetAmount:    decimal.Zero,
			PaidAmount:      decimal.Zero,
			RemainingAmount: decimal.Zero,
		}
		if tp.PaymentPhase() {
			plan := tp.AmortizationPlan
			phase.InterestRate = plan.AnnualRate
			phase.Frequency = plan.Frequency
			phase.InstallmentCount = plan.InstallmentCount
			phase.GracePeriodDays = plan.GracePeriodDays

			phase.TargetAmount = price.Mul(tp.PercentOfPrice).Div(hundred).Round(2)
			allocated = allocated.Add(phase.TargetAmount)
			lastPayment = len(phases)
		} else {
			for _, sd := range tp.StepDefinitions {
				phase.Steps = append(phase.Steps, domain.ContractPhaseStep{
					Name:   sd.Name,
					Type:   sd.Type,
					Order:  sd.Order,
					Status: domain.StepPending,
				})
			}
			for _, dr := range tp.DocumentRequirements {
				phase.Documents = append(phase.Documents, domain.ContractPhaseDocument{
					Name:             dr.Name,
					Required:         dr.Required,
					RequiresApproval: dr.RequiresApproval,
					Status:           domain.DocumentPending,
				})
			}
		}
		phases = append(phases, phase)
	}

	if lastPayment >= 0 {
		residue := price.Sub(allocated)
		if !residue.IsZero() {
			phases[lastPayment].TargetAmount = phases[lastPayment].TargetAmount.Add(residue)
		}
	}

	return phases
}

// GetDetail implements service.ContractService. Installment statuses are
// derived against the clock at read time; DUE and OVERDUE are never stored.
func (s *contractService) GetDetail(ctx context.Context, tenantID, contractID uint64) (*domain.Contract, error) {
	ctx, span, startAt := s.start(ctx, "GetContractDetail")
	defer span.End()

	contract, err := s.contractRepository.FindDetailByID(ctx, contractID)
	if err != nil {
		return nil, s.fail(ctx, span, "GetContractDetail", "repository_error", err)
	}
	if contract == nil || contract.TenantID != tenantID {
		return nil, s.fail(ctx, span, "GetContractDetail", "not_found",
			common.NotFound("contract %d not found", contractID))
	}

	now := time.Now()
	for i := range contract.Phases {
		deriveInstallmentStatuses(contract.Phases[i].Installments, now)
	}

	s.done(ctx, span, startAt, "GetContractDetail", "Contract detail retrieved",
		zap.Uint64("contract_id", contractID),
	)
	return contract, nil
}

// List implements service.ContractService.
func (s *contractService) List(ctx context.Context, tenantID uint64, params domain.Params) (*domain.Paginated, error) {
	ctx, span, startAt := s.start(ctx, "ListContracts")
	defer span.End()

	if params.Page < 1 {
		params.Page = 1
	}
	if params.Limit < 1 || params.Limit > 100 {
		params.Limit = 20
	}

	contracts, total, err := s.contractRepository.FindPaginated(ctx, tenantID, params)
	if err != nil {
		return nil, s.fail(ctx, span, "ListContracts", "repository_error", err)
	}

	s.done(ctx, span, startAt, "ListContracts", "Contracts listed",
		zap.Int64("total", total),
	)

	return &domain.Paginated{
		Data:       contracts,
		Total:      total,
		Page:       params.Page,
		Limit:      params.Limit,
		TotalPages: int((total + int64(params.Limit) - 1) / int64(params.Limit)),
	}, nil
}

// ListPhases implements service.ContractService.
func (s *contractService) ListPhases(ctx context.Context, tenantID, contractID uint64) ([]domain.ContractPhase, error) {
	ctx, span, startAt := s.start(ctx, "ListContractPhases")
	defer span.End()

	contract, err := s.contractRepository.FindByID(ctx, contractID)
	if err != nil {
		return nil, s.fail(ctx, span, "ListContractPhases", "repository_error", err)
	}
	if contract == nil || contract.TenantID != tenantID {
		return nil, s.fail(ctx, span, "ListContractPhases", "not_found",
			common.NotFound("contract %d not found", contractID))
	}

	phases, err := s.contractRepository.FindPhasesByContractID(ctx, contractID)
	if err != nil {
		return nil, s.fail(ctx, span, "ListContractPhases", "repository_error", err)
	}

	s.done(ctx, span, startAt, "ListContractPhases", "Contract phases listed",
		zap.Uint64("contract_id", contractID),
		zap.Int("count", len(phases)),
	)
	return phases, nil
}

// ListInstallments implements service.ContractService.
func (s *contractService) ListInstallments(ctx context.Context, tenantID, contractID, phaseID uint64) ([]domain.ContractInstallment, error) {
	ctx, span, startAt := s.start(ctx, "ListPhaseInstallments")
	defer span.End()

	contract, err := s.contractRepository.FindByID(ctx, contractID)
	if err != nil {
		return nil, s.fail(ctx, span, "ListPhaseInstallments", "repository_error", err)
	}
	if contract == nil || contract.TenantID != tenantID {
		return nil, s.fail(ctx, span, "ListPhaseInstallments", "not_found",
			common.NotFound("contract %d not found", contractID))
	}

	phase, err := s.contractRepository.FindPhaseByID(ctx, phaseID)
	if err != nil {
		return nil, s.fail(ctx, span, "ListPhaseInstallments", "repository_error", err)
	}
	if phase == nil || phase.ContractID != contractID {
		return nil, s.fail(ctx, span, "ListPhaseInstallments", "not_found",
			common.NotFound("phase %d not found", phaseID))
	}

	installments, err := s.contractRepository.FindInstallmentsByPhaseID(ctx, phaseID)
	if err != nil {
		return nil, s.fail(ctx, span, "ListPhaseInstallments", "repository_error", err)
	}
	deriveInstallmentStatuses(installments, time.Now())

	s.done(ctx, span, startAt, "ListPhaseInstallments", "Installments listed",
		zap.Uint64("phase_id", phaseID),
		zap.Int("count", len(installments)),
	)
	return installments, nil
}

// ListTransitions implements service.ContractService.
func (s *contractService) ListTransitions(ctx context.Context, tenantID, contractID uint64) ([]domain.ContractTransition, error) {
	ctx, span, startAt := s.start(ctx, "ListContractTransitions")
	defer span.End()

	contract, err := s.contractRepository.FindByID(ctx, contractID)
	if err != nil {
		return nil, s.fail(ctx, span, "ListContractTransitions", "repository_error", err)
	}
	if contract == nil || contract.TenantID != tenantID {
		return nil, s.fail(ctx, span, "ListContractTransitions", "not_found",
			common.NotFound("contract %d not found", contractID))
	}

	transitions, err := s.contractRepository.FindTransitionsByContractID(ctx, contractID)
	if err != nil {
		return nil, s.fail(ctx, span, "ListContractTransitions", "repository_error", err)
	}

	s.done(ctx, span, startAt, "ListContractTransitions", "Transition log retrieved",
		zap.Uint64("contract_id", contractID),
	)
	return transitions, nil
}

func deriveInstallmentStatuses(installments []domain.ContractInstallment, now time.Time) {
	for i := range installments {
		installments[i].Status = domain.DeriveInstallmentStatus(installments[i], now)
	}
}

// Sign implements service.ContractService: DRAFT to PENDING.
func (s *contractService) Sign(ctx context.Context, tenantID, contractID, actorID uint64) (*domain.Contract, error) {
	ctx, span, startAt := s.start(ctx, "SignContract")
	defer span.End()

	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}
	defer tx.Rollback()

	d := s.deps(tx)
	contract, err := lockContract(ctx, d, tenantID, contractID)
	if err != nil {
		return nil, s.fail(ctx, span, "SignContract", "not_found", err)
	}
	if contract.Status != domain.ContractDraft {
		return nil, s.fail(ctx, span, "SignContract", "state_conflict",
			common.StateConflict("contract %d is %s, only DRAFT contracts can be signed", contractID, contract.Status))
	}

	now := time.Now()
	contract.Status = domain.ContractPending
	contract.SignedAt = &now

	if err := d.Contracts.UpdateContract(ctx, contract); err != nil {
		return nil, s.fail(ctx, span, "SignContract", "repository_error", err)
	}
	if err := d.Contracts.AppendTransition(ctx, &domain.ContractTransition{
		ContractID: contract.ID,
		Scope:      domain.ScopeContract,
		FromStatus: string(domain.ContractDraft),
		ToStatus:   string(domain.ContractPending),
		Actor:      actorTag(actorID),
	}); err != nil {
		return nil, s.fail(ctx, span, "SignContract", "repository_error", err)
	}
	if err := d.Events.Append(ctx, domain.NewEvent(domain.AggregateContract, contract.ID, tenantID,
		domain.EventContractSigned, map[string]any{"signed_at": now})); err != nil {
		return nil, s.fail(ctx, span, "SignContract", "repository_error", err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.done(ctx, span, startAt, "SignContract", "Contract signed",
		zap.Uint64("contract_id", contractID),
	)
	return contract, nil
}

// Terminate implements service.ContractService. The reserved unit goes back
// to the pool unless the contract already completed.
func (s *contractService) Terminate(ctx context.Context, tenantID, contractID, actorID uint64, reason string) (*domain.Contract, error) {
	ctx, span, startAt := s.start(ctx, "TerminateContract")
	defer span.End()

	if reason == "" {
		return nil, s.fail(ctx, span, "TerminateContract", "validation",
			common.Validation("termination reason is required"))
	}

	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}
	defer tx.Rollback()

	d := s.deps(tx)
	contract, err := lockContract(ctx, d, tenantID, contractID)
	if err != nil {
		return nil, s.fail(ctx, span, "TerminateContract", "not_found", err)
	}
	if contract.Status == domain.ContractCompleted || contract.Status == domain.ContractTerminated {
		return nil, s.fail(ctx, span, "TerminateContract", "state_conflict",
			common.StateConflict("contract %d is already %s", contractID, contract.Status))
	}

	from := contract.Status
	contract.Status = domain.ContractTerminated

	if err := d.Contracts.UpdateContract(ctx, contract); err != nil {
		return nil, s.fail(ctx, span, "TerminateContract", "repository_error", err)
	}
	if err := d.Units.Release(ctx, contract.PropertyUnitID); err != nil {
		return nil, s.fail(ctx, span, "TerminateContract", "repository_error", err)
	}
	if err := d.Contracts.AppendTransition(ctx, &domain.ContractTransition{
		ContractID: contract.ID,
		Scope:      domain.ScopeContract,
		FromStatus: string(from),
		ToStatus:   string(domain.ContractTerminated),
		Actor:      actorTag(actorID),
		Reason:     reason,
	}); err != nil {
		return nil, s.fail(ctx, span, "TerminateContract", "repository_error", err)
	}
	if err := d.Events.Append(ctx, domain.NewEvent(domain.AggregateContract, contract.ID, tenantID,
		domain.EventContractTerminated, map[string]any{"reason": reason})); err != nil {
		return nil, s.fail(ctx, span, "TerminateContract", "repository_error", err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.done(ctx, span, startAt, "TerminateContract", "Contract terminated",
		zap.Uint64("contract_id", contractID),
		zap.String("reason", reason),
	)
	return contract, nil
}

// ActivatePhase implements service.ContractService.
func (s *contractService) ActivatePhase(ctx context.Context, tenantID, contractID, phaseID, actorID uint64) (*domain.ContractPhase, error) {
	ctx, span, startAt := s.start(ctx, "ActivatePhase")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("contract.id", int64(contractID)),
		attribute.Int64("phase.id", int64(phaseID)),
	)

	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}
	defer tx.Rollback()

	d := s.deps(tx)
	contract, err := lockContract(ctx, d, tenantID, contractID)
	if err != nil {
		return nil, s.fail(ctx, span, "ActivatePhase", "not_found", err)
	}
	if contract.Status != domain.ContractPending && contract.Status != domain.ContractActive {
		return nil, s.fail(ctx, span, "ActivatePhase", "state_conflict",
			common.StateConflict("contract %d is %s, phases can only activate on PENDING or ACTIVE contracts", contractID, contract.Status))
	}

	phases, err := d.Contracts.FindPhasesByContractID(ctx, contractID)
	if err != nil {
		return nil, s.fail(ctx, span, "ActivatePhase", "repository_error", err)
	}
	target := findPhase(phases, phaseID)
	if target == nil {
		return nil, s.fail(ctx, span, "ActivatePhase", "not_found",
			common.NotFound("phase %d not found on contract %d", phaseID, contractID))
	}

	if err := lifecycle.ActivatePhase(ctx, d, contract, phases, target, actorTag(actorID), time.Now()); err != nil {
		return nil, s.fail(ctx, span, "ActivatePhase", "state_conflict", err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.phasesActivated.Add(ctx, 1)
	s.done(ctx, span, startAt, "ActivatePhase", "Phase activated",
		zap.Uint64("contract_id", contractID),
		zap.Uint64("phase_id", phaseID),
	)
	return target, nil
}

// CompleteStep implements service.ContractService. Completing the last open
// step of a phase whose documents are settled completes the phase and
// cascades.
func (s *contractService) CompleteStep(ctx context.Context, tenantID, contractID, phaseID, stepID, actorID uint64) (*domain.ContractPhase, error) {
	ctx, span, startAt := s.start(ctx, "CompleteStep")
	defer span.End()

	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}
	defer tx.Rollback()

	d := s.deps(tx)
	contract, err := lockContract(ctx, d, tenantID, contractID)
	if err != nil {
		return nil, s.fail(ctx, span, "CompleteStep", "not_found", err)
	}

	step, err := d.Contracts.FindStepByID(ctx, stepID)
	if err != nil {
		return nil, s.fail(ctx, span, "CompleteStep", "repository_error", err)
	}
	if step == nil || step.PhaseID != phaseID {
		return nil, s.fail(ctx, span, "CompleteStep", "not_found",
			common.NotFound("step %d not found on phase %d", stepID, phaseID))
	}
	if step.Status == domain.StepCompleted {
		return nil, s.fail(ctx, span, "CompleteStep", "state_conflict",
			common.StateConflict("step %d is already completed", stepID))
	}

	phases, err := d.Contracts.FindPhasesByContractID(ctx, contractID)
	if err != nil {
		return nil, s.fail(ctx, span, "CompleteStep", "repository_error", err)
	}
	target := findPhase(phases, phaseID)
	if target == nil || target.Status != domain.PhaseActive {
		return nil, s.fail(ctx, span, "CompleteStep", "state_conflict",
			common.StateConflict("phase %d is not active", phaseID))
	}

	now := time.Now()
	step.Status = domain.StepCompleted
	step.CompletedAt = &now
	if err := d.Contracts.UpdateStep(ctx, step); err != nil {
		return nil, s.fail(ctx, span, "CompleteStep", "repository_error", err)
	}

	if err := s.maybeCompletePhase(ctx, d, contract, phases, target, actorTag(actorID), now); err != nil {
		return nil, s.fail(ctx, span, "CompleteStep", "repository_error", err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.done(ctx, span, startAt, "CompleteStep", "Step completed",
		zap.Uint64("step_id", stepID),
		zap.Uint64("phase_id", phaseID),
	)
	return target, nil
}

// maybeCompletePhase reloads the phase detail and completes it when all
// steps, documents and money are settled.
func (s *contractService) maybeCompletePhase(ctx context.Context, d lifecycle.Deps, contract *domain.Contract, phases []domain.ContractPhase, target *domain.ContractPhase, actor string, now time.Time) error {
	detail, err := d.Contracts.FindPhaseDetailByID(ctx, target.ID)
	if err != nil {
		return err
	}
	if detail == nil || !detail.ReadyToComplete() {
		return nil
	}
	return lifecycle.CompletePhase(ctx, d, contract, phases, target, actor, now)
}

// SubmitDocument implements service.ContractService. The upload happens
// before the transaction opens; a rolled-back submission leaves an orphan in
// media storage, never a dangling row.
func (s *contractService) SubmitDocument(ctx context.Context, tenantID, contractID, phaseID, documentID, actorID uint64, file *multipart.FileHeader) (*domain.ContractPhaseDocument, error) {
	ctx, span, startAt := s.start(ctx, "SubmitDocument")
	defer span.End()

	if file == nil {
		return nil, s.fail(ctx, span, "SubmitDocument", "validation",
			common.Validation("document file is required"))
	}

	fileURL, err := s.media.Upload(ctx, file, fmt.Sprintf("contracts/%d/phases/%d", contractID, phaseID))
	if err != nil {
		return nil, s.fail(ctx, span, "SubmitDocument", "upload_failed", err)
	}

	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}
	defer tx.Rollback()

	d := s.deps(tx)
	contract, err := lockContract(ctx, d, tenantID, contractID)
	if err != nil {
		return nil, s.fail(ctx, span, "SubmitDocument", "not_found", err)
	}

	document, err := d.Contracts.FindDocumentByID(ctx, documentID)
	if err != nil {
		return nil, s.fail(ctx, span, "SubmitDocument", "repository_error", err)
	}
	if document == nil || document.PhaseID != phaseID {
		return nil, s.fail(ctx, span, "SubmitDocument", "not_found",
			common.NotFound("document %d not found on phase %d", documentID, phaseID))
	}
	if document.Status == domain.DocumentApproved {
		return nil, s.fail(ctx, span, "SubmitDocument", "state_conflict",
			common.StateConflict("document %d is already approved", documentID))
	}

	phases, err := d.Contracts.FindPhasesByContractID(ctx, contractID)
	if err != nil {
		return nil, s.fail(ctx, span, "SubmitDocument", "repository_error", err)
	}
	target := findPhase(phases, phaseID)
	if target == nil || target.Status != domain.PhaseActive {
		return nil, s.fail(ctx, span, "SubmitDocument", "state_conflict",
			common.StateConflict("phase %d is not active", phaseID))
	}

	now := time.Now()
	document.FileURL = fileURL
	document.SubmittedAt = &now
	document.Status = domain.DocumentSubmitted
	if !document.RequiresApproval {
		document.Status = domain.DocumentApproved
		document.ReviewedAt = &now
	}

	if err := d.Contracts.UpdateDocument(ctx, document); err != nil {
		return nil, s.fail(ctx, span, "SubmitDocument", "repository_error", err)
	}

	if document.Status == domain.DocumentApproved {
		if err := s.maybeCompletePhase(ctx, d, contract, phases, target, actorTag(actorID), now); err != nil {
			return nil, s.fail(ctx, span, "SubmitDocument", "repository_error", err)
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.done(ctx, span, startAt, "SubmitDocument", "Document submitted",
		zap.Uint64("document_id", documentID),
		zap.String("file_url", fileURL),
	)
	return document, nil
}

// ReviewDocument implements service.ContractService: admin approves or
// rejects a submitted document. Approval may complete the phase.
func (s *contractService) ReviewDocument(ctx context.Context, tenantID, contractID, phaseID, documentID, actorID uint64, approved bool) (*domain.ContractPhase, error) {
	ctx, span, startAt := s.start(ctx, "ReviewDocument")
	defer span.End()

	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}
	defer tx.Rollback()

	d := s.deps(tx)
	contract, err := lockContract(ctx, d, tenantID, contractID)
	if err != nil {
		return nil, s.fail(ctx, span, "ReviewDocument", "not_found", err)
	}

	document, err := d.Contracts.FindDocumentByID(ctx, documentID)
	if err != nil {
		return nil, s.fail(ctx, span, "ReviewDocument", "repository_error", err)
	}
	if document == nil || document.PhaseID != phaseID {
		return nil, s.fail(ctx, span, "ReviewDocument", "not_found",
			common.NotFound("document %d not found on phase %d", documentID, phaseID))
	}
	if document.Status != domain.DocumentSubmitted {
		return nil, s.fail(ctx, span, "ReviewDocument", "state_conflict",
			common.StateConflict("document %d is %s, only SUBMITTED documents can be reviewed", documentID, document.Status))
	}

	phases, err := d.Contracts.FindPhasesByContractID(ctx, contractID)
	if err != nil {
		return nil, s.fail(ctx, span, "ReviewDocument", "repository_error", err)
	}
	target := findPhase(phases, phaseID)
	if target == nil || target.Status != domain.PhaseActive {
		return nil, s.fail(ctx, span, "ReviewDocument", "state_conflict",
			common.StateConflict("phase %d is not active", phaseID))
	}

	now := time.Now()
	document.ReviewedAt = &now
	if approved {
		document.Status = domain.DocumentApproved
	} else {
		document.Status = domain.DocumentRejected
	}

	if err := d.Contracts.UpdateDocument(ctx, document); err != nil {
		return nil, s.fail(ctx, span, "ReviewDocument", "repository_error", err)
	}

	if approved {
		if err := s.maybeCompletePhase(ctx, d, contract, phases, target, actorTag(actorID), now); err != nil {
			return nil, s.fail(ctx, span, "ReviewDocument", "repository_error", err)
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.done(ctx, span, startAt, "ReviewDocument", "Document reviewed",
		zap.Uint64("document_id", documentID),
		zap.Bool("approved", approved),
	)
	return target, nil
}

// SkipPhase implements service.ContractService. Payment phases with money
// applied cannot be skipped.
func (s *contractService) SkipPhase(ctx context.Context, tenantID, contractID, phaseID, actorID uint64, reason string) (*domain.ContractPhase, error) {
	ctx, span, startAt := s.start(ctx, "SkipPhase")
	defer span.End()

	if reason == "" {
		return nil, s.fail(ctx, span, "SkipPhase", "validation",
			common.Validation("skip reason is required"))
	}

	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}
	defer tx.Rollback()

	d := s.deps(tx)
	contract, err := lockContract(ctx, d, tenantID, contractID)
	if err != nil {
		return nil, s.fail(ctx, span, "SkipPhase", "not_found", err)
	}

	phases, err := d.Contracts.FindPhasesByContractID(ctx, contractID)
	if err != nil {
		return nil, s.fail(ctx, span, "SkipPhase", "repository_error", err)
	}
	target := findPhase(phases, phaseID)
	if target == nil {
		return nil, s.fail(ctx, span, "SkipPhase", "not_found",
			common.NotFound("phase %d not found on contract %d", phaseID, contractID))
	}
	if target.Status != domain.PhasePending && target.Status != domain.PhaseActive {
		return nil, s.fail(ctx, span, "SkipPhase", "state_conflict",
			common.StateConflict("phase %d is %s and cannot be skipped", phaseID, target.Status))
	}
	if target.Category == domain.CategoryPayment && target.PaidAmount.IsPositive() {
		return nil, s.fail(ctx, span, "SkipPhase", "state_conflict",
			common.StateConflict("phase %d has payments applied and cannot be skipped", phaseID))
	}

	if err := lifecycle.SkipPhase(ctx, d, contract, phases, target, actorTag(actorID), reason, time.Now()); err != nil {
		return nil, s.fail(ctx, span, "SkipPhase", "repository_error", err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.done(ctx, span, startAt, "SkipPhase", "Phase skipped",
		zap.Uint64("phase_id", phaseID),
		zap.String("reason", reason),
	)
	return target, nil
}

// ReopenPhase implements service.ContractService. Reopening is the only
// backwards transition the engine allows: admin only, reason required.
// With cascade, later settled phases reset to PENDING; SUPERSEDED phases are
// immutable history and any phase with money applied blocks the reset.
func (s *contractService) ReopenPhase(ctx context.Context, tenantID, contractID, phaseID, actorID uint64, reason string, cascade bool) (*domain.ContractPhase, error) {
	ctx, span, startAt := s.start(ctx, "ReopenPhase")
	defer span.End()

	if reason == "" {
		return nil, s.fail(ctx, span, "ReopenPhase", "validation",
			common.Validation("reopen reason is required"))
	}

	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}
	defer tx.Rollback()

	d := s.deps(tx)
	contract, err := lockContract(ctx, d, tenantID, contractID)
	if err != nil {
		return nil, s.fail(ctx, span, "ReopenPhase", "not_found", err)
	}
	if contract.Status == domain.ContractTerminated {
		return nil, s.fail(ctx, span, "ReopenPhase", "state_conflict",
			common.StateConflict("contract %d is terminated", contractID))
	}

	phases, err := d.Contracts.FindPhasesByContractID(ctx, contractID)
	if err != nil {
		return nil, s.fail(ctx, span, "ReopenPhase", "repository_error", err)
	}
	target := findPhase(phases, phaseID)
	if target == nil {
		return nil, s.fail(ctx, span, "ReopenPhase", "not_found",
			common.NotFound("phase %d not found on contract %d", phaseID, contractID))
	}
	if target.Status != domain.PhaseCompleted && target.Status != domain.PhaseSkipped {
		return nil, s.fail(ctx, span, "ReopenPhase", "state_conflict",
			common.StateConflict("phase %d is %s, only COMPLETED or SKIPPED phases reopen", phaseID, target.Status))
	}

	now := time.Now()
	actor := actorTag(actorID)

	if cascade {
		for i := range phases {
			p := &phases[i]
			if p.ID == target.ID || p.Order <= target.Order {
				continue
			}
			if p.Status == domain.PhasePending || p.Status == domain.PhaseSuperseded {
				continue
			}
			if p.PaidAmount.IsPositive() {
				return nil, s.fail(ctx, span, "ReopenPhase", "state_conflict",
					common.StateConflict("phase %d has payments applied, cascade reset refused", p.ID))
			}

			from := p.Status
			p.Status = domain.PhasePending
			p.ActivatedAt = nil
			p.CompletedAt = nil
			p.RemainingAmount = decimal.Zero
			if err := d.Contracts.ResetPhaseProgress(ctx, p.ID); err != nil {
				return nil, s.fail(ctx, span, "ReopenPhase", "repository_error", err)
			}
			if err := d.Contracts.UpdatePhase(ctx, p); err != nil {
				return nil, s.fail(ctx, span, "ReopenPhase", "repository_error", err)
			}
			if err := d.Contracts.AppendTransition(ctx, &domain.ContractTransition{
				ContractID: contractID,
				PhaseID:    &p.ID,
				Scope:      domain.ScopePhase,
				FromStatus: string(from),
				ToStatus:   string(domain.PhasePending),
				Actor:      actor,
				Reason:     reason,
			}); err != nil {
				return nil, s.fail(ctx, span, "ReopenPhase", "repository_error", err)
			}
		}
	}

	from := target.Status
	target.Status = domain.PhaseActive
	target.CompletedAt = nil
	if target.ActivatedAt == nil {
		target.ActivatedAt = &now
	}
	if err := d.Contracts.UpdatePhase(ctx, target); err != nil {
		return nil, s.fail(ctx, span, "ReopenPhase", "repository_error", err)
	}
	if err := d.Contracts.AppendTransition(ctx, &domain.ContractTransition{
		ContractID: contractID,
		PhaseID:    &target.ID,
		Scope:      domain.ScopePhase,
		FromStatus: string(from),
		ToStatus:   string(domain.PhaseActive),
		Actor:      actor,
		Reason:     reason,
	}); err != nil {
		return nil, s.fail(ctx, span, "ReopenPhase", "repository_error", err)
	}

	if contract.Status == domain.ContractCompleted {
		contract.Status = domain.ContractActive
		if err := d.Contracts.UpdateContract(ctx, contract); err != nil {
			return nil, s.fail(ctx, span, "ReopenPhase", "repository_error", err)
		}
		if err := d.Contracts.AppendTransition(ctx, &domain.ContractTransition{
			ContractID: contractID,
			Scope:      domain.ScopeContract,
			FromStatus: string(domain.ContractCompleted),
			ToStatus:   string(domain.ContractActive),
			Actor:      actor,
			Reason:     reason,
		}); err != nil {
			return nil, s.fail(ctx, span, "ReopenPhase", "repository_error", err)
		}
	}

	if err := d.Events.Append(ctx, domain.NewEvent(domain.AggregateContract, contractID, tenantID,
		domain.EventContractPhaseReopened, map[string]any{
			"phase_id": target.ID,
			"reason":   reason,
			"cascade":  cascade,
		})); err != nil {
		return nil, s.fail(ctx, span, "ReopenPhase", "repository_error", err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.done(ctx, span, startAt, "ReopenPhase", "Phase reopened",
		zap.Uint64("phase_id", phaseID),
		zap.Bool("cascade", cascade),
	)
	return target, nil
}

func findPhase(phases []domain.ContractPhase, phaseID uint64) *domain.ContractPhase {
	for i := range phases {
		if phases[i].ID == phaseID {
			return &phases[i]
		}
	}
	return nil
}

func NewContractService(
	db *gorm.DB,
	contractRepository repository.ContractRepository,
	templateRepository repository.TemplateRepository,
	media service.MediaService,
	meter metric.Meter,
	tracer trace.Tracer,
	log *zap.Logger,
) service.ContractService {
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

	contractsCreated, _ := meter.Int64Counter(
		"service.contracts.created",
		metric.WithDescription("Number of contracts created"),
		metric.WithUnit("{contract}"),
	)

	phasesActivated, _ := meter.Int64Counter(
		"service.phases.activated",
		metric.WithDescription("Number of contract phases activated"),
		metric.WithUnit("{phase}"),
	)

	phasesCompleted, _ := meter.Int64Counter(
		"service.phases.completed",
		metric.WithDescription("Number of contract phases completed"),
		metric.WithUnit("{phase}"),
	)

	return &contractService{
		db:                 db,
		contractRepository: contractRepository,
		templateRepository: templateRepository,
		media:              media,

		meter:             meter,
		tracer:            tracer,
		log:               log,
		operationDuration: operationDuration,
		operationCount:    operationCount,
		errorCount:        errorCount,
		contractsCreated:  contractsCreated,
		phasesActivated:   phasesActivated,
		phasesCompleted:   phasesCompleted,
	}
}
