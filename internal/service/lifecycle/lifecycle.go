// Package lifecycle holds the phase state machine transitions shared by the
// contract, ledger and change services. Callers hold the contract row lock
// and pass repositories bound to the surrounding transaction; every function
// here mutates storage through those repositories only.
package lifecycle

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/terravest/estatecore/internal/amortization"
	"github.com/terravest/estatecore/internal/domain"
	"github.com/terravest/estatecore/internal/repository"
	"github.com/terravest/estatecore/pkg/common"
)

// Deps bundles the per-transaction repositories a cascade touches.
type Deps struct {
	Contracts repository.ContractRepository
	Templates repository.TemplateRepository
	Units     repository.UnitRepository
	Events    repository.EventRepository
}

func transition(ctx context.Context, d Deps, contractID uint64, phaseID *uint64, scope domain.TransitionScope, from, to, actor, reason string) error {
	return d.Contracts.AppendTransition(ctx, &domain.ContractTransition{
		ContractID: contractID,
		PhaseID:    phaseID,
		Scope:      scope,
		FromStatus: from,
		ToStatus:   to,
		Actor:      actor,
		Reason:     reason,
	})
}

// ActivatePhase moves target from PENDING to ACTIVE. Every phase carries its
// own plan terms, steps and document rows, copied from the template when the
// contract was created; activation reads only that snapshot, so a template
// swapped by an executed change request cannot rewrite the terms of phases
// that predate it. A PAYMENT phase materializes its installment schedule
// here; a phase with nothing to do completes immediately, which cascades.
func ActivatePhase(ctx context.Context, d Deps, contract *domain.Contract, phases []domain.ContractPhase, target *domain.ContractPhase, actor string, now time.Time) error {
	if !domain.CanActivatePhase(contract.Status, phases, *target) {
		return common.StateConflict("phase %d cannot be activated: earlier phases are not settled or phase is not pending", target.ID)
	}

	target.Status = domain.PhaseActive
	target.ActivatedAt = &now

	if target.Category == domain.CategoryPayment {
		drafts, summary, err := amortization.Generate(amortization.Input{
			Principal:        target.TargetAmount,
			AnnualRate:       target.InterestRate,
			InstallmentCount: target.InstallmentCount,
			Frequency:        target.Frequency,
			GracePeriodDays:  target.GracePeriodDays,
			StartDate:        now,
		})
		if err != nil {
			return err
		}

		target.RemainingAmount = summary.TotalPayable

		installments := make([]domain.ContractInstallment, len(drafts))
		for i, draft := range drafts {
			installments[i] = domain.ContractInstallment{
				PhaseID:   target.ID,
				Sequence:  draft.Sequence,
				DueDate:   draft.DueDate,
				AmountDue: draft.AmountDue,
				Status:    domain.InstallmentPending,
			}
		}
		if err := d.Contracts.CreateInstallments(ctx, installments); err != nil {
			return err
		}
		target.Installments = installments
	} else {
		// Phase lists load without steps and documents; the completion check
		// below needs the snapshot rows attached.
		detail, err := d.Contracts.FindPhaseDetailByID(ctx, target.ID)
		if err != nil {
			return err
		}
		if detail == nil {
			return common.NotFound("phase %d not found", target.ID)
		}
		target.Steps = detail.Steps
		target.Documents = detail.Documents
	}

	if err := d.Contracts.UpdatePhase(ctx, target); err != nil {
		return err
	}
	if err := transition(ctx, d, contract.ID, &target.ID, domain.ScopePhase,
		string(domain.PhasePending), string(domain.PhaseActive), actor, ""); err != nil {
		return err
	}
	if err := d.Events.Append(ctx, domain.NewEvent(domain.AggregateContract, contract.ID, contract.TenantID,
		domain.EventContractPhaseActivated, map[string]any{
			"phase_id": target.ID,
			"order":    target.Order,
			"category": target.Category,
		})); err != nil {
		return err
	}

	if contract.Status == domain.ContractPending {
		if err := setContractStatus(ctx, d, contract, domain.ContractActive, actor, ""); err != nil {
			return err
		}
	}

	if target.ReadyToComplete() {
		return CompletePhase(ctx, d, contract, phases, target, actor, now)
	}

	return nil
}

// CompletePhase marks target COMPLETED and cascades: the next PENDING phase
// activates, and when every phase is settled the contract completes and the
// unit is sold.
func CompletePhase(ctx context.Context, d Deps, contract *domain.Contract, phases []domain.ContractPhase, target *domain.ContractPhase, actor string, now time.Time) error {
	target.Status = domain.PhaseCompleted
	target.CompletedAt = &now

	if err := d.Contracts.UpdatePhase(ctx, target); err != nil {
		return err
	}
	if err := transition(ctx, d, contract.ID, &target.ID, domain.ScopePhase,
		string(domain.PhaseActive), string(domain.PhaseCompleted), actor, ""); err != nil {
		return err
	}
	if err := d.Events.Append(ctx, domain.NewEvent(domain.AggregateContract, contract.ID, contract.TenantID,
		domain.EventContractPhaseCompleted, map[string]any{
			"phase_id": target.ID,
			"order":    target.Order,
		})); err != nil {
		return err
	}

	return settle(ctx, d, contract, phases, actor, now)
}

// SkipPhase marks target SKIPPED and cascades the same way completion does.
func SkipPhase(ctx context.Context, d Deps, contract *domain.Contract, phases []domain.ContractPhase, target *domain.ContractPhase, actor, reason string, now time.Time) error {
	from := target.Status
	target.Status = domain.PhaseSkipped
	target.CompletedAt = &now

	if err := d.Contracts.UpdatePhase(ctx, target); err != nil {
		return err
	}
	if err := transition(ctx, d, contract.ID, &target.ID, domain.ScopePhase,
		string(from), string(domain.PhaseSkipped), actor, reason); err != nil {
		return err
	}
	if err := d.Events.Append(ctx, domain.NewEvent(domain.AggregateContract, contract.ID, contract.TenantID,
		domain.EventContractPhaseSkipped, map[string]any{
			"phase_id": target.ID,
			"order":    target.Order,
			"reason":   reason,
		})); err != nil {
		return err
	}

	return settle(ctx, d, contract, phases, actor, now)
}

/// settle runs after a phase reaches a settled status: activate the next
// pending phase in order, or complete the contract when none remains.
func settle(ctx context.Context, d Deps, contract *domain.Contract, phases []domain.ContractPhase, actor string, now time.Time) error {
	var next *domain.ContractPhase
	allSettled := true
	for i := range phases {
		if phases[i].Settled() {
			continue
		}
		allSettled = false
		if phases[i].Status == domain.PhasePending && (next == nil || phases[i].Order < next.Order) {
			next = &phases[i]
		}
	}

	if allSettled {
		if err := setContractStatus(ctx, d, contract, domain.ContractCompleted, actor, ""); err != nil {
			return err
		}
		if err := d.Units.MarkSold(ctx, contract.PropertyUnitID); err != nil {
			return err
		}
		return d.Events.Append(ctx, domain.NewEvent(domain.AggregateContract, contract.ID, contract.TenantID,
			domain.EventContractCompleted, map[string]any{
				"total_paid": contract.TotalPaidToDate,
			}))
	}

	if next != nil && domain.CanActivatePhase(contract.Status, phases, *next) {
		return ActivatePhase(ctx, d, contract, phases, next, actor, now)
	}

	return nil
}

func setContractStatus(ctx context.Context, d Deps, contract *domain.Contract, to domain.ContractStatus, actor, reason string) error {
	from := contract.Status
	contract.Status = to
	if err := d.Contracts.UpdateContract(ctx, contract); err != nil {
		return err
	}
	return transition(ctx, d, contract.ID, nil, domain.ScopeContract, string(from), string(to), actor, reason)
}

// ApplyPayment allocates amount across the given open installments in order
// and updates the phase and contract money aggregates. It returns the
// applied total and the number of installments touched; any remainder stays
// unapplied. Phases whose remaining amount reaches zero complete through the
// cascade.
func ApplyPayment(ctx context.Context, d Deps, contract *domain.Contract, open []domain.ContractInstallment, amount decimal.Decimal, actor string, now time.Time) (decimal.Decimal, int, error) {
	remaining := amount
	applied := decimal.Zero
	hit := 0
	perPhase := map[uint64]decimal.Decimal{}

	for i := range open {
		if !remaining.IsPositive() {
			break
		}
		outstanding := open[i].Outstanding()
		if !outstanding.IsPositive() {
			continue
		}

		pay := decimal.Min(outstanding, remaining)
		open[i].AmountPaid = open[i].AmountPaid.Add(pay)
		if !open[i].Outstanding().IsPositive() {
			open[i].Status = domain.InstallmentPaid
		}
		if err := d.Contracts.UpdateInstallment(ctx, &open[i]); err != nil {
			return decimal.Zero, 0, err
		}

		perPhase[open[i].PhaseID] = perPhase[open[i].PhaseID].Add(pay)
		remaining = remaining.Sub(pay)
		applied = applied.Add(pay)
		hit++
	}

	if applied.IsZero() {
		return applied, hit, nil
	}

	contract.TotalPaidToDate = contract.TotalPaidToDate.Add(applied)
	if err := d.Contracts.UpdateContract(ctx, contract); err != nil {
		return decimal.Zero, 0, err
	}

	var completed []uint64
	for phaseID, sum := range perPhase {
		phase, err := d.Contracts.FindPhaseByID(ctx, phaseID)
		if err != nil {
			return decimal.Zero, 0, err
		}
		if phase == nil {
			return decimal.Zero, 0, common.NotFound("phase %d not found", phaseID)
		}

		phase.PaidAmount = phase.PaidAmount.Add(sum)
		phase.RemainingAmount = phase.RemainingAmount.Sub(sum)
		if phase.RemainingAmount.IsNegative() {
			phase.RemainingAmount = decimal.Zero
		}
		if err := d.Contracts.UpdatePhase(ctx, phase); err != nil {
			return decimal.Zero, 0, err
		}
		if phase.RemainingAmount.IsZero() {
			completed = append(completed, phaseID)
		}
	}

	for _, phaseID := range completed {
		phases, err := d.Contracts.FindPhasesByContractID(ctx, contract.ID)
		if err != nil {
			return decimal.Zero, 0, err
		}
		var target *domain.ContractPhase
		for i := range phases {
			if phases[i].ID == phaseID {
				target = &phases[i]
				break
			}
		}
		if target == nil || target.Status != domain.PhaseActive {
			continue
		}
		if err := CompletePhase(ctx, d, contract, phases, target, actor, now); err != nil {
			return decimal.Zero, 0, err
		}
	}

	return applied, hit, nil
}
