package domain_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/terravest/estatecore/internal/domain"
)

func TestDeriveInstallmentStatus(t *testing.T) {
	due := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	installment := domain.ContractInstallment{
		DueDate:   due,
		AmountDue: decimal.NewFromInt(1000),
	}

	t.Run("Paid wins regardless of date", func(t *testing.T) {
		paid := installment
		paid.AmountPaid = decimal.NewFromInt(1000)
		assert.Equal(t, domain.InstallmentPaid, domain.DeriveInstallmentStatus(paid, due.AddDate(0, 1, 0)))
	})

	t.Run("Due on the due date itself", func(t *testing.T) {
		assert.Equal(t, domain.InstallmentDue, domain.DeriveInstallmentStatus(installment, due.Add(10*time.Hour)))
	})

	t.Run("Overdue after the due date", func(t *testing.T) {
		assert.Equal(t, domain.InstallmentOverdue, domain.DeriveInstallmentStatus(installment, due.AddDate(0, 0, 1)))
	})

	t.Run("Pending before the due date", func(t *testing.T) {
		assert.Equal(t, domain.InstallmentPending, domain.DeriveInstallmentStatus(installment, due.AddDate(0, 0, -3)))
	})

	t.Run("Partial payment stays unpaid", func(t *testing.T) {
		partial := installment
		partial.AmountPaid = decimal.NewFromInt(400)
		assert.Equal(t, domain.InstallmentOverdue, domain.DeriveInstallmentStatus(partial, due.AddDate(0, 0, 2)))
	})
}

func TestInstallmentOutstanding(t *testing.T) {
	i := domain.ContractInstallment{
		AmountDue:  decimal.NewFromInt(1000),
		AmountPaid: decimal.NewFromInt(250),
	}
	assert.True(t, i.Outstanding().Equal(decimal.NewFromInt(750)))

	i.AmountPaid = decimal.NewFromInt(1200)
	assert.True(t, i.Outstanding().IsZero())
}

func TestCanActivatePhase(t *testing.T) {
	phase := func(id uint64, order uint, status domain.PhaseStatus) domain.ContractPhase {
		return domain.ContractPhase{ID: id, Order: order, Status: status}
	}

	t.Run("First pending phase on an active contract", func(t *testing.T) {
		target := phase(1, 1, domain.PhasePending)
		phases := []domain.ContractPhase{target, phase(2, 2, domain.PhasePending)}
		assert.True(t, domain.CanActivatePhase(domain.ContractActive, phases, target))
	})

	t.Run("Blocked while a lower phase is unsettled", func(t *testing.T) {
		target := phase(2, 2, domain.PhasePending)
		phases := []domain.ContractPhase{phase(1, 1, domain.PhaseActive), target}
		assert.False(t, domain.CanActivatePhase(domain.ContractActive, phases, target))
	})

	t.Run("Skipped and superseded predecessors do not block", func(t *testing.T) {
		target := phase(3, 3, domain.PhasePending)
		phases := []domain.ContractPhase{
			phase(1, 1, domain.PhaseSkipped),
			phase(2, 2, domain.PhaseSuperseded),
			target,
		}
		assert.True(t, domain.CanActivatePhase(domain.ContractPending, phases, target))
	})

	t.Run("Non-pending target never activates", func(t *testing.T) {
		target := phase(1, 1, domain.PhaseActive)
		assert.False(t, domain.CanActivatePhase(domain.ContractActive, []domain.ContractPhase{target}, target))
	})

	t.Run("Terminal contract blocks activation", func(t *testing.T) {
		target := phase(1, 1, domain.PhasePending)
		assert.False(t, domain.CanActivatePhase(domain.ContractTerminated, []domain.ContractPhase{target}, target))
		assert.False(t, domain.CanActivatePhase(domain.ContractDraft, []domain.ContractPhase{target}, target))
	})
}

func TestPhaseReadyToComplete(t *testing.T) {
	t.Run("Payment phase completes at zero remaining", func(t *testing.T) {
		p := domain.ContractPhase{
			Status:          domain.PhaseActive,
			Category:        domain.CategoryPayment,
			RemainingAmount: decimal.Zero,
		}
		assert.True(t, p.ReadyToComplete())

		p.RemainingAmount = decimal.NewFromInt(1)
		assert.False(t, p.ReadyToComplete())
	})

	t.Run("Documentation phase needs steps and approvals", func(t *testing.T) {
		p := domain.ContractPhase{
			Status:   domain.PhaseActive,
			Category: domain.CategoryDocumentation,
			Steps: []domain.ContractPhaseStep{
				{Status: domain.StepCompleted},
			},
			Documents: []domain.ContractPhaseDocument{
				{Required: true, RequiresApproval: true, Status: domain.DocumentApproved},
				{Required: false, RequiresApproval: true, Status: domain.DocumentPending},
			},
		}
		assert.True(t, p.ReadyToComplete())

		p.Documents[0].Status = domain.DocumentSubmitted
		assert.False(t, p.ReadyToComplete())

		p.Documents[0].Status = domain.DocumentApproved
		p.Steps[0].Status = domain.StepPending
		assert.False(t, p.ReadyToComplete())
	})

	t.Run("Required document without approval gate only needs submission", func(t *testing.T) {
		p := domain.ContractPhase{
			Status:   domain.PhaseActive,
			Category: domain.CategoryDocumentation,
			Documents: []domain.ContractPhaseDocument{
				{Required: true, RequiresApproval: false, Status: domain.DocumentSubmitted},
			},
		}
		assert.True(t, p.ReadyToComplete())
	})

	t.Run("Questionnaire phase ignores documents", func(t *testing.T) {
		p := domain.ContractPhase{
			Status:   domain.PhaseActive,
			Category: domain.CategoryQuestionnaire,
			Steps: []domain.ContractPhaseStep{
				{Status: domain.StepCompleted},
				{Status: domain.StepCompleted},
			},
			Documents: []domain.ContractPhaseDocument{
				{Required: true, RequiresApproval: true, Status: domain.DocumentPending},
			},
		}
		assert.True(t, p.ReadyToComplete())
	})

	t.Run("Inactive phase never completes", func(t *testing.T) {
		p := domain.ContractPhase{Status: domain.PhasePending, Category: domain.CategoryQuestionnaire}
		assert.False(t, p.ReadyToComplete())
	})
}

func TestChangeRequestTransitions(t *testing.T) {
	type move struct {
		from    domain.ChangeRequestStatus
		to      domain.ChangeRequestStatus
		allowed bool
	}

	moves := []move{
		{domain.ChangePendingDocuments, domain.ChangeDocumentsSubmitted, true},
		{domain.ChangeDocumentsSubmitted, domain.ChangeUnderReview, true},
		{domain.ChangeUnderReview, domain.ChangeApproved, true},
		{domain.ChangeUnderReview, domain.ChangeRejected, true},
		{domain.ChangeApproved, domain.ChangeExecuted, true},
		{domain.ChangePendingDocuments, domain.ChangeCancelled, true},
		{domain.ChangeDocumentsSubmitted, domain.ChangeCancelled, true},
		{domain.ChangeUnderReview, domain.ChangeCancelled, true},

		{domain.ChangePendingDocuments, domain.ChangeUnderReview, false},
		{domain.ChangePendingDocuments, domain.ChangeApproved, false},
		{domain.ChangeDocumentsSubmitted, domain.ChangeExecuted, false},
		{domain.ChangeApproved, domain.ChangeCancelled, false},
		{domain.ChangeApproved, domain.ChangeRejected, false},
		{domain.ChangeRejected, domain.ChangeUnderReview, false},
		{domain.ChangeExecuted, domain.ChangeExecuted, false},
		{domain.ChangeCancelled, domain.ChangeDocumentsSubmitted, false},
	}

	for _, m := range moves {
		assert.Equal(t, m.allowed, m.from.CanTransition(m.to), "%s -> %s", m.from, m.to)
	}
}

func TestChangeRequestTerminal(t *testing.T) {
	assert.True(t, domain.ChangeRejected.Terminal())
	assert.True(t, domain.ChangeExecuted.Terminal())
	assert.True(t, domain.ChangeCancelled.Terminal())
	assert.False(t, domain.ChangePendingDocuments.Terminal())
	assert.False(t, domain.ChangeUnderReview.Terminal())
	assert.False(t, domain.ChangeApproved.Terminal())
}
