package model

import (
	"github.com/terravest/estatecore/internal/domain"
)

func ContractFromEntity(data *domain.Contract) Contract {
	phases := make([]ContractPhase, len(data.Phases))
	for i, p := range data.Phases {
		phases[i] = PhaseFromEntity(&p)
	}

	return Contract{
		ID:                      data.ID,
		TenantID:                data.TenantID,
		BuyerID:                 data.BuyerID,
		PropertyUnitID:          data.PropertyUnitID,
		PaymentMethodTemplateID: data.PaymentMethodTemplateID,
		TotalAmount:             data.TotalAmount,
		TotalPaidToDate:         data.TotalPaidToDate,
		Status:                  string(data.Status),
		StartDate:               data.StartDate,
		SignedAt:                data.SignedAt,
		Phases:                  phases,
	}
}

func ContractToEntity(data Contract) *domain.Contract {
	phases := make([]domain.ContractPhase, len(data.Phases))
	for i, p := range data.Phases {
		phases[i] = *PhaseToEntity(p)
	}

	return &domain.Contract{
		ID:                      data.ID,
		TenantID:                data.TenantID,
		BuyerID:                 data.BuyerID,
		PropertyUnitID:          data.PropertyUnitID,
		PaymentMethodTemplateID: data.PaymentMethodTemplateID,
		TotalAmount:             data.TotalAmount,
		TotalPaidToDate:         data.TotalPaidToDate,
		Status:                  domain.ContractStatus(data.Status),
		StartDate:               data.StartDate,
		SignedAt:                data.SignedAt,
		CreatedAt:               data.CreatedAt,
		UpdatedAt:               data.UpdatedAt,
		Phases:                  phases,
	}
}

func ContractsToEntity(data []Contract) []domain.Contract {
	responses := make([]domain.Contract, len(data))
	for i, c := range data {
		responses[i] = *ContractToEntity(c)
	}

	return responses
}

func PhaseFromEntity(data *domain.ContractPhase) ContractPhase {
	steps := make([]ContractPhaseStep, len(data.Steps))
	for i, s := range data.Steps {
		steps[i] = ContractPhaseStep{
			ID:          s.ID,
			PhaseID:     s.PhaseID,
			Name:        s.Name,
			Type:        s.Type,
			Order:       s.Order,
			Status:      string(s.Status),
			CompletedAt: s.CompletedAt,
		}
	}

	docs := make([]ContractPhaseDocument, len(data.Documents))
	for i, d := range data.Documents {
		docs[i] = ContractPhaseDocument{
			ID:               d.ID,
			PhaseID:          d.PhaseID,
			Name:             d.Name,
			Required:         d.Required,
			RequiresApproval: d.RequiresApproval,
			Status:           string(d.Status),
			FileURL:          d.FileURL,
			SubmittedAt:      d.SubmittedAt,
			ReviewedAt:       d.ReviewedAt,
		}
	}

	installments := make([]ContractInstallment, len(data.Installments))
	for i, ins := range data.Installments {
		installments[i] = InstallmentFromEntity(&ins)
	}

	return ContractPhase{
		ID:               data.ID,
		ContractID:       data.ContractID,
		Order:            data.Order,
		Name:             data.Name,
		Category:         string(data.Category),
		Type:             data.Type,
		Status:           string(data.Status),
		TargetAmount:     data.TargetAmount,
		PaidAmount:       data.PaidAmount,
		RemainingAmount:  data.RemainingAmount,
		InterestRate:     data.InterestRate,
		Frequency:        string(data.Frequency),
		InstallmentCount: data.InstallmentCount,
		GracePeriodDays:  data.GracePeriodDays,
		ActivatedAt:      data.ActivatedAt,
		CompletedAt:      data.CompletedAt,
		SupersededAt:     data.SupersededAt,
		Steps:            steps,
		Documents:        docs,
		Installments:     installments,
	}
}

func PhaseToEntity(data ContractPhase) *domain.ContractPhase {
	steps := make([]domain.ContractPhaseStep, len(data.Steps))
	for i, s := range data.Steps {
		steps[i] = domain.ContractPhaseStep{
			ID:          s.ID,
			PhaseID:     s.PhaseID,
			Name:        s.Name,
			Type:        s.Type,
			Order:       s.Order,
			Status:      domain.StepStatus(s.Status),
			CompletedAt: s.CompletedAt,
		}
	}

	docs := make([]domain.ContractPhaseDocument, len(data.Documents))
	for i, d := range data.Documents {
		docs[i] = domain.ContractPhaseDocument{
			ID:               d.ID,
			PhaseID:          d.PhaseID,
			Name:             d.Name,
			Required:         d.Required,
			RequiresApproval: d.RequiresApproval,
			Status:           domain.DocumentStatus(d.Status),
			FileURL:          d.FileURL,
			SubmittedAt:      d.SubmittedAt,
			ReviewedAt:       d.ReviewedAt,
		}
	}

	installments := make([]domain.ContractInstallment, len(data.Installments))
	for i, ins := range data.Installments {
		installments[i] = *InstallmentToEntity(ins)
	}

	return &domain.ContractPhase{
		ID:               data.ID,
		ContractID:       data.ContractID,
		Order:            data.Order,
		Name:             data.Name,
		Category:         domain.PhaseCategory(data.Category),
		Type:             data.Type,
		Status:           domain.PhaseStatus(data.Status),
		TargetAmount:     data.TargetAmount,
		PaidAmount:       data.PaidAmount,
		RemainingAmount:  data.RemainingAmount,
		InterestRate:     data.InterestRate,
		Frequency:        domain.Frequency(data.Frequency),
		InstallmentCount: data.InstallmentCount,
		GracePeriodDays:  data.GracePeriodDays,
		ActivatedAt:      data.ActivatedAt,
		CompletedAt:      data.CompletedAt,
		SupersededAt:     data.SupersededAt,
		Steps:            steps,
		Documents:        docs,
		Installments:     installments,
	}
}

func PhasesToEntity(data []ContractPhase) []domain.ContractPhase {
	responses := make([]domain.ContractPhase, len(data))
	for i, p := range data {
		responses[i] = *PhaseToEntity(p)
	}

	return responses
}

func InstallmentFromEntity(data *domain.ContractInstallment) ContractInstallment {
	return ContractInstallment{
		ID:         data.ID,
		PhaseID:    data.PhaseID,
		Sequence:   data.Sequence,
		DueDate:    data.DueDate,
		AmountDue:  data.AmountDue,
		AmountPaid: data.AmountPaid,
		Status:     string(data.Status),
	}
}

func InstallmentToEntity(data ContractInstallment) *domain.ContractInstallment {
	return &domain.ContractInstallment{
		ID:         data.ID,
		PhaseID:    data.PhaseID,
		Sequence:   data.Sequence,
		DueDate:    data.DueDate,
		AmountDue:  data.AmountDue,
		AmountPaid: data.AmountPaid,
		Status:     domain.InstallmentStatus(data.Status),
	}
}

func InstallmentsToEntity(data []ContractInstallment) []domain.ContractInstallment {
	responses := make([]domain.ContractInstallment, len(data))
	for i, ins := range data {
		responses[i] = *InstallmentToEntity(ins)
	}

	return responses
}

func TransitionFromEntity(data *domain.ContractTransition) ContractTransition {
	return ContractTransition{
		ID:         data.ID,
		ContractID: data.ContractID,
		PhaseID:    data.PhaseID,
		Scope:      string(data.Scope),
		FromStatus: data.FromStatus,
		ToStatus:   data.ToStatus,
		Actor:      data.Actor,
		Reason:     data.Reason,
	}
}

func TransitionsToEntity(data []ContractTransition) []domain.ContractTransition {
	responses := make([]domain.ContractTransition, len(data))
	for i, t := range data {
		responses[i] = domain.ContractTransition{
			ID:         t.ID,
			ContractID: t.ContractID,
			PhaseID:    t.PhaseID,
			Scope:      domain.TransitionScope(t.Scope),
			FromStatus: t.FromStatus,
			ToStatus:   t.ToStatus,
			Actor:      t.Actor,
			Reason:     t.Reason,
			CreatedAt:  t.CreatedAt,
		}
	}

	return responses
}
