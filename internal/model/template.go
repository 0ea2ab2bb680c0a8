package model

import (
	"github.com/terravest/estatecore/internal/domain"
)

func TemplateToEntity(data PaymentMethodTemplate) *domain.PaymentMethodTemplate {
	phases := make([]domain.TemplatePhase, len(data.Phases))
	for i, p := range data.Phases {
		phases[i] = *TemplatePhaseToEntity(p)
	}

	return &domain.PaymentMethodTemplate{
		ID:                     data.ID,
		Name:                   data.Name,
		RequiresManualApproval: data.RequiresManualApproval,
		Phases:                 phases,
	}
}

func TemplatePhaseToEntity(data TemplatePhase) *domain.TemplatePhase {
	steps := make([]domain.StepDefinition, len(data.StepDefinitions))
	for i, s := range data.StepDefinitions {
		steps[i] = domain.StepDefinition{
			ID:              s.ID,
			TemplatePhaseID: s.TemplatePhaseID,
			Order:           s.Order,
			Name:            s.Name,
			Type:            s.Type,
		}
	}

	docs := make([]domain.DocumentRequirement, len(data.DocumentRequirements))
	for i, d := range data.DocumentRequirements {
		docs[i] = domain.DocumentRequirement{
			ID:               d.ID,
			TemplatePhaseID:  d.TemplatePhaseID,
			Name:             d.Name,
			Required:         d.Required,
			RequiresApproval: d.RequiresApproval,
		}
	}

	var plan *domain.AmortizationPlan
	if data.AmortizationPlan != nil {
		plan = AmortizationPlanToEntity(*data.AmortizationPlan)
	}

	return &domain.TemplatePhase{
		ID:                   data.ID,
		TemplateID:           data.TemplateID,
		Order:                data.Order,
		Name:                 data.Name,
		Category:             domain.PhaseCategory(data.Category),
		Type:                 data.Type,
		PercentOfPrice:       data.PercentOfPrice,
		AmortizationPlanID:   data.AmortizationPlanID,
		AmortizationPlan:     plan,
		StepDefinitions:      steps,
		DocumentRequirements: docs,
	}
}

func AmortizationPlanToEntity(data AmortizationPlan) *domain.AmortizationPlan {
	return &domain.AmortizationPlan{
		ID:               data.ID,
		Name:             data.Name,
		Frequency:        domain.Frequency(data.Frequency),
		InstallmentCount: data.InstallmentCount,
		AnnualRate:       data.AnnualRate,
		GracePeriodDays:  data.GracePeriodDays,
	}
}

func TemplatesToEntity(data []PaymentMethodTemplate) []domain.PaymentMethodTemplate {
	responses := make([]domain.PaymentMethodTemplate, len(data))
	for i, t := range data {
		responses[i] = *TemplateToEntity(t)
	}

	return responses
}

func UnitToEntity(data PropertyUnit) *domain.PropertyUnit {
	return &domain.PropertyUnit{
		ID:          data.ID,
		TenantID:    data.TenantID,
		Name:        data.Name,
		Price:       data.Price,
		Status:      domain.UnitStatus(data.Status),
		ReservedFor: data.ReservedFor,
		UpdatedAt:   data.UpdatedAt,
	}
}
