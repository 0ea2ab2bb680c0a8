package domain

import (
	"github.com/shopspring/decimal"
)

// PaymentMethodTemplate is the reusable phase sequence an admin configures
// once. Contracts snapshot it at creation; templates are read-only from the
// engine's point of view.
type PaymentMethodTemplate struct {
	ID                     uint
	Name                   string
	RequiresManualApproval bool

	Phases []TemplatePhase
}

type TemplatePhase struct {
	ID                 uint
	TemplateID         uint
	Order              uint
	Name               string
	Category           PhaseCategory
	Type               string
	PercentOfPrice     decimal.Decimal
	AmortizationPlanID *uint
	AmortizationPlan   *AmortizationPlan

	StepDefinitions      []StepDefinition
	DocumentRequirements []DocumentRequirement
}

// AmortizationPlan is immutable once referenced by an executed contract
// phase; activation copies its terms onto the phase instead of keeping the
// reference live.
type AmortizationPlan struct {
	ID               uint
	Name             string
	Frequency        Frequency
	InstallmentCount uint
	AnnualRate       decimal.Decimal
	GracePeriodDays  uint
}

type StepDefinition struct {
	ID              uint
	TemplatePhaseID uint
	Order           uint
	Name            string
	Type            string
}

type DocumentRequirement struct {
	ID               uint
	TemplatePhaseID  uint
	Name             string
	Required         bool
	RequiresApproval bool
}

// PaymentPhase reports whether the template phase carries money.
func (tp TemplatePhase) PaymentPhase() bool {
	return tp.Category == CategoryPayment
}
