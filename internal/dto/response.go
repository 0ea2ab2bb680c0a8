package dto

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/terravest/estatecore/internal/domain"
)

type LoginResponse struct {
	Token string `json:"token"`
}

type ContractResponse struct {
	ID              uint64          `json:"id"`
	TenantID        uint64          `json:"tenant_id"`
	BuyerID         uint64          `json:"buyer_id"`
	PropertyUnitID  uint64          `json:"property_unit_id"`
	TemplateID      uint            `json:"template_id"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	TotalPaidToDate decimal.Decimal `json:"total_paid_to_date"`
	Status          string          `json:"status"`
	StartDate       *time.Time      `json:"start_date,omitempty"`
	SignedAt        *time.Time      `json:"signed_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`

	Phases []PhaseResponse `json:"phases,omitempty"`
}

type PhaseResponse struct {
	ID              uint64          `json:"id"`
	Order           uint            `json:"order"`
	Name            string          `json:"name"`
	Category        string          `json:"category"`
	Type            string          `json:"type"`
	Status          string          `json:"status"`
	TargetAmount    decimal.Decimal `json:"target_amount"`
	PaidAmount      decimal.Decimal `json:"paid_amount"`
	RemainingAmount decimal.Decimal `json:"remaining_amount"`
	ActivatedAt     *time.Time      `json:"activated_at,omitempty"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`

	Steps        []StepResponse        `json:"steps,omitempty"`
	Documents    []DocumentResponse    `json:"documents,omitempty"`
	Installments []InstallmentResponse `json:"installments,omitempty"`
}

type StepResponse struct {
	ID          uint64     `json:"id"`
	Name        string     `json:"name"`
	Type        string     `json:"type"`
	Order       uint       `json:"order"`
	Status      string     `json:"status"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type DocumentResponse struct {
	ID          uint64     `json:"id"`
	Name        string     `json:"name"`
	Required    bool       `json:"required"`
	Status      string     `json:"status"`
	FileURL     string     `json:"file_url,omitempty"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	ReviewedAt  *time.Time `json:"reviewed_at,omitempty"`
}

type InstallmentResponse struct {
	ID         uint64          `json:"id"`
	Sequence   uint            `json:"sequence"`
	DueDate    time.Time       `json:"due_date"`
	AmountDue  decimal.Decimal `json:"amount_due"`
	AmountPaid decimal.Decimal `json:"amount_paid"`
	Status     string          `json:"status"`
}

type TransitionResponse struct {
	ID         uint64    `json:"id"`
	ContractID uint64    `json:"contract_id"`
	PhaseID    *uint64   `json:"phase_id,omitempty"`
	Scope      string    `json:"scope"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	Actor      string    `json:"actor"`
	Reason     string    `json:"reason,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type PaymentResponse struct {
	ID            uint64          `json:"id"`
	ContractID    uint64          `json:"contract_id"`
	InstallmentID *uint64         `json:"installment_id,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	AppliedAmount decimal.Decimal `json:"applied_amount"`
	Method        string          `json:"method"`
	Status        string          `json:"status"`
	Reference     string          `json:"reference"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
}

type PayAheadResponse struct {
	PaymentID       uint64          `json:"payment_id"`
	Amount          decimal.Decimal `json:"amount"`
	AppliedAmount   decimal.Decimal `json:"applied_amount"`
	UnappliedAmount decimal.Decimal `json:"unapplied_amount"`
	InstallmentsHit int             `json:"installments_hit"`
}

type ChangeRequestResponse struct {
	ID                 uint64          `json:"id"`
	ContractID         uint64          `json:"contract_id"`
	FromTemplateID     uint            `json:"from_template_id"`
	ToTemplateID       uint            `json:"to_template_id"`
	Status             string          `json:"status"`
	CurrentOutstanding decimal.Decimal `json:"current_outstanding"`
	NewTermMonths      uint            `json:"new_term_months"`
	NewInterestRate    decimal.Decimal `json:"new_interest_rate"`
	NewMonthlyPayment  decimal.Decimal `json:"new_monthly_payment"`
	Reason             string          `json:"reason,omitempty"`
	ReviewNotes        string          `json:"review_notes,omitempty"`
	RejectionReason    string          `json:"rejection_reason,omitempty"`
	ReviewedAt         *time.Time      `json:"reviewed_at,omitempty"`
	ExecutedAt         *time.Time      `json:"executed_at,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
}

type TemplateResponse struct {
	ID                     uint                    `json:"id"`
	Name                   string                  `json:"name"`
	RequiresManualApproval bool                    `json:"requires_manual_approval"`
	Phases                 []TemplatePhaseResponse `json:"phases,omitempty"`
}

type TemplatePhaseResponse struct {
	Order          uint            `json:"order"`
	Name           string          `json:"name"`
	Category       string          `json:"category"`
	Type           string          `json:"type"`
	PercentOfPrice decimal.Decimal `json:"percent_of_price"`
}

// --- Mapping --- //

func ContractToResponse(data *domain.Contract) ContractResponse {
	res := ContractResponse{
		ID:              data.ID,
		TenantID:        data.TenantID,
		BuyerID:         data.BuyerID,
		PropertyUnitID:  data.PropertyUnitID,
		TemplateID:      data.PaymentMethodTemplateID,
		TotalAmount:     data.TotalAmount,
		TotalPaidToDate: data.TotalPaidToDate,
		Status:          string(data.Status),
		StartDate:       data.StartDate,
		SignedAt:        data.SignedAt,
		CreatedAt:       data.CreatedAt,
	}
	for i := range data.Phases {
		res.Phases = append(res.Phases, PhaseToResponse(&data.Phases[i]))
	}
	return res
}

func PhaseToResponse(data *domain.ContractPhase) PhaseResponse {
	res := PhaseResponse{
		ID:              data.ID,
		Order:           data.Order,
		Name:            data.Name,
		Category:        string(data.Category),
		Type:            data.Type,
		Status:          string(data.Status),
		TargetAmount:    data.TargetAmount,
		PaidAmount:      data.PaidAmount,
		RemainingAmount: data.RemainingAmount,
		ActivatedAt:     data.ActivatedAt,
		CompletedAt:     data.CompletedAt,
	}
	for _, s := range data.Steps {
		res.Steps = append(res.Steps, StepResponse{
			ID:          s.ID,
			Name:        s.Name,
			Type:        s.Type,
			Order:       s.Order,
			Status:      string(s.Status),
			CompletedAt: s.CompletedAt,
		})
	}
	for _, d := range data.Documents {
		res.Documents = append(res.Documents, DocumentResponse{
			ID:          d.ID,
			Name:        d.Name,
			Required:    d.Required,
			Status:      string(d.Status),
			FileURL:     d.FileURL,
			SubmittedAt: d.SubmittedAt,
			ReviewedAt:  d.ReviewedAt,
		})
	}
	for _, ins := range data.Installments {
		res.Installments = append(res.Installments, InstallmentToResponse(ins))
	}
	return res
}

func TransitionToResponse(data domain.ContractTransition) TransitionResponse {
	return TransitionResponse{
		ID:         data.ID,
		ContractID: data.ContractID,
		PhaseID:    data.PhaseID,
		Scope:      string(data.Scope),
		FromStatus: data.FromStatus,
		ToStatus:   data.ToStatus,
		Actor:      data.Actor,
		Reason:     data.Reason,
		CreatedAt:  data.CreatedAt,
	}
}

func DocumentToResponse(data *domain.ContractPhaseDocument) DocumentResponse {
	return DocumentResponse{
		ID:          data.ID,
		Name:        data.Name,
		Required:    data.Required,
		Status:      string(data.Status),
		FileURL:     data.FileURL,
		SubmittedAt: data.SubmittedAt,
		ReviewedAt:  data.ReviewedAt,
	}
}

func InstallmentToResponse(data domain.ContractInstallment) InstallmentResponse {
	return InstallmentResponse{
		ID:         data.ID,
		Sequence:   data.Sequence,
		DueDate:    data.DueDate,
		AmountDue:  data.AmountDue,
		AmountPaid: data.AmountPaid,
		Status:     string(data.Status),
	}
}

func PaymentToResponse(data *domain.ContractPayment) PaymentResponse {
	return PaymentResponse{
		ID:            data.ID,
		ContractID:    data.ContractID,
		InstallmentID: data.InstallmentID,
		Amount:        data.Amount,
		AppliedAmount: data.AppliedAmount,
		Method:        data.Method,
		Status:        string(data.Status),
		Reference:     data.Reference,
		CompletedAt:   data.CompletedAt,
	}
}

func ChangeRequestToResponse(data *domain.PaymentMethodChangeRequest) ChangeRequestResponse {
	return ChangeRequestResponse{
		ID:                 data.ID,
		ContractID:         data.ContractID,
		FromTemplateID:     data.FromTemplateID,
		ToTemplateID:       data.ToTemplateID,
		Status:             string(data.Status),
		CurrentOutstanding: data.CurrentOutstanding,
		NewTermMonths:      data.NewTermMonths,
		NewInterestRate:    data.NewInterestRate,
		NewMonthlyPayment:  data.NewMonthlyPayment,
		Reason:             data.Reason,
		ReviewNotes:        data.ReviewNotes,
		RejectionReason:    data.RejectionReason,
		ReviewedAt:         data.ReviewedAt,
		ExecutedAt:         data.ExecutedAt,
		CreatedAt:          data.CreatedAt,
	}
}

func TemplateToResponse(data *domain.PaymentMethodTemplate) TemplateResponse {
	res := TemplateResponse{
		ID:                     data.ID,
		Name:                   data.Name,
		RequiresManualApproval: data.RequiresManualApproval,
	}
	for _, p := range data.Phases {
		res.Phases = append(res.Phases, TemplatePhaseResponse{
			Order:          p.Order,
			Name:           p.Name,
			Category:       string(p.Category),
			Type:           p.Type,
			PercentOfPrice: p.PercentOfPrice,
		})
	}
	return res
}
