package dto

import (
	"mime/multipart"

	"github.com/shopspring/decimal"
)

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type CreateContractRequest struct {
	BuyerID        uint64 `json:"buyer_id" validate:"required,gt=0"`
	PropertyUnitID uint64 `json:"property_unit_id" validate:"required,gt=0"`
	TemplateID     uint   `json:"template_id" validate:"required,gt=0"`
	StartDate      string `json:"start_date" validate:"required,datetime=2006-01-02"`
}

type TerminateContractRequest struct {
	Reason string `json:"reason" validate:"required"`
}

type SkipPhaseRequest struct {
	Reason string `json:"reason" validate:"required"`
}

type ReopenPhaseRequest struct {
	Reason  string `json:"reason" validate:"required"`
	Cascade bool   `json:"cascade"`
}

type SubmitDocumentRequest struct {
	File *multipart.FileHeader `form:"file" validate:"required"`
}

type ReviewDocumentRequest struct {
	Approved bool   `json:"approved"`
	Notes    string `json:"notes,omitempty"`
}

type RecordPaymentRequest struct {
	ContractID    uint64          `json:"contract_id" validate:"required,gt=0"`
	InstallmentID *uint64         `json:"installment_id,omitempty" validate:"omitempty,gt=0"`
	Amount        decimal.Decimal `json:"amount" validate:"required"`
	Method        string          `json:"method" validate:"required"`
	Reference     string          `json:"reference" validate:"required,max=100"`
}

type PaymentCallbackRequest struct {
	Reference            string `json:"reference" validate:"required,max=100"`
	Status               string `json:"status" validate:"required,oneof=COMPLETED FAILED"`
	GatewayTransactionID string `json:"gateway_transaction_id,omitempty"`
}

type PayAheadRequest struct {
	Amount    decimal.Decimal `json:"amount" validate:"required"`
	Method    string          `json:"method" validate:"required"`
	Reference string          `json:"reference" validate:"required,max=100"`
}

type CreateChangeRequest struct {
	ToTemplateID uint   `json:"to_template_id" validate:"required,gt=0"`
	Reason       string `json:"reason,omitempty"`
}

type ChangeDocumentRequest struct {
	Name string                `form:"name" validate:"required"`
	File *multipart.FileHeader `form:"file" validate:"required"`
}

type RejectChangeRequest struct {
	Reason string `json:"reason" validate:"required"`
}

type ReviewNotesRequest struct {
	Notes string `json:"notes,omitempty"`
}
