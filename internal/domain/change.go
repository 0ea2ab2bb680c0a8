package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type ChangeRequestStatus string

const (
	ChangePendingDocuments   ChangeRequestStatus = "PENDING_DOCUMENTS"
	ChangeDocumentsSubmitted ChangeRequestStatus = "DOCUMENTS_SUBMITTED"
	ChangeUnderReview        ChangeRequestStatus = "UNDER_REVIEW"
	ChangeApproved           ChangeRequestStatus = "APPROVED"
	ChangeRejected           ChangeRequestStatus = "REJECTED"
	ChangeExecuted           ChangeRequestStatus = "EXECUTED"
	ChangeCancelled          ChangeRequestStatus = "CANCELLED"
)

// PaymentMethodChangeRequest is the reviewable workflow object for switching
// an ACTIVE contract to a different payment method mid-flight. At most one
// request per contract may sit in a non-terminal status.
type PaymentMethodChangeRequest struct {
	ID                 uint64
	ContractID         uint64
	FromTemplateID     uint
	ToTemplateID       uint
	Reason             string
	CurrentOutstanding decimal.Decimal
	NewTermMonths      uint
	NewInterestRate    decimal.Decimal
	NewMonthlyPayment  decimal.Decimal
	Status             ChangeRequestStatus
	InitiatorID        uint64
	ReviewerID         *uint64
	ReviewNotes        string
	RejectionReason    string
	ReviewedAt         *time.Time
	ExecutedAt         *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time

	DocumentURLs []ChangeRequestDocument
}

type ChangeRequestDocument struct {
	ID              uint64
	ChangeRequestID uint64
	Name            string
	FileURL         string
	UploadedAt      time.Time
}

// Terminal reports whether the request has reached a final status.
func (s ChangeRequestStatus) Terminal() bool {
	switch s {
	case ChangeRejected, ChangeExecuted, ChangeCancelled:
		return true
	}
	return false
}

// CanTransition encodes the change-workflow state machine. Execution from
// APPROVED and cancellation from any pre-review state are the only branches.
func (s ChangeRequestStatus) CanTransition(to ChangeRequestStatus) bool {
	switch to {
	case ChangeDocumentsSubmitted:
		return s == ChangePendingDocuments
	case ChangeUnderReview:
		return s == ChangeDocumentsSubmitted
	case ChangeApproved, ChangeRejected:
		return s == ChangeUnderReview
	case ChangeExecuted:
		return s == ChangeApproved
	case ChangeCancelled:
		return s == ChangePendingDocuments || s == ChangeDocumentsSubmitted || s == ChangeUnderReview
	}
	return false
}
