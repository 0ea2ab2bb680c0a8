package domain

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
)

type Role string

const (
	AdminRole    Role = "admin"
	BuyerRole    Role = "buyer"
	ReviewerRole Role = "reviewer"
)

type PhaseCategory string

const (
	CategoryDocumentation PhaseCategory = "DOCUMENTATION"
	CategoryQuestionnaire PhaseCategory = "QUESTIONNAIRE"
	CategoryPayment       PhaseCategory = "PAYMENT"
)

type Frequency string

const (
	FrequencyOneTime Frequency = "ONE_TIME"
	FrequencyWeekly  Frequency = "WEEKLY"
	FrequencyMonthly Frequency = "MONTHLY"
)

type ContractStatus string

const (
	ContractDraft      ContractStatus = "DRAFT"
	ContractPending    ContractStatus = "PENDING"
	ContractActive     ContractStatus = "ACTIVE"
	ContractCompleted  ContractStatus = "COMPLETED"
	ContractTerminated ContractStatus = "TERMINATED"
)

type PhaseStatus string

const (
	PhasePending    PhaseStatus = "PENDING"
	PhaseActive     PhaseStatus = "ACTIVE"
	PhaseCompleted  PhaseStatus = "COMPLETED"
	PhaseSkipped    PhaseStatus = "SKIPPED"
	PhaseSuperseded PhaseStatus = "SUPERSEDED"
)

type StepStatus string

const (
	StepPending   StepStatus = "PENDING"
	StepCompleted StepStatus = "COMPLETED"
)

type DocumentStatus string

const (
	DocumentPending   DocumentStatus = "PENDING"
	DocumentSubmitted DocumentStatus = "SUBMITTED"
	DocumentApproved  DocumentStatus = "APPROVED"
	DocumentRejected  DocumentStatus = "REJECTED"
)

type InstallmentStatus string

const (
	InstallmentPending InstallmentStatus = "PENDING"
	InstallmentDue     InstallmentStatus = "DUE"
	InstallmentPaid    InstallmentStatus = "PAID"
	InstallmentOverdue InstallmentStatus = "OVERDUE"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentFailed    PaymentStatus = "FAILED"
)

type UnitStatus string

const (
	UnitAvailable UnitStatus = "AVAILABLE"
	UnitReserved  UnitStatus = "RESERVED"
	UnitSold      UnitStatus = "SOLD"
)

// Contract is the aggregate root. It exclusively owns its phases,
// installments, payments and the active change request; nothing outside the
// contract and ledger services writes those rows.
type Contract struct {
	ID                      uint64
	TenantID                uint64
	BuyerID                 uint64
	PropertyUnitID          uint64
	PaymentMethodTemplateID uint
	TotalAmount             decimal.Decimal
	TotalPaidToDate         decimal.Decimal
	Status                  ContractStatus
	StartDate               *time.Time
	SignedAt                *time.Time
	CreatedAt               time.Time
	UpdatedAt               time.Time

	Phases []ContractPhase
}

// ContractPhase carries a copy of the amortization terms that were current
// when the phase activated, so later plan edits cannot corrupt the schedule.
type ContractPhase struct {
	ID               uint64
	ContractID       uint64
	Order            uint
	Name             string
	Category         PhaseCategory
	Type             string
	Status           PhaseStatus
	TargetAmount     decimal.Decimal
	PaidAmount       decimal.Decimal
	RemainingAmount  decimal.Decimal
	InterestRate     decimal.Decimal
	Frequency        Frequency
	InstallmentCount uint
	GracePeriodDays  uint
	ActivatedAt      *time.Time
	CompletedAt      *time.Time
	SupersededAt     *time.Time

	Steps        []ContractPhaseStep
	Documents    []ContractPhaseDocument
	Installments []ContractInstallment
}

type ContractPhaseStep struct {
	ID          uint64
	PhaseID     uint64
	Name        string
	Type        string
	Order       uint
	Status      StepStatus
	CompletedAt *time.Time
}

type ContractPhaseDocument struct {
	ID               uint64
	PhaseID          uint64
	Name             string
	Required         bool
	RequiresApproval bool
	Status           DocumentStatus
	FileURL          string
	SubmittedAt      *time.Time
	ReviewedAt       *time.Time
}

type ContractInstallment struct {
	ID         uint64
	PhaseID    uint64
	Sequence   uint
	DueDate    time.Time
	AmountDue  decimal.Decimal
	AmountPaid decimal.Decimal
	Status     InstallmentStatus
}

type ContractPayment struct {
	ID                   uint64
	ContractID           uint64
	PhaseID              *uint64
	InstallmentID        *uint64
	Amount               decimal.Decimal
	AppliedAmount        decimal.Decimal
	Method               string
	Status               PaymentStatus
	Reference            string
	GatewayTransactionID string
	CreatedAt            time.Time
	CompletedAt          *time.Time
}

// TransitionScope distinguishes contract-level from phase-level rows in the
// append-only transition log.
type TransitionScope string

const (
	ScopeContract TransitionScope = "CONTRACT"
	ScopePhase    TransitionScope = "PHASE"
)

type ContractTransition struct {
	ID         uint64
	ContractID uint64
	PhaseID    *uint64
	Scope      TransitionScope
	FromStatus string
	ToStatus   string
	Actor      string
	Reason     string
	CreatedAt  time.Time
}

type PropertyUnit struct {
	ID          uint64
	TenantID    uint64
	Name        string
	Price       decimal.Decimal
	Status      UnitStatus
	ReservedFor *uint64
	UpdatedAt   time.Time
}

type User struct {
	ID        uint64
	TenantID  uint64
	Email     string
	FullName  string
	Password  string
	Role      Role
	CreatedAt time.Time
	UpdatedAt time.Time
}

type JwtCustomClaims struct {
	UserID   uint64 `json:"user_id"`
	TenantID uint64 `json:"tenant_id"`
	Role     Role   `json:"role"`
	jwt.RegisteredClaims
}

type Params struct {
	Status string
	Page   int
	Limit  int
}

type Paginated struct {
	Data       any
	Total      int64
	Page       int
	Limit      int
	TotalPages int
}

// Open reports whether the installment can still absorb money.
func (i ContractInstallment) Open() bool {
	switch i.Status {
	case InstallmentPending, InstallmentDue, InstallmentOverdue:
		return true
	}
	return false
}

// Outstanding is the unpaid remainder of the installment, floored at zero.
func (i ContractInstallment) Outstanding() decimal.Decimal {
	out := i.AmountDue.Sub(i.AmountPaid)
	if out.IsNegative() {
		return decimal.Zero
	}
	return out
}

// DeriveInstallmentStatus recalculates an installment status from its amounts
// and due date. Overdue marking happens at read/apply time; there is no
// background scheduler.
func DeriveInstallmentStatus(i ContractInstallment, now time.Time) InstallmentStatus {
	if i.AmountPaid.GreaterThanOrEqual(i.AmountDue) {
		return InstallmentPaid
	}
	if sameDay(now, i.DueDate) {
		return InstallmentDue
	}
	if now.After(i.DueDate) {
		return InstallmentOverdue
	}
	return InstallmentPending
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Settled reports whether the phase no longer blocks later phases.
func (p ContractPhase) Settled() bool {
	switch p.Status {
	case PhaseCompleted, PhaseSkipped, PhaseSuperseded:
		return true
	}
	return false
}

// CanActivatePhase enforces the ordering invariant: a phase may leave PENDING
// only when every lower-order phase that was not skipped or superseded is
// already settled, and the contract itself is PENDING or ACTIVE.
func CanActivatePhase(contractStatus ContractStatus, phases []ContractPhase, target ContractPhase) bool {
	if target.Status != PhasePending {
		return false
	}
	if contractStatus != ContractPending && contractStatus != ContractActive {
		return false
	}
	for _, p := range phases {
		if p.ID == target.ID {
			continue
		}
		if p.Order < target.Order && !p.Settled() {
			return false
		}
	}
	return true
}

// StepsComplete reports whether every step of the phase is completed.
func (p ContractPhase) StepsComplete() bool {
	for _, s := range p.Steps {
		if s.Status != StepCompleted {
			return false
		}
	}
	return true
}

// DocumentsApproved reports whether every required document that demands
// approval has been approved. Optional documents never block completion.
func (p ContractPhase) DocumentsApproved() bool {
	for _, d := range p.Documents {
		if !d.Required {
			continue
		}
		if d.RequiresApproval && d.Status != DocumentApproved {
			return false
		}
		if !d.RequiresApproval && d.Status == DocumentPending {
			return false
		}
	}
	return true
}

// ReadyToComplete evaluates the category-specific completion criteria for an
// ACTIVE phase.
func (p ContractPhase) ReadyToComplete() bool {
	if p.Status != PhaseActive {
		return false
	}
	switch p.Category {
	case CategoryPayment:
		return p.RemainingAmount.IsZero()
	case CategoryDocumentation:
		return p.StepsComplete() && p.DocumentsApproved()
	case CategoryQuestionnaire:
		return p.StepsComplete()
	}
	return false
}
