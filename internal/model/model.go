package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// User represents the users table (buyers, admins, reviewers).
type User struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	TenantID  uint64    `gorm:"not null;index" json:"tenant_id"`
	Email     string    `gorm:"type:varchar(255);not null;uniqueIndex" json:"email"`
	FullName  string    `gorm:"type:varchar(255);not null" json:"full_name"`
	Password  string    `gorm:"type:varchar(255);not null" json:"-"`
	Role      string    `gorm:"type:enum('admin','buyer','reviewer');default:'buyer';not null" json:"role"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// PropertyUnit represents the property_units table. Only the minimal
// reserve/release surface lives here; inventory management is external.
type PropertyUnit struct {
	ID          uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	TenantID    uint64          `gorm:"not null;index" json:"tenant_id"`
	Name        string          `gorm:"type:varchar(255);not null" json:"name"`
	Price       decimal.Decimal `gorm:"type:decimal(19,2);not null" json:"price"`
	Status      string          `gorm:"type:enum('AVAILABLE','RESERVED','SOLD');default:'AVAILABLE';not null" json:"status"`
	ReservedFor *uint64         `gorm:"index" json:"reserved_for,omitempty"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// PaymentMethodTemplate represents the payment_method_templates table.
type PaymentMethodTemplate struct {
	ID                     uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name                   string    `gorm:"type:varchar(255);not null;uniqueIndex" json:"name"`
	RequiresManualApproval bool      `gorm:"not null;default:false" json:"requires_manual_approval"`
	CreatedAt              time.Time `gorm:"autoCreateTime" json:"created_at"`

	Phases []TemplatePhase `gorm:"foreignKey:TemplateID" json:"phases,omitempty"`
}

// TemplatePhase represents the template_phases table. Order is unique within
// a template and defines execution sequence.
type TemplatePhase struct {
	ID                 uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	TemplateID         uint            `gorm:"not null;uniqueIndex:idx_template_order" json:"template_id"`
	Order              uint            `gorm:"column:phase_order;not null;uniqueIndex:idx_template_order" json:"order"`
	Name               string          `gorm:"type:varchar(255);not null" json:"name"`
	Category           string          `gorm:"type:enum('DOCUMENTATION','QUESTIONNAIRE','PAYMENT');not null" json:"category"`
	Type               string          `gorm:"type:varchar(100);not null" json:"type"`
	PercentOfPrice     decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0" json:"percent_of_price"`
	AmortizationPlanID *uint           `json:"amortization_plan_id,omitempty"`

	AmortizationPlan     *AmortizationPlan     `gorm:"foreignKey:AmortizationPlanID" json:"amortization_plan,omitempty"`
	StepDefinitions      []StepDefinition      `gorm:"foreignKey:TemplatePhaseID" json:"step_definitions,omitempty"`
	DocumentRequirements []DocumentRequirement `gorm:"foreignKey:TemplatePhaseID" json:"document_requirements,omitempty"`
}

// AmortizationPlan represents the amortization_plans table.
type AmortizationPlan struct {
	ID               uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	Name             string          `gorm:"type:varchar(255);not null" json:"name"`
	Frequency        string          `gorm:"type:enum('ONE_TIME','WEEKLY','MONTHLY');not null" json:"frequency"`
	InstallmentCount uint            `gorm:"not null;default:1" json:"installment_count"`
	AnnualRate       decimal.Decimal `gorm:"type:decimal(6,3);not null;default:0" json:"annual_rate"`
	GracePeriodDays  uint            `gorm:"not null;default:0" json:"grace_period_days"`
}

// StepDefinition represents the step_definitions table.
type StepDefinition struct {
	ID              uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	TemplatePhaseID uint   `gorm:"not null;index" json:"template_phase_id"`
	Order           uint   `gorm:"column:step_order;not null" json:"order"`
	Name            string `gorm:"type:varchar(255);not null" json:"name"`
	Type            string `gorm:"type:varchar(100);not null" json:"type"`
}

// DocumentRequirement represents the document_requirements table.
type DocumentRequirement struct {
	ID               uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	TemplatePhaseID  uint   `gorm:"not null;index" json:"template_phase_id"`
	Name             string `gorm:"type:varchar(255);not null" json:"name"`
	Required         bool   `gorm:"not null;default:true" json:"required"`
	RequiresApproval bool   `gorm:"not null;default:true" json:"requires_approval"`
}

// Contract represents the contracts table.
type Contract struct {
	ID                      uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	TenantID                uint64          `gorm:"not null;index" json:"tenant_id"`
	BuyerID                 uint64          `gorm:"not null;index" json:"buyer_id"`
	PropertyUnitID          uint64          `gorm:"not null;index" json:"property_unit_id"`
	PaymentMethodTemplateID uint            `gorm:"not null" json:"payment_method_template_id"`
	TotalAmount             decimal.Decimal `gorm:"type:decimal(19,2);not null" json:"total_amount"`
	TotalPaidToDate         decimal.Decimal `gorm:"type:decimal(19,2);not null;default:0" json:"total_paid_to_date"`
	Status                  string          `gorm:"type:enum('DRAFT','PENDING','ACTIVE','COMPLETED','TERMINATED');default:'DRAFT';not null" json:"status"`
	StartDate               *time.Time      `gorm:"type:date" json:"start_date,omitempty"`
	SignedAt                *time.Time      `json:"signed_at,omitempty"`
	CreatedAt               time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt               time.Time       `gorm:"autoUpdateTime" json:"updated_at"`

	Phases []ContractPhase `gorm:"foreignKey:ContractID" json:"phases,omitempty"`
}

// ContractPhase represents the contract_phases table. The amortization terms
// are copied from the plan at activation.
type ContractPhase struct {
	ID               uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	ContractID       uint64          `gorm:"not null;index" json:"contract_id"`
	Order            uint            `gorm:"column:phase_order;not null;index" json:"order"`
	Name             string          `gorm:"type:varchar(255);not null" json:"name"`
	Category         string          `gorm:"type:enum('DOCUMENTATION','QUESTIONNAIRE','PAYMENT');not null" json:"category"`
	Type             string          `gorm:"type:varchar(100);not null" json:"type"`
	Status           string          `gorm:"type:enum('PENDING','ACTIVE','COMPLETED','SKIPPED','SUPERSEDED');default:'PENDING';not null" json:"status"`
	TargetAmount     decimal.Decimal `gorm:"type:decimal(19,2);not null;default:0" json:"target_amount"`
	PaidAmount       decimal.Decimal `gorm:"type:decimal(19,2);not null;default:0" json:"paid_amount"`
	RemainingAmount  decimal.Decimal `gorm:"type:decimal(19,2);not null;default:0" json:"remaining_amount"`
	InterestRate     decimal.Decimal `gorm:"type:decimal(6,3);not null;default:0" json:"interest_rate"`
	Frequency        string          `gorm:"type:enum('ONE_TIME','WEEKLY','MONTHLY');default:'ONE_TIME';not null" json:"frequency"`
	InstallmentCount uint            `gorm:"not null;default:1" json:"installment_count"`
	GracePeriodDays  uint            `gorm:"not null;default:0" json:"grace_period_days"`
	ActivatedAt      *time.Time      `json:"activated_at,omitempty"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
	SupersededAt     *time.Time      `json:"superseded_at,omitempty"`

	Steps        []ContractPhaseStep     `gorm:"foreignKey:PhaseID" json:"steps,omitempty"`
	Documents    []ContractPhaseDocument `gorm:"foreignKey:PhaseID" json:"documents,omitempty"`
	Installments []ContractInstallment   `gorm:"foreignKey:PhaseID" json:"installments,omitempty"`
}

// ContractPhaseStep represents the contract_phase_steps table.
type ContractPhaseStep struct {
	ID          uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	PhaseID     uint64     `gorm:"not null;index" json:"phase_id"`
	Name        string     `gorm:"type:varchar(255);not null" json:"name"`
	Type        string     `gorm:"type:varchar(100);not null" json:"type"`
	Order       uint       `gorm:"column:step_order;not null" json:"order"`
	Status      string     `gorm:"type:enum('PENDING','COMPLETED');default:'PENDING';not null" json:"status"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ContractPhaseDocument represents the contract_phase_documents table.
type ContractPhaseDocument struct {
	ID               uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	PhaseID          uint64     `gorm:"not null;index" json:"phase_id"`
	Name             string     `gorm:"type:varchar(255);not null" json:"name"`
	Required         bool       `gorm:"not null;default:true" json:"required"`
	RequiresApproval bool       `gorm:"not null;default:true" json:"requires_approval"`
	Status           string     `gorm:"type:enum('PENDING','SUBMITTED','APPROVED','REJECTED');default:'PENDING';not null" json:"status"`
	FileURL          string     `gorm:"type:varchar(512)" json:"file_url,omitempty"`
	SubmittedAt      *time.Time `json:"submitted_at,omitempty"`
	ReviewedAt       *time.Time `json:"reviewed_at,omitempty"`
}

// ContractInstallment represents the contract_installments table. Rows are
// generated once per phase activation and never regenerated in place.
type ContractInstallment struct {
	ID         uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	PhaseID    uint64          `gorm:"not null;uniqueIndex:idx_phase_sequence" json:"phase_id"`
	Sequence   uint            `gorm:"not null;uniqueIndex:idx_phase_sequence" json:"sequence"`
	DueDate    time.Time       `gorm:"type:date;not null" json:"due_date"`
	AmountDue  decimal.Decimal `gorm:"type:decimal(19,2);not null" json:"amount_due"`
	AmountPaid decimal.Decimal `gorm:"type:decimal(19,2);not null;default:0" json:"amount_paid"`
	Status     string          `gorm:"type:enum('PENDING','DUE','PAID','OVERDUE');default:'PENDING';not null" json:"status"`
}

// ContractPayment represents the contract_payments table. Reference is the
// caller-supplied idempotency key; the unique index is the storage-level
// backstop against double submission.
type ContractPayment struct {
	ID                   uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	ContractID           uint64          `gorm:"not null;index" json:"contract_id"`
	PhaseID              *uint64         `gorm:"index" json:"phase_id,omitempty"`
	InstallmentID        *uint64         `gorm:"index" json:"installment_id,omitempty"`
	Amount               decimal.Decimal `gorm:"type:decimal(19,2);not null" json:"amount"`
	AppliedAmount        decimal.Decimal `gorm:"type:decimal(19,2);not null;default:0" json:"applied_amount"`
	Method               string          `gorm:"type:varchar(50);not null" json:"method"`
	Status               string          `gorm:"type:enum('PENDING','COMPLETED','FAILED');default:'PENDING';not null" json:"status"`
	Reference            string          `gorm:"type:varchar(100);not null;uniqueIndex" json:"reference"`
	GatewayTransactionID string          `gorm:"type:varchar(100)" json:"gateway_transaction_id,omitempty"`
	CreatedAt            time.Time       `gorm:"autoCreateTime" json:"created_at"`
	CompletedAt          *time.Time      `json:"completed_at,omitempty"`
}

// ContractTransition represents the contract_transitions table, the
// append-only state transition log.
type ContractTransition struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ContractID uint64    `gorm:"not null;index" json:"contract_id"`
	PhaseID    *uint64   `gorm:"index" json:"phase_id,omitempty"`
	Scope      string    `gorm:"type:enum('CONTRACT','PHASE');not null" json:"scope"`
	FromStatus string    `gorm:"type:varchar(50);not null" json:"from_status"`
	ToStatus   string    `gorm:"type:varchar(50);not null" json:"to_status"`
	Actor      string    `gorm:"type:varchar(100);not null" json:"actor"`
	Reason     string    `gorm:"type:varchar(512)" json:"reason,omitempty"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// PaymentMethodChangeRequest represents the payment_method_change_requests
// table.
type PaymentMethodChangeRequest struct {
	ID                 uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	ContractID         uint64          `gorm:"not null;index" json:"contract_id"`
	FromTemplateID     uint            `gorm:"not null" json:"from_template_id"`
	ToTemplateID       uint            `gorm:"not null" json:"to_template_id"`
	Reason             string          `gorm:"type:varchar(512)" json:"reason,omitempty"`
	CurrentOutstanding decimal.Decimal `gorm:"type:decimal(19,2);not null" json:"current_outstanding"`
	NewTermMonths      uint            `gorm:"not null;default:0" json:"new_term_months"`
	NewInterestRate    decimal.Decimal `gorm:"type:decimal(6,3);not null;default:0" json:"new_interest_rate"`
	NewMonthlyPayment  decimal.Decimal `gorm:"type:decimal(19,2);not null;default:0" json:"new_monthly_payment"`
	Status             string          `gorm:"type:enum('PENDING_DOCUMENTS','DOCUMENTS_SUBMITTED','UNDER_REVIEW','APPROVED','REJECTED','EXECUTED','CANCELLED');default:'PENDING_DOCUMENTS';not null" json:"status"`
	InitiatorID        uint64          `gorm:"not null" json:"initiator_id"`
	ReviewerID         *uint64         `json:"reviewer_id,omitempty"`
	ReviewNotes        string          `gorm:"type:varchar(512)" json:"review_notes,omitempty"`
	RejectionReason    string          `gorm:"type:varchar(512)" json:"rejection_reason,omitempty"`
	ReviewedAt         *time.Time      `json:"reviewed_at,omitempty"`
	ExecutedAt         *time.Time      `json:"executed_at,omitempty"`
	CreatedAt          time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"autoUpdateTime" json:"updated_at"`

	Documents []ChangeRequestDocument `gorm:"foreignKey:ChangeRequestID" json:"documents,omitempty"`
}

// ChangeRequestDocument represents the change_request_documents table.
type ChangeRequestDocument struct {
	ID              uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ChangeRequestID uint64    `gorm:"not null;index" json:"change_request_id"`
	Name            string    `gorm:"type:varchar(255);not null" json:"name"`
	FileURL         string    `gorm:"type:varchar(512);not null" json:"file_url"`
	UploadedAt      time.Time `gorm:"autoCreateTime" json:"uploaded_at"`
}

// DomainEvent represents the domain_events outbox table. Rows are appended in
// the same transaction as the mutation they describe and relayed
// asynchronously.
type DomainEvent struct {
	ID            string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	AggregateType string     `gorm:"type:varchar(100);not null" json:"aggregate_type"`
	AggregateID   uint64     `gorm:"not null;index" json:"aggregate_id"`
	TenantID      uint64     `gorm:"not null" json:"tenant_id"`
	EventType     string     `gorm:"type:varchar(100);not null" json:"event_type"`
	Payload       []byte     `gorm:"type:json" json:"payload"`
	OccurredAt    time.Time  `gorm:"not null" json:"occurred_at"`
	PublishedAt   *time.Time `gorm:"index" json:"published_at,omitempty"`
}

func (User) TableName() string                       { return "users" }
func (PropertyUnit) TableName() string               { return "property_units" }
func (PaymentMethodTemplate) TableName() string      { return "payment_method_templates" }
func (TemplatePhase) TableName() string              { return "template_phases" }
func (AmortizationPlan) TableName() string           { return "amortization_plans" }
func (StepDefinition) TableName() string             { return "step_definitions" }
func (DocumentRequirement) TableName() string        { return "document_requirements" }
func (Contract) TableName() string                   { return "contracts" }
func (ContractPhase) TableName() string              { return "contract_phases" }
func (ContractPhaseStep) TableName() string          { return "contract_phase_steps" }
func (ContractPhaseDocument) TableName() string      { return "contract_phase_documents" }
func (ContractInstallment) TableName() string        { return "contract_installments" }
func (ContractPayment) TableName() string            { return "contract_payments" }
func (ContractTransition) TableName() string         { return "contract_transitions" }
func (PaymentMethodChangeRequest) TableName() string { return "payment_method_change_requests" }
func (ChangeRequestDocument) TableName() string      { return "change_request_documents" }
func (DomainEvent) TableName() string                { return "domain_events" }

// AutoMigrate creates or updates the engine's schema.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&PropertyUnit{},
		&AmortizationPlan{},
		&PaymentMethodTemplate{},
		&TemplatePhase{},
		&StepDefinition{},
		&DocumentRequirement{},
		&Contract{},
		&ContractPhase{},
		&ContractPhaseStep{},
		&ContractPhaseDocument{},
		&ContractInstallment{},
		&ContractPayment{},
		&ContractTransition{},
		&PaymentMethodChangeRequest{},
		&ChangeRequestDocument{},
		&DomainEvent{},
	)
}
