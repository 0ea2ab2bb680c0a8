package repository

import (
	"context"

	"github.com/terravest/estatecore/internal/domain"
)

type UserRepository interface {
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	CreateUser(ctx context.Context, user *domain.User) error
}

// TemplateRepository is the read-only template store. Templates and plans are
// configured by the admin subsystem; the engine only snapshots them.
type TemplateRepository interface {
	FindByID(ctx context.Context, id uint) (*domain.PaymentMethodTemplate, error)
	FindAll(ctx context.Context) ([]domain.PaymentMethodTemplate, error)
	FindPlanByID(ctx context.Context, id uint) (*domain.AmortizationPlan, error)
}

// UnitRepository is the minimal reserve/release surface of the property
// inventory collaborator.
type UnitRepository interface {
	FindByIDWithLock(ctx context.Context, id uint64) (*domain.PropertyUnit, error)
	Reserve(ctx context.Context, unitID, buyerID uint64) error
	Release(ctx context.Context, unitID uint64) error
	MarkSold(ctx context.Context, unitID uint64) error
}

// ContractRepository persists the contract aggregate: contract row, phases,
// steps, documents, installments and the transition log.
type ContractRepository interface {
	CreateContract(ctx context.Context, contract *domain.Contract) error
	FindByID(ctx context.Context, id uint64) (*domain.Contract, error)
	// FindByIDWithLock locks the contract row (SELECT ... FOR UPDATE) and is
	// the per-contract serialization point for every mutating operation.
	FindByIDWithLock(ctx context.Context, id uint64) (*domain.Contract, error)
	FindDetailByID(ctx context.Context, id uint64) (*domain.Contract, error)
	FindPaginated(ctx context.Context, tenantID uint64, params domain.Params) ([]domain.Contract, int64, error)
	UpdateContract(ctx context.Context, contract *domain.Contract) error

	CreatePhase(ctx context.Context, phase *domain.ContractPhase) error
	UpdatePhase(ctx context.Context, phase *domain.ContractPhase) error
	FindPhaseByID(ctx context.Context, id uint64) (*domain.ContractPhase, error)
	FindPhaseDetailByID(ctx context.Context, id uint64) (*domain.ContractPhase, error)
	FindPhasesByContractID(ctx context.Context, contractID uint64) ([]domain.ContractPhase, error)

	FindStepByID(ctx context.Context, id uint64) (*domain.ContractPhaseStep, error)
	UpdateStep(ctx context.Context, step *domain.ContractPhaseStep) error
	ResetPhaseProgress(ctx context.Context, phaseID uint64) error

	FindDocumentByID(ctx context.Context, id uint64) (*domain.ContractPhaseDocument, error)
	UpdateDocument(ctx context.Context, document *domain.ContractPhaseDocument) error

	CreateInstallments(ctx context.Context, installments []domain.ContractInstallment) error
	FindInstallmentByID(ctx context.Context, id uint64) (*domain.ContractInstallment, error)
	FindInstallmentsByPhaseID(ctx context.Context, phaseID uint64) ([]domain.ContractInstallment, error)
	// FindOpenInstallments returns the contract's unpaid installments in
	// ascending (phase order, sequence), restricted to ACTIVE payment phases.
	FindOpenInstallments(ctx context.Context, contractID uint64) ([]domain.ContractInstallment, error)
	UpdateInstallment(ctx context.Context, installment *domain.ContractInstallment) error

	AppendTransition(ctx context.Context, transition *domain.ContractTransition) error
	FindTransitionsByContractID(ctx context.Context, contractID uint64) ([]domain.ContractTransition, error)
}

type PaymentRepository interface {
	CreatePayment(ctx context.Context, payment *domain.ContractPayment) error
	FindByID(ctx context.Context, id uint64) (*domain.ContractPayment, error)
	FindByReference(ctx context.Context, reference string) (*domain.ContractPayment, error)
	UpdatePayment(ctx context.Context, payment *domain.ContractPayment) error
	FindByContractID(ctx context.Context, contractID uint64) ([]domain.ContractPayment, error)
}

type ChangeRequestRepository interface {
	Create(ctx context.Context, request *domain.PaymentMethodChangeRequest) error
	FindByID(ctx context.Context, id uint64) (*domain.PaymentMethodChangeRequest, error)
	// FindActiveByContractID returns the contract's single non-terminal
	// request, or nil.
	FindActiveByContractID(ctx context.Context, contractID uint64) (*domain.PaymentMethodChangeRequest, error)
	Update(ctx context.Context, request *domain.PaymentMethodChangeRequest) error
	AddDocument(ctx context.Context, document *domain.ChangeRequestDocument) error
	FindPendingReview(ctx context.Context, params domain.Params) ([]domain.PaymentMethodChangeRequest, int64, error)
}

// EventRepository is the domain-event outbox.
type EventRepository interface {
	Append(ctx context.Context, events ...domain.DomainEvent) error
	FetchUnpublished(ctx context.Context, batchSize int) ([]domain.DomainEvent, error)
	MarkPublished(ctx context.Context, ids []string) error
}
