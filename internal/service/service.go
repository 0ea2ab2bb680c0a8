package service

import (
	"context"
	"mime/multipart"

	"github.com/terravest/estatecore/internal/domain"
	"github.com/terravest/estatecore/internal/dto"
)

// ContractService owns the contract lifecycle and the phase state machine.
// Every mutating operation locks the contract row first, so phase
// transitions, step completions and document reviews serialize per contract.
type ContractService interface {
	Create(ctx context.Context, tenantID, actorID uint64, data dto.CreateContractRequest) (*domain.Contract, error)
	GetDetail(ctx context.Context, tenantID, contractID uint64) (*domain.Contract, error)
	List(ctx context.Context, tenantID uint64, params domain.Params) (*domain.Paginated, error)
	ListPhases(ctx context.Context, tenantID, contractID uint64) ([]domain.ContractPhase, error)
	ListInstallments(ctx context.Context, tenantID, contractID, phaseID uint64) ([]domain.ContractInstallment, error)
	ListTransitions(ctx context.Context, tenantID, contractID uint64) ([]domain.ContractTransition, error)

	Sign(ctx context.Context, tenantID, contractID, actorID uint64) (*domain.Contract, error)
	Terminate(ctx context.Context, tenantID, contractID, actorID uint64, reason string) (*domain.Contract, error)

	ActivatePhase(ctx context.Context, tenantID, contractID, phaseID, actorID uint64) (*domain.ContractPhase, error)
	CompleteStep(ctx context.Context, tenantID, contractID, phaseID, stepID, actorID uint64) (*domain.ContractPhase, error)
	SubmitDocument(ctx context.Context, tenantID, contractID, phaseID, documentID, actorID uint64, file *multipart.FileHeader) (*domain.ContractPhaseDocument, error)
	ReviewDocument(ctx context.Context, tenantID, contractID, phaseID, documentID, actorID uint64, approved bool) (*domain.ContractPhase, error)
	SkipPhase(ctx context.Context, tenantID, contractID, phaseID, actorID uint64, reason string) (*domain.ContractPhase, error)
	ReopenPhase(ctx context.Context, tenantID, contractID, phaseID, actorID uint64, reason string, cascade bool) (*domain.ContractPhase, error)
}

// LedgerService owns payment recording and application. The two-step flow is
// RecordPayment (PENDING row) then ProcessCallback (gateway confirmation);
// money only moves on the COMPLETED callback path.
type LedgerService interface {
	RecordPayment(ctx context.Context, tenantID uint64, data dto.RecordPaymentRequest) (*domain.ContractPayment, error)
	ProcessCallback(ctx context.Context, data dto.PaymentCallbackRequest) (*domain.ContractPayment, error)
	PayAhead(ctx context.Context, tenantID, contractID uint64, data dto.PayAheadRequest) (*dto.PayAheadResponse, error)
	ListByContract(ctx context.Context, tenantID, contractID uint64) ([]domain.ContractPayment, error)
}

// ChangeService owns the payment-method change workflow.
type ChangeService interface {
	Create(ctx context.Context, tenantID, contractID, initiatorID uint64, data dto.CreateChangeRequest) (*domain.PaymentMethodChangeRequest, error)
	SubmitDocument(ctx context.Context, tenantID, requestID, actorID uint64, name string, file *multipart.FileHeader) (*domain.PaymentMethodChangeRequest, error)
	StartReview(ctx context.Context, tenantID, requestID, reviewerID uint64) (*domain.PaymentMethodChangeRequest, error)
	Approve(ctx context.Context, tenantID, requestID, reviewerID uint64, notes string) (*domain.PaymentMethodChangeRequest, error)
	Reject(ctx context.Context, tenantID, requestID, reviewerID uint64, reason string) (*domain.PaymentMethodChangeRequest, error)
	Cancel(ctx context.Context, tenantID, requestID, actorID uint64) (*domain.PaymentMethodChangeRequest, error)
	Execute(ctx context.Context, tenantID, requestID, actorID uint64) (*domain.PaymentMethodChangeRequest, error)
	ListPendingReview(ctx context.Context, params domain.Params) (*domain.Paginated, error)
	GetByID(ctx context.Context, tenantID, requestID uint64) (*domain.PaymentMethodChangeRequest, error)
}

type TemplateService interface {
	List(ctx context.Context) ([]domain.PaymentMethodTemplate, error)
	GetByID(ctx context.Context, id uint) (*domain.PaymentMethodTemplate, error)
}

type AuthService interface {
	Login(ctx context.Context, data dto.LoginRequest) (*dto.LoginResponse, error)
}

// MediaService abstracts document storage (Cloudinary in production).
type MediaService interface {
	Upload(ctx context.Context, file *multipart.FileHeader, folder string) (string, error)
}
