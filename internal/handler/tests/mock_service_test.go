package handler_test

import (
	"context"
	"mime/multipart"

	"github.com/terravest/estatecore/internal/domain"
	"github.com/terravest/estatecore/internal/dto"
)

type mockContractService struct {
	MockContract     *domain.Contract
	MockPhase        *domain.ContractPhase
	MockDocument     *domain.ContractPhaseDocument
	MockPhases       []domain.ContractPhase
	MockInstallments []domain.ContractInstallment
	MockTransitions  []domain.ContractTransition
	MockPaginated    *domain.Paginated
	MockError        error

	CreateCalledWith    dto.CreateContractRequest
	TerminateReason     string
	ReopenCascade       bool
	ReviewApproved      bool
	LastTenantID        uint64
	LastActorID         uint64
	SubmittedFileHeader *multipart.FileHeader
}

func (m *mockContractService) Create(ctx context.Context, tenantID, actorID uint64, data dto.CreateContractRequest) (*domain.Contract, error) {
	m.LastTenantID = tenantID
	m.LastActorID = actorID
	m.CreateCalledWith = data
	if m.MockError != nil {
		return nil, m.MockError
	}
	return m.MockContract, nil
}

func (m *mockContractService) GetDetail(ctx context.Context, tenantID, contractID uint64) (*domain.Contract, error) {
	m.LastTenantID = tenantID
	if m.MockError != nil {
		return nil, m.MockError
	}
	return m.MockContract, nil
}

func (m *mockContractService) List(ctx context.Context, tenantID uint64, params domain.Params) (*domain.Paginated, error) {
	if m.MockError != nil {
		return nil, m.MockError
	}
	return m.MockPaginated, nil
}

func (m *mockContractService) ListPhases(ctx context.Context, tenantID, contractID uint64) ([]domain.ContractPhase, error) {
	if m.MockError != nil {
		return nil, m.MockError
	}
	return m.MockPhases, nil
}

func (m *mockContractService) ListInstallments(ctx context.Context, tenantID, contractID, phaseID uint64) ([]domain.ContractInstallment, error) {
	if m.MockError != nil {
		return nil, m.MockError
	}
	return m.MockInstallments, nil
}

func (m *mockContractService) ListTransitions(ctx context.Context, tenantID, contractID uint64) ([]domain.ContractTransition, error) {
	if m.MockError != nil {
		return nil, m.MockError
	}
	return m.MockTransitions, nil
}

func (m *mockContractService) Sign(ctx context.Context, tenantID, contractID, actorID uint64) (*domain.Contract, error) {
	m.LastActorID = actorID
	if m.MockError != nil {
		return nil, m.MockError
	}
	return m.MockContract, nil
}

func (m *mockContractService) Terminate(ctx context.Context, tenantID, contractID, actorID uint64, reason string) (*domain.Contract, error) {
	m.TerminateReason = reason
	if m.MockError != nil {
		return nil, m.MockError
	}
	return m.MockContract, nil
}

func (m *mockContractService) ActivatePhase(ctx context.Context, tenantID, contractID, phaseID, actorID uint64) (*domain.ContractPhase, error) {
	if m.MockError != nil {
		return nil, m.MockError
	}
	return m.MockPhase, nil
}

func (m *mockContractService) CompleteStep(ctx context.Context, tenantID, contractID, phaseID, stepID, actorID uint64) (*domain.ContractPhase, error) {
	if m.MockError != nil {
		return nil, m.MockError
	}
	return m.MockPhase, nil
}

func (m *mockContractService) SubmitDocument(ctx context.Context, tenantID, contractID, phaseID, documentID, actorID uint64, file *multipart.FileHeader) (*domain.ContractPhaseDocument, error) {
	m.SubmittedFileHeader = file
	if m.MockError != nil {
		return nil, m.MockError
	}
	return m.MockDocument, nil
}

func (m *mockContractService) ReviewDocument(ctx context.Context, tenantID, contractID, phaseID, documentID, actorID uint64, approved bool) (*domain.ContractPhase, error) {
	m.ReviewApproved = approved
	if m.MockError != nil {
		return nil, m.MockError
	}
	return m.MockPhase, nil
}

func (m *mockContractService) SkipPhase(ctx context.Context, tenantID, contractID, phaseID, actorID uint64, reason string) (*domain.ContractPhase, error) {
	if m.MockError != nil {
		return nil, m.MockError
	}
	return m.MockPhase, nil
}

func (m *mockContractService) ReopenPhase(ctx context.Context, tenantID, contractID, phaseID, actorID uint64, reason string, cascade bool) (*domain.ContractPhase, error) {
	m.ReopenCascade = cascade
	if m.MockError != nil {
		return nil, m.MockError
	}
	return m.MockPhase, nil
}

type mockLedgerService struct {
	MockPayment  *domain.ContractPayment
	MockPayments []domain.ContractPayment
	MockPayAhead *dto.PayAheadResponse
	MockError    error

	RecordCalledWith   dto.RecordPaymentRequest
	CallbackCalledWith dto.PaymentCallbackRequest
	PayAheadCalledWith dto.PayAheadRequest
	CallbackCalls      int
}

func (m *mockLedgerService) RecordPayment(ctx context.Context, tenantID uint64, data dto.RecordPaymentRequest) (*domain.ContractPayment, error) {
	m.RecordCalledWith = data
	if m.MockError != nil {
		return nil, m.MockError
	}
	return m.MockPayment, nil
}

func (m *mockLedgerService) ProcessCallback(ctx context.Context, data dto.PaymentCallbackRequest) (*domain.ContractPayment, error) {
	m.CallbackCalledWith = data
	m.CallbackCalls++
	if m.MockError != nil {
		return nil, m.MockError
	}
	return m.MockPayment, nil
}

func (m *mockLedgerService) PayAhead(ctx context.Context, tenantID, contractID uint64, data dto.PayAheadRequest) (*dto.PayAheadResponse, error) {
	m.PayAheadCalledWith = data
	if m.MockError != nil {
		return nil, m.MockError
	}
	return m.MockPayAhead, nil
}

func (m *mockLedgerService) ListByContract(ctx context.Context, tenantID, contractID uint64) ([]domain.ContractPayment, error) {
	if m.MockError != nil {
		return nil, m.MockError
	}
	return m.MockPayments, nil
}

type mockChangeService struct {
	MockRequest   *domain.PaymentMethodChangeRequest
	MockPaginated *domain.Paginated
	MockError     error

	CreateCalledWith dto.CreateChangeRequest
	RejectReason     string
	ApproveNotes     string
	LastActorID      uint64
}

func (m *mockChangeService) Create(ctx context.Context, tenantID, contractID, initiatorID uint64, data dto.CreateChangeRequest) (*domain.PaymentMethodChangeRequest, error) {
	m.CreateCalledWith = data
	m.LastActorID = initiatorID
	if m.MockError != nil {
		return nil, m.MockError
	}
	return m.MockRequest, nil
}

func (m *mockChangeService) SubmitDocument(ctx context.Context, tenantID, requestID, actorID uint64, name string, file *multipart.FileHeader) (*domain.PaymentMethodChangeRequest, error) {
	if m.MockError != nil {
		return nil, m.MockError
	}
	return m.MockRequest, nil
}

func (m *mockChangeService) StartReview(ctx context.Context, tenantID, requestID, reviewerID uint64) (*domain.PaymentMethodChangeRequest, error) {
	m.LastActorID = reviewerID
	if m.MockError != nil {
		return nil, m.MockError
	}
	return m.MockRequest, nil
}

func (m *mockChangeService) Approve(ctx context.Context, tenantID, requestID, reviewerID uint64, notes string) (*domain.PaymentMethodChangeRequest, error) {
	m.ApproveNotes = notes
	if m.MockError != nil {
		return nil, m.MockError
	}
	return m.MockRequest, nil
}

func (m *mockChangeService) Reject(ctx context.Context, tenantID, requestID, reviewerID uint64, reason string) (*domain.PaymentMethodChangeRequest, error) {
	m.RejectReason = reason
	if m.MockError != nil {
		return nil, m.MockError
	}
	return m.MockRequest, nil
}

func (m *mockChangeService) Cancel(ctx context.Context, tenantID, requestID, actorID uint64) (*domain.PaymentMethodChangeRequest, error) {
	m.LastActorID = actorID
	if m.MockError != nil {
		return nil, m.MockError
	}
	return m.MockRequest, nil
}

func (m *mockChangeService) Execute(ctx context.Context, tenantID, requestID, actorID uint64) (*domain.PaymentMethodChangeRequest, error) {
	if m.MockError != nil {
		return nil, m.MockError
	}
	return m.MockRequest, nil
}

func (m *mockChangeService) ListPendingReview(ctx context.Context, params domain.Params) (*domain.Paginated, error) {
	if m.MockError != nil {
		return nil, m.MockError
	}
	return m.MockPaginated, nil
}

func (m *mockChangeService) GetByID(ctx context.Context, tenantID, requestID uint64) (*domain.PaymentMethodChangeRequest, error) {
	if m.MockError != nil {
		return nil, m.MockError
	}
	return m.MockRequest, nil
}

type mockTemplateService struct {
	MockTemplates []domain.PaymentMethodTemplate
	MockTemplate  *domain.PaymentMethodTemplate
	MockError     error
}

func (m *mockTemplateService) List(ctx context.Context) ([]domain.PaymentMethodTemplate, error) {
	if m.MockError != nil {
		return nil, m.MockError
	}
	return m.MockTemplates, nil
}

func (m *mockTemplateService) GetByID(ctx context.Context, id uint) (*domain.PaymentMethodTemplate, error) {
	if m.MockError != nil {
		return nil, m.MockError
	}
	return m.MockTemplate, nil
}

type mockAuthService struct {
	MockResponse *dto.LoginResponse
	MockError    error

	LoginCalledWith dto.LoginRequest
}

func (m *mockAuthService) Login(ctx context.Context, data dto.LoginRequest) (*dto.LoginResponse, error) {
	m.LoginCalledWith = data
	if m.MockError != nil {
		return nil, m.MockError
	}
	return m.MockResponse, nil
}
