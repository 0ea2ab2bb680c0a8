package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/terravest/estatecore/internal/domain"
	"github.com/terravest/estatecore/internal/dto"
	contracthandler "github.com/terravest/estatecore/internal/handler/contract"
	"github.com/terravest/estatecore/pkg/common"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestContractHandler_Create(t *testing.T) {
	mockService := &mockContractService{}
	h := contracthandler.NewContractHandler(mockService, testMeter, testTracer, testLog)
	app := setupContractApp(h)

	body := dto.CreateContractRequest{
		BuyerID:        20,
		PropertyUnitID: 1,
		TemplateID:     1,
		StartDate:      "2025-03-01",
	}

	t.Run("Success", func(t *testing.T) {
		mockService.MockError = nil
		mockService.MockContract = &domain.Contract{
			ID:                      1,
			TenantID:                1,
			BuyerID:                 20,
			PropertyUnitID:          1,
			PaymentMethodTemplateID: 1,
			TotalAmount:             decimal.NewFromInt(1000000),
			Status:                  domain.ContractDraft,
		}

		resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v1/contracts/", body))
		assert.NoError(t, err)
		assert.Equal(t, http.StatusCreated, resp.StatusCode)

		env := decodeEnvelope(t, resp)
		assert.Equal(t, "success", env.Status)

		var result dto.ContractResponse
		assert.NoError(t, json.Unmarshal(env.Data, &result))
		assert.Equal(t, uint64(1), result.ID)
		assert.Equal(t, "DRAFT", result.Status)

		assert.Equal(t, uint64(1), mockService.LastTenantID)
		assert.Equal(t, uint64(10), mockService.LastActorID)
		assert.Equal(t, body, mockService.CreateCalledWith)
	})

	t.Run("Validation Failure - Missing Fields", func(t *testing.T) {
		mockService.MockError = nil

		resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v1/contracts/", dto.CreateContractRequest{
			BuyerID: 20,
		}))
		assert.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		env := decodeEnvelope(t, resp)
		assert.Equal(t, "error", env.Status)
	})

	t.Run("Service Returns NotFound", func(t *testing.T) {
		mockService.MockError = common.NotFound("property unit not found")

		resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v1/contracts/", body))
		assert.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)

		env := decodeEnvelope(t, resp)
		assert.Equal(t, "error", env.Status)
		assert.Equal(t, string(common.KindNotFound), env.Kind)
	})

	t.Run("Service Returns StateConflict", func(t *testing.T) {
		mockService.MockError = common.StateConflict("property unit is not available")

		resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v1/contracts/", body))
		assert.NoError(t, err)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})
}

func TestContractHandler_List(t *testing.T) {
	mockService := &mockContractService{}
	h := contracthandler.NewContractHandler(mockService, testMeter, testTracer, testLog)
	app := setupContractApp(h)

	t.Run("Success", func(t *testing.T) {
		mockService.MockError = nil
		mockService.MockPaginated = &domain.Paginated{
			Data: []domain.Contract{
				{ID: 1, Status: domain.ContractActive},
				{ID: 2, Status: domain.ContractDraft},
			},
			Total:      2,
			Page:       1,
			Limit:      20,
			TotalPages: 1,
		}

		req := httptest.NewRequest(http.MethodGet, "/api/v1/contracts/?status=ACTIVE&page=1&limit=20", nil)
		resp, err := app.Test(req)
		assert.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		env := decodeEnvelope(t, resp)
		assert.Equal(t, "success", env.Status)

		var result struct {
			Contracts  []dto.ContractResponse `json:"contracts"`
			Total      int64                  `json:"total"`
			TotalPages int                    `json:"total_pages"`
		}
		assert.NoError(t, json.Unmarshal(env.Data, &result))
		assert.Len(t, result.Contracts, 2)
		assert.Equal(t, int64(2), result.Total)
		assert.Equal(t, 1, result.TotalPages)
	})
}

func TestContractHandler_GetDetail(t *testing.T) {
	mockService := &mockContractService{}
	h := contracthandler.NewContractHandler(mockService, testMeter, testTracer, testLog)
	app := setupContractApp(h)

	t.Run("Success", func(t *testing.T) {
		mockService.MockError = nil
		mockService.MockContract = &domain.Contract{
			ID:       7,
			TenantID: 1,
			Status:   domain.ContractActive,
			Phases: []domain.ContractPhase{
				{ID: 1, Order: 1, Name: "Down Payment", Status: domain.PhaseActive},
			},
		}

		req := httptest.NewRequest(http.MethodGet, "/api/v1/contracts/7", nil)
		resp, err := app.Test(req)
		assert.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		env := decodeEnvelope(t, resp)
		var result dto.ContractResponse
		assert.NoError(t, json.Unmarshal(env.Data, &result))
		assert.Equal(t, uint64(7), result.ID)
		assert.Len(t, result.Phases, 1)
	})

	t.Run("Invalid ID Param", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/contracts/abc", nil)
		resp, err := app.Test(req)
		assert.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		env := decodeEnvelope(t, resp)
		assert.Equal(t, string(common.KindValidation), env.Kind)
	})

	t.Run("Not Found", func(t *testing.T) {
		mockService.MockError = common.NotFound("contract not found")

		req := httptest.NewRequest(http.MethodGet, "/api/v1/contracts/999", nil)
		resp, err := app.Test(req)
		assert.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestContractHandler_Sign(t *testing.T) {
	mockService := &mockContractService{}
	h := contracthandler.NewContractHandler(mockService, testMeter, testTracer, testLog)
	app := setupContractApp(h)

	t.Run("Success", func(t *testing.T) {
		mockService.MockError = nil
		mockService.MockContract = &domain.Contract{ID: 1, Status: domain.ContractPending}

		resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v1/contracts/1/sign", nil))
		assert.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		env := decodeEnvelope(t, resp)
		var result dto.ContractResponse
		assert.NoError(t, json.Unmarshal(env.Data, &result))
		assert.Equal(t, "PENDING", result.Status)
		assert.Equal(t, uint64(10), mockService.LastActorID)
	})

	t.Run("Already Signed", func(t *testing.T) {
		mockService.MockError = common.StateConflict("contract is not in DRAFT status")

		resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v1/contracts/1/sign", nil))
		assert.NoError(t, err)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})
}

func TestContractHandler_Terminate(t *testing.T) {
	mockService := &mockContractService{}
	h := contracthandler.NewContractHandler(mockService, testMeter, testTracer, testLog)
	app := setupContractApp(h)

	t.Run("Success", func(t *testing.T) {
		mockService.MockError = nil
		mockService.MockContract = &domain.Contract{ID: 1, Status: domain.ContractTerminated}

		resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v1/contracts/1/terminate",
			dto.TerminateContractRequest{Reason: "buyer default"}))
		assert.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "buyer default", mockService.TerminateReason)
	})

	t.Run("Missing Reason", func(t *testing.T) {
		resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v1/contracts/1/terminate",
			dto.TerminateContractRequest{}))
		assert.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestContractHandler_PhaseOperations(t *testing.T) {
	mockService := &mockContractService{}
	h := contracthandler.NewContractHandler(mockService, testMeter, testTracer, testLog)
	app := setupContractApp(h)

	activePhase := &domain.ContractPhase{ID: 2, Order: 1, Name: "Down Payment", Status: domain.PhaseActive}

	t.Run("Activate Success", func(t *testing.T) {
		mockService.MockError = nil
		mockService.MockPhase = activePhase

		resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v1/contracts/1/phases/2/activate", nil))
		assert.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		env := decodeEnvelope(t, resp)
		var result dto.PhaseResponse
		assert.NoError(t, json.Unmarshal(env.Data, &result))
		assert.Equal(t, "ACTIVE", result.Status)
	})

	t.Run("Activate Out Of Order", func(t *testing.T) {
		mockService.MockError = common.StateConflict("an earlier phase is not settled")

		resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v1/contracts/1/phases/3/activate", nil))
		assert.NoError(t, err)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("Complete Step Success", func(t *testing.T) {
		mockService.MockError = nil
		mockService.MockPhase = activePhase

		resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v1/contracts/1/phases/2/steps/5/complete", nil))
		assert.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("Skip Requires Reason", func(t *testing.T) {
		resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v1/contracts/1/phases/2/skip",
			dto.SkipPhaseRequest{}))
		assert.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("Reopen With Cascade", func(t *testing.T) {
		mockService.MockError = nil
		mockService.MockPhase = &domain.ContractPhase{ID: 2, Status: domain.PhaseActive}

		resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v1/contracts/1/phases/2/reopen",
			dto.ReopenPhaseRequest{Reason: "document rejected after completion", Cascade: true}))
		assert.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.True(t, mockService.ReopenCascade)
	})
}

func TestContractHandler_SubmitDocument(t *testing.T) {
	mockService := &mockContractService{}
	h := contracthandler.NewContractHandler(mockService, testMeter, testTracer, testLog)
	app := setupContractApp(h)

	t.Run("Success", func(t *testing.T) {
		mockService.MockError = nil
		mockService.MockDocument = &domain.ContractPhaseDocument{
			ID:      4,
			Name:    "Signed Booking Form",
			FileURL: "https://example.com/upload.pdf",
		}

		req := createMultipartRequest(t, "/api/v1/contracts/1/phases/2/documents/4/submit",
			nil, map[string]string{"file": "booking-form.pdf"})
		resp, err := app.Test(req)
		assert.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		env := decodeEnvelope(t, resp)
		var result dto.DocumentResponse
		assert.NoError(t, json.Unmarshal(env.Data, &result))
		assert.Equal(t, uint64(4), result.ID)
		assert.NotNil(t, mockService.SubmittedFileHeader)
	})

	t.Run("Missing File", func(t *testing.T) {
		req := createMultipartRequest(t, "/api/v1/contracts/1/phases/2/documents/4/submit", nil, nil)
		resp, err := app.Test(req)
		assert.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestContractHandler_ReviewDocument(t *testing.T) {
	mockService := &mockContractService{}
	h := contracthandler.NewContractHandler(mockService, testMeter, testTracer, testLog)
	app := setupContractApp(h)

	t.Run("Approve", func(t *testing.T) {
		mockService.MockError = nil
		mockService.MockPhase = &domain.ContractPhase{ID: 2, Status: domain.PhaseActive}

		resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v1/contracts/1/phases/2/documents/4/review",
			dto.ReviewDocumentRequest{Approved: true}))
		assert.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.True(t, mockService.ReviewApproved)
	})

	t.Run("Reject Not Submitted", func(t *testing.T) {
		mockService.MockError = common.StateConflict("document has not been submitted")

		resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v1/contracts/1/phases/2/documents/4/review",
			dto.ReviewDocumentRequest{Approved: false}))
		assert.NoError(t, err)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})
}
