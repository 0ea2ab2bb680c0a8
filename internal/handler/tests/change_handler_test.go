package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/terravest/estatecore/internal/domain"
	"github.com/terravest/estatecore/internal/dto"
	changehandler "github.com/terravest/estatecore/internal/handler/change"
	"github.com/terravest/estatecore/pkg/common"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestChangeHandler_Create(t *testing.T) {
	mockService := &mockChangeService{}
	h := changehandler.NewChangeHandler(mockService, testMeter, testTracer, testLog)
	app := setupChangeApp(h)

	body := dto.CreateChangeRequest{ToTemplateID: 2, Reason: "switch to longer tenor"}

	t.Run("Success", func(t *testing.T) {
		mockService.MockError = nil
		mockService.MockRequest = &domain.PaymentMethodChangeRequest{
			ID:                 1,
			ContractID:         1,
			FromTemplateID:     1,
			ToTemplateID:       2,
			Status:             domain.ChangePendingDocuments,
			CurrentOutstanding: decimal.NewFromInt(800000),
			NewTermMonths:      8,
			NewMonthlyPayment:  decimal.NewFromInt(100000),
		}

		resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v1/contracts/1/change-requests", body))
		assert.NoError(t, err)
		assert.Equal(t, http.StatusCreated, resp.StatusCode)

		env := decodeEnvelope(t, resp)
		assert.Equal(t, "success", env.Status)

		var result dto.ChangeRequestResponse
		assert.NoError(t, json.Unmarshal(env.Data, &result))
		assert.Equal(t, "PENDING_DOCUMENTS", result.Status)
		assert.Equal(t, uint(2), result.ToTemplateID)
		assert.Equal(t, uint(8), result.NewTermMonths)
		assert.Equal(t, body, mockService.CreateCalledWith)
	})

	t.Run("Missing Target Template", func(t *testing.T) {
		resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v1/contracts/1/change-requests",
			dto.CreateChangeRequest{}))
		assert.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("Active Request Already Exists", func(t *testing.T) {
		mockService.MockError = common.StateConflict("an active change request already exists")

		resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v1/contracts/1/change-requests", body))
		assert.NoError(t, err)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})
}

func TestChangeHandler_ReviewFlow(t *testing.T) {
	mockService := &mockChangeService{}
	h := changehandler.NewChangeHandler(mockService, testMeter, testTracer, testLog)
	app := setupChangeApp(h)

	t.Run("Start Review", func(t *testing.T) {
		mockService.MockError = nil
		mockService.MockRequest = &domain.PaymentMethodChangeRequest{ID: 1, Status: domain.ChangeUnderReview}

		resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v1/change-requests/1/start-review", nil))
		assert.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, uint64(30), mockService.LastActorID)

		env := decodeEnvelope(t, resp)
		var result dto.ChangeRequestResponse
		assert.NoError(t, json.Unmarshal(env.Data, &result))
		assert.Equal(t, "UNDER_REVIEW", result.Status)
	})

	t.Run("Approve With Notes", func(t *testing.T) {
		mockService.MockError = nil
		mockService.MockRequest = &domain.PaymentMethodChangeRequest{ID: 1, Status: domain.ChangeApproved}

		resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v1/change-requests/1/approve",
			dto.ReviewNotesRequest{Notes: "income documents verified"}))
		assert.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "income documents verified", mockService.ApproveNotes)
	})

	t.Run("Approve Without Body", func(t *testing.T) {
		mockService.MockError = nil
		mockService.MockRequest = &domain.PaymentMethodChangeRequest{ID: 1, Status: domain.ChangeApproved}

		req := httptest.NewRequest(http.MethodPost, "/api/v1/change-requests/1/approve", nil)
		resp, err := app.Test(req)
		assert.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("Reject Requires Reason", func(t *testing.T) {
		resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v1/change-requests/1/reject",
			dto.RejectChangeRequest{}))
		assert.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("Reject Success", func(t *testing.T) {
		mockService.MockError = nil
		mockService.MockRequest = &domain.PaymentMethodChangeRequest{
			ID:              1,
			Status:          domain.ChangeRejected,
			RejectionReason: "insufficient income",
		}

		resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v1/change-requests/1/reject",
			dto.RejectChangeRequest{Reason: "insufficient income"}))
		assert.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "insufficient income", mockService.RejectReason)
	})

	t.Run("Review Before Documents Submitted", func(t *testing.T) {
		mockService.MockError = common.StateConflict("cannot transition from PENDING_DOCUMENTS to UNDER_REVIEW")

		resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v1/change-requests/1/start-review", nil))
		assert.NoError(t, err)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})
}

func TestChangeHandler_Execute(t *testing.T) {
	mockService := &mockChangeService{}
	h := changehandler.NewChangeHandler(mockService, testMeter, testTracer, testLog)
	app := setupChangeApp(h)

	t.Run("Success", func(t *testing.T) {
		mockService.MockError = nil
		mockService.MockRequest = &domain.PaymentMethodChangeRequest{
			ID:                 1,
			ContractID:         1,
			Status:             domain.ChangeExecuted,
			CurrentOutstanding: decimal.NewFromInt(800000),
		}

		resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v1/change-requests/1/execute", nil))
		assert.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		env := decodeEnvelope(t, resp)
		var result dto.ChangeRequestResponse
		assert.NoError(t, json.Unmarshal(env.Data, &result))
		assert.Equal(t, "EXECUTED", result.Status)
	})

	t.Run("Not Approved Yet", func(t *testing.T) {
		mockService.MockError = common.StateConflict("request is not approved")

		resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v1/change-requests/1/execute", nil))
		assert.NoError(t, err)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})
}

func TestChangeHandler_SubmitDocument(t *testing.T) {
	mockService := &mockChangeService{}
	h := changehandler.NewChangeHandler(mockService, testMeter, testTracer, testLog)
	app := setupChangeApp(h)

	t.Run("Success", func(t *testing.T) {
		mockService.MockError = nil
		mockService.MockRequest = &domain.PaymentMethodChangeRequest{ID: 1, Status: domain.ChangeDocumentsSubmitted}

		req := createMultipartRequest(t, "/api/v1/change-requests/1/documents",
			map[string]string{"name": "Income Statement"},
			map[string]string{"file": "income.pdf"})
		resp, err := app.Test(req)
		assert.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("Missing Name", func(t *testing.T) {
		req := createMultipartRequest(t, "/api/v1/change-requests/1/documents",
			nil, map[string]string{"file": "income.pdf"})
		resp, err := app.Test(req)
		assert.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestChangeHandler_ListPendingReview(t *testing.T) {
	mockService := &mockChangeService{}
	h := changehandler.NewChangeHandler(mockService, testMeter, testTracer, testLog)
	app := setupChangeApp(h)

	t.Run("Success", func(t *testing.T) {
		mockService.MockError = nil
		mockService.MockPaginated = &domain.Paginated{
			Data: []domain.PaymentMethodChangeRequest{
				{ID: 1, Status: domain.ChangeDocumentsSubmitted},
				{ID: 2, Status: domain.ChangeUnderReview},
			},
			Total:      2,
			Page:       1,
			Limit:      20,
			TotalPages: 1,
		}

		req := httptest.NewRequest(http.MethodGet, "/api/v1/change-requests/pending-review", nil)
		resp, err := app.Test(req)
		assert.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		env := decodeEnvelope(t, resp)
		var result struct {
			Requests []dto.ChangeRequestResponse `json:"requests"`
			Total    int64                       `json:"total"`
		}
		assert.NoError(t, json.Unmarshal(env.Data, &result))
		assert.Len(t, result.Requests, 2)
		assert.Equal(t, int64(2), result.Total)
	})
}

func TestChangeHandler_Cancel(t *testing.T) {
	mockService := &mockChangeService{}
	h := changehandler.NewChangeHandler(mockService, testMeter, testTracer, testLog)
	app := setupChangeApp(h)

	t.Run("Success", func(t *testing.T) {
		mockService.MockError = nil
		mockService.MockRequest = &domain.PaymentMethodChangeRequest{ID: 1, Status: domain.ChangeCancelled}

		resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v1/change-requests/1/cancel", nil))
		assert.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("Only Initiator May Cancel", func(t *testing.T) {
		mockService.MockError = common.Validation("only the initiator may cancel the request")

		resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v1/change-requests/1/cancel", nil))
		assert.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}
