package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/terravest/estatecore/internal/domain"
	"github.com/terravest/estatecore/internal/dto"
	paymenthandler "github.com/terravest/estatecore/internal/handler/payment"
	"github.com/terravest/estatecore/pkg/common"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

// The callback guard needs a live redis connection, so the Callback endpoint
// is covered by the service suite instead. Passing nil here is safe because
// the remaining endpoints never touch the guard.
func newPaymentApp(mockService *mockLedgerService) *fiber.App {
	h := paymenthandler.NewPaymentHandler(mockService, nil, testMeter, testTracer, testLog)
	return setupPaymentApp(h)
}

func TestPaymentHandler_Record(t *testing.T) {
	mockService := &mockLedgerService{}
	app := newPaymentApp(mockService)

	body := dto.RecordPaymentRequest{
		ContractID: 1,
		Amount:     decimal.NewFromInt(200000),
		Method:     "BANK_TRANSFER",
		Reference:  "PAY-001",
	}

	t.Run("Success", func(t *testing.T) {
		mockService.MockError = nil
		mockService.MockPayment = &domain.ContractPayment{
			ID:         1,
			ContractID: 1,
			Amount:     decimal.NewFromInt(200000),
			Method:     "BANK_TRANSFER",
			Status:     domain.PaymentPending,
			Reference:  "PAY-001",
		}

		resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v1/payments", body))
		assert.NoError(t, err)
		assert.Equal(t, http.StatusCreated, resp.StatusCode)

		env := decodeEnvelope(t, resp)
		assert.Equal(t, "success", env.Status)

		var result dto.PaymentResponse
		assert.NoError(t, json.Unmarshal(env.Data, &result))
		assert.Equal(t, "PENDING", result.Status)
		assert.Equal(t, "PAY-001", result.Reference)
		assert.Equal(t, body.Reference, mockService.RecordCalledWith.Reference)
	})

	t.Run("Missing Reference", func(t *testing.T) {
		bad := body
		bad.Reference = ""

		resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v1/payments", bad))
		assert.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("Overpayment", func(t *testing.T) {
		mockService.MockError = common.Overpayment("amount exceeds contract outstanding")

		resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v1/payments", body))
		assert.NoError(t, err)
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

		env := decodeEnvelope(t, resp)
		assert.Equal(t, string(common.KindOverpayment), env.Kind)
	})

	t.Run("Duplicate Reference Conflict", func(t *testing.T) {
		mockService.MockError = common.StateConflict("reference already used with different details")

		resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v1/payments", body))
		assert.NoError(t, err)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})
}

func TestPaymentHandler_PayAhead(t *testing.T) {
	mockService := &mockLedgerService{}
	app := newPaymentApp(mockService)

	body := dto.PayAheadRequest{
		Amount:    decimal.NewFromInt(500000),
		Method:    "BANK_TRANSFER",
		Reference: "PAY-AHEAD-001",
	}

	t.Run("Success", func(t *testing.T) {
		mockService.MockError = nil
		mockService.MockPayAhead = &dto.PayAheadResponse{
			PaymentID:       9,
			Amount:          decimal.NewFromInt(500000),
			AppliedAmount:   decimal.NewFromInt(500000),
			UnappliedAmount: decimal.Zero,
			InstallmentsHit: 3,
		}

		resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v1/contracts/1/pay-ahead", body))
		assert.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		env := decodeEnvelope(t, resp)
		var result dto.PayAheadResponse
		assert.NoError(t, json.Unmarshal(env.Data, &result))
		assert.Equal(t, 3, result.InstallmentsHit)
		assert.True(t, result.AppliedAmount.Equal(decimal.NewFromInt(500000)))
	})

	t.Run("Invalid Contract ID", func(t *testing.T) {
		resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v1/contracts/abc/pay-ahead", body))
		assert.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("No Open Installments", func(t *testing.T) {
		mockService.MockError = common.StateConflict("no open installments")

		resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v1/contracts/1/pay-ahead", body))
		assert.NoError(t, err)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})
}

func TestPaymentHandler_ListByContract(t *testing.T) {
	mockService := &mockLedgerService{}
	app := newPaymentApp(mockService)

	t.Run("Success", func(t *testing.T) {
		mockService.MockError = nil
		mockService.MockPayments = []domain.ContractPayment{
			{ID: 1, ContractID: 1, Reference: "PAY-001", Status: domain.PaymentCompleted},
			{ID: 2, ContractID: 1, Reference: "PAY-002", Status: domain.PaymentPending},
		}

		req := httptest.NewRequest(http.MethodGet, "/api/v1/contracts/1/payments", nil)
		resp, err := app.Test(req)
		assert.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		env := decodeEnvelope(t, resp)
		var result []dto.PaymentResponse
		assert.NoError(t, json.Unmarshal(env.Data, &result))
		assert.Len(t, result, 2)
		assert.Equal(t, "PAY-001", result[0].Reference)
	})

	t.Run("Contract Not Found", func(t *testing.T) {
		mockService.MockError = common.NotFound("contract not found")

		req := httptest.NewRequest(http.MethodGet, "/api/v1/contracts/999/payments", nil)
		resp, err := app.Test(req)
		assert.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}
