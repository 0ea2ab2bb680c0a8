package handler_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/terravest/estatecore/internal/domain"
	"github.com/terravest/estatecore/internal/dto"
	templatehandler "github.com/terravest/estatecore/internal/handler/template"
	"github.com/terravest/estatecore/pkg/common"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestTemplateHandler_List(t *testing.T) {
	mockService := &mockTemplateService{}
	h := templatehandler.NewTemplateHandler(mockService, testMeter, testTracer, testLog)
	app := setupTemplateApp(h)

	t.Run("Success", func(t *testing.T) {
		mockService.MockError = nil
		mockService.MockTemplates = []domain.PaymentMethodTemplate{
			{ID: 1, Name: "Full Cash"},
			{ID: 2, Name: "Installment 36", RequiresManualApproval: true},
		}

		req := httptest.NewRequest(http.MethodGet, "/api/v1/templates/", nil)
		resp, err := app.Test(req)
		assert.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		env := decodeEnvelope(t, resp)
		assert.Equal(t, "success", env.Status)

		var result []dto.TemplateResponse
		assert.NoError(t, json.Unmarshal(env.Data, &result))
		assert.Len(t, result, 2)
		assert.Equal(t, "Full Cash", result[0].Name)
		assert.True(t, result[1].RequiresManualApproval)
	})

	t.Run("Service Failure", func(t *testing.T) {
		mockService.MockError = errors.New("database gone")

		req := httptest.NewRequest(http.MethodGet, "/api/v1/templates/", nil)
		resp, err := app.Test(req)
		assert.NoError(t, err)
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	})
}

func TestTemplateHandler_GetByID(t *testing.T) {
	mockService := &mockTemplateService{}
	h := templatehandler.NewTemplateHandler(mockService, testMeter, testTracer, testLog)
	app := setupTemplateApp(h)

	t.Run("Success", func(t *testing.T) {
		mockService.MockError = nil
		mockService.MockTemplate = &domain.PaymentMethodTemplate{
			ID:   2,
			Name: "Installment 36",
			Phases: []domain.TemplatePhase{
				{Order: 1, Name: "Down Payment", PercentOfPrice: decimal.NewFromInt(20)},
				{Order: 2, Name: "Monthly Installments", PercentOfPrice: decimal.NewFromInt(80)},
			},
		}

		req := httptest.NewRequest(http.MethodGet, "/api/v1/templates/2", nil)
		resp, err := app.Test(req)
		assert.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		env := decodeEnvelope(t, resp)
		var result dto.TemplateResponse
		assert.NoError(t, json.Unmarshal(env.Data, &result))
		assert.Equal(t, "Installment 36", result.Name)
		assert.Len(t, result.Phases, 2)
	})

	t.Run("Invalid ID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/templates/abc", nil)
		resp, err := app.Test(req)
		assert.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		env := decodeEnvelope(t, resp)
		assert.Equal(t, string(common.KindValidation), env.Kind)
	})

	t.Run("Not Found", func(t *testing.T) {
		mockService.MockError = common.NotFound("template not found")

		req := httptest.NewRequest(http.MethodGet, "/api/v1/templates/99", nil)
		resp, err := app.Test(req)
		assert.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}
