package handler_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/terravest/estatecore/internal/dto"
	authhandler "github.com/terravest/estatecore/internal/handler/auth"
	"github.com/terravest/estatecore/pkg/common"

	"github.com/stretchr/testify/assert"
)

func TestAuthHandler_Login(t *testing.T) {
	mockService := &mockAuthService{}
	h := authhandler.NewAuthHandler(mockService, testMeter, testTracer, testLog)
	app := setupAuthApp(h)

	body := dto.LoginRequest{Email: "admin@estatecore.local", Password: "changeme123"}

	t.Run("Success", func(t *testing.T) {
		mockService.MockError = nil
		mockService.MockResponse = &dto.LoginResponse{Token: "signed.jwt.token"}

		resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v1/auth/login", body))
		assert.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var result dto.LoginResponse
		assert.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
		assert.Equal(t, "signed.jwt.token", result.Token)
		assert.Equal(t, body.Email, mockService.LoginCalledWith.Email)

		var sessionCookie *http.Cookie
		for _, c := range resp.Cookies() {
			if c.Name == "estatecore_session" {
				sessionCookie = c
			}
		}
		assert.NotNil(t, sessionCookie)
		assert.Equal(t, "signed.jwt.token", sessionCookie.Value)
		assert.True(t, sessionCookie.HttpOnly)
	})

	t.Run("Invalid Credentials", func(t *testing.T) {
		mockService.MockError = common.ErrInvalidCredentials

		resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v1/auth/login", body))
		assert.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("Malformed Email", func(t *testing.T) {
		resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v1/auth/login",
			dto.LoginRequest{Email: "not-an-email", Password: "changeme123"}))
		assert.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("Short Password", func(t *testing.T) {
		resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v1/auth/login",
			dto.LoginRequest{Email: "admin@estatecore.local", Password: "short"}))
		assert.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}
