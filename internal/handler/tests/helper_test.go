package handler_test

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	authhandler "github.com/terravest/estatecore/internal/handler/auth"
	changehandler "github.com/terravest/estatecore/internal/handler/change"
	contracthandler "github.com/terravest/estatecore/internal/handler/contract"
	paymenthandler "github.com/terravest/estatecore/internal/handler/payment"
	templatehandler "github.com/terravest/estatecore/internal/handler/template"

	"github.com/terravest/estatecore/internal/domain"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	noop_metric "go.opentelemetry.io/otel/metric/noop"
	noop_trace "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

var (
	testMeter  = noop_metric.NewMeterProvider().Meter("handler-test")
	testTracer = noop_trace.NewTracerProvider().Tracer("handler-test")
	testLog    = zap.NewNop()
)

// apiEnvelope matches the response shapes produced by pkg/common.
type apiEnvelope struct {
	Status  string          `json:"status"`
	Kind    string          `json:"kind,omitempty"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func decodeEnvelope(t *testing.T, resp *http.Response) apiEnvelope {
	t.Helper()
	defer resp.Body.Close()

	var env apiEnvelope
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return env
}

// Dummy auth middleware injecting the claims the real JWT middleware would set.
func dummyAuth(userID uint64, role domain.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals("user", &domain.JwtCustomClaims{
			UserID:   userID,
			TenantID: 1,
			Role:     role,
		})
		return c.Next()
	}
}

func setupContractApp(h *contracthandler.ContractHandler) *fiber.App {
	app := fiber.New()

	auth := dummyAuth(10, domain.AdminRole)
	contracts := app.Group("/api/v1/contracts", auth)

	contracts.Post("/", h.Create)
	contracts.Get("/", h.List)
	contracts.Get("/:id", h.GetDetail)
	contracts.Get("/:id/phases", h.ListPhases)
	contracts.Get("/:id/phases/:phaseId/installments", h.ListInstallments)
	contracts.Get("/:id/transitions", h.ListTransitions)
	contracts.Post("/:id/sign", h.Sign)
	contracts.Post("/:id/terminate", h.Terminate)
	contracts.Post("/:id/phases/:phaseId/activate", h.ActivatePhase)
	contracts.Post("/:id/phases/:phaseId/steps/:stepId/complete", h.CompleteStep)
	contracts.Post("/:id/phases/:phaseId/documents/:documentId/submit", h.SubmitDocument)
	contracts.Post("/:id/phases/:phaseId/documents/:documentId/review", h.ReviewDocument)
	contracts.Post("/:id/phases/:phaseId/skip", h.SkipPhase)
	contracts.Post("/:id/phases/:phaseId/reopen", h.ReopenPhase)

	return app
}

func setupPaymentApp(h *paymenthandler.PaymentHandler) *fiber.App {
	app := fiber.New()

	auth := dummyAuth(20, domain.BuyerRole)

	app.Post("/api/v1/payments", auth, h.Record)
	app.Get("/api/v1/contracts/:id/payments", auth, h.ListByContract)
	app.Post("/api/v1/contracts/:id/pay-ahead", auth, h.PayAhead)

	return app
}

func setupChangeApp(h *changehandler.ChangeHandler) *fiber.App {
	app := fiber.New()

	auth := dummyAuth(30, domain.ReviewerRole)
	changes := app.Group("/api/v1/change-requests", auth)

	app.Post("/api/v1/contracts/:id/change-requests", auth, h.Create)
	changes.Get("/pending-review", h.ListPendingReview)
	changes.Get("/:requestId", h.GetByID)
	changes.Post("/:requestId/documents", h.SubmitDocument)
	changes.Post("/:requestId/start-review", h.StartReview)
	changes.Post("/:requestId/approve", h.Approve)
	changes.Post("/:requestId/reject", h.Reject)
	changes.Post("/:requestId/cancel", h.Cancel)
	changes.Post("/:requestId/execute", h.Execute)

	return app
}

func setupTemplateApp(h *templatehandler.TemplateHandler) *fiber.App {
	app := fiber.New()

	templates := app.Group("/api/v1/templates", dummyAuth(10, domain.AdminRole))
	templates.Get("/", h.List)
	templates.Get("/:id", h.GetByID)

	return app
}

func setupAuthApp(h *authhandler.AuthHandler) *fiber.App {
	app := fiber.New()
	app.Post("/api/v1/auth/login", h.Login)
	return app
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		assert.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// createMultipartRequest builds a multipart/form-data request with the given
// text fields and dummy file parts.
func createMultipartRequest(t *testing.T, target string, fields map[string]string, files map[string]string) *http.Request {
	t.Helper()

	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)

	for key, val := range fields {
		assert.NoError(t, writer.WriteField(key, val))
	}
	for key, name := range files {
		part, err := writer.CreateFormFile(key, name)
		assert.NoError(t, err)
		_, err = io.WriteString(part, "dummy content")
		assert.NoError(t, err)
	}
	assert.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, target, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}
