package router

import (
	"errors"
	"time"

	"github.com/terravest/estatecore/config"
	mysqldb "github.com/terravest/estatecore/infra/mysql"
	"github.com/terravest/estatecore/internal/domain"
	"github.com/terravest/estatecore/middleware"
	ratelimiter "github.com/terravest/estatecore/pkg/rate-limiter"
	"github.com/terravest/estatecore/pkg/telemetry"
	"github.com/terravest/estatecore/presenter"

	"github.com/gofiber/contrib/otelfiber/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func NewRouter(
	presenter presenter.Presenter,
	db *gorm.DB,
	tel *telemetry.OpenTelemetry,
	cfg *config.Config,
	limiter *ratelimiter.RateLimiter,
) *fiber.App {

	jwtAuth := middleware.NewJWTAuthMiddleware(cfg.JWT_SECRET_KEY)
	requireAdmin := middleware.RequireRole(domain.AdminRole)
	requireReviewer := middleware.RequireRole(domain.AdminRole, domain.ReviewerRole)
	requireBuyer := middleware.RequireRole(domain.BuyerRole, domain.AdminRole)

	app := fiber.New(fiber.Config{
		BodyLimit:    10 * 1024 * 1024,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		ErrorHandler: ErrorCustomHandler(tel.Log),
	})

	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(helmet.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "http://localhost:5000",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, PATCH, OPTIONS",
	}))

	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${ip} ${status} - ${latency} ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))

	app.Use(otelfiber.Middleware(
		otelfiber.WithTracerProvider(tel.TracerProvider),
		otelfiber.WithPropagators(otel.GetTextMapPropagator()),
	))

	if cfg.REQUESTS_METRIC {
		zap.L().Info("Enabling HTTP request metrics middleware")
		app.Use(middleware.NewOtelMiddleware().Handle())
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		if err := mysqldb.Ping(db, c.Context()); err != nil {
			zap.L().Error("Health check failed: database ping error", zap.Error(err))
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status":      "healthy",
			"service":     cfg.SERVICE_NAME,
			"version":     cfg.SERVICE_VERSION,
			"environment": cfg.ENVIRONMENT,
			"timestamp":   time.Now().UTC().Format(time.RFC3339),
		})
	})

	api := app.Group("/api/v1")

	api.Use(limiter.RateLimitMiddleware())

	authAPI := api.Group("/auth")
	{
		authAPI.Post("/login", presenter.AuthPresenter.Login)
	}

	templatesAPI := api.Group("/templates", jwtAuth)
	{
		templatesAPI.Get("/", presenter.TemplatePresenter.List)
		templatesAPI.Get("/:id", presenter.TemplatePresenter.GetByID)
	}

	contractsAPI := api.Group("/contracts", jwtAuth)
	{
		contractsAPI.Post("/", requireAdmin, presenter.ContractPresenter.Create)
		contractsAPI.Get("/", presenter.ContractPresenter.List)
		contractsAPI.Get("/:id", presenter.ContractPresenter.GetDetail)
		contractsAPI.Get("/:id/phases", presenter.ContractPresenter.ListPhases)
		contractsAPI.Get("/:id/phases/:phaseId/installments", presenter.ContractPresenter.ListInstallments)
		contractsAPI.Get("/:id/transitions", presenter.ContractPresenter.ListTransitions)

		contractsAPI.Post("/:id/sign", requireBuyer, presenter.ContractPresenter.Sign)
		contractsAPI.Post("/:id/terminate", requireAdmin, presenter.ContractPresenter.Terminate)

		contractsAPI.Post("/:id/phases/:phaseId/activate", requireAdmin, presenter.ContractPresenter.ActivatePhase)
		contractsAPI.Post("/:id/phases/:phaseId/steps/:stepId/complete", requireAdmin, presenter.ContractPresenter.CompleteStep)
		contractsAPI.Post("/:id/phases/:phaseId/documents/:documentId/submit", requireBuyer, presenter.ContractPresenter.SubmitDocument)
		contractsAPI.Post("/:id/phases/:phaseId/documents/:documentId/review", requireReviewer, presenter.ContractPresenter.ReviewDocument)
		contractsAPI.Post("/:id/phases/:phaseId/skip", requireAdmin, presenter.ContractPresenter.SkipPhase)
		contractsAPI.Post("/:id/phases/:phaseId/reopen", requireAdmin, presenter.ContractPresenter.ReopenPhase)

		contractsAPI.Get("/:id/payments", presenter.PaymentPresenter.ListByContract)
		contractsAPI.Post("/:id/pay-ahead", requireBuyer, presenter.PaymentPresenter.PayAhead)

		contractsAPI.Post("/:id/change-requests", requireBuyer, presenter.ChangePresenter.Create)
	}

	paymentsAPI := api.Group("/payments")
	{
		// The gateway callback authenticates by reference, not by JWT.
		paymentsAPI.Post("/callback", presenter.PaymentPresenter.Callback)
		paymentsAPI.Post("/", jwtAuth, requireBuyer, presenter.PaymentPresenter.Record)
	}

	changeAPI := api.Group("/change-requests", jwtAuth)
	{
		changeAPI.Get("/pending-review", requireReviewer, presenter.ChangePresenter.ListPendingReview)
		changeAPI.Get("/:requestId", presenter.ChangePresenter.GetByID)
		changeAPI.Post("/:requestId/documents", requireBuyer, presenter.ChangePresenter.SubmitDocument)
		changeAPI.Post("/:requestId/start-review", requireReviewer, presenter.ChangePresenter.StartReview)
		changeAPI.Post("/:requestId/approve", requireReviewer, presenter.ChangePresenter.Approve)
		changeAPI.Post("/:requestId/reject", requireReviewer, presenter.ChangePresenter.Reject)
		changeAPI.Post("/:requestId/cancel", requireBuyer, presenter.ChangePresenter.Cancel)
		changeAPI.Post("/:requestId/execute", requireAdmin, presenter.ChangePresenter.Execute)
	}

	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   true,
			"message": "Resource not found",
			"path":    c.Path(),
		})
	})

	return app
}

func ErrorCustomHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "Internal Server Error"

		var e *fiber.Error
		if errors.As(err, &e) {
			code = e.Code
			message = e.Message
		}

		log.Error("Request error occured",
			zap.Error(err),
			zap.String("path", c.Path()),
			zap.String("method", c.Method()),
			zap.Int("status_code", code),
		)

		return c.Status(code).JSON(fiber.Map{
			"error":   true,
			"message": message,
			"code":    code,
		})
	}
}
