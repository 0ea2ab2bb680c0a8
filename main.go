package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/terravest/estatecore/config"
	mysqldb "github.com/terravest/estatecore/infra/mysql"
	redisdb "github.com/terravest/estatecore/infra/redis"
	"github.com/terravest/estatecore/internal/model"
	eventrepo "github.com/terravest/estatecore/internal/repository/event"
	"github.com/terravest/estatecore/pkg/eventbus"
	"github.com/terravest/estatecore/pkg/password"
	ratelimiter "github.com/terravest/estatecore/pkg/rate-limiter"
	"github.com/terravest/estatecore/pkg/telemetry"
	"github.com/terravest/estatecore/presenter"
	"github.com/terravest/estatecore/router"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func main() {
	slog.Info("Starting application setup...")

	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		slog.Error("No .env file found, using system environment variables", "error", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}

	tel, err := telemetry.New(ctx, cfg)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize monitoring: %v", err))
	}

	db, err := mysqldb.InitializeDatabase()
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}

	defer func() {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.SHUTDOWN_TIMEOUT)
		defer cancelShutdown()

		zap.L().Info("Closing MySQL Connection...")
		if err := mysqldb.Close(db, shutdownCtx); err != nil {
			zap.L().Error("Error disconnecting from MySQL", zap.Error(err))
		} else {
			zap.L().Info("Disconnected from MySQL.")
		}

		zap.L().Info("Shutting down monitoring...")
		if err := tel.Shutdown(shutdownCtx); err != nil {
			zap.L().Error("Error during monitoring shutdown", zap.Error(err))
		} else {
			zap.L().Info("Monitoring shutdown complete.")
		}
	}()

	if err := model.AutoMigrate(db); err != nil {
		slog.Error("Failed to migrate database", "error", err)
		os.Exit(1)
	}
	slog.Info("Database migration completed!")

	SeedUsers(db)
	SeedTemplates(db)
	SeedUnits(db)

	if err := mysqldb.Ping(db, ctx); err != nil {
		slog.Error("Database ping failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connection successful!")

	stats := mysqldb.GetStats(db)
	slog.Info("Database stats:", "stats", stats)

	cld, err := cloudinary.NewFromParams(
		cfg.CLOUDINARY_CLOUD,
		cfg.CLOUDINARY_API_KEY,
		cfg.CLOUDINARY_API_SECRET,
	)
	if err != nil {
		slog.Error("Failed to initialize Cloudinary service:", "error", err)
		os.Exit(1)
	}

	redisClient, err := redisdb.NewRedis(cfg)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			zap.L().Error("Error closing Redis connection", zap.Error(err))
		}
	}()

	rps := 100.0 / (15 * 60)
	limiter := ratelimiter.NewRateLimiter(redisClient, rps, 100, 15*time.Minute)
	if limiter == nil {
		panic("Failed to initialize rate limiter")
	}

	p := presenter.NewPresenter(db, cld, redisClient, cfg.JWT_SECRET_KEY, tel)
	app := router.NewRouter(p, db, tel, cfg, limiter)

	// Outbox relay: drains domain_events to the Redis channel until shutdown.
	relayCtx, cancelRelay := context.WithCancel(ctx)
	defer cancelRelay()

	eventRepository := eventrepo.NewEventRepository(
		db,
		tel.MeterProvider.Meter("event-repository-meter"),
		tel.TracerProvider.Tracer("event-repository-tracer"),
		tel.Log,
	)
	publisher := eventbus.NewPublisher(redisClient, cfg.EVENT_CHANNEL, tel.Log)
	relay := eventbus.NewRelay(
		eventRepository,
		publisher,
		cfg.OUTBOX_POLL_INTERVAL,
		cfg.OUTBOX_BATCH_SIZE,
		tel.Log,
	)
	go relay.Run(relayCtx)

	addr := ":" + cfg.SERVER_PORT

	listenErr := make(chan error, 1)

	go func() {
		zap.L().Info("Server starting", zap.String("address", addr))
		if err := app.Listen(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErr <- err
		} else {
			listenErr <- nil
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		zap.L().Info("Received shutdown signal", zap.String("signal", sig.String()))
	case err := <-listenErr:
		if err != nil {
			zap.L().Error("Server listen error", zap.Error(err))
			os.Exit(1)
		}
	}

	zap.L().Info("Starting graceful shutdown...")
	cancelRelay()
	if err := app.ShutdownWithTimeout(cfg.SHUTDOWN_TIMEOUT); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			zap.L().Warn("Server shutdown timed out", zap.Duration("timeout", cfg.SHUTDOWN_TIMEOUT))
		} else {
			zap.L().Error("Server shutdown error", zap.Error(err))
		}
	} else {
		zap.L().Info("Server gracefully stopped.")
	}

	zap.L().Info("Application shutdown complete.")
}

const SeedTenantID uint64 = 1

// SeedUsers creates one user per role so a fresh deployment is usable
// immediately. Passwords come from the environment and default to
// "changeme" for local development.
func SeedUsers(db *gorm.DB) {
	slog.Info("Seeding default users...")

	seeds := []struct {
		Email    string
		FullName string
		Role     string
	}{
		{"admin@estatecore.local", "System Administrator", "admin"},
		{"reviewer@estatecore.local", "Document Reviewer", "reviewer"},
		{"buyer@estatecore.local", "Demo Buyer", "buyer"},
	}

	rawPassword := os.Getenv("SEED_USER_PASSWORD")
	if rawPassword == "" {
		rawPassword = "changeme"
	}

	for _, seed := range seeds {
		var existing model.User
		err := db.Where("email = ?", seed.Email).First(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			slog.Error("Error checking for seed user", "email", seed.Email, "error", err)
			os.Exit(1)
		}

		hash, err := password.HashPassword(rawPassword)
		if err != nil {
			slog.Error("Failed to hash seed password", "error", err)
			os.Exit(1)
		}

		user := model.User{
			TenantID: SeedTenantID,
			Email:    seed.Email,
			FullName: seed.FullName,
			Password: hash,
			Role:     seed.Role,
		}
		if err := db.Create(&user).Error; err != nil {
			slog.Error("Failed to seed user", "email", seed.Email, "error", err)
			os.Exit(1)
		}
		slog.Info("Seed user created.", "email", seed.Email, "role", seed.Role)
	}
}

// SeedTemplates creates the two stock payment-method templates: full cash
// and a 36 month installment plan. Each template is created whole with its
// phases, plans, steps and document requirements; existing templates are
// left untouched.
func SeedTemplates(db *gorm.DB) {
	slog.Info("Seeding payment-method templates...")

	cashPlan := model.AmortizationPlan{
		Name:             "Cash Lump Sum",
		Frequency:        "ONE_TIME",
		InstallmentCount: 1,
		AnnualRate:       decimal.Zero,
		GracePeriodDays:  5,
	}
	installmentPlan := model.AmortizationPlan{
		Name:             "36 Month Fixed",
		Frequency:        "MONTHLY",
		InstallmentCount: 36,
		AnnualRate:       decimal.NewFromFloat(9.5),
		GracePeriodDays:  7,
	}
	downPaymentPlan := model.AmortizationPlan{
		Name:             "Down Payment",
		Frequency:        "ONE_TIME",
		InstallmentCount: 1,
		AnnualRate:       decimal.Zero,
		GracePeriodDays:  5,
	}

	templates := []model.PaymentMethodTemplate{
		{
			Name:                   "Full Cash",
			RequiresManualApproval: false,
			Phases: []model.TemplatePhase{
				{
					Order:    1,
					Name:     "Booking Documents",
					Category: "DOCUMENTATION",
					Type:     "BOOKING",
					StepDefinitions: []model.StepDefinition{
						{Order: 1, Name: "Identity Verification", Type: "IDENTITY_CHECK"},
						{Order: 2, Name: "Booking Form", Type: "FORM"},
					},
					DocumentRequirements: []model.DocumentRequirement{
						{Name: "Government ID", Required: true, RequiresApproval: true},
						{Name: "Proof of Address", Required: false, RequiresApproval: true},
					},
				},
				{
					Order:            2,
					Name:             "Full Payment",
					Category:         "PAYMENT",
					Type:             "CASH",
					PercentOfPrice:   decimal.NewFromInt(100),
					AmortizationPlan: &cashPlan,
				},
			},
		},
		{
			Name:                   "Installment 36",
			RequiresManualApproval: true,
			Phases: []model.TemplatePhase{
				{
					Order:    1,
					Name:     "Credit Assessment",
					Category: "QUESTIONNAIRE",
					Type:     "CREDIT_CHECK",
					StepDefinitions: []model.StepDefinition{
						{Order: 1, Name: "Income Questionnaire", Type: "FORM"},
						{Order: 2, Name: "Credit Bureau Check", Type: "EXTERNAL_CHECK"},
					},
					DocumentRequirements: []model.DocumentRequirement{
						{Name: "Payslip (last 3 months)", Required: true, RequiresApproval: true},
						{Name: "Bank Statement", Required: true, RequiresApproval: true},
					},
				},
				{
					Order:            2,
					Name:             "Down Payment",
					Category:         "PAYMENT",
					Type:             "DOWN_PAYMENT",
					PercentOfPrice:   decimal.NewFromInt(20),
					AmortizationPlan: &downPaymentPlan,
				},
				{
					Order:            3,
					Name:             "Monthly Installments",
					Category:         "PAYMENT",
					Type:             "INSTALLMENT",
					PercentOfPrice:   decimal.NewFromInt(80),
					AmortizationPlan: &installmentPlan,
				},
			},
		},
	}

	for i := range templates {
		var existing model.PaymentMethodTemplate
		err := db.Where("name = ?", templates[i].Name).First(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			slog.Error("Error checking for template", "name", templates[i].Name, "error", err)
			os.Exit(1)
		}

		if err := db.Create(&templates[i]).Error; err != nil {
			slog.Error("Failed to seed template", "name", templates[i].Name, "error", err)
			os.Exit(1)
		}
		slog.Info("Template seeded.", "name", templates[i].Name)
	}
}

// SeedUnits creates a handful of demo property units.
func SeedUnits(db *gorm.DB) {
	slog.Info("Seeding property units...")

	units := []model.PropertyUnit{
		{ID: 1, TenantID: SeedTenantID, Name: "Cluster A - Unit 01", Price: decimal.NewFromInt(850_000_000), Status: "AVAILABLE"},
		{ID: 2, TenantID: SeedTenantID, Name: "Cluster A - Unit 02", Price: decimal.NewFromInt(850_000_000), Status: "AVAILABLE"},
		{ID: 3, TenantID: SeedTenantID, Name: "Cluster B - Unit 01", Price: decimal.NewFromInt(1_250_000_000), Status: "AVAILABLE"},
	}

	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(&units).Error; err != nil {
		slog.Error("Failed to seed property units", "error", err)
		os.Exit(1)
	}

	slog.Info("Property units seeded successfully.")
}
