package presenter

import (
	"time"

	authhandler "github.com/terravest/estatecore/internal/handler/auth"
	changehandler "github.com/terravest/estatecore/internal/handler/change"
	contracthandler "github.com/terravest/estatecore/internal/handler/contract"
	paymenthandler "github.com/terravest/estatecore/internal/handler/payment"
	templatehandler "github.com/terravest/estatecore/internal/handler/template"
	changerepo "github.com/terravest/estatecore/internal/repository/change"
	contractrepo "github.com/terravest/estatecore/internal/repository/contract"
	paymentrepo "github.com/terravest/estatecore/internal/repository/payment"
	templaterepo "github.com/terravest/estatecore/internal/repository/template"
	userrepo "github.com/terravest/estatecore/internal/repository/user"
	authsrv "github.com/terravest/estatecore/internal/service/auth"
	changesrv "github.com/terravest/estatecore/internal/service/change"
	contractsrv "github.com/terravest/estatecore/internal/service/contract"
	ledgersrv "github.com/terravest/estatecore/internal/service/ledger"
	mediasrv "github.com/terravest/estatecore/internal/service/media"
	templatesrv "github.com/terravest/estatecore/internal/service/template"
	"github.com/terravest/estatecore/pkg/idempotency"

	"github.com/terravest/estatecore/pkg/telemetry"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Presenter struct {
	AuthPresenter     *authhandler.AuthHandler
	ContractPresenter *contracthandler.ContractHandler
	PaymentPresenter  *paymenthandler.PaymentHandler
	ChangePresenter   *changehandler.ChangeHandler
	TemplatePresenter *templatehandler.TemplateHandler
}

func NewPresenter(
	db *gorm.DB,
	cld *cloudinary.Cloudinary,
	rdb *redis.Client,
	jwtSecret string,
	tel *telemetry.OpenTelemetry,
) Presenter {
	// Repository
	contractRepositoryMeter := tel.MeterProvider.Meter("contract-repository-meter")
	contractRepositoryTracer := tel.TracerProvider.Tracer("contract-repository-tracer")
	contractRepository := contractrepo.NewContractRepository(
		db,
		contractRepositoryMeter,
		contractRepositoryTracer,
		tel.Log,
	)

	templateRepositoryMeter := tel.MeterProvider.Meter("template-repository-meter")
	templateRepositoryTracer := tel.TracerProvider.Tracer("template-repository-tracer")
	templateRepository := templaterepo.NewTemplateRepository(
		db,
		templateRepositoryMeter,
		templateRepositoryTracer,
		tel.Log,
	)

	paymentRepositoryMeter := tel.MeterProvider.Meter("payment-repository-meter")
	paymentRepositoryTracer := tel.TracerProvider.Tracer("payment-repository-tracer")
	paymentRepository := paymentrepo.NewPaymentRepository(
		db,
		paymentRepositoryMeter,
		paymentRepositoryTracer,
		tel.Log,
	)

	changeRequestRepositoryMeter := tel.MeterProvider.Meter("change-repository-meter")
	changeRequestRepositoryTracer := tel.TracerProvider.Tracer("change-repository-tracer")
	changeRequestRepository := changerepo.NewChangeRequestRepository(
		db,
		changeRequestRepositoryMeter,
		changeRequestRepositoryTracer,
		tel.Log,
	)

	userRepositoryMeter := tel.MeterProvider.Meter("user-repository-meter")
	userRepositoryTracer := tel.TracerProvider.Tracer("user-repository-tracer")
	userRepository := userrepo.NewUserRepository(
		db,
		userRepositoryMeter,
		userRepositoryTracer,
		tel.Log,
	)

	// Service
	mediaService := mediasrv.NewMediaService(cld)

	contractServiceMeter := tel.MeterProvider.Meter("contract-service-meter")
	contractServiceTracer := tel.TracerProvider.Tracer("contract-service-trace")
	contractService := contractsrv.NewContractService(
		db,
		contractRepository,
		templateRepository,
		mediaService,
		contractServiceMeter,
		contractServiceTracer,
		tel.Log,
	)

	ledgerServiceMeter := tel.MeterProvider.Meter("ledger-service-meter")
	ledgerServiceTracer := tel.TracerProvider.Tracer("ledger-service-trace")
	ledgerService := ledgersrv.NewLedgerService(
		db,
		paymentRepository,
		ledgerServiceMeter,
		ledgerServiceTracer,
		tel.Log,
	)

	changeServiceMeter := tel.MeterProvider.Meter("change-service-meter")
	changeServiceTracer := tel.TracerProvider.Tracer("change-service-trace")
	changeService := changesrv.NewChangeService(
		db,
		changeRequestRepository,
		contractRepository,
		mediaService,
		changeServiceMeter,
		changeServiceTracer,
		tel.Log,
	)

	templateServiceMeter := tel.MeterProvider.Meter("template-service-meter")
	templateServiceTracer := tel.TracerProvider.Tracer("template-service-trace")
	templateService := templatesrv.NewTemplateService(
		templateRepository,
		templateServiceMeter,
		templateServiceTracer,
		tel.Log,
	)

	authServiceMeter := tel.MeterProvider.Meter("auth-service-meter")
	authServiceTracer := tel.TracerProvider.Tracer("auth-service-trace")
	authService := authsrv.NewAuthService(
		jwtSecret,
		userRepository,
		authServiceMeter,
		authServiceTracer,
		tel.Log,
	)

	// Handler
	authHandlerMeter := tel.MeterProvider.Meter("auth-handler-meter")
	authHandlerTracer := tel.TracerProvider.Tracer("auth-handler-trace")
	authHandler := authhandler.NewAuthHandler(
		authService,
		authHandlerMeter,
		authHandlerTracer,
		tel.Log,
	)

	contractHandlerMeter := tel.MeterProvider.Meter("contract-handler-meter")
	contractHandlerTracer := tel.TracerProvider.Tracer("contract-handler-trace")
	contractHandler := contracthandler.NewContractHandler(
		contractService,
		contractHandlerMeter,
		contractHandlerTracer,
		tel.Log,
	)

	callbackGuard := idempotency.NewGuard(rdb, 30*time.Second)

	paymentHandlerMeter := tel.MeterProvider.Meter("payment-handler-meter")
	paymentHandlerTracer := tel.TracerProvider.Tracer("payment-handler-trace")
	paymentHandler := paymenthandler.NewPaymentHandler(
		ledgerService,
		callbackGuard,
		paymentHandlerMeter,
		paymentHandlerTracer,
		tel.Log,
	)

	changeHandlerMeter := tel.MeterProvider.Meter("change-handler-meter")
	changeHandlerTracer := tel.TracerProvider.Tracer("change-handler-trace")
	changeHandler := changehandler.NewChangeHandler(
		changeService,
		changeHandlerMeter,
		changeHandlerTracer,
		tel.Log,
	)

	templateHandlerMeter := tel.MeterProvider.Meter("template-handler-meter")
	templateHandlerTracer := tel.TracerProvider.Tracer("template-handler-trace")
	templateHandler := templatehandler.NewTemplateHandler(
		templateService,
		templateHandlerMeter,
		templateHandlerTracer,
		tel.Log,
	)

	return Presenter{
		AuthPresenter:     authHandler,
		ContractPresenter: contractHandler,
		PaymentPresenter:  paymentHandler,
		ChangePresenter:   changeHandler,
		TemplatePresenter: templateHandler,
	}
}
