package authsrv

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/terravest/estatecore/internal/domain"
	"github.com/terravest/estatecore/internal/dto"
	"github.com/terravest/estatecore/internal/repository"
	"github.com/terravest/estatecore/internal/service"
	"github.com/terravest/estatecore/pkg/common"
	"github.com/terravest/estatecore/pkg/password"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type authService struct {
	userRepository repository.UserRepository

	jwtSecret string

	meter          metric.Meter
	tracer         trace.Tracer
	log            *zap.Logger
	operationCount metric.Int64Counter
	errorCount     metric.Int64Counter
	loginCount     metric.Int64Counter
}

// Login implements service.AuthService.
func (a *authService) Login(ctx context.Context, data dto.LoginRequest) (*dto.LoginResponse, error) {
	ctx, span := a.tracer.Start(ctx, "service.Login")
	defer span.End()

	a.operationCount.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("operation", "Login"),
			attribute.String("service", "auth"),
		),
	)

	user, err := a.userRepository.FindByEmail(ctx, data.Email)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		return nil, err
	}
	if user == nil || !password.CheckPasswordHash(data.Password, user.Password) {
		a.errorCount.Add(ctx, 1,
			metric.WithAttributes(
				attribute.String("operation", "Login"),
				attribute.String("service", "auth"),
				attribute.String("error_type", "invalid_credentials"),
			),
		)
		a.log.Warn("Login rejected",
			zap.String("email", data.Email),
			zap.String("trace_id", span.SpanContext().TraceID().String()),
		)
		return nil, common.ErrInvalidCredentials
	}

	claims := &domain.JwtCustomClaims{
		UserID:   user.ID,
		TenantID: user.TenantID,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour * 72)),
			Issuer:    "estatecore",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString([]byte(a.jwtSecret))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		return nil, err
	}

	a.loginCount.Add(ctx, 1)
	span.SetStatus(codes.Ok, "Login succeeded")

	return &dto.LoginResponse{Token: signedToken}, nil
}

func NewAuthService(
	jwtSecret string,
	userRepository repository.UserRepository,
	meter metric.Meter,
	tracer trace.Tracer,
	log *zap.Logger,
) service.AuthService {
	operationCount, _ := meter.Int64Counter(
		"service.operation.count",
		metric.WithDescription("Number of service operations"),
		metric.WithUnit("{operation}"),
	)

	errorCount, _ := meter.Int64Counter(
		"service.error.count",
		metric.WithDescription("Number of service errors"),
		metric.WithUnit("{error}"),
	)

	loginCount, _ := meter.Int64Counter(
		"service.logins.count",
		metric.WithDescription("Number of successful logins"),
		metric.WithUnit("{login}"),
	)

	return &authService{
		userRepository: userRepository,

		jwtSecret: jwtSecret,

		meter:          meter,
		tracer:         tracer,
		log:            log,
		operationCount: operationCount,
		errorCount:     errorCount,
		loginCount:     loginCount,
	}
}
