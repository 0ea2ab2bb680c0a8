package userrepo

import (
	"context"
	"errors"
	"time"

	"github.com/terravest/estatecore/internal/domain"
	"github.com/terravest/estatecore/internal/model"
	"github.com/terravest/estatecore/internal/repository"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type userRepository struct {
	db            *gorm.DB
	meter         metric.Meter
	tracer        trace.Tracer
	log           *zap.Logger
	queryDuration metric.Float64Histogram
	queryCount    metric.Int64Counter
	errorCount    metric.Int64Counter
}

// FindByEmail implements repository.UserRepository.
func (u *userRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	ctx, span := u.tracer.Start(ctx, "repository.FindUserByEmail")
	defer span.End()

	start := time.Now()

	u.queryCount.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("operation", "select"),
			attribute.String("table", "users"),
		),
	)

	var user model.User
	err := u.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.SetStatus(codes.Ok, "User not found")
			return nil, nil
		}

		span.SetStatus(codes.Error, "Error finding user by email")
		span.RecordError(err)
		u.errorCount.Add(ctx, 1, metric.WithAttributes(attribute.String("table", "users")))
		u.log.Error("Error finding user by email",
			zap.Error(err),
			zap.String("trace_id", span.SpanContext().TraceID().String()),
		)
		return nil, err
	}

	u.queryDuration.Record(ctx, float64(time.Since(start).Milliseconds()),
		metric.WithAttributes(
			attribute.String("operation", "select"),
			attribute.String("table", "users"),
			attribute.String("status", "success"),
		),
	)

	span.SetStatus(codes.Ok, "User found")
	return &domain.User{
		ID:        user.ID,
		TenantID:  user.TenantID,
		Email:     user.Email,
		FullName:  user.FullName,
		Password:  user.Password,
		Role:      domain.Role(user.Role),
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}, nil
}

// CreateUser implements repository.UserRepository.
func (u *userRepository) CreateUser(ctx context.Context, user *domain.User) error {
	ctx, span := u.tracer.Start(ctx, "repository.CreateUser")
	defer span.End()

	data := model.User{
		TenantID: user.TenantID,
		Email:    user.Email,
		FullName: user.FullName,
		Password: user.Password,
		Role:     string(user.Role),
	}

	if err := u.db.WithContext(ctx).Create(&data).Error; err != nil {
		span.SetStatus(codes.Error, "Error creating user")
		span.RecordError(err)
		u.errorCount.Add(ctx, 1, metric.WithAttributes(attribute.String("table", "users")))
		u.log.Error("Error creating user",
			zap.Error(err),
			zap.String("email", user.Email),
			zap.String("trace_id", span.SpanContext().TraceID().String()),
		)
		return err
	}

	span.SetStatus(codes.Ok, "User created")
	user.ID = data.ID

	return nil
}

func NewUserRepository(
	db *gorm.DB,
	meter metric.Meter,
	tracer trace.Tracer,
	log *zap.Logger,
) repository.UserRepository {
	queryDuration, _ := meter.Float64Histogram(
		"db.query.duration",
		metric.WithDescription("Duration of database queries"),
		metric.WithUnit("ms"),
	)

	queryCount, _ := meter.Int64Counter(
		"db.query.count",
		metric.WithDescription("Number of database queries"),
		metric.WithUnit("{query}"),
	)

	errorCount, _ := meter.Int64Counter(
		"db.error.count",
		metric.WithDescription("Number of database errors"),
		metric.WithUnit("{error}"),
	)

	return &userRepository{
		db:            db,
		meter:         meter,
		tracer:        tracer,
		log:           log,
		queryDuration: queryDuration,
		queryCount:    queryCount,
		errorCount:    errorCount,
	}
}
