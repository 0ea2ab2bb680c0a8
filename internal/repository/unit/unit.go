package unitrepo

import (
	"context"
	"errors"

	"github.com/terravest/estatecore/internal/domain"
	"github.com/terravest/estatecore/internal/model"
	"github.com/terravest/estatecore/internal/repository"
	"github.com/terravest/estatecore/pkg/common"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type unitRepository struct {
	db         *gorm.DB
	meter      metric.Meter
	tracer     trace.Tracer
	log        *zap.Logger
	queryCount metric.Int64Counter
	errorCount metric.Int64Counter
}

// FindByIDWithLock implements repository.UnitRepository using
// SELECT ... FOR UPDATE, so reserve/release decisions do not race.
func (u *unitRepository) FindByIDWithLock(ctx context.Context, id uint64) (*domain.PropertyUnit, error) {
	ctx, span := u.tracer.Start(ctx, "repository.FindUnitByIDWithLock")
	defer span.End()

	u.queryCount.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("operation", "select_for_update"),
			attribute.String("table", "property_units"),
		),
	)

	span.SetAttributes(attribute.Int64("unit.id", int64(id)))

	var unit model.PropertyUnit
	err := u.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&unit, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.SetStatus(codes.Ok, "Unit not found")
			return nil, nil
		}

		span.SetStatus(codes.Error, "Error locking unit")
		span.RecordError(err)
		u.errorCount.Add(ctx, 1, metric.WithAttributes(attribute.String("table", "property_units")))
		return nil, err
	}

	span.SetStatus(codes.Ok, "Unit locked")
	return model.UnitToEntity(unit), nil
}

// Reserve implements repository.UnitRepository. Only AVAILABLE units can be
// reserved; the guarded UPDATE makes the check and the write one statement.
func (u *unitRepository) Reserve(ctx context.Context, unitID, buyerID uint64) error {
	ctx, span := u.tracer.Start(ctx, "repository.ReserveUnit")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("unit.id", int64(unitID)),
		attribute.Int64("buyer.id", int64(buyerID)),
	)

	res := u.db.WithContext(ctx).Model(&model.PropertyUnit{}).
		Where("id = ? AND status = ?", unitID, string(domain.UnitAvailable)).
		Updates(map[string]any{
			"status":       string(domain.UnitReserved),
			"reserved_for": buyerID,
		})
	if res.Error != nil {
		span.SetStatus(codes.Error, "Error reserving unit")
		span.RecordError(res.Error)
		u.errorCount.Add(ctx, 1, metric.WithAttributes(attribute.String("table", "property_units")))
		return res.Error
	}
	if res.RowsAffected == 0 {
		err := common.StateConflict("property unit %d is not reservable", unitID)
		span.SetStatus(codes.Error, "Unit not reservable")
		u.log.Warn("Unit not reservable",
			zap.Uint64("unit_id", unitID),
			zap.String("trace_id", span.SpanContext().TraceID().String()),
		)
		return err
	}

	span.SetStatus(codes.Ok, "Unit reserved")
	u.log.Info("Property unit reserved",
		zap.Uint64("unit_id", unitID),
		zap.Uint64("buyer_id", buyerID),
		zap.String("trace_id", span.SpanContext().TraceID().String()),
	)

	return nil
}

// Release implements repository.UnitRepository, the compensating action for
// contract abandonment or a failed creation.
func (u *unitRepository) Release(ctx context.Context, unitID uint64) error {
	ctx, span := u.tracer.Start(ctx, "repository.ReleaseUnit")
	defer span.End()

	span.SetAttributes(attribute.Int64("unit.id", int64(unitID)))

	res := u.db.WithContext(ctx).Model(&model.PropertyUnit{}).
		Where("id = ? AND status = ?", unitID, string(domain.UnitReserved)).
		Updates(map[string]any{
			"status":       string(domain.UnitAvailable),
			"reserved_for": nil,
		})
	if res.Error != nil {
		span.SetStatus(codes.Error, "Error releasing unit")
		span.RecordError(res.Error)
		u.errorCount.Add(ctx, 1, metric.WithAttributes(attribute.String("table", "property_units")))
		return res.Error
	}

	span.SetStatus(codes.Ok, "Unit released")
	u.log.Info("Property unit released",
		zap.Uint64("unit_id", unitID),
		zap.String("trace_id", span.SpanContext().TraceID().String()),
	)

	return nil
}

// MarkSold implements repository.UnitRepository, invoked when a contract
// completes.
func (u *unitRepository) MarkSold(ctx context.Context, unitID uint64) error {
	ctx, span := u.tracer.Start(ctx, "repository.MarkUnitSold")
	defer span.End()

	span.SetAttributes(attribute.Int64("unit.id", int64(unitID)))

	err := u.db.WithContext(ctx).Model(&model.PropertyUnit{}).
		Where("id = ?", unitID).
		Update("status", string(domain.UnitSold)).Error
	if err != nil {
		span.SetStatus(codes.Error, "Error marking unit sold")
		span.RecordError(err)
		u.errorCount.Add(ctx, 1, metric.WithAttributes(attribute.String("table", "property_units")))
		return err
	}

	span.SetStatus(codes.Ok, "Unit marked sold")
	return nil
}

func NewUnitRepository(
	db *gorm.DB,
	meter metric.Meter,
	tracer trace.Tracer,
	log *zap.Logger,
) repository.UnitRepository {
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

	return &unitRepository{
		db:         db,
		meter:      meter,
		tracer:     tracer,
		log:        log,
		queryCount: queryCount,
		errorCount: errorCount,
	}
}
