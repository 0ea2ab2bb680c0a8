package contractrepo

import (
	"context"
	"errors"
	"time"

	"github.com/terravest/estatecore/internal/domain"
	"github.com/terravest/estatecore/internal/model"
	"github.com/terravest/estatecore/internal/repository"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type contractRepository struct {
	db            *gorm.DB
	meter         metric.Meter
	tracer        trace.Tracer
	log           *zap.Logger
	queryDuration metric.Float64Histogram
	queryCount    metric.Int64Counter
	errorCount    metric.Int64Counter
	rowsInserted  metric.Int64Counter
}

func (c *contractRepository) fail(ctx context.Context, span trace.Span, table, msg string, err error, fields ...zap.Field) error {
	span.SetStatus(codes.Error, msg)
	span.RecordError(err)

	c.errorCount.Add(ctx, 1,
		metric.WithAttributes(attribute.String("table", table)),
	)

	fields = append(fields,
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.Error(err),
	)
	c.log.Error(msg, fields...)

	return err
}

// CreateContract implements repository.ContractRepository. The phase graph
// travels with the contract insert so the aggregate appears atomically.
func (c *contractRepository) CreateContract(ctx context.Context, contract *domain.Contract) error {
	ctx, span := c.tracer.Start(ctx, "repository.CreateContract")
	defer span.End()

	start := time.Now()

	c.queryCount.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("operation", "insert"),
			attribute.String("table", "contracts"),
		),
	)

	span.SetAttributes(
		attribute.String("db.operation", "insert"),
		attribute.String("db.table", "contracts"),
		attribute.Int64("contract.buyer_id", int64(contract.BuyerID)),
		attribute.Int64("contract.unit_id", int64(contract.PropertyUnitID)),
	)

	data := model.ContractFromEntity(contract)
	if err := c.db.WithContext(ctx).Create(&data).Error; err != nil {
		return c.fail(ctx, span, "contracts", "Error creating contract", err,
			zap.Uint64("buyer_id", contract.BuyerID),
		)
	}

	c.rowsInserted.Add(ctx, 1,
		metric.WithAttributes(attribute.String("table", "contracts")),
	)

	duration := float64(time.Since(start).Milliseconds())
	c.queryDuration.Record(ctx, duration,
		metric.WithAttributes(
			attribute.String("operation", "insert"),
			attribute.String("table", "contracts"),
			attribute.String("status", "success"),
		),
	)

	c.log.Info("Contract created",
		zap.Uint64("contract_id", data.ID),
		zap.Uint64("buyer_id", data.BuyerID),
		zap.Float64("duration_ms", duration),
		zap.String("trace_id", span.SpanContext().TraceID().String()),
	)

	span.SetStatus(codes.Ok, "Contract created")
	span.SetAttributes(attribute.Int64("contract.id", int64(data.ID)))

	contract.ID = data.ID
	for i := range data.Phases {
		contract.Phases[i].ID = data.Phases[i].ID
		contract.Phases[i].ContractID = data.ID
	}

	return nil
}

// FindByID implements repository.ContractRepository.
func (c *contractRepository) FindByID(ctx context.Context, id uint64) (*domain.Contract, error) {
	ctx, span := c.tracer.Start(ctx, "repository.FindContractByID")
	defer span.End()

	span.SetAttributes(attribute.Int64("contract.id", int64(id)))

	var contract model.Contract
	err := c.db.WithContext(ctx).First(&contract, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.SetStatus(codes.Ok, "Contract not found")
			return nil, nil
		}
		return nil, c.fail(ctx, span, "contracts", "Error finding contract", err,
			zap.Uint64("contract_id", id),
		)
	}

	span.SetStatus(codes.Ok, "Contract found")
	return model.ContractToEntity(contract), nil
}

// FindByIDWithLock implements repository.ContractRepository using
// SELECT ... FOR UPDATE on the contract row. Every mutating service
// operation takes this lock first, which serializes payment applications,
// phase transitions and change executions per contract.
func (c *contractRepository) FindByIDWithLock(ctx context.Context, id uint64) (*domain.Contract, error) {
	ctx, span := c.tracer.Start(ctx, "repository.FindContractByIDWithLock")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("contract.id", int64(id)),
		attribute.String("db.operation", "select_for_update"),
	)

	var contract model.Contract
	err := c.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&contract, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.SetStatus(codes.Ok, "Contract not found")
			return nil, nil
		}
		return nil, c.fail(ctx, span, "contracts", "Error locking contract", err,
			zap.Uint64("contract_id", id),
		)
	}

	span.SetStatus(codes.Ok, "Contract locked")
	return model.ContractToEntity(contract), nil
}

// FindDetailByID implements repository.ContractRepository, preloading phases
// with their steps, documents and installments.
func (c *contractRepository) FindDetailByID(ctx context.Context, id uint64) (*domain.Contract, error) {
	ctx, span := c.tracer.Start(ctx, "repository.FindContractDetailByID")
	defer span.End()

	span.SetAttributes(attribute.Int64("contract.id", int64(id)))

	var contract model.Contract
	err := c.db.WithContext(ctx).
		Preload("Phases", func(db *gorm.DB) *gorm.DB {
			return db.Order("contract_phases.phase_order ASC, contract_phases.id ASC")
		}).
		Preload("Phases.Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("contract_phase_steps.step_order ASC")
		}).
		Preload("Phases.Documents").
		Preload("Phases.Installments", func(db *gorm.DB) *gorm.DB {
			return db.Order("contract_installments.sequence ASC")
		}).
		First(&contract, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.SetStatus(codes.Ok, "Contract not found")
			return nil, nil
		}
		return nil, c.fail(ctx, span, "contracts", "Error finding contract detail", err,
			zap.Uint64("contract_id", id),
		)
	}

	span.SetStatus(codes.Ok, "Contract detail found")
	return model.ContractToEntity(contract), nil
}

// FindPaginated implements repository.ContractRepository.
func (c *contractRepository) FindPaginated(ctx context.Context, tenantID uint64, params domain.Params) ([]domain.Contract, int64, error) {
	ctx, span := c.tracer.Start(ctx, "repository.FindContractsPaginated")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("tenant.id", int64(tenantID)),
		attribute.Int("pagination.page", params.Page),
		attribute.Int("pagination.limit", params.Limit),
		attribute.String("filter.status", params.Status),
	)

	var contracts []model.Contract
	var total int64

	query := c.db.WithContext(ctx).Model(&model.Contract{}).Where("tenant_id = ?", tenantID)
	countQuery := c.db.WithContext(ctx).Model(&model.Contract{}).Where("tenant_id = ?", tenantID)

	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
		countQuery = countQuery.Where("status = ?", params.Status)
	}

	if err := countQuery.Count(&total).Error; err != nil {
		return nil, 0, c.fail(ctx, span, "contracts", "Error counting contracts", err)
	}

	offset := (params.Page - 1) * params.Limit
	if err := query.Limit(params.Limit).Offset(offset).Order("created_at DESC").Find(&contracts).Error; err != nil {
		return nil, 0, c.fail(ctx, span, "contracts", "Error finding contracts paginated", err)
	}

	span.SetStatus(codes.Ok, "Contracts found paginated")
	span.SetAttributes(attribute.Int64("result.total", total))

	return model.ContractsToEntity(contracts), total, nil
}

// UpdateContract implements repository.ContractRepository. Only the columns
// the engine owns are written; the Select keeps zero values (e.g. a paid
// total going back to 0) from being skipped.
func (c *contractRepository) UpdateContract(ctx context.Context, contract *domain.Contract) error {
	ctx, span := c.tracer.Start(ctx, "repository.UpdateContract")
	defer span.End()

	span.SetAttributes(attribute.Int64("contract.id", int64(contract.ID)))

	data := model.ContractFromEntity(contract)
	err := c.db.WithContext(ctx).Model(&model.Contract{ID: contract.ID}).
		Select("total_paid_to_date", "status", "start_date", "signed_at", "payment_method_template_id").
		Updates(&data).Error
	if err != nil {
		return c.fail(ctx, span, "contracts", "Error updating contract", err,
			zap.Uint64("contract_id", contract.ID),
		)
	}

	span.SetStatus(codes.Ok, "Contract updated")
	return nil
}

// CreatePhase implements repository.ContractRepository.
func (c *contractRepository) CreatePhase(ctx context.Context, phase *domain.ContractPhase) error {
	ctx, span := c.tracer.Start(ctx, "repository.CreateContractPhase")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("contract.id", int64(phase.ContractID)),
		attribute.Int("phase.order", int(phase.Order)),
	)

	data := model.PhaseFromEntity(phase)
	if err := c.db.WithContext(ctx).Create(&data).Error; err != nil {
		return c.fail(ctx, span, "contract_phases", "Error creating contract phase", err,
			zap.Uint64("contract_id", phase.ContractID),
		)
	}

	c.rowsInserted.Add(ctx, 1,
		metric.WithAttributes(attribute.String("table", "contract_phases")),
	)

	span.SetStatus(codes.Ok, "Contract phase created")
	phase.ID = data.ID

	return nil
}

// UpdatePhase implements repository.ContractRepository.
func (c *contractRepository) UpdatePhase(ctx context.Context, phase *domain.ContractPhase) error {
	ctx, span := c.tracer.Start(ctx, "repository.UpdateContractPhase")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("phase.id", int64(phase.ID)),
		attribute.String("phase.status", string(phase.Status)),
	)

	data := model.PhaseFromEntity(phase)
	err := c.db.WithContext(ctx).Model(&model.ContractPhase{ID: phase.ID}).
		Select("status", "paid_amount", "remaining_amount", "interest_rate",
			"frequency", "installment_count", "grace_period_days",
			"activated_at", "completed_at", "superseded_at").
		Updates(&data).Error
	if err != nil {
		return c.fail(ctx, span, "contract_phases", "Error updating contract phase", err,
			zap.Uint64("phase_id", phase.ID),
		)
	}

	span.SetStatus(codes.Ok, "Contract phase updated")
	return nil
}

// FindPhaseByID implements repository.ContractRepository.
func (c *contractRepository) FindPhaseByID(ctx context.Context, id uint64) (*domain.ContractPhase, error) {
	ctx, span := c.tracer.Start(ctx, "repository.FindPhaseByID")
	defer span.End()

	span.SetAttributes(attribute.Int64("phase.id", int64(id)))

	var phase model.ContractPhase
	err := c.db.WithContext(ctx).First(&phase, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.SetStatus(codes.Ok, "Phase not found")
			return nil, nil
		}
		return nil, c.fail(ctx, span, "contract_phases", "Error finding phase", err,
			zap.Uint64("phase_id", id),
		)
	}

	span.SetStatus(codes.Ok, "Phase found")
	return model.PhaseToEntity(phase), nil
}

// FindPhaseDetailByID implements repository.ContractRepository.
func (c *contractRepository) FindPhaseDetailByID(ctx context.Context, id uint64) (*domain.ContractPhase, error) {
	ctx, span := c.tracer.Start(ctx, "repository.FindPhaseDetailByID")
	defer span.End()

	span.SetAttributes(attribute.Int64("phase.id", int64(id)))

	var phase model.ContractPhase
	err := c.db.WithContext(ctx).
		Preload("Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("contract_phase_steps.step_order ASC")
		}).
		Preload("Documents").
		Preload("Installments", func(db *gorm.DB) *gorm.DB {
			return db.Order("contract_installments.sequence ASC")
		}).
		First(&phase, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.SetStatus(codes.Ok, "Phase not found")
			return nil, nil
		}
		return nil, c.fail(ctx, span, "contract_phases", "Error finding phase detail", err,
			zap.Uint64("phase_id", id),
		)
	}

	span.SetStatus(codes.Ok, "Phase detail found")
	return model.PhaseToEntity(phase), nil
}

// FindPhasesByContractID implements repository.ContractRepository.
func (c *contractRepository) FindPhasesByContractID(ctx context.Context, contractID uint64) ([]domain.ContractPhase, error) {
	ctx, span := c.tracer.Start(ctx, "repository.FindPhasesByContractID")
	defer span.End()

	span.SetAttributes(attribute.Int64("contract.id", int64(contractID)))

	var phases []model.ContractPhase
	err := c.db.WithContext(ctx).
		Where("contract_id = ?", contractID).
		Order("phase_order ASC, id ASC").
		Find(&phases).Error
	if err != nil {
		return nil, c.fail(ctx, span, "contract_phases", "Error finding phases", err,
			zap.Uint64("contract_id", contractID),
		)
	}

	span.SetStatus(codes.Ok, "Phases found")
	span.SetAttributes(attribute.Int("result.count", len(phases)))

	return model.PhasesToEntity(phases), nil
}

// FindStepByID implements repository.ContractRepository.
func (c *contractRepository) FindStepByID(ctx context.Context, id uint64) (*domain.ContractPhaseStep, error) {
	ctx, span := c.tracer.Start(ctx, "repository.FindStepByID")
	defer span.End()

	var step model.ContractPhaseStep
	err := c.db.WithContext(ctx).First(&step, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.SetStatus(codes.Ok, "Step not found")
			return nil, nil
		}
		return nil, c.fail(ctx, span, "contract_phase_steps", "Error finding step", err,
			zap.Uint64("step_id", id),
		)
	}

	span.SetStatus(codes.Ok, "Step found")
	return &domain.ContractPhaseStep{
		ID:          step.ID,
		PhaseID:     step.PhaseID,
		Name:        step.Name,
		Type:        step.Type,
		Order:       step.Order,
		Status:      domain.StepStatus(step.Status),
		CompletedAt: step.CompletedAt,
	}, nil
}

// UpdateStep implements repository.ContractRepository.
func (c *contractRepository) UpdateStep(ctx context.Context, step *domain.ContractPhaseStep) error {
	ctx, span := c.tracer.Start(ctx, "repository.UpdatePhaseStep")
	defer span.End()

	err := c.db.WithContext(ctx).Model(&model.ContractPhaseStep{ID: step.ID}).
		Select("status", "completed_at").
		Updates(&model.ContractPhaseStep{
			Status:      string(step.Status),
			CompletedAt: step.CompletedAt,
		}).Error
	if err != nil {
		return c.fail(ctx, span, "contract_phase_steps", "Error updating step", err,
			zap.Uint64("step_id", step.ID),
		)
	}

	span.SetStatus(codes.Ok, "Step updated")
	return nil
}

// ResetPhaseProgress implements repository.ContractRepository: steps and
// documents back to PENDING, installments removed. Used only by the admin
// reopen cascade, and only on phases with no money applied.
func (c *contractRepository) ResetPhaseProgress(ctx context.Context, phaseID uint64) error {
	ctx, span := c.tracer.Start(ctx, "repository.ResetPhaseProgress")
	defer span.End()

	span.SetAttributes(attribute.Int64("phase.id", int64(phaseID)))

	if err := c.db.WithContext(ctx).Model(&model.ContractPhaseStep{}).
		Where("phase_id = ?", phaseID).
		Updates(map[string]any{"status": string(domain.StepPending), "completed_at": nil}).Error; err != nil {
		return c.fail(ctx, span, "contract_phase_steps", "Error resetting steps", err)
	}

	if err := c.db.WithContext(ctx).Model(&model.ContractPhaseDocument{}).
		Where("phase_id = ?", phaseID).
		Updates(map[string]any{"status": string(domain.DocumentPending), "submitted_at": nil, "reviewed_at": nil}).Error; err != nil {
		return c.fail(ctx, span, "contract_phase_documents", "Error resetting documents", err)
	}

	if err := c.db.WithContext(ctx).
		Where("phase_id = ?", phaseID).
		Delete(&model.ContractInstallment{}).Error; err != nil {
		return c.fail(ctx, span, "contract_installments", "Error deleting installments", err)
	}

	span.SetStatus(codes.Ok, "Phase progress reset")
	return nil
}

// FindDocumentByID implements repository.ContractRepository.
func (c *contractRepository) FindDocumentByID(ctx context.Context, id uint64) (*domain.ContractPhaseDocument, error) {
	ctx, span := c.tracer.Start(ctx, "repository.FindPhaseDocumentByID")
	defer span.End()

	var doc model.ContractPhaseDocument
	err := c.db.WithContext(ctx).First(&doc, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.SetStatus(codes.Ok, "Document not found")
			return nil, nil
		}
		return nil, c.fail(ctx, span, "contract_phase_documents", "Error finding document", err,
			zap.Uint64("document_id", id),
		)
	}

	span.SetStatus(codes.Ok, "Document found")
	return &domain.ContractPhaseDocument{
		ID:               doc.ID,
		PhaseID:          doc.PhaseID,
		Name:             doc.Name,
		Required:         doc.Required,
		RequiresApproval: doc.RequiresApproval,
		Status:           domain.DocumentStatus(doc.Status),
		FileURL:          doc.FileURL,
		SubmittedAt:      doc.SubmittedAt,
		ReviewedAt:       doc.ReviewedAt,
	}, nil
}

// UpdateDocument implements repository.ContractRepository.
func (c *contractRepository) UpdateDocument(ctx context.Context, document *domain.ContractPhaseDocument) error {
	ctx, span := c.tracer.Start(ctx, "repository.UpdatePhaseDocument")
	defer span.End()

	err := c.db.WithContext(ctx).Model(&model.ContractPhaseDocument{ID: document.ID}).
		Select("status", "file_url", "submitted_at", "reviewed_at").
		Updates(&model.ContractPhaseDocument{
			Status:      string(document.Status),
			FileURL:     document.FileURL,
			SubmittedAt: document.SubmittedAt,
			ReviewedAt:  document.ReviewedAt,
		}).Error
	if err != nil {
		return c.fail(ctx, span, "contract_phase_documents", "Error updating document", err,
			zap.Uint64("document_id", document.ID),
		)
	}

	span.SetStatus(codes.Ok, "Document updated")
	return nil
}

// CreateInstallments implements repository.ContractRepository.
func (c *contractRepository) CreateInstallments(ctx context.Context, installments []domain.ContractInstallment) error {
	if len(installments) == 0 {
		return nil
	}

	ctx, span := c.tracer.Start(ctx, "repository.CreateInstallments")
	defer span.End()

	rows := make([]model.ContractInstallment, len(installments))
	for i, ins := range installments {
		rows[i] = model.InstallmentFromEntity(&ins)
	}

	if err := c.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return c.fail(ctx, span, "contract_installments", "Error creating installments", err)
	}

	c.rowsInserted.Add(ctx, int64(len(rows)),
		metric.WithAttributes(attribute.String("table", "contract_installments")),
	)

	span.SetStatus(codes.Ok, "Installments created")
	span.SetAttributes(attribute.Int("result.count", len(rows)))

	return nil
}

// FindInstallmentByID implements repository.ContractRepository.
func (c *contractRepository) FindInstallmentByID(ctx context.Context, id uint64) (*domain.ContractInstallment, error) {
	ctx, span := c.tracer.Start(ctx, "repository.FindInstallmentByID")
	defer span.End()

	var installment model.ContractInstallment
	err := c.db.WithContext(ctx).First(&installment, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.SetStatus(codes.Ok, "Installment not found")
			return nil, nil
		}
		return nil, c.fail(ctx, span, "contract_installments", "Error finding installment", err,
			zap.Uint64("installment_id", id),
		)
	}

	span.SetStatus(codes.Ok, "Installment found")
	return model.InstallmentToEntity(installment), nil
}

// FindInstallmentsByPhaseID implements repository.ContractRepository.
func (c *contractRepository) FindInstallmentsByPhaseID(ctx context.Context, phaseID uint64) ([]domain.ContractInstallment, error) {
	ctx, span := c.tracer.Start(ctx, "repository.FindInstallmentsByPhaseID")
	defer span.End()

	span.SetAttributes(attribute.Int64("phase.id", int64(phaseID)))

	var installments []model.ContractInstallment
	err := c.db.WithContext(ctx).
		Where("phase_id = ?", phaseID).
		Order("sequence ASC").
		Find(&installments).Error
	if err != nil {
		return nil, c.fail(ctx, span, "contract_installments", "Error finding installments", err,
			zap.Uint64("phase_id", phaseID),
		)
	}

	span.SetStatus(codes.Ok, "Installments found")
	return model.InstallmentsToEntity(installments), nil
}

// FindOpenInstallments implements repository.ContractRepository: the
// pay-ahead allocation order is ascending (phase order, sequence) across the
// contract's ACTIVE payment phases.
func (c *contractRepository) FindOpenInstallments(ctx context.Context, contractID uint64) ([]domain.ContractInstallment, error) {
	ctx, span := c.tracer.Start(ctx, "repository.FindOpenInstallments")
	defer span.End()

	span.SetAttributes(attribute.Int64("contract.id", int64(contractID)))

	var installments []model.ContractInstallment
	err := c.db.WithContext(ctx).
		Joins("JOIN contract_phases ON contract_phases.id = contract_installments.phase_id").
		Where("contract_phases.contract_id = ?", contractID).
		Where("contract_phases.status = ?", string(domain.PhaseActive)).
		Where("contract_phases.category = ?", string(domain.CategoryPayment)).
		Where("contract_installments.status IN ?", []string{
			string(domain.InstallmentPending),
			string(domain.InstallmentDue),
			string(domain.InstallmentOverdue),
		}).
		Order("contract_phases.phase_order ASC, contract_installments.sequence ASC").
		Find(&installments).Error
	if err != nil {
		return nil, c.fail(ctx, span, "contract_installments", "Error finding open installments", err,
			zap.Uint64("contract_id", contractID),
		)
	}

	span.SetStatus(codes.Ok, "Open installments found")
	span.SetAttributes(attribute.Int("result.count", len(installments)))

	return model.InstallmentsToEntity(installments), nil
}

// UpdateInstallment implements repository.ContractRepository.
func (c *contractRepository) UpdateInstallment(ctx context.Context, installment *domain.ContractInstallment) error {
	ctx, span := c.tracer.Start(ctx, "repository.UpdateInstallment")
	defer span.End()

	data := model.InstallmentFromEntity(installment)
	err := c.db.WithContext(ctx).Model(&model.ContractInstallment{ID: installment.ID}).
		Select("amount_paid", "status").
		Updates(&data).Error
	if err != nil {
		return c.fail(ctx, span, "contract_installments", "Error updating installment", err,
			zap.Uint64("installment_id", installment.ID),
		)
	}

	span.SetStatus(codes.Ok, "Installment updated")
	return nil
}

// AppendTransition implements repository.ContractRepository. The log is
// append-only; there is no update or delete path.
func (c *contractRepository) AppendTransition(ctx context.Context, transition *domain.ContractTransition) error {
	ctx, span := c.tracer.Start(ctx, "repository.AppendTransition")
	defer span.End()

	data := model.TransitionFromEntity(transition)
	if err := c.db.WithContext(ctx).Create(&data).Error; err != nil {
		return c.fail(ctx, span, "contract_transitions", "Error appending transition", err,
			zap.Uint64("contract_id", transition.ContractID),
		)
	}

	span.SetStatus(codes.Ok, "Transition appended")
	transition.ID = data.ID

	return nil
}

// FindTransitionsByContractID implements repository.ContractRepository.
func (c *contractRepository) FindTransitionsByContractID(ctx context.Context, contractID uint64) ([]domain.ContractTransition, error) {
	ctx, span := c.tracer.Start(ctx, "repository.FindTransitionsByContractID")
	defer span.End()

	var transitions []model.ContractTransition
	err := c.db.WithContext(ctx).
		Where("contract_id = ?", contractID).
		Order("id ASC").
		Find(&transitions).Error
	if err != nil {
		return nil, c.fail(ctx, span, "contract_transitions", "Error finding transitions", err,
			zap.Uint64("contract_id", contractID),
		)
	}

	span.SetStatus(codes.Ok, "Transitions found")
	return model.TransitionsToEntity(transitions), nil
}

func NewContractRepository(
	db *gorm.DB,
	meter metric.Meter,
	tracer trace.Tracer,
	log *zap.Logger,
) repository.ContractRepository {
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

	rowsInserted, _ := meter.Int64Counter(
		"db.rows.inserted",
		metric.WithDescription("Number of rows inserted into the database"),
		metric.WithUnit("{row}"),
	)

	return &contractRepository{
		db:            db,
		meter:         meter,
		tracer:        tracer,
		log:           log,
		queryDuration: queryDuration,
		queryCount:    queryCount,
		errorCount:    errorCount,
		rowsInserted:  rowsInserted,
	}
}
