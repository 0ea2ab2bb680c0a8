package service_test

import (
	"context"
	"testing"

	"github.com/terravest/estatecore/internal/domain"
	"github.com/terravest/estatecore/internal/dto"
	"github.com/terravest/estatecore/internal/model"
	"github.com/terravest/estatecore/internal/repository"
	contractrepo "github.com/terravest/estatecore/internal/repository/contract"
	templaterepo "github.com/terravest/estatecore/internal/repository/template"
	"github.com/terravest/estatecore/internal/service"
	contractsrv "github.com/terravest/estatecore/internal/service/contract"
	"github.com/terravest/estatecore/pkg/common"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"go.opentelemetry.io/otel/metric"
	noop_metric "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	noop_trace "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ContractServiceTestSuite struct {
	suite.Suite
	db  *gorm.DB
	ctx context.Context

	contractService    service.ContractService
	contractRepository repository.ContractRepository
	templateRepository repository.TemplateRepository

	meter  metric.Meter
	tracer trace.Tracer
	log    *zap.Logger
}

func (suite *ContractServiceTestSuite) SetupSuite() {
	suite.db = newTestDB(&suite.Suite, "estatecore_contract_test")
	suite.ctx = context.Background()

	suite.log = zap.NewNop()
	suite.tracer = noop_trace.NewTracerProvider().Tracer("test-contract-service-tracer")
	suite.meter = noop_metric.NewMeterProvider().Meter("test-contract-service-meter")

	suite.contractRepository = contractrepo.NewContractRepository(suite.db, suite.meter, suite.tracer, suite.log)
	suite.templateRepository = templaterepo.NewTemplateRepository(suite.db, suite.meter, suite.tracer, suite.log)

	suite.contractService = contractsrv.NewContractService(
		suite.db,
		suite.contractRepository,
		suite.templateRepository,
		&stubMediaService{},
		suite.meter,
		suite.tracer,
		suite.log,
	)
}

func (suite *ContractServiceTestSuite) TearDownSuite() {
	if suite.db != nil {
		sqlDB, err := suite.db.DB()
		suite.Require().NoError(err)
		suite.Require().NoError(sqlDB.Close())
	}
}

func (suite *ContractServiceTestSuite) AfterTest(suiteName, testName string) {
	truncateAll(suite.db)
}

func (suite *ContractServiceTestSuite) createDraft() (*domain.Contract, *model.PropertyUnit) {
	template := seedCashTemplate(&suite.Suite, suite.db)
	unit := seedUnit(&suite.Suite, suite.db, 1000000)

	contract, err := suite.contractService.Create(suite.ctx, testTenantID, 10, dto.CreateContractRequest{
		BuyerID:        20,
		PropertyUnitID: unit.ID,
		TemplateID:     template.ID,
		StartDate:      "2025-03-01",
	})
	suite.Require().NoError(err)
	return contract, unit
}

func (suite *ContractServiceTestSuite) TestCreate() {
	suite.T().Run("Success - DRAFT aggregate with cloned phases", func(t *testing.T) {
		contract, unit := suite.createDraft()

		assert.Equal(t, domain.ContractDraft, contract.Status)
		assert.True(t, contract.TotalAmount.Equal(decimal.NewFromInt(1000000)))
		assert.Len(t, contract.Phases, 2)

		// Target amounts cover the price exactly; non-payment phases carry none.
		assert.True(t, contract.Phases[0].TargetAmount.IsZero())
		assert.True(t, contract.Phases[1].TargetAmount.Equal(decimal.NewFromInt(1000000)))

		// Definitions are owned by the contract from the start.
		assert.Len(t, contract.Phases[0].Steps, 1)
		assert.Equal(t, domain.FrequencyOneTime, contract.Phases[1].Frequency)

		var savedUnit model.PropertyUnit
		suite.Require().NoError(suite.db.First(&savedUnit, unit.ID).Error)
		assert.Equal(t, "RESERVED", savedUnit.Status)
		assert.Equal(t, uint64(20), *savedUnit.ReservedFor)

		var transitions int64
		suite.db.Model(&model.ContractTransition{}).Where("contract_id = ?", contract.ID).Count(&transitions)
		assert.Equal(t, int64(1), transitions)

		var events int64
		suite.db.Model(&model.DomainEvent{}).Where("event_type = ?", domain.EventContractCreated).Count(&events)
		assert.Equal(t, int64(1), events)
	})

	suite.T().Run("Failure - unknown property unit", func(t *testing.T) {
		template := seedCashTemplate(&suite.Suite, suite.db)

		_, err := suite.contractService.Create(suite.ctx, testTenantID, 10, dto.CreateContractRequest{
			BuyerID:        20,
			PropertyUnitID: 9999,
			TemplateID:     template.ID,
			StartDate:      "2025-03-01",
		})
		assert.Error(t, err)
		assert.Equal(t, common.KindNotFound, common.KindOf(err))
	})

	suite.T().Run("Failure - unit already reserved", func(t *testing.T) {
		contract, unit := suite.createDraft()

		_, err := suite.contractService.Create(suite.ctx, testTenantID, 10, dto.CreateContractRequest{
			BuyerID:        21,
			PropertyUnitID: unit.ID,
			TemplateID:     contract.PaymentMethodTemplateID,
			StartDate:      "2025-03-01",
		})
		assert.Error(t, err)
	})

	suite.T().Run("Failure - malformed start date", func(t *testing.T) {
		template := seedCashTemplate(&suite.Suite, suite.db)
		unit := seedUnit(&suite.Suite, suite.db, 500000)

		_, err := suite.contractService.Create(suite.ctx, testTenantID, 10, dto.CreateContractRequest{
			BuyerID:        20,
			PropertyUnitID: unit.ID,
			TemplateID:     template.ID,
			StartDate:      "01-03-2025",
		})
		assert.Error(t, err)
		assert.Equal(t, common.KindValidation, common.KindOf(err))
	})
}

func (suite *ContractServiceTestSuite) TestSign() {
	suite.T().Run("Success - DRAFT to PENDING", func(t *testing.T) {
		contract, _ := suite.createDraft()

		signed, err := suite.contractService.Sign(suite.ctx, testTenantID, contract.ID, 20)
		assert.NoError(t, err)
		assert.Equal(t, domain.ContractPending, signed.Status)
		assert.NotNil(t, signed.SignedAt)
	})

	suite.T().Run("Failure - signing twice", func(t *testing.T) {
		contract, _ := suite.createDraft()

		_, err := suite.contractService.Sign(suite.ctx, testTenantID, contract.ID, 20)
		suite.Require().NoError(err)

		_, err = suite.contractService.Sign(suite.ctx, testTenantID, contract.ID, 20)
		assert.Error(t, err)
		assert.Equal(t, common.KindStateConflict, common.KindOf(err))
	})

	suite.T().Run("Failure - wrong tenant", func(t *testing.T) {
		contract, _ := suite.createDraft()

		_, err := suite.contractService.Sign(suite.ctx, 99, contract.ID, 20)
		assert.Error(t, err)
		assert.Equal(t, common.KindNotFound, common.KindOf(err))
	})
}

func (suite *ContractServiceTestSuite) TestActivateAndCascade() {
	suite.T().Run("Activation flips the contract ACTIVE", func(t *testing.T) {
		contract, _ := suite.createDraft()
		_, err := suite.contractService.Sign(suite.ctx, testTenantID, contract.ID, 20)
		suite.Require().NoError(err)

		phases, err := suite.contractService.ListPhases(suite.ctx, testTenantID, contract.ID)
		suite.Require().NoError(err)

		activated, err := suite.contractService.ActivatePhase(suite.ctx, testTenantID, contract.ID, phases[0].ID, 10)
		assert.NoError(t, err)
		assert.Equal(t, domain.PhaseActive, activated.Status)

		detail, err := suite.contractService.GetDetail(suite.ctx, testTenantID, contract.ID)
		suite.Require().NoError(err)
		assert.Equal(t, domain.ContractActive, detail.Status)
		assert.Len(t, detail.Phases[0].Steps, 1)
	})

	suite.T().Run("Out of order activation is rejected", func(t *testing.T) {
		contract, _ := suite.createDraft()
		_, err := suite.contractService.Sign(suite.ctx, testTenantID, contract.ID, 20)
		suite.Require().NoError(err)

		phases, err := suite.contractService.ListPhases(suite.ctx, testTenantID, contract.ID)
		suite.Require().NoError(err)

		_, err = suite.contractService.ActivatePhase(suite.ctx, testTenantID, contract.ID, phases[1].ID, 10)
		assert.Error(t, err)
		assert.Equal(t, common.KindStateConflict, common.KindOf(err))
	})

	suite.T().Run("Last step completion cascades into the payment phase", func(t *testing.T) {
		contract, _ := suite.createDraft()
		_, err := suite.contractService.Sign(suite.ctx, testTenantID, contract.ID, 20)
		suite.Require().NoError(err)

		phases, err := suite.contractService.ListPhases(suite.ctx, testTenantID, contract.ID)
		suite.Require().NoError(err)

		_, err = suite.contractService.ActivatePhase(suite.ctx, testTenantID, contract.ID, phases[0].ID, 10)
		suite.Require().NoError(err)

		detail, err := suite.contractService.GetDetail(suite.ctx, testTenantID, contract.ID)
		suite.Require().NoError(err)
		stepID := detail.Phases[0].Steps[0].ID

		_, err = suite.contractService.CompleteStep(suite.ctx, testTenantID, contract.ID, phases[0].ID, stepID, 10)
		assert.NoError(t, err)

		detail, err = suite.contractService.GetDetail(suite.ctx, testTenantID, contract.ID)
		suite.Require().NoError(err)

		assert.Equal(t, domain.PhaseCompleted, detail.Phases[0].Status)
		assert.Equal(t, domain.PhaseActive, detail.Phases[1].Status)

		// The one-time cash phase carries a single installment for the
		// whole price, due after the plan's grace period.
		installments := detail.Phases[1].Installments
		suite.Require().Len(installments, 1)
		assert.True(t, installments[0].AmountDue.Equal(decimal.NewFromInt(1000000)))
		assert.True(t, detail.Phases[1].RemainingAmount.Equal(decimal.NewFromInt(1000000)))
	})

	suite.T().Run("Completing a step twice is rejected", func(t *testing.T) {
		contract, _ := suite.createDraft()
		_, err := suite.contractService.Sign(suite.ctx, testTenantID, contract.ID, 20)
		suite.Require().NoError(err)

		phases, err := suite.contractService.ListPhases(suite.ctx, testTenantID, contract.ID)
		suite.Require().NoError(err)

		_, err = suite.contractService.ActivatePhase(suite.ctx, testTenantID, contract.ID, phases[0].ID, 10)
		suite.Require().NoError(err)

		detail, err := suite.contractService.GetDetail(suite.ctx, testTenantID, contract.ID)
		suite.Require().NoError(err)
		stepID := detail.Phases[0].Steps[0].ID

		_, err = suite.contractService.CompleteStep(suite.ctx, testTenantID, contract.ID, phases[0].ID, stepID, 10)
		suite.Require().NoError(err)

		_, err = suite.contractService.CompleteStep(suite.ctx, testTenantID, contract.ID, phases[0].ID, stepID, 10)
		assert.Error(t, err)
		assert.Equal(t, common.KindStateConflict, common.KindOf(err))
	})
}

func (suite *ContractServiceTestSuite) TestPhaseTermsSnapshot() {
	suite.T().Run("Phases keep their plan terms after a template swap", func(t *testing.T) {
		template := seedInstallmentTemplate(&suite.Suite, suite.db, "Snapshot 4", 4)
		cash := seedCashTemplate(&suite.Suite, suite.db)
		unit := seedUnit(&suite.Suite, suite.db, 1000000)

		contract, err := suite.contractService.Create(suite.ctx, testTenantID, 10, dto.CreateContractRequest{
			BuyerID:        20,
			PropertyUnitID: unit.ID,
			TemplateID:     template.ID,
			StartDate:      "2025-03-01",
		})
		suite.Require().NoError(err)
		_, err = suite.contractService.Sign(suite.ctx, testTenantID, contract.ID, 20)
		suite.Require().NoError(err)

		// The contract now points at a different template, as it does after
		// an executed payment method change.
		suite.Require().NoError(suite.db.Model(&model.Contract{}).
			Where("id = ?", contract.ID).
			Update("payment_method_template_id", cash.ID).Error)

		phases, err := suite.contractService.ListPhases(suite.ctx, testTenantID, contract.ID)
		suite.Require().NoError(err)
		_, err = suite.contractService.SkipPhase(suite.ctx, testTenantID, contract.ID, phases[0].ID, 10, "down payment waived")
		suite.Require().NoError(err)

		// The monthly phase activates with the schedule it was created with,
		// four 200000 installments, not the swapped template's lump sum.
		detail, err := suite.contractService.GetDetail(suite.ctx, testTenantID, contract.ID)
		suite.Require().NoError(err)

		monthly := detail.Phases[1]
		assert.Equal(t, domain.PhaseActive, monthly.Status)
		assert.Equal(t, domain.FrequencyMonthly, monthly.Frequency)
		suite.Require().Len(monthly.Installments, 4)
		for _, installment := range monthly.Installments {
			assert.True(t, installment.AmountDue.Equal(decimal.NewFromInt(200000)),
				"installment %d due %s", installment.Sequence, installment.AmountDue)
		}
	})

	suite.T().Run("Failure - template payment phase without a plan", func(t *testing.T) {
		template := &model.PaymentMethodTemplate{
			Name: "No Plan",
			Phases: []model.TemplatePhase{
				{
					Order:          1,
					Name:           "Full Payment",
					Category:       "PAYMENT",
					Type:           "CASH",
					PercentOfPrice: decimal.NewFromInt(100),
				},
			},
		}
		suite.Require().NoError(suite.db.Create(template).Error)
		unit := seedUnit(&suite.Suite, suite.db, 500000)

		_, err := suite.contractService.Create(suite.ctx, testTenantID, 10, dto.CreateContractRequest{
			BuyerID:        20,
			PropertyUnitID: unit.ID,
			TemplateID:     template.ID,
			StartDate:      "2025-03-01",
		})
		assert.Error(t, err)
		assert.Equal(t, common.KindValidation, common.KindOf(err))
	})
}

func (suite *ContractServiceTestSuite) TestSkipPhase() {
	contract, _ := suite.createDraft()
	_, err := suite.contractService.Sign(suite.ctx, testTenantID, contract.ID, 20)
	suite.Require().NoError(err)

	phases, err := suite.contractService.ListPhases(suite.ctx, testTenantID, contract.ID)
	suite.Require().NoError(err)

	skipped, err := suite.contractService.SkipPhase(suite.ctx, testTenantID, contract.ID, phases[0].ID, 10, "assessment waived for returning buyer")
	suite.Require().NoError(err)
	suite.Equal(domain.PhaseSkipped, skipped.Status)

	// Skipping settles the phase, so the payment phase activates.
	detail, err := suite.contractService.GetDetail(suite.ctx, testTenantID, contract.ID)
	suite.Require().NoError(err)
	suite.Equal(domain.PhaseActive, detail.Phases[1].Status)
}

func (suite *ContractServiceTestSuite) TestTerminate() {
	suite.T().Run("Success - unit returns to the pool", func(t *testing.T) {
		contract, unit := suite.createDraft()

		terminated, err := suite.contractService.Terminate(suite.ctx, testTenantID, contract.ID, 10, "buyer withdrew")
		assert.NoError(t, err)
		assert.Equal(t, domain.ContractTerminated, terminated.Status)

		var savedUnit model.PropertyUnit
		suite.Require().NoError(suite.db.First(&savedUnit, unit.ID).Error)
		assert.Equal(t, "AVAILABLE", savedUnit.Status)
		assert.Nil(t, savedUnit.ReservedFor)
	})

	suite.T().Run("Failure - reason required", func(t *testing.T) {
		contract, _ := suite.createDraft()

		_, err := suite.contractService.Terminate(suite.ctx, testTenantID, contract.ID, 10, "")
		assert.Error(t, err)
		assert.Equal(t, common.KindValidation, common.KindOf(err))
	})

	suite.T().Run("Failure - terminating twice", func(t *testing.T) {
		contract, _ := suite.createDraft()

		_, err := suite.contractService.Terminate(suite.ctx, testTenantID, contract.ID, 10, "buyer withdrew")
		suite.Require().NoError(err)

		_, err = suite.contractService.Terminate(suite.ctx, testTenantID, contract.ID, 10, "again")
		assert.Error(t, err)
		assert.Equal(t, common.KindStateConflict, common.KindOf(err))
	})
}

func (suite *ContractServiceTestSuite) TestList() {
	suite.createDraft()

	page, err := suite.contractService.List(suite.ctx, testTenantID, domain.Params{Page: 1, Limit: 10})
	suite.Require().NoError(err)
	suite.Equal(int64(1), page.Total)
	suite.Equal(1, page.TotalPages)

	contracts, ok := page.Data.([]domain.Contract)
	suite.Require().True(ok)
	suite.Len(contracts, 1)

	// Other tenants never see the contract.
	page, err = suite.contractService.List(suite.ctx, 99, domain.Params{Page: 1, Limit: 10})
	suite.Require().NoError(err)
	suite.Equal(int64(0), page.Total)
}

func TestContractServiceTestSuite(t *testing.T) {
	suite.Run(t, new(ContractServiceTestSuite))
}
