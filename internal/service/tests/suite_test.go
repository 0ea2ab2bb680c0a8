package service_test

import (
	"context"
	"database/sql"
	"fmt"
	"mime/multipart"

	"github.com/terravest/estatecore/internal/model"
	"github.com/terravest/estatecore/pkg/common"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testTenantID uint64 = 1

// newTestDB drops and recreates a dedicated test database so every suite
// starts from an empty schema.
func newTestDB(s *suite.Suite, dbName string) *gorm.DB {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/?charset=utf8mb4&parseTime=True&loc=Local",
		common.GetEnv("MYSQL_USER", "root"),
		common.GetEnv("MYSQL_PASSWORD", "rootpassword123"),
		common.GetEnv("MYSQL_HOST", "localhost"),
		common.GetEnv("MYSQL_PORT", "3306"),
	)
	sqlDB, err := sql.Open("mysql", dsn)
	s.Require().NoError(err)
	defer sqlDB.Close()

	_, err = sqlDB.Exec(fmt.Sprintf("DROP DATABASE IF EXISTS %s", dbName))
	s.Require().NoError(err)
	_, err = sqlDB.Exec(fmt.Sprintf("CREATE DATABASE %s", dbName))
	s.Require().NoError(err)

	testDSN := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		common.GetEnv("MYSQL_USER", "root"),
		common.GetEnv("MYSQL_PASSWORD", "rootpassword123"),
		common.GetEnv("MYSQL_HOST", "localhost"),
		common.GetEnv("MYSQL_PORT", "3306"),
		dbName,
	)
	gormDB, err := gorm.Open(mysql.Open(testDSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	s.Require().NoError(err)

	s.Require().NoError(model.AutoMigrate(gormDB))

	return gormDB
}

func truncateAll(db *gorm.DB) {
	tables := []string{
		"domain_events",
		"change_request_documents",
		"payment_method_change_requests",
		"contract_transitions",
		"contract_payments",
		"contract_installments",
		"contract_phase_documents",
		"contract_phase_steps",
		"contract_phases",
		"contracts",
		"document_requirements",
		"step_definitions",
		"template_phases",
		"payment_method_templates",
		"amortization_plans",
		"property_units",
		"users",
	}
	db.Exec("SET FOREIGN_KEY_CHECKS = 0")
	for _, table := range tables {
		db.Exec("TRUNCATE TABLE " + table)
	}
	db.Exec("SET FOREIGN_KEY_CHECKS = 1")
}

func seedUnit(s *suite.Suite, db *gorm.DB, price int64) *model.PropertyUnit {
	unit := &model.PropertyUnit{
		TenantID: testTenantID,
		Name:     "Cluster A - Unit 01",
		Price:    decimal.NewFromInt(price),
		Status:   "AVAILABLE",
	}
	s.Require().NoError(db.Create(unit).Error)
	return unit
}

// seedCashTemplate is a two phase template: one questionnaire phase with a
// single step, then a one-time cash payment for the full price.
func seedCashTemplate(s *suite.Suite, db *gorm.DB) *model.PaymentMethodTemplate {
	plan := model.AmortizationPlan{
		Name:             "Cash Lump Sum",
		Frequency:        "ONE_TIME",
		InstallmentCount: 1,
		AnnualRate:       decimal.Zero,
		GracePeriodDays:  5,
	}
	template := &model.PaymentMethodTemplate{
		Name: "Full Cash",
		Phases: []model.TemplatePhase{
			{
				Order:    1,
				Name:     "Credit Assessment",
				Category: "QUESTIONNAIRE",
				Type:     "CREDIT_CHECK",
				StepDefinitions: []model.StepDefinition{
					{Order: 1, Name: "Income Questionnaire", Type: "FORM"},
				},
			},
			{
				Order:            2,
				Name:             "Full Payment",
				Category:         "PAYMENT",
				Type:             "CASH",
				PercentOfPrice:   decimal.NewFromInt(100),
				AmortizationPlan: &plan,
			},
		},
	}
	s.Require().NoError(db.Create(template).Error)
	return template
}

// seedInstallmentTemplate splits the price into a one-time down payment and a
// zero-rate monthly schedule so installment amounts stay round numbers.
func seedInstallmentTemplate(s *suite.Suite, db *gorm.DB, name string, count uint) *model.PaymentMethodTemplate {
	downPlan := model.AmortizationPlan{
		Name:             name + " Down Payment",
		Frequency:        "ONE_TIME",
		InstallmentCount: 1,
		AnnualRate:       decimal.Zero,
	}
	monthlyPlan := model.AmortizationPlan{
		Name:             name + " Monthly",
		Frequency:        "MONTHLY",
		InstallmentCount: count,
		AnnualRate:       decimal.Zero,
	}
	template := &model.PaymentMethodTemplate{
		Name: name,
		Phases: []model.TemplatePhase{
			{
				Order:            1,
				Name:             "Down Payment",
				Category:         "PAYMENT",
				Type:             "DOWN_PAYMENT",
				PercentOfPrice:   decimal.NewFromInt(20),
				AmortizationPlan: &downPlan,
			},
			{
				Order:            2,
				Name:             "Monthly Installments",
				Category:         "PAYMENT",
				Type:             "INSTALLMENT",
				PercentOfPrice:   decimal.NewFromInt(80),
				AmortizationPlan: &monthlyPlan,
			},
		},
	}
	s.Require().NoError(db.Create(template).Error)
	return template
}

// stubMediaService stands in for Cloudinary in suites that never upload.
type stubMediaService struct {
	URL string
	Err error
}

func (m *stubMediaService) Upload(ctx context.Context, file *multipart.FileHeader, folder string) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	if m.URL == "" {
		return "https://example.com/upload.pdf", nil
	}
	return m.URL, nil
}
