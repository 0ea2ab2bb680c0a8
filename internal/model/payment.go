package model

import (
	"github.com/terravest/estatecore/internal/domain"
)

func PaymentFromEntity(data *domain.ContractPayment) ContractPayment {
	return ContractPayment{
		ID:                   data.ID,
		ContractID:           data.ContractID,
		PhaseID:              data.PhaseID,
		InstallmentID:        data.InstallmentID,
		Amount:               data.Amount,
		AppliedAmount:        data.AppliedAmount,
		Method:               data.Method,
		Status:               string(data.Status),
		Reference:            data.Reference,
		GatewayTransactionID: data.GatewayTransactionID,
		CompletedAt:          data.CompletedAt,
	}
}

func PaymentToEntity(data ContractPayment) *domain.ContractPayment {
	return &domain.ContractPayment{
		ID:                   data.ID,
		ContractID:           data.ContractID,
		PhaseID:              data.PhaseID,
		InstallmentID:        data.InstallmentID,
		Amount:               data.Amount,
		AppliedAmount:        data.AppliedAmount,
		Method:               data.Method,
		Status:               domain.PaymentStatus(data.Status),
		Reference:            data.Reference,
		GatewayTransactionID: data.GatewayTransactionID,
		CreatedAt:            data.CreatedAt,
		CompletedAt:          data.CompletedAt,
	}
}

func PaymentsToEntity(data []ContractPayment) []domain.ContractPayment {
	responses := make([]domain.ContractPayment, len(data))
	for i, p := range data {
		responses[i] = *PaymentToEntity(p)
	}

	return responses
}
