package model

import (
	"github.com/terravest/estatecore/internal/domain"
)

func ChangeRequestFromEntity(data *domain.PaymentMethodChangeRequest) PaymentMethodChangeRequest {
	return PaymentMethodChangeRequest{
		ID:                 data.ID,
		ContractID:         data.ContractID,
		FromTemplateID:     data.FromTemplateID,
		ToTemplateID:       data.ToTemplateID,
		Reason:             data.Reason,
		CurrentOutstanding: data.CurrentOutstanding,
		NewTermMonths:      data.NewTermMonths,
		NewInterestRate:    data.NewInterestRate,
		NewMonthlyPayment:  data.NewMonthlyPayment,
		Status:             string(data.Status),
		InitiatorID:        data.InitiatorID,
		ReviewerID:         data.ReviewerID,
		ReviewNotes:        data.ReviewNotes,
		RejectionReason:    data.RejectionReason,
		ReviewedAt:         data.ReviewedAt,
		ExecutedAt:         data.ExecutedAt,
	}
}

func ChangeRequestToEntity(data PaymentMethodChangeRequest) *domain.PaymentMethodChangeRequest {
	docs := make([]domain.ChangeRequestDocument, len(data.Documents))
	for i, d := range data.Documents {
		docs[i] = domain.ChangeRequestDocument{
			ID:              d.ID,
			ChangeRequestID: d.ChangeRequestID,
			Name:            d.Name,
			FileURL:         d.FileURL,
			UploadedAt:      d.UploadedAt,
		}
	}

	return &domain.PaymentMethodChangeRequest{
		ID:                 data.ID,
		ContractID:         data.ContractID,
		FromTemplateID:     data.FromTemplateID,
		ToTemplateID:       data.ToTemplateID,
		Reason:             data.Reason,
		CurrentOutstanding: data.CurrentOutstanding,
		NewTermMonths:      data.NewTermMonths,
		NewInterestRate:    data.NewInterestRate,
		NewMonthlyPayment:  data.NewMonthlyPayment,
		Status:             domain.ChangeRequestStatus(data.Status),
		InitiatorID:        data.InitiatorID,
		ReviewerID:         data.ReviewerID,
		ReviewNotes:        data.ReviewNotes,
		RejectionReason:    data.RejectionReason,
		ReviewedAt:         data.ReviewedAt,
		ExecutedAt:         data.ExecutedAt,
		CreatedAt:          data.CreatedAt,
		UpdatedAt:          data.UpdatedAt,
		DocumentURLs:       docs,
	}
}

func ChangeRequestsToEntity(data []PaymentMethodChangeRequest) []domain.PaymentMethodChangeRequest {
	responses := make([]domain.PaymentMethodChangeRequest, len(data))
	for i, r := range data {
		responses[i] = *ChangeRequestToEntity(r)
	}

	return responses
}

func EventFromEntity(data *domain.DomainEvent) DomainEvent {
	return DomainEvent{
		ID:            data.ID,
		AggregateType: data.AggregateType,
		AggregateID:   data.AggregateID,
		TenantID:      data.TenantID,
		EventType:     data.EventType,
		Payload:       data.Payload,
		OccurredAt:    data.OccurredAt,
		PublishedAt:   data.PublishedAt,
	}
}

func EventToEntity(data DomainEvent) *domain.DomainEvent {
	return &domain.DomainEvent{
		ID:            data.ID,
		AggregateType: data.AggregateType,
		AggregateID:   data.AggregateID,
		TenantID:      data.TenantID,
		EventType:     data.EventType,
		Payload:       data.Payload,
		OccurredAt:    data.OccurredAt,
		PublishedAt:   data.PublishedAt,
	}
}

func EventsToEntity(data []DomainEvent) []domain.DomainEvent {
	responses := make([]domain.DomainEvent, len(data))
	for i, e := range data {
		responses[i] = *EventToEntity(e)
	}

	return responses
}
