package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the engine. Consumers (notifications, audit) are
// external and idempotent; none of them is required for the engine's own
// correctness.
const (
	EventContractCreated        = "CONTRACT.CREATED"
	EventContractSigned         = "CONTRACT.SIGNED"
	EventContractPhaseActivated = "CONTRACT.PHASE_ACTIVATED"
	EventContractPhaseCompleted = "CONTRACT.PHASE_COMPLETED"
	EventContractPhaseSkipped   = "CONTRACT.PHASE_SKIPPED"
	EventContractPhaseReopened  = "CONTRACT.PHASE_REOPENED"
	EventContractCompleted      = "CONTRACT.COMPLETED"
	EventContractTerminated     = "CONTRACT.TERMINATED"
	EventContractAmended        = "CONTRACT.AMENDED"
	EventPaymentCompleted       = "PAYMENT.COMPLETED"
	EventPaymentFailed          = "PAYMENT.FAILED"
	EventChangeRequested        = "PAYMENT_METHOD_CHANGE.REQUESTED"
	EventChangeApproved         = "PAYMENT_METHOD_CHANGE.APPROVED"
	EventChangeRejected         = "PAYMENT_METHOD_CHANGE.REJECTED"
	EventChangeExecuted         = "PAYMENT_METHOD_CHANGE.EXECUTED"
	EventChangeCancelled        = "PAYMENT_METHOD_CHANGE.CANCELLED"
)

const (
	AggregateContract      = "Contract"
	AggregateChangeRequest = "PaymentMethodChangeRequest"
)

// DomainEvent is an immutable record of one state transition, appended to the
// outbox in the same transaction as the mutation it describes.
type DomainEvent struct {
	ID            string
	AggregateType string
	AggregateID   uint64
	TenantID      uint64
	EventType     string
	Payload       json.RawMessage
	OccurredAt    time.Time
	PublishedAt   *time.Time
}

// NewEvent builds a DomainEvent with a fresh UUID and a JSON payload. A nil
// or unmarshalable payload yields an empty object rather than an error;
// events never block the mutation they describe.
func NewEvent(aggregateType string, aggregateID, tenantID uint64, eventType string, payload any) DomainEvent {
	body, err := json.Marshal(payload)
	if err != nil || payload == nil {
		body = []byte("{}")
	}
	return DomainEvent{
		ID:            uuid.NewString(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		TenantID:      tenantID,
		EventType:     eventType,
		Payload:       body,
		OccurredAt:    time.Now().UTC(),
	}
}
