package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Действия, фиксируемые в журнале аудита. Одна запись на успешный переход.
const (
	AuditTransactionCreated   = "transaction_created"
	AuditTransactionAccepted  = "transaction_accepted"
	AuditTransactionCancelled = "transaction_cancelled"
	AuditTransactionFunded    = "transaction_funded"
	AuditTransactionDelivered = "transaction_delivered"
	AuditTransactionCompleted = "transaction_completed"
	AuditTransactionRefunded  = "transaction_refunded"
	AuditMilestoneSubmitted   = "milestone_submitted"
	AuditMilestoneApproved    = "milestone_approved"
	AuditMilestoneReleased    = "milestone_released"
	AuditMilestoneUpdated     = "milestone_updated"
	AuditDisputeRaised        = "dispute_raised"
	AuditDisputeResolved      = "dispute_resolved"
)

// AuditRecord — неизменяемая запись журнала. Поле Seq монотонно растёт и
// задаёт порядок истории независимо от точности часов.
type AuditRecord struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	Seq           int64           `db:"seq" json:"seq"`
	TransactionID uuid.UUID       `db:"transaction_id" json:"transaction_id"`
	ActorID       *uuid.UUID      `db:"actor_id" json:"actor_id,omitempty"`
	Action        string          `db:"action" json:"action"`
	Metadata      json.RawMessage `db:"metadata" json:"metadata,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}
