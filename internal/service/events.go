package service

import (
	"time"

	"github.com/google/uuid"
)

// Имена событий переходов. Одно событие на успешный переход.
const (
	EventTransactionAccepted  = "transaction.accepted"
	EventTransactionCancelled = "transaction.cancelled"
	EventTransactionFunded    = "transaction.funded"
	EventTransactionDelivered = "transaction.delivered"
	EventTransactionCompleted = "transaction.completed"
	EventTransactionRefunded  = "transaction.refunded"
	EventMilestoneSubmitted   = "milestone.submitted"
	EventMilestoneApproved    = "milestone.approved"
	EventMilestoneReleased    = "milestone.released"
	EventDisputeRaised        = "dispute.raised"
	EventDisputeResolved      = "dispute.resolved"
)

// Event описывает успешный переход для внешних потребителей: доставки
// уведомлений, живых обновлений интерфейса и отображения истории.
type Event struct {
	Name          string         `json:"name"`
	TransactionID uuid.UUID      `json:"transaction_id"`
	BuyerID       uuid.UUID      `json:"buyer_id"`
	SellerID      uuid.UUID      `json:"seller_id"`
	PriorStatus   string         `json:"prior_status"`
	NewStatus     string         `json:"new_status"`
	ActorID       *uuid.UUID     `json:"actor_id,omitempty"`
	OccurredAt    time.Time      `json:"occurred_at"`
	Payload       map[string]any `json:"payload,omitempty"`
}

// EventEmitter — контракт доставки событий. Машина состояний не знает, кто
// и как их потребляет; сбой доставки не откатывает переход.
type EventEmitter interface {
	Emit(event Event)
}
