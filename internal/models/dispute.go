package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	DisputeStatusOpen        = "open"
	DisputeStatusUnderReview = "under_review"
	DisputeStatusResolved    = "resolved"
)

const (
	DisputeResolutionRelease = "release"
	DisputeResolutionRefund  = "refund"
	DisputeResolutionSplit   = "split"
)

// Dispute фиксирует спор по сделке. Закрывается только платформой,
// после закрытия запись неизменяема.
type Dispute struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	TransactionID uuid.UUID  `db:"transaction_id" json:"transaction_id"`
	RaisedBy      uuid.UUID  `db:"raised_by" json:"raised_by"`
	Reason        string     `db:"reason" json:"reason"`
	Status        string     `db:"status" json:"status"`
	Resolution    *string    `db:"resolution" json:"resolution,omitempty"`
	SellerAmount  *int64     `db:"seller_amount" json:"seller_amount,omitempty"`
	BuyerAmount   *int64     `db:"buyer_amount" json:"buyer_amount,omitempty"`
	ResolvedBy    *uuid.UUID `db:"resolved_by" json:"resolved_by,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	ResolvedAt    *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
}
