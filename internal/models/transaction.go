package models

import (
	"time"

	"github.com/google/uuid"
)

// Transaction описывает защищённую сделку между покупателем и продавцом.
// Средства удерживаются до выполнения условий, суммы хранятся в минорных
// единицах валюты.
type Transaction struct {
	ID                   uuid.UUID  `db:"id" json:"id"`
	BuyerID              uuid.UUID  `db:"buyer_id" json:"buyer_id"`
	SellerID             uuid.UUID  `db:"seller_id" json:"seller_id"`
	InitiatorID          uuid.UUID  `db:"initiator_id" json:"initiator_id"`
	Title                string     `db:"title" json:"title"`
	Description          string     `db:"description" json:"description"`
	Amount               int64      `db:"amount" json:"amount"`
	ReleasedAmount       int64      `db:"released_amount" json:"released_amount"`
	Currency             string     `db:"currency" json:"currency"`
	Status               string     `db:"status" json:"status"`
	InspectionPeriodDays int        `db:"inspection_period_days" json:"inspection_period_days"`
	Version              int64      `db:"version" json:"-"`
	FundedAt             *time.Time `db:"funded_at" json:"funded_at,omitempty"`
	DeliveredAt          *time.Time `db:"delivered_at" json:"delivered_at,omitempty"`
	ClosedAt             *time.Time `db:"closed_at" json:"closed_at,omitempty"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updated_at"`

	Milestones []Milestone `json:"milestones,omitempty"`
}

// Milestone описывает этап сделки с собственной суммой и чек-листом.
type Milestone struct {
	ID            uuid.UUID `db:"id" json:"id"`
	TransactionID uuid.UUID `db:"transaction_id" json:"transaction_id"`
	Title         string    `db:"title" json:"title"`
	Description   string    `db:"description" json:"description"`
	Amount        int64     `db:"amount" json:"amount"`
	Status        string    `db:"status" json:"status"`
	Position      int       `db:"position" json:"position"`
	SubmittedAt   *time.Time `db:"submitted_at" json:"submitted_at,omitempty"`
	ReleasedAt    *time.Time `db:"released_at" json:"released_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`

	Deliverables []Deliverable   `json:"deliverables,omitempty"`
	Notes        []MilestoneNote `json:"notes,omitempty"`
}

// Deliverable — пункт чек-листа этапа.
type Deliverable struct {
	ID          uuid.UUID `db:"id" json:"id"`
	MilestoneID uuid.UUID `db:"milestone_id" json:"milestone_id"`
	Title       string    `db:"title" json:"title"`
	Completed   bool      `db:"completed" json:"completed"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// MilestoneNote — комментарий к этапу, только добавление.
type MilestoneNote struct {
	ID          uuid.UUID `db:"id" json:"id"`
	MilestoneID uuid.UUID `db:"milestone_id" json:"milestone_id"`
	AuthorID    uuid.UUID `db:"author_id" json:"author_id"`
	Content     string    `db:"content" json:"content"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
