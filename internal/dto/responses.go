package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/domain/entity"
	"github.com/ignatzorin/escrow-backend/internal/models"
)

// TransactionResponse represents a transaction aggregate for API clients
type TransactionResponse struct {
	ID                   uuid.UUID           `json:"id"`
	BuyerID              uuid.UUID           `json:"buyer_id"`
	SellerID             uuid.UUID           `json:"seller_id"`
	InitiatorID          uuid.UUID           `json:"initiator_id"`
	Title                string              `json:"title"`
	Description          string              `json:"description,omitempty"`
	Amount               int64               `json:"amount"`
	Currency             string              `json:"currency"`
	ReleasedAmount       int64               `json:"released_amount"`
	HeldBalance          int64               `json:"held_balance"`
	Status               string              `json:"status"`
	InspectionPeriodDays int                 `json:"inspection_period_days"`
	InspectionDeadline   *time.Time          `json:"inspection_deadline,omitempty"`
	FundedAt             *time.Time          `json:"funded_at,omitempty"`
	DeliveredAt          *time.Time          `json:"delivered_at,omitempty"`
	ClosedAt             *time.Time          `json:"closed_at,omitempty"`
	CreatedAt            time.Time           `json:"created_at"`
	UpdatedAt            time.Time           `json:"updated_at"`
	Milestones           []MilestoneResponse `json:"milestones"`
}

// MilestoneResponse represents one milestone of a transaction
type MilestoneResponse struct {
	ID           uuid.UUID             `json:"id"`
	Title        string                `json:"title"`
	Description  string                `json:"description,omitempty"`
	Amount       int64                 `json:"amount"`
	Status       string                `json:"status"`
	Position     int                   `json:"position"`
	SubmittedAt  *time.Time            `json:"submitted_at,omitempty"`
	ReleasedAt   *time.Time            `json:"released_at,omitempty"`
	Deliverables []DeliverableResponse `json:"deliverables"`
	Notes        []NoteResponse        `json:"notes"`
}

// DeliverableResponse represents a checklist item of a milestone
type DeliverableResponse struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Completed bool      `json:"completed"`
}

// NoteResponse represents a milestone comment
type NoteResponse struct {
	ID        uuid.UUID `json:"id"`
	AuthorID  uuid.UUID `json:"author_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// NewTransactionResponse assembles the API view of a transaction aggregate
func NewTransactionResponse(t *entity.Transaction) *TransactionResponse {
	resp := &TransactionResponse{
		ID:                   t.ID,
		BuyerID:              t.BuyerID,
		SellerID:             t.SellerID,
		InitiatorID:          t.InitiatorID,
		Title:                t.Title,
		Description:          t.Description,
		Amount:               t.Amount.Amount,
		Currency:             t.Amount.Currency,
		ReleasedAmount:       t.ReleasedAmount,
		HeldBalance:          t.HeldBalance(),
		Status:               string(t.Status),
		InspectionPeriodDays: t.InspectionPeriodDays,
		FundedAt:             t.FundedAt,
		DeliveredAt:          t.DeliveredAt,
		ClosedAt:             t.ClosedAt,
		CreatedAt:            t.CreatedAt,
		UpdatedAt:            t.UpdatedAt,
		Milestones:           make([]MilestoneResponse, 0, len(t.Milestones)),
	}
	resp.InspectionDeadline = t.InspectionDeadline()
	for _, m := range t.Milestones {
		mr := MilestoneResponse{
			ID:           m.ID,
			Title:        m.Title,
			Description:  m.Description,
			Amount:       m.Amount,
			Status:       string(m.Status),
			Position:     m.Position,
			SubmittedAt:  m.SubmittedAt,
			ReleasedAt:   m.ReleasedAt,
			Deliverables: make([]DeliverableResponse, 0, len(m.Deliverables)),
			Notes:        make([]NoteResponse, 0, len(m.Notes)),
		}
		for _, d := range m.Deliverables {
			mr.Deliverables = append(mr.Deliverables, DeliverableResponse{
				ID:        d.ID,
				Title:     d.Title,
				Completed: d.Completed,
			})
		}
		for _, n := range m.Notes {
			mr.Notes = append(mr.Notes, NoteResponse{
				ID:        n.ID,
				AuthorID:  n.AuthorID,
				Content:   n.Content,
				CreatedAt: n.CreatedAt,
			})
		}
		resp.Milestones = append(resp.Milestones, mr)
	}
	return resp
}

// AuthResponse represents the result of register and login
type AuthResponse struct {
	User         *models.User `json:"user"`
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresIn    int64        `json:"expires_in"`
}

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// SuccessResponse represents a standard success response
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}
