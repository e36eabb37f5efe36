package dto

// RegisterRequest represents the request to register a new user
type RegisterRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Username string `json:"username"`
}

// LoginRequest represents the request to log in
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RefreshRequest represents the request to refresh a token pair
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// ConnectPayoutAccountRequest represents the request to connect a payout account
type ConnectPayoutAccountRequest struct {
	DestinationAccount string  `json:"destination_account" binding:"required"`
	BankName           *string `json:"bank_name"`
}

// CreateTransactionRequest represents the request to create an escrow transaction
type CreateTransactionRequest struct {
	Title                string             `json:"title" binding:"required"`
	Description          string             `json:"description"`
	Amount               int64              `json:"amount" binding:"required"`
	Currency             string             `json:"currency"`
	CounterpartyID       string             `json:"counterparty_id" binding:"required"`
	Role                 string             `json:"role" binding:"required"`
	InspectionPeriodDays int                `json:"inspection_period_days"`
	Milestones           []MilestoneRequest `json:"milestones"`
}

// MilestoneRequest represents one milestone in a transaction
type MilestoneRequest struct {
	Title        string   `json:"title" binding:"required"`
	Description  string   `json:"description"`
	Amount       int64    `json:"amount" binding:"required"`
	Deliverables []string `json:"deliverables"`
}

// UpdateMilestoneRequest represents the request to edit a milestone before funding
type UpdateMilestoneRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	Amount      int64  `json:"amount" binding:"required"`
}

// AddMilestoneNoteRequest represents the request to comment on a milestone
type AddMilestoneNoteRequest struct {
	Content string `json:"content" binding:"required"`
}

// RaiseDisputeRequest represents the request to open a dispute
type RaiseDisputeRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// ResolveDisputeRequest represents the platform's decision on a dispute
type ResolveDisputeRequest struct {
	Resolution   string `json:"resolution" binding:"required"`
	SellerAmount *int64 `json:"seller_amount"`
}
