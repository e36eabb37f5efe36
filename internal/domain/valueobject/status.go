package valueobject

import "github.com/ignatzorin/escrow-backend/internal/pkg/apperror"

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusAccepted  TransactionStatus = "accepted"
	TransactionStatusFunded    TransactionStatus = "funded"
	TransactionStatusDelivered TransactionStatus = "delivered"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusDisputed  TransactionStatus = "disputed"
	TransactionStatusCancelled TransactionStatus = "cancelled"
	TransactionStatusRefunded  TransactionStatus = "refunded"
)

// transactionTransitions — единственная таблица допустимых переходов сделки.
// Любая проверка "можно ли" обязана идти через неё, а не через разрозненные
// if-ы в обработчиках.
var transactionTransitions = map[TransactionStatus][]TransactionStatus{
	TransactionStatusPending:   {TransactionStatusAccepted, TransactionStatusCancelled},
	TransactionStatusAccepted:  {TransactionStatusFunded, TransactionStatusCancelled},
	TransactionStatusFunded:    {TransactionStatusDelivered, TransactionStatusDisputed},
	TransactionStatusDelivered: {TransactionStatusCompleted, TransactionStatusDisputed},
	TransactionStatusDisputed:  {TransactionStatusCompleted, TransactionStatusRefunded},
	TransactionStatusCompleted: {},
	TransactionStatusCancelled: {},
	TransactionStatusRefunded:  {},
}

func (s TransactionStatus) IsValid() bool {
	_, ok := transactionTransitions[s]
	return ok
}

func (s TransactionStatus) IsTerminal() bool {
	allowed, ok := transactionTransitions[s]
	return ok && len(allowed) == 0
}

func (s TransactionStatus) CanTransitionTo(newStatus TransactionStatus) bool {
	allowed, ok := transactionTransitions[s]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == newStatus {
			return true
		}
	}
	return false
}

func NewTransactionStatus(status string) (TransactionStatus, error) {
	s := TransactionStatus(status)
	if !s.IsValid() {
		return "", apperror.New(apperror.ErrCodeValidation, "некорректный статус сделки")
	}
	return s, nil
}

type MilestoneStatus string

const (
	MilestoneStatusPending    MilestoneStatus = "pending"
	MilestoneStatusInProgress MilestoneStatus = "in_progress"
	MilestoneStatusSubmitted  MilestoneStatus = "submitted"
	MilestoneStatusApproved   MilestoneStatus = "approved"
	MilestoneStatusReleased   MilestoneStatus = "released"
)

var milestoneTransitions = map[MilestoneStatus][]MilestoneStatus{
	MilestoneStatusPending:    {MilestoneStatusInProgress, MilestoneStatusSubmitted},
	MilestoneStatusInProgress: {MilestoneStatusSubmitted},
	MilestoneStatusSubmitted:  {MilestoneStatusApproved},
	MilestoneStatusApproved:   {MilestoneStatusReleased},
	MilestoneStatusReleased:   {},
}

func (s MilestoneStatus) IsValid() bool {
	_, ok := milestoneTransitions[s]
	return ok
}

func (s MilestoneStatus) CanTransitionTo(newStatus MilestoneStatus) bool {
	allowed, ok := milestoneTransitions[s]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == newStatus {
			return true
		}
	}
	return false
}

func NewMilestoneStatus(status string) (MilestoneStatus, error) {
	s := MilestoneStatus(status)
	if !s.IsValid() {
		return "", apperror.New(apperror.ErrCodeValidation, "некорректный статус этапа")
	}
	return s, nil
}

type DisputeStatus string

const (
	DisputeStatusOpen        DisputeStatus = "open"
	DisputeStatusUnderReview DisputeStatus = "under_review"
	DisputeStatusResolved    DisputeStatus = "resolved"
)

func (s DisputeStatus) IsValid() bool {
	switch s {
	case DisputeStatusOpen, DisputeStatusUnderReview, DisputeStatusResolved:
		return true
	}
	return false
}

type DisputeResolution string

const (
	DisputeResolutionRelease DisputeResolution = "release"
	DisputeResolutionRefund  DisputeResolution = "refund"
	DisputeResolutionSplit   DisputeResolution = "split"
)

func (r DisputeResolution) IsValid() bool {
	switch r {
	case DisputeResolutionRelease, DisputeResolutionRefund, DisputeResolutionSplit:
		return true
	}
	return false
}
