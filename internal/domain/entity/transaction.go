package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
)

// Actor — проверенная личность, от имени которой выполняется команда.
// Флаг Platform выставляется только после проверки роли в базе, флаг System —
// только внутренним планировщиком. Клеймы клиента сюда не попадают.
type Actor struct {
	ID       uuid.UUID
	Platform bool
	System   bool
}

// SystemActor используется для переходов по таймеру (авто-завершение).
func SystemActor() Actor {
	return Actor{System: true}
}

// Transaction — агрегат сделки. Единственная точка, через которую меняются
// статусы сделки и её этапов: этапы не имеют самостоятельного жизненного
// цикла вне родительской сделки.
type Transaction struct {
	ID                   uuid.UUID
	BuyerID              uuid.UUID
	SellerID             uuid.UUID
	InitiatorID          uuid.UUID
	Title                string
	Description          string
	Amount               valueobject.Money
	ReleasedAmount       int64
	Status               valueobject.TransactionStatus
	InspectionPeriodDays int
	Version              int64
	FundedAt             *time.Time
	DeliveredAt          *time.Time
	ClosedAt             *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time

	Milestones []*Milestone
}

// MilestoneDraft — описание этапа при создании сделки.
type MilestoneDraft struct {
	Title        string
	Description  string
	Amount       int64
	Deliverables []string
}

func NewTransaction(buyerID, sellerID, initiatorID uuid.UUID, title, description string, amount valueobject.Money, inspectionPeriodDays int, drafts []MilestoneDraft) (*Transaction, error) {
	if title == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "название сделки обязательно")
	}
	if buyerID == sellerID {
		return nil, apperror.New(apperror.ErrCodeValidation, "покупатель и продавец должны различаться")
	}
	if initiatorID != buyerID && initiatorID != sellerID {
		return nil, apperror.New(apperror.ErrCodeValidation, "инициатор должен быть стороной сделки")
	}
	if amount.Amount <= 0 {
		return nil, apperror.New(apperror.ErrCodeValidation, "сумма сделки должна быть положительной")
	}
	if inspectionPeriodDays <= 0 {
		inspectionPeriodDays = 3
	}

	now := time.Now()
	t := &Transaction{
		ID:                   uuid.New(),
		BuyerID:              buyerID,
		SellerID:             sellerID,
		InitiatorID:          initiatorID,
		Title:                title,
		Description:          description,
		Amount:               amount,
		Status:               valueobject.TransactionStatusPending,
		InspectionPeriodDays: inspectionPeriodDays,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	var total int64
	for i, draft := range drafts {
		m, err := newMilestone(draft, i)
		if err != nil {
			return nil, err
		}
		total += m.Amount
		t.Milestones = append(t.Milestones, m)
	}
	// Сумма этапов обязана сходиться с суммой сделки уже при создании.
	if len(drafts) > 0 && total != amount.Amount {
		return nil, apperror.New(apperror.ErrCodeValidation, "сумма этапов не совпадает с суммой сделки")
	}

	return t, nil
}

func (t *Transaction) IsBuyer(id uuid.UUID) bool {
	return t.BuyerID == id
}

func (t *Transaction) IsSeller(id uuid.UUID) bool {
	return t.SellerID == id
}

func (t *Transaction) IsParticipant(id uuid.UUID) bool {
	return t.IsBuyer(id) || t.IsSeller(id)
}

// HeldBalance возвращает удерживаемый остаток: после пополнения это сумма
// сделки минус уже выплаченные этапы, до пополнения — ноль.
func (t *Transaction) HeldBalance() int64 {
	switch t.Status {
	case valueobject.TransactionStatusFunded, valueobject.TransactionStatusDelivered, valueobject.TransactionStatusDisputed:
		return t.Amount.Amount - t.ReleasedAmount
	}
	return 0
}

// ReleasedBalance возвращает сумму уже выплаченных средств.
func (t *Transaction) ReleasedBalance() int64 {
	return t.ReleasedAmount
}

// CanRelease проверяет, что выплата не превысит сумму сделки. Никогда не
// урезает сумму молча: при превышении возвращает OVER_RELEASE.
func (t *Transaction) CanRelease(amount int64) error {
	if amount <= 0 {
		return apperror.New(apperror.ErrCodeValidation, "сумма выплаты должна быть положительной")
	}
	if t.ReleasedAmount+amount > t.Amount.Amount {
		return apperror.New(apperror.ErrCodeOverRelease, "выплата превышает сумму сделки")
	}
	return nil
}

// Accept принимает сделку. Разрешено только контрагенту инициатора.
func (t *Transaction) Accept(actor Actor) error {
	if !t.IsParticipant(actor.ID) || actor.ID == t.InitiatorID {
		return apperror.New(apperror.ErrCodeUnauthorized, "принять сделку может только контрагент")
	}
	if !t.Status.CanTransitionTo(valueobject.TransactionStatusAccepted) {
		return apperror.New(apperror.ErrCodeInvalidTransition, "невозможно принять сделку в текущем статусе")
	}
	t.setStatus(valueobject.TransactionStatusAccepted)
	return nil
}

// Cancel отменяет сделку. Допустимо только пока средства не удерживаются:
// после пополнения возврат возможен исключительно через разрешение спора.
func (t *Transaction) Cancel(actor Actor) error {
	if !t.IsParticipant(actor.ID) {
		return apperror.New(apperror.ErrCodeUnauthorized, "отменить сделку может только её сторона")
	}
	if !t.Status.CanTransitionTo(valueobject.TransactionStatusCancelled) {
		return apperror.New(apperror.ErrCodeInvalidTransition, "невозможно отменить сделку в текущем статусе")
	}
	t.setStatus(valueobject.TransactionStatusCancelled)
	now := time.Now()
	t.ClosedAt = &now
	return nil
}

// Fund отмечает сделку оплаченной после подтверждённого захвата платежа.
func (t *Transaction) Fund(actor Actor) error {
	if !t.IsBuyer(actor.ID) {
		return apperror.New(apperror.ErrCodeUnauthorized, "оплатить сделку может только покупатель")
	}
	if !t.Status.CanTransitionTo(valueobject.TransactionStatusFunded) {
		return apperror.New(apperror.ErrCodeInvalidTransition, "невозможно оплатить сделку в текущем статусе")
	}
	t.setStatus(valueobject.TransactionStatusFunded)
	now := time.Now()
	t.FundedAt = &now
	return nil
}

// Deliver объявляет работу сданной. Блокируется, пока есть этапы без
// одобрения: нельзя объявить сдачу при неподтверждённой части работ.
func (t *Transaction) Deliver(actor Actor) error {
	if !t.IsSeller(actor.ID) {
		return apperror.New(apperror.ErrCodeUnauthorized, "сдать работу может только продавец")
	}
	if !t.Status.CanTransitionTo(valueobject.TransactionStatusDelivered) {
		return apperror.New(apperror.ErrCodeInvalidTransition, "невозможно сдать работу в текущем статусе")
	}
	for _, m := range t.Milestones {
		if m.Status != valueobject.MilestoneStatusApproved && m.Status != valueobject.MilestoneStatusReleased {
			return apperror.New(apperror.ErrCodeInvalidTransition, "не все этапы одобрены или выплачены")
		}
	}
	t.setStatus(valueobject.TransactionStatusDelivered)
	now := time.Now()
	t.DeliveredAt = &now
	return nil
}

// Release завершает сделку и отдаёт продавцу остаток удержанных средств.
// Доступно покупателю либо системному актору по истечении срока проверки.
func (t *Transaction) Release(actor Actor) error {
	if !actor.System && !t.IsBuyer(actor.ID) {
		return apperror.New(apperror.ErrCodeUnauthorized, "завершить сделку может только покупатель")
	}
	if !t.Status.CanTransitionTo(valueobject.TransactionStatusCompleted) {
		return apperror.New(apperror.ErrCodeInvalidTransition, "невозможно завершить сделку в текущем статусе")
	}
	if remaining := t.HeldBalance(); remaining > 0 {
		if err := t.CanRelease(remaining); err != nil {
			return err
		}
		t.ReleasedAmount += remaining
	}
	t.setStatus(valueobject.TransactionStatusCompleted)
	now := time.Now()
	t.ClosedAt = &now
	return nil
}

// RaiseDispute переводит сделку в спор. Допустимо из funded и delivered.
func (t *Transaction) RaiseDispute(actor Actor) error {
	if !t.IsParticipant(actor.ID) {
		return apperror.New(apperror.ErrCodeUnauthorized, "открыть спор может только сторона сделки")
	}
	if !t.Status.CanTransitionTo(valueobject.TransactionStatusDisputed) {
		return apperror.New(apperror.ErrCodeInvalidTransition, "открыть спор можно только по оплаченной или сданной сделке")
	}
	t.setStatus(valueobject.TransactionStatusDisputed)
	return nil
}

// ApplyResolution применяет решение платформы по спору. Авторизация
// платформенного актора проверяется вызывающим сервисом до вызова.
func (t *Transaction) ApplyResolution(resolution valueobject.DisputeResolution, sellerAmount int64) error {
	if t.Status != valueobject.TransactionStatusDisputed {
		return apperror.New(apperror.ErrCodeInvalidTransition, "сделка не находится в споре")
	}
	now := time.Now()
	switch resolution {
	case valueobject.DisputeResolutionRelease:
		remaining := t.HeldBalance()
		t.ReleasedAmount += remaining
		t.setStatus(valueobject.TransactionStatusCompleted)
	case valueobject.DisputeResolutionRefund:
		t.setStatus(valueobject.TransactionStatusRefunded)
	case valueobject.DisputeResolutionSplit:
		if err := t.CanRelease(sellerAmount); err != nil {
			return err
		}
		t.ReleasedAmount += sellerAmount
		t.setStatus(valueobject.TransactionStatusCompleted)
	default:
		return apperror.New(apperror.ErrCodeValidation, "неизвестное решение по спору")
	}
	t.ClosedAt = &now
	return nil
}

// InspectionDeadline возвращает момент авто-завершения после сдачи работы.
// Календарные сутки, UTC.
func (t *Transaction) InspectionDeadline() *time.Time {
	if t.DeliveredAt == nil {
		return nil
	}
	deadline := t.DeliveredAt.UTC().Add(time.Duration(t.InspectionPeriodDays) * 24 * time.Hour)
	return &deadline
}

// InspectionExpired сообщает, истёк ли срок проверки для сданной сделки.
func (t *Transaction) InspectionExpired(now time.Time) bool {
	if t.Status != valueobject.TransactionStatusDelivered {
		return false
	}
	deadline := t.InspectionDeadline()
	return deadline != nil && !now.Before(*deadline)
}

func (t *Transaction) setStatus(status valueobject.TransactionStatus) {
	t.Status = status
	t.UpdatedAt = time.Now()
}

func (t *Transaction) milestone(id uuid.UUID) (*Milestone, error) {
	for _, m := range t.Milestones {
		if m.ID == id {
			return m, nil
		}
	}
	return nil, apperror.ErrMilestoneNotFound
}
