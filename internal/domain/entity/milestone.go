package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
)

// Milestone — этап сделки. Мутаторы доступны только через методы
// родительской Transaction, где выполняется проверка актора и статуса
// сделки.
type Milestone struct {
	ID          uuid.UUID
	Title       string
	Description string
	Amount      int64
	Status      valueobject.MilestoneStatus
	Position    int
	SubmittedAt *time.Time
	ReleasedAt  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time

	Deliverables []*Deliverable
	Notes        []*Note
}

// Deliverable — пункт чек-листа этапа.
type Deliverable struct {
	ID        uuid.UUID
	Title     string
	Completed bool
	CreatedAt time.Time
}

// Note — комментарий к этапу, только добавление.
type Note struct {
	ID        uuid.UUID
	AuthorID  uuid.UUID
	Content   string
	CreatedAt time.Time
}

func newMilestone(draft MilestoneDraft, position int) (*Milestone, error) {
	if draft.Title == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "название этапа обязательно")
	}
	if draft.Amount <= 0 {
		return nil, apperror.New(apperror.ErrCodeValidation, "сумма этапа должна быть положительной")
	}
	now := time.Now()
	m := &Milestone{
		ID:          uuid.New(),
		Title:       draft.Title,
		Description: draft.Description,
		Amount:      draft.Amount,
		Status:      valueobject.MilestoneStatusPending,
		Position:    position,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, title := range draft.Deliverables {
		if title == "" {
			continue
		}
		m.Deliverables = append(m.Deliverables, &Deliverable{
			ID:        uuid.New(),
			Title:     title,
			CreatedAt: now,
		})
	}
	return m, nil
}

// UpdateMilestone правит этап до заморозки финансовых условий. После
// оплаты сделки состав и суммы этапов неизменяемы.
func (t *Transaction) UpdateMilestone(milestoneID uuid.UUID, actor Actor, title, description string, amount int64) error {
	if actor.ID != t.InitiatorID {
		return apperror.New(apperror.ErrCodeUnauthorized, "править этап может только инициатор сделки")
	}
	if t.Status != valueobject.TransactionStatusPending && t.Status != valueobject.TransactionStatusAccepted {
		return apperror.New(apperror.ErrCodeInvalidTransition, "этапы неизменяемы после оплаты сделки")
	}
	m, err := t.milestone(milestoneID)
	if err != nil {
		return err
	}
	if amount <= 0 {
		return apperror.New(apperror.ErrCodeValidation, "сумма этапа должна быть положительной")
	}

	// Проверяем сумму до применения правки: частичных изменений не бывает.
	var total int64
	for _, other := range t.Milestones {
		if other.ID == milestoneID {
			total += amount
		} else {
			total += other.Amount
		}
	}
	if total != t.Amount.Amount {
		return apperror.New(apperror.ErrCodeValidation, "сумма этапов не совпадает с суммой сделки")
	}

	if title != "" {
		m.Title = title
	}
	if description != "" {
		m.Description = description
	}
	m.Amount = amount
	m.touch()
	return nil
}

// StartMilestone переводит этап в работу. Необязательный шаг перед сдачей.
func (t *Transaction) StartMilestone(milestoneID uuid.UUID, actor Actor) error {
	if !t.IsSeller(actor.ID) {
		return apperror.New(apperror.ErrCodeUnauthorized, "начать этап может только продавец")
	}
	if t.Status != valueobject.TransactionStatusFunded {
		return apperror.New(apperror.ErrCodeInvalidTransition, "этапы выполняются только по оплаченной сделке")
	}
	m, err := t.milestone(milestoneID)
	if err != nil {
		return err
	}
	if !m.Status.CanTransitionTo(valueobject.MilestoneStatusInProgress) {
		return apperror.New(apperror.ErrCodeInvalidTransition, "невозможно начать этап в текущем статусе")
	}
	m.Status = valueobject.MilestoneStatusInProgress
	m.touch()
	return nil
}

// SubmitMilestone сдаёт этап на проверку покупателю.
func (t *Transaction) SubmitMilestone(milestoneID uuid.UUID, actor Actor) error {
	if !t.IsSeller(actor.ID) {
		return apperror.New(apperror.ErrCodeUnauthorized, "сдать этап может только продавец")
	}
	if t.Status != valueobject.TransactionStatusFunded {
		return apperror.New(apperror.ErrCodeInvalidTransition, "сдать этап можно только по оплаченной сделке")
	}
	m, err := t.milestone(milestoneID)
	if err != nil {
		return err
	}
	if !m.Status.CanTransitionTo(valueobject.MilestoneStatusSubmitted) {
		return apperror.New(apperror.ErrCodeInvalidTransition, "невозможно сдать этап в текущем статусе")
	}
	m.Status = valueobject.MilestoneStatusSubmitted
	now := time.Now()
	m.SubmittedAt = &now
	m.touch()
	return nil
}

// ApproveMilestone одобряет сданный этап.
func (t *Transaction) ApproveMilestone(milestoneID uuid.UUID, actor Actor) error {
	if !t.IsBuyer(actor.ID) {
		return apperror.New(apperror.ErrCodeUnauthorized, "одобрить этап может только покупатель")
	}
	m, err := t.milestone(milestoneID)
	if err != nil {
		return err
	}
	if !m.Status.CanTransitionTo(valueobject.MilestoneStatusApproved) {
		return apperror.New(apperror.ErrCodeInvalidTransition, "одобрить можно только сданный этап")
	}
	m.Status = valueobject.MilestoneStatusApproved
	m.touch()
	return nil
}

// ReleaseMilestone выплачивает этап. Статус сделки не меняется: частичные
// выплаты идут, пока сделка оплачена или сдана.
func (t *Transaction) ReleaseMilestone(milestoneID uuid.UUID, actor Actor) (*Milestone, error) {
	if !t.IsBuyer(actor.ID) {
		return nil, apperror.New(apperror.ErrCodeUnauthorized, "выплатить этап может только покупатель")
	}
	if t.Status != valueobject.TransactionStatusFunded && t.Status != valueobject.TransactionStatusDelivered {
		return nil, apperror.New(apperror.ErrCodeInvalidTransition, "выплата этапа возможна только по оплаченной или сданной сделке")
	}
	m, err := t.milestone(milestoneID)
	if err != nil {
		return nil, err
	}
	if !m.Status.CanTransitionTo(valueobject.MilestoneStatusReleased) {
		return nil, apperror.New(apperror.ErrCodeInvalidTransition, "выплатить можно только одобренный этап")
	}
	if err := t.CanRelease(m.Amount); err != nil {
		return nil, err
	}
	m.Status = valueobject.MilestoneStatusReleased
	now := time.Now()
	m.ReleasedAt = &now
	m.touch()
	t.ReleasedAmount += m.Amount
	t.UpdatedAt = now
	return m, nil
}

// ToggleDeliverable переключает пункт чек-листа. Статус этапа не меняет.
func (t *Transaction) ToggleDeliverable(milestoneID, deliverableID uuid.UUID, actor Actor) (*Deliverable, error) {
	if !t.IsParticipant(actor.ID) {
		return nil, apperror.New(apperror.ErrCodeUnauthorized, "чек-лист доступен только сторонам сделки")
	}
	m, err := t.milestone(milestoneID)
	if err != nil {
		return nil, err
	}
	if m.Status == valueobject.MilestoneStatusReleased {
		return nil, apperror.New(apperror.ErrCodeInvalidTransition, "чек-лист выплаченного этапа неизменяем")
	}
	for _, d := range m.Deliverables {
		if d.ID == deliverableID {
			d.Completed = !d.Completed
			m.touch()
			return d, nil
		}
	}
	return nil, apperror.New(apperror.ErrCodeNotFound, "пункт чек-листа не найден")
}

// AddNote добавляет комментарий к этапу. Разрешено в любом статусе.
func (t *Transaction) AddNote(milestoneID uuid.UUID, actor Actor, content string) (*Note, error) {
	if !t.IsParticipant(actor.ID) {
		return nil, apperror.New(apperror.ErrCodeUnauthorized, "комментарии доступны только сторонам сделки")
	}
	if content == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "текст комментария обязателен")
	}
	m, err := t.milestone(milestoneID)
	if err != nil {
		return nil, err
	}
	note := &Note{
		ID:        uuid.New(),
		AuthorID:  actor.ID,
		Content:   content,
		CreatedAt: time.Now(),
	}
	m.Notes = append(m.Notes, note)
	return note, nil
}

func (m *Milestone) touch() {
	m.UpdatedAt = time.Now()
}
