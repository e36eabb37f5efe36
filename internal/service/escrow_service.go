package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/escrow-backend/internal/domain/entity"
	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-backend/internal/logger"
	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
)

// TransactionStore описывает зависимости сервиса от хранилища сделок.
// Locked выполняет команду под блокировкой строки сделки: две одновременные
// команды по одному id линеаризуются.
type TransactionStore interface {
	Create(ctx context.Context, t *entity.Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Transaction, error)
	ListByParticipant(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Transaction, error)
	ListExpiredDeliveries(ctx context.Context, limit int) ([]uuid.UUID, error)
	Locked(ctx context.Context, id uuid.UUID, fn func(tx *sqlx.Tx, t *entity.Transaction) error) (*entity.Transaction, error)
}

// AuditStore пишет журнал аудита.
type AuditStore interface {
	Add(ctx context.Context, transactionID uuid.UUID, actorID *uuid.UUID, action string, metadata interface{}) error
	AddTx(ctx context.Context, tx *sqlx.Tx, transactionID uuid.UUID, actorID *uuid.UUID, action string, metadata interface{}) error
	ListByTransaction(ctx context.Context, transactionID uuid.UUID) ([]models.AuditRecord, error)
}

// PayoutGateway — внешний платёжный шлюз. Обязан быть идемпотентным по
// ключу: повтор вызова с тем же ключом не двигает деньги второй раз.
type PayoutGateway interface {
	CapturePayment(ctx context.Context, transactionID uuid.UUID, amount int64, currency, idempotencyKey string) (string, error)
	Payout(ctx context.Context, transactionID uuid.UUID, milestoneID *uuid.UUID, amount int64, currency, destinationAccount, idempotencyKey string) (string, error)
	Refund(ctx context.Context, transactionID uuid.UUID, amount int64, currency, idempotencyKey string) (string, error)
}

// OnboardingStatus отвечает, готов ли получатель принимать выплаты.
type OnboardingStatus interface {
	IsPayoutReady(ctx context.Context, userID uuid.UUID) (bool, error)
	GetPayoutAccount(ctx context.Context, userID uuid.UUID) (*models.PayoutAccount, error)
}

// EscrowService — единая точка входа для команд над сделкой. Проверяет
// актора и текущий статус, применяет переход, пишет аудит и для денежных
// переходов вызывает платёжный шлюз до фиксации состояния.
type EscrowService struct {
	transactions TransactionStore
	audit        AuditStore
	gateway      PayoutGateway
	onboarding   OnboardingStatus
	events       EventEmitter
}

func NewEscrowService(transactions TransactionStore, audit AuditStore, gateway PayoutGateway, onboarding OnboardingStatus, events EventEmitter) *EscrowService {
	return &EscrowService{
		transactions: transactions,
		audit:        audit,
		gateway:      gateway,
		onboarding:   onboarding,
		events:       events,
	}
}

// CreateTransactionInput содержит данные новой сделки. Role — роль
// инициатора: buyer или seller.
type CreateTransactionInput struct {
	Title                string
	Description          string
	Amount               int64
	Currency             string
	CounterpartyID       uuid.UUID
	Role                 string
	InspectionPeriodDays int
	Milestones           []entity.MilestoneDraft
}

// CreateTransaction создаёт сделку в статусе pending.
func (s *EscrowService) CreateTransaction(ctx context.Context, initiatorID uuid.UUID, in CreateTransactionInput) (*entity.Transaction, error) {
	var buyerID, sellerID uuid.UUID
	switch in.Role {
	case "buyer":
		buyerID, sellerID = initiatorID, in.CounterpartyID
	case "seller":
		buyerID, sellerID = in.CounterpartyID, initiatorID
	default:
		return nil, apperror.New(apperror.ErrCodeValidation, "роль инициатора должна быть buyer или seller")
	}

	amount, err := valueobject.NewMoney(in.Amount, in.Currency)
	if err != nil {
		return nil, err
	}

	t, err := entity.NewTransaction(buyerID, sellerID, initiatorID, in.Title, in.Description, amount, in.InspectionPeriodDays, in.Milestones)
	if err != nil {
		return nil, err
	}

	if err := s.transactions.Create(ctx, t); err != nil {
		return nil, err
	}

	if err := s.audit.Add(ctx, t.ID, &initiatorID, models.AuditTransactionCreated, map[string]any{
		"amount":   t.Amount.Amount,
		"currency": t.Amount.Currency,
	}); err != nil {
		logger.Log.WithFields(logrus.Fields{"transaction_id": t.ID, "error": err.Error()}).
			Error("escrow: не удалось записать аудит создания")
	}

	return t, nil
}

// GetTransaction возвращает сделку стороне или платформе.
func (s *EscrowService) GetTransaction(ctx context.Context, actorID uuid.UUID, isPlatform bool, id uuid.UUID) (*entity.Transaction, error) {
	t, err := s.transactions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isPlatform && !t.IsParticipant(actorID) {
		return nil, apperror.ErrForbidden
	}
	return t, nil
}

// ListMyTransactions возвращает сделки пользователя.
func (s *EscrowService) ListMyTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.transactions.ListByParticipant(ctx, userID, limit, offset)
}

// ListAudit возвращает историю сделки в порядке возникновения.
func (s *EscrowService) ListAudit(ctx context.Context, actorID uuid.UUID, isPlatform bool, id uuid.UUID) ([]models.AuditRecord, error) {
	if _, err := s.GetTransaction(ctx, actorID, isPlatform, id); err != nil {
		return nil, err
	}
	return s.audit.ListByTransaction(ctx, id)
}

// Accept принимает сделку контрагентом инициатора.
func (s *EscrowService) Accept(ctx context.Context, actorID, id uuid.UUID) (*entity.Transaction, error) {
	return s.transition(ctx, id, actorID, models.AuditTransactionAccepted, EventTransactionAccepted, nil,
		func(tx *sqlx.Tx, t *entity.Transaction) error {
			return t.Accept(entity.Actor{ID: actorID})
		})
}

// Cancel отменяет сделку, пока средства не удерживаются.
func (s *EscrowService) Cancel(ctx context.Context, actorID, id uuid.UUID) (*entity.Transaction, error) {
	return s.transition(ctx, id, actorID, models.AuditTransactionCancelled, EventTransactionCancelled, nil,
		func(tx *sqlx.Tx, t *entity.Transaction) error {
			return t.Cancel(entity.Actor{ID: actorID})
		})
}

// Fund проводит оплату сделки: сначала захват платежа у шлюза, затем
// фиксация статуса. При сбое шлюза сделка остаётся в accepted.
func (s *EscrowService) Fund(ctx context.Context, actorID, id uuid.UUID) (*entity.Transaction, error) {
	return s.transition(ctx, id, actorID, models.AuditTransactionFunded, EventTransactionFunded, nil,
		func(tx *sqlx.Tx, t *entity.Transaction) error {
			if err := t.Fund(entity.Actor{ID: actorID}); err != nil {
				return err
			}
			_, err := s.gateway.CapturePayment(ctx, t.ID, t.Amount.Amount, t.Amount.Currency, idempotencyKey(t.ID, nil, "fund"))
			return err
		})
}

// Deliver объявляет работу сданной и запускает срок проверки.
func (s *EscrowService) Deliver(ctx context.Context, actorID, id uuid.UUID) (*entity.Transaction, error) {
	return s.transition(ctx, id, actorID, models.AuditTransactionDelivered, EventTransactionDelivered, nil,
		func(tx *sqlx.Tx, t *entity.Transaction) error {
			return t.Deliver(entity.Actor{ID: actorID})
		})
}

// Release завершает сделку и выплачивает продавцу остаток удержанного.
func (s *EscrowService) Release(ctx context.Context, actorID, id uuid.UUID) (*entity.Transaction, error) {
	return s.releaseAs(ctx, entity.Actor{ID: actorID}, id, nil)
}

// releaseAs — общий путь завершения для покупателя и системного актора.
func (s *EscrowService) releaseAs(ctx context.Context, actor entity.Actor, id uuid.UUID, extraMeta map[string]any) (*entity.Transaction, error) {
	actorID := auditActor(actor)
	var prior string
	t, err := s.transactions.Locked(ctx, id, func(tx *sqlx.Tx, t *entity.Transaction) error {
		prior = string(t.Status)
		remaining := t.HeldBalance()
		if err := t.Release(actor); err != nil {
			return err
		}
		if remaining > 0 {
			if err := s.requirePayoutReady(ctx, t.SellerID); err != nil {
				return err
			}
			account, err := s.onboarding.GetPayoutAccount(ctx, t.SellerID)
			if err != nil {
				return err
			}
			if _, err := s.gateway.Payout(ctx, t.ID, nil, remaining, t.Amount.Currency, account.DestinationAccount, idempotencyKey(t.ID, nil, "release")); err != nil {
				return err
			}
		}
		meta := map[string]any{"released": remaining}
		for k, v := range extraMeta {
			meta[k] = v
		}
		return s.audit.AddTx(ctx, tx, t.ID, actorID, models.AuditTransactionCompleted, meta)
	})
	if err != nil {
		return nil, err
	}
	s.emit(EventTransactionCompleted, t, prior, actorID, nil)
	return t, nil
}

// SubmitMilestone сдаёт этап на проверку.
func (s *EscrowService) SubmitMilestone(ctx context.Context, actorID, id, milestoneID uuid.UUID) (*entity.Transaction, error) {
	return s.transition(ctx, id, actorID, models.AuditMilestoneSubmitted, EventMilestoneSubmitted, map[string]any{"milestone_id": milestoneID},
		func(tx *sqlx.Tx, t *entity.Transaction) error {
			return t.SubmitMilestone(milestoneID, entity.Actor{ID: actorID})
		})
}

// ApproveMilestone одобряет сданный этап.
func (s *EscrowService) ApproveMilestone(ctx context.Context, actorID, id, milestoneID uuid.UUID) (*entity.Transaction, error) {
	return s.transition(ctx, id, actorID, models.AuditMilestoneApproved, EventMilestoneApproved, map[string]any{"milestone_id": milestoneID},
		func(tx *sqlx.Tx, t *entity.Transaction) error {
			return t.ApproveMilestone(milestoneID, entity.Actor{ID: actorID})
		})
}

// ReleaseMilestone выплачивает одобренный этап продавцу. Статус сделки не
// меняется.
func (s *EscrowService) ReleaseMilestone(ctx context.Context, actorID, id, milestoneID uuid.UUID) (*entity.Transaction, error) {
	var prior string
	t, err := s.transactions.Locked(ctx, id, func(tx *sqlx.Tx, t *entity.Transaction) error {
		prior = string(t.Status)
		if err := s.requirePayoutReady(ctx, t.SellerID); err != nil {
			return err
		}
		account, err := s.onboarding.GetPayoutAccount(ctx, t.SellerID)
		if err != nil {
			return err
		}
		m, err := t.ReleaseMilestone(milestoneID, entity.Actor{ID: actorID})
		if err != nil {
			return err
		}
		if _, err := s.gateway.Payout(ctx, t.ID, &milestoneID, m.Amount, t.Amount.Currency, account.DestinationAccount, idempotencyKey(t.ID, &milestoneID, "milestone_release")); err != nil {
			return err
		}
		return s.audit.AddTx(ctx, tx, t.ID, &actorID, models.AuditMilestoneReleased, map[string]any{
			"milestone_id": milestoneID,
			"amount":       m.Amount,
		})
	})
	if err != nil {
		return nil, err
	}
	s.emit(EventMilestoneReleased, t, prior, &actorID, map[string]any{"milestone_id": milestoneID})
	return t, nil
}

// StartMilestone переводит этап в работу.
func (s *EscrowService) StartMilestone(ctx context.Context, actorID, id, milestoneID uuid.UUID) (*entity.Transaction, error) {
	return s.transactions.Locked(ctx, id, func(tx *sqlx.Tx, t *entity.Transaction) error {
		return t.StartMilestone(milestoneID, entity.Actor{ID: actorID})
	})
}

// UpdateMilestone правит этап до оплаты сделки.
func (s *EscrowService) UpdateMilestone(ctx context.Context, actorID, id, milestoneID uuid.UUID, title, description string, amount int64) (*entity.Transaction, error) {
	t, err := s.transactions.Locked(ctx, id, func(tx *sqlx.Tx, t *entity.Transaction) error {
		if err := t.UpdateMilestone(milestoneID, entity.Actor{ID: actorID}, title, description, amount); err != nil {
			return err
		}
		return s.audit.AddTx(ctx, tx, t.ID, &actorID, models.AuditMilestoneUpdated, map[string]any{
			"milestone_id": milestoneID,
			"amount":       amount,
		})
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// ToggleDeliverable переключает пункт чек-листа этапа.
func (s *EscrowService) ToggleDeliverable(ctx context.Context, actorID, id, milestoneID, deliverableID uuid.UUID) (*entity.Transaction, error) {
	return s.transactions.Locked(ctx, id, func(tx *sqlx.Tx, t *entity.Transaction) error {
		_, err := t.ToggleDeliverable(milestoneID, deliverableID, entity.Actor{ID: actorID})
		return err
	})
}

// AddMilestoneNote добавляет комментарий к этапу.
func (s *EscrowService) AddMilestoneNote(ctx context.Context, actorID, id, milestoneID uuid.UUID, content string) (*entity.Transaction, error) {
	return s.transactions.Locked(ctx, id, func(tx *sqlx.Tx, t *entity.Transaction) error {
		_, err := t.AddNote(milestoneID, entity.Actor{ID: actorID}, content)
		return err
	})
}

// AutoCompleteExpired завершает сданные сделки с истёкшим сроком проверки.
// Безопасен к повторным запускам: статус перечитывается под блокировкой, и
// сделка, уже завершённая или ушедшая в спор, пропускается.
func (s *EscrowService) AutoCompleteExpired(ctx context.Context, limit int) int {
	ids, err := s.transactions.ListExpiredDeliveries(ctx, limit)
	if err != nil {
		logger.Log.WithField("error", err.Error()).Error("escrow: не удалось получить просроченные сделки")
		return 0
	}

	completed := 0
	for _, id := range ids {
		t, err := s.transactions.GetByID(ctx, id)
		if err != nil || !t.InspectionExpired(time.Now()) {
			continue
		}
		if _, err := s.releaseAs(ctx, entity.SystemActor(), id, map[string]any{"auto_release": true}); err != nil {
			if apperror.IsCode(err, apperror.ErrCodeInvalidTransition) {
				// Состояние изменилось между выборкой и блокировкой.
				continue
			}
			logger.Log.WithFields(logrus.Fields{"transaction_id": id, "error": err.Error()}).
				Warn("escrow: авто-завершение не удалось")
			continue
		}
		completed++
	}
	return completed
}

// transition — общий каркас команды: блокировка, мутация, аудит, событие.
func (s *EscrowService) transition(ctx context.Context, id, actorID uuid.UUID, auditAction, eventName string, meta map[string]any, fn func(tx *sqlx.Tx, t *entity.Transaction) error) (*entity.Transaction, error) {
	var prior string
	t, err := s.transactions.Locked(ctx, id, func(tx *sqlx.Tx, t *entity.Transaction) error {
		prior = string(t.Status)
		if err := fn(tx, t); err != nil {
			return err
		}
		return s.audit.AddTx(ctx, tx, t.ID, &actorID, auditAction, meta)
	})
	if err != nil {
		return nil, err
	}
	s.emit(eventName, t, prior, &actorID, meta)
	return t, nil
}

func (s *EscrowService) requirePayoutReady(ctx context.Context, sellerID uuid.UUID) error {
	ready, err := s.onboarding.IsPayoutReady(ctx, sellerID)
	if err != nil {
		return err
	}
	if !ready {
		return apperror.New(apperror.ErrCodePayeeNotReady, "у продавца не подключён счёт для выплат")
	}
	return nil
}

func (s *EscrowService) emit(name string, t *entity.Transaction, prior string, actorID *uuid.UUID, payload map[string]any) {
	if s.events == nil {
		return
	}
	s.events.Emit(Event{
		Name:          name,
		TransactionID: t.ID,
		BuyerID:       t.BuyerID,
		SellerID:      t.SellerID,
		PriorStatus:   prior,
		NewStatus:     string(t.Status),
		ActorID:       actorID,
		OccurredAt:    time.Now(),
		Payload:       payload,
	})
}

// idempotencyKey строит детерминированный ключ по (сделка, этап, вид
// перехода): повтор той же команды переиспользует ключ, и шлюз не проводит
// платёж дважды.
func idempotencyKey(transactionID uuid.UUID, milestoneID *uuid.UUID, kind string) string {
	if milestoneID != nil {
		return fmt.Sprintf("%s:%s:%s", kind, transactionID, milestoneID)
	}
	return fmt.Sprintf("%s:%s", kind, transactionID)
}

func auditActor(actor entity.Actor) *uuid.UUID {
	if actor.System {
		return nil
	}
	id := actor.ID
	return &id
}
