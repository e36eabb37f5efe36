package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/escrow-backend/internal/domain/entity"
	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-backend/internal/repository"
)

// DisputeStore описывает зависимости сервиса споров от хранилища.
type DisputeStore interface {
	CreateTx(ctx context.Context, tx *sqlx.Tx, d *models.Dispute) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error)
	GetOpenByTransactionID(ctx context.Context, transactionID uuid.UUID) (*models.Dispute, error)
	ResolveTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, resolution string, sellerAmount, buyerAmount *int64, resolvedBy uuid.UUID) (bool, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Dispute, error)
}

// IdentityProvider отвечает, имеет ли пользователь права платформы.
// Роль перечитывается из хранилища, клейм токена не используется.
type IdentityProvider interface {
	IsPlatformAdmin(ctx context.Context, id uuid.UUID) (bool, error)
}

// DisputeService поднимает и закрывает споры. Закрытие распределяет
// удержанные средства через платёжный шлюз и переводит сделку в
// терминальный статус под той же блокировкой.
type DisputeService struct {
	transactions TransactionStore
	disputes     DisputeStore
	audit        AuditStore
	gateway      PayoutGateway
	onboarding   OnboardingStatus
	identity     IdentityProvider
	events       EventEmitter
}

func NewDisputeService(transactions TransactionStore, disputes DisputeStore, audit AuditStore, gateway PayoutGateway, onboarding OnboardingStatus, identity IdentityProvider, events EventEmitter) *DisputeService {
	return &DisputeService{
		transactions: transactions,
		disputes:     disputes,
		audit:        audit,
		gateway:      gateway,
		onboarding:   onboarding,
		identity:     identity,
		events:       events,
	}
}

// Raise открывает спор по сделке. Средства остаются замороженными до
// решения платформы.
func (s *DisputeService) Raise(ctx context.Context, actorID, transactionID uuid.UUID, reason string) (*models.Dispute, error) {
	if reason == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "причина спора обязательна")
	}

	// Проверка до блокировки даёт осмысленный ответ вместо ошибки
	// уникального индекса. Гонку закрывает сам индекс.
	if _, err := s.disputes.GetOpenByTransactionID(ctx, transactionID); err == nil {
		return nil, apperror.New(apperror.ErrCodeConflict, "по сделке уже открыт спор")
	} else if !errors.Is(err, repository.ErrDisputeNotFound) {
		return nil, err
	}

	dispute := &models.Dispute{
		TransactionID: transactionID,
		RaisedBy:      actorID,
		Reason:        reason,
		Status:        models.DisputeStatusOpen,
	}

	var prior string
	t, err := s.transactions.Locked(ctx, transactionID, func(tx *sqlx.Tx, t *entity.Transaction) error {
		prior = string(t.Status)
		if err := t.RaiseDispute(entity.Actor{ID: actorID}); err != nil {
			return err
		}
		if err := s.disputes.CreateTx(ctx, tx, dispute); err != nil {
			return err
		}
		return s.audit.AddTx(ctx, tx, t.ID, &actorID, models.AuditDisputeRaised, map[string]any{
			"dispute_id": dispute.ID,
			"reason":     reason,
		})
	})
	if err != nil {
		return nil, err
	}

	s.emitDispute(EventDisputeRaised, t, prior, &actorID, dispute.ID, nil)
	return dispute, nil
}

// ResolveInput — решение платформы по спору. Для split суммы указываются
// явно и обязаны в сумме давать весь остаток на удержании.
type ResolveInput struct {
	Resolution   string
	SellerAmount *int64
}

// Resolve закрывает спор. Доступно только сотруднику платформы. release
// выплачивает продавцу весь остаток, refund возвращает его покупателю,
// split делит по заданным суммам. Повторное закрытие отклоняется.
func (s *DisputeService) Resolve(ctx context.Context, resolverID, disputeID uuid.UUID, in ResolveInput) (*models.Dispute, error) {
	admin, err := s.identity.IsPlatformAdmin(ctx, resolverID)
	if err != nil {
		return nil, err
	}
	if !admin {
		return nil, apperror.ErrForbidden
	}

	resolution := valueobject.DisputeResolution(in.Resolution)
	if !resolution.IsValid() {
		return nil, apperror.New(apperror.ErrCodeValidation, "решение должно быть release, refund или split")
	}

	dispute, err := s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if dispute.Status == models.DisputeStatusResolved {
		return nil, apperror.New(apperror.ErrCodeAlreadyResolved, "спор уже закрыт")
	}

	var prior string
	var sellerAmount, buyerAmount int64
	t, err := s.transactions.Locked(ctx, dispute.TransactionID, func(tx *sqlx.Tx, t *entity.Transaction) error {
		prior = string(t.Status)
		held := t.HeldBalance()

		switch resolution {
		case valueobject.DisputeResolutionRelease:
			sellerAmount, buyerAmount = held, 0
		case valueobject.DisputeResolutionRefund:
			sellerAmount, buyerAmount = 0, held
		case valueobject.DisputeResolutionSplit:
			if in.SellerAmount == nil {
				return apperror.New(apperror.ErrCodeValidation, "для split нужна сумма продавца")
			}
			sellerAmount = *in.SellerAmount
			if sellerAmount < 0 || sellerAmount > held {
				return apperror.New(apperror.ErrCodeOverRelease, "сумма продавца превышает удержанный остаток")
			}
			buyerAmount = held - sellerAmount
		}

		if err := t.ApplyResolution(resolution, sellerAmount); err != nil {
			return err
		}

		if sellerAmount > 0 {
			ready, err := s.onboarding.IsPayoutReady(ctx, t.SellerID)
			if err != nil {
				return err
			}
			if !ready {
				return apperror.New(apperror.ErrCodePayeeNotReady, "у продавца не подключён счёт для выплат")
			}
			account, err := s.onboarding.GetPayoutAccount(ctx, t.SellerID)
			if err != nil {
				return err
			}
			if _, err := s.gateway.Payout(ctx, t.ID, nil, sellerAmount, t.Amount.Currency, account.DestinationAccount, idempotencyKey(t.ID, nil, "dispute_payout")); err != nil {
				return err
			}
		}
		if buyerAmount > 0 {
			if _, err := s.gateway.Refund(ctx, t.ID, buyerAmount, t.Amount.Currency, idempotencyKey(t.ID, nil, "dispute_refund")); err != nil {
				return err
			}
		}

		resolved, err := s.disputes.ResolveTx(ctx, tx, disputeID, string(resolution), &sellerAmount, &buyerAmount, resolverID)
		if err != nil {
			return err
		}
		if !resolved {
			return apperror.New(apperror.ErrCodeAlreadyResolved, "спор уже закрыт")
		}

		if err := s.audit.AddTx(ctx, tx, t.ID, &resolverID, models.AuditDisputeResolved, map[string]any{
			"dispute_id":    disputeID,
			"resolution":    string(resolution),
			"seller_amount": sellerAmount,
			"buyer_amount":  buyerAmount,
		}); err != nil {
			return err
		}
		if resolution == valueobject.DisputeResolutionRefund {
			return s.audit.AddTx(ctx, tx, t.ID, &resolverID, models.AuditTransactionRefunded, map[string]any{"amount": buyerAmount})
		}
		return s.audit.AddTx(ctx, tx, t.ID, &resolverID, models.AuditTransactionCompleted, map[string]any{"released": sellerAmount})
	})
	if err != nil {
		return nil, err
	}

	s.emitDispute(EventDisputeResolved, t, prior, &resolverID, disputeID, map[string]any{
		"resolution":    string(resolution),
		"seller_amount": sellerAmount,
		"buyer_amount":  buyerAmount,
	})

	return s.disputes.GetByID(ctx, disputeID)
}

// Get возвращает спор стороне сделки или платформе.
func (s *DisputeService) Get(ctx context.Context, actorID, disputeID uuid.UUID) (*models.Dispute, error) {
	dispute, err := s.disputes.GetByID(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	t, err := s.transactions.GetByID(ctx, dispute.TransactionID)
	if err != nil {
		return nil, err
	}
	if !t.IsParticipant(actorID) {
		admin, err := s.identity.IsPlatformAdmin(ctx, actorID)
		if err != nil {
			return nil, err
		}
		if !admin {
			return nil, apperror.ErrForbidden
		}
	}
	return dispute, nil
}

// ListMine возвращает споры по сделкам пользователя.
func (s *DisputeService) ListMine(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Dispute, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.disputes.ListByUser(ctx, userID, limit, offset)
}

func (s *DisputeService) emitDispute(name string, t *entity.Transaction, prior string, actorID *uuid.UUID, disputeID uuid.UUID, payload map[string]any) {
	if s.events == nil {
		return
	}
	if payload == nil {
		payload = map[string]any{}
	}
	payload["dispute_id"] = disputeID
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
