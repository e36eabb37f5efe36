package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/escrow-backend/internal/domain/entity"
	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-backend/internal/repository"
)

type memDisputeStore struct {
	mu    sync.Mutex
	items map[uuid.UUID]*models.Dispute
}

func newMemDisputeStore() *memDisputeStore {
	return &memDisputeStore{items: make(map[uuid.UUID]*models.Dispute)}
}

func (s *memDisputeStore) CreateTx(ctx context.Context, tx *sqlx.Tx, d *models.Dispute) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.items {
		if existing.TransactionID == d.TransactionID && existing.Status != models.DisputeStatusResolved {
			return apperror.New(apperror.ErrCodeConflict, "по сделке уже открыт спор")
		}
	}
	d.ID = uuid.New()
	d.CreatedAt = time.Now()
	copied := *d
	s.items[d.ID] = &copied
	return nil
}

func (s *memDisputeStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.items[id]
	if !ok {
		return nil, apperror.ErrDisputeNotFound
	}
	copied := *d
	return &copied, nil
}

func (s *memDisputeStore) GetOpenByTransactionID(ctx context.Context, transactionID uuid.UUID) (*models.Dispute, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.items {
		if d.TransactionID == transactionID && d.Status != models.DisputeStatusResolved {
			copied := *d
			return &copied, nil
		}
	}
	return nil, repository.ErrDisputeNotFound
}

func (s *memDisputeStore) ResolveTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, resolution string, sellerAmount, buyerAmount *int64, resolvedBy uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.items[id]
	if !ok {
		return false, apperror.ErrDisputeNotFound
	}
	if d.Status == models.DisputeStatusResolved {
		return false, nil
	}
	now := time.Now()
	d.Status = models.DisputeStatusResolved
	d.Resolution = &resolution
	d.SellerAmount = sellerAmount
	d.BuyerAmount = buyerAmount
	d.ResolvedBy = &resolvedBy
	d.ResolvedAt = &now
	return true, nil
}

func (s *memDisputeStore) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Dispute, error) {
	return nil, nil
}

type mockIdentity struct {
	admins map[uuid.UUID]bool
}

func (m *mockIdentity) IsPlatformAdmin(ctx context.Context, id uuid.UUID) (bool, error) {
	return m.admins[id], nil
}

type disputeFixture struct {
	service    *DisputeService
	store      *memTransactionStore
	disputes   *memDisputeStore
	gateway    *mockGateway
	audit      *mockAudit
	onboarding *mockOnboarding
	identity   *mockIdentity
	emitter    *mockEmitter
	adminID    uuid.UUID
}

func newDisputeFixture(sellerID uuid.UUID) *disputeFixture {
	store := newMemTransactionStore()
	disputes := newMemDisputeStore()
	gateway := &mockGateway{}
	audit := &mockAudit{}
	onboarding := &mockOnboarding{
		ready: true,
		accounts: map[uuid.UUID]*models.PayoutAccount{
			sellerID: {UserID: sellerID, DestinationAccount: "acct_seller"},
		},
	}
	adminID := uuid.New()
	identity := &mockIdentity{admins: map[uuid.UUID]bool{adminID: true}}
	emitter := &mockEmitter{}
	return &disputeFixture{
		service:    NewDisputeService(store, disputes, audit, gateway, onboarding, identity, emitter),
		store:      store,
		disputes:   disputes,
		gateway:    gateway,
		audit:      audit,
		onboarding: onboarding,
		identity:   identity,
		emitter:    emitter,
		adminID:    adminID,
	}
}

func seedDisputedTransaction(t *testing.T, f *disputeFixture, buyerID, sellerID uuid.UUID) (*entity.Transaction, *models.Dispute) {
	t.Helper()
	amount, err := valueobject.NewMoney(10000, "RUB")
	require.NoError(t, err)
	tr, err := entity.NewTransaction(buyerID, sellerID, buyerID, "Разработка сайта", "", amount, 3, nil)
	require.NoError(t, err)
	require.NoError(t, tr.Accept(entity.Actor{ID: sellerID}))
	require.NoError(t, tr.Fund(entity.Actor{ID: buyerID}))
	f.store.put(tr)

	dispute, err := f.service.Raise(context.Background(), buyerID, tr.ID, "работа не соответствует ТЗ")
	require.NoError(t, err)
	return tr, dispute
}

func TestDisputeRaise(t *testing.T) {
	buyerID := uuid.New()
	sellerID := uuid.New()
	f := newDisputeFixture(sellerID)

	tr, dispute := seedDisputedTransaction(t, f, buyerID, sellerID)

	assert.Equal(t, models.DisputeStatusOpen, dispute.Status)
	assert.Equal(t, buyerID, dispute.RaisedBy)
	assert.NotEqual(t, uuid.Nil, dispute.ID)

	stored, err := f.store.GetByID(context.Background(), tr.ID)
	require.NoError(t, err)
	assert.Equal(t, valueobject.TransactionStatusDisputed, stored.Status)
	// Спор замораживает средства, но не двигает их.
	assert.Equal(t, int64(10000), stored.HeldBalance())
	assert.Empty(t, f.gateway.calls)

	require.Len(t, f.emitter.events, 1)
	assert.Equal(t, EventDisputeRaised, f.emitter.events[0].Name)
	assert.Equal(t, dispute.ID, f.emitter.events[0].Payload["dispute_id"])
	assert.Contains(t, f.audit.actions(), models.AuditDisputeRaised)
}

func TestDisputeRaiseRequiresHeldFunds(t *testing.T) {
	buyerID := uuid.New()
	sellerID := uuid.New()
	f := newDisputeFixture(sellerID)
	ctx := context.Background()

	amount, _ := valueobject.NewMoney(10000, "RUB")
	tr, err := entity.NewTransaction(buyerID, sellerID, buyerID, "Разработка сайта", "", amount, 3, nil)
	require.NoError(t, err)
	f.store.put(tr)

	_, err = f.service.Raise(ctx, buyerID, tr.ID, "передумал")
	assert.True(t, apperror.IsCode(err, apperror.ErrCodeInvalidTransition), "спор по pending: %v", err)
	assert.Empty(t, f.disputes.items, "спор не должен сохраняться при откате")

	_, err = f.service.Raise(ctx, buyerID, tr.ID, "")
	assert.True(t, apperror.IsValidation(err), "пустая причина: %v", err)
}

func TestDisputeRaiseSecondOpenRejected(t *testing.T) {
	buyerID := uuid.New()
	sellerID := uuid.New()
	f := newDisputeFixture(sellerID)

	tr, _ := seedDisputedTransaction(t, f, buyerID, sellerID)

	// Пока спор не закрыт, новый по той же сделке не открывается.
	_, err := f.service.Raise(context.Background(), sellerID, tr.ID, "встречная претензия")
	assert.True(t, apperror.IsCode(err, apperror.ErrCodeConflict), "повторный спор: %v", err)
	assert.Len(t, f.disputes.items, 1, "второй спор не должен сохраняться")
	assert.Len(t, f.emitter.events, 1)
}

func TestDisputeResolveRequiresPlatform(t *testing.T) {
	buyerID := uuid.New()
	sellerID := uuid.New()
	f := newDisputeFixture(sellerID)

	_, dispute := seedDisputedTransaction(t, f, buyerID, sellerID)

	// Роль перечитывается из хранилища: сторона сделки спор не закрывает.
	_, err := f.service.Resolve(context.Background(), buyerID, dispute.ID, ResolveInput{Resolution: "refund"})
	assert.True(t, apperror.IsForbidden(err), "ожидали FORBIDDEN: %v", err)
}

func TestDisputeResolveSplit(t *testing.T) {
	buyerID := uuid.New()
	sellerID := uuid.New()
	f := newDisputeFixture(sellerID)
	ctx := context.Background()

	tr, dispute := seedDisputedTransaction(t, f, buyerID, sellerID)

	sellerAmount := int64(3000)
	resolved, err := f.service.Resolve(ctx, f.adminID, dispute.ID, ResolveInput{
		Resolution:   "split",
		SellerAmount: &sellerAmount,
	})
	require.NoError(t, err)

	assert.Equal(t, models.DisputeStatusResolved, resolved.Status)
	require.NotNil(t, resolved.SellerAmount)
	require.NotNil(t, resolved.BuyerAmount)
	assert.Equal(t, int64(3000), *resolved.SellerAmount)
	assert.Equal(t, int64(7000), *resolved.BuyerAmount)
	require.NotNil(t, resolved.ResolvedBy)
	assert.Equal(t, f.adminID, *resolved.ResolvedBy)

	payouts := f.gateway.byKind("payout")
	require.Len(t, payouts, 1)
	assert.Equal(t, int64(3000), payouts[0].amount)
	refunds := f.gateway.byKind("refund")
	require.Len(t, refunds, 1)
	assert.Equal(t, int64(7000), refunds[0].amount)

	stored, err := f.store.GetByID(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, valueobject.TransactionStatusCompleted, stored.Status)
	assert.Equal(t, int64(3000), stored.ReleasedBalance())

	assert.Contains(t, f.audit.actions(), models.AuditDisputeResolved)
}

func TestDisputeResolveRefund(t *testing.T) {
	buyerID := uuid.New()
	sellerID := uuid.New()
	f := newDisputeFixture(sellerID)
	ctx := context.Background()

	tr, dispute := seedDisputedTransaction(t, f, buyerID, sellerID)

	resolved, err := f.service.Resolve(ctx, f.adminID, dispute.ID, ResolveInput{Resolution: "refund"})
	require.NoError(t, err)
	assert.Equal(t, models.DisputeStatusResolved, resolved.Status)

	assert.Empty(t, f.gateway.byKind("payout"))
	refunds := f.gateway.byKind("refund")
	require.Len(t, refunds, 1)
	assert.Equal(t, int64(10000), refunds[0].amount)

	stored, err := f.store.GetByID(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, valueobject.TransactionStatusRefunded, stored.Status)

	assert.Contains(t, f.audit.actions(), models.AuditTransactionRefunded)
}

func TestDisputeResolveValidation(t *testing.T) {
	buyerID := uuid.New()
	sellerID := uuid.New()
	f := newDisputeFixture(sellerID)
	ctx := context.Background()

	_, dispute := seedDisputedTransaction(t, f, buyerID, sellerID)

	_, err := f.service.Resolve(ctx, f.adminID, dispute.ID, ResolveInput{Resolution: "partial"})
	assert.True(t, apperror.IsValidation(err), "неизвестное решение: %v", err)

	_, err = f.service.Resolve(ctx, f.adminID, dispute.ID, ResolveInput{Resolution: "split"})
	assert.True(t, apperror.IsValidation(err), "split без суммы: %v", err)

	over := int64(10001)
	_, err = f.service.Resolve(ctx, f.adminID, dispute.ID, ResolveInput{Resolution: "split", SellerAmount: &over})
	assert.True(t, apperror.IsCode(err, apperror.ErrCodeOverRelease), "split сверх остатка: %v", err)
}

func TestDisputeResolveAlreadyResolved(t *testing.T) {
	buyerID := uuid.New()
	sellerID := uuid.New()
	f := newDisputeFixture(sellerID)
	ctx := context.Background()

	_, dispute := seedDisputedTransaction(t, f, buyerID, sellerID)

	_, err := f.service.Resolve(ctx, f.adminID, dispute.ID, ResolveInput{Resolution: "refund"})
	require.NoError(t, err)

	_, err = f.service.Resolve(ctx, f.adminID, dispute.ID, ResolveInput{Resolution: "release"})
	assert.True(t, apperror.IsCode(err, apperror.ErrCodeAlreadyResolved), "повторное закрытие: %v", err)
	// Деньги двигались только при первом закрытии.
	assert.Len(t, f.gateway.byKind("refund"), 1)
	assert.Empty(t, f.gateway.byKind("payout"))
}

func TestDisputeResolveGatewayFailureKeepsDispute(t *testing.T) {
	buyerID := uuid.New()
	sellerID := uuid.New()
	f := newDisputeFixture(sellerID)
	ctx := context.Background()

	tr, dispute := seedDisputedTransaction(t, f, buyerID, sellerID)
	f.gateway.failRefund = apperror.New(apperror.ErrCodeGatewayFailure, "шлюз недоступен")

	_, err := f.service.Resolve(ctx, f.adminID, dispute.ID, ResolveInput{Resolution: "refund"})
	assert.True(t, apperror.IsCode(err, apperror.ErrCodeGatewayFailure), "ожидали GATEWAY_FAILURE: %v", err)

	// Сбой шлюза откатывает всё: сделка в споре, спор открыт.
	stored, err := f.store.GetByID(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, valueobject.TransactionStatusDisputed, stored.Status)

	kept, err := f.disputes.GetByID(ctx, dispute.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DisputeStatusOpen, kept.Status)
}

func TestDisputeGetAccess(t *testing.T) {
	buyerID := uuid.New()
	sellerID := uuid.New()
	f := newDisputeFixture(sellerID)
	ctx := context.Background()

	_, dispute := seedDisputedTransaction(t, f, buyerID, sellerID)

	_, err := f.service.Get(ctx, sellerID, dispute.ID)
	require.NoError(t, err)

	_, err = f.service.Get(ctx, f.adminID, dispute.ID)
	require.NoError(t, err)

	_, err = f.service.Get(ctx, uuid.New(), dispute.ID)
	assert.True(t, apperror.IsForbidden(err), "посторонний: %v", err)
}
