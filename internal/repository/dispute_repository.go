package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/escrow-backend/internal/models"
)

var ErrDisputeNotFound = errors.New("dispute not found")

type DisputeRepository struct {
	db *sqlx.DB
}

func NewDisputeRepository(db *sqlx.DB) *DisputeRepository {
	return &DisputeRepository{db: db}
}

// CreateTx открывает спор в транзакции команды, вместе с переводом сделки
// в статус disputed.
func (r *DisputeRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, d *models.Dispute) error {
	query := `
		INSERT INTO disputes (transaction_id, raised_by, reason, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	return tx.QueryRowContext(ctx, query, d.TransactionID, d.RaisedBy, d.Reason, d.Status).
		Scan(&d.ID, &d.CreatedAt)
}

func (r *DisputeRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	var d models.Dispute
	err := r.db.GetContext(ctx, &d, `SELECT * FROM disputes WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDisputeNotFound
	}
	return &d, err
}

// GetOpenByTransactionID возвращает незакрытый спор по сделке.
func (r *DisputeRepository) GetOpenByTransactionID(ctx context.Context, transactionID uuid.UUID) (*models.Dispute, error) {
	var d models.Dispute
	err := r.db.GetContext(ctx, &d, `
		SELECT * FROM disputes WHERE transaction_id = $1 AND status <> 'resolved'
	`, transactionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDisputeNotFound
	}
	return &d, err
}

// ResolveTx закрывает спор в транзакции команды. Закрытый спор неизменяем:
// условие status <> 'resolved' делает повторное закрытие невозможным.
func (r *DisputeRepository) ResolveTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, resolution string, sellerAmount, buyerAmount *int64, resolvedBy uuid.UUID) (bool, error) {
	now := time.Now()
	res, err := tx.ExecContext(ctx, `
		UPDATE disputes
		SET status = 'resolved', resolution = $2, seller_amount = $3, buyer_amount = $4, resolved_by = $5, resolved_at = $6
		WHERE id = $1 AND status <> 'resolved'
	`, id, resolution, sellerAmount, buyerAmount, resolvedBy, now)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *DisputeRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Dispute, error) {
	var disputes []models.Dispute
	err := r.db.SelectContext(ctx, &disputes, `
		SELECT d.* FROM disputes d
		JOIN transactions t ON d.transaction_id = t.id
		WHERE t.buyer_id = $1 OR t.seller_id = $1
		ORDER BY d.created_at DESC LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	return disputes, err
}
