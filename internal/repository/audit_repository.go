package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/escrow-backend/internal/models"
)

// AuditRepository пишет журнал аудита. Таблица только пополняется: никаких
// UPDATE и DELETE, порядок задаёт последовательность seq, а не часы.
type AuditRepository struct {
	db *sqlx.DB
}

func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Add добавляет запись вне внешней транзакции.
func (r *AuditRepository) Add(ctx context.Context, transactionID uuid.UUID, actorID *uuid.UUID, action string, metadata interface{}) error {
	return add(ctx, r.db, transactionID, actorID, action, metadata)
}

// AddTx добавляет запись в рамках транзакции команды, чтобы аудит
// фиксировался атомарно вместе с переходом.
func (r *AuditRepository) AddTx(ctx context.Context, tx *sqlx.Tx, transactionID uuid.UUID, actorID *uuid.UUID, action string, metadata interface{}) error {
	return add(ctx, tx, transactionID, actorID, action, metadata)
}

func add(ctx context.Context, e sqlx.ExecerContext, transactionID uuid.UUID, actorID *uuid.UUID, action string, metadata interface{}) error {
	var meta []byte
	if metadata != nil {
		var err error
		meta, err = json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("audit repository: marshal metadata %w", err)
		}
	}
	_, err := e.ExecContext(ctx, `
		INSERT INTO audit_records (transaction_id, actor_id, action, metadata)
		VALUES ($1, $2, $3, $4)
	`, transactionID, actorID, action, meta)
	if err != nil {
		return fmt.Errorf("audit repository: add %w", err)
	}
	return nil
}

// ListByTransaction возвращает историю сделки в порядке возникновения.
func (r *AuditRepository) ListByTransaction(ctx context.Context, transactionID uuid.UUID) ([]models.AuditRecord, error) {
	var records []models.AuditRecord
	err := r.db.SelectContext(ctx, &records, `
		SELECT id, seq, transaction_id, actor_id, action, metadata, created_at
		FROM audit_records
		WHERE transaction_id = $1
		ORDER BY seq ASC
	`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("audit repository: list %w", err)
	}
	return records, nil
}
