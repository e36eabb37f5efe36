package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/escrow-backend/internal/domain/entity"
	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-backend/internal/models"
)

// Ошибки уровня репозитория.
var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrVersionConflict     = errors.New("transaction version conflict")
)

// TransactionRepository отвечает за агрегат сделки: саму сделку, её этапы,
// чек-листы и комментарии. Сделка — единица сериализации: команды по одному
// id выполняются под блокировкой строки, по разным id идут параллельно.
type TransactionRepository struct {
	db *sqlx.DB
}

func NewTransactionRepository(db *sqlx.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create сохраняет новый агрегат целиком в одной транзакции.
func (r *TransactionRepository) Create(ctx context.Context, t *entity.Transaction) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("transaction repository: begin %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO transactions (id, buyer_id, seller_id, initiator_id, title, description, amount, released_amount, currency, status, inspection_period_days, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, t.ID, t.BuyerID, t.SellerID, t.InitiatorID, t.Title, t.Description,
		t.Amount.Amount, t.ReleasedAmount, t.Amount.Currency, t.Status,
		t.InspectionPeriodDays, t.Version, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("transaction repository: insert transaction %w", err)
	}

	for _, m := range t.Milestones {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO milestones (id, transaction_id, title, description, amount, status, position, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, m.ID, t.ID, m.Title, m.Description, m.Amount, m.Status, m.Position, m.CreatedAt, m.UpdatedAt)
		if err != nil {
			return fmt.Errorf("transaction repository: insert milestone %w", err)
		}
		for _, d := range m.Deliverables {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO deliverables (id, milestone_id, title, completed, created_at)
				VALUES ($1, $2, $3, $4, $5)
			`, d.ID, m.ID, d.Title, d.Completed, d.CreatedAt)
			if err != nil {
				return fmt.Errorf("transaction repository: insert deliverable %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("transaction repository: commit %w", err)
	}
	return nil
}

// GetByID возвращает агрегат без блокировки (только чтение).
func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Transaction, error) {
	var row models.Transaction
	query := `
		SELECT id, buyer_id, seller_id, initiator_id, title, description, amount, released_amount, currency, status,
		       inspection_period_days, version, funded_at, delivered_at, closed_at, created_at, updated_at
		FROM transactions
		WHERE id = $1
	`
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("transaction repository: get by id %w", err)
	}
	return r.loadAggregate(ctx, r.db, &row)
}

// ListByParticipant возвращает сделки, где пользователь выступает любой из
// сторон, в порядке убывания даты создания.
func (r *TransactionRepository) ListByParticipant(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Transaction, error) {
	var rows []models.Transaction
	query := `
		SELECT id, buyer_id, seller_id, initiator_id, title, description, amount, released_amount, currency, status,
		       inspection_period_days, version, funded_at, delivered_at, closed_at, created_at, updated_at
		FROM transactions
		WHERE buyer_id = $1 OR seller_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	if err := r.db.SelectContext(ctx, &rows, query, userID, limit, offset); err != nil {
		return nil, fmt.Errorf("transaction repository: list by participant %w", err)
	}
	return rows, nil
}

// ListExpiredDeliveries возвращает идентификаторы сданных сделок, срок
// проверки которых истёк. Используется планировщиком авто-завершения.
func (r *TransactionRepository) ListExpiredDeliveries(ctx context.Context, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	query := `
		SELECT id
		FROM transactions
		WHERE status = 'delivered'
		  AND delivered_at + (inspection_period_days || ' days')::interval <= NOW()
		ORDER BY delivered_at
		LIMIT $1
	`
	if err := r.db.SelectContext(ctx, &ids, query, limit); err != nil {
		return nil, fmt.Errorf("transaction repository: list expired deliveries %w", err)
	}
	return ids, nil
}

// Locked выполняет команду под блокировкой строки сделки. Агрегат читается
// с FOR UPDATE, мутируется в fn и сохраняется в той же транзакции базы —
// либо всё, либо ничего. Два одновременных вызова по одному id
// линеаризуются на уровне Postgres.
func (r *TransactionRepository) Locked(ctx context.Context, id uuid.UUID, fn func(tx *sqlx.Tx, t *entity.Transaction) error) (*entity.Transaction, error) {
	dbTx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("transaction repository: begin %w", err)
	}
	defer dbTx.Rollback()

	var row models.Transaction
	query := `
		SELECT id, buyer_id, seller_id, initiator_id, title, description, amount, released_amount, currency, status,
		       inspection_period_days, version, funded_at, delivered_at, closed_at, created_at, updated_at
		FROM transactions
		WHERE id = $1
		FOR UPDATE
	`
	if err := dbTx.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("transaction repository: lock %w", err)
	}

	t, err := r.loadAggregate(ctx, dbTx, &row)
	if err != nil {
		return nil, err
	}

	if err := fn(dbTx, t); err != nil {
		return nil, err
	}

	if err := r.persist(ctx, dbTx, t, row.Version); err != nil {
		return nil, err
	}

	if err := dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("transaction repository: commit %w", err)
	}
	t.Version = row.Version + 1
	return t, nil
}

// persist записывает изменённый агрегат обратно. Проверка версии —
// страховка поверх блокировки строки.
func (r *TransactionRepository) persist(ctx context.Context, tx *sqlx.Tx, t *entity.Transaction, prevVersion int64) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE transactions
		SET status = $1, released_amount = $2, funded_at = $3, delivered_at = $4, closed_at = $5,
		    updated_at = $6, version = version + 1
		WHERE id = $7 AND version = $8
	`, t.Status, t.ReleasedAmount, t.FundedAt, t.DeliveredAt, t.ClosedAt, t.UpdatedAt, t.ID, prevVersion)
	if err != nil {
		return fmt.Errorf("transaction repository: update transaction %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transaction repository: rows affected %w", err)
	}
	if affected == 0 {
		return ErrVersionConflict
	}

	for _, m := range t.Milestones {
		_, err = tx.ExecContext(ctx, `
			UPDATE milestones
			SET title = $1, description = $2, amount = $3, status = $4, submitted_at = $5, released_at = $6, updated_at = $7
			WHERE id = $8 AND transaction_id = $9
		`, m.Title, m.Description, m.Amount, m.Status, m.SubmittedAt, m.ReleasedAt, m.UpdatedAt, m.ID, t.ID)
		if err != nil {
			return fmt.Errorf("transaction repository: update milestone %w", err)
		}
		for _, d := range m.Deliverables {
			_, err = tx.ExecContext(ctx, `
				UPDATE deliverables SET completed = $1 WHERE id = $2 AND milestone_id = $3
			`, d.Completed, d.ID, m.ID)
			if err != nil {
				return fmt.Errorf("transaction repository: update deliverable %w", err)
			}
		}
		for _, n := range m.Notes {
			// Комментарии только добавляются; повторная вставка уже
			// сохранённых гасится по первичному ключу.
			_, err = tx.ExecContext(ctx, `
				INSERT INTO milestone_notes (id, milestone_id, author_id, content, created_at)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (id) DO NOTHING
			`, n.ID, m.ID, n.AuthorID, n.Content, n.CreatedAt)
			if err != nil {
				return fmt.Errorf("transaction repository: insert note %w", err)
			}
		}
	}
	return nil
}

// loadAggregate достраивает сделку этапами, чек-листами и комментариями.
func (r *TransactionRepository) loadAggregate(ctx context.Context, q sqlx.QueryerContext, row *models.Transaction) (*entity.Transaction, error) {
	var milestones []models.Milestone
	query := `
		SELECT id, transaction_id, title, description, amount, status, position, submitted_at, released_at, created_at, updated_at
		FROM milestones
		WHERE transaction_id = $1
		ORDER BY position
	`
	if err := sqlx.SelectContext(ctx, q, &milestones, query, row.ID); err != nil {
		return nil, fmt.Errorf("transaction repository: load milestones %w", err)
	}

	t := toEntity(row)
	for i := range milestones {
		m := &milestones[i]
		em := &entity.Milestone{
			ID:          m.ID,
			Title:       m.Title,
			Description: m.Description,
			Amount:      m.Amount,
			Status:      valueobject.MilestoneStatus(m.Status),
			Position:    m.Position,
			SubmittedAt: m.SubmittedAt,
			ReleasedAt:  m.ReleasedAt,
			CreatedAt:   m.CreatedAt,
			UpdatedAt:   m.UpdatedAt,
		}

		var deliverables []models.Deliverable
		if err := sqlx.SelectContext(ctx, q, &deliverables, `
			SELECT id, milestone_id, title, completed, created_at
			FROM deliverables WHERE milestone_id = $1 ORDER BY created_at
		`, m.ID); err != nil {
			return nil, fmt.Errorf("transaction repository: load deliverables %w", err)
		}
		for j := range deliverables {
			d := &deliverables[j]
			em.Deliverables = append(em.Deliverables, &entity.Deliverable{
				ID:        d.ID,
				Title:     d.Title,
				Completed: d.Completed,
				CreatedAt: d.CreatedAt,
			})
		}

		var notes []models.MilestoneNote
		if err := sqlx.SelectContext(ctx, q, &notes, `
			SELECT id, milestone_id, author_id, content, created_at
			FROM milestone_notes WHERE milestone_id = $1 ORDER BY created_at
		`, m.ID); err != nil {
			return nil, fmt.Errorf("transaction repository: load notes %w", err)
		}
		for j := range notes {
			n := &notes[j]
			em.Notes = append(em.Notes, &entity.Note{
				ID:        n.ID,
				AuthorID:  n.AuthorID,
				Content:   n.Content,
				CreatedAt: n.CreatedAt,
			})
		}

		t.Milestones = append(t.Milestones, em)
	}
	return t, nil
}

func toEntity(row *models.Transaction) *entity.Transaction {
	return &entity.Transaction{
		ID:                   row.ID,
		BuyerID:              row.BuyerID,
		SellerID:             row.SellerID,
		InitiatorID:          row.InitiatorID,
		Title:                row.Title,
		Description:          row.Description,
		Amount:               valueobject.Money{Amount: row.Amount, Currency: row.Currency},
		ReleasedAmount:       row.ReleasedAmount,
		Status:               valueobject.TransactionStatus(row.Status),
		InspectionPeriodDays: row.InspectionPeriodDays,
		Version:              row.Version,
		FundedAt:             row.FundedAt,
		DeliveredAt:          row.DeliveredAt,
		ClosedAt:             row.ClosedAt,
		CreatedAt:            row.CreatedAt,
		UpdatedAt:            row.UpdatedAt,
	}
}
