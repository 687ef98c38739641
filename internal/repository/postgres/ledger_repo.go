package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/yourorg/finbook/internal/domain"
)

// LedgerRepo is append-only: there is deliberately no update or delete.
type LedgerRepo struct {
	db *sqlx.DB
}

func NewLedgerRepo(db *sqlx.DB) *LedgerRepo {
	return &LedgerRepo{db: db}
}

func (r *LedgerRepo) InsertTx(ctx context.Context, tx *sqlx.Tx, e *domain.LedgerEntry) error {
	query := `
		INSERT INTO ledger
			(user_id, transaction_id, side, asset_class, identifier,
			 quantity, purchase_price, sale_price, purchase_date, sale_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at`
	return tx.QueryRowContext(ctx, query,
		e.UserID, e.TransactionID, e.Side, e.AssetClass, e.Identifier,
		e.Quantity, e.PurchasePrice, e.SalePrice, e.PurchaseDate, e.SaleDate).
		Scan(&e.ID, &e.CreatedAt)
}

func (r *LedgerRepo) ListByUserID(ctx context.Context, userID uuid.UUID) ([]domain.LedgerEntry, error) {
	var entries []domain.LedgerEntry
	err := r.db.SelectContext(ctx, &entries,
		`SELECT * FROM ledger WHERE user_id = $1 ORDER BY id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list ledger: %w", err)
	}
	return entries, nil
}
