package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/yourorg/finbook/internal/domain"
)

type PositionRepo struct {
	db *sqlx.DB
}

func NewPositionRepo(db *sqlx.DB) *PositionRepo {
	return &PositionRepo{db: db}
}

func (r *PositionRepo) ListByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Position, error) {
	var positions []domain.Position
	err := r.db.SelectContext(ctx, &positions,
		`SELECT * FROM positions WHERE user_id = $1 ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	return positions, nil
}

// GetByID is owner-scoped; a foreign or missing position is reported the
// same way.
func (r *PositionRepo) GetByID(ctx context.Context, userID, id uuid.UUID) (*domain.Position, error) {
	var p domain.Position
	err := r.db.GetContext(ctx, &p,
		`SELECT * FROM positions WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get position: %w", err)
	}
	return &p, nil
}

// UpdateMark persists a refreshed current price. Runs outside settlement
// transactions; losing the write only costs mark freshness.
func (r *PositionRepo) UpdateMark(ctx context.Context, id uuid.UUID, price float64, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE positions SET current_price = $1, updated_at = $2 WHERE id = $3`,
		price, at, id)
	return err
}

func (r *PositionRepo) ListOpenAssets(ctx context.Context) ([]domain.AssetRef, error) {
	var assets []domain.AssetRef
	err := r.db.SelectContext(ctx, &assets,
		`SELECT DISTINCT asset_class, identifier FROM positions`)
	if err != nil {
		return nil, fmt.Errorf("list open assets: %w", err)
	}
	return assets, nil
}

func (r *PositionRepo) InsertTx(ctx context.Context, tx *sqlx.Tx, p *domain.Position) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO positions
			(id, user_id, transaction_id, title, asset_class, identifier,
			 quantity, purchase_price, current_price, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		p.ID, p.UserID, p.TransactionID, p.Title, p.AssetClass, p.Identifier,
		p.Quantity, p.PurchasePrice, p.CurrentPrice, p.CreatedAt, p.UpdatedAt)
	return err
}

func (r *PositionRepo) GetForUpdateTx(ctx context.Context, tx *sqlx.Tx, userID, id uuid.UUID) (*domain.Position, error) {
	var p domain.Position
	err := tx.GetContext(ctx, &p,
		`SELECT * FROM positions WHERE id = $1 AND user_id = $2 FOR UPDATE`, id, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("lock position: %w", err)
	}
	return &p, nil
}

func (r *PositionRepo) UpdateTx(ctx context.Context, tx *sqlx.Tx, p *domain.Position) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE positions
		SET title = $1, quantity = $2, current_price = $3,
		    sale_price = $4, sale_date = $5, updated_at = $6
		WHERE id = $7`,
		p.Title, p.Quantity, p.CurrentPrice, p.SalePrice, p.SaleDate, p.UpdatedAt, p.ID)
	return err
}

func (r *PositionRepo) DeleteTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM positions WHERE id = $1`, id)
	return err
}
