package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/yourorg/finbook/internal/domain"
)

// UserRepo holds user identity and the cash balance. The balance column is
// the single scalar every settlement locks with FOR UPDATE.
type UserRepo struct {
	db *sqlx.DB
}

func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	query := `
		INSERT INTO users (id, email, name, password_hash, cash_balance)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`
	return r.db.QueryRowContext(ctx, query, u.ID, u.Email, u.Name, u.PasswordHash, u.CashBalance).
		Scan(&u.CreatedAt, &u.UpdatedAt)
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	var u domain.User
	err := r.db.GetContext(ctx, &u, `SELECT * FROM users WHERE email = $1`, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return &u, nil
}

func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	var u domain.User
	err := r.db.GetContext(ctx, &u, `SELECT * FROM users WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (r *UserRepo) UpdateProfile(ctx context.Context, id uuid.UUID, name, passwordHash string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET name = $1, password_hash = $2, updated_at = NOW() WHERE id = $3`,
		name, passwordHash, id)
	return err
}

func (r *UserRepo) GetForUpdateTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*domain.User, error) {
	var u domain.User
	err := tx.GetContext(ctx, &u, `SELECT * FROM users WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("lock user: %w", err)
	}
	return &u, nil
}

func (r *UserRepo) SetCashBalanceTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, balance float64) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE users SET cash_balance = $1, updated_at = NOW() WHERE id = $2`,
		balance, id)
	return err
}
