package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/yourorg/finbook/internal/domain"
	"github.com/yourorg/finbook/internal/settlement"
)

// Compile-time check: *Store must satisfy the settlement unit of work.
var _ settlement.Store = (*Store)(nil)

// Store composes the repos into the settlement unit of work. Each InTx call
// is one database transaction; the row locks taken inside serialize
// concurrent settlements per user.
type Store struct {
	db        *sqlx.DB
	users     *UserRepo
	positions *PositionRepo
	ledger    *LedgerRepo
}

func NewStore(db *sqlx.DB, users *UserRepo, positions *PositionRepo, ledger *LedgerRepo) *Store {
	return &Store{db: db, users: users, positions: positions, ledger: ledger}
}

func (s *Store) InTx(ctx context.Context, fn func(tx settlement.Tx) error) error {
	dbTx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	if err := fn(&storeTx{store: s, tx: dbTx}); err != nil {
		return err
	}
	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	return s.users.GetByID(ctx, userID)
}

func (s *Store) GetPosition(ctx context.Context, userID, positionID uuid.UUID) (*domain.Position, error) {
	return s.positions.GetByID(ctx, userID, positionID)
}

func (s *Store) ListPositions(ctx context.Context, userID uuid.UUID) ([]domain.Position, error) {
	return s.positions.ListByUserID(ctx, userID)
}

func (s *Store) ListLedger(ctx context.Context, userID uuid.UUID) ([]domain.LedgerEntry, error) {
	return s.ledger.ListByUserID(ctx, userID)
}

func (s *Store) SaveMark(ctx context.Context, positionID uuid.UUID, price float64, at time.Time) error {
	return s.positions.UpdateMark(ctx, positionID, price, at)
}

type storeTx struct {
	store *Store
	tx    *sqlx.Tx
}

var _ settlement.Tx = (*storeTx)(nil)

func (t *storeTx) UserForUpdate(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	return t.store.users.GetForUpdateTx(ctx, t.tx, userID)
}

func (t *storeTx) SetCashBalance(ctx context.Context, userID uuid.UUID, balance float64) error {
	return t.store.users.SetCashBalanceTx(ctx, t.tx, userID, balance)
}

func (t *storeTx) InsertPosition(ctx context.Context, p *domain.Position) error {
	return t.store.positions.InsertTx(ctx, t.tx, p)
}

func (t *storeTx) PositionForUpdate(ctx context.Context, userID, positionID uuid.UUID) (*domain.Position, error) {
	return t.store.positions.GetForUpdateTx(ctx, t.tx, userID, positionID)
}

func (t *storeTx) UpdatePosition(ctx context.Context, p *domain.Position) error {
	return t.store.positions.UpdateTx(ctx, t.tx, p)
}

func (t *storeTx) DeletePosition(ctx context.Context, positionID uuid.UUID) error {
	return t.store.positions.DeleteTx(ctx, t.tx, positionID)
}

func (t *storeTx) InsertLedgerEntry(ctx context.Context, e *domain.LedgerEntry) error {
	return t.store.ledger.InsertTx(ctx, t.tx, e)
}
