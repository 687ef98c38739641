package settlement

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/yourorg/finbook/internal/domain"
)

// Tx is the write surface available inside one unit of work. Every mutation
// performed through a Tx commits or rolls back with the others.
type Tx interface {
	// UserForUpdate loads the user's cash row with an exclusive lock so
	// concurrent settlements on the same user serialize.
	UserForUpdate(ctx context.Context, userID uuid.UUID) (*domain.User, error)
	SetCashBalance(ctx context.Context, userID uuid.UUID, balance float64) error

	InsertPosition(ctx context.Context, p *domain.Position) error
	// PositionForUpdate is owner-scoped: a position belonging to another
	// user yields domain.ErrNotFound.
	PositionForUpdate(ctx context.Context, userID, positionID uuid.UUID) (*domain.Position, error)
	UpdatePosition(ctx context.Context, p *domain.Position) error
	DeletePosition(ctx context.Context, positionID uuid.UUID) error

	InsertLedgerEntry(ctx context.Context, e *domain.LedgerEntry) error
}

// Store is the unit-of-work boundary for settlements plus the read paths
// that run outside any transaction.
type Store interface {
	// InTx runs fn inside a single transaction. fn returning an error
	// rolls back everything it did.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	GetUser(ctx context.Context, userID uuid.UUID) (*domain.User, error)
	GetPosition(ctx context.Context, userID, positionID uuid.UUID) (*domain.Position, error)
	ListPositions(ctx context.Context, userID uuid.UUID) ([]domain.Position, error)
	ListLedger(ctx context.Context, userID uuid.UUID) ([]domain.LedgerEntry, error)

	// SaveMark persists a refreshed current price outside any settlement.
	SaveMark(ctx context.Context, positionID uuid.UUID, price float64, at time.Time) error
}
