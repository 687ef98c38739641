package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/finbook/internal/domain"
	"github.com/yourorg/finbook/internal/settlement"
)

func seedStore(t *testing.T) (*Store, uuid.UUID) {
	t.Helper()

	s := NewStore()
	u := &domain.User{Email: "owner@example.com", CashBalance: 1000}
	require.NoError(t, s.Create(context.Background(), u))
	return s, u.ID
}

func insertPosition(t *testing.T, s *Store, userID uuid.UUID) *domain.Position {
	t.Helper()

	p := &domain.Position{
		ID:            uuid.New(),
		UserID:        userID,
		TransactionID: uuid.New(),
		AssetClass:    domain.AssetStock,
		Identifier:    "AAPL",
		Quantity:      1,
		PurchasePrice: 100,
		CurrentPrice:  100,
		CreatedAt:     time.Now(),
	}
	require.NoError(t, s.InTx(context.Background(), func(tx settlement.Tx) error {
		return tx.InsertPosition(context.Background(), p)
	}))
	return p
}

func TestInTxRollsBackOnError(t *testing.T) {
	t.Parallel()

	s, userID := seedStore(t)
	ctx := context.Background()
	pos := insertPosition(t, s, userID)

	boom := errors.New("boom")
	err := s.InTx(ctx, func(tx settlement.Tx) error {
		if err := tx.SetCashBalance(ctx, userID, 0); err != nil {
			return err
		}
		if err := tx.DeletePosition(ctx, pos.ID); err != nil {
			return err
		}
		if err := tx.InsertLedgerEntry(ctx, &domain.LedgerEntry{
			UserID:        userID,
			TransactionID: pos.TransactionID,
			Side:          domain.SideSell,
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	user, err := s.GetUser(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, user.CashBalance)

	_, err = s.GetPosition(ctx, userID, pos.ID)
	assert.NoError(t, err)

	entries, err := s.ListLedger(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestInTxCommitsOnSuccess(t *testing.T) {
	t.Parallel()

	s, userID := seedStore(t)
	ctx := context.Background()

	err := s.InTx(ctx, func(tx settlement.Tx) error {
		return tx.SetCashBalance(ctx, userID, 250)
	})
	require.NoError(t, err)

	user, err := s.GetUser(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 250.0, user.CashBalance)
}

func TestPositionLookupIsOwnerScoped(t *testing.T) {
	t.Parallel()

	s, owner := seedStore(t)
	ctx := context.Background()
	pos := insertPosition(t, s, owner)

	other := &domain.User{Email: "other@example.com"}
	require.NoError(t, s.Create(ctx, other))

	_, err := s.GetPosition(ctx, other.ID, pos.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = s.InTx(ctx, func(tx settlement.Tx) error {
		_, err := tx.PositionForUpdate(ctx, other.ID, pos.ID)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListPositionsMostRecentFirst(t *testing.T) {
	t.Parallel()

	s, userID := seedStore(t)
	ctx := context.Background()

	first := insertPosition(t, s, userID)
	second := insertPosition(t, s, userID)

	positions, err := s.ListPositions(ctx, userID)
	require.NoError(t, err)
	require.Len(t, positions, 2)
	assert.Equal(t, second.ID, positions[0].ID)
	assert.Equal(t, first.ID, positions[1].ID)
}

func TestLedgerIDsAreAssignedSequentially(t *testing.T) {
	t.Parallel()

	s, userID := seedStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := s.InTx(ctx, func(tx settlement.Tx) error {
			return tx.InsertLedgerEntry(ctx, &domain.LedgerEntry{
				UserID:        userID,
				TransactionID: uuid.New(),
				Side:          domain.SideSell,
			})
		})
		require.NoError(t, err)
	}

	entries, err := s.ListLedger(ctx, userID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, int64(3), entries[0].ID)
	assert.Equal(t, int64(1), entries[2].ID)
}

func TestCreateRejectsDuplicateEmail(t *testing.T) {
	t.Parallel()

	s, _ := seedStore(t)
	err := s.Create(context.Background(), &domain.User{Email: "owner@example.com"})
	assert.Error(t, err)
}

func TestUpdateProfile(t *testing.T) {
	t.Parallel()

	s, userID := seedStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpdateProfile(ctx, userID, "New Name", "newhash"))

	u, err := s.GetByID(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "New Name", u.Name)
	assert.Equal(t, "newhash", u.PasswordHash)
}

func TestListOpenAssetsDeduplicates(t *testing.T) {
	t.Parallel()

	s, userID := seedStore(t)
	insertPosition(t, s, userID)
	insertPosition(t, s, userID)

	assets, err := s.ListOpenAssets(context.Background())
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Equal(t, domain.AssetRef{Class: domain.AssetStock, Identifier: "AAPL"}, assets[0])
}
