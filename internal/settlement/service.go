package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/yourorg/finbook/internal/domain"
)

// PriceSource is the oracle surface the engine needs.
type PriceSource interface {
	CurrentPrice(ctx context.Context, class domain.AssetClass, identifier string) (float64, error)
}

// Service coordinates cash balance, position store and ledger under a single
// commit point per operation.
type Service struct {
	store  Store
	oracle PriceSource
	logger *slog.Logger
	now    func() time.Time
}

func NewService(store Store, oracle PriceSource, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		oracle: oracle,
		logger: logger,
		now:    time.Now,
	}
}

// TradeRequest describes a position to open. Price and cost are always
// computed server-side from the oracle.
type TradeRequest struct {
	Title      string
	AssetClass domain.AssetClass
	Identifier string
	Quantity   float64
}

func (r *TradeRequest) validate() error {
	if r.Quantity <= 0 {
		return &domain.ValidationError{Field: "quantity", Message: "must be a positive value"}
	}
	if r.Identifier == "" {
		return &domain.ValidationError{Field: "asset_name", Message: "is required"}
	}
	switch r.AssetClass {
	case domain.AssetStock, domain.AssetBond, domain.AssetCrypto:
	default:
		return &domain.ValidationError{Field: "type", Message: fmt.Sprintf("unknown asset class %q", r.AssetClass)}
	}
	return nil
}

// Buy opens a position and debits its full cost from the user's cash
// balance. The oracle call happens before any mutation; a price failure
// aborts with no partial state.
func (s *Service) Buy(ctx context.Context, userID uuid.UUID, req TradeRequest) (*domain.Position, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	price, err := s.oracle.CurrentPrice(ctx, req.AssetClass, req.Identifier)
	if err != nil {
		return nil, err
	}
	totalCost := price * req.Quantity

	var pos *domain.Position
	err = s.store.InTx(ctx, func(tx Tx) error {
		user, err := tx.UserForUpdate(ctx, userID)
		if err != nil {
			return fmt.Errorf("load user: %w", err)
		}
		if user.CashBalance < totalCost {
			return domain.ErrInsufficientFunds
		}
		if err := tx.SetCashBalance(ctx, userID, user.CashBalance-totalCost); err != nil {
			return fmt.Errorf("debit balance: %w", err)
		}
		pos = s.newPosition(userID, req, price)
		if err := tx.InsertPosition(ctx, pos); err != nil {
			return fmt.Errorf("insert position: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("position bought",
		"user", userID, "asset", req.Identifier, "quantity", req.Quantity, "cost", totalCost)
	return pos, nil
}

// Create opens a position without touching the cash balance. The price is
// still fetched up front and a lookup failure still aborts.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, req TradeRequest) (*domain.Position, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	price, err := s.oracle.CurrentPrice(ctx, req.AssetClass, req.Identifier)
	if err != nil {
		return nil, err
	}

	pos := s.newPosition(userID, req, price)
	err = s.store.InTx(ctx, func(tx Tx) error {
		return tx.InsertPosition(ctx, pos)
	})
	if err != nil {
		return nil, err
	}
	return pos, nil
}

func (s *Service) newPosition(userID uuid.UUID, req TradeRequest, price float64) *domain.Position {
	now := s.now()
	return &domain.Position{
		ID:            uuid.New(),
		UserID:        userID,
		TransactionID: uuid.New(),
		Title:         req.Title,
		AssetClass:    req.AssetClass,
		Identifier:    req.Identifier,
		Quantity:      req.Quantity,
		PurchasePrice: price,
		CurrentPrice:  price,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// List returns the user's open positions, most recent first, refreshing each
// mark from the oracle. A failed lookup keeps the stored mark; the read path
// never fails on price errors.
func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]domain.Position, error) {
	positions, err := s.store.ListPositions(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range positions {
		s.refreshMark(ctx, &positions[i])
	}
	return positions, nil
}

// Get returns one of the user's positions with a refreshed mark. Missing and
// foreign positions are indistinguishable.
func (s *Service) Get(ctx context.Context, userID, positionID uuid.UUID) (*domain.Position, error) {
	pos, err := s.store.GetPosition(ctx, userID, positionID)
	if err != nil {
		return nil, err
	}
	s.refreshMark(ctx, pos)
	return pos, nil
}

func (s *Service) refreshMark(ctx context.Context, pos *domain.Position) {
	price, err := s.oracle.CurrentPrice(ctx, pos.AssetClass, pos.Identifier)
	if err != nil {
		s.logger.Error("price refresh failed, keeping last mark",
			"asset", pos.Identifier, "position", pos.ID, "err", err)
		return
	}
	pos.CurrentPrice = price
	if err := s.store.SaveMark(ctx, pos.ID, price, s.now()); err != nil {
		s.logger.Error("persisting refreshed mark failed", "position", pos.ID, "err", err)
	}
}

// Close sells a position at its current mark: the position is stamped with
// sale price and date, the proceeds credited, one ledger entry appended and
// the position removed, all under one commit point.
func (s *Service) Close(ctx context.Context, userID, positionID uuid.UUID) (*domain.LedgerEntry, error) {
	var entry *domain.LedgerEntry
	err := s.store.InTx(ctx, func(tx Tx) error {
		pos, err := tx.PositionForUpdate(ctx, userID, positionID)
		if err != nil {
			return err
		}
		user, err := tx.UserForUpdate(ctx, userID)
		if err != nil {
			return fmt.Errorf("load user: %w", err)
		}

		now := s.now()
		salePrice := pos.CurrentPrice
		proceeds := salePrice * pos.Quantity

		pos.SalePrice = &salePrice
		pos.SaleDate = &now
		pos.UpdatedAt = now
		if err := tx.UpdatePosition(ctx, pos); err != nil {
			return fmt.Errorf("stamp sale: %w", err)
		}
		if err := tx.SetCashBalance(ctx, userID, user.CashBalance+proceeds); err != nil {
			return fmt.Errorf("credit balance: %w", err)
		}
		entry = &domain.LedgerEntry{
			UserID:        userID,
			TransactionID: pos.TransactionID,
			Side:          domain.SideSell,
			AssetClass:    pos.AssetClass,
			Identifier:    pos.Identifier,
			Quantity:      pos.Quantity,
			PurchasePrice: pos.PurchasePrice,
			SalePrice:     salePrice,
			PurchaseDate:  pos.CreatedAt,
			SaleDate:      now,
		}
		if err := tx.InsertLedgerEntry(ctx, entry); err != nil {
			return fmt.Errorf("append ledger entry: %w", err)
		}
		if err := tx.DeletePosition(ctx, pos.ID); err != nil {
			return fmt.Errorf("delete position: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("position closed",
		"user", userID, "position", positionID, "transaction", entry.TransactionID)
	return entry, nil
}

// UpdateRequest carries the editable position fields. Requests naming
// asset class, identifier or either price are accepted upstream but those
// fields never reach this struct, so they are silently left unchanged.
type UpdateRequest struct {
	Title    *string
	Quantity *float64
}

// Update applies a partial edit to one of the user's open positions. PUT and
// PATCH both degrade to this partial behavior.
func (s *Service) Update(ctx context.Context, userID, positionID uuid.UUID, req UpdateRequest) (*domain.Position, error) {
	if req.Quantity != nil && *req.Quantity <= 0 {
		return nil, &domain.ValidationError{Field: "quantity", Message: "must be a positive value"}
	}

	var pos *domain.Position
	err := s.store.InTx(ctx, func(tx Tx) error {
		var err error
		pos, err = tx.PositionForUpdate(ctx, userID, positionID)
		if err != nil {
			return err
		}
		if req.Title != nil {
			pos.Title = *req.Title
		}
		if req.Quantity != nil {
			pos.Quantity = *req.Quantity
		}
		pos.UpdatedAt = s.now()
		return tx.UpdatePosition(ctx, pos)
	})
	if err != nil {
		return nil, err
	}
	return pos, nil
}

// Deposit credits amount to the user's cash balance and returns the new
// balance.
func (s *Service) Deposit(ctx context.Context, userID uuid.UUID, amount float64) (float64, error) {
	if amount <= 0 {
		return 0, &domain.ValidationError{Field: "amount", Message: "must be a positive value"}
	}
	var balance float64
	err := s.store.InTx(ctx, func(tx Tx) error {
		user, err := tx.UserForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		balance = user.CashBalance + amount
		return tx.SetCashBalance(ctx, userID, balance)
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// Withdraw debits amount from the user's cash balance and returns the new
// balance. The balance can never go negative.
func (s *Service) Withdraw(ctx context.Context, userID uuid.UUID, amount float64) (float64, error) {
	if amount <= 0 {
		return 0, &domain.ValidationError{Field: "amount", Message: "must be a positive value"}
	}
	var balance float64
	err := s.store.InTx(ctx, func(tx Tx) error {
		user, err := tx.UserForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if user.CashBalance < amount {
			return domain.ErrInsufficientFunds
		}
		balance = user.CashBalance - amount
		return tx.SetCashBalance(ctx, userID, balance)
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// Transactions lists the user's ledger entries, most recent first. The
// ledger is append-only; nothing in the service updates or deletes entries.
func (s *Service) Transactions(ctx context.Context, userID uuid.UUID) ([]domain.LedgerEntry, error) {
	return s.store.ListLedger(ctx, userID)
}
