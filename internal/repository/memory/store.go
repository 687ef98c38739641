// Package memory implements the settlement store on plain maps. It backs the
// test suite and lets the server run without Postgres.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yourorg/finbook/internal/domain"
	"github.com/yourorg/finbook/internal/settlement"
)

var _ settlement.Store = (*Store)(nil)

type Store struct {
	mu sync.Mutex

	users     map[uuid.UUID]*domain.User
	emails    map[string]uuid.UUID
	positions map[uuid.UUID]*domain.Position
	posSeq    map[uuid.UUID]int64
	ledger    []domain.LedgerEntry

	nextSeq      int64
	nextLedgerID int64
}

func NewStore() *Store {
	return &Store{
		users:        make(map[uuid.UUID]*domain.User),
		emails:       make(map[string]uuid.UUID),
		positions:    make(map[uuid.UUID]*domain.Position),
		posSeq:       make(map[uuid.UUID]int64),
		nextLedgerID: 1,
	}
}

type snapshot struct {
	users        map[uuid.UUID]*domain.User
	emails       map[string]uuid.UUID
	positions    map[uuid.UUID]*domain.Position
	posSeq       map[uuid.UUID]int64
	ledger       []domain.LedgerEntry
	nextSeq      int64
	nextLedgerID int64
}

func (s *Store) snapshot() snapshot {
	snap := snapshot{
		users:        make(map[uuid.UUID]*domain.User, len(s.users)),
		emails:       make(map[string]uuid.UUID, len(s.emails)),
		positions:    make(map[uuid.UUID]*domain.Position, len(s.positions)),
		posSeq:       make(map[uuid.UUID]int64, len(s.posSeq)),
		ledger:       append([]domain.LedgerEntry(nil), s.ledger...),
		nextSeq:      s.nextSeq,
		nextLedgerID: s.nextLedgerID,
	}
	for id, u := range s.users {
		cp := *u
		snap.users[id] = &cp
	}
	for email, id := range s.emails {
		snap.emails[email] = id
	}
	for id, p := range s.positions {
		cp := *p
		snap.positions[id] = &cp
	}
	for id, seq := range s.posSeq {
		snap.posSeq[id] = seq
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.users = snap.users
	s.emails = snap.emails
	s.positions = snap.positions
	s.posSeq = snap.posSeq
	s.ledger = snap.ledger
	s.nextSeq = snap.nextSeq
	s.nextLedgerID = snap.nextLedgerID
}

// InTx serializes all units of work behind one mutex and rolls the whole
// state back when fn fails, mirroring the all-or-nothing contract of the
// database-backed store.
func (s *Store) InTx(ctx context.Context, fn func(tx settlement.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(&storeTx{store: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getUserLocked(userID)
}

func (s *Store) getUserLocked(userID uuid.UUID) (*domain.User, error) {
	u, ok := s.users[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *Store) GetPosition(ctx context.Context, userID, positionID uuid.UUID) (*domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getPositionLocked(userID, positionID)
}

func (s *Store) getPositionLocked(userID, positionID uuid.UUID) (*domain.Position, error) {
	p, ok := s.positions[positionID]
	if !ok || p.UserID != userID {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *Store) ListPositions(ctx context.Context, userID uuid.UUID) ([]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var positions []domain.Position
	for _, p := range s.positions {
		if p.UserID == userID {
			positions = append(positions, *p)
		}
	}
	// Most recent first by creation order.
	sort.Slice(positions, func(i, j int) bool {
		return s.posSeq[positions[i].ID] > s.posSeq[positions[j].ID]
	})
	return positions, nil
}

func (s *Store) ListLedger(ctx context.Context, userID uuid.UUID) ([]domain.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entries []domain.LedgerEntry
	for i := len(s.ledger) - 1; i >= 0; i-- {
		if s.ledger[i].UserID == userID {
			entries = append(entries, s.ledger[i])
		}
	}
	return entries, nil
}

func (s *Store) SaveMark(ctx context.Context, positionID uuid.UUID, price float64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.positions[positionID]
	if !ok {
		return domain.ErrNotFound
	}
	p.CurrentPrice = price
	p.UpdatedAt = at
	return nil
}

func (s *Store) ListOpenAssets(ctx context.Context) ([]domain.AssetRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[domain.AssetRef]bool)
	var assets []domain.AssetRef
	for _, p := range s.positions {
		ref := domain.AssetRef{Class: p.AssetClass, Identifier: p.Identifier}
		if !seen[ref] {
			seen[ref] = true
			assets = append(assets, ref)
		}
	}
	return assets, nil
}

// Create registers a new user. The email must be unused.
func (s *Store) Create(ctx context.Context, u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.emails[u.Email]; taken {
		return fmt.Errorf("email %q already registered", u.Email)
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	now := time.Now()
	u.CreatedAt = now
	u.UpdatedAt = now
	cp := *u
	s.users[u.ID] = &cp
	s.emails[u.Email] = u.ID
	return nil
}

func (s *Store) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.emails[email]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s.getUserLocked(id)
}

func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return s.GetUser(ctx, id)
}

func (s *Store) UpdateProfile(ctx context.Context, id uuid.UUID, name, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return domain.ErrNotFound
	}
	u.Name = name
	u.PasswordHash = passwordHash
	u.UpdatedAt = time.Now()
	return nil
}

type storeTx struct {
	store *Store
}

var _ settlement.Tx = (*storeTx)(nil)

func (t *storeTx) UserForUpdate(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	return t.store.getUserLocked(userID)
}

func (t *storeTx) SetCashBalance(ctx context.Context, userID uuid.UUID, balance float64) error {
	u, ok := t.store.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	u.CashBalance = balance
	u.UpdatedAt = time.Now()
	return nil
}

func (t *storeTx) InsertPosition(ctx context.Context, p *domain.Position) error {
	if _, exists := t.store.positions[p.ID]; exists {
		return fmt.Errorf("position %s already exists", p.ID)
	}
	cp := *p
	t.store.positions[p.ID] = &cp
	t.store.nextSeq++
	t.store.posSeq[p.ID] = t.store.nextSeq
	return nil
}

func (t *storeTx) PositionForUpdate(ctx context.Context, userID, positionID uuid.UUID) (*domain.Position, error) {
	return t.store.getPositionLocked(userID, positionID)
}

func (t *storeTx) UpdatePosition(ctx context.Context, p *domain.Position) error {
	if _, ok := t.store.positions[p.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *p
	t.store.positions[p.ID] = &cp
	return nil
}

func (t *storeTx) DeletePosition(ctx context.Context, positionID uuid.UUID) error {
	if _, ok := t.store.positions[positionID]; !ok {
		return domain.ErrNotFound
	}
	delete(t.store.positions, positionID)
	delete(t.store.posSeq, positionID)
	return nil
}

func (t *storeTx) InsertLedgerEntry(ctx context.Context, e *domain.LedgerEntry) error {
	e.ID = t.store.nextLedgerID
	t.store.nextLedgerID++
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	t.store.ledger = append(t.store.ledger, *e)
	return nil
}
