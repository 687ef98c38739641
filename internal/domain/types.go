package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AssetClass identifies which market-data provider quotes an asset.
type AssetClass string

const (
	AssetStock  AssetClass = "stock"
	AssetBond   AssetClass = "bond"
	AssetCrypto AssetClass = "crypto"
)

// ParseAssetClass normalizes a wire value. "cc" is accepted as a legacy
// spelling of crypto.
func ParseAssetClass(s string) (AssetClass, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "stock":
		return AssetStock, nil
	case "bond":
		return AssetBond, nil
	case "crypto", "cc":
		return AssetCrypto, nil
	default:
		return "", fmt.Errorf("unknown asset class: %q", s)
	}
}

type TradeSide string

const (
	SideBuy  TradeSide = "buy"
	SideSell TradeSide = "sell"
)

type User struct {
	ID           uuid.UUID `db:"id"            json:"id"`
	Email        string    `db:"email"         json:"email"`
	Name         string    `db:"name"          json:"name"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CashBalance  float64   `db:"cash_balance"  json:"cash_balance"`
	CreatedAt    time.Time `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"    json:"updated_at"`
}

// Position is an open investment holding. While open, SalePrice and SaleDate
// are nil; both are stamped in the same transaction that removes the position
// and appends its ledger entry.
type Position struct {
	ID            uuid.UUID  `db:"id"             json:"id"`
	UserID        uuid.UUID  `db:"user_id"        json:"user_id"`
	TransactionID uuid.UUID  `db:"transaction_id" json:"transaction_id"`
	Title         string     `db:"title"          json:"title"`
	AssetClass    AssetClass `db:"asset_class"    json:"type"`
	Identifier    string     `db:"identifier"     json:"asset_name"`
	Quantity      float64    `db:"quantity"       json:"quantity"`
	PurchasePrice float64    `db:"purchase_price" json:"purchase_price"`
	CurrentPrice  float64    `db:"current_price"  json:"current_price"`
	SalePrice     *float64   `db:"sale_price"     json:"sale_price,omitempty"`
	SaleDate      *time.Time `db:"sale_date"      json:"sale_date,omitempty"`
	CreatedAt     time.Time  `db:"created_at"     json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"     json:"updated_at"`
}

// LedgerEntry is the immutable record of a completed trade. It shares its
// TransactionID with the position it was created from; the position row may
// be long gone.
type LedgerEntry struct {
	ID            int64      `db:"id"             json:"id"`
	UserID        uuid.UUID  `db:"user_id"        json:"user_id"`
	TransactionID uuid.UUID  `db:"transaction_id" json:"transaction_id"`
	Side          TradeSide  `db:"side"           json:"transaction_type"`
	AssetClass    AssetClass `db:"asset_class"    json:"type"`
	Identifier    string     `db:"identifier"     json:"asset_name"`
	Quantity      float64    `db:"quantity"       json:"quantity"`
	PurchasePrice float64    `db:"purchase_price" json:"purchase_price"`
	SalePrice     float64    `db:"sale_price"     json:"sale_price"`
	PurchaseDate  time.Time  `db:"purchase_date"  json:"purchase_date"`
	SaleDate      time.Time  `db:"sale_date"      json:"sale_date"`
	CreatedAt     time.Time  `db:"created_at"     json:"created_at"`
}

// AssetRef names a quotable asset independent of any holder.
type AssetRef struct {
	Class      AssetClass `db:"asset_class" json:"type"`
	Identifier string     `db:"identifier"  json:"asset_name"`
}

// QuoteTick is a point-in-time mark for an asset, published to subscribers
// and cached for the oracle.
type QuoteTick struct {
	Class      AssetClass `json:"type"`
	Identifier string     `json:"asset_name"`
	Price      float64    `json:"price"`
	Timestamp  time.Time  `json:"timestamp"`
}
