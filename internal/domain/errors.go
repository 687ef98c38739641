package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientFunds is returned when a debit would take the cash
	// balance negative.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrNotFound covers both genuinely missing records and records owned
	// by another user, so that existence is never leaked across accounts.
	ErrNotFound = errors.New("not found")
)

// ValidationError reports a bad input value on a named field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// PriceLookupError wraps any failure to obtain a current price: an unknown
// asset class, an unreachable provider, or an identifier the provider does
// not know. Write paths treat it as fatal; read paths fall back to the last
// known mark.
type PriceLookupError struct {
	Class      AssetClass
	Identifier string
	Err        error
}

func (e *PriceLookupError) Error() string {
	return fmt.Sprintf("price lookup for %s %q: %v", e.Class, e.Identifier, e.Err)
}

func (e *PriceLookupError) Unwrap() error { return e.Err }
