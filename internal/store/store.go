package store

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Transaction is a committed, currency-normalized expense record.
type Transaction struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	AmountPrimary decimal.Decimal `json:"amount_primary"`
	Rate          decimal.Decimal `json:"exchange_rate"`
	RateTime      time.Time       `json:"rate_time"`
	RateStale     bool            `json:"rate_stale,omitempty"`
	Category      string          `json:"category"`
	Merchant      string          `json:"merchant,omitempty"`
	Description   string          `json:"description,omitempty"`
	Date          time.Time       `json:"date"`
	CreatedAt     time.Time       `json:"created_at"`
	Deleted       bool            `json:"deleted,omitempty"`
}

// Profile carries the per-user settings the pipeline needs.
type Profile struct {
	UserID          string `json:"user_id"`
	PrimaryCurrency string `json:"primary_currency"`
	Language        string `json:"language"`
}

// DB defines the persistence operations backing the pipeline: the
// transaction store, user profiles, and the exchange-rate history used
// as a cold-start fallback.
type DB interface {
	// SaveTransaction persists a transaction.
	SaveTransaction(txn *Transaction) error

	// GetTransaction retrieves one transaction of a user.
	GetTransaction(userID, id string) (*Transaction, error)

	// ListRecent returns the user's non-deleted transactions created at
	// or after since, oldest first.
	ListRecent(userID string, since time.Time) ([]*Transaction, error)

	// DeleteTransaction soft-deletes a transaction; deleted entries no
	// longer participate in duplicate detection.
	DeleteTransaction(userID, id string) error

	// GetProfile retrieves a user profile, or ErrNotFound.
	GetProfile(userID string) (*Profile, error)

	// SaveProfile persists a user profile.
	SaveProfile(profile *Profile) error

	// SaveRate records a fetched exchange rate for a currency pair.
	SaveRate(pair string, rate decimal.Decimal, fetchedAt time.Time) error

	// LastKnownRate returns the most recently recorded rate for a pair.
	LastKnownRate(pair string) (decimal.Decimal, time.Time, bool, error)

	// Close closes the database.
	Close() error
}
