package dedup

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Fingerprint is the derived duplicate-lookup key over normalized
// transaction fields. It is recomputed on demand and never persisted.
type Fingerprint struct {
	UserID   string
	Amount   decimal.Decimal // amount_primary, rounded to 2 decimals
	Category string
	Merchant string // lowercased, trimmed
	Day      string // date truncated to day, YYYY-MM-DD
}

// NewFingerprint derives a Fingerprint from normalized fields.
func NewFingerprint(userID string, amountPrimary decimal.Decimal, category, merchant string, date time.Time) Fingerprint {
	return Fingerprint{
		UserID:   userID,
		Amount:   amountPrimary.Round(2),
		Category: category,
		Merchant: strings.ToLower(strings.TrimSpace(merchant)),
		Day:      date.Format("2006-01-02"),
	}
}

// Key renders the fingerprint as a stable string, handy for logs.
func (f Fingerprint) Key() string {
	return fmt.Sprintf("%s|%s|%s|%s|%s", f.UserID, f.Amount.StringFixed(2), f.Category, f.Merchant, f.Day)
}

// Matches reports whether two fingerprints identify the same expense.
// Everything must be identical except the amount, which may drift by up
// to tolerance from rounding during currency conversion.
func (f Fingerprint) Matches(other Fingerprint, tolerance decimal.Decimal) bool {
	if f.UserID != other.UserID || f.Category != other.Category ||
		f.Merchant != other.Merchant || f.Day != other.Day {
		return false
	}
	return f.Amount.Sub(other.Amount).Abs().LessThanOrEqual(tolerance)
}
