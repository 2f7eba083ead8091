package dedup

import (
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nurbolat/kassa/internal/store"
)

// DefaultWindow is how far back duplicate detection looks.
const DefaultWindow = 24 * time.Hour

// DefaultTolerance covers rounding drift in converted amounts.
var DefaultTolerance = decimal.NewFromFloat(0.01)

// History supplies the user's recent transactions. store.DB satisfies it.
type History interface {
	ListRecent(userID string, since time.Time) ([]*store.Transaction, error)
}

// Verdict classifies a candidate transaction against recent history.
type Verdict struct {
	Duplicate  bool
	ExistingID string
}

// Detector finds likely duplicates by fingerprint comparison over a
// recent-transaction window. It only classifies: a failing history
// lookup degrades to Unique rather than blocking the pipeline.
type Detector struct {
	history   History
	window    time.Duration
	tolerance decimal.Decimal
	now       func() time.Time
}

// NewDetector creates a Detector. Non-positive window or tolerance
// select the defaults (24h, 0.01).
func NewDetector(history History, window time.Duration, tolerance decimal.Decimal) *Detector {
	if window <= 0 {
		window = DefaultWindow
	}
	if !tolerance.IsPositive() {
		tolerance = DefaultTolerance
	}
	return &Detector{
		history:   history,
		window:    window,
		tolerance: tolerance,
		now:       time.Now,
	}
}

// Check compares the candidate against the lookback window and returns
// the verdict. Matching requires identical user, category, normalized
// merchant and day, with amount_primary within tolerance.
func (d *Detector) Check(candidate *store.Transaction) Verdict {
	since := d.now().Add(-d.window)
	recent, err := d.history.ListRecent(candidate.UserID, since)
	if err != nil {
		slog.Warn("Duplicate lookback failed, treating as unique",
			"user", candidate.UserID,
			"error", err,
		)
		return Verdict{}
	}

	fp := NewFingerprint(candidate.UserID, candidate.AmountPrimary, candidate.Category, candidate.Merchant, candidate.Date)
	for _, txn := range recent {
		if txn.Deleted || txn.ID == candidate.ID {
			continue
		}
		existing := NewFingerprint(txn.UserID, txn.AmountPrimary, txn.Category, txn.Merchant, txn.Date)
		if fp.Matches(existing, d.tolerance) {
			return Verdict{Duplicate: true, ExistingID: txn.ID}
		}
	}
	return Verdict{}
}
