package extraction

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrExtractionFailed means no strategy produced a usable amount for any
// candidate of the artifact.
var ErrExtractionFailed = errors.New("could not extract fields from receipt")

// Confidence carries per-field scores in [0,1].
type Confidence struct {
	Amount   float64
	Currency float64
	Merchant float64
	Date     float64
	Overall  float64
}

// Fields is the structured result of one extraction attempt. Zero-value
// members mean the field was not found; Date defaults to the submission
// time further down the pipeline.
type Fields struct {
	Amount      decimal.Decimal
	Currency    string // ISO code, empty when not detected
	Merchant    string
	Date        time.Time
	Description string
	Confidence  Confidence
	Strategy    string
}

// HasAmount reports whether a usable amount was extracted.
func (f *Fields) HasAmount() bool {
	return f != nil && f.Amount.IsPositive()
}

// Extractor is one extraction strategy over a candidate image.
type Extractor interface {
	// Extract analyzes a PNG image and returns structured fields.
	Extract(ctx context.Context, image []byte) (*Fields, error)
	// Name identifies the strategy in logs and results.
	Name() string
	// Close releases any resources held by the strategy.
	Close() error
}
