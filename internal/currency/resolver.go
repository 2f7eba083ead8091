package currency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrUnknownCurrency means a detected symbol or code could not be
	// mapped to a supported currency.
	ErrUnknownCurrency = errors.New("unknown currency")
	// ErrRateUnavailable means no exchange rate could be obtained: the
	// source is down and nothing is cached or recorded.
	ErrRateUnavailable = errors.New("exchange rate unavailable")
)

// History records fetched rates and serves the last known one when both
// the source and the cache come up empty (e.g. right after a restart).
type History interface {
	SaveRate(pair string, rate decimal.Decimal, fetchedAt time.Time) error
	LastKnownRate(pair string) (decimal.Decimal, time.Time, bool, error)
}

// Conversion is the normalized money fragment of a transaction.
type Conversion struct {
	AmountPrimary decimal.Decimal
	Rate          decimal.Decimal
	RateTime      time.Time
	Stale         bool
}

// Resolver converts extracted amounts into the user's primary currency.
type Resolver struct {
	cache   *Cache
	history History // may be nil
	now     func() time.Time
}

// NewResolver creates a Resolver. history may be nil when no rate
// persistence is wanted.
func NewResolver(cache *Cache, history History) *Resolver {
	return &Resolver{cache: cache, history: history, now: time.Now}
}

// Resolve converts amount from the detected currency into primary.
// An empty detected code means the amount is assumed to already be in
// the primary currency. amount_primary is rounded half-up to two
// decimals; the rate is exactly 1 when no conversion happens.
func (r *Resolver) Resolve(ctx context.Context, amount decimal.Decimal, detected, primary string) (*Conversion, error) {
	if detected == "" {
		detected = primary
	}
	if !IsSupported(detected) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCurrency, detected)
	}
	if !IsSupported(primary) {
		return nil, fmt.Errorf("%w: primary %s", ErrUnknownCurrency, primary)
	}

	if detected == primary {
		return &Conversion{
			AmountPrimary: amount.Round(2),
			Rate:          decimal.NewFromInt(1),
			RateTime:      r.now(),
		}, nil
	}

	quote, err := r.cache.Lookup(ctx, detected, primary)
	if err != nil {
		return r.resolveFromHistory(amount, detected, primary, err)
	}

	if !quote.Stale && r.history != nil {
		if err := r.history.SaveRate(PairKey(detected, primary), quote.Rate, quote.FetchedAt); err != nil {
			slog.Warn("Failed to record exchange rate", "pair", PairKey(detected, primary), "error", err)
		}
	}

	return &Conversion{
		AmountPrimary: amount.Mul(quote.Rate).Round(2),
		Rate:          quote.Rate,
		RateTime:      quote.FetchedAt,
		Stale:         quote.Stale,
	}, nil
}

func (r *Resolver) resolveFromHistory(amount decimal.Decimal, detected, primary string, cause error) (*Conversion, error) {
	if r.history == nil {
		return nil, fmt.Errorf("%w: %v", ErrRateUnavailable, cause)
	}
	rate, fetchedAt, found, err := r.history.LastKnownRate(PairKey(detected, primary))
	if err != nil || !found {
		return nil, fmt.Errorf("%w: %v", ErrRateUnavailable, cause)
	}
	slog.Warn("Using last known exchange rate",
		"pair", PairKey(detected, primary),
		"fetched_at", fetchedAt,
	)
	return &Conversion{
		AmountPrimary: amount.Mul(rate).Round(2),
		Rate:          rate,
		RateTime:      fetchedAt,
		Stale:         true,
	}, nil
}
