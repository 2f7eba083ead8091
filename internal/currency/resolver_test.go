package currency

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
)

// mockHistory is a mock implementation of History
type mockHistory struct {
	saved     map[string]decimal.Decimal
	savedAt   map[string]time.Time
	rate      decimal.Decimal
	fetchedAt time.Time
	found     bool
	lookupErr error
	saveErr   error
}

func newMockHistory() *mockHistory {
	return &mockHistory{
		saved:   make(map[string]decimal.Decimal),
		savedAt: make(map[string]time.Time),
	}
}

func (m *mockHistory) SaveRate(pair string, rate decimal.Decimal, fetchedAt time.Time) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved[pair] = rate
	m.savedAt[pair] = fetchedAt
	return nil
}

func (m *mockHistory) LastKnownRate(pair string) (decimal.Decimal, time.Time, bool, error) {
	if m.lookupErr != nil {
		return decimal.Zero, time.Time{}, false, m.lookupErr
	}
	return m.rate, m.fetchedAt, m.found, nil
}

var _ = Describe("Resolver", func() {
	var (
		source   *fakeSource
		history  *mockHistory
		resolver *Resolver
		current  time.Time

		amount   decimal.Decimal
		detected string
		primary  string

		conversion *Conversion
		err        error
	)

	BeforeEach(func() {
		source = &fakeSource{
			rates: map[string]map[string]decimal.Decimal{
				"RUB": {"KZT": mustDecimal("5.2")},
				"USD": {"KZT": mustDecimal("450.55")},
			},
		}
		history = newMockHistory()
		current = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

		cache := NewCache(source, time.Hour)
		cache.now = func() time.Time { return current }
		cache.sleep = func(time.Duration) {}

		resolver = NewResolver(cache, history)
		resolver.now = func() time.Time { return current }

		amount = mustDecimal("800")
		detected = "RUB"
		primary = "KZT"
	})

	JustBeforeEach(func() {
		conversion, err = resolver.Resolve(context.Background(), amount, detected, primary)
	})

	When("converting between currencies", func() {
		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should multiply by the rate and round to two decimals", func() {
			Expect(conversion.AmountPrimary.String()).To(Equal("4160"))
			Expect(conversion.AmountPrimary.StringFixed(2)).To(Equal("4160.00"))
		})

		It("should carry the rate and its timestamp", func() {
			Expect(conversion.Rate.String()).To(Equal("5.2"))
			Expect(conversion.RateTime).To(Equal(current))
			Expect(conversion.Stale).To(BeFalse())
		})

		It("should record the rate in history", func() {
			Expect(history.saved).To(HaveKey("RUB:KZT"))
		})
	})

	When("the amounts round at the midpoint", func() {
		BeforeEach(func() {
			amount = mustDecimal("1")
			source.rates["RUB"] = map[string]decimal.Decimal{"KZT": mustDecimal("0.125")}
		})

		It("should round half up", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(conversion.AmountPrimary.StringFixed(2)).To(Equal("0.13"))
		})
	})

	When("the detected currency equals the primary", func() {
		BeforeEach(func() {
			detected = "KZT"
			amount = mustDecimal("2500")
		})

		It("should keep the amount and use a rate of exactly one", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(conversion.AmountPrimary.StringFixed(2)).To(Equal("2500.00"))
			Expect(conversion.Rate.Equal(decimal.NewFromInt(1))).To(BeTrue())
		})

		It("should not call the rate source", func() {
			Expect(source.calls).To(BeZero())
		})
	})

	When("no currency was detected", func() {
		BeforeEach(func() {
			detected = ""
			amount = mustDecimal("300")
		})

		It("should assume the primary currency", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(conversion.AmountPrimary.StringFixed(2)).To(Equal("300.00"))
			Expect(conversion.Rate.Equal(decimal.NewFromInt(1))).To(BeTrue())
		})
	})

	When("the detected currency is unsupported", func() {
		BeforeEach(func() {
			detected = "GBP"
		})

		It("should fail with ErrUnknownCurrency", func() {
			Expect(err).To(MatchError(ErrUnknownCurrency))
		})
	})

	When("the source is down but history has the pair", func() {
		BeforeEach(func() {
			source.err = errors.New("connection refused")
			history.rate = mustDecimal("5.1")
			history.fetchedAt = current.Add(-48 * time.Hour)
			history.found = true
		})

		It("should convert with the last known rate, marked stale", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(conversion.AmountPrimary.StringFixed(2)).To(Equal("4080.00"))
			Expect(conversion.Stale).To(BeTrue())
			Expect(conversion.RateTime).To(Equal(history.fetchedAt))
		})
	})

	When("the source is down and history is empty", func() {
		BeforeEach(func() {
			source.err = errors.New("connection refused")
		})

		It("should fail with ErrRateUnavailable", func() {
			Expect(err).To(MatchError(ErrRateUnavailable))
		})
	})

	When("recording the rate fails", func() {
		BeforeEach(func() {
			history.saveErr = errors.New("disk full")
		})

		It("should still return the conversion", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(conversion.AmountPrimary.StringFixed(2)).To(Equal("4160.00"))
		})
	})
})
