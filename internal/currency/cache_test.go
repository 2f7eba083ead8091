package currency

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
)

// fakeSource is a canned-response implementation of Source
type fakeSource struct {
	rates map[string]map[string]decimal.Decimal
	err   error
	calls int
}

func (f *fakeSource) Rates(ctx context.Context, base string) (map[string]decimal.Decimal, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	rates, ok := f.rates[base]
	if !ok {
		return nil, errors.New("no rates for base")
	}
	return rates, nil
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	Expect(err).NotTo(HaveOccurred())
	return d
}

var _ = Describe("Cache", func() {
	var (
		source  *fakeSource
		cache   *Cache
		current time.Time
		quote   Quote
		err     error
	)

	BeforeEach(func() {
		source = &fakeSource{
			rates: map[string]map[string]decimal.Decimal{
				"RUB": {"KZT": mustDecimal("5.2")},
			},
		}
		current = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
		cache = NewCache(source, time.Hour)
		cache.now = func() time.Time { return current }
		cache.sleep = func(time.Duration) {}
	})

	JustBeforeEach(func() {
		quote, err = cache.Lookup(context.Background(), "RUB", "KZT")
	})

	When("the pair is not cached", func() {
		It("should fetch from the source", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(quote.Rate.String()).To(Equal("5.2"))
			Expect(source.calls).To(Equal(1))
		})

		It("should stamp the quote with the fetch time", func() {
			Expect(quote.FetchedAt).To(Equal(current))
			Expect(quote.Stale).To(BeFalse())
		})
	})

	When("a fresh entry is cached", func() {
		BeforeEach(func() {
			_, primeErr := cache.Lookup(context.Background(), "RUB", "KZT")
			Expect(primeErr).NotTo(HaveOccurred())
			current = current.Add(30 * time.Minute)
		})

		It("should serve it without touching the source", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(source.calls).To(Equal(1))
		})
	})

	When("the cached entry has expired", func() {
		BeforeEach(func() {
			_, primeErr := cache.Lookup(context.Background(), "RUB", "KZT")
			Expect(primeErr).NotTo(HaveOccurred())
			current = current.Add(2 * time.Hour)
		})

		It("should refetch from the source", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(source.calls).To(Equal(2))
			Expect(quote.FetchedAt).To(Equal(current))
		})
	})

	When("the source goes down after a fetch", func() {
		var primedAt time.Time

		BeforeEach(func() {
			_, primeErr := cache.Lookup(context.Background(), "RUB", "KZT")
			Expect(primeErr).NotTo(HaveOccurred())
			primedAt = current
			current = current.Add(2 * time.Hour)
			source.err = errors.New("connection refused")
		})

		It("should serve the expired entry marked stale", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(quote.Stale).To(BeTrue())
			Expect(quote.Rate.String()).To(Equal("5.2"))
			Expect(quote.FetchedAt).To(Equal(primedAt))
		})
	})

	When("the source is down and nothing is cached", func() {
		BeforeEach(func() {
			source.err = errors.New("connection refused")
		})

		It("should return the fetch error", func() {
			Expect(err).To(HaveOccurred())
		})
	})

	When("only the reverse quote is available", func() {
		BeforeEach(func() {
			source.rates = map[string]map[string]decimal.Decimal{
				"KZT": {"RUB": mustDecimal("0.2")},
			}
		})

		It("should invert the reverse rate", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(quote.Rate.String()).To(Equal("5"))
		})
	})
})
