package extraction

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/nurbolat/kassa/internal/artifact"
)

// mockExtractor is a mock implementation of Extractor
type mockExtractor struct {
	fields *Fields
	err    error
	calls  int
}

func (m *mockExtractor) Extract(ctx context.Context, image []byte) (*Fields, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.fields, nil
}

func (m *mockExtractor) Name() string { return "mock" }

func (m *mockExtractor) Close() error { return nil }

func amountFields(amount string, overall float64, strategy string) *Fields {
	d, err := decimal.NewFromString(amount)
	Expect(err).NotTo(HaveOccurred())
	return &Fields{
		Amount:     d,
		Confidence: Confidence{Amount: overall, Overall: overall},
		Strategy:   strategy,
	}
}

var _ = Describe("Engine", func() {
	var (
		vision     *mockExtractor
		local      *mockExtractor
		engine     *Engine
		candidates []artifact.Candidate
		fields     *Fields
		err        error
	)

	BeforeEach(func() {
		vision = &mockExtractor{fields: amountFields("1200", 0.9, StrategyVision)}
		local = &mockExtractor{fields: amountFields("1100", 0.7, StrategyLocal)}
		candidates = []artifact.Candidate{
			{ArtifactID: "a1", Index: 0, Image: []byte("png bytes")},
		}

		engine = NewEngine(vision, local)
		engine.sleep = func(time.Duration) {}
		engine.now = func() time.Time {
			return time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
		}
	})

	JustBeforeEach(func() {
		fields, err = engine.ExtractArtifact(context.Background(), candidates)
	})

	When("the vision extractor succeeds", func() {
		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should return the vision result", func() {
			Expect(fields.Strategy).To(Equal(StrategyVision))
			Expect(fields.Amount.StringFixed(2)).To(Equal("1200.00"))
		})

		It("should not touch the local engine", func() {
			Expect(local.calls).To(BeZero())
		})
	})

	When("the vision extractor keeps failing", func() {
		BeforeEach(func() {
			vision.err = errors.New("api unreachable")
		})

		It("should retry the vision extractor once", func() {
			Expect(vision.calls).To(Equal(2))
		})

		It("should fall back to the local engine", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(fields.Strategy).To(Equal(StrategyLocal))
		})
	})

	When("the vision extractor is disabled", func() {
		BeforeEach(func() {
			engine = NewEngine(nil, local)
			engine.sleep = func(time.Duration) {}
		})

		It("should use the local engine directly", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(fields.Strategy).To(Equal(StrategyLocal))
		})
	})

	When("a candidate is text", func() {
		BeforeEach(func() {
			candidates = []artifact.Candidate{
				{ArtifactID: "a1", Index: 0, Text: "2500 обед"},
			}
		})

		It("should run the deterministic parser", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(fields.Strategy).To(Equal(StrategyParser))
			Expect(fields.Amount.StringFixed(2)).To(Equal("2500.00"))
		})

		It("should not call either image extractor", func() {
			Expect(vision.calls).To(BeZero())
			Expect(local.calls).To(BeZero())
		})
	})

	When("candidates differ in confidence", func() {
		BeforeEach(func() {
			candidates = []artifact.Candidate{
				{ArtifactID: "a1", Index: 0, Text: "Чек\n1500"},
				{ArtifactID: "a1", Index: 1, Text: "2500 обед"},
			}
		})

		It("should pick the higher-confidence candidate", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(fields.Amount.StringFixed(2)).To(Equal("2500.00"))
		})
	})

	When("candidates tie on confidence", func() {
		BeforeEach(func() {
			candidates = []artifact.Candidate{
				{ArtifactID: "a1", Index: 0, Text: "1000 кофе"},
				{ArtifactID: "a1", Index: 1, Text: "2000 чай"},
			}
		})

		It("should keep the earliest candidate", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(fields.Amount.StringFixed(2)).To(Equal("1000.00"))
		})
	})

	When("one candidate fails but another succeeds", func() {
		BeforeEach(func() {
			vision.err = errors.New("api unreachable")
			local.err = errors.New("ollama down")
			candidates = []artifact.Candidate{
				{ArtifactID: "a1", Index: 0, Image: []byte("png bytes")},
				{ArtifactID: "a1", Index: 1, Text: "700 такси"},
			}
		})

		It("should return the surviving candidate's fields", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(fields.Amount.StringFixed(2)).To(Equal("700.00"))
		})
	})

	When("no candidate yields an amount", func() {
		BeforeEach(func() {
			candidates = []artifact.Candidate{
				{ArtifactID: "a1", Index: 0, Text: "привет"},
			}
		})

		It("should fail with ErrExtractionFailed", func() {
			Expect(err).To(MatchError(ErrExtractionFailed))
		})
	})
})
