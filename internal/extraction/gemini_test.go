package extraction

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("parseVisionJSON", func() {
	var (
		jsonInput string
		fields    *Fields
		err       error
	)

	JustBeforeEach(func() {
		fields, err = parseVisionJSON(jsonInput)
	})

	When("parsing a complete response", func() {
		BeforeEach(func() {
			jsonInput = `{"amount": 670.5, "currency": "kzt", "date": "2025-03-08", "merchant": "Magnum", "description": "groceries", "confidence": {"amount": 0.95, "currency": 0.9, "merchant": 0.8, "date": 0.85}}`
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should parse the amount", func() {
			Expect(fields.Amount.StringFixed(2)).To(Equal("670.50"))
		})

		It("should uppercase and keep the supported currency", func() {
			Expect(fields.Currency).To(Equal("KZT"))
		})

		It("should parse the date", func() {
			Expect(fields.Date).To(Equal(time.Date(2025, 3, 8, 0, 0, 0, 0, time.UTC)))
		})

		It("should carry the per-field confidence", func() {
			Expect(fields.Confidence.Amount).To(Equal(0.95))
			Expect(fields.Confidence.Merchant).To(Equal(0.8))
		})

		It("should use the amount score as the overall score", func() {
			Expect(fields.Confidence.Overall).To(Equal(0.95))
		})

		It("should record the vision strategy", func() {
			Expect(fields.Strategy).To(Equal(StrategyVision))
		})
	})

	When("the response is wrapped in markdown fences", func() {
		BeforeEach(func() {
			jsonInput = "```json\n{\"amount\": 100, \"currency\": \"USD\", \"confidence\": {\"amount\": 0.9}}\n```"
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should parse the amount", func() {
			Expect(fields.Amount.StringFixed(2)).To(Equal("100.00"))
		})
	})

	When("the response buries the JSON in prose", func() {
		BeforeEach(func() {
			jsonInput = `Here is the result: {"amount": 55, "currency": "EUR"} Hope that helps!`
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should parse the embedded object", func() {
			Expect(fields.Amount.StringFixed(2)).To(Equal("55.00"))
			Expect(fields.Currency).To(Equal("EUR"))
		})
	})

	When("the currency is not supported", func() {
		BeforeEach(func() {
			jsonInput = `{"amount": 10, "currency": "GBP", "confidence": {"amount": 0.9, "currency": 0.9}}`
		})

		It("should drop the currency", func() {
			Expect(fields.Currency).To(BeEmpty())
		})

		It("should zero the currency confidence", func() {
			Expect(fields.Confidence.Currency).To(BeZero())
		})
	})

	When("the model returns no amount", func() {
		BeforeEach(func() {
			jsonInput = `{"amount": null, "currency": "KZT", "confidence": {"amount": 0.9, "currency": 0.9}}`
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should zero the amount confidence whatever the model claimed", func() {
			Expect(fields.Confidence.Amount).To(BeZero())
			Expect(fields.Confidence.Overall).To(BeZero())
		})
	})

	When("no confidence block is present", func() {
		BeforeEach(func() {
			jsonInput = `{"amount": 42, "currency": "USD", "merchant": "Costa", "date": "2025-01-10"}`
		})

		It("should assume high confidence for present fields", func() {
			Expect(fields.Confidence.Amount).To(Equal(0.9))
			Expect(fields.Confidence.Merchant).To(Equal(0.9))
		})
	})

	When("the response contains no JSON object", func() {
		BeforeEach(func() {
			jsonInput = "I could not read this receipt."
		})

		It("should return an error", func() {
			Expect(err).To(HaveOccurred())
		})
	})
})
