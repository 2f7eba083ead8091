package currency

import (
	"context"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
	"github.com/shopspring/decimal"
)

var _ = Describe("HTTPSource", func() {
	var (
		server *ghttp.Server
		source *HTTPSource
		rates  map[string]decimal.Decimal
		err    error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		source = NewHTTPSource(server.URL(), time.Second)
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		rates, err = source.Rates(context.Background(), "RUB")
	})

	When("the source answers with rates", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest("GET", "/RUB"),
				ghttp.RespondWith(http.StatusOK, `{
					"result": "success",
					"conversion_rates": {"KZT": 5.2, "USD": 0.011, "GBP": 0.0086, "TRY": -3}
				}`),
			))
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should keep supported positive rates", func() {
			Expect(rates).To(HaveKey("KZT"))
			Expect(rates["KZT"].String()).To(Equal("5.2"))
			Expect(rates).To(HaveKey("USD"))
		})

		It("should drop unsupported currencies", func() {
			Expect(rates).NotTo(HaveKey("GBP"))
		})

		It("should drop non-positive rates", func() {
			Expect(rates).NotTo(HaveKey("TRY"))
		})
	})

	When("the source answers with an error status", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusBadGateway, "upstream down"))
		})

		It("should return an error", func() {
			Expect(err).To(HaveOccurred())
		})
	})

	When("the source reports a non-success result", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusOK, `{"result": "error", "conversion_rates": {}}`))
		})

		It("should return an error", func() {
			Expect(err).To(HaveOccurred())
		})
	})

	When("no usable rates survive filtering", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusOK, `{"result": "success", "conversion_rates": {"GBP": 1.0}}`))
		})

		It("should return an error", func() {
			Expect(err).To(HaveOccurred())
		})
	})
})
