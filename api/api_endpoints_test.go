package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/domainsale/forsale/model"
	"github.com/domainsale/forsale/sale"
)

type checkerStub struct {
	response *model.SaleResponse

	lastDomain string
	lastOpts   sale.Options
}

func (s *checkerStub) GetDomainSaleStatus(_ context.Context, domain string, opts sale.Options) *model.SaleResponse {
	s.lastDomain = domain
	s.lastOpts = opts

	if s.response != nil {
		return s.response
	}

	return &model.SaleResponse{Domain: domain}
}

var _ = Describe("API endpoints", func() {
	var (
		checker *checkerStub
		server  *httptest.Server
	)

	BeforeEach(func() {
		checker = &checkerStub{}
		server = httptest.NewServer(NewRouter(checker, sale.NewOptions()))
		DeferCleanup(server.Close)
	})

	get := func(path string) (*http.Response, string) {
		GinkgoHelper()

		response, err := http.Get(server.URL + path)
		Expect(err).Should(Succeed())
		DeferCleanup(func() { response.Body.Close() })

		body, err := io.ReadAll(response.Body)
		Expect(err).Should(Succeed())

		return response, string(body)
	}

	Describe("GET /api/sale/{domain}", func() {
		It("returns the sale status as JSON", func() {
			checker.response = &model.SaleResponse{
				Domain:  "example.com",
				ForSale: true,
				Price:   "USD:5000",
				Source:  []string{model.SourceDNS},
			}

			response, body := get("/api/sale/example.com")

			Expect(response.StatusCode).Should(Equal(http.StatusOK))
			Expect(response.Header.Get("Content-Type")).Should(Equal("application/json"))
			Expect(checker.lastDomain).Should(Equal("example.com"))

			var decoded model.SaleResponse
			Expect(json.Unmarshal([]byte(body), &decoded)).Should(Succeed())
			Expect(decoded.Domain).Should(Equal("example.com"))
			Expect(decoded.ForSale).Should(BeTrue())
			Expect(decoded.Price).Should(Equal("USD:5000"))
		})

		It("serializes errors as their kind names only", func() {
			checker.response = &model.SaleResponse{
				Domain: "example.com",
				Errors: []model.LookupError{{Kind: model.ErrorKindNxDomain, Detail: "internal detail"}},
			}

			_, body := get("/api/sale/example.com")

			Expect(body).Should(ContainSubstring(`"NxDomain"`))
			Expect(body).ShouldNot(ContainSubstring("internal detail"))
		})

		It("keeps the rdap check off by default", func() {
			get("/api/sale/example.com")

			Expect(checker.lastOpts.EnableRDAPCheck).Should(BeFalse())
		})

		It("enables the rdap check via query parameter", func() {
			get("/api/sale/example.com?rdap=true")

			Expect(checker.lastOpts.EnableRDAPCheck).Should(BeTrue())
		})
	})

	Describe("GET /sale/{domain}", func() {
		It("returns the escaped HTML fragment", func() {
			checker.response = &model.SaleResponse{
				Domain:  "example.com",
				ForSale: true,
				Price:   "USD:5000",
			}

			response, body := get("/sale/example.com")

			Expect(response.StatusCode).Should(Equal(http.StatusOK))
			Expect(response.Header.Get("Content-Type")).Should(HavePrefix("text/html"))
			Expect(body).Should(ContainSubstring("Domain for Sale: example.com"))
		})
	})

	Describe("GET /metrics", func() {
		It("exposes the prometheus registry", func() {
			response, _ := get("/metrics")

			Expect(response.StatusCode).Should(Equal(http.StatusOK))
		})
	})
})
