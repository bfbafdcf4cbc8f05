package sale

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/stretchr/testify/mock"

	"github.com/domainsale/forsale/model"
	"github.com/domainsale/forsale/resolver"
)

const validRecord = `v=FORSALE1;{"price":"USD:5000",` +
	`"url":"https://escrow.example/buy","contact":"mailto:owner@example.com","expires":"2099-12-31"}`

type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) Resolve(ctx context.Context, domain string) (*model.RawAnswer, error) {
	args := m.Called(ctx, domain)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*model.RawAnswer), args.Error(1)
}

type rdapStub struct {
	result model.RdapResult
	calls  atomic.Int32
}

func (s *rdapStub) CrossCheck(_ context.Context, _ string) model.RdapResult {
	s.calls.Add(1)

	return s.result
}

func signedAnswer(contents ...string) *model.RawAnswer {
	answer := &model.RawAnswer{Authenticated: true}

	for _, content := range contents {
		answer.Records = append(answer.Records, model.TXTRecord{Content: content, TTL: 300})
	}

	return answer
}

var _ = Describe("Service", func() {
	var (
		ctx      context.Context
		resolvr  *mockResolver
		rdapMock *rdapStub
		sut      *Service
		opts     Options
	)

	BeforeEach(func() {
		var cancelFn context.CancelFunc
		ctx, cancelFn = context.WithCancel(context.Background())
		DeferCleanup(cancelFn)

		resolvr = &mockResolver{}
		rdapMock = &rdapStub{result: model.RdapResult{Reachable: true}}
		sut = NewService(ctx, resolvr, rdapMock)
		opts = NewOptions()
	})

	Describe("a validated signed record", func() {
		BeforeEach(func() {
			resolvr.On("Resolve", mock.Anything, "example.com").Return(signedAnswer(validRecord), nil)
		})

		It("marks the domain for sale from the dns source", func() {
			response := sut.GetDomainSaleStatus(ctx, "example.com", opts)

			Expect(response.ForSale).Should(BeTrue())
			Expect(response.Domain).Should(Equal("example.com"))
			Expect(response.Price).Should(Equal("USD:5000"))
			Expect(response.URL).Should(Equal("https://escrow.example/buy"))
			Expect(response.Contact).Should(Equal("mailto:owner@example.com"))
			Expect(response.Expires).Should(Equal("2099-12-31"))
			Expect(response.Source).Should(Equal([]string{model.SourceDNS}))
			Expect(response.Errors).Should(BeEmpty())
		})

		It("answers the second identical query from cache", func() {
			first := sut.GetDomainSaleStatus(ctx, "example.com", opts)
			second := sut.GetDomainSaleStatus(ctx, "example.com", opts)

			Expect(second).Should(Equal(first))
			resolvr.AssertNumberOfCalls(GinkgoT(), "Resolve", 1)
		})

		It("normalizes the domain before the cache lookup", func() {
			sut.GetDomainSaleStatus(ctx, "EXAMPLE.com", opts)
			sut.GetDomainSaleStatus(ctx, "example.com", opts)

			resolvr.AssertNumberOfCalls(GinkgoT(), "Resolve", 1)
		})

		It("does not share cache entries between different options", func() {
			other := opts
			other.CacheTTL = opts.CacheTTL / 2

			sut.GetDomainSaleStatus(ctx, "example.com", opts)
			sut.GetDomainSaleStatus(ctx, "example.com", other)

			resolvr.AssertNumberOfCalls(GinkgoT(), "Resolve", 2)
		})

		It("does not consult rdap unless enabled", func() {
			sut.GetDomainSaleStatus(ctx, "example.com", opts)

			Expect(rdapMock.calls.Load()).Should(BeZero())
		})
	})

	Describe("input validation", func() {
		It("rejects a malformed domain before any network traffic", func() {
			response := sut.GetDomainSaleStatus(ctx, "not a domain", opts)

			Expect(response.ForSale).Should(BeFalse())
			Expect(response.HasError(model.ErrorKindInvalidDomain)).Should(BeTrue())
			resolvr.AssertNotCalled(GinkgoT(), "Resolve", mock.Anything, mock.Anything)
		})

		It("rejects a single label, a bare TLD is not registrable", func() {
			response := sut.GetDomainSaleStatus(ctx, "localhost", opts)

			Expect(response.HasError(model.ErrorKindInvalidDomain)).Should(BeTrue())
			resolvr.AssertNotCalled(GinkgoT(), "Resolve", mock.Anything, mock.Anything)
		})
	})

	Describe("resolution failures", func() {
		entryFor := func(resolveErr error, kind model.ErrorKind) func() {
			return func() {
				resolvr.On("Resolve", mock.Anything, "example.com").Return(nil, resolveErr)

				response := sut.GetDomainSaleStatus(ctx, "example.com", opts)

				Expect(response.ForSale).Should(BeFalse())
				Expect(response.ErrorKinds()).Should(Equal([]model.ErrorKind{kind}))
			}
		}

		It("reports a failed chain of trust",
			entryFor(fmt.Errorf("%w: unsigned", resolver.ErrDnssecValidation), model.ErrorKindDnssecValidationError))

		It("reports a timeout",
			entryFor(fmt.Errorf("%w: deadline", resolver.ErrTimeout), model.ErrorKindTimeout))

		It("reports a missing name",
			entryFor(fmt.Errorf("%w: nxdomain", resolver.ErrNxDomain), model.ErrorKindNxDomain))

		It("reports any other upstream failure",
			entryFor(fmt.Errorf("%w: servfail", resolver.ErrResolution), model.ErrorKindResolutionError))

		It("caches the failed lookup as well", func() {
			resolvr.On("Resolve", mock.Anything, "example.com").
				Return(nil, fmt.Errorf("%w: deadline", resolver.ErrTimeout))

			sut.GetDomainSaleStatus(ctx, "example.com", opts)
			sut.GetDomainSaleStatus(ctx, "example.com", opts)

			resolvr.AssertNumberOfCalls(GinkgoT(), "Resolve", 1)
		})
	})

	Describe("record selection and validation", func() {
		It("treats an empty answer as not for sale without errors", func() {
			resolvr.On("Resolve", mock.Anything, "example.com").Return(signedAnswer(), nil)

			response := sut.GetDomainSaleStatus(ctx, "example.com", opts)

			Expect(response.ForSale).Should(BeFalse())
			Expect(response.Errors).Should(BeEmpty())
			Expect(response.Source).Should(BeEmpty())
		})

		It("records a schema failure and stays not for sale", func() {
			resolvr.On("Resolve", mock.Anything, "example.com").
				Return(signedAnswer(`v=FORSALE1;{"price":"USD:1","note":"call me"}`), nil)

			response := sut.GetDomainSaleStatus(ctx, "example.com", opts)

			Expect(response.ForSale).Should(BeFalse())
			Expect(response.ErrorKinds()).Should(Equal([]model.ErrorKind{model.ErrorKindSchemaError}))
		})

		It("falls back to the next candidate when the first fails validation", func() {
			resolvr.On("Resolve", mock.Anything, "example.com").
				Return(signedAnswer("v=FORSALE1;not json", validRecord), nil)

			response := sut.GetDomainSaleStatus(ctx, "example.com", opts)

			Expect(response.ForSale).Should(BeTrue())
			Expect(response.Price).Should(Equal("USD:5000"))
			// the failed candidate stays visible as a non-fatal error
			Expect(response.HasError(model.ErrorKindSchemaError)).Should(BeTrue())
		})

		It("reports a lapsed offer instead of advertising it", func() {
			resolvr.On("Resolve", mock.Anything, "example.com").
				Return(signedAnswer(`v=FORSALE1;{"price":"USD:1","expires":"2020-01-01"}`), nil)

			response := sut.GetDomainSaleStatus(ctx, "example.com", opts)

			Expect(response.ForSale).Should(BeFalse())
			Expect(response.HasError(model.ErrorKindOfferExpired)).Should(BeTrue())
			// the payload itself stays visible
			Expect(response.Price).Should(Equal("USD:1"))
			Expect(response.Source).Should(Equal([]string{model.SourceDNS}))
		})
	})

	Describe("the rdap cross-check", func() {
		BeforeEach(func() {
			opts.EnableRDAPCheck = true
		})

		It("adds rdap as a source next to dns", func() {
			resolvr.On("Resolve", mock.Anything, "example.com").Return(signedAnswer(validRecord), nil)
			rdapMock.result = model.RdapResult{TagPresent: true, Reachable: true}

			response := sut.GetDomainSaleStatus(ctx, "example.com", opts)

			Expect(response.ForSale).Should(BeTrue())
			Expect(response.Source).Should(Equal([]string{model.SourceDNS, model.SourceRDAP}))
		})

		It("never vetoes a dns-confirmed sale when unreachable", func() {
			resolvr.On("Resolve", mock.Anything, "example.com").Return(signedAnswer(validRecord), nil)
			rdapMock.result = model.RdapResult{TagPresent: false, Reachable: false}

			response := sut.GetDomainSaleStatus(ctx, "example.com", opts)

			Expect(response.ForSale).Should(BeTrue())
			Expect(response.HasError(model.ErrorKindRdapUnreachable)).Should(BeTrue())
		})

		It("does not confirm a sale on its own by default", func() {
			resolvr.On("Resolve", mock.Anything, "example.com").Return(signedAnswer(), nil)
			rdapMock.result = model.RdapResult{TagPresent: true, Reachable: true}

			response := sut.GetDomainSaleStatus(ctx, "example.com", opts)

			Expect(response.ForSale).Should(BeFalse())
			Expect(response.Source).Should(Equal([]string{model.SourceRDAP}))
		})

		It("confirms a sale on its own when explicitly allowed", func() {
			opts.RDAPOnlyConfirms = true

			resolvr.On("Resolve", mock.Anything, "example.com").Return(signedAnswer(), nil)
			rdapMock.result = model.RdapResult{TagPresent: true, Reachable: true}

			response := sut.GetDomainSaleStatus(ctx, "example.com", opts)

			Expect(response.ForSale).Should(BeTrue())
			Expect(response.Source).Should(Equal([]string{model.SourceRDAP}))
		})
	})

	Describe("concurrent lookups of the same key", func() {
		It("shares one in-flight computation", func() {
			var calls atomic.Int32

			slow := resolveFn(func(_ context.Context, _ string) (*model.RawAnswer, error) {
				calls.Add(1)
				time.Sleep(100 * time.Millisecond)

				return signedAnswer(validRecord), nil
			})

			service := NewService(ctx, slow, rdapMock)

			const clients = 10

			var wg sync.WaitGroup

			results := make([]*model.SaleResponse, clients)

			for i := 0; i < clients; i++ {
				wg.Add(1)

				go func(i int) {
					defer wg.Done()
					defer GinkgoRecover()

					results[i] = service.GetDomainSaleStatus(ctx, "example.com", opts)
				}(i)
			}

			wg.Wait()

			Expect(calls.Load()).Should(Equal(int32(1)))

			for _, response := range results {
				Expect(response.ForSale).Should(BeTrue())
			}
		})
	})
})

// resolveFn adapts a function to the resolver contract
type resolveFn func(ctx context.Context, domain string) (*model.RawAnswer, error)

func (f resolveFn) Resolve(ctx context.Context, domain string) (*model.RawAnswer, error) {
	return f(ctx, domain)
}
