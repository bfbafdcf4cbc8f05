// Package sale contains the orchestrator: the single public entry point that
// turns an untrusted DNS answer into a safe, structured sale status.
package sale

import (
	"context"
	"errors"
	"time"

	"github.com/miekg/dns"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/idna"
	"golang.org/x/sync/singleflight"

	"github.com/domainsale/forsale/cache/expirationcache"
	"github.com/domainsale/forsale/log"
	"github.com/domainsale/forsale/metrics"
	"github.com/domainsale/forsale/model"
	"github.com/domainsale/forsale/rdap"
	"github.com/domainsale/forsale/record"
	"github.com/domainsale/forsale/resolver"
)

// failureCacheTTL caps how long a lookup whose DNS channel failed stays
// cached; long enough to absorb retry storms, short enough not to pin a
// transient failure
const failureCacheTTL = 30 * time.Second

// Service is the orchestrator. All mutable shared state lives in the cache;
// every mutation goes through the single-flight/insert path.
type Service struct {
	resolver resolver.Resolver
	rdap     rdap.Checker
	cache    expirationcache.ExpiringCache[model.SaleResponse]
	group    singleflight.Group
	logger   *logrus.Entry

	lookupsTotal *prometheus.CounterVec
	cacheHits    prometheus.Counter
}

// NewService creates the orchestrator with its own process-scoped cache.
// The context bounds the cache cleanup goroutine's lifetime.
func NewService(ctx context.Context, res resolver.Resolver, checker rdap.Checker) *Service {
	s := &Service{
		resolver: res,
		rdap:     checker,
		cache:    expirationcache.NewCache[model.SaleResponse](ctx),
		logger:   log.PrefixedLog("sale"),
	}

	s.lookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forsale_lookups_total",
			Help: "Number of sale status lookups by result",
		},
		[]string{"result"},
	)
	s.cacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "forsale_cache_hits_total",
			Help: "Number of lookups answered from cache",
		},
	)

	metrics.RegisterMetric(s.lookupsTotal)
	metrics.RegisterMetric(s.cacheHits)

	return s
}

// GetDomainSaleStatus determines whether the domain is advertised for sale.
//
// It never returns an error for untrusted-input reasons: the response carries
// forSale=false plus the recorded error kinds instead. The call returns
// within the configured timeout plus small overhead.
func (s *Service) GetDomainSaleStatus(ctx context.Context, domain string, opts Options) *model.SaleResponse {
	normalized, err := normalizeDomain(domain)
	if err != nil {
		// malformed input fails before touching cache or network
		return &model.SaleResponse{
			Domain: log.EscapeInput(domain),
			Errors: []model.LookupError{{Kind: model.ErrorKindInvalidDomain, Detail: err.Error()}},
		}
	}

	key := opts.cacheKey(normalized)

	if cached, _ := s.cache.Get(key); cached != nil {
		s.cacheHits.Inc()

		return cached
	}

	// at most one concurrent computation per key; concurrent callers await
	// the single in-flight result instead of issuing duplicate traffic
	result, _, _ := s.group.Do(key, func() (interface{}, error) {
		return s.lookupAndStore(ctx, key, normalized, opts), nil
	})

	return result.(*model.SaleResponse)
}

func (s *Service) lookupAndStore(ctx context.Context, key, domain string, opts Options) *model.SaleResponse {
	// the computation may be shared with other waiters, so it must survive
	// the first caller's cancellation; the own timeout still bounds it
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), opts.timeout())
	defer cancel()

	response, dnsFailed := s.lookup(ctx, domain, opts)

	ttl := opts.CacheTTL.ToDuration()
	if dnsFailed && ttl > failureCacheTTL {
		ttl = failureCacheTTL
	}

	s.cache.Put(key, response, ttl)

	return response
}

// lookup runs the DNS and RDAP channels concurrently and merges the outcome.
// The second return value reports whether the DNS channel failed (as opposed
// to a clean "no sale signal"), which shortens the cache TTL.
func (s *Service) lookup(ctx context.Context, domain string, opts Options) (*model.SaleResponse, bool) {
	response := &model.SaleResponse{Domain: domain}

	var rdapCh chan model.RdapResult

	if opts.EnableRDAPCheck {
		rdapCh = make(chan model.RdapResult, 1)

		go func() {
			rdapCh <- s.rdap.CrossCheck(ctx, domain)
		}()
	}

	payload, dnsErrors, dnsFailed := s.dnsChannel(ctx, domain)
	response.Errors = append(response.Errors, dnsErrors...)

	dnsConfirmed := false

	if payload != nil {
		response.Price = payload.Price
		response.URL = payload.URL
		response.Contact = payload.Contact
		response.Expires = payload.Expires
		response.Source = append(response.Source, model.SourceDNS)

		if !payload.ExpiresAt.IsZero() && payload.ExpiresAt.Before(time.Now()) {
			// was for sale, offer lapsed: distinguishable from "never for sale"
			response.Errors = append(response.Errors,
				model.LookupError{Kind: model.ErrorKindOfferExpired, Detail: payload.Expires})
		} else {
			dnsConfirmed = true
		}
	}

	rdapConfirmed := false

	if opts.EnableRDAPCheck {
		rdapResult := <-rdapCh

		if !rdapResult.Reachable {
			// a missing signal, never a veto of a DNS-confirmed sale
			response.Errors = append(response.Errors,
				model.LookupError{Kind: model.ErrorKindRdapUnreachable})
		}

		if rdapResult.TagPresent {
			response.Source = append(response.Source, model.SourceRDAP)
			rdapConfirmed = opts.RDAPOnlyConfirms
		}
	}

	response.ForSale = dnsConfirmed || rdapConfirmed

	s.recordMetrics(response)

	return response, dnsFailed
}

// dnsChannel resolves, selects and validates. DNS failures are terminal for
// this channel only; they are reported as error kinds, never thrown.
func (s *Service) dnsChannel(ctx context.Context, domain string) (*model.SalePayload, []model.LookupError, bool) {
	answer, err := s.resolver.Resolve(ctx, domain)
	if err != nil {
		return nil, []model.LookupError{classifyResolveError(err)}, true
	}

	var errs []model.LookupError

	for _, candidate := range record.Select(answer) {
		payload, validateErr := record.Validate(candidate)
		if validateErr != nil {
			// non-fatal: remaining candidates are still tried in order
			errs = append(errs, model.LookupError{
				Kind:   model.ErrorKindSchemaError,
				Detail: validateErr.Error(),
			})

			continue
		}

		return payload, errs, false
	}

	// no version-tagged record is a valid "no sale signal" outcome
	return nil, errs, false
}

func classifyResolveError(err error) model.LookupError {
	switch {
	case errors.Is(err, resolver.ErrTimeout):
		return model.LookupError{Kind: model.ErrorKindTimeout, Detail: err.Error()}
	case errors.Is(err, resolver.ErrNxDomain):
		return model.LookupError{Kind: model.ErrorKindNxDomain, Detail: err.Error()}
	case errors.Is(err, resolver.ErrDnssecValidation):
		return model.LookupError{Kind: model.ErrorKindDnssecValidationError, Detail: err.Error()}
	default:
		return model.LookupError{Kind: model.ErrorKindResolutionError, Detail: err.Error()}
	}
}

func (s *Service) recordMetrics(response *model.SaleResponse) {
	result := "not_for_sale"

	switch {
	case response.ForSale:
		result = "for_sale"
	case len(response.Errors) > 0:
		result = "error"
	}

	s.lookupsTotal.WithLabelValues(result).Inc()
}

// normalizeDomain converts the input to a lower-case ASCII (punycode) domain
// and validates its syntax before anything else happens
func normalizeDomain(domain string) (string, error) {
	ascii, err := idna.Lookup.ToASCII(domain)
	if err != nil {
		return "", err
	}

	if _, ok := dns.IsDomainName(ascii); !ok {
		return "", errors.New("not a valid domain name")
	}

	// a bare TLD or empty label sequence is not a registrable domain
	if dns.CountLabel(dns.Fqdn(ascii)) < 2 {
		return "", errors.New("domain must contain at least two labels")
	}

	return ascii, nil
}
