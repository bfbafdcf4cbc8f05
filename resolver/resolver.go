package resolver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"

	"github.com/domainsale/forsale/log"
	"github.com/domainsale/forsale/model"
	"github.com/domainsale/forsale/util"
)

const (
	// forSaleLabel is the fixed owner label of the sale advertisement record
	forSaleLabel = "_for-sale"

	// ednsUDPSize is the EDNS0 UDP buffer size for DNSSEC queries
	ednsUDPSize = 4096

	retryAttempts = 3
	retryDelay    = 100 * time.Millisecond
)

var (
	// ErrTimeout indicates the upstream did not answer within the deadline
	ErrTimeout = errors.New("dns query timed out")
	// ErrNxDomain indicates the queried name does not exist
	ErrNxDomain = errors.New("domain does not exist")
	// ErrResolution indicates any other upstream failure
	ErrResolution = errors.New("dns resolution failed")
)

// Resolver performs the `_for-sale` TXT lookup with mandatory DNSSEC chain
// validation. The passed context carries the caller's deadline.
type Resolver interface {
	Resolve(ctx context.Context, domain string) (*model.RawAnswer, error)
}

// Exchanger sends a single DNS message to the upstream resolver
type Exchanger interface {
	Exchange(ctx context.Context, msg *dns.Msg) (*dns.Msg, error)
}

type upstreamClient struct {
	udpClient, tcpClient *dns.Client
	address              string
}

func newUpstreamClient(address string) *upstreamClient {
	return &upstreamClient{
		udpClient: &dns.Client{Net: "udp"},
		tcpClient: &dns.Client{Net: "tcp"},
		address:   address,
	}
}

// Exchange sends the message over UDP and falls back to TCP on truncation
func (c *upstreamClient) Exchange(ctx context.Context, msg *dns.Msg) (*dns.Msg, error) {
	response, _, err := c.udpClient.ExchangeContext(ctx, msg, c.address)
	if err != nil {
		return nil, err
	}

	if response.Truncated {
		response, _, err = c.tcpClient.ExchangeContext(ctx, msg, c.address)
		if err != nil {
			return nil, err
		}
	}

	return response, nil
}

// UpstreamResolver queries one upstream recursive resolver and independently
// verifies the DNSSEC chain of trust over the answer
type UpstreamResolver struct {
	client    Exchanger
	validator *ChainValidator
	logger    *logrus.Entry
}

// NewUpstreamResolver creates a resolver against the passed upstream address
// (host:port). Custom trust anchors may be passed in DNSKEY zone file format;
// empty means the IANA root KSKs.
func NewUpstreamResolver(upstream string, trustAnchors []string) (*UpstreamResolver, error) {
	client := newUpstreamClient(upstream)

	validator, err := NewChainValidator(client, trustAnchors)
	if err != nil {
		return nil, err
	}

	return &UpstreamResolver{
		client:    client,
		validator: validator,
		logger:    log.PrefixedLog("resolver"),
	}, nil
}

// NewUpstreamResolverWithExchanger is used by tests to inject a fake upstream
func NewUpstreamResolverWithExchanger(exchanger Exchanger, trustAnchors []string) (*UpstreamResolver, error) {
	validator, err := NewChainValidator(exchanger, trustAnchors)
	if err != nil {
		return nil, err
	}

	return &UpstreamResolver{
		client:    exchanger,
		validator: validator,
		logger:    log.PrefixedLog("resolver"),
	}, nil
}

// Resolve queries the `_for-sale` TXT record of the passed domain.
//
// The answer is only returned if the full chain of trust from the root trust
// anchors down to the TXT RRset verifies. An unsigned zone is treated exactly
// like a failed validation: there is no "validate if present" fallback.
func (r *UpstreamResolver) Resolve(ctx context.Context, domain string) (*model.RawAnswer, error) {
	qname := dns.Fqdn(forSaleLabel + "." + domain)

	msg := new(dns.Msg)
	msg.SetQuestion(qname, dns.TypeTXT)
	msg.SetEdns0(ednsUDPSize, true)

	response, err := r.exchangeWithRetry(ctx, msg)
	if err != nil {
		return nil, r.classifyNetworkError(err)
	}

	switch response.Rcode {
	case dns.RcodeSuccess:
		// fall through to answer processing
	case dns.RcodeNameError:
		return nil, fmt.Errorf("%w: %s", ErrNxDomain, log.EscapeInput(qname))
	default:
		return nil, fmt.Errorf("%w: rcode %s", ErrResolution, dns.RcodeToString[response.Rcode])
	}

	answer := &model.RawAnswer{Rcode: response.Rcode}

	for _, rr := range response.Answer {
		if txt, ok := rr.(*dns.TXT); ok && strings.EqualFold(txt.Header().Name, qname) {
			answer.Records = append(answer.Records, model.TXTRecord{
				// character-strings of one TXT record form one logical value
				Content: strings.Join(txt.Txt, ""),
				TTL:     txt.Header().Ttl,
			})
		}
	}

	// an empty RRset is a valid "no sale signal" outcome, nothing to validate
	if len(answer.Records) == 0 {
		r.logger.Debugf("no TXT records at %s", log.EscapeInput(qname))

		return answer, nil
	}

	if err := r.validator.Validate(ctx, response, qname); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDnssecValidation, err)
	}

	answer.Authenticated = true

	r.logger.WithFields(logrus.Fields{
		"answer":  util.AnswerToString(response.Answer),
		"records": len(answer.Records),
	}).Debugf("authenticated TXT answer for %s", log.EscapeInput(qname))

	return answer, nil
}

func (r *UpstreamResolver) exchangeWithRetry(ctx context.Context, msg *dns.Msg) (*dns.Msg, error) {
	return retry.DoWithData(
		func() (*dns.Msg, error) {
			return r.client.Exchange(ctx, msg)
		},
		retry.Context(ctx),
		retry.Attempts(retryAttempts),
		retry.Delay(retryDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			var netErr net.Error

			// only transient network errors are worth another attempt
			return errors.As(err, &netErr) && !netErr.Timeout()
		}),
	)
}

func (r *UpstreamResolver) classifyNetworkError(err error) error {
	var netErr net.Error

	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrResolution, err)
}
