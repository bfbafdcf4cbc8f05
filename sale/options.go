package sale

import (
	"fmt"
	"hash/fnv"
	"time"

	"github.com/creasty/defaults"

	"github.com/domainsale/forsale/config"
)

// Options are the immutable per-call lookup options. They are part of the
// cache key: two calls with different options never share a cache entry.
type Options struct {
	EnableRDAPCheck bool `default:"false"`
	// RDAPOnlyConfirms allows RDAP alone to mark a domain as for sale
	// (source ["rdap"]) when DNS produced no valid payload. Off by default
	// because RDAP data is not cryptographically tied to the zone operator.
	RDAPOnlyConfirms bool            `default:"false"`
	CacheTTL         config.Duration `default:"300s"`
	Timeout          config.Duration `default:"5s"`
}

// NewOptions returns Options with all defaults applied
func NewOptions() Options {
	var o Options

	// struct of plain fields, Set can only fail on a broken default tag
	_ = defaults.Set(&o)

	return o
}

// OptionsFromConfig maps the configured lookup defaults to call options
func OptionsFromConfig(lookup config.Lookup) Options {
	return Options{
		EnableRDAPCheck:  lookup.EnableRDAPCheck,
		RDAPOnlyConfirms: lookup.RDAPOnlyConfirms,
		CacheTTL:         lookup.CacheTTL,
		Timeout:          lookup.Timeout,
	}
}

// cacheKey returns a stable hash over the domain and every option field
func (o Options) cacheKey(domain string) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%t|%t|%d|%d",
		domain, o.EnableRDAPCheck, o.RDAPOnlyConfirms,
		o.CacheTTL.ToDuration(), o.Timeout.ToDuration())

	return fmt.Sprintf("%016x", h.Sum64())
}

func (o Options) timeout() time.Duration {
	if o.Timeout.IsAboveZero() {
		return o.Timeout.ToDuration()
	}

	return 5 * time.Second
}
