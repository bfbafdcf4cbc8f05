// Package rdap implements the single RDAP lookup needed for the sale
// cross-check: does the domain's registration data carry a "for-sale" status
// tag. It is deliberately not a general RDAP client.
package rdap

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/domainsale/forsale/log"
	"github.com/domainsale/forsale/model"
)

const (
	// IANABootstrapURL is the registry mapping TLDs to RDAP base URLs
	IANABootstrapURL = "https://data.iana.org/rdap/dns.json"

	// forSaleStatusTag is the status vocabulary entry we look for
	forSaleStatusTag = "for-sale"

	rdapContentType = "application/rdap+json"

	bootstrapTTL = time.Hour
)

// Checker is the cross-check contract the orchestrator depends on
type Checker interface {
	CrossCheck(ctx context.Context, domain string) model.RdapResult
}

// Client performs RDAP domain lookups via the IANA bootstrap registry.
// The bootstrap mapping is cached in-process for an hour.
type Client struct {
	httpClient   *http.Client
	bootstrapURL string
	logger       *logrus.Entry

	mu        sync.Mutex
	services  map[string]string // TLD suffix -> RDAP base URL
	fetchedAt time.Time
}

// NewClient creates an RDAP client using the IANA bootstrap registry
func NewClient() *Client {
	return NewClientWithBootstrap(IANABootstrapURL)
}

// NewClientWithBootstrap is used by tests to point at a fake registry
func NewClientWithBootstrap(bootstrapURL string) *Client {
	return &Client{
		httpClient:   &http.Client{},
		bootstrapURL: bootstrapURL,
		logger:       log.PrefixedLog("rdap"),
	}
}

// CrossCheck looks for the "for-sale" status tag in the domain's RDAP data.
// It never fails the overall lookup: every network or parse error becomes
// {TagPresent: false, Reachable: false}, a missing signal rather than an
// error. The passed context carries the caller's deadline.
func (c *Client) CrossCheck(ctx context.Context, domain string) model.RdapResult {
	tagPresent, err := c.checkStatusTag(ctx, domain)
	if err != nil {
		c.logger.Debugf("cross-check for %s failed: %v", log.EscapeInput(domain), err)

		return model.RdapResult{TagPresent: false, Reachable: false}
	}

	return model.RdapResult{TagPresent: tagPresent, Reachable: true}
}

func (c *Client) checkStatusTag(ctx context.Context, domain string) (bool, error) {
	baseURL, err := c.serverForDomain(ctx, domain)
	if err != nil {
		return false, err
	}

	queryURL := strings.TrimSuffix(baseURL, "/") + "/domain/" + domain

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, queryURL, nil)
	if err != nil {
		return false, err
	}

	req.Header.Set("Accept", rdapContentType)

	response, err := c.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return false, fmt.Errorf("rdap query returned status %d", response.StatusCode)
	}

	var rdapData struct {
		Status []string `json:"status"`
	}

	if err := json.NewDecoder(response.Body).Decode(&rdapData); err != nil {
		return false, fmt.Errorf("can't decode rdap response: %w", err)
	}

	for _, status := range rdapData.Status {
		if status == forSaleStatusTag {
			return true, nil
		}
	}

	return false, nil
}

// serverForDomain resolves the RDAP base URL via the bootstrap registry using
// longest-suffix matching
func (c *Client) serverForDomain(ctx context.Context, domain string) (string, error) {
	services, err := c.bootstrapServices(ctx)
	if err != nil {
		return "", err
	}

	best := ""
	bestLen := -1

	for suffix, server := range services {
		if (domain == suffix || strings.HasSuffix(domain, "."+suffix)) && len(suffix) > bestLen {
			best = server
			bestLen = len(suffix)
		}
	}

	if best == "" {
		return "", fmt.Errorf("no rdap server known for %s", log.EscapeInput(domain))
	}

	return best, nil
}

func (c *Client) bootstrapServices(ctx context.Context) (map[string]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.services != nil && time.Since(c.fetchedAt) < bootstrapTTL {
		return c.services, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.bootstrapURL, nil)
	if err != nil {
		return nil, err
	}

	response, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bootstrap fetch failed: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bootstrap fetch returned status %d", response.StatusCode)
	}

	var bootstrap struct {
		Services [][2][]string `json:"services"`
	}

	if err := json.NewDecoder(response.Body).Decode(&bootstrap); err != nil {
		return nil, fmt.Errorf("can't decode bootstrap registry: %w", err)
	}

	services := make(map[string]string)

	for _, service := range bootstrap.Services {
		tlds, servers := service[0], service[1]
		if len(servers) == 0 {
			continue
		}

		for _, tld := range tlds {
			services[strings.ToLower(tld)] = servers[0]
		}
	}

	c.services = services
	c.fetchedAt = time.Now()

	c.logger.Debugf("bootstrap registry loaded with %d entries", len(services))

	return services, nil
}
