// Package api exposes the lookup pipeline over HTTP for the demo server.
// It consumes the orchestrator's structured result only; no validation of
// its own.
package api

import (
	"context"

	"github.com/domainsale/forsale/model"
	"github.com/domainsale/forsale/sale"
)

const (
	// PathSaleAPI serves the JSON result
	PathSaleAPI = "/api/sale/{domain}"
	// PathSaleHTML serves the escaped HTML fragment
	PathSaleHTML = "/sale/{domain}"
	// PathMetrics serves the prometheus registry
	PathMetrics = "/metrics"
)

// SaleChecker is the only contract the HTTP layer depends on
type SaleChecker interface {
	GetDomainSaleStatus(ctx context.Context, domain string, opts sale.Options) *model.SaleResponse
}
