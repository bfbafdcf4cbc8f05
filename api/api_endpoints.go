package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/domainsale/forsale/log"
	"github.com/domainsale/forsale/metrics"
	"github.com/domainsale/forsale/sale"
	"github.com/domainsale/forsale/web"
)

// NewRouter creates the HTTP router for the demo server. Per-request options
// start from the configured defaults; only the RDAP toggle is exposed as a
// query parameter, everything else is fixed policy.
func NewRouter(checker SaleChecker, defaultOptions sale.Options) chi.Router {
	handler := &saleHandler{
		checker:        checker,
		defaultOptions: defaultOptions,
		htmlRenderer:   web.NewHTMLRenderer(),
	}

	router := chi.NewRouter()
	router.Use(cors.Handler(cors.Options{
		AllowedMethods: []string{"GET"},
		AllowedOrigins: []string{"*"},
	}))

	router.Get(PathSaleAPI, handler.apiSale)
	router.Get(PathSaleHTML, handler.htmlSale)
	router.Handle(PathMetrics, metrics.Handler())

	return router
}

type saleHandler struct {
	checker        SaleChecker
	defaultOptions sale.Options
	htmlRenderer   *web.HTMLRenderer
}

func (h *saleHandler) options(r *http.Request) sale.Options {
	opts := h.defaultOptions

	if r.URL.Query().Get("rdap") == "true" {
		opts.EnableRDAPCheck = true
	}

	return opts
}

// apiSale returns the SaleResponse as JSON
func (h *saleHandler) apiSale(w http.ResponseWriter, r *http.Request) {
	domain := chi.URLParam(r, "domain")

	response := h.checker.GetDomainSaleStatus(r.Context(), domain, h.options(r))

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Log().Errorf("can't write api response: %v", err)
	}
}

// htmlSale returns the escaped HTML fragment
func (h *saleHandler) htmlSale(w http.ResponseWriter, r *http.Request) {
	domain := chi.URLParam(r, "domain")

	response := h.checker.GetDomainSaleStatus(r.Context(), domain, h.options(r))

	fragment, err := h.htmlRenderer.Render(response)
	if err != nil {
		http.Error(w, "rendering failed", http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	if _, err := w.Write([]byte(fragment)); err != nil {
		log.Log().Errorf("can't write html response: %v", err)
	}
}
