package cmd

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/domainsale/forsale/api"
	"github.com/domainsale/forsale/log"
	"github.com/domainsale/forsale/metrics"
	"github.com/domainsale/forsale/rdap"
	"github.com/domainsale/forsale/resolver"
	"github.com/domainsale/forsale/sale"
)

const serverReadHeaderTimeout = 5 * time.Second

// NewServeCommand creates new command instance
func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Args:  cobra.NoArgs,
		Short: "starts the demo web server",
		RunE:  serve,
	}
}

func serve(cmd *cobra.Command, _ []string) error {
	if err := initConfig(cmd); err != nil {
		return err
	}

	res, err := resolver.NewUpstreamResolver(cfg.Upstream, cfg.TrustAnchors)
	if err != nil {
		return fmt.Errorf("can't create resolver: %w", err)
	}

	service := sale.NewService(cmd.Context(), res, rdap.NewClient())
	router := api.NewRouter(service, sale.OptionsFromConfig(cfg.Lookup))

	metrics.StartCollection()

	address := fmt.Sprintf(":%d", cfg.HTTPPort)
	log.Log().Infof("http server is up and running on addr/port %s", address)

	server := &http.Server{
		Addr:              address,
		Handler:           router,
		ReadHeaderTimeout: serverReadHeaderTimeout,
	}

	return server.ListenAndServe()
}
