package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/domainsale/forsale/config"
	"github.com/domainsale/forsale/rdap"
	"github.com/domainsale/forsale/resolver"
	"github.com/domainsale/forsale/sale"
	"github.com/domainsale/forsale/web"
)

// NewCheckCommand creates new command instance
func NewCheckCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "check <domain>",
		Args:  cobra.ExactArgs(1),
		Short: "checks the for-sale status of a domain",
		RunE:  check,
	}

	c.Flags().Bool("rdap", false, "enable the RDAP cross-check")
	c.Flags().Int("cache-ttl", 0, "cache TTL in seconds (default from config)")
	c.Flags().Int("timeout", 0, "query timeout in seconds (default from config)")
	c.Flags().StringP("format", "f", "text", "output format (text, json, html)")

	return c
}

func check(cmd *cobra.Command, args []string) error {
	if err := initConfig(cmd); err != nil {
		return err
	}

	opts := sale.OptionsFromConfig(cfg.Lookup)

	if rdapFlag, _ := cmd.Flags().GetBool("rdap"); rdapFlag {
		opts.EnableRDAPCheck = true
	}

	if cacheTTL, _ := cmd.Flags().GetInt("cache-ttl"); cacheTTL > 0 {
		opts.CacheTTL = config.Duration(time.Duration(cacheTTL) * time.Second)
	}

	if timeout, _ := cmd.Flags().GetInt("timeout"); timeout > 0 {
		opts.Timeout = config.Duration(time.Duration(timeout) * time.Second)
	}

	res, err := resolver.NewUpstreamResolver(cfg.Upstream, cfg.TrustAnchors)
	if err != nil {
		return fmt.Errorf("can't create resolver: %w", err)
	}

	service := sale.NewService(cmd.Context(), res, rdap.NewClient())

	response := service.GetDomainSaleStatus(cmd.Context(), args[0], opts)

	format, _ := cmd.Flags().GetString("format")

	switch format {
	case "json":
		encoded, err := json.MarshalIndent(response, "", "  ")
		if err != nil {
			return fmt.Errorf("can't marshal response: %w", err)
		}

		cmd.Println(string(encoded))
	case "html":
		fragment, err := web.NewHTMLRenderer().Render(response)
		if err != nil {
			return fmt.Errorf("can't render response: %w", err)
		}

		cmd.Println(fragment)
	case "text":
		cmd.Print(web.ConsoleRenderer{}.Render(response))
	default:
		return fmt.Errorf("unknown format '%s'", format)
	}

	return nil
}
