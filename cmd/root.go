package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/domainsale/forsale/config"
	"github.com/domainsale/forsale/log"
)

//nolint:gochecknoglobals
var (
	version    = "undefined"
	buildTime  = "undefined"
	configPath string
	cfg        config.Config
)

// NewRootCommand creates the root command with all subcommands attached
func NewRootCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "forsale",
		Short: "forsale checks whether a domain is advertised for sale",
		Long: `forsale discovers the "_for-sale" TXT record of a domain, enforces
DNSSEC chain validation over the answer and validates the advertised payload
against a closed schema before showing it to anyone.`,
		SilenceUsage: true,
	}

	c.PersistentFlags().StringVarP(&configPath, "config", "c", "./config.yml", "path to config file")

	c.AddCommand(
		NewCheckCommand(),
		NewServeCommand(),
		NewVersionCommand(),
	)

	return c
}

func initConfig(cmd *cobra.Command) error {
	mandatory := cmd.Flags().Changed("config")

	loaded, err := config.LoadConfig(configPath, mandatory)
	if err != nil {
		return fmt.Errorf("can't load config: %w", err)
	}

	cfg = loaded
	log.ConfigureLogger(cfg.Log)

	return nil
}

// Execute runs the root command
func Execute(v, b string) {
	version, buildTime = v, b

	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
