package cmd

import (
	"github.com/spf13/cobra"
)

// NewVersionCommand creates new command instance
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Args:  cobra.NoArgs,
		Short: "print the version number of forsale",
		Run:   printVersion,
	}
}

func printVersion(cmd *cobra.Command, _ []string) {
	cmd.Println("forsale")
	cmd.Printf("Version: %s\n", version)
	cmd.Printf("Build time: %s\n", buildTime)
}
