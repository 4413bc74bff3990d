// Package main provides the entry point for the torfetch CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for torfetch.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "torfetch",
		Short: "Fetch video transcripts through rotating Tor exit identities",
		Long: `torfetch fetches video transcripts over the Tor network, rotating the
exit identity between retries so per-IP rate limits never pin a whole
session to one blocked address.

By default, torfetch discovers running Tor daemons on sequential local
SOCKS ports (9050, 9052, ...). Use --external-tor to target a specific
proxy, or --embedded-tor to bootstrap a private daemon.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	// Add subcommands
	cmd.AddCommand(NewFetchCmd())
	cmd.AddCommand(NewStatusCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}
