// Package cli implements the qqgate command line interface.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	buildDate = "unknown"
	gitCommit = "unknown"
)

// SetBuildInfo sets version info injected at build time.
func SetBuildInfo(v, date, commit string) {
	version = v
	buildDate = date
	gitCommit = commit
}

var rootCmd = &cobra.Command{
	Use:   "qqgate",
	Short: "qqgate — QQ bot channel gateway",
	Long: `qqgate — QQ bot channel gateway

Connects bot accounts to the QQ official bot API: inbound events over the
bot gateway websocket, outbound messages over the OpenAPI, with layered
credential resolution and a local status server.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("qqgate %s\n", version)
		fmt.Printf("  build:  %s\n", buildDate)
		fmt.Printf("  commit: %s\n", gitCommit)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(gatewayCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(accountsCmd)
}

// Execute runs the root cobra command.
func Execute() error {
	return rootCmd.Execute()
}
