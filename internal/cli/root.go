// Package cli implements the illustrad command line interface.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "illustrad",
	Short: "Settlement daemon for the Illustra commission marketplace",
	Long: `illustrad is the settlement core of the Illustra commission
marketplace: the wallet ledger, the service-request state machine,
payment gateway reconciliation, and the withdrawal approval workflow.

All money amounts are integer minor units. The daemon persists to a
local sqlite database and exposes a JSON HTTP API.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", defaultConfigPath(),
		"path to the TOML config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the illustrad version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("illustrad 0.1.0")
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "illustrad.toml"
	}
	return filepath.Join(home, ".illustra", "illustrad.toml")
}
