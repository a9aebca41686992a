// Package cmd implements the command-line interface for the collector.
// It provides the root command and subcommands for running the API server
// and one-shot collection runs.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/projektkollen/collector/cmd/collect"
	"github.com/projektkollen/collector/cmd/common"
	cmdregions "github.com/projektkollen/collector/cmd/regions"
	"github.com/projektkollen/collector/cmd/serve"
)

// rootCmd represents the root command for the collector CLI.
var rootCmd = &cobra.Command{
	Use:   "collector",
	Short: "Swedish public diarium collector",
	Long: `Collector gathers public case postings from county administrative
boards, the transport administration and municipal registries, and serves
them through an HTTP API.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command
func Execute() error {
	// Parse flags early so --config and --debug are visible before any
	// subcommand loads configuration.
	_ = rootCmd.ParseFlags(os.Args[1:])

	return rootCmd.ExecuteContext(context.Background())
}

// init initializes the root command and its subcommands.
func init() {
	rootCmd.PersistentFlags().StringVar(
		&common.ConfigPath,
		"config",
		"",
		"config file (default is ./config.yml or $CONFIG_PATH)",
	)
	rootCmd.PersistentFlags().BoolVar(&common.Debug, "debug", false, "enable debug mode")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("collector version %s\n", common.Version)
		},
	})

	rootCmd.AddCommand(serve.Command())
	rootCmd.AddCommand(collect.Command())
	rootCmd.AddCommand(collect.DetailsCommand())
	rootCmd.AddCommand(cmdregions.Command())
}
