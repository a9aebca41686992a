// Package regions implements the command-line interface for managing region
// definitions. It provides commands for listing the configured regions and
// validating the definitions file before a deploy.
package regions

import (
	"github.com/spf13/cobra"
)

// Command returns the regions command with its subcommands.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "regions",
		Short: "Manage region definitions",
		Long:  `List and validate the region definitions used for collection runs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(NewListCommand())
	cmd.AddCommand(NewValidateCommand())

	return cmd
}
