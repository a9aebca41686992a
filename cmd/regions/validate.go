package regions

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/projektkollen/collector/cmd/common"
	internalregions "github.com/projektkollen/collector/internal/regions"
)

// NewValidateCommand creates a new validate command
func NewValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the region definitions file for problems",
		Long: `Validate parses every entry in the region definitions file and reports
entries that would be rejected at startup.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := common.NewCommandDeps()
			if err != nil {
				return fmt.Errorf("failed to get dependencies: %w", err)
			}

			file := deps.Config.Collector.RegionsFile
			loader := internalregions.NewLoader(file)

			issues, err := loader.Lint()
			if err != nil {
				return fmt.Errorf("failed to read regions file: %w", err)
			}

			if len(issues) == 0 {
				fmt.Printf("%s: all region definitions are valid\n", file)
				return nil
			}

			for _, issue := range issues {
				fmt.Fprintf(os.Stderr, "  - %v\n", issue)
			}
			return fmt.Errorf("%d invalid region definitions in %s", len(issues), file)
		},
	}
}
