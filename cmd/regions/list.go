// This file contains the implementation of the list command that displays
// all configured regions in a formatted table.
package regions

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/projektkollen/collector/cmd/common"
	"github.com/projektkollen/collector/internal/logger"
	internalregions "github.com/projektkollen/collector/internal/regions"
)

// TableRenderer handles the display of region data in a table format
type TableRenderer struct {
	logger logger.Logger
}

// NewTableRenderer creates a new TableRenderer instance
func NewTableRenderer(log logger.Logger) *TableRenderer {
	return &TableRenderer{
		logger: log,
	}
}

// RenderTable formats and displays the regions in a table format
func (r *TableRenderer) RenderTable(regionList []internalregions.Region) error {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)

	t.AppendHeader(table.Row{"ID", "Name", "Source", "Base URL", "Max Pages", "Rate Limit", "Status"})

	for i := range regionList {
		region := &regionList[i]

		status := "enabled"
		if region.Disabled {
			status = "disabled"
		}

		t.AppendRow(table.Row{
			region.ID,
			region.Name,
			region.Source,
			region.BaseURL,
			region.MaxPages,
			region.RateLimit,
			status,
		})
	}

	t.Render()
	return nil
}

// Lister handles listing regions
type Lister struct {
	registry internalregions.Interface
	logger   logger.Logger
	renderer *TableRenderer
}

// NewLister creates a new Lister instance
func NewLister(
	registry internalregions.Interface,
	log logger.Logger,
	renderer *TableRenderer,
) *Lister {
	return &Lister{
		registry: registry,
		logger:   log,
		renderer: renderer,
	}
}

// Start begins the list operation
func (l *Lister) Start() error {
	regionList := l.registry.ListRegions()
	if len(regionList) == 0 {
		l.logger.Info("No regions configured")
		return nil
	}

	return l.renderer.RenderTable(regionList)
}

// NewListCommand creates a new list command
func NewListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all configured regions",
		Long:  `List all regions configured for collection, including disabled ones.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := common.NewCommandDeps()
			if err != nil {
				return fmt.Errorf("failed to get dependencies: %w", err)
			}

			registry, err := internalregions.LoadRegistry(deps.Config.Collector.RegionsFile)
			if err != nil {
				return fmt.Errorf("failed to load regions: %w", err)
			}

			renderer := NewTableRenderer(deps.Logger)
			lister := NewLister(registry, deps.Logger, renderer)

			return lister.Start()
		},
	}
}
