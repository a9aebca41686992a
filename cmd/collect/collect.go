// Package collect implements one-shot collection runs from the command line.
// It assembles the same pipeline the server uses, starts a run, waits for it
// to finish and prints a per-region summary table.
package collect

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/projektkollen/collector/cmd/common"
	"github.com/projektkollen/collector/internal/collector"
	"github.com/projektkollen/collector/internal/database"
	"github.com/projektkollen/collector/internal/domain"
	"github.com/projektkollen/collector/internal/logger"
	"github.com/projektkollen/collector/internal/metrics"
	"github.com/projektkollen/collector/internal/regions"
	"github.com/projektkollen/collector/internal/sse"
	"github.com/projektkollen/collector/internal/tasks"
)

const dateLayout = "2006-01-02"

// Runner drives a run to completion and renders its outcome.
type Runner struct {
	log       logger.Logger
	broker    sse.Broker
	tasks     *tasks.Registry
	collector *collector.Collector
}

// Command returns the collect command.
func Command() *cobra.Command {
	var (
		fromDate  string
		toDate    string
		regionIDs []string
		resume    bool
	)

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Run a collection pass and wait for it to finish",
		Long: `Collect fetches case postings from the configured regions, stores them
and prints a per-region summary when the run completes. Interrupting the
command cancels the run at the next page boundary.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filters, err := buildFilters(fromDate, toDate, resume)
			if err != nil {
				return err
			}

			deps, err := common.NewCommandDeps()
			if err != nil {
				return fmt.Errorf("failed to get dependencies: %w", err)
			}

			runner, cleanup, err := newRunner(cmd.Context(), deps)
			if err != nil {
				return err
			}
			defer cleanup()

			return runner.Run(cmd.Context(), filters, regionIDs)
		},
	}

	cmd.Flags().StringVar(&fromDate, "from", "", "collect cases registered on or after this date (2006-01-02)")
	cmd.Flags().StringVar(&toDate, "to", "", "collect cases registered on or before this date (2006-01-02)")
	cmd.Flags().StringSliceVar(&regionIDs, "regions", nil, "region ids to collect (default: all enabled regions)")
	cmd.Flags().BoolVar(&resume, "resume", false, "continue each region from its last recorded page")

	return cmd
}

// buildFilters parses the date flags into run filters.
func buildFilters(from, to string, resume bool) (domain.Filters, error) {
	filters := domain.Filters{Resume: resume}

	if from != "" {
		parsed, err := time.Parse(dateLayout, from)
		if err != nil {
			return filters, fmt.Errorf("--from must be formatted as %s", dateLayout)
		}
		filters.FromDate = parsed
	}
	if to != "" {
		parsed, err := time.Parse(dateLayout, to)
		if err != nil {
			return filters, fmt.Errorf("--to must be formatted as %s", dateLayout)
		}
		filters.ToDate = parsed
	}

	return filters, nil
}

// newRunner assembles the collection pipeline. The returned cleanup stops
// the broker and closes the database.
func newRunner(ctx context.Context, deps *common.CommandDeps) (*Runner, func(), error) {
	cfg, log := deps.Config, deps.Logger

	registry, err := regions.LoadRegistry(cfg.Collector.RegionsFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load regions: %w", err)
	}

	db, err := common.OpenDatabase(ctx, cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}

	broker := sse.NewBroker(log)
	if startErr := broker.Start(ctx); startErr != nil {
		db.Close()
		return nil, nil, fmt.Errorf("start event broker: %w", startErr)
	}

	// No janitor here: the process exits when the run does.
	taskRegistry := tasks.NewRegistry(log, cfg.Collector.TaskRetention)

	coll := collector.New(cfg.Collector, collector.Deps{
		Regions: registry,
		Tasks:   taskRegistry,
		Cases:   database.NewCaseRepository(db),
		Status:  database.NewRegionStatusRepository(db),
		Events:  broker,
		Log:     log,
		Metrics: metrics.New(prometheus.NewRegistry()),
	})

	cleanup := func() {
		_ = broker.Stop()
		db.Close()
	}

	return &Runner{
		log:       log,
		broker:    broker,
		tasks:     taskRegistry,
		collector: coll,
	}, cleanup, nil
}

// Run starts a collection run and blocks until it reaches a terminal state.
func (r *Runner) Run(ctx context.Context, filters domain.Filters, regionIDs []string) error {
	// Subscribe before starting so no region result is missed.
	events, unsubscribe, err := r.broker.Subscribe(ctx, sse.WithFilter(func(event sse.Event) bool {
		return event.Type == sse.EventTypeRegionCompleted || event.Type == sse.EventTypeTaskCompleted
	}))
	if err != nil {
		return fmt.Errorf("subscribe to run events: %w", err)
	}
	defer unsubscribe()

	task, err := r.collector.StartCollection(filters, regionIDs)
	if err != nil {
		return fmt.Errorf("start collection: %w", err)
	}
	r.log.Info("Collection started",
		logger.String("task_id", task.ID),
		logger.Strings("regions", task.Regions))

	var results []sse.RegionCompletedData
	if err := r.awaitTask(task.ID, events, func(event sse.Event) {
		if data, isRegion := event.Data.(sse.RegionCompletedData); isRegion && data.TaskID == task.ID {
			results = append(results, data)
		}
	}); err != nil {
		return err
	}

	final, err := r.tasks.Get(task.ID)
	if err != nil {
		return fmt.Errorf("read final task state: %w", err)
	}
	renderSummary(os.Stdout, final, results)

	if final.Status == domain.TaskFailed {
		return fmt.Errorf("collection failed: %s", final.Message)
	}
	return nil
}

// awaitTask drains events until the task's completion event arrives.
// An interrupt signal requests cancellation and keeps waiting; the run
// stops at its next page boundary.
func (r *Runner) awaitTask(taskID string, events <-chan sse.Event, observe func(sse.Event)) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	for {
		select {
		case sig := <-sigChan:
			r.log.Info("Interrupt received, cancelling run", logger.String("signal", sig.String()))
			if cancelErr := r.tasks.Cancel(taskID); cancelErr != nil {
				r.log.Warn("Cancel failed", logger.Error(cancelErr))
			}
		case event, ok := <-events:
			if !ok {
				return errors.New("event stream closed before the run finished")
			}
			if event.Type == sse.EventTypeTaskCompleted && event.TaskID == taskID {
				return nil
			}
			if observe != nil {
				observe(event)
			}
		}
	}
}

// renderSummary prints the per-region table and a closing status line.
func renderSummary(out io.Writer, task *domain.Task, results []sse.RegionCompletedData) {
	if len(results) > 0 {
		t := table.NewWriter()
		t.SetOutputMirror(out)
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"Region", "Pages", "Cases", "New", "Updated", "Result"})
		for _, res := range results {
			outcome := "ok"
			if res.Failed {
				outcome = "failed: " + res.Error
			}
			t.AppendRow(table.Row{res.Region, res.Pages, res.Cases, res.Created, res.Updated, outcome})
		}
		t.Render()
	}

	fmt.Fprintf(out, "Run %s %s", task.ID, task.Status)
	if task.CompletedAt != nil {
		fmt.Fprintf(out, " in %s", task.CompletedAt.Sub(task.StartedAt).Round(time.Second))
	}
	fmt.Fprintf(out, ": %d cases processed (%d new, %d updated)\n",
		task.ProcessedCases, task.NewCases, task.UpdatedCases)
}
