package collect

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/projektkollen/collector/cmd/common"
	"github.com/projektkollen/collector/internal/domain"
	"github.com/projektkollen/collector/internal/logger"
	"github.com/projektkollen/collector/internal/sse"
)

// defaultDetailLimit caps a detail run when --limit is not given.
const defaultDetailLimit = 50

// DetailsCommand returns the details command, which enriches stored cases
// that are still missing their detail page.
func DetailsCommand() *cobra.Command {
	var (
		source string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "details",
		Short: "Fetch detail pages for stored cases that lack them",
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := common.NewCommandDeps()
			if err != nil {
				return fmt.Errorf("failed to get dependencies: %w", err)
			}

			runner, cleanup, err := newRunner(cmd.Context(), deps)
			if err != nil {
				return err
			}
			defer cleanup()

			return runner.RunDetails(cmd.Context(), source, limit)
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "region id whose cases to enrich (required)")
	cmd.Flags().IntVar(&limit, "limit", defaultDetailLimit, "maximum number of cases to enrich")
	_ = cmd.MarkFlagRequired("source")

	return cmd
}

// RunDetails starts a detail run and blocks until it reaches a terminal state.
func (r *Runner) RunDetails(ctx context.Context, source string, limit int) error {
	events, unsubscribe, err := r.broker.Subscribe(ctx, sse.WithFilter(func(event sse.Event) bool {
		return event.Type == sse.EventTypeTaskCompleted
	}))
	if err != nil {
		return fmt.Errorf("subscribe to run events: %w", err)
	}
	defer unsubscribe()

	task, err := r.collector.StartDetails(source, limit)
	if err != nil {
		return fmt.Errorf("start detail run: %w", err)
	}
	r.log.Info("Detail run started",
		logger.String("task_id", task.ID),
		logger.String("source", source),
		logger.Int("limit", limit))

	if err := r.awaitTask(task.ID, events, nil); err != nil {
		return err
	}

	final, err := r.tasks.Get(task.ID)
	if err != nil {
		return fmt.Errorf("read final task state: %w", err)
	}
	r.log.Info("Detail run finished",
		logger.String("task_id", final.ID),
		logger.String("status", string(final.Status)),
		logger.Int("processed", final.ProcessedCases),
		logger.Int("updated", final.UpdatedCases))

	if final.Status == domain.TaskFailed {
		return fmt.Errorf("detail run failed: %s", final.Message)
	}
	return nil
}
