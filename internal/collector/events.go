package collector

import (
	"context"

	"github.com/projektkollen/collector/internal/domain"
	"github.com/projektkollen/collector/internal/sse"
)

// Event publishing is best-effort: a full broker drops the event and the
// run keeps going. Task state in the registry stays authoritative.

func (c *Collector) publishStatus(ctx context.Context, taskID string) {
	t, err := c.tasks.Get(taskID)
	if err != nil {
		return
	}
	_ = c.events.Publish(ctx, sse.NewTaskStatusEvent(t.ID, string(t.Status), t.Message))
}

func (c *Collector) publishProgress(ctx context.Context, taskID, region string, page int) {
	t, err := c.tasks.Get(taskID)
	if err != nil {
		return
	}
	_ = c.events.Publish(ctx, sse.NewTaskProgressEvent(sse.TaskProgressData{
		TaskID:             t.ID,
		Region:             region,
		Page:               page,
		ProcessedCases:     t.ProcessedCases,
		TotalCases:         t.TotalCases,
		NewCases:           t.NewCases,
		UpdatedCases:       t.UpdatedCases,
		Progress:           t.ProgressPercentage(),
		EstimatedRemaining: t.EstimatedRemaining,
	}))
}

func (c *Collector) publishRegionResult(ctx context.Context, taskID string, result *domain.RegionResult) {
	_ = c.events.Publish(ctx, sse.NewRegionCompletedEvent(sse.RegionCompletedData{
		TaskID:  taskID,
		Region:  result.Region,
		Pages:   result.Pages,
		Cases:   result.Cases,
		Created: result.Created,
		Updated: result.Updated,
		Failed:  result.Failed,
		Error:   result.Error,
	}))
}

func (c *Collector) publishCompleted(ctx context.Context, taskID string) {
	t, err := c.tasks.Get(taskID)
	if err != nil {
		return
	}
	var durationMs int64
	if t.CompletedAt != nil {
		durationMs = t.CompletedAt.Sub(t.StartedAt).Milliseconds()
	}
	_ = c.events.Publish(ctx, sse.NewTaskCompletedEvent(sse.TaskCompletedData{
		TaskID:         t.ID,
		Status:         string(t.Status),
		DurationMs:     durationMs,
		ProcessedCases: t.ProcessedCases,
		NewCases:       t.NewCases,
		UpdatedCases:   t.UpdatedCases,
		FailedRegions:  t.FailedRegions,
		Message:        t.Message,
	}))
}
