package collector

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/projektkollen/collector/internal/domain"
	"github.com/projektkollen/collector/internal/logger"
	"github.com/projektkollen/collector/internal/regions"
)

// StartCollection registers and launches a collection run over the given
// regions (all enabled regions when ids is empty). The returned task is the
// pending snapshot; progress is tracked through the task registry.
func (c *Collector) StartCollection(filters domain.Filters, regionIDs []string) (*domain.Task, error) {
	if err := filters.Validate(); err != nil {
		return nil, err
	}

	resolved, err := c.regions.Resolve(regionIDs)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(resolved))
	for i := range resolved {
		ids[i] = resolved[i].ID
	}

	runCtx, cancel := context.WithCancel(context.Background())
	task, err := c.tasks.Create(domain.TaskCollect, ids, cancel)
	if err != nil {
		cancel()
		return nil, err
	}

	go c.runCollection(runCtx, task.ID, resolved, filters)

	return task, nil
}

// runCollection walks every region of the run sequentially. A failing
// region is abandoned; the run continues with the rest and only fails as a
// whole when no region stored anything.
func (c *Collector) runCollection(ctx context.Context, taskID string, regs []regions.Region, filters domain.Filters) {
	c.metrics.TasksStarted.WithLabelValues(string(domain.TaskCollect)).Inc()
	c.metrics.TasksRunning.Inc()
	defer c.metrics.TasksRunning.Dec()

	c.tasks.Update(taskID, func(t *domain.Task) {
		t.Status = domain.TaskRunning
	})
	c.publishStatus(ctx, taskID)
	c.log.Info("collection started",
		logger.String("task_id", taskID),
		logger.Int("regions", len(regs)))

	pg := c.newPager()

	stored := 0
	failed := 0
	for i := range regs {
		if ctx.Err() != nil {
			break
		}
		result := c.collectRegion(ctx, pg, taskID, &regs[i], filters)
		stored += result.Created + result.Updated
		if result.Failed {
			failed++
		}
	}

	status := domain.TaskCompleted
	message := ""
	switch {
	case ctx.Err() != nil:
		status = domain.TaskCancelled
		message = fmt.Sprintf("cancelled after %d cases", stored)
	case failed == len(regs) && stored == 0:
		status = domain.TaskFailed
		message = "all regions failed"
	case failed > 0:
		message = fmt.Sprintf("collected %d cases, %d of %d regions failed", stored, failed, len(regs))
	default:
		message = fmt.Sprintf("collected %d cases from %d regions", stored, len(regs))
	}

	c.finishTask(ctx, taskID, domain.TaskCollect, status, message)
}

// collectRegion walks one region's result pages until the source runs out,
// the page cap is reached, a page fails or the run is cancelled.
func (c *Collector) collectRegion(
	ctx context.Context,
	pg pager,
	taskID string,
	region *regions.Region,
	filters domain.Filters,
) domain.RegionResult {
	result := domain.RegionResult{Region: region.ID}

	// Diarium endpoints keep result state server-side: later pages continue
	// through the postback form harvested from the previous page. Everything
	// else addresses pages directly.
	direct := region.Source != regions.SourceDiarium

	resumeFrom := c.resumePoint(ctx, region, filters)
	startPage := 1
	if direct && resumeFrom > 0 {
		startPage = resumeFrom + 1
	}

	maxPages := c.maxPagesFor(region)
	totalCounted := false

	query, err := regions.BuildQuery(region, filters, startPage)
	if err != nil {
		c.failRegion(ctx, taskID, region, 0, err, &result)
		return result
	}

	var form url.Values
	for page := startPage; ; page++ {
		if ctx.Err() != nil {
			return result
		}
		if page > maxPages {
			c.log.Warn("page cap reached, stopping region",
				logger.String("region", region.ID),
				logger.Int("max_pages", maxPages))
			break
		}

		if direct && page > startPage {
			query, err = regions.BuildQuery(region, filters, page)
			if err != nil {
				c.failRegion(ctx, taskID, region, page, err, &result)
				return result
			}
		}

		body, err := pg.FetchPage(ctx, region, query, form, page)
		if err != nil {
			if ctx.Err() != nil {
				return result
			}
			c.failRegion(ctx, taskID, region, page, err, &result)
			return result
		}

		parsed, err := c.parser.ParsePage(region, page, body)
		if err != nil {
			c.failRegion(ctx, taskID, region, page, err, &result)
			return result
		}

		// On postback sources a resumed run must still walk the earlier
		// pages to advance the server-side cursor; their rows are already
		// stored, so writes are skipped.
		skipWrites := !direct && page <= resumeFrom

		created, updated, upsertErr := c.storePage(ctx, region, parsed, skipWrites)
		result.Pages++
		result.Cases += created + updated
		result.Created += created
		result.Updated += updated

		totalDelta := 0
		if !totalCounted && parsed.TotalItems > 0 {
			totalDelta = parsed.TotalItems
			totalCounted = true
		}
		c.tasks.Update(taskID, func(t *domain.Task) {
			t.ProcessedCases += created + updated
			t.NewCases += created
			t.UpdatedCases += updated
			t.TotalCases += totalDelta
			t.EstimatedRemaining = estimateRemaining(t)
		})

		if upsertErr != nil {
			// The store is unreachable; walking further pages cannot make
			// progress.
			c.failRegion(ctx, taskID, region, page, upsertErr, &result)
			return result
		}

		if err := c.status.RecordPage(ctx, region.ID, page, parsed.TotalPages); err != nil {
			c.log.Warn("record page progress failed",
				logger.String("region", region.ID),
				logger.Error(err))
		}
		c.publishProgress(ctx, taskID, region.ID, page)

		if len(parsed.Cases) == 0 || !parsed.HasNext {
			break
		}
		form = parsed.NextPageForm
		if !direct && len(form) == 0 {
			break
		}

		if err := sleep(ctx, c.pageDelay(region)); err != nil {
			return result
		}
	}

	if err := c.status.RecordCompleted(ctx, region.ID); err != nil {
		c.log.Warn("record region completion failed",
			logger.String("region", region.ID),
			logger.Error(err))
	}
	c.log.Info("region collected",
		logger.String("region", region.ID),
		logger.Int("pages", result.Pages),
		logger.Int("cases", result.Cases))
	c.publishRegionResult(ctx, taskID, &result)

	return result
}

// storePage upserts every record of a parsed page. It stops at the first
// store error, returning the counts written so far.
func (c *Collector) storePage(
	ctx context.Context,
	region *regions.Region,
	parsed *domain.ResultPage,
	skipWrites bool,
) (created, updated int, err error) {
	if skipWrites {
		return 0, 0, nil
	}
	for i := range parsed.Cases {
		outcome, upsertErr := c.cases.Upsert(ctx, &parsed.Cases[i])
		if upsertErr != nil {
			return created, updated, fmt.Errorf("store case %s: %w", parsed.Cases[i].CaseNumber, upsertErr)
		}
		c.metrics.CasesUpserted.WithLabelValues(region.ID, string(outcome)).Inc()
		if outcome == domain.ResultCreated {
			created++
		} else {
			updated++
		}
	}
	return created, updated, nil
}

// resumePoint returns the page a resumed run should continue after, 0 for a
// fresh start.
func (c *Collector) resumePoint(ctx context.Context, region *regions.Region, filters domain.Filters) int {
	if !filters.Resume {
		return 0
	}
	status, err := c.status.Get(ctx, region.ID)
	if err != nil {
		return 0
	}
	if status.LastPageFetched > 0 {
		c.log.Info("resuming region",
			logger.String("region", region.ID),
			logger.Int("after_page", status.LastPageFetched))
	}
	return status.LastPageFetched
}

// failRegion abandons a region after a page failure. The run continues with
// the remaining regions.
func (c *Collector) failRegion(
	ctx context.Context,
	taskID string,
	region *regions.Region,
	page int,
	cause error,
	result *domain.RegionResult,
) {
	result.Failed = true
	result.Error = cause.Error()

	c.log.Error("region abandoned",
		logger.String("region", region.ID),
		logger.Int("page", page),
		logger.Error(cause))

	if err := c.status.RecordError(ctx, region.ID, cause.Error()); err != nil {
		c.log.Warn("record region error failed",
			logger.String("region", region.ID),
			logger.Error(err))
	}

	c.tasks.Update(taskID, func(t *domain.Task) {
		t.FailedRegions = append(t.FailedRegions, region.ID)
		t.Errors = append(t.Errors, domain.TaskError{
			Region:  region.ID,
			Page:    page,
			Message: cause.Error(),
			At:      time.Now().UTC(),
		})
	})

	c.publishRegionResult(ctx, taskID, result)
}

// finishTask moves a task to its terminal status and announces it.
func (c *Collector) finishTask(ctx context.Context, taskID string, kind domain.TaskKind, status domain.TaskStatus, message string) {
	c.tasks.Update(taskID, func(t *domain.Task) {
		t.Status = status
		now := time.Now().UTC()
		t.CompletedAt = &now
		t.Message = message
		t.EstimatedRemaining = nil
	})
	c.metrics.TasksFinished.WithLabelValues(string(kind), string(status)).Inc()

	c.publishStatus(ctx, taskID)
	c.publishCompleted(ctx, taskID)

	c.log.Info("task finished",
		logger.String("task_id", taskID),
		logger.String("status", string(status)),
		logger.String("message", message))
}

// estimateRemaining projects time to completion from the observed rate.
// Only meaningful while the source-reported total is known.
func estimateRemaining(t *domain.Task) *float64 {
	if t.TotalCases <= 0 || t.ProcessedCases <= 0 {
		return nil
	}
	elapsed := time.Since(t.StartedAt).Seconds()
	if elapsed <= 0 {
		return nil
	}
	rate := float64(t.ProcessedCases) / elapsed
	remaining := float64(t.TotalCases-t.ProcessedCases) / rate
	if remaining < 0 {
		remaining = 0
	}
	return &remaining
}
