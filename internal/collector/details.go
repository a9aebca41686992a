package collector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/projektkollen/collector/internal/domain"
	"github.com/projektkollen/collector/internal/logger"
)

const defaultDetailLimit = 50

// StartDetails registers and launches a detail-enrichment run: stored cases
// without detail data are fetched one by one and their records completed.
// An empty source covers all enabled regions.
func (c *Collector) StartDetails(source string, limit int) (*domain.Task, error) {
	var ids []string
	if source != "" {
		region, err := c.regions.GetRegion(source)
		if err != nil {
			return nil, err
		}
		ids = []string{region.ID}
	} else {
		for _, r := range c.regions.EnabledRegions() {
			ids = append(ids, r.ID)
		}
	}
	if limit <= 0 {
		limit = defaultDetailLimit
	}

	runCtx, cancel := context.WithCancel(context.Background())
	task, err := c.tasks.Create(domain.TaskDetails, ids, cancel)
	if err != nil {
		cancel()
		return nil, err
	}

	go c.runDetails(runCtx, task.ID, source, limit)

	return task, nil
}

// runDetails enriches up to limit stored cases with their detail pages.
// Failures are per case: a broken detail page is recorded and the run moves
// on.
func (c *Collector) runDetails(ctx context.Context, taskID, source string, limit int) {
	c.metrics.TasksStarted.WithLabelValues(string(domain.TaskDetails)).Inc()
	c.metrics.TasksRunning.Inc()
	defer c.metrics.TasksRunning.Dec()

	c.tasks.Update(taskID, func(t *domain.Task) {
		t.Status = domain.TaskRunning
	})
	c.publishStatus(ctx, taskID)

	records, err := c.cases.ListMissingDetails(ctx, source, limit)
	if err != nil {
		c.finishTask(ctx, taskID, domain.TaskDetails, domain.TaskFailed,
			fmt.Sprintf("listing cases failed: %v", err))
		return
	}
	if len(records) == 0 {
		c.finishTask(ctx, taskID, domain.TaskDetails, domain.TaskCompleted,
			"no cases awaiting details")
		return
	}

	c.tasks.Update(taskID, func(t *domain.Task) {
		t.TotalCases = len(records)
	})
	c.log.Info("detail run started",
		logger.String("task_id", taskID),
		logger.Int("cases", len(records)))

	pg := c.newPager()

	processed := 0
	failures := 0
	for i := range records {
		if ctx.Err() != nil {
			break
		}
		rec := &records[i]

		if err := c.enrichCase(ctx, pg, rec); err != nil {
			if ctx.Err() != nil {
				break
			}
			failures++
			c.log.Warn("case enrichment failed",
				logger.String("region", rec.Source),
				logger.String("case_number", rec.CaseNumber),
				logger.Error(err))
			c.tasks.Update(taskID, func(t *domain.Task) {
				t.Errors = append(t.Errors, domain.TaskError{
					Region:  rec.Source,
					Message: fmt.Sprintf("case %s: %v", rec.CaseNumber, err),
					At:      time.Now().UTC(),
				})
			})
		} else {
			processed++
		}

		c.tasks.Update(taskID, func(t *domain.Task) {
			t.ProcessedCases++
			t.EstimatedRemaining = estimateRemaining(t)
		})
		c.publishProgress(ctx, taskID, rec.Source, 0)

		if err := sleep(ctx, c.cfg.DetailDelay); err != nil {
			break
		}
	}

	status := domain.TaskCompleted
	message := fmt.Sprintf("enriched %d of %d cases", processed, len(records))
	switch {
	case ctx.Err() != nil:
		status = domain.TaskCancelled
		message = fmt.Sprintf("cancelled after %d of %d cases", processed, len(records))
	case processed == 0 && failures > 0:
		status = domain.TaskFailed
		message = fmt.Sprintf("all %d cases failed", failures)
	case failures > 0:
		message = fmt.Sprintf("enriched %d of %d cases, %d failed", processed, len(records), failures)
	}

	c.finishTask(ctx, taskID, domain.TaskDetails, status, message)
}

// enrichCase fetches, verifies and stores one case's detail page.
func (c *Collector) enrichCase(ctx context.Context, pg pager, rec *domain.CaseRecord) error {
	if rec.URL == "" {
		return fmt.Errorf("case %s has no detail url", rec.CaseNumber)
	}
	region, err := c.regions.GetRegion(rec.Source)
	if err != nil {
		return err
	}

	body, err := pg.FetchCase(ctx, region, rec.URL)
	if err != nil {
		return err
	}

	details, err := c.parser.ParseCaseDetails(region, body)
	if err != nil {
		return err
	}

	// The detail page states its own case number; a mismatch means the link
	// led somewhere else and the data must not be attached.
	if details.CaseNumber != "" && !caseNumberMatches(details.CaseNumber, rec.CaseNumber) {
		return fmt.Errorf("detail page is for %q, expected %q", details.CaseNumber, rec.CaseNumber)
	}

	return c.cases.UpdateDetails(ctx, rec.Source, rec.CaseNumber, details)
}

// caseNumberMatches compares case numbers ignoring whitespace. Detail pages
// sometimes decorate the number, so containment counts as a match.
func caseNumberMatches(got, want string) bool {
	normalize := func(s string) string {
		return strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	}
	g, w := normalize(got), normalize(want)
	if g == "" || w == "" {
		return false
	}
	return strings.Contains(g, w)
}
