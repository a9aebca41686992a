// Package collector orchestrates collection runs: it walks each region's
// result pages through a per-run session, parses the rows, upserts them and
// publishes progress, tracking the whole run as a task.
package collector

import (
	"context"
	"math/rand"
	"net/url"
	"time"

	"github.com/projektkollen/collector/internal/config"
	"github.com/projektkollen/collector/internal/database"
	"github.com/projektkollen/collector/internal/domain"
	"github.com/projektkollen/collector/internal/fetcher"
	"github.com/projektkollen/collector/internal/logger"
	"github.com/projektkollen/collector/internal/metrics"
	"github.com/projektkollen/collector/internal/parser"
	"github.com/projektkollen/collector/internal/regions"
	"github.com/projektkollen/collector/internal/session"
	"github.com/projektkollen/collector/internal/sse"
	"github.com/projektkollen/collector/internal/tasks"
)

// pager fetches raw result and detail pages. Satisfied by fetcher.Fetcher.
type pager interface {
	FetchPage(ctx context.Context, region *regions.Region, query *regions.Query,
		form url.Values, page int) ([]byte, error)
	FetchCase(ctx context.Context, region *regions.Region, caseURL string) ([]byte, error)
}

// pageParser turns raw pages into domain records. Satisfied by parser.Parser.
type pageParser interface {
	ParsePage(region *regions.Region, page int, body []byte) (*domain.ResultPage, error)
	ParseCaseDetails(region *regions.Region, body []byte) (*domain.CaseDetails, error)
}

// Deps carries the collector's collaborators.
type Deps struct {
	Regions *regions.Registry
	Tasks   *tasks.Registry
	Cases   database.CaseStore
	Status  database.RegionStatusStore
	Events  sse.Publisher
	Log     logger.Logger
	Metrics *metrics.Metrics
}

// Collector runs collection and detail-enrichment tasks.
type Collector struct {
	cfg     config.CollectorConfig
	regions *regions.Registry
	tasks   *tasks.Registry
	cases   database.CaseStore
	status  database.RegionStatusStore
	events  sse.Publisher
	log     logger.Logger
	metrics *metrics.Metrics

	// newPager builds the per-run fetch stack. Sessions live inside it, so
	// no two runs ever share one.
	newPager func() pager
	parser   pageParser
}

// New creates a Collector.
func New(cfg config.CollectorConfig, deps Deps) *Collector {
	c := &Collector{
		cfg:     cfg,
		regions: deps.Regions,
		tasks:   deps.Tasks,
		cases:   deps.Cases,
		status:  deps.Status,
		events:  deps.Events,
		log:     deps.Log,
		metrics: deps.Metrics,
	}

	c.newPager = func() pager {
		sessions := session.NewManager(session.Config{
			TTL:            cfg.SessionTTL,
			RequestTimeout: cfg.RequestTimeout,
			UserAgent:      cfg.UserAgent,
		}, deps.Log)
		return fetcher.New(sessions, deps.Log, deps.Metrics, fetcher.Config{
			UserAgent: cfg.UserAgent,
		})
	}
	c.parser = parser.New(deps.Log, deps.Metrics)

	return c
}

// maxPagesFor returns the page cap for a region.
func (c *Collector) maxPagesFor(region *regions.Region) int {
	if region.MaxPages > 0 {
		return region.MaxPages
	}
	return c.cfg.MaxPages
}

// pageDelay returns the politeness delay before the next page of a region:
// a randomized value between the configured bounds, never below the
// region's own rate limit.
func (c *Collector) pageDelay(region *regions.Region) time.Duration {
	delay := c.cfg.PageDelayMin
	if spread := c.cfg.PageDelayMax - c.cfg.PageDelayMin; spread > 0 {
		delay += time.Duration(rand.Int63n(int64(spread)))
	}
	if region.RateLimit > delay {
		delay = region.RateLimit
	}
	return delay
}

// sleep waits for d unless the context ends first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
