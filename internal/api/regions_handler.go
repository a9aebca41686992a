package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/projektkollen/collector/internal/database"
	"github.com/projektkollen/collector/internal/domain"
	"github.com/projektkollen/collector/internal/logger"
	"github.com/projektkollen/collector/internal/regions"
)

// RegionsHandler reports configured regions and their stored state.
type RegionsHandler struct {
	regions regions.Interface
	cases   database.CaseStore
	status  database.RegionStatusStore
	log     logger.Logger
}

// NewRegionsHandler creates a regions handler.
func NewRegionsHandler(
	reg regions.Interface,
	cases database.CaseStore,
	status database.RegionStatusStore,
	log logger.Logger,
) *RegionsHandler {
	return &RegionsHandler{regions: reg, cases: cases, status: status, log: log}
}

// Overview handles GET /api/v1/regions. Each region is returned with its
// stored case count and last recorded collection progress.
func (h *RegionsHandler) Overview(c *gin.Context) {
	ctx := c.Request.Context()

	counts, err := h.cases.CountBySource(ctx)
	if err != nil {
		h.log.Error("counting cases by source", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "listing regions failed"})
		return
	}

	statuses, err := h.status.List(ctx)
	if err != nil {
		h.log.Error("listing region status", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "listing regions failed"})
		return
	}
	bySource := make(map[string]*domain.RegionStatus, len(statuses))
	for i := range statuses {
		bySource[statuses[i].Source] = &statuses[i]
	}

	list := h.regions.ListRegions()
	out := make([]RegionOverview, 0, len(list))
	for _, region := range list {
		out = append(out, RegionOverview{
			ID:       region.ID,
			Name:     region.Name,
			Source:   string(region.Source),
			Disabled: region.Disabled,
			Cases:    counts[region.ID],
			Status:   bySource[region.ID],
		})
	}

	c.JSON(http.StatusOK, gin.H{"regions": out})
}
