package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/projektkollen/collector/internal/domain"
	"github.com/projektkollen/collector/internal/logger"
	"github.com/projektkollen/collector/internal/regions"
	"github.com/projektkollen/collector/internal/tasks"
)

// CollectHandler triggers collection and enrichment runs.
type CollectHandler struct {
	collector Collector
	log       logger.Logger
}

// NewCollectHandler creates a collect handler.
func NewCollectHandler(collector Collector, log logger.Logger) *CollectHandler {
	return &CollectHandler{collector: collector, log: log}
}

// Collect handles POST /api/v1/collect. The run is started in the
// background and the pending task is returned with 202.
func (h *CollectHandler) Collect(c *gin.Context) {
	var req CollectRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid request body"})
			return
		}
	}

	filters, err := req.Filters()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	task, err := h.collector.StartCollection(filters, req.Regions)
	if err != nil {
		h.log.Warn("collection request rejected", logger.Error(err))
		c.JSON(startStatus(err), gin.H{"detail": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, task)
}

// Details handles POST /api/v1/collect/details.
func (h *CollectHandler) Details(c *gin.Context) {
	var req DetailsRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid request body"})
			return
		}
	}

	task, err := h.collector.StartDetails(req.Source, req.Limit)
	if err != nil {
		h.log.Warn("details request rejected", logger.Error(err))
		c.JSON(startStatus(err), gin.H{"detail": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, task)
}

// startStatus maps run start errors to HTTP status codes.
func startStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidFilter):
		return http.StatusBadRequest
	case errors.Is(err, regions.ErrRegionNotFound), errors.Is(err, regions.ErrNoRegions):
		return http.StatusBadRequest
	case errors.Is(err, tasks.ErrTaskAlreadyRunning):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
