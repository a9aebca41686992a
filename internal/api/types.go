package api

import (
	"fmt"
	"time"

	"github.com/projektkollen/collector/internal/domain"
)

const dateLayout = "2006-01-02"

// CollectRequest is the body of POST /api/v1/collect. All fields are
// optional; an empty body collects everything from every enabled region.
type CollectRequest struct {
	// FromDate and ToDate bound the registration date, format 2006-01-02.
	FromDate string `json:"from_date"`
	ToDate   string `json:"to_date"`
	// Regions limits the run to the named region ids.
	Regions []string `json:"regions"`
	// Resume continues each region from its last recorded page.
	Resume bool `json:"resume"`
}

// Filters converts the request dates into collection filters.
func (r *CollectRequest) Filters() (domain.Filters, error) {
	filters := domain.Filters{Resume: r.Resume}

	if r.FromDate != "" {
		from, err := time.Parse(dateLayout, r.FromDate)
		if err != nil {
			return filters, fmt.Errorf("from_date must be formatted as %s", dateLayout)
		}
		filters.FromDate = from
	}
	if r.ToDate != "" {
		to, err := time.Parse(dateLayout, r.ToDate)
		if err != nil {
			return filters, fmt.Errorf("to_date must be formatted as %s", dateLayout)
		}
		filters.ToDate = to
	}

	return filters, nil
}

// DetailsRequest is the body of POST /api/v1/collect/details.
type DetailsRequest struct {
	// Source limits enrichment to one region, empty means all.
	Source string `json:"source"`
	// Limit caps how many cases are enriched, 0 uses the default.
	Limit int `json:"limit"`
}

// RegionOverview describes one configured region together with its
// stored case count and collection progress.
type RegionOverview struct {
	ID       string               `json:"id"`
	Name     string               `json:"name"`
	Source   string               `json:"source"`
	Disabled bool                 `json:"disabled,omitempty"`
	Cases    int                  `json:"cases"`
	Status   *domain.RegionStatus `json:"status,omitempty"`
}
