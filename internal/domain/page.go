package domain

import (
	"net/url"
)

// ResultPage is one parsed page of search results from a region.
type ResultPage struct {
	// Number is the 1-based page number this result was parsed from.
	Number int `json:"number"`
	// Cases are the records extracted from the results table.
	Cases []CaseRecord `json:"cases"`
	// TotalItems is the source-reported hit count, 0 when unknown.
	// The value is advisory; pagination terminates on an empty page.
	TotalItems int `json:"total_items"`
	// TotalPages is derived from TotalItems and ItemsPerPage, 0 when unknown.
	TotalPages int `json:"total_pages"`
	// ItemsPerPage is the page size observed on this page.
	ItemsPerPage int `json:"items_per_page"`
	// HasNext reports whether the source exposes a following page.
	HasNext bool `json:"has_next"`
	// NextPageForm carries the postback form values needed to request the
	// next page on sources with server-side pagination state. Nil when the
	// source addresses pages directly or no next page exists.
	NextPageForm url.Values `json:"-"`
	// Warnings lists rows that were skipped while parsing, for reporting.
	Warnings []string `json:"warnings,omitempty"`
}

// Pagination summarizes a page position for API responses.
type Pagination struct {
	CurrentPage  int  `json:"current_page"`
	TotalPages   int  `json:"total_pages"`
	TotalItems   int  `json:"total_items"`
	ItemsPerPage int  `json:"items_per_page"`
	HasNext      bool `json:"has_next"`
	HasPrevious  bool `json:"has_previous"`
}

// PaginationOf builds a Pagination summary for a parsed page.
func PaginationOf(p *ResultPage) Pagination {
	return Pagination{
		CurrentPage:  p.Number,
		TotalPages:   p.TotalPages,
		TotalItems:   p.TotalItems,
		ItemsPerPage: p.ItemsPerPage,
		HasNext:      p.HasNext,
		HasPrevious:  p.Number > 1,
	}
}
