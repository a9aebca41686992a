package domain

import "time"

// RegionStatus tracks per-region collection progress so an interrupted
// run can resume at the page where it stopped.
type RegionStatus struct {
	// Source is the region id the status belongs to.
	Source string `db:"source" json:"source"`
	// LastFetchAt is when a page was last collected successfully.
	LastFetchAt *time.Time `db:"last_fetch_at" json:"last_fetch_at,omitempty"`
	// LastPageFetched is the highest page stored for the current sweep.
	// Zero means the next run starts from the beginning.
	LastPageFetched int `db:"last_page_fetched" json:"last_page_fetched"`
	// TotalPages is the page count reported by the source, when known.
	TotalPages *int `db:"total_pages" json:"total_pages,omitempty"`
	// ErrorCount is the number of failed runs since the last success.
	ErrorCount int `db:"error_count" json:"error_count"`
	// LastError describes the most recent failure.
	LastError *string `db:"last_error" json:"last_error,omitempty"`
}
