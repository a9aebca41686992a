package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidFilter is returned when collection filters are inconsistent.
var ErrInvalidFilter = errors.New("invalid filter")

// Filters bound what a collection run asks each region for.
// A zero date means unbounded on that side.
type Filters struct {
	// FromDate restricts results to cases registered on or after this date.
	FromDate time.Time `json:"from_date,omitempty"`
	// ToDate restricts results to cases registered on or before this date.
	ToDate time.Time `json:"to_date,omitempty"`
	// Resume continues each region from its last recorded page instead of
	// starting over at page one.
	Resume bool `json:"resume,omitempty"`
}

// Validate rejects filter combinations no region can serve.
func (f Filters) Validate() error {
	if !f.FromDate.IsZero() && !f.ToDate.IsZero() && f.FromDate.After(f.ToDate) {
		return fmt.Errorf("%w: from_date %s is after to_date %s",
			ErrInvalidFilter, f.FromDate.Format("2006-01-02"), f.ToDate.Format("2006-01-02"))
	}
	return nil
}
