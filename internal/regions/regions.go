// Package regions manages the configuration of collection sources. Each
// region describes one searchable diarium: the endpoint, the serialized
// query it expects and the selectors needed to read its result pages.
package regions

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoRegions indicates no regions were found in the configuration
	ErrNoRegions = errors.New("no regions found in configuration")
	// ErrRegionNotFound indicates the requested region is not configured
	ErrRegionNotFound = errors.New("region not found")
	// ErrMissingRequiredField indicates a required field is missing
	ErrMissingRequiredField = errors.New("missing required field")
)

// SourceKind discriminates how a region's endpoint behaves.
type SourceKind string

const (
	// SourceDiarium is a county board diarium with server-side pagination
	// state (postback forms).
	SourceDiarium SourceKind = "diarium"
	// SourceTransport is the transport administration's case search with
	// direct page addressing.
	SourceTransport SourceKind = "transport"
	// SourceMunicipal is a municipal case list with direct page addressing.
	SourceMunicipal SourceKind = "municipal"
)

// Selectors locate the parts of a result page worth reading.
type Selectors struct {
	// ResultsTable selects the table holding one case per row.
	ResultsTable string `mapstructure:"results_table"`
	// HitCount selects the element whose text carries the total hit count.
	HitCount string `mapstructure:"hit_count"`
	// NoResults selects the marker shown when a search matches nothing.
	NoResults string `mapstructure:"no_results"`
	// DetailTable selects the key/value overview table on a case page.
	DetailTable string `mapstructure:"detail_table"`
	// DocumentsTable selects the document grid on a case page.
	DocumentsTable string `mapstructure:"documents_table"`
}

// Region describes one collection source.
type Region struct {
	// ID is the stable identifier records are keyed on, e.g. "lst-ab".
	ID string `mapstructure:"id"`
	// Name is the human-readable region name, e.g. "Stockholm".
	Name string `mapstructure:"name"`
	// Source is the endpoint kind.
	Source SourceKind `mapstructure:"source"`
	// BaseURL is the scheme+host the region is served from.
	BaseURL string `mapstructure:"base_url"`
	// SearchPath is the path of the search results page.
	SearchPath string `mapstructure:"search_path"`
	// Query is the serialized filter expression the endpoint expects.
	// It is opaque apart from optional {{from}} and {{to}} date tokens.
	Query string `mapstructure:"query"`
	// PageParam names the query parameter for direct page addressing.
	// Ignored for diarium sources, which paginate through postback forms.
	PageParam string `mapstructure:"page_param"`
	// PageSize is the expected number of rows per page (hint only).
	PageSize int `mapstructure:"page_size"`
	// MaxPages caps the page loop for this region, 0 = use the global cap.
	MaxPages int `mapstructure:"max_pages"`
	// RateLimit is the minimum delay between page requests. Accepts a
	// duration string or a number of seconds in the file.
	RateLimit time.Duration `mapstructure:"rate_limit"`
	// Headers are extra headers sent on every request to this region.
	Headers map[string]string `mapstructure:"headers"`
	// Selectors configure result page extraction.
	Selectors Selectors `mapstructure:"selectors"`
	// Disabled regions are kept in the file but excluded from runs.
	Disabled bool `mapstructure:"disabled"`
}

// Default selectors match the county board diarium markup.
const (
	DefaultResultsTable   = "#SearchPlaceHolder_caseGridView"
	DefaultHitCount       = "#SearchPlaceHolder_lblCaseCount"
	DefaultNoResults      = "#SearchPlaceHolder_lblNoHits"
	DefaultDetailTable    = "#CasePlaceHolder_caseOverviewTable"
	DefaultDocumentsTable = "#CasePlaceHolder_documentGridView"
)

const defaultPageSize = 50

// applyDefaults fills in defaults for optional fields.
func (r *Region) applyDefaults() {
	if r.Selectors.ResultsTable == "" {
		r.Selectors.ResultsTable = DefaultResultsTable
	}
	if r.Selectors.HitCount == "" {
		r.Selectors.HitCount = DefaultHitCount
	}
	if r.Selectors.NoResults == "" {
		r.Selectors.NoResults = DefaultNoResults
	}
	if r.Selectors.DetailTable == "" {
		r.Selectors.DetailTable = DefaultDetailTable
	}
	if r.Selectors.DocumentsTable == "" {
		r.Selectors.DocumentsTable = DefaultDocumentsTable
	}
	if r.PageSize == 0 {
		r.PageSize = defaultPageSize
	}
	if r.RateLimit == 0 {
		r.RateLimit = time.Second
	}
}

// SearchURL returns the absolute URL of the region's search page, without
// any query string.
func (r *Region) SearchURL() string {
	return r.BaseURL + r.SearchPath
}

// Interface defines read-only access to configured regions.
type Interface interface {
	// GetRegion returns the region with the given id.
	GetRegion(id string) (*Region, error)
	// ListRegions returns every configured region, including disabled ones.
	ListRegions() []Region
	// EnabledRegions returns the regions eligible for collection runs.
	EnabledRegions() []Region
}

// Registry holds the loaded regions. It is immutable after construction and
// therefore safe for concurrent use.
type Registry struct {
	regions []Region
	byID    map[string]*Region
}

// Ensure Registry implements Interface
var _ Interface = (*Registry)(nil)

// NewRegistry builds a registry from already-validated regions.
func NewRegistry(regions []Region) *Registry {
	r := &Registry{
		regions: regions,
		byID:    make(map[string]*Region, len(regions)),
	}
	for i := range r.regions {
		r.byID[r.regions[i].ID] = &r.regions[i]
	}
	return r
}

// LoadRegistry loads regions from the given file and builds a registry.
func LoadRegistry(path string) (*Registry, error) {
	loader := NewLoader(path)
	regions, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load regions: %w", err)
	}
	return NewRegistry(regions), nil
}

// GetRegion returns the region with the given id.
func (r *Registry) GetRegion(id string) (*Region, error) {
	region, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRegionNotFound, id)
	}
	return region, nil
}

// ListRegions returns every configured region.
func (r *Registry) ListRegions() []Region {
	out := make([]Region, len(r.regions))
	copy(out, r.regions)
	return out
}

// EnabledRegions returns the regions eligible for collection runs.
func (r *Registry) EnabledRegions() []Region {
	out := make([]Region, 0, len(r.regions))
	for _, region := range r.regions {
		if !region.Disabled {
			out = append(out, region)
		}
	}
	return out
}

// Resolve maps requested region ids to regions, defaulting to all enabled
// regions when ids is empty. Unknown ids fail the whole request.
func (r *Registry) Resolve(ids []string) ([]Region, error) {
	if len(ids) == 0 {
		enabled := r.EnabledRegions()
		if len(enabled) == 0 {
			return nil, ErrNoRegions
		}
		return enabled, nil
	}

	out := make([]Region, 0, len(ids))
	for _, id := range ids {
		region, err := r.GetRegion(id)
		if err != nil {
			return nil, err
		}
		out = append(out, *region)
	}
	return out, nil
}
