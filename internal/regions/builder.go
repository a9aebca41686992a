package regions

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/projektkollen/collector/internal/domain"
)

// Date tokens a region's serialized query may carry.
const (
	tokenFrom = "{{from}}"
	tokenTo   = "{{to}}"

	dateLayout = "2006-01-02"
)

// Query is a fully constructed page request, ready for the fetcher.
type Query struct {
	// Method is the HTTP method, GET unless Form is set.
	Method string
	// URL is the absolute request URL including the serialized query.
	URL string
	// Header carries region-specific headers.
	Header http.Header
	// Form, when non-nil, is sent as an URL-encoded POST body. Used for
	// postback pagination where the server tracks result state.
	Form url.Values
}

// BuildQuery constructs the request for one result page of a region.
// The construction is template-driven and deterministic: identical inputs
// yield an identical query.
//
// Diarium sources only address page one directly; later pages continue via
// the postback form harvested from the previous page, POSTed back to the
// same URL this builder returns.
func BuildQuery(r *Region, f domain.Filters, page int) (*Query, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if page < 1 {
		return nil, fmt.Errorf("page must be positive, got %d", page)
	}

	serialized := expandDateTokens(r.Query, f)

	var requestURL string
	switch r.Source {
	case SourceDiarium:
		requestURL = r.SearchURL() + "?query=" + serialized

	case SourceTransport, SourceMunicipal:
		params := serialized
		pageParam := r.PageParam + "=" + strconv.Itoa(page)
		if params == "" {
			params = pageParam
		} else {
			params = params + "&" + pageParam
		}
		requestURL = r.SearchURL() + "?" + params

	default:
		return nil, fmt.Errorf("unknown source kind %q for region %s", r.Source, r.ID)
	}

	header := make(http.Header, len(r.Headers))
	for k, v := range r.Headers {
		header.Set(k, v)
	}

	return &Query{
		Method: http.MethodGet,
		URL:    requestURL,
		Header: header,
	}, nil
}

// expandDateTokens substitutes the {{from}} and {{to}} tokens in a
// serialized query. Zero dates expand to the empty string, which the
// sources treat as unbounded.
func expandDateTokens(serialized string, f domain.Filters) string {
	from := ""
	if !f.FromDate.IsZero() {
		from = f.FromDate.Format(dateLayout)
	}
	to := ""
	if !f.ToDate.IsZero() {
		to = f.ToDate.Format(dateLayout)
	}

	out := strings.ReplaceAll(serialized, tokenFrom, url.QueryEscape(from))
	out = strings.ReplaceAll(out, tokenTo, url.QueryEscape(to))
	return out
}
