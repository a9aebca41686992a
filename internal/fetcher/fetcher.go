// Package fetcher retrieves result pages from region endpoints through the
// run's sessions, with bounded retry on transient failures.
package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/projektkollen/collector/internal/logger"
	"github.com/projektkollen/collector/internal/metrics"
	"github.com/projektkollen/collector/internal/regions"
	"github.com/projektkollen/collector/internal/retry"
	"github.com/projektkollen/collector/internal/session"
)

// Status codes with special handling in page fetches.
const (
	statusTooManyReqs  = 429
	statusLoginTimeout = 440 // IIS: server-side session expired
	statusServerErrLow = 500
)

// maxResponseBodyBytes limits the size of fetched page responses.
const maxResponseBodyBytes = 10 * 1024 * 1024 // 10 MB

// Retry schedule for transient fetch failures.
const (
	defaultMaxAttempts  = 3
	defaultInitialDelay = time.Second
	defaultMultiplier   = 2.0
)

// ErrSessionExpired marks a response indicating the server dropped our
// session. The fetch is retried once after the session is re-established.
var ErrSessionExpired = errors.New("session expired")

// FetchError describes a page fetch that failed after retries were
// exhausted. The cause is reachable through errors.Is/As.
type FetchError struct {
	Region string
	Page   int
	Cause  error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.Page > 0 {
		return fmt.Sprintf("fetch page %d of %s: %v", e.Page, e.Region, e.Cause)
	}
	return fmt.Sprintf("fetch %s: %v", e.Region, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *FetchError) Unwrap() error {
	return e.Cause
}

// statusError is a non-2xx response kept as an error so the retry policy
// can route on the code.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("http status %d", e.code)
}

// Sessions supplies per-region sessions. Satisfied by session.Manager.
type Sessions interface {
	Get(ctx context.Context, region *regions.Region) (*session.Session, error)
	Invalidate(regionID string)
}

// Config configures fetch behavior.
type Config struct {
	// UserAgent is sent on every request.
	UserAgent string
	// MaxAttempts bounds retries on network errors and 5xx responses.
	MaxAttempts int
	// InitialDelay is the first backoff delay; it doubles per attempt.
	InitialDelay time.Duration
}

// Fetcher fetches result pages for the collector.
type Fetcher struct {
	sessions Sessions
	log      logger.Logger
	metrics  *metrics.Metrics
	cfg      Config
}

// New creates a Fetcher.
func New(sessions Sessions, log logger.Logger, m *metrics.Metrics, cfg Config) *Fetcher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = defaultInitialDelay
	}
	return &Fetcher{
		sessions: sessions,
		log:      log,
		metrics:  m,
		cfg:      cfg,
	}
}

// FetchPage fetches one result page of a region. The query names the page
// for direct-addressing sources; postback sources pass the continuation
// form harvested from the previous page.
//
// Network errors and 5xx responses are retried up to MaxAttempts with
// exponential backoff. A session-expired response invalidates the region's
// session and the fetch is retried exactly once against a fresh one. Every
// other failure is returned immediately, wrapped in a FetchError.
func (f *Fetcher) FetchPage(
	ctx context.Context,
	region *regions.Region,
	query *regions.Query,
	form url.Values,
	page int,
) ([]byte, error) {
	body, err := f.fetch(ctx, region, query, form)
	if err != nil {
		f.metrics.FetchFailures.WithLabelValues(region.ID).Inc()
		return nil, &FetchError{Region: region.ID, Page: page, Cause: err}
	}

	f.metrics.PagesFetched.WithLabelValues(region.ID).Inc()
	return body, nil
}

// FetchCase fetches a case detail page through the region's session, with
// the same retry and session-recovery behavior as result pages.
func (f *Fetcher) FetchCase(ctx context.Context, region *regions.Region, caseURL string) ([]byte, error) {
	header := make(http.Header, len(region.Headers))
	for k, v := range region.Headers {
		header.Set(k, v)
	}
	query := &regions.Query{
		Method: http.MethodGet,
		URL:    caseURL,
		Header: header,
	}

	body, err := f.fetch(ctx, region, query, nil)
	if err != nil {
		f.metrics.FetchFailures.WithLabelValues(region.ID).Inc()
		return nil, &FetchError{Region: region.ID, Cause: err}
	}
	return body, nil
}

// fetch runs the retrying fetch and recovers once from session expiry.
func (f *Fetcher) fetch(
	ctx context.Context,
	region *regions.Region,
	query *regions.Query,
	form url.Values,
) ([]byte, error) {
	body, err := f.fetchWithRetry(ctx, region, query, form)

	if errors.Is(err, ErrSessionExpired) {
		f.log.Warn("session expired, re-establishing",
			logger.String("region", region.ID))
		f.metrics.SessionResets.WithLabelValues(region.ID).Inc()
		f.sessions.Invalidate(region.ID)

		// One retry against a fresh session; a second expiry is terminal.
		body, err = f.fetchOnce(ctx, region, query, form)
	}

	return body, err
}

// fetchWithRetry runs fetchOnce under the retry policy for transient errors.
func (f *Fetcher) fetchWithRetry(
	ctx context.Context,
	region *regions.Region,
	query *regions.Query,
	form url.Values,
) ([]byte, error) {
	var body []byte
	attempt := 0

	err := retry.Do(ctx, retry.Config{
		MaxAttempts:  f.cfg.MaxAttempts,
		InitialDelay: f.cfg.InitialDelay,
		Multiplier:   defaultMultiplier,
		IsRetryable:  isTransient,
	}, func() error {
		attempt++
		if attempt > 1 {
			f.metrics.FetchRetries.WithLabelValues(region.ID).Inc()
			f.log.Debug("retrying page fetch",
				logger.String("region", region.ID),
				logger.Int("attempt", attempt))
		}

		var fetchErr error
		body, fetchErr = f.fetchOnce(ctx, region, query, form)
		return fetchErr
	})

	return body, err
}

// fetchOnce performs a single request through the region's session.
func (f *Fetcher) fetchOnce(
	ctx context.Context,
	region *regions.Region,
	query *regions.Query,
	form url.Values,
) ([]byte, error) {
	sess, err := f.sessions.Get(ctx, region)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	req, err := f.buildRequest(ctx, query, form)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := sess.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http fetch: %w", err)
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, maxResponseBodyBytes)
	body, readErr := io.ReadAll(limited)
	f.metrics.FetchDuration.WithLabelValues(region.ID).Observe(time.Since(start).Seconds())
	if readErr != nil {
		return nil, fmt.Errorf("read response body: %w", readErr)
	}

	sess.LastUsed = time.Now()
	sess.UseCount++

	return f.routeStatus(resp, body)
}

// buildRequest creates the page request. A continuation form takes
// precedence and turns the request into a postback POST.
func (f *Fetcher) buildRequest(ctx context.Context, query *regions.Query, form url.Values) (*http.Request, error) {
	var req *http.Request
	var err error

	if len(form) > 0 {
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, query.URL, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, fmt.Errorf("create postback request: %w", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req, err = http.NewRequestWithContext(ctx, query.Method, query.URL, http.NoBody)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
	}

	for key, vals := range query.Header {
		for _, v := range vals {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)

	return req, nil
}

// routeStatus maps the response to a body or an error class.
func (f *Fetcher) routeStatus(resp *http.Response, body []byte) ([]byte, error) {
	code := resp.StatusCode
	switch {
	case code >= http.StatusOK && code < http.StatusMultipleChoices:
		if sessionExpiredBody(body) {
			return nil, fmt.Errorf("%w: expiry page served with status %d", ErrSessionExpired, code)
		}
		return body, nil

	case code == statusTooManyReqs || code >= statusServerErrLow:
		return nil, &statusError{code: code}

	case code == statusLoginTimeout:
		return nil, fmt.Errorf("%w: http status %d", ErrSessionExpired, code)

	default: // remaining 4xx and 3xx the client did not follow
		if sessionExpiredResponse(resp, body) {
			return nil, fmt.Errorf("%w: http status %d", ErrSessionExpired, code)
		}
		return nil, &statusError{code: code}
	}
}

// isTransient reports whether an error is worth another attempt: network
// failures and retryable status codes. Session expiry and remaining 4xx
// are not retried here.
func isTransient(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code == statusTooManyReqs || se.code >= statusServerErrLow
	}
	if errors.Is(err, ErrSessionExpired) {
		return false
	}
	return retry.DefaultIsRetryable(err)
}

// Markers the diarium serves when the server-side search state is gone.
var sessionExpiredMarkers = [][]byte{
	[]byte("sessionen har löpt ut"),
	[]byte("sessionen har gått ut"),
	[]byte("session expired"),
	[]byte("session has expired"),
}

// sessionExpiredBody checks a successful response for an expiry page.
func sessionExpiredBody(body []byte) bool {
	lower := bytes.ToLower(body)
	for _, marker := range sessionExpiredMarkers {
		if bytes.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// sessionExpiredResponse checks an error response for expiry indications:
// a redirect target naming a timeout page, or an expiry marker in the body.
func sessionExpiredResponse(resp *http.Response, body []byte) bool {
	if loc := resp.Header.Get("Location"); loc != "" {
		lower := strings.ToLower(loc)
		if strings.Contains(lower, "timeout") || strings.Contains(lower, "sessionexpired") {
			return true
		}
	}
	return sessionExpiredBody(body)
}
