package fetcher_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projektkollen/collector/internal/fetcher"
	"github.com/projektkollen/collector/internal/logger"
	"github.com/projektkollen/collector/internal/metrics"
	"github.com/projektkollen/collector/internal/regions"
	"github.com/projektkollen/collector/internal/retry"
	"github.com/projektkollen/collector/internal/session"
)

// fakeSessions hands out one shared session and records invalidations.
type fakeSessions struct {
	session     *session.Session
	gets        int
	invalidated []string
}

func (s *fakeSessions) Get(_ context.Context, _ *regions.Region) (*session.Session, error) {
	s.gets++
	return s.session, nil
}

func (s *fakeSessions) Invalidate(regionID string) {
	s.invalidated = append(s.invalidated, regionID)
}

// failingSessions simulates a region whose session cannot be established.
type failingSessions struct {
	gets int
	err  error
}

func (s *failingSessions) Get(_ context.Context, _ *regions.Region) (*session.Session, error) {
	s.gets++
	return nil, s.err
}

func (s *failingSessions) Invalidate(string) {}

func sessionsFor(server *httptest.Server) *fakeSessions {
	return &fakeSessions{
		session: &session.Session{
			Client:    server.Client(),
			CreatedAt: time.Now(),
		},
	}
}

func newFetcher(sessions fetcher.Sessions) *fetcher.Fetcher {
	return fetcher.New(sessions, logger.NewNop(), metrics.New(prometheus.NewRegistry()), fetcher.Config{
		UserAgent:    "test-agent",
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
	})
}

func testRegion() *regions.Region {
	return &regions.Region{
		ID:     "lst-ab",
		Name:   "Stockholm",
		Source: regions.SourceDiarium,
	}
}

func pageQuery(server *httptest.Server) *regions.Query {
	return &regions.Query{
		Method: http.MethodGet,
		URL:    server.URL + "/Case/CaseSearchResult.aspx?query=abc",
	}
}

func TestFetchPageOK(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte("<html>resultat</html>"))
	}))
	defer server.Close()

	sessions := sessionsFor(server)
	f := newFetcher(sessions)

	body, err := f.FetchPage(context.Background(), testRegion(), pageQuery(server), nil, 1)

	require.NoError(t, err)
	assert.Equal(t, "<html>resultat</html>", string(body))
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, 1, sessions.gets)
	assert.Equal(t, 1, sessions.session.UseCount)
	assert.False(t, sessions.session.LastUsed.IsZero())
}

func TestFetchPagePostback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		assert.Equal(t, "dDwtMTI3", r.PostFormValue("__VIEWSTATE"))
		assert.Equal(t, "SearchPlaceHolder$caseGridView", r.PostFormValue("__EVENTTARGET"))
		_, _ = w.Write([]byte("page two"))
	}))
	defer server.Close()

	f := newFetcher(sessionsFor(server))
	form := url.Values{
		"__VIEWSTATE":   {"dDwtMTI3"},
		"__EVENTTARGET": {"SearchPlaceHolder$caseGridView"},
	}

	body, err := f.FetchPage(context.Background(), testRegion(), pageQuery(server), form, 2)

	require.NoError(t, err)
	assert.Equal(t, "page two", string(body))
}

func TestFetchPageRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("recovered"))
	}))
	defer server.Close()

	f := newFetcher(sessionsFor(server))

	body, err := f.FetchPage(context.Background(), testRegion(), pageQuery(server), nil, 1)

	require.NoError(t, err)
	assert.Equal(t, "recovered", string(body))
	assert.Equal(t, int32(3), hits.Load())
}

func TestFetchPageRetriesRateLimiting(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	f := newFetcher(sessionsFor(server))

	_, err := f.FetchPage(context.Background(), testRegion(), pageQuery(server), nil, 1)

	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestFetchPageExhaustsRetries(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	f := newFetcher(sessionsFor(server))

	_, err := f.FetchPage(context.Background(), testRegion(), pageQuery(server), nil, 4)

	require.Error(t, err)

	var fetchErr *fetcher.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, "lst-ab", fetchErr.Region)
	assert.Equal(t, 4, fetchErr.Page)
	assert.ErrorIs(t, err, retry.ErrMaxAttemptsExceeded)
	assert.Contains(t, err.Error(), "fetch page 4 of lst-ab")
	assert.Equal(t, int32(3), hits.Load())
}

func TestFetchPageClientErrorNotRetried(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	f := newFetcher(sessionsFor(server))

	_, err := f.FetchPage(context.Background(), testRegion(), pageQuery(server), nil, 1)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "http status 404")
	assert.Equal(t, int32(1), hits.Load())
}

func TestFetchPageRecoversExpiredSession(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			_, _ = w.Write([]byte("Sessionen har löpt ut. Gör om sökningen."))
			return
		}
		_, _ = w.Write([]byte("<table>fresh results</table>"))
	}))
	defer server.Close()

	sessions := sessionsFor(server)
	f := newFetcher(sessions)

	body, err := f.FetchPage(context.Background(), testRegion(), pageQuery(server), nil, 1)

	require.NoError(t, err)
	assert.Equal(t, "<table>fresh results</table>", string(body))
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, []string{"lst-ab"}, sessions.invalidated)
	assert.Equal(t, 2, sessions.gets)
}

func TestFetchPageSecondExpiryIsTerminal(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("Sessionen har gått ut"))
	}))
	defer server.Close()

	sessions := sessionsFor(server)
	f := newFetcher(sessions)

	_, err := f.FetchPage(context.Background(), testRegion(), pageQuery(server), nil, 1)

	require.Error(t, err)
	assert.ErrorIs(t, err, fetcher.ErrSessionExpired)

	var fetchErr *fetcher.FetchError
	assert.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, []string{"lst-ab"}, sessions.invalidated)
}

func TestFetchPageRecoversFromLoginTimeoutStatus(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			// IIS login timeout
			w.WriteHeader(440)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	sessions := sessionsFor(server)
	f := newFetcher(sessions)

	body, err := f.FetchPage(context.Background(), testRegion(), pageQuery(server), nil, 1)

	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, []string{"lst-ab"}, sessions.invalidated)
}

func TestFetchPageRecoversFromTimeoutRedirect(t *testing.T) {
	var searchHits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/Case/CaseSearchResult.aspx", func(w http.ResponseWriter, r *http.Request) {
		if searchHits.Add(1) == 1 {
			http.Redirect(w, r, "/Timeout.aspx", http.StatusSeeOther)
			return
		}
		_, _ = w.Write([]byte("results"))
	})
	mux.HandleFunc("/Timeout.aspx", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("Your session has expired, please search again."))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	sessions := sessionsFor(server)
	f := newFetcher(sessions)

	body, err := f.FetchPage(context.Background(), testRegion(), pageQuery(server), nil, 1)

	require.NoError(t, err)
	assert.Equal(t, "results", string(body))
	assert.Equal(t, int32(2), searchHits.Load())
	assert.Equal(t, []string{"lst-ab"}, sessions.invalidated)
}

func TestFetchPageSessionSetupFailure(t *testing.T) {
	sessions := &failingSessions{err: errors.New("tls handshake failure")}
	f := newFetcher(sessions)

	_, err := f.FetchPage(context.Background(), testRegion(), &regions.Query{
		Method: http.MethodGet,
		URL:    "http://127.0.0.1:1/search",
	}, nil, 1)

	require.Error(t, err)

	var fetchErr *fetcher.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Contains(t, err.Error(), "get session")
	assert.Equal(t, 1, sessions.gets)
}

func TestFetchPageContextCancelled(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := newFetcher(sessionsFor(server))

	_, err := f.FetchPage(ctx, testRegion(), pageQuery(server), nil, 1)

	require.Error(t, err)
	assert.ErrorIs(t, err, retry.ErrContextCancelled)
	assert.Equal(t, int32(0), hits.Load())
}

func TestFetchCaseOK(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Case/CaseInfo.aspx", r.URL.Path)
		assert.Equal(t, "123", r.URL.Query().Get("caseID"))
		assert.Equal(t, "sv-SE,sv;q=0.9", r.Header.Get("Accept-Language"))
		_, _ = w.Write([]byte("<table>case detail</table>"))
	}))
	defer server.Close()

	region := testRegion()
	region.Headers = map[string]string{"Accept-Language": "sv-SE,sv;q=0.9"}

	f := newFetcher(sessionsFor(server))

	body, err := f.FetchCase(context.Background(), region, server.URL+"/Case/CaseInfo.aspx?caseID=123")

	require.NoError(t, err)
	assert.Equal(t, "<table>case detail</table>", string(body))
}

func TestFetchCaseFailureHasNoPage(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	f := newFetcher(sessionsFor(server))

	_, err := f.FetchCase(context.Background(), testRegion(), server.URL+"/Case/CaseInfo.aspx?caseID=9")

	require.Error(t, err)

	var fetchErr *fetcher.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Zero(t, fetchErr.Page)
	assert.Contains(t, err.Error(), "fetch lst-ab:")
	assert.ErrorIs(t, err, retry.ErrMaxAttemptsExceeded)
	assert.Equal(t, int32(3), hits.Load())
}
