package session_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projektkollen/collector/internal/logger"
	"github.com/projektkollen/collector/internal/regions"
	"github.com/projektkollen/collector/internal/session"
)

// primingServer counts priming requests and hands out a session cookie.
func primingServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.SetCookie(w, &http.Cookie{Name: "ASP.NET_SessionId", Value: "abc123"})
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	return server
}

func regionFor(server *httptest.Server) *regions.Region {
	return &regions.Region{
		ID:         "lst-ab",
		Name:       "Stockholm",
		Source:     regions.SourceDiarium,
		BaseURL:    server.URL,
		SearchPath: "/Case/CaseSearchResult.aspx",
	}
}

func TestGetEstablishesLazily(t *testing.T) {
	var hits atomic.Int32
	server := primingServer(t, &hits)
	region := regionFor(server)

	manager := session.NewManager(session.Config{TTL: time.Minute}, logger.NewNop())
	assert.Equal(t, int32(0), hits.Load())

	s, err := manager.Get(context.Background(), region)
	require.NoError(t, err)
	require.NotNil(t, s.Client)
	assert.Equal(t, int32(1), hits.Load())

	// The priming response's cookies are retained for later requests.
	base, err := url.Parse(server.URL)
	require.NoError(t, err)
	require.NotEmpty(t, s.Client.Jar.Cookies(base))
	assert.Equal(t, "ASP.NET_SessionId", s.Client.Jar.Cookies(base)[0].Name)
}

func TestGetReusesFreshSession(t *testing.T) {
	var hits atomic.Int32
	server := primingServer(t, &hits)
	region := regionFor(server)

	manager := session.NewManager(session.Config{TTL: time.Minute}, logger.NewNop())

	first, err := manager.Get(context.Background(), region)
	require.NoError(t, err)
	second, err := manager.Get(context.Background(), region)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), hits.Load())
}

func TestGetReestablishesExpiredSession(t *testing.T) {
	var hits atomic.Int32
	server := primingServer(t, &hits)
	region := regionFor(server)

	// Any cached session is immediately older than the 1ns threshold.
	manager := session.NewManager(session.Config{TTL: time.Nanosecond}, logger.NewNop())

	first, err := manager.Get(context.Background(), region)
	require.NoError(t, err)
	time.Sleep(time.Millisecond)

	second, err := manager.Get(context.Background(), region)
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.Equal(t, int32(2), hits.Load())
}

func TestInvalidateForcesNewSession(t *testing.T) {
	var hits atomic.Int32
	server := primingServer(t, &hits)
	region := regionFor(server)

	manager := session.NewManager(session.Config{TTL: time.Minute}, logger.NewNop())

	first, err := manager.Get(context.Background(), region)
	require.NoError(t, err)

	manager.Invalidate(region.ID)

	second, err := manager.Get(context.Background(), region)
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.Equal(t, int32(2), hits.Load())
}

func TestSessionsArePerRegion(t *testing.T) {
	var hits atomic.Int32
	server := primingServer(t, &hits)

	stockholm := regionFor(server)
	uppsala := regionFor(server)
	uppsala.ID = "lst-c"

	manager := session.NewManager(session.Config{TTL: time.Minute}, logger.NewNop())

	first, err := manager.Get(context.Background(), stockholm)
	require.NoError(t, err)
	second, err := manager.Get(context.Background(), uppsala)
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.Equal(t, int32(2), hits.Load())
}

func TestGetFailsOnServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)

	manager := session.NewManager(session.Config{TTL: time.Minute}, logger.NewNop())

	_, err := manager.Get(context.Background(), regionFor(server))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http status 502")
}

func TestGetFailsWhenUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // nothing listens anymore

	manager := session.NewManager(session.Config{TTL: time.Minute, RequestTimeout: time.Second}, logger.NewNop())

	_, err := manager.Get(context.Background(), regionFor(server))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prime session for lst-ab")
}

func TestDefaultTTLApplied(t *testing.T) {
	var hits atomic.Int32
	server := primingServer(t, &hits)
	region := regionFor(server)

	// Zero TTL falls back to the default instead of treating every
	// session as stale.
	manager := session.NewManager(session.Config{}, logger.NewNop())

	_, err := manager.Get(context.Background(), region)
	require.NoError(t, err)
	_, err = manager.Get(context.Background(), region)
	require.NoError(t, err)

	assert.Equal(t, int32(1), hits.Load())
}
