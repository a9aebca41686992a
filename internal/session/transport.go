package session

import (
	"net/http"
	"time"
)

// Connection pool tuning for the shared transport. The endpoints sit behind
// load balancers that bind server-side state to the connection, so idle
// connections are kept long enough to span a region's page loop.
const (
	maxIdleConns        = 100
	maxIdleConnsPerHost = 10
	idleConnTimeout     = 90 * time.Second
	tlsHandshakeTimeout = 10 * time.Second
)

// newTransport builds the transport shared by all of a run's sessions.
// Cookies live in each session's jar, so sharing the connection pool is
// safe and keeps per-host connection counts bounded across 21 regions.
func newTransport() *http.Transport {
	t, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return &http.Transport{}
	}

	t = t.Clone()
	t.MaxIdleConns = maxIdleConns
	t.MaxIdleConnsPerHost = maxIdleConnsPerHost
	t.IdleConnTimeout = idleConnTimeout
	t.TLSHandshakeTimeout = tlsHandshakeTimeout
	return t
}
