// Package session manages stateful HTTP sessions against region endpoints.
// The county diariums track search state server-side, so every region gets
// its own cookie-carrying client, cached between pages and re-established
// when it goes stale.
package session

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"

	"github.com/projektkollen/collector/internal/logger"
	"github.com/projektkollen/collector/internal/regions"
)

// DefaultTTL is how long a session is considered fresh.
const DefaultTTL = 20 * time.Minute

// primeBodyLimit caps how much of the priming response is drained.
const primeBodyLimit = 1024 * 1024 // 1 MB

// Session is one region's live HTTP session.
type Session struct {
	// Client carries the region's cookies between requests.
	Client *http.Client
	// CreatedAt is when the session was established.
	CreatedAt time.Time
	// LastUsed is when the session last served a request.
	LastUsed time.Time
	// UseCount is how many requests the session has served.
	UseCount int
}

// Config configures session behavior.
type Config struct {
	// TTL is the freshness threshold; older sessions are re-established.
	TTL time.Duration
	// RequestTimeout bounds the priming request and the session's client.
	RequestTimeout time.Duration
	// UserAgent is sent on the priming request.
	UserAgent string
}

// Manager owns the sessions of one collection run. Sessions are created
// lazily per region and never shared between runs; every run constructs its
// own Manager.
type Manager struct {
	cfg       Config
	log       logger.Logger
	transport *http.Transport

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a session manager for a single run.
func NewManager(cfg Config, log logger.Logger) *Manager {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	return &Manager{
		cfg:       cfg,
		log:       log,
		transport: newTransport(),
		sessions:  make(map[string]*Session),
	}
}

// Get returns the region's session, establishing a new one when none exists
// or the cached one is older than the freshness threshold.
func (m *Manager) Get(ctx context.Context, region *regions.Region) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[region.ID]; ok {
		// LastUsed and UseCount are maintained by the fetcher; freshness
		// is judged on CreatedAt alone.
		if time.Since(s.CreatedAt) < m.cfg.TTL {
			return s, nil
		}
		m.log.Debug("session stale, re-establishing",
			logger.String("region", region.ID),
			logger.Duration("age", time.Since(s.CreatedAt)))
		delete(m.sessions, region.ID)
	}

	s, err := m.establish(ctx, region)
	if err != nil {
		return nil, err
	}

	m.sessions[region.ID] = s
	return s, nil
}

// Invalidate drops the region's cached session so the next Get establishes
// a fresh one.
func (m *Manager) Invalidate(regionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, regionID)
}

// establish creates a new session and primes it against the region's search
// page so the endpoint hands out its cookies and server affinity.
func (m *Manager) establish(ctx context.Context, region *regions.Region) (*Session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	client := &http.Client{
		Transport: m.transport,
		Jar:       jar,
		Timeout:   m.cfg.RequestTimeout,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, region.SearchURL(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create priming request: %w", err)
	}
	req.Header.Set("User-Agent", m.cfg.UserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("prime session for %s: %w", region.ID, err)
	}
	defer resp.Body.Close()

	// The priming body is irrelevant; drain a bounded amount so the
	// connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, primeBodyLimit))

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("prime session for %s: http status %d", region.ID, resp.StatusCode)
	}

	now := time.Now()
	m.log.Debug("session established",
		logger.String("region", region.ID),
		logger.Int("cookies", len(jar.Cookies(req.URL))))

	return &Session{
		Client:    client,
		CreatedAt: now,
		LastUsed:  now,
		UseCount:  0,
	}, nil
}
