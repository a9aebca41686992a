// Package middleware provides rate limiting middleware for the API.
package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/projektkollen/collector/internal/logger"
)

// TimeProvider is an interface for getting the current time
type TimeProvider interface {
	Now() time.Time
}

// realTimeProvider is the default implementation of TimeProvider
type realTimeProvider struct{}

func (r *realTimeProvider) Now() time.Time {
	return time.Now()
}

const (
	// DefaultRateLimitWindow is the default window for rate limiting
	DefaultRateLimitWindow = time.Minute
	// DefaultRateLimit is the default number of requests allowed per window
	DefaultRateLimit = 5
)

// RateLimiter limits how often a client may trigger collection runs.
// Every run opens connections to external government endpoints, so the
// limit is deliberately low.
type RateLimiter struct {
	log          logger.Logger
	clients      map[string]rateLimitInfo
	mu           sync.Mutex
	timeProvider TimeProvider
	window       time.Duration
	maxRequests  int
}

// rateLimitInfo holds information about rate limiting for a client
type rateLimitInfo struct {
	count      int
	lastAccess time.Time
}

// NewRateLimiter creates a rate limiter allowing maxRequests per window
// per client IP. Non-positive arguments fall back to the defaults.
func NewRateLimiter(maxRequests int, window time.Duration, log logger.Logger) *RateLimiter {
	if maxRequests <= 0 {
		maxRequests = DefaultRateLimit
	}
	if window <= 0 {
		window = DefaultRateLimitWindow
	}

	return &RateLimiter{
		log:          log,
		clients:      make(map[string]rateLimitInfo),
		timeProvider: &realTimeProvider{},
		window:       window,
		maxRequests:  maxRequests,
	}
}

// SetTimeProvider sets a custom time provider for testing
func (m *RateLimiter) SetTimeProvider(provider TimeProvider) {
	m.timeProvider = provider
}

// allow checks if the client is within the rate limit
func (m *RateLimiter) allow(clientIP string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.timeProvider.Now()
	info, exists := m.clients[clientIP]

	if !exists || now.Sub(info.lastAccess) > m.window {
		m.clients[clientIP] = rateLimitInfo{count: 1, lastAccess: now}
		return true
	}

	if info.count >= m.maxRequests {
		return false
	}

	info.count++
	info.lastAccess = now
	m.clients[clientIP] = info
	return true
}

// Middleware returns the rate limiting middleware function
func (m *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		if !m.allow(clientIP) {
			m.log.Warn("rate limit exceeded", logger.String("client_ip", clientIP))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"detail": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

// Cleanup periodically removes expired rate limit entries. It blocks
// until ctx is cancelled.
func (m *RateLimiter) Cleanup(ctx context.Context) {
	ticker := time.NewTicker(m.window)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expiry := m.timeProvider.Now().Add(-m.window)

			m.mu.Lock()
			for ip, info := range m.clients {
				if info.lastAccess.Before(expiry) {
					delete(m.clients, ip)
				}
			}
			m.mu.Unlock()
		}
	}
}
