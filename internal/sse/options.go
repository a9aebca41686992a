package sse

import "time"

// Default configuration values.
const (
	// DefaultEventBufferSize is the broker's publish buffer size.
	DefaultEventBufferSize = 1000
	// DefaultClientBufferSize is the per-client event buffer size.
	DefaultClientBufferSize = 100
	// DefaultHeartbeatInterval is how often keep-alive comments are sent.
	DefaultHeartbeatInterval = 15 * time.Second
	// DefaultShutdownTimeout is the graceful shutdown timeout.
	DefaultShutdownTimeout = 5 * time.Second
	// DefaultMaxClients is the maximum number of concurrent clients.
	DefaultMaxClients = 1000
)

// Config holds broker configuration.
type Config struct {
	EventBufferSize   int
	ClientBufferSize  int
	HeartbeatInterval time.Duration
	ShutdownTimeout   time.Duration
	MaxClients        int
}

// DefaultConfig returns the default broker configuration.
func DefaultConfig() Config {
	return Config{
		EventBufferSize:   DefaultEventBufferSize,
		ClientBufferSize:  DefaultClientBufferSize,
		HeartbeatInterval: DefaultHeartbeatInterval,
		ShutdownTimeout:   DefaultShutdownTimeout,
		MaxClients:        DefaultMaxClients,
	}
}

// BrokerOption configures the broker.
type BrokerOption func(*Config)

// WithEventBufferSize sets the broker's publish buffer size.
func WithEventBufferSize(n int) BrokerOption {
	return func(c *Config) {
		if n > 0 {
			c.EventBufferSize = n
		}
	}
}

// WithClientBufferSize sets the default per-client buffer size.
func WithClientBufferSize(n int) BrokerOption {
	return func(c *Config) {
		if n > 0 {
			c.ClientBufferSize = n
		}
	}
}

// WithHeartbeatInterval sets the keep-alive interval.
func WithHeartbeatInterval(d time.Duration) BrokerOption {
	return func(c *Config) {
		if d > 0 {
			c.HeartbeatInterval = d
		}
	}
}

// WithMaxClients caps the number of concurrent clients.
func WithMaxClients(n int) BrokerOption {
	return func(c *Config) {
		if n > 0 {
			c.MaxClients = n
		}
	}
}

// WithConfig replaces the entire configuration.
func WithConfig(cfg Config) BrokerOption {
	return func(c *Config) { *c = cfg }
}

// ClientOption configures a single subscription.
type ClientOption func(*ClientOptions)

// WithFilter sets an event filter for the client.
func WithFilter(filter EventFilter) ClientOption {
	return func(o *ClientOptions) { o.Filter = filter }
}

// WithBufferSize sets the client's event buffer size.
func WithBufferSize(n int) ClientOption {
	return func(o *ClientOptions) {
		if n > 0 {
			o.BufferSize = n
		}
	}
}

// WithTaskFilter subscribes the client to events for a single task.
// Events without a task id (global broadcasts) still pass through.
func WithTaskFilter(taskID string) ClientOption {
	return func(o *ClientOptions) {
		o.Filter = func(event Event) bool {
			return event.TaskID == "" || event.TaskID == taskID
		}
	}
}

// WithInitialEvents queues events to be written to the client before
// live streaming begins.
func WithInitialEvents(events ...Event) ClientOption {
	return func(o *ClientOptions) {
		o.Initial = append(o.Initial, events...)
	}
}
