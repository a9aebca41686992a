package sse

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/projektkollen/collector/internal/logger"
)

// Broker errors.
var (
	ErrNotRunning        = errors.New("sse: broker not running")
	ErrAlreadyRunning    = errors.New("sse: broker already running")
	ErrPublishBufferFull = errors.New("sse: publish buffer full")
	ErrTooManyClients    = errors.New("sse: client limit reached")
)

var clientSeq atomic.Int64

// client is a single subscription. Events are delivered through a
// buffered channel; a client that cannot keep up is disconnected.
type client struct {
	id     string
	events chan Event
	filter EventFilter

	closed  atomic.Bool
	closeMu sync.Mutex
}

func newClient(opts ClientOptions) *client {
	size := opts.BufferSize
	if size <= 0 {
		size = DefaultClientBufferSize
	}
	c := &client{
		id:     fmt.Sprintf("sse-%d", clientSeq.Add(1)),
		events: make(chan Event, size+len(opts.Initial)),
		filter: opts.Filter,
	}
	// Initial events are queued before the client is registered, so they
	// are always delivered ahead of live traffic.
	for _, ev := range opts.Initial {
		c.events <- ev
	}
	return c
}

// send delivers an event without blocking. A filtered-out event counts
// as delivered; a full buffer does not.
func (c *client) send(event Event) bool {
	if c.closed.Load() {
		return false
	}
	if c.filter != nil && !c.filter(event) {
		return true
	}
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed.Load() {
		return false
	}
	select {
	case c.events <- event:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed.CompareAndSwap(false, true) {
		close(c.events)
	}
}

// broker fans events out from a single publish channel to all
// registered clients.
type broker struct {
	config Config
	log    logger.Logger

	publish chan Event

	mu      sync.RWMutex
	clients map[string]*client

	running atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewBroker creates an SSE broker with the given options.
func NewBroker(log logger.Logger, opts ...BrokerOption) Broker {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &broker{
		config:  cfg,
		log:     log,
		publish: make(chan Event, cfg.EventBufferSize),
		clients: make(map[string]*client),
		done:    make(chan struct{}),
	}
}

// Start begins the broadcast loop. It is non-blocking.
func (b *broker) Start(_ context.Context) error {
	if !b.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	b.wg.Add(1)
	go b.broadcastLoop()
	b.log.Debug("sse broker started",
		logger.Int("event_buffer", b.config.EventBufferSize),
		logger.Int("max_clients", b.config.MaxClients))
	return nil
}

// Stop shuts the broker down and closes all client channels.
func (b *broker) Stop() error {
	if !b.running.CompareAndSwap(true, false) {
		return nil
	}
	close(b.done)
	b.wg.Wait()

	b.mu.Lock()
	for id, c := range b.clients {
		c.close()
		delete(b.clients, id)
	}
	b.mu.Unlock()

	b.log.Debug("sse broker stopped")
	return nil
}

// Publish queues an event for broadcast. It never blocks; when the
// publish buffer is full the event is dropped with an error.
func (b *broker) Publish(_ context.Context, event Event) error {
	if !b.running.Load() {
		return ErrNotRunning
	}
	select {
	case b.publish <- event:
		return nil
	default:
		b.log.Warn("sse publish buffer full, dropping event",
			logger.String("event_type", event.Type))
		return ErrPublishBufferFull
	}
}

// Subscribe registers a new client and returns its event channel plus a
// cancel function. Queued initial events are delivered before any live
// traffic.
func (b *broker) Subscribe(_ context.Context, opts ...ClientOption) (<-chan Event, func(), error) {
	if !b.running.Load() {
		return nil, nil, ErrNotRunning
	}

	options := ClientOptions{BufferSize: b.config.ClientBufferSize}
	for _, opt := range opts {
		opt(&options)
	}
	c := newClient(options)

	b.mu.Lock()
	if len(b.clients) >= b.config.MaxClients {
		b.mu.Unlock()
		b.log.Warn("sse client limit reached, rejecting subscription",
			logger.Int("max_clients", b.config.MaxClients))
		return nil, nil, ErrTooManyClients
	}
	b.clients[c.id] = c
	count := len(b.clients)
	b.mu.Unlock()

	b.log.Debug("sse client connected",
		logger.String("client_id", c.id),
		logger.Int("client_count", count))

	return c.events, func() { b.removeClient(c.id) }, nil
}

// ClientCount returns the number of connected clients.
func (b *broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

func (b *broker) broadcastLoop() {
	defer b.wg.Done()
	for {
		select {
		case event := <-b.publish:
			b.broadcast(event)
		case <-b.done:
			return
		}
	}
}

func (b *broker) broadcast(event Event) {
	b.mu.RLock()
	targets := make([]*client, 0, len(b.clients))
	for _, c := range b.clients {
		targets = append(targets, c)
	}
	b.mu.RUnlock()

	for _, c := range targets {
		if !c.send(event) {
			// A full buffer means the client stopped reading.
			b.log.Warn("sse client too slow, disconnecting",
				logger.String("client_id", c.id),
				logger.String("event_type", event.Type))
			b.removeClient(c.id)
		}
	}
}

func (b *broker) removeClient(id string) {
	b.mu.Lock()
	c, ok := b.clients[id]
	if ok {
		delete(b.clients, id)
	}
	count := len(b.clients)
	b.mu.Unlock()

	if ok {
		c.close()
		b.log.Debug("sse client disconnected",
			logger.String("client_id", id),
			logger.Int("client_count", count))
	}
}
