// Package sse provides Server-Sent Events distribution for task updates.
// The API layer subscribes browser clients to a broker; collection runs
// publish progress into it.
package sse

import (
	"context"
	"time"
)

// Event represents a Server-Sent Event.
// Wire format: event: <Type>\ndata: <JSON payload>\n\n
type Event struct {
	// Type is the event type, e.g. "task:progress".
	Type string `json:"type"`
	// Data is the JSON payload.
	Data any `json:"data"`
	// ID is an optional event id for client-side tracking.
	ID string `json:"id,omitempty"`
	// Retry tells the client how long to wait before reconnecting (ms).
	Retry int `json:"retry,omitempty"`
	// TaskID scopes the event to one task. It is routing metadata for
	// per-task subscriptions and is not written to the wire.
	TaskID string `json:"-"`
}

// Publisher sends events to the broker.
type Publisher interface {
	// Publish sends an event to all connected clients. Returns an error
	// if the broker is not running or the publish buffer is full.
	Publish(ctx context.Context, event Event) error
}

// Subscriber receives events from the broker.
type Subscriber interface {
	// Subscribe registers a client and returns its event channel plus a
	// cancel function. The channel is closed when the subscription ends.
	// Returns an error when the broker is stopped or at capacity.
	Subscribe(ctx context.Context, opts ...ClientOption) (<-chan Event, func(), error)
}

// Broker manages SSE connections and event distribution.
type Broker interface {
	Publisher
	Subscriber
	// Start begins processing events (non-blocking).
	Start(ctx context.Context) error
	// Stop gracefully shuts down the broker.
	Stop() error
	// ClientCount returns the number of connected clients.
	ClientCount() int
}

// EventFilter decides whether an event is sent to a client.
type EventFilter func(event Event) bool

// ClientOptions configures a single SSE client connection.
type ClientOptions struct {
	// Filter is an optional event filter for this client.
	Filter EventFilter
	// BufferSize is the event buffer size.
	BufferSize int
	// Initial events are written to the client before live streaming
	// begins, letting a subscriber catch up on current state.
	Initial []Event
}

// Event types published during collection runs.
const (
	EventTypeTaskStatus      = "task:status"
	EventTypeTaskProgress    = "task:progress"
	EventTypeTaskCompleted   = "task:completed"
	EventTypeRegionCompleted = "region:completed"
)

// Internal event types.
const eventTypeConnected = "connected"

// TaskStatusData is the payload for task:status events.
type TaskStatusData struct {
	TaskID    string `json:"task_id"`
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	Timestamp string `json:"timestamp"`
}

// TaskProgressData is the payload for task:progress events.
type TaskProgressData struct {
	TaskID             string   `json:"task_id"`
	Region             string   `json:"region"`
	Page               int      `json:"page"`
	ProcessedCases     int      `json:"processed_cases"`
	TotalCases         int      `json:"total_cases"`
	NewCases           int      `json:"new_cases"`
	UpdatedCases       int      `json:"updated_cases"`
	Progress           float64  `json:"progress"`
	EstimatedRemaining *float64 `json:"estimated_time_remaining,omitempty"`
	Timestamp          string   `json:"timestamp"`
}

// TaskCompletedData is the payload for task:completed events.
type TaskCompletedData struct {
	TaskID         string   `json:"task_id"`
	Status         string   `json:"status"`
	DurationMs     int64    `json:"duration_ms"`
	ProcessedCases int      `json:"processed_cases"`
	NewCases       int      `json:"new_cases"`
	UpdatedCases   int      `json:"updated_cases"`
	FailedRegions  []string `json:"failed_regions,omitempty"`
	Message        string   `json:"message,omitempty"`
	Timestamp      string   `json:"timestamp"`
}

// RegionCompletedData is the payload for region:completed events.
type RegionCompletedData struct {
	TaskID    string `json:"task_id"`
	Region    string `json:"region"`
	Pages     int    `json:"pages"`
	Cases     int    `json:"cases"`
	Created   int    `json:"created"`
	Updated   int    `json:"updated"`
	Failed    bool   `json:"failed"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp"`
}

// NewTaskStatusEvent creates a task:status event.
func NewTaskStatusEvent(taskID, status, message string) Event {
	return Event{
		Type:   EventTypeTaskStatus,
		TaskID: taskID,
		Data: TaskStatusData{
			TaskID:    taskID,
			Status:    status,
			Message:   message,
			Timestamp: timestamp(),
		},
	}
}

// NewTaskProgressEvent creates a task:progress event from a filled payload.
func NewTaskProgressEvent(data TaskProgressData) Event {
	if data.Timestamp == "" {
		data.Timestamp = timestamp()
	}
	return Event{Type: EventTypeTaskProgress, TaskID: data.TaskID, Data: data}
}

// NewTaskCompletedEvent creates a task:completed event from a filled payload.
func NewTaskCompletedEvent(data TaskCompletedData) Event {
	if data.Timestamp == "" {
		data.Timestamp = timestamp()
	}
	return Event{Type: EventTypeTaskCompleted, TaskID: data.TaskID, Data: data}
}

// NewRegionCompletedEvent creates a region:completed event.
func NewRegionCompletedEvent(data RegionCompletedData) Event {
	if data.Timestamp == "" {
		data.Timestamp = timestamp()
	}
	return Event{Type: EventTypeRegionCompleted, TaskID: data.TaskID, Data: data}
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
