package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/projektkollen/collector/internal/logger"
)

// Handler returns a gin handler that streams broker events to the
// client. Connections stay open until the client disconnects or the
// broker shuts down.
func Handler(b Broker, log logger.Logger, opts ...ClientOption) gin.HandlerFunc {
	return func(c *gin.Context) {
		events, cancel, err := b.Subscribe(c.Request.Context(), opts...)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "event stream unavailable"})
			return
		}
		defer cancel()

		SetSSEHeaders(c.Writer)
		writeEvent(c.Writer, Event{
			Type: eventTypeConnected,
			Data: map[string]string{"timestamp": timestamp()},
		}, log)
		c.Writer.Flush()

		streamEvents(c, events, log)
	}
}

func streamEvents(c *gin.Context, events <-chan Event, log logger.Logger) {
	heartbeat := time.NewTicker(DefaultHeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if !writeEvent(c.Writer, event, log) {
				return
			}
			c.Writer.Flush()

		case <-heartbeat.C:
			if _, err := fmt.Fprintf(c.Writer, ": heartbeat %s\n\n", timestamp()); err != nil {
				return
			}
			c.Writer.Flush()

		case <-c.Request.Context().Done():
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, event Event, log logger.Logger) bool {
	data, err := json.Marshal(event.Data)
	if err != nil {
		log.Error("sse event payload not serializable",
			logger.String("event_type", event.Type),
			logger.Error(err))
		return true
	}
	if _, err := fmt.Fprintf(w, "event: %s\n", event.Type); err != nil {
		return false
	}
	if event.ID != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", event.ID); err != nil {
			return false
		}
	}
	if event.Retry > 0 {
		if _, err := fmt.Fprintf(w, "retry: %d\n", event.Retry); err != nil {
			return false
		}
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return false
	}
	return true
}

// SetSSEHeaders writes the response headers required for an SSE stream.
func SetSSEHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	h.Set("Access-Control-Allow-Origin", "*")
}
