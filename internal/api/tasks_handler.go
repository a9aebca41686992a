package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/projektkollen/collector/internal/logger"
	"github.com/projektkollen/collector/internal/sse"
)

// TasksHandler answers task status queries and serves task event streams.
type TasksHandler struct {
	tasks  TaskDirectory
	broker sse.Broker
	log    logger.Logger
}

// NewTasksHandler creates a tasks handler.
func NewTasksHandler(tasks TaskDirectory, broker sse.Broker, log logger.Logger) *TasksHandler {
	return &TasksHandler{tasks: tasks, broker: broker, log: log}
}

// Status handles GET /api/v1/task-status/:id.
func (h *TasksHandler) Status(c *gin.Context) {
	task, err := h.tasks.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Task not found"})
		return
	}
	c.JSON(http.StatusOK, task)
}

// Cancel handles DELETE /api/v1/task-status/:id. Cancellation is
// asynchronous: the run observes it at its next page boundary.
func (h *TasksHandler) Cancel(c *gin.Context) {
	id := c.Param("id")
	if err := h.tasks.Cancel(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Task not found"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"task_id": id, "detail": "cancellation requested"})
}

// List handles GET /api/v1/tasks.
func (h *TasksHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tasks": h.tasks.List()})
}

// Events handles GET /api/v1/tasks/:id/events. The stream replays the
// task's current state before live events, so a client connecting
// mid-run does not start blind.
func (h *TasksHandler) Events(c *gin.Context) {
	id := c.Param("id")
	task, err := h.tasks.Get(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Task not found"})
		return
	}

	snapshot := sse.NewTaskStatusEvent(task.ID, string(task.Status), task.Message)
	sse.Handler(h.broker, h.log,
		sse.WithTaskFilter(id),
		sse.WithInitialEvents(snapshot),
	)(c)
}

// Stream handles GET /api/v1/events, the stream of events from all tasks.
func (h *TasksHandler) Stream(c *gin.Context) {
	sse.Handler(h.broker, h.log)(c)
}
