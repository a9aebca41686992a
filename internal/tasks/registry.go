// Package tasks tracks collection runs in memory and answers status
// queries for the HTTP API. The registry is the single synchronization
// point for task state: writers mutate through atomic Update calls and
// readers always get an isolated snapshot.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/projektkollen/collector/internal/domain"
	"github.com/projektkollen/collector/internal/logger"
)

var (
	// ErrTaskNotFound is returned when a task id is unknown or evicted.
	// Callers should check with errors.Is().
	ErrTaskNotFound = errors.New("task not found")
	// ErrTaskAlreadyRunning is returned when a new run would overlap the
	// region set of a run still in flight.
	ErrTaskAlreadyRunning = errors.New("a task is already running for the requested regions")
)

const (
	// DefaultRetention is how long finished tasks stay queryable.
	DefaultRetention = time.Hour
	// janitorInterval is how often expired tasks are collected.
	janitorInterval = 5 * time.Minute
	// maxTaskErrors caps the error list per task; older entries are
	// dropped first. A run over 21 regions with a flaky store could
	// otherwise grow it without bound.
	maxTaskErrors = 50
)

// entry pairs a task with the cancel function of its run context.
type entry struct {
	task   domain.Task
	cancel context.CancelFunc
}

// Registry tracks tasks in memory. All methods are safe for concurrent
// use. Task state does not survive a restart; durable progress lives in
// the region status table instead.
type Registry struct {
	log       logger.Logger
	retention time.Duration

	mu    sync.RWMutex
	tasks map[string]*entry
}

// NewRegistry creates a task registry. A non-positive retention falls
// back to DefaultRetention.
func NewRegistry(log logger.Logger, retention time.Duration) *Registry {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Registry{
		log:       log,
		retention: retention,
		tasks:     make(map[string]*entry),
	}
}

// Create registers a new pending task over the given regions and returns
// a snapshot of it. Creation fails with ErrTaskAlreadyRunning when any
// live task already covers one of the regions, so two runs never hit the
// same endpoint concurrently.
func (r *Registry) Create(kind domain.TaskKind, regionIDs []string, cancel context.CancelFunc) (*domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.tasks {
		if e.task.Status.IsTerminal() {
			continue
		}
		if overlaps(e.task.Regions, regionIDs) {
			return nil, fmt.Errorf("%w: overlaps task %s", ErrTaskAlreadyRunning, e.task.ID)
		}
	}

	task := domain.Task{
		ID:        uuid.NewString(),
		Kind:      kind,
		Status:    domain.TaskPending,
		Regions:   append([]string(nil), regionIDs...),
		StartedAt: time.Now(),
	}
	r.tasks[task.ID] = &entry{task: task, cancel: cancel}

	r.log.Info("task created",
		logger.String("task_id", task.ID),
		logger.String("kind", string(kind)),
		logger.Strings("regions", task.Regions))

	return cloneTask(&task), nil
}

// Get returns a snapshot of one task.
func (r *Registry) Get(id string) (*domain.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return cloneTask(&e.task), nil
}

// Update applies fn to the task under the registry lock, making the
// mutation atomic with respect to concurrent readers. Updating an id
// that has been evicted is a no-op: a run may still be finishing when
// its task ages out.
func (r *Registry) Update(id string, fn func(*domain.Task)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.tasks[id]
	if !ok {
		r.log.Debug("update for evicted task dropped", logger.String("task_id", id))
		return
	}
	fn(&e.task)

	if n := len(e.task.Errors); n > maxTaskErrors {
		e.task.Errors = e.task.Errors[n-maxTaskErrors:]
	}
}

// Cancel requests cancellation of a running task. The run observes the
// cancelled context at its next page boundary and finalizes the task as
// cancelled; already finished tasks are left untouched.
func (r *Registry) Cancel(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if e.task.Status.IsTerminal() {
		return nil
	}

	if e.cancel != nil {
		e.cancel()
	}
	e.task.Message = "cancellation requested"

	r.log.Info("task cancellation requested", logger.String("task_id", id))
	return nil
}

// List returns snapshots of all tracked tasks, newest first.
func (r *Registry) List() []*domain.Task {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Task, 0, len(r.tasks))
	for _, e := range r.tasks {
		out = append(out, cloneTask(&e.task))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

// Evict removes a task immediately, cancelling it first if still live.
func (r *Registry) Evict(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if !e.task.Status.IsTerminal() && e.cancel != nil {
		e.cancel()
	}
	delete(r.tasks, id)

	r.log.Info("task evicted", logger.String("task_id", id))
	return nil
}

// Start launches the janitor that evicts finished tasks after the
// retention window. It returns immediately; the janitor stops when ctx
// is cancelled.
func (r *Registry) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(janitorInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.evictExpired()
			}
		}
	}()
}

// evictExpired removes terminal tasks older than the retention window.
func (r *Registry) evictExpired() {
	cutoff := time.Now().Add(-r.retention)

	r.mu.Lock()
	defer r.mu.Unlock()

	for id, e := range r.tasks {
		if !e.task.Status.IsTerminal() || e.task.CompletedAt == nil {
			continue
		}
		if e.task.CompletedAt.Before(cutoff) {
			delete(r.tasks, id)
			r.log.Debug("expired task evicted", logger.String("task_id", id))
		}
	}
}

// cloneTask returns a deep copy so callers never share slices with the
// registry's live state.
func cloneTask(t *domain.Task) *domain.Task {
	clone := *t
	clone.Regions = append([]string(nil), t.Regions...)
	if t.FailedRegions != nil {
		clone.FailedRegions = append([]string(nil), t.FailedRegions...)
	}
	if t.Errors != nil {
		clone.Errors = append([]domain.TaskError(nil), t.Errors...)
	}
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		clone.CompletedAt = &at
	}
	if t.EstimatedRemaining != nil {
		est := *t.EstimatedRemaining
		clone.EstimatedRemaining = &est
	}
	return &clone
}

// overlaps reports whether the two region sets share any id.
func overlaps(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
