// Package dispatch decides whether a fan-out task runs in the caller or is
// handed to the job queue. Callers only see the Dispatcher capability.
package dispatch

import (
	"context"
	"fmt"
	"sync"

	"example.com/activityfeed/internal/logger"
	"example.com/activityfeed/internal/models"
)

var logg = logger.New()

// Task names one of the fan-out sub-tasks.
type Task string

const (
	PublishToFollowers Task = "publish-to-followers"
	PublishMentioned   Task = "publish-mentioned"
)

// Tasks lists every task a worker must listen to.
var Tasks = []Task{PublishToFollowers, PublishMentioned}

const (
	ModeInline = "inline"
	ModeQueued = "queued"
)

// Handler executes one fan-out job.
type Handler func(ctx context.Context, job models.FanoutJob) error

// Registrar accepts task handlers. Both the inline dispatcher and the queue
// worker are registrars, so the same handlers serve both modes.
type Registrar interface {
	Handle(task Task, h Handler)
}

// Dispatcher runs or enqueues a fan-out job.
type Dispatcher interface {
	Dispatch(ctx context.Context, task Task, job models.FanoutJob) error
	Mode() string
}

// Submitter is the queue side of the transport.
type Submitter interface {
	Submit(ctx context.Context, task string, payload any) error
}

// Inline runs the registered handler in the caller's goroutine. Handler
// errors reach the caller unchanged.
type Inline struct {
	mu       sync.RWMutex
	handlers map[Task]Handler
}

func NewInline() *Inline {
	return &Inline{handlers: make(map[Task]Handler)}
}

func (d *Inline) Handle(task Task, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[task] = h
}

func (d *Inline) Dispatch(ctx context.Context, task Task, job models.FanoutJob) error {
	d.mu.RLock()
	h, ok := d.handlers[task]
	d.mu.RUnlock()
	if !ok {
		return fmt.Errorf("dispatch: no handler registered for %s", task)
	}
	return h(ctx, job)
}

func (d *Inline) Mode() string { return ModeInline }

// Queued serializes the job onto the queue and returns once it is accepted.
// What happens after dequeue is the worker's concern.
type Queued struct {
	queue Submitter
}

func NewQueued(queue Submitter) *Queued {
	return &Queued{queue: queue}
}

func (d *Queued) Dispatch(ctx context.Context, task Task, job models.FanoutJob) error {
	if err := d.queue.Submit(ctx, string(task), job); err != nil {
		logg.Error("dispatch", "Failed to enqueue "+string(task), err)
		return &models.DispatchError{Task: string(task), Err: err}
	}
	return nil
}

func (d *Queued) Mode() string { return ModeQueued }
