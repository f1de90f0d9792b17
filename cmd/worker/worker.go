package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"sync"
	"time"

	"example.com/activityfeed/internal/broker"
	"example.com/activityfeed/internal/dispatch"
	"example.com/activityfeed/internal/logger"
	"example.com/activityfeed/internal/models"
	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"
)

var logg = logger.New()

var (
	jobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "activityfeed_jobs_processed_total",
		Help: "Dequeued fan-out jobs, by task and outcome",
	}, []string{"task", "outcome"})

	notificationsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "activityfeed_notifications_received_total",
		Help: "Activity notifications received over pub/sub, by topic",
	}, []string{"topic"})
)

// ReaderSource opens a queue reader for one task.
type ReaderSource interface {
	Reader(task string) broker.KafkaReader
}

// Subscriber delivers pub/sub notifications.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string, handler func(ctx context.Context, payload []byte)) error
}

type job struct {
	task   dispatch.Task
	msg    kafka.Message
	reader broker.KafkaReader
}

// Worker consumes fan-out jobs from the queue and runs the registered
// handler for each, committing once the job is done.
type Worker struct {
	source       ReaderSource
	subscriber   Subscriber
	topics       []string
	workerCount  int
	jobQueueSize int
	maxRetry     time.Duration

	mu       sync.Mutex
	handlers map[dispatch.Task]dispatch.Handler
	readers  []broker.KafkaReader
}

// New creates a Worker reading from source. Handlers are added with Handle.
func New(source ReaderSource, workerCount, jobQueueSize int, maxRetry time.Duration) *Worker {
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}
	if jobQueueSize <= 0 {
		jobQueueSize = workerCount * 10
	}
	if maxRetry <= 0 {
		maxRetry = time.Minute
	}
	return &Worker{
		source:       source,
		workerCount:  workerCount,
		jobQueueSize: jobQueueSize,
		maxRetry:     maxRetry,
		handlers:     make(map[dispatch.Task]dispatch.Handler),
	}
}

// Handle registers the handler run for every job of task.
func (w *Worker) Handle(task dispatch.Task, h dispatch.Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[task] = h
}

// Watch subscribes to activity notifications on topics while the worker runs.
func (w *Worker) Watch(sub Subscriber, topics ...string) {
	w.subscriber = sub
	w.topics = topics
}

func (w *Worker) handler(task dispatch.Task) (dispatch.Handler, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	h, ok := w.handlers[task]
	return h, ok
}

// Run reads every registered task until ctx is done, then drains in-flight
// jobs and returns.
func (w *Worker) Run(ctx context.Context) error {
	w.mu.Lock()
	var tasks []dispatch.Task
	for _, task := range dispatch.Tasks {
		if _, ok := w.handlers[task]; ok {
			tasks = append(tasks, task)
		}
	}
	w.mu.Unlock()
	if len(tasks) == 0 {
		return fmt.Errorf("worker: no handlers registered")
	}

	w.subscribe(ctx)

	logg.Info("worker", "Starting "+fmt.Sprint(w.workerCount)+" workers with queue size "+fmt.Sprint(w.jobQueueSize))

	// One lane per worker. A partition always maps to the same lane so its
	// offsets are processed, and committed, in order.
	lanes := make([]chan job, w.workerCount)
	laneSize := max(1, w.jobQueueSize/w.workerCount)
	var wg sync.WaitGroup
	for i := range lanes {
		lanes[i] = make(chan job, laneSize)
		wg.Add(1)
		go func(jobs <-chan job) {
			defer wg.Done()
			w.processLoop(ctx, jobs)
		}(lanes[i])
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, task := range tasks {
		r := w.source.Reader(string(task))
		w.mu.Lock()
		w.readers = append(w.readers, r)
		w.mu.Unlock()

		g.Go(func() error {
			w.readLoop(gctx, task, i, r, lanes)
			return nil
		})
	}
	err := g.Wait()

	for _, lane := range lanes {
		close(lane)
	}
	wg.Wait()
	logg.Info("worker", "All workers stopped gracefully")
	return err
}

func (w *Worker) subscribe(ctx context.Context) {
	if w.subscriber == nil {
		return
	}
	for _, topic := range w.topics {
		err := w.subscriber.Subscribe(ctx, topic, func(_ context.Context, payload []byte) {
			notificationsReceived.WithLabelValues(topic).Inc()
			logg.Debug("worker", "Received "+topic+" notification")
		})
		if err != nil {
			logg.Warn("worker", "Could not subscribe to "+topic+" notifications: "+err.Error())
		}
	}
}

// lane picks the lane for a partition of the task at index taskIdx.
func (w *Worker) lane(taskIdx, partition int) int {
	return (taskIdx + partition) % w.workerCount
}

// readLoop fetches messages for one task and pushes each onto its
// partition's lane.
func (w *Worker) readLoop(ctx context.Context, task dispatch.Task, taskIdx int, r broker.KafkaReader, lanes []chan job) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Millisecond
	b.MaxInterval = time.Second
	b.MaxElapsedTime = 0

	for {
		if ctx.Err() != nil {
			return
		}
		msg, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logg.Error("worker", "Kafka read error, backing off", err)
			if !waitWithContext(ctx, b.NextBackOff()) {
				return
			}
			continue
		}
		b.Reset()

		if len(msg.Value) == 0 {
			continue
		}

		select {
		case lanes[w.lane(taskIdx, msg.Partition)] <- job{task: task, msg: msg, reader: r}:
		case <-ctx.Done():
			return
		}
	}
}

// processLoop runs jobs until the queue is closed or ctx is done.
func (w *Worker) processLoop(ctx context.Context, jobs <-chan job) {
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-jobs:
			if !ok {
				return
			}
			w.process(ctx, j)
		}
	}
}

// process decodes and runs one job. Failures are retried with backoff; a job
// that still fails, or cannot be decoded, is logged and committed so it does
// not block the partition. A job interrupted by shutdown is left uncommitted
// and will be redelivered.
func (w *Worker) process(ctx context.Context, j job) {
	// An earlier offset on this lane may have been interrupted; committing
	// this one would acknowledge it too.
	if ctx.Err() != nil {
		return
	}
	task := string(j.task)

	var fj models.FanoutJob
	if err := json.Unmarshal(j.msg.Value, &fj); err != nil {
		logg.Error("worker", "Invalid JSON in Kafka message", err)
		jobsProcessed.WithLabelValues(task, "invalid").Inc()
		w.commit(ctx, j)
		return
	}

	h, ok := w.handler(j.task)
	if !ok {
		logg.Warn("worker", "No handler for "+task)
		return
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = w.maxRetry
	err := backoff.Retry(func() error {
		return h(ctx, fj)
	}, backoff.WithContext(b, ctx))

	if ctx.Err() != nil {
		return
	}
	if err != nil {
		logg.Error("worker", "Giving up on "+task+" job", err)
		jobsProcessed.WithLabelValues(task, "failed").Inc()
	} else {
		jobsProcessed.WithLabelValues(task, "ok").Inc()
		logg.Debug("worker", "Processed "+task+" job (IDs anonymized)")
	}
	w.commit(ctx, j)
}

func (w *Worker) commit(ctx context.Context, j job) {
	if err := j.reader.CommitMessages(ctx, j.msg); err != nil {
		logg.Error("worker", "Failed to commit Kafka message", err)
	}
}

// waitWithContext waits for duration or context cancellation.
func waitWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Close shuts down every Kafka reader opened by Run.
func (w *Worker) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	logg.Info("worker", "Closing Kafka readers")
	var firstErr error
	for _, r := range w.readers {
		if err := r.Close(); err != nil {
			logg.Error("worker", "Error closing Kafka reader", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	w.readers = nil
	return firstErr
}
