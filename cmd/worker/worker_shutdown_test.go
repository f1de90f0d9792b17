package worker

import (
	"context"
	"testing"
	"time"

	"example.com/activityfeed/internal/dispatch"
	"example.com/activityfeed/internal/models"
	"github.com/segmentio/kafka-go"
	"go.uber.org/goleak"
)

// TestWorker_GracefulShutdown ensures that the worker:
// 1. Processes the messages it has fetched.
// 2. Stops every read and process loop when the context is canceled.
// 3. Closes its readers on Close.
func TestWorker_GracefulShutdown(t *testing.T) {
	defer goleak.VerifyNone(t)

	src := newFixedSource()
	src.reader(dispatch.PublishToFollowers).Messages = []kafka.Message{
		{Value: []byte(`{"user":"1","item":"100","type":"post"}`)},
	}

	processed := make(chan models.FanoutJob, 1)
	w := New(src, 4, 8, time.Second)
	w.Handle(dispatch.PublishToFollowers, func(_ context.Context, j models.FanoutJob) error {
		processed <- j
		return nil
	})
	w.Handle(dispatch.PublishMentioned, func(context.Context, models.FanoutJob) error { return nil })

	// Context with timeout to simulate graceful shutdown signal
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx)
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("worker Run() error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("worker did not shutdown gracefully in time")
	}

	select {
	case j := <-processed:
		if j.Item != "100" {
			t.Fatalf("unexpected job processed: %+v", j)
		}
	default:
		t.Fatal("expected the fetched job to be processed")
	}

	if err := w.Close(); err != nil {
		t.Fatalf("worker Close() error: %v", err)
	}
	for _, task := range dispatch.Tasks {
		if !src.reader(task).IsClosed() {
			t.Fatalf("expected %s reader to be closed", task)
		}
	}
}
