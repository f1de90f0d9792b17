package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"example.com/activityfeed/internal/broker"
	"example.com/activityfeed/internal/dispatch"
	"example.com/activityfeed/internal/feed"
	"example.com/activityfeed/internal/models"
	"example.com/activityfeed/internal/store"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedSource hands out pre-built readers, one per task.
type fixedSource struct {
	mu      sync.Mutex
	readers map[string]*broker.MockKafkaReader
}

func newFixedSource() *fixedSource {
	return &fixedSource{readers: make(map[string]*broker.MockKafkaReader)}
}

func (s *fixedSource) Reader(task string) broker.KafkaReader {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.readers[task]
	if !ok {
		r = &broker.MockKafkaReader{}
		s.readers[task] = r
	}
	return r
}

func (s *fixedSource) reader(task dispatch.Task) *broker.MockKafkaReader {
	return s.Reader(string(task)).(*broker.MockKafkaReader)
}

// drainingSource wraps the mock queue and remembers the readers it opened.
type drainingSource struct {
	q       *broker.MockQueue
	mu      sync.Mutex
	readers []*broker.MockKafkaReader
}

func (s *drainingSource) Reader(task string) broker.KafkaReader {
	r := s.q.Reader(task).(*broker.MockKafkaReader)
	s.mu.Lock()
	s.readers = append(s.readers, r)
	s.mu.Unlock()
	return r
}

func (s *drainingSource) opened() []*broker.MockKafkaReader {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*broker.MockKafkaReader(nil), s.readers...)
}

func runAsync(t *testing.T, w *Worker) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx)
	}()
	return cancel, done
}

func stop(t *testing.T, cancel context.CancelFunc, done <-chan error) {
	t.Helper()
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not shut down in time")
	}
}

func TestWorker_RunsQueuedFanout(t *testing.T) {
	m := store.NewMock()
	q := broker.NewMockQueue()
	engine := feed.New(m, m, dispatch.NewQueued(q))
	ctx := context.Background()

	author, err := m.CreateUser(ctx, "author")
	require.NoError(t, err)
	follower, err := m.CreateUser(ctx, "follower")
	require.NoError(t, err)
	bob, err := m.CreateUser(ctx, "bob")
	require.NoError(t, err)
	_, err = m.CreateFollow(ctx, author.ID, follower.ID, false)
	require.NoError(t, err)
	p, err := m.CreatePost(ctx, author.ID, "hello @bob", false, false)
	require.NoError(t, err)

	require.NoError(t, engine.AddActivity(ctx, author.ID, p.ID, models.TypePost, false, false))
	assert.Empty(t, m.Entries(models.FeedTimeline, follower.ID))

	src := &drainingSource{q: q}
	w := New(src, 2, 4, time.Second)
	engine.RegisterHandlers(w)
	cancel, done := runAsync(t, w)

	require.Eventually(t, func() bool {
		return len(m.Entries(models.FeedTimeline, follower.ID)) == 1 &&
			len(m.Entries(models.FeedTimeline, bob.ID)) == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		readers := src.opened()
		for _, r := range readers {
			if r.CommittedCount() != 1 {
				return false
			}
		}
		return len(readers) == 2
	}, 2*time.Second, 10*time.Millisecond)

	stop(t, cancel, done)
	require.NoError(t, w.Close())
	for _, r := range src.opened() {
		assert.True(t, r.IsClosed())
	}
}

func TestWorker_InvalidJSONIsCommittedAndSkipped(t *testing.T) {
	src := newFixedSource()
	src.reader(dispatch.PublishToFollowers).Messages = []kafka.Message{{Value: []byte("{invalid-json}")}}

	var calls atomic.Int32
	w := New(src, 1, 1, time.Second)
	w.Handle(dispatch.PublishToFollowers, func(context.Context, models.FanoutJob) error {
		calls.Add(1)
		return nil
	})
	cancel, done := runAsync(t, w)

	require.Eventually(t, func() bool {
		return src.reader(dispatch.PublishToFollowers).CommittedCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
	stop(t, cancel, done)
	assert.Zero(t, calls.Load())
}

func TestWorker_RetriesFailedJobThenCommits(t *testing.T) {
	src := newFixedSource()
	src.reader(dispatch.PublishMentioned).Messages = []kafka.Message{{Value: []byte(`{"user":"u","item":"i","type":"post"}`)}}

	var calls atomic.Int32
	var got models.FanoutJob
	w := New(src, 1, 1, 5*time.Second)
	w.Handle(dispatch.PublishMentioned, func(_ context.Context, j models.FanoutJob) error {
		if calls.Add(1) == 1 {
			return errors.New("transient")
		}
		got = j
		return nil
	})
	cancel, done := runAsync(t, w)

	require.Eventually(t, func() bool {
		return src.reader(dispatch.PublishMentioned).CommittedCount() == 1
	}, 4*time.Second, 20*time.Millisecond)
	stop(t, cancel, done)

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, models.FanoutJob{User: "u", Item: "i", Type: models.TypePost}, got)
}

func TestWorker_GivesUpAfterRetryWindow(t *testing.T) {
	src := newFixedSource()
	src.reader(dispatch.PublishToFollowers).Messages = []kafka.Message{{Value: []byte(`{"user":"u","item":"i","type":"like"}`)}}

	var calls atomic.Int32
	w := New(src, 1, 1, 10*time.Millisecond)
	w.Handle(dispatch.PublishToFollowers, func(context.Context, models.FanoutJob) error {
		calls.Add(1)
		return errors.New("permanent")
	})
	cancel, done := runAsync(t, w)

	require.Eventually(t, func() bool {
		return src.reader(dispatch.PublishToFollowers).CommittedCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
	stop(t, cancel, done)
	assert.GreaterOrEqual(t, calls.Load(), int32(1))
}

func TestWorker_ReadErrorsBackOffUntilShutdown(t *testing.T) {
	src := newFixedSource()
	src.reader(dispatch.PublishToFollowers).ShouldFail = true

	w := New(src, 1, 1, time.Second)
	w.Handle(dispatch.PublishToFollowers, func(context.Context, models.FanoutJob) error { return nil })
	cancel, done := runAsync(t, w)

	time.Sleep(30 * time.Millisecond)
	stop(t, cancel, done)
	assert.Zero(t, src.reader(dispatch.PublishToFollowers).CommittedCount())
}

func TestWorker_RequiresHandlers(t *testing.T) {
	w := New(newFixedSource(), 1, 1, time.Second)
	assert.Error(t, w.Run(context.Background()))
}

type fakeSubscriber struct {
	mu     sync.Mutex
	topics []string
	fail   bool
}

func (s *fakeSubscriber) Subscribe(ctx context.Context, topic string, handler func(ctx context.Context, payload []byte)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("redis down")
	}
	s.topics = append(s.topics, topic)
	handler(ctx, []byte(`{}`))
	return nil
}

func TestWorker_WatchesNotifications(t *testing.T) {
	sub := &fakeSubscriber{}
	w := New(newFixedSource(), 1, 1, time.Second)
	w.Handle(dispatch.PublishToFollowers, func(context.Context, models.FanoutJob) error { return nil })
	w.Watch(sub, feed.TopicActivityAdded, feed.TopicActivityRemoved)

	cancel, done := runAsync(t, w)
	stop(t, cancel, done)

	sub.mu.Lock()
	defer sub.mu.Unlock()
	assert.Equal(t, []string{feed.TopicActivityAdded, feed.TopicActivityRemoved}, sub.topics)
}

func TestWorker_SubscribeFailureIsNotFatal(t *testing.T) {
	w := New(newFixedSource(), 1, 1, time.Second)
	w.Handle(dispatch.PublishToFollowers, func(context.Context, models.FanoutJob) error { return nil })
	w.Watch(&fakeSubscriber{fail: true}, feed.TopicActivityAdded)

	cancel, done := runAsync(t, w)
	stop(t, cancel, done)
}

func TestWorker_KeepsPartitionOrderAcrossShutdown(t *testing.T) {
	src := newFixedSource()
	src.reader(dispatch.PublishToFollowers).Messages = []kafka.Message{
		{Partition: 0, Offset: 1, Value: []byte(`{"user":"u","item":"slow","type":"post"}`)},
		{Partition: 0, Offset: 2, Value: []byte(`{"user":"u","item":"fast","type":"post"}`)},
	}

	started := make(chan struct{})
	var fastCalls atomic.Int32
	w := New(src, 2, 4, time.Second)
	w.Handle(dispatch.PublishToFollowers, func(ctx context.Context, j models.FanoutJob) error {
		if j.Item == "fast" {
			fastCalls.Add(1)
			return nil
		}
		select {
		case <-started:
		default:
			close(started)
		}
		<-ctx.Done()
		return ctx.Err()
	})
	cancel, done := runAsync(t, w)

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("first job never started")
	}
	// Give a second worker the chance to pick up offset 2 if ordering were broken.
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, fastCalls.Load())

	stop(t, cancel, done)
	assert.Zero(t, src.reader(dispatch.PublishToFollowers).CommittedCount())
}

func TestWorker_PartitionsShareLanesDeterministically(t *testing.T) {
	w := New(newFixedSource(), 3, 0, time.Second)
	assert.Equal(t, w.lane(0, 4), w.lane(0, 4))
	assert.Equal(t, 1, w.lane(0, 4))
	assert.Equal(t, 2, w.lane(1, 4))
	for p := 0; p < 10; p++ {
		assert.Less(t, w.lane(1, p), 3)
	}
}
