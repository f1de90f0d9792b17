package broker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(ctx context.Context, messages ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, messages...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type fakeAdmin struct {
	mu     sync.Mutex
	calls  map[string]int
	result error
}

func (a *fakeAdmin) CreateTopic(ctx context.Context, topic string, partitions int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.calls == nil {
		a.calls = make(map[string]int)
	}
	a.calls[topic]++
	return a.result
}

func TestKafkaQueue_SubmitWritesToTaskTopic(t *testing.T) {
	w := &fakeWriter{}
	admin := &fakeAdmin{}
	q := NewKafkaQueueWith(KafkaConfig{TopicPrefix: "feed"}, w, admin)

	payload := map[string]string{"user": "u1", "item": "i1"}
	require.NoError(t, q.Submit(context.Background(), "publish-to-followers", payload))

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "feed.publish-to-followers", w.msgs[0].Topic)

	var got map[string]string
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, payload, got)
}

func TestKafkaQueue_CreatesTopicOncePerProcess(t *testing.T) {
	admin := &fakeAdmin{}
	q := NewKafkaQueueWith(KafkaConfig{TopicPrefix: "feed"}, &fakeWriter{}, admin)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, q.Submit(context.Background(), "publish-mentioned", "job"))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, admin.calls["feed.publish-mentioned"])
}

func TestKafkaQueue_TopicAlreadyExistsIsNoop(t *testing.T) {
	w := &fakeWriter{}
	admin := &fakeAdmin{result: kafka.TopicAlreadyExists}
	q := NewKafkaQueueWith(KafkaConfig{}, w, admin)

	require.NoError(t, q.Submit(context.Background(), "publish-to-followers", "job"))
	require.NoError(t, q.Submit(context.Background(), "publish-to-followers", "job"))

	assert.Len(t, w.msgs, 2)
	assert.Equal(t, 1, admin.calls["publish-to-followers"])
}

func TestKafkaQueue_TopicCreationErrorIsSurfacedAndRetried(t *testing.T) {
	w := &fakeWriter{}
	admin := &fakeAdmin{result: errors.New("controller unavailable")}
	q := NewKafkaQueueWith(KafkaConfig{}, w, admin)

	err := q.Submit(context.Background(), "publish-to-followers", "job")
	require.Error(t, err)
	assert.Empty(t, w.msgs)

	admin.result = nil
	require.NoError(t, q.Submit(context.Background(), "publish-to-followers", "job"))
	assert.Equal(t, 2, admin.calls["publish-to-followers"])
}

func TestKafkaQueue_WriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("mock kafka write failed")}
	q := NewKafkaQueueWith(KafkaConfig{}, w, &fakeAdmin{})

	assert.Error(t, q.Submit(context.Background(), "publish-to-followers", "job"))
}

func TestMockQueue_ReaderDrainsSubmitted(t *testing.T) {
	q := NewMockQueue()
	require.NoError(t, q.Submit(context.Background(), "t", "a"))
	require.NoError(t, q.Submit(context.Background(), "t", "b"))
	assert.Equal(t, 2, q.Count("t"))

	r := q.Reader("t").(*MockKafkaReader)
	assert.Len(t, r.Messages, 2)
	assert.Equal(t, 0, q.Count("t"))
}
