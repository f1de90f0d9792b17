package broker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// MockQueue records submitted jobs per task and hands them back through
// readers, standing in for Kafka in tests.
type MockQueue struct {
	mu         sync.Mutex
	Submitted  map[string][]kafka.Message
	ShouldFail bool // flag to simulate enqueue failures
}

func NewMockQueue() *MockQueue {
	return &MockQueue{Submitted: make(map[string][]kafka.Message)}
}

func (m *MockQueue) Submit(ctx context.Context, task string, payload any) error {
	if m.ShouldFail {
		return errors.New("mock queue submit failed")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Submitted[task] = append(m.Submitted[task], kafka.Message{
		Topic: task,
		Key:   []byte(task),
		Value: data,
	})
	return nil
}

// Count returns how many jobs were submitted for task.
func (m *MockQueue) Count(task string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Submitted[task])
}

// Reader drains the jobs submitted so far for task.
func (m *MockQueue) Reader(task string) KafkaReader {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.Submitted[task]
	delete(m.Submitted, task)
	return &MockKafkaReader{Messages: msgs}
}

// MockKafkaReader simulates a Kafka reader for testing purposes
type MockKafkaReader struct {
	mu         sync.Mutex
	Messages   []kafka.Message // Queue of messages to return
	Committed  []kafka.Message // Messages acknowledged via CommitMessages
	ShouldFail bool            // If true, FetchMessage will fail
	Closed     bool            // Tracks whether Close() has been called
}

// FetchMessage returns the next message in the queue, or blocks until ctx is
// done once the queue is empty.
func (m *MockKafkaReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	m.mu.Lock()
	if m.ShouldFail {
		m.mu.Unlock()
		return kafka.Message{}, errors.New("mock kafka read failed")
	}
	if len(m.Messages) > 0 {
		msg := m.Messages[0]
		m.Messages = m.Messages[1:]
		m.mu.Unlock()
		return msg, nil
	}
	m.mu.Unlock()

	select {
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	case <-time.After(5 * time.Millisecond): // simulate idle wait
		return kafka.Message{}, nil
	}
}

func (m *MockKafkaReader) CommitMessages(ctx context.Context, messages ...kafka.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Committed = append(m.Committed, messages...)
	return nil
}

// CommittedCount returns how many messages have been committed.
func (m *MockKafkaReader) CommittedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Committed)
}

// Close marks the mock Kafka reader as closed
func (m *MockKafkaReader) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

// IsClosed reports whether Close has been called.
func (m *MockKafkaReader) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Closed
}
