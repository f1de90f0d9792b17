package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"example.com/activityfeed/internal/logger"
	"github.com/segmentio/kafka-go"
)

var logg = logger.New()

// KafkaWriter defines an interface for writing messages to Kafka.
type KafkaWriter interface {
	WriteMessages(ctx context.Context, messages ...kafka.Message) error
	Close() error
}

// KafkaReader defines an interface for reading messages from Kafka with
// explicit commits.
type KafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, messages ...kafka.Message) error
	Close() error
}

// TopicAdmin creates topics on demand.
type TopicAdmin interface {
	CreateTopic(ctx context.Context, topic string, partitions int) error
}

// KafkaConfig holds configuration parameters for Kafka.
type KafkaConfig struct {
	Brokers      []string      // list of Kafka brokers
	TopicPrefix  string        // prefix of every task topic
	Partitions   int           // partitions for topics created on demand
	WriteTimeout time.Duration // write timeout duration
	ReadTimeout  time.Duration // max wait of a fetch
	GroupID      string        // consumer group ID
}

func (c KafkaConfig) withDefaults() KafkaConfig {
	if len(c.Brokers) == 0 {
		c.Brokers = []string{"localhost:9092"}
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.Partitions <= 0 {
		c.Partitions = 1
	}
	return c
}

// Topic returns the Kafka topic carrying jobs of the named task.
func Topic(prefix, task string) string {
	if prefix == "" {
		return task
	}
	return prefix + "." + task
}

// KafkaQueue is the job queue transport: one topic per task, created on
// first use.
type KafkaQueue struct {
	cfg    KafkaConfig
	writer KafkaWriter
	admin  TopicAdmin

	mu      sync.Mutex
	ensured map[string]bool
}

// NewKafkaQueue builds a queue over a balanced kafka.Writer.
func NewKafkaQueue(cfg KafkaConfig) *KafkaQueue {
	cfg = cfg.withDefaults()
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: cfg.WriteTimeout,
	}
	return NewKafkaQueueWith(cfg, w, &kafkaAdmin{brokers: cfg.Brokers})
}

// NewKafkaQueueWith builds a queue over the given writer and admin.
func NewKafkaQueueWith(cfg KafkaConfig, w KafkaWriter, admin TopicAdmin) *KafkaQueue {
	return &KafkaQueue{
		cfg:     cfg.withDefaults(),
		writer:  w,
		admin:   admin,
		ensured: make(map[string]bool),
	}
}

// ensureTopic creates topic once per process. Concurrent first callers
// share one attempt; an existing topic counts as success.
func (q *KafkaQueue) ensureTopic(ctx context.Context, topic string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ensured[topic] {
		return nil
	}
	err := q.admin.CreateTopic(ctx, topic, q.cfg.Partitions)
	if err != nil && !errors.Is(err, kafka.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	q.ensured[topic] = true
	return nil
}

// Submit serializes payload and appends it to the task's topic.
func (q *KafkaQueue) Submit(ctx context.Context, task string, payload any) error {
	topic := Topic(q.cfg.TopicPrefix, task)
	if err := q.ensureTopic(ctx, topic); err != nil {
		logg.Error("broker", "Failed to ensure queue topic", err)
		return err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", task, err)
	}

	if err := q.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(task),
		Value: data,
	}); err != nil {
		logg.Error("broker", "Failed to write Kafka message", err)
		return err
	}
	return nil
}

// Reader returns a consumer-group reader for the task's topic. Offsets are
// committed by the caller once a message has been handled.
func (q *KafkaQueue) Reader(task string) KafkaReader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  q.cfg.Brokers,
		GroupID:  q.cfg.GroupID,
		Topic:    Topic(q.cfg.TopicPrefix, task),
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
		MaxWait:  q.cfg.ReadTimeout,
	})
}

func (q *KafkaQueue) Close() error {
	return q.writer.Close()
}

// kafkaAdmin creates topics through the cluster controller.
type kafkaAdmin struct {
	brokers []string
}

func (a *kafkaAdmin) CreateTopic(ctx context.Context, topic string, partitions int) error {
	conn, err := kafka.DialContext(ctx, "tcp", a.brokers[0])
	if err != nil {
		return err
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return err
	}
	cconn, err := kafka.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return err
	}
	defer cconn.Close()

	return cconn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     partitions,
		ReplicationFactor: 1,
	})
}
