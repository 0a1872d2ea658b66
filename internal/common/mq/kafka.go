package mq

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	headerID        = "x-message-id"
	headerTimestamp = "x-message-ts"
)

// KafkaConfig defines configuration for the Kafka implementation.
type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers"`
	ClientID     string        `yaml:"clientID"`
	BatchSize    int           `yaml:"batchSize"`
	BatchTimeout time.Duration `yaml:"batchTimeout"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
}

// KafkaQueue implements MessageQueue using kafka-go.
type KafkaQueue struct {
	config  KafkaConfig
	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

// NewKafkaQueue creates a Kafka-backed message queue.
func NewKafkaQueue(cfg KafkaConfig) (*KafkaQueue, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}
	if cfg.BatchTimeout == 0 {
		cfg.BatchTimeout = 50 * time.Millisecond
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 3 * time.Second
	}
	return &KafkaQueue{
		config:  cfg,
		writers: make(map[string]*kafka.Writer),
	}, nil
}

// Publish writes one message to the topic, keyed by message ID so messages
// with the same ID land on the same partition in order.
func (q *KafkaQueue) Publish(ctx context.Context, topic string, message *Message) error {
	if topic == "" {
		return fmt.Errorf("topic is required")
	}
	if message == nil {
		return fmt.Errorf("message is required")
	}

	writer := q.writerFor(topic)
	kafkaMsg := kafka.Message{
		Key:   []byte(message.ID),
		Value: message.Body,
		Time:  message.Timestamp,
		Headers: []kafka.Header{
			{Key: headerID, Value: []byte(message.ID)},
			{Key: headerTimestamp, Value: []byte(message.Timestamp.UTC().Format(time.RFC3339Nano))},
		},
	}
	for k, v := range message.Headers {
		kafkaMsg.Headers = append(kafkaMsg.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	if err := writer.WriteMessages(ctx, kafkaMsg); err != nil {
		return fmt.Errorf("kafka write failed: %w", err)
	}
	return nil
}

// Ping dials the first broker to verify connectivity.
func (q *KafkaQueue) Ping(ctx context.Context) error {
	dialer := &kafka.Dialer{Timeout: q.config.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", q.config.Brokers[0])
	if err != nil {
		return fmt.Errorf("kafka dial failed: %w", err)
	}
	return conn.Close()
}

// Close closes all topic writers.
func (q *KafkaQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	var firstErr error
	for topic, writer := range q.writers {
		if err := writer.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close writer for %s: %w", topic, err)
		}
		delete(q.writers, topic)
	}
	return firstErr
}

func (q *KafkaQueue) writerFor(topic string) *kafka.Writer {
	q.mu.Lock()
	defer q.mu.Unlock()

	if writer, ok := q.writers[topic]; ok {
		return writer
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(q.config.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    q.config.BatchSize,
		BatchTimeout: q.config.BatchTimeout,
		WriteTimeout: q.config.WriteTimeout,
		Transport: &kafka.Transport{
			ClientID: q.config.ClientID,
			Dial: (&net.Dialer{
				Timeout: q.config.DialTimeout,
			}).DialContext,
		},
	}
	q.writers[topic] = writer
	return writer
}
