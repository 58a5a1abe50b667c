package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/segmentio/kafka-go"
)

// DefaultKafkaGroupID is the consumer group used when none is configured.
const DefaultKafkaGroupID = "kestrel"

// KafkaBus implements EventBus on Kafka topics. Each subscription is a
// consumer-group reader; offsets are committed after the handler returns.
type KafkaBus struct {
	mu      sync.Mutex
	writer  *kafka.Writer
	brokers []string
	groupID string
	subs    map[*kafkaSubscription]struct{}
	closed  bool
}

type kafkaSubscription struct {
	topic  string
	reader *kafka.Reader
	cancel context.CancelFunc
	done   chan struct{}
	bus    *KafkaBus
}

// NewKafkaBus creates a Kafka-backed event bus.
func NewKafkaBus(cfg domain.EventBusConfig) (*KafkaBus, error) {
	if len(cfg.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("%w: at least one kafka broker is required", domain.ErrInvalidInput)
	}
	groupID := cfg.KafkaGroupID
	if groupID == "" {
		groupID = DefaultKafkaGroupID
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.KafkaBrokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}

	return &KafkaBus{
		writer:  writer,
		brokers: cfg.KafkaBrokers,
		groupID: groupID,
		subs:    make(map[*kafkaSubscription]struct{}),
	}, nil
}

// Publish writes a message envelope to the topic, keyed by message id.
func (b *KafkaBus) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := requireTopic(topic); err != nil {
		return err
	}

	msg := newMessage(topic, payload)
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	return b.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(msg.ID),
		Value: data,
		Time:  time.Unix(0, msg.Timestamp),
	})
}

// Subscribe starts a consumer-group reader for topic.
func (b *KafkaBus) Subscribe(ctx context.Context, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	if err := requireTopic(topic); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        b.brokers,
		Topic:          topic,
		GroupID:        b.groupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		CommitInterval: 0,
		StartOffset:    kafka.FirstOffset,
	})

	subCtx, cancel := context.WithCancel(ctx)
	sub := &kafkaSubscription{
		topic:  topic,
		reader: reader,
		cancel: cancel,
		done:   make(chan struct{}),
		bus:    b,
	}
	b.subs[sub] = struct{}{}

	go sub.consume(subCtx, handler)
	return sub, nil
}

func (s *kafkaSubscription) consume(ctx context.Context, handler domain.MessageHandler) {
	defer close(s.done)

	for {
		m, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, context.Canceled) {
				slog.Error("kafka fetch failed", "topic", s.topic, "error", err)
			}
			return
		}

		var msg domain.Message
		if err := json.Unmarshal(m.Value, &msg); err != nil {
			slog.Error("failed to unmarshal kafka message",
				"topic", m.Topic,
				"partition", m.Partition,
				"offset", m.Offset,
				"error", err,
			)
		} else if err := handler(ctx, &msg); err != nil {
			slog.Error("handler error",
				"topic", m.Topic,
				"message_id", msg.ID,
				"error", err,
			)
		}

		// Undecodable messages are committed too.
		if err := s.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			slog.Warn("kafka commit failed", "topic", m.Topic, "offset", m.Offset, "error", err)
		}
	}
}

func (s *kafkaSubscription) stop() error {
	s.cancel()
	<-s.done
	return s.reader.Close()
}

// Unsubscribe stops the reader and leaves the consumer group.
func (s *kafkaSubscription) Unsubscribe() error {
	s.bus.mu.Lock()
	_, ok := s.bus.subs[s]
	delete(s.bus.subs, s)
	s.bus.mu.Unlock()

	if !ok {
		return nil
	}
	return s.stop()
}

// Topic returns the subscribed topic.
func (s *kafkaSubscription) Topic() string {
	return s.topic
}

// Ping dials the first reachable broker.
func (b *KafkaBus) Ping(ctx context.Context) error {
	var lastErr error
	for _, broker := range b.brokers {
		conn, err := kafka.DialContext(ctx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		return conn.Close()
	}
	return fmt.Errorf("no kafka broker reachable: %w", lastErr)
}

// Close stops all readers and flushes the writer.
func (b *KafkaBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := b.subs
	b.subs = make(map[*kafkaSubscription]struct{})
	b.mu.Unlock()

	var errs []error
	for sub := range subs {
		if err := sub.stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := b.writer.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
