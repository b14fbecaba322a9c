// internal/adapter/stream/kafka.go

package stream

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageWriter is the subset of *kafkago.Writer used for auditing.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaConfig contains configuration for the Kafka audit stream
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// KafkaAudit copies every published alert event into a Kafka topic, keyed by
// the originating subject.
type KafkaAudit struct {
	writer  MessageWriter
	timeout time.Duration
	now     func() time.Time
}

// NewKafkaWriter creates a producer for the configured audit topic.
func NewKafkaWriter(cfg KafkaConfig) *kafkago.Writer {
	return &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireOne,
	}
}

// NewKafkaAudit creates an audit publisher on writer.
func NewKafkaAudit(writer MessageWriter, writeTimeout time.Duration) *KafkaAudit {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &KafkaAudit{writer: writer, timeout: writeTimeout, now: time.Now}
}

// Publish writes payload to the audit topic.
func (k *KafkaAudit) Publish(subject string, payload []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), k.timeout)
	defer cancel()

	if err := k.writer.WriteMessages(ctx, auditMessage(subject, payload, k.now())); err != nil {
		return eris.Wrapf(err, "stream: write audit record for %s", subject)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (k *KafkaAudit) Close() error {
	return k.writer.Close()
}

func auditMessage(subject string, payload []byte, at time.Time) kafkago.Message {
	return kafkago.Message{
		Key:   []byte(subject),
		Value: payload,
		Headers: []kafkago.Header{
			{Key: "subject", Value: []byte(subject)},
			{Key: "published_at", Value: []byte(at.UTC().Format(time.RFC3339Nano))},
		},
	}
}

// Publisher is the fan-out channel as seen by the broadcaster
type Publisher interface {
	Publish(subject string, payload []byte) error
}

// Tee publishes to a primary publisher and mirrors successful messages to a
// secondary. Only the primary's errors are returned; secondary failures are
// logged.
type Tee struct {
	primary   Publisher
	secondary Publisher
	logger    *zap.Logger
}

// NewTee creates a tee publisher.
func NewTee(primary, secondary Publisher, logger *zap.Logger) *Tee {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tee{primary: primary, secondary: secondary, logger: logger}
}

// Publish sends payload to the primary and then the secondary.
func (t *Tee) Publish(subject string, payload []byte) error {
	if err := t.primary.Publish(subject, payload); err != nil {
		return err
	}
	if err := t.secondary.Publish(subject, payload); err != nil {
		t.logger.Warn("failed to mirror message",
			zap.String("subject", subject),
			zap.Error(err),
		)
	}
	return nil
}
