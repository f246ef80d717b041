package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

// DLQTopicPrefix prefixes dead-letter topics.
const DLQTopicPrefix = TopicPrefix + ".dlq"

// DLQTopic returns the dead-letter topic for a source topic.
func DLQTopic(topic string) string {
	return DLQTopicPrefix + "." + topic
}

// DeadLetterPublisher receives messages the consumer gave up on.
type DeadLetterPublisher interface {
	Publish(ctx context.Context, msg kafka.Message, cause error, group string) error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// DLQProducer writes failed messages to DLQTopic(original) with the failure
// context in headers.
type DLQProducer struct {
	writer messageWriter
	logger *slog.Logger
}

// NewDLQProducer creates a synchronous producer acknowledging from all replicas.
func NewDLQProducer(brokers []string, l *slog.Logger) *DLQProducer {
	return &DLQProducer{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			BatchSize:              1,
			BatchTimeout:           50 * time.Millisecond,
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
		logger: l,
	}
}

// Publish forwards msg to its dead-letter topic.
func (d *DLQProducer) Publish(ctx context.Context, msg kafka.Message, cause error, group string) error {
	topic := DLQTopic(msg.Topic)

	headers := append([]kafka.Header{}, msg.Headers...)
	headers = append(headers,
		kafka.Header{Key: "dlq.original_topic", Value: []byte(msg.Topic)},
		kafka.Header{Key: "dlq.original_partition", Value: []byte(strconv.Itoa(msg.Partition))},
		kafka.Header{Key: "dlq.original_offset", Value: []byte(strconv.FormatInt(msg.Offset, 10))},
		kafka.Header{Key: "dlq.consumer_group", Value: []byte(group)},
	)
	if cause != nil {
		headers = append(headers, kafka.Header{Key: "dlq.error", Value: []byte(cause.Error())})
	}

	err := d.writer.WriteMessages(ctx, kafka.Message{
		Topic:   topic,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}

	d.logger.WarnContext(ctx, "message sent to dead-letter topic",
		slog.String("dlq_topic", topic),
		slog.String("original_topic", msg.Topic),
		slog.Int64("offset", msg.Offset),
	)
	return nil
}

// Close flushes and closes the writer.
func (d *DLQProducer) Close() error {
	return d.writer.Close()
}
