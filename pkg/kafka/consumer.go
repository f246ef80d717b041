package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/utafrali/showcase-search/pkg/logger"
)

// ErrDuplicate is returned by a handler to report an already processed
// event. The message is committed without counting as a failure.
var ErrDuplicate = errors.New("duplicate event")

// Handler processes one decoded event.
type Handler func(ctx context.Context, event *Event) error

// ConsumerConfig configures a group consumer over one or more topics.
type ConsumerConfig struct {
	Brokers      []string
	GroupID      string
	Topics       []string
	MinBytes     int
	MaxBytes     int
	MaxRetries   int
	RetryBackoff time.Duration
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer fetches messages, decodes the Event envelope and runs the handler
// with retries. Messages that still fail go to the dead-letter publisher, if
// one is set, and are committed either way.
type Consumer struct {
	reader     messageReader
	group      string
	handler    Handler
	dlq        DeadLetterPublisher
	logger     *slog.Logger
	maxRetries int
	backoff    time.Duration
	closeOnce  sync.Once
}

// Option customises a Consumer.
type Option func(*Consumer)

// WithDeadLetter routes exhausted messages to p.
func WithDeadLetter(p DeadLetterPublisher) Option {
	return func(c *Consumer) { c.dlq = p }
}

// NewConsumer builds a consumer-group reader for cfg.Topics.
func NewConsumer(cfg ConsumerConfig, handler Handler, l *slog.Logger, opts ...Option) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		GroupTopics: cfg.Topics,
		MinBytes:    cfg.MinBytes,
		MaxBytes:    cfg.MaxBytes,
	})
	return newConsumer(r, cfg, handler, l, opts...)
}

func newConsumer(r messageReader, cfg ConsumerConfig, handler Handler, l *slog.Logger, opts ...Option) *Consumer {
	c := &Consumer{
		reader:     r,
		group:      cfg.GroupID,
		handler:    handler,
		logger:     l,
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.RetryBackoff,
	}
	if c.maxRetries < 1 {
		c.maxRetries = 3
	}
	if c.backoff <= 0 {
		c.backoff = 100 * time.Millisecond
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start consumes until ctx is canceled, then closes the reader.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started", slog.String("group", c.group))

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", slog.String("group", c.group))
				return c.Close()
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			c.logger.Error("failed to fetch message", slog.String("error", err.Error()))
			continue
		}

		c.process(ctx, msg)
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) {
	consumerMessagesReceived.WithLabelValues(msg.Topic, c.group).Inc()
	start := time.Now()
	defer func() {
		consumerProcessingDuration.WithLabelValues(msg.Topic, c.group).Observe(time.Since(start).Seconds())
	}()

	event, err := UnmarshalEvent(msg.Value)
	if err != nil {
		c.logger.Error("failed to decode event",
			slog.String("topic", msg.Topic),
			slog.Int64("offset", msg.Offset),
			slog.String("error", err.Error()),
		)
		c.giveUp(ctx, msg, err)
		return
	}

	ctx = otel.GetTextMapPropagator().Extract(ctx, headerCarrier(msg.Headers))
	if event.CorrelationID != "" {
		ctx = logger.WithCorrelationID(ctx, event.CorrelationID)
	}
	ctx, span := otel.Tracer("github.com/utafrali/showcase-search/pkg/kafka").Start(ctx, "consume "+msg.Topic,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination.name", msg.Topic),
			attribute.String("messaging.kafka.consumer.group", c.group),
			attribute.String("event.type", event.EventType),
		),
	)
	defer span.End()

	err = c.handleWithRetry(ctx, msg, event)
	switch {
	case err == nil:
		consumerMessagesProcessed.WithLabelValues(msg.Topic, c.group).Inc()
		c.commit(ctx, msg)
	case errors.Is(err, ErrDuplicate):
		consumerMessagesDuplicate.WithLabelValues(msg.Topic, c.group).Inc()
		c.commit(ctx, msg)
	case ctx.Err() != nil:
		// Leave uncommitted so the group redelivers after restart.
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.ErrorContext(ctx, "handler failed after retries",
			slog.String("event_type", event.EventType),
			slog.String("aggregate_id", event.AggregateID),
			slog.String("topic", msg.Topic),
			slog.Int64("offset", msg.Offset),
			slog.String("error", err.Error()),
		)
		c.giveUp(ctx, msg, err)
	}
}

func (c *Consumer) handleWithRetry(ctx context.Context, msg kafka.Message, event *Event) error {
	var err error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		err = c.handler(ctx, event)
		if err == nil || errors.Is(err, ErrDuplicate) {
			return err
		}
		if attempt == c.maxRetries {
			break
		}
		c.logger.WarnContext(ctx, "handler failed, retrying",
			slog.String("event_type", event.EventType),
			slog.String("topic", msg.Topic),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * c.backoff):
		}
	}
	return err
}

func (c *Consumer) giveUp(ctx context.Context, msg kafka.Message, cause error) {
	consumerMessagesFailed.WithLabelValues(msg.Topic, c.group).Inc()
	if c.dlq != nil {
		if err := c.dlq.Publish(ctx, msg, cause, c.group); err != nil {
			c.logger.ErrorContext(ctx, "dead-letter publish failed", slog.String("error", err.Error()))
		} else {
			consumerDLQPublished.WithLabelValues(msg.Topic, c.group).Inc()
		}
	}
	c.commit(ctx, msg)
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		c.logger.ErrorContext(ctx, "failed to commit message",
			slog.String("topic", msg.Topic),
			slog.Int64("offset", msg.Offset),
			slog.String("error", err.Error()),
		)
	}
}

// Close closes the reader once.
func (c *Consumer) Close() error {
	var err error
	c.closeOnce.Do(func() { err = c.reader.Close() })
	return err
}

// PingBrokers succeeds if at least one broker answers a metadata request.
func PingBrokers(ctx context.Context, brokers []string) error {
	if len(brokers) == 0 {
		return errors.New("kafka: no brokers configured")
	}
	var lastErr error
	for _, addr := range brokers {
		conn, err := kafka.DialContext(ctx, "tcp", addr)
		if err != nil {
			lastErr = err
			continue
		}
		_, err = conn.Brokers()
		_ = conn.Close()
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return fmt.Errorf("kafka ping: all brokers unreachable: %w", lastErr)
}

// headerCarrier adapts kafka headers to a propagation.TextMapCarrier.
type headerCarrier []kafka.Header

func (h headerCarrier) Get(key string) string {
	for _, hdr := range h {
		if hdr.Key == key {
			return string(hdr.Value)
		}
	}
	return ""
}

func (h headerCarrier) Set(string, string) {}

func (h headerCarrier) Keys() []string {
	keys := make([]string, len(h))
	for i, hdr := range h {
		keys[i] = hdr.Key
	}
	return keys
}
