// Package queue consumes grading requests from RabbitMQ and maps pipeline
// outcomes onto the broker's ack protocol.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/lagonzalez1/micro-grader/internal/config"
	"github.com/lagonzalez1/micro-grader/internal/platform/logger"
	"github.com/lagonzalez1/micro-grader/internal/task"
)

// Handler processes one grading request and decides its queue disposition.
type Handler interface {
	Process(ctx context.Context, req task.GradeRequest, modelID string) task.Outcome
}

// Consumer owns the AMQP connection and the delivery loop. Deliveries are
// consumed with manual acknowledgement; every delivery is resolved exactly
// once as ack, requeue, or drop.
type Consumer struct {
	cfg     config.QueueConfig
	modelID string
	handler Handler
	logger  *slog.Logger

	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewConsumer creates a Consumer bound to the configured exchange and queue.
func NewConsumer(cfg config.QueueConfig, modelID string, handler Handler, log *slog.Logger) (*Consumer, error) {
	if handler == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Consumer{
		cfg:     cfg,
		modelID: modelID,
		handler: handler,
		logger:  log.With(slog.String("component", "queue_consumer")),
	}, nil
}

// Connect dials the broker and declares the exchange, queue, and binding.
// Declarations are idempotent on matching parameters.
func (c *Consumer) Connect() error {
	conn, err := amqp.Dial(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to set prefetch: %w", err)
	}

	if err := ch.ExchangeDeclare(c.cfg.Exchange, "direct", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to declare exchange %q: %w", c.cfg.Exchange, err)
	}

	if _, err := ch.QueueDeclare(c.cfg.Queue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to declare queue %q: %w", c.cfg.Queue, err)
	}

	if err := ch.QueueBind(c.cfg.Queue, c.cfg.RoutingKey, c.cfg.Exchange, false, nil); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to bind queue %q: %w", c.cfg.Queue, err)
	}

	c.conn = conn
	c.channel = ch
	return nil
}

// Run consumes deliveries until the context is canceled or the broker closes
// the delivery stream. It blocks the calling goroutine.
func (c *Consumer) Run(ctx context.Context) error {
	if c.channel == nil {
		return fmt.Errorf("consumer is not connected")
	}

	deliveries, err := c.channel.Consume(c.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info("consuming grading requests",
		slog.String("queue", c.cfg.Queue),
		slog.String("exchange", c.cfg.Exchange),
		slog.Int("prefetch", c.cfg.Prefetch))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery stream closed by broker")
			}
			c.handle(ctx, d)
		}
	}
}

// handle resolves exactly one delivery. A payload that cannot be decoded is
// poison and dropped without requeue; everything else follows the pipeline's
// outcome.
func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	log := c.logger.With(slog.String("delivery_id", uuid.NewString()))

	var req task.GradeRequest
	if err := json.Unmarshal(d.Body, &req); err != nil {
		log.Error("dropping malformed grading request", slog.String("error", err.Error()))
		c.resolve(log, d, task.OutcomeDrop)
		return
	}
	if req.SessionToken == "" {
		log.Error("dropping grading request without session token")
		c.resolve(log, d, task.OutcomeDrop)
		return
	}

	ctx = logger.WithContext(ctx, log)
	outcome := c.process(ctx, log, req)
	c.resolve(log.With(slog.String("session_token", req.SessionToken)), d, outcome)
}

// process invokes the pipeline and converts a panic into a retry outcome, so
// a panicking handler never kills the consumer or leaves a delivery
// unsettled.
func (c *Consumer) process(ctx context.Context, log *slog.Logger, req task.GradeRequest) (outcome task.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic while processing grading request",
				slog.String("session_token", req.SessionToken),
				slog.Any("panic", r))
			outcome = task.OutcomeRetry
		}
	}()
	return c.handler.Process(ctx, req, c.modelID)
}

func (c *Consumer) resolve(log *slog.Logger, d amqp.Delivery, outcome task.Outcome) {
	var err error
	switch outcome {
	case task.OutcomeAck:
		err = d.Ack(false)
	case task.OutcomeRetry:
		err = d.Nack(false, true)
	default:
		err = d.Nack(false, false)
	}
	if err != nil {
		log.Error("failed to settle delivery",
			slog.String("outcome", outcome.String()),
			slog.String("error", err.Error()))
		return
	}
	log.Info("delivery settled", slog.String("outcome", outcome.String()))
}

// Close tears down the channel and connection.
func (c *Consumer) Close() error {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
