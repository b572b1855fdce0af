package bus

import (
	"context"
	"encoding/json"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/schmitthub/forgeyard/internal/fault"
	"github.com/schmitthub/forgeyard/internal/logger"
)

// Request is one delivered bus request.
type Request struct {
	Header Header
	Body   []byte
}

// HandlerFunc processes a request and returns the reply payload. A nil
// payload with nil error publishes no reply (fire-and-forget ops).
type HandlerFunc func(ctx context.Context, req Request) (any, error)

// Consumer is the runner side of the bus: it consumes request queues and
// publishes correlated replies.
type Consumer struct {
	ch       *amqp.Channel
	prefetch int

	mu       sync.Mutex
	handlers map[string]HandlerFunc
	wg       sync.WaitGroup
}

// NewConsumer opens a channel with prefetch matching the runner's
// concurrency cap. Prefetch bounds deliveries in flight, not containers;
// the submission semaphore enforces the real cap.
func NewConsumer(conn *amqp.Connection, prefetch int) (*Consumer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fault.Wrap(fault.Internal, err, "opening consumer channel")
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		ch.Close()
		return nil, fault.Wrap(fault.Internal, err, "setting prefetch")
	}
	return &Consumer{ch: ch, prefetch: prefetch, handlers: map[string]HandlerFunc{}}, nil
}

// Handle registers the handler for an operation. Must be called before
// Start.
func (c *Consumer) Handle(op string, fn HandlerFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[op] = fn
}

// Start declares each handled request queue and begins consuming. Each
// delivery is processed in its own goroutine; the ack follows the reply
// publish, so a crash mid-work requeues the request.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for op, fn := range c.handlers {
		queue := requestQueue(op)
		if _, err := c.ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			return fault.Wrap(fault.Internal, err, "declaring request queue %s", queue)
		}

		deliveries, err := c.ch.Consume(queue, "", false, false, false, false, nil)
		if err != nil {
			return fault.Wrap(fault.Internal, err, "consuming request queue %s", queue)
		}

		c.wg.Add(1)
		go c.consume(ctx, op, fn, deliveries)
	}
	return nil
}

// Wait blocks until all consume loops have drained.
func (c *Consumer) Wait() {
	c.wg.Wait()
}

// Close stops delivery; in-flight handlers finish and their acks fail
// harmlessly (the broker requeues).
func (c *Consumer) Close() error {
	return c.ch.Close()
}

func (c *Consumer) consume(ctx context.Context, op string, fn HandlerFunc, deliveries <-chan amqp.Delivery) {
	defer c.wg.Done()
	var inflight sync.WaitGroup

	for d := range deliveries {
		inflight.Add(1)
		go func(d amqp.Delivery) {
			defer inflight.Done()
			c.dispatch(ctx, op, fn, d)
		}(d)
	}
	inflight.Wait()
}

func (c *Consumer) dispatch(ctx context.Context, op string, fn HandlerFunc, d amqp.Delivery) {
	header, err := headerFromTable(d.Headers)
	if err != nil {
		logger.Warn().Err(err).Str("op", op).Msg("rejecting request with malformed header")
		_ = d.Reject(false)
		return
	}

	payload, err := fn(ctx, Request{Header: header, Body: d.Body})
	if err != nil {
		logger.Warn().Err(err).Str("op", op).Str("project", header.ProjectName).Msg("request handler failed")
		payload = ErrorReply{
			Status:  "error",
			Kind:    string(fault.KindOf(err)),
			Message: fault.MessageOf(err),
		}
	}

	if d.ReplyTo != "" && payload != nil {
		if err := c.reply(ctx, d, payload); err != nil {
			logger.Error().Err(err).Str("op", op).Msg("failed to publish reply")
			_ = d.Reject(true)
			return
		}
	}

	if err := d.Ack(false); err != nil {
		logger.Warn().Err(err).Str("op", op).Msg("failed to ack request")
	}
}

func (c *Consumer) reply(ctx context.Context, d amqp.Delivery, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.ch.PublishWithContext(ctx, "", d.ReplyTo, false, false, amqp.Publishing{
		ContentType:   "application/json",
		CorrelationId: d.CorrelationId,
		Body:          body,
	})
}
