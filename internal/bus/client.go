package bus

import (
	"context"
	"sync"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/schmitthub/forgeyard/internal/fault"
	"github.com/schmitthub/forgeyard/internal/logger"
)

// pendingReplies is the correlation-id → future map behind a client. The
// single reply consumer resolves futures; callers that give up drop theirs,
// after which the eventual reply is an orphan.
type pendingReplies struct {
	mu sync.Mutex
	m  map[string]chan []byte
}

func newPendingReplies() *pendingReplies {
	return &pendingReplies{m: map[string]chan []byte{}}
}

func (p *pendingReplies) add(id string) chan []byte {
	ch := make(chan []byte, 1)
	p.mu.Lock()
	p.m[id] = ch
	p.mu.Unlock()
	return ch
}

func (p *pendingReplies) drop(id string) {
	p.mu.Lock()
	delete(p.m, id)
	p.mu.Unlock()
}

// resolve delivers a reply body to its waiting future. Returns false for
// orphans: replies whose caller already timed out or was never ours.
func (p *pendingReplies) resolve(id string, body []byte) bool {
	p.mu.Lock()
	ch, ok := p.m[id]
	delete(p.m, id)
	p.mu.Unlock()
	if !ok {
		return false
	}
	ch <- body
	return true
}

// Client is the front-service side of the bus: it publishes requests and
// demultiplexes replies into per-call futures.
type Client struct {
	ch       *amqp.Channel
	instance string
	pending  *pendingReplies

	mu        sync.Mutex
	consuming map[string]bool
}

// NewClient opens a channel on the connection. instance names this
// publisher's reply queues; it must be unique per process.
func NewClient(conn *amqp.Connection, instance string) (*Client, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fault.Wrap(fault.Internal, err, "opening bus channel")
	}
	return &Client{
		ch:        ch,
		instance:  instance,
		pending:   newPendingReplies(),
		consuming: map[string]bool{},
	}, nil
}

// Close releases the channel.
func (c *Client) Close() error {
	return c.ch.Close()
}

// Call publishes a request and waits for its correlated reply. The caller's
// context bounds the wait; on expiry the pending future is dropped and the
// eventual reply discarded by the demuxer.
func (c *Client) Call(ctx context.Context, op string, header Header, body []byte) ([]byte, error) {
	if err := c.ensureReplyConsumer(op); err != nil {
		return nil, err
	}

	table, err := header.toTable()
	if err != nil {
		return nil, fault.Wrap(fault.BadInput, err, "encoding request header")
	}

	corrID := uuid.NewString()
	future := c.pending.add(corrID)

	err = c.ch.PublishWithContext(ctx, "", requestQueue(op), false, false, amqp.Publishing{
		ContentType:   "application/octet-stream",
		CorrelationId: corrID,
		ReplyTo:       replyQueue(op, c.instance),
		Headers:       table,
		Body:          body,
	})
	if err != nil {
		c.pending.drop(corrID)
		return nil, fault.Wrap(fault.Internal, err, "publishing %s request", op)
	}

	select {
	case reply := <-future:
		if err := DecodeError(reply); err != nil {
			return nil, err
		}
		return reply, nil
	case <-ctx.Done():
		c.pending.drop(corrID)
		return nil, fault.New(fault.TimeoutWaitingForRunner,
			"no reply for %s within deadline (correlation id %s)", op, corrID)
	}
}

// Cast publishes a request with no reply expected.
func (c *Client) Cast(ctx context.Context, op string, header Header) error {
	table, err := header.toTable()
	if err != nil {
		return fault.Wrap(fault.BadInput, err, "encoding request header")
	}

	err = c.ch.PublishWithContext(ctx, "", requestQueue(op), false, false, amqp.Publishing{
		ContentType:   "application/json",
		CorrelationId: uuid.NewString(),
		Headers:       table,
	})
	if err != nil {
		return fault.Wrap(fault.Internal, err, "publishing %s request", op)
	}
	return nil
}

// ensureReplyConsumer declares this instance's reply queue for an op and
// starts the demux loop on first use.
func (c *Client) ensureReplyConsumer(op string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.consuming[op] {
		return nil
	}

	queue := replyQueue(op, c.instance)
	if _, err := c.ch.QueueDeclare(queue, false, true, true, false, nil); err != nil {
		return fault.Wrap(fault.Internal, err, "declaring reply queue %s", queue)
	}

	deliveries, err := c.ch.Consume(queue, "", true, true, false, false, nil)
	if err != nil {
		return fault.Wrap(fault.Internal, err, "consuming reply queue %s", queue)
	}

	go func() {
		for d := range deliveries {
			if !c.pending.resolve(d.CorrelationId, d.Body) {
				logger.Warn().
					Str("queue", queue).
					Str("correlation_id", d.CorrelationId).
					Msg("dropping orphan reply")
			}
		}
	}()

	c.consuming[op] = true
	return nil
}
