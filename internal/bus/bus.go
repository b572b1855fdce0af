// Package bus carries requests between the front service and the runner
// over AMQP request/reply queues with per-request correlation ids.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/schmitthub/forgeyard/internal/fault"
	"github.com/schmitthub/forgeyard/internal/logger"
)

// Logical operations. Each maps to one request queue.
const (
	OpProjectUpload     = "project-upload"
	OpSubmissionExecute = "submission-execute"
	OpProjectRemoval    = "project-removal"
)

const (
	dialAttempts    = 10
	dialBackoffBase = time.Second
	dialBackoffMax  = 30 * time.Second
)

func requestQueue(op string) string {
	return op + ".request"
}

func replyQueue(op, instance string) string {
	return op + ".reply." + instance
}

// Header is the typed metadata of a request, carried in the AMQP headers
// table. The archive travels as the raw message body.
type Header struct {
	ProjectName         string
	ExecutionArgs       map[string]string
	ContainerTimeoutSec int
}

// toTable encodes the header for the wire. Execution arguments ride as a
// JSON string because AMQP tables cannot carry string maps portably.
func (h Header) toTable() (amqp.Table, error) {
	table := amqp.Table{"projectName": h.ProjectName}
	if h.ContainerTimeoutSec > 0 {
		table["containerTimeout"] = int32(h.ContainerTimeoutSec)
	}
	if len(h.ExecutionArgs) > 0 {
		data, err := json.Marshal(h.ExecutionArgs)
		if err != nil {
			return nil, fmt.Errorf("encoding execution args: %w", err)
		}
		table["executionArgs"] = string(data)
	}
	return table, nil
}

func headerFromTable(table amqp.Table) (Header, error) {
	var h Header
	if v, ok := table["projectName"].(string); ok {
		h.ProjectName = v
	}
	switch v := table["containerTimeout"].(type) {
	case int32:
		h.ContainerTimeoutSec = int(v)
	case int64:
		h.ContainerTimeoutSec = int(v)
	}
	if raw, ok := table["executionArgs"].(string); ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &h.ExecutionArgs); err != nil {
			return Header{}, fmt.Errorf("decoding execution args: %w", err)
		}
	}
	return h, nil
}

// ErrorReply is the JSON payload published when a handler fails.
type ErrorReply struct {
	Status  string `json:"status"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// DecodeError inspects a reply body and, when it is an error reply,
// reconstructs the fault. Non-error replies return nil.
func DecodeError(body []byte) error {
	var reply ErrorReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return nil
	}
	if reply.Status != "error" {
		return nil
	}
	return fault.New(fault.Kind(reply.Kind), "%s", reply.Message)
}

// Dial connects to the broker with bounded exponential backoff. The runner
// and the broker start in parallel under compose, so the first attempts are
// expected to fail.
func Dial(ctx context.Context, url string) (*amqp.Connection, error) {
	backoff := dialBackoffBase
	var lastErr error

	for attempt := 1; attempt <= dialAttempts; attempt++ {
		conn, err := amqp.Dial(url)
		if err == nil {
			logger.Info().Int("attempt", attempt).Msg("connected to message broker")
			return conn, nil
		}
		lastErr = err
		logger.Warn().Err(err).Int("attempt", attempt).Dur("backoff", backoff).Msg("broker dial failed")

		select {
		case <-ctx.Done():
			return nil, fault.Wrap(fault.Internal, ctx.Err(), "broker dial cancelled")
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > dialBackoffMax {
			backoff = dialBackoffMax
		}
	}
	return nil, fault.Wrap(fault.Internal, lastErr, "broker unreachable after %d attempts", dialAttempts)
}
