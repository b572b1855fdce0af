package bus

import (
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schmitthub/forgeyard/internal/fault"
)

func TestQueueNames(t *testing.T) {
	assert.Equal(t, "project-upload.request", requestQueue(OpProjectUpload))
	assert.Equal(t, "submission-execute.reply.api-1", replyQueue(OpSubmissionExecute, "api-1"))
}

func TestHeaderRoundTrip(t *testing.T) {
	in := Header{
		ProjectName:         "erc20",
		ContainerTimeoutSec: 30,
		ExecutionArgs:       map[string]string{"matchTest": "testFoo"},
	}

	table, err := in.toTable()
	require.NoError(t, err)
	assert.Equal(t, "erc20", table["projectName"])
	assert.Equal(t, int32(30), table["containerTimeout"])

	out, err := headerFromTable(table)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestHeaderFromTableDefaults(t *testing.T) {
	out, err := headerFromTable(amqp.Table{"projectName": "erc20"})
	require.NoError(t, err)
	assert.Equal(t, "erc20", out.ProjectName)
	assert.Zero(t, out.ContainerTimeoutSec)
	assert.Nil(t, out.ExecutionArgs)
}

func TestHeaderFromTableBadArgs(t *testing.T) {
	_, err := headerFromTable(amqp.Table{
		"projectName":   "erc20",
		"executionArgs": "{not json",
	})
	require.Error(t, err)
}

func TestPendingRepliesResolve(t *testing.T) {
	p := newPendingReplies()
	future := p.add("corr-1")

	require.True(t, p.resolve("corr-1", []byte("reply")))
	assert.Equal(t, []byte("reply"), <-future)

	// A correlation id resolves at most once.
	assert.False(t, p.resolve("corr-1", []byte("again")))
}

func TestPendingRepliesOrphan(t *testing.T) {
	p := newPendingReplies()
	assert.False(t, p.resolve("never-registered", []byte("x")))
}

func TestPendingRepliesDrop(t *testing.T) {
	p := newPendingReplies()
	p.add("corr-1")
	p.drop("corr-1")

	assert.False(t, p.resolve("corr-1", []byte("late")), "a dropped future makes its reply an orphan")
}

func TestDecodeError(t *testing.T) {
	err := DecodeError([]byte(`{"status":"error","kind":"PROJECT_NOT_FOUND","message":"project \"ghost\" not found"}`))
	require.Error(t, err)
	assert.Equal(t, fault.ProjectNotFound, fault.KindOf(err))

	assert.NoError(t, DecodeError([]byte(`{"status":"ok"}`)))
	assert.NoError(t, DecodeError([]byte(`not json at all`)))
}
