package submit

import (
	"archive/zip"
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schmitthub/forgeyard/internal/fault"
	"github.com/schmitthub/forgeyard/internal/sandbox"
	"github.com/schmitthub/forgeyard/internal/store"
	"github.com/schmitthub/forgeyard/internal/testoutput"
)

const forgeFailureStdout = `Running 2 tests for test/ERC20.t.sol:ERC20Test
[PASS] testTransfer() (gas: 51234)
[FAIL. Reason: nope] testApprove() (gas: 21000)
Test result: FAILED. 1 passed; 1 failed; finished in 2.31ms
`

const forgePassStdout = `Running 1 tests for test/ERC20.t.sol:ERC20Test
[PASS] testTransfer() (gas: 51234)
Test result: ok. 1 passed; 0 failed; finished in 1.02ms
ERC20Test:testTransfer() (gas: 51234 (Δ -120))
`

func submissionZip(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("src/ERC20.sol")
	require.NoError(t, err)
	_, err = w.Write([]byte("contract ERC20 {}\n"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

type stubImages struct {
	projects map[string]store.Project
}

func (s *stubImages) Lookup(_ context.Context, project string) (store.Project, error) {
	p, ok := s.projects[project]
	if !ok {
		return store.Project{}, fault.New(fault.ProjectNotFound, "project %q not found", project)
	}
	return p, nil
}

type stubExecutor struct {
	mu    sync.Mutex
	res   sandbox.Results
	specs []sandbox.Spec

	// gate, when set, blocks each run until it yields; started signals
	// every run admission.
	gate    chan struct{}
	started chan struct{}

	panicMsg string
}

func (s *stubExecutor) Run(_ context.Context, spec sandbox.Spec) (sandbox.Results, error) {
	s.mu.Lock()
	s.specs = append(s.specs, spec)
	s.mu.Unlock()

	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	if s.started != nil {
		s.started <- struct{}{}
	}
	if s.gate != nil {
		<-s.gate
	}
	return s.res, nil
}

type stubStore struct {
	mu    sync.Mutex
	execs []store.ContainerExecution
}

func (s *stubStore) InsertExecution(_ context.Context, exec *store.ContainerExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.execs = append(s.execs, *exec)
	return nil
}

func newController(t *testing.T, images *stubImages, executor *stubExecutor, st *stubStore, workers int) *Controller {
	t.Helper()
	c := New(images, executor, st, t.TempDir(), time.Minute, workers)
	c.Start()
	t.Cleanup(c.Close)
	return c
}

func erc20Images() *stubImages {
	return &stubImages{projects: map[string]store.Project{
		"erc20": {Name: "erc20", Tag: "erc20:latest", DefaultExecArgs: map[string]string{"fuzzRuns": "128"}},
	}}
}

func awaitResult(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for submission result")
		return Result{}
	}
}

func TestSubmissionSuccess(t *testing.T) {
	executor := &stubExecutor{res: sandbox.Results{
		StatusCode: sandbox.CodeSuccess,
		Stdout:     forgePassStdout,
		Elapsed:    1200 * time.Millisecond,
	}}
	st := &stubStore{}
	c := newController(t, erc20Images(), executor, st, 2)

	ch, err := c.Enqueue(context.Background(), Request{
		Project:       "erc20",
		Archive:       submissionZip(t),
		ExecutionArgs: map[string]string{"matchTest": "testTransfer", "badArg": "x"},
	})
	require.NoError(t, err)
	res := awaitResult(t, ch)
	require.NoError(t, res.Err)

	exec := res.Execution
	assert.Equal(t, store.PurposeSubmission, exec.Purpose)
	assert.Equal(t, string(sandbox.CodeSuccess), exec.StatusCode)
	require.NotNil(t, exec.TestOutput)
	require.Len(t, exec.TestOutput.Tests, 1)

	parsed := exec.TestOutput.Tests[0]
	assert.Equal(t, "ERC20Test.testTransfer", parsed.Test)
	assert.Equal(t, testoutput.StatusPass, parsed.Status)
	require.NotNil(t, parsed.GasDiff, "gas diff output must be merged in")
	assert.Equal(t, int64(-120), *parsed.GasDiff)

	require.Len(t, executor.specs, 1)
	spec := executor.specs[0]
	assert.Equal(t, "erc20:latest", spec.Image)
	assert.Equal(t,
		[]string{"compare", "--match-test", "testTransfer", "--fuzz-runs", "128"},
		spec.Cmd, "project defaults merge in, unknown args drop out")

	require.Len(t, st.execs, 1, "execution must be persisted")
}

func TestSubmissionFailingTests(t *testing.T) {
	executor := &stubExecutor{res: sandbox.Results{
		StatusCode: sandbox.CodeApplicationError,
		ExitCode:   1,
		Stdout:     forgeFailureStdout,
		Stderr:     "exit status 1",
	}}
	c := newController(t, erc20Images(), executor, &stubStore{}, 2)

	ch, err := c.Enqueue(context.Background(), Request{Project: "erc20", Archive: submissionZip(t)})
	require.NoError(t, err)
	res := awaitResult(t, ch)
	require.NoError(t, res.Err, "failing tests are a result, not a fault")

	exec := res.Execution
	assert.Equal(t, string(sandbox.CodeApplicationError), exec.StatusCode)
	require.NotNil(t, exec.TestOutput)
	require.NotNil(t, exec.TestOutput.Overall.Passed)
	assert.False(t, *exec.TestOutput.Overall.Passed)

	byName := map[string]testoutput.Test{}
	for _, test := range exec.TestOutput.Tests {
		byName[test.Test] = test
	}
	assert.Equal(t, "nope", byName["ERC20Test.testApprove"].Reason)
}

func TestSubmissionTimeout(t *testing.T) {
	executor := &stubExecutor{res: sandbox.Results{
		StatusCode: sandbox.CodeTimeout,
		ExitCode:   -1,
		Stderr:     "still looping",
	}}
	c := newController(t, erc20Images(), executor, &stubStore{}, 2)

	ch, err := c.Enqueue(context.Background(), Request{Project: "erc20", Archive: submissionZip(t)})
	require.NoError(t, err)
	res := awaitResult(t, ch)
	require.NoError(t, res.Err)

	assert.Equal(t, string(sandbox.CodeTimeout), res.Execution.StatusCode)
	assert.Equal(t, "still looping", res.Execution.Stderr)
	assert.Nil(t, res.Execution.TestOutput)
}

func TestSubmissionUnknownProject(t *testing.T) {
	c := newController(t, erc20Images(), &stubExecutor{}, &stubStore{}, 2)

	ch, err := c.Enqueue(context.Background(), Request{Project: "ghost", Archive: submissionZip(t)})
	require.NoError(t, err)
	res := awaitResult(t, ch)

	require.Error(t, res.Err)
	assert.Equal(t, fault.ProjectNotFound, fault.KindOf(res.Err))
}

func TestSubmissionBadArchive(t *testing.T) {
	c := newController(t, erc20Images(), &stubExecutor{}, &stubStore{}, 2)

	ch, err := c.Enqueue(context.Background(), Request{Project: "erc20", Archive: []byte("not a zip")})
	require.NoError(t, err)
	res := awaitResult(t, ch)

	require.Error(t, res.Err)
	assert.Equal(t, fault.BadInput, fault.KindOf(res.Err))
}

func TestConcurrencyCap(t *testing.T) {
	executor := &stubExecutor{
		res:     sandbox.Results{StatusCode: sandbox.CodeTimeout},
		gate:    make(chan struct{}),
		started: make(chan struct{}, 3),
	}
	c := newController(t, erc20Images(), executor, &stubStore{}, 2)

	var chans []<-chan Result
	for i := 0; i < 3; i++ {
		ch, err := c.Enqueue(context.Background(), Request{Project: "erc20", Archive: submissionZip(t)})
		require.NoError(t, err)
		chans = append(chans, ch)
	}

	<-executor.started
	<-executor.started
	select {
	case <-executor.started:
		t.Fatal("third submission started before a slot was free")
	case <-time.After(100 * time.Millisecond):
	}

	// Free one slot; the third run must now be admitted.
	executor.gate <- struct{}{}
	select {
	case <-executor.started:
	case <-time.After(5 * time.Second):
		t.Fatal("third submission never started")
	}

	executor.gate <- struct{}{}
	executor.gate <- struct{}{}
	for _, ch := range chans {
		awaitResult(t, ch)
	}
}

func TestPanicIsolation(t *testing.T) {
	executor := &stubExecutor{panicMsg: "parser exploded"}
	c := newController(t, erc20Images(), executor, &stubStore{}, 1)

	// Panic as many times as the pool has slots; a leaked slot would wedge
	// the follow-up submission forever.
	for i := 0; i < 2; i++ {
		ch, err := c.Enqueue(context.Background(), Request{Project: "erc20", Archive: submissionZip(t)})
		require.NoError(t, err)
		res := awaitResult(t, ch)

		require.Error(t, res.Err)
		assert.Equal(t, fault.Internal, fault.KindOf(res.Err))
	}

	// The pool survives the panics with its slots intact.
	executor.panicMsg = ""
	executor.res = sandbox.Results{StatusCode: sandbox.CodeTimeout}
	ch, err := c.Enqueue(context.Background(), Request{Project: "erc20", Archive: submissionZip(t)})
	require.NoError(t, err)
	res := awaitResult(t, ch)
	require.NoError(t, res.Err)
}

func TestQueuePositionStamping(t *testing.T) {
	executor := &stubExecutor{
		res:     sandbox.Results{StatusCode: sandbox.CodeTimeout},
		gate:    make(chan struct{}),
		started: make(chan struct{}, 8),
	}
	c := newController(t, erc20Images(), executor, &stubStore{}, 1)

	var chans []<-chan Result
	for i := 0; i < 4; i++ {
		ch, err := c.Enqueue(context.Background(), Request{Project: "erc20", Archive: submissionZip(t)})
		require.NoError(t, err)
		chans = append(chans, ch)
	}

	for i := 0; i < 4; i++ {
		executor.gate <- struct{}{}
	}

	var stamped int
	for _, ch := range chans {
		if res := awaitResult(t, ch); res.StartingPositionInQueue != nil {
			stamped++
		}
	}
	assert.NotZero(t, stamped, "deep-queue admissions must carry a position")
}
