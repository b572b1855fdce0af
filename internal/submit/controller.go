// Package submit runs user submissions against project images behind a
// FIFO queue with a global concurrency cap.
package submit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/schmitthub/forgeyard/internal/archive"
	"github.com/schmitthub/forgeyard/internal/engine"
	"github.com/schmitthub/forgeyard/internal/fault"
	"github.com/schmitthub/forgeyard/internal/logger"
	"github.com/schmitthub/forgeyard/internal/sandbox"
	"github.com/schmitthub/forgeyard/internal/store"
	"github.com/schmitthub/forgeyard/internal/template"
	"github.com/schmitthub/forgeyard/internal/testoutput"
)

const queueCapacity = 1024

// Request is one submission to execute.
type Request struct {
	Project       string
	Archive       []byte
	ExecutionArgs map[string]string

	// TimeoutSec overrides the project's container timeout when positive.
	TimeoutSec int
}

// Result carries the outcome of a queued submission.
type Result struct {
	Execution store.ContainerExecution

	// StartingPositionInQueue is set when the request was admitted while
	// the queue was over its soft threshold. Informational only.
	StartingPositionInQueue *int

	Err error
}

type imagesAPI interface {
	Lookup(ctx context.Context, project string) (store.Project, error)
}

type executorAPI interface {
	Run(ctx context.Context, spec sandbox.Spec) (sandbox.Results, error)
}

type storeAPI interface {
	InsertExecution(ctx context.Context, exec *store.ContainerExecution) error
}

type job struct {
	ctx      context.Context
	req      Request
	position *int
	result   chan Result
}

// Controller owns the submission queue and worker pool. At most `workers`
// containers attributable to submissions are live at any instant; the
// semaphore, not bus prefetch, enforces the cap.
type Controller struct {
	images         imagesAPI
	executor       executorAPI
	store          storeAPI
	scratchRoot    string
	defaultTimeout time.Duration
	workers        int

	sem   *semaphore.Weighted
	queue chan job
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// New returns a controller with a pool of `workers` submission workers.
func New(images imagesAPI, executor executorAPI, st storeAPI, scratchRoot string, defaultTimeout time.Duration, workers int) *Controller {
	if workers < 1 {
		workers = 1
	}
	return &Controller{
		images:         images,
		executor:       executor,
		store:          st,
		scratchRoot:    scratchRoot,
		defaultTimeout: defaultTimeout,
		workers:        workers,
		sem:            semaphore.NewWeighted(int64(workers)),
		queue:          make(chan job, queueCapacity),
	}
}

// Start launches the worker pool.
func (c *Controller) Start() {
	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go c.worker(i)
	}
	logger.Info().Int("workers", c.workers).Msg("submission controller started")
}

// Close stops intake and waits for in-flight submissions to finish.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.queue)
	c.mu.Unlock()

	c.wg.Wait()
	logger.Info().Msg("submission controller stopped")
}

// Enqueue admits a request in arrival order and returns a channel that
// yields exactly one result. The request's queue position is stamped when
// the queue depth is over the soft threshold at admission time.
func (c *Controller) Enqueue(ctx context.Context, req Request) (<-chan Result, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fault.New(fault.Internal, "submission controller is shut down")
	}

	j := job{ctx: ctx, req: req, result: make(chan Result, 1)}
	if depth := len(c.queue); depth >= c.workers {
		pos := depth + 1
		j.position = &pos
	}

	select {
	case c.queue <- j:
		c.mu.Unlock()
		return j.result, nil
	default:
		c.mu.Unlock()
		return nil, fault.New(fault.Internal, "submission queue is full")
	}
}

func (c *Controller) worker(id int) {
	defer c.wg.Done()
	for j := range c.queue {
		c.handle(id, j)
	}
}

// handle runs one submission with panic isolation. A panicking parser or
// executor poisons only its own result; its slot goes back to the pool
// either way.
func (c *Controller) handle(worker int, j job) {
	acquired := false
	defer func() {
		if r := recover(); r != nil {
			if acquired {
				c.sem.Release(1)
			}
			logger.Error().Int("worker", worker).Any("panic", r).Msg("submission worker recovered")
			j.result <- Result{
				StartingPositionInQueue: j.position,
				Err:                     fault.New(fault.Internal, "submission processing panicked: %v", r),
			}
		}
	}()

	if err := c.sem.Acquire(j.ctx, 1); err != nil {
		j.result <- Result{StartingPositionInQueue: j.position, Err: fault.Wrap(fault.Internal, err, "submission cancelled while queued")}
		return
	}
	acquired = true

	exec, err := c.process(j.ctx, j.req)

	// Return the slot before delivering the result so the caller's ack
	// never gates the next container start.
	c.sem.Release(1)
	acquired = false

	j.result <- Result{Execution: exec, StartingPositionInQueue: j.position, Err: err}
}

// process implements the per-submission pipeline: resolve image, extract
// and validate the archive, run the compare command, parse by outcome,
// persist.
func (c *Controller) process(ctx context.Context, req Request) (store.ContainerExecution, error) {
	var noExec store.ContainerExecution

	proj, err := c.images.Lookup(ctx, req.Project)
	if err != nil {
		return noExec, err
	}

	scratch, err := archive.NewSubmissionScratch(c.scratchRoot, req.Project)
	if err != nil {
		return noExec, fault.Wrap(fault.Internal, err, "creating scratch dir")
	}
	defer scratch.Cleanup()

	root, err := prepareSubmission(req.Archive, scratch.Dir)
	if err != nil {
		return noExec, err
	}

	args := mergeExecutionArgs(proj.DefaultExecArgs, req.ExecutionArgs)

	timeout := proj.TimeoutOrDefault(c.defaultTimeout)
	if req.TimeoutSec > 0 {
		timeout = time.Duration(req.TimeoutSec) * time.Second
	}

	startedAt := time.Now().UTC()
	res, err := c.executor.Run(ctx, sandbox.Spec{
		Name:    engine.SubmissionContainerName(req.Project),
		Image:   proj.Tag,
		Cmd:     template.CompareCommand(BuildExecutionArgs(args)),
		Project: req.Project,
		Purpose: sandbox.PurposeSubmission,
		SrcDir:  root,
		Timeout: timeout,
	})
	finishedAt := time.Now().UTC()
	if err != nil {
		return noExec, err
	}

	exec := sealExecution(req.Project, args, res, startedAt, finishedAt)
	if err := c.store.InsertExecution(ctx, &exec); err != nil {
		return noExec, err
	}

	logger.Info().
		Str("project", req.Project).
		Str("status", exec.StatusCode).
		Dur("elapsed", res.Elapsed).
		Msg("submission executed")
	return exec, nil
}

// sealExecution translates a sandbox outcome into the persisted record,
// parsing container output according to how the run ended.
func sealExecution(project string, args map[string]string, res sandbox.Results, startedAt, finishedAt time.Time) store.ContainerExecution {
	exec := store.ContainerExecution{
		Project:       project,
		Purpose:       store.PurposeSubmission,
		ExitCode:      res.ExitCode,
		ElapsedMS:     res.Elapsed.Milliseconds(),
		StartedAt:     startedAt,
		FinishedAt:    finishedAt,
		ExecutionArgs: args,
	}

	switch res.StatusCode {
	case sandbox.CodeSuccess:
		out := testoutput.Merge(testoutput.ParseForgeTest(res.Stdout), testoutput.ParseGasDiff(res.Stdout))
		exec.StatusCode = string(sandbox.CodeSuccess)
		exec.TestOutput = &out
	case sandbox.CodePurposelyStopped:
		out := testoutput.ParseGasSnapshot(res.Stdout)
		exec.StatusCode = string(sandbox.CodeSuccess)
		exec.TestOutput = &out
	case sandbox.CodeTimeout:
		exec.StatusCode = string(sandbox.CodeTimeout)
		exec.Stderr = res.Stderr
	default:
		// Failing tests land here: forge exits non-zero but its output is
		// still the authoritative result.
		out := testoutput.Merge(testoutput.ParseForgeTest(res.Stdout), testoutput.ParseGasDiff(res.Stdout))
		exec.StatusCode = string(sandbox.CodeApplicationError)
		exec.TestOutput = &out
		exec.Stderr = res.Stderr
	}
	return exec
}

// prepareSubmission extracts the archive and locates the source root,
// accepting both flat archives and a single wrapping directory.
func prepareSubmission(archiveBytes []byte, dest string) (string, error) {
	if err := archive.Extract(archiveBytes, dest); err != nil {
		return "", err
	}

	root := dest
	if err := archive.ValidateSubmission(root); err != nil {
		nested, nestedErr := archive.FindProjectRoot(dest)
		if nestedErr != nil {
			return "", err
		}
		if err := archive.ValidateSubmission(nested); err != nil {
			return "", err
		}
		root = nested
	}
	return root, nil
}
