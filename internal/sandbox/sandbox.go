// Package sandbox runs a single forgeyard container from creation to
// teardown and translates its outcome into an execution status.
package sandbox

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/schmitthub/forgeyard/internal/engine"
	"github.com/schmitthub/forgeyard/internal/logger"
	"github.com/schmitthub/forgeyard/internal/template"
)

// Code classifies how a sandbox run ended.
type Code string

const (
	CodeSuccess          Code = "SUCCESS"
	CodePurposelyStopped Code = "PURPOSELY_STOPPED"
	CodeApplicationError Code = "APPLICATION_ERROR"
	CodeTimeout          Code = "TIMEOUT"
)

// Label purposes stamped on sandbox containers.
const (
	PurposeCreation   = "creation"
	PurposeSubmission = "submission"
)

const (
	// gracefulStopSec is how long a timed-out container gets to shut down
	// before the daemon kills it.
	gracefulStopSec = 10

	// maxStderrBytes caps the stderr carried into results and persistence.
	maxStderrBytes = 8 << 10

	// teardownTimeout bounds the cleanup calls that run after the parent
	// context may already be done.
	teardownTimeout = 30 * time.Second
)

// dockerAPI is the slice of the engine the executor needs. Satisfied by
// *engine.Engine.
type dockerAPI interface {
	ContainerCreate(ctx context.Context, opts engine.ContainerRunOpts) (string, error)
	ContainerStart(ctx context.Context, id string) error
	ContainerWait(ctx context.Context, id string) (int, error)
	ContainerStop(ctx context.Context, id string, timeoutSec int) error
	ContainerLogs(ctx context.Context, id string) (stdout, stderr string, err error)
	ContainerRemove(ctx context.Context, id string) error
}

// Spec describes one sandbox run.
type Spec struct {
	Name    string
	Image   string
	Cmd     []string
	Project string
	Purpose string

	// SrcDir, when set, is bind-mounted at the submission mount path and
	// deleted when the run finishes.
	SrcDir string

	Timeout time.Duration
}

// Results carries the observable outcome of a sandbox run.
type Results struct {
	StatusCode Code
	ExitCode   int
	Elapsed    time.Duration
	Stdout     string
	Stderr     string
}

// Executor runs sandbox containers against a Docker engine.
type Executor struct {
	docker dockerAPI
}

// New returns an executor backed by the given engine.
func New(docker dockerAPI) *Executor {
	return &Executor{docker: docker}
}

// Run executes the spec to completion. The container is force-removed and
// the source directory deleted on every exit path. A deadline overrun is
// not an error: the container is stopped and the run reported as a
// timeout.
func (x *Executor) Run(ctx context.Context, spec Spec) (Results, error) {
	if spec.Timeout <= 0 {
		spec.Timeout = time.Minute
	}

	defer func() {
		if spec.SrcDir == "" {
			return
		}
		if err := os.RemoveAll(spec.SrcDir); err != nil {
			logger.Warn().Err(err).Str("dir", spec.SrcDir).Msg("failed to remove scratch dir")
		}
	}()

	id, err := x.docker.ContainerCreate(ctx, engine.ContainerRunOpts{
		Name:      spec.Name,
		Image:     spec.Image,
		Cmd:       spec.Cmd,
		Project:   spec.Project,
		Purpose:   spec.Purpose,
		SrcDir:    spec.SrcDir,
		SrcTarget: template.SubmissionMountPath,
	})
	if err != nil {
		return Results{}, err
	}
	defer x.remove(id)

	start := time.Now()
	if err := x.docker.ContainerStart(ctx, id); err != nil {
		return Results{}, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, spec.Timeout)
	defer cancel()

	exitCode, waitErr := x.docker.ContainerWait(waitCtx, id)
	elapsed := time.Since(start)

	timedOut := waitErr != nil && errors.Is(waitCtx.Err(), context.DeadlineExceeded)
	if timedOut {
		x.stop(id)
	} else if waitErr != nil {
		return Results{}, waitErr
	}

	stdout, stderr := x.collectLogs(id)

	results := Results{
		ExitCode: exitCode,
		Elapsed:  elapsed,
		Stdout:   stdout,
		Stderr:   truncate(stderr, maxStderrBytes),
	}
	switch {
	case timedOut:
		results.StatusCode = CodeTimeout
		results.ExitCode = -1
	case exitCode == 0:
		results.StatusCode = CodeSuccess
	case exitCode == template.SnapshotOnlyExitCode:
		results.StatusCode = CodePurposelyStopped
	default:
		results.StatusCode = CodeApplicationError
	}

	logger.Debug().
		Str("container", spec.Name).
		Str("status", string(results.StatusCode)).
		Int("exit_code", results.ExitCode).
		Dur("elapsed", results.Elapsed).
		Msg("sandbox run finished")
	return results, nil
}

// collectLogs fetches container output on a fresh context so a cancelled
// run still surfaces whatever the container printed.
func (x *Executor) collectLogs(id string) (string, string) {
	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()

	stdout, stderr, err := x.docker.ContainerLogs(ctx, id)
	if err != nil {
		logger.Warn().Err(err).Str("container", id).Msg("failed to collect container logs")
		return "", ""
	}
	return stdout, stderr
}

func (x *Executor) stop(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()

	if err := x.docker.ContainerStop(ctx, id, gracefulStopSec); err != nil {
		logger.Warn().Err(err).Str("container", id).Msg("failed to stop timed-out container")
	}
}

func (x *Executor) remove(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()

	if err := x.docker.ContainerRemove(ctx, id); err != nil {
		logger.Warn().Err(err).Str("container", id).Msg("failed to remove container")
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
