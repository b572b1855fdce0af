package engine

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/pkg/stdcopy"
)

// ContainerRunOpts configures a single sandbox container.
type ContainerRunOpts struct {
	Name    string
	Image   string
	Cmd     []string
	Project string
	Purpose string

	// SrcDir, when set, is bind-mounted read-write at SrcTarget.
	SrcDir    string
	SrcTarget string
}

// ContainerCreate creates a sandbox container with managed labels, no
// network, and the submission bind mount.
func (e *Engine) ContainerCreate(ctx context.Context, opts ContainerRunOpts) (string, error) {
	var mounts []mount.Mount
	if opts.SrcDir != "" {
		mounts = append(mounts, mount.Mount{
			Type:   mount.TypeBind,
			Source: opts.SrcDir,
			Target: opts.SrcTarget,
		})
	}

	resp, err := e.cli.ContainerCreate(ctx,
		&container.Config{
			Image:  opts.Image,
			Cmd:    opts.Cmd,
			Labels: ManagedLabels(opts.Project, map[string]string{LabelPurpose: opts.Purpose}),
		},
		&container.HostConfig{
			Mounts:      mounts,
			NetworkMode: "none",
		},
		nil, nil, opts.Name)
	if err != nil {
		return "", ErrContainerCreateFailed(err)
	}
	return resp.ID, nil
}

// ContainerStart starts a created container.
func (e *Engine) ContainerStart(ctx context.Context, id string) error {
	if err := e.cli.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return ErrContainerStartFailed(id, err)
	}
	return nil
}

// ContainerWait blocks until the container stops running and returns its
// exit code. Context cancellation aborts the wait with the context error.
func (e *Engine) ContainerWait(ctx context.Context, id string) (int, error) {
	waitCh, errCh := e.cli.ContainerWait(ctx, id, container.WaitConditionNotRunning)
	select {
	case resp := <-waitCh:
		if resp.Error != nil {
			return 0, ErrContainerWaitFailed(id, errors.New(resp.Error.Message))
		}
		return int(resp.StatusCode), nil
	case err := <-errCh:
		return 0, err
	}
}

// ContainerStop gracefully stops a container, falling back to the daemon's
// kill behavior after timeoutSec.
func (e *Engine) ContainerStop(ctx context.Context, id string, timeoutSec int) error {
	if err := e.cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &timeoutSec}); err != nil {
		return ErrContainerStopFailed(id, err)
	}
	return nil
}

// ContainerLogs returns the demuxed stdout and stderr of a container.
func (e *Engine) ContainerLogs(ctx context.Context, id string) (stdout, stderr string, err error) {
	reader, err := e.cli.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return "", "", ErrContainerLogsFailed(id, err)
	}
	defer reader.Close()

	var outBuf, errBuf bytes.Buffer
	if _, err := stdcopy.StdCopy(&outBuf, &errBuf, reader); err != nil && err != io.EOF {
		return "", "", ErrContainerLogsFailed(id, err)
	}
	return outBuf.String(), errBuf.String(), nil
}

// ContainerRemove force-removes a container. Removing an already-absent
// container is not an error.
func (e *Engine) ContainerRemove(ctx context.Context, id string) error {
	err := e.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true})
	if err != nil && !IsNotFound(err) {
		return ErrContainerRemoveFailed(id, err)
	}
	return nil
}

// RunningManagedCount returns the number of live forgeyard containers with
// the given purpose. Used to sample the concurrency-cap invariant.
func (e *Engine) RunningManagedCount(ctx context.Context, purpose string) (int, error) {
	list, err := e.cli.ContainerList(ctx, container.ListOptions{
		Filters: managedFilter(filters.Arg("label", LabelPurpose+"="+purpose)),
	})
	if err != nil {
		return 0, ErrContainerListFailed(err)
	}
	return len(list), nil
}
