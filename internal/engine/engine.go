// Package engine wraps the Docker SDK client with forgeyard's label-based
// resource scoping. Every image and container the runner creates carries the
// managed label plus its project label; list and prune operations filter on
// them, so the runner never touches resources it did not create.
package engine

import (
	"context"
	"errors"
	"strings"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
)

// Engine is the label-scoped Docker client used by the runner.
type Engine struct {
	cli *client.Client
}

// New connects to the Docker daemon. A non-empty socketPath overrides the
// environment-derived host. The connection is verified with a ping before
// the engine is returned.
func New(ctx context.Context, socketPath string) (*Engine, error) {
	opts := []client.Opt{
		client.FromEnv,
		client.WithAPIVersionNegotiation(),
	}
	if socketPath != "" {
		opts = append(opts, client.WithHost("unix://"+socketPath))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, ErrDaemonUnreachable(err)
	}

	engine := &Engine{cli: cli}
	if err := engine.Ping(ctx); err != nil {
		cli.Close()
		return nil, err
	}
	return engine, nil
}

// Ping verifies the daemon is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	if _, err := e.cli.Ping(ctx); err != nil {
		return ErrDaemonUnreachable(err)
	}
	return nil
}

// Close releases the client connection.
func (e *Engine) Close() error {
	return e.cli.Close()
}

// managedFilter returns a filter matching only forgeyard-managed resources.
func managedFilter(extra ...filters.KeyValuePair) filters.Args {
	args := []filters.KeyValuePair{
		filters.Arg("label", LabelManaged+"=true"),
	}
	return filters.NewArgs(append(args, extra...)...)
}

// IsNotFound reports whether an error chain indicates a missing resource.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if cerrdefs.IsNotFound(err) {
		return true
	}
	var dockerErr *DockerError
	if errors.As(err, &dockerErr) && dockerErr.Err != nil {
		err = dockerErr.Err
	}
	return strings.Contains(err.Error(), "not found") ||
		strings.Contains(err.Error(), "No such")
}
