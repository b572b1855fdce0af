package engine

import (
	"fmt"

	"github.com/schmitthub/forgeyard/internal/fault"
)

// DockerError wraps an underlying Docker SDK error with the operation that
// failed and a human-readable message.
type DockerError struct {
	Op      string // Operation that failed (e.g., "build", "create", "wait")
	Err     error  // Underlying error
	Message string // Human-readable message
}

func (e *DockerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DockerError) Unwrap() error {
	return e.Err
}

// ErrDaemonUnreachable returns an error for when the Docker daemon cannot be
// reached. The chain carries the DOCKER_UNAVAILABLE kind so transport layers
// classify the outage as retryable instead of INTERNAL.
func ErrDaemonUnreachable(err error) *DockerError {
	return &DockerError{
		Op:      "connect",
		Err:     fault.Wrap(fault.DockerUnavailable, err, "cannot connect to Docker daemon"),
		Message: "cannot connect to Docker daemon",
	}
}

// ErrImageBuildFailed returns an error for a failed image build.
func ErrImageBuildFailed(err error) *DockerError {
	return &DockerError{
		Op:      "build",
		Err:     err,
		Message: "failed to build image",
	}
}

// ErrImageNotFound returns an error for a missing image.
func ErrImageNotFound(ref string, err error) *DockerError {
	return &DockerError{
		Op:      "inspect",
		Err:     err,
		Message: fmt.Sprintf("image %q not found", ref),
	}
}

// ErrImageRemoveFailed returns an error for a failed image removal.
func ErrImageRemoveFailed(ref string, err error) *DockerError {
	return &DockerError{
		Op:      "image_remove",
		Err:     err,
		Message: fmt.Sprintf("failed to remove image %q", ref),
	}
}

// ErrContainerCreateFailed returns an error for a failed container creation.
func ErrContainerCreateFailed(err error) *DockerError {
	return &DockerError{
		Op:      "create",
		Err:     err,
		Message: "failed to create container",
	}
}

// ErrContainerStartFailed returns an error for a failed container start.
func ErrContainerStartFailed(name string, err error) *DockerError {
	return &DockerError{
		Op:      "start",
		Err:     err,
		Message: fmt.Sprintf("failed to start container %q", name),
	}
}

// ErrContainerWaitFailed returns an error for a failed container wait.
func ErrContainerWaitFailed(name string, err error) *DockerError {
	return &DockerError{
		Op:      "wait",
		Err:     err,
		Message: fmt.Sprintf("failed to wait for container %q", name),
	}
}

// ErrContainerLogsFailed returns an error for a failed log fetch.
func ErrContainerLogsFailed(name string, err error) *DockerError {
	return &DockerError{
		Op:      "logs",
		Err:     err,
		Message: fmt.Sprintf("failed to read logs of container %q", name),
	}
}

// ErrContainerStopFailed returns an error for a failed container stop.
func ErrContainerStopFailed(name string, err error) *DockerError {
	return &DockerError{
		Op:      "stop",
		Err:     err,
		Message: fmt.Sprintf("failed to stop container %q", name),
	}
}

// ErrContainerRemoveFailed returns an error for a failed container removal.
func ErrContainerRemoveFailed(name string, err error) *DockerError {
	return &DockerError{
		Op:      "remove",
		Err:     err,
		Message: fmt.Sprintf("failed to remove container %q", name),
	}
}

// ErrContainerListFailed returns an error for a failed container listing.
func ErrContainerListFailed(err error) *DockerError {
	return &DockerError{
		Op:      "list",
		Err:     err,
		Message: "failed to list containers",
	}
}
