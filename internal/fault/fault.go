// Package fault defines the closed error taxonomy shared by the API and
// runner services. Container-level outcomes (failing tests, timeouts) are
// reported inside result payloads, not as faults; only input, lookup, and
// infrastructure problems travel through this package.
package fault

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a fault. The set is closed: every user-visible error
// response carries exactly one of these values.
type Kind string

const (
	BadInput                Kind = "BAD_INPUT"
	NotFound                Kind = "NOT_FOUND"
	ImageBuild              Kind = "IMAGE_BUILD"
	BaselineDiscovery       Kind = "BASELINE_DISCOVERY"
	ProjectNotFound         Kind = "PROJECT_NOT_FOUND"
	DockerUnavailable       Kind = "DOCKER_UNAVAILABLE"
	TimeoutWaitingForRunner Kind = "TIMEOUT_WAITING_FOR_RUNNER"
	Internal                Kind = "INTERNAL"
)

// Error is a fault with a kind from the closed taxonomy.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a fault with the given kind and message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a fault wrapping an underlying error.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the kind from an error chain. Unclassified errors are
// INTERNAL.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Internal
}

// MessageOf extracts the fault message from an error chain, falling back to
// the error text.
func MessageOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Message
	}
	return err.Error()
}

// HTTPStatus maps a kind to the HTTP status code the front service returns.
func HTTPStatus(kind Kind) int {
	switch kind {
	case BadInput:
		return http.StatusBadRequest
	case NotFound, ProjectNotFound:
		return http.StatusNotFound
	case ImageBuild, BaselineDiscovery:
		return http.StatusUnprocessableEntity
	case DockerUnavailable:
		return http.StatusServiceUnavailable
	case TimeoutWaitingForRunner:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
