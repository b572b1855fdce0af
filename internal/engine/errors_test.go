package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/schmitthub/forgeyard/internal/fault"
)

func TestDaemonUnreachableKind(t *testing.T) {
	err := ErrDaemonUnreachable(errors.New("dial unix /var/run/docker.sock: connect: no such file"))

	assert.Equal(t, fault.DockerUnavailable, fault.KindOf(err),
		"a daemon outage must classify as retryable, not internal")
	assert.Contains(t, err.Error(), "cannot connect to Docker daemon")
}

func TestOperationErrorsClassifyInternal(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"build failure", ErrImageBuildFailed(errors.New("step 3 failed"))},
		{"create failure", ErrContainerCreateFailed(errors.New("conflict"))},
		{"wait failure", ErrContainerWaitFailed("erc20_submission_1", errors.New("gone"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, fault.Internal, fault.KindOf(tt.err))
		})
	}
}
