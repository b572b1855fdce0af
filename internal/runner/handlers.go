package runner

import (
	"context"

	"github.com/schmitthub/forgeyard/internal/bus"
	"github.com/schmitthub/forgeyard/internal/fault"
	"github.com/schmitthub/forgeyard/internal/images"
	"github.com/schmitthub/forgeyard/internal/logger"
	"github.com/schmitthub/forgeyard/internal/store"
	"github.com/schmitthub/forgeyard/internal/submit"
)

// UploadReply is the bus reply for a successful template build.
type UploadReply struct {
	Status        string   `json:"status"`
	ImageID       string   `json:"imageId"`
	Tag           string   `json:"tag"`
	BaselineTests []string `json:"baselineTests"`
}

// SubmissionReply is the ContainerExecutionResponse published for a
// finished submission.
type SubmissionReply struct {
	store.ContainerExecution
	StartingPositionInQueue *int `json:"startingPositionInQueue,omitempty"`
}

// handleProjectUpload builds or replaces a project image. Builds are
// serialized across requests.
func (r *Runner) handleProjectUpload(ctx context.Context, req bus.Request) (any, error) {
	r.uploadMu.Lock()
	defer r.uploadMu.Unlock()

	proj, _, err := r.images.Build(ctx, req.Header.ProjectName, req.Body, images.ProjectConfig{
		ContainerTimeoutSec: req.Header.ContainerTimeoutSec,
		TestExecutionArgs:   req.Header.ExecutionArgs,
	})
	if err != nil {
		return nil, err
	}
	return UploadReply{
		Status:        "ok",
		ImageID:       proj.ImageID,
		Tag:           proj.Tag,
		BaselineTests: proj.BaselineTests,
	}, nil
}

// handleSubmissionExecute queues the submission and waits for its result.
func (r *Runner) handleSubmissionExecute(ctx context.Context, req bus.Request) (any, error) {
	resultCh, err := r.controller.Enqueue(ctx, submit.Request{
		Project:       req.Header.ProjectName,
		Archive:       req.Body,
		ExecutionArgs: req.Header.ExecutionArgs,
		TimeoutSec:    req.Header.ContainerTimeoutSec,
	})
	if err != nil {
		return nil, err
	}

	select {
	case res := <-resultCh:
		if res.Err != nil {
			return nil, res.Err
		}
		return SubmissionReply{
			ContainerExecution:      res.Execution,
			StartingPositionInQueue: res.StartingPositionInQueue,
		}, nil
	case <-ctx.Done():
		return nil, fault.Wrap(fault.Internal, ctx.Err(), "runner stopping before submission finished")
	}
}

// handleProjectRemoval prunes the image and project record. No reply is
// published for this op; a missing project is logged, not failed.
func (r *Runner) handleProjectRemoval(ctx context.Context, req bus.Request) (any, error) {
	if err := r.images.Remove(ctx, req.Header.ProjectName); err != nil {
		if fault.KindOf(err) == fault.ProjectNotFound {
			logger.Warn().Str("project", req.Header.ProjectName).Msg("removal of unknown project ignored")
			return nil, nil
		}
		return nil, err
	}
	return nil, nil
}
