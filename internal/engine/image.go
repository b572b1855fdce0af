package engine

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/image"

	"github.com/schmitthub/forgeyard/internal/logger"
)

// ImageBuildOpts configures an image build.
type ImageBuildOpts struct {
	Tag     string
	Project string
	NoCache bool
}

// buildEvent is one line of the Docker build JSON stream.
type buildEvent struct {
	Stream      string `json:"stream"`
	Error       string `json:"error"`
	ErrorDetail struct {
		Message string `json:"message"`
	} `json:"errorDetail"`
}

// ImageBuild builds an image from a tar build context and returns its id.
// The build stream is consumed fully; the first embedded error aborts the
// build. Managed labels are stamped on the image.
func (e *Engine) ImageBuild(ctx context.Context, buildContext io.Reader, opts ImageBuildOpts) (string, error) {
	resp, err := e.cli.ImageBuild(ctx, buildContext, types.ImageBuildOptions{
		Tags:        []string{opts.Tag},
		Dockerfile:  "Dockerfile",
		Remove:      true,
		ForceRemove: true,
		NoCache:     opts.NoCache,
		Labels:      ManagedLabels(opts.Project, nil),
	})
	if err != nil {
		return "", ErrImageBuildFailed(err)
	}
	defer resp.Body.Close()

	if err := processBuildOutput(resp.Body); err != nil {
		return "", ErrImageBuildFailed(err)
	}

	inspect, _, err := e.cli.ImageInspectWithRaw(ctx, opts.Tag)
	if err != nil {
		return "", ErrImageNotFound(opts.Tag, err)
	}
	return inspect.ID, nil
}

// processBuildOutput drains the Docker build stream, surfacing embedded
// errors. Step lines are logged at debug level.
func processBuildOutput(reader io.Reader) error {
	scanner := bufio.NewScanner(reader)
	var parseErrors int

	for scanner.Scan() {
		var event buildEvent

		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			parseErrors++
			logger.Debug().
				Err(err).
				Str("raw", string(scanner.Bytes())).
				Msg("failed to parse build output event")
			if parseErrors > 10 {
				return fmt.Errorf("build output stream appears corrupted: %d consecutive parse failures", parseErrors)
			}
			continue
		}
		parseErrors = 0

		if event.Error != "" {
			return fmt.Errorf("build error: %s", event.Error)
		}
		if event.ErrorDetail.Message != "" {
			return fmt.Errorf("build error: %s", event.ErrorDetail.Message)
		}

		if stream := strings.TrimSpace(event.Stream); stream != "" {
			logger.Debug().Msg(stream)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading build output: %w", err)
	}
	return nil
}

// ImageExists reports whether an image reference resolves locally.
func (e *Engine) ImageExists(ctx context.Context, ref string) (bool, error) {
	_, _, err := e.cli.ImageInspectWithRaw(ctx, ref)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, ErrImageNotFound(ref, err)
	}
	return true, nil
}

// ImageRemove deletes an image and prunes its untagged parents. Removing an
// already-absent image is not an error.
func (e *Engine) ImageRemove(ctx context.Context, ref string) error {
	_, err := e.cli.ImageRemove(ctx, ref, image.RemoveOptions{
		Force:         true,
		PruneChildren: true,
	})
	if err != nil && !IsNotFound(err) {
		return ErrImageRemoveFailed(ref, err)
	}
	return nil
}
