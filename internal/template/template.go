// Package template carries the sandbox build files baked into the binary
// and overlays them onto extracted project templates.
package template

import (
	_ "embed"
	"os"
	"path/filepath"

	"github.com/schmitthub/forgeyard/internal/logger"
)

//go:embed templates/Dockerfile
var dockerfile []byte

//go:embed templates/entrypoint.sh
var entrypoint []byte

// SnapshotOnlyExitCode is the sentinel the entrypoint exits with after a
// clean snapshot-only run. Must match entrypoint.sh.
const SnapshotOnlyExitCode = 166

// SubmissionMountPath is where the executor bind-mounts the submission tree
// inside the container. Must match entrypoint.sh.
const SubmissionMountPath = "/submission"

// SnapshotCommand is the baseline-discovery command for a freshly built
// image.
func SnapshotCommand() []string {
	return []string{"snapshot"}
}

// CompareCommand is the submission-execution command, with whitelisted tool
// arguments appended.
func CompareCommand(extraArgs []string) []string {
	return append([]string{"compare"}, extraArgs...)
}

// Overlay writes the embedded sandbox files into an extracted template
// tree. Caller-supplied files of the same relative path win, except the
// Dockerfile, which is always the template's.
func Overlay(root string) error {
	files := []struct {
		name    string
		content []byte
		mode    os.FileMode
		force   bool
	}{
		{"Dockerfile", dockerfile, 0o644, true},
		{"entrypoint.sh", entrypoint, 0o755, false},
	}

	for _, f := range files {
		target := filepath.Join(root, f.name)
		if !f.force {
			if _, err := os.Stat(target); err == nil {
				logger.Debug().Str("file", f.name).Msg("template keeps caller-supplied file")
				continue
			}
		}
		if err := os.WriteFile(target, f.content, f.mode); err != nil {
			return err
		}
	}
	return nil
}
