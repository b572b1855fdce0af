package archive

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"
)

// Scratch is a uniquely named working directory under the scratch root.
// Every extraction gets its own Scratch; Cleanup removes the whole tree and
// is safe to defer on every exit path.
type Scratch struct {
	Dir string
}

// NewCreationScratch allocates "<project>_creation_<epoch_ms>" under root.
func NewCreationScratch(root, project string) (*Scratch, error) {
	dir := filepath.Join(root, fmt.Sprintf("%s_creation_%d", project, time.Now().UnixMilli()))
	return newScratch(dir)
}

// NewSubmissionScratch allocates "<project>_submission_<epoch_ms>_<rand>"
// under root.
func NewSubmissionScratch(root, project string) (*Scratch, error) {
	dir := filepath.Join(root, fmt.Sprintf("%s_submission_%d_%04d", project, time.Now().UnixMilli(), rand.Intn(10000)))
	return newScratch(dir)
}

func newScratch(dir string) (*Scratch, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating scratch directory %s: %w", dir, err)
	}
	return &Scratch{Dir: dir}, nil
}

// Cleanup removes the scratch tree. Errors are returned for logging but the
// directory is best-effort gone either way.
func (s *Scratch) Cleanup() error {
	if s == nil || s.Dir == "" {
		return nil
	}
	return os.RemoveAll(s.Dir)
}
