package engine

import (
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"time"
)

// projectNameRe restricts project names to what both Docker tags and
// container names accept.
var projectNameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]*$`)

// ValidProjectName reports whether a project name is usable as an image tag
// component.
func ValidProjectName(name string) bool {
	return len(name) <= 64 && projectNameRe.MatchString(name)
}

// ImageTag returns the image reference for a project: "<project>:latest".
func ImageTag(project string) string {
	return project + ":latest"
}

// CreationContainerName names the baseline-discovery container for a
// template build: "<project>_creation_<epoch_ms>".
func CreationContainerName(project string) string {
	return fmt.Sprintf("%s_creation_%d", project, time.Now().UnixMilli())
}

// SubmissionContainerName names a submission container:
// "<project>_submission_<epoch_ms>_<rand>". The random suffix keeps names
// unique when submissions land within the same millisecond.
func SubmissionContainerName(project string) string {
	return fmt.Sprintf("%s_submission_%d_%04d", project, time.Now().UnixMilli(), rand.Intn(10000))
}

// ProjectFromContainerName extracts the project component from a container
// name produced by the two constructors above.
func ProjectFromContainerName(name string) (string, bool) {
	name = strings.TrimPrefix(name, "/")
	for _, sep := range []string{"_creation_", "_submission_"} {
		if idx := strings.Index(name, sep); idx > 0 {
			return name[:idx], true
		}
	}
	return "", false
}
