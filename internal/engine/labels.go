package engine

// Label keys stamped on every resource the runner creates.
const (
	// LabelPrefix namespaces all forgeyard labels.
	LabelPrefix = "dev.forgeyard"

	// LabelManaged marks a resource as created by forgeyard.
	LabelManaged = LabelPrefix + ".managed"

	// LabelProject carries the owning project name.
	LabelProject = LabelPrefix + ".project"

	// LabelPurpose carries the container purpose (creation or submission).
	LabelPurpose = LabelPrefix + ".purpose"
)

// ManagedLabels returns the base label set for a project-owned resource.
func ManagedLabels(project string, extra map[string]string) map[string]string {
	labels := map[string]string{
		LabelManaged: "true",
		LabelProject: project,
	}
	for k, v := range extra {
		labels[k] = v
	}
	return labels
}
