package engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidProjectName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"simple", "erc20", true},
		{"with dash and digits", "uniswap-v3", true},
		{"with underscore", "gas_golf", true},
		{"uppercase rejected", "ERC20", false},
		{"leading dash rejected", "-bad", false},
		{"empty rejected", "", false},
		{"spaces rejected", "my project", false},
		{"too long rejected", strings.Repeat("a", 65), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidProjectName(tt.input))
		})
	}
}

func TestImageTag(t *testing.T) {
	assert.Equal(t, "erc20:latest", ImageTag("erc20"))
}

func TestContainerNames(t *testing.T) {
	creation := CreationContainerName("erc20")
	assert.True(t, strings.HasPrefix(creation, "erc20_creation_"))

	submission := SubmissionContainerName("erc20")
	assert.True(t, strings.HasPrefix(submission, "erc20_submission_"))

	// Two names within the same call frame should still differ (random suffix).
	assert.NotEqual(t, submission, SubmissionContainerName("erc20"))
}

func TestProjectFromContainerName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		ok    bool
	}{
		{"creation name", "erc20_creation_1724400000000", "erc20", true},
		{"submission name", "erc20_submission_1724400000000_0042", "erc20", true},
		{"docker slash prefix", "/erc20_submission_1724400000000_0042", "erc20", true},
		{"unrelated name", "postgres", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ProjectFromContainerName(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestManagedLabels(t *testing.T) {
	labels := ManagedLabels("erc20", map[string]string{LabelPurpose: "SUBMISSION"})
	assert.Equal(t, "true", labels[LabelManaged])
	assert.Equal(t, "erc20", labels[LabelProject])
	assert.Equal(t, "SUBMISSION", labels[LabelPurpose])
}
