package submit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildExecutionArgs(t *testing.T) {
	tests := []struct {
		name string
		args map[string]string
		want []string
	}{
		{
			name: "nil args",
			args: nil,
			want: nil,
		},
		{
			name: "single match",
			args: map[string]string{"matchTest": "testFoo"},
			want: []string{"--match-test", "testFoo"},
		},
		{
			name: "fixed ordering",
			args: map[string]string{
				"fuzzRuns":      "256",
				"matchContract": "ERC20Test",
				"matchTest":     "testTransfer",
			},
			want: []string{
				"--match-contract", "ERC20Test",
				"--match-test", "testTransfer",
				"--fuzz-runs", "256",
			},
		},
		{
			name: "unknown keys silently dropped",
			args: map[string]string{
				"badArg":    "x",
				"matchTest": "testFoo",
				"rpcUrl":    "http://evil",
			},
			want: []string{"--match-test", "testFoo"},
		},
		{
			name: "only unknown keys",
			args: map[string]string{"badArg": "x"},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildExecutionArgs(tt.args))
		})
	}
}

func TestMergeExecutionArgs(t *testing.T) {
	defaults := map[string]string{"fuzzRuns": "128", "matchPath": "test/*"}
	overrides := map[string]string{"fuzzRuns": "512"}

	merged := mergeExecutionArgs(defaults, overrides)
	assert.Equal(t, "512", merged["fuzzRuns"], "submission args override project defaults")
	assert.Equal(t, "test/*", merged["matchPath"])

	assert.Equal(t, overrides, mergeExecutionArgs(nil, overrides))
}
