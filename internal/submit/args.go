package submit

import (
	"github.com/schmitthub/forgeyard/internal/logger"
)

// executionArgOrder fixes the order whitelisted arguments are appended in,
// so identical argument sets always produce identical commands.
var executionArgOrder = []string{
	"matchContract",
	"matchTest",
	"matchPath",
	"noMatchContract",
	"noMatchTest",
	"noMatchPath",
	"fuzzRuns",
	"fuzzSeed",
}

var executionArgFlags = map[string]string{
	"matchContract":   "--match-contract",
	"matchTest":       "--match-test",
	"matchPath":       "--match-path",
	"noMatchContract": "--no-match-contract",
	"noMatchTest":     "--no-match-test",
	"noMatchPath":     "--no-match-path",
	"fuzzRuns":        "--fuzz-runs",
	"fuzzSeed":        "--fuzz-seed",
}

// BuildExecutionArgs translates whitelisted camelCase argument keys into
// tool flags. Unknown keys are dropped, not rejected, so a newer front
// service cannot wedge an older runner.
func BuildExecutionArgs(args map[string]string) []string {
	if len(args) == 0 {
		return nil
	}

	var out []string
	for _, key := range executionArgOrder {
		value, ok := args[key]
		if !ok {
			continue
		}
		out = append(out, executionArgFlags[key], value)
	}

	for key := range args {
		if _, ok := executionArgFlags[key]; !ok {
			logger.Debug().Str("arg", key).Msg("dropping unknown execution argument")
		}
	}
	return out
}

// mergeExecutionArgs overlays per-submission arguments on the project's
// defaults.
func mergeExecutionArgs(defaults, overrides map[string]string) map[string]string {
	if len(defaults) == 0 {
		return overrides
	}
	merged := make(map[string]string, len(defaults)+len(overrides))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}
