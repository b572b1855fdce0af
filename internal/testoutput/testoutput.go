// Package testoutput parses the textual output of the sandbox tool into a
// structured report. The three parsers are total functions: malformed lines
// are skipped and unrecognized input yields an empty TestOutput, never an
// error.
package testoutput

// Status is the outcome of a single test.
type Status string

const (
	StatusPass Status = "PASS"
	StatusFail Status = "FAIL"
)

// Test is one per-test record. Optional numeric fields are pointers so that
// absent values are omitted from JSON rather than encoded as zero.
type Test struct {
	Test    string `json:"test" bson:"test"`
	Status  Status `json:"status" bson:"status"`
	GasUsed *int64 `json:"gasUsed,omitempty" bson:"gasUsed,omitempty"`
	GasDiff *int64 `json:"gasDiff,omitempty" bson:"gasDiff,omitempty"`
	Reason  string `json:"reason,omitempty" bson:"reason,omitempty"`
}

// Overall aggregates the run. Fields are present only when derivable from
// the source text.
type Overall struct {
	NumberOfTests  *int   `json:"numberOfTests,omitempty" bson:"numberOfTests,omitempty"`
	NumberOfPassed *int   `json:"numberOfPassed,omitempty" bson:"numberOfPassed,omitempty"`
	NumberOfFailed *int   `json:"numberOfFailed,omitempty" bson:"numberOfFailed,omitempty"`
	Passed         *bool  `json:"passed,omitempty" bson:"passed,omitempty"`
	GasDiffOverall *int64 `json:"gasDiffOverall,omitempty" bson:"gasDiffOverall,omitempty"`
}

// TestOutput is the structured result extracted from tool output. Test order
// matches the order in the source text.
type TestOutput struct {
	Overall Overall `json:"overall" bson:"overall"`
	Tests   []Test  `json:"tests" bson:"tests"`
}

// TestNames returns the names of all tests in source order.
func (o TestOutput) TestNames() []string {
	names := make([]string, 0, len(o.Tests))
	for _, t := range o.Tests {
		names = append(names, t.Test)
	}
	return names
}

// Merge combines two outputs. The overall block is a field-wise union where
// the primary side wins when both carry a value. Tests are keyed by name:
// primary fields win field-wise, and tests found only on the secondary side
// are appended in their source order.
func Merge(primary, secondary TestOutput) TestOutput {
	merged := TestOutput{
		Overall: mergeOverall(primary.Overall, secondary.Overall),
	}

	secondaryByName := make(map[string]Test, len(secondary.Tests))
	for _, t := range secondary.Tests {
		secondaryByName[t.Test] = t
	}

	seen := make(map[string]bool, len(primary.Tests))
	for _, t := range primary.Tests {
		seen[t.Test] = true
		if other, ok := secondaryByName[t.Test]; ok {
			t = mergeTest(t, other)
		}
		merged.Tests = append(merged.Tests, t)
	}
	for _, t := range secondary.Tests {
		if !seen[t.Test] {
			merged.Tests = append(merged.Tests, t)
		}
	}

	return merged
}

func mergeOverall(a, b Overall) Overall {
	out := a
	if out.NumberOfTests == nil {
		out.NumberOfTests = b.NumberOfTests
	}
	if out.NumberOfPassed == nil {
		out.NumberOfPassed = b.NumberOfPassed
	}
	if out.NumberOfFailed == nil {
		out.NumberOfFailed = b.NumberOfFailed
	}
	if out.Passed == nil {
		out.Passed = b.Passed
	}
	if out.GasDiffOverall == nil {
		out.GasDiffOverall = b.GasDiffOverall
	}
	return out
}

func mergeTest(a, b Test) Test {
	out := a
	if out.GasUsed == nil {
		out.GasUsed = b.GasUsed
	}
	if out.GasDiff == nil {
		out.GasDiff = b.GasDiff
	}
	if out.Reason == "" {
		out.Reason = b.Reason
	}
	return out
}

func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }
func boolPtr(v bool) *bool    { return &v }
