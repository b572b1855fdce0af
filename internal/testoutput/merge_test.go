package testoutput

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeOverallPrefersPrimary(t *testing.T) {
	primary := TestOutput{Overall: Overall{
		NumberOfTests:  intPtr(2),
		NumberOfPassed: intPtr(2),
		NumberOfFailed: intPtr(0),
		Passed:         boolPtr(true),
	}}
	secondary := TestOutput{Overall: Overall{
		NumberOfTests:  intPtr(99),
		GasDiffOverall: int64Ptr(-120),
	}}

	merged := Merge(primary, secondary)

	assert.Equal(t, 2, *merged.Overall.NumberOfTests)
	assert.Equal(t, 2, *merged.Overall.NumberOfPassed)
	require.NotNil(t, merged.Overall.GasDiffOverall)
	assert.Equal(t, int64(-120), *merged.Overall.GasDiffOverall)
}

func TestMergeTestsByName(t *testing.T) {
	forge := TestOutput{Tests: []Test{
		{Test: "A.testFoo", Status: StatusPass, GasUsed: int64Ptr(100)},
		{Test: "A.testBar", Status: StatusFail, Reason: "nope"},
	}}
	diff := TestOutput{Tests: []Test{
		{Test: "A.testFoo", Status: StatusPass, GasUsed: int64Ptr(101), GasDiff: int64Ptr(-5)},
		{Test: "A.testBaz", Status: StatusPass, GasUsed: int64Ptr(7)},
	}}

	merged := Merge(forge, diff)

	require.Len(t, merged.Tests, 3)
	// Primary order first, unmatched secondary appended.
	assert.Equal(t, []string{"A.testFoo", "A.testBar", "A.testBaz"}, merged.TestNames())

	foo := merged.Tests[0]
	assert.Equal(t, int64(100), *foo.GasUsed) // primary wins
	require.NotNil(t, foo.GasDiff)
	assert.Equal(t, int64(-5), *foo.GasDiff) // filled from secondary

	bar := merged.Tests[1]
	assert.Equal(t, StatusFail, bar.Status)
	assert.Equal(t, "nope", bar.Reason)
	assert.Nil(t, bar.GasDiff)
}

func TestMergeEmptySides(t *testing.T) {
	out := TestOutput{Tests: []Test{{Test: "A.testFoo", Status: StatusPass}}}

	assert.Equal(t, out.TestNames(), Merge(out, TestOutput{}).TestNames())
	assert.Equal(t, out.TestNames(), Merge(TestOutput{}, out).TestNames())
	assert.Empty(t, Merge(TestOutput{}, TestOutput{}).Tests)
}
