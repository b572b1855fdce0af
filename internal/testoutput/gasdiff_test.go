package testoutput

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGasDiff(t *testing.T) {
	src := `CounterTest:testIncrement() (gas: 28300 (Δ -34))
CounterTest:testSetNumber(uint256) (gas: 27750 (Δ +41))
TokenTest:testTransfer() (gas: 51234 (Δ 0))
`
	out := ParseGasDiff(src)

	require.Len(t, out.Tests, 3)
	assert.Equal(t, "CounterTest.testIncrement", out.Tests[0].Test)
	require.NotNil(t, out.Tests[0].GasDiff)
	assert.Equal(t, int64(-34), *out.Tests[0].GasDiff)
	require.NotNil(t, out.Tests[1].GasDiff)
	assert.Equal(t, int64(41), *out.Tests[1].GasDiff)

	require.NotNil(t, out.Overall.GasDiffOverall)
	assert.Equal(t, int64(7), *out.Overall.GasDiffOverall)
}

func TestParseGasDiffNoMatches(t *testing.T) {
	out := ParseGasDiff("plain snapshot line A:testFoo() (gas: 10)\n")
	assert.Empty(t, out.Tests)
	assert.Nil(t, out.Overall.GasDiffOverall)
}
