package testoutput

import (
	"regexp"
	"strconv"
	"strings"
)

// gasDiffLineRe matches a snapshot-comparison line:
// "Suite:testName() (gas: 1234 (Δ -56))".
var gasDiffLineRe = regexp.MustCompile(`^([A-Za-z0-9_]+):([A-Za-z0-9_]+)\((.*)\) \(gas: (\d+) \(Δ ([+-]?\d+)\)\)$`)

// ParseGasDiff parses the tool's snapshot-diff output. Each matched line
// yields a record with both the gas figure and its signed delta; the overall
// block carries the summed delta. Tests with no change still match (Δ 0).
func ParseGasDiff(src string) TestOutput {
	var out TestOutput
	var total int64
	matched := false

	for _, line := range strings.Split(src, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		m := gasDiffLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		gas, err := strconv.ParseInt(m[4], 10, 64)
		if err != nil {
			continue
		}
		diff, err := strconv.ParseInt(m[5], 10, 64)
		if err != nil {
			continue
		}
		matched = true
		total += diff
		out.Tests = append(out.Tests, Test{
			Test:    m[1] + "." + m[2],
			Status:  StatusPass,
			GasUsed: int64Ptr(gas),
			GasDiff: int64Ptr(diff),
		})
	}

	if matched {
		out.Overall.GasDiffOverall = int64Ptr(total)
	}
	return out
}
