package testoutput

import (
	"regexp"
	"strconv"
	"strings"
)

// snapshotLineRe matches one gas-snapshot line: "Suite:testName() (gas: 1234)".
var snapshotLineRe = regexp.MustCompile(`^([A-Za-z0-9_]+):([A-Za-z0-9_]+)\((.*)\) \(gas: (\d+)\)$`)

// ParseGasSnapshot parses the tool's gas-snapshot format. Every parsed line
// yields a PASS record named "Suite.testName" with its gas figure; malformed
// lines are skipped silently.
func ParseGasSnapshot(src string) TestOutput {
	var out TestOutput

	for _, line := range strings.Split(src, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		m := snapshotLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		gas, err := strconv.ParseInt(m[4], 10, 64)
		if err != nil {
			continue
		}
		out.Tests = append(out.Tests, Test{
			Test:    m[1] + "." + m[2],
			Status:  StatusPass,
			GasUsed: int64Ptr(gas),
		})
	}

	out.Overall.NumberOfTests = intPtr(len(out.Tests))
	return out
}
