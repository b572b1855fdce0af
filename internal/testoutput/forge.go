package testoutput

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	// forgePassRe matches "[PASS] testFoo() (gas: 1234)". The argument list
	// must stay paren-free: a greedy .* would swallow the gas tail.
	forgePassRe = regexp.MustCompile(`^\[PASS\] ([A-Za-z0-9_]+)\(([^)]*)\)(?: \(gas: (\d+)\))?$`)

	// forgeFailRe matches "[FAIL. Reason: <text>] testFoo()" with an optional
	// gas tail.
	forgeFailRe = regexp.MustCompile(`^\[FAIL\. Reason: (.*)\] ([A-Za-z0-9_]+)\(([^)]*)\)(?: \(gas: (\d+)\))?$`)

	// forgeSummaryRe matches "Test result: ok. 3 passed; 1 failed; ...".
	forgeSummaryRe = regexp.MustCompile(`^Test result: .*?(\d+) passed; (\d+) failed`)

	// forgeSuiteRe matches the suite header "Running 3 tests for test/A.t.sol:A".
	forgeSuiteRe = regexp.MustCompile(`^Running \d+ tests? for \S+:([A-Za-z0-9_]+)$`)
)

// ParseForgeTest parses the tool's test-run output. Per-test lines become
// records; the trailing summary populates the overall block. Test names are
// qualified with the current suite when a suite header precedes them.
func ParseForgeTest(src string) TestOutput {
	var out TestOutput
	var suite string

	for _, line := range strings.Split(src, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if m := forgeSuiteRe.FindStringSubmatch(line); m != nil {
			suite = m[1]
			continue
		}

		if m := forgePassRe.FindStringSubmatch(line); m != nil {
			t := Test{Test: qualify(suite, m[1]), Status: StatusPass}
			if m[3] != "" {
				if gas, err := strconv.ParseInt(m[3], 10, 64); err == nil {
					t.GasUsed = int64Ptr(gas)
				}
			}
			out.Tests = append(out.Tests, t)
			continue
		}

		if m := forgeFailRe.FindStringSubmatch(line); m != nil {
			t := Test{Test: qualify(suite, m[2]), Status: StatusFail, Reason: m[1]}
			if m[4] != "" {
				if gas, err := strconv.ParseInt(m[4], 10, 64); err == nil {
					t.GasUsed = int64Ptr(gas)
				}
			}
			out.Tests = append(out.Tests, t)
			continue
		}

		if m := forgeSummaryRe.FindStringSubmatch(line); m != nil {
			passed, err1 := strconv.Atoi(m[1])
			failed, err2 := strconv.Atoi(m[2])
			if err1 != nil || err2 != nil {
				continue
			}
			out.Overall.NumberOfPassed = intPtr(passed)
			out.Overall.NumberOfFailed = intPtr(failed)
			out.Overall.NumberOfTests = intPtr(passed + failed)
			out.Overall.Passed = boolPtr(failed == 0)
		}
	}

	return out
}

func qualify(suite, test string) string {
	if suite == "" {
		return test
	}
	return suite + "." + test
}
