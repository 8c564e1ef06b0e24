package grader

import (
	"strings"

	"code-judge/internal/runner"
	"code-judge/pkg/models"
)

// Compare decides the pass/fail verdict for one run against one test case.
// All conditions must hold: no timeout, no engine failure, exact exit code,
// trimmed-and-normalized stream equality, and every expected output file
// present with a matching hash.
func Compare(tc *models.TestCase, res *runner.RunResult, files []FileCheck) bool {
	if res.TimedOut || res.Error != "" || res.ExitCode == nil {
		return false
	}
	if *res.ExitCode != tc.ExpectedExit {
		return false
	}
	if canonical(res.Stdout) != canonical(tc.ExpectedStdout) {
		return false
	}
	// An absent expected stderr means the run must be quiet on stderr.
	if canonical(res.Stderr) != canonical(tc.ExpectedStderr) {
		return false
	}
	for _, f := range files {
		if !f.Exists || f.Error != "" || f.Actual != f.Expected {
			return false
		}
	}
	return true
}

// canonical normalizes line endings and strips surrounding whitespace, so a
// missing trailing newline or CRLF endings never fail a comparison.
func canonical(s string) string {
	return strings.TrimSpace(runner.Normalize(s))
}
