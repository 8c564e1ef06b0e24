// Package grader sequences an exercise's test cases against one submission
// and produces per-case verdicts.
package grader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"code-judge/internal/logging"
	"code-judge/internal/runner"
	"code-judge/pkg/models"

	"go.uber.org/zap"
)

// FileCheck is the verdict for one expected output file.
type FileCheck struct {
	Name     string `json:"name"`
	Expected string `json:"expected"`
	Actual   string `json:"actual,omitempty"`
	Exists   bool   `json:"exists"`
	Size     int64  `json:"size"`
	Error    string `json:"error,omitempty"`
}

// TestResult is the verdict for one test case.
type TestResult struct {
	Index          int         `json:"index"`
	Args           []string    `json:"args"`
	ExpectedStdout string      `json:"expected_stdout"`
	ActualStdout   string      `json:"actual_stdout"`
	ExpectedStderr string      `json:"expected_stderr"`
	ActualStderr   string      `json:"actual_stderr"`
	ExpectedExit   int         `json:"expected_exit"`
	ActualExit     *int        `json:"actual_exit"`
	Files          []FileCheck `json:"files,omitempty"`
	Error          string      `json:"error,omitempty"`
	TimedOut       bool        `json:"timed_out"`
	Passed         bool        `json:"passed"`
}

// Sandbox is the slice of the container runner the grader drives. The
// concrete implementation is runner.Runner.
type Sandbox interface {
	PrepareWorkspace(languageID, script string) (string, string, error)
	StageFixtures(workspace string, refs []string) []string
	Run(ctx context.Context, workspace, languageID string, args, stdinLines []string, timeout time.Duration) (*runner.RunResult, error)
	CleanWorkspace(workspace string, protected map[string]bool) error
	Release(workspace string)
}

// Grader runs submissions through the sandbox runner.
type Grader struct {
	sandbox Sandbox
	timeout time.Duration
	log     *zap.Logger
}

// New builds a grader with the per-test wall-clock timeout.
func New(sb Sandbox, perTestTimeout time.Duration) *Grader {
	return &Grader{
		sandbox: sb,
		timeout: perTestTimeout,
		log:     logging.L().Named("grader"),
	}
}

// Grade executes every test case of the exercise in ascending order against
// one shared workspace. Fixtures staged for earlier cases persist; everything
// else produced by a case is wiped before the next one runs. A runner failure
// on one case marks it failed and grading continues.
func (g *Grader) Grade(ctx context.Context, ex *models.Exercise, script, languageID string) ([]TestResult, error) {
	workspace, scriptFile, err := g.sandbox.PrepareWorkspace(languageID, script)
	if err != nil {
		return nil, err
	}
	defer g.sandbox.Release(workspace)

	cases := make([]models.TestCase, len(ex.TestCases))
	copy(cases, ex.TestCases)
	sort.SliceStable(cases, func(i, j int) bool { return cases[i].OrderIndex < cases[j].OrderIndex })

	protected := map[string]bool{scriptFile: true}
	results := make([]TestResult, 0, len(cases))

	for i, tc := range cases {
		if i > 0 {
			if err := g.sandbox.CleanWorkspace(workspace, protected); err != nil {
				g.log.Warn("workspace cleanup between cases failed",
					zap.String("exercise", ex.ID), zap.Int("case", i+1), zap.Error(err))
			}
		}
		for _, name := range g.sandbox.StageFixtures(workspace, tc.Fixtures) {
			protected[name] = true
		}

		tr := TestResult{
			Index:          i + 1,
			Args:           tc.Args,
			ExpectedStdout: tc.ExpectedStdout,
			ExpectedStderr: tc.ExpectedStderr,
			ExpectedExit:   tc.ExpectedExit,
		}

		res, runErr := g.sandbox.Run(ctx, workspace, languageID, tc.Args, tc.StdinLines, g.timeout)
		if runErr != nil {
			tr.Error = runErr.Error()
			results = append(results, tr)
			continue
		}

		tr.ActualStdout = res.Stdout
		tr.ActualStderr = res.Stderr
		tr.ActualExit = res.ExitCode
		tr.TimedOut = res.TimedOut
		tr.Error = res.Error
		tr.Files = CheckOutputFiles(workspace, tc.OutputFiles)
		tr.Passed = Compare(&tc, res, tr.Files)

		results = append(results, tr)
	}

	return results, nil
}

// AllPassed reports whether every case in a result sequence passed. An empty
// sequence never passes; grading requires at least one test case.
func AllPassed(results []TestResult) bool {
	if len(results) == 0 {
		return false
	}
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}

// CheckOutputFiles hashes each expected output file produced in the workspace.
// Results come back in filename order so verdicts are deterministic.
func CheckOutputFiles(workspace string, expected map[string]string) []FileCheck {
	if len(expected) == 0 {
		return nil
	}
	names := make([]string, 0, len(expected))
	for name := range expected {
		names = append(names, name)
	}
	sort.Strings(names)

	checks := make([]FileCheck, 0, len(names))
	for _, name := range names {
		check := FileCheck{Name: name, Expected: expected[name]}
		path := filepath.Join(workspace, filepath.FromSlash(name))

		info, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			checks = append(checks, check)
			continue
		}
		if err != nil {
			check.Error = err.Error()
			checks = append(checks, check)
			continue
		}
		check.Exists = true
		check.Size = info.Size()

		hash, err := hashFile(path)
		if err != nil {
			check.Error = err.Error()
		} else {
			check.Actual = hash
		}
		checks = append(checks, check)
	}
	return checks
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
