package grader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"code-judge/internal/runner"
	"code-judge/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSandbox scripts the runner's behavior per call so the orchestration loop
// can be exercised without containers.
type fakeSandbox struct {
	prepErr    error
	runs       []fakeRun
	calls      int
	runArgs    [][]string
	cleanCalls []map[string]bool
	released   []string
}

type fakeRun struct {
	result *runner.RunResult
	err    error
}

func (f *fakeSandbox) PrepareWorkspace(languageID, script string) (string, string, error) {
	if f.prepErr != nil {
		return "", "", f.prepErr
	}
	return "/fake/ws", "script.sh", nil
}

func (f *fakeSandbox) StageFixtures(workspace string, refs []string) []string {
	staged := make([]string, 0, len(refs))
	for _, ref := range refs {
		if i := strings.IndexByte(ref, '/'); i > 0 {
			ref = ref[:i]
		}
		staged = append(staged, ref)
	}
	return staged
}

func (f *fakeSandbox) Run(ctx context.Context, workspace, languageID string, args, stdinLines []string, timeout time.Duration) (*runner.RunResult, error) {
	f.runArgs = append(f.runArgs, args)
	run := f.runs[f.calls]
	f.calls++
	return run.result, run.err
}

func (f *fakeSandbox) CleanWorkspace(workspace string, protected map[string]bool) error {
	snapshot := make(map[string]bool, len(protected))
	for k, v := range protected {
		snapshot[k] = v
	}
	f.cleanCalls = append(f.cleanCalls, snapshot)
	return nil
}

func (f *fakeSandbox) Release(workspace string) {
	f.released = append(f.released, workspace)
}

func okRun(stdout string) fakeRun {
	code := 0
	return fakeRun{result: &runner.RunResult{Stdout: stdout, ExitCode: &code}}
}

func TestGradeRunsCasesInOrdinalOrder(t *testing.T) {
	fake := &fakeSandbox{runs: []fakeRun{okRun("one"), okRun("two"), okRun("three")}}
	g := New(fake, time.Second)

	// Stored order is shuffled; OrderIndex decides execution order.
	ex := &models.Exercise{ID: "ordered", TestCases: []models.TestCase{
		{OrderIndex: 3, Args: []string{"c3"}, ExpectedStdout: "three"},
		{OrderIndex: 1, Args: []string{"c1"}, ExpectedStdout: "one"},
		{OrderIndex: 2, Args: []string{"c2"}, ExpectedStdout: "two"},
	}}

	results, err := g.Grade(context.Background(), ex, "echo", "shell")
	require.NoError(t, err)

	require.Len(t, results, len(ex.TestCases))
	for i, r := range results {
		assert.Equal(t, i+1, r.Index, "ordinals are dense and ascending")
		assert.True(t, r.Passed)
	}
	require.Equal(t, 3, fake.calls)
	assert.Equal(t, []string{"c1"}, fake.runArgs[0])
	assert.Equal(t, []string{"c2"}, fake.runArgs[1])
	assert.Equal(t, []string{"c3"}, fake.runArgs[2])

	assert.True(t, AllPassed(results))
	assert.Equal(t, []string{"/fake/ws"}, fake.released, "workspace released exactly once")
}

func TestGradeCleansBetweenCasesOnly(t *testing.T) {
	fake := &fakeSandbox{runs: []fakeRun{okRun(""), okRun(""), okRun("")}}
	g := New(fake, time.Second)

	ex := &models.Exercise{ID: "clean", TestCases: []models.TestCase{
		{OrderIndex: 1}, {OrderIndex: 2}, {OrderIndex: 3},
	}}

	_, err := g.Grade(context.Background(), ex, "true", "shell")
	require.NoError(t, err)

	// No cleanup before the first case, one between each pair after.
	require.Len(t, fake.cleanCalls, 2)
	assert.True(t, fake.cleanCalls[0]["script.sh"], "the submission survives cleanup")
}

func TestGradeContinuesAfterRunnerError(t *testing.T) {
	fake := &fakeSandbox{runs: []fakeRun{
		okRun("a"),
		{err: errors.New("runtime hiccup")},
		okRun("c"),
	}}
	g := New(fake, time.Second)

	ex := &models.Exercise{ID: "resilient", TestCases: []models.TestCase{
		{OrderIndex: 1, ExpectedStdout: "a"},
		{OrderIndex: 2, ExpectedStdout: "b"},
		{OrderIndex: 3, ExpectedStdout: "c"},
	}}

	results, err := g.Grade(context.Background(), ex, "echo", "shell")
	require.NoError(t, err)

	require.Len(t, results, 3, "a failed case never truncates the sequence")
	assert.True(t, results[0].Passed)
	assert.False(t, results[1].Passed)
	assert.Equal(t, "runtime hiccup", results[1].Error)
	assert.Nil(t, results[1].ActualExit)
	assert.True(t, results[2].Passed, "the case after the failure still runs")
	assert.Equal(t, 3, fake.calls)
	assert.False(t, AllPassed(results))
}

func TestGradeProtectsStagedFixtures(t *testing.T) {
	fake := &fakeSandbox{runs: []fakeRun{okRun(""), okRun("")}}
	g := New(fake, time.Second)

	ex := &models.Exercise{ID: "fixtures", TestCases: []models.TestCase{
		{OrderIndex: 1, Fixtures: []string{"data/in.txt"}},
		{OrderIndex: 2},
	}}

	_, err := g.Grade(context.Background(), ex, "true", "shell")
	require.NoError(t, err)

	require.Len(t, fake.cleanCalls, 1)
	assert.True(t, fake.cleanCalls[0]["data"], "staged fixture trees survive inter-case cleanup")
	assert.True(t, fake.cleanCalls[0]["script.sh"])
}

func TestGradePropagatesWorkspaceFailure(t *testing.T) {
	fake := &fakeSandbox{prepErr: runner.ErrWorkspaceSetup}
	g := New(fake, time.Second)

	ex := &models.Exercise{ID: "broken", TestCases: []models.TestCase{{OrderIndex: 1}}}
	_, err := g.Grade(context.Background(), ex, "true", "shell")
	assert.ErrorIs(t, err, runner.ErrWorkspaceSetup)
	assert.Empty(t, fake.released, "nothing to release when staging never succeeded")
}

type stubLanguages struct {
	lang *models.Language
}

func (s *stubLanguages) GetLanguage(id string) (*models.Language, error) {
	if s.lang != nil && s.lang.ID == id {
		return s.lang, nil
	}
	return nil, runner.ErrUnknownLanguage
}

type stubFixtures struct{}

func (stubFixtures) Resolve(ref string) (string, *models.Fixture, error) {
	return "", nil, runner.ErrWorkspaceSetup
}

func skipIfNoDocker(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available")
	}
}

func TestGradeEndToEnd(t *testing.T) {
	skipIfNoDocker(t)

	cfg := runner.DefaultConfig()
	cfg.TempRoot = t.TempDir()
	shell := &models.Language{ID: "shell", Extension: "sh", Interpreter: "sh", Image: "alpine"}
	run, err := runner.NewRunner(cfg, &stubLanguages{lang: shell}, stubFixtures{})
	require.NoError(t, err)

	g := New(run, 30*time.Second)
	ex := &models.Exercise{ID: "echo-args", TestCases: []models.TestCase{
		{OrderIndex: 1, Args: []string{"hello"}, ExpectedStdout: "hello"},
		{OrderIndex: 2, Args: []string{"world"}, ExpectedStdout: "world"},
		{OrderIndex: 3, Args: []string{"hello"}, ExpectedStdout: "mismatch"},
	}}

	results, err := g.Grade(context.Background(), ex, `echo "$1"`, "shell")
	require.NoError(t, err)

	require.Len(t, results, 3)
	assert.True(t, results[0].Passed)
	assert.True(t, results[1].Passed)
	assert.False(t, results[2].Passed)
	assert.False(t, AllPassed(results))
}

func TestCheckOutputFilesHashesAndOrder(t *testing.T) {
	ws := t.TempDir()
	content := []byte("line one\nline two\n")
	require.NoError(t, os.WriteFile(filepath.Join(ws, "b.txt"), content, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(ws, "a.txt"), []byte("other"), 0o644))

	sum := sha256.Sum256(content)
	expectedHash := hex.EncodeToString(sum[:])

	checks := CheckOutputFiles(ws, map[string]string{
		"b.txt":       expectedHash,
		"a.txt":       "doesnotmatter",
		"missing.txt": "x",
	})

	require.Len(t, checks, 3)
	// Filename order keeps verdicts deterministic.
	assert.Equal(t, "a.txt", checks[0].Name)
	assert.Equal(t, "b.txt", checks[1].Name)
	assert.Equal(t, "missing.txt", checks[2].Name)

	assert.True(t, checks[1].Exists)
	assert.Equal(t, expectedHash, checks[1].Actual)
	assert.Equal(t, int64(len(content)), checks[1].Size)

	assert.False(t, checks[2].Exists)
	assert.Empty(t, checks[2].Actual)
}

func TestCheckOutputFilesNestedPath(t *testing.T) {
	ws := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(ws, "out"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(ws, "out", "result.txt"), []byte("x"), 0o644))

	checks := CheckOutputFiles(ws, map[string]string{"out/result.txt": "irrelevant"})
	require.Len(t, checks, 1)
	assert.True(t, checks[0].Exists)
}

func TestCheckOutputFilesEmpty(t *testing.T) {
	assert.Nil(t, CheckOutputFiles(t.TempDir(), nil))
}
