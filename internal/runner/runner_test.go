package runner

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"code-judge/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLanguages struct {
	lang *models.Language
}

func (s *stubLanguages) GetLanguage(id string) (*models.Language, error) {
	if s.lang != nil && s.lang.ID == id {
		return s.lang, nil
	}
	return nil, ErrUnknownLanguage
}

type stubFixtures struct{}

func (stubFixtures) Resolve(ref string) (string, *models.Fixture, error) {
	return "", nil, ErrWorkspaceSetup
}

func shellLang() *models.Language {
	return &models.Language{
		ID:          "shell",
		Extension:   "sh",
		Interpreter: "sh",
		Image:       "alpine",
	}
}

func skipIfNoDocker(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available")
	}
}

func newTestRunner(t *testing.T) *Runner {
	t.Helper()
	cfg := DefaultConfig()
	cfg.TempRoot = t.TempDir()
	cfg.DefaultTimeout = 30 * time.Second
	r, err := NewRunner(cfg, &stubLanguages{lang: shellLang()}, stubFixtures{})
	require.NoError(t, err)
	return r
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "a\nb\n", Normalize("a\r\nb\r\n"))
	assert.Equal(t, "plain", Normalize("plain"))
	assert.Equal(t, "", Normalize(""))
}

func TestProbeRuntimeFallback(t *testing.T) {
	_, err := probeRuntime("definitely-not-a-runtime", "also-not-one")
	assert.ErrorIs(t, err, ErrRuntimeUnavailable)

	// sh exists everywhere these tests run; the fallback position must work.
	path, err := probeRuntime("definitely-not-a-runtime", "sh")
	require.NoError(t, err)
	assert.Contains(t, path, "sh")
}

func TestBuildRunArgs(t *testing.T) {
	cfg := DefaultConfig()
	r := &Runner{cfg: cfg}

	args := r.buildRunArgs("judge-run-abc", "/tmp/ws", "alpine:latest", "sh", "script.sh",
		[]string{"first", "second arg"}, false)

	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "--network=none")
	assert.Contains(t, joined, "--pids-limit 128")
	assert.Contains(t, joined, "-v /tmp/ws:/work")
	assert.Contains(t, joined, "-w /work")
	assert.Contains(t, joined, "--entrypoint /bin/sh")
	assert.NotContains(t, joined, " -i ", "no stdin means no interactive flag")

	// Memory and swap pinned to the same value: no swap headroom.
	assert.Contains(t, joined, "--memory 268435456")
	assert.Contains(t, joined, "--memory-swap 268435456")

	// Arguments ride behind the "$@" placeholder untouched.
	assert.Equal(t, "second arg", args[len(args)-1])
	assert.Equal(t, "first", args[len(args)-2])
	assert.Equal(t, "sh", args[len(args)-3])

	withStdin := r.buildRunArgs("judge-run-abc", "/tmp/ws", "alpine:latest", "sh", "script.sh", nil, true)
	assert.Contains(t, withStdin, "-i")
}

func TestImageTagApplied(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ImageTag = "3.19"
	r := &Runner{cfg: cfg}

	assert.Equal(t, "alpine:3.19", r.imageFor(&models.Language{Image: "alpine"}))
	assert.Equal(t, "alpine:edge", r.imageFor(&models.Language{Image: "alpine:edge"}))
}

func TestLimitedWriterCapsOutput(t *testing.T) {
	var buf bytes.Buffer
	lw := &limitedWriter{w: &buf, limit: 10}

	n, err := lw.Write([]byte("0123456789abcdef"))
	require.NoError(t, err)
	assert.Equal(t, 16, n, "writer pretends success so the child keeps running")
	assert.Equal(t, "0123456789", buf.String())

	n, err = lw.Write([]byte("more"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "0123456789", buf.String())
}

func TestParsePerms(t *testing.T) {
	mode, err := parsePerms("rwxr-xr--")
	require.NoError(t, err)
	assert.Equal(t, uint32(0o754), uint32(mode))

	_, err = parsePerms("rwx")
	assert.Error(t, err)
}

func TestTopLevelName(t *testing.T) {
	assert.Equal(t, "data", topLevelName("data/sample.txt"))
	assert.Equal(t, "plain.txt", topLevelName("plain.txt"))
}

func TestPrepareWorkspaceScriptIsExecutable(t *testing.T) {
	// A restrictive umask must not leak into the workspace: the container
	// user is usually not root's uid and still has to run the script.
	oldMask := syscall.Umask(0o022)
	defer syscall.Umask(oldMask)

	r := &Runner{cfg: DefaultConfig(), languages: &stubLanguages{lang: shellLang()}, baseDir: t.TempDir()}
	ws, scriptFile, err := r.PrepareWorkspace("shell", "echo hi")
	require.NoError(t, err)
	defer r.Release(ws)

	info, err := os.Stat(filepath.Join(ws, scriptFile))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o777), info.Mode().Perm())

	wsInfo, err := os.Stat(ws)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o777), wsInfo.Mode().Perm())
}

func TestRuntimeFailureClassification(t *testing.T) {
	cases := []struct {
		name   string
		code   int
		stderr string
		want   bool
	}{
		{"daemon unreachable", 125, "docker: Error response from daemon: dial unix /var/run/docker.sock: connect: no such file or directory", true},
		{"image missing", 125, "Unable to find image 'nosuch:latest' locally", true},
		{"oci refusal", 126, "OCI runtime create failed: container_linux.go: starting container process", true},
		{"script command not found", 127, "./script.sh: line 1: nope: not found", false},
		{"script exits 125 silently", 125, "", false},
		{"daemon text with ordinary code", 1, "docker: Error response from daemon", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, runtimeFailure(tc.code, tc.stderr))
		})
	}
}

func TestPrepareWorkspaceWritesScript(t *testing.T) {
	skipIfNoDocker(t)
	r := newTestRunner(t)

	ws, scriptFile, err := r.PrepareWorkspace("shell", "echo hi\r\necho there\r\n")
	require.NoError(t, err)
	defer r.Release(ws)

	assert.Equal(t, "script.sh", scriptFile)
}

func TestPrepareWorkspaceUnknownLanguage(t *testing.T) {
	skipIfNoDocker(t)
	r := newTestRunner(t)

	_, _, err := r.PrepareWorkspace("cobol", "x")
	assert.ErrorIs(t, err, ErrUnknownLanguage)
}

func TestExecuteEchoesArgs(t *testing.T) {
	skipIfNoDocker(t)
	r := newTestRunner(t)

	res, err := r.Execute(context.Background(), `echo "$1"`, "shell",
		[]string{"hello world"}, nil, nil, 30*time.Second)
	require.NoError(t, err)
	defer r.Release(res.Workspace)

	require.NotNil(t, res.ExitCode)
	assert.Equal(t, 0, *res.ExitCode)
	assert.Equal(t, "hello world\n", res.Stdout)
	assert.False(t, res.TimedOut)
}

func TestExecuteReadsStdin(t *testing.T) {
	skipIfNoDocker(t)
	r := newTestRunner(t)

	res, err := r.Execute(context.Background(), "read a; read b; echo \"$a-$b\"", "shell",
		nil, []string{"one", "two"}, nil, 30*time.Second)
	require.NoError(t, err)
	defer r.Release(res.Workspace)

	require.NotNil(t, res.ExitCode)
	assert.Equal(t, 0, *res.ExitCode)
	assert.Equal(t, "one-two\n", res.Stdout)
}

func TestExecuteNonZeroExit(t *testing.T) {
	skipIfNoDocker(t)
	r := newTestRunner(t)

	res, err := r.Execute(context.Background(), "exit 3", "shell",
		nil, nil, nil, 30*time.Second)
	require.NoError(t, err)
	defer r.Release(res.Workspace)

	require.NotNil(t, res.ExitCode)
	assert.Equal(t, 3, *res.ExitCode)
}

func TestExecuteMissingImageIsEngineFailure(t *testing.T) {
	skipIfNoDocker(t)

	cfg := DefaultConfig()
	cfg.TempRoot = t.TempDir()
	lang := shellLang()
	lang.Image = "judge-no-such-image-a1b2c3"
	r, err := NewRunner(cfg, &stubLanguages{lang: lang}, stubFixtures{})
	require.NoError(t, err)

	res, err := r.Execute(context.Background(), "echo hi", "shell",
		nil, nil, nil, 60*time.Second)
	require.NoError(t, err)
	defer r.Release(res.Workspace)

	// The CLI's own exit code never masquerades as the script's verdict.
	assert.Nil(t, res.ExitCode)
	assert.NotEmpty(t, res.Error)
	assert.False(t, res.TimedOut)
}

func TestExecuteTimeout(t *testing.T) {
	skipIfNoDocker(t)
	r := newTestRunner(t)

	res, err := r.Execute(context.Background(), "sleep 60", "shell",
		nil, nil, nil, 2*time.Second)
	require.NoError(t, err)
	defer r.Release(res.Workspace)

	assert.True(t, res.TimedOut)
	require.NotNil(t, res.ExitCode)
	assert.Equal(t, -1, *res.ExitCode)
}

func TestCleanWorkspaceKeepsProtected(t *testing.T) {
	r := &Runner{baseDir: t.TempDir()}
	ws := t.TempDir()

	writeFile(t, ws, "script.sh", "echo hi")
	writeFile(t, ws, "leftover.txt", "junk")

	require.NoError(t, r.CleanWorkspace(ws, map[string]bool{"script.sh": true}))

	assert.FileExists(t, ws+"/script.sh")
	assert.NoFileExists(t, ws+"/leftover.txt")
}

func TestReleaseRefusesForeignPaths(t *testing.T) {
	base := t.TempDir()
	r := &Runner{baseDir: base}

	outside := t.TempDir()
	writeFile(t, outside, "precious.txt", "keep me")

	r.Release(outside)
	assert.FileExists(t, outside+"/precious.txt")
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}
