// Package runner executes submissions in isolated containers.
//
// Each run gets a fresh workspace directory staged with the submission script
// and any fixtures, mounted read-write into a network-less container with
// memory and process-count caps. A global semaphore bounds concurrent
// containers across all submissions.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	osexec "os/exec"
	"path/filepath"
	"strings"
	"time"

	"code-judge/internal/logging"
	"code-judge/internal/metrics"
	"code-judge/pkg/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

var (
	ErrUnknownLanguage    = errors.New("unknown language")
	ErrRuntimeUnavailable = errors.New("no container runtime available")
	ErrWorkspaceSetup     = errors.New("workspace setup failed")
)

// ContainerWorkdir is the fixed mount point of the workspace inside the
// container; submissions run with it as the working directory.
const ContainerWorkdir = "/work"

// Config holds sandbox configuration.
type Config struct {
	TempRoot        string
	ImageTag        string // applied to language images that carry no tag
	MemoryLimit     int64  // bytes
	PidsLimit       int64
	DefaultTimeout  time.Duration
	MaxParallel     int64 // global container ceiling
	MaxOutputSize   int64 // per stream, bytes
	RuntimeBinary   string
	RuntimeFallback string
}

// DefaultConfig returns production defaults.
func DefaultConfig() *Config {
	return &Config{
		TempRoot:        os.TempDir(),
		ImageTag:        "latest",
		MemoryLimit:     256 * 1024 * 1024,
		PidsLimit:       128,
		DefaultTimeout:  30 * time.Second,
		MaxParallel:     4,
		MaxOutputSize:   1024 * 1024,
		RuntimeBinary:   "docker",
		RuntimeFallback: "podman",
	}
}

// LanguageResolver resolves language descriptors, normally the catalog store.
type LanguageResolver interface {
	GetLanguage(id string) (*models.Language, error)
}

// FixtureResolver maps a fixture reference to its physical source path and
// record, normally the fixture store.
type FixtureResolver interface {
	Resolve(ref string) (string, *models.Fixture, error)
}

// RunResult is the observable outcome of one container run. ExitCode is nil
// on engine failure; -1 signals a timeout kill.
type RunResult struct {
	Stdout    string        `json:"stdout"`
	Stderr    string        `json:"stderr"`
	ExitCode  *int          `json:"exit_code"`
	TimedOut  bool          `json:"timed_out"`
	Error     string        `json:"error,omitempty"`
	Workspace string        `json:"-"` // valid until Release
	Duration  time.Duration `json:"-"`
}

// Runner is safe for concurrent use; every call stages its own workspace.
type Runner struct {
	cfg       *Config
	languages LanguageResolver
	fixtures  FixtureResolver
	runtime   string // resolved binary, stable for process lifetime
	sem       *semaphore.Weighted
	baseDir   string
	log       *zap.Logger
}

// NewRunner probes the container runtime and prepares the workspace root.
func NewRunner(cfg *Config, languages LanguageResolver, fixtures FixtureResolver) (*Runner, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	runtime, err := probeRuntime(cfg.RuntimeBinary, cfg.RuntimeFallback)
	if err != nil {
		return nil, err
	}

	baseDir := filepath.Join(cfg.TempRoot, "judge-workspaces")
	if err := os.MkdirAll(baseDir, 0o777); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWorkspaceSetup, err)
	}

	return &Runner{
		cfg:       cfg,
		languages: languages,
		fixtures:  fixtures,
		runtime:   runtime,
		sem:       semaphore.NewWeighted(cfg.MaxParallel),
		baseDir:   baseDir,
		log:       logging.L().Named("runner"),
	}, nil
}

// probeRuntime locates the primary runtime binary, then the compatible
// alternative.
func probeRuntime(primary, fallback string) (string, error) {
	for _, name := range []string{primary, fallback} {
		if name == "" {
			continue
		}
		if path, err := osexec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", ErrRuntimeUnavailable
}

// Runtime returns the resolved runtime binary path.
func (r *Runner) Runtime() string {
	return r.runtime
}

// Run executes the already-staged workspace against one test invocation.
// Engine failures are reported through RunResult.Error, not the error return;
// the error return covers caller mistakes (unknown language).
func (r *Runner) Run(ctx context.Context, workspace, languageID string, args, stdinLines []string, timeout time.Duration) (*RunResult, error) {
	lang, err := r.languages.GetLanguage(languageID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLanguage, languageID)
	}
	if timeout <= 0 {
		timeout = r.cfg.DefaultTimeout
	}

	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer r.sem.Release(1)

	m := metrics.Get()
	m.RunsInFlight.Inc()
	defer m.RunsInFlight.Dec()

	result := &RunResult{Workspace: workspace}
	start := time.Now()

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	containerName := fmt.Sprintf("judge-run-%s", uuid.New().String()[:12])
	scriptFile := "script." + lang.Extension
	runArgs := r.buildRunArgs(containerName, workspace, r.imageFor(lang), lang.Interpreter, scriptFile, args, len(stdinLines) > 0)

	cmd := osexec.CommandContext(runCtx, r.runtime, runArgs...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &limitedWriter{w: &stdout, limit: r.cfg.MaxOutputSize}
	cmd.Stderr = &limitedWriter{w: &stderr, limit: r.cfg.MaxOutputSize}
	if len(stdinLines) > 0 {
		cmd.Stdin = strings.NewReader(strings.Join(stdinLines, "\n") + "\n")
	}

	runErr := cmd.Run()
	result.Duration = time.Since(start)
	result.Stdout = Normalize(stdout.String())
	result.Stderr = Normalize(stderr.String())

	switch {
	case runCtx.Err() == context.DeadlineExceeded:
		result.TimedOut = true
		code := -1
		result.ExitCode = &code
		go r.forceKill(containerName)
	case runErr == nil:
		code := 0
		result.ExitCode = &code
	default:
		var exitErr *osexec.ExitError
		switch {
		case errors.As(runErr, &exitErr) && runtimeFailure(exitErr.ExitCode(), result.Stderr):
			// The CLI exited before the script ran (daemon down, image
			// missing, OCI refusal). That is an engine failure, not a
			// verdict on the submission.
			result.Error = strings.TrimSpace(result.Stderr)
			if result.Error == "" {
				result.Error = runErr.Error()
			}
			r.log.Warn("container runtime failed",
				zap.String("container", containerName),
				zap.Int("code", exitErr.ExitCode()), zap.Error(runErr))
		case errors.As(runErr, &exitErr):
			code := exitErr.ExitCode()
			result.ExitCode = &code
		default:
			// Spawn failure: runtime vanished, bad mount, etc.
			result.Error = runErr.Error()
			r.log.Warn("container spawn failed",
				zap.String("container", containerName), zap.Error(runErr))
		}
	}

	m.RecordRun(languageID, outcomeOf(result), result.Duration)
	return result, nil
}

func outcomeOf(res *RunResult) string {
	switch {
	case res.TimedOut:
		return "timeout"
	case res.Error != "":
		return "error"
	default:
		return "completed"
	}
}

// Execute is the one-shot form: stage a workspace, copy fixtures, run once.
// Callers must Release(result.Workspace) when done inspecting produced files.
func (r *Runner) Execute(ctx context.Context, script, languageID string, args, stdinLines, fixtureRefs []string, timeout time.Duration) (*RunResult, error) {
	workspace, _, err := r.PrepareWorkspace(languageID, script)
	if err != nil {
		return nil, err
	}
	r.StageFixtures(workspace, fixtureRefs)
	result, err := r.Run(ctx, workspace, languageID, args, stdinLines, timeout)
	if err != nil {
		r.Release(workspace)
		return nil, err
	}
	return result, nil
}

func (r *Runner) imageFor(lang *models.Language) string {
	if strings.Contains(lang.Image, ":") {
		return lang.Image
	}
	return lang.Image + ":" + r.cfg.ImageTag
}

// buildRunArgs assembles the container invocation. The entrypoint is
// overridden to a minimal shell so arguments reach the interpreter verbatim
// via "$@".
func (r *Runner) buildRunArgs(name, workspace, image, interpreter, scriptFile string, args []string, hasStdin bool) []string {
	runArgs := []string{"run", "--rm", "--name", name}
	if hasStdin {
		runArgs = append(runArgs, "-i")
	}
	runArgs = append(runArgs,
		"--network=none",
		"--memory", fmt.Sprintf("%d", r.cfg.MemoryLimit),
		"--memory-swap", fmt.Sprintf("%d", r.cfg.MemoryLimit),
		"--pids-limit", fmt.Sprintf("%d", r.cfg.PidsLimit),
		"-v", fmt.Sprintf("%s:%s", workspace, ContainerWorkdir),
		"-w", ContainerWorkdir,
		"--entrypoint", "/bin/sh",
		image,
		"-c", fmt.Sprintf(`%s ./%s "$@"`, interpreter, scriptFile),
		"sh",
	)
	return append(runArgs, args...)
}

// forceKill stops and removes a container that outlived its deadline.
func (r *Runner) forceKill(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	osexec.CommandContext(ctx, r.runtime, "stop", "-t", "2", name).Run()
	osexec.Command(r.runtime, "rm", "-f", name).Run()
}

// runtimeMarkers are stderr fragments emitted by the docker/podman CLI itself
// rather than by the contained process.
var runtimeMarkers = []string{
	"Error response from daemon",
	"Unable to find image",
	"docker: ",
	"OCI runtime",
}

// runtimeFailure reports whether an exit code belongs to the container CLI
// rather than the script. Docker reserves 125 (CLI error), 126 (command not
// invocable) and 127 (command not found), but a script can legitimately exit
// with those too, so the stderr must also carry a runtime marker.
func runtimeFailure(code int, stderr string) bool {
	switch code {
	case 125, 126, 127:
	default:
		return false
	}
	for _, marker := range runtimeMarkers {
		if strings.Contains(stderr, marker) {
			return true
		}
	}
	return false
}

// Normalize collapses CRLF to LF. No trimming happens here.
func Normalize(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}

// limitedWriter caps how much output a run may produce.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int64
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	if int64(lw.w.Len()) >= lw.limit {
		// Pretend success so the child is not killed by a broken pipe.
		return len(p), nil
	}
	remaining := lw.limit - int64(lw.w.Len())
	if int64(len(p)) > remaining {
		lw.w.Write(p[:remaining])
		return len(p), nil
	}
	return lw.w.Write(p)
}
