package runner

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"code-judge/pkg/models"

	"go.uber.org/zap"
)

// PrepareWorkspace allocates a fresh workspace and writes the submission into
// script.<ext>. The directory is world-writable on purpose: isolation is the
// container's job, and the container user must be able to produce files.
func (r *Runner) PrepareWorkspace(languageID, script string) (string, string, error) {
	lang, err := r.languages.GetLanguage(languageID)
	if err != nil {
		return "", "", fmt.Errorf("%w: %s", ErrUnknownLanguage, languageID)
	}

	workspace, scriptFile, err := r.stageWorkspace(lang, script)
	if err == nil {
		return workspace, scriptFile, nil
	}
	// One retry after best-effort cleanup; persistent failures surface as
	// WorkspaceSetup.
	if workspace != "" {
		os.RemoveAll(workspace)
	}
	workspace, scriptFile, err = r.stageWorkspace(lang, script)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrWorkspaceSetup, err)
	}
	return workspace, scriptFile, nil
}

func (r *Runner) stageWorkspace(lang *models.Language, script string) (string, string, error) {
	workspace, err := os.MkdirTemp(r.baseDir, "ws-")
	if err != nil {
		return "", "", err
	}
	if err := os.Chmod(workspace, 0o777); err != nil {
		return workspace, "", err
	}

	scriptFile := "script." + lang.Extension
	scriptPath := filepath.Join(workspace, scriptFile)
	content := Normalize(script)
	if err := os.WriteFile(scriptPath, []byte(content), 0o777); err != nil {
		return workspace, "", err
	}
	// WriteFile's mode is masked by the umask; chmod so the container user can
	// actually read and execute the script, same as the directory above.
	if err := os.Chmod(scriptPath, 0o777); err != nil {
		return workspace, "", err
	}
	return workspace, scriptFile, nil
}

// StageFixtures copies the referenced fixtures into the workspace and returns
// the top-level entry names that now exist there. Missing fixtures are logged
// and skipped; they are never fatal.
func (r *Runner) StageFixtures(workspace string, refs []string) []string {
	staged := make([]string, 0, len(refs))
	for _, ref := range refs {
		source, fx, err := r.fixtures.Resolve(ref)
		if err != nil {
			r.log.Warn("fixture missing, skipping",
				zap.String("fixture", ref), zap.Error(err))
			continue
		}

		dest := filepath.Join(workspace, filepath.FromSlash(ref))
		if err := os.MkdirAll(filepath.Dir(dest), 0o777); err != nil {
			r.log.Warn("fixture staging failed", zap.String("fixture", ref), zap.Error(err))
			continue
		}

		switch fx.Kind {
		case models.FixtureKindFolder:
			err = copyTree(source, dest)
		default:
			err = copyFile(source, dest, fixtureMode(fx, source))
		}
		if err != nil {
			r.log.Warn("fixture staging failed", zap.String("fixture", ref), zap.Error(err))
			continue
		}
		staged = append(staged, topLevelName(ref))
	}
	return staged
}

// CleanWorkspace deletes every workspace entry not named in protected. Used
// between test cases so residue from one case cannot leak into the next.
func (r *Runner) CleanWorkspace(workspace string, protected map[string]bool) error {
	entries, err := os.ReadDir(workspace)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if protected[entry.Name()] {
			continue
		}
		target := filepath.Join(workspace, entry.Name())
		if entry.IsDir() {
			err = os.RemoveAll(target)
		} else {
			err = os.Remove(target)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Release removes a workspace. The prefix guard keeps a corrupted path from
// deleting anything outside the runner's root.
func (r *Runner) Release(workspace string) {
	if workspace == "" || !strings.HasPrefix(workspace, r.baseDir) {
		return
	}
	os.RemoveAll(workspace)
}

// fixtureMode prefers the recorded permission string, falling back to the
// source file's mode.
func fixtureMode(fx *models.Fixture, source string) os.FileMode {
	if fx.Permissions != "" {
		if mode, err := parsePerms(fx.Permissions); err == nil {
			return mode
		}
	}
	if info, err := os.Stat(source); err == nil {
		return info.Mode().Perm()
	}
	return 0o644
}

func parsePerms(perms string) (os.FileMode, error) {
	if len(perms) != 9 {
		return 0, fmt.Errorf("bad permission string %q", perms)
	}
	var mode os.FileMode
	for i, c := range perms {
		if c != '-' {
			mode |= 1 << (8 - i)
		}
	}
	return mode, nil
}

func topLevelName(ref string) string {
	if i := strings.IndexByte(ref, '/'); i > 0 {
		return ref[:i]
	}
	return ref
}

func copyFile(source, dest string, mode os.FileMode) error {
	in, err := os.Open(source)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chmod(dest, mode)
}

// copyTree recursively copies a folder fixture preserving relative layout and
// file modes.
func copyTree(source, dest string) error {
	return filepath.Walk(source, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(source, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)
		if info.IsDir() {
			return os.MkdirAll(target, info.Mode().Perm()|0o700)
		}
		return copyFile(path, target, info.Mode().Perm())
	})
}
