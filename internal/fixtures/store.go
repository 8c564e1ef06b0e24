// Package fixtures implements the asset library staged into sandboxes before
// execution. Assets are keyed by relative path; on disk they mirror the
// logical path under a configured root.
package fixtures

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"code-judge/internal/logging"
	"code-judge/pkg/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotFound           = errors.New("fixture not found")
	ErrInvalidPath        = errors.New("invalid fixture path")
	ErrInvalidPermissions = errors.New("invalid permissions string")
)

// permPattern is the nine-character rwx layout, e.g. "rwxr-xr-x".
var permPattern = regexp.MustCompile(`^[r-][w-][x-][r-][w-][x-][r-][w-][x-]$`)

// DefaultPermissions is applied when a caller omits the permission string.
const DefaultPermissions = "rw-r--r--"

// Store is the fixture library. Writers are serialized by mu; readers observe
// either the old or the new content because files are written to a temp path
// and renamed into place.
type Store struct {
	db   *gorm.DB
	root string
	mu   sync.Mutex
	log  *zap.Logger
}

// NewStore opens (and creates if needed) the fixture root.
func NewStore(db *gorm.DB, root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create fixtures root: %w", err)
	}
	return &Store{db: db, root: root, log: logging.L().Named("fixtures")}, nil
}

// ValidatePath rejects traversal and platform-foreign separators.
func ValidatePath(path string) error {
	if path == "" || strings.HasPrefix(path, "/") {
		return ErrInvalidPath
	}
	if strings.Contains(path, "..") || strings.Contains(path, `\`) {
		return ErrInvalidPath
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == "" {
			return ErrInvalidPath
		}
	}
	return nil
}

// ParsePermissions translates a nine-character rwx string to a file mode.
func ParsePermissions(perms string) (os.FileMode, error) {
	if !permPattern.MatchString(perms) {
		return 0, ErrInvalidPermissions
	}
	var mode os.FileMode
	for i, c := range perms {
		if c != '-' {
			mode |= 1 << (8 - i)
		}
	}
	return mode, nil
}

// FormatPermissions renders a file mode back into the nine-character layout.
func FormatPermissions(mode os.FileMode) string {
	const bits = "rwxrwxrwx"
	out := make([]byte, 9)
	for i := 0; i < 9; i++ {
		if mode&(1<<(8-i)) != 0 {
			out[i] = bits[i]
		} else {
			out[i] = '-'
		}
	}
	return string(out)
}

// DiskPath maps a logical fixture path to its physical location.
func (s *Store) DiskPath(path string) string {
	return filepath.Join(s.root, filepath.FromSlash(path))
}

// List returns every fixture record ordered by path.
func (s *Store) List() ([]models.Fixture, error) {
	var out []models.Fixture
	if err := s.db.Order("path").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns a fixture record plus, for files, its content.
func (s *Store) Get(path string) (*models.Fixture, []byte, error) {
	if err := ValidatePath(path); err != nil {
		return nil, nil, err
	}
	var fx models.Fixture
	if err := s.db.First(&fx, "path = ?", path).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}
	if fx.Kind == models.FixtureKindFolder {
		return &fx, nil, nil
	}
	content, err := os.ReadFile(s.DiskPath(path))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read fixture content: %w", err)
	}
	return &fx, content, nil
}

// Put creates or replaces a fixture. File content is written to a temp file in
// the target directory and renamed into place so concurrent readers never see
// a partial file.
func (s *Store) Put(path, kind string, content []byte, permissions string) (*models.Fixture, error) {
	if err := ValidatePath(path); err != nil {
		return nil, err
	}
	if permissions == "" {
		permissions = DefaultPermissions
	}
	mode, err := ParsePermissions(permissions)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	disk := s.DiskPath(path)
	switch kind {
	case models.FixtureKindFolder:
		if err := os.MkdirAll(disk, mode|0o700); err != nil {
			return nil, fmt.Errorf("failed to create fixture folder: %w", err)
		}
	case models.FixtureKindFile:
		if err := os.MkdirAll(filepath.Dir(disk), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create fixture parent: %w", err)
		}
		tmp, err := os.CreateTemp(filepath.Dir(disk), ".fixture-*")
		if err != nil {
			return nil, fmt.Errorf("failed to stage fixture: %w", err)
		}
		tmpName := tmp.Name()
		if _, err := tmp.Write(content); err != nil {
			tmp.Close()
			os.Remove(tmpName)
			return nil, fmt.Errorf("failed to write fixture: %w", err)
		}
		if err := tmp.Close(); err != nil {
			os.Remove(tmpName)
			return nil, fmt.Errorf("failed to write fixture: %w", err)
		}
		if err := os.Chmod(tmpName, mode); err != nil {
			os.Remove(tmpName)
			return nil, fmt.Errorf("failed to apply fixture permissions: %w", err)
		}
		if err := os.Rename(tmpName, disk); err != nil {
			os.Remove(tmpName)
			return nil, fmt.Errorf("failed to publish fixture: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown fixture kind %q", kind)
	}

	fx := models.Fixture{
		Path:        path,
		Kind:        kind,
		Size:        int64(len(content)),
		Permissions: permissions,
	}
	if kind == models.FixtureKindFolder {
		fx.Size = 0
	}
	err = s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "path"}},
		DoUpdates: clause.AssignmentColumns([]string{"kind", "size", "permissions", "updated_at"}),
	}).Create(&fx).Error
	if err != nil {
		return nil, err
	}
	return &fx, nil
}

// Delete removes a fixture. Deleting a folder removes every descendant whose
// path begins with "<folder>/" plus the folder record itself.
func (s *Store) Delete(path string) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	var fx models.Fixture
	if err := s.db.First(&fx, "path = ?", path).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.RemoveAll(s.DiskPath(path)); err != nil {
		return fmt.Errorf("failed to remove fixture from disk: %w", err)
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		if fx.Kind == models.FixtureKindFolder {
			if err := tx.Where("path LIKE ?", path+"/%").Delete(&models.Fixture{}).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&models.Fixture{}, "path = ?", path).Error
	})
}

// SetPermissions updates the recorded permission string and re-chmods the
// physical asset.
func (s *Store) SetPermissions(path, permissions string) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	mode, err := ParsePermissions(permissions)
	if err != nil {
		return err
	}
	var fx models.Fixture
	if err := s.db.First(&fx, "path = ?", path).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Chmod(s.DiskPath(path), mode); err != nil {
		return fmt.Errorf("failed to chmod fixture: %w", err)
	}
	return s.db.Model(&models.Fixture{}).Where("path = ?", path).
		Update("permissions", permissions).Error
}

// ListFolder returns the records directly inside a folder fixture.
func (s *Store) ListFolder(folder string) ([]models.Fixture, error) {
	if err := ValidatePath(folder); err != nil {
		return nil, err
	}
	var fx models.Fixture
	if err := s.db.First(&fx, "path = ? AND kind = ?", folder, models.FixtureKindFolder).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var out []models.Fixture
	err := s.db.Where("path LIKE ? AND path NOT LIKE ?", folder+"/%", folder+"/%/%").
		Order("path").Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// PutInFolder writes a file inside an existing folder fixture. The file
// inherits the store default permissions.
func (s *Store) PutInFolder(folder, name string, content []byte) (*models.Fixture, error) {
	if strings.Contains(name, "/") {
		return nil, ErrInvalidPath
	}
	if err := ValidatePath(folder); err != nil {
		return nil, err
	}
	var fx models.Fixture
	if err := s.db.First(&fx, "path = ? AND kind = ?", folder, models.FixtureKindFolder).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s.Put(folder+"/"+name, models.FixtureKindFile, content, DefaultPermissions)
}

// DeleteInFolder removes a single file from a folder fixture.
func (s *Store) DeleteInFolder(folder, name string) error {
	if strings.Contains(name, "/") {
		return ErrInvalidPath
	}
	return s.Delete(folder + "/" + name)
}

// Sync walks the physical storage and drops catalog entries whose asset has
// disappeared, returning the removed paths.
func (s *Store) Sync() ([]string, error) {
	all, err := s.List()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []string
	for _, fx := range all {
		if _, err := os.Stat(s.DiskPath(fx.Path)); errors.Is(err, fs.ErrNotExist) {
			if err := s.db.Delete(&models.Fixture{}, "path = ?", fx.Path).Error; err != nil {
				return removed, err
			}
			removed = append(removed, fx.Path)
		}
	}
	if len(removed) > 0 {
		s.log.Info("removed stale fixture records",
			zap.Int("count", len(removed)), zap.Time("at", time.Now()))
	}
	return removed, nil
}

// Resolve maps a fixture reference to its physical source for staging.
// Returns the record so the runner can honor the recorded permissions.
func (s *Store) Resolve(ref string) (string, *models.Fixture, error) {
	if err := ValidatePath(ref); err != nil {
		return "", nil, err
	}
	var fx models.Fixture
	if err := s.db.First(&fx, "path = ?", ref).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil, ErrNotFound
		}
		return "", nil, err
	}
	disk := s.DiskPath(ref)
	if _, err := os.Stat(disk); err != nil {
		return "", nil, ErrNotFound
	}
	return disk, &fx, nil
}
