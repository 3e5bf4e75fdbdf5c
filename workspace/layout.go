// Package workspace resolves file names inside a project's data and output
// directories and refuses names that would escape them.
package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"go.uber.org/zap"

	"github.com/MrEthical07/labkit/dataset"
)

var (
	// ErrPathTraversal is returned for names that resolve outside their
	// kind directory.
	ErrPathTraversal = errors.New("path traversal detected")
	ErrInvalidKind   = errors.New("invalid directory kind")
	// ErrFileNotFound wraps fs.ErrNotExist for missing data files.
	ErrFileNotFound = errors.New("data file not found")
)

// DataKind names a directory under data/.
type DataKind string

const (
	Raw       DataKind = "raw"
	Processed DataKind = "processed"
	External  DataKind = "external"
)

// OutputKind names a directory under outputs/.
type OutputKind string

const (
	Figures OutputKind = "figures"
	Models  OutputKind = "models"
	Reports OutputKind = "reports"
)

// DefaultAuditLog is the audit log location relative to the project root.
const DefaultAuditLog = "outputs/audit_logs/data_processing_audit.log"

// Layout is a project directory tree:
//
//	<root>/data/{raw,processed,external}
//	<root>/outputs/{figures,models,reports,audit_logs}
type Layout struct {
	root   string
	logger *zap.Logger
}

// New returns a Layout rooted at root. A nil logger discards output.
func New(root string, logger *zap.Logger) (*Layout, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Layout{root: abs, logger: logger.Named("workspace")}, nil
}

func (l *Layout) Root() string {
	return l.root
}

// DataPath returns <root>/data/<kind>/<name>. It does not touch the disk.
func (l *Layout) DataPath(name string, kind DataKind) (string, error) {
	switch kind {
	case Raw, Processed, External:
	default:
		return "", fmt.Errorf("%w: data kind %q (want raw, processed or external)", ErrInvalidKind, kind)
	}
	return l.within(filepath.Join(l.root, "data", string(kind)), name)
}

// OutputPath returns <root>/outputs/<kind>/<name> and creates the kind
// directory.
func (l *Layout) OutputPath(name string, kind OutputKind) (string, error) {
	switch kind {
	case Figures, Models, Reports:
	default:
		return "", fmt.Errorf("%w: output kind %q (want figures, models or reports)", ErrInvalidKind, kind)
	}

	dir := filepath.Join(l.root, "outputs", string(kind))
	path, err := l.within(dir, name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return path, nil
}

// AuditLogPath returns the default audit log file and creates its directory.
func (l *Layout) AuditLogPath() (string, error) {
	path := filepath.Join(l.root, filepath.FromSlash(DefaultAuditLog))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	return path, nil
}

// Resolve joins a root-relative path such as a configured log file. Absolute
// paths are returned unchanged.
func (l *Layout) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(l.root, filepath.FromSlash(p))
}

// LoadFrame reads data/<kind>/<name>, choosing the decoder by extension.
func (l *Layout) LoadFrame(name string, kind DataKind) (dataframe.DataFrame, error) {
	path, err := l.DataPath(name, kind)
	if err != nil {
		return dataframe.DataFrame{}, err
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return dataframe.DataFrame{}, fmt.Errorf("%w: %s: %w", ErrFileNotFound, path, err)
		}
		return dataframe.DataFrame{}, err
	}

	return dataset.ReadFile(path)
}

// SaveFrame writes df to data/<kind>/<name>, creating directories.
func (l *Layout) SaveFrame(df dataframe.DataFrame, name string, kind DataKind) (string, error) {
	path, err := l.DataPath(name, kind)
	if err != nil {
		return "", err
	}
	if err := dataset.WriteFile(df, path); err != nil {
		return "", err
	}
	l.logger.Debug("frame saved", zap.String("path", path), zap.Int("rows", df.Nrow()))
	return path, nil
}

// RemoveData deletes data/<kind>/<name>.
func (l *Layout) RemoveData(name string, kind DataKind) error {
	path, err := l.DataPath(name, kind)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s: %w", ErrFileNotFound, path, err)
		}
		return err
	}
	return nil
}

// PurgeData deletes every file under data/<kind> and returns how many were
// removed. The kind directory itself is kept.
func (l *Layout) PurgeData(kind DataKind) (int, error) {
	dir, err := l.DataPath(".", kind)
	if err != nil {
		return 0, err
	}

	removed := 0
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == dir {
				return fs.SkipDir
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		if err := os.Remove(path); err != nil {
			return err
		}
		removed++
		return nil
	})
	return removed, err
}

// within joins name onto base and rejects absolute names, ".." components
// in either slash style, and results outside base after symlink resolution.
func (l *Layout) within(base, name string) (string, error) {
	normalized := strings.ReplaceAll(name, `\`, "/")

	if name == "" || filepath.IsAbs(name) || strings.HasPrefix(normalized, "/") || filepath.VolumeName(name) != "" {
		return "", l.reject(name, "absolute or empty name")
	}
	for _, part := range strings.Split(normalized, "/") {
		if part == ".." {
			return "", l.reject(name, "parent directory component")
		}
	}

	path := filepath.Join(base, filepath.FromSlash(normalized))
	rel, err := filepath.Rel(base, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", l.reject(name, "outside base directory")
	}

	if resolved, ok := resolveExisting(path); ok {
		resolvedBase, okBase := resolveExisting(base)
		if okBase {
			rel, err := filepath.Rel(resolvedBase, resolved)
			if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
				return "", l.reject(name, "symlink leaves base directory")
			}
		}
	}

	return path, nil
}

func (l *Layout) reject(name, reason string) error {
	l.logger.Warn("path rejected", zap.String("name", name), zap.String("reason", reason))
	return fmt.Errorf("%w: %q (%s)", ErrPathTraversal, name, reason)
}

// resolveExisting evaluates symlinks on the longest existing prefix of path
// and re-appends the rest.
func resolveExisting(path string) (string, bool) {
	rest := ""
	cur := path
	for {
		if resolved, err := filepath.EvalSymlinks(cur); err == nil {
			return filepath.Join(resolved, rest), true
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", false
		}
		rest = filepath.Join(filepath.Base(cur), rest)
		cur = parent
	}
}
