package release

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

// File names under the project root.
const (
	VersionFile   = "version.txt"
	ReadmeFile    = "README.md"
	ChangelogFile = "CHANGELOG.md"
)

// DefaultVersion is reported when version.txt does not exist.
var DefaultVersion = Version{Major: 0, Minor: 1, Patch: 0}

var badgePattern = regexp.MustCompile(`(!\[Version\]\(https://img\.shields\.io/badge/Version-v)[\d.]+(-blue\.svg\))`)

// Status describes what Apply did to one file.
type Status string

const (
	StatusUpdated     Status = "updated"
	StatusWouldUpdate Status = "would_update"
	StatusMissing     Status = "missing"
	StatusNoMatch     Status = "no_match"
)

// FileChange is the outcome for one managed file.
type FileChange struct {
	Path   string
	Status Status
}

// Report summarizes an Apply run.
type Report struct {
	From, To  Version
	DryRun    bool
	Downgrade bool
	Changes   []FileChange
}

// Manager updates the versioned files of a project.
type Manager struct {
	root   string
	logger *zap.Logger
	now    func() time.Time
}

// NewManager returns a Manager for the project at root.
func NewManager(root string, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{root: root, logger: logger.Named("release"), now: time.Now}
}

// Current reads version.txt, or returns DefaultVersion when it is absent.
func (m *Manager) Current() (Version, error) {
	raw, err := os.ReadFile(m.path(VersionFile))
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultVersion, nil
	}
	if err != nil {
		return Version{}, err
	}
	return Parse(strings.TrimSpace(string(raw)))
}

// Next returns the current version bumped by kind.
func (m *Manager) Next(kind string) (Version, error) {
	cur, err := m.Current()
	if err != nil {
		return Version{}, err
	}
	return cur.Bump(kind)
}

// Apply writes to as the project version. With dryRun nothing is written and
// the report lists what would change. Missing README and CHANGELOG files are
// skipped.
func (m *Manager) Apply(ctx context.Context, to Version, dryRun bool) (Report, error) {
	from, err := m.Current()
	if err != nil {
		return Report{}, err
	}
	rep := Report{From: from, To: to, DryRun: dryRun}

	if to.Compare(from) < 0 {
		rep.Downgrade = true
		m.logger.Warn("version downgrade",
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}

	steps := []func(Version, bool) (FileChange, error){
		m.updateVersionFile,
		m.updateReadme,
		m.updateChangelog,
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		change, err := step(to, dryRun)
		if err != nil {
			return rep, err
		}
		rep.Changes = append(rep.Changes, change)
		m.logger.Info("release file",
			zap.String("path", change.Path),
			zap.String("status", string(change.Status)),
			zap.Bool("dry_run", dryRun),
		)
	}
	return rep, nil
}

func (m *Manager) path(name string) string {
	return filepath.Join(m.root, name)
}

func (m *Manager) updateVersionFile(v Version, dryRun bool) (FileChange, error) {
	p := m.path(VersionFile)
	if dryRun {
		return FileChange{Path: p, Status: StatusWouldUpdate}, nil
	}
	if err := os.WriteFile(p, []byte(v.String()), 0o644); err != nil {
		return FileChange{}, fmt.Errorf("write %s: %w", p, err)
	}
	return FileChange{Path: p, Status: StatusUpdated}, nil
}

func (m *Manager) updateReadme(v Version, dryRun bool) (FileChange, error) {
	p := m.path(ReadmeFile)
	content, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return FileChange{Path: p, Status: StatusMissing}, nil
	}
	if err != nil {
		return FileChange{}, err
	}

	if !badgePattern.Match(content) {
		return FileChange{Path: p, Status: StatusNoMatch}, nil
	}
	if dryRun {
		return FileChange{Path: p, Status: StatusWouldUpdate}, nil
	}
	updated := badgePattern.ReplaceAll(content, []byte("${1}"+v.String()+"${2}"))
	if err := os.WriteFile(p, updated, 0o644); err != nil {
		return FileChange{}, fmt.Errorf("write %s: %w", p, err)
	}
	return FileChange{Path: p, Status: StatusUpdated}, nil
}

func (m *Manager) updateChangelog(v Version, dryRun bool) (FileChange, error) {
	p := m.path(ChangelogFile)
	content, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return FileChange{Path: p, Status: StatusMissing}, nil
	}
	if err != nil {
		return FileChange{}, err
	}
	if dryRun {
		return FileChange{Path: p, Status: StatusWouldUpdate}, nil
	}

	updated := insertEntry(string(content), changelogEntry(v, m.now()))
	if err := os.WriteFile(p, []byte(updated), 0o644); err != nil {
		return FileChange{}, fmt.Errorf("write %s: %w", p, err)
	}
	return FileChange{Path: p, Status: StatusUpdated}, nil
}

func changelogEntry(v Version, day time.Time) []string {
	return []string{
		fmt.Sprintf("## [%s] - %s", v.Tag(), day.Format("2006-01-02")),
		"",
		"### Added",
		"- ",
		"",
		"### Changed",
		"- ",
		"",
		"### Fixed",
		"- ",
		"",
		"### Security",
		"- ",
		"",
	}
}

// insertEntry places entry before the first release heading, or at the end
// when the changelog has none yet.
func insertEntry(content string, entry []string) string {
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		if strings.HasPrefix(line, "## [") {
			out := make([]string, 0, len(lines)+len(entry))
			out = append(out, lines[:i]...)
			out = append(out, entry...)
			out = append(out, lines[i:]...)
			return strings.Join(out, "\n")
		}
	}
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	if content != "" && !strings.HasSuffix(content, "\n\n") {
		content += "\n"
	}
	return content + strings.Join(entry, "\n")
}
