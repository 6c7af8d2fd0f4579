// Package backup implements the backup-before-mutate protocol: files about
// to be overwritten or deleted are mirrored into a backup directory before
// the destination is touched, and can be restored wholesale on revert.
package backup

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"otaupdate/internal/fsiface"
)

// DefaultSkipExtensions matches the source spec's documented defaults.
var DefaultSkipExtensions = []string{
	".png", ".jpg", ".jpeg", ".gif", ".bmp", ".rgb565", ".raw", ".bin", ".ttf", ".otf", ".woff",
}

// DefaultSkipPrefixes matches the source spec's documented defaults.
var DefaultSkipPrefixes = []string{"assets/", "static/", "media/", "images/", "fonts/"}

// Manager mirrors files into a backup directory before they are mutated,
// and can restore them on revert.
type Manager struct {
	fs             fsiface.FS
	destDir        string
	backupDir      string
	skipExtensions map[string]bool
	skipPrefixes   []string
	chunkSize      int
}

// Options configures a Manager.
type Options struct {
	FS             fsiface.FS
	DestDir        string
	BackupDir      string
	SkipExtensions []string
	SkipPrefixes   []string
	ChunkSize      int
}

// New builds a Manager, applying the spec's documented skip defaults when
// the caller leaves the skip sets nil (not merely empty — an explicitly
// empty slice means "skip nothing").
func New(opts Options) *Manager {
	fs := opts.FS
	if fs == nil {
		fs = fsiface.OSFileSystem{}
	}
	ext := opts.SkipExtensions
	if ext == nil {
		ext = DefaultSkipExtensions
	}
	prefixes := opts.SkipPrefixes
	if prefixes == nil {
		prefixes = DefaultSkipPrefixes
	}
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 32 * 1024
	}

	extSet := make(map[string]bool, len(ext))
	for _, e := range ext {
		extSet[strings.ToLower(e)] = true
	}

	return &Manager{
		fs:             fs,
		destDir:        opts.DestDir,
		backupDir:      opts.BackupDir,
		skipExtensions: extSet,
		skipPrefixes:   prefixes,
		chunkSize:      chunkSize,
	}
}

// ShouldSkip reports whether relPath is excluded from backup by extension
// or prefix. Skipped files are still mutated/removed — only the backup
// copy is omitted.
func (m *Manager) ShouldSkip(relPath string) bool {
	ext := strings.ToLower(filepath.Ext(relPath))
	if m.skipExtensions[ext] {
		return true
	}
	for _, prefix := range m.skipPrefixes {
		if strings.HasPrefix(relPath, prefix) {
			return true
		}
	}
	return false
}

// BackupIfNeeded copies the file currently at relPath (relative to destDir)
// into the mirror path under BackupDir, unless it is skipped, or it does
// not currently exist (nothing to back up for a brand new file).
func (m *Manager) BackupIfNeeded(relPath string) error {
	if m.ShouldSkip(relPath) {
		return nil
	}
	src := filepath.Join(m.destDir, relPath)
	if _, err := m.fs.Stat(src); os.IsNotExist(err) {
		return nil
	}

	dst := filepath.Join(m.backupDir, relPath)
	if err := m.fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create backup parent dir: %w", err)
	}
	return m.chunkedCopy(src, dst)
}

// Restore walks the backup tree and copies every entry back to its
// original location under destDir, overwriting whatever is there.
func (m *Manager) Restore() error {
	if _, err := m.fs.Stat(m.backupDir); os.IsNotExist(err) {
		return nil
	}
	return m.fs.Walk(m.backupDir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(m.backupDir, p)
		if err != nil {
			return err
		}
		dst := filepath.Join(m.destDir, rel)
		if err := m.fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		return m.chunkedCopy(p, dst)
	})
}

// Teardown removes the backup directory entirely, best-effort.
func (m *Manager) Teardown() error {
	return m.fs.RemoveAll(m.backupDir)
}

// Dir returns the backup directory path.
func (m *Manager) Dir() string { return m.backupDir }

// chunkedCopy copies src to dst in fixed-size chunks — whole-file reads
// are forbidden by the memory discipline this protocol operates under.
func (m *Manager) chunkedCopy(src, dst string) error {
	in, err := m.fs.Open(src)
	if err != nil {
		return fmt.Errorf("open backup source %s: %w", src, err)
	}
	defer in.Close()

	out, err := m.fs.Create(dst)
	if err != nil {
		return fmt.Errorf("create backup dest %s: %w", dst, err)
	}
	defer out.Close()

	buf := make([]byte, m.chunkSize)
	if _, err := io.CopyBuffer(out, in, buf); err != nil {
		return fmt.Errorf("copy %s -> %s: %w", src, dst, err)
	}
	return out.Sync()
}

// BackupDirName derives the backup directory name from the application
// name, per the source spec's "<application_name>_backup/" convention.
func BackupDirName(destDir, applicationName string) string {
	return filepath.Join(destDir, applicationName+"_backup")
}
