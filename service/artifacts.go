package service

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// stagingPath returns the hidden path an artifact is written to before it is
// committed to the provided final path.
func stagingPath(path string) string {
	dir, file := filepath.Split(path)
	return filepath.Join(dir, "."+file+".tmp")
}

// artifacts tracks run outputs staged next to their final paths. Staged files
// only replace the final paths on commit.
type artifacts struct {
	paths []string
}

// stage registers the provided final path and returns its staging path.
func (a *artifacts) stage(path string) string {
	a.paths = append(a.paths, path)
	return stagingPath(path)
}

// discard removes every staged file, leaving the final paths untouched.
func (a *artifacts) discard() {
	for _, path := range a.paths {
		staged := stagingPath(path)
		info, err := os.Lstat(staged)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		_ = os.Remove(staged)
	}
}

// commit moves every staged file to its final path. Previous artifacts are
// restored when a move fails.
func (a *artifacts) commit() error {
	backups := make(map[string]string, len(a.paths))
	for _, path := range a.paths {
		if _, err := os.Lstat(path); err != nil {
			continue
		}

		backup := path + ".bak"
		if err := os.Rename(path, backup); err != nil {
			a.restore(backups)
			return fmt.Errorf("backing up '%s': %w", path, err)
		}
		backups[path] = backup
	}

	for idx, path := range a.paths {
		if err := os.Rename(stagingPath(path), path); err != nil {
			var errs error
			for _, moved := range a.paths[:idx] {
				errs = errors.Join(errs, os.Remove(moved))
			}
			a.restore(backups)
			return errors.Join(fmt.Errorf("committing '%s': %w", path, err), errs)
		}
	}

	for _, backup := range backups {
		_ = os.Remove(backup)
	}

	return nil
}

// restore moves backed up artifacts back to their final paths.
func (a *artifacts) restore(backups map[string]string) {
	for path, backup := range backups {
		_ = os.Rename(backup, path)
	}
}
