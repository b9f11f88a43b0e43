// Package pathlist lists the immediate children of a directory, split into
// files and subdirectories, with optional symbolic link skipping and
// include/exclude filtering.
package pathlist

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/paulschiretz/pgl-dirsync/pkg/pattern"
	"github.com/paulschiretz/pgl-dirsync/pkg/plog"
	"github.com/paulschiretz/pgl-dirsync/pkg/runlog"
	"github.com/paulschiretz/pgl-dirsync/pkg/runstate"
)

// Entry describes one directory child. For a followed symbolic link, Size,
// ModTime, Mode and IsDir describe the link target.
type Entry struct {
	Name      string
	Path      string
	Size      int64
	ModTime   time.Time
	Mode      fs.FileMode
	IsDir     bool
	IsSymlink bool
}

// Stat returns the Entry for a single path, following a symbolic link. The
// boolean is false if nothing (or only a dangling link) exists at path.
func Stat(path string) (Entry, bool, error) {
	linfo, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}
	isLink := linfo.Mode()&fs.ModeSymlink != 0
	info := linfo
	if isLink {
		if info, err = os.Stat(path); err != nil {
			return Entry{}, false, nil
		}
	}
	return newEntry(path, info, isLink), true, nil
}

// IsSymlink reports whether path itself is a symbolic link.
func IsSymlink(path string) bool {
	info, err := os.Lstat(path)
	return err == nil && info.Mode()&fs.ModeSymlink != 0
}

func newEntry(path string, info fs.FileInfo, isLink bool) Entry {
	return Entry{
		Name:      filepath.Base(path),
		Path:      path,
		Size:      info.Size(),
		ModTime:   info.ModTime(),
		Mode:      info.Mode(),
		IsDir:     info.IsDir(),
		IsSymlink: isLink,
	}
}

// Lister lists directories for one run.
type Lister struct {
	// SkipLinks drops symbolic links from every listing.
	SkipLinks bool
	// KeepDangling lists dangling symbolic links as files instead of
	// dropping them, so they can be deleted.
	KeepDangling bool
	// Signal is checked by CountFiles. Nil never pauses or stops.
	Signal runstate.Signal
	// Log receives exclusion reports and listing failures. Nil discards them.
	Log *runlog.Logger
}

// List returns the regular files and directories directly inside dir, sorted
// by name. Symbolic links count as their target type. Special files are left
// out, and so are dangling links unless KeepDangling is set.
func (l *Lister) List(dir string) (files, dirs []Entry, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	for _, de := range entries {
		path := filepath.Join(dir, de.Name())
		isLink := de.Type()&fs.ModeSymlink != 0
		if isLink && l.SkipLinks {
			continue
		}

		var info fs.FileInfo
		if isLink {
			info, err = os.Stat(path)
			if err != nil && l.KeepDangling {
				if linfo, lerr := de.Info(); lerr == nil {
					files = append(files, newEntry(path, linfo, true))
				}
				continue
			}
		} else {
			info, err = de.Info()
		}
		if err != nil {
			// Dangling link, or the entry vanished since ReadDir.
			plog.Debug("Skipping unreadable directory entry", "path", path, "error", err)
			continue
		}

		switch {
		case info.IsDir():
			dirs = append(dirs, newEntry(path, info, isLink))
		case info.Mode().IsRegular():
			files = append(files, newEntry(path, info, isLink))
		}
	}
	return files, dirs, nil
}

// ListFiles returns the files in dir that match include and do not match
// exclude. With report, every file dropped by exclude is written to the run log.
func (l *Lister) ListFiles(dir string, include, exclude pattern.Set, report bool) ([]Entry, error) {
	files, _, err := l.List(dir)
	if err != nil {
		return nil, err
	}
	return l.filter(files, include, exclude, report, "Exclude File"), nil
}

// ListDirs returns the subdirectories of dir that match include and do not
// match exclude. With report, every directory dropped by exclude is written to the run log.
func (l *Lister) ListDirs(dir string, include, exclude pattern.Set, report bool) ([]Entry, error) {
	_, dirs, err := l.List(dir)
	if err != nil {
		return nil, err
	}
	return l.filter(dirs, include, exclude, report, "Exclude Directory"), nil
}

func (l *Lister) filter(entries []Entry, include, exclude pattern.Set, report bool, label string) []Entry {
	kept := entries[:0]
	for _, e := range entries {
		if Wanted(e.Name, include, exclude) {
			kept = append(kept, e)
			continue
		}
		// Entries outside the include list are dropped silently.
		if report && exclude.Match(e.Name) {
			l.Log.Printf(runlog.Info, "    (%s)", label)
			l.Log.Printf(runlog.Info, "       '%s'", e.Path)
			l.Log.Blank()
		}
	}
	return kept
}

// LoopsBack reports whether e is a symbolic link to parent or to one of
// parent's ancestors. Following such a link would recurse forever.
func LoopsBack(e Entry, parent string) bool {
	if !e.IsSymlink || !e.IsDir {
		return false
	}
	target, err := filepath.EvalSymlinks(e.Path)
	if err != nil {
		return false
	}
	resolved, err := filepath.EvalSymlinks(parent)
	if err != nil {
		return false
	}
	if resolved == target {
		return true
	}
	rel, err := filepath.Rel(target, resolved)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Wanted reports whether name is included and not excluded.
func Wanted(name string, include, exclude pattern.Set) bool {
	return include.Match(name) && !exclude.Match(name)
}

// CountFiles counts the regular files in dir, and with recursive in its whole
// subtree. It waits while the run is paused and returns the partial count as
// soon as a stop is requested. Directories that cannot be listed are logged
// and skipped.
func (l *Lister) CountFiles(dir string, recursive bool) int {
	count := 0
	l.countFiles(dir, recursive, &count)
	return count
}

// countFiles returns false once a stop was observed.
func (l *Lister) countFiles(dir string, recursive bool, count *int) bool {
	if runstate.Checkpoint(l.Signal) {
		return false
	}

	files, dirs, err := l.List(dir)
	if err != nil {
		plog.Warn("Failed to count files", "directory", dir, "error", err)
		l.Log.Printf(runlog.Info, "  Could not count files in '%s': %v", dir, err)
		return true
	}
	*count += len(files)

	if !recursive {
		return true
	}
	for _, d := range dirs {
		if LoopsBack(d, dir) {
			continue
		}
		if !l.countFiles(d.Path, true, count) {
			return false
		}
	}
	return true
}
