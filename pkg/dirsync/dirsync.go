// Package dirsync synchronizes one directory definition: it validates the
// paths, counts the source files, copies top-down according to the copy
// policy and, unless the copy phase hit an error, deletes destination orphans.
//
// The walk is sequential and depth first. Before every file and every
// directory the walker waits while the run is paused and unwinds when a stop
// was requested. Files already copied stay copied.
package dirsync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulschiretz/pgl-dirsync/pkg/hints"
	"github.com/paulschiretz/pgl-dirsync/pkg/pathcopy"
	"github.com/paulschiretz/pgl-dirsync/pkg/pathlist"
	"github.com/paulschiretz/pgl-dirsync/pkg/pattern"
	"github.com/paulschiretz/pgl-dirsync/pkg/plog"
	"github.com/paulschiretz/pgl-dirsync/pkg/preflight"
	"github.com/paulschiretz/pgl-dirsync/pkg/runlog"
	"github.com/paulschiretz/pgl-dirsync/pkg/runstate"
)

var (
	// ErrIncompleteConfiguration means the source or destination of a
	// definition is missing or unusable. Only that definition is skipped.
	ErrIncompleteConfiguration = errors.New("incomplete configuration")
	// ErrStopped is returned, wrapped as a hint, when a stop was requested.
	ErrStopped = errors.New("synchronization stopped")
)

// ProgressFunc observes the copy and delete walks. done counts processed
// source files, total is the result of the initial count and name is the file
// or directory being processed.
type ProgressFunc func(done, total int, name string)

// FileCopier copies one file. *pathcopy.Copier is the implementation used by runs.
type FileCopier interface {
	Copy(src, dst string, verify bool) pathcopy.Outcome
}

// Syncer runs Jobs with the global settings of a run.
type Syncer struct {
	// SkipLinks ignores symbolic links in the source and deletes destination
	// entries whose source counterpart is a link.
	SkipLinks bool
	// ToleranceSeconds is the largest modification time difference still
	// treated as equal.
	ToleranceSeconds int64

	// Copier copies the files. Nil uses a default *pathcopy.Copier.
	Copier FileCopier
	// Errors is the run's error level. Nil uses a private tracker.
	Errors *runstate.ErrorTracker
	// Signal pauses and stops the walk. Nil never pauses or stops.
	Signal runstate.Signal
	// Progress, if set, is called at every file and directory boundary.
	Progress ProgressFunc
}

// walk holds the state of one Sync call. Counters are threaded explicitly.
type walk struct {
	ctx       context.Context
	s         *Syncer
	job       *Job
	log       *runlog.Logger
	errors    *runstate.ErrorTracker
	lister    *pathlist.Lister
	dstLister *pathlist.Lister
	srcRoot   string
	dstRoot   string
	total     int
}

// Sync synchronizes job. It returns ErrIncompleteConfiguration (wrapped with
// the reason) if the paths are unusable, and ErrStopped wrapped as a hint if a
// stop was requested. Per-file problems are logged and raise the error level;
// they are never returned.
func (s *Syncer) Sync(ctx context.Context, job *Job) (Counters, error) {
	var counters Counters

	tracker := s.Errors
	if tracker == nil {
		tracker = &runstate.ErrorTracker{}
	}
	s2 := *s
	if s2.Copier == nil {
		s2.Copier = &pathcopy.Copier{}
	}

	w := &walk{
		ctx:       ctx,
		s:         &s2,
		job:       job,
		log:       job.Log,
		errors:    tracker,
		lister:    &pathlist.Lister{SkipLinks: s.SkipLinks, Signal: s.Signal, Log: job.Log},
		dstLister: &pathlist.Lister{KeepDangling: true, Log: job.Log},
	}

	w.log.Printf(runlog.Subdir, "* Started %ssynchronization of directory '%s' *", job.previewPrefix(false), job.Name)
	w.log.Blank()

	if err := w.validate(); err != nil {
		plog.Debug("Directory definition is incomplete", "name", job.Name, "error", err)
		return counters, fmt.Errorf("%w: %w", ErrIncompleteConfiguration, err)
	}

	w.total = w.lister.CountFiles(w.srcRoot, job.WithSubfolders)
	subdirs := ""
	if job.WithSubfolders {
		subdirs = " and it's subdirectories"
	}
	w.log.Printf(runlog.Info, "  Total number of files found in '%s'%s: %d", w.srcRoot, subdirs, w.total)
	w.log.Blank()

	stopped := w.copyDir(w.srcRoot, w.dstRoot, &counters)

	if !stopped && (job.DeleteFiles || job.DeleteDirs) {
		if w.errors.Level() == runstate.ErrorThisDirectory {
			w.log.Print(runlog.Warning, "  Skipping 'Delete Files' and 'Delete Dirs' because of errors while synchronizing this directory.")
		} else {
			stopped = w.deleteDir(w.dstRoot, w.srcRoot, &counters)
		}
	}
	stopped = stopped || w.isStopping()

	w.summarize(counters, stopped)

	if stopped {
		w.log.Printf(runlog.Subdir, "* Stopped synchronization of directory '%s' *", job.Name)
		return counters, hints.Wrap(ErrStopped)
	}
	w.log.Printf(runlog.Subdir, "* Finished synchronization of directory '%s' *", job.Name)
	return counters, nil
}

func (w *walk) validate() error {
	if err := preflight.CheckSourceAccessible(w.job.Source); err != nil {
		switch {
		case errors.Is(err, preflight.ErrNoSource):
			w.log.Print(runlog.Error, "    no source directory specified!")
		case errors.Is(err, preflight.ErrSourceNotDir):
			w.log.Printf(runlog.Error, "    source directory '%s' doesn't exist or isn't a directory!", absPath(w.job.Source))
		default:
			w.log.Printf(runlog.Error, "    %v", err)
		}
		return err
	}
	if err := preflight.CheckDestinationAccessible(w.job.Destination); err != nil {
		switch {
		case errors.Is(err, preflight.ErrNoDestination):
			w.log.Print(runlog.Error, "    no destination directory specified!")
		case errors.Is(err, preflight.ErrDestinationNotDir):
			w.log.Printf(runlog.Error, "    destination directory '%s' isn't a directory!", absPath(w.job.Destination))
		default:
			w.log.Printf(runlog.Error, "    %v", err)
		}
		return err
	}
	if w.job.WithSubfolders {
		if err := preflight.CheckPathNesting(w.job.Source, w.job.Destination); err != nil && !w.destinationFiltered() {
			w.log.Printf(runlog.Error, "    destination directory '%s' is inside the source directory!", absPath(w.job.Destination))
			return err
		}
	}

	w.srcRoot = absPath(w.job.Source)
	w.dstRoot = absPath(w.job.Destination)
	return nil
}

// destinationFiltered reports whether a destination inside the source is
// kept out of the walk by the directory patterns of its first path component.
func (w *walk) destinationFiltered() bool {
	rel, err := filepath.Rel(absPath(w.job.Source), absPath(w.job.Destination))
	if err != nil || rel == "." {
		return false
	}
	first := strings.SplitN(rel, string(filepath.Separator), 2)[0]
	return !pathlist.Wanted(first, w.job.DirInclude, w.job.DirExclude)
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

// checkpoint waits while paused and reports whether the walk has to stop.
func (w *walk) checkpoint() bool {
	if w.ctx.Err() != nil {
		return true
	}
	return runstate.Checkpoint(w.s.Signal) || w.ctx.Err() != nil
}

// isStopping reports a pending stop without blocking on pause.
func (w *walk) isStopping() bool {
	if w.ctx.Err() != nil {
		return true
	}
	return w.s.Signal != nil && w.s.Signal.IsStopping()
}

func (w *walk) progress(c *Counters, name string) {
	if w.s.Progress != nil {
		w.s.Progress(c.Processed, w.total, name)
	}
}

// copyDir runs the copy phase for srcDir. It returns true once a stop was observed.
func (w *walk) copyDir(srcDir, dstDir string, c *Counters) bool {
	if w.checkpoint() {
		return true
	}

	dirs, err := w.lister.ListDirs(srcDir, w.job.DirInclude, w.job.DirExclude, true)
	if err != nil {
		w.listFailed(srcDir, err)
		return false
	}
	files, err := w.lister.ListFiles(srcDir, w.job.FileInclude, w.job.FileExclude, true)
	if err != nil {
		w.listFailed(srcDir, err)
		return false
	}

	for _, f := range files {
		if w.checkpoint() {
			return true
		}
		w.copyFile(f, filepath.Join(dstDir, f.Name), c)
		c.Processed++
		w.progress(c, f.Path)
	}

	if w.checkpoint() {
		return true
	}

	for _, d := range dirs {
		if w.checkpoint() {
			return true
		}
		if !w.job.WithSubfolders {
			continue
		}
		if pathlist.LoopsBack(d, srcDir) {
			w.errors.Raise(runstate.Warning)
			w.log.Print(runlog.Warning, "    Warning: Skipping symbolic link pointing to a parent directory.")
			w.log.Printf(runlog.Plain, "       '%s'", d.Path)
			w.log.Blank()
			continue
		}

		dstSub := filepath.Join(dstDir, d.Name)
		if w.copyDir(d.Path, dstSub, c) {
			return true
		}
		// Creating every directory also materializes empty source directories.
		if !w.job.Preview {
			if err := os.MkdirAll(dstSub, 0755); err != nil {
				w.errors.Raise(runstate.ErrorThisDirectory)
				w.log.Print(runlog.Error, "    ERROR: Can't create directory.")
				w.log.Printf(runlog.Plain, "       '%s'", dstSub)
				w.log.Blank()
			}
		}
	}
	return false
}

func (w *walk) listFailed(dir string, err error) {
	plog.Warn("Failed to list directory", "directory", dir, "error", err)
	w.errors.Raise(runstate.ErrorThisDirectory)
	w.log.Print(runlog.Error, "    ERROR: Can't read directory.")
	w.log.Printf(runlog.Plain, "       '%s'", dir)
	w.log.Blank()
}

func (w *walk) copyFile(src pathlist.Entry, dstPath string, c *Counters) {
	var dst *pathlist.Entry
	if e, ok, err := pathlist.Stat(dstPath); err != nil {
		plog.Debug("Cannot stat destination, treating as missing", "path", dstPath, "error", err)
	} else if ok {
		dst = &e
	}

	mode := w.job.Policy.Decide(src, dst, w.s.ToleranceSeconds)
	if mode == pathcopy.ModeNone {
		return
	}
	label := w.job.previewPrefix(true) + mode.Label()

	if w.job.Preview {
		c.AddCopied(mode)
		w.log.Printf(runlog.Action, "    (%s)", label)
	} else {
		outcome := w.s.Copier.Copy(src.Path, dstPath, w.job.Verify)
		switch outcome.Result {
		case pathcopy.Copied:
			c.AddCopied(mode)
			w.log.Printf(runlog.Action, "    (%s)", label)
		case pathcopy.CopiedVerifyFailed:
			c.AddCopied(mode)
			w.errors.Raise(runstate.ErrorThisDirectory)
			plog.Debug("Verify failed", "source", src.Path, "reason", outcome.Reason)
			w.log.Printf(runlog.Error, "    (%s) ERROR: Verify error.", label)
		case pathcopy.Warning:
			w.errors.Raise(runstate.Warning)
			w.log.Printf(runlog.Warning, "    (%s) Warning: %s", label, outcome.Reason)
		case pathcopy.Error:
			w.errors.Raise(runstate.ErrorThisDirectory)
			w.log.Printf(runlog.Error, "    (%s) ERROR: %s", label, outcome.Reason)
		}
	}

	w.log.Printf(runlog.Plain, "       '%s'", src.Path)
	w.log.Printf(runlog.Plain, "       '%s'", dstPath)
	w.log.Blank()
}

// deleteDir runs the delete phase for dstDir, whose source counterpart is
// srcDir. It returns true once a stop was observed.
func (w *walk) deleteDir(dstDir, srcDir string, c *Counters) bool {
	if w.checkpoint() {
		return true
	}

	// Links are listed so orphaned links can be deleted; filters are applied per entry.
	files, dirs, err := w.dstLister.List(dstDir)
	if errors.Is(err, fs.ErrNotExist) {
		// Nothing to delete in a destination that was never created (preview).
		return false
	}
	if err != nil {
		w.listFailed(dstDir, err)
		return false
	}

	for _, f := range files {
		if w.checkpoint() {
			return true
		}
		w.progress(c, f.Path)
		if !w.job.DeleteFiles {
			continue
		}
		if w.orphan(f, filepath.Join(srcDir, f.Name), w.job.FileInclude, w.job.FileExclude) {
			if w.remove(f, "Delete Files") {
				c.FilesDeleted++
			}
		}
	}

	for _, d := range dirs {
		if w.checkpoint() {
			return true
		}
		// Never descend through a link; deleting the link is enough.
		if w.job.WithSubfolders && !d.IsSymlink {
			if w.deleteDir(d.Path, filepath.Join(srcDir, d.Name), c) {
				return true
			}
		}
		w.progress(c, d.Path)
		if !w.job.DeleteDirs {
			continue
		}
		if w.orphan(d, filepath.Join(srcDir, d.Name), w.job.DirInclude, w.job.DirExclude) {
			if w.remove(d, "Delete Dirs") {
				c.DirsDeleted++
			}
		}
	}
	return false
}

// orphan applies the delete rule: an entry goes when it is not included, is
// excluded, has no source counterpart, or (with SkipLinks) its source
// counterpart is a symbolic link.
func (w *walk) orphan(e pathlist.Entry, srcPath string, include, exclude pattern.Set) bool {
	if !pathlist.Wanted(e.Name, include, exclude) {
		return true
	}
	if _, exists, err := pathlist.Stat(srcPath); err == nil && !exists {
		return true
	}
	return w.s.SkipLinks && pathlist.IsSymlink(srcPath)
}

// remove deletes e (recursively for directories) and logs the action. In
// preview it only logs. It reports whether the entry counts as deleted.
func (w *walk) remove(e pathlist.Entry, action string) bool {
	if w.job.Preview {
		w.log.Printf(runlog.Action, "    (Preview of %s)", action)
		w.log.Printf(runlog.Plain, "       '%s'", e.Path)
		w.log.Blank()
		return true
	}

	var err error
	if e.IsDir && !e.IsSymlink {
		err = os.RemoveAll(e.Path)
	} else {
		err = os.Remove(e.Path)
	}
	if err != nil {
		plog.Warn("Failed to delete", "path", e.Path, "error", err)
		w.errors.Raise(runstate.ErrorThisDirectory)
		w.log.Printf(runlog.Error, "    (%s) ERROR: Can't delete.", action)
		w.log.Printf(runlog.Plain, "       '%s'", e.Path)
		w.log.Blank()
		return false
	}

	w.log.Printf(runlog.Action, "    (%s)", action)
	w.log.Printf(runlog.Plain, "       '%s'", e.Path)
	w.log.Blank()
	return true
}

func (w *walk) summarize(c Counters, stopped bool) {
	prefix := w.job.previewPrefix(true)
	for _, mode := range pathcopy.Modes {
		if n := c.Copied(mode); n > 0 {
			w.log.Printf(runlog.Info, "  (%s%s) files copied: %d", prefix, mode.Label(), n)
		}
	}
	if c.FilesDeleted > 0 {
		w.log.Printf(runlog.Info, "  (%sDelete Files) files deleted: %d", prefix, c.FilesDeleted)
	}
	if c.DirsDeleted > 0 {
		w.log.Printf(runlog.Info, "  (%sDelete Dirs) directories deleted: %d", prefix, c.DirsDeleted)
	}

	if !c.NothingDone() {
		return
	}
	if w.job.Preview && !stopped {
		w.log.Print(runlog.Info, "  Nothing to do in preview: Directory has been disabled.")
		if w.job.Disable != nil {
			w.job.Disable()
		}
	} else {
		w.log.Print(runlog.Info, "  Nothing to do.")
	}
	w.log.Blank()
}
