package dirsync

import (
	"github.com/paulschiretz/pgl-dirsync/pkg/pathcopy"
	"github.com/paulschiretz/pgl-dirsync/pkg/pattern"
	"github.com/paulschiretz/pgl-dirsync/pkg/runlog"
)

// Job is one directory definition prepared for a run: wildcard tokens are
// resolved and patterns are compiled.
type Job struct {
	Name        string
	Source      string
	Destination string

	WithSubfolders bool
	Verify         bool

	FileInclude pattern.Set
	FileExclude pattern.Set
	DirInclude  pattern.Set
	DirExclude  pattern.Set

	Policy      pathcopy.Policy
	DeleteFiles bool
	DeleteDirs  bool

	// Preview logs and counts every decision without touching the filesystem.
	Preview bool

	// Log receives the directory's narrative. Nil discards it.
	Log *runlog.Logger
	// Disable is called when a preview found nothing to do.
	Disable func()
}

func (j *Job) previewPrefix(capital bool) string {
	if !j.Preview {
		return ""
	}
	if capital {
		return "Preview of "
	}
	return "preview of "
}
