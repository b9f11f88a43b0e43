package dirsync

import "github.com/paulschiretz/pgl-dirsync/pkg/pathcopy"

// Counters are the per-directory totals of one Sync call. In preview they count
// what would have been done.
type Counters struct {
	copied       [pathcopy.ModeLargerModified + 1]int
	FilesDeleted int
	DirsDeleted  int
	// Processed counts source files visited by the copy phase.
	Processed int
}

// AddCopied counts one file copied by mode.
func (c *Counters) AddCopied(mode pathcopy.Mode) {
	if mode > pathcopy.ModeNone && int(mode) < len(c.copied) {
		c.copied[mode]++
	}
}

// Copied returns the number of files copied by mode.
func (c Counters) Copied(mode pathcopy.Mode) int {
	if mode < 0 || int(mode) >= len(c.copied) {
		return 0
	}
	return c.copied[mode]
}

// TotalCopied returns the number of files copied by any mode.
func (c Counters) TotalCopied() int {
	total := 0
	for _, n := range c.copied {
		total += n
	}
	return total
}

// NothingDone reports whether no file was copied and nothing was deleted.
func (c Counters) NothingDone() bool {
	return c.TotalCopied() == 0 && c.FilesDeleted == 0 && c.DirsDeleted == 0
}

// Add accumulates o into c.
func (c *Counters) Add(o Counters) {
	for i := range c.copied {
		c.copied[i] += o.copied[i]
	}
	c.FilesDeleted += o.FilesDeleted
	c.DirsDeleted += o.DirsDeleted
	c.Processed += o.Processed
}
