// Package pathcopy decides which copy rule applies to a file pair and performs
// the copy with optional checksum verification.
package pathcopy

import (
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/paulschiretz/pgl-dirsync/pkg/plog"
	"github.com/paulschiretz/pgl-dirsync/pkg/pool"
	"github.com/paulschiretz/pgl-dirsync/pkg/util"
)

// Copier copies single files.
type Copier struct {
	// Buffers supplies the streaming buffers. Nil uses a default sized pool.
	Buffers *pool.FixedBufferPool
	// WriteTimestampBack sets the source's modification time to the one the
	// destination filesystem actually stored, so a filesystem that rounds
	// timestamps does not make the pair look modified on every run.
	WriteTimestampBack bool
}

// NewCopier returns a Copier with a buffer pool of the given size.
func NewCopier(bufferSize int64, writeTimestampBack bool) *Copier {
	return &Copier{Buffers: pool.NewFixedBuffer(bufferSize), WriteTimestampBack: writeTimestampBack}
}

// Copy copies src to dst, creating dst's parent directories as needed. File
// level problems are reported in the Outcome and never returned as errors.
func (c *Copier) Copy(src, dst string, verify bool) Outcome {
	srcInfo, err := os.Stat(src)
	if err != nil {
		if os.IsNotExist(err) {
			return failure("Source file not found.")
		}
		return failure("Source file can't be read.")
	}
	if !srcInfo.Mode().IsRegular() {
		return failure("Source isn't a file.")
	}
	if !canRead(src) {
		return failure("Source file can't be read.")
	}

	perm := util.WithUserWritePermission(srcInfo.Mode().Perm())

	if err := os.MkdirAll(filepath.Dir(dst), util.UserWritableDirPerms); err != nil {
		plog.Debug("Failed to create destination parent", "path", dst, "error", err)
		return failure("Destination file can't be created.")
	}

	if dstInfo, err := os.Stat(dst); err == nil {
		if !dstInfo.Mode().IsRegular() || !canWrite(dst) {
			return failure("Destination file can't be overwritten.")
		}
	} else {
		f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
		if err != nil {
			plog.Debug("Failed to create destination file", "path", dst, "error", err)
			return failure("Destination file can't be created.")
		}
		f.Close()
	}

	if outcome, ok := c.stream(src, dst, perm); !ok {
		return outcome
	}

	// Timestamps before the epoch are not portable; clamp them.
	mtime := srcInfo.ModTime()
	if mtime.Before(time.Unix(0, 0)) {
		mtime = time.Unix(0, 0)
	}
	if err := os.Chtimes(dst, mtime, mtime); err != nil {
		return warning(fmt.Sprintf("Could not set modification time of file '%s'.", dst))
	}

	outcome := copied()
	if verify {
		outcome = c.verify(src, dst)
	}

	if c.WriteTimestampBack {
		c.writeTimestampBack(src, dst)
	}
	return outcome
}

var defaultBuffers = pool.NewFixedBuffer(pool.DefaultCopyBufferSize)

func (c *Copier) buffers() *pool.FixedBufferPool {
	if c.Buffers == nil {
		return defaultBuffers
	}
	return c.Buffers
}

// stream copies the bytes. It returns ok=false with the failing Outcome.
func (c *Copier) stream(src, dst string, perm os.FileMode) (Outcome, bool) {
	in, err := os.Open(src)
	if err != nil {
		return warning(fmt.Sprintf("Could not open input stream for file '%s'.", src)), false
	}
	defer in.Close()

	// O_TRUNC clears the existing destination.
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return warning(fmt.Sprintf("Could not open output stream for file '%s'.", dst)), false
	}
	defer out.Close() // Ensure closed on error.

	if err := out.Chmod(perm); err != nil {
		plog.Debug("Failed to set permissions on destination file", "path", dst, "error", err)
	}

	buffers := c.buffers()
	bufPtr := buffers.Get()
	defer buffers.Put(bufPtr)

	if _, err := io.CopyBuffer(out, in, *bufPtr); err != nil {
		return failure(fmt.Sprintf("Could not copy file contents: %v", err)), false
	}

	// Close before setting timestamps, a later flush would bump the mtime.
	if err := out.Close(); err != nil {
		return failure(fmt.Sprintf("Could not close destination file: %v", err)), false
	}
	return Outcome{}, true
}

func (c *Copier) verify(src, dst string) Outcome {
	srcSum, err := c.Checksum(src)
	if err != nil {
		return verifyFailed(fmt.Sprintf("Could not checksum source: %v", err))
	}
	dstSum, err := c.Checksum(dst)
	if err != nil {
		return verifyFailed(fmt.Sprintf("Could not checksum destination: %v", err))
	}
	if srcSum != dstSum {
		return verifyFailed(fmt.Sprintf("Checksum mismatch: %08x != %08x", srcSum, dstSum))
	}
	return copied()
}

func (c *Copier) writeTimestampBack(src, dst string) {
	info, err := os.Stat(dst)
	if err != nil {
		plog.Warn("Could not read destination timestamp", "path", dst, "error", err)
		return
	}
	if err := os.Chtimes(src, info.ModTime(), info.ModTime()); err != nil {
		plog.Warn("Could not write timestamp back to source", "path", src, "error", err)
	}
}

// Checksum returns the CRC-32 (IEEE) of the file at path.
func (c *Copier) Checksum(path string) (uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	buffers := c.buffers()
	bufPtr := buffers.Get()
	defer buffers.Put(bufPtr)

	h := crc32.NewIEEE()
	if _, err := io.CopyBuffer(h, f, *bufPtr); err != nil {
		return 0, err
	}
	return h.Sum32(), nil
}
