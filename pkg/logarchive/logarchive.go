// Package logarchive keeps a compressed copy of a run log before a new run
// truncates it.
package logarchive

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"

	"github.com/paulschiretz/pgl-dirsync/pkg/plog"
	"github.com/paulschiretz/pgl-dirsync/pkg/pool"
)

// archiveTimeLayout is appended to the log name, e.g. "sync.log.20240131-235959.gz".
const archiveTimeLayout = "20060102-150405"

// ArchiveName returns the archive path for logPath, stamped with the log's
// modification time.
func ArchiveName(logPath string, format Format, info os.FileInfo) string {
	return logPath + "." + info.ModTime().Format(archiveTimeLayout) + format.Extension()
}

// Archive compresses the log at logPath into a sibling file and returns its path.
// Nothing is written for Format None, for a missing log or for an empty log;
// the returned path is then empty.
func Archive(logPath string, format Format, buffers *pool.FixedBufferPool) (archivePath string, err error) {
	if format == None || format == "" {
		return "", nil
	}
	if _, ok := formatToExtension[format]; !ok {
		return "", fmt.Errorf("unsupported log archive format: %s", format)
	}

	info, err := os.Stat(logPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("cannot stat log file %s: %w", logPath, err)
	}
	if !info.Mode().IsRegular() || info.Size() == 0 {
		return "", nil
	}

	in, err := os.Open(logPath)
	if err != nil {
		return "", fmt.Errorf("failed to open log file %s: %w", logPath, err)
	}
	defer in.Close()

	archivePath = ArchiveName(logPath, format, info)
	// Write to a temp file in the same directory so a crash never leaves a truncated archive.
	tmp, err := os.CreateTemp(filepath.Dir(archivePath), filepath.Base(archivePath)+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary archive: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	bufWriter := bufio.NewWriter(tmp)

	var compressed io.WriteCloser
	switch format {
	case Gzip:
		compressed = pgzip.NewWriter(bufWriter)
	case Zstd:
		zw, zerr := zstd.NewWriter(bufWriter)
		if zerr != nil {
			return "", fmt.Errorf("failed to create zstd writer: %w", zerr)
		}
		compressed = zw
	}

	bufPtr := buffers.Get()
	defer buffers.Put(bufPtr)

	if _, err = io.CopyBuffer(compressed, in, *bufPtr); err != nil {
		compressed.Close()
		return "", fmt.Errorf("failed to compress log file %s: %w", logPath, err)
	}
	if err = compressed.Close(); err != nil {
		return "", fmt.Errorf("compressed writer close failed: %w", err)
	}
	if err = bufWriter.Flush(); err != nil {
		return "", fmt.Errorf("buffer flush failed: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return "", fmt.Errorf("temp file close failed: %w", err)
	}
	if err = os.Rename(tmpPath, archivePath); err != nil {
		return "", fmt.Errorf("failed to move archive into place: %w", err)
	}

	plog.Debug("Archived previous run log", "log", logPath, "archive", archivePath, "format", format)
	return archivePath, nil
}
