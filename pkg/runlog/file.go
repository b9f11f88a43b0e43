package runlog

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/paulschiretz/pgl-dirsync/pkg/logarchive"
	"github.com/paulschiretz/pgl-dirsync/pkg/plog"
	"github.com/paulschiretz/pgl-dirsync/pkg/pool"
	"github.com/paulschiretz/pgl-dirsync/pkg/util"
)

// timestampLayout prefixes every line of a log file: "[2024.01.31 23:59:59] ".
const timestampLayout = "[2006.01.02 15:04:05] "

var archiveBuffers = pool.NewFixedBuffer(64 * 1024)

// FileSink writes entries as timestamped text lines. Styles are dropped.
type FileSink struct {
	mu   sync.Mutex
	path string
	file *os.File
	w    *bufio.Writer
}

// OpenFile creates or truncates the log at path. Missing parent directories are
// created. An existing log is archived first unless archive is logarchive.None;
// a failed archive is logged and does not prevent the log from being opened.
func OpenFile(path string, archive logarchive.Format) (*FileSink, error) {
	if path == "" {
		return nil, fmt.Errorf("log file path is empty")
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return nil, fmt.Errorf("log file path is a directory: %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), util.UserWritableDirPerms); err != nil {
		return nil, fmt.Errorf("failed to create log directory for %s: %w", path, err)
	}

	if _, err := logarchive.Archive(path, archive, archiveBuffers); err != nil {
		plog.Warn("Failed to archive previous log", "path", path, "error", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, util.UserWritableFilePerms)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	return &FileSink{path: path, file: f, w: bufio.NewWriter(f)}, nil
}

// Path returns the log file path.
func (s *FileSink) Path() string {
	return s.path
}

// Write appends one line and flushes it, so the log is readable while the run
// is still going.
func (s *FileSink) Write(e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return os.ErrClosed
	}
	if _, err := s.w.WriteString(e.Time.Format(timestampLayout) + e.Message + "\n"); err != nil {
		return err
	}
	return s.w.Flush()
}

// Close flushes and closes the file. Closing twice is a no-op.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	flushErr := s.w.Flush()
	closeErr := s.file.Close()
	s.file = nil
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}
