// Package preflight validates the source and destination of a directory
// definition before any file is touched. The checks are stateless and never
// change the filesystem.
package preflight

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrNoSource means the source path is empty.
	ErrNoSource = errors.New("no source directory specified")
	// ErrSourceNotDir means the source does not exist or is not a directory.
	ErrSourceNotDir = errors.New("source directory doesn't exist or isn't a directory")
	// ErrNoDestination means the destination path is empty.
	ErrNoDestination = errors.New("no destination directory specified")
	// ErrDestinationNotDir means the destination exists but is not a directory.
	ErrDestinationNotDir = errors.New("destination directory isn't a directory")
	// ErrNested means the destination lies inside the source tree.
	ErrNested = errors.New("destination directory is inside the source directory")
)

// CheckSourceAccessible validates that srcPath is set, exists and is a directory.
func CheckSourceAccessible(srcPath string) error {
	if srcPath == "" {
		return ErrNoSource
	}
	info, err := os.Stat(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrSourceNotDir, srcPath)
		}
		return fmt.Errorf("%w: cannot stat %s: %v", ErrSourceNotDir, srcPath, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrSourceNotDir, srcPath)
	}
	return nil
}

// CheckDestinationAccessible validates that dstPath is set and, if it exists,
// is a directory. A missing destination is fine; it is created on first copy.
// On Windows the drive or share of the path must exist.
func CheckDestinationAccessible(dstPath string) error {
	if dstPath == "" {
		return ErrNoDestination
	}
	if err := checkVolumeExists(dstPath); err != nil {
		return err
	}
	info, err := os.Stat(dstPath)
	if os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return fmt.Errorf("cannot access destination path %s: %w", dstPath, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrDestinationNotDir, dstPath)
	}
	return nil
}

// CheckPathNesting rejects a destination inside the source. A recursive run
// would otherwise copy the destination into itself.
func CheckPathNesting(srcPath, dstPath string) error {
	src, err := filepath.Abs(srcPath)
	if err != nil {
		return fmt.Errorf("failed to resolve source path %s: %w", srcPath, err)
	}
	dst, err := filepath.Abs(dstPath)
	if err != nil {
		return fmt.Errorf("failed to resolve destination path %s: %w", dstPath, err)
	}
	if caseInsensitiveFS {
		src, dst = strings.ToLower(src), strings.ToLower(dst)
	}
	rel, err := filepath.Rel(src, dst)
	if err != nil {
		return nil // Different volumes.
	}
	if rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))) {
		return fmt.Errorf("%w: %s", ErrNested, dstPath)
	}
	return nil
}
