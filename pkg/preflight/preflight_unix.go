//go:build !windows

package preflight

const caseInsensitiveFS = false

// checkVolumeExists is a no-op on Unix: there are no drive letters, and a
// missing mount shows up as a missing or empty directory.
func checkVolumeExists(path string) error {
	return nil
}
