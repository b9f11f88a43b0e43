package pathcopy

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/paulschiretz/pgl-dirsync/pkg/pathlist"
	"github.com/paulschiretz/pgl-dirsync/pkg/pool"
)

// helper to create a file with specific content and mod time.
func createFile(t *testing.T, path, content string, modTime time.Time) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create dir for test file: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}
	if err := os.Chtimes(path, modTime, modTime); err != nil {
		t.Fatalf("failed to set mod time for test file: %v", err)
	}
}

// helper to get file content.
func getFileContent(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read file content from %s: %v", path, err)
	}
	return string(content)
}

// helper to get file mod time.
func getFileModTime(t *testing.T, path string) time.Time {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("failed to get stat for %s: %v", path, err)
	}
	return info.ModTime()
}

func entry(size int64, mtime time.Time) pathlist.Entry {
	return pathlist.Entry{Size: size, ModTime: mtime}
}

func TestPolicyDecide(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	newerLarger := entry(100, base.Add(time.Hour))
	newerSmaller := entry(10, base.Add(time.Hour))
	olderLarger := entry(100, base.Add(-time.Hour))
	dst := entry(50, base)

	testCases := []struct {
		name   string
		policy Policy
		src    pathlist.Entry
		dst    *pathlist.Entry
		want   Mode
	}{
		{"AllWinsOverEverything", Policy{All: true, New: true, Modified: true}, newerLarger, &dst, ModeAll},
		{"AllWithMissingDestination", Policy{All: true, New: true}, newerLarger, nil, ModeAll},
		{"NewWhenDestinationMissing", Policy{New: true, Modified: true}, newerLarger, nil, ModeNew},
		{"NewIgnoresExistingDestination", Policy{New: true}, newerLarger, &dst, ModeNone},
		{"ModifiedBeforeLarger", Policy{Modified: true, Larger: true}, newerLarger, &dst, ModeModified},
		{"LargerWhenNotNewer", Policy{Modified: true, Larger: true}, olderLarger, &dst, ModeLarger},
		{"LargerOnly", Policy{Larger: true}, newerSmaller, &dst, ModeNone},
		{"LargerModified", Policy{LargerModified: true}, newerLarger, &dst, ModeLargerModified},
		{"LargerModifiedNeedsBoth", Policy{LargerModified: true}, olderLarger, &dst, ModeNone},
		{"LargerModifiedNeedsBothSmaller", Policy{LargerModified: true}, newerSmaller, &dst, ModeNone},
		{"LargerModifiedMissingDestination", Policy{LargerModified: true}, newerLarger, nil, ModeNone},
		// Either sibling flag switches the composite rule off, so a file is
		// never counted twice.
		{"LargerModifiedSuppressedByLarger", Policy{Larger: true, LargerModified: true}, newerLarger, &dst, ModeLarger},
		{"LargerModifiedSuppressedByModifiedFlag", Policy{Modified: true, LargerModified: true}, olderLarger, &dst, ModeNone},
		{"NothingEnabled", Policy{}, newerLarger, &dst, ModeNone},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.policy.Decide(tc.src, tc.dst, 0); got != tc.want {
				t.Errorf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestIsNewer(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	testCases := []struct {
		name      string
		src, dst  time.Time
		tolerance int64
		want      bool
	}{
		{"OneSecondWithinTolerance", base.Add(time.Second), base, 1, false},
		{"TwoSecondsBeyondTolerance", base.Add(2 * time.Second), base, 1, true},
		{"OneSecondNoTolerance", base.Add(time.Second), base, 0, true},
		{"SubSecondDiscarded", base.Add(900 * time.Millisecond), base.Add(100 * time.Millisecond), 0, false},
		{"Equal", base, base, 0, false},
		{"Older", base, base.Add(time.Minute), 0, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dst := entry(0, tc.dst)
			if got := IsNewer(entry(0, tc.src), &dst, tc.tolerance); got != tc.want {
				t.Errorf("expected %v, got %v", tc.want, got)
			}
		})
	}

	if IsNewer(entry(0, base), nil, 0) {
		t.Error("expected a missing destination never to be older")
	}
	if IsLarger(entry(10, base), nil) {
		t.Error("expected a missing destination never to be smaller")
	}
}

func TestCopy(t *testing.T) {
	mtime := time.Date(2023, 6, 15, 10, 30, 0, 0, time.Local)

	t.Run("NewFileWithParents", func(t *testing.T) {
		dir := t.TempDir()
		src := filepath.Join(dir, "src", "a.txt")
		dst := filepath.Join(dir, "dst", "deep", "a.txt")
		createFile(t, src, "hello", mtime)

		c := NewCopier(4, false)
		out := c.Copy(src, dst, true)
		if out.Result != Copied {
			t.Fatalf("expected Copied, got %+v", out)
		}
		if got := getFileContent(t, dst); got != "hello" {
			t.Errorf("expected content hello, got %q", got)
		}
		if got := getFileModTime(t, dst); !got.Equal(mtime) {
			t.Errorf("expected mtime %v, got %v", mtime, got)
		}
	})

	t.Run("OverwriteTruncates", func(t *testing.T) {
		dir := t.TempDir()
		src := filepath.Join(dir, "a.txt")
		dst := filepath.Join(dir, "b.txt")
		createFile(t, src, "short", mtime)
		createFile(t, dst, "much longer old content", mtime.Add(-time.Hour))

		out := (&Copier{}).Copy(src, dst, false)
		if !out.IsCopied() {
			t.Fatalf("expected copy, got %+v", out)
		}
		if got := getFileContent(t, dst); got != "short" {
			t.Errorf("expected destination to be replaced, got %q", got)
		}
	})

	t.Run("SourceErrors", func(t *testing.T) {
		dir := t.TempDir()
		testCases := []struct {
			name   string
			src    string
			reason string
		}{
			{"Missing", filepath.Join(dir, "missing.txt"), "Source file not found."},
			{"Directory", dir, "Source isn't a file."},
		}
		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				out := (&Copier{}).Copy(tc.src, filepath.Join(dir, "out.txt"), false)
				if out.Result != Error || out.Reason != tc.reason {
					t.Errorf("expected Error %q, got %+v", tc.reason, out)
				}
			})
		}
	})

	t.Run("DestinationIsDirectory", func(t *testing.T) {
		dir := t.TempDir()
		src := filepath.Join(dir, "a.txt")
		createFile(t, src, "x", mtime)
		dst := filepath.Join(dir, "taken")
		if err := os.Mkdir(dst, 0755); err != nil {
			t.Fatal(err)
		}
		out := (&Copier{}).Copy(src, dst, false)
		if out.Result != Error || out.Reason != "Destination file can't be overwritten." {
			t.Errorf("expected overwrite error, got %+v", out)
		}
	})

	t.Run("ReadOnlyDestination", func(t *testing.T) {
		if runtime.GOOS != "windows" && os.Geteuid() == 0 {
			t.Skip("root can write read-only files")
		}
		dir := t.TempDir()
		src := filepath.Join(dir, "a.txt")
		dst := filepath.Join(dir, "b.txt")
		createFile(t, src, "new", mtime)
		createFile(t, dst, "old", mtime)
		if err := os.Chmod(dst, 0444); err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { os.Chmod(dst, 0644) })

		out := (&Copier{}).Copy(src, dst, false)
		if out.Result != Error || out.Reason != "Destination file can't be overwritten." {
			t.Errorf("expected overwrite error, got %+v", out)
		}
		if got := getFileContent(t, dst); got != "old" {
			t.Errorf("expected destination untouched, got %q", got)
		}
	})

	t.Run("PreEpochTimestampClamped", func(t *testing.T) {
		dir := t.TempDir()
		src := filepath.Join(dir, "a.txt")
		dst := filepath.Join(dir, "b.txt")
		createFile(t, src, "x", time.Unix(-3600, 0))

		out := (&Copier{}).Copy(src, dst, false)
		if !out.IsCopied() {
			t.Fatalf("expected copy, got %+v", out)
		}
		if got := getFileModTime(t, dst); got.Before(time.Unix(0, 0)) {
			t.Errorf("expected mtime clamped to the epoch, got %v", got)
		}
	})

	t.Run("WriteTimestampBack", func(t *testing.T) {
		dir := t.TempDir()
		src := filepath.Join(dir, "a.txt")
		dst := filepath.Join(dir, "b.txt")
		createFile(t, src, "x", mtime.Add(123*time.Millisecond))

		c := &Copier{WriteTimestampBack: true}
		if out := c.Copy(src, dst, false); !out.IsCopied() {
			t.Fatalf("expected copy, got %+v", out)
		}
		if s, d := getFileModTime(t, src), getFileModTime(t, dst); !s.Equal(d) {
			t.Errorf("expected source mtime %v to equal destination mtime %v", s, d)
		}
	})
}

func TestChecksum(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a")
	b := filepath.Join(dir, "b")
	createFile(t, a, "123456789", time.Now())
	createFile(t, b, "123456780", time.Now())

	c := &Copier{Buffers: pool.NewFixedBuffer(3)}
	sum, err := c.Checksum(a)
	if err != nil {
		t.Fatalf("Checksum failed: %v", err)
	}
	// CRC-32/IEEE check value.
	if sum != 0xCBF43926 {
		t.Errorf("expected 0xCBF43926, got %08x", sum)
	}
	other, _ := c.Checksum(b)
	if other == sum {
		t.Error("expected different checksums for different content")
	}
	if _, err := c.Checksum(filepath.Join(dir, "missing")); err == nil {
		t.Error("expected error for a missing file")
	}
}

func TestModeLabelsAndJSON(t *testing.T) {
	want := map[Mode]string{
		ModeAll:            "Copy All",
		ModeNew:            "Copy New",
		ModeModified:       "Copy Modified",
		ModeLarger:         "Copy Larger",
		ModeLargerModified: "Copy Larger&Modified",
	}
	for _, m := range Modes {
		if m.Label() != want[m] {
			t.Errorf("expected label %q, got %q", want[m], m.Label())
		}
	}

	data, err := json.Marshal(ModeLargerModified)
	if err != nil || string(data) != `"larger-modified"` {
		t.Errorf("unexpected JSON %s (%v)", data, err)
	}
	var m Mode
	if err := json.Unmarshal([]byte(`"NEW"`), &m); err != nil || m != ModeNew {
		t.Errorf("expected ModeNew, got %s (%v)", m, err)
	}
	if _, err := ParseMode("bigger"); err == nil {
		t.Error("expected error for unknown mode")
	}
}
