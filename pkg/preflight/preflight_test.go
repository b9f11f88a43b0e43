package preflight

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestCheckDestinationAccessible(t *testing.T) {
	t.Run("Happy Path - Destination Exists", func(t *testing.T) {
		if err := CheckDestinationAccessible(t.TempDir()); err != nil {
			t.Errorf("expected no error for existing directory, but got: %v", err)
		}
	})

	t.Run("Happy Path - Destination Does Not Exist", func(t *testing.T) {
		dst := filepath.Join(t.TempDir(), "new", "deep")
		if err := CheckDestinationAccessible(dst); err != nil {
			t.Errorf("expected no error for a missing destination, but got: %v", err)
		}
	})

	t.Run("Error - Destination Is a File", func(t *testing.T) {
		dstFile := filepath.Join(t.TempDir(), "target.txt")
		if err := os.WriteFile(dstFile, []byte("i am a file"), 0644); err != nil {
			t.Fatalf("failed to create test file: %v", err)
		}
		err := CheckDestinationAccessible(dstFile)
		if !errors.Is(err, ErrDestinationNotDir) {
			t.Errorf("expected ErrDestinationNotDir, but got: %v", err)
		}
	})

	t.Run("Error - Empty", func(t *testing.T) {
		if err := CheckDestinationAccessible(""); !errors.Is(err, ErrNoDestination) {
			t.Errorf("expected ErrNoDestination, but got: %v", err)
		}
	})
}

func TestCheckSourceAccessible(t *testing.T) {
	t.Run("Happy Path - Source is a directory", func(t *testing.T) {
		if err := CheckSourceAccessible(t.TempDir()); err != nil {
			t.Errorf("expected no error for existing directory, but got: %v", err)
		}
	})

	t.Run("Error - Source does not exist", func(t *testing.T) {
		err := CheckSourceAccessible(filepath.Join(t.TempDir(), "nonexistent"))
		if !errors.Is(err, ErrSourceNotDir) {
			t.Errorf("expected ErrSourceNotDir, but got: %v", err)
		}
	})

	t.Run("Error - Source is a file", func(t *testing.T) {
		srcFile := filepath.Join(t.TempDir(), "source.txt")
		if err := os.WriteFile(srcFile, []byte("i am a file"), 0644); err != nil {
			t.Fatalf("failed to create test file: %v", err)
		}
		if err := CheckSourceAccessible(srcFile); !errors.Is(err, ErrSourceNotDir) {
			t.Errorf("expected ErrSourceNotDir, but got: %v", err)
		}
	})

	t.Run("Error - Empty", func(t *testing.T) {
		if err := CheckSourceAccessible(""); !errors.Is(err, ErrNoSource) {
			t.Errorf("expected ErrNoSource, but got: %v", err)
		}
	})
}

func TestCheckPathNesting(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")

	testCases := []struct {
		name    string
		dst     string
		wantErr bool
	}{
		{"Sibling", filepath.Join(root, "dst"), false},
		{"SiblingWithCommonPrefix", filepath.Join(root, "src-mirror"), false},
		{"Parent", root, false},
		{"Same", src, true},
		{"Child", filepath.Join(src, "mirror"), true},
		{"Grandchild", filepath.Join(src, "a", "b"), true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := CheckPathNesting(src, tc.dst)
			if (err != nil) != tc.wantErr {
				t.Fatalf("CheckPathNesting(%s, %s) error = %v, wantErr %v", src, tc.dst, err, tc.wantErr)
			}
			if err != nil && !errors.Is(err, ErrNested) {
				t.Errorf("expected ErrNested, got %v", err)
			}
		})
	}
}
