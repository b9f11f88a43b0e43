package lockfile

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/paulschiretz/pgl-dirsync/pkg/util"
)

// useFakeClock swaps the package clock for the duration of the test.
func useFakeClock(t *testing.T) *clockwork.FakeClock {
	t.Helper()
	fake := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	original := clock
	clock = fake
	t.Cleanup(func() { clock = original })
	return fake
}

func writeHolder(t *testing.T, path string, holder Holder) {
	t.Helper()
	data, _ := json.Marshal(holder)
	if err := os.WriteFile(path, data, util.UserWritableFilePerms); err != nil {
		t.Fatalf("failed to write lock file: %v", err)
	}
}

func TestPathFor(t *testing.T) {
	got := PathFor(filepath.Join("some", "dir", "dirsync.xml"))
	want := filepath.Join("some", "dir", ".~dirsync.xml.lock")
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestAcquireAndRelease(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "dirsync.xml")

	lock, err := Acquire(context.Background(), configPath, "sync")
	if err != nil {
		t.Fatalf("expected to acquire lock, but got error: %v", err)
	}
	if _, err := os.Stat(lock.Path()); err != nil {
		t.Fatalf("lock file was not created: %v", err)
	}

	holder, err := read(lock.Path())
	if err != nil {
		t.Fatal(err)
	}
	if holder.Owner != "sync" || holder.PID != int64(os.Getpid()) || holder.Nonce == "" {
		t.Errorf("unexpected lock content %+v", holder)
	}

	lock.Release()
	lock.Release()
	if _, err := os.Stat(lock.Path()); !os.IsNotExist(err) {
		t.Fatal("lock file was not removed after releasing lock")
	}
}

func TestContention(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "dirsync.xml")

	lock1, err := Acquire(context.Background(), configPath, "sync")
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	defer lock1.Release()

	_, err = Acquire(context.Background(), configPath, "edit")
	var lockErr *ErrLockActive
	if !errors.As(err, &lockErr) {
		t.Fatalf("expected *ErrLockActive, got %T: %v", err, err)
	}
	if lockErr.Owner != "sync" {
		t.Errorf("expected owner 'sync', got %q", lockErr.Owner)
	}

	// A different configuration in the same directory is independent.
	other, err := Acquire(context.Background(), filepath.Join(filepath.Dir(configPath), "other.json"), "sync")
	if err != nil {
		t.Fatalf("expected independent lock for another configuration, got %v", err)
	}
	other.Release()
}

func TestStaleLockTakeover(t *testing.T) {
	fake := useFakeClock(t)
	configPath := filepath.Join(t.TempDir(), "dirsync.xml")

	writeHolder(t, PathFor(configPath), Holder{
		PID:       12345,
		Hostname:  "stale-host",
		Owner:     "crashed",
		Heartbeat: fake.Now().Add(-(staleTimeout + time.Minute)),
		Nonce:     "stale",
	})

	lock, err := Acquire(context.Background(), configPath, "sync")
	if err != nil {
		t.Fatalf("failed to take over stale lock: %v", err)
	}
	defer lock.Release()

	holder, err := read(lock.Path())
	if err != nil {
		t.Fatal(err)
	}
	if holder.Owner != "sync" {
		t.Errorf("expected owner 'sync', got %q", holder.Owner)
	}
}

func TestCorruptLockIsTakenOver(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "dirsync.xml")
	if err := os.WriteFile(PathFor(configPath), []byte("{corrupt"), util.UserWritableFilePerms); err != nil {
		t.Fatal(err)
	}

	lock, err := Acquire(context.Background(), configPath, "sync")
	if err != nil {
		t.Fatalf("failed to take over corrupt lock: %v", err)
	}
	lock.Release()
}

func TestStaleLockContention(t *testing.T) {
	fake := useFakeClock(t)
	configPath := filepath.Join(t.TempDir(), "dirsync.xml")
	writeHolder(t, PathFor(configPath), Holder{
		PID:       12345,
		Hostname:  "stale-host",
		Heartbeat: fake.Now().Add(-(staleTimeout + time.Minute)),
	})

	var wg sync.WaitGroup
	acquired := make(chan *Lock, 2)
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if lock, err := Acquire(context.Background(), configPath, "contender"); err == nil {
				acquired <- lock
			}
		}()
	}
	wg.Wait()
	close(acquired)

	if len(acquired) != 1 {
		t.Fatalf("expected exactly one process to acquire the lock, but %d succeeded", len(acquired))
	}
	for lock := range acquired {
		lock.Release()
	}
}

func TestHeartbeatKeepsLockFresh(t *testing.T) {
	fake := useFakeClock(t)
	configPath := filepath.Join(t.TempDir(), "dirsync.xml")

	lock, err := Acquire(context.Background(), configPath, "sync")
	if err != nil {
		t.Fatal(err)
	}
	defer lock.Release()

	// Let two and a half stale periods pass in heartbeat steps.
	for range 7 {
		fake.BlockUntil(1)
		fake.Advance(heartbeatInterval)
	}

	want := fake.Now()
	deadline := time.Now().Add(2 * time.Second)
	for {
		holder, err := read(lock.Path())
		if err == nil && holder.Heartbeat.Equal(want) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("heartbeat was not refreshed, last content %+v (%v)", holder, err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	_, err = Acquire(context.Background(), configPath, "edit")
	var lockErr *ErrLockActive
	if !errors.As(err, &lockErr) {
		t.Fatalf("expected the refreshed lock to stay active, got %v", err)
	}
}

func TestAcquireCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Acquire(ctx, filepath.Join(t.TempDir(), "dirsync.xml"), "sync"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.lock")

	t.Run("Valid File", func(t *testing.T) {
		writeHolder(t, path, Holder{PID: 1, Owner: "valid"})
		holder, err := read(path)
		if err != nil {
			t.Fatalf("failed to read valid content: %v", err)
		}
		if holder.Owner != "valid" {
			t.Errorf("expected owner 'valid', got %q", holder.Owner)
		}
	})

	t.Run("Persistently Empty", func(t *testing.T) {
		if err := os.WriteFile(path, nil, util.UserWritableFilePerms); err != nil {
			t.Fatal(err)
		}
		if _, err := read(path); !errors.Is(err, ErrCorruptLockFile) {
			t.Errorf("expected ErrCorruptLockFile, got %v", err)
		}
	})

	t.Run("Transiently Empty", func(t *testing.T) {
		if err := os.WriteFile(path, nil, util.UserWritableFilePerms); err != nil {
			t.Fatal(err)
		}
		go func() {
			time.Sleep(20 * time.Millisecond)
			data, _ := json.Marshal(Holder{PID: 2, Owner: "transient"})
			if err := os.WriteFile(path, data, util.UserWritableFilePerms); err != nil {
				t.Logf("error writing final content: %v", err)
			}
		}()
		holder, err := read(path)
		if err != nil {
			t.Fatalf("failed to read transiently empty file: %v", err)
		}
		if holder.Owner != "transient" {
			t.Errorf("expected owner 'transient', got %q", holder.Owner)
		}
	})
}

func TestRemoveLeftovers(t *testing.T) {
	fake := useFakeClock(t)
	dir := t.TempDir()
	path := filepath.Join(dir, ".~dirsync.xml.lock")

	oldTmp := path + ".123.tmp"
	newTmp := path + ".456.tmp"
	for _, p := range []string{oldTmp, newTmp} {
		if err := os.WriteFile(p, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	oldTime := fake.Now().Add(-(staleTimeout + time.Minute))
	if err := os.Chtimes(oldTmp, oldTime, oldTime); err != nil {
		t.Fatal(err)
	}
	newTime := fake.Now()
	if err := os.Chtimes(newTmp, newTime, newTime); err != nil {
		t.Fatal(err)
	}

	removeLeftovers(path)

	if _, err := os.Stat(oldTmp); !os.IsNotExist(err) {
		t.Error("expected old temporary file to be deleted")
	}
	if _, err := os.Stat(newTmp); err != nil {
		t.Errorf("expected new temporary file to be kept: %v", err)
	}
}
