// Package lockfile guards a configuration file against concurrent runs.
//
// A run holds a small JSON lock file next to its configuration. The holder
// refreshes the file on a heartbeat; a lock whose heartbeat is older than
// the stale timeout belongs to a crashed process and may be taken over.
package lockfile

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/paulschiretz/pgl-dirsync/pkg/plog"
	"github.com/paulschiretz/pgl-dirsync/pkg/util"
)

// The '~' marks the file as temporary.
const (
	lockPrefix = ".~"
	lockSuffix = ".lock"
)

// Holder is the content of a lock file.
type Holder struct {
	PID       int64     `json:"pid"`
	Hostname  string    `json:"hostname"`
	Owner     string    `json:"owner"`
	Heartbeat time.Time `json:"heartbeat"`
	// Nonce tells racing takeovers apart.
	Nonce string `json:"nonce,omitempty"`
}

// ErrLockActive is returned when another live process holds the lock.
type ErrLockActive struct {
	PID      int64
	Hostname string
	Owner    string
	Age      time.Duration
}

func (e *ErrLockActive) Error() string {
	return fmt.Sprintf("configuration is in use by PID %d on host '%s' (%s), last heartbeat %s ago", e.PID, e.Hostname, e.Owner, e.Age.Truncate(time.Second))
}

// ErrLostRace is returned when another process won the takeover of a stale lock.
var ErrLostRace = errors.New("lost race during stale lock takeover")

// ErrCorruptLockFile is returned when the lock file stays empty or unparseable.
var ErrCorruptLockFile = errors.New("lock file is corrupt or empty")

// Overridden in tests.
var (
	clock             clockwork.Clock = clockwork.NewRealClock()
	heartbeatInterval                 = 1 * time.Minute
	staleTimeout                      = 3 * heartbeatInterval
	retryDelay                        = 100 * time.Millisecond
)

// Lock is a held lock. Release it when the run is over.
type Lock struct {
	mu     sync.Mutex
	path   string
	holder Holder
	stop   context.CancelFunc
	done   chan struct{}
	held   bool
}

// PathFor returns the lock file guarding the configuration at configPath.
func PathFor(configPath string) string {
	dir, name := filepath.Split(configPath)
	return filepath.Join(dir, lockPrefix+name+lockSuffix)
}

// Acquire takes the lock for the configuration at configPath on behalf of
// owner. It returns *ErrLockActive if a live process holds it.
func Acquire(ctx context.Context, configPath, owner string) (*Lock, error) {
	path := PathFor(configPath)

	const maxAttempts = 3
	for range maxAttempts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		lock, err := create(path, owner)
		if err == nil {
			return lock.start(), nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to create lock file: %w", err)
		}

		holder, err := read(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// Released between our create and read.
			continue
		case errors.Is(err, ErrCorruptLockFile):
			plog.Warn("Found corrupt lock file, treating it as stale", "path", path, "error", err)
		case err != nil:
			time.Sleep(retryDelay)
			continue
		default:
			age := clock.Since(holder.Heartbeat)
			if age < staleTimeout {
				return nil, &ErrLockActive{PID: holder.PID, Hostname: holder.Hostname, Owner: holder.Owner, Age: age}
			}
			plog.Warn("Found stale lock, taking it over", "pid", holder.PID, "host", holder.Hostname, "age", age)
		}

		lock, err = takeOver(path, owner)
		if err != nil {
			if errors.Is(err, ErrLostRace) {
				plog.Debug("Lost the race for a stale lock, retrying")
			} else {
				plog.Warn("Failed to take over stale lock, retrying", "error", err)
			}
			time.Sleep(retryDelay)
			continue
		}
		return lock.start(), nil
	}
	return nil, fmt.Errorf("failed to acquire lock after %d attempts", maxAttempts)
}

func newHolder(owner string) (Holder, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return Holder{}, fmt.Errorf("failed to generate nonce: %w", err)
	}
	hostname, err := os.Hostname()
	if err != nil {
		return Holder{}, err
	}
	return Holder{
		PID:       int64(os.Getpid()),
		Hostname:  hostname,
		Owner:     owner,
		Heartbeat: clock.Now().UTC(),
		Nonce:     hex.EncodeToString(nonce),
	}, nil
}

// create relies on O_EXCL: exactly one process can create the file.
func create(path, owner string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, util.UserWritableFilePerms)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	holder, err := newHolder(owner)
	if err == nil {
		err = encode(f, holder)
	}
	if err != nil {
		remove(path)
		return nil, err
	}
	return &Lock{path: path, holder: holder}, nil
}

// takeOver replaces a stale lock atomically and reads it back; the process
// whose nonce survives owns the lock.
func takeOver(path, owner string) (*Lock, error) {
	holder, err := newHolder(owner)
	if err != nil {
		return nil, err
	}
	if err := replace(path, holder); err != nil {
		return nil, err
	}
	current, err := read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read back lock file after takeover: %w", err)
	}
	if current.PID != holder.PID || current.Nonce != holder.Nonce {
		return nil, ErrLostRace
	}
	return &Lock{path: path, holder: holder}, nil
}

func (l *Lock) start() *Lock {
	removeLeftovers(l.path)

	ctx, cancel := context.WithCancel(context.Background())
	l.stop = cancel
	l.done = make(chan struct{})
	l.held = true
	go l.heartbeat(ctx)
	return l
}

func (l *Lock) heartbeat(ctx context.Context) {
	defer close(l.done)
	ticker := clock.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			l.mu.Lock()
			l.holder.Heartbeat = clock.Now().UTC()
			holder := l.holder
			l.mu.Unlock()
			if err := replace(l.path, holder); err != nil {
				plog.Warn("Failed to refresh lock file", "path", l.path, "error", err)
			}
		}
	}
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Release stops the heartbeat and removes the lock file. Further calls are no-ops.
func (l *Lock) Release() {
	l.mu.Lock()
	if !l.held {
		l.mu.Unlock()
		return
	}
	l.held = false
	l.mu.Unlock()

	l.stop()
	<-l.done
	remove(l.path)
}

func remove(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		plog.Warn("Failed to remove lock file", "path", path, "error", err)
	}
}

// replace writes holder to a temporary file in the lock's directory and
// renames it over the lock, so readers never see a partial file.
func replace(path string, holder Holder) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary lock file: %w", err)
	}
	defer func() {
		if err := os.Remove(tmp.Name()); err != nil && !os.IsNotExist(err) {
			plog.Warn("Failed to remove temporary lock file", "path", tmp.Name(), "error", err)
		}
	}()

	if err := encode(tmp, holder); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temporary lock file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move temporary lock file into place: %w", err)
	}
	return nil
}

// removeLeftovers deletes temporary files of crashed heartbeats. Files younger
// than the stale timeout may still be in use and are kept.
func removeLeftovers(path string) {
	matches, err := filepath.Glob(filepath.Join(filepath.Dir(path), filepath.Base(path)+".*.tmp"))
	if err != nil {
		plog.Warn("Failed to look for temporary lock files", "path", path, "error", err)
		return
	}

	threshold := clock.Now().Add(-staleTimeout)
	for _, match := range matches {
		info, err := os.Stat(match)
		if err != nil || !info.ModTime().Before(threshold) {
			continue
		}
		plog.Debug("Removing leftover temporary lock file", "path", match)
		if err := os.Remove(match); err != nil && !os.IsNotExist(err) {
			plog.Warn("Failed to remove leftover temporary lock file", "path", match, "error", err)
		}
	}
}

func encode(w io.Writer, holder Holder) error {
	data, err := json.MarshalIndent(holder, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal lock file: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write lock file: %w", err)
	}
	return nil
}

// read retries a few times: a lock file can be observed empty while its
// creator is still writing it.
func read(path string) (Holder, error) {
	var lastErr error
	for range 3 {
		data, err := os.ReadFile(path)
		if err != nil {
			return Holder{}, err
		}

		var holder Holder
		switch {
		case len(data) == 0:
			lastErr = errors.New("lock file is empty")
		default:
			if lastErr = json.Unmarshal(data, &holder); lastErr == nil {
				return holder, nil
			}
		}
		time.Sleep(50 * time.Millisecond)
	}
	return Holder{}, fmt.Errorf("%w: %v", ErrCorruptLockFile, lastErr)
}
