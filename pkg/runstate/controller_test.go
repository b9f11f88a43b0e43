package runstate

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func TestControllerTransitions(t *testing.T) {
	c := NewController(nil)
	if c.State() != Stop {
		t.Fatalf("expected initial state Stop, got %s", c.State())
	}

	// Pause and Stop are no-ops while stopped.
	c.Pause()
	c.Stop()
	if c.State() != Stop {
		t.Fatalf("expected Stop after pause/stop on idle controller, got %s", c.State())
	}

	if !c.Start() {
		t.Fatal("expected Start to succeed from Stop")
	}
	if c.Start() {
		t.Error("expected a second Start to be ignored")
	}

	c.Pause()
	if c.State() != Pause {
		t.Fatalf("expected Pause, got %s", c.State())
	}
	if c.Start() {
		t.Error("expected Start to be ignored while paused")
	}
	c.Pause()
	if c.State() != Start {
		t.Fatalf("expected Pause to toggle back to Start, got %s", c.State())
	}

	c.Stop()
	if !c.IsStopping() {
		t.Fatalf("expected Stopping, got %s", c.State())
	}
	c.Pause()
	if c.State() != Stopping {
		t.Errorf("expected Pause to be a no-op while stopping, got %s", c.State())
	}
	if c.Start() {
		t.Error("expected Start to be ignored while stopping")
	}

	c.Finish()
	if c.State() != Stop || c.IsRunning() {
		t.Errorf("expected Finish to settle to Stop, got %s", c.State())
	}
}

func TestControllerOnChange(t *testing.T) {
	var mu sync.Mutex
	var seen []State
	c := NewController(func(s State) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})

	c.Start()
	c.Start() // ignored, no notification
	c.Pause()
	c.Pause()
	c.Stop()
	c.Finish()

	want := []State{Start, Pause, Start, Stopping, Stop}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != len(want) {
		t.Fatalf("expected %d notifications, got %v", len(want), seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("notification %d: expected %s, got %s", i, want[i], seen[i])
		}
	}
}

func TestWaitWhilePausedReleasesOnResumeAndStop(t *testing.T) {
	for _, tc := range []struct {
		name    string
		release func(c *Controller)
		stop    bool
	}{
		{"Resume", func(c *Controller) { c.Pause() }, false},
		{"Stop", func(c *Controller) { c.Stop() }, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c := NewController(nil)
			c.Start()
			c.Pause()

			done := make(chan bool)
			go func() {
				done <- Checkpoint(c)
			}()

			select {
			case <-done:
				t.Fatal("checkpoint returned while paused")
			case <-time.After(50 * time.Millisecond):
			}

			tc.release(c)

			select {
			case stopping := <-done:
				if stopping != tc.stop {
					t.Errorf("expected Checkpoint to report stopping=%v, got %v", tc.stop, stopping)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("checkpoint did not return after release")
			}
		})
	}
}

func TestCheckpointNilSignal(t *testing.T) {
	if Checkpoint(nil) {
		t.Error("expected nil signal to never stop")
	}
}

func TestErrorTracker(t *testing.T) {
	var tr ErrorTracker
	if tr.Level() != NoError {
		t.Fatalf("expected NoError, got %s", tr.Level())
	}

	tr.Raise(Warning)
	tr.Raise(NoError)
	if tr.Level() != Warning {
		t.Fatalf("expected level to stay at Warning, got %s", tr.Level())
	}

	tr.Raise(ErrorThisDirectory)
	tr.Raise(Warning)
	if tr.Level() != ErrorThisDirectory {
		t.Fatalf("expected ErrorThisDirectory, got %s", tr.Level())
	}

	tr.NextDirectory()
	if tr.Level() != ErrorOtherDirectory {
		t.Fatalf("expected escalation to ErrorOtherDirectory, got %s", tr.Level())
	}
	tr.Raise(Warning)
	if tr.Level() != ErrorOtherDirectory {
		t.Errorf("expected warning not to downgrade, got %s", tr.Level())
	}

	// A new error in the current directory marks this directory again.
	tr.Raise(ErrorThisDirectory)
	if tr.Level() != ErrorThisDirectory || !tr.Level().IsError() {
		t.Errorf("expected ErrorThisDirectory after a new directory error, got %s", tr.Level())
	}

	tr.Reset()
	if tr.Level() != NoError {
		t.Errorf("expected Reset to clear the level, got %s", tr.Level())
	}

	tr.NextDirectory()
	if tr.Level() != NoError {
		t.Errorf("expected NextDirectory to leave a clean level untouched, got %s", tr.Level())
	}
}

func TestStateJSON(t *testing.T) {
	data, err := json.Marshal(Stopping)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(data) != `"stopping"` {
		t.Errorf("expected \"stopping\", got %s", data)
	}

	var s State
	if err := json.Unmarshal([]byte(`"PAUSE"`), &s); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if s != Pause {
		t.Errorf("expected Pause, got %s", s)
	}
	if err := json.Unmarshal([]byte(`"sleeping"`), &s); err == nil {
		t.Error("expected error for unknown state")
	}
}

func TestParseErrorLevel(t *testing.T) {
	l, err := ParseErrorLevel("Warning")
	if err != nil || l != Warning {
		t.Errorf("expected Warning, got %s (%v)", l, err)
	}
	if _, err := ParseErrorLevel("fatal"); err == nil {
		t.Error("expected error for unknown level")
	}
}
