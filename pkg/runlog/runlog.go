// Package runlog writes the narrative of a synchronization run: banners,
// configuration summaries, per-file actions and the final outcome.
//
// Every message carries a Style. A Logger fans each message out to its sinks;
// a directory logger created with Tee also forwards to the run's global logger,
// so the global log holds the complete narrative while a directory's own log
// holds only that directory's part.
package runlog

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/paulschiretz/pgl-dirsync/pkg/plog"
)

// Entry is a single run log line.
type Entry struct {
	Time    time.Time `json:"time"`
	Style   Style     `json:"style"`
	Message string    `json:"message"`
}

// Sink receives run log entries.
type Sink interface {
	Write(e Entry) error
	Close() error
}

// Logger stamps messages with the run clock and writes them to its sinks.
// A nil *Logger discards everything.
type Logger struct {
	mu     sync.Mutex
	clock  clockwork.Clock
	sinks  []Sink
	parent *Logger
}

// New returns a Logger writing to sinks. A nil clock means the real clock.
func New(clock clockwork.Clock, sinks ...Sink) *Logger {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Logger{clock: clock, sinks: sinks}
}

// Tee returns a child logger that writes to sinks and forwards every entry to l.
// Closing the child closes only its own sinks.
func (l *Logger) Tee(sinks ...Sink) *Logger {
	if l == nil {
		return New(nil, sinks...)
	}
	return &Logger{clock: l.clock, sinks: sinks, parent: l}
}

// AddSink attaches another sink.
func (l *Logger) AddSink(s Sink) {
	if l == nil || s == nil {
		return
	}
	l.mu.Lock()
	l.sinks = append(l.sinks, s)
	l.mu.Unlock()
}

// Print writes msg with the given style.
func (l *Logger) Print(style Style, msg string) {
	if l == nil {
		return
	}
	l.write(Entry{Time: l.clock.Now(), Style: style, Message: msg})
}

// Printf formats and writes a message with the given style.
func (l *Logger) Printf(style Style, format string, args ...any) {
	l.Print(style, fmt.Sprintf(format, args...))
}

// Blank writes an empty plain line.
func (l *Logger) Blank() {
	l.Print(Plain, "")
}

func (l *Logger) write(e Entry) {
	l.mu.Lock()
	for _, s := range l.sinks {
		if err := s.Write(e); err != nil {
			plog.Warn("Failed to write run log entry", "error", err)
		}
	}
	l.mu.Unlock()

	if l.parent != nil {
		l.parent.write(e)
	}
}

// Close closes the logger's own sinks. The parent is not closed.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []error
	for _, s := range l.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	l.sinks = nil
	return errors.Join(errs...)
}
