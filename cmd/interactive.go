package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/paulschiretz/pgl-dirsync/pkg/plog"
	"github.com/paulschiretz/pgl-dirsync/pkg/runstate"
	"github.com/paulschiretz/pgl-dirsync/pkg/session"
)

// runControl is the part of a session the interactive controller drives.
type runControl interface {
	Pause()
	Stop()
	IsRunning() bool
	State() runstate.State
	Progress() session.Progress
}

// controller reads single letter commands from the terminal while a run is active:
// p pauses or resumes, s stops, q lets the run finish and skips anything that would follow it.
type controller struct {
	run runControl
	in  io.Reader
	out io.Writer

	quit atomic.Bool
	done chan struct{}

	mu     sync.Mutex
	answer chan string
}

func newController(run runControl, in io.Reader, out io.Writer) *controller {
	c := &controller{run: run, in: in, out: out, done: make(chan struct{})}
	fmt.Fprintln(out, "Commands: p = pause/resume, s = stop, q = quit after this run")
	return c
}

// listen consumes input until it ends. A line is an answer if confirm is waiting
// for one, a command otherwise.
func (c *controller) listen() {
	defer close(c.done)
	scanner := bufio.NewScanner(c.in)
	for scanner.Scan() {
		line := strings.ToLower(strings.TrimSpace(scanner.Text()))

		c.mu.Lock()
		answer := c.answer
		c.answer = nil
		c.mu.Unlock()
		if answer != nil {
			answer <- line
			continue
		}
		c.handle(line)
	}
}

func (c *controller) handle(cmd string) {
	if (cmd == "p" || cmd == "s") && !c.run.IsRunning() {
		fmt.Fprintln(c.out, "No synchronization is running.")
		return
	}
	switch cmd {
	case "p":
		c.run.Pause()
		p := c.run.Progress()
		plog.Info("Run "+c.run.State().String(),
			"directory", p.Directory,
			"progress", fmt.Sprintf("%d/%d", p.Overall, p.OverallMax),
			"file", p.Name)
	case "s":
		plog.Info("Stopping synchronization")
		c.run.Stop()
	case "q":
		plog.Info("Quitting after this run")
		c.quit.Store(true)
	case "":
	default:
		fmt.Fprintf(c.out, "Unknown command %q. Commands: p = pause/resume, s = stop, q = quit after this run\n", cmd)
	}
}

// quitRequested reports whether q was entered. A nil controller never quits.
func (c *controller) quitRequested() bool {
	return c != nil && c.quit.Load()
}

// confirm asks a yes/no question through the listener. It returns defaultYes
// on an empty answer and false once the input has ended.
func (c *controller) confirm(prompt string, defaultYes bool) bool {
	ch := make(chan string, 1)
	c.mu.Lock()
	c.answer = ch
	c.mu.Unlock()
	fmt.Fprintf(c.out, "%s %s: ", prompt, answerHint(defaultYes))

	select {
	case response := <-ch:
		return parseAnswer(response, defaultYes)
	case <-c.done:
		return false
	}
}
