package session

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/paulschiretz/pgl-dirsync/pkg/buildinfo"
	"github.com/paulschiretz/pgl-dirsync/pkg/plog"
	"github.com/paulschiretz/pgl-dirsync/pkg/runlog"
	"github.com/paulschiretz/pgl-dirsync/pkg/runstate"
)

// fatal writes a debug snapshot of a recovered panic to the run log and
// returns it as an error wrapping ErrFatal.
func (s *Session) fatal(log *runlog.Logger, recovered any) error {
	err := fmt.Errorf("%w: %v", ErrFatal, recovered)
	s.errors.Raise(runstate.ErrorThisDirectory)
	plog.Error("Recovered from panic in synchronization worker", "error", recovered)

	log.Print(runlog.Error, "A fatal error occurred; the program will print debug information and exit.")
	log.Blank()
	log.Print(runlog.Sync, "*** DEBUG INFORMATION START ***")
	log.Printf(runlog.Info, "OS:      %s on %s", runtime.GOOS, runtime.GOARCH)
	log.Printf(runlog.Info, "GO:      %s", runtime.Version())
	log.Printf(runlog.Info, "PROGRAM: %s %s", buildinfo.Name, buildinfo.Version)
	log.Printf(runlog.Info, "ERROR:   %v", recovered)
	for _, line := range strings.Split(strings.TrimSpace(string(debug.Stack())), "\n") {
		log.Printf(runlog.Info, "\t%s", strings.TrimSpace(line))
	}
	log.Print(runlog.Sync, "*** DEBUG INFORMATION END ***")
	log.Blank()
	log.Print(runlog.Info, "Please try to reproduce the error and report it together with this debug information.")
	log.Print(runlog.Info, "Exiting...")

	if s.opts.Alerter != nil {
		s.opts.Alerter.Alert(fmt.Sprintf("%s: %v", buildinfo.Name, err))
	}
	return err
}
