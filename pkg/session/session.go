// Package session runs the enabled directory definitions of a configuration
// one after another and controls the run: pause, stop, progress, the global
// run log and the outcome.
//
// A run happens on a worker goroutine. The caller's context is watched by a
// second goroutine; its cancellation is turned into a cooperative stop, so a
// canceled run still writes its stop banners and summaries before Run returns.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/paulschiretz/pgl-dirsync/pkg/config"
	"github.com/paulschiretz/pgl-dirsync/pkg/dirsync"
	"github.com/paulschiretz/pgl-dirsync/pkg/hints"
	"github.com/paulschiretz/pgl-dirsync/pkg/pathcopy"
	"github.com/paulschiretz/pgl-dirsync/pkg/plog"
	"github.com/paulschiretz/pgl-dirsync/pkg/runlog"
	"github.com/paulschiretz/pgl-dirsync/pkg/runstate"
)

var (
	// ErrAlreadyRunning is returned by Run while another run of the session is active.
	ErrAlreadyRunning = errors.New("a synchronization is already running")
	// ErrFatal is returned after the worker panicked.
	ErrFatal = errors.New("fatal error during synchronization")
)

// Progress is a snapshot of a run's progress.
type Progress struct {
	// Directory is the 1-based index of the definition being processed.
	Directory int
	// Overall runs from 0 to OverallMax = 100 * number of definitions.
	Overall    int
	OverallMax int
	// Current counts processed files of the current definition, up to CurrentMax.
	Current    int
	CurrentMax int
	// Name is the file or directory being processed.
	Name string
}

// Options configure a Session. Every field is optional.
type Options struct {
	// Clock supplies the run start time for wildcards and log timestamps.
	Clock clockwork.Clock
	// Sinks receive the complete run log in addition to the global log file.
	Sinks []runlog.Sink
	// Alerter is notified when a run ends with errors or panics.
	Alerter Alerter
	// Progress observes every file and directory boundary.
	Progress func(Progress)
	// OnStateChange observes the run state.
	OnStateChange func(runstate.State)
	// Exit ends the process for QuitAfterRun and fatal errors. Defaults to os.Exit.
	Exit func(code int)
}

// Result summarizes a run.
type Result struct {
	Mode  Mode
	Level runstate.ErrorLevel
	// Stopped is true if the run was stopped before every definition was processed.
	Stopped bool
	// Directories counts the definitions that were started.
	Directories int
	Totals      dirsync.Counters
	// Disabled lists the definitions a preview found nothing to do for.
	Disabled []string
	// LogFile is the resolved global log path, empty if there is none.
	LogFile string
}

// Session owns a configuration and runs it.
type Session struct {
	cfg    *config.Config
	opts   Options
	ctrl   *runstate.Controller
	errors runstate.ErrorTracker

	mu       sync.Mutex
	progress Progress
}

// New returns a Session for cfg. Runs modify cfg only by disabling
// definitions a preview found nothing to do for.
func New(cfg *config.Config, opts Options) *Session {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Exit == nil {
		opts.Exit = os.Exit
	}
	return &Session{
		cfg:  cfg,
		opts: opts,
		ctrl: runstate.NewController(opts.OnStateChange),
	}
}

// Pause toggles between running and paused.
func (s *Session) Pause() { s.ctrl.Pause() }

// Stop asks the active run to unwind at the next file or directory boundary.
func (s *Session) Stop() { s.ctrl.Stop() }

// IsRunning reports whether a run is active, paused or stopping.
func (s *Session) IsRunning() bool { return s.ctrl.IsRunning() }

// State returns the run state.
func (s *Session) State() runstate.State { return s.ctrl.State() }

// Level returns the error level of the active or last run.
func (s *Session) Level() runstate.ErrorLevel { return s.errors.Level() }

// Progress returns the latest progress snapshot.
func (s *Session) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

func (s *Session) publish(p Progress) {
	s.mu.Lock()
	s.progress = p
	s.mu.Unlock()
	if s.opts.Progress != nil {
		s.opts.Progress(p)
	}
}

// Run processes every enabled definition in order. Problems of single files
// or definitions are logged and reflected in Result.Level; Run returns an
// error only if the run could not start or the worker panicked.
func (s *Session) Run(ctx context.Context, mode Mode) (Result, error) {
	if !s.ctrl.Start() {
		return Result{}, ErrAlreadyRunning
	}
	defer s.ctrl.Finish()

	start := s.opts.Clock.Now()
	result := Result{Mode: mode, LogFile: resolveGlobalLog(s.cfg.LogFile, start)}

	log := runlog.New(s.opts.Clock, s.opts.Sinks...)
	if result.LogFile != "" {
		sink, err := runlog.OpenFile(result.LogFile, s.cfg.LogArchive)
		if err != nil {
			plog.Warn("Global log file could not be created", "path", result.LogFile, "error", err)
			log.Printf(runlog.Warning, "Warning: Log file '%s' could not be created. Global logging has been disabled!", result.LogFile)
			result.LogFile = ""
		} else {
			result.LogFile = sink.Path()
			log.AddSink(sink)
		}
	}
	defer func() {
		if err := log.Close(); err != nil {
			plog.Warn("Failed to close run log", "error", err)
		}
	}()

	done := make(chan struct{})
	var g errgroup.Group
	g.Go(func() (err error) {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				err = s.fatal(log, r)
			}
		}()
		s.work(ctx, mode, log, start, &result)
		return nil
	})
	g.Go(func() error {
		select {
		case <-ctx.Done():
			plog.Debug("Context canceled, stopping synchronization")
			s.ctrl.Stop()
		case <-done:
		}
		return nil
	})
	err := g.Wait()
	result.Level = s.errors.Level()
	if err != nil {
		s.exit(log, 1)
		return result, err
	}

	if s.cfg.Runtime.Quit {
		code := 0
		if result.Level.IsError() {
			code = 1
		}
		s.exit(log, code)
	}
	return result, nil
}

// exit closes the logs before handing over to the exit hook.
func (s *Session) exit(log *runlog.Logger, code int) {
	if err := log.Close(); err != nil {
		plog.Warn("Failed to close run log", "error", err)
	}
	s.opts.Exit(code)
}

func resolveGlobalLog(raw string, t time.Time) string {
	if raw == "" {
		return ""
	}
	path := ExpandTime(raw, t)
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return path
}

func (s *Session) work(ctx context.Context, mode Mode, log *runlog.Logger, start time.Time, result *Result) {
	s.errors.Reset()
	s.publish(Progress{})

	log.Printf(runlog.Sync, "* Started %ssynchronization *", mode.prefix(false))
	log.Blank()
	log.Print(runlog.Info, "Global configuration:")
	log.Printf(runlog.Config, "  Logfile              = \"%s\"", result.LogFile)
	log.Printf(runlog.Config, "  Write TimeStamp back = %t", s.cfg.WriteTimestampBack)
	log.Printf(runlog.Config, "  Max TimeStamp Diff   = %d s", s.cfg.TimestampDiff)
	log.Printf(runlog.Config, "  Skip Symbolic Links  = %t", s.cfg.SkipLinks)
	log.Blank()

	total := s.cfg.NumberToRun()
	log.Printf(runlog.Info, "Number of directories to synchronize = %d", total)

	syncer := &dirsync.Syncer{
		SkipLinks:        s.cfg.SkipLinks,
		ToleranceSeconds: int64(config.ClampTimestampDiff(s.cfg.TimestampDiff)),
		Copier:           pathcopy.NewCopier(int64(s.cfg.BufferSizeKB)*1024, s.cfg.WriteTimestampBack),
		Errors:           &s.errors,
		Signal:           s.ctrl,
	}

	index := 0
	for i := range s.cfg.Directories {
		if !s.cfg.ShouldRun(s.cfg.Directories[i]) {
			continue
		}
		if s.ctrl.IsStopping() {
			result.Stopped = true
			break
		}
		s.errors.NextDirectory()
		index++
		result.Directories++

		syncer.Progress = func(done, count int, name string) {
			pct := 100
			if count > 0 {
				pct = min(done*100/count, 100)
			}
			s.publish(Progress{
				Directory:  index,
				Overall:    (index-1)*100 + pct,
				OverallMax: total * 100,
				Current:    done,
				CurrentMax: count,
				Name:       name,
			})
		}

		counters, stopped := s.runDirectory(ctx, syncer, mode, log, i, index, start, result)
		result.Totals.Add(counters)
		if stopped {
			result.Stopped = true
			break
		}
	}

	s.logOutcome(mode, log)
}

// runDirectory logs the definition's configuration, opens its log and syncs it.
func (s *Session) runDirectory(ctx context.Context, syncer *dirsync.Syncer, mode Mode, log *runlog.Logger, i, index int, start time.Time, result *Result) (dirsync.Counters, bool) {
	d := s.cfg.Directories[i]
	title := fmt.Sprintf("%sirectory #%d '%s'", dirPrefix(mode), index, d.Name)

	job := &dirsync.Job{
		Name:           d.Name,
		Source:         ExpandTime(d.Source, start),
		Destination:    ExpandTime(d.Destination, start),
		WithSubfolders: d.WithSubfolders,
		Verify:         d.Verify,
		Policy:         d.Policy(),
		DeleteFiles:    d.DeleteFiles,
		DeleteDirs:     d.DeleteDirs,
		Preview:        mode == ModePreview,
		Disable: func() {
			s.cfg.Directories[i].Enabled = false
			result.Disabled = append(result.Disabled, d.Name)
		},
	}
	patterns := d.Compile()
	job.FileInclude, job.FileExclude = patterns.FileInclude, patterns.FileExclude
	job.DirInclude, job.DirExclude = patterns.DirInclude, patterns.DirExclude

	log.Blank()
	log.Printf(runlog.Dir, "%s started:", title)
	log.Printf(runlog.Config, "  Source Path      = \"%s\"", job.Source)
	log.Printf(runlog.Config, "  Destination Path = \"%s\"", job.Destination)
	log.Printf(runlog.Config, "  With Subfolders  = %t", d.WithSubfolders)
	log.Printf(runlog.Config, "  Verify           = %t", d.Verify)

	logPath, ok := expandLog(d.LogFile, result.LogFile, d.Name, start)
	if !ok {
		s.errors.Raise(runstate.Warning)
		log.Print(runlog.Warning, "Wildcard '<global>' specified in Logfile but global log not set correctly.")
	}
	log.Printf(runlog.Config, "  Logfile          = \"%s\"", logPath)

	if v := orAll(d.FileInclude); v != "*" {
		log.Printf(runlog.Config, "  Include files    = %s", v)
	}
	if !patterns.FileExclude.IsEmpty() {
		log.Printf(runlog.Config, "  Exclude files    = %s", d.FileExclude)
	}
	if v := orAll(d.DirInclude); v != "*" {
		log.Printf(runlog.Config, "  Include dirs     = %s", v)
	}
	if !patterns.DirExclude.IsEmpty() {
		log.Printf(runlog.Config, "  Exclude dirs     = %s", d.DirExclude)
	}

	log.Blank()
	log.Print(runlog.Info, "  Sync mode:")
	log.Printf(runlog.Config, "    All            = %t", d.CopyAll)
	log.Printf(runlog.Config, "    New            = %t", d.CopyNew)
	log.Printf(runlog.Config, "    Modified       = %t", d.CopyModified)
	log.Printf(runlog.Config, "    Larger         = %t", d.CopyLarger)
	log.Printf(runlog.Config, "    LargerModified = %t", d.CopyLargerModified)
	log.Printf(runlog.Config, "    Delete Files   = %t", d.DeleteFiles)
	log.Printf(runlog.Config, "    Delete Dirs    = %t", d.DeleteDirs)
	log.Blank()

	job.Log = log
	if logPath != "" {
		sink, err := runlog.OpenFile(logPath, s.cfg.LogArchive)
		if err != nil {
			plog.Debug("Directory log could not be created", "path", logPath, "error", err)
			log.Printf(runlog.Warning, "Warning: Log file '%s' could not be created. Logging for directory '%s' has been disabled!", logPath, d.Name)
		} else {
			plog.Debug("Directory log opened", "directory", d.Name, "path", sink.Path())
			job.Log = log.Tee(sink)
			defer job.Log.Close()
		}
	}

	counters, err := syncer.Sync(ctx, job)
	log.Blank()

	stopped := hints.Is(err, dirsync.ErrStopped) || s.ctrl.IsStopping()
	switch {
	case err == nil, hints.IsHint(err):
	case errors.Is(err, dirsync.ErrIncompleteConfiguration):
		s.errors.Raise(runstate.ErrorThisDirectory)
		log.Printf(runlog.Error, "Skipping %sdirectory because of incomplete configuration.", mode.prefix(false))
		log.Printf(runlog.Error, "  %v", err)
		log.Blank()
	default:
		s.errors.Raise(runstate.ErrorThisDirectory)
		log.Printf(runlog.Error, "  ERROR: %v", err)
		log.Blank()
	}

	if stopped {
		log.Printf(runlog.Dir, "%s stopped.", title)
		return counters, true
	}
	log.Printf(runlog.Dir, "%s finished.", title)
	log.Blank()
	return counters, false
}

func (s *Session) logOutcome(mode Mode, log *runlog.Logger) {
	log.Blank()
	switch level := s.errors.Level(); {
	case level.IsError():
		log.Printf(runlog.Error, "* Finished %ssynchronization with errors! *", mode.prefix(false))
		if s.opts.Alerter != nil {
			s.opts.Alerter.Alert(fmt.Sprintf("The %ssynchronization finished with errors. See the log for details.", mode.prefix(false)))
		}
	case level == runstate.Warning:
		log.Printf(runlog.Info, "* Finished %ssynchronization with warnings! *", mode.prefix(false))
	default:
		log.Printf(runlog.Sync, "* Finished %ssynchronization *", mode.prefix(false))
	}
}

// dirPrefix returns the start of "Directory"/"Preview of directory" without the "d".
func dirPrefix(mode Mode) string {
	if mode == ModePreview {
		return "Preview of d"
	}
	return "D"
}

func orAll(s string) string {
	if s == "" {
		return "*"
	}
	return s
}
