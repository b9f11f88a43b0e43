package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/paulschiretz/pgl-dirsync/pkg/buildinfo"
	"github.com/paulschiretz/pgl-dirsync/pkg/flagparse"
	"github.com/paulschiretz/pgl-dirsync/pkg/plog"
	"github.com/paulschiretz/pgl-dirsync/pkg/runlog"
	"github.com/paulschiretz/pgl-dirsync/pkg/runstate"
	"github.com/paulschiretz/pgl-dirsync/pkg/session"
)

// Overridden in tests.
var (
	stdin  io.Reader = os.Stdin
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

// RunSync handles the logic for the sync command.
func RunSync(ctx context.Context, flagMap map[string]any) error {
	return runSession(ctx, flagparse.Sync, flagMap)
}

// RunPreview handles the logic for the preview command.
func RunPreview(ctx context.Context, flagMap map[string]any) error {
	return runSession(ctx, flagparse.Preview, flagMap)
}

func runSession(ctx context.Context, command flagparse.Command, flagMap map[string]any) error {
	runConfig, err := loadRunConfig(command, flagMap)
	if err != nil {
		return err
	}

	// Log the Summary
	runConfig.LogSummary()

	if runConfig.NumberToRun() == 0 {
		plog.Warn("No enabled directory definitions to synchronize.", "config", runConfig.Runtime.Path)
		return nil
	}

	release, err := acquireConfigLock(ctx, command, runConfig.Runtime.Path)
	if err != nil {
		return err
	}
	if release == nil {
		return nil
	}
	defer release()

	var sinks []runlog.Sink
	if !runConfig.Runtime.Quiet {
		sinks = append(sinks, runlog.NewConsoleSink(stdout))
	}

	var s *session.Session
	s = session.New(&runConfig, session.Options{
		Sinks:   sinks,
		Alerter: &session.BellAlerter{W: stderr},
		OnStateChange: func(state runstate.State) {
			if s != nil {
				plog.Debug("Run state changed", "state", state, "progress", s.Progress().Overall)
			}
		},
	})

	var controls *controller
	if runConfig.Runtime.Interactive {
		controls = newController(s, stdin, stderr)
		go controls.listen()
	}

	mode := session.ModeSynchronize
	if command == flagparse.Preview {
		mode = session.ModePreview
	}

	result, err := execute(ctx, s, mode)
	if err != nil {
		return err
	}

	if mode == session.ModePreview && runConfig.Runtime.SyncAfter && !result.Stopped && !controls.quitRequested() {
		confirm := PromptForConfirmation
		if controls != nil {
			confirm = controls.confirm
		}
		if n := runConfig.NumberToRun(); n > 0 &&
			confirm(fmt.Sprintf("Synchronize the %d remaining directories now?", n), false) {
			if result, err = execute(ctx, s, session.ModeSynchronize); err != nil {
				return err
			}
		}
	}

	if result.Level.IsError() {
		return fmt.Errorf("%s finished with errors", result.Mode)
	}
	return nil
}

func execute(ctx context.Context, s *session.Session, mode session.Mode) (session.Result, error) {
	startTime := time.Now()
	result, err := s.Run(ctx, mode)
	duration := time.Since(startTime).Round(time.Millisecond)
	if err != nil {
		return result, err
	}
	plog.Info(buildinfo.Name+" "+mode.String()+" finished.",
		"duration", duration,
		"directories", result.Directories,
		"copied", result.Totals.TotalCopied(),
		"files_deleted", result.Totals.FilesDeleted,
		"dirs_deleted", result.Totals.DirsDeleted,
		"level", result.Level,
		"stopped", result.Stopped,
	)
	if len(result.Disabled) > 0 {
		plog.Notice("Disabled for this session, nothing to do", "directories", result.Disabled)
	}
	return result, nil
}
