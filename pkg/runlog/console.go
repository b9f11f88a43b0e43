package runlog

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
)

// ConsoleSink renders entries for a terminal, one line per entry.
type ConsoleSink struct {
	mu     sync.Mutex
	w      io.Writer
	styles map[Style]lipgloss.Style
}

// NewConsoleSink returns a sink writing to w. Colours are used only when w is
// a terminal and NO_COLOR is not set.
func NewConsoleSink(w io.Writer) *ConsoleSink {
	return newConsoleSink(w, useColor(w))
}

func useColor(w io.Writer) bool {
	if termenv.EnvNoColor() {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func newConsoleSink(w io.Writer, color bool) *ConsoleSink {
	r := lipgloss.NewRenderer(w)
	if !color {
		r.SetColorProfile(termenv.Ascii)
	}

	styles := map[Style]lipgloss.Style{
		Plain:   r.NewStyle(),
		Sync:    r.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#005F87", Dark: "#5FD7FF"}),
		Dir:     r.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#00005F", Dark: "#87AFFF"}),
		Subdir:  r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#00005F", Dark: "#87AFFF"}),
		Info:    r.NewStyle(),
		Config:  r.NewStyle().Faint(true),
		Action:  r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#005F00", Dark: "#87D787"}),
		Warning: r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#875F00", Dark: "#FFD75F"}),
		Error:   r.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#AF0000", Dark: "#FF5F5F"}),
	}
	return &ConsoleSink{w: w, styles: styles}
}

func (s *ConsoleSink) Write(e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	style, ok := s.styles[e.Style]
	if !ok || e.Message == "" {
		_, err := fmt.Fprintln(s.w, e.Message)
		return err
	}
	_, err := fmt.Fprintln(s.w, style.Render(e.Message))
	return err
}

// Close is a no-op; the writer belongs to the caller.
func (s *ConsoleSink) Close() error {
	return nil
}
