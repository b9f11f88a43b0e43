package session

import (
	"fmt"
	"io"
	"sync"
)

// Alerter draws the user's attention to a run that ended with errors.
type Alerter interface {
	Alert(summary string)
}

// BellAlerter rings the terminal bell and prints the summary.
type BellAlerter struct {
	mu sync.Mutex
	W  io.Writer
}

func (b *BellAlerter) Alert(summary string) {
	if b == nil || b.W == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	fmt.Fprintf(b.W, "\a%s\n", summary)
}
