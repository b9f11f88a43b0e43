package runlog

import "sync"

// MemorySink keeps entries in memory.
type MemorySink struct {
	mu      sync.Mutex
	entries []Entry
}

func (s *MemorySink) Write(e Entry) error {
	s.mu.Lock()
	s.entries = append(s.entries, e)
	s.mu.Unlock()
	return nil
}

func (s *MemorySink) Close() error {
	return nil
}

// Entries returns a copy of all entries written so far.
func (s *MemorySink) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Messages returns the messages of all entries written so far.
func (s *MemorySink) Messages() []string {
	entries := s.Entries()
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Message
	}
	return out
}

// WithStyle returns the messages written with the given style.
func (s *MemorySink) WithStyle(style Style) []string {
	var out []string
	for _, e := range s.Entries() {
		if e.Style == style {
			out = append(out, e.Message)
		}
	}
	return out
}
