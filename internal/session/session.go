package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"kotoba/internal/convergence"
	"kotoba/internal/history"
	"kotoba/internal/textnorm"
)

// Session holds the state of one interactive or batch run: the latest
// result, an edit buffer seeded from it, and the recent history.
type Session struct {
	ID      string
	Started time.Time

	mu      sync.Mutex
	history *history.History
	current *convergence.Result
	label   string
	buffer  string
	closed  bool
}

func New(historyCapacity int) *Session {
	return &Session{
		ID:      uuid.NewString(),
		Started: time.Now(),
		history: history.New(historyCapacity),
	}
}

// Apply makes res the current result, resets the edit buffer to its text
// and records it in history.
func (s *Session) Apply(label string, res convergence.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	r := res
	s.current = &r
	s.label = label
	s.buffer = res.Text
	s.history.Record(history.Entry{Label: label, Content: res.Text})
}

// Edit replaces the edit buffer and returns its character count.
func (s *Session) Edit(text string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffer = text
	return textnorm.CanonicalLength(text)
}

// Buffer returns the edit buffer and its character count.
func (s *Session) Buffer() (string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffer, textnorm.CanonicalLength(s.buffer)
}

func (s *Session) Current() (convergence.Result, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return convergence.Result{}, "", false
	}
	return *s.current, s.label, true
}

func (s *Session) History() []history.Entry {
	return s.history.Entries()
}

// Close drops all state. Later calls to Apply are ignored.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.current = nil
	s.label = ""
	s.buffer = ""
	s.history.Clear()
}
