package history

import (
	"sync"
	"time"

	"kotoba/internal/ingest"
	"kotoba/internal/textnorm"
)

const DefaultCapacity = 5

const labelRunes = 10

type Entry struct {
	Label      string
	Content    string
	InsertedAt time.Time
}

// History keeps the most recent results, newest first. It is safe for
// concurrent use.
type History struct {
	mu       sync.Mutex
	capacity int
	entries  []Entry
	now      func() time.Time
}

func New(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &History{capacity: capacity, now: time.Now}
}

// Record inserts e at the front and evicts the oldest entry beyond capacity.
func (h *History) Record(e Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if e.InsertedAt.IsZero() {
		e.InsertedAt = h.now()
	}
	h.entries = append([]Entry{e}, h.entries...)
	if len(h.entries) > h.capacity {
		h.entries = h.entries[:h.capacity]
	}
}

// Entries returns a copy, most recent first.
func (h *History) Entries() []Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Entry, len(h.entries))
	copy(out, h.entries)
	return out
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = nil
}

// Label names a history entry after its source: the file name for ingested
// files, otherwise the first characters of the text followed by "…".
func Label(doc ingest.Document) string {
	if doc.Origin == ingest.OriginFile && doc.Name != "" {
		return doc.Name
	}
	runes := []rune(textnorm.Normalize(doc.Text))
	if len(runes) <= labelRunes {
		return string(runes) + "…"
	}
	return string(runes[:labelRunes]) + "…"
}
