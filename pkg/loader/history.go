package loader

import (
	"sort"
	"sync"
	"time"
)

// DefaultHistorySize is how many load records a Service keeps.
const DefaultHistorySize = 50

// Record describes one completed load attempt.
type Record struct {
	Generation uint64    `json:"generation"`
	Source     string    `json:"source"`
	Status     EventType `json:"status"`
	Code       string    `json:"code,omitempty"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	// Duration is the wall time of the attempt in seconds.
	Duration float64 `json:"duration"`
	Lines    int     `json:"lines"`
	Layers   int     `json:"layers"`
	Warnings int     `json:"warnings"`
}

// Totals aggregates the retained records.
type Totals struct {
	Loads         int     `json:"total_loads"`
	Finished      int     `json:"finished"`
	Failed        int     `json:"failed"`
	Cancelled     int     `json:"cancelled"`
	TotalTime     float64 `json:"total_time"`
	LongestLoad   float64 `json:"longest_load"`
	TotalLines    int     `json:"total_lines"`
	TotalWarnings int     `json:"total_warnings"`
}

// History is a bounded log of load attempts, most recent first.
type History struct {
	mu      sync.RWMutex
	records []Record
	size    int
}

func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{size: size}
}

func (h *History) add(r Record) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append([]Record{r}, h.records...)
	if len(h.records) > h.size {
		h.records = h.records[:h.size]
	}
}

// List returns up to limit records after skipping start. order "asc"
// returns oldest first; anything else keeps most recent first. A limit of
// zero or less means no limit.
func (h *History) List(limit, start int, order string) []Record {
	h.mu.RLock()
	out := make([]Record, len(h.records))
	copy(out, h.records)
	h.mu.RUnlock()

	if order == "asc" {
		sort.SliceStable(out, func(i, j int) bool { return out[i].Generation < out[j].Generation })
	}
	if start >= len(out) {
		return []Record{}
	}
	if start > 0 {
		out = out[start:]
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.records)
}

func (h *History) Totals() Totals {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var t Totals
	for _, r := range h.records {
		t.Loads++
		switch r.Status {
		case EventFinished:
			t.Finished++
		case EventFailed:
			t.Failed++
		case EventCancelled:
			t.Cancelled++
		}
		t.TotalTime += r.Duration
		if r.Duration > t.LongestLoad {
			t.LongestLoad = r.Duration
		}
		t.TotalLines += r.Lines
		t.TotalWarnings += r.Warnings
	}
	return t
}

// Reset drops every record.
func (h *History) Reset() {
	h.mu.Lock()
	h.records = nil
	h.mu.Unlock()
}
