package telemetry

import (
	"sync"
	"time"
)

// defaultCycleLogSize is how many recent cycles the log retains.
const defaultCycleLogSize = 50

// CycleRecord summarizes one optimization cycle for the status API.
type CycleRecord struct {
	// Number is the monotonically increasing cycle counter.
	Number uint64 `json:"number"`

	// StartedAt is when the cycle began.
	StartedAt time.Time `json:"started_at"`

	// Duration is the wall-clock cycle duration.
	Duration time.Duration `json:"duration"`

	// Status is the cycle outcome (success, error, skipped).
	Status string `json:"status"`

	// Error carries the failure message for unsuccessful cycles.
	Error string `json:"error,omitempty"`

	// Recommendations is how many variables received a recommendation.
	Recommendations int `json:"recommendations"`
}

// CycleLog is a fixed-size in-memory ring of recent cycle records. It is
// safe for concurrent use; the service appends while the API reads.
type CycleLog struct {
	mu      sync.RWMutex
	records []CycleRecord
	next    int
	full    bool
}

// NewCycleLog creates a log retaining the last size records.
func NewCycleLog(size int) *CycleLog {
	if size <= 0 {
		size = defaultCycleLogSize
	}
	return &CycleLog{records: make([]CycleRecord, size)}
}

// Add appends a record, evicting the oldest when full.
func (l *CycleLog) Add(record CycleRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records[l.next] = record
	l.next = (l.next + 1) % len(l.records)
	if l.next == 0 {
		l.full = true
	}
}

// Recent returns the retained records, newest first.
func (l *CycleLog) Recent() []CycleRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	count := l.next
	if l.full {
		count = len(l.records)
	}
	out := make([]CycleRecord, 0, count)
	for i := 0; i < count; i++ {
		idx := (l.next - 1 - i + len(l.records)) % len(l.records)
		out = append(out, l.records[idx])
	}
	return out
}

// Last returns the most recent record, if any.
func (l *CycleLog) Last() (CycleRecord, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.next == 0 && !l.full {
		return CycleRecord{}, false
	}
	idx := (l.next - 1 + len(l.records)) % len(l.records)
	return l.records[idx], true
}
