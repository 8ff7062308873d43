package correlation

import (
	"sync"
	"time"
)

// RequestRecord is one tracked request keyed by correlation ID.
type RequestRecord struct {
	CorrelationID string
	Operation     string
	Provider      string
	StartedAt     time.Time
	CompletedAt   time.Time
	Duration      time.Duration
	Err           string
}

// RequestTracker records request lifecycles for observability queries.
// It is a process-wide singleton guarded by a mutex.
type RequestTracker struct {
	mu      sync.Mutex
	records map[string]*RequestRecord
	now     func() time.Time
}

// DefaultTracker is the process-wide tracker.
var DefaultTracker = NewRequestTracker()

func NewRequestTracker() *RequestTracker {
	return &RequestTracker{
		records: make(map[string]*RequestRecord),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// TrackStart records the start of a request.
func (t *RequestTracker) TrackStart(cc *Context) {
	if cc == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records[cc.ID] = &RequestRecord{
		CorrelationID: cc.ID,
		Operation:     cc.Operation,
		Provider:      cc.Provider,
		StartedAt:     t.now(),
	}
}

// TrackComplete records completion and duration for a request.
func (t *RequestTracker) TrackComplete(cc *Context, err error) {
	if cc == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[cc.ID]
	if !ok {
		return
	}
	rec.CompletedAt = t.now()
	rec.Duration = rec.CompletedAt.Sub(rec.StartedAt)
	if err != nil {
		rec.Err = err.Error()
	}
}

// Get returns a copy of the record for a correlation ID.
func (t *RequestTracker) Get(id string) (RequestRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[id]
	if !ok {
		return RequestRecord{}, false
	}
	return *rec, true
}

// Len returns the number of tracked records.
func (t *RequestTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}

// Cleanup drops records older than maxAge and returns how many were removed.
// Callers run it periodically with 24h.
func (t *RequestTracker) Cleanup(maxAge time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-maxAge)
	removed := 0
	for id, rec := range t.records {
		if rec.StartedAt.Before(cutoff) {
			delete(t.records, id)
			removed++
		}
	}
	return removed
}
