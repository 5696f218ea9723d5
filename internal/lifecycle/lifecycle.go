// Package lifecycle tracks the per-upload processing state exposed to the
// presentation layer: queued → processing → success/error, with explicit
// user removal as the only way a record leaves the set.
package lifecycle

import (
	"errors"
	"fmt"
	"sync"
)

// Status is the processing state of one upload.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusError      Status = "error"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusError
}

// Event advances a record's status.
type Event int

const (
	// EventStart moves a queued record into processing.
	EventStart Event = iota
	// EventSucceed finishes processing successfully.
	EventSucceed
	// EventFail finishes processing with a user-facing error.
	EventFail
)

func (e Event) String() string {
	switch e {
	case EventStart:
		return "start"
	case EventSucceed:
		return "succeed"
	case EventFail:
		return "fail"
	}
	return fmt.Sprintf("event(%d)", int(e))
}

// ErrBadTransition is returned when an event is not valid for the current
// status. Transitions are monotonic forward; terminal states never regress.
var ErrBadTransition = errors.New("lifecycle: invalid transition")

// Transition is the pure state-transition function. It has no side
// effects and is independently testable without any rendering or storage
// concerns.
func Transition(cur Status, ev Event) (Status, error) {
	switch {
	case cur == StatusQueued && ev == EventStart:
		return StatusProcessing, nil
	case cur == StatusProcessing && ev == EventSucceed:
		return StatusSuccess, nil
	case cur == StatusProcessing && ev == EventFail:
		return StatusError, nil
	}
	return cur, fmt.Errorf("%w: %s on %q", ErrBadTransition, ev, cur)
}

// Record is the per-upload bookkeeping entry. Preview is a display
// reference (a temp preview file) whose release is owed when the record
// is discarded.
type Record struct {
	ID          string `json:"id"`
	FileName    string `json:"fileName"`
	Status      Status `json:"status"`
	PreviewPath string `json:"previewPath,omitempty"`
	ErrorDetail string `json:"errorDetail,omitempty"`
	HasGeo      bool   `json:"hasGeo"`

	release func()
}

// Store holds the active record set. The pipeline's reducer is the sole
// writer; reads return snapshots so callers never observe partial
// updates.
type Store struct {
	mu      sync.RWMutex
	records map[string]*Record
	order   []string
}

// NewStore returns an empty record store.
func NewStore() *Store {
	return &Store{records: make(map[string]*Record)}
}

// Add creates a record in the queued state. release, if non-nil, is
// invoked exactly once when the record is removed or the store is closed.
func (s *Store) Add(id, fileName string, release func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[id]; exists {
		return
	}
	s.records[id] = &Record{
		ID:       id,
		FileName: fileName,
		Status:   StatusQueued,
		release:  release,
	}
	s.order = append(s.order, id)
}

// Apply advances a record through the transition function and applies the
// mutation fn (if any) to the record under the same critical section.
// Applying to a removed record is a silent no-op reporting found=false:
// removal is advisory and in-flight work finishes into a discarded record.
func (s *Store) Apply(id string, ev Event, fn func(*Record)) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return false, nil
	}
	next, err := Transition(rec.Status, ev)
	if err != nil {
		return true, err
	}
	rec.Status = next
	if fn != nil {
		fn(rec)
	}
	return true, nil
}

// SetPreview records the display reference for an upload.
func (s *Store) SetPreview(id, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[id]; ok {
		rec.PreviewPath = path
	}
}

// Get returns a snapshot of one record.
func (s *Store) Get(id string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// List returns snapshots of all active records in insertion order.
func (s *Store) List() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, 0, len(s.order))
	for _, id := range s.order {
		if rec, ok := s.records[id]; ok {
			out = append(out, *rec)
		}
	}
	return out
}

// Remove discards a record and releases its preview handle. Removing an
// unknown or already-removed id is a no-op; removal is idempotent.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	rec, ok := s.records[id]
	if ok {
		delete(s.records, id)
		for i, v := range s.order {
			if v == id {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
	s.mu.Unlock()

	if ok && rec.release != nil {
		rec.release()
	}
}

// Close removes every record, releasing all preview handles. Used on
// component teardown so display resources never outlive the store.
func (s *Store) Close() {
	s.mu.Lock()
	recs := make([]*Record, 0, len(s.records))
	for _, rec := range s.records {
		recs = append(recs, rec)
	}
	s.records = make(map[string]*Record)
	s.order = nil
	s.mu.Unlock()

	for _, rec := range recs {
		if rec.release != nil {
			rec.release()
		}
	}
}
