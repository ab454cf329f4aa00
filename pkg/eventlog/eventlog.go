// Package eventlog implements the durable, append-only event store that
// backs a conversation's history. Events are written one file per event
// under a conversation's events directory; the log never rewrites or
// deletes a file once written.
package eventlog

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/coreagent/runtime/pkg/event"
)

var (
	// ErrEventNotFound is returned by Get/GetByID when no event matches.
	ErrEventNotFound = errors.New("eventlog: event not found")
	// ErrDuplicateEventID is returned by Append when the event's ID
	// already exists in the log.
	ErrDuplicateEventID = errors.New("eventlog: duplicate event id")
	// ErrGapDetected is no longer returned by Open — a gap in the on-disk
	// index sequence truncates the load at the gap boundary instead of
	// failing it (§6 "on a gap, stop loading at the gap boundary"). The
	// sentinel is kept so any caller still matching on it continues to
	// compile; it is never produced by this package anymore.
	ErrGapDetected = errors.New("eventlog: gap detected in event index sequence")
)

// filenamePattern matches "event-00042-abc123.json".
const filenamePrefix = "event-"

// EventLog is a durable, append-only sequence of events backed by one
// file per event in dir. Safe for concurrent use.
type EventLog struct {
	mu       sync.RWMutex
	dir      string
	events   []event.Event // dense, index == position in this slice
	idToIdx  map[string]int
}

// Open loads an existing event log from dir, creating dir if it does not
// exist. If the on-disk indices are not dense — a sign of a crash between
// the write and the fsync of a prior event, or a partially-cleaned-up
// directory — loading stops at the first missing index and everything
// from the gap onward is discarded, rather than failing Open outright
// (§6 "on a gap, stop loading at the gap boundary"). A warning is logged
// if files exist past the gap, since those events are silently dropped.
func Open(dir string) (*EventLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("eventlog: create dir: %w", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("eventlog: read dir: %w", err)
	}

	type indexed struct {
		idx int
		ev  event.Event
	}
	var loaded []indexed
	for _, ent := range entries {
		if ent.IsDir() || !strings.HasPrefix(ent.Name(), filenamePrefix) {
			continue
		}
		idx, err := parseIndex(ent.Name())
		if err != nil {
			return nil, fmt.Errorf("eventlog: %s: %w", ent.Name(), err)
		}
		raw, err := os.ReadFile(filepath.Join(dir, ent.Name()))
		if err != nil {
			return nil, fmt.Errorf("eventlog: read %s: %w", ent.Name(), err)
		}
		var ev event.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("eventlog: decode %s: %w", ent.Name(), err)
		}
		loaded = append(loaded, indexed{idx: idx, ev: ev})
	}

	sort.Slice(loaded, func(i, j int) bool { return loaded[i].idx < loaded[j].idx })

	events := make([]event.Event, 0, len(loaded))
	idToIdx := make(map[string]int, len(loaded))
	for pos, l := range loaded {
		if l.idx != pos {
			slog.Warn("eventlog: gap in index sequence, truncating load",
				"dir", dir, "expected_index", pos, "found_index", l.idx, "dropped", len(loaded)-pos)
			break
		}
		events = append(events, l.ev)
		idToIdx[l.ev.ID] = pos
	}

	return &EventLog{dir: dir, events: events, idToIdx: idToIdx}, nil
}

func parseIndex(name string) (int, error) {
	rest := strings.TrimPrefix(name, filenamePrefix)
	dash := strings.Index(rest, "-")
	if dash < 0 {
		return 0, fmt.Errorf("malformed event filename %q", name)
	}
	return strconv.Atoi(rest[:dash])
}

func filename(idx int, id string) string {
	return fmt.Sprintf("%s%05d-%s.json", filenamePrefix, idx, id)
}

// Append writes ev to the log and returns its assigned index. The event's
// ID must be unique within the log.
func (l *EventLog) Append(ev event.Event) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.idToIdx[ev.ID]; exists {
		return 0, fmt.Errorf("%w: %s", ErrDuplicateEventID, ev.ID)
	}

	idx := len(l.events)
	raw, err := json.MarshalIndent(ev, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("eventlog: encode event %s: %w", ev.ID, err)
	}
	path := filepath.Join(l.dir, filename(idx, ev.ID))
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return 0, fmt.Errorf("eventlog: write event %s: %w", ev.ID, err)
	}

	l.events = append(l.events, ev)
	l.idToIdx[ev.ID] = idx
	return idx, nil
}

// Get returns the event at idx.
func (l *EventLog) Get(idx int) (event.Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if idx < 0 || idx >= len(l.events) {
		return event.Event{}, ErrEventNotFound
	}
	return l.events[idx], nil
}

// GetByID returns the event with the given ID.
func (l *EventLog) GetByID(id string) (event.Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	idx, ok := l.idToIdx[id]
	if !ok {
		return event.Event{}, ErrEventNotFound
	}
	return l.events[idx], nil
}

// Len returns the number of events in the log.
func (l *EventLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// All returns a copy of every event in append order.
func (l *EventLog) All() []event.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]event.Event, len(l.events))
	copy(out, l.events)
	return out
}

// Slice returns a copy of events in [from, to).
func (l *EventLog) Slice(from, to int) ([]event.Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if from < 0 || to > len(l.events) || from > to {
		return nil, fmt.Errorf("%w: range [%d,%d) out of bounds (len=%d)", ErrEventNotFound, from, to, len(l.events))
	}
	out := make([]event.Event, to-from)
	copy(out, l.events[from:to])
	return out, nil
}

// Iter calls fn for every event in order, stopping early if fn returns false.
func (l *EventLog) Iter(fn func(idx int, ev event.Event) bool) {
	l.mu.RLock()
	snapshot := make([]event.Event, len(l.events))
	copy(snapshot, l.events)
	l.mu.RUnlock()

	for idx, ev := range snapshot {
		if !fn(idx, ev) {
			return
		}
	}
}
