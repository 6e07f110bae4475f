package realtime

import (
	"sort"
	"sync"
)

// defaultLedgerLimit bounds the working set of admission keys and the
// retained timeline per stream.
const defaultLedgerLimit = 1024

// Ledger is the de-duplication and ordering layer. Every decoded event passes
// Admit before reaching subscriber callbacks; duplicates arriving over both
// the live transport and the polling fallback are suppressed, and admitted
// events are insertion-sorted into a per-stream chronological timeline.
//
// Admission keys are two-tiered. The server-assigned id is the primary key;
// the composite content key only stands in while an event has no id yet.
// Two distinct ids never collide, even when sender, content and timestamp
// bucket all match.
type Ledger struct {
	mu sync.Mutex

	seenIDs map[string]struct{}
	idOrder []string

	// composites maps each admitted event's composite key to the server id
	// it was admitted under, zero while the event is still id-less.
	composites map[string]int64
	compOrder  []string

	limit     int
	timelines map[string][]Event
}

// NewLedger creates a Ledger retaining at most limit admission keys per tier.
// A non-positive limit selects the default.
func NewLedger(limit int) *Ledger {
	if limit <= 0 {
		limit = defaultLedgerLimit
	}
	return &Ledger{
		seenIDs:    make(map[string]struct{}),
		composites: make(map[string]int64),
		limit:      limit,
		timelines:  make(map[string][]Event),
	}
}

// Admit decides whether the event is novel. It returns the index at which the
// event was inserted into its stream's chronological timeline and true, or
// -1 and false for a duplicate. An event carrying a server id is a duplicate
// only when that id was seen before or when its composite was admitted
// id-less, which makes it the confirmation of an optimistic echo. An id-less
// event is a duplicate whenever its composite is known. Duplicates still have
// a newly-learned id remembered so later reports keep colliding.
func (l *Ledger) Admit(ev Event) (int, bool) {
	idKey := ev.idKey()
	comp := ev.compositeKey()

	l.mu.Lock()
	defer l.mu.Unlock()

	duplicate := false
	prevID, compKnown := l.composites[comp]
	if idKey != "" {
		if _, ok := l.seenIDs[idKey]; ok {
			duplicate = true
		}
		if compKnown && prevID == 0 {
			duplicate = true
		}
		l.rememberID(idKey)
	} else if compKnown {
		duplicate = true
	}
	l.rememberComposite(comp, ev.serverID())
	if duplicate {
		return -1, false
	}

	streamKey := ev.StreamKey()
	timeline := l.timelines[streamKey]
	ts := ev.Timestamp()
	idx := sort.Search(len(timeline), func(i int) bool {
		return timeline[i].Timestamp().After(ts)
	})
	timeline = append(timeline, Event{})
	copy(timeline[idx+1:], timeline[idx:])
	timeline[idx] = ev
	if len(timeline) > l.limit {
		timeline = timeline[1:]
		if idx > 0 {
			idx--
		}
	}
	l.timelines[streamKey] = timeline

	return idx, true
}

// Timeline returns a copy of the stream's events in non-decreasing
// timestamp order.
func (l *Ledger) Timeline(streamKey string) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	timeline := l.timelines[streamKey]
	out := make([]Event, len(timeline))
	copy(out, timeline)
	return out
}

// rememberID records an id admission key, evicting the oldest once over the
// limit.
func (l *Ledger) rememberID(key string) {
	if _, ok := l.seenIDs[key]; ok {
		return
	}
	l.seenIDs[key] = struct{}{}
	l.idOrder = append(l.idOrder, key)
	for len(l.idOrder) > l.limit {
		delete(l.seenIDs, l.idOrder[0])
		l.idOrder = l.idOrder[1:]
	}
}

// rememberComposite records a composite key. A known id-less entry is
// upgraded once a server id arrives so later id-carrying events with the same
// content stop colliding with it.
func (l *Ledger) rememberComposite(key string, id int64) {
	if prev, ok := l.composites[key]; ok {
		if id != 0 && prev == 0 {
			l.composites[key] = id
		}
		return
	}
	l.composites[key] = id
	l.compOrder = append(l.compOrder, key)
	for len(l.compOrder) > l.limit {
		delete(l.composites, l.compOrder[0])
		l.compOrder = l.compOrder[1:]
	}
}
