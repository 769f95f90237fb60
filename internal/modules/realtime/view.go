// README: Client-side booking cache that applies realtime events as idempotent patches.
package realtime

import (
	"sort"
	"sync"

	"medtrans/internal/modules/timeline"
)

// View keeps the bookings matching include, keyed by booking id. Events are hints: they are
// deduplicated, stale ones are ignored, and Reset replaces the state after a refetch.
type View struct {
	mu      sync.Mutex
	include func(Snapshot) bool
	items   map[int64]Snapshot
	seen    map[string]struct{}
}

func NewView(include func(Snapshot) bool) *View {
	if include == nil {
		include = func(Snapshot) bool { return true }
	}
	return &View{
		include: include,
		items:   make(map[int64]Snapshot),
		seen:    make(map[string]struct{}),
	}
}

// NewPoolView tracks the open job pool as a driver sees it.
func NewPoolView() *View {
	return NewView(func(s Snapshot) bool { return s.Status == statusPending })
}

// Apply patches the view and reports whether anything changed.
func (v *View) Apply(ev Event) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	key := timeline.DedupeKey(ev.BookingID(), dedupeKind(ev), ev.OccurredAt())
	if _, dup := v.seen[key]; dup {
		return false
	}
	v.seen[key] = struct{}{}

	s := ev.Booking()
	cur, known := v.items[s.ID]
	if known && cur.UpdatedAt.After(s.UpdatedAt) {
		return false
	}

	switch ev.(type) {
	case BookingDeleted:
		if !known {
			return false
		}
		delete(v.items, s.ID)
		return true
	case BookingCreated, BookingReturned:
		if v.include(s) {
			v.items[s.ID] = s
			return true
		}
	default:
		// Only bookings the view already knows are patched.
		if !known {
			return false
		}
		if v.include(s) {
			v.items[s.ID] = s
			return true
		}
	}
	if known {
		delete(v.items, s.ID)
		return true
	}
	return false
}

// Reset replaces the view with authoritative state fetched from the API.
func (v *View) Reset(snaps []Snapshot) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.items = make(map[int64]Snapshot, len(snaps))
	for _, s := range snaps {
		if v.include(s) {
			v.items[s.ID] = s
		}
	}
	v.seen = make(map[string]struct{})
}

func (v *View) Get(id int64) (Snapshot, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	s, ok := v.items[id]
	return s, ok
}

func (v *View) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.items)
}

// Items returns the current bookings ordered by id.
func (v *View) Items() []Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]Snapshot, 0, len(v.items))
	for _, s := range v.items {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
