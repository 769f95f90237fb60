package booking

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"medtrans/internal/modules/driver"
	"medtrans/internal/modules/realtime"
	"medtrans/internal/modules/timeline"
	"medtrans/internal/types"
)

// memRepo serialises every mutation behind one mutex, which is the in-memory equivalent of the
// row lock the Postgres store takes.
type memRepo struct {
	mu       sync.Mutex
	nextID   int64
	clock    time.Time
	bookings map[int64]*Booking
	drivers  map[types.ID]*driver.Availability
	entries  []timeline.Entry
}

func newMemRepo() *memRepo {
	return &memRepo{
		clock:    time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC),
		bookings: make(map[int64]*Booking),
		drivers:  make(map[types.ID]*driver.Availability),
	}
}

func (m *memRepo) tick() time.Time {
	m.clock = m.clock.Add(time.Millisecond)
	return m.clock
}

func (m *memRepo) setDriver(id types.ID, online driver.OnlineStatus, verification driver.VerificationStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drivers[id] = &driver.Availability{DriverID: id, OnlineStatus: online, VerificationStatus: verification}
}

func (m *memRepo) addEligible(ids ...types.ID) {
	for _, id := range ids {
		m.setDriver(id, driver.OnlineActive, driver.VerificationApproved)
	}
}

func (m *memRepo) append(b *Booking, e *timeline.Entry, ts time.Time) {
	if e == nil {
		return
	}
	e.ID = int64(len(m.entries) + 1)
	e.BookingID, e.CreatedAt = b.ID, ts
	m.entries = append(m.entries, *e)
}

func (m *memRepo) Create(_ context.Context, b *Booking, entry *timeline.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	ts := m.tick()
	b.ID = m.nextID
	b.CreatedAt, b.UpdatedAt = ts, ts
	m.bookings[b.ID] = b.clone()
	m.append(b, entry, ts)
	return nil
}

func (m *memRepo) Get(_ context.Context, id int64) (*Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	return b.clone(), nil
}

func (m *memRepo) ListOpen(_ context.Context, order SortOrder) ([]*Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Booking
	for _, b := range m.bookings {
		if b.Status == StatusPending && b.DriverID == nil {
			out = append(out, b.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if order == SortScheduleAsc {
			ka, kb := a.ScheduledDate+" "+a.ScheduledTime, b.ScheduledDate+" "+b.ScheduledTime
			if ka != kb {
				return ka < kb
			}
			return a.ID < b.ID
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
	return out, nil
}

func (m *memRepo) ListByDriver(_ context.Context, driverID types.ID) ([]*Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Booking
	for _, b := range m.bookings {
		if b.HasDriver(driverID) && !b.Status.Terminal() {
			out = append(out, b.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRepo) Mutate(ctx context.Context, id int64, fn MutateFunc) (*Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	b := cur.clone()
	entry, err := fn(ctx, memTx{m}, b)
	if err != nil {
		return nil, err
	}
	if !b.Status.Terminal() && (b.DriverID == nil) != (b.Status == StatusPending) {
		return nil, fmt.Errorf("bookings_driver_check violated: %s with driver %v", b.Status, b.DriverID)
	}
	ts := m.tick()
	b.UpdatedAt = ts
	m.bookings[id] = b.clone()
	m.append(b, entry, ts)
	return b, nil
}

func (m *memRepo) Delete(ctx context.Context, id int64, fn MutateFunc) (*Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	b := cur.clone()
	entry, err := fn(ctx, memTx{m}, b)
	if err != nil {
		return nil, err
	}
	ts := m.tick()
	b.UpdatedAt = ts
	m.append(b, entry, ts)
	delete(m.bookings, id)
	return b, nil
}

func (m *memRepo) Timeline(_ context.Context, id int64) ([]timeline.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []timeline.Entry
	for _, e := range m.entries {
		if e.BookingID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

// memTx runs with memRepo.mu already held.
type memTx struct{ m *memRepo }

func (t memTx) DriverAvailability(_ context.Context, id types.ID) (*driver.Availability, error) {
	a, ok := t.m.drivers[id]
	if !ok {
		return nil, driver.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

type recorder struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (r *recorder) Publish(_ context.Context, ev realtime.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) all() []realtime.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]realtime.Event(nil), r.events...)
}

func (r *recorder) last() realtime.Event {
	evs := r.all()
	if len(evs) == 0 {
		return nil
	}
	return evs[len(evs)-1]
}
