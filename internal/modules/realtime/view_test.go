package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPoolViewClaimRemovesBooking(t *testing.T) {
	v := NewPoolView()
	assert.True(t, v.Apply(NewBookingCreated(snap(1, "pending", "", t0))))
	assert.True(t, v.Apply(NewBookingCreated(snap(2, "pending", "", t0))))
	assert.Equal(t, 2, v.Len())

	assert.True(t, v.Apply(NewBookingAccepted(snap(1, "accepted", "d1", t0.Add(time.Second)))))
	_, ok := v.Get(1)
	assert.False(t, ok)
	assert.Equal(t, []int64{2}, ids(v.Items()))
}

func TestViewIgnoresDuplicates(t *testing.T) {
	v := NewPoolView()
	ev := NewBookingCreated(snap(1, "pending", "", t0))
	assert.True(t, v.Apply(ev))
	assert.False(t, v.Apply(ev))
	assert.Equal(t, 1, v.Len())
}

func TestViewIgnoresUnknownPatches(t *testing.T) {
	v := NewView(nil)
	assert.False(t, v.Apply(NewStatusUpdated(snap(9, "picked_up", "d1", t0), "going_pickup")))
	assert.False(t, v.Apply(NewBookingDeleted(snap(9, "picked_up", "d1", t0))))
	assert.Zero(t, v.Len())
}

func TestViewIgnoresOutOfOrderEvents(t *testing.T) {
	v := NewPoolView()
	v.Apply(NewBookingCreated(snap(1, "pending", "", t0)))

	// Returned (t0+2s) arrives before the claim it undoes (t0+1s).
	returned := NewBookingReturned(snap(1, "pending", "", t0.Add(2*time.Second)), "d1", true)
	accepted := NewBookingAccepted(snap(1, "accepted", "d1", t0.Add(time.Second)))

	assert.True(t, v.Apply(returned))
	assert.False(t, v.Apply(accepted))
	s, ok := v.Get(1)
	assert.True(t, ok)
	assert.Equal(t, "pending", s.Status)
}

func TestViewResetReconciles(t *testing.T) {
	v := NewPoolView()
	v.Apply(NewBookingCreated(snap(1, "pending", "", t0)))
	v.Apply(NewBookingCreated(snap(2, "pending", "", t0)))

	v.Reset([]Snapshot{
		snap(2, "accepted", "d1", t0.Add(time.Second)),
		snap(3, "pending", "", t0),
	})
	assert.Equal(t, []int64{3}, ids(v.Items()))
}

func TestDriverViewFollowsOwnBooking(t *testing.T) {
	mine := func(s Snapshot) bool { return s.DriverID != nil && *s.DriverID == "d1" }
	v := NewView(mine)
	v.Reset([]Snapshot{snap(1, "accepted", "d1", t0)})

	assert.True(t, v.Apply(NewStatusUpdated(snap(1, "going_pickup", "d1", t0.Add(time.Second)), "accepted")))
	s, _ := v.Get(1)
	assert.Equal(t, "going_pickup", s.Status)

	assert.True(t, v.Apply(NewBookingReturned(snap(1, "pending", "", t0.Add(2*time.Second)), "d1", false)))
	assert.Zero(t, v.Len())
}

func ids(snaps []Snapshot) []int64 {
	out := make([]int64, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, s.ID)
	}
	return out
}
