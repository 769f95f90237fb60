package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medtrans/internal/types"
)

var t0 = time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

func snap(id int64, status string, driver types.ID, at time.Time) Snapshot {
	s := Snapshot{ID: id, Status: status, PaymentStatus: "none", PatientID: "p1", CreatedAt: t0, UpdatedAt: at}
	if driver != "" {
		d := driver
		s.DriverID = &d
	}
	return s
}

func TestChannelsRouting(t *testing.T) {
	cases := []struct {
		name string
		ev   Event
		want []string
	}{
		{"created", NewBookingCreated(snap(1, "pending", "", t0)),
			[]string{AdminChannel, "patient:p1", PoolChannel}},
		{"accepted", NewBookingAccepted(snap(1, "accepted", "d1", t0)),
			[]string{AdminChannel, "patient:p1", PoolChannel, "driver:d1"}},
		{"assigned", NewBookingAssigned(snap(1, "accepted", "d2", t0), "a1"),
			[]string{AdminChannel, "patient:p1", PoolChannel, "driver:d2"}},
		{"returned by admin", NewBookingReturned(snap(1, "pending", "", t0), "d1", false),
			[]string{AdminChannel, "patient:p1", PoolChannel, "driver:d1"}},
		{"returned by driver", NewBookingReturned(snap(1, "pending", "", t0), "d1", true),
			[]string{AdminChannel, "patient:p1", PoolChannel}},
		{"driver status", NewStatusUpdated(snap(1, "going_pickup", "d1", t0), "accepted"),
			[]string{AdminChannel, "patient:p1"}},
		{"admin status", NewAdminStatusUpdated(snap(1, "picked_up", "d1", t0), "going_pickup", ""),
			[]string{AdminChannel, "patient:p1", "driver:d1"}},
		{"admin cancel of pending", NewAdminStatusUpdated(snap(1, "cancelled", "", t0), "pending", "dup"),
			[]string{AdminChannel, "patient:p1", PoolChannel}},
		{"patient cancel", NewPatientCancelled(snap(1, "cancelled", "d1", t0), "accepted", ""),
			[]string{AdminChannel, "patient:p1", "driver:d1"}},
		{"slip", NewSlipSubmitted(snap(1, "pending_payment", "d1", t0)),
			[]string{AdminChannel, "patient:p1", "driver:d1"}},
		{"deleted pending", NewBookingDeleted(snap(1, "pending", "", t0)),
			[]string{AdminChannel, "patient:p1", PoolChannel}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Channels(tc.ev))
		})
	}
}

func TestChannelsFor(t *testing.T) {
	assert.Equal(t, []string{AdminChannel}, ChannelsFor(types.Admin("a1")))
	assert.Equal(t, []string{"driver:d1", PoolChannel}, ChannelsFor(types.Driver("d1")))
	assert.Equal(t, []string{"patient:p1"}, ChannelsFor(types.Patient("p1")))
	assert.Nil(t, ChannelsFor(types.System()))
}

func TestDecodeKeepsVariant(t *testing.T) {
	ev := NewPaymentRejected(snap(3, "pending_payment", "d1", t0), "blurry slip")
	data, err := json.Marshal(Encode(ev))
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, KindUpdated, env.Kind)
	assert.Equal(t, TypeAdminRejectPayment, env.Type)

	got, err := Decode(env)
	require.NoError(t, err)
	rej, ok := got.(PaymentRejected)
	require.True(t, ok, "got %T", got)
	assert.Equal(t, "blurry slip", rej.Reason)
	assert.Equal(t, int64(3), rej.BookingID())
}

func TestDecodeUnknown(t *testing.T) {
	s := snap(1, "pending", "", t0)
	_, err := Decode(Envelope{Kind: "booking.teleported", Booking: &s})
	assert.ErrorIs(t, err, ErrUnknownEvent)

	_, err = Decode(Envelope{Kind: KindUpdated, Type: "SOMETHING_NEW", Booking: &s})
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

func TestRoutingKey(t *testing.T) {
	assert.Equal(t, "booking.accepted", RoutingKey(Encode(NewBookingAccepted(snap(1, "accepted", "d1", t0)))))
	assert.Equal(t, "booking-updated.STATUS_UPDATE", RoutingKey(Encode(NewStatusUpdated(snap(1, "picked_up", "d1", t0), "going_pickup"))))
}

type recordingBroker struct {
	mu   sync.Mutex
	got  map[string]int
	fail bool
}

func (b *recordingBroker) Publish(_ context.Context, channel string, _ []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail {
		return errors.New("broker down")
	}
	if b.got == nil {
		b.got = make(map[string]int)
	}
	b.got[channel]++
	return nil
}

type recordingSink struct {
	envs []Envelope
	err  error
}

func (s *recordingSink) Export(_ context.Context, env Envelope) error {
	s.envs = append(s.envs, env)
	return s.err
}

func TestNotifierPublishesToEveryChannelAndSink(t *testing.T) {
	broker := &recordingBroker{}
	sink := &recordingSink{}
	n := NewNotifier(broker, sink)

	n.Publish(context.Background(), NewBookingAccepted(snap(1, "accepted", "d1", t0)))

	assert.Equal(t, map[string]int{AdminChannel: 1, "patient:p1": 1, PoolChannel: 1, "driver:d1": 1}, broker.got)
	require.Len(t, sink.envs, 1)
	assert.Equal(t, KindAccepted, sink.envs[0].Kind)
}

func TestNotifierSwallowsFailures(t *testing.T) {
	sink := &recordingSink{err: errors.New("queue down")}
	n := NewNotifier(&recordingBroker{fail: true}, sink)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NotPanics(t, func() {
		n.Publish(ctx, NewBookingCreated(snap(1, "pending", "", t0)))
	})
	assert.Len(t, sink.envs, 1)
}
