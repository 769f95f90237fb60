package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestHubDeliversByChannel(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := NewHub()
	driver := h.Register([]string{"driver:d1", PoolChannel})
	admin := h.Register([]string{AdminChannel})
	assert.Equal(t, 2, h.ClientCount())
	assert.Equal(t, 1, h.ChannelCount(PoolChannel))

	assert.Equal(t, 1, h.Deliver(PoolChannel, []byte("pool")))
	assert.Equal(t, 0, h.Deliver("patient:p1", []byte("nobody")))

	assert.Equal(t, []byte("pool"), <-driver.Messages())
	select {
	case m := <-admin.Messages():
		t.Fatalf("admin received %q", m)
	default:
	}

	h.Unregister(driver)
	h.Unregister(driver)
	h.Unregister(admin)
	assert.Zero(t, h.ClientCount())
	assert.Zero(t, h.ChannelCount(PoolChannel))
	_, open := <-driver.Messages()
	assert.False(t, open)
}

func TestHubDropsWhenBufferFull(t *testing.T) {
	h := NewHub()
	c := h.Register([]string{AdminChannel})
	defer h.Unregister(c)

	for i := 0; i < clientBuffer; i++ {
		require.Equal(t, 1, h.Deliver(AdminChannel, []byte("x")))
	}
	assert.Equal(t, 0, h.Deliver(AdminChannel, []byte("overflow")))
}

func TestRedisBrokerRelaysToHub(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	hub := NewHub()
	c := hub.Register([]string{PoolChannel})
	defer hub.Unregister(c)

	broker := NewRedisBroker(client, "medtrans:test", hub)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- broker.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	require.Eventually(t, func() bool {
		return mr.PubSubNumSub("medtrans:test")["medtrans:test"] == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, broker.Publish(ctx, PoolChannel, []byte(`{"event_kind":"booking.created"}`)))
	require.NoError(t, broker.Publish(ctx, AdminChannel, []byte(`{"event_kind":"booking.created"}`)))

	select {
	case m := <-c.Messages():
		assert.JSONEq(t, `{"event_kind":"booking.created"}`, string(m))
	case <-time.After(2 * time.Second):
		t.Fatal("no message relayed")
	}
}

func TestSubscriberReconcilesThenApplies(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.ServeWS(w, r, []string{PoolChannel})
	}))
	t.Cleanup(srv.Close)

	view := NewPoolView()
	fetch := func(context.Context) ([]Snapshot, error) {
		return []Snapshot{snap(1, "pending", "", t0)}, nil
	}
	sub := NewSubscriber("ws"+strings.TrimPrefix(srv.URL, "http"), nil, view, fetch)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sub.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	require.Eventually(t, func() bool { return view.Len() == 1 && hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	payload, err := json.Marshal(Encode(NewBookingCreated(snap(2, "pending", "", t0))))
	require.NoError(t, err)
	hub.Deliver(PoolChannel, payload)

	payload, err = json.Marshal(Encode(NewBookingAccepted(snap(1, "accepted", "d9", t0.Add(time.Second)))))
	require.NoError(t, err)
	hub.Deliver(PoolChannel, payload)

	require.Eventually(t, func() bool {
		items := view.Items()
		return len(items) == 1 && items[0].ID == 2
	}, 2*time.Second, 10*time.Millisecond)
}
