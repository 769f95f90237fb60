package timeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"medtrans/internal/types"
)

func TestNewEntryFormatsMessage(t *testing.T) {
	e := NewEntry(EventAccepted, types.Driver("d1"), "driver %s accepted job #%d", "d1", 42)
	assert.Equal(t, EventAccepted, e.EventType)
	assert.Equal(t, types.ID("d1"), e.ActorID)
	assert.Equal(t, types.ActorDriver, e.ActorKind)
	assert.Equal(t, "driver d1 accepted job #42", e.Message)
}

func TestKeyDistinguishesKindAndTime(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	a := Entry{BookingID: 1, EventType: EventAccepted, CreatedAt: at}
	b := Entry{BookingID: 1, EventType: EventReturned, CreatedAt: at}
	c := Entry{BookingID: 1, EventType: EventAccepted, CreatedAt: at.Add(time.Microsecond)}

	assert.NotEqual(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), c.Key())
	assert.Equal(t, a.Key(), DedupeKey(1, "accepted", at))
}
