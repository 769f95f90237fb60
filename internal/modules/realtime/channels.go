// README: Channel topology and the routing of each event variant to the audiences with a stake in it.
package realtime

import "medtrans/internal/types"

const (
	// PoolChannel is shared by all drivers (jobs entering or leaving the pool).
	PoolChannel = "drivers:pool"
	// AdminChannel is shared by all admins and receives every event.
	AdminChannel = "admins"

	statusPending = "pending"
)

func PatientChannel(id types.ID) string { return "patient:" + string(id) }
func DriverChannel(id types.ID) string  { return "driver:" + string(id) }

// ChannelsFor returns the channels a connection for actor may listen on.
func ChannelsFor(actor types.Actor) []string {
	switch actor.Kind {
	case types.ActorAdmin:
		return []string{AdminChannel}
	case types.ActorDriver:
		return []string{DriverChannel(actor.ID), PoolChannel}
	case types.ActorPatient:
		return []string{PatientChannel(actor.ID)}
	}
	return nil
}

// Channels lists every channel ev is published to.
func Channels(ev Event) []string {
	s := ev.Booking()
	chs := []string{AdminChannel, PatientChannel(s.PatientID)}
	withDriver := func() {
		if s.DriverID != nil && *s.DriverID != "" {
			chs = append(chs, DriverChannel(*s.DriverID))
		}
	}

	switch e := ev.(type) {
	case BookingCreated:
		chs = append(chs, PoolChannel)
	case BookingAccepted, BookingAssigned:
		chs = append(chs, PoolChannel)
		withDriver()
	case BookingReturned:
		chs = append(chs, PoolChannel)
		if e.PreviousDriverID != "" && !e.ByDriver {
			chs = append(chs, DriverChannel(e.PreviousDriverID))
		}
	case BookingDeleted:
		withDriver()
		if s.Status == statusPending {
			chs = append(chs, PoolChannel)
		}
	case StatusUpdated:
		// driver-initiated: the driver already knows.
	case AdminStatusUpdated:
		withDriver()
		if e.PreviousStatus == statusPending {
			chs = append(chs, PoolChannel)
		}
	case PatientCancelled:
		withDriver()
		if e.PreviousStatus == statusPending {
			chs = append(chs, PoolChannel)
		}
	case SlipSubmitted, PaymentVerified, PaymentRejected:
		withDriver()
	}
	return chs
}
