// README: Booking error taxonomy; handlers match these with errors.Is.
package booking

import "errors"

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrTerminalState     = errors.New("booking is closed")
	ErrNoDriverAssigned  = errors.New("booking has no driver assigned")
	// ErrConflict is the routine outcome of losing a claim/assign race.
	ErrConflict     = errors.New("this job was just taken")
	ErrIneligible   = errors.New("actor is not eligible for this booking")
	ErrPaymentState = errors.New("payment state does not allow this action")
	ErrNotFound     = errors.New("booking not found")
	ErrBadRequest   = errors.New("bad request")
)
