// README: Driver availability (online + verification status) and the ban policy.
package driver

import (
	"fmt"
	"time"

	"medtrans/internal/types"
)

type OnlineStatus string

const (
	OnlineActive   OnlineStatus = "active"
	OnlineInactive OnlineStatus = "inactive"
	OnlineBanned   OnlineStatus = "banned"
)

func (s OnlineStatus) Valid() bool {
	switch s {
	case OnlineActive, OnlineInactive, OnlineBanned:
		return true
	}
	return false
}

type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationApproved VerificationStatus = "approved"
	VerificationRejected VerificationStatus = "rejected"
)

func (s VerificationStatus) Valid() bool {
	switch s {
	case VerificationPending, VerificationApproved, VerificationRejected:
		return true
	}
	return false
}

type Availability struct {
	DriverID           types.ID
	OnlineStatus       OnlineStatus
	VerificationStatus VerificationStatus
	UpdatedAt          time.Time
}

// Eligible reports whether the driver may claim or be assigned a booking.
func (a *Availability) Eligible() bool {
	return a != nil && a.OnlineStatus == OnlineActive && a.VerificationStatus == VerificationApproved
}

// BanPolicy decides what happens to a driver's in-progress bookings when they are banned.
type BanPolicy string

const (
	// BanBlockNewClaims keeps in-progress bookings with the driver; only new claims and
	// assignments are refused.
	BanBlockNewClaims BanPolicy = "block_new_claims"
	// BanReleaseActive returns every non-terminal booking the driver holds to the pool.
	BanReleaseActive BanPolicy = "release_active"
)

func ParseBanPolicy(v string) (BanPolicy, error) {
	switch p := BanPolicy(v); p {
	case BanBlockNewClaims, BanReleaseActive:
		return p, nil
	}
	return "", fmt.Errorf("unknown driver ban policy %q", v)
}
