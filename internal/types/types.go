// README: Shared value types used across modules (IDs, coordinates, actors).
package types

// ID identifies a user (patient, driver or admin) by the auth provider UID.
type ID string

type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Place is an address together with its coordinate pair.
type Place struct {
	Address string `json:"address"`
	Point   Point  `json:"point"`
}

type ActorKind string

const (
	ActorPatient ActorKind = "patient"
	ActorDriver  ActorKind = "driver"
	ActorAdmin   ActorKind = "admin"
	ActorSystem  ActorKind = "system"
)

// Actor is whoever triggers a state change.
type Actor struct {
	ID   ID
	Kind ActorKind
}

func Patient(id ID) Actor { return Actor{ID: id, Kind: ActorPatient} }
func Driver(id ID) Actor  { return Actor{ID: id, Kind: ActorDriver} }
func Admin(id ID) Actor   { return Actor{ID: id, Kind: ActorAdmin} }

// System is used for automatic changes (e.g. releases triggered by a driver ban).
func System() Actor { return Actor{Kind: ActorSystem} }
