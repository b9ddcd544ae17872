package syncengine

// ModelType names one of the record kinds that can pass through the
// Transaction Manager. It is a plain string rather than an enum so new
// model types can be added by library code outside this package without an
// import cycle.
type ModelType string

// The model types spec.md §4.6 names by example.
const (
	ModelTag               ModelType = "tag"
	ModelEntry             ModelType = "entry"
	ModelLocation          ModelType = "location"
	ModelAlbum             ModelType = "album"
	ModelDevicePreference  ModelType = "device_preference"
	ModelDeviceOnlineState ModelType = "device_online_state"
)

// deviceOwnedModels is the fixed classification table backing
// IsDeviceOwned. Shared models (the common case) are simply absent from
// this table rather than listed as "false".
var deviceOwnedModels = map[ModelType]bool{
	ModelDevicePreference:  true,
	ModelDeviceOnlineState: true,
}

// IsDeviceOwned reports whether model is device-owned (state that each
// device maintains independently, like preferences or online status) as
// opposed to shared (replicated log entries every paired device applies
// identically, like tags or entries). The classification is fixed at
// compile time per spec.md §4.6: "the classification is fixed and queried
// through a single predicate".
func IsDeviceOwned(model ModelType) bool {
	return deviceOwnedModels[model]
}

// ChangeType names the kind of mutation a shared-log commit represents.
type ChangeType int

const (
	ChangeInsert ChangeType = iota
	ChangeUpdate
	ChangeDelete
)

// String renders the change type for logging and peer log persistence.
func (c ChangeType) String() string {
	switch c {
	case ChangeInsert:
		return "insert"
	case ChangeUpdate:
		return "update"
	case ChangeDelete:
		return "delete"
	default:
		return "unknown"
	}
}
