package lin

// Role is the bus role of an engine.
type Role int

// Roles.
const (
	RoleNode Role = iota
	RoleHost
)

// String implements fmt.Stringer.
func (r Role) String() string {
	if r == RoleHost {
		return "host"
	}
	return "node"
}

// State is the transceiver lifecycle state.
type State int

const (
	// StatePowerOnReset is the state before Begin.
	StatePowerOnReset State = iota
	// StateReady means RX is on and the bus may be used.
	StateReady
	// StateTxOff is reserved, the engine never enters it.
	StateTxOff
	// StateOperational is not tracked separately; exchanges happen in StateReady.
	StateOperational
	// StateSleep means the transceiver is disabled until Wake.
	StateSleep
)

var stateNames = [...]string{"power-on-reset", "ready", "tx-off", "operational", "sleep"}

// String implements fmt.Stringer.
func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}
