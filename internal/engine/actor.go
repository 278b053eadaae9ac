package engine

// Actor identifies who is invoking an engine operation. It is passed
// explicitly into every call; the engine keeps no ambient request state.
// System holds the zero UserID and is used by the scheduler sweeps.
type Actor struct {
	UserID    uint
	CompanyID uint
}

// System is the actor recorded for scheduler-driven transitions.
var System = Actor{}
