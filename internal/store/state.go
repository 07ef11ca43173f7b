package store

// ProposalState mirrors the governor contract's state() return value.
type ProposalState string

// All states a governor proposal can occupy.
const (
	StatePending   ProposalState = "Pending"
	StateActive    ProposalState = "Active"
	StateCanceled  ProposalState = "Canceled"
	StateDefeated  ProposalState = "Defeated"
	StateSucceeded ProposalState = "Succeeded"
	StateQueued    ProposalState = "Queued"
	StateExpired   ProposalState = "Expired"
	StateExecuted  ProposalState = "Executed"
	StateUnknown   ProposalState = "Unknown"
)

// ProposalStateFromContract maps the governor's state() uint8 return value
// (0..7) to the enum; anything else maps to Unknown.
func ProposalStateFromContract(raw uint8) ProposalState {
	switch raw {
	case 0:
		return StatePending
	case 1:
		return StateActive
	case 2:
		return StateCanceled
	case 3:
		return StateDefeated
	case 4:
		return StateSucceeded
	case 5:
		return StateQueued
	case 6:
		return StateExpired
	case 7:
		return StateExecuted
	default:
		return StateUnknown
	}
}

// terminalStates are never rolled back to a non-terminal value by the
// reconciler.
var terminalStates = map[ProposalState]struct{}{
	StateCanceled: {},
	StateDefeated: {},
	StateExpired:  {},
	StateExecuted: {},
}

// IsTerminal reports whether s is a terminal state.
func (s ProposalState) IsTerminal() bool {
	_, ok := terminalStates[s]
	return ok
}

// CanTransitionTo reports whether overlaying next onto the current state s
// is allowed. A terminal state never transitions away from itself; every
// other transition is accepted, since the governor contract is the source
// of truth for legality and the indexer only mirrors what it reports.
func (s ProposalState) CanTransitionTo(next ProposalState) bool {
	if s.IsTerminal() {
		return s == next
	}
	return true
}
