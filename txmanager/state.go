package txmanager

// TransactionState is the lifecycle state of a participant.
type TransactionState int

const (
	StateNone TransactionState = iota
	StateActive
	StatePreparing
	StatePrepared
	StateCommitting1PC
	StateCommitting2PC
	StateCommitted
	StateRollingBack
	StateRolledBack

	numStates
)

var stateNames = [numStates]string{
	StateNone:          "NONE",
	StateActive:        "ACTIVE",
	StatePreparing:     "PREPARING",
	StatePrepared:      "PREPARED",
	StateCommitting1PC: "COMMITTING_1PC",
	StateCommitting2PC: "COMMITTING_2PC",
	StateCommitted:     "COMMITTED",
	StateRollingBack:   "ROLLINGBACK",
	StateRolledBack:    "ROLLEDBACK",
}

func (s TransactionState) String() string {
	if s < 0 || s >= numStates {
		return "UNKNOWN"
	}
	return stateNames[s]
}

// IsTerminal reports whether no further protocol step is possible.
func (s TransactionState) IsTerminal() bool {
	return s == StateCommitted || s == StateRolledBack
}

// TransactionType tags the participant variant.
type TransactionType int

const (
	AutoCommit TransactionType = iota + 1
	Local
	Global
)

func (t TransactionType) String() string {
	switch t {
	case AutoCommit:
		return "AUTO_COMMIT"
	case Local:
		return "LOCAL"
	case Global:
		return "GLOBAL"
	}
	return "UNKNOWN"
}

// event is a request to move the state machine.
type event int

const (
	evBegin           event = iota // reuse of a local transaction
	evPrepare                      // prepare started
	evPrepared                     // prepare finished
	evCommit1PC                    // one-phase commit started
	evCommit2PC                    // second phase started
	evCommitted                    // commit finished
	evCommitRetry                  // second phase failed before anything was durable
	evRollback                     // rollback requested by a caller
	evAbortInFlight                // prepare or one-phase commit failed, roll back
	evRolledBack                   // rollback finished

	numEvents
)

const stateError TransactionState = -1

// nextState[ev][from] is the state after ev, or stateError when ev is illegal
// in from.
var nextState [numEvents][numStates]TransactionState

func init() {
	for ev := range nextState {
		for from := range nextState[ev] {
			nextState[ev][from] = stateError
		}
	}
	allow := func(ev event, to TransactionState, from ...TransactionState) {
		for _, f := range from {
			nextState[ev][f] = to
		}
	}
	allow(evBegin, StateActive, StateNone, StateCommitted, StateRolledBack)
	allow(evPrepare, StatePreparing, StateActive)
	allow(evPrepared, StatePrepared, StatePreparing)
	allow(evCommit1PC, StateCommitting1PC, StateActive)
	allow(evCommit2PC, StateCommitting2PC, StatePrepared)
	allow(evCommitted, StateCommitted, StateCommitting1PC, StateCommitting2PC)
	allow(evCommitRetry, StatePrepared, StateCommitting2PC)
	// a rollback that failed part way leaves ROLLINGBACK and may be retried
	allow(evRollback, StateRollingBack, StateActive, StatePrepared, StateRollingBack)
	allow(evAbortInFlight, StateRollingBack, StatePreparing, StateCommitting1PC)
	allow(evRolledBack, StateRolledBack, StateRollingBack)
}

// transition returns the state that follows ev in from.
func transition(from TransactionState, ev event) (TransactionState, bool) {
	if from < 0 || from >= numStates || ev < 0 || ev >= numEvents {
		return stateError, false
	}
	to := nextState[ev][from]
	return to, to != stateError
}
