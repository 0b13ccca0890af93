package supervisor

import "time"

// State is the producer process lifecycle state.
type State string

const (
	StateNotStarted       State = "not_started"
	StateRunning          State = "running"
	StateStoppingGraceful State = "stopping_graceful"
	StateStoppingForced   State = "stopping_forced"
	StateStopped          State = "stopped"
	StateCrashed          State = "crashed"
)

// AllStates lists every state, for the state gauge.
func AllStates() []string {
	return []string{
		string(StateNotStarted),
		string(StateRunning),
		string(StateStoppingGraceful),
		string(StateStoppingForced),
		string(StateStopped),
		string(StateCrashed),
	}
}

// IsStopping reports whether the state is one of the shutdown stages.
func (s State) IsStopping() bool {
	return s == StateStoppingGraceful || s == StateStoppingForced
}

// Event records a lifecycle transition for the operator log.
type Event struct {
	Time     time.Time `json:"time"`
	State    State     `json:"state"`
	PID      int       `json:"pid,omitempty"`
	ExitCode int       `json:"exit_code,omitempty"`
	Crash    bool      `json:"crash,omitempty"`
	Message  string    `json:"message,omitempty"`
}

// maxEvents bounds the retained event history.
const maxEvents = 128
