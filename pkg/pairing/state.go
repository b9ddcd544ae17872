package pairing

import "fmt"

// State is one node of the pairing state machine from spec.md §4.8:
//
//	Idle → GeneratingCode → Broadcasting → WaitingForConnection → Connecting
//	  → Authenticating → ExchangingKeys → AwaitingConfirmation
//	  → EstablishingSession → Completed
//	  (any) → Failed{reason}
type State int

const (
	StateIdle State = iota
	StateGeneratingCode
	StateBroadcasting
	StateWaitingForConnection
	StateConnecting
	StateAuthenticating
	StateExchangingKeys
	StateAwaitingConfirmation
	StateEstablishingSession
	StateCompleted
	StateFailed
)

// String renders the state for logging.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateGeneratingCode:
		return "generating_code"
	case StateBroadcasting:
		return "broadcasting"
	case StateWaitingForConnection:
		return "waiting_for_connection"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateExchangingKeys:
		return "exchanging_keys"
	case StateAwaitingConfirmation:
		return "awaiting_confirmation"
	case StateEstablishingSession:
		return "establishing_session"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Role distinguishes the side of a pairing session that generated the code
// from the side that consumed it; the Noise XX roles (initiator/responder)
// and device-exchange verification order both follow this directly.
type Role int

const (
	RoleInitiator Role = iota
	RoleJoiner
)

func (r Role) String() string {
	if r == RoleJoiner {
		return "joiner"
	}
	return "initiator"
}

// Session tracks one pairing attempt's state machine. Every state
// transition from any state to Failed is legal (the "(any) → Failed"
// arrow); all other transitions must follow the sequence above.
type Session struct {
	Role   Role
	Code   *Code
	state  State
	reason string
}

// NewSession starts a session in StateIdle for the given role and code.
func NewSession(role Role, code *Code) *Session {
	return &Session{Role: role, Code: code, state: StateIdle}
}

// State returns the session's current state.
func (s *Session) State() State { return s.state }

// FailureReason returns the reason recorded for a Failed session, or "" if
// the session hasn't failed.
func (s *Session) FailureReason() string { return s.reason }

// order is the legal forward sequence of states; Transition enforces that
// a non-Failed target is the state immediately following the current one.
var order = []State{
	StateIdle,
	StateGeneratingCode,
	StateBroadcasting,
	StateWaitingForConnection,
	StateConnecting,
	StateAuthenticating,
	StateExchangingKeys,
	StateAwaitingConfirmation,
	StateEstablishingSession,
	StateCompleted,
}

func indexOf(s State) int {
	for i, candidate := range order {
		if candidate == s {
			return i
		}
	}
	return -1
}

// Transition advances the session to target. Failing a session is always
// permitted, from any state; any other transition must be the next state
// in sequence, matching the ladder spec.md §4.8 draws.
func (s *Session) Transition(target State) error {
	if s.state == StateFailed {
		return fmt.Errorf("pairing: session already failed: %s", s.reason)
	}
	if target == StateFailed {
		s.state = StateFailed
		return nil
	}

	current := indexOf(s.state)
	next := indexOf(target)
	if current < 0 || next < 0 || next != current+1 {
		return fmt.Errorf("pairing: illegal transition from %s to %s", s.state, target)
	}
	s.state = target
	return nil
}

// Fail transitions the session to Failed, recording reason.
func (s *Session) Fail(reason string) {
	s.state = StateFailed
	s.reason = reason
}
