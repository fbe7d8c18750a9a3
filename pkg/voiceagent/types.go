package voiceagent

import "time"

// State enum
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateConnected  State = "connected"
	StateError      State = "error"
	StateClosed     State = "closed"
)

// Token is a short-lived bearer credential for one connection attempt.
type Token struct {
	AccessToken string
	ExpiresIn   time.Duration
}

// FrameKind distinguishes control/event data from synthesized audio.
type FrameKind int

const (
	FrameText FrameKind = iota + 1
	FrameBinary
)

func (k FrameKind) String() string {
	switch k {
	case FrameText:
		return "text"
	case FrameBinary:
		return "binary"
	default:
		return "unknown"
	}
}

// InboundFrame is a single message received from the agent.
type InboundFrame struct {
	Kind FrameKind
	Data []byte
}

// Snapshot is the read-only view of a session handed to UI layers.
type Snapshot struct {
	SessionID string
	State     State
	HasSocket bool
	// Degraded is set once the reconnect ceiling is hit. It is a heuristic for
	// "likely rate-limited": repeated closes look the same whatever the cause.
	Degraded  bool
	Attempts  int
	LastError *SessionError
}

// LikelyRateLimited reports the degraded heuristic under its user-facing name.
func (s Snapshot) LikelyRateLimited() bool {
	return s.Degraded
}

// Handler types
type StateHandler func(Snapshot)
type FrameHandler func(InboundFrame)
type ErrorHandler func(*SessionError)
type AudioDataHandler func([]float32)
