// Package core holds the interfaces the session state machine owns.
// Adapters implement them; nothing here touches sockets or hardware.
package core

// Frame is a raw payload moving through the signaling channel. Text
// frames carry control JSON, binary frames carry audio.
type Frame []byte

// FrameKind distinguishes the two websocket payload classes.
type FrameKind int

const (
	FrameText FrameKind = iota
	FrameBinary
)

// InboundFrame is what the channel delivers to its single consumer.
type InboundFrame struct {
	Kind FrameKind
	Data Frame
}

// SessionState is the orchestrator's full lifecycle state.
type SessionState string

const (
	StateIdle       SessionState = "idle"
	StateConnecting SessionState = "connecting"
	StateListening  SessionState = "listening"
	StateProcessing SessionState = "processing"
	StateSpeaking   SessionState = "speaking"
	StateClosed     SessionState = "closed"
)

// TurnState is the UI-facing projection: exactly one holds at any instant.
type TurnState string

const (
	TurnIdle      TurnState = "idle"
	TurnListening TurnState = "listening"
	TurnSpeaking  TurnState = "speaking"
)

// Turn maps a session state onto its turn projection.
func (s SessionState) Turn() TurnState {
	switch s {
	case StateListening:
		return TurnListening
	case StateSpeaking:
		return TurnSpeaking
	default:
		return TurnIdle
	}
}
