package core

// Playback renders assistant audio and reports one completion per play.
type Playback interface {
	// Play starts rendering the encoded buffer and returns a channel
	// that fires exactly once when playback finishes, whether it drains
	// naturally or Stop truncates it.
	Play(encoded []byte) (<-chan struct{}, error)
	// Stop is idempotent. It forcibly ends playback and still fires the
	// completion signal so no one deadlocks waiting for it.
	Stop()
	Active() bool
}
