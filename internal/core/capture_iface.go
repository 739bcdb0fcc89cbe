package core

import "context"

// CaptureMode is fixed at construction; it is a configuration choice,
// never a runtime branch on data.
type CaptureMode string

const (
	// CaptureChunked pushes periodic encoded chunks to the sink.
	CaptureChunked CaptureMode = "chunked"
	// CaptureSingle accumulates one utterance and emits it whole on stop.
	CaptureSingle CaptureMode = "single"
	// CaptureTrack feeds a live media track owned by the negotiator.
	CaptureTrack CaptureMode = "track"
)

// CaptureOptions mirror the recognized getUserMedia audio constraints.
type CaptureOptions struct {
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
	SampleRate       int
}

// CaptureSink receives what the microphone produces. Chunk is called per
// period in chunked mode; Recording exactly once in single mode.
type CaptureSink interface {
	Chunk(data []byte)
	Recording(wav []byte)
}

// Capture acquires and releases the microphone. Start fails with a
// PermissionDenied or DeviceUnavailable voice error; those are fatal to
// the session and never retried here.
type Capture interface {
	Start(ctx context.Context, sink CaptureSink) error
	// Stop is idempotent and releases the hardware device, not merely
	// pausing it.
	Stop()
	Active() bool
}
