package core

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// MediaConnection is the client side of the offer/answer/ICE exchange.
type MediaConnection interface {
	// Start configures internal callbacks and binds the connection lifetime to ctx.
	Start(ctx context.Context) error
	// CreateAndSetOffer produces the local SDP to ship over signaling.
	CreateAndSetOffer() (*webrtc.SessionDescription, error)
	// ApplyAnswer sets the remote description and flushes any ICE
	// candidates that arrived before it.
	ApplyAnswer(webrtc.SessionDescription) error
	// AddICECandidate applies a remote candidate, queueing it when the
	// remote description is not set yet. Queued candidates are flushed
	// in arrival order, never dropped.
	AddICECandidate(webrtc.ICECandidateInit) error
	// OnICECandidate sets a callback for newly gathered local candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	// OnTrack sets a callback invoked when the remote assistant track arrives.
	OnTrack(func(ctx context.Context, track *webrtc.TrackRemote))
	// OnConnected fires once the first candidate pair succeeds; answer
	// receipt alone does not mean connected.
	OnConnected(func())
	// OnClosed sets a callback for media-session teardown.
	OnClosed(func())
	// AddLocalTrack attaches the microphone track to the peer connection.
	AddLocalTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error)
	// Close should stop all underlying media resources. Idempotent.
	Close()
}
