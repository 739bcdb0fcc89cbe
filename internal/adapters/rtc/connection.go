// Package rtc drives the client side of the offer/answer/ICE exchange
// that establishes the peer-to-peer audio transport.
package rtc

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

func DefaultWebRTCConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{"stun:stun.l.google.com:19302"},
			},
		},
	}
}

// Negotiator wraps a pion PeerConnection in the offering role. Remote
// candidates arriving before the answer are queued and flushed once the
// remote description is set.
type Negotiator struct {
	pc     *webrtc.PeerConnection
	cancel context.CancelFunc

	mu        sync.Mutex
	remoteSet bool
	pending   []webrtc.ICECandidateInit
	closed    bool

	onICE       func(webrtc.ICECandidateInit)
	onTrack     func(ctx context.Context, track *webrtc.TrackRemote)
	onConnected func()
	onClosed    func()
}

func NewNegotiator(cfg webrtc.Configuration) (*Negotiator, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	return &Negotiator{pc: pc}, nil
}

func (n *Negotiator) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	n.cancel = cancel

	n.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "rtc").Str("ice_state", s.String()).Msg("ICE state")
		if s == webrtc.ICEConnectionStateDisconnected ||
			s == webrtc.ICEConnectionStateFailed ||
			s == webrtc.ICEConnectionStateClosed {
			cancel()
		}
	})

	n.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("peer_connection_state", s.String()).Msg("Peer state")
		switch s {
		case webrtc.PeerConnectionStateConnected:
			// Connected means the first candidate pair succeeded; answer
			// receipt alone never reports this.
			if n.onConnected != nil {
				n.onConnected()
			}
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			if n.onClosed != nil {
				n.onClosed()
			}
		}
	})

	n.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand != nil && n.onICE != nil {
			n.onICE(cand.ToJSON())
		}
	})

	n.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "rtc").
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Msg("remote track")
		if n.onTrack != nil {
			n.onTrack(ctx, track)
		}
	})

	return nil
}

// CreateAndSetOffer produces the local SDP to ship over the signaling
// channel. Candidates trickle through OnICECandidate afterwards.
func (n *Negotiator) CreateAndSetOffer() (*webrtc.SessionDescription, error) {
	offer, err := n.pc.CreateOffer(nil)
	if err != nil {
		return nil, err
	}
	if err := n.pc.SetLocalDescription(offer); err != nil {
		return nil, err
	}
	return n.pc.LocalDescription(), nil
}

// ApplyAnswer sets the remote description and flushes every queued
// candidate in arrival order.
func (n *Negotiator) ApplyAnswer(answer webrtc.SessionDescription) error {
	if err := n.pc.SetRemoteDescription(answer); err != nil {
		return err
	}

	n.mu.Lock()
	n.remoteSet = true
	queued := n.pending
	n.pending = nil
	n.mu.Unlock()

	for _, ci := range queued {
		if err := n.pc.AddICECandidate(ci); err != nil {
			return err
		}
	}
	return nil
}

// AddICECandidate applies a remote candidate, queueing it until the
// remote description is set. Queued candidates are never dropped.
func (n *Negotiator) AddICECandidate(ci webrtc.ICECandidateInit) error {
	n.mu.Lock()
	if !n.remoteSet {
		n.pending = append(n.pending, ci)
		n.mu.Unlock()
		return nil
	}
	n.mu.Unlock()
	return n.pc.AddICECandidate(ci)
}

func (n *Negotiator) OnICECandidate(fn func(webrtc.ICECandidateInit)) { n.onICE = fn }

func (n *Negotiator) OnTrack(fn func(ctx context.Context, track *webrtc.TrackRemote)) {
	n.onTrack = fn
}

func (n *Negotiator) OnConnected(fn func()) { n.onConnected = fn }

func (n *Negotiator) OnClosed(fn func()) { n.onClosed = fn }

// AddLocalTrack attaches the microphone track to the PeerConnection.
func (n *Negotiator) AddLocalTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error) {
	return n.pc.AddTrack(track)
}

// Close is idempotent and releases the peer connection.
func (n *Negotiator) Close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	n.mu.Unlock()

	if n.cancel != nil {
		n.cancel()
	}
	if err := n.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "rtc").Msg("close error")
	} else {
		log.Info().Str("module", "rtc").Msg("closed")
	}
	if n.onClosed != nil {
		n.onClosed()
	}
}
