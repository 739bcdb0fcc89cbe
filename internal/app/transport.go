package app

import (
	"context"
	"errors"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/edenward/carevoice/internal/core"
	"github.com/edenward/carevoice/internal/domain"
	"github.com/edenward/carevoice/internal/protocol"
)

// Transport is the strategy for moving the user's audio to the backend.
// Exactly two variants exist: chunked upload over the signaling channel
// and a peer-to-peer media session. The choice is configuration, made
// once; the session state machine is identical for both.
type Transport interface {
	// SetEmitter installs the session's event sink for asynchronous
	// transport outcomes. Called once before Arm.
	SetEmitter(emit func(TransportEvent))
	// Arm starts capturing the user's turn. Called on the backend's
	// ready event and again on each re-arm in continuous mode.
	Arm(ctx context.Context) error
	// EndTurn stops capture, releases the microphone and tells the
	// backend the utterance is over. Idempotent.
	EndTurn()
	// OnAnswer and OnRemoteCandidate feed negotiation messages from the
	// signaling channel. The chunked variant logs and ignores them.
	OnAnswer(desc protocol.SessionDescription) error
	OnRemoteCandidate(c protocol.Candidate) error
	// CaptureActive reports whether the microphone is currently held.
	CaptureActive() bool
	// Close releases capture and any media session. Idempotent.
	Close()
}

// ChunkedUpload streams capture output as binary frames over the
// signaling channel, closing each utterance with an audio-end message.
// It serves both the periodic-chunk and the single-recording capture
// modes; the capture unit's mode decides which callback fires.
type ChunkedUpload struct {
	channel core.SignalChannel
	capture core.Capture
	emit    func(TransportEvent)
}

func NewChunkedUpload(channel core.SignalChannel, capture core.Capture) *ChunkedUpload {
	return &ChunkedUpload{channel: channel, capture: capture}
}

func (t *ChunkedUpload) SetEmitter(emit func(TransportEvent)) { t.emit = emit }

func (t *ChunkedUpload) Arm(ctx context.Context) error {
	return t.capture.Start(ctx, chunkSink{channel: t.channel})
}

func (t *ChunkedUpload) EndTurn() {
	if !t.capture.Active() {
		return
	}
	// Stop first: in single mode this flushes the recording through the
	// sink before audio-end goes out.
	t.capture.Stop()
	b, err := protocol.Encode(protocol.NewAudioEnd())
	if err != nil {
		log.Error().Err(err).Str("module", "app.transport").Msg("encode audio-end")
		return
	}
	if err := t.channel.TrySend(core.FrameText, b); err != nil {
		log.Error().Err(err).Str("module", "app.transport").Msg("send audio-end")
	}
}

func (t *ChunkedUpload) OnAnswer(protocol.SessionDescription) error {
	log.Warn().Str("module", "app.transport").Msg("answer ignored in chunked mode")
	return nil
}

func (t *ChunkedUpload) OnRemoteCandidate(protocol.Candidate) error {
	log.Warn().Str("module", "app.transport").Msg("ice-candidate ignored in chunked mode")
	return nil
}

func (t *ChunkedUpload) CaptureActive() bool { return t.capture.Active() }

func (t *ChunkedUpload) Close() { t.capture.Stop() }

// chunkSink forwards capture output to the channel as binary frames.
type chunkSink struct {
	channel core.SignalChannel
}

func (s chunkSink) Chunk(data []byte) {
	if err := s.channel.TrySend(core.FrameBinary, data); err != nil {
		log.Error().Err(err).Str("module", "app.transport").Int("bytes", len(data)).Msg("chunk dropped")
	}
}

func (s chunkSink) Recording(wav []byte) {
	if err := s.channel.TrySend(core.FrameBinary, wav); err != nil {
		log.Error().Err(err).Str("module", "app.transport").Int("bytes", len(wav)).Msg("recording dropped")
	}
}

// LivePlayback renders a live inbound media track; implemented by
// media.TrackPlayer.
type LivePlayback interface {
	Attach(ctx context.Context, track *webrtc.TrackRemote, sampleRate int) (<-chan struct{}, error)
	Stop()
	Active() bool
}

// PeerToPeer ships audio over a negotiated media session. The offer
// goes out on Arm; candidates trickle both ways over the signaling
// channel; Connected is reached only when the first candidate pair
// succeeds, bounded by the negotiation timeout.
type PeerToPeer struct {
	channel    core.SignalChannel
	capture    core.Capture
	negotiator core.MediaConnection
	live       LivePlayback
	sampleRate int
	timeout    time.Duration
	emit       func(TransportEvent)

	track      *webrtc.TrackLocalStaticSample
	negotiated bool
	connected  chan struct{}
}

type PeerToPeerConfig struct {
	SampleRate         int
	NegotiationTimeout time.Duration
}

func NewPeerToPeer(
	channel core.SignalChannel,
	capture core.Capture,
	negotiator core.MediaConnection,
	live LivePlayback,
	cfg PeerToPeerConfig,
) *PeerToPeer {
	if cfg.NegotiationTimeout <= 0 {
		cfg.NegotiationTimeout = 15 * time.Second
	}
	return &PeerToPeer{
		channel:    channel,
		capture:    capture,
		negotiator: negotiator,
		live:       live,
		sampleRate: cfg.SampleRate,
		timeout:    cfg.NegotiationTimeout,
		connected:  make(chan struct{}),
	}
}

func (t *PeerToPeer) SetEmitter(emit func(TransportEvent)) { t.emit = emit }

func (t *PeerToPeer) Arm(ctx context.Context) error {
	if !t.negotiated {
		if err := t.negotiate(ctx); err != nil {
			return err
		}
		t.negotiated = true
	}
	return t.capture.Start(ctx, nopSink{})
}

func (t *PeerToPeer) negotiate(ctx context.Context) error {
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "carevoice-mic")
	if err != nil {
		return domain.NewVoiceError(domain.NegotiationFailed, err)
	}
	t.track = track
	if _, err := t.negotiator.AddLocalTrack(track); err != nil {
		return domain.NewVoiceError(domain.NegotiationFailed, err)
	}
	if binder, ok := t.capture.(interface {
		BindTrack(track *webrtc.TrackLocalStaticSample)
	}); ok {
		binder.BindTrack(track)
	}

	t.negotiator.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		cand := protocol.Candidate{
			Candidate:     ci.Candidate,
			SDPMid:        ci.SDPMid,
			SDPMLineIndex: ci.SDPMLineIndex,
		}
		b, err := protocol.Encode(protocol.NewICECandidate(cand))
		if err != nil {
			log.Error().Err(err).Str("module", "app.transport").Msg("encode candidate")
			return
		}
		if err := t.channel.TrySend(core.FrameText, b); err != nil {
			log.Error().Err(err).Str("module", "app.transport").Msg("send candidate")
		}
	})

	t.negotiator.OnTrack(func(trackCtx context.Context, remote *webrtc.TrackRemote) {
		if t.live == nil {
			return
		}
		if _, err := t.live.Attach(trackCtx, remote, t.sampleRate); err != nil {
			log.Error().Err(err).Str("module", "app.transport").Msg("attach remote track")
		}
	})

	t.negotiator.OnConnected(func() {
		select {
		case <-t.connected:
		default:
			close(t.connected)
		}
		if t.emit != nil {
			t.emit(TransportEvent{Kind: TransportConnected})
		}
	})

	if err := t.negotiator.Start(ctx); err != nil {
		return domain.NewVoiceError(domain.NegotiationFailed, err)
	}

	offer, err := t.negotiator.CreateAndSetOffer()
	if err != nil {
		return domain.NewVoiceError(domain.NegotiationFailed, err)
	}
	b, err := protocol.Encode(protocol.NewOffer(offer.SDP, offer.Type.String()))
	if err != nil {
		return domain.NewVoiceError(domain.NegotiationFailed, err)
	}
	if err := t.channel.TrySend(core.FrameText, b); err != nil {
		return domain.NewVoiceError(domain.NegotiationFailed, err)
	}

	// ICE failure or timeout is fatal, never silently retried.
	go func() {
		select {
		case <-t.connected:
		case <-ctx.Done():
		case <-time.After(t.timeout):
			if t.emit != nil {
				t.emit(TransportEvent{
					Kind: TransportFailed,
					ErrK: domain.NegotiationFailed,
					Err:  errors.New("negotiation timeout"),
				})
			}
		}
	}()

	return nil
}

func (t *PeerToPeer) EndTurn() {
	if !t.capture.Active() {
		return
	}
	t.capture.Stop()
	b, err := protocol.Encode(protocol.NewAudioEnd())
	if err != nil {
		log.Error().Err(err).Str("module", "app.transport").Msg("encode audio-end")
		return
	}
	if err := t.channel.TrySend(core.FrameText, b); err != nil {
		log.Error().Err(err).Str("module", "app.transport").Msg("send audio-end")
	}
}

func (t *PeerToPeer) OnAnswer(desc protocol.SessionDescription) error {
	if err := t.negotiator.ApplyAnswer(webrtc.SessionDescription{
		Type: webrtc.NewSDPType(desc.Type),
		SDP:  desc.SDP,
	}); err != nil {
		return domain.NewVoiceError(domain.NegotiationFailed, err)
	}
	return nil
}

func (t *PeerToPeer) OnRemoteCandidate(c protocol.Candidate) error {
	ci := webrtc.ICECandidateInit{
		Candidate:     c.Candidate,
		SDPMid:        c.SDPMid,
		SDPMLineIndex: c.SDPMLineIndex,
	}
	if err := t.negotiator.AddICECandidate(ci); err != nil {
		return domain.NewVoiceError(domain.NegotiationFailed, err)
	}
	return nil
}

func (t *PeerToPeer) CaptureActive() bool { return t.capture.Active() }

func (t *PeerToPeer) Close() {
	t.capture.Stop()
	if t.live != nil {
		t.live.Stop()
	}
	t.negotiator.Close()
}

// nopSink: in track mode the microphone writes into the bound track,
// not through the sink.
type nopSink struct{}

func (nopSink) Chunk([]byte)     {}
func (nopSink) Recording([]byte) {}
