package app

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/edenward/carevoice/internal/core"
	"github.com/edenward/carevoice/internal/domain"
	"github.com/edenward/carevoice/internal/observability"
	"github.com/edenward/carevoice/internal/protocol"
)

// Config selects the session's behavior; all of it is decided before
// activation, never mid-session.
type Config struct {
	HospitalID string
	// SessionID, when set, resumes an existing backend handle.
	SessionID string
	// Continuous re-arms capture after each assistant turn; otherwise
	// the session parks in idle until deactivated.
	Continuous bool
	// MaxUtterance bounds one listening turn.
	MaxUtterance time.Duration
}

// Callbacks surface session output to the UI layer. All are optional
// and invoked from the session goroutine; keep them fast.
type Callbacks struct {
	OnTurn       func(core.TurnState)
	OnTranscript func(text string)
	OnResponse   func(text string)
	OnError      func(kind domain.ErrorKind, err error)
}

// Session is the voice-mode orchestrator. It owns the signaling
// channel, the transport (capture), and playback; no other component
// reads the channel or mutates turn state. One session means one
// channel and at most one microphone handle; a new session requires the
// previous one fully torn down.
type Session struct {
	cfg       Config
	channel   core.SignalChannel
	transport Transport
	playback  core.Playback
	metrics   *observability.Metrics
	callbacks Callbacks

	events chan event
	closed chan struct{}

	mu             sync.Mutex
	state          core.SessionState
	voiceSessionID string
	turnGen        uint64

	activateOnce   sync.Once
	deactivateOnce sync.Once
}

func NewSession(
	cfg Config,
	channel core.SignalChannel,
	transport Transport,
	playback core.Playback,
	metrics *observability.Metrics,
	callbacks Callbacks,
) *Session {
	if cfg.MaxUtterance <= 0 {
		cfg.MaxUtterance = 15 * time.Second
	}
	s := &Session{
		cfg:       cfg,
		channel:   channel,
		transport: transport,
		playback:  playback,
		metrics:   metrics,
		callbacks: callbacks,
		events:    make(chan event, 64),
		closed:    make(chan struct{}),
		state:     core.StateIdle,
	}
	transport.SetEmitter(s.emitTransport)
	return s
}

// State reports the current lifecycle state.
func (s *Session) State() core.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Turn reports the UI-facing turn state; exactly one value holds.
func (s *Session) Turn() core.TurnState { return s.State().Turn() }

// VoiceSessionID returns the handle the backend issued on ready.
func (s *Session) VoiceSessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.voiceSessionID
}

// Done closes when the session reaches its terminal state.
func (s *Session) Done() <-chan struct{} { return s.closed }

// Activate starts the session once; later calls are no-ops.
func (s *Session) Activate(ctx context.Context) {
	s.activateOnce.Do(func() {
		go s.run(ctx)
	})
}

// Deactivate requests a user-initiated stop from any state. It always
// runs the full cleanup pass before the session reports Closed.
func (s *Session) Deactivate() {
	s.deactivateOnce.Do(func() {
		ran := true
		// Claim activation; if we win, no run loop will ever start and
		// teardown happens inline.
		s.activateOnce.Do(func() { ran = false })
		if !ran {
			s.shutdown()
			close(s.closed)
			return
		}
		select {
		case s.events <- event{kind: evDeactivate}:
		case <-s.closed:
		}
	})
}

// StopListening ends the user's utterance early, before the
// max-utterance timer fires.
func (s *Session) StopListening() {
	s.enqueue(event{kind: evStopListening})
}

func (s *Session) enqueue(e event) {
	select {
	case <-s.closed:
	case s.events <- e:
	default:
		log.Warn().Str("module", "app.session").Int("kind", int(e.kind)).Msg("event queue full, dropped")
	}
}

func (s *Session) emitTransport(te TransportEvent) {
	switch te.Kind {
	case TransportConnected:
		s.enqueue(event{kind: evTransportUp})
	case TransportFailed:
		s.enqueue(event{kind: evFailure, errK: te.ErrK, err: te.Err})
	}
}

func (s *Session) setState(next core.SessionState) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	s.mu.Unlock()
	if prev == next {
		return
	}
	log.Info().
		Str("module", "app.session").
		Str("from", string(prev)).
		Str("to", string(next)).
		Msg("state transition")
	if s.metrics != nil {
		s.metrics.StateTransitions.WithLabelValues(string(prev), string(next)).Inc()
	}
	if s.callbacks.OnTurn != nil && prev.Turn() != next.Turn() {
		s.callbacks.OnTurn(next.Turn())
	}
}

// run is the only goroutine that transitions the state machine.
func (s *Session) run(ctx context.Context) {
	defer close(s.closed)

	s.setState(core.StateConnecting)
	if err := s.channel.Open(ctx); err != nil {
		s.fail(domain.KindOf(err), err)
		return
	}
	if s.metrics != nil {
		s.metrics.SessionActive.Set(1)
		defer s.metrics.SessionActive.Set(0)
	}

	b, err := protocol.Encode(protocol.NewInit(s.cfg.HospitalID, s.cfg.SessionID))
	if err != nil {
		s.fail(domain.ProtocolError, err)
		return
	}
	if err := s.channel.TrySend(core.FrameText, b); err != nil {
		s.fail(domain.ConnectionError, err)
		return
	}

	go s.pumpFrames()

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return
		case e := <-s.events:
			if terminal := s.dispatch(ctx, e); terminal {
				return
			}
		}
	}
}

// pumpFrames forwards channel frames into the event queue; closure of
// the inbound stream means the transport dropped.
func (s *Session) pumpFrames() {
	for f := range s.channel.Inbound() {
		select {
		case s.events <- event{kind: evSignalFrame, frame: f}:
		case <-s.closed:
			return
		}
	}
	s.enqueue(event{kind: evSignalClosed})
}

// dispatch applies one event; returns true when the session is done.
func (s *Session) dispatch(ctx context.Context, e event) bool {
	switch e.kind {
	case evDeactivate:
		s.shutdown()
		return true

	case evFailure:
		s.fail(e.errK, e.err)
		return true

	case evSignalClosed:
		s.fail(domain.ConnectionError, errors.New("signaling channel closed"))
		return true

	case evSignalFrame:
		return s.onFrame(ctx, e.frame)

	case evStopListening, evListenTimeout:
		if s.State() != core.StateListening {
			return false
		}
		if e.kind == evListenTimeout && !s.currentTurn(e.turn) {
			return false
		}
		s.transport.EndTurn()
		s.setState(core.StateProcessing)
		return false

	case evPlaybackDone:
		if s.State() != core.StateSpeaking {
			return false
		}
		if s.metrics != nil {
			s.metrics.TurnsCompleted.Inc()
		}
		return s.afterTurn(ctx)

	case evTransportUp:
		log.Info().Str("module", "app.session").Msg("media transport connected")
		return false
	}
	return false
}

func (s *Session) onFrame(ctx context.Context, f core.InboundFrame) bool {
	if f.Kind == core.FrameBinary {
		// The backend never pushes binary frames to this client.
		log.Warn().Str("module", "app.session").Int("bytes", len(f.Data)).Msg("unexpected binary frame ignored")
		return false
	}

	msg, err := protocol.ParseServerMessage(f.Data)
	if err != nil {
		s.fail(domain.ProtocolError, err)
		return true
	}

	switch m := msg.(type) {
	case protocol.Ready:
		return s.onReady(ctx, m)

	case protocol.Transcription:
		// Surfaces text in any live state; does not change turn state.
		if s.callbacks.OnTranscript != nil {
			s.callbacks.OnTranscript(m.Text)
		}
		return false

	case protocol.Response:
		return s.onResponse(ctx, m)

	case protocol.Answer:
		if err := s.transport.OnAnswer(m.Answer); err != nil {
			s.fail(domain.KindOf(err), err)
			return true
		}
		return false

	case protocol.ICECandidate:
		if err := s.transport.OnRemoteCandidate(m.Candidate); err != nil {
			s.fail(domain.KindOf(err), err)
			return true
		}
		return false

	case protocol.ErrorMessage:
		s.fail(domain.ProtocolError, errors.New(m.Detail))
		return true
	}
	return false
}

func (s *Session) onReady(ctx context.Context, m protocol.Ready) bool {
	if s.State() != core.StateConnecting {
		// Duplicate ready is tolerated, not fatal.
		log.Warn().Str("module", "app.session").Str("state", string(s.State())).Msg("ready ignored")
		return false
	}
	s.mu.Lock()
	s.voiceSessionID = m.SessionID
	s.mu.Unlock()
	return s.arm(ctx)
}

// arm starts (or re-starts) the listening turn.
func (s *Session) arm(ctx context.Context) bool {
	if err := s.transport.Arm(ctx); err != nil {
		s.fail(domain.KindOf(err), err)
		return true
	}
	s.setState(core.StateListening)
	s.armListenTimer()
	return false
}

func (s *Session) armListenTimer() {
	s.mu.Lock()
	s.turnGen++
	gen := s.turnGen
	s.mu.Unlock()
	time.AfterFunc(s.cfg.MaxUtterance, func() {
		s.enqueue(event{kind: evListenTimeout, turn: gen})
	})
}

func (s *Session) currentTurn(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gen == s.turnGen
}

func (s *Session) onResponse(ctx context.Context, m protocol.Response) bool {
	switch s.State() {
	case core.StateListening, core.StateProcessing:
	default:
		// Before ready, or after close: meaningless here, ignore.
		log.Warn().Str("module", "app.session").Str("state", string(s.State())).Msg("response ignored")
		return false
	}

	// Capture never overlaps playback.
	if s.transport.CaptureActive() {
		s.transport.EndTurn()
	}

	if s.callbacks.OnResponse != nil {
		s.callbacks.OnResponse(m.Text)
	}

	if m.Audio == "" {
		// Nothing to speak; the turn ends immediately.
		return s.afterTurn(ctx)
	}

	payload, err := base64.StdEncoding.DecodeString(m.Audio)
	if err != nil {
		s.fail(domain.ProtocolError, err)
		return true
	}
	done, err := s.playback.Play(payload)
	if err != nil {
		s.fail(domain.KindOf(err), err)
		return true
	}
	s.setState(core.StateSpeaking)
	go func() {
		<-done
		s.enqueue(event{kind: evPlaybackDone})
	}()
	return false
}

// afterTurn re-arms capture in continuous mode or parks the session.
func (s *Session) afterTurn(ctx context.Context) bool {
	if s.cfg.Continuous {
		return s.arm(ctx)
	}
	s.setState(core.StateIdle)
	return false
}

// fail runs the cleanup contract, surfaces the error and terminates.
func (s *Session) fail(kind domain.ErrorKind, err error) {
	log.Error().Err(err).Str("module", "app.session").Str("kind", string(kind)).Msg("voice session failed")
	if s.metrics != nil {
		s.metrics.VoiceErrors.WithLabelValues(string(kind)).Inc()
	}
	s.cleanup()
	s.setState(core.StateClosed)
	if s.callbacks.OnError != nil {
		s.callbacks.OnError(kind, err)
	}
}

func (s *Session) shutdown() {
	s.cleanup()
	s.setState(core.StateClosed)
}

// cleanup is the one teardown path: stop playback, stop capture and
// close the media session, then close the channel. Every step runs even
// if an earlier one panics, and nothing propagates to the caller.
func (s *Session) cleanup() {
	steps := []struct {
		name string
		fn   func()
	}{
		{"playback", s.playback.Stop},
		{"transport", s.transport.Close},
		{"channel", s.channel.Close},
	}
	for _, step := range steps {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Str("module", "app.session").
						Str("step", step.name).
						Interface("panic", r).
						Msg("cleanup step panicked")
				}
			}()
			step.fn()
		}()
	}
}
