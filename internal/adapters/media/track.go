package media

import (
	"context"
	"io"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/edenward/carevoice/internal/domain"
)

// TrackPlayer renders a live inbound assistant track by pumping RTP
// payloads into the shared speaker. The mock backend ships raw PCM16
// payloads; compressed codecs would need a decoder in front of the pipe.
type TrackPlayer struct {
	mu     sync.Mutex
	finish func()
	active bool
}

func NewTrackPlayer() *TrackPlayer { return &TrackPlayer{} }

// Attach starts rendering the remote track and returns a completion
// channel that fires when the track ends or Stop is called.
func (t *TrackPlayer) Attach(ctx context.Context, track *webrtc.TrackRemote, sampleRate int) (<-chan struct{}, error) {
	speakerCtx, err := acquireSpeaker(sampleRate, 2)
	if err != nil {
		return nil, domain.NewVoiceError(domain.PlaybackFailed, err)
	}

	pr, pw := io.Pipe()
	player := speakerCtx.NewPlayer(pr)
	done := make(chan struct{})
	once := &sync.Once{}

	finish := func() {
		once.Do(func() {
			_ = pw.Close()
			_ = player.Close()
			t.mu.Lock()
			t.active = false
			t.finish = nil
			t.mu.Unlock()
			close(done)
			log.Info().Str("module", "media.playback").Msg("live track detached")
		})
	}

	t.mu.Lock()
	t.finish = finish
	t.active = true
	t.mu.Unlock()

	player.Play()
	log.Info().Str("module", "media.playback").Str("track_id", track.ID()).Msg("live track attached")

	go func() {
		defer finish()
		var (
			pkt     *rtp.Packet
			readErr error
		)
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			default:
			}
			pkt, _, readErr = track.ReadRTP()
			if readErr != nil {
				return
			}
			if len(pkt.Payload) == 0 {
				continue
			}
			if _, err := pw.Write(pkt.Payload); err != nil {
				return
			}
		}
	}()

	return done, nil
}

// Stop is idempotent and still fires the completion signal.
func (t *TrackPlayer) Stop() {
	t.mu.Lock()
	finish := t.finish
	t.mu.Unlock()

	if finish != nil {
		finish()
	}
}

func (t *TrackPlayer) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}
