package media

import (
	"bytes"
	"errors"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	mp3 "github.com/hajimehoshi/go-mp3"
	"github.com/rs/zerolog/log"

	"github.com/edenward/carevoice/internal/domain"
)

// oto allows one context per process; every Playback shares it. The
// first successful Play fixes the output sample rate.
var speaker struct {
	mu   sync.Mutex
	ctx  *oto.Context
	rate int
}

func acquireSpeaker(sampleRate, channels int) (*oto.Context, error) {
	speaker.mu.Lock()
	defer speaker.mu.Unlock()
	if speaker.ctx != nil {
		if speaker.rate != sampleRate {
			log.Warn().
				Str("module", "media.playback").
				Int("have", speaker.rate).
				Int("want", sampleRate).
				Msg("speaker context rate mismatch, reusing existing")
		}
		return speaker.ctx, nil
	}

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return nil, err
	}
	<-ready
	speaker.ctx = ctx
	speaker.rate = sampleRate
	return ctx, nil
}

// Playback implements core.Playback: decode an MP3 response buffer and
// render it, reporting one completion per play. At most one utterance
// plays at a time; starting a new one stops the previous.
type Playback struct {
	mu     sync.Mutex
	player *oto.Player
	done   chan struct{}
	once   *sync.Once
	active bool
}

func NewPlayback() *Playback { return &Playback{} }

// Play decodes and starts the buffer, returning the completion channel.
// Decode and device failures map to PlaybackFailed.
func (p *Playback) Play(encoded []byte) (<-chan struct{}, error) {
	if len(encoded) == 0 {
		return nil, domain.NewVoiceError(domain.PlaybackFailed, errors.New("empty audio payload"))
	}

	dec, err := mp3.NewDecoder(bytes.NewReader(encoded))
	if err != nil {
		return nil, domain.NewVoiceError(domain.PlaybackFailed, err)
	}

	// go-mp3 always emits 16-bit stereo at the stream's rate.
	ctx, err := acquireSpeaker(dec.SampleRate(), 2)
	if err != nil {
		return nil, domain.NewVoiceError(domain.PlaybackFailed, err)
	}

	// The previous utterance, if any, is cut off rather than overlapped.
	p.Stop()

	p.mu.Lock()
	player := ctx.NewPlayer(dec)
	done := make(chan struct{})
	once := &sync.Once{}
	p.player = player
	p.done = done
	p.once = once
	p.active = true
	p.mu.Unlock()

	player.Play()
	log.Info().Str("module", "media.playback").Int("bytes", len(encoded)).Msg("playback started")

	go p.watch(player, done, once)
	return done, nil
}

// watch polls the player until it drains, then fires completion.
func (p *Playback) watch(player *oto.Player, done chan struct{}, once *sync.Once) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		select {
		case <-done:
			return
		default:
		}
		if !player.IsPlaying() {
			p.finish(player, done, once)
			return
		}
	}
}

func (p *Playback) finish(player *oto.Player, done chan struct{}, once *sync.Once) {
	once.Do(func() {
		_ = player.Close()
		close(done)
		p.mu.Lock()
		if p.player == player {
			p.active = false
			p.player = nil
		}
		p.mu.Unlock()
		log.Info().Str("module", "media.playback").Msg("playback complete")
	})
}

// Stop is idempotent. It forcibly ends playback and still fires the
// completion signal so the state machine never waits on a dead player.
func (p *Playback) Stop() {
	p.mu.Lock()
	player := p.player
	done := p.done
	once := p.once
	p.mu.Unlock()

	if player == nil {
		return
	}
	p.finish(player, done, once)
}

func (p *Playback) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}
