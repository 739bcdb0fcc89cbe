// Package media owns the audio hardware: microphone capture through
// malgo and assistant playback through oto. The session state machine
// never touches devices directly.
package media

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog/log"

	"github.com/edenward/carevoice/internal/audio"
	"github.com/edenward/carevoice/internal/core"
	"github.com/edenward/carevoice/internal/domain"
)

const capturePeriodMs = 20

var errAlreadyActive = errors.New("capture already active")

type CaptureConfig struct {
	Mode          core.CaptureMode
	Options       core.CaptureOptions
	ChunkInterval time.Duration
}

// Capture implements core.Capture over a malgo capture device. The mode
// is fixed at construction.
type Capture struct {
	cfg   CaptureConfig
	track *webrtc.TrackLocalStaticSample

	mu      sync.Mutex
	active  bool
	mctx    *malgo.AllocatedContext
	device  *malgo.Device
	sink    core.CaptureSink
	pcm     []byte
	pending []byte
}

func NewCapture(cfg CaptureConfig) *Capture {
	if cfg.Options.SampleRate <= 0 {
		cfg.Options.SampleRate = audio.DefaultSampleRate
	}
	if cfg.ChunkInterval <= 0 {
		cfg.ChunkInterval = 100 * time.Millisecond
	}
	return &Capture{cfg: cfg}
}

// BindTrack attaches the negotiator-owned local track that CaptureTrack
// mode writes into. Must be set before Start in that mode.
func (c *Capture) BindTrack(track *webrtc.TrackLocalStaticSample) { c.track = track }

// Start acquires the microphone. Denied access maps to PermissionDenied,
// a missing or failing input device to DeviceUnavailable; both are fatal
// to the voice session.
func (c *Capture) Start(ctx context.Context, sink core.CaptureSink) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active {
		return domain.NewVoiceError(domain.DeviceUnavailable, errAlreadyActive)
	}
	if c.cfg.Mode == core.CaptureTrack && c.track == nil {
		return domain.NewVoiceError(domain.DeviceUnavailable, errors.New("no local track bound"))
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return classifyCaptureErr(err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(c.cfg.Options.SampleRate)
	deviceConfig.PeriodSizeInMilliseconds = capturePeriodMs

	c.sink = sink
	c.pcm = c.pcm[:0]
	c.pending = c.pending[:0]

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: func(_, in []byte, _ uint32) { c.onData(in) },
	})
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return classifyCaptureErr(err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = mctx.Uninit()
		mctx.Free()
		return classifyCaptureErr(err)
	}

	c.mctx = mctx
	c.device = device
	c.active = true
	log.Info().
		Str("module", "media.capture").
		Str("mode", string(c.cfg.Mode)).
		Int("sample_rate", c.cfg.Options.SampleRate).
		Bool("echo_cancellation", c.cfg.Options.EchoCancellation).
		Bool("noise_suppression", c.cfg.Options.NoiseSuppression).
		Bool("auto_gain", c.cfg.Options.AutoGainControl).
		Msg("microphone started")
	return nil
}

// onData runs on the audio thread; keep it allocation-light.
func (c *Capture) onData(in []byte) {
	c.mu.Lock()
	sink := c.sink
	if !c.active || sink == nil {
		c.mu.Unlock()
		return
	}

	switch c.cfg.Mode {
	case core.CaptureSingle:
		c.pcm = append(c.pcm, in...)
		c.mu.Unlock()
	case core.CaptureChunked:
		c.pending = append(c.pending, in...)
		target := c.chunkBytes()
		var chunk []byte
		if len(c.pending) >= target {
			chunk = make([]byte, len(c.pending))
			copy(chunk, c.pending)
			c.pending = c.pending[:0]
		}
		c.mu.Unlock()
		if chunk != nil {
			sink.Chunk(chunk)
		}
	case core.CaptureTrack:
		track := c.track
		sample := make([]byte, len(in))
		copy(sample, in)
		c.mu.Unlock()
		if err := track.WriteSample(media.Sample{
			Data:     sample,
			Duration: capturePeriodMs * time.Millisecond,
		}); err != nil {
			log.Error().Err(err).Str("module", "media.capture").Msg("track write")
		}
	default:
		c.mu.Unlock()
	}
}

func (c *Capture) chunkBytes() int {
	bytesPerSecond := c.cfg.Options.SampleRate * 2
	n := int(c.cfg.ChunkInterval * time.Duration(bytesPerSecond) / time.Second)
	if n <= 0 {
		n = bytesPerSecond / 10
	}
	return n
}

// Stop is idempotent. It releases the hardware device on every path and,
// in single mode, hands the finished recording to the sink exactly once.
func (c *Capture) Stop() {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	c.active = false
	device := c.device
	mctx := c.mctx
	sink := c.sink
	pcm := c.pcm
	c.device = nil
	c.mctx = nil
	c.sink = nil
	c.pcm = nil
	c.pending = nil
	c.mu.Unlock()

	if device != nil {
		_ = device.Stop()
		device.Uninit()
	}
	if mctx != nil {
		_ = mctx.Uninit()
		mctx.Free()
	}
	log.Info().Str("module", "media.capture").Msg("microphone released")

	if c.cfg.Mode == core.CaptureSingle && sink != nil {
		sink.Recording(audio.EncodePCM16(pcm, c.cfg.Options.SampleRate))
	}
}

func (c *Capture) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// classifyCaptureErr splits OS permission refusals from everything else.
// malgo surfaces the miniaudio result text, so the match is on message.
func classifyCaptureErr(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "access denied") || strings.Contains(msg, "permission") {
		return domain.NewVoiceError(domain.PermissionDenied, err)
	}
	return domain.NewVoiceError(domain.DeviceUnavailable, err)
}
