package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config is everything the voice client decides before a session starts.
type Config struct {
	// SignalURL is the websocket endpoint for voice-mode signaling.
	SignalURL string `mapstructure:"signal_url"`
	// ChatBaseURL is the REST backend for hospitals, chat and speech.
	ChatBaseURL string `mapstructure:"chat_base_url"`

	// Transport selects how the utterance travels: "chunked" or "webrtc".
	Transport string `mapstructure:"transport"`
	// Continuous re-arms the microphone after every assistant turn.
	Continuous bool `mapstructure:"continuous"`

	Capture CaptureConfig `mapstructure:"capture"`

	// MaxUtterance caps a single listening turn.
	MaxUtterance time.Duration `mapstructure:"max_utterance"`
	// NegotiationTimeout bounds the WebRTC offer-to-connected window.
	NegotiationTimeout time.Duration `mapstructure:"negotiation_timeout"`

	// VoiceID names the synthesis voice for the push-to-talk flow.
	VoiceID string `mapstructure:"voice_id"`

	LogFile string `mapstructure:"log_file"`
}

// CaptureConfig mirrors the audio constraints requested from the device.
type CaptureConfig struct {
	SampleRate       int           `mapstructure:"sample_rate"`
	ChunkInterval    time.Duration `mapstructure:"chunk_interval"`
	EchoCancellation bool          `mapstructure:"echo_cancellation"`
	NoiseSuppression bool          `mapstructure:"noise_suppression"`
	AutoGainControl  bool          `mapstructure:"auto_gain_control"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("signal_url", "ws://localhost:8000/api/v1/ws/voice-mode")
	v.SetDefault("chat_base_url", "http://localhost:8000")
	v.SetDefault("transport", "chunked")
	v.SetDefault("continuous", true)
	v.SetDefault("capture.sample_rate", 16000)
	v.SetDefault("capture.chunk_interval", "100ms")
	v.SetDefault("capture.echo_cancellation", true)
	v.SetDefault("capture.noise_suppression", true)
	v.SetDefault("capture.auto_gain_control", true)
	v.SetDefault("max_utterance", "15s")
	v.SetDefault("negotiation_timeout", "15s")
	v.SetDefault("voice_id", "")
	v.SetDefault("log_file", "")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Transport != "chunked" && cfg.Transport != "webrtc" {
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
	return &cfg, nil
}
