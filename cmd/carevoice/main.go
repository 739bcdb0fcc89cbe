package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/edenward/carevoice/internal/adapters/chatapi"
	"github.com/edenward/carevoice/internal/adapters/media"
	"github.com/edenward/carevoice/internal/adapters/rtc"
	signaling "github.com/edenward/carevoice/internal/adapters/signal"
	"github.com/edenward/carevoice/internal/app"
	"github.com/edenward/carevoice/internal/config"
	"github.com/edenward/carevoice/internal/core"
	"github.com/edenward/carevoice/internal/domain"
	"github.com/edenward/carevoice/internal/observability"
)

const usage = `carevoice <command> [flags]

Commands:
  hospitals           list hospitals served by the backend
  chat                interactive text chat with a hospital assistant
  ask                 one push-to-talk question: record, transcribe, reply, speak
  voice               live voice-mode session (Enter ends a turn, q quits)
`

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cmd := "voice"
	args := os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	hospital := fs.String("hospital", "", "hospital id")
	debug := fs.Bool("debug", false, "debug logging")
	fs.Parse(args)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	observability.SetupLogging(cfg.LogFile, *debug)

	client := chatapi.NewClient(cfg.ChatBaseURL)

	var runErr error
	switch cmd {
	case "hospitals":
		runErr = listHospitals(ctx, client)
	case "chat":
		runErr = runChat(ctx, client, domain.HospitalID(*hospital))
	case "ask":
		runErr = runAsk(ctx, client, cfg, domain.HospitalID(*hospital))
	case "voice":
		runErr = runVoice(ctx, cfg, *hospital)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if runErr != nil {
		log.Error().Err(runErr).Str("command", cmd).Msg("command failed")
		os.Exit(1)
	}
}

func listHospitals(ctx context.Context, client *chatapi.Client) error {
	hospitals, err := client.Hospitals(ctx)
	if err != nil {
		return err
	}
	for _, h := range hospitals {
		fmt.Printf("%-16s %s  %s  %s\n", h.ID, h.Name, h.Address, h.Phone)
	}
	return nil
}

func runChat(ctx context.Context, client *chatapi.Client, hospital domain.HospitalID) error {
	if hospital == "" {
		return domain.ErrHospitalEmpty
	}
	sess, err := client.CreateSession(ctx, hospital)
	if err != nil {
		return err
	}
	fmt.Printf("Connected to %s. Empty line quits.\n", sess.Name)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			return nil
		}
		reply, err := client.SendMessage(ctx, sess, line)
		if err != nil {
			return err
		}
		fmt.Printf("[%s] %s\n", reply.AgentUsed, reply.Response)
	}
}

// recordingSink waits for the single-mode capture to flush one WAV.
type recordingSink struct{ wav chan []byte }

func (recordingSink) Chunk([]byte)           {}
func (s recordingSink) Recording(wav []byte) { s.wav <- wav }

// runAsk is the push-to-talk flow: the whole utterance is recorded
// locally, sent through speech-to-text, answered over the chat API and
// spoken back through text-to-speech.
func runAsk(ctx context.Context, client *chatapi.Client, cfg *config.Config, hospital domain.HospitalID) error {
	if hospital == "" {
		return domain.ErrHospitalEmpty
	}
	sess, err := client.CreateSession(ctx, hospital)
	if err != nil {
		return err
	}

	mic := media.NewCapture(media.CaptureConfig{
		Mode: core.CaptureSingle,
		Options: core.CaptureOptions{
			SampleRate:       cfg.Capture.SampleRate,
			EchoCancellation: cfg.Capture.EchoCancellation,
			NoiseSuppression: cfg.Capture.NoiseSuppression,
			AutoGainControl:  cfg.Capture.AutoGainControl,
		},
	})
	sink := recordingSink{wav: make(chan []byte, 1)}
	if err := mic.Start(ctx, sink); err != nil {
		return err
	}
	fmt.Println("Recording. Press Enter when done.")
	bufio.NewReader(os.Stdin).ReadString('\n')
	mic.Stop()

	var wav []byte
	select {
	case wav = <-sink.wav:
	case <-ctx.Done():
		return ctx.Err()
	}

	text, err := client.SpeechToText(ctx, wav)
	if err != nil {
		return err
	}
	fmt.Printf("You said: %s\n", text)

	reply, err := client.SendMessage(ctx, sess, text)
	if err != nil {
		return err
	}
	fmt.Printf("Assistant: %s\n", reply.Response)

	speech, err := client.TextToSpeech(ctx, reply.Response, cfg.VoiceID)
	if err != nil {
		return err
	}
	player := media.NewPlayback()
	done, err := player.Play(speech)
	if err != nil {
		return err
	}
	select {
	case <-done:
	case <-ctx.Done():
		player.Stop()
	}
	return nil
}

func runVoice(ctx context.Context, cfg *config.Config, hospital string) error {
	if hospital == "" {
		return domain.ErrHospitalEmpty
	}

	channel := signaling.NewChannel(cfg.SignalURL)
	playback := media.NewPlayback()
	metrics := observability.NewMetrics("carevoice", nil)

	var transport app.Transport
	switch cfg.Transport {
	case "webrtc":
		mic := media.NewCapture(media.CaptureConfig{
			Mode:    core.CaptureTrack,
			Options: captureOptions(cfg),
		})
		negotiator, err := rtc.NewNegotiator(rtc.DefaultWebRTCConfig())
		if err != nil {
			return err
		}
		transport = app.NewPeerToPeer(channel, mic, negotiator, media.NewTrackPlayer(), app.PeerToPeerConfig{
			SampleRate:         cfg.Capture.SampleRate,
			NegotiationTimeout: cfg.NegotiationTimeout,
		})
	default:
		mic := media.NewCapture(media.CaptureConfig{
			Mode:          core.CaptureChunked,
			Options:       captureOptions(cfg),
			ChunkInterval: cfg.Capture.ChunkInterval,
		})
		transport = app.NewChunkedUpload(channel, mic)
	}

	session := app.NewSession(app.Config{
		HospitalID:   hospital,
		Continuous:   cfg.Continuous,
		MaxUtterance: cfg.MaxUtterance,
	}, channel, transport, playback, metrics, app.Callbacks{
		OnTurn: func(ts core.TurnState) {
			fmt.Printf("\r[%s]           \n", ts)
		},
		OnTranscript: func(text string) {
			fmt.Printf("You: %s\n", text)
		},
		OnResponse: func(text string) {
			fmt.Printf("Assistant: %s\n", text)
		},
		OnError: func(kind domain.ErrorKind, err error) {
			fmt.Fprintf(os.Stderr, "voice session failed (%s): %v\n", kind, err)
		},
	})

	session.Activate(ctx)
	defer session.Deactivate()

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			if strings.TrimSpace(scanner.Text()) == "q" {
				session.Deactivate()
				return
			}
			session.StopListening()
		}
	}()

	select {
	case <-session.Done():
	case <-ctx.Done():
		session.Deactivate()
		<-session.Done()
	}
	return nil
}

func captureOptions(cfg *config.Config) core.CaptureOptions {
	return core.CaptureOptions{
		SampleRate:       cfg.Capture.SampleRate,
		EchoCancellation: cfg.Capture.EchoCancellation,
		NoiseSuppression: cfg.Capture.NoiseSuppression,
		AutoGainControl:  cfg.Capture.AutoGainControl,
	}
}
