package audio

import (
	"encoding/binary"
	"testing"
	"time"
)

func TestEncodePCM16Header(t *testing.T) {
	pcm := make([]byte, 320) // 10ms at 16kHz mono
	wav := EncodePCM16(pcm, 16000)

	if len(wav) != 44+len(pcm) {
		t.Fatalf("len = %d, want %d", len(wav), 44+len(pcm))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Fatalf("bad container magic: %q %q", wav[0:4], wav[8:12])
	}
	if got := binary.LittleEndian.Uint32(wav[24:28]); got != 16000 {
		t.Fatalf("sample rate = %d, want 16000", got)
	}
	if got := binary.LittleEndian.Uint32(wav[28:32]); got != 32000 {
		t.Fatalf("byte rate = %d, want 32000", got)
	}
	if got := binary.LittleEndian.Uint32(wav[40:44]); got != uint32(len(pcm)) {
		t.Fatalf("data size = %d, want %d", got, len(pcm))
	}
}

func TestEncodePCM16DefaultsSampleRate(t *testing.T) {
	wav := EncodePCM16(nil, 0)
	if got := binary.LittleEndian.Uint32(wav[24:28]); got != DefaultSampleRate {
		t.Fatalf("sample rate = %d, want %d", got, DefaultSampleRate)
	}
}

func TestPCM16Duration(t *testing.T) {
	// 16000 samples/s * 2 bytes, so 32000 bytes is one second.
	if d := PCM16Duration(make([]byte, 32000), 16000); d != time.Second {
		t.Fatalf("duration = %v, want 1s", d)
	}
	if d := PCM16Duration(make([]byte, 1600), 16000); d != 50*time.Millisecond {
		t.Fatalf("duration = %v, want 50ms", d)
	}
}
