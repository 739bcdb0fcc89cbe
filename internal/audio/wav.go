// Package audio holds the small PCM helpers the capture and REST layers
// share: wrapping raw microphone PCM into a WAV container for the
// speech-to-text upload and the single-recording capture mode.
package audio

import (
	"bytes"
	"encoding/binary"
	"io"
	"time"
)

const (
	wavHeaderSize = 44
	numChannels   = 1
	bitsPerSample = 16
	pcmFormat     = 1

	DefaultSampleRate = 16000
)

// EncodePCM16 wraps raw little-endian PCM16 mono samples in a WAV container.
func EncodePCM16(pcm []byte, sampleRate int) []byte {
	var buf bytes.Buffer
	buf.Grow(wavHeaderSize + len(pcm))
	// bytes.Buffer writes cannot fail.
	_ = WritePCM16(&buf, pcm, sampleRate)
	return buf.Bytes()
}

// WritePCM16 streams pcm to out as a WAV file.
func WritePCM16(out io.Writer, pcm []byte, sampleRate int) error {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}

	byteRate := sampleRate * numChannels * bitsPerSample / 8
	hdr := make([]byte, wavHeaderSize)
	copy(hdr[0:4], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(wavHeaderSize-8+len(pcm)))
	copy(hdr[8:12], "WAVE")
	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], 16)
	binary.LittleEndian.PutUint16(hdr[20:22], pcmFormat)
	binary.LittleEndian.PutUint16(hdr[22:24], numChannels)
	binary.LittleEndian.PutUint32(hdr[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(hdr[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(hdr[32:34], numChannels*bitsPerSample/8)
	binary.LittleEndian.PutUint16(hdr[34:36], bitsPerSample)
	copy(hdr[36:40], "data")
	binary.LittleEndian.PutUint32(hdr[40:44], uint32(len(pcm)))

	if _, err := out.Write(hdr); err != nil {
		return err
	}
	_, err := out.Write(pcm)
	return err
}

// PCM16Duration reports how much audio a raw PCM16 mono buffer holds.
func PCM16Duration(pcm []byte, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	samples := len(pcm) / 2
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
