// Package pcm converts between normalized float samples and signed 16-bit
// little-endian PCM, the only audio encoding spoken on the voice endpoint.
package pcm

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	// SampleRate is the fixed rate for both capture and synthesis
	SampleRate = 16000
	// Channels is mono audio
	Channels = 1
	// FrameSamples is 100ms of audio at 16kHz
	FrameSamples = 1600
	// BytesPerSample for 16-bit PCM
	BytesPerSample = 2

	pcmMax = 32767
	pcmMin = -32768

	// scale maps [-1, 1] onto the int16 range; decode divides by the same value
	scale = 32768.0
)

// ErrEmptyAudio is returned when there is nothing to decode
var ErrEmptyAudio = errors.New("audio data is empty")

// EncodeFloat32 converts normalized samples to PCM16 LE, clamping out-of-range input
func EncodeFloat32(samples []float32) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		v := math.Round(float64(s) * scale)
		if v > pcmMax {
			v = pcmMax
		} else if v < pcmMin {
			v = pcmMin
		}
		binary.LittleEndian.PutUint16(out[i*BytesPerSample:], uint16(int16(v)))
	}
	return out
}

// EncodeInt16 converts raw int16 samples to PCM16 LE
func EncodeInt16(samples []int16) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*BytesPerSample:], uint16(s))
	}
	return out
}

// DecodeFloat32 interprets data as PCM16 LE and normalizes each sample by 32768.
// A trailing odd byte is ignored.
func DecodeFloat32(data []byte) []float32 {
	n := len(data) / BytesPerSample
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(data[i*BytesPerSample:]))
		out[i] = float32(float64(s) / scale)
	}
	return out
}

// DecodeInt16 interprets data as PCM16 LE
func DecodeInt16(data []byte) []int16 {
	n := len(data) / BytesPerSample
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(binary.LittleEndian.Uint16(data[i*BytesPerSample:]))
	}
	return out
}

// JoinBase64 concatenates base64 fragments and decodes them as one payload.
// Servers that pad every fragment produce a concatenation that is not valid
// base64; those fragments are then decoded one by one.
func JoinBase64(fragments []string) ([]byte, error) {
	if len(fragments) == 0 {
		return nil, ErrEmptyAudio
	}

	joined := strings.Join(fragments, "")
	if data, err := base64.StdEncoding.DecodeString(joined); err == nil {
		if len(data) == 0 {
			return nil, ErrEmptyAudio
		}
		return data, nil
	}

	var out []byte
	for i, f := range fragments {
		data, err := base64.StdEncoding.DecodeString(f)
		if err != nil {
			return nil, fmt.Errorf("decode audio fragment %d: %w", i, err)
		}
		out = append(out, data...)
	}
	if len(out) == 0 {
		return nil, ErrEmptyAudio
	}
	return out, nil
}

// Duration returns the playback length of mono PCM16 data at sampleRate
func Duration(data []byte, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	samples := len(data) / BytesPerSample
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}

// SamplesDuration returns the playback length of n mono samples at sampleRate
func SamplesDuration(n, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(sampleRate)
}

// FrameBytes is the size in bytes of one capture frame
func FrameBytes(frameSamples, channels int) int {
	return frameSamples * channels * BytesPerSample
}
