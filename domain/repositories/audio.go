package repositories

import "time"

// AudioFormat describes raw PCM flowing through capture and playback
type AudioFormat struct {
	SampleRate   int `json:"sample_rate" yaml:"sample_rate"`
	Channels     int `json:"channels" yaml:"channels"`
	FrameSamples int `json:"frame_samples" yaml:"frame_samples"`
}

// FrameDuration returns the wall-clock length of one capture frame
func (f AudioFormat) FrameDuration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(f.FrameSamples) * time.Second / time.Duration(f.SampleRate)
}

// CaptureSource abstracts a microphone
type CaptureSource interface {
	// Open acquires the input device and starts delivering fixed-size frames
	// of normalized samples in [-1, 1] to onFrame until the handle is closed.
	// If the device fails after opening, delivery stops and onError is called
	// once with the cause.
	Open(format AudioFormat, onFrame func(samples []float32), onError func(err error)) (CaptureHandle, error)
}

// CaptureHandle is an exclusive, open input device
type CaptureHandle interface {
	Close() error
}

// PlaybackSink abstracts an audio output device
type PlaybackSink interface {
	// Play starts playing mono samples and calls done exactly once when the
	// playback finishes, fails or is stopped.
	Play(samples []float32, sampleRate int, done func(err error)) (Playback, error)
}

// Playback is one active playback
type Playback interface {
	Stop()
}
