//go:build portaudio

package audio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"go.uber.org/zap"

	"github.com/satriahrh/scenery-voice/domain/repositories"
)

// outputFramesPerBuffer is 40ms at 16kHz
const outputFramesPerBuffer = 640

// System owns the PortAudio library for the life of the process
type System struct {
	logger *zap.Logger
}

// NewSystem initializes PortAudio
func NewSystem(logger *zap.Logger) (*System, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &System{logger: logger}, nil
}

// Close terminates PortAudio
func (s *System) Close() error {
	return portaudio.Terminate()
}

// Microphone returns the default input device
func (s *System) Microphone() *Microphone {
	return &Microphone{logger: s.logger}
}

// Speaker returns the default output device
func (s *System) Speaker() *Speaker {
	return &Speaker{logger: s.logger}
}

// Microphone captures from the default input device
type Microphone struct {
	logger *zap.Logger
}

// Open starts a blocking-read input stream of one frame per buffer
func (m *Microphone) Open(format repositories.AudioFormat, onFrame func([]float32), onError func(error)) (repositories.CaptureHandle, error) {
	in := make([]float32, format.FrameSamples*format.Channels)
	stream, err := portaudio.OpenDefaultStream(format.Channels, 0, float64(format.SampleRate), format.FrameSamples, in)
	if err != nil {
		return nil, fmt.Errorf("failed to open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("failed to start input stream: %w", err)
	}

	h := &micHandle{stream: stream, stopped: make(chan struct{}), finished: make(chan struct{})}
	go h.captureLoop(in, onFrame, onError, m.logger)

	m.logger.Info("Microphone opened",
		zap.Int("sample_rate", format.SampleRate),
		zap.Int("frame_samples", format.FrameSamples))
	return h, nil
}

type micHandle struct {
	stream   *portaudio.Stream
	stopped  chan struct{}
	finished chan struct{}
	once     sync.Once
}

func (h *micHandle) captureLoop(in []float32, onFrame func([]float32), onError func(error), logger *zap.Logger) {
	defer close(h.finished)
	for {
		select {
		case <-h.stopped:
			return
		default:
		}

		if err := h.stream.Read(); err != nil {
			if errors.Is(err, portaudio.InputOverflowed) {
				logger.Debug("Input overflowed")
				continue
			}
			select {
			case <-h.stopped:
				// Close stopped the stream under the read
				return
			default:
			}
			logger.Warn("Microphone read failed", zap.Error(err))
			if onError != nil {
				onError(fmt.Errorf("failed to read input stream: %w", err))
			}
			return
		}

		frame := make([]float32, len(in))
		copy(frame, in)
		onFrame(frame)
	}
}

// Close stops the stream and releases the device
func (h *micHandle) Close() error {
	var err error
	h.once.Do(func() {
		close(h.stopped)
		err = h.stream.Stop()
		<-h.finished
		if cerr := h.stream.Close(); err == nil {
			err = cerr
		}
	})
	return err
}

// Speaker plays clips on the default output device
type Speaker struct {
	logger *zap.Logger
}

// Play writes samples to a fresh output stream until they run out or Stop is called
func (s *Speaker) Play(samples []float32, sampleRate int, done func(error)) (repositories.Playback, error) {
	out := make([]float32, outputFramesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(sampleRate), len(out), out)
	if err != nil {
		return nil, fmt.Errorf("failed to open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("failed to start output stream: %w", err)
	}

	p := &speakerPlayback{stopped: make(chan struct{})}
	go func() {
		err := p.playbackLoop(stream, out, samples)
		stream.Stop()
		stream.Close()
		done(err)
	}()
	return p, nil
}

type speakerPlayback struct {
	stopped chan struct{}
	once    sync.Once
}

func (p *speakerPlayback) playbackLoop(stream *portaudio.Stream, out, samples []float32) error {
	for len(samples) > 0 {
		select {
		case <-p.stopped:
			return nil
		default:
		}

		n := copy(out, samples)
		for i := n; i < len(out); i++ {
			out[i] = 0
		}
		samples = samples[n:]

		if err := stream.Write(); err != nil && !errors.Is(err, portaudio.OutputUnderflowed) {
			return fmt.Errorf("failed to write output stream: %w", err)
		}
	}
	return nil
}

// Stop ends playback early; done still fires once
func (p *speakerPlayback) Stop() {
	p.once.Do(func() { close(p.stopped) })
}
