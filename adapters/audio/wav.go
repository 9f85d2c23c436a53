// Package audio provides capture sources and playback sinks for the voice client.
package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/satriahrh/scenery-voice/domain/repositories"
	"github.com/satriahrh/scenery-voice/internal/pcm"
)

// WAVSource replays a WAV file as if it were a microphone, one frame per
// frame duration, then continues with silence until closed.
type WAVSource struct {
	path   string
	clock  clock.Clock
	logger *zap.Logger
}

// NewWAVSource creates a capture source reading path on every Open
func NewWAVSource(path string, clk clock.Clock, logger *zap.Logger) *WAVSource {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WAVSource{path: path, clock: clk, logger: logger}
}

// Open loads the file and starts delivering frames. Replay cannot fail once
// started, so onError is never called.
func (s *WAVSource) Open(format repositories.AudioFormat, onFrame func([]float32), onError func(error)) (repositories.CaptureHandle, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}
	defer f.Close()

	data, info, err := pcm.DecodeWAV(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", s.path, err)
	}
	if info.SampleRate != format.SampleRate || info.Channels != format.Channels {
		return nil, fmt.Errorf("input file is %d Hz %d ch, want %d Hz %d ch",
			info.SampleRate, info.Channels, format.SampleRate, format.Channels)
	}
	if format.FrameSamples <= 0 || format.FrameDuration() <= 0 {
		return nil, fmt.Errorf("invalid capture format %+v", format)
	}

	h := &wavHandle{
		samples: pcm.DecodeFloat32(data),
		size:    format.FrameSamples * format.Channels,
		ticker:  s.clock.Ticker(format.FrameDuration()),
		stopped: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go h.run(onFrame)

	s.logger.Info("Replaying input file",
		zap.String("path", s.path),
		zap.Duration("duration", pcm.Duration(data, info.SampleRate)))
	return h, nil
}

type wavHandle struct {
	samples []float32
	size    int
	ticker  *clock.Ticker
	stopped chan struct{}
	done    chan struct{}
	once    sync.Once
}

func (h *wavHandle) run(onFrame func([]float32)) {
	defer close(h.done)
	for {
		select {
		case <-h.stopped:
			return
		case <-h.ticker.C:
			onFrame(h.next())
		}
	}
}

// next returns the following frame, zero padded past the end of the file
func (h *wavHandle) next() []float32 {
	frame := make([]float32, h.size)
	n := copy(frame, h.samples)
	h.samples = h.samples[n:]
	return frame
}

// Close stops delivery; no frame is delivered after it returns
func (h *wavHandle) Close() error {
	h.once.Do(func() {
		h.ticker.Stop()
		close(h.stopped)
		<-h.done
	})
	return nil
}

// WAVSink writes every clip to a numbered WAV file in dir and reports it
// finished after the clip's real duration.
type WAVSink struct {
	dir    string
	clock  clock.Clock
	logger *zap.Logger
	seq    atomic.Int64
}

// NewWAVSink creates a sink writing into dir, which is created if missing
func NewWAVSink(dir string, clk clock.Clock, logger *zap.Logger) (*WAVSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WAVSink{dir: dir, clock: clk, logger: logger}, nil
}

// Play writes the clip and schedules done
func (s *WAVSink) Play(samples []float32, sampleRate int, done func(error)) (repositories.Playback, error) {
	data, err := pcm.EncodeWAV(pcm.EncodeFloat32(samples), sampleRate, 1)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(s.dir, fmt.Sprintf("reply-%03d.wav", s.seq.Add(1)))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write clip: %w", err)
	}

	d := pcm.SamplesDuration(len(samples), sampleRate)
	s.logger.Info("Clip written", zap.String("path", path), zap.Duration("duration", d))

	p := &wavPlayback{done: done}
	p.timer = s.clock.AfterFunc(d, func() { p.finish() })
	return p, nil
}

type wavPlayback struct {
	timer *clock.Timer
	done  func(error)
	once  sync.Once
}

func (p *wavPlayback) finish() {
	p.once.Do(func() { p.done(nil) })
}

// Stop cuts the clip short
func (p *wavPlayback) Stop() {
	p.timer.Stop()
	p.finish()
}
