//go:build portaudio

package main

import (
	"go.uber.org/zap"

	"github.com/satriahrh/scenery-voice/adapters/audio"
	"github.com/satriahrh/scenery-voice/domain/repositories"
	"github.com/satriahrh/scenery-voice/internal/config"
)

// openDevices uses the sound card for anything not redirected to WAV files
func openDevices(cfg config.AudioConfig, logger *zap.Logger) (repositories.CaptureSource, repositories.PlaybackSink, func(), error) {
	system, err := audio.NewSystem(logger)
	if err != nil {
		return nil, nil, nil, err
	}
	cleanup := func() { system.Close() }

	var capture repositories.CaptureSource = system.Microphone()
	if cfg.InputWAV != "" {
		capture = audio.NewWAVSource(cfg.InputWAV, nil, logger)
	}

	var playback repositories.PlaybackSink = system.Speaker()
	if cfg.OutputDir != "" {
		sink, err := audio.NewWAVSink(cfg.OutputDir, nil, logger)
		if err != nil {
			cleanup()
			return nil, nil, nil, err
		}
		playback = sink
	}

	return capture, playback, cleanup, nil
}
