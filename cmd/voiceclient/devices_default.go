//go:build !portaudio

package main

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/satriahrh/scenery-voice/adapters/audio"
	"github.com/satriahrh/scenery-voice/domain/repositories"
	"github.com/satriahrh/scenery-voice/internal/config"
)

// openDevices uses WAV files only; build with -tags portaudio for the sound card
func openDevices(cfg config.AudioConfig, logger *zap.Logger) (repositories.CaptureSource, repositories.PlaybackSink, func(), error) {
	var capture repositories.CaptureSource
	if cfg.InputWAV != "" {
		capture = audio.NewWAVSource(cfg.InputWAV, nil, logger)
	} else {
		logger.Warn("No input configured; set VOICE_INPUT_WAV or build with -tags portaudio")
	}

	dir := cfg.OutputDir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "scenery-voice")
	}
	sink, err := audio.NewWAVSink(dir, nil, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	logger.Info("Writing replies as WAV files", zap.String("dir", dir))

	return capture, sink, func() {}, nil
}
