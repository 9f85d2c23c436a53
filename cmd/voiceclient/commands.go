package main

import (
	"bufio"
	"context"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/satriahrh/scenery-voice/internal/voice"
	"github.com/satriahrh/scenery-voice/usecase"
)

// commander is what the keyboard drives
type commander interface {
	StartCapture() error
	StopCapture() error
	NewSession(ctx context.Context) error
}

// session adapts the client and session service to commander
type session struct {
	client   *voice.Client
	sessions *usecase.SessionService
}

func (s *session) StartCapture() error { return s.client.StartCapture() }
func (s *session) StopCapture() error  { return s.client.StopCapture() }

// NewSession forgets the stored identifier and reconnects under a new one
func (s *session) NewSession(ctx context.Context) error {
	if _, err := s.sessions.Reset(ctx); err != nil {
		return err
	}
	return s.client.Connect(ctx)
}

// runCommands reads one command per line until q, EOF or ctx is done
func runCommands(ctx context.Context, in io.Reader, ctl commander, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- strings.TrimSpace(scanner.Text()):
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}

			var err error
			switch line {
			case "r":
				err = ctl.StartCapture()
			case "s":
				err = ctl.StopCapture()
			case "n":
				err = ctl.NewSession(ctx)
			case "q":
				return nil
			case "":
			default:
				logger.Warn("Unknown command", zap.String("command", line))
			}
			if err != nil {
				return err
			}
		}
	}
}
