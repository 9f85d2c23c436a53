package main

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/scenery-voice/internal/voice"
)

type recordingCommander struct {
	calls []string
	err   error
}

func (c *recordingCommander) StartCapture() error {
	c.calls = append(c.calls, "start")
	return c.err
}

func (c *recordingCommander) StopCapture() error {
	c.calls = append(c.calls, "stop")
	return c.err
}

func (c *recordingCommander) NewSession(ctx context.Context) error {
	c.calls = append(c.calls, "new")
	return c.err
}

func TestRunCommands(t *testing.T) {
	ctl := &recordingCommander{}
	in := strings.NewReader("r\n s \n\nbogus\nn\nq\nr\n")

	if err := runCommands(context.Background(), in, ctl, zaptest.NewLogger(t)); err != nil {
		t.Fatalf("runCommands failed: %v", err)
	}

	want := []string{"start", "stop", "new"}
	if strings.Join(ctl.calls, ",") != strings.Join(want, ",") {
		t.Errorf("Expected %v, got %v", want, ctl.calls)
	}
}

func TestRunCommandsStopsAtEOF(t *testing.T) {
	ctl := &recordingCommander{}
	if err := runCommands(context.Background(), strings.NewReader("r\n"), ctl, zaptest.NewLogger(t)); err != nil {
		t.Fatalf("runCommands failed: %v", err)
	}
	if len(ctl.calls) != 1 {
		t.Errorf("Expected one call, got %v", ctl.calls)
	}
}

func TestRunCommandsDisposedClient(t *testing.T) {
	ctl := &recordingCommander{err: voice.ErrDisposed}
	err := runCommands(context.Background(), strings.NewReader("r\nq\n"), ctl, zaptest.NewLogger(t))
	if !errors.Is(err, voice.ErrDisposed) {
		t.Errorf("Expected ErrDisposed, got %v", err)
	}
}
