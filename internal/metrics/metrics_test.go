package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestClientMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewClient(reg)

	m.FrameSent()
	m.FrameSent()
	m.FrameDropped()
	m.Connected(true)
	m.ReconnectScheduled(500 * time.Millisecond)
	m.MessageReceived("tts_audio")
	m.MessageReceived("tts_audio")
	m.PlaybackFailed()

	if got := testutil.ToFloat64(m.framesSent); got != 2 {
		t.Errorf("Expected 2 frames sent, got %v", got)
	}
	if got := testutil.ToFloat64(m.framesDropped); got != 1 {
		t.Errorf("Expected 1 frame dropped, got %v", got)
	}
	if got := testutil.ToFloat64(m.connected); got != 1 {
		t.Errorf("Expected connected gauge 1, got %v", got)
	}
	if got := testutil.ToFloat64(m.reconnectsTotal.WithLabelValues("500ms")); got != 1 {
		t.Errorf("Expected 1 short reconnect, got %v", got)
	}
	if got := testutil.ToFloat64(m.messagesTotal.WithLabelValues("tts_audio")); got != 2 {
		t.Errorf("Expected 2 tts_audio messages, got %v", got)
	}
	if got := testutil.ToFloat64(m.playbackFailures); got != 1 {
		t.Errorf("Expected 1 playback failure, got %v", got)
	}

	m.Disconnected()
	if got := testutil.ToFloat64(m.connected); got != 0 {
		t.Errorf("Expected connected gauge 0, got %v", got)
	}

	count, err := testutil.GatherAndCount(reg)
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	if count == 0 {
		t.Error("Expected registered metrics to be gathered")
	}
}

func TestServerMetrics(t *testing.T) {
	m := NewServer(prometheus.NewRegistry())

	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed()
	m.AudioReceived(3200)
	m.TurnCompleted(nil)
	m.TurnCompleted(errors.New("boom"))

	if got := testutil.ToFloat64(m.activeConnections); got != 1 {
		t.Errorf("Expected 1 active connection, got %v", got)
	}
	if got := testutil.ToFloat64(m.audioBytes); got != 3200 {
		t.Errorf("Expected 3200 bytes, got %v", got)
	}
	if got := testutil.ToFloat64(m.turnsTotal.WithLabelValues("error")); got != 1 {
		t.Errorf("Expected 1 failed turn, got %v", got)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var c *Client
	c.FrameSent()
	c.FrameDropped()
	c.Connected(true)
	c.Disconnected()
	c.ReconnectScheduled(time.Second)
	c.MessageReceived("x")
	c.PlaybackFailed()
	c.PlaybackStarted(time.Second)

	var s *Server
	s.ConnectionOpened()
	s.ConnectionClosed()
	s.AudioReceived(1)
	s.TurnCompleted(nil)
}

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()
	NewClient(reg)
	NewServer(reg)

	if _, err := reg.Gather(); err != nil {
		t.Errorf("Expected gather to succeed, got %v", err)
	}
}
