// Package metrics holds the Prometheus collectors of the voice client and the stub endpoint.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "scenery_voice"

// NewRegistry returns a registry with the Go runtime and process collectors registered
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Client counts what a voice session does. A nil *Client is valid and records nothing.
type Client struct {
	framesSent       prometheus.Counter
	framesDropped    prometheus.Counter
	connectsTotal    *prometheus.CounterVec
	reconnectsTotal  *prometheus.CounterVec
	messagesTotal    *prometheus.CounterVec
	playbackFailures prometheus.Counter
	playbackSeconds  prometheus.Counter
	connected        prometheus.Gauge
}

// NewClient creates client metrics and registers them on reg
func NewClient(reg prometheus.Registerer) *Client {
	c := &Client{
		framesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "frames_sent_total",
			Help:      "Audio frames written to the connection",
		}),
		framesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "frames_dropped_total",
			Help:      "Audio frames discarded because the connection was not open",
		}),
		connectsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "connects_total",
			Help:      "Connection attempts by result",
		}, []string{"result"}), // result: success, error
		reconnectsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "reconnects_scheduled_total",
			Help:      "Reconnects scheduled by delay class",
		}, []string{"delay"}),
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "messages_received_total",
			Help:      "Server messages received by type",
		}, []string{"type"}),
		playbackFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "playback_failures_total",
			Help:      "Synthesized clips that failed to decode or play",
		}),
		playbackSeconds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "playback_seconds_total",
			Help:      "Seconds of synthesized audio handed to the output device",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "connected",
			Help:      "1 while the session connection is open",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			c.framesSent,
			c.framesDropped,
			c.connectsTotal,
			c.reconnectsTotal,
			c.messagesTotal,
			c.playbackFailures,
			c.playbackSeconds,
			c.connected,
		)
	}
	return c
}

func (c *Client) FrameSent() {
	if c == nil {
		return
	}
	c.framesSent.Inc()
}

func (c *Client) FrameDropped() {
	if c == nil {
		return
	}
	c.framesDropped.Inc()
}

// Connected records a connection attempt result and the open-connection gauge
func (c *Client) Connected(ok bool) {
	if c == nil {
		return
	}
	if ok {
		c.connectsTotal.WithLabelValues("success").Inc()
		c.connected.Set(1)
		return
	}
	c.connectsTotal.WithLabelValues("error").Inc()
	c.connected.Set(0)
}

func (c *Client) Disconnected() {
	if c == nil {
		return
	}
	c.connected.Set(0)
}

func (c *Client) ReconnectScheduled(delay time.Duration) {
	if c == nil {
		return
	}
	c.reconnectsTotal.WithLabelValues(delay.String()).Inc()
}

func (c *Client) MessageReceived(messageType string) {
	if c == nil {
		return
	}
	c.messagesTotal.WithLabelValues(messageType).Inc()
}

func (c *Client) PlaybackFailed() {
	if c == nil {
		return
	}
	c.playbackFailures.Inc()
}

func (c *Client) PlaybackStarted(d time.Duration) {
	if c == nil {
		return
	}
	c.playbackSeconds.Add(d.Seconds())
}

// Server counts stub endpoint activity. A nil *Server is valid and records nothing.
type Server struct {
	activeConnections prometheus.Gauge
	audioBytes        prometheus.Counter
	turnsTotal        *prometheus.CounterVec
}

// NewServer creates stub endpoint metrics and registers them on reg
func NewServer(reg prometheus.Registerer) *Server {
	s := &Server{
		activeConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stub",
			Name:      "active_connections",
			Help:      "Open voice stream connections",
		}),
		audioBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stub",
			Name:      "audio_bytes_total",
			Help:      "PCM bytes received from clients",
		}),
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stub",
			Name:      "turns_total",
			Help:      "Completed conversation turns by result",
		}, []string{"result"}),
	}

	if reg != nil {
		reg.MustRegister(s.activeConnections, s.audioBytes, s.turnsTotal)
	}
	return s
}

func (s *Server) ConnectionOpened() {
	if s == nil {
		return
	}
	s.activeConnections.Inc()
}

func (s *Server) ConnectionClosed() {
	if s == nil {
		return
	}
	s.activeConnections.Dec()
}

func (s *Server) AudioReceived(n int) {
	if s == nil {
		return
	}
	s.audioBytes.Add(float64(n))
}

func (s *Server) TurnCompleted(err error) {
	if s == nil {
		return
	}
	if err != nil {
		s.turnsTotal.WithLabelValues("error").Inc()
		return
	}
	s.turnsTotal.WithLabelValues("success").Inc()
}
