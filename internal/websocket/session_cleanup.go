package websocket

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DefaultIdleTimeout is how long a voice stream may stay silent before the
// sweeper closes it
const DefaultIdleTimeout = 5 * time.Minute

// IdleSweeper closes voice stream connections that stopped sending.
type IdleSweeper struct {
	hub      *Hub
	idle     time.Duration
	interval time.Duration
	logger   *zap.Logger
}

// NewIdleSweeper creates a sweeper that checks every idle/2
func NewIdleSweeper(hub *Hub, idle time.Duration, logger *zap.Logger) *IdleSweeper {
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IdleSweeper{
		hub:      hub,
		idle:     idle,
		interval: idle / 2,
		logger:   logger,
	}
}

// Run sweeps until ctx is done
func (s *IdleSweeper) Run(ctx context.Context) {
	ticker := s.hub.clock.Ticker(s.interval)
	defer ticker.Stop()

	s.logger.Info("Idle sweeper started", zap.Duration("idle_timeout", s.idle))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Idle sweeper stopped")
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep closes every connection idle past the timeout and returns how many it closed
func (s *IdleSweeper) sweep() int {
	cutoff := s.hub.clock.Now().Add(-s.idle)
	idle := s.hub.idleClients(cutoff)
	for _, client := range idle {
		client.logger.Info("Closing idle connection", zap.Time("last_active", client.lastActive()))
		client.shutdown()
	}
	return len(idle)
}
