package voice

import (
	"time"

	"github.com/benbjohnson/clock"
)

type taskKind int

const (
	taskReconnect taskKind = iota
	taskProcessingReset
)

func (k taskKind) String() string {
	switch k {
	case taskReconnect:
		return "reconnect"
	case taskProcessingReset:
		return "processing_reset"
	default:
		return "unknown"
	}
}

func (k taskKind) event() Event {
	if k == taskReconnect {
		return ReconnectDue{}
	}
	return ProcessingTimeout{}
}

// task is one pending timer. A firing whose seq no longer matches the pending
// task of its kind was cancelled or replaced and is ignored.
type task struct {
	seq   uint64
	timer *clock.Timer
}

// schedule replaces any pending task of the same kind
func (c *Client) schedule(kind taskKind, delay time.Duration) {
	c.cancelTask(kind)

	c.taskSeq++
	seq := c.taskSeq
	timer := c.clock.AfterFunc(delay, func() {
		c.post(taskFired{kind: kind, seq: seq})
	})
	c.tasks[kind] = &task{seq: seq, timer: timer}
}

func (c *Client) cancelTask(kind taskKind) {
	t := c.tasks[kind]
	if t == nil {
		return
	}
	t.timer.Stop()
	delete(c.tasks, kind)
}
