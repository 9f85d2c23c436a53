package voice

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/satriahrh/scenery-voice/domain"
	"github.com/satriahrh/scenery-voice/domain/repositories"
	"github.com/satriahrh/scenery-voice/internal/metrics"
	"github.com/satriahrh/scenery-voice/internal/pcm"
	"github.com/satriahrh/scenery-voice/internal/websocket"
)

const inboxSize = 256

var (
	// ErrDisposed is returned by operations on a disposed client
	ErrDisposed = errors.New("voice client disposed")

	errNoCapture  = errors.New("no capture device configured")
	errNoPlayback = errors.New("no playback device configured")
)

// SessionIDProvider resolves the persistent session identifier
type SessionIDProvider interface {
	SessionID(ctx context.Context) (string, error)
}

// Options wires a Client to its collaborators. Dialer and Sessions are required.
type Options struct {
	Dialer    repositories.Dialer
	Sessions  SessionIDProvider
	Capture   repositories.CaptureSource
	Playback  repositories.PlaybackSink
	Presenter Presenter
	Clock     clock.Clock
	Logger    *zap.Logger
	Metrics   *metrics.Client
	Policy    Policy
	Format    repositories.AudioFormat
}

// Client is one voice streaming session: a connection, a microphone and a
// speaker driven by the state machine. All state is owned by a single event
// loop goroutine; every public method only posts to it.
type Client struct {
	dialer    repositories.Dialer
	sessions  SessionIDProvider
	capture   repositories.CaptureSource
	playback  repositories.PlaybackSink
	presenter Presenter
	clock     clock.Clock
	logger    *zap.Logger
	metrics   *metrics.Client
	format    repositories.AudioFormat
	machine   *Machine

	inbox    chan interface{}
	ctx      context.Context
	cancel   context.CancelFunc
	loopDone chan struct{}

	started     atomic.Bool
	startOnce   sync.Once
	disposeOnce sync.Once

	// owned by the event loop
	state      State
	sessionID  string
	conn       repositories.Connection
	connGen    uint64
	captureH   repositories.CaptureHandle
	captureGen uint64
	active     repositories.Playback
	activeID   int
	tasks      map[taskKind]*task
	taskSeq    uint64
}

// NewClient creates a disposed-until-connected session client
func NewClient(opts Options) (*Client, error) {
	if opts.Dialer == nil {
		return nil, errors.New("dialer is required")
	}
	if opts.Sessions == nil {
		return nil, errors.New("session id provider is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	presenter := opts.Presenter
	if presenter == nil {
		presenter = nopPresenter{}
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	format := opts.Format
	if format.SampleRate <= 0 {
		format.SampleRate = pcm.SampleRate
	}
	if format.Channels <= 0 {
		format.Channels = pcm.Channels
	}
	if format.FrameSamples <= 0 {
		format.FrameSamples = pcm.FrameSamples
	}
	policy := opts.Policy
	if policy.SampleRate <= 0 {
		policy.SampleRate = format.SampleRate
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		dialer:    opts.Dialer,
		sessions:  opts.Sessions,
		capture:   opts.Capture,
		playback:  opts.Playback,
		presenter: presenter,
		clock:     clk,
		logger:    logger,
		metrics:   opts.Metrics,
		format:    format,
		machine:   NewMachine(policy),
		inbox:     make(chan interface{}, inboxSize),
		ctx:       ctx,
		cancel:    cancel,
		loopDone:  make(chan struct{}),
		state:     InitialState(),
		tasks:     make(map[taskKind]*task),
	}, nil
}

// Connect resolves the session identifier and opens the connection. Calling it
// again tears down the current connection and dials with a freshly resolved
// identifier.
func (c *Client) Connect(ctx context.Context) error {
	if c.ctx.Err() != nil {
		return ErrDisposed
	}

	id, err := c.sessions.SessionID(ctx)
	if err != nil {
		return fmt.Errorf("resolve session id: %w", err)
	}

	c.startOnce.Do(func() {
		c.started.Store(true)
		go c.run()
	})

	if !c.post(sessionResolved{id: id}) || !c.post(ConnectRequested{}) {
		return ErrDisposed
	}
	return nil
}

// StartCapture asks to start streaming microphone audio
func (c *Client) StartCapture() error {
	if !c.post(StartCaptureRequested{}) {
		return ErrDisposed
	}
	return nil
}

// StopCapture ends the current utterance
func (c *Client) StopCapture() error {
	if !c.post(StopCaptureRequested{}) {
		return ErrDisposed
	}
	return nil
}

// SessionID returns the identifier of the current connection
func (c *Client) SessionID() string {
	return c.inspect().sessionID
}

// State returns a snapshot of the state machine
func (c *Client) State() State {
	return c.inspect().state
}

// Dispose stops timers, closes the connection and releases audio devices.
// It is safe to call more than once.
func (c *Client) Dispose() {
	c.disposeOnce.Do(func() {
		c.cancel()
		if c.started.Load() {
			<-c.loopDone
			return
		}
		c.teardown()
	})
}

type sessionResolved struct{ id string }

type dialResult struct {
	gen  uint64
	conn repositories.Connection
	err  error
}

type connEvent struct {
	gen uint64
	ev  Event
}

type captureFrame struct {
	gen  uint64
	data []byte
}

type captureLost struct {
	gen uint64
	err error
}

type taskFired struct {
	kind taskKind
	seq  uint64
}

type snapshot struct {
	state            State
	sessionID        string
	connected        bool
	captureOpen      bool
	playbackActive   bool
	reconnectPending bool
	resetPending     bool
}

type inspectRequest struct{ reply chan snapshot }

func (c *Client) post(msg interface{}) bool {
	select {
	case <-c.ctx.Done():
		return false
	default:
	}
	select {
	case c.inbox <- msg:
		return true
	case <-c.ctx.Done():
		return false
	}
}

func (c *Client) inspect() snapshot {
	if !c.started.Load() {
		return c.snapshot()
	}
	req := inspectRequest{reply: make(chan snapshot, 1)}
	if !c.post(req) {
		<-c.loopDone
		return c.snapshot()
	}
	select {
	case s := <-req.reply:
		return s
	case <-c.loopDone:
		return c.snapshot()
	}
}

func (c *Client) snapshot() snapshot {
	s := c.state
	s.TTSBuffer = append([]string(nil), s.TTSBuffer...)
	return snapshot{
		state:            s,
		sessionID:        c.sessionID,
		connected:        c.conn != nil,
		captureOpen:      c.captureH != nil,
		playbackActive:   c.active != nil,
		reconnectPending: c.tasks[taskReconnect] != nil,
		resetPending:     c.tasks[taskProcessingReset] != nil,
	}
}

func (c *Client) run() {
	defer close(c.loopDone)
	c.logger.Debug("Voice session loop started")

	for {
		select {
		case <-c.ctx.Done():
			c.teardown()
			c.logger.Debug("Voice session loop stopped")
			return
		case msg := <-c.inbox:
			c.handle(msg)
		}
	}
}

func (c *Client) handle(msg interface{}) {
	switch m := msg.(type) {
	case sessionResolved:
		c.sessionID = m.id

	case dialResult:
		if m.gen != c.connGen {
			if m.conn != nil {
				m.conn.Close()
			}
			return
		}
		if m.err != nil {
			c.metrics.Connected(false)
			c.dispatch(ConnectFailed{Err: m.err})
			return
		}
		c.conn = m.conn
		c.metrics.Connected(true)
		c.logger.Info("Voice session connected", zap.String("session_id", c.sessionID))
		go c.readLoop(m.gen, m.conn)
		c.dispatch(ConnOpened{})

	case connEvent:
		if m.gen != c.connGen {
			return
		}
		if _, closed := m.ev.(ConnClosed); closed {
			c.closeConn()
		}
		c.dispatch(m.ev)

	case captureFrame:
		if m.gen != c.captureGen || c.captureH == nil {
			return
		}
		c.dispatch(FrameCaptured{Data: m.data})

	case captureLost:
		if m.gen != c.captureGen || c.captureH == nil {
			return
		}
		c.logger.Warn("Capture device failed", zap.Error(m.err))
		c.dispatch(CaptureLost{Err: m.err})

	case taskFired:
		t := c.tasks[m.kind]
		if t == nil || t.seq != m.seq {
			return
		}
		delete(c.tasks, m.kind)
		c.dispatch(m.kind.event())

	case PlaybackFinished:
		if m.ID == c.activeID {
			c.active = nil
		}
		if m.Err != nil {
			c.metrics.PlaybackFailed()
		}
		c.dispatch(m)

	case Event:
		c.dispatch(m)

	case inspectRequest:
		m.reply <- c.snapshot()
	}
}

// dispatch steps the machine and runs the resulting effects. Effects that
// complete synchronously feed their follow-up events back in, in order.
func (c *Client) dispatch(ev Event) {
	queue := []Event{ev}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]

		var effects []Effect
		c.state, effects = c.machine.Step(c.state, next)
		for _, eff := range effects {
			queue = append(queue, c.execute(eff)...)
		}
	}
}

func (c *Client) execute(eff Effect) []Event {
	switch e := eff.(type) {
	case Dial:
		c.dial()

	case ScheduleReconnect:
		c.metrics.ReconnectScheduled(e.Delay)
		c.logger.Info("Reconnect scheduled", zap.Duration("delay", e.Delay))
		c.schedule(taskReconnect, e.Delay)

	case CancelReconnect:
		c.cancelTask(taskReconnect)

	case OpenCapture:
		if err := c.openCapture(); err != nil {
			return []Event{CaptureFailed{Err: err}}
		}
		return []Event{CaptureOpened{}}

	case CloseCapture:
		c.closeCapture()

	case SendFrame:
		if c.conn == nil {
			c.metrics.FrameDropped()
			return nil
		}
		if err := c.conn.WriteBinary(e.Data); err != nil {
			c.metrics.FrameDropped()
			c.logger.Warn("Failed to send audio frame", zap.Error(err))
			return nil
		}
		c.metrics.FrameSent()

	case DropFrame:
		c.metrics.FrameDropped()

	case SendAudioEnd:
		if c.conn == nil {
			c.logger.Warn("Cannot send audio_end: not connected")
			return nil
		}
		if err := c.conn.WriteText(websocket.EncodeAudioEnd()); err != nil {
			c.logger.Warn("Failed to send audio_end", zap.Error(err))
		}

	case ScheduleProcessingReset:
		c.schedule(taskProcessingReset, e.Delay)

	case CancelProcessingReset:
		c.cancelTask(taskProcessingReset)

	case Play:
		if err := c.play(e); err != nil {
			return []Event{PlaybackFinished{ID: e.ID, Err: err}}
		}

	case StopPlayback:
		c.stopPlayback()

	case StatusChanged:
		c.logger.Info("Connection status changed", zap.String("status", string(e.Status)))
		c.presenter.ConnectionChanged(e.Status)

	case StateChanged:
		c.logger.Debug("Recording state changed", zap.String("state", string(e.State)))
		c.presenter.StateChanged(e.State)

	case ShowTranscript:
		c.presenter.Transcript(e.Text, e.Final)

	case ShowReply:
		c.presenter.AssistantReply(e.Reply)

	case ShowNotice:
		c.logger.Warn("Notice", zap.String("text", e.Text))
		c.presenter.Notice(e.Text)

	case LogEvent:
		fields := []zap.Field{zap.String("session_id", c.sessionID)}
		if e.Kind != "" {
			fields = append(fields, zap.String("type", e.Kind))
		}
		if e.Detail != "" {
			fields = append(fields, zap.String("detail", e.Detail))
		}
		if e.Err != nil {
			fields = append(fields, zap.Error(e.Err))
			c.logger.Warn(e.Message, fields...)
			return nil
		}
		c.logger.Debug(e.Message, fields...)
	}
	return nil
}

func (c *Client) dial() {
	c.closeConn()
	gen := c.connGen
	sessionID := c.sessionID

	c.logger.Info("Connecting voice session", zap.String("session_id", sessionID))
	go func() {
		conn, err := c.dialer.Dial(c.ctx, sessionID)
		if !c.post(dialResult{gen: gen, conn: conn, err: err}) && conn != nil {
			conn.Close()
		}
	}()
}

// closeConn invalidates the current connection generation so late results
// from its dial or reader goroutines are discarded.
func (c *Client) closeConn() {
	c.connGen++
	if c.conn == nil {
		return
	}
	if err := c.conn.Close(); err != nil {
		c.logger.Debug("Error closing connection", zap.Error(err))
	}
	c.conn = nil
	c.metrics.Disconnected()
}

func (c *Client) readLoop(gen uint64, conn repositories.Connection) {
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			c.post(connEvent{gen: gen, ev: ConnClosed{Err: err}})
			return
		}
		if kind != repositories.TextMessage {
			c.logger.Debug("Ignoring binary message from server", zap.Int("bytes", len(data)))
			continue
		}
		if !c.post(connEvent{gen: gen, ev: c.decode(data)}) {
			return
		}
	}
}

func (c *Client) decode(data []byte) Event {
	msg, err := websocket.DecodeServerMessage(data)
	if err != nil {
		c.metrics.MessageReceived("invalid")
		return MalformedMessage{Err: err}
	}

	switch m := msg.(type) {
	case *domain.TranscriptMessage:
		c.metrics.MessageReceived(string(m.Type))
		return TranscriptReceived{Text: m.Text, Final: m.IsFinal()}
	case *domain.ResponseMessage:
		c.metrics.MessageReceived(string(m.Type))
		return ReplyReceived{Reply: m.Reply()}
	case *domain.AssistantResponseMessage:
		c.metrics.MessageReceived(string(m.Type))
		return ReplyReceived{Reply: m.Reply(), Meta: m.Meta}
	case *domain.TTSStartMessage:
		c.metrics.MessageReceived(string(m.Type))
		return SynthesisStarted{}
	case *domain.TTSAudioMessage:
		c.metrics.MessageReceived(string(m.Type))
		return SynthesisAudio{Fragment: m.Audio}
	case *domain.TTSEndMessage:
		c.metrics.MessageReceived(string(m.Type))
		return SynthesisEnded{}
	case *domain.TTSErrorMessage:
		c.metrics.MessageReceived(string(m.Type))
		return SynthesisFailed{Reason: m.Error}
	case *domain.ErrorMessage:
		c.metrics.MessageReceived(string(m.Type))
		return ServerError{Message: m.Message}
	case *domain.DebugMessage:
		c.metrics.MessageReceived(string(m.Type))
		return ServerDebug{Type: string(m.Type), Message: m.Message}
	case *domain.UnknownMessage:
		c.metrics.MessageReceived("unknown")
		return UnknownMessage{Type: string(m.Type)}
	default:
		return UnknownMessage{Type: fmt.Sprintf("%T", msg)}
	}
}

func (c *Client) openCapture() error {
	c.closeCapture()
	if c.capture == nil {
		return errNoCapture
	}

	gen := c.captureGen
	handle, err := c.capture.Open(c.format, func(samples []float32) {
		frame := captureFrame{gen: gen, data: pcm.EncodeFloat32(samples)}
		// frames are never queued behind a full inbox
		select {
		case c.inbox <- frame:
		default:
			c.metrics.FrameDropped()
		}
	}, func(err error) {
		go c.post(captureLost{gen: gen, err: err})
	})
	if err != nil {
		return err
	}
	c.captureH = handle
	c.logger.Debug("Capture opened", zap.Int("sample_rate", c.format.SampleRate))
	return nil
}

// closeCapture releases the input device; frames already posted by it are
// dropped by the generation check.
func (c *Client) closeCapture() {
	c.captureGen++
	if c.captureH == nil {
		return
	}
	if err := c.captureH.Close(); err != nil {
		c.logger.Warn("Failed to close capture", zap.Error(err))
	}
	c.captureH = nil
}

func (c *Client) play(e Play) error {
	c.stopPlayback()
	if c.playback == nil {
		return errNoPlayback
	}

	samples := pcm.DecodeFloat32(e.PCM)
	id := e.ID
	pb, err := c.playback.Play(samples, e.Rate, func(err error) {
		go c.post(PlaybackFinished{ID: id, Err: err})
	})
	if err != nil {
		return err
	}
	c.active = pb
	c.activeID = id
	c.metrics.PlaybackStarted(pcm.SamplesDuration(len(samples), e.Rate))
	return nil
}

func (c *Client) stopPlayback() {
	if c.active == nil {
		return
	}
	c.active.Stop()
	c.active = nil
}

func (c *Client) teardown() {
	for kind := range c.tasks {
		c.cancelTask(kind)
	}
	c.closeCapture()
	c.stopPlayback()
	c.closeConn()
}
