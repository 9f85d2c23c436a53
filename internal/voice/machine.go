package voice

import (
	"errors"
	"fmt"
	"time"

	"github.com/satriahrh/scenery-voice/domain/entities"
	"github.com/satriahrh/scenery-voice/internal/pcm"
)

const (
	// DefaultShortReconnectDelay applies when a request was in flight at drop time
	DefaultShortReconnectDelay = 500 * time.Millisecond
	// DefaultLongReconnectDelay applies to idle drops
	DefaultLongReconnectDelay = 3 * time.Second
	// DefaultProcessingResetDelay reverts processing to idle when nothing follows
	DefaultProcessingResetDelay = 1 * time.Second
)

// Policy holds the timing constants of the state machine
type Policy struct {
	ShortReconnectDelay  time.Duration
	LongReconnectDelay   time.Duration
	ProcessingResetDelay time.Duration
	SampleRate           int
}

// DefaultPolicy returns the standard timings
func DefaultPolicy() Policy {
	return Policy{
		ShortReconnectDelay:  DefaultShortReconnectDelay,
		LongReconnectDelay:   DefaultLongReconnectDelay,
		ProcessingResetDelay: DefaultProcessingResetDelay,
		SampleRate:           pcm.SampleRate,
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.ShortReconnectDelay <= 0 {
		p.ShortReconnectDelay = d.ShortReconnectDelay
	}
	if p.LongReconnectDelay <= 0 {
		p.LongReconnectDelay = d.LongReconnectDelay
	}
	if p.ProcessingResetDelay <= 0 {
		p.ProcessingResetDelay = d.ProcessingResetDelay
	}
	if p.SampleRate <= 0 {
		p.SampleRate = d.SampleRate
	}
	return p
}

// State is a snapshot of the session state machine
type State struct {
	Recording  entities.RecordingState
	Connection entities.ConnectionStatus

	// InFlight is set from audio_end until the server answers or errors
	InFlight bool
	// ConnectFailures counts consecutive failed dial attempts
	ConnectFailures int

	// Synthesizing is set between tts_start and tts_end
	Synthesizing bool
	TTSBuffer    []string

	Playing    bool
	PlaybackID int
	// Queued holds decoded clips waiting for the active playback, oldest first
	Queued [][]byte
}

// InitialState is the resting state of a fresh session
func InitialState() State {
	return State{
		Recording:  entities.RecordingStateIdle,
		Connection: entities.ConnectionStatusDisconnected,
	}
}

// Machine is the pure transition function of the voice session
type Machine struct {
	policy Policy
}

// NewMachine creates a state machine with the given timings
func NewMachine(policy Policy) *Machine {
	return &Machine{policy: policy.withDefaults()}
}

// Policy returns the effective timings
func (m *Machine) Policy() Policy {
	return m.policy
}

// Step applies ev to s and returns the next state and the side effects to run, in order.
// It never mutates s.
func (m *Machine) Step(s State, ev Event) (State, []Effect) {
	t := transition{state: s, policy: m.policy}
	t.apply(ev)
	return t.state, t.effects
}

type transition struct {
	state   State
	policy  Policy
	effects []Effect
}

func (t *transition) emit(effects ...Effect) {
	t.effects = append(t.effects, effects...)
}

func (t *transition) setRecording(r entities.RecordingState) {
	if t.state.Recording == r {
		return
	}
	t.state.Recording = r
	t.emit(StateChanged{State: r})
}

func (t *transition) setConnection(c entities.ConnectionStatus) {
	if t.state.Connection == c {
		return
	}
	t.state.Connection = c
	t.emit(StatusChanged{Status: c})
}

func (t *transition) apply(ev Event) {
	switch e := ev.(type) {
	case ConnectRequested, ReconnectDue:
		t.emit(CancelReconnect{})
		t.setConnection(entities.ConnectionStatusConnecting)
		t.emit(Dial{})

	case ConnOpened:
		t.state.ConnectFailures = 0
		t.emit(CancelReconnect{})
		t.setConnection(entities.ConnectionStatusConnected)

	case ConnectFailed:
		t.state.ConnectFailures++
		if t.state.ConnectFailures == 1 {
			t.emit(ShowNotice{Text: fmt.Sprintf("Could not connect to voice service: %v", e.Err)})
		}
		t.disconnected(e.Err)

	case ConnClosed:
		t.disconnected(e.Err)

	case StartCaptureRequested:
		switch t.state.Recording {
		case entities.RecordingStateSpeaking:
			t.emit(LogEvent{Message: "Capture rejected while assistant is speaking"})
		case entities.RecordingStateRecording:
		default:
			t.emit(OpenCapture{})
		}

	case CaptureOpened:
		if t.state.Recording == entities.RecordingStateSpeaking || t.state.Recording == entities.RecordingStateRecording {
			t.emit(CloseCapture{})
			return
		}
		t.emit(CancelProcessingReset{})
		t.setRecording(entities.RecordingStateRecording)

	case CaptureFailed:
		t.emit(ShowNotice{Text: fmt.Sprintf("Microphone unavailable: %v", e.Err)})

	case CaptureLost:
		t.emit(ShowNotice{Text: fmt.Sprintf("Microphone stopped: %v", e.Err)})
		if t.state.Recording != entities.RecordingStateRecording {
			t.emit(CloseCapture{})
			return
		}
		// the audio already streamed still makes an utterance
		t.stopCapture()

	case FrameCaptured:
		if t.state.Recording != entities.RecordingStateRecording {
			return
		}
		if t.state.Connection != entities.ConnectionStatusConnected {
			t.emit(DropFrame{})
			return
		}
		t.emit(SendFrame{Data: e.Data})

	case StopCaptureRequested:
		if t.state.Recording != entities.RecordingStateRecording {
			return
		}
		t.stopCapture()

	case ProcessingTimeout:
		if t.state.Recording == entities.RecordingStateProcessing {
			t.setRecording(entities.RecordingStateIdle)
		}

	case TranscriptReceived:
		t.emit(ShowTranscript{Text: e.Text, Final: e.Final})

	case ReplyReceived:
		t.state.InFlight = false
		t.emit(ShowReply{Reply: e.Reply})
		if len(e.Meta) > 0 {
			t.emit(LogEvent{Message: "Assistant response meta", Kind: "assistant_response", Detail: string(e.Meta)})
		}

	case SynthesisStarted:
		t.state.TTSBuffer = nil
		t.state.Synthesizing = true
		t.enterSpeaking()

	case SynthesisAudio:
		if e.Fragment == "" {
			return
		}
		buf := make([]string, len(t.state.TTSBuffer), len(t.state.TTSBuffer)+1)
		copy(buf, t.state.TTSBuffer)
		t.state.TTSBuffer = append(buf, e.Fragment)

	case SynthesisEnded:
		t.synthesisEnded()

	case SynthesisFailed:
		t.emit(ShowNotice{Text: fmt.Sprintf("Speech synthesis failed: %s", e.Reason)})
		t.resetSpeech()

	case PlaybackFinished:
		t.playbackFinished(e)

	case ServerError:
		t.state.InFlight = false
		t.emit(ShowNotice{Text: fmt.Sprintf("Server error: %s", e.Message)})

	case ServerDebug:
		t.emit(LogEvent{Message: "Server debug", Kind: e.Type, Detail: e.Message})

	case UnknownMessage:
		t.emit(LogEvent{Message: "Ignoring unknown message type", Kind: e.Type})

	case MalformedMessage:
		t.emit(LogEvent{Message: "Dropping malformed message", Err: e.Err})
	}
}

func (t *transition) disconnected(err error) {
	delay := t.policy.LongReconnectDelay
	if t.state.InFlight {
		delay = t.policy.ShortReconnectDelay
		// the request died with the connection
		t.state.InFlight = false
	}
	t.setConnection(entities.ConnectionStatusDisconnected)
	t.emit(ScheduleReconnect{Delay: delay})
	if err != nil {
		t.emit(LogEvent{Message: "Connection lost", Err: err})
	}
}

func (t *transition) stopCapture() {
	t.state.InFlight = true
	t.emit(CloseCapture{}, SendAudioEnd{})
	t.setRecording(entities.RecordingStateProcessing)
	t.emit(ScheduleProcessingReset{Delay: t.policy.ProcessingResetDelay})
}

func (t *transition) enterSpeaking() {
	if t.state.Recording == entities.RecordingStateRecording {
		t.emit(CloseCapture{})
	}
	t.emit(CancelProcessingReset{})
	t.setRecording(entities.RecordingStateSpeaking)
}

func (t *transition) synthesisEnded() {
	fragments := t.state.TTSBuffer
	t.state.TTSBuffer = nil
	t.state.Synthesizing = false

	data, err := pcm.JoinBase64(fragments)
	if err != nil {
		if errors.Is(err, pcm.ErrEmptyAudio) {
			if !t.state.Playing && t.state.Recording == entities.RecordingStateSpeaking {
				t.setRecording(entities.RecordingStateIdle)
			}
			return
		}
		t.emit(ShowNotice{Text: fmt.Sprintf("Could not decode synthesized audio: %v", err)})
		t.resetSpeech()
		return
	}

	t.enterSpeaking()
	if t.state.Playing {
		queue := make([][]byte, len(t.state.Queued), len(t.state.Queued)+1)
		copy(queue, t.state.Queued)
		t.state.Queued = append(queue, data)
		return
	}
	t.startPlayback(data)
}

func (t *transition) startPlayback(data []byte) {
	t.state.PlaybackID++
	t.state.Playing = true
	t.emit(Play{ID: t.state.PlaybackID, PCM: data, Rate: t.policy.SampleRate})
}

func (t *transition) playbackFinished(e PlaybackFinished) {
	if !t.state.Playing || e.ID != t.state.PlaybackID {
		return
	}
	t.state.Playing = false

	if e.Err != nil {
		t.emit(ShowNotice{Text: fmt.Sprintf("Audio playback failed: %v", e.Err)})
		t.resetSpeech()
		return
	}

	if len(t.state.Queued) > 0 {
		data := t.state.Queued[0]
		t.state.Queued = t.state.Queued[1:]
		if len(t.state.Queued) == 0 {
			t.state.Queued = nil
		}
		t.startPlayback(data)
		return
	}
	if t.state.Synthesizing {
		return
	}
	t.state.TTSBuffer = nil
	t.setRecording(entities.RecordingStateIdle)
}

// resetSpeech unconditionally returns to idle so the client never sticks in speaking
func (t *transition) resetSpeech() {
	if t.state.Playing {
		t.emit(StopPlayback{})
		t.state.Playing = false
	}
	t.state.Queued = nil
	t.state.TTSBuffer = nil
	t.state.Synthesizing = false
	if t.state.Recording == entities.RecordingStateSpeaking {
		t.setRecording(entities.RecordingStateIdle)
	}
}
