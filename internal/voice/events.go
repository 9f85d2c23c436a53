package voice

import (
	"encoding/json"
	"time"

	"github.com/satriahrh/scenery-voice/domain/entities"
)

// Event is an input to the state machine
type Event interface {
	isEvent()
}

// ConnectRequested starts (or restarts) a connection attempt
type ConnectRequested struct{}

// ReconnectDue fires when the scheduled reconnect delay has elapsed
type ReconnectDue struct{}

// ConnOpened reports a successfully opened connection
type ConnOpened struct{}

// ConnectFailed reports that a connection could not even be opened
type ConnectFailed struct{ Err error }

// ConnClosed reports an unexpected close of an open connection
type ConnClosed struct{ Err error }

// StartCaptureRequested is the user asking to talk
type StartCaptureRequested struct{}

// StopCaptureRequested is the user done talking
type StopCaptureRequested struct{}

// CaptureOpened reports the input device was acquired
type CaptureOpened struct{}

// CaptureFailed reports the input device could not be acquired
type CaptureFailed struct{ Err error }

// CaptureLost reports the open input device stopped delivering frames
type CaptureLost struct{ Err error }

// FrameCaptured carries one PCM16 LE frame from the capture pipeline
type FrameCaptured struct{ Data []byte }

// ProcessingTimeout fires after StopCapture when nothing else happened
type ProcessingTimeout struct{}

// TranscriptReceived is an interim or final transcript
type TranscriptReceived struct {
	Text  string
	Final bool
}

// ReplyReceived is an assistant text response with optional ranked items.
// Meta is the raw diagnostic block of assistant_response, if any.
type ReplyReceived struct {
	Reply entities.AssistantReply
	Meta  json.RawMessage
}

// SynthesisStarted is tts_start
type SynthesisStarted struct{}

// SynthesisAudio is one tts_audio fragment
type SynthesisAudio struct{ Fragment string }

// SynthesisEnded is tts_end
type SynthesisEnded struct{}

// SynthesisFailed is tts_error
type SynthesisFailed struct{ Reason string }

// PlaybackFinished reports completion (Err == nil) or failure of playback ID
type PlaybackFinished struct {
	ID  int
	Err error
}

// ServerError is a generic error message from the server
type ServerError struct{ Message string }

// ServerDebug is diagnostic output from the server
type ServerDebug struct {
	Type    string
	Message string
}

// UnknownMessage is a message type this client does not understand
type UnknownMessage struct{ Type string }

// MalformedMessage is a message that could not be parsed
type MalformedMessage struct{ Err error }

func (ConnectRequested) isEvent()      {}
func (ReconnectDue) isEvent()          {}
func (ConnOpened) isEvent()            {}
func (ConnectFailed) isEvent()         {}
func (ConnClosed) isEvent()            {}
func (StartCaptureRequested) isEvent() {}
func (StopCaptureRequested) isEvent()  {}
func (CaptureOpened) isEvent()         {}
func (CaptureFailed) isEvent()         {}
func (CaptureLost) isEvent()           {}
func (FrameCaptured) isEvent()         {}
func (ProcessingTimeout) isEvent()     {}
func (TranscriptReceived) isEvent()    {}
func (ReplyReceived) isEvent()         {}
func (SynthesisStarted) isEvent()      {}
func (SynthesisAudio) isEvent()        {}
func (SynthesisEnded) isEvent()        {}
func (SynthesisFailed) isEvent()       {}
func (PlaybackFinished) isEvent()      {}
func (ServerError) isEvent()           {}
func (ServerDebug) isEvent()           {}
func (UnknownMessage) isEvent()        {}
func (MalformedMessage) isEvent()      {}

// Effect is a side effect requested by the state machine
type Effect interface {
	isEffect()
}

// Dial opens a new connection, tearing down any previous one
type Dial struct{}

// ScheduleReconnect replaces any pending reconnect with one after Delay
type ScheduleReconnect struct{ Delay time.Duration }

// CancelReconnect drops the pending reconnect, if any
type CancelReconnect struct{}

// OpenCapture acquires the input device
type OpenCapture struct{}

// CloseCapture releases the input device
type CloseCapture struct{}

// SendFrame writes one binary PCM frame
type SendFrame struct{ Data []byte }

// DropFrame records a frame discarded because the connection was not open
type DropFrame struct{}

// SendAudioEnd writes the end-of-audio control message
type SendAudioEnd struct{}

// ScheduleProcessingReset replaces any pending reset with one after Delay
type ScheduleProcessingReset struct{ Delay time.Duration }

// CancelProcessingReset drops the pending processing reset, if any
type CancelProcessingReset struct{}

// Play starts playback ID of PCM16 LE data
type Play struct {
	ID   int
	PCM  []byte
	Rate int
}

// StopPlayback stops the active playback
type StopPlayback struct{}

// StatusChanged tells the UI the connection status changed
type StatusChanged struct{ Status entities.ConnectionStatus }

// StateChanged tells the UI the recording state changed
type StateChanged struct{ State entities.RecordingState }

// ShowTranscript tells the UI to display the user's utterance
type ShowTranscript struct {
	Text  string
	Final bool
}

// ShowReply tells the UI to display assistant output
type ShowReply struct{ Reply entities.AssistantReply }

// ShowNotice tells the UI to display a one-line notice
type ShowNotice struct{ Text string }

// LogEvent records a log-only event
type LogEvent struct {
	Message string
	Kind    string
	Detail  string
	Err     error
}

func (Dial) isEffect()                    {}
func (ScheduleReconnect) isEffect()       {}
func (CancelReconnect) isEffect()         {}
func (OpenCapture) isEffect()             {}
func (CloseCapture) isEffect()            {}
func (SendFrame) isEffect()               {}
func (DropFrame) isEffect()               {}
func (SendAudioEnd) isEffect()            {}
func (ScheduleProcessingReset) isEffect() {}
func (CancelProcessingReset) isEffect()   {}
func (Play) isEffect()                    {}
func (StopPlayback) isEffect()            {}
func (StatusChanged) isEffect()           {}
func (StateChanged) isEffect()            {}
func (ShowTranscript) isEffect()          {}
func (ShowReply) isEffect()               {}
func (ShowNotice) isEffect()              {}
func (LogEvent) isEffect()                {}
