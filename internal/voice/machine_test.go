package voice

import (
	"encoding/base64"
	"errors"
	"reflect"
	"testing"

	"github.com/satriahrh/scenery-voice/domain/entities"
	"github.com/satriahrh/scenery-voice/internal/pcm"
)

func stepAll(m *Machine, s State, events ...Event) (State, []Effect) {
	var all []Effect
	for _, ev := range events {
		var effects []Effect
		s, effects = m.Step(s, ev)
		all = append(all, effects...)
	}
	return s, all
}

func hasEffect(effects []Effect, want Effect) bool {
	for _, eff := range effects {
		if reflect.DeepEqual(eff, want) {
			return true
		}
	}
	return false
}

func countEffects[T Effect](effects []Effect) int {
	n := 0
	for _, eff := range effects {
		if _, ok := eff.(T); ok {
			n++
		}
	}
	return n
}

func firstEffect[T Effect](effects []Effect) (T, bool) {
	for _, eff := range effects {
		if e, ok := eff.(T); ok {
			return e, true
		}
	}
	var zero T
	return zero, false
}

func connectedState(m *Machine) State {
	s, _ := stepAll(m, InitialState(), ConnectRequested{}, ConnOpened{})
	return s
}

func recordingState(m *Machine) State {
	s, _ := stepAll(m, connectedState(m), StartCaptureRequested{}, CaptureOpened{})
	return s
}

func fragment(samples ...int16) string {
	return base64.StdEncoding.EncodeToString(pcm.EncodeInt16(samples))
}

func TestInitialState(t *testing.T) {
	s := InitialState()
	if s.Recording != entities.RecordingStateIdle {
		t.Errorf("Expected idle, got %s", s.Recording)
	}
	if s.Connection != entities.ConnectionStatusDisconnected {
		t.Errorf("Expected disconnected, got %s", s.Connection)
	}
}

func TestConnectLifecycle(t *testing.T) {
	m := NewMachine(DefaultPolicy())

	s, effects := m.Step(InitialState(), ConnectRequested{})
	if s.Connection != entities.ConnectionStatusConnecting {
		t.Errorf("Expected connecting, got %s", s.Connection)
	}
	if countEffects[Dial](effects) != 1 {
		t.Errorf("Expected exactly one Dial, got %v", effects)
	}

	s, effects = m.Step(s, ConnOpened{})
	if s.Connection != entities.ConnectionStatusConnected {
		t.Errorf("Expected connected, got %s", s.Connection)
	}
	if !hasEffect(effects, CancelReconnect{}) {
		t.Error("Expected pending reconnect to be cancelled on open")
	}
	if !hasEffect(effects, StatusChanged{Status: entities.ConnectionStatusConnected}) {
		t.Error("Expected status change to be reported")
	}
}

func TestReconnectDelay(t *testing.T) {
	tests := []struct {
		name  string
		setup func(m *Machine) State
		event Event
		delay int64
	}{
		{
			name:  "idle drop waits long",
			setup: connectedState,
			event: ConnClosed{Err: errors.New("eof")},
			delay: int64(DefaultLongReconnectDelay),
		},
		{
			name: "drop while processing waits short",
			setup: func(m *Machine) State {
				s, _ := m.Step(recordingState(m), StopCaptureRequested{})
				return s
			},
			event: ConnClosed{Err: errors.New("eof")},
			delay: int64(DefaultShortReconnectDelay),
		},
		{
			name:  "dial failure waits long",
			setup: func(m *Machine) State { s, _ := m.Step(InitialState(), ConnectRequested{}); return s },
			event: ConnectFailed{Err: errors.New("refused")},
			delay: int64(DefaultLongReconnectDelay),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMachine(DefaultPolicy())
			s, effects := m.Step(tt.setup(m), tt.event)

			if s.Connection != entities.ConnectionStatusDisconnected {
				t.Errorf("Expected disconnected, got %s", s.Connection)
			}
			if n := countEffects[ScheduleReconnect](effects); n != 1 {
				t.Fatalf("Expected exactly one reconnect, got %d", n)
			}
			eff, _ := firstEffect[ScheduleReconnect](effects)
			if int64(eff.Delay) != tt.delay {
				t.Errorf("Expected delay %v, got %v", tt.delay, eff.Delay)
			}
		})
	}
}

func TestShortReconnectClearsInFlight(t *testing.T) {
	m := NewMachine(DefaultPolicy())
	s, _ := stepAll(m, recordingState(m), StopCaptureRequested{})
	if !s.InFlight {
		t.Fatal("Expected request in flight after stop")
	}

	s, _ = m.Step(s, ConnClosed{})
	if s.InFlight {
		t.Error("Expected in-flight flag cleared once the connection dropped")
	}

	s, _ = stepAll(m, s, ReconnectDue{}, ConnOpened{})
	_, effects := m.Step(s, ConnClosed{})
	eff, _ := firstEffect[ScheduleReconnect](effects)
	if eff.Delay != DefaultLongReconnectDelay {
		t.Errorf("Expected long delay on second drop, got %v", eff.Delay)
	}
}

func TestConnectFailureNoticeOnlyOnce(t *testing.T) {
	m := NewMachine(DefaultPolicy())
	s := InitialState()

	notices := 0
	for i := 0; i < 3; i++ {
		var effects []Effect
		s, effects = stepAll(m, s, ConnectRequested{}, ConnectFailed{Err: errors.New("refused")})
		notices += countEffects[ShowNotice](effects)
	}
	if notices != 1 {
		t.Errorf("Expected 1 notice for consecutive failures, got %d", notices)
	}
	if s.ConnectFailures != 3 {
		t.Errorf("Expected 3 consecutive failures, got %d", s.ConnectFailures)
	}

	s, _ = stepAll(m, s, ConnectRequested{}, ConnOpened{})
	if s.ConnectFailures != 0 {
		t.Errorf("Expected failures reset on open, got %d", s.ConnectFailures)
	}
}

func TestStartCapture(t *testing.T) {
	m := NewMachine(DefaultPolicy())

	s, effects := m.Step(connectedState(m), StartCaptureRequested{})
	if !hasEffect(effects, OpenCapture{}) {
		t.Fatal("Expected OpenCapture")
	}
	if s.Recording != entities.RecordingStateIdle {
		t.Errorf("Expected idle until capture opens, got %s", s.Recording)
	}

	s, _ = m.Step(s, CaptureOpened{})
	if s.Recording != entities.RecordingStateRecording {
		t.Errorf("Expected recording, got %s", s.Recording)
	}

	// already recording
	_, effects = m.Step(s, StartCaptureRequested{})
	if len(effects) != 0 {
		t.Errorf("Expected no effects while recording, got %v", effects)
	}
}

func TestCaptureFailureLeavesStateUnchanged(t *testing.T) {
	m := NewMachine(DefaultPolicy())
	s, effects := stepAll(m, connectedState(m), StartCaptureRequested{}, CaptureFailed{Err: errors.New("denied")})

	if s.Recording != entities.RecordingStateIdle {
		t.Errorf("Expected idle, got %s", s.Recording)
	}
	if countEffects[ShowNotice](effects) != 1 {
		t.Errorf("Expected one notice, got %v", effects)
	}
}

func TestCaptureLostWhileRecording(t *testing.T) {
	m := NewMachine(DefaultPolicy())
	s, effects := m.Step(recordingState(m), CaptureLost{Err: errors.New("unplugged")})

	if s.Recording != entities.RecordingStateProcessing {
		t.Errorf("Expected processing, got %s", s.Recording)
	}
	if !s.InFlight {
		t.Error("Expected the partial utterance in flight")
	}
	if countEffects[ShowNotice](effects) != 1 {
		t.Errorf("Expected one notice, got %v", effects)
	}
	if !hasEffect(effects, CloseCapture{}) || !hasEffect(effects, SendAudioEnd{}) {
		t.Errorf("Expected capture closed and audio_end sent, got %v", effects)
	}
}

func TestCaptureLostOutsideRecording(t *testing.T) {
	m := NewMachine(DefaultPolicy())
	s, effects := m.Step(connectedState(m), CaptureLost{Err: errors.New("unplugged")})

	if s.Recording != entities.RecordingStateIdle {
		t.Errorf("Expected idle, got %s", s.Recording)
	}
	if hasEffect(effects, SendAudioEnd{}) {
		t.Errorf("Expected no audio_end, got %v", effects)
	}
	if countEffects[ShowNotice](effects) != 1 {
		t.Errorf("Expected one notice, got %v", effects)
	}
}

func TestFrameRouting(t *testing.T) {
	m := NewMachine(DefaultPolicy())
	frame := []byte{1, 2, 3, 4}

	// connected and recording
	s := recordingState(m)
	_, effects := m.Step(s, FrameCaptured{Data: frame})
	if !hasEffect(effects, SendFrame{Data: frame}) {
		t.Errorf("Expected frame to be sent, got %v", effects)
	}

	// recording without a connection
	s, _ = m.Step(s, ConnClosed{})
	_, effects = m.Step(s, FrameCaptured{Data: frame})
	if !hasEffect(effects, DropFrame{}) {
		t.Errorf("Expected frame to be dropped, got %v", effects)
	}

	// not recording
	_, effects = m.Step(connectedState(m), FrameCaptured{Data: frame})
	if len(effects) != 0 {
		t.Errorf("Expected late frame ignored, got %v", effects)
	}
}

func TestStopCapture(t *testing.T) {
	m := NewMachine(DefaultPolicy())
	s, effects := m.Step(recordingState(m), StopCaptureRequested{})

	want := []Effect{
		CloseCapture{},
		SendAudioEnd{},
		StateChanged{State: entities.RecordingStateProcessing},
		ScheduleProcessingReset{Delay: DefaultProcessingResetDelay},
	}
	if !reflect.DeepEqual(effects, want) {
		t.Errorf("Expected %v, got %v", want, effects)
	}
	if s.Recording != entities.RecordingStateProcessing {
		t.Errorf("Expected processing, got %s", s.Recording)
	}

	s, _ = m.Step(s, ProcessingTimeout{})
	if s.Recording != entities.RecordingStateIdle {
		t.Errorf("Expected idle after processing timeout, got %s", s.Recording)
	}

	// stop while not recording is a no-op
	_, effects = m.Step(s, StopCaptureRequested{})
	if len(effects) != 0 {
		t.Errorf("Expected no effects, got %v", effects)
	}
}

func TestProcessingTimeoutIgnoredOutsideProcessing(t *testing.T) {
	m := NewMachine(DefaultPolicy())
	s, _ := stepAll(m, recordingState(m), StopCaptureRequested{}, SynthesisStarted{})

	s, _ = m.Step(s, ProcessingTimeout{})
	if s.Recording != entities.RecordingStateSpeaking {
		t.Errorf("Expected speaking to survive a late timeout, got %s", s.Recording)
	}
}

func TestRecordingAndSpeakingAreExclusive(t *testing.T) {
	m := NewMachine(DefaultPolicy())

	// capture is refused while speaking
	s, _ := stepAll(m, connectedState(m), SynthesisStarted{})
	s, effects := m.Step(s, StartCaptureRequested{})
	if hasEffect(effects, OpenCapture{}) {
		t.Error("Expected capture to be refused while speaking")
	}
	if s.Recording != entities.RecordingStateSpeaking {
		t.Errorf("Expected speaking, got %s", s.Recording)
	}

	// capture that opens after speech began is closed again
	s, _ = stepAll(m, connectedState(m), StartCaptureRequested{}, SynthesisStarted{})
	s, effects = m.Step(s, CaptureOpened{})
	if !hasEffect(effects, CloseCapture{}) {
		t.Error("Expected late capture to be closed")
	}
	if s.Recording != entities.RecordingStateSpeaking {
		t.Errorf("Expected speaking, got %s", s.Recording)
	}

	// speech starting mid-utterance closes the microphone
	s, effects = m.Step(recordingState(m), SynthesisStarted{})
	if !hasEffect(effects, CloseCapture{}) {
		t.Error("Expected capture closed when speech starts")
	}
	if s.Recording != entities.RecordingStateSpeaking {
		t.Errorf("Expected speaking, got %s", s.Recording)
	}
}

func TestSynthesisPlayback(t *testing.T) {
	m := NewMachine(DefaultPolicy())
	s, _ := stepAll(m, recordingState(m), StopCaptureRequested{})

	s, effects := stepAll(m, s,
		SynthesisStarted{},
		SynthesisAudio{Fragment: fragment(100, 200)},
		SynthesisAudio{Fragment: fragment(300)},
	)
	if !hasEffect(effects, CancelProcessingReset{}) {
		t.Error("Expected processing reset cancelled when speech starts")
	}
	if len(s.TTSBuffer) != 2 {
		t.Fatalf("Expected 2 buffered fragments, got %d", len(s.TTSBuffer))
	}

	s, effects = m.Step(s, SynthesisEnded{})
	if len(s.TTSBuffer) != 0 {
		t.Errorf("Expected empty buffer after tts_end, got %d", len(s.TTSBuffer))
	}
	play, ok := firstEffect[Play](effects)
	if !ok {
		t.Fatalf("Expected Play, got %v", effects)
	}
	if got := pcm.DecodeInt16(play.PCM); !reflect.DeepEqual(got, []int16{100, 200, 300}) {
		t.Errorf("Expected joined samples, got %v", got)
	}
	if play.Rate != pcm.SampleRate {
		t.Errorf("Expected rate %d, got %d", pcm.SampleRate, play.Rate)
	}
	if s.Recording != entities.RecordingStateSpeaking {
		t.Errorf("Expected speaking during playback, got %s", s.Recording)
	}

	s, _ = m.Step(s, PlaybackFinished{ID: play.ID})
	if s.Recording != entities.RecordingStateIdle {
		t.Errorf("Expected idle after playback, got %s", s.Recording)
	}
	if s.Playing {
		t.Error("Expected playback cleared")
	}
}

func TestSynthesisBufferAlwaysEmptiedAtEnd(t *testing.T) {
	tests := []struct {
		name   string
		events []Event
	}{
		{
			name:   "empty synthesis",
			events: []Event{SynthesisStarted{}, SynthesisEnded{}},
		},
		{
			name:   "undecodable audio",
			events: []Event{SynthesisStarted{}, SynthesisAudio{Fragment: "***"}, SynthesisEnded{}},
		},
		{
			name:   "synthesis error",
			events: []Event{SynthesisStarted{}, SynthesisAudio{Fragment: fragment(1)}, SynthesisFailed{Reason: "quota"}},
		},
		{
			name:   "playback error",
			events: []Event{SynthesisStarted{}, SynthesisAudio{Fragment: fragment(1)}, SynthesisEnded{}, PlaybackFinished{ID: 1, Err: errors.New("device lost")}},
		},
		{
			name:   "playback finished",
			events: []Event{SynthesisStarted{}, SynthesisAudio{Fragment: fragment(1)}, SynthesisEnded{}, PlaybackFinished{ID: 1}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMachine(DefaultPolicy())
			s, _ := stepAll(m, connectedState(m), tt.events...)

			if len(s.TTSBuffer) != 0 {
				t.Errorf("Expected empty buffer, got %d fragments", len(s.TTSBuffer))
			}
			if s.Recording != entities.RecordingStateIdle {
				t.Errorf("Expected idle, got %s", s.Recording)
			}
			if s.Playing || s.Synthesizing {
				t.Errorf("Expected no speech activity, got playing=%v synthesizing=%v", s.Playing, s.Synthesizing)
			}
		})
	}
}

func TestSynthesisFailureStopsPlayback(t *testing.T) {
	m := NewMachine(DefaultPolicy())
	s, _ := stepAll(m, connectedState(m),
		SynthesisStarted{}, SynthesisAudio{Fragment: fragment(1)}, SynthesisEnded{},
		SynthesisStarted{},
	)
	if !s.Playing {
		t.Fatal("Expected first clip still playing")
	}

	s, effects := m.Step(s, SynthesisFailed{Reason: "boom"})
	if !hasEffect(effects, StopPlayback{}) {
		t.Error("Expected active playback stopped")
	}
	if countEffects[ShowNotice](effects) != 1 {
		t.Error("Expected a notice")
	}
	if s.Recording != entities.RecordingStateIdle {
		t.Errorf("Expected idle, got %s", s.Recording)
	}
}

func TestQueuedClipsPlayInOrder(t *testing.T) {
	m := NewMachine(DefaultPolicy())
	s, effects := stepAll(m, connectedState(m),
		SynthesisStarted{}, SynthesisAudio{Fragment: fragment(1)}, SynthesisEnded{},
		SynthesisStarted{}, SynthesisAudio{Fragment: fragment(2)}, SynthesisEnded{},
		SynthesisStarted{}, SynthesisAudio{Fragment: fragment(3)}, SynthesisEnded{},
	)
	if n := countEffects[Play](effects); n != 1 {
		t.Fatalf("Expected one active playback, got %d", n)
	}
	if len(s.Queued) != 2 {
		t.Fatalf("Expected two clips queued, got %d", len(s.Queued))
	}

	var played [][]int16
	play, _ := firstEffect[Play](effects)
	played = append(played, pcm.DecodeInt16(play.PCM))

	for id := 1; id <= 2; id++ {
		s, effects = m.Step(s, PlaybackFinished{ID: id})
		next, ok := firstEffect[Play](effects)
		if !ok || next.ID != id+1 {
			t.Fatalf("Expected queued clip to start as playback %d, got %v", id+1, effects)
		}
		played = append(played, pcm.DecodeInt16(next.PCM))
		if s.Recording != entities.RecordingStateSpeaking {
			t.Errorf("Expected speaking, got %s", s.Recording)
		}
	}

	if want := [][]int16{{1}, {2}, {3}}; !reflect.DeepEqual(played, want) {
		t.Errorf("Expected clips %v in order, got %v", want, played)
	}

	s, _ = m.Step(s, PlaybackFinished{ID: 3})
	if s.Recording != entities.RecordingStateIdle {
		t.Errorf("Expected idle, got %s", s.Recording)
	}
	if s.Queued != nil {
		t.Errorf("Expected empty queue, got %d clips", len(s.Queued))
	}
}

func TestQueueingDoesNotMutatePriorState(t *testing.T) {
	m := NewMachine(DefaultPolicy())
	s, _ := stepAll(m, connectedState(m),
		SynthesisStarted{}, SynthesisAudio{Fragment: fragment(1)}, SynthesisEnded{},
		SynthesisStarted{}, SynthesisAudio{Fragment: fragment(2)}, SynthesisEnded{},
	)

	a, _ := stepAll(m, s, SynthesisStarted{}, SynthesisAudio{Fragment: fragment(3)}, SynthesisEnded{})
	b, _ := stepAll(m, s, SynthesisStarted{}, SynthesisAudio{Fragment: fragment(4)}, SynthesisEnded{})

	if len(s.Queued) != 1 {
		t.Fatalf("Expected prior state untouched, got %d clips", len(s.Queued))
	}
	if got := pcm.DecodeInt16(a.Queued[1]); !reflect.DeepEqual(got, []int16{3}) {
		t.Errorf("Expected clip 3 queued, got %v", got)
	}
	if got := pcm.DecodeInt16(b.Queued[1]); !reflect.DeepEqual(got, []int16{4}) {
		t.Errorf("Expected clip 4 queued, got %v", got)
	}
}

func TestStalePlaybackCompletionIgnored(t *testing.T) {
	m := NewMachine(DefaultPolicy())
	s, _ := stepAll(m, connectedState(m),
		SynthesisStarted{}, SynthesisAudio{Fragment: fragment(1)}, SynthesisEnded{},
	)

	next, effects := m.Step(s, PlaybackFinished{ID: 42})
	if len(effects) != 0 {
		t.Errorf("Expected stale completion ignored, got %v", effects)
	}
	if !next.Playing {
		t.Error("Expected playback still active")
	}
}

func TestSpeakingHeldWhileSynthesisContinues(t *testing.T) {
	m := NewMachine(DefaultPolicy())
	s, _ := stepAll(m, connectedState(m),
		SynthesisStarted{}, SynthesisAudio{Fragment: fragment(1)}, SynthesisEnded{},
		SynthesisStarted{},
	)

	s, _ = m.Step(s, PlaybackFinished{ID: 1})
	if s.Recording != entities.RecordingStateSpeaking {
		t.Errorf("Expected speaking while the next synthesis streams, got %s", s.Recording)
	}
}

func TestMessageEffects(t *testing.T) {
	m := NewMachine(DefaultPolicy())
	reply := entities.AssistantReply{Text: "Here are hotels", Hotels: []entities.Hotel{{Name: "Ayana"}}}

	tests := []struct {
		name  string
		event Event
		want  Effect
	}{
		{"interim transcript", TranscriptReceived{Text: "hotel in"}, ShowTranscript{Text: "hotel in"}},
		{"final transcript", TranscriptReceived{Text: "hotel in bali", Final: true}, ShowTranscript{Text: "hotel in bali", Final: true}},
		{"reply", ReplyReceived{Reply: reply}, ShowReply{Reply: reply}},
		{"reply meta", ReplyReceived{Reply: reply, Meta: []byte(`{"latency_ms":42}`)}, LogEvent{Message: "Assistant response meta", Kind: "assistant_response", Detail: `{"latency_ms":42}`}},
		{"server error", ServerError{Message: "stt failed"}, ShowNotice{Text: "Server error: stt failed"}},
		{"debug", ServerDebug{Type: "server_debug", Message: "x"}, LogEvent{Message: "Server debug", Kind: "server_debug", Detail: "x"}},
		{"unknown", UnknownMessage{Type: "weird"}, LogEvent{Message: "Ignoring unknown message type", Kind: "weird"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, effects := m.Step(connectedState(m), tt.event)
			if !hasEffect(effects, tt.want) {
				t.Errorf("Expected %v in %v", tt.want, effects)
			}
		})
	}
}

func TestReplyClearsInFlight(t *testing.T) {
	m := NewMachine(DefaultPolicy())
	s, _ := stepAll(m, recordingState(m), StopCaptureRequested{}, ReplyReceived{})
	if s.InFlight {
		t.Error("Expected in-flight cleared by reply")
	}

	s, _ = stepAll(m, recordingState(m), StopCaptureRequested{}, ServerError{Message: "x"})
	if s.InFlight {
		t.Error("Expected in-flight cleared by server error")
	}
}

func TestStepDoesNotMutateInput(t *testing.T) {
	m := NewMachine(DefaultPolicy())
	s, _ := stepAll(m, connectedState(m), SynthesisStarted{}, SynthesisAudio{Fragment: "a"})
	before := append([]string(nil), s.TTSBuffer...)

	m.Step(s, SynthesisAudio{Fragment: "b"})
	if !reflect.DeepEqual(s.TTSBuffer, before) {
		t.Errorf("Expected input state untouched, got %v", s.TTSBuffer)
	}
}

func TestPolicyDefaults(t *testing.T) {
	p := NewMachine(Policy{ShortReconnectDelay: 10}).Policy()
	if p.ShortReconnectDelay != 10 {
		t.Errorf("Expected explicit delay kept, got %v", p.ShortReconnectDelay)
	}
	if p.LongReconnectDelay != DefaultLongReconnectDelay {
		t.Errorf("Expected default long delay, got %v", p.LongReconnectDelay)
	}
	if p.SampleRate != pcm.SampleRate {
		t.Errorf("Expected default sample rate, got %d", p.SampleRate)
	}
}
