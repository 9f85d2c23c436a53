package usecase

import (
	"context"
	"encoding/base64"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/scenery-voice/domain"
	"github.com/satriahrh/scenery-voice/domain/entities"
	"github.com/satriahrh/scenery-voice/internal/pcm"
)

// Emitter sends one server message to the client
type Emitter func(msg interface{}) error

// ConversationService answers one finished utterance of a session
type ConversationService interface {
	HandleUtterance(ctx context.Context, sessionID string, audio []byte, emit Emitter) error
}

// Script is the canned turn the stub endpoint plays back
type Script struct {
	Transcript string           `yaml:"transcript"`
	Reply      string           `yaml:"reply"`
	Intent     string           `yaml:"intent"`
	Hotels     []entities.Hotel `yaml:"hotels"`

	ToneHz        float64       `yaml:"tone_hz"`
	ToneDuration  time.Duration `yaml:"tone_duration"`
	FragmentBytes int           `yaml:"fragment_bytes"`
	// Pace is the pause between synthesized fragments
	Pace time.Duration `yaml:"pace"`
}

// DefaultScript is a hotel search turn
func DefaultScript() Script {
	return Script{
		Transcript: "find me a hotel in ubud with a pool",
		Reply:      "Here are three hotels in Ubud with a pool.",
		Intent:     "search_hotel",
		Hotels: []entities.Hotel{
			{Name: "Komaneka at Bisma", Rating: 4.8, Location: "Ubud"},
			{Name: "Alaya Resort Ubud", Rating: 4.6, Location: "Ubud"},
			{Name: "Adiwana Monkey Forest", Rating: 4.5, Location: "Ubud"},
		},
		ToneHz:        440,
		ToneDuration:  600 * time.Millisecond,
		FragmentBytes: 4800,
		Pace:          20 * time.Millisecond,
	}
}

// ScriptedConversation replays a Script for every utterance. It performs no
// recognition or synthesis; the audio it returns is a generated tone.
type ScriptedConversation struct {
	script Script
	logger *zap.Logger
}

// NewScriptedConversation creates a new scripted conversation
func NewScriptedConversation(script Script, logger *zap.Logger) *ScriptedConversation {
	d := DefaultScript()
	if script.ToneHz <= 0 {
		script.ToneHz = d.ToneHz
	}
	if script.ToneDuration <= 0 {
		script.ToneDuration = d.ToneDuration
	}
	if script.FragmentBytes <= 0 {
		script.FragmentBytes = d.FragmentBytes
	}
	// whole samples, whole base64 quanta
	script.FragmentBytes -= script.FragmentBytes % 6
	if script.FragmentBytes == 0 {
		script.FragmentBytes = 6
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScriptedConversation{script: script, logger: logger}
}

// HandleUtterance emits transcript, reply and synthesized speech for one utterance
func (s *ScriptedConversation) HandleUtterance(ctx context.Context, sessionID string, audio []byte, emit Emitter) error {
	s.logger.Info("Processing utterance",
		zap.String("session_id", sessionID),
		zap.Int("bytes", len(audio)),
		zap.Duration("duration", pcm.Duration(audio, pcm.SampleRate)))

	if len(audio) == 0 {
		return emit(&domain.ErrorMessage{Type: domain.MessageTypeError, Message: "no audio received"})
	}

	messages := []interface{}{
		&domain.DebugMessage{Type: domain.MessageTypeServerDebug, Message: "utterance received"},
	}
	if words := strings.Fields(s.script.Transcript); len(words) > 1 {
		messages = append(messages, &domain.TranscriptMessage{
			Type: domain.MessageTypePartialText,
			Text: strings.Join(words[:len(words)/2], " "),
		})
	}
	messages = append(messages,
		&domain.TranscriptMessage{Type: domain.MessageTypeFinalText, Text: s.script.Transcript},
		s.assistantResponse(),
		&domain.TTSStartMessage{Type: domain.MessageTypeTTSStart},
	)
	for _, m := range messages {
		if err := s.send(ctx, emit, m); err != nil {
			return err
		}
	}

	for _, fragment := range s.fragments() {
		if s.script.Pace > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.script.Pace):
			}
		}
		if err := s.send(ctx, emit, &domain.TTSAudioMessage{Type: domain.MessageTypeTTSAudio, Audio: fragment}); err != nil {
			return err
		}
	}

	return s.send(ctx, emit, &domain.TTSEndMessage{Type: domain.MessageTypeTTSEnd})
}

func (s *ScriptedConversation) send(ctx context.Context, emit Emitter, msg interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return emit(msg)
}

func (s *ScriptedConversation) assistantResponse() *domain.AssistantResponseMessage {
	return &domain.AssistantResponseMessage{
		Type: domain.MessageTypeAssistantResponse,
		Result: domain.AssistantResult{
			Intent:     s.script.Intent,
			Action:     "show_results",
			Confidence: 0.9,
			Data: &domain.AssistantData{
				Ranking: &domain.Ranking{
					Mode:         "scripted",
					LLMResponse:  s.script.Reply,
					RankedHotels: s.script.Hotels,
				},
			},
		},
	}
}

// fragments returns the tone as base64 PCM16 pieces of at most FragmentBytes each
func (s *ScriptedConversation) fragments() []string {
	data := pcm.EncodeFloat32(Tone(s.script.ToneHz, s.script.ToneDuration, pcm.SampleRate))

	var out []string
	for start := 0; start < len(data); start += s.script.FragmentBytes {
		end := start + s.script.FragmentBytes
		if end > len(data) {
			end = len(data)
		}
		out = append(out, base64.StdEncoding.EncodeToString(data[start:end]))
	}
	return out
}

// Tone generates a sine wave with short fades so playback does not click
func Tone(hz float64, d time.Duration, sampleRate int) []float32 {
	n := int(int64(d) * int64(sampleRate) / int64(time.Second))
	fade := sampleRate / 100
	samples := make([]float32, n)
	for i := range samples {
		gain := 0.3
		if i < fade {
			gain *= float64(i) / float64(fade)
		}
		if n-i < fade {
			gain *= float64(n-i) / float64(fade)
		}
		samples[i] = float32(gain * math.Sin(2*math.Pi*hz*float64(i)/float64(sampleRate)))
	}
	return samples
}
