package domain

import (
	"encoding/json"

	"github.com/satriahrh/scenery-voice/domain/entities"
)

// MessageType discriminates JSON messages exchanged with the voice endpoint
type MessageType string

// Client to server
const (
	MessageTypeAudioEnd MessageType = "audio_end"
)

// Server to client
const (
	MessageTypeTranscript        MessageType = "transcript"
	MessageTypePartialText       MessageType = "partial_text"
	MessageTypeFinalText         MessageType = "final_text"
	MessageTypeResponse          MessageType = "response"
	MessageTypeAssistantResponse MessageType = "assistant_response"
	MessageTypeTTSStart          MessageType = "tts_start"
	MessageTypeTTSAudio          MessageType = "tts_audio"
	MessageTypeTTSEnd            MessageType = "tts_end"
	MessageTypeTTSError          MessageType = "tts_error"
	MessageTypeError             MessageType = "error"
	MessageTypeServerDebug       MessageType = "server_debug"
	MessageTypeDebug             MessageType = "debug"
	MessageTypeSTTEvent          MessageType = "stt_event"
)

// Envelope carries only the discriminator
type Envelope struct {
	Type MessageType `json:"type"`
}

// AudioEndMessage signals the end of one utterance
type AudioEndMessage struct {
	Type MessageType `json:"type"`
}

// TranscriptMessage is an interim (transcript, partial_text) or final (final_text) transcript
type TranscriptMessage struct {
	Type MessageType `json:"type"`
	Text string      `json:"text"`
}

// IsFinal reports whether the transcript is the finalized utterance
func (m *TranscriptMessage) IsFinal() bool {
	return m.Type == MessageTypeFinalText
}

// ResponseMessage is a plain assistant text response
type ResponseMessage struct {
	Type   MessageType      `json:"type"`
	Text   string           `json:"text"`
	Hotels []entities.Hotel `json:"hotels,omitempty"`
}

// Ranking is the LLM ranking block of an assistant result
type Ranking struct {
	Mode         string           `json:"mode,omitempty"`
	LLMResponse  string           `json:"llm_response,omitempty"`
	LLMError     string           `json:"llm_error,omitempty"`
	RankedHotels []entities.Hotel `json:"ranked_hotels,omitempty"`
}

// AssistantData is the data block of an assistant result
type AssistantData struct {
	Ranking *Ranking         `json:"ranking,omitempty"`
	Hotels  []entities.Hotel `json:"hotels,omitempty"`
}

// AssistantResult is the decision payload of an assistant_response
type AssistantResult struct {
	Intent     string           `json:"intent,omitempty"`
	Action     string           `json:"action,omitempty"`
	Confidence float64          `json:"confidence,omitempty"`
	Message    string           `json:"message,omitempty"`
	Text       string           `json:"text,omitempty"`
	Data       *AssistantData   `json:"data,omitempty"`
	Hotels     []entities.Hotel `json:"hotels,omitempty"`
}

// AssistantResponseMessage is the structured assistant reply
type AssistantResponseMessage struct {
	Type   MessageType     `json:"type"`
	Result AssistantResult `json:"result"`
	Meta   json.RawMessage `json:"meta,omitempty"`
}

// Reply derives the text and hotel list the UI renders
func (m *AssistantResponseMessage) Reply() entities.AssistantReply {
	r := m.Result
	reply := entities.AssistantReply{
		Intent: r.Intent,
		Action: r.Action,
	}

	if r.Data != nil && r.Data.Ranking != nil {
		reply.Text = r.Data.Ranking.LLMResponse
		reply.Hotels = r.Data.Ranking.RankedHotels
	}
	if reply.Text == "" {
		reply.Text = r.Message
	}
	if reply.Text == "" {
		reply.Text = r.Text
	}
	if len(reply.Hotels) == 0 && r.Data != nil {
		reply.Hotels = r.Data.Hotels
	}
	if len(reply.Hotels) == 0 {
		reply.Hotels = r.Hotels
	}
	return reply
}

// Reply converts a plain response into the UI reply shape
func (m *ResponseMessage) Reply() entities.AssistantReply {
	return entities.AssistantReply{Text: m.Text, Hotels: m.Hotels}
}

// TTSStartMessage opens a synthesis stream
type TTSStartMessage struct {
	Type MessageType `json:"type"`
}

// TTSAudioMessage carries one base64 fragment of synthesized PCM
type TTSAudioMessage struct {
	Type  MessageType `json:"type"`
	Audio string      `json:"audio"`
}

// TTSEndMessage closes a synthesis stream
type TTSEndMessage struct {
	Type MessageType `json:"type"`
}

// TTSErrorMessage reports a synthesis failure
type TTSErrorMessage struct {
	Type  MessageType `json:"type"`
	Error string      `json:"error"`
}

// ErrorMessage reports a generic server error
type ErrorMessage struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

// DebugMessage is diagnostic output; it has no UI effect
type DebugMessage struct {
	Type    MessageType     `json:"type"`
	Message string          `json:"message,omitempty"`
	Raw     json.RawMessage `json:"-"`
}

// UnknownMessage is any message whose type this client does not understand
type UnknownMessage struct {
	Type MessageType
	Raw  json.RawMessage
}
