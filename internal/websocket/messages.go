package websocket

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/satriahrh/scenery-voice/domain"
)

// ErrMissingType is returned for JSON messages without a type discriminator
var ErrMissingType = errors.New("message missing type field")

// DecodeServerMessage parses one text message from the voice endpoint into its
// typed form. Unrecognized types decode to *domain.UnknownMessage so callers
// can log and move on.
func DecodeServerMessage(data []byte) (interface{}, error) {
	var base domain.Envelope
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}
	if base.Type == "" {
		return nil, ErrMissingType
	}

	switch base.Type {
	case domain.MessageTypeTranscript, domain.MessageTypePartialText, domain.MessageTypeFinalText:
		var msg domain.TranscriptMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("invalid transcript message: %w", err)
		}
		return &msg, nil

	case domain.MessageTypeResponse:
		var msg domain.ResponseMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("invalid response message: %w", err)
		}
		return &msg, nil

	case domain.MessageTypeAssistantResponse:
		var msg domain.AssistantResponseMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("invalid assistant response message: %w", err)
		}
		return &msg, nil

	case domain.MessageTypeTTSStart:
		return &domain.TTSStartMessage{Type: base.Type}, nil

	case domain.MessageTypeTTSAudio:
		var msg domain.TTSAudioMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("invalid tts audio message: %w", err)
		}
		return &msg, nil

	case domain.MessageTypeTTSEnd:
		return &domain.TTSEndMessage{Type: base.Type}, nil

	case domain.MessageTypeTTSError:
		// error is usually a string but some servers send an object
		var withError struct {
			Error json.RawMessage `json:"error"`
		}
		if err := json.Unmarshal(data, &withError); err != nil {
			return nil, fmt.Errorf("invalid tts error message: %w", err)
		}
		return &domain.TTSErrorMessage{Type: base.Type, Error: lenientText(withError.Error)}, nil

	case domain.MessageTypeError:
		var msg domain.ErrorMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("invalid error message: %w", err)
		}
		return &msg, nil

	case domain.MessageTypeServerDebug, domain.MessageTypeDebug, domain.MessageTypeSTTEvent:
		msg := domain.DebugMessage{Type: base.Type, Raw: json.RawMessage(data)}
		// message is optional and not always a string (stt_event carries an object)
		var withMessage struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(data, &withMessage); err == nil {
			msg.Message = withMessage.Message
		}
		return &msg, nil

	default:
		return &domain.UnknownMessage{Type: base.Type, Raw: json.RawMessage(data)}, nil
	}
}

// lenientText returns a JSON string value as is and any other value as compact JSON
func lenientText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

// EncodeAudioEnd returns the control message that ends one utterance
func EncodeAudioEnd() []byte {
	data, _ := json.Marshal(domain.AudioEndMessage{Type: domain.MessageTypeAudioEnd})
	return data
}

// IsAudioEnd reports whether a client text message is the end-of-audio marker
func IsAudioEnd(data []byte) bool {
	var base domain.Envelope
	if err := json.Unmarshal(data, &base); err != nil {
		return false
	}
	return base.Type == domain.MessageTypeAudioEnd
}

// EncodeServerMessage marshals a server message for the wire
func EncodeServerMessage(msg interface{}) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode server message: %w", err)
	}
	return data, nil
}

// CreateErrorMessage creates a standardized error message
func CreateErrorMessage(message string) *domain.ErrorMessage {
	return &domain.ErrorMessage{
		Type:    domain.MessageTypeError,
		Message: message,
	}
}

// CreateDebugMessage creates a server_debug message
func CreateDebugMessage(message string) *domain.DebugMessage {
	return &domain.DebugMessage{
		Type:    domain.MessageTypeServerDebug,
		Message: message,
	}
}

// messageType returns the discriminator of a client text message
func messageType(data []byte) (domain.MessageType, error) {
	var base domain.Envelope
	if err := json.Unmarshal(data, &base); err != nil {
		return "", fmt.Errorf("invalid JSON format: %w", err)
	}
	if base.Type == "" {
		return "", ErrMissingType
	}
	return base.Type, nil
}
