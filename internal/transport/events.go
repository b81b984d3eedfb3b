package transport

import (
	"encoding/json"
	"fmt"
)

// Event is a parsed application message received over the caption stream.
// The concrete types are [TranscriptionEvent], [TranslationEvent] and
// [UnknownEvent].
type Event interface {
	event()
}

// TranscriptionEvent is a source or target-language partial/final segment
// with a stable id.
type TranscriptionEvent struct {
	// Language is the ISO-style language code; may be empty for the source
	// language.
	Language string

	// ID is stable across updates to the same spoken unit.
	ID string

	// Text is the (possibly partial) segment text.
	Text string
}

func (TranscriptionEvent) event() {}

// TranslationEvent is the legacy translated-line shape without a stable id.
// Each message is treated as a single implicit segment.
type TranslationEvent struct {
	Language string
	Text     string
}

func (TranslationEvent) event() {}

// UnknownEvent carries a message whose type is outside the known set. It is
// surfaced for diagnosis rather than silently merged into display state.
type UnknownEvent struct {
	// Type is the unrecognised wire type value.
	Type string

	// Fields holds the remaining top-level message fields.
	Fields map[string]any
}

func (UnknownEvent) event() {}

// wireMessage is the common JSON envelope of caption stream messages.
type wireMessage struct {
	Type     string `json:"type"`
	Language string `json:"language"`
	Text     string `json:"text"`
	ID       string `json:"id"`
}

// DecodeEvent parses one raw wire message into an [Event]. Malformed payloads
// return an error and must be dropped by the caller without affecting
// connection state.
func DecodeEvent(data []byte) (Event, error) {
	var msg wireMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("transport: decode message: %w", err)
	}

	switch msg.Type {
	case "transcription":
		return TranscriptionEvent{
			Language: msg.Language,
			ID:       msg.ID,
			Text:     msg.Text,
		}, nil

	case "translation":
		return TranslationEvent{
			Language: msg.Language,
			Text:     msg.Text,
		}, nil

	default:
		fields := map[string]any{}
		if err := json.Unmarshal(data, &fields); err != nil {
			return nil, fmt.Errorf("transport: decode message: %w", err)
		}
		delete(fields, "type")
		return UnknownEvent{Type: msg.Type, Fields: fields}, nil
	}
}
