package transport

import (
	"reflect"
	"testing"
)

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name string
		data string
		want Event
	}{
		{
			name: "transcription with language",
			data: `{"type":"transcription","language":"ja","id":"seg-7","text":"こんにちは"}`,
			want: TranscriptionEvent{Language: "ja", ID: "seg-7", Text: "こんにちは"},
		},
		{
			name: "transcription without language",
			data: `{"type":"transcription","id":"seg-1","text":"Hello wor"}`,
			want: TranscriptionEvent{ID: "seg-1", Text: "Hello wor"},
		},
		{
			name: "legacy translation",
			data: `{"type":"translation","language":"fr","text":"Bonjour."}`,
			want: TranslationEvent{Language: "fr", Text: "Bonjour."},
		},
		{
			name: "unknown type surfaces fields",
			data: `{"type":"speaker_change","speaker":"alice"}`,
			want: UnknownEvent{Type: "speaker_change", Fields: map[string]any{"speaker": "alice"}},
		},
		{
			name: "missing type is unknown",
			data: `{"text":"orphan"}`,
			want: UnknownEvent{Type: "", Fields: map[string]any{"text": "orphan"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeEvent([]byte(tt.data))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %#v, got %#v", tt.want, got)
			}
		})
	}
}

func TestDecodeEvent_Malformed(t *testing.T) {
	for _, data := range []string{
		`{truncated`,
		`not json at all`,
		`[1,2,3]`,
		``,
	} {
		if _, err := DecodeEvent([]byte(data)); err == nil {
			t.Errorf("expected error for %q, got nil", data)
		}
	}
}
