// Package mock provides a test double for the translate.Translator interface.
//
// Use Translator to return canned translations and to verify which sentences
// and targets were passed to the backend.
//
// Example:
//
//	tr := &mock.Translator{
//	    Translations: map[string]string{"ja": "こんにちは。"},
//	}
//	got, _ := tr.Translate(ctx, "Hello.", translate.Target{Code: "ja", Name: "Japanese"})
package mock

import (
	"context"
	"sync"

	"github.com/overtitle/overtitle/pkg/translate"
)

// TranslateCall records a single invocation of Translate.
type TranslateCall struct {
	// Text is the sentence passed to Translate.
	Text string

	// Target is the target language passed to Translate.
	Target translate.Target
}

// Translator is a mock implementation of translate.Translator.
type Translator struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Translations maps target language codes to the returned translation.
	// When a code is absent, Translate echoes the input text back.
	Translations map[string]string

	// Err, if non-nil, is returned from every Translate call.
	Err error

	// --- Recorded calls ---

	// TranslateCalls records every Translate invocation in order.
	TranslateCalls []TranslateCall
}

// Translate implements translate.Translator.
func (t *Translator) Translate(ctx context.Context, text string, target translate.Target) (string, error) {
	t.mu.Lock()
	t.TranslateCalls = append(t.TranslateCalls, TranslateCall{Text: text, Target: target})
	t.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if t.Err != nil {
		return "", t.Err
	}
	if out, ok := t.Translations[target.Code]; ok {
		return out, nil
	}
	return text, nil
}

// Calls returns a copy of the recorded Translate invocations.
func (t *Translator) Calls() []TranslateCall {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TranslateCall, len(t.TranslateCalls))
	copy(out, t.TranslateCalls)
	return out
}
