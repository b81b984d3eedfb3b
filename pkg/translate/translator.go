// Package translate defines the boundary to the translation backend.
//
// The caption pipeline treats translation as an external collaborator: it
// hands over a completed source-language sentence and receives the translated
// line, with no assumptions about how the translation is produced. Concrete
// implementations live in subpackages (openai) and in the mock subpackage for
// tests.
package translate

import "context"

// Target identifies the language a sentence should be translated into.
type Target struct {
	// Code is the ISO-style language code (e.g. "ja").
	Code string

	// Name is the English name of the language, used in provider prompts.
	Name string
}

// Translator converts a completed source-language sentence into one target
// language.
type Translator interface {
	// Translate returns the translation of text into target. It must respect
	// context cancellation. Implementations return an error rather than an
	// empty translation.
	Translate(ctx context.Context, text string, target Target) (string, error)
}
