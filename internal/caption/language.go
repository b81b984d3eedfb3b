// Package caption turns a stream of per-language transcript segments into
// stable, monotonically-improving caption lines.
//
// The central type is [Aggregator], which owns a [Store] of raw segments and
// one sentence buffer per language. Segments arrive out of order and
// repeatedly for the same id; the aggregator keeps only the latest payload
// per (language, id) pair and derives the displayed line through a pluggable
// [SentencePolicy].
package caption

import (
	"errors"
	"fmt"
)

// ErrUnsupportedLanguage is returned when a segment names a language code
// outside the supported set.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// Language describes one supported caption language.
type Language struct {
	// Code is the ISO-style language code (e.g. "en", "ja").
	Code string `json:"code"`

	// Name is the human-readable English name of the language.
	Name string `json:"name"`

	// Flag is the emoji flag shown next to the language in selection UIs.
	Flag string `json:"flag"`
}

// Supported is the closed set of languages captions can be produced for.
// Unchecked language codes must not propagate past [Lookup].
var Supported = []Language{
	{Code: "en", Name: "English", Flag: "🇺🇸"},
	{Code: "es", Name: "Spanish", Flag: "🇪🇸"},
	{Code: "fr", Name: "French", Flag: "🇫🇷"},
	{Code: "de", Name: "German", Flag: "🇩🇪"},
	{Code: "ja", Name: "Japanese", Flag: "🇯🇵"},
	{Code: "ar", Name: "Arabic", Flag: "🇸🇦"},
}

// Lookup returns the [Language] for code, or [ErrUnsupportedLanguage] when
// code is not in the supported set.
func Lookup(code string) (Language, error) {
	for _, l := range Supported {
		if l.Code == code {
			return l, nil
		}
	}
	return Language{}, fmt.Errorf("caption: language %q: %w", code, ErrUnsupportedLanguage)
}

// IsSupported reports whether code names a supported language.
func IsSupported(code string) bool {
	_, err := Lookup(code)
	return err == nil
}
