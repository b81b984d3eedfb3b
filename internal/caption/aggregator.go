package caption

import (
	"log/slog"
	"sync"
)

// DefaultSourceLanguage is used when an aggregator is created without an
// explicit source language.
const DefaultSourceLanguage = "en"

// AggregatorConfig configures an [Aggregator].
type AggregatorConfig struct {
	// SourceLanguage is the speaker's language. Segments arriving with an
	// empty language code are attributed to it. Defaults to
	// [DefaultSourceLanguage] if empty.
	SourceLanguage string

	// Policy decides how incoming fragments update the per-language sentence
	// buffers. Defaults to [NewPunctuationPolicy] if nil.
	Policy SentencePolicy
}

// Aggregator converts a stream of [Segment] events into one stable
// "currently displayed" line per language.
//
// Ingestion never fails: invalid segments are dropped, valid ones in the
// same batch are processed. The aggregator only degrades gracefully — it
// keeps the last good text when inputs are missing, late, or malformed, and
// has no terminal failure state of its own.
//
// All methods are safe for concurrent use.
type Aggregator struct {
	sourceLang string
	policy     SentencePolicy

	mu      sync.RWMutex
	store   *Store
	buffers map[string]string
}

// NewAggregator creates an [Aggregator] with the given configuration.
func NewAggregator(cfg AggregatorConfig) *Aggregator {
	sourceLang := cfg.SourceLanguage
	if sourceLang == "" {
		sourceLang = DefaultSourceLanguage
	}
	policy := cfg.Policy
	if policy == nil {
		policy = NewPunctuationPolicy()
	}
	return &Aggregator{
		sourceLang: sourceLang,
		policy:     policy,
		store:      NewStore(),
		buffers:    make(map[string]string),
	}
}

// SourceLanguage returns the configured source language code.
func (a *Aggregator) SourceLanguage() string {
	return a.sourceLang
}

// Ingest upserts a batch of segments into the store and advances the
// per-language sentence buffers. Segments with a missing id or an
// unsupported language are dropped; the rest of the batch is unaffected.
func (a *Aggregator) Ingest(segments []Segment) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, seg := range segments {
		if seg.ID == "" {
			slog.Debug("dropping segment without id", "language", seg.Language)
			continue
		}
		if seg.Language == "" {
			seg.Language = a.sourceLang
		}
		if !IsSupported(seg.Language) {
			slog.Debug("dropping segment for unsupported language",
				"language", seg.Language,
				"id", seg.ID,
			)
			continue
		}

		a.store.Upsert(seg)
		a.buffers[seg.Language] = a.policy.Apply(a.buffers[seg.Language], seg.Text)
	}
}

// CurrentText returns the display value for lang. The sentence buffer is
// preferred; when it is empty the most recently arrived raw segment is used.
// The second return value is false when nothing has been received for lang
// and a "waiting" placeholder should be shown instead.
func (a *Aggregator) CurrentText(lang string) (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if buf := a.buffers[lang]; buf != "" {
		return buf, true
	}
	if seg, ok := a.store.Latest(lang); ok {
		return seg.Text, true
	}
	return "", false
}

// Languages returns the codes of all languages that currently hold content.
func (a *Aggregator) Languages() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.store.Languages()
}

// Clear resets the segment store and all sentence buffers. Used on an
// explicit user action only — captions survive transport reconnects.
func (a *Aggregator) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.store.Clear()
	a.buffers = make(map[string]string)
}
