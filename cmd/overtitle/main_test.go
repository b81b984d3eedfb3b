package main

import (
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/overtitle/overtitle/internal/caption"
	"github.com/overtitle/overtitle/internal/observe"
	"github.com/overtitle/overtitle/internal/relay"
	"github.com/overtitle/overtitle/internal/transport"
	translatemock "github.com/overtitle/overtitle/pkg/translate/mock"
)

type eventPipeline struct {
	agg     *caption.Aggregator
	bridge  *caption.Bridge
	policy  *caption.PunctuationPolicy
	metrics *observe.Metrics
	rel     *relay.Relay
	tr      *translatemock.Translator
}

func newEventPipeline(t *testing.T) *eventPipeline {
	t.Helper()

	metrics, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ja, err := caption.Lookup("ja")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	agg := caption.NewAggregator(caption.AggregatorConfig{})
	tr := &translatemock.Translator{}
	rel := relay.New(relay.Config{
		Aggregator: agg,
		Translator: tr,
		Targets:    []caption.Language{ja},
		Metrics:    metrics,
	})
	go func() { _ = rel.Run(t.Context()) }()

	return &eventPipeline{
		agg:     agg,
		bridge:  caption.NewBridge(agg.SourceLanguage()),
		policy:  caption.NewPunctuationPolicy(),
		metrics: metrics,
		rel:     rel,
		tr:      tr,
	}
}

func (p *eventPipeline) handle(t *testing.T, ev transport.Event) {
	t.Helper()
	handleEvent(t.Context(), ev, p.bridge, p.agg, p.rel, p.policy, p.metrics)
}

func TestHandleEvent_OffersCompletedSentenceDespiteTrailingWhitespace(t *testing.T) {
	p := newEventPipeline(t)

	// Final segments can arrive with trailing whitespace after the terminal
	// punctuation; the sentence must still reach the translator.
	p.handle(t, transport.TranscriptionEvent{ID: "s1", Text: "Hello world. "})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && len(p.tr.Calls()) == 0 {
		time.Sleep(time.Millisecond)
	}

	calls := p.tr.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 translate call, got %d", len(calls))
	}
	if calls[0].Text != "Hello world." {
		t.Errorf("expected the trimmed sentence, got %q", calls[0].Text)
	}
}

func TestHandleEvent_SkipsIncompleteAndForeignSegments(t *testing.T) {
	p := newEventPipeline(t)

	// An open partial and a non-source segment must not reach the translator.
	p.handle(t, transport.TranscriptionEvent{ID: "s1", Text: "Hello wor"})
	p.handle(t, transport.TranscriptionEvent{ID: "x1", Language: "ja", Text: "こんにちは。"})

	time.Sleep(20 * time.Millisecond)
	if got := len(p.tr.Calls()); got != 0 {
		t.Errorf("expected no translate calls, got %d", got)
	}

	// The segments themselves were still ingested.
	if got, _ := p.agg.CurrentText("en"); got != "Hello wor" {
		t.Errorf("expected partial ingested, got %q", got)
	}
	if got, _ := p.agg.CurrentText("ja"); got != "こんにちは。" {
		t.Errorf("expected ja segment ingested, got %q", got)
	}
}

func TestHandleEvent_DropsUnsupportedLanguage(t *testing.T) {
	p := newEventPipeline(t)

	p.handle(t, transport.TranscriptionEvent{ID: "s1", Language: "tlh", Text: "nuqneH."})

	if got := len(p.agg.Languages()); got != 0 {
		t.Errorf("expected nothing ingested, got %d languages", got)
	}
}

func TestClip(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"short value untouched", "gpt-4o-mini", 19, "gpt-4o-mini"},
		{"exact length untouched", "12345", 5, "12345"},
		{"long ascii truncated", strings.Repeat("a", 25), 10, strings.Repeat("a", 7) + "…"},
		{"multibyte truncated on rune boundary", "日本語のとても長いモデル名ですよ", 10, "日本語のとても…"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := clip(tt.in, tt.max)
			if got != tt.want {
				t.Errorf("clip(%q, %d): expected %q, got %q", tt.in, tt.max, tt.want, got)
			}
		})
	}
}
