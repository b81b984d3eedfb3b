// Package relay runs the optional local translator loop: completed
// source-language sentences are fanned out to the configured translation
// backend and the translated lines are fed back into the caption aggregator
// as ordinary segments.
//
// The relay is an internal producer of caption segments, not part of the
// transport path — when it is disabled, translated captions simply arrive
// over the caption stream instead.
package relay

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/overtitle/overtitle/internal/caption"
	"github.com/overtitle/overtitle/internal/notify"
	"github.com/overtitle/overtitle/internal/observe"
	"github.com/overtitle/overtitle/pkg/translate"
)

// Default tuning parameters.
const (
	defaultQueueSize      = 16
	defaultRequestTimeout = 15 * time.Second
)

// Config configures a [Relay].
type Config struct {
	// Aggregator receives the translated segments.
	Aggregator *caption.Aggregator

	// Translator is the translation backend.
	Translator translate.Translator

	// Targets lists the languages to translate every sentence into.
	Targets []caption.Language

	// Metrics records translation latency and errors. Defaults to
	// [observe.DefaultMetrics] if nil.
	Metrics *observe.Metrics

	// Notifications receives a warning when a translation fails. May be nil.
	Notifications *notify.Queue

	// QueueSize bounds the number of sentences waiting for translation.
	// When the queue is full the oldest pending sentence is preferred and new
	// offers are dropped. Defaults to 16 if zero.
	QueueSize int

	// RequestTimeout bounds each translation request. Defaults to 15s if zero.
	RequestTimeout time.Duration
}

// Relay fans completed sentences out to the translation backend.
// Offer never blocks the caller; translation runs in [Relay.Run].
type Relay struct {
	agg      *caption.Aggregator
	tr       translate.Translator
	targets  []translate.Target
	metrics  *observe.Metrics
	notes    *notify.Queue
	timeout  time.Duration
	sentence chan string
	seq      uint64
}

// New creates a [Relay] with the given configuration.
func New(cfg Config) *Relay {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}

	targets := make([]translate.Target, 0, len(cfg.Targets))
	for _, l := range cfg.Targets {
		targets = append(targets, translate.Target{Code: l.Code, Name: l.Name})
	}

	return &Relay{
		agg:      cfg.Aggregator,
		tr:       cfg.Translator,
		targets:  targets,
		metrics:  metrics,
		notes:    cfg.Notifications,
		timeout:  timeout,
		sentence: make(chan string, queueSize),
	}
}

// Offer queues a completed source-language sentence for translation. It never
// blocks: when the queue is full the sentence is dropped with a warning, on
// the theory that a fresher sentence is already on its way.
func (r *Relay) Offer(text string) {
	if text == "" || len(r.targets) == 0 {
		return
	}
	select {
	case r.sentence <- text:
	default:
		slog.Warn("translation queue full, dropping sentence")
	}
}

// Run processes queued sentences until ctx is cancelled. It always returns
// ctx.Err().
func (r *Relay) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case text := <-r.sentence:
			r.seq++
			r.translateAll(ctx, text, r.seq)
		}
	}
}

// translateAll produces one translated segment per target language for text.
// A failure for one language does not affect the others.
func (r *Relay) translateAll(ctx context.Context, text string, seq uint64) {
	ctx, span := observe.StartSpan(ctx, "relay.translate")
	defer span.End()
	log := observe.Logger(ctx)

	for _, target := range r.targets {
		start := time.Now()

		reqCtx, cancel := context.WithTimeout(ctx, r.timeout)
		out, err := r.tr.Translate(reqCtx, text, target)
		cancel()

		r.metrics.TranslationDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(observe.Attr("language", target.Code)),
		)

		if err != nil {
			log.Error("translation failed",
				"language", target.Code,
				"err", err,
			)
			r.metrics.RecordTranslationError(ctx, target.Code)
			if r.notes != nil {
				r.notes.Push(notify.LevelWarning, "translation to "+target.Name+" failed")
			}
			continue
		}

		r.agg.Ingest([]caption.Segment{{
			ID:       segmentID(seq),
			Language: target.Code,
			Text:     out,
		}})
		r.metrics.RecordSegment(ctx, target.Code)
	}
}

// segmentID builds the synthetic id for the seq'th translated sentence.
// Ids are unique per language stream, so all targets share the same id.
func segmentID(seq uint64) string {
	return "tr-" + strconv.FormatUint(seq, 10)
}
