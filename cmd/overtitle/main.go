// Command overtitle serves live multilingual captions: it follows the caption
// stream over WebSocket, aggregates segments into one stable line per
// language, optionally translates completed sentences through an LLM backend,
// and exposes everything over an HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/overtitle/overtitle/internal/caption"
	"github.com/overtitle/overtitle/internal/config"
	"github.com/overtitle/overtitle/internal/httpapi"
	"github.com/overtitle/overtitle/internal/notify"
	"github.com/overtitle/overtitle/internal/observe"
	"github.com/overtitle/overtitle/internal/relay"
	"github.com/overtitle/overtitle/internal/transport"
	"github.com/overtitle/overtitle/pkg/translate"
	translatemock "github.com/overtitle/overtitle/pkg/translate/mock"
	translateopenai "github.com/overtitle/overtitle/pkg/translate/openai"
)

const (
	defaultListenAddr   = ":8080"
	defaultSettingsFile = "settings.json"

	notifyQueueSize = 100
	notifyMaxAge    = 30 * time.Minute
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "overtitle: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "overtitle: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	listenAddr := cfg.Server.ListenAddr
	if listenAddr == "" {
		listenAddr = defaultListenAddr
	}

	slog.Info("overtitle starting",
		"config", *configPath,
		"listen_addr", listenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "overtitle",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Caption pipeline ──────────────────────────────────────────────────────
	policy := caption.NewPunctuationPolicy()
	agg := caption.NewAggregator(caption.AggregatorConfig{
		SourceLanguage: cfg.Captions.SourceLanguage,
		Policy:         policy,
	})
	bridge := caption.NewBridge(agg.SourceLanguage())
	notes := notify.NewQueue(notifyQueueSize, notifyMaxAge)

	if err := metrics.RegisterActiveLanguages(func() int { return len(agg.Languages()) }); err != nil {
		slog.Warn("could not register active-language gauge", "err", err)
	}

	// ── Settings store ────────────────────────────────────────────────────────
	settingsFile := cfg.Server.SettingsFile
	if settingsFile == "" {
		settingsFile = defaultSettingsFile
	}
	settings := httpapi.NewSettingsStore(settingsFile)
	if err := settings.Load(); err != nil {
		slog.Warn("could not load persisted settings, using defaults", "err", err)
	}

	// ── Translator (optional) ─────────────────────────────────────────────────
	translator, err := buildTranslator(cfg.Translator)
	if err != nil {
		slog.Error("failed to create translator", "name", cfg.Translator.Name, "err", err)
		return 1
	}

	var rel *relay.Relay
	if translator != nil && len(cfg.Captions.TargetLanguages) > 0 {
		targets := make([]caption.Language, 0, len(cfg.Captions.TargetLanguages))
		for _, code := range cfg.Captions.TargetLanguages {
			lang, err := caption.Lookup(code)
			if err != nil {
				slog.Error("invalid target language", "language", code, "err", err)
				return 1
			}
			targets = append(targets, lang)
		}
		rel = relay.New(relay.Config{
			Aggregator:    agg,
			Translator:    translator,
			Targets:       targets,
			Metrics:       metrics,
			Notifications: notes,
		})
		slog.Info("translator enabled",
			"name", cfg.Translator.Name,
			"targets", cfg.Captions.TargetLanguages,
		)
	}

	// ── Transport client ──────────────────────────────────────────────────────
	client, err := transport.NewClient(transport.Config{
		URL:         cfg.Transport.URL,
		BaseDelay:   time.Duration(cfg.Transport.BaseDelayMS) * time.Millisecond,
		DelayCap:    time.Duration(cfg.Transport.DelayCapMS) * time.Millisecond,
		MaxAttempts: cfg.Transport.MaxAttempts,
		GracePeriod: time.Duration(cfg.Transport.GracePeriodMS) * time.Millisecond,
		Handler: func(ev transport.Event) {
			handleEvent(ctx, ev, bridge, agg, rel, policy, metrics)
		},
		OnStateChange: func(state transport.State, status string) {
			handleStateChange(ctx, state, status, notes, metrics)
		},
	})
	if err != nil {
		slog.Error("failed to create caption stream client", "err", err)
		return 1
	}

	// ── HTTP API ──────────────────────────────────────────────────────────────
	api := httpapi.NewServer(httpapi.ServerConfig{
		Aggregator:    agg,
		Client:        client,
		Settings:      settings,
		Notifications: notes,
		Metrics:       metrics,
	})
	httpSrv := &http.Server{
		Addr:              listenAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	printStartupSummary(cfg, listenAddr)

	// ── Run ───────────────────────────────────────────────────────────────────
	client.Connect(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if rel != nil {
		g.Go(func() error {
			if err := rel.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("translator relay: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()

		slog.Info("shutdown signal received, stopping…")
		client.Disconnect()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// handleEvent converts one parsed stream event into caption segments, feeds
// them to the aggregator, and offers completed source sentences to the
// translator relay.
func handleEvent(
	ctx context.Context,
	ev transport.Event,
	bridge *caption.Bridge,
	agg *caption.Aggregator,
	rel *relay.Relay,
	policy *caption.PunctuationPolicy,
	metrics *observe.Metrics,
) {
	segments, err := bridge.Segments(ev)
	if err != nil {
		slog.Warn("dropping caption event", "err", err)
		metrics.RecordDrop(ctx, "unsupported_language")
		return
	}
	if len(segments) == 0 {
		return
	}

	start := time.Now()
	agg.Ingest(segments)
	metrics.IngestDuration.Record(ctx, time.Since(start).Seconds())

	for _, seg := range segments {
		metrics.RecordSegment(ctx, seg.Language)
		if rel == nil || seg.Language != agg.SourceLanguage() {
			continue
		}
		// The wire text may carry trailing whitespace; the completion check
		// must see the same trimmed form the sentence buffer stores.
		if text := strings.TrimSpace(seg.Text); policy.Closes(text) {
			rel.Offer(text)
		}
	}
}

// handleStateChange logs every connection state transition, mirrors the
// user-relevant ones into the notification queue, and counts drops and
// reconnect attempts.
func handleStateChange(
	ctx context.Context,
	state transport.State,
	status string,
	notes *notify.Queue,
	metrics *observe.Metrics,
) {
	slog.Info("caption stream state changed", "state", state, "status", status)

	switch state {
	case transport.StateConnected:
		notes.Push(notify.LevelInfo, "caption stream connected")
	case transport.StateReconnecting:
		notes.Push(notify.LevelWarning, "caption stream lost, "+status)
		metrics.ConnectionDrops.Add(ctx, 1)
		metrics.ReconnectAttempts.Add(ctx, 1)
	case transport.StateFailed:
		notes.Push(notify.LevelError, "caption stream "+status)
		metrics.ConnectionDrops.Add(ctx, 1)
	}
}

// buildTranslator instantiates the configured translation provider. An empty
// name disables local translation entirely.
func buildTranslator(cfg config.TranslatorConfig) (translate.Translator, error) {
	switch cfg.Name {
	case "":
		return nil, nil
	case "openai":
		var opts []translateopenai.Option
		if cfg.BaseURL != "" {
			opts = append(opts, translateopenai.WithBaseURL(cfg.BaseURL))
		}
		return translateopenai.New(cfg.APIKey, cfg.Model, opts...)
	case "mock":
		return &translatemock.Translator{}, nil
	default:
		return nil, fmt.Errorf("unknown translator %q", cfg.Name)
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, listenAddr string) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        Overtitle — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Stream URL", orDefault(cfg.Transport.URL, transport.DefaultEndpoint))
	printRow("Source lang", orDefault(cfg.Captions.SourceLanguage, caption.DefaultSourceLanguage))
	printRow("Targets", fmt.Sprintf("%d configured", len(cfg.Captions.TargetLanguages)))
	printRow("Translator", orDefault(cfg.Translator.Name, "(disabled)"))
	printRow("Listen addr", listenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(label, value string) {
	fmt.Printf("║  %-14s  : %-19s ║\n", label, clip(value, 19))
}

// clip shortens s to at most max runes, ellipsised. Slicing by runes keeps
// multibyte values from being split mid-character.
func clip(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "…"
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
