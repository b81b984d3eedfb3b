package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/overtitle/overtitle/internal/caption"
)

// ValidTranslatorNames lists the known translator provider names. Used by
// [Validate] to warn about unrecognised names.
var ValidTranslatorNames = []string{"openai", "mock"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Transport
	if cfg.Transport.URL != "" {
		u, err := url.Parse(cfg.Transport.URL)
		if err != nil {
			errs = append(errs, fmt.Errorf("transport.url %q is not a valid URL: %w", cfg.Transport.URL, err))
		} else if u.Scheme != "ws" && u.Scheme != "wss" {
			errs = append(errs, fmt.Errorf("transport.url %q: scheme must be ws or wss", cfg.Transport.URL))
		}
	}
	if cfg.Transport.BaseDelayMS < 0 {
		errs = append(errs, fmt.Errorf("transport.base_delay_ms must not be negative, got %d", cfg.Transport.BaseDelayMS))
	}
	if cfg.Transport.DelayCapMS < 0 {
		errs = append(errs, fmt.Errorf("transport.delay_cap_ms must not be negative, got %d", cfg.Transport.DelayCapMS))
	}
	if cfg.Transport.BaseDelayMS > 0 && cfg.Transport.DelayCapMS > 0 && cfg.Transport.DelayCapMS < cfg.Transport.BaseDelayMS {
		errs = append(errs, fmt.Errorf("transport.delay_cap_ms (%d) must not be below transport.base_delay_ms (%d)", cfg.Transport.DelayCapMS, cfg.Transport.BaseDelayMS))
	}
	if cfg.Transport.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("transport.max_attempts must not be negative, got %d", cfg.Transport.MaxAttempts))
	}

	// Captions
	if lang := cfg.Captions.SourceLanguage; lang != "" && !caption.IsSupported(lang) {
		errs = append(errs, fmt.Errorf("captions.source_language %q is not a supported language", lang))
	}
	seen := make(map[string]int, len(cfg.Captions.TargetLanguages))
	for i, lang := range cfg.Captions.TargetLanguages {
		prefix := fmt.Sprintf("captions.target_languages[%d]", i)
		if !caption.IsSupported(lang) {
			errs = append(errs, fmt.Errorf("%s %q is not a supported language", prefix, lang))
			continue
		}
		if prev, ok := seen[lang]; ok {
			errs = append(errs, fmt.Errorf("%s %q is a duplicate of captions.target_languages[%d]", prefix, lang, prev))
		}
		seen[lang] = i
		if lang == cfg.Captions.SourceLanguage {
			slog.Warn("target language equals the source language; it will be served from the transcript directly",
				"language", lang,
			)
		}
	}

	// Translator
	if name := cfg.Translator.Name; name != "" {
		if !slices.Contains(ValidTranslatorNames, name) {
			slog.Warn("unknown translator name — may be a typo or third-party provider",
				"name", name,
				"known", ValidTranslatorNames,
			)
		}
		if name == "openai" && cfg.Translator.APIKey == "" {
			errs = append(errs, errors.New("translator.api_key is required when translator.name is openai"))
		}
		if len(cfg.Captions.TargetLanguages) == 0 {
			slog.Warn("translator configured but captions.target_languages is empty; no translations will be produced")
		}
	}

	return errors.Join(errs...)
}
