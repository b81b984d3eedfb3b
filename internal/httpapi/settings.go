package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
)

// STTSettings tunes the upstream speech-to-text behaviour surfaced to
// operators.
type STTSettings struct {
	// MaxDelay is the maximum seconds the STT backend may hold a partial
	// before finalising it.
	MaxDelay float64 `json:"max_delay"`

	// PunctuationOverrides is the sensitivity of punctuation-driven
	// finalisation, in the range [0, 1].
	PunctuationOverrides float64 `json:"punctuation_overrides"`
}

// LLMSettings tunes the translation prompt context.
type LLMSettings struct {
	// ContextEnabled toggles sending preceding sentences as context.
	ContextEnabled bool `json:"context_enabled"`

	// ContextSentences is how many preceding sentences to send.
	ContextSentences int `json:"context_sentences"`

	// CustomPrompt is appended to the translation system prompt when set.
	CustomPrompt string `json:"custom_prompt"`
}

// Settings is the runtime-adjustable configuration exposed over the API.
type Settings struct {
	STT STTSettings `json:"stt"`
	LLM LLMSettings `json:"llm"`
}

// DefaultSettings returns the settings used before any operator adjustment.
func DefaultSettings() Settings {
	return Settings{
		STT: STTSettings{
			MaxDelay:             5.0,
			PunctuationOverrides: 0.3,
		},
		LLM: LLMSettings{
			ContextEnabled:   true,
			ContextSentences: 10,
		},
	}
}

// Validate checks that s holds coherent values.
func (s Settings) Validate() error {
	var errs []error
	if s.STT.MaxDelay <= 0 {
		errs = append(errs, fmt.Errorf("stt.max_delay must be positive, got %g", s.STT.MaxDelay))
	}
	if s.STT.PunctuationOverrides < 0 || s.STT.PunctuationOverrides > 1 {
		errs = append(errs, fmt.Errorf("stt.punctuation_overrides %g is out of range [0, 1]", s.STT.PunctuationOverrides))
	}
	if s.LLM.ContextSentences < 0 {
		errs = append(errs, fmt.Errorf("llm.context_sentences must not be negative, got %d", s.LLM.ContextSentences))
	}
	return errors.Join(errs...)
}

// SettingsStore holds the current [Settings] and persists updates to a JSON
// file so they survive restarts. All methods are safe for concurrent use.
type SettingsStore struct {
	path string

	mu      sync.RWMutex
	current Settings
}

// NewSettingsStore creates a store persisting to path, initialised with
// defaults.
func NewSettingsStore(path string) *SettingsStore {
	return &SettingsStore{
		path:    path,
		current: DefaultSettings(),
	}
}

// Load reads previously persisted settings from disk. A missing file is not
// an error; the store keeps its defaults.
func (s *SettingsStore) Load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("settings: read %q: %w", s.path, err)
	}

	var loaded Settings
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("settings: parse %q: %w", s.path, err)
	}
	if err := loaded.Validate(); err != nil {
		return fmt.Errorf("settings: %q: %w", s.path, err)
	}

	s.mu.Lock()
	s.current = loaded
	s.mu.Unlock()
	return nil
}

// Get returns the current settings.
func (s *SettingsStore) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Put validates and replaces the full settings, persisting them to disk.
func (s *SettingsStore) Put(v Settings) error {
	if err := v.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	s.current = v
	s.mu.Unlock()

	return s.persist(v)
}

// PutSTT replaces only the STT section.
func (s *SettingsStore) PutSTT(v STTSettings) (Settings, error) {
	s.mu.Lock()
	updated := s.current
	updated.STT = v
	if err := updated.Validate(); err != nil {
		s.mu.Unlock()
		return Settings{}, err
	}
	s.current = updated
	s.mu.Unlock()

	return updated, s.persist(updated)
}

// PutLLM replaces only the LLM section.
func (s *SettingsStore) PutLLM(v LLMSettings) (Settings, error) {
	s.mu.Lock()
	updated := s.current
	updated.LLM = v
	if err := updated.Validate(); err != nil {
		s.mu.Unlock()
		return Settings{}, err
	}
	s.current = updated
	s.mu.Unlock()

	return updated, s.persist(updated)
}

// errPersist marks failures writing the settings file, as opposed to
// validation failures of the incoming values.
var errPersist = errors.New("settings persist failed")

// persist writes v to the settings file. Persistence failures are returned
// but the in-memory value is already updated; the caller decides whether to
// surface the error.
func (s *SettingsStore) persist(v Settings) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode: %v", errPersist, err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("%w: write %q: %v", errPersist, s.path, err)
	}
	return nil
}
