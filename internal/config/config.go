// Package config provides the configuration schema and loader for the
// Overtitle caption service.
package config

// LogLevel controls log verbosity for the Overtitle server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for Overtitle.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Transport  TransportConfig  `yaml:"transport"`
	Captions   CaptionsConfig   `yaml:"captions"`
	Translator TranslatorConfig `yaml:"translator"`
}

// ServerConfig holds network and logging settings for the HTTP API server.
type ServerConfig struct {
	// ListenAddr is the TCP address the API server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// SettingsFile is where runtime-adjustable display settings are
	// persisted. Defaults to "settings.json" in the working directory.
	SettingsFile string `yaml:"settings_file"`
}

// TransportConfig holds the caption stream connection settings.
type TransportConfig struct {
	// URL is the caption stream WebSocket endpoint
	// (e.g., "ws://localhost:8765"). Defaults to the local development
	// endpoint when empty.
	URL string `yaml:"url"`

	// BaseDelayMS seeds the reconnect backoff in milliseconds. The delay
	// doubles per attempt up to DelayCapMS.
	BaseDelayMS int `yaml:"base_delay_ms"`

	// DelayCapMS is the upper limit on the backoff delay in milliseconds.
	DelayCapMS int `yaml:"delay_cap_ms"`

	// MaxAttempts bounds the total number of reconnection attempts before
	// the connection failure becomes terminal.
	MaxAttempts int `yaml:"max_attempts"`

	// GracePeriodMS delays the initial connection attempt in milliseconds to
	// tolerate a backend that is still starting.
	GracePeriodMS int `yaml:"grace_period_ms"`
}

// CaptionsConfig holds the language settings for caption aggregation.
type CaptionsConfig struct {
	// SourceLanguage is the speaker's language code. Segments without a
	// language code are attributed to it. Defaults to "en".
	SourceLanguage string `yaml:"source_language"`

	// TargetLanguages lists the language codes the local translator loop
	// produces captions for. Ignored when no translator is configured.
	TargetLanguages []string `yaml:"target_languages"`
}

// TranslatorConfig selects and configures the optional local translation
// provider. When Name is empty the translator loop is disabled and translated
// captions are expected to arrive over the caption stream instead.
type TranslatorConfig struct {
	// Name selects the provider implementation ("openai" or "mock").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// Model selects a specific model within the provider (e.g., "gpt-4o-mini").
	Model string `yaml:"model"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`
}
