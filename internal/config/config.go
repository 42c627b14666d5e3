// Package config provides the configuration schema, loader, and provider registry
// for the Courtside voice scoring service.
package config

import "time"

// LogLevel controls log verbosity for the Courtside server.
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

// Language selects the command vocabulary. It mirrors the parser's language
// codes so config files stay independent of the voice packages.
type Language string

const (
	LanguagePortuguese Language = "pt"
	LanguageEnglish    Language = "en"
	LanguageSpanish    Language = "es"
)

// IsValid reports whether l is a supported language.
func (l Language) IsValid() bool {
	switch l {
	case LanguagePortuguese, LanguageEnglish, LanguageSpanish:
		return true
	}
	return false
}

// Config is the root configuration structure for Courtside.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Voice     VoiceConfig     `yaml:"voice"`
	Providers ProvidersConfig `yaml:"providers"`
	Bridge    BridgeConfig    `yaml:"bridge"`
}

// ServerConfig holds network and logging settings for the Courtside server.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// VoiceConfig tunes the voice-command pipeline. Every session created after a
// reload picks up the new values.
type VoiceConfig struct {
	// Language selects the command vocabulary.
	Language Language `yaml:"language"`

	// Debounce is the quiet period after the last interim transcript.
	Debounce time.Duration `yaml:"debounce"`

	// RepeatCooldown suppresses an identical transcript flush.
	RepeatCooldown time.Duration `yaml:"repeat_cooldown"`

	// ExecuteThreshold is the minimum confidence for immediate execution.
	ExecuteThreshold float64 `yaml:"execute_threshold"`

	// ConfirmThreshold is the minimum confidence for holding a command.
	// Anything below is treated as unrecognized.
	ConfirmThreshold float64 `yaml:"confirm_threshold"`

	// DedupCooldown blocks an identical command for this long.
	DedupCooldown time.Duration `yaml:"dedup_cooldown"`

	// TeamLockout blocks further points for a team for this long.
	TeamLockout time.Duration `yaml:"team_lockout"`

	// DedupHistory caps the deduplicator's memory.
	DedupHistory int `yaml:"dedup_history"`

	// HistorySize caps the executed-command history per session.
	HistorySize int `yaml:"history_size"`

	// PendingTimeout expires held commands and conflicts. Zero disables
	// expiry.
	PendingTimeout time.Duration `yaml:"pending_timeout"`

	// CloudFallback enables LLM escalation for unrecognized commands.
	// Requires providers.llm.
	CloudFallback bool `yaml:"cloud_fallback"`

	// CloudTimeout bounds one escalation.
	CloudTimeout time.Duration `yaml:"cloud_timeout"`
}

// ProvidersConfig declares the cloud language models used for fallback
// parsing. Each entry selects a named provider registered in the [Registry].
type ProvidersConfig struct {
	// LLM is the primary model.
	LLM ProviderEntry `yaml:"llm"`

	// LLMFallbacks are tried in order when the primary fails or its circuit
	// breaker is open.
	LLMFallbacks []ProviderEntry `yaml:"llm_fallbacks"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "ollama").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o-mini").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above.
	Options map[string]any `yaml:"options"`
}

// BridgeConfig configures how speech engines and scoreboards reach the
// service.
type BridgeConfig struct {
	WebSocket WebSocketConfig `yaml:"websocket"`
	NATS      NATSConfig      `yaml:"nats"`
}

// WebSocketConfig configures the WebSocket bridge.
type WebSocketConfig struct {
	// Path is the HTTP path the bridge is mounted on. Empty disables the
	// bridge.
	Path string `yaml:"path"`

	// OriginPatterns lists additional allowed browser origins
	// (e.g., "scoreboard.example.com").
	OriginPatterns []string `yaml:"origin_patterns"`
}

// NATSConfig configures the NATS bridge.
type NATSConfig struct {
	// URL is the NATS server URL. Empty disables the bridge unless Embedded
	// is set.
	URL string `yaml:"url"`

	// Embedded runs an in-process NATS server and connects the bridge to it
	// when URL is empty.
	Embedded bool `yaml:"embedded"`

	// Port is the embedded server's client port. Default: 4222.
	Port int `yaml:"port"`

	// SubjectPrefix is prepended to all subjects. Default: "courtside".
	SubjectPrefix string `yaml:"subject_prefix"`

	// Name is the client connection name reported to the server.
	Name string `yaml:"name"`
}
