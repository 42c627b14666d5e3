package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by [ApplyDefaults] to zero-valued fields.
const (
	DefaultListenAddr       = ":8080"
	DefaultDebounce         = 400 * time.Millisecond
	DefaultRepeatCooldown   = 800 * time.Millisecond
	DefaultExecuteThreshold = 0.85
	DefaultConfirmThreshold = 0.60
	DefaultDedupCooldown    = 1500 * time.Millisecond
	DefaultTeamLockout      = 1500 * time.Millisecond
	DefaultDedupHistory     = 5
	DefaultHistorySize      = 20
	DefaultCloudTimeout     = 8 * time.Second
	DefaultSubjectPrefix    = "courtside"
	DefaultNATSPort         = 4222
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile", "openai-compatible"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
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

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. An empty document yields the default config.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero-valued fields of cfg with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}

	v := &cfg.Voice
	if v.Language == "" {
		v.Language = LanguagePortuguese
	}
	setDuration(&v.Debounce, DefaultDebounce)
	setDuration(&v.RepeatCooldown, DefaultRepeatCooldown)
	setDuration(&v.DedupCooldown, DefaultDedupCooldown)
	setDuration(&v.TeamLockout, DefaultTeamLockout)
	setDuration(&v.CloudTimeout, DefaultCloudTimeout)
	if v.ExecuteThreshold == 0 {
		v.ExecuteThreshold = DefaultExecuteThreshold
	}
	if v.ConfirmThreshold == 0 {
		v.ConfirmThreshold = DefaultConfirmThreshold
	}
	if v.DedupHistory == 0 {
		v.DedupHistory = DefaultDedupHistory
	}
	if v.HistorySize == 0 {
		v.HistorySize = DefaultHistorySize
	}

	if cfg.Bridge.NATS.SubjectPrefix == "" {
		cfg.Bridge.NATS.SubjectPrefix = DefaultSubjectPrefix
	}
	if cfg.Bridge.NATS.Name == "" {
		cfg.Bridge.NATS.Name = "courtside"
	}
	if cfg.Bridge.NATS.Embedded && cfg.Bridge.NATS.Port == 0 {
		cfg.Bridge.NATS.Port = DefaultNATSPort
	}
}

func setDuration(d *time.Duration, def time.Duration) {
	if *d == 0 {
		*d = def
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Voice
	v := cfg.Voice
	if v.Language != "" && !v.Language.IsValid() {
		errs = append(errs, fmt.Errorf("voice.language %q is invalid; valid values: pt, en, es", v.Language))
	}
	if v.ExecuteThreshold < 0 || v.ExecuteThreshold > 1 {
		errs = append(errs, fmt.Errorf("voice.execute_threshold %.2f is out of range [0, 1]", v.ExecuteThreshold))
	}
	if v.ConfirmThreshold < 0 || v.ConfirmThreshold > 1 {
		errs = append(errs, fmt.Errorf("voice.confirm_threshold %.2f is out of range [0, 1]", v.ConfirmThreshold))
	}
	if v.ConfirmThreshold > v.ExecuteThreshold {
		errs = append(errs, fmt.Errorf("voice.confirm_threshold %.2f must not exceed voice.execute_threshold %.2f", v.ConfirmThreshold, v.ExecuteThreshold))
	}
	for name, d := range map[string]time.Duration{
		"debounce":        v.Debounce,
		"repeat_cooldown": v.RepeatCooldown,
		"dedup_cooldown":  v.DedupCooldown,
		"team_lockout":    v.TeamLockout,
		"pending_timeout": v.PendingTimeout,
		"cloud_timeout":   v.CloudTimeout,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("voice.%s %s must not be negative", name, d))
		}
	}
	if v.DedupHistory < 0 {
		errs = append(errs, fmt.Errorf("voice.dedup_history %d must not be negative", v.DedupHistory))
	}
	if v.HistorySize < 0 {
		errs = append(errs, fmt.Errorf("voice.history_size %d must not be negative", v.HistorySize))
	}

	// Providers
	validateProviderName("llm", cfg.Providers.LLM.Name)
	for i, fb := range cfg.Providers.LLMFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.llm_fallbacks[%d].name is required", i))
			continue
		}
		validateProviderName("llm", fb.Name)
	}
	if v.CloudFallback && cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("voice.cloud_fallback requires an LLM provider but providers.llm is not configured"))
	}
	if !v.CloudFallback && cfg.Providers.LLM.Name != "" {
		slog.Warn("providers.llm is configured but voice.cloud_fallback is disabled; the model will not be used")
	}

	// Bridges
	if p := cfg.Bridge.WebSocket.Path; p != "" && !strings.HasPrefix(p, "/") {
		errs = append(errs, fmt.Errorf("bridge.websocket.path %q must start with /", p))
	}
	if prefix := cfg.Bridge.NATS.SubjectPrefix; strings.ContainsAny(prefix, "*> \t") {
		errs = append(errs, fmt.Errorf("bridge.nats.subject_prefix %q must not contain wildcards or whitespace", prefix))
	}
	if p := cfg.Bridge.NATS.Port; p < 0 || p > 65535 {
		errs = append(errs, fmt.Errorf("bridge.nats.port %d is out of range [0, 65535]", p))
	}
	if cfg.Bridge.WebSocket.Path == "" && cfg.Bridge.NATS.URL == "" && !cfg.Bridge.NATS.Embedded {
		slog.Warn("no bridge configured; no speech engine can reach the service")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
