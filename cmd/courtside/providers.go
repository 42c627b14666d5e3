package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/courtside/internal/config"
	"github.com/MrWong99/courtside/internal/observe"
	"github.com/MrWong99/courtside/internal/resilience"
	"github.com/MrWong99/courtside/internal/voice/buffer"
	"github.com/MrWong99/courtside/internal/voice/cloud"
	"github.com/MrWong99/courtside/internal/voice/dedup"
	"github.com/MrWong99/courtside/internal/voice/intent"
	"github.com/MrWong99/courtside/internal/voice/orchestrator"
	"github.com/MrWong99/courtside/pkg/provider/llm"
	"github.com/MrWong99/courtside/pkg/provider/llm/anyllm"
	"github.com/MrWong99/courtside/pkg/provider/llm/openai"
)

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in LLM factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// Local servers (ollama, llamacpp, llamafile) take base_url and no key.
	for _, name := range anyllm.Backends() {
		reg.RegisterLLM(name, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			p, err := anyllm.New(name, entry.Model, opts...)
			if err != nil {
				return nil, err
			}
			return p, nil
		})
	}

	// openai-compatible talks to any Chat Completions endpoint (vLLM, LM
	// Studio, Azure proxies) through the official SDK.
	reg.RegisterLLM("openai-compatible", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, openai.WithTimeout(d))
		}
		p, err := openai.New(entry.APIKey, entry.Model, opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	})

	for _, name := range reg.LLMNames() {
		slog.Debug("registered provider", "kind", "llm", "name", name)
	}
}

// buildCloudLLM instantiates the primary model and its fallbacks behind
// per-provider circuit breakers. It returns nil when no model is configured.
func buildCloudLLM(cfg config.ProvidersConfig, reg *config.Registry, m *observe.Metrics) (*resilience.LLMFallback, error) {
	if cfg.LLM.Name == "" {
		return nil, nil
	}
	primary, err := reg.CreateLLM(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", cfg.LLM.Name, err)
	}
	slog.Info("provider created", "kind", "llm", "name", cfg.LLM.Name)

	fb := resilience.NewLLMFallback(primary, cfg.LLM.Name, resilience.FallbackConfig{
		OnResult: func(name string, err error) {
			ctx := context.Background()
			status := "ok"
			if err != nil {
				status = "error"
				m.RecordProviderError(ctx, name, "llm")
			}
			m.RecordProviderRequest(ctx, name, "llm", status)
		},
	})
	for _, entry := range cfg.LLMFallbacks {
		p, err := reg.CreateLLM(entry)
		if err != nil {
			return nil, fmt.Errorf("create llm fallback %q: %w", entry.Name, err)
		}
		fb.AddFallback(entry.Name, p)
		slog.Info("provider created", "kind", "llm", "name", entry.Name, "role", "fallback")
	}
	return fb, nil
}

// newResolver wraps p in a cloud intent resolver tuned by the primary entry's
// options. It returns nil when p is nil.
func newResolver(entry config.ProviderEntry, p *resilience.LLMFallback) cloud.Resolver {
	if p == nil {
		return nil
	}
	var opts []cloud.Option
	if t, ok := optFloat(entry.Options, "temperature"); ok {
		opts = append(opts, cloud.WithTemperature(t))
	}
	if n, ok := optInt(entry.Options, "max_tokens"); ok {
		opts = append(opts, cloud.WithMaxTokens(n))
	}
	return cloud.NewLLMResolver(p, opts...)
}

// sessionOptions translates the voice settings into orchestrator options for
// one new session.
func sessionOptions(v config.VoiceConfig, resolver cloud.Resolver, m *observe.Metrics) []orchestrator.Option {
	opts := []orchestrator.Option{
		orchestrator.WithLanguage(intent.Language(v.Language)),
		orchestrator.WithThresholds(v.ExecuteThreshold, v.ConfirmThreshold),
		orchestrator.WithHistorySize(v.HistorySize),
		orchestrator.WithPendingTimeout(v.PendingTimeout),
		orchestrator.WithCloudTimeout(v.CloudTimeout),
		orchestrator.WithMetrics(m),
		orchestrator.WithDeduplicator(dedup.New(
			dedup.WithCooldown(v.DedupCooldown),
			dedup.WithTeamLockout(v.TeamLockout),
			dedup.WithHistorySize(v.DedupHistory),
		)),
		orchestrator.WithBufferOptions(
			buffer.WithDebounce(v.Debounce),
			buffer.WithCooldown(v.RepeatCooldown),
		),
	}
	if v.CloudFallback && resolver != nil {
		opts = append(opts, orchestrator.WithResolver(resolver))
	}
	return opts
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optFloat extracts a number. YAML decodes integers as int, so both are
// accepted.
func optFloat(opts map[string]any, key string) (float64, bool) {
	switch v := opts[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

func optInt(opts map[string]any, key string) (int, bool) {
	v, ok := opts[key].(int)
	return v, ok
}

// optDuration parses a duration string such as "30s".
func optDuration(opts map[string]any, key string) time.Duration {
	d, err := time.ParseDuration(optString(opts, key))
	if err != nil {
		return 0
	}
	return d
}
