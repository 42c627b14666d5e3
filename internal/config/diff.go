package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// VoiceChanged is true if any voice tuning changed. New sessions pick up
	// the new values; running sessions keep theirs.
	VoiceChanged bool
	VoiceFields  []string

	// RestartRequired lists changed sections that only take effect after a
	// restart.
	RestartRequired []string
}

// Empty reports whether nothing Courtside acts on changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.VoiceChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	d.VoiceFields = diffVoice(old.Voice, new.Voice)
	d.VoiceChanged = len(d.VoiceFields) > 0

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if !providersEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Bridge.WebSocket.Path != new.Bridge.WebSocket.Path ||
		!slices.Equal(old.Bridge.WebSocket.OriginPatterns, new.Bridge.WebSocket.OriginPatterns) {
		d.RestartRequired = append(d.RestartRequired, "bridge.websocket")
	}
	if old.Bridge.NATS != new.Bridge.NATS {
		d.RestartRequired = append(d.RestartRequired, "bridge.nats")
	}
	return d
}

// diffVoice returns the YAML keys of the voice fields that differ.
func diffVoice(old, new VoiceConfig) []string {
	var changed []string
	add := func(cond bool, key string) {
		if cond {
			changed = append(changed, key)
		}
	}
	add(old.Language != new.Language, "language")
	add(old.Debounce != new.Debounce, "debounce")
	add(old.RepeatCooldown != new.RepeatCooldown, "repeat_cooldown")
	add(old.ExecuteThreshold != new.ExecuteThreshold, "execute_threshold")
	add(old.ConfirmThreshold != new.ConfirmThreshold, "confirm_threshold")
	add(old.DedupCooldown != new.DedupCooldown, "dedup_cooldown")
	add(old.TeamLockout != new.TeamLockout, "team_lockout")
	add(old.DedupHistory != new.DedupHistory, "dedup_history")
	add(old.HistorySize != new.HistorySize, "history_size")
	add(old.PendingTimeout != new.PendingTimeout, "pending_timeout")
	add(old.CloudFallback != new.CloudFallback, "cloud_fallback")
	add(old.CloudTimeout != new.CloudTimeout, "cloud_timeout")
	return changed
}

func providersEqual(a, b ProvidersConfig) bool {
	return entryEqual(a.LLM, b.LLM) &&
		slices.EqualFunc(a.LLMFallbacks, b.LLMFallbacks, entryEqual)
}

func entryEqual(a, b ProviderEntry) bool {
	return a.Name == b.Name &&
		a.APIKey == b.APIKey &&
		a.BaseURL == b.BaseURL &&
		a.Model == b.Model &&
		reflect.DeepEqual(a.Options, b.Options)
}
