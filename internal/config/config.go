// Package config loads runtime configuration from the environment on top of
// compiled-in defaults.
package config

import (
	"fmt"
	"time"

	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// envPrefix namespaces every variable, e.g. CHAT_HTTP_ADDR.
const envPrefix = "CHAT_"

// Config holds every tunable of the subsystem. The fallback window, typing
// window and reconcile interval are deliberately plain constants with env
// overrides rather than values derived from observed latency.
type Config struct {
	HTTPAddr string `koanf:"http_addr"`
	DBURL    string `koanf:"db_url"`
	RedisURL string `koanf:"redis_url"`
	AudioDir string `koanf:"audio_dir"`

	StoreBaseURL   string `koanf:"store_base_url"`
	LiveChannelURL string `koanf:"live_channel_url"`

	EchoFallbackWindow time.Duration `koanf:"echo_fallback_window"`
	TypingIdleWindow   time.Duration `koanf:"typing_idle_window"`
	ReconcileInterval  time.Duration `koanf:"reconcile_interval"`

	LogLevel string `koanf:"log_level"`
}

// Load layers environment variables over defaults.
func Load() (Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"http_addr":            ":8080",
		"db_url":               "",
		"redis_url":            "",
		"audio_dir":            "audio",
		"store_base_url":       "http://localhost:8080",
		"live_channel_url":     "ws://localhost:8080/api/v1/chat/ws",
		"echo_fallback_window": "4s",
		"typing_idle_window":   "2s",
		"reconcile_interval":   "30s",
		"log_level":            "info",
	}
	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return Config{}, fmt.Errorf("config: load defaults: %w", err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return stripPrefixLower(s)
	}), nil); err != nil {
		return Config{}, fmt.Errorf("config: load env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}

func stripPrefixLower(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s[len(envPrefix):] {
		if r >= 'A' && r <= 'Z' {
			r += 'a' - 'A'
		}
		out = append(out, r)
	}
	return string(out)
}
