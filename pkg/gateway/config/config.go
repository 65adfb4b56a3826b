package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr string

	// CORS allowlist (empty => disabled).
	CORSAllowedOrigins map[string]struct{}

	MaxBodyBytes int64

	// Session lifecycle.
	SessionTTL           time.Duration
	SessionSweepInterval time.Duration

	// Postgres DSN; empty selects the in-memory store.
	DatabaseURL string

	// Providers.
	GeminiAPIKey string
	GeminiModel  string
	EmbedModel   string
	GroqAPIKey   string

	// Synthesis defaults.
	TTSVoice string
	TTSRate  string
	TTSPitch string

	// Transcription floor: uploads smaller than this short-circuit to an
	// empty transcript without a provider call.
	MinUtteranceBytes int

	// In-memory limits (per session token).
	LimitRPS                   float64
	LimitBurst                 int
	LimitMaxConcurrentRequests int
	LimitMaxConcurrentStreams  int

	// Operational defaults.
	ReadHeaderTimeout   time.Duration
	ReadTimeout         time.Duration
	HandlerTimeout      time.Duration
	ShutdownGracePeriod time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                       envOr("VERSEVOX_ADDR", ":8080"),
		CORSAllowedOrigins:         make(map[string]struct{}),
		MaxBodyBytes:               envInt64Or("VERSEVOX_MAX_BODY_BYTES", 8<<20), // 8 MiB, audio uploads included
		SessionTTL:                 envDurationOr("VERSEVOX_SESSION_TTL", 30*time.Minute),
		SessionSweepInterval:       envDurationOr("VERSEVOX_SESSION_SWEEP_INTERVAL", time.Minute),
		DatabaseURL:                envOr("VERSEVOX_DATABASE_URL", ""),
		GeminiAPIKey:               envOr("VERSEVOX_GEMINI_API_KEY", os.Getenv("GEMINI_API_KEY")),
		GeminiModel:                envOr("VERSEVOX_GEMINI_MODEL", ""),
		EmbedModel:                 envOr("VERSEVOX_EMBED_MODEL", ""),
		GroqAPIKey:                 envOr("VERSEVOX_GROQ_API_KEY", os.Getenv("GROQ_API_KEY")),
		TTSVoice:                   envOr("VERSEVOX_TTS_VOICE", "en-US-JennyNeural"),
		TTSRate:                    envOr("VERSEVOX_TTS_RATE", "+0%"),
		TTSPitch:                   envOr("VERSEVOX_TTS_PITCH", "+0Hz"),
		MinUtteranceBytes:          envIntOr("VERSEVOX_MIN_UTTERANCE_BYTES", 4800),
		LimitRPS:                   envFloat64Or("VERSEVOX_RATE_LIMIT_RPS", 2.0),
		LimitBurst:                 envIntOr("VERSEVOX_RATE_LIMIT_BURST", 4),
		LimitMaxConcurrentRequests: envIntOr("VERSEVOX_MAX_CONCURRENT_REQUESTS", 20),
		LimitMaxConcurrentStreams:  envIntOr("VERSEVOX_MAX_STREAMS_PER_SESSION", 2),
		ReadHeaderTimeout:          envDurationOr("VERSEVOX_READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:                envDurationOr("VERSEVOX_READ_TIMEOUT", 30*time.Second),
		HandlerTimeout:             envDurationOr("VERSEVOX_TOTAL_REQUEST_TIMEOUT", 2*time.Minute),
		ShutdownGracePeriod:        envDurationOr("VERSEVOX_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
	}

	for _, origin := range splitCSV(os.Getenv("VERSEVOX_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	if cfg.MaxBodyBytes <= 0 {
		return Config{}, fmt.Errorf("VERSEVOX_MAX_BODY_BYTES must be > 0")
	}
	if cfg.SessionTTL <= 0 {
		return Config{}, fmt.Errorf("VERSEVOX_SESSION_TTL must be > 0")
	}
	if cfg.SessionSweepInterval <= 0 {
		return Config{}, fmt.Errorf("VERSEVOX_SESSION_SWEEP_INTERVAL must be > 0")
	}
	if cfg.MinUtteranceBytes < 0 {
		return Config{}, fmt.Errorf("VERSEVOX_MIN_UTTERANCE_BYTES must be >= 0")
	}
	if cfg.LimitRPS < 0 {
		return Config{}, fmt.Errorf("VERSEVOX_RATE_LIMIT_RPS must be >= 0")
	}
	if cfg.LimitBurst < 0 {
		return Config{}, fmt.Errorf("VERSEVOX_RATE_LIMIT_BURST must be >= 0")
	}
	if cfg.LimitMaxConcurrentRequests < 0 {
		return Config{}, fmt.Errorf("VERSEVOX_MAX_CONCURRENT_REQUESTS must be >= 0")
	}
	if cfg.LimitMaxConcurrentStreams < 0 {
		return Config{}, fmt.Errorf("VERSEVOX_MAX_STREAMS_PER_SESSION must be >= 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("VERSEVOX_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ReadTimeout <= 0 {
		return Config{}, fmt.Errorf("VERSEVOX_READ_TIMEOUT must be > 0")
	}
	if cfg.HandlerTimeout <= 0 {
		return Config{}, fmt.Errorf("VERSEVOX_TOTAL_REQUEST_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("VERSEVOX_SHUTDOWN_GRACE_PERIOD must be > 0")
	}

	if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
		return Config{}, fmt.Errorf("VERSEVOX_GEMINI_API_KEY (or GEMINI_API_KEY) must be set")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envFloat64Or(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return f
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
