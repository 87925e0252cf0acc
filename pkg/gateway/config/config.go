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

	// Public WebSocket base URL handed to external parties: the telephony
	// provider dials {PublicWSBaseURL}/ws/media and panel observers attach to
	// {PublicWSBaseURL}/ws/panel?sessionId=...
	PublicWSBaseURL string

	// STT upstream (Deepgram-style streaming endpoint).
	STTWSURL      string
	STTAPIKey     string
	STTModel      string
	STTLanguage   string
	STTSampleRate int

	// Telephony placement (Twilio-shaped REST API).
	TelephonyBaseURL    string
	TelephonyAccountSID string
	TelephonyAuthToken  string
	TelephonyFromNumber string

	// Objection analysis.
	GeminiAPIKey      string
	GeminiModel       string
	ObjectionCooldown time.Duration

	// WebSocket liveness and write discipline, shared by both gateways.
	WSPingInterval     time.Duration
	WSWriteTimeout     time.Duration
	WSHandshakeTimeout time.Duration
	WSMaxMessageBytes  int64

	// Operational defaults.
	ReadHeaderTimeout   time.Duration
	ShutdownGracePeriod time.Duration

	// Upstream HTTP client defaults.
	UpstreamConnectTimeout        time.Duration
	UpstreamResponseHeaderTimeout time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                          envOr("VOICE_ADDR", ":8080"),
		PublicWSBaseURL:               envOr("VOICE_PUBLIC_WS_BASE_URL", "ws://localhost:8080"),
		STTWSURL:                      envOr("VOICE_STT_WS_URL", "wss://api.deepgram.com/v1/listen"),
		STTAPIKey:                     strings.TrimSpace(os.Getenv("VOICE_STT_API_KEY")),
		STTModel:                      envOr("VOICE_STT_MODEL", "nova-2"),
		STTLanguage:                   envOr("VOICE_STT_LANGUAGE", "es"),
		STTSampleRate:                 envIntOr("VOICE_STT_SAMPLE_RATE", 8000),
		TelephonyBaseURL:              envOr("VOICE_TELEPHONY_BASE_URL", "https://api.twilio.com/2010-04-01"),
		TelephonyAccountSID:           strings.TrimSpace(os.Getenv("VOICE_TELEPHONY_ACCOUNT_SID")),
		TelephonyAuthToken:            strings.TrimSpace(os.Getenv("VOICE_TELEPHONY_AUTH_TOKEN")),
		TelephonyFromNumber:           strings.TrimSpace(os.Getenv("VOICE_TELEPHONY_FROM_NUMBER")),
		GeminiAPIKey:                  strings.TrimSpace(os.Getenv("VOICE_GEMINI_API_KEY")),
		GeminiModel:                   envOr("VOICE_GEMINI_MODEL", "gemini-2.0-flash"),
		ObjectionCooldown:             envDurationOr("VOICE_OBJECTION_COOLDOWN", 45*time.Second),
		WSPingInterval:                envDurationOr("VOICE_WS_PING_INTERVAL", 15*time.Second),
		WSWriteTimeout:                envDurationOr("VOICE_WS_WRITE_TIMEOUT", 5*time.Second),
		WSHandshakeTimeout:            envDurationOr("VOICE_WS_HANDSHAKE_TIMEOUT", 5*time.Second),
		WSMaxMessageBytes:             envInt64Or("VOICE_WS_MAX_MESSAGE_BYTES", 64*1024),
		ReadHeaderTimeout:             envDurationOr("VOICE_READ_HEADER_TIMEOUT", 10*time.Second),
		ShutdownGracePeriod:           envDurationOr("VOICE_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
		UpstreamConnectTimeout:        envDurationOr("VOICE_CONNECT_TIMEOUT", 5*time.Second),
		UpstreamResponseHeaderTimeout: envDurationOr("VOICE_RESPONSE_HEADER_TIMEOUT", 30*time.Second),
	}

	if strings.TrimSpace(cfg.Addr) == "" {
		return Config{}, fmt.Errorf("VOICE_ADDR must not be empty")
	}
	if strings.TrimSpace(cfg.PublicWSBaseURL) == "" {
		return Config{}, fmt.Errorf("VOICE_PUBLIC_WS_BASE_URL must not be empty")
	}
	if strings.TrimSpace(cfg.STTWSURL) == "" {
		return Config{}, fmt.Errorf("VOICE_STT_WS_URL must not be empty")
	}
	if cfg.STTSampleRate <= 0 {
		return Config{}, fmt.Errorf("VOICE_STT_SAMPLE_RATE must be > 0")
	}
	if strings.TrimSpace(cfg.TelephonyBaseURL) == "" {
		return Config{}, fmt.Errorf("VOICE_TELEPHONY_BASE_URL must not be empty")
	}
	if cfg.ObjectionCooldown <= 0 {
		return Config{}, fmt.Errorf("VOICE_OBJECTION_COOLDOWN must be > 0")
	}
	if cfg.WSPingInterval <= 0 {
		return Config{}, fmt.Errorf("VOICE_WS_PING_INTERVAL must be > 0")
	}
	if cfg.WSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("VOICE_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.WSHandshakeTimeout <= 0 {
		return Config{}, fmt.Errorf("VOICE_WS_HANDSHAKE_TIMEOUT must be > 0")
	}
	if cfg.WSMaxMessageBytes <= 0 {
		return Config{}, fmt.Errorf("VOICE_WS_MAX_MESSAGE_BYTES must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("VOICE_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("VOICE_SHUTDOWN_GRACE_PERIOD must be > 0")
	}
	if cfg.UpstreamConnectTimeout <= 0 {
		return Config{}, fmt.Errorf("VOICE_CONNECT_TIMEOUT must be > 0")
	}
	if cfg.UpstreamResponseHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("VOICE_RESPONSE_HEADER_TIMEOUT must be > 0")
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
