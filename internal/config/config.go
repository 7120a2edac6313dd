package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full service configuration, read from the environment.
type Config struct {
	Service       ServiceConfig
	STT           STTConfig
	Translation   TranslationConfig
	Session       SessionConfig
	Relay         RelayConfig
	Kafka         KafkaConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Principal   string
	Port        string
	Environment string
}

// STTConfig selects and configures the upstream transcription provider.
type STTConfig struct {
	Provider              string // gladia, google, mock
	GladiaAPIKey          string
	GladiaBaseURL         string
	GladiaModel           string
	GoogleCredentialsFile string
	CreateTimeout         time.Duration
}

type TranslationConfig struct {
	Provider    string // deepl, mock
	DeepLAPIKey string
	DeepLURL    string
	Timeout     time.Duration // zero leaves the HTTP client default
}

// SessionConfig controls idle expiry of browser sessions.
type SessionConfig struct {
	MaxAge        time.Duration
	SweepInterval time.Duration
}

type RelayConfig struct {
	// ForwardPartials sends non-final transcripts to the browser. Off by
	// default: only finalized text reaches the UI.
	ForwardPartials bool
}

type KafkaConfig struct {
	Enabled        bool
	Brokers        []string
	TopicLifecycle string
	Principal      string
}

type ObservabilityConfig struct {
	LogLevel    string
	LogFormat   string
	MetricsPort string
}

func Load() *Config {
	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-speech-relay")
	gladiaKey := os.Getenv("GLADIA_API_KEY")
	deeplKey := os.Getenv("DEEPL_API_KEY")

	defaultSTT := "mock"
	if gladiaKey != "" {
		defaultSTT = "gladia"
	}
	defaultTranslator := "mock"
	if deeplKey != "" {
		defaultTranslator = "deepl"
	}

	return &Config{
		Service: ServiceConfig{
			Principal:   principal,
			Port:        envOrDefault("PORT", "3000"),
			Environment: envOrDefault("ENV", "prod"),
		},
		STT: STTConfig{
			Provider:              strings.ToLower(envOrDefault("STT_PROVIDER", defaultSTT)),
			GladiaAPIKey:          gladiaKey,
			GladiaBaseURL:         envOrDefault("GLADIA_BASE_URL", "https://api.gladia.io/v2"),
			GladiaModel:           envOrDefault("GLADIA_MODEL", "solaria-1"),
			GoogleCredentialsFile: os.Getenv("GOOGLE_CREDENTIALS_FILE"),
			CreateTimeout:         envOrDefaultDuration("STT_CREATE_TIMEOUT", 10*time.Second),
		},
		Translation: TranslationConfig{
			Provider:    strings.ToLower(envOrDefault("TRANSLATOR_PROVIDER", defaultTranslator)),
			DeepLAPIKey: deeplKey,
			DeepLURL:    os.Getenv("DEEPL_BASE_URL"),
			Timeout:     envOrDefaultDuration("DEEPL_TIMEOUT", 0),
		},
		Session: SessionConfig{
			MaxAge:        envOrDefaultDuration("SESSION_MAX_AGE", 30*time.Minute),
			SweepInterval: envOrDefaultDuration("SESSION_SWEEP_INTERVAL", 5*time.Minute),
		},
		Relay: RelayConfig{
			ForwardPartials: envOrDefaultBool("RELAY_FORWARD_PARTIALS", false),
		},
		Kafka: KafkaConfig{
			Enabled:        envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:        splitList(os.Getenv("KAFKA_BROKERS")),
			TopicLifecycle: envOrDefault("KAFKA_TOPIC_LIFECYCLE", "relay.session.lifecycle"),
			Principal:      envOrDefault("KAFKA_PRINCIPAL", principal),
		},
		Observability: ObservabilityConfig{
			LogLevel:    strings.ToLower(envOrDefault("LOG_LEVEL", "info")),
			LogFormat:   strings.ToLower(envOrDefault("LOG_FORMAT", "json")),
			MetricsPort: envOrDefault("METRICS_PORT", "9090"),
		},
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
