package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Speech and synthesis backends selectable through the environment.
const (
	BackendVoise    = "voise"
	BackendDeepgram = "deepgram"
	BackendCartesia = "cartesia"
)

// Config holds all configuration for the gateway service
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"8080"`

	// Path of the Voise engine configuration file (INI, sections [general] and [debug])
	VoiseConfigPath string `envconfig:"VOISE_CONFIG" default:"/etc/voise/voise.conf"`

	// Recognition backend: voise (Voise server over gRPC) or deepgram
	SpeechBackend string `envconfig:"SPEECH_BACKEND" default:"voise"`

	// Consecutive streaming push failures tolerated before an attempt fails
	MaxPushFailures int `envconfig:"SPEECH_MAX_PUSH_FAILURES" default:"5"`

	// Upper bound for the blocking stop-and-collect call, in milliseconds
	StopTimeoutMs int `envconfig:"SPEECH_STOP_TIMEOUT_MS" default:"5000"`

	// Synthesis backend: voise or cartesia
	TTSBackend string `envconfig:"TTS_BACKEND" default:"voise"`

	// Deepgram STT API configuration (only used with SPEECH_BACKEND=deepgram)
	DeepgramAPIKey string `envconfig:"DEEPGRAM_API_KEY" default:""`
	DeepgramModel  string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"`

	// Cartesia TTS API configuration (only used with TTS_BACKEND=cartesia)
	CartesiaAPIKey  string `envconfig:"CARTESIA_API_KEY" default:""`
	CartesiaVoiceID string `envconfig:"CARTESIA_VOICE_ID" default:"sonic-english"`
	CartesiaModelID string `envconfig:"CARTESIA_MODEL_ID" default:"sonic"`
	CartesiaAPIURL  string `envconfig:"CARTESIA_API_URL" default:"https://api.cartesia.ai/v1/tts"`

	// Voise server connection
	VoiseDialTimeout int `envconfig:"VOISE_DIAL_TIMEOUT" default:"5"` // seconds

	// Audio processing configuration
	AudioBufferSize int `envconfig:"AUDIO_BUFFER_SIZE" default:"8192"` // Outbound ring buffer size in bytes

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`             // Maximum retry attempts
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"`        // Initial backoff in milliseconds
	ReconnectMaxAttempts       int `envconfig:"RECONNECT_MAX_ATTEMPTS" default:"5"`         // Maximum reconnection attempts
	ReconnectBackoff           int `envconfig:"RECONNECT_BACKOFF" default:"1000"`           // Reconnection backoff in milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	c.SpeechBackend = strings.ToLower(c.SpeechBackend)
	c.TTSBackend = strings.ToLower(c.TTSBackend)

	switch c.SpeechBackend {
	case BackendVoise:
	case BackendDeepgram:
		if c.DeepgramAPIKey == "" {
			return fmt.Errorf("DEEPGRAM_API_KEY is required when SPEECH_BACKEND=deepgram")
		}
	default:
		return fmt.Errorf("unknown SPEECH_BACKEND %q", c.SpeechBackend)
	}

	switch c.TTSBackend {
	case BackendVoise:
	case BackendCartesia:
		if c.CartesiaAPIKey == "" {
			return fmt.Errorf("CARTESIA_API_KEY is required when TTS_BACKEND=cartesia")
		}
	default:
		return fmt.Errorf("unknown TTS_BACKEND %q", c.TTSBackend)
	}

	if c.MaxPushFailures <= 0 {
		return fmt.Errorf("SPEECH_MAX_PUSH_FAILURES must be positive, got %d", c.MaxPushFailures)
	}

	return nil
}
