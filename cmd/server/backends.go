package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voise-gateway/internal/config"
	"github.com/lexiqai/voise-gateway/internal/observability"
	"github.com/lexiqai/voise-gateway/internal/resilience"
	"github.com/lexiqai/voise-gateway/internal/speech"
	"github.com/lexiqai/voise-gateway/internal/stt"
	"github.com/lexiqai/voise-gateway/internal/telephony"
	"github.com/lexiqai/voise-gateway/internal/tts"
	"github.com/lexiqai/voise-gateway/internal/voise"
)

// backends are the shared clients built once at startup. A nil engine or
// synthesizer means the component is disabled; the HTTP service keeps
// running and readiness reports it.
type backends struct {
	engine *speech.Engine
	synth  tts.Synthesizer
	voise  *voise.Client
}

func (b *backends) services() telephony.Services {
	return telephony.Services{Engine: b.engine, Synth: b.synth}
}

func (b *backends) readiness() []observability.Dependency {
	speechDep := observability.Dependency{Name: "speech"}
	if b.engine != nil {
		speechDep.Check = b.engine.Ping
		speechDep.Details = b.engine.BreakerStats
	}

	ttsDep := observability.Dependency{Name: "tts"}
	if p, ok := b.synth.(speech.Pinger); ok {
		ttsDep.Check = p.Ping
	}

	return []observability.Dependency{speechDep, ttsDep}
}

func (b *backends) Close() error {
	if b.voise != nil {
		return b.voise.Close()
	}
	return nil
}

// buildBackends registers the speech engine and the synthesizer. Failures
// disable the affected component only.
func buildBackends(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *backends {
	b := &backends{}

	vc, err := config.LoadVoise(cfg.VoiseConfigPath)
	if err != nil {
		logger.Error().Err(err).Str("path", cfg.VoiseConfigPath).Msg("Failed to load Voise config, speech engine not registered")
	}

	needVoise := cfg.SpeechBackend == config.BackendVoise || cfg.TTSBackend == config.BackendVoise
	if vc != nil && needVoise {
		b.voise, err = dialVoise(ctx, cfg, vc)
		if err != nil {
			logger.Error().Err(err).Str("server", vc.ServerAddr()).Msg("Voise server unreachable")
		}
	}

	if vc != nil {
		var client speech.SessionClient
		switch cfg.SpeechBackend {
		case config.BackendDeepgram:
			client = stt.NewDeepgramClient(cfg.DeepgramAPIKey, cfg.DeepgramModel)
		case config.BackendVoise:
			if b.voise != nil {
				client = b.voise
			}
		}

		if client != nil {
			b.engine, err = speech.NewEngine(client, speech.EngineConfig{
				Name:            cfg.SpeechBackend,
				Defaults:        speech.SessionConfigFromVoise(*vc),
				MaxPushFailures: cfg.MaxPushFailures,
				StopTimeout:     time.Duration(cfg.StopTimeoutMs) * time.Millisecond,
				Breaker: resilience.NewCircuitBreaker(
					cfg.SpeechBackend,
					cfg.CircuitBreakerMaxFailures,
					time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
				),
			})
			if err != nil {
				logger.Error().Err(err).Msg("Failed to create speech engine")
			}
		}
	}

	switch cfg.TTSBackend {
	case config.BackendCartesia:
		cartesia := tts.NewCartesiaClient(cfg.CartesiaAPIKey, cfg.CartesiaVoiceID, cfg.CartesiaModelID)
		if cfg.CartesiaAPIURL != "" {
			cartesia = cartesia.WithURL(cfg.CartesiaAPIURL)
		}
		b.synth = cartesia
	case config.BackendVoise:
		if b.voise != nil {
			b.synth = b.voise
		}
	}

	logger.Info().
		Bool("speech_enabled", b.engine != nil).
		Str("speech_backend", cfg.SpeechBackend).
		Bool("tts_enabled", b.synth != nil).
		Str("tts_backend", cfg.TTSBackend).
		Msg("Backends registered")
	return b
}

func dialVoise(ctx context.Context, cfg *config.Config, vc *config.VoiseConfig) (*voise.Client, error) {
	opts := voise.Options{
		DialTimeout: time.Duration(cfg.VoiseDialTimeout) * time.Second,
		Retry: &resilience.RetryConfig{
			MaxAttempts:       cfg.RetryMaxAttempts,
			InitialBackoff:    time.Duration(cfg.RetryInitialBackoff) * time.Millisecond,
			MaxBackoff:        5 * time.Second,
			BackoffMultiplier: 2.0,
			Jitter:            true,
		},
	}
	reconnect := &resilience.ReconnectConfig{
		MaxAttempts: cfg.ReconnectMaxAttempts,
		Backoff:     time.Duration(cfg.ReconnectBackoff) * time.Millisecond,
		Multiplier:  2.0,
		MaxBackoff:  30 * time.Second,
	}

	var client *voise.Client
	err := resilience.Reconnect(ctx, "voise", func(ctx context.Context) error {
		c, err := voise.Dial(ctx, vc.ServerAddr(), opts)
		if err != nil {
			return err
		}
		client = c
		return nil
	}, reconnect)
	if err != nil {
		return nil, fmt.Errorf("register voise engine: %w", err)
	}
	return client, nil
}
