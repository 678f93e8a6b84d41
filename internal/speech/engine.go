package speech

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lexiqai/voise-gateway/internal/audio"
	"github.com/lexiqai/voise-gateway/internal/resilience"
)

// Audio contract between the channel and the recognizer.
const (
	Encoding      = audio.EncodingLinear16
	SampleRate    = 8000
	FrameDuration = 20 * time.Millisecond
	FrameSamples  = SampleRate * int(FrameDuration/time.Millisecond) / 1000

	// OnsetFrames is how many consecutive voiced frames are treated as noise
	// before speech is confirmed.
	OnsetFrames = 1

	DefaultMaxPushFailures = 5
	DefaultStopTimeout     = 5 * time.Second
)

// EngineConfig configures an Engine.
type EngineConfig struct {
	Name            string
	Defaults        SessionConfig
	MaxPushFailures int
	StopTimeout     time.Duration
	// Breaker, if set, guards session opens.
	Breaker *resilience.CircuitBreaker
}

// Engine creates recognizers bound to one speech service. It is built once
// at startup and holds no per-attempt state.
type Engine struct {
	name            string
	client          SessionClient
	defaults        SessionConfig
	maxPushFailures int
	stopTimeout     time.Duration
	breaker         *resilience.CircuitBreaker
	logger          zerolog.Logger
}

// NewEngine creates an engine for client.
func NewEngine(client SessionClient, cfg EngineConfig) (*Engine, error) {
	if client == nil {
		return nil, &Error{Kind: ErrConfig, Op: "new engine", Err: errors.New("nil session client")}
	}
	if cfg.Name == "" {
		cfg.Name = "voise"
	}
	if cfg.MaxPushFailures <= 0 {
		cfg.MaxPushFailures = DefaultMaxPushFailures
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}

	return &Engine{
		name:            cfg.Name,
		client:          client,
		defaults:        cfg.Defaults,
		maxPushFailures: cfg.MaxPushFailures,
		stopTimeout:     cfg.StopTimeout,
		breaker:         cfg.Breaker,
		logger:          log.With().Str("component", "speech").Str("engine", cfg.Name).Logger(),
	}, nil
}

// Name returns the engine name.
func (e *Engine) Name() string {
	return e.name
}

// Defaults returns the configuration new recognizers start from.
func (e *Engine) Defaults() SessionConfig {
	return e.defaults
}

// Ping checks the remote service when the client supports it.
func (e *Engine) Ping(ctx context.Context) error {
	p, ok := e.client.(Pinger)
	if !ok {
		return nil
	}
	if err := p.Ping(ctx); err != nil {
		return NewError(ErrConnection, "ping", err)
	}
	return nil
}

// BreakerStats describes the circuit breaker guarding session opens, or
// returns nil when the engine has none.
func (e *Engine) BreakerStats() map[string]interface{} {
	if e.breaker == nil {
		return nil
	}
	state, requests, failures, rate := e.breaker.GetStats()
	return map[string]interface{}{
		"breaker":          state.String(),
		"open_requests":    requests,
		"open_failures":    failures,
		"failure_rate_pct": rate,
	}
}

// NewRecognizer returns a recognizer for one channel.
func (e *Engine) NewRecognizer(opts ...Option) *Recognizer {
	r := &Recognizer{
		engine: e,
		cfg:    e.defaults,
		phase:  PhaseNotReady,
		now:    time.Now,
		logger: e.logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (e *Engine) open(ctx context.Context, params OpenParams) (Session, error) {
	var session Session
	open := func() error {
		var err error
		session, err = e.client.Open(ctx, params)
		return err
	}

	var err error
	if e.breaker != nil {
		err = e.breaker.Call(open)
	} else {
		err = open()
	}
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return nil, &Error{Kind: ErrConnection, Op: "open", Err: fmt.Errorf("%s: %w", e.breaker.Name(), err)}
		}
		return nil, NewError(ErrConnection, "open", err)
	}
	return session, nil
}
