package speech

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voise-gateway/internal/audio"
	"github.com/lexiqai/voise-gateway/internal/observability"
)

// Finalize reasons.
const (
	ReasonInitialSilence  = "initial_silence"
	ReasonTrailingSilence = "trailing_silence"
	ReasonAbsoluteTimeout = "absolute_timeout"
)

// DetectionState is the voice activity bookkeeping of one attempt.
type DetectionState struct {
	HeardSpeech bool
	VoicedRun   int
	SilenceMs   int
	StartedAt   time.Time
}

// Option configures a Recognizer.
type Option func(*Recognizer)

// WithLogger sets the logger, typically one carrying a call correlation id.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Recognizer) {
		r.logger = logger.With().Str("component", "speech").Logger()
	}
}

// WithSpeechDetected registers fn to be called once per attempt when speech
// is confirmed. Hosts use it to cut a prompt that is still playing.
func WithSpeechDetected(fn func()) Option {
	return func(r *Recognizer) {
		r.onSpeech = fn
	}
}

// WithClock replaces the wall clock used for the absolute timeout.
func WithClock(now func() time.Time) Option {
	return func(r *Recognizer) {
		r.now = now
	}
}

// attempt owns everything that lives from Start to Done or Error.
type attempt struct {
	ctx          context.Context
	session      Session
	vad          *audio.Detector
	det          DetectionState
	pushFailures int
	reason       string
}

// Recognizer runs recognition attempts for one channel. Frames are delivered
// by a single goroutine; the recognizer does no locking of its own.
//
// Timeouts are evaluated when a frame arrives. If frames stop, detection
// stalls; once they resume a due timeout fires on the first frame, so the
// latency bound is one frame interval (20 ms) after delivery restarts.
type Recognizer struct {
	engine   *Engine
	cfg      SessionConfig
	nbest    bool
	phase    Phase
	att      *attempt
	results  []Hypothesis
	vad      *audio.Detector
	onSpeech func()
	now      func() time.Time
	logger   zerolog.Logger
	closed   bool
}

// notice logs at info level when the recognizer is verbose, debug otherwise.
func (r *Recognizer) notice() *zerolog.Event {
	if r.cfg.Verbose {
		return r.logger.Info()
	}
	return r.logger.Debug()
}

// Start begins a new attempt: it resets detection, opens a streaming session
// and moves to Listening. It is rejected while another attempt is active.
func (r *Recognizer) Start(ctx context.Context) error {
	if r.closed {
		return ErrRecognizerClosed
	}
	if r.phase.active() {
		return ErrAttemptActive
	}

	r.results = nil
	r.att = nil

	if r.vad == nil {
		vad, err := audio.NewDetector(&audio.VADConfig{
			EnergyThreshold: audio.SilenceThreshold,
			SampleRate:      SampleRate,
			FrameSize:       FrameSamples,
		})
		if err != nil {
			r.phase = PhaseError
			return &Error{Kind: ErrResource, Op: "start", Err: err}
		}
		r.vad = vad
	}
	r.vad.Reset()

	att := &attempt{ctx: ctx, vad: r.vad}
	r.att = att
	r.phase = PhaseReady

	params := OpenParams{
		Encoding:   Encoding,
		SampleRate: SampleRate,
		Language:   r.cfg.Language,
		ModelName:  r.cfg.ModelName,
		ASREngine:  r.cfg.ASREngine,
	}
	session, err := r.engine.open(ctx, params)
	if err != nil {
		r.phase = PhaseError
		r.logger.Error().Err(err).
			Str("language", params.Language).
			Str("model", params.ModelName).
			Msg("Failed to open recognition session")
		observability.RecordError("open", "speech")
		return err
	}
	if r.closed {
		// Closed by a callback while opening.
		_ = session.Close()
		return ErrRecognizerClosed
	}

	att.session = session
	att.det.StartedAt = r.now()
	r.phase = PhaseListening
	observability.RecordAttemptStart()

	r.notice().
		Str("language", params.Language).
		Str("model", params.ModelName).
		Str("asr_engine", params.ASREngine).
		Int("initsil", r.cfg.InitSilenceMs).
		Int("maxsil", r.cfg.MaxSilenceMs).
		Int("abs_timeout", r.cfg.AbsTimeoutSec).
		Msg("Recognition started")
	return nil
}

// Feed processes one 20 ms LINEAR16 frame in native byte order. In order it
// confirms speech onset, checks the initial silence, trailing silence and
// absolute timeouts, and otherwise forwards the frame to the session. A due
// absolute timeout takes precedence over the silence timeouts.
//
// Feed blocks only when a timeout finalizes the attempt. Frames shorter
// than one sample are ignored.
func (r *Recognizer) Feed(frame []byte) error {
	if r.closed {
		return ErrRecognizerClosed
	}
	if r.phase != PhaseListening {
		return ErrNotListening
	}
	if len(frame) < 2 {
		return nil
	}

	a := r.att
	silent, silenceMs := a.vad.Classify(audio.BytesToSamples(frame), SampleRate)
	a.det.SilenceMs = silenceMs

	if !a.det.HeardSpeech && !silent {
		a.det.VoicedRun++
		if a.det.VoicedRun > OnsetFrames {
			a.det.HeardSpeech = true
			a.det.VoicedRun = 0
			r.speechDetected()
		}
	}

	reason := ""
	switch {
	case silent && !a.det.HeardSpeech && r.cfg.InitSilenceMs > 0 && silenceMs >= r.cfg.InitSilenceMs:
		reason = ReasonInitialSilence
	case silent && a.det.HeardSpeech && r.cfg.MaxSilenceMs > 0 && silenceMs >= r.cfg.MaxSilenceMs:
		reason = ReasonTrailingSilence
	}
	if r.cfg.AbsTimeoutSec > 0 && r.now().Sub(a.det.StartedAt) >= time.Duration(r.cfg.AbsTimeoutSec)*time.Second {
		reason = ReasonAbsoluteTimeout
	}
	if reason != "" {
		return r.finalize(reason)
	}

	if silent {
		a.det.VoicedRun = 0
	}

	if err := a.session.Push(frame); err != nil {
		a.pushFailures++
		observability.RecordPushFailure()
		r.logger.Warn().Err(err).
			Int("consecutive_failures", a.pushFailures).
			Msg("Failed to push audio frame")
		if a.pushFailures >= r.engine.maxPushFailures {
			return r.fail(&Error{Kind: ErrStreamPush, Op: "push", Err: err})
		}
		return nil
	}
	a.pushFailures = 0
	return nil
}

func (r *Recognizer) speechDetected() {
	observability.RecordSpeechOnset()
	r.notice().Msg("Speech detected")
	if r.onSpeech != nil {
		r.onSpeech()
	}
}

// finalize stops the stream and collects the result. The session is closed
// whatever the outcome.
func (r *Recognizer) finalize(reason string) error {
	a := r.att
	a.reason = reason
	r.phase = PhaseFinalizing
	observability.RecordFinalize(reason)
	r.notice().
		Str("reason", reason).
		Int("silence_ms", a.vad.TotalSilence()).
		Bool("heard_speech", a.det.HeardSpeech).
		Msg("Finalizing recognition")

	ctx := a.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, r.engine.stopTimeout)
	defer cancel()

	start := time.Now()
	resp, err := a.session.StopAndCollect(ctx)
	observability.ObserveStopLatency(time.Since(start))
	if err != nil {
		return r.fail(NewError(ErrProtocol, "stop", err))
	}

	r.results = BuildResults(resp, r.nbest)
	r.release("done")
	r.phase = PhaseDone

	if len(r.results) > 0 {
		r.notice().
			Str("text", r.results[0].Text).
			Str("tag", r.results[0].Tag).
			Int("score", r.results[0].Score).
			Msg("Recognition done")
	}
	return nil
}

// fail ends the attempt in the Error phase.
func (r *Recognizer) fail(err error) error {
	r.logger.Error().Err(err).Str("phase", r.phase.String()).Msg("Recognition failed")
	observability.RecordError(errorType(err), "speech")
	r.release("error")
	r.phase = PhaseError
	return err
}

// release closes the attempt's session exactly once.
func (r *Recognizer) release(outcome string) {
	a := r.att
	if a == nil || a.session == nil {
		return
	}
	session := a.session
	a.session = nil
	if err := session.Close(); err != nil && !errors.Is(err, ErrSessionClosed) {
		r.logger.Warn().Err(err).Msg("Failed to close recognition session")
	}
	observability.RecordAttemptEnd(outcome)
}

func errorType(err error) string {
	switch KindOf(err) {
	case ErrConfig:
		return "config"
	case ErrConnection:
		return "connection"
	case ErrProtocol:
		return "protocol"
	case ErrStreamPush:
		return "stream_push"
	case ErrResource:
		return "resource"
	default:
		return "unknown"
	}
}

// Change sets a session attribute by name. Unknown names are logged and
// ignored. Changes are rejected while an attempt is finalizing.
func (r *Recognizer) Change(name, value string) error {
	if r.closed {
		return ErrRecognizerClosed
	}
	if r.phase == PhaseFinalizing {
		return ErrAttemptActive
	}

	err := r.cfg.Change(name, value)
	var unknown errUnknownSetting
	if errors.As(err, &unknown) {
		r.logger.Warn().Str("name", name).Str("value", value).Msg("Unknown speech setting ignored")
		return nil
	}
	if err != nil {
		r.logger.Warn().Err(err).Str("name", name).Str("value", value).Msg("Invalid speech setting")
		return err
	}

	r.notice().Str("name", name).Str("value", value).Msg("Speech setting changed")
	return nil
}

// Config returns the current session configuration.
func (r *Recognizer) Config() SessionConfig {
	return r.cfg
}

// SetResultsType selects single or n-best results for later attempts.
func (r *Recognizer) SetResultsType(nbest bool) {
	r.nbest = nbest
	kind := "normal"
	if nbest {
		kind = "nbest"
	}
	r.notice().Str("results_type", kind).Int("max_nbest", MaxNBest).Msg("Results type changed")
}

// ActivateGrammar selects the recognition model for the next attempt.
func (r *Recognizer) ActivateGrammar(name string) error {
	if r.closed {
		return ErrRecognizerClosed
	}
	r.cfg.ModelName = name
	r.notice().Str("grammar", name).Msg("Grammar activated")
	return nil
}

// DeactivateGrammar clears the recognition model.
func (r *Recognizer) DeactivateGrammar(name string) error {
	if r.closed {
		return ErrRecognizerClosed
	}
	r.cfg.ModelName = ""
	r.notice().Str("grammar", name).Msg("Grammar deactivated")
	return nil
}

// LoadGrammar is a no-op; models live on the speech server.
func (r *Recognizer) LoadGrammar(name, path string) error {
	return nil
}

// UnloadGrammar is a no-op; models live on the speech server.
func (r *Recognizer) UnloadGrammar(name string) error {
	return nil
}

// DTMF is not supported by the speech service and is ignored.
func (r *Recognizer) DTMF(digits string) error {
	r.logger.Warn().Str("digits", digits).Msg("DTMF recognition not implemented")
	return nil
}

// Phase returns the current phase.
func (r *Recognizer) Phase() Phase {
	return r.phase
}

// HeardSpeech reports whether speech was confirmed in the current attempt.
func (r *Recognizer) HeardSpeech() bool {
	return r.att != nil && r.att.det.HeardSpeech
}

// Detection returns a copy of the current attempt's detection state.
func (r *Recognizer) Detection() DetectionState {
	if r.att == nil {
		return DetectionState{}
	}
	return r.att.det
}

// FinalizeReason returns why the current attempt stopped listening, or ""
// while it is still listening.
func (r *Recognizer) FinalizeReason() string {
	if r.att == nil {
		return ""
	}
	return r.att.reason
}

// Results returns the hypotheses of the last attempt once it is Done.
func (r *Recognizer) Results() []Hypothesis {
	if r.phase != PhaseDone {
		return nil
	}
	return r.results
}

// Close tears the recognizer down. A live session is closed immediately
// without waiting for a final result.
func (r *Recognizer) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if r.att != nil && r.att.session != nil {
		r.notice().Str("phase", r.phase.String()).Msg("Closing live recognition session")
		r.release("cancelled")
	}
	r.phase = PhaseNotReady
	return nil
}
