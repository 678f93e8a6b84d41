package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Call metrics
	activeCalls = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voise_gateway_active_calls",
		Help: "Number of active media streams",
	})

	totalCalls = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voise_gateway_calls_total",
		Help: "Total number of media streams processed",
	})

	callDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voise_gateway_call_duration_seconds",
		Help:    "Duration of media streams in seconds",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	})

	// Recognition metrics
	activeAttempts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voise_gateway_recognition_active_attempts",
		Help: "Number of recognition attempts currently holding a streaming session",
	})

	attemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voise_gateway_recognition_attempts_total",
		Help: "Recognition attempts by outcome",
	}, []string{"outcome"}) // outcome: "done", "error", "cancelled"

	finalizeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voise_gateway_recognition_finalize_total",
		Help: "Finalize triggers by reason",
	}, []string{"reason"})

	speechOnsets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voise_gateway_recognition_speech_onsets_total",
		Help: "Attempts in which speech was detected",
	})

	pushFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voise_gateway_recognition_push_failures_total",
		Help: "Audio frames the streaming session failed to accept",
	})

	stopLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voise_gateway_recognition_stop_latency_seconds",
		Help:    "Latency of the blocking stop-and-collect call in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
	})

	// TTS metrics
	ttsRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voise_gateway_tts_requests_total",
		Help: "Total number of TTS requests",
	}, []string{"status"})

	ttsLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voise_gateway_tts_latency_seconds",
		Help:    "TTS playback duration in seconds",
		Buckets: []float64{0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
	})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voise_gateway_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "voise_gateway_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voise_gateway_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})

	// Audio metrics
	audioBytesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voise_gateway_audio_bytes_total",
		Help: "Total audio bytes processed",
	}, []string{"direction"}) // direction: "in" or "out"
)

// Metrics tracks metrics for a single call
type Metrics struct {
	callID       string
	startTime    time.Time
	ttsStartTime time.Time
	mu           sync.Mutex
}

// NewCallMetrics creates a new metrics tracker for a call
func NewCallMetrics(callID string) *Metrics {
	return &Metrics{
		callID:    callID,
		startTime: time.Now(),
	}
}

// RecordCallStart records the start of a call
func (m *Metrics) RecordCallStart() {
	activeCalls.Inc()
	totalCalls.Inc()
}

// RecordCallEnd records the end of a call
func (m *Metrics) RecordCallEnd() {
	activeCalls.Dec()
	duration := time.Since(m.startTime).Seconds()
	callDuration.Observe(duration)
}

// RecordTTSStart records the start of a prompt playback
func (m *Metrics) RecordTTSStart() {
	m.mu.Lock()
	m.ttsStartTime = time.Now()
	m.mu.Unlock()
}

// RecordTTSEnd records the end of a prompt playback
func (m *Metrics) RecordTTSEnd(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.ttsStartTime.IsZero() {
		latency := time.Since(m.ttsStartTime).Seconds()
		ttsLatency.Observe(latency)
	}

	status := "success"
	if !success {
		status = "error"
	}
	ttsRequests.WithLabelValues(status).Inc()
}

// RecordError records an error
func (m *Metrics) RecordError(errorType, component string) {
	RecordError(errorType, component)
}

// RecordAudioBytes records audio bytes processed
func (m *Metrics) RecordAudioBytes(direction string, bytes int64) {
	audioBytesProcessed.WithLabelValues(direction).Add(float64(bytes))
}

// RecordError records an error outside of a call scope
func RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordAttemptStart records a recognition attempt that opened its session
func RecordAttemptStart() {
	activeAttempts.Inc()
}

// RecordAttemptEnd records the release of an attempt's session
func RecordAttemptEnd(outcome string) {
	activeAttempts.Dec()
	attemptsTotal.WithLabelValues(outcome).Inc()
}

// RecordFinalize records why an attempt stopped listening
func RecordFinalize(reason string) {
	finalizeTotal.WithLabelValues(reason).Inc()
}

// RecordSpeechOnset records confirmed speech in an attempt
func RecordSpeechOnset() {
	speechOnsets.Inc()
}

// RecordPushFailure records a frame the streaming session rejected
func RecordPushFailure() {
	pushFailures.Inc()
}

// ObserveStopLatency records the duration of a stop-and-collect call
func ObserveStopLatency(d time.Duration) {
	stopLatency.Observe(d.Seconds())
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}
