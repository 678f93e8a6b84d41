package telephony

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/lexiqai/voise-gateway/internal/audio"
	"github.com/lexiqai/voise-gateway/internal/config"
	"github.com/lexiqai/voise-gateway/internal/observability"
	"github.com/lexiqai/voise-gateway/internal/speech"
	"github.com/lexiqai/voise-gateway/internal/tts"
)

const (
	// Twilio media streams carry 8kHz μ-law in 20 ms frames.
	channelEncoding   = audio.EncodingMulaw
	channelSampleRate = 8000
	frameBytes        = 160

	inboundQueueSize = 50
	writeTimeout     = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// In production, validate origin against Twilio's IP ranges
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// Services are the shared backends a call uses. Either may be nil when it
// was disabled at startup.
type Services struct {
	Engine *speech.Engine
	Synth  tts.Synthesizer
}

// CallSession holds the state of a single phone call
type CallSession struct {
	conn   *websocket.Conn
	cancel context.CancelFunc

	engine *speech.Engine
	synth  tts.Synthesizer

	// State management
	mu        sync.RWMutex
	callSid   string
	streamSid string
	params    CallParams
	closed    bool
	writeMu   sync.Mutex
	startOnce sync.Once
	started   chan struct{}

	// Audio buffers
	inBuffer  *audio.RingBuffer // Reassembles Twilio payloads into frames
	outBuffer *audio.RingBuffer // Frames prompt audio sent back to Twilio

	// Inbound frames, closed by the reader when the stream ends
	frames  chan audio.Frame
	pending *audio.Frame
	dtmf    chan string

	// Observability
	correlationID string
	metrics       *observability.Metrics
	logger        zerolog.Logger
}

// NewCallSession creates a new call session
func NewCallSession(conn *websocket.Conn, cfg *config.Config, svc Services, cancel context.CancelFunc) *CallSession {
	correlationID := observability.NewCorrelationID()

	return &CallSession{
		conn:          conn,
		cancel:        cancel,
		engine:        svc.Engine,
		synth:         svc.Synth,
		started:       make(chan struct{}),
		inBuffer:      audio.NewRingBuffer(cfg.AudioBufferSize),
		outBuffer:     audio.NewRingBuffer(cfg.AudioBufferSize),
		frames:        make(chan audio.Frame, inboundQueueSize),
		dtmf:          make(chan string, 16),
		correlationID: correlationID,
		metrics:       observability.NewCallMetrics(correlationID),
		logger:        observability.WithCorrelationID(correlationID),
	}
}

// HandleTwilioWS is the main entry point for Twilio WebSocket connections
func HandleTwilioWS(cfg *config.Config, svc Services) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade already replied to the client
			log.Warn().Err(err).Msg("Failed to upgrade connection to WebSocket")
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		session := NewCallSession(conn, cfg, svc, cancel)
		session.metrics.RecordCallStart()
		defer session.metrics.RecordCallEnd()
		session.logger.Info().Msg("New Twilio WebSocket connection established")

		g, gctx := errgroup.WithContext(ctx)
		g.Go(session.readLoop)
		g.Go(func() error { return session.runDialog(gctx) })

		if err := g.Wait(); err != nil {
			session.logger.Warn().Err(err).Msg("Call session ended with error")
			return
		}
		session.logger.Info().Str("call_sid", session.CallSid()).Msg("Call session ended")
	}
}

// readLoop handles all incoming WebSocket messages from Twilio. It returns
// when the stream stops or the socket closes, and hangs up the dialog.
func (s *CallSession) readLoop() error {
	defer s.cancel()
	defer close(s.frames)

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if s.isClosed() {
				return nil
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Warn().Err(err).Msg("WebSocket read error")
			}
			return nil
		}

		var msg TwilioMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			s.logger.Error().Err(err).Msg("Failed to parse Twilio message")
			continue
		}

		switch msg.Event {
		case "connected":
			s.logger.Debug().Msg("Twilio stream connected")

		case "start":
			s.handleStart(&msg)

		case "media":
			if msg.Media != nil {
				s.handleMedia(msg.Media)
			}

		case "mark":
			if msg.Mark != nil {
				s.logger.Debug().Str("mark", msg.Mark.Name).Msg("Playback mark reached")
			}

		case "dtmf":
			if msg.DTMF != nil {
				select {
				case s.dtmf <- msg.DTMF.Digit:
				default:
				}
			}

		case "stop":
			s.logger.Info().Str("call_sid", s.CallSid()).Msg("Call stopped")
			return nil

		default:
			s.logger.Debug().Str("event", msg.Event).Msg("Unknown Twilio event")
		}
	}
}

func (s *CallSession) handleStart(msg *TwilioMessage) {
	if msg.Start == nil {
		s.logger.Warn().Msg("Start event without payload")
		return
	}

	s.mu.Lock()
	s.callSid = msg.Start.CallSid
	s.streamSid = msg.StreamSid
	if s.streamSid == "" {
		s.streamSid = msg.Start.StreamSid
	}
	s.params = parseCallParams(msg.Start.CustomParameters)
	params := s.params
	s.mu.Unlock()

	s.logger.Info().
		Str("call_sid", msg.Start.CallSid).
		Str("stream_sid", msg.StreamSid).
		Str("lang", params.Language).
		Str("grammar", params.Grammar).
		Bool("prompt", params.Prompt != "").
		Msg("Call started")

	s.startOnce.Do(func() { close(s.started) })
}

// handleMedia decodes a media payload and queues whole frames for the dialog
func (s *CallSession) handleMedia(media *TwilioMedia) {
	payload := media.Payload
	if payload == "" {
		payload = media.Chunk
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to decode base64 audio")
		return
	}
	s.metrics.RecordAudioBytes("in", int64(len(data)))

	if written := s.inBuffer.Write(data); written < len(data) {
		s.logger.Warn().Int("dropped", len(data)-written).Msg("Inbound audio buffer overflow")
	}
	for {
		frame, ok := s.inBuffer.NextFrame(frameBytes, false)
		if !ok {
			return
		}
		select {
		case s.frames <- audio.Frame{Data: frame, Encoding: channelEncoding, SampleRate: channelSampleRate}:
		default:
			s.logger.Warn().Msg("Inbound frame queue full, dropping audio frame")
		}
	}
}

// sendJSON writes one message to Twilio. Gorilla connections allow a single
// concurrent writer.
func (s *CallSession) sendJSON(v interface{}) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.isClosed() {
		return tts.ErrHangup
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := s.conn.WriteJSON(v); err != nil {
		return fmt.Errorf("write to Twilio: %w", err)
	}
	return nil
}

// sendMedia sends one outbound audio frame to Twilio
func (s *CallSession) sendMedia(data []byte) error {
	if err := s.sendJSON(outboundMedia{
		Event:     "media",
		StreamSid: s.StreamSid(),
		Media:     &TwilioMedia{Payload: base64.StdEncoding.EncodeToString(data)},
	}); err != nil {
		s.metrics.RecordError("twilio_send_error", "telephony")
		return err
	}
	s.metrics.RecordAudioBytes("out", int64(len(data)))
	return nil
}

func (s *CallSession) sendMark(name string) error {
	return s.sendJSON(outboundMedia{
		Event:     "mark",
		StreamSid: s.StreamSid(),
		Mark:      &TwilioMark{Name: name},
	})
}

// clearPlayback drops queued prompt audio on both sides of the stream
func (s *CallSession) clearPlayback() {
	dropped := s.outBuffer.Clear()
	if err := s.sendJSON(outboundMedia{Event: "clear", StreamSid: s.StreamSid()}); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to clear playback")
		return
	}
	s.logger.Debug().Int("dropped", dropped).Msg("Playback cleared on speech")
}

func (s *CallSession) sendRecognition(result RecognitionResult) {
	event := RecognitionEvent{
		Event:       "recognition",
		StreamSid:   s.StreamSid(),
		Recognition: result,
	}
	if err := s.sendJSON(event); err != nil && !errors.Is(err, tts.ErrHangup) {
		s.logger.Error().Err(err).Msg("Failed to send recognition result")
	}
}

// close shuts the socket once
func (s *CallSession) close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "hangup")
	s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	s.writeMu.Unlock()

	s.cancel()
	return s.conn.Close()
}

func (s *CallSession) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// CallSid returns the call SID
func (s *CallSession) CallSid() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.callSid
}

// StreamSid returns the stream SID
func (s *CallSession) StreamSid() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.streamSid
}

// Params returns the dialog parameters of the call
func (s *CallSession) Params() CallParams {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.params
}
