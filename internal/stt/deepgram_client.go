package stt

import (
	"context"
	"fmt"
	"strings"
	"sync"

	websocketv1api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket"
	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lexiqai/voise-gateway/internal/speech"
)

// messageCallbackHandler implements the LiveMessageCallback interface
// It embeds the default handler and overrides only the methods we need to customize
type messageCallbackHandler struct {
	*websocketv1api.DefaultCallbackHandler // Embed default handler for methods we don't override
	session                                *deepgramSession
}

// Message collects final transcripts
func (m *messageCallbackHandler) Message(message *msginterfaces.MessageResponse) error {
	m.session.handleMessage(message)
	return nil
}

// Error records the failure so a pending stop returns it
func (m *messageCallbackHandler) Error(errorResponse *msginterfaces.ErrorResponse) error {
	m.session.handleError(fmt.Errorf("deepgram %s: %s", errorResponse.ErrCode, errorResponse.ErrMsg))
	return nil
}

// Close marks the end of the result stream
func (m *messageCallbackHandler) Close(closeResponse *msginterfaces.CloseResponse) error {
	m.session.finish()
	return nil
}

// DeepgramClient implements speech.SessionClient using Deepgram's streaming API
type DeepgramClient struct {
	apiKey string
	model  string
	logger zerolog.Logger
}

// NewDeepgramClient creates a new Deepgram streaming client
func NewDeepgramClient(apiKey, model string) *DeepgramClient {
	return &DeepgramClient{
		apiKey: apiKey,
		model:  model,
		logger: log.With().Str("component", "stt").Str("backend", "deepgram").Logger(),
	}
}

// Open starts a new Deepgram streaming transcription session
func (d *DeepgramClient) Open(ctx context.Context, params speech.OpenParams) (speech.Session, error) {
	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:          d.model,
		Language:       params.Language,
		Punctuate:      true,
		InterimResults: false,
		Encoding:       deepgramEncoding(params.Encoding),
		Channels:       1,
		SampleRate:     params.SampleRate,
	}
	cOptions := &interfaces.ClientOptions{
		EnableKeepAlive: true,
	}

	s := newDeepgramSession(d.logger)
	callback := &messageCallbackHandler{
		DefaultCallbackHandler: websocketv1api.NewDefaultCallbackHandler(),
		session:                s,
	}

	client, err := listenClient.NewWSUsingCallback(ctx, d.apiKey, cOptions, tOptions, callback)
	if err != nil {
		return nil, speech.NewError(speech.ErrConnection, "open", fmt.Errorf("failed to create Deepgram client: %w", err))
	}
	if !client.Connect() {
		return nil, speech.NewError(speech.ErrConnection, "open", fmt.Errorf("deepgram connection failed"))
	}
	s.client = client

	d.logger.Debug().
		Str("model", d.model).
		Str("language", params.Language).
		Str("encoding", tOptions.Encoding).
		Msg("Deepgram streaming session started")
	return s, nil
}

// Ping reports whether the client is usable
func (d *DeepgramClient) Ping(ctx context.Context) error {
	if d.apiKey == "" {
		return fmt.Errorf("deepgram API key is not configured")
	}
	return nil
}

func deepgramEncoding(encoding string) string {
	switch strings.ToUpper(encoding) {
	case "MULAW", "PCMU":
		return "mulaw"
	case "ALAW", "PCMA":
		return "alaw"
	default:
		return "linear16"
	}
}

// liveClient is the part of the Deepgram websocket client a session uses
type liveClient interface {
	Write(p []byte) (int, error)
	Finish()
	Stop()
}

type deepgramSession struct {
	client liveClient
	logger zerolog.Logger

	mu          sync.Mutex
	finals      []string
	confidences []float64
	err         error
	stopping    bool
	closed      bool
	done        chan struct{}
	doneOnce    sync.Once
}

func newDeepgramSession(logger zerolog.Logger) *deepgramSession {
	return &deepgramSession{
		logger: logger,
		done:   make(chan struct{}),
	}
}

func (s *deepgramSession) handleMessage(msg *msginterfaces.MessageResponse) {
	if msg == nil || !msg.IsFinal || len(msg.Channel.Alternatives) == 0 {
		return
	}
	alt := msg.Channel.Alternatives[0]
	if alt.Transcript == "" {
		return
	}

	s.mu.Lock()
	s.finals = append(s.finals, alt.Transcript)
	s.confidences = append(s.confidences, alt.Confidence)
	s.mu.Unlock()

	s.logger.Debug().Str("transcript", alt.Transcript).Float64("confidence", alt.Confidence).Msg("Deepgram final transcription")
}

func (s *deepgramSession) handleError(err error) {
	s.logger.Error().Err(err).Msg("Deepgram error")
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
	s.finish()
}

func (s *deepgramSession) finish() {
	s.doneOnce.Do(func() { close(s.done) })
}

// Push sends an audio chunk to Deepgram
func (s *deepgramSession) Push(audio []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return speech.ErrSessionClosed
	}
	if s.stopping {
		s.mu.Unlock()
		return speech.ErrStopInProgress
	}
	s.mu.Unlock()

	if _, err := s.client.Write(audio); err != nil {
		return speech.NewError(speech.ErrStreamPush, "push", fmt.Errorf("failed to send audio to Deepgram: %w", err))
	}
	return nil
}

// StopAndCollect flushes the stream and returns the concatenated final
// transcripts
func (s *deepgramSession) StopAndCollect(ctx context.Context) (*speech.Response, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, speech.ErrSessionClosed
	}
	if s.stopping {
		s.mu.Unlock()
		return nil, speech.ErrSessionStopped
	}
	s.stopping = true
	s.mu.Unlock()

	s.client.Finish()

	select {
	case <-s.done:
	case <-ctx.Done():
		return nil, speech.NewError(speech.ErrProtocol, "stop", ctx.Err())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, speech.NewError(speech.ErrProtocol, "stop", s.err)
	}

	resp := &speech.Response{
		Utterance:   strings.Join(s.finals, " "),
		Probability: 1,
	}
	if len(s.confidences) > 0 {
		sum := 0.0
		for _, c := range s.confidences {
			sum += c
		}
		resp.Confidence = sum / float64(len(s.confidences))
	}
	return resp, nil
}

// Close stops the websocket client
func (s *deepgramSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return speech.ErrSessionClosed
	}
	s.closed = true
	s.mu.Unlock()

	s.client.Stop()
	s.finish()
	return nil
}
