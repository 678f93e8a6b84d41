package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lexiqai/voise-gateway/internal/audio"
)

const (
	cartesiaURL        = "https://api.cartesia.ai/v1/tts"
	cartesiaSampleRate = 24000 // Cartesia outputs PCM at 24kHz
)

// CartesiaClient is a Synthesizer backed by Cartesia's TTS API.
type CartesiaClient struct {
	apiKey     string
	apiURL     string
	voiceID    string
	modelID    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// CartesiaRequest represents the request payload for Cartesia TTS API
type CartesiaRequest struct {
	Text         string  `json:"text"`
	VoiceID      string  `json:"voice_id"`
	ModelID      string  `json:"model_id,omitempty"`
	Language     string  `json:"language,omitempty"`
	OutputFormat string  `json:"output_format,omitempty"`
	SampleRate   int     `json:"sample_rate,omitempty"`
	Speed        float64 `json:"speed,omitempty"`
}

// NewCartesiaClient creates a new Cartesia TTS client
func NewCartesiaClient(apiKey, voiceID, modelID string) *CartesiaClient {
	return &CartesiaClient{
		apiKey:     apiKey,
		apiURL:     cartesiaURL,
		voiceID:    voiceID,
		modelID:    modelID,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     log.With().Str("component", "tts").Str("backend", "cartesia").Logger(),
	}
}

// WithURL overrides the API endpoint.
func (c *CartesiaClient) WithURL(url string) *CartesiaClient {
	c.apiURL = url
	return c
}

// Synthesize renders req in one request and returns the audio converted to
// the channel encoding and sample rate.
func (c *CartesiaClient) Synthesize(ctx context.Context, req Request) (Stream, error) {
	reqBody := CartesiaRequest{
		Text:         req.Text,
		VoiceID:      c.voiceID,
		ModelID:      c.modelID,
		Language:     req.Language,
		OutputFormat: "pcm",
		SampleRate:   cartesiaSampleRate,
		Speed:        1.0,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cartesia API returned status %d", resp.StatusCode)
	}

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}
	if len(pcm) == 0 {
		return nil, fmt.Errorf("cartesia returned empty audio")
	}

	sampleRate := req.SampleRate
	if sampleRate == 0 {
		sampleRate = 8000
	}
	converted, err := audio.ConvertPCM(pcm, cartesiaSampleRate, sampleRate, req.Encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to convert audio: %w", err)
	}

	c.logger.Debug().
		Int("pcm_bytes", len(pcm)).
		Int("channel_bytes", len(converted)).
		Str("encoding", req.Encoding).
		Msg("Synthesized prompt")

	return io.NopCloser(bytes.NewReader(converted)), nil
}

// Ping checks that the API accepts the configured key.
func (c *CartesiaClient) Ping(ctx context.Context) error {
	if c.apiKey == "" {
		return fmt.Errorf("cartesia API key is not configured")
	}
	return nil
}
