package tts

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCartesiaClient_Synthesize(t *testing.T) {
	var got CartesiaRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewDecoder(r.Body).Decode(&got)

		pcm := make([]byte, 4800) // 100 ms at 24kHz
		for i := 0; i < len(pcm)/2; i++ {
			binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(1000)))
		}
		w.Write(pcm)
	}))
	defer srv.Close()

	client := NewCartesiaClient("test-key", "voice-1", "sonic").WithURL(srv.URL)
	stream, err := client.Synthesize(context.Background(), Request{
		Text:       "Olá",
		Language:   "pt",
		Encoding:   "MULAW",
		SampleRate: 8000,
	})
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	defer stream.Close()

	data, _ := io.ReadAll(stream)
	if len(data) != 800 {
		t.Errorf("Expected 800 μ-law bytes, got %d", len(data))
	}
	if got.Text != "Olá" || got.VoiceID != "voice-1" || got.OutputFormat != "pcm" {
		t.Errorf("Unexpected request %+v", got)
	}
}

func TestCartesiaClient_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewCartesiaClient("bad-key", "voice-1", "sonic").WithURL(srv.URL)
	if _, err := client.Synthesize(context.Background(), Request{Text: "Olá"}); err == nil {
		t.Error("Expected error for unauthorized request")
	}
}
