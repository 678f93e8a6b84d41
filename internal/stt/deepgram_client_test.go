package stt

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voise-gateway/internal/speech"
)

type fakeLive struct {
	session  *deepgramSession
	written  int
	writeErr error
	finished bool
	stopped  bool
}

func (f *fakeLive) Write(p []byte) (int, error) {
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	f.written += len(p)
	return len(p), nil
}

func (f *fakeLive) Finish() {
	f.finished = true
	go f.session.finish()
}

func (f *fakeLive) Stop() { f.stopped = true }

func newTestSession() (*deepgramSession, *fakeLive) {
	s := newDeepgramSession(zerolog.Nop())
	live := &fakeLive{session: s}
	s.client = live
	return s, live
}

func message(t *testing.T, raw string) *msginterfaces.MessageResponse {
	t.Helper()
	var msg msginterfaces.MessageResponse
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatalf("Failed to decode message: %v", err)
	}
	return &msg
}

func TestDeepgramSession_CollectsFinals(t *testing.T) {
	s, live := newTestSession()

	if err := s.Push(make([]byte, 320)); err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	s.handleMessage(message(t, `{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"qua","confidence":0.5}]}}`))
	s.handleMessage(message(t, `{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"quero","confidence":0.8}]}}`))
	s.handleMessage(message(t, `{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"pizza","confidence":0.6}]}}`))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	resp, err := s.StopAndCollect(ctx)
	if err != nil {
		t.Fatalf("StopAndCollect failed: %v", err)
	}

	if resp.Utterance != "quero pizza" {
		t.Errorf("Expected utterance %q, got %q", "quero pizza", resp.Utterance)
	}
	if resp.Confidence < 0.69 || resp.Confidence > 0.71 {
		t.Errorf("Expected mean confidence 0.7, got %f", resp.Confidence)
	}
	if resp.Probability != 1 {
		t.Errorf("Expected probability 1, got %f", resp.Probability)
	}
	if !live.finished || live.written != 320 {
		t.Errorf("Expected finish after 320 bytes, got finished=%v written=%d", live.finished, live.written)
	}

	if _, err := s.StopAndCollect(ctx); !errors.Is(err, speech.ErrSessionStopped) {
		t.Errorf("Expected ErrSessionStopped, got %v", err)
	}
	if err := s.Push([]byte{0}); !errors.Is(err, speech.ErrStopInProgress) {
		t.Errorf("Expected ErrStopInProgress, got %v", err)
	}
}

func TestDeepgramSession_ErrorFailsStop(t *testing.T) {
	s, _ := newTestSession()
	s.handleError(errors.New("deepgram NET-0001: closed"))

	_, err := s.StopAndCollect(context.Background())
	if !errors.Is(err, speech.ErrProtocol) {
		t.Errorf("Expected protocol error, got %v", err)
	}
}

func TestDeepgramSession_StopTimeout(t *testing.T) {
	s := newDeepgramSession(zerolog.Nop())
	s.client = &fakeLive{} // never signals the end of results

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.StopAndCollect(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}

func TestDeepgramSession_PushFailure(t *testing.T) {
	s, live := newTestSession()
	live.writeErr = errors.New("broken pipe")

	if err := s.Push([]byte{0}); !errors.Is(err, speech.ErrStreamPush) {
		t.Errorf("Expected stream push error, got %v", err)
	}
}

func TestDeepgramSession_Close(t *testing.T) {
	s, live := newTestSession()

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !live.stopped {
		t.Error("Expected client to be stopped")
	}
	if err := s.Close(); !errors.Is(err, speech.ErrSessionClosed) {
		t.Errorf("Expected ErrSessionClosed, got %v", err)
	}
	if err := s.Push([]byte{0}); !errors.Is(err, speech.ErrSessionClosed) {
		t.Errorf("Expected ErrSessionClosed on push, got %v", err)
	}
}

func TestDeepgramEncoding(t *testing.T) {
	cases := map[string]string{
		"LINEAR16": "linear16",
		"MULAW":    "mulaw",
		"pcma":     "alaw",
		"":         "linear16",
	}
	for in, want := range cases {
		if got := deepgramEncoding(in); got != want {
			t.Errorf("deepgramEncoding(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDeepgramClient_Ping(t *testing.T) {
	if err := NewDeepgramClient("", "nova-2").Ping(context.Background()); err == nil {
		t.Error("Expected error without an API key")
	}
	if err := NewDeepgramClient("key", "nova-2").Ping(context.Background()); err != nil {
		t.Errorf("Expected ping to succeed, got %v", err)
	}
}
