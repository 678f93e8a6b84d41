package voise

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/lexiqai/voise-gateway/internal/resilience"
	"github.com/lexiqai/voise-gateway/internal/speech"
	"github.com/lexiqai/voise-gateway/internal/tts"
)

// fakeServer is an in-memory Voise server.
type fakeServer struct {
	mu sync.Mutex

	startCode  int // result code of the start ack, 201 when zero
	finalCode  int // result code of the final result, 200 when zero
	hang       bool
	utterance  string
	intent     string
	confidence float64
	chunks     [][]byte

	starts     []*structpb.Struct
	audioBytes int
	synthReqs  []*structpb.Struct
}

func (f *fakeServer) StreamingRecognize(stream grpc.ServerStream) error {
	start := new(structpb.Struct)
	if err := stream.RecvMsg(start); err != nil {
		return err
	}

	f.mu.Lock()
	f.starts = append(f.starts, start)
	startCode := f.startCode
	f.mu.Unlock()

	if startCode == 0 {
		startCode = CodeAccepted
	}
	ack, _ := ResultMessage(startCode, "start", nil)
	if err := stream.SendMsg(ack); err != nil {
		return err
	}
	if startCode != CodeAccepted {
		return nil
	}

	for {
		msg := new(structpb.Struct)
		err := stream.RecvMsg(msg)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		data, _, err := DecodeAudio(msg)
		if err != nil {
			return err
		}
		f.mu.Lock()
		f.audioBytes += len(data)
		f.mu.Unlock()
	}

	f.mu.Lock()
	hang := f.hang
	f.mu.Unlock()
	if hang {
		<-stream.Context().Done()
		return stream.Context().Err()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	code := f.finalCode
	if code == 0 {
		code = CodeOK
	}
	final, _ := ResultMessage(code, "result", map[string]interface{}{
		fieldUtterance:   f.utterance,
		fieldIntent:      f.intent,
		fieldConfidence:  f.confidence,
		fieldProbability: 1.0,
	})
	return stream.SendMsg(final)
}

func (f *fakeServer) Synthesize(req *structpb.Struct, stream grpc.ServerStream) error {
	f.mu.Lock()
	f.synthReqs = append(f.synthReqs, req)
	startCode := f.startCode
	chunks := f.chunks
	f.mu.Unlock()

	if startCode == 0 {
		startCode = CodeAccepted
	}
	ack, _ := ResultMessage(startCode, "synth", nil)
	if err := stream.SendMsg(ack); err != nil {
		return err
	}
	if startCode != CodeAccepted {
		return nil
	}
	for _, chunk := range chunks {
		if err := stream.SendMsg(AudioMessage(chunk)); err != nil {
			return err
		}
	}
	return nil
}

func newTestClient(t *testing.T, srv *fakeServer) *Client {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer()
	RegisterServer(s, srv)
	go s.Serve(lis)
	t.Cleanup(s.Stop)

	client, err := Dial(context.Background(), "bufnet", Options{
		DialTimeout: time.Second,
		DialOptions: []grpc.DialOption{
			grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
				return lis.DialContext(ctx)
			}),
		},
	})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func testParams() speech.OpenParams {
	return speech.OpenParams{
		Encoding:   "LINEAR16",
		SampleRate: 8000,
		Language:   "pt-BR",
		ModelName:  "menu",
		ASREngine:  "me",
	}
}

func TestClient_Recognize(t *testing.T) {
	srv := &fakeServer{utterance: "sim", intent: "yes", confidence: 0.8}
	client := newTestClient(t, srv)

	session, err := client.Open(context.Background(), testParams())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer session.Close()

	for i := 0; i < 3; i++ {
		if err := session.Push(make([]byte, 320)); err != nil {
			t.Fatalf("Push failed: %v", err)
		}
	}

	resp, err := session.StopAndCollect(context.Background())
	if err != nil {
		t.Fatalf("StopAndCollect failed: %v", err)
	}
	if resp.Utterance != "sim" || resp.Intent != "yes" || resp.Confidence != 0.8 || resp.Probability != 1.0 {
		t.Errorf("Unexpected response %+v", resp)
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.audioBytes != 960 {
		t.Errorf("Expected 960 audio bytes at the server, got %d", srv.audioBytes)
	}
	start := srv.starts[0]
	if stringField(start, fieldType) != typeStart {
		t.Errorf("Expected start message, got %v", start)
	}
	if stringField(start, fieldEncoding) != "LINEAR16" || numberField(start, fieldSampleRate) != 8000 {
		t.Errorf("Unexpected audio format in %v", start)
	}
	if stringField(start, fieldLang) != "pt-BR" || stringField(start, fieldModelName) != "menu" || stringField(start, fieldASREngine) != "me" {
		t.Errorf("Unexpected model in %v", start)
	}
}

func TestClient_OpenRejected(t *testing.T) {
	client := newTestClient(t, &fakeServer{startCode: 500})

	_, err := client.Open(context.Background(), testParams())
	if !errors.Is(err, speech.ErrProtocol) {
		t.Errorf("Expected protocol error, got %v", err)
	}
}

func TestClient_StopNonSuccess(t *testing.T) {
	client := newTestClient(t, &fakeServer{finalCode: 404})

	session, err := client.Open(context.Background(), testParams())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer session.Close()

	if _, err := session.StopAndCollect(context.Background()); !errors.Is(err, speech.ErrProtocol) {
		t.Errorf("Expected protocol error, got %v", err)
	}
}

func TestClient_StopTimeout(t *testing.T) {
	client := newTestClient(t, &fakeServer{hang: true})

	session, err := client.Open(context.Background(), testParams())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer session.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = session.StopAndCollect(ctx)
	if !errors.Is(err, speech.ErrConnection) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline connection error, got %v", err)
	}
}

func TestSession_Lifecycle(t *testing.T) {
	client := newTestClient(t, &fakeServer{})

	session, err := client.Open(context.Background(), testParams())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if _, err := session.StopAndCollect(context.Background()); err != nil {
		t.Fatalf("StopAndCollect failed: %v", err)
	}
	if _, err := session.StopAndCollect(context.Background()); !errors.Is(err, speech.ErrSessionStopped) {
		t.Errorf("Expected ErrSessionStopped, got %v", err)
	}
	if err := session.Push([]byte{0, 0}); !errors.Is(err, speech.ErrSessionStopped) {
		t.Errorf("Expected ErrSessionStopped on push, got %v", err)
	}

	if err := session.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := session.Close(); !errors.Is(err, speech.ErrSessionClosed) {
		t.Errorf("Expected ErrSessionClosed, got %v", err)
	}
	if err := session.Push([]byte{0, 0}); !errors.Is(err, speech.ErrSessionClosed) {
		t.Errorf("Expected ErrSessionClosed on push, got %v", err)
	}
}

func TestClient_Synthesize(t *testing.T) {
	srv := &fakeServer{chunks: [][]byte{make([]byte, 100), make([]byte, 100), make([]byte, 50)}}
	client := newTestClient(t, srv)

	stream, err := client.Synthesize(context.Background(), tts.Request{
		Text:       "Bem-vindo",
		Language:   "pt-BR",
		Encoding:   "ALAW",
		SampleRate: 8000,
	})
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	defer stream.Close()

	buf := make([]byte, 160)
	n, err := io.ReadFull(stream, buf)
	if n != 160 || err != nil {
		t.Fatalf("Expected a full 160 byte chunk, got %d (%v)", n, err)
	}
	n, err = io.ReadFull(stream, buf)
	if n != 90 || !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("Expected a short 90 byte chunk at utterance end, got %d (%v)", n, err)
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()
	req := srv.synthReqs[0]
	if stringField(req, fieldText) != "Bem-vindo" || stringField(req, fieldEncoding) != "ALAW" {
		t.Errorf("Unexpected synthesis request %v", req)
	}
}

func TestClient_SynthesizeRejected(t *testing.T) {
	client := newTestClient(t, &fakeServer{startCode: 503})

	_, err := client.Synthesize(context.Background(), tts.Request{Text: "oi"})
	if !errors.Is(err, speech.ErrProtocol) {
		t.Errorf("Expected protocol error, got %v", err)
	}
}

func TestClient_Ping(t *testing.T) {
	client := newTestClient(t, &fakeServer{})

	if err := client.Ping(context.Background()); err != nil {
		t.Errorf("Expected healthy connection, got %v", err)
	}

	client.Close()
	if err := client.Ping(context.Background()); err == nil {
		t.Error("Expected error after close")
	}
}

func TestDial_Unreachable(t *testing.T) {
	lis := bufconn.Listen(1024)
	lis.Close()

	_, err := Dial(context.Background(), "bufnet", Options{
		DialTimeout: 50 * time.Millisecond,
		Retry: &resilience.RetryConfig{
			MaxAttempts:       2,
			InitialBackoff:    time.Millisecond,
			MaxBackoff:        time.Millisecond,
			BackoffMultiplier: 1,
		},
		DialOptions: []grpc.DialOption{
			grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
				return lis.DialContext(ctx)
			}),
		},
	})
	if !errors.Is(err, speech.ErrConnection) {
		t.Errorf("Expected connection error, got %v", err)
	}
	if !resilience.IsRetryable(err) {
		t.Errorf("Expected the timed out dial attempt to be marked retryable, got %v", err)
	}
}

func TestDecodeAudio(t *testing.T) {
	data, ok, err := DecodeAudio(AudioMessage([]byte{1, 2, 3}))
	if err != nil || !ok || len(data) != 3 {
		t.Errorf("Expected 3 decoded bytes, got %v (%v, %v)", data, ok, err)
	}

	msg, _ := ResultMessage(CodeOK, "ok", nil)
	if _, ok, _ := DecodeAudio(msg); ok {
		t.Error("Expected no audio in a result message")
	}
	if code, ok := resultCode(msg); !ok || code != CodeOK {
		t.Errorf("Expected result code 200, got %d", code)
	}
}
