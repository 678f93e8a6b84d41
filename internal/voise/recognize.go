package voise

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/lexiqai/voise-gateway/internal/speech"
)

// Open starts a streaming recognition. The server must acknowledge the
// start message with result code 201.
func (c *Client) Open(ctx context.Context, params speech.OpenParams) (speech.Session, error) {
	streamCtx, cancel := context.WithCancel(ctx)

	stream, err := c.conn.NewStream(streamCtx, &ServiceDesc.Streams[0], methodRecognize)
	if err != nil {
		cancel()
		return nil, speech.NewError(speech.ErrConnection, "open", err)
	}

	start, err := newMessage(map[string]interface{}{
		fieldType:       typeStart,
		fieldEncoding:   params.Encoding,
		fieldSampleRate: params.SampleRate,
		fieldLang:       params.Language,
		fieldModelName:  params.ModelName,
		fieldASREngine:  params.ASREngine,
	})
	if err != nil {
		cancel()
		return nil, speech.NewError(speech.ErrProtocol, "open", err)
	}
	if err := stream.SendMsg(start); err != nil {
		cancel()
		return nil, speech.NewError(speech.ErrConnection, "open", err)
	}

	ack := new(structpb.Struct)
	if err := stream.RecvMsg(ack); err != nil {
		cancel()
		return nil, speech.NewError(speech.ErrConnection, "open", err)
	}
	if code, _ := resultCode(ack); code != CodeAccepted {
		cancel()
		return nil, &speech.Error{
			Kind: speech.ErrProtocol,
			Op:   "start",
			Err:  fmt.Errorf("result_code %d: %s", code, stringField(ack, fieldResultMessage)),
		}
	}

	c.logger.Debug().
		Str("language", params.Language).
		Str("model", params.ModelName).
		Msg("Recognition stream accepted")

	return &recognizeSession{stream: stream, cancel: cancel, logger: c.logger}, nil
}

// recognizeSession is one StreamingRecognize call.
type recognizeSession struct {
	mu       sync.Mutex
	stream   grpc.ClientStream
	cancel   context.CancelFunc
	logger   zerolog.Logger
	stopping bool
	stopped  bool
	closed   bool
}

func (s *recognizeSession) Push(audio []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.closed:
		return speech.ErrSessionClosed
	case s.stopping || s.stopped:
		return speech.ErrSessionStopped
	}

	if err := s.stream.SendMsg(audioMessage(audio)); err != nil {
		return fmt.Errorf("push audio: %w", err)
	}
	return nil
}

func (s *recognizeSession) StopAndCollect(ctx context.Context) (*speech.Response, error) {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return nil, speech.ErrSessionClosed
	case s.stopping:
		s.mu.Unlock()
		return nil, speech.ErrStopInProgress
	case s.stopped:
		s.mu.Unlock()
		return nil, speech.ErrSessionStopped
	}
	s.stopping = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.stopping = false
		s.stopped = true
		s.mu.Unlock()
	}()

	if err := s.stream.CloseSend(); err != nil {
		return nil, speech.NewError(speech.ErrConnection, "stop", err)
	}

	type result struct {
		msg *structpb.Struct
		err error
	}
	done := make(chan result, 1)
	go func() {
		for {
			msg := new(structpb.Struct)
			if err := s.stream.RecvMsg(msg); err != nil {
				if errors.Is(err, io.EOF) {
					err = errors.New("stream ended without a result")
				}
				done <- result{err: err}
				return
			}
			// Skip anything that is not a final result, such as late acks
			// without a code.
			if _, ok := resultCode(msg); ok {
				done <- result{msg: msg}
				return
			}
		}
	}()

	select {
	case <-ctx.Done():
		s.cancel()
		return nil, speech.NewError(speech.ErrConnection, "stop", ctx.Err())
	case r := <-done:
		if r.err != nil {
			return nil, speech.NewError(speech.ErrConnection, "stop", r.err)
		}
		if code, _ := resultCode(r.msg); code != CodeOK {
			return nil, &speech.Error{
				Kind: speech.ErrProtocol,
				Op:   "stop",
				Err:  fmt.Errorf("result_code %d: %s", code, stringField(r.msg, fieldResultMessage)),
			}
		}
		return &speech.Response{
			Utterance:   stringField(r.msg, fieldUtterance),
			Intent:      stringField(r.msg, fieldIntent),
			Confidence:  numberField(r.msg, fieldConfidence),
			Probability: numberField(r.msg, fieldProbability),
		}, nil
	}
}

func (s *recognizeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return speech.ErrSessionClosed
	}
	s.closed = true
	s.cancel()
	return nil
}
