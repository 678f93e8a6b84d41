package voise

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/lexiqai/voise-gateway/internal/speech"
	"github.com/lexiqai/voise-gateway/internal/tts"
)

// Synthesize opens a synthesis stream for req. The server must acknowledge
// with result code 201 before sending audio.
func (c *Client) Synthesize(ctx context.Context, req tts.Request) (tts.Stream, error) {
	streamCtx, cancel := context.WithCancel(ctx)

	stream, err := c.conn.NewStream(streamCtx, &ServiceDesc.Streams[1], methodSynthesize)
	if err != nil {
		cancel()
		return nil, speech.NewError(speech.ErrConnection, "synthesize", err)
	}

	msg, err := newMessage(map[string]interface{}{
		fieldText:       req.Text,
		fieldEncoding:   req.Encoding,
		fieldSampleRate: req.SampleRate,
		fieldLang:       req.Language,
	})
	if err != nil {
		cancel()
		return nil, speech.NewError(speech.ErrProtocol, "synthesize", err)
	}
	if err := stream.SendMsg(msg); err != nil {
		cancel()
		return nil, speech.NewError(speech.ErrConnection, "synthesize", err)
	}
	if err := stream.CloseSend(); err != nil {
		cancel()
		return nil, speech.NewError(speech.ErrConnection, "synthesize", err)
	}

	ack := new(structpb.Struct)
	if err := stream.RecvMsg(ack); err != nil {
		cancel()
		return nil, speech.NewError(speech.ErrConnection, "synthesize", err)
	}
	if code, _ := resultCode(ack); code != CodeAccepted {
		cancel()
		return nil, &speech.Error{
			Kind: speech.ErrProtocol,
			Op:   "synthesize",
			Err:  fmt.Errorf("result_code %d: %s", code, stringField(ack, fieldResultMessage)),
		}
	}

	return &synthStream{stream: stream, cancel: cancel}, nil
}

// synthStream adapts the chunked server stream to io.Reader.
type synthStream struct {
	stream  grpc.ClientStream
	cancel  context.CancelFunc
	pending []byte
	eof     bool
}

func (s *synthStream) Read(p []byte) (int, error) {
	for len(s.pending) == 0 {
		if s.eof {
			return 0, io.EOF
		}
		msg := new(structpb.Struct)
		if err := s.stream.RecvMsg(msg); err != nil {
			if errors.Is(err, io.EOF) {
				s.eof = true
				continue
			}
			return 0, err
		}
		data, _, err := DecodeAudio(msg)
		if err != nil {
			return 0, err
		}
		s.pending = data
	}

	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

func (s *synthStream) Close() error {
	s.cancel()
	return nil
}
