package tts

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/lexiqai/voise-gateway/internal/audio"
)

// ErrHangup is returned by a Channel once the caller has gone.
var ErrHangup = errors.New("channel hung up")

// Request describes one prompt to synthesize.
type Request struct {
	Text       string
	Language   string
	Encoding   string // Channel encoding, e.g. MULAW or ALAW
	SampleRate int
}

// Stream is the audio of one utterance in the requested encoding. Read
// returns io.EOF once the utterance is complete.
type Stream interface {
	io.Reader
	Close() error
}

// Synthesizer opens one-shot synthesis sessions.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (Stream, error)
}

// Channel is the host side of a call. Frames are paced by the host: every
// frame read from the caller is answered with one frame of prompt audio.
type Channel interface {
	// Format returns the encoding and sample rate of the channel audio.
	Format() (encoding string, sampleRate int)
	// WaitForFrame blocks until a frame is ready or timeout elapses.
	WaitForFrame(ctx context.Context, timeout time.Duration) (bool, error)
	// ReadFrame returns the next inbound frame, or ErrHangup.
	ReadFrame(ctx context.Context) (audio.Frame, error)
	// WriteFrame queues outbound audio.
	WriteFrame(ctx context.Context, data []byte) error
	// Hangup ends the call.
	Hangup() error
}

// Options are the single-letter flags of a prompt.
type Options struct {
	Verbose  bool // v
	Beep     bool // b: beep before the prompt
	NoHangup bool // n: keep the call up when synthesis fails
}

// ParseOptions reads an option string such as "vb". Unknown letters are
// ignored.
func ParseOptions(s string) Options {
	return Options{
		Verbose:  strings.ContainsRune(s, 'v'),
		Beep:     strings.ContainsRune(s, 'b'),
		NoHangup: strings.ContainsRune(s, 'n'),
	}
}
