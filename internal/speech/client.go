package speech

import (
	"context"
)

// OpenParams describes the audio and recognition model of a new streaming
// session.
type OpenParams struct {
	Encoding   string
	SampleRate int
	Language   string
	ModelName  string
	ASREngine  string
}

// Response is the finalized result of a streaming session.
type Response struct {
	Utterance   string
	Intent      string
	Confidence  float64
	Probability float64
}

// SessionClient opens streaming recognition sessions against a remote
// speech service.
type SessionClient interface {
	Open(ctx context.Context, params OpenParams) (Session, error)
}

// Session is one remote streaming conversation. Push forwards audio
// without waiting for a result. StopAndCollect ends the stream and blocks
// for the final result; it may be called at most once. No call is valid
// after Close.
type Session interface {
	Push(audio []byte) error
	StopAndCollect(ctx context.Context) (*Response, error)
	Close() error
}

// Pinger is implemented by clients that can check the remote service
// without opening a session.
type Pinger interface {
	Ping(ctx context.Context) error
}
