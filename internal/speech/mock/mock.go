// Package mock provides test doubles for the speech session client.
//
// Client counts every Open and the sessions it hands out count every Close,
// so tests can assert that each opened session is released exactly once.
package mock

import (
	"context"
	"sync"

	"github.com/lexiqai/voise-gateway/internal/speech"
)

// Client is a mock implementation of speech.SessionClient.
type Client struct {
	mu sync.Mutex

	// OpenErr, if non-nil, is returned by Open.
	OpenErr error

	// OnOpen, if set, runs inside Open before the session is returned.
	OnOpen func(params speech.OpenParams)

	// NewSession, if set, builds the session returned by Open. Otherwise a
	// default Session returning Response is used.
	NewSession func() *Session

	// Response is returned by StopAndCollect of default sessions.
	Response *speech.Response

	// PingErr, if non-nil, is returned by Ping.
	PingErr error

	// OpenCalls records the parameters of every Open call.
	OpenCalls []speech.OpenParams

	// Sessions records every session handed out, in order.
	Sessions []*Session
}

// Open records the call and returns a new Session or OpenErr.
func (c *Client) Open(ctx context.Context, params speech.OpenParams) (speech.Session, error) {
	c.mu.Lock()
	c.OpenCalls = append(c.OpenCalls, params)
	onOpen := c.OnOpen
	c.mu.Unlock()

	if onOpen != nil {
		onOpen(params)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.OpenErr != nil {
		return nil, c.OpenErr
	}

	var s *Session
	if c.NewSession != nil {
		s = c.NewSession()
	} else {
		s = &Session{Response: c.Response}
	}
	c.Sessions = append(c.Sessions, s)
	return s, nil
}

// Ping returns PingErr.
func (c *Client) Ping(ctx context.Context) error {
	return c.PingErr
}

// OpenCount returns the number of successful opens. Thread-safe.
func (c *Client) OpenCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Sessions)
}

// CloseCount returns the total Close calls across all sessions. Thread-safe.
func (c *Client) CloseCount() int {
	c.mu.Lock()
	sessions := append([]*Session(nil), c.Sessions...)
	c.mu.Unlock()

	total := 0
	for _, s := range sessions {
		total += s.CloseCount()
	}
	return total
}

// PushCount returns the total Push calls across all sessions. Thread-safe.
func (c *Client) PushCount() int {
	c.mu.Lock()
	sessions := append([]*Session(nil), c.Sessions...)
	c.mu.Unlock()

	total := 0
	for _, s := range sessions {
		total += s.PushCount()
	}
	return total
}

// Ensure Client implements speech.SessionClient at compile time.
var _ speech.SessionClient = (*Client)(nil)

// Session is a mock implementation of speech.Session.
type Session struct {
	mu sync.Mutex

	// Response is returned by StopAndCollect. A nil Response yields an
	// empty one.
	Response *speech.Response

	// PushErr, if non-nil, is returned by every Push call.
	PushErr error

	// PushErrs, if non-empty, supplies per-call errors before PushErr.
	PushErrs []error

	// StopErr, if non-nil, is returned by StopAndCollect.
	StopErr error

	// OnStop, if set, runs at the start of StopAndCollect.
	OnStop func()

	// --- Call records ---

	// Pushed records a copy of every pushed frame.
	Pushed [][]byte

	// StopCalls is the number of StopAndCollect calls.
	StopCalls int

	// CloseCalls is the number of Close calls.
	CloseCalls int
}

// Push records the frame and returns the next configured error.
func (s *Session) Push(audio []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(audio))
	copy(cp, audio)
	s.Pushed = append(s.Pushed, cp)
	if len(s.PushErrs) > 0 {
		err := s.PushErrs[0]
		s.PushErrs = s.PushErrs[1:]
		return err
	}
	return s.PushErr
}

// StopAndCollect records the call and returns Response or StopErr.
func (s *Session) StopAndCollect(ctx context.Context) (*speech.Response, error) {
	if s.OnStop != nil {
		s.OnStop()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.StopCalls++
	if s.StopErr != nil {
		return nil, s.StopErr
	}
	if s.Response == nil {
		return &speech.Response{}, nil
	}
	resp := *s.Response
	return &resp, nil
}

// Close records the call.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCalls++
	return nil
}

// PushCount returns the number of Push calls. Thread-safe.
func (s *Session) PushCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Pushed)
}

// CloseCount returns the number of Close calls. Thread-safe.
func (s *Session) CloseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CloseCalls
}

// Ensure Session implements speech.Session at compile time.
var _ speech.Session = (*Session)(nil)
