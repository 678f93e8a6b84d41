package telephony

import (
	"context"
	"time"

	"github.com/lexiqai/voise-gateway/internal/audio"
	"github.com/lexiqai/voise-gateway/internal/tts"
)

// CallSession is the tts.Channel of a call. Only the dialog goroutine reads
// frames.
var _ tts.Channel = (*CallSession)(nil)

// Format returns the encoding and sample rate of the media stream
func (s *CallSession) Format() (string, int) {
	return channelEncoding, channelSampleRate
}

// WaitForFrame blocks until an inbound frame is queued or timeout elapses
func (s *CallSession) WaitForFrame(ctx context.Context, timeout time.Duration) (bool, error) {
	if s.pending != nil {
		return true, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case frame, ok := <-s.frames:
		if !ok {
			return false, tts.ErrHangup
		}
		s.pending = &frame
		return true, nil
	case <-timer.C:
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// ReadFrame returns the next inbound frame, or tts.ErrHangup once the
// stream has ended
func (s *CallSession) ReadFrame(ctx context.Context) (audio.Frame, error) {
	if s.pending != nil {
		frame := *s.pending
		s.pending = nil
		return frame, nil
	}

	select {
	case frame, ok := <-s.frames:
		if !ok {
			return audio.Frame{}, tts.ErrHangup
		}
		return frame, nil
	case <-ctx.Done():
		return audio.Frame{}, ctx.Err()
	}
}

// WriteFrame queues outbound audio and sends every complete frame
func (s *CallSession) WriteFrame(ctx context.Context, data []byte) error {
	if written := s.outBuffer.Write(data); written < len(data) {
		s.logger.Warn().Int("dropped", len(data)-written).Msg("Outbound audio buffer overflow")
	}
	return s.drainOutbound(false)
}

// drainOutbound sends buffered audio in whole frames. With flush set the
// trailing partial frame is sent too.
func (s *CallSession) drainOutbound(flush bool) error {
	for {
		frame, ok := s.outBuffer.NextFrame(frameBytes, flush)
		if !ok {
			return nil
		}
		if err := s.sendMedia(frame); err != nil {
			return err
		}
	}
}

// Hangup ends the call by closing the media stream
func (s *CallSession) Hangup() error {
	s.logger.Info().Msg("Hanging up call")
	return s.close()
}
