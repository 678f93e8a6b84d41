package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lexiqai/voise-gateway/internal/audio"
)

const (
	// WaitTimeout bounds each wait for an inbound frame.
	WaitTimeout = 1000 * time.Millisecond

	settlePause   = 300 * time.Millisecond
	trailingPause = 20 * time.Millisecond
	beepDuration  = 250 * time.Millisecond
	beepFrame     = 20 * time.Millisecond
)

// Say plays req on ch. For every inbound frame it pulls the same number of
// bytes from the synthesizer and writes them back, until the synthesizer
// returns a short chunk or the caller hangs up.
//
// A synthesis failure hangs up the channel unless opts.NoHangup is set.
func Say(ctx context.Context, ch Channel, synth Synthesizer, req Request, opts Options) error {
	logger := log.With().Str("component", "tts").Logger()
	debug := func() *zerolog.Event {
		if opts.Verbose {
			return logger.Info()
		}
		return logger.Debug()
	}

	if req.Text == "" {
		return errors.New("tts: text is required")
	}
	encoding, sampleRate := ch.Format()
	if req.Encoding == "" {
		req.Encoding = encoding
	}
	if req.SampleRate == 0 {
		req.SampleRate = sampleRate
	}

	fail := func(err error) error {
		logger.Error().Err(err).Str("language", req.Language).Msg("Synthesis failed")
		if !opts.NoHangup {
			if hangupErr := ch.Hangup(); hangupErr != nil {
				logger.Warn().Err(hangupErr).Msg("Failed to hang up after synthesis error")
			}
		}
		return err
	}

	stream, err := synth.Synthesize(ctx, req)
	if err != nil {
		return fail(fmt.Errorf("tts: start synthesis: %w", err))
	}
	defer stream.Close()

	debug().Str("language", req.Language).Int("text_len", len(req.Text)).Msg("Synthesis started")

	if opts.Beep {
		if err := playBeep(ctx, ch, req.Encoding, req.SampleRate); err != nil {
			return err
		}
	}

	if err := pause(ctx, settlePause); err != nil {
		return err
	}

	written, pacedMs := 0, 0
	for {
		ready, err := ch.WaitForFrame(ctx, WaitTimeout)
		if err != nil {
			return err
		}
		if !ready {
			debug().Dur("waited", WaitTimeout).Msg("No inbound frame")
			continue
		}

		frame, err := ch.ReadFrame(ctx)
		if err != nil {
			if errors.Is(err, ErrHangup) {
				debug().Msg("Hangup detected")
			}
			return err
		}

		want := len(frame.Data)
		pacedMs += frame.DurationMs()
		chunk := make([]byte, want)
		n, err := io.ReadFull(stream, chunk)
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			return fail(fmt.Errorf("tts: read synthesis: %w", err))
		}

		if n > 0 {
			if err := ch.WriteFrame(ctx, chunk[:n]); err != nil {
				logger.Error().Err(err).Msg("Failed to write frame to channel")
			}
			written += n
		}
		if n < want {
			break
		}
	}

	debug().Int("bytes", written).Int("paced_ms", pacedMs).Msg("Synthesis done")
	return pause(ctx, trailingPause)
}

func playBeep(ctx context.Context, ch Channel, encoding string, sampleRate int) error {
	tone := audio.Beep(encoding, sampleRate, int(beepDuration/time.Millisecond))
	frameBytes := sampleRate * int(beepFrame/time.Millisecond) / 1000 * audio.BytesPerSample(encoding)
	if frameBytes <= 0 {
		return nil
	}
	for len(tone) > 0 {
		n := min(frameBytes, len(tone))
		if err := ch.WriteFrame(ctx, tone[:n]); err != nil {
			return err
		}
		tone = tone[n:]
	}
	return nil
}

func pause(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
