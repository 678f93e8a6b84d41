package telephony

import (
	"context"
	"errors"

	"github.com/lexiqai/voise-gateway/internal/audio"
	"github.com/lexiqai/voise-gateway/internal/observability"
	"github.com/lexiqai/voise-gateway/internal/speech"
	"github.com/lexiqai/voise-gateway/internal/tts"
)

// runDialog runs one recognition attempt and plays the prompt of the call,
// if any, while the recognizer listens. Speech from the caller cuts the
// prompt. The outcome is reported to Twilio.
func (s *CallSession) runDialog(ctx context.Context) error {
	select {
	case <-s.started:
	case <-ctx.Done():
		return nil
	}
	params := s.Params()

	if s.engine == nil {
		s.logger.Warn().Msg("Speech engine disabled, no recognition for this call")
		if proceed, err := s.afterPrompt(ctx, params, s.playPrompt(ctx, s, params)); !proceed {
			return err
		}
		s.sendRecognition(RecognitionResult{Status: StatusUnavailable})
		return nil
	}

	promptCtx, cutPrompt := context.WithCancel(ctx)
	defer cutPrompt()

	rec := s.engine.NewRecognizer(
		speech.WithLogger(observability.WithCall(s.correlationID, s.CallSid())),
		speech.WithSpeechDetected(func() {
			cutPrompt()
			s.clearPlayback()
		}),
	)
	defer rec.Close()

	applyParams(rec, params)

	if err := rec.Start(ctx); err != nil {
		s.sendRecognition(RecognitionResult{Status: StatusError, Error: err.Error()})
		return nil
	}

	ch := &bargeInChannel{CallSession: s, rec: rec, cut: cutPrompt}
	if proceed, err := s.afterPrompt(ctx, params, s.playPrompt(promptCtx, ch, params)); !proceed {
		return err
	}
	if ch.err != nil {
		s.sendRecognition(failedResult(rec, ch.err))
		return nil
	}

	return s.listen(ctx, rec)
}

// afterPrompt reports whether the dialog goes on after a prompt that ended
// with err. A prompt cut by the caller speaking is not a failure.
func (s *CallSession) afterPrompt(ctx context.Context, params CallParams, err error) (bool, error) {
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, tts.ErrHangup), ctx.Err() != nil:
		return false, nil
	case errors.Is(err, context.Canceled):
		s.logger.Debug().Msg("Prompt cut by caller")
		return true, nil
	case !params.Options.NoHangup:
		// Say has hung up already
		return false, err
	default:
		s.logger.Warn().Err(err).Msg("Prompt failed, continuing with recognition")
		return true, nil
	}
}

func (s *CallSession) playPrompt(ctx context.Context, ch tts.Channel, params CallParams) error {
	if params.Prompt == "" {
		return nil
	}
	if s.synth == nil {
		s.logger.Warn().Msg("Synthesis disabled, skipping prompt")
		return nil
	}

	s.metrics.RecordTTSStart()
	err := tts.Say(ctx, ch, s.synth, tts.Request{Text: params.Prompt, Language: params.Language}, params.Options)
	if err == nil {
		err = s.drainOutbound(true)
	}
	s.metrics.RecordTTSEnd(err == nil || errors.Is(err, context.Canceled))
	if err != nil {
		return err
	}
	return s.sendMark("prompt")
}

// listen feeds inbound frames to rec until the attempt ends.
func (s *CallSession) listen(ctx context.Context, rec *speech.Recognizer) error {
	for rec.Phase() == speech.PhaseListening {
		frame, err := s.ReadFrame(ctx)
		if err != nil {
			// Caller hung up; Close releases the live session
			return nil
		}
		if err := s.feed(rec, frame); err != nil {
			s.sendRecognition(failedResult(rec, err))
			return nil
		}
	}

	if rec.Phase() == speech.PhaseDone {
		s.sendRecognition(RecognitionResult{
			Status:      StatusDone,
			Reason:      rec.FinalizeReason(),
			HeardSpeech: rec.HeardSpeech(),
			Results:     newRecognitionEntries(rec.Results()),
		})
	}
	return nil
}

// feed passes one inbound μ-law frame to rec, along with any pending DTMF.
// Undecodable frames are skipped.
func (s *CallSession) feed(rec *speech.Recognizer, frame audio.Frame) error {
	select {
	case digits := <-s.dtmf:
		rec.DTMF(digits)
	default:
	}

	pcm, err := audio.ConvertPCMUToPCM(frame.Data)
	if err != nil {
		s.logger.Debug().Err(err).Msg("Skipping undecodable frame")
		return nil
	}
	return rec.Feed(pcm)
}

func failedResult(rec *speech.Recognizer, err error) RecognitionResult {
	return RecognitionResult{
		Status:      StatusError,
		Reason:      rec.FinalizeReason(),
		HeardSpeech: rec.HeardSpeech(),
		Error:       err.Error(),
	}
}

// bargeInChannel is the channel a prompt plays on while the recognizer
// listens. Every frame read to pace the prompt is fed to the recognizer,
// and the prompt stops once the attempt leaves Listening or speech is
// detected.
type bargeInChannel struct {
	*CallSession
	rec *speech.Recognizer
	cut context.CancelFunc
	err error
}

func (c *bargeInChannel) ReadFrame(ctx context.Context) (audio.Frame, error) {
	frame, err := c.CallSession.ReadFrame(ctx)
	if err != nil {
		return frame, err
	}

	if err := c.feed(c.rec, frame); err != nil {
		c.err = err
		c.cut()
	} else if c.rec.Phase() != speech.PhaseListening {
		c.cut()
	}

	// No prompt audio answers the frame that cut the prompt
	if err := ctx.Err(); err != nil {
		return audio.Frame{}, err
	}
	return frame, nil
}

// applyParams configures rec from the call parameters. Invalid values are
// logged by the recognizer and leave the engine defaults in place.
func applyParams(rec *speech.Recognizer, params CallParams) {
	if params.Options.Verbose {
		rec.Change("verbose", "1")
	}
	if params.Language != "" {
		rec.Change("lang", params.Language)
	}
	for _, name := range recognizerSettings {
		if v, ok := params.Settings[name]; ok {
			rec.Change(name, v)
		}
	}
	if params.Grammar != "" {
		rec.ActivateGrammar(params.Grammar)
	}
	if params.NBest {
		rec.SetResultsType(true)
	}
}
