package telephony

import (
	"strings"

	"github.com/lexiqai/voise-gateway/internal/speech"
	"github.com/lexiqai/voise-gateway/internal/tts"
)

// TwilioMessage represents a message from Twilio Media Streams
type TwilioMessage struct {
	Event          string       `json:"event"`
	SequenceNumber string       `json:"sequenceNumber,omitempty"`
	StreamSid      string       `json:"streamSid,omitempty"`
	Media          *TwilioMedia `json:"media,omitempty"`
	Start          *TwilioStart `json:"start,omitempty"`
	Mark           *TwilioMark  `json:"mark,omitempty"`
	DTMF           *TwilioDTMF  `json:"dtmf,omitempty"`
}

// TwilioMedia represents the media payload in a media event
type TwilioMedia struct {
	Track     string `json:"track,omitempty"`
	Chunk     string `json:"chunk,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   string `json:"payload"` // Base64 encoded μ-law audio
}

// TwilioStart represents the start event payload
type TwilioStart struct {
	AccountSid       string            `json:"accountSid"`
	CallSid          string            `json:"callSid"`
	Tracks           []string          `json:"tracks"`
	StreamSid        string            `json:"streamSid"`
	CustomParameters map[string]string `json:"customParameters,omitempty"`
}

// TwilioMark names a playback position
type TwilioMark struct {
	Name string `json:"name"`
}

// TwilioDTMF carries one keypad digit
type TwilioDTMF struct {
	Track string `json:"track,omitempty"`
	Digit string `json:"digit"`
}

// outboundMedia is the media event sent back to Twilio
type outboundMedia struct {
	Event     string       `json:"event"`
	StreamSid string       `json:"streamSid"`
	Media     *TwilioMedia `json:"media,omitempty"`
	Mark      *TwilioMark  `json:"mark,omitempty"`
}

// Recognition statuses reported to the stream owner.
const (
	StatusDone        = "done"
	StatusError       = "error"
	StatusUnavailable = "unavailable"
)

// RecognitionEvent reports the outcome of a recognition attempt
type RecognitionEvent struct {
	Event       string            `json:"event"`
	StreamSid   string            `json:"streamSid"`
	Recognition RecognitionResult `json:"recognition"`
}

// RecognitionResult is the body of a recognition event
type RecognitionResult struct {
	Status      string             `json:"status"`
	Reason      string             `json:"reason,omitempty"`
	HeardSpeech bool               `json:"heard_speech"`
	Error       string             `json:"error,omitempty"`
	Results     []RecognitionEntry `json:"results,omitempty"`
}

// RecognitionEntry is one hypothesis
type RecognitionEntry struct {
	Text  string `json:"text"`
	Tag   string `json:"tag"`
	Score int    `json:"score"`
}

func newRecognitionEntries(hyps []speech.Hypothesis) []RecognitionEntry {
	entries := make([]RecognitionEntry, 0, len(hyps))
	for _, h := range hyps {
		entries = append(entries, RecognitionEntry{Text: h.Text, Tag: h.Tag, Score: h.Score})
	}
	return entries
}

// CallParams are the dialog parameters passed as Twilio custom parameters
type CallParams struct {
	Prompt   string
	Language string
	Grammar  string
	Options  tts.Options
	NBest    bool
	// Settings are applied to the recognizer by name before it starts.
	Settings map[string]string
}

// recognizerSettings are the custom parameters forwarded to Recognizer.Change.
var recognizerSettings = []string{"initsil", "maxsil", "abs_timeout", "asr_engine"}

func parseCallParams(custom map[string]string) CallParams {
	params := CallParams{
		Prompt:   custom["prompt"],
		Language: custom["lang"],
		Grammar:  custom["grammar"],
		Options:  tts.ParseOptions(custom["options"]),
		Settings: make(map[string]string),
	}
	switch strings.ToLower(custom["results"]) {
	case "nbest", "n-best":
		params.NBest = true
	}
	for _, name := range recognizerSettings {
		if v, ok := custom[name]; ok && v != "" {
			params.Settings[name] = v
		}
	}
	return params
}
