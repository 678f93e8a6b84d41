package speech

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/lexiqai/voise-gateway/internal/config"
)

// SessionConfig holds the tunables of a recognizer. Thresholds are read on
// every frame, so a change applies to the next frame of the live attempt.
type SessionConfig struct {
	Language      string
	ASREngine     string
	ModelName     string
	InitSilenceMs int // <= 0 disables the initial silence timeout
	MaxSilenceMs  int // <= 0 disables the trailing silence timeout
	AbsTimeoutSec int // <= 0 disables the absolute timeout
	Verbose       bool
}

// DefaultSessionConfig returns the built-in defaults used when voise.conf
// does not set a key.
func DefaultSessionConfig() SessionConfig {
	return SessionConfigFromVoise(config.DefaultVoiseConfig())
}

// SessionConfigFromVoise maps the engine configuration file onto the
// per-recognizer defaults.
func SessionConfigFromVoise(vc config.VoiseConfig) SessionConfig {
	return SessionConfig{
		Language:      vc.General.Lang,
		ASREngine:     vc.General.ASREngine,
		InitSilenceMs: vc.General.InitSil,
		MaxSilenceMs:  vc.General.MaxSil,
		AbsTimeoutSec: vc.General.AbsTimeout,
		Verbose:       vc.Debug.Verbose,
	}
}

// sessionUpdate is the set of attributes a caller may change by name.
type sessionUpdate struct {
	Verbose    *bool   `mapstructure:"verbose"`
	Language   *string `mapstructure:"language"`
	ASREngine  *string `mapstructure:"asr_engine"`
	InitSil    *int    `mapstructure:"initsil"`
	MaxSil     *int    `mapstructure:"maxsil"`
	AbsTimeout *int    `mapstructure:"abs_timeout"`
}

// errUnknownSetting marks a name Change does not recognise.
type errUnknownSetting string

func (e errUnknownSetting) Error() string {
	return fmt.Sprintf("unknown setting %q", string(e))
}

// Change sets one attribute from its textual value. Values are decoded
// weakly, so any non-zero integer turns verbose on and "2000" is a valid
// threshold.
// Names are case-insensitive and "lang" is an alias of "language".
func (c *SessionConfig) Change(name, value string) error {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "lang" {
		key = "language"
	}

	var update sessionUpdate
	var md mapstructure.Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "mapstructure",
		Result:           &update,
		Metadata:         &md,
		WeaklyTypedInput: true,
		DecodeHook:       config.FlagDecodeHook,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(map[string]interface{}{key: strings.TrimSpace(value)}); err != nil {
		return &Error{Kind: ErrConfig, Op: "change " + key, Err: err}
	}
	if len(md.Unused) > 0 {
		return errUnknownSetting(name)
	}

	switch {
	case update.Verbose != nil:
		c.Verbose = *update.Verbose
	case update.Language != nil:
		c.Language = *update.Language
	case update.ASREngine != nil:
		c.ASREngine = *update.ASREngine
	case update.InitSil != nil:
		c.InitSilenceMs = *update.InitSil
	case update.MaxSil != nil:
		c.MaxSilenceMs = *update.MaxSil
	case update.AbsTimeout != nil:
		c.AbsTimeoutSec = *update.AbsTimeout
	}
	return nil
}
