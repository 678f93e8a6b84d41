package config

import (
	"fmt"
	"net"
	"reflect"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// VoiseConfig holds the speech engine defaults read from voise.conf.
type VoiseConfig struct {
	General VoiseGeneral `mapstructure:"general"`
	Debug   VoiseDebug   `mapstructure:"debug"`
}

// VoiseGeneral is the [general] section.
type VoiseGeneral struct {
	Lang       string `mapstructure:"lang"`
	ASREngine  string `mapstructure:"asr_engine"`
	InitSil    int    `mapstructure:"initsil"`     // ms, <= 0 disables
	MaxSil     int    `mapstructure:"maxsil"`      // ms, <= 0 disables
	AbsTimeout int    `mapstructure:"abs_timeout"` // seconds, <= 0 disables
	ServerIP   string `mapstructure:"serverip"`
	ServerPort int    `mapstructure:"serverport"`
}

// VoiseDebug is the [debug] section.
type VoiseDebug struct {
	Verbose bool `mapstructure:"verbose"`
}

// DefaultVoiseConfig returns the values used for keys missing from voise.conf
func DefaultVoiseConfig() VoiseConfig {
	return VoiseConfig{
		General: VoiseGeneral{
			Lang:       "pt-BR",
			ASREngine:  "me",
			InitSil:    5000,
			MaxSil:     1000,
			AbsTimeout: 15,
			ServerIP:   "127.0.0.1",
			ServerPort: 8100,
		},
	}
}

// LoadVoise reads the INI file at path. Keys that are absent keep their
// defaults; an unreadable or malformed file is an error.
func LoadVoise(path string) (*VoiseConfig, error) {
	def := DefaultVoiseConfig()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("ini")
	v.SetDefault("general.lang", def.General.Lang)
	v.SetDefault("general.asr_engine", def.General.ASREngine)
	v.SetDefault("general.initsil", def.General.InitSil)
	v.SetDefault("general.maxsil", def.General.MaxSil)
	v.SetDefault("general.abs_timeout", def.General.AbsTimeout)
	v.SetDefault("general.serverip", def.General.ServerIP)
	v.SetDefault("general.serverport", def.General.ServerPort)
	v.SetDefault("debug.verbose", false)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read voise config %s: %w", path, err)
	}

	var cfg VoiseConfig
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		FlagDecodeHook,
		mapstructure.StringToTimeDurationHookFunc(),
	))); err != nil {
		return nil, fmt.Errorf("decode voise config %s: %w", path, err)
	}

	if cfg.General.ServerIP == "" {
		return nil, fmt.Errorf("voise config %s: general.serverip is empty", path)
	}
	if cfg.General.ServerPort <= 0 || cfg.General.ServerPort > 65535 {
		return nil, fmt.Errorf("voise config %s: invalid general.serverport %d", path, cfg.General.ServerPort)
	}

	return &cfg, nil
}

// ServerAddr returns the host:port of the Voise server
func (c *VoiseConfig) ServerAddr() string {
	return net.JoinHostPort(c.General.ServerIP, strconv.Itoa(c.General.ServerPort))
}

// FlagDecodeHook decodes integer strings into bool fields the way the engine
// reads its flags: any non-zero value is true. Other strings are left for
// the weak bool parsing.
func FlagDecodeHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if from.Kind() != reflect.String || to.Kind() != reflect.Bool {
		return data, nil
	}
	if n, err := strconv.Atoi(strings.TrimSpace(data.(string))); err == nil {
		return n != 0, nil
	}
	return data, nil
}
