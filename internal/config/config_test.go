package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	os.Unsetenv("SPEECH_BACKEND")
	os.Unsetenv("TTS_BACKEND")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() failed: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Expected default Port '8080', got '%s'", cfg.Port)
	}

	if cfg.SpeechBackend != BackendVoise {
		t.Errorf("Expected default SpeechBackend 'voise', got '%s'", cfg.SpeechBackend)
	}

	if cfg.TTSBackend != BackendVoise {
		t.Errorf("Expected default TTSBackend 'voise', got '%s'", cfg.TTSBackend)
	}

	if cfg.MaxPushFailures != 5 {
		t.Errorf("Expected default MaxPushFailures 5, got %d", cfg.MaxPushFailures)
	}

	if cfg.StopTimeoutMs != 5000 {
		t.Errorf("Expected default StopTimeoutMs 5000, got %d", cfg.StopTimeoutMs)
	}

	if cfg.VoiseConfigPath != "/etc/voise/voise.conf" {
		t.Errorf("Expected default VoiseConfigPath, got '%s'", cfg.VoiseConfigPath)
	}

	if cfg.AudioBufferSize != 8192 {
		t.Errorf("Expected default AudioBufferSize 8192, got %d", cfg.AudioBufferSize)
	}

	if cfg.LogLevel != "info" {
		t.Errorf("Expected default LogLevel 'info', got '%s'", cfg.LogLevel)
	}
}

func TestLoad_DeepgramRequiresKey(t *testing.T) {
	os.Setenv("SPEECH_BACKEND", "deepgram")
	defer os.Unsetenv("SPEECH_BACKEND")
	os.Unsetenv("DEEPGRAM_API_KEY")

	if _, err := LoadFromEnv(); err == nil {
		t.Error("Expected error when deepgram backend has no API key")
	}

	os.Setenv("DEEPGRAM_API_KEY", "test-deepgram-key")
	defer os.Unsetenv("DEEPGRAM_API_KEY")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() failed: %v", err)
	}
	if cfg.DeepgramAPIKey != "test-deepgram-key" {
		t.Errorf("Expected DeepgramAPIKey 'test-deepgram-key', got '%s'", cfg.DeepgramAPIKey)
	}
}

func TestLoad_CartesiaRequiresKey(t *testing.T) {
	os.Setenv("TTS_BACKEND", "Cartesia")
	defer os.Unsetenv("TTS_BACKEND")
	os.Unsetenv("CARTESIA_API_KEY")

	if _, err := LoadFromEnv(); err == nil {
		t.Error("Expected error when cartesia backend has no API key")
	}
}

func TestLoad_UnknownBackend(t *testing.T) {
	os.Setenv("SPEECH_BACKEND", "whisper")
	defer os.Unsetenv("SPEECH_BACKEND")

	if _, err := LoadFromEnv(); err == nil {
		t.Error("Expected error for unknown speech backend")
	}
}

func TestLoad_InvalidPushFailures(t *testing.T) {
	os.Setenv("SPEECH_MAX_PUSH_FAILURES", "0")
	defer os.Unsetenv("SPEECH_MAX_PUSH_FAILURES")

	if _, err := LoadFromEnv(); err == nil {
		t.Error("Expected error for non-positive SPEECH_MAX_PUSH_FAILURES")
	}
}

func writeConf(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "voise.conf")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadVoise(t *testing.T) {
	path := writeConf(t, `[general]
lang = en-US
asr_engine = kaldi
initsil = 3000
maxsil = 800
abs_timeout = 0
serverip = 10.0.0.5
serverport = 9100

[debug]
verbose = 1
`)

	cfg, err := LoadVoise(path)
	if err != nil {
		t.Fatalf("LoadVoise() failed: %v", err)
	}

	if cfg.General.Lang != "en-US" {
		t.Errorf("Expected lang 'en-US', got '%s'", cfg.General.Lang)
	}
	if cfg.General.ASREngine != "kaldi" {
		t.Errorf("Expected asr_engine 'kaldi', got '%s'", cfg.General.ASREngine)
	}
	if cfg.General.InitSil != 3000 || cfg.General.MaxSil != 800 {
		t.Errorf("Unexpected silence thresholds %d/%d", cfg.General.InitSil, cfg.General.MaxSil)
	}
	if cfg.General.AbsTimeout != 0 {
		t.Errorf("Expected abs_timeout 0, got %d", cfg.General.AbsTimeout)
	}
	if !cfg.Debug.Verbose {
		t.Error("Expected verbose to be enabled")
	}
	if cfg.ServerAddr() != "10.0.0.5:9100" {
		t.Errorf("Expected server address '10.0.0.5:9100', got '%s'", cfg.ServerAddr())
	}
}

func TestLoadVoise_Defaults(t *testing.T) {
	path := writeConf(t, "[general]\nlang = es-ES\n")

	cfg, err := LoadVoise(path)
	if err != nil {
		t.Fatalf("LoadVoise() failed: %v", err)
	}

	def := DefaultVoiseConfig()
	if cfg.General.Lang != "es-ES" {
		t.Errorf("Expected lang 'es-ES', got '%s'", cfg.General.Lang)
	}
	if cfg.General.ASREngine != def.General.ASREngine {
		t.Errorf("Expected default asr_engine, got '%s'", cfg.General.ASREngine)
	}
	if cfg.General.InitSil != 5000 || cfg.General.MaxSil != 1000 || cfg.General.AbsTimeout != 15 {
		t.Errorf("Unexpected default thresholds %+v", cfg.General)
	}
	if cfg.Debug.Verbose {
		t.Error("Expected verbose to default to off")
	}
	if cfg.ServerAddr() != "127.0.0.1:8100" {
		t.Errorf("Expected default server address, got '%s'", cfg.ServerAddr())
	}
}

func TestLoadVoise_Missing(t *testing.T) {
	if _, err := LoadVoise(filepath.Join(t.TempDir(), "missing.conf")); err == nil {
		t.Error("Expected error for a missing config file")
	}
}

func TestLoadVoise_VerboseAnyNonZero(t *testing.T) {
	cases := map[string]bool{"2": true, "-1": true, "0": false, "true": true, "false": false}
	for value, want := range cases {
		cfg, err := LoadVoise(writeConf(t, "[debug]\nverbose = "+value+"\n"))
		if err != nil {
			t.Fatalf("LoadVoise(verbose=%s) failed: %v", value, err)
		}
		if cfg.Debug.Verbose != want {
			t.Errorf("verbose=%s: expected %v, got %v", value, want, cfg.Debug.Verbose)
		}
	}
}
