package appconfig

import (
	"os"
	"path/filepath"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int          `mapstructure:"config_version" yaml:"config_version"`
	StateDir      string       `mapstructure:"state_dir" yaml:"state_dir"`
	API           APIConfig    `mapstructure:"api" yaml:"api"`
	Image         ImageConfig  `mapstructure:"image" yaml:"image"`
	Speech        SpeechConfig `mapstructure:"speech" yaml:"speech"`
	Intent        IntentConfig `mapstructure:"intent" yaml:"intent"`
	Chat          ChatConfig   `mapstructure:"chat" yaml:"chat"`
	Mock          MockConfig   `mapstructure:"mock" yaml:"mock"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// EnvPrefix prefixes environment overrides, e.g. COMPANION_API_BASE_URL.
const EnvPrefix = "COMPANION"

// APIConfig points the client at the companion service.
type APIConfig struct {
	BaseURL               string `mapstructure:"base_url" yaml:"base_url"`
	RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds" yaml:"request_timeout_seconds"`
}

// ImageConfig controls the image fetch pipeline.
type ImageConfig struct {
	TimeoutSeconds int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	MaxBytes       int64  `mapstructure:"max_bytes" yaml:"max_bytes"`
	SaveDir        string `mapstructure:"save_dir" yaml:"save_dir"`
	ShowQR         bool   `mapstructure:"show_qr" yaml:"show_qr"`
}

// SpeechConfig selects the text-to-speech program. An empty command searches PATH.
type SpeechConfig struct {
	Enabled bool     `mapstructure:"enabled" yaml:"enabled"`
	Command string   `mapstructure:"command" yaml:"command"`
	Args    []string `mapstructure:"args" yaml:"args"`
}

// IntentConfig appends keywords to the built-in intent rules.
type IntentConfig struct {
	ExtraGeneration  []string `mapstructure:"extra_generation" yaml:"extra_generation"`
	ExtraDescriptive []string `mapstructure:"extra_descriptive" yaml:"extra_descriptive"`
	ExtraSpeech      []string `mapstructure:"extra_speech" yaml:"extra_speech"`
}

// ChatConfig controls the interactive chat.
type ChatConfig struct {
	HistoryLimit int  `mapstructure:"history_limit" yaml:"history_limit"`
	ShowStats    bool `mapstructure:"show_stats" yaml:"show_stats"`
}

// MockConfig configures the local development backend.
type MockConfig struct {
	Addr            string `mapstructure:"addr" yaml:"addr"`
	TokenTTLMinutes int    `mapstructure:"token_ttl_minutes" yaml:"token_ttl_minutes"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	return Config{
		ConfigVersion: CurrentConfigVersion,
		StateDir:      filepath.Join(home, ".companion", "state"),
		API: APIConfig{
			BaseURL:               "http://127.0.0.1:8000",
			RequestTimeoutSeconds: 60,
		},
		Image: ImageConfig{
			TimeoutSeconds: 90,
			MaxBytes:       16 << 20,
			SaveDir:        filepath.Join(home, ".companion", "images"),
			ShowQR:         false,
		},
		Speech: SpeechConfig{
			Enabled: true,
			Command: "",
			Args:    []string{},
		},
		Intent: IntentConfig{
			ExtraGeneration:  []string{},
			ExtraDescriptive: []string{},
			ExtraSpeech:      []string{},
		},
		Chat: ChatConfig{
			HistoryLimit: 500,
			ShowStats:    false,
		},
		Mock: MockConfig{
			Addr:            "127.0.0.1:8000",
			TokenTTLMinutes: 60 * 24,
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".companion", "config.yaml"), nil
}
