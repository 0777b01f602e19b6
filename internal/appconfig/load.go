package appconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"pkt.systems/companion/internal/persist"
)

// Load reads configuration from the provided path. If path is empty, uses DefaultConfigPath.
// A missing file yields the defaults. Environment variables prefixed with EnvPrefix
// override file values.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("config_version", cfg.ConfigVersion)
	v.SetDefault("state_dir", cfg.StateDir)
	v.SetDefault("api.base_url", cfg.API.BaseURL)
	v.SetDefault("api.request_timeout_seconds", cfg.API.RequestTimeoutSeconds)
	v.SetDefault("image.timeout_seconds", cfg.Image.TimeoutSeconds)
	v.SetDefault("image.max_bytes", cfg.Image.MaxBytes)
	v.SetDefault("image.save_dir", cfg.Image.SaveDir)
	v.SetDefault("image.show_qr", cfg.Image.ShowQR)
	v.SetDefault("speech.enabled", cfg.Speech.Enabled)
	v.SetDefault("speech.command", cfg.Speech.Command)
	v.SetDefault("speech.args", cfg.Speech.Args)
	v.SetDefault("intent.extra_generation", cfg.Intent.ExtraGeneration)
	v.SetDefault("intent.extra_descriptive", cfg.Intent.ExtraDescriptive)
	v.SetDefault("intent.extra_speech", cfg.Intent.ExtraSpeech)
	v.SetDefault("chat.history_limit", cfg.Chat.HistoryLimit)
	v.SetDefault("chat.show_stats", cfg.Chat.ShowStats)
	v.SetDefault("mock.addr", cfg.Mock.Addr)
	v.SetDefault("mock.token_ttl_minutes", cfg.Mock.TokenTTLMinutes)

	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	} else {
		configLoaded = true
	}

	if configLoaded {
		if !v.InConfig("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
		if !v.IsSet("api.base_url") || strings.TrimSpace(v.GetString("api.base_url")) == "" {
			return Config{}, fmt.Errorf("api.base_url is required for config_version %d", CurrentConfigVersion)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	expandConfigEnv(&cfg)
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	baseURL := strings.TrimSpace(cfg.API.BaseURL)
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("api.base_url must include scheme and host (e.g. http://127.0.0.1:8000)")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("api.base_url scheme must be http or https, got %q", parsed.Scheme)
	}
	if cfg.Image.TimeoutSeconds <= 0 {
		return fmt.Errorf("image.timeout_seconds must be positive")
	}
	if cfg.Image.MaxBytes <= 0 {
		return fmt.Errorf("image.max_bytes must be positive")
	}
	if cfg.API.RequestTimeoutSeconds < 0 {
		return fmt.Errorf("api.request_timeout_seconds must not be negative")
	}
	if cfg.Mock.TokenTTLMinutes <= 0 {
		return fmt.Errorf("mock.token_ttl_minutes must be positive")
	}
	return nil
}

func expandConfigEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.StateDir = expandEnv(cfg.StateDir)
	cfg.Image.SaveDir = expandEnv(cfg.Image.SaveDir)
	cfg.Speech.Command = expandEnv(cfg.Speech.Command)
}

func expandEnv(value string) string {
	if value == "" {
		return value
	}
	return os.Expand(value, func(key string) string {
		if key == "" {
			return ""
		}
		if val, ok := lookupEnv(key); ok {
			return val
		}
		return "$" + key
	})
}

func lookupEnv(key string) (string, bool) {
	if val, ok := os.LookupEnv(key); ok {
		return val, true
	}
	switch key {
	case "UID":
		return fmt.Sprintf("%d", os.Getuid()), true
	case "GID":
		return fmt.Sprintf("%d", os.Getgid()), true
	}
	return "", false
}

// LoadDotEnv loads KEY=value pairs from the given files into the process
// environment. Missing files are skipped and variables already set win.
func LoadDotEnv(paths ...string) error {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// WriteDefault writes the default config to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	if err := persist.WriteFileAtomic(filepath.Clean(path), data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
