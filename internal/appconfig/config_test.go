package appconfig

import "testing"

func TestDefaultConfigImageTimeout(t *testing.T) {
	cfg, err := DefaultConfig()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	if cfg.Image.TimeoutSeconds != 90 {
		t.Fatalf("expected 90s image timeout, got %d", cfg.Image.TimeoutSeconds)
	}
	if cfg.ConfigVersion != CurrentConfigVersion {
		t.Fatalf("expected current config version")
	}
	if err := validate(cfg); err != nil {
		t.Fatalf("expected defaults to validate: %v", err)
	}
}
