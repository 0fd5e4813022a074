package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func chtmp(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	orig, _ := os.Getwd()
	t.Cleanup(func() { _ = os.Chdir(orig) })
	_ = os.Chdir(tmp)
	return tmp
}

func TestLoadFromYAML(t *testing.T) {
	tmp := chtmp(t)

	yaml := `
upload:
  work_dir: /videos/tmp
targeting:
  country_code: CA
  country_dart_id: 257
retry:
  initial_delay: 500ms
  max_delay: 10s
  multiplier: 3
  call_budget: 30m
  activation_budget: 4h
`
	_ = os.WriteFile(filepath.Join(tmp, "config.yaml"), []byte(yaml), 0644)

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Upload.WorkDir != "/videos/tmp" {
		t.Errorf("Upload.WorkDir = %q", cfg.Upload.WorkDir)
	}
	if cfg.Targeting.CountryCode != "CA" || cfg.Targeting.CountryDartID != 257 {
		t.Errorf("Targeting = %+v", cfg.Targeting)
	}

	call := cfg.CallRetry()
	if call.InitialDelay != 500*time.Millisecond || call.MaxDelay != 10*time.Second {
		t.Errorf("CallRetry delays = %v/%v", call.InitialDelay, call.MaxDelay)
	}
	if call.Multiplier != 3 || call.MaxElapsed != 30*time.Minute {
		t.Errorf("CallRetry = %+v", call)
	}
	if got := cfg.ActivationRetry().MaxElapsed; got != 4*time.Hour {
		t.Errorf("ActivationRetry.MaxElapsed = %v, want 4h", got)
	}
}

func TestLoadFromEnv(t *testing.T) {
	chtmp(t)

	t.Setenv("DCM_CLIENT_ID", "test-client")
	t.Setenv("DCM_CLIENT_SECRET", "test-secret")
	t.Setenv("DCM_TOKEN_PATH", "/tokens/dcm.json")

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.ClientID != "test-client" {
		t.Errorf("ClientID = %q, want test-client", cfg.ClientID)
	}
	if cfg.ClientSecret != "test-secret" {
		t.Errorf("ClientSecret = %q, want test-secret", cfg.ClientSecret)
	}
	if cfg.TokenPath != "/tokens/dcm.json" {
		t.Errorf("TokenPath = %q", cfg.TokenPath)
	}
}

func TestLoadDefaults(t *testing.T) {
	chtmp(t)

	t.Setenv("DCM_CLIENT_ID", "")
	t.Setenv("DCM_CLIENT_SECRET", "")
	t.Setenv("DCM_CLIENT_SECRET_NAME", "")
	t.Setenv("DCM_TOKEN_PATH", "")

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.TokenPath != "./dcm_token.json" {
		t.Errorf("TokenPath = %q", cfg.TokenPath)
	}
	if cfg.Targeting.CountryCode != "US" || cfg.Targeting.CountryDartID != 256 {
		t.Errorf("Targeting = %+v, want US/256", cfg.Targeting)
	}
	if cfg.Upload.WorkDir == "" {
		t.Error("Upload.WorkDir should default to the system temp dir")
	}

	call := cfg.CallRetry()
	if call.InitialDelay != time.Second || call.MaxDelay != 20*time.Second {
		t.Errorf("CallRetry delays = %v/%v", call.InitialDelay, call.MaxDelay)
	}
	if call.Multiplier != 2.0 || call.MaxElapsed != time.Hour {
		t.Errorf("CallRetry = %+v", call)
	}
	if got := cfg.ActivationRetry().MaxElapsed; got != 2*time.Hour {
		t.Errorf("ActivationRetry.MaxElapsed = %v, want 2h", got)
	}
}

func TestLoadInvalidDuration(t *testing.T) {
	tmp := chtmp(t)

	_ = os.WriteFile(filepath.Join(tmp, "config.yaml"), []byte("retry:\n  call_budget: soon\n"), 0644)

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got := cfg.CallRetry().MaxElapsed; got != time.Hour {
		t.Errorf("CallRetry.MaxElapsed = %v, want the 1h default", got)
	}
}
