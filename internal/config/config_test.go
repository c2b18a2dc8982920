package config

import (
	"bytes"
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("INTENT_EXECUTE_THRESHOLD", "")
	t.Setenv("AI_PROVIDER", "")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.IntentExecuteThreshold != 0.8 || cfg.IntentDiscloseThreshold != 0.5 || cfg.IntentTargetBonus != 0.05 {
		t.Fatalf("unexpected thresholds: %+v", cfg)
	}
	if cfg.AIEnabled() {
		t.Fatalf("empty provider must not enable AI")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("INTENT_EXECUTE_THRESHOLD", "0.7")
	t.Setenv("IMAP_SECURE", "off")
	t.Setenv("AI_TIMEOUT_MS", "not-a-number")
	t.Setenv("AI_PROVIDER", "openai")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.IntentExecuteThreshold != 0.7 {
		t.Fatalf("threshold=%v", cfg.IntentExecuteThreshold)
	}
	if cfg.IMAPSecure {
		t.Fatalf("IMAP_SECURE=off should disable TLS")
	}
	if cfg.AITimeoutMs != 60000 {
		t.Fatalf("invalid int should fall back, got %d", cfg.AITimeoutMs)
	}
	if !cfg.AIEnabled() {
		t.Fatalf("openai provider should enable AI")
	}
	if err := cfg.Require("AI_API_KEY", "  "); err == nil {
		t.Fatalf("Require should reject blank value")
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log := Config{LogLevel: "warn", LogFormat: "json"}.NewLogger(&buf)
	log.Info("hidden")
	log.Warn("shown", "file", "a.xlsx")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, `"file":"a.xlsx"`) {
		t.Fatalf("log output %q", out)
	}
}
