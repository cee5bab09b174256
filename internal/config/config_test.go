package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.BatchSize != 100 {
		t.Errorf("BatchSize = %d, want 100", cfg.BatchSize)
	}
	if cfg.PollInterval != 1*time.Second {
		t.Errorf("PollInterval = %s, want 1s", cfg.PollInterval)
	}
	if cfg.Fallback() != '�' {
		t.Errorf("Fallback() = %U, want U+FFFD", cfg.Fallback())
	}
	if cfg.LegacyCharset != "WIN1252" {
		t.Errorf("LegacyCharset = %q, want WIN1252", cfg.LegacyCharset)
	}
}

func TestLoadClampsBatchSize(t *testing.T) {
	t.Setenv("BATCH_SIZE", "100000")
	if got := Load().BatchSize; got != MaxBatchSize {
		t.Errorf("BatchSize = %d, want clamp to %d", got, MaxBatchSize)
	}

	t.Setenv("BATCH_SIZE", "-3")
	if got := Load().BatchSize; got != MinBatchSize {
		t.Errorf("BatchSize = %d, want clamp to %d", got, MinBatchSize)
	}
}

func TestFallbackChar(t *testing.T) {
	t.Setenv("FALLBACK_CHAR", "?")
	if got := Load().Fallback(); got != '?' {
		t.Errorf("Fallback() = %q, want '?'", got)
	}

	// Multi-rune values are rejected in favor of U+FFFD.
	t.Setenv("FALLBACK_CHAR", "??")
	if got := Load().Fallback(); got != '�' {
		t.Errorf("Fallback() = %q, want U+FFFD", got)
	}
}

func TestVerboseFlag(t *testing.T) {
	t.Setenv("VERBOSE", "true")
	if !Load().Verbose {
		t.Error("Verbose = false, want true")
	}
}
