package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultHeuristics(t *testing.T) {
	cfg := Default()
	if cfg.Heuristics.VerificationWindow != 14*24*time.Hour {
		t.Fatalf("verification window = %v", cfg.Heuristics.VerificationWindow)
	}
	if cfg.Heuristics.CompoundChunkSize != 60 {
		t.Fatalf("compound chunk = %d", cfg.Heuristics.CompoundChunkSize)
	}
	if cfg.Heuristics.DelayedFromWindowWeeks != 4 {
		t.Fatalf("delayedFrom window = %d", cfg.Heuristics.DelayedFromWindowWeeks)
	}
}

func TestLoadOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "anischedule.toml")
	body := "dataDir = \"/var/lib/anischedule\"\n[heuristics]\nfetchWindowWeeks = 2\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DataDir != "/var/lib/anischedule" {
		t.Fatalf("dataDir = %q", cfg.DataDir)
	}
	if cfg.Heuristics.FetchWindowWeeks != 2 {
		t.Fatalf("fetchWindowWeeks = %d", cfg.Heuristics.FetchWindowWeeks)
	}
	// untouched defaults survive the overlay
	if cfg.Heuristics.IndefiniteDelayYears != 6 {
		t.Fatalf("indefiniteDelayYears = %d", cfg.Heuristics.IndefiniteDelayYears)
	}
}

func TestRequireScheduleToken(t *testing.T) {
	cfg := Config{}
	if err := cfg.RequireScheduleToken(); err == nil {
		t.Fatal("expected error with empty token")
	}
	cfg.AnimeScheduleToken = "token"
	if err := cfg.RequireScheduleToken(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
