package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Ingestion.MaxEventsPerPoll != 50 {
		t.Errorf("expected default max events 50, got %d", cfg.Ingestion.MaxEventsPerPoll)
	}
	// The mock generator seed is fixed so restarts replay the same
	// synthetic feeds.
	if cfg.Ingestion.MockSeed != 42 {
		t.Errorf("expected default mock seed 42, got %d", cfg.Ingestion.MockSeed)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("MOCK_SEED", "7")
	t.Setenv("MAX_EVENTS_PER_POLL", "10")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Ingestion.MockSeed != 7 {
		t.Errorf("expected mock seed 7, got %d", cfg.Ingestion.MockSeed)
	}
	if cfg.Ingestion.MaxEventsPerPoll != 10 {
		t.Errorf("expected max events 10, got %d", cfg.Ingestion.MaxEventsPerPoll)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("MAX_EVENTS_PER_POLL", "0")
	if _, err := Load(); err == nil {
		t.Fatal("expected validation error for zero max events")
	}
}
