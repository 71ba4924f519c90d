package config

import "testing"

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("APILENS_DATABASE__HOST", "localhost")
	t.Setenv("APILENS_DATABASE__PORT", "5432")
	t.Setenv("APILENS_DATABASE__USER", "apilens")
	t.Setenv("APILENS_DATABASE__NAME", "apilens")
}

func TestLoadAppliesDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Primary.Env != "dev" {
		t.Errorf("expected default env dev, got %q", cfg.Primary.Env)
	}
	if cfg.Ingest.MaxRequestsPerBatch != 1000 || cfg.Ingest.MaxLogsPerBatch != 2000 {
		t.Errorf("unexpected batch limits: %+v", cfg.Ingest)
	}
	if cfg.Queue.MaxAttempts != 3 || cfg.Queue.BackoffBaseMS != 2000 {
		t.Errorf("unexpected queue defaults: %+v", cfg.Queue)
	}
	want := "postgres://apilens:@localhost:5432/apilens?sslmode=disable"
	if got := cfg.Database.URL(); got != want {
		t.Errorf("expected url %q, got %q", want, got)
	}
}

func TestLoadReadsEnvOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("APILENS_SERVER__PORT", "9090")
	t.Setenv("APILENS_INGEST__MAX_REQUESTS_PER_BATCH", "50")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %q", cfg.Server.Port)
	}
	if cfg.Ingest.MaxRequestsPerBatch != 50 {
		t.Errorf("expected batch limit 50, got %d", cfg.Ingest.MaxRequestsPerBatch)
	}
}

func TestLoadRejectsEnabledObservabilityWithoutLicense(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("APILENS_OBSERVABILITY__ENABLED", "true")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for enabled observability without license key")
	}
}
