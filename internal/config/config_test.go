package config

import (
	"testing"
	"time"
)

// clearEnv unsets every variable the loader reads so tests start from the
// defaults regardless of the host environment.
func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"PORT", "READ_TIMEOUT", "READ_HEADER_TIMEOUT", "WRITE_TIMEOUT", "IDLE_TIMEOUT",
		"MAX_HEADER_BYTES", "GIN_MODE", "LOG_LEVEL", "LOG_PRETTY", "API_BASE_PATH",
		"DB_PATH", "LOAN_DAYS", "RATE_RPS", "RATE_BURST", "CORS_ALLOWED_ORIGINS",
		"ENABLE_HSTS", "HSTS_MAX_AGE",
		"GRAPH_TENANT_ID", "GRAPH_CLIENT_ID", "GRAPH_CLIENT_SECRET", "GRAPH_USER_UPN",
		"GEMINI_API_KEY", "GEMINI_MODEL", "GEMINI_TIMEOUT",
		"ENABLE_EMAIL_POLLER", "GRAPH_POLL_INTERVAL", "GRAPH_POLL_BATCH",
		"OTEL_ENABLED", "OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_INSECURE",
		"OTEL_SERVICE_NAME", "OTEL_TRACES_SAMPLER_ARG",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" || cfg.GinMode != "release" || cfg.LogLevel != "info" {
		t.Fatalf("server defaults wrong: %+v", cfg)
	}
	if cfg.APIBasePath != "/api/v1" {
		t.Fatalf("APIBasePath = %q", cfg.APIBasePath)
	}
	if cfg.DBPath != "library.db" || cfg.LoanDays != 30 {
		t.Fatalf("app defaults wrong: %+v", cfg)
	}
	if cfg.Poller.Enabled || cfg.Poller.Interval != 60*time.Second || cfg.Poller.BatchSize != 5 {
		t.Fatalf("poller defaults wrong: %+v", cfg.Poller)
	}
	if cfg.Gemini.Model != "gemini-1.5-flash" || cfg.Gemini.Timeout != 15*time.Second {
		t.Fatalf("gemini defaults wrong: %+v", cfg.Gemini)
	}
	if cfg.Graph.Enabled() {
		t.Fatalf("Graph.Enabled must be false without credentials")
	}
}

func TestLoad_OverridesAndNormalization(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9999")
	t.Setenv("LOG_LEVEL", "WARNING")
	t.Setenv("GIN_MODE", "weird")
	t.Setenv("API_BASE_PATH", "api/v2/")
	t.Setenv("LOAN_DAYS", "14")
	t.Setenv("GRAPH_POLL_INTERVAL", "1s")
	t.Setenv("GRAPH_POLL_BATCH", "0")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example , https://b.example ,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9999" || cfg.LoanDays != 14 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("warning alias not normalized: %q", cfg.LogLevel)
	}
	if cfg.GinMode != "release" {
		t.Fatalf("invalid gin mode not coerced: %q", cfg.GinMode)
	}
	if cfg.APIBasePath != "/api/v2" {
		t.Fatalf("base path not normalized: %q", cfg.APIBasePath)
	}
	if cfg.Poller.Interval != 5*time.Second || cfg.Poller.BatchSize != 1 {
		t.Fatalf("poller floors not applied: %+v", cfg.Poller)
	}
	if len(cfg.CORS.AllowedOrigins) != 2 || cfg.CORS.AllowedOrigins[0] != "https://a.example" {
		t.Fatalf("CORS csv parse wrong: %v", cfg.CORS.AllowedOrigins)
	}
}

func TestLoad_ValidationFailures(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{"bad log level", map[string]string{"LOG_LEVEL": "noisy"}},
		{"zero loan days", map[string]string{"LOAN_DAYS": "0"}},
		{"negative rate", map[string]string{"RATE_RPS": "-1"}},
		{"zero burst", map[string]string{"RATE_BURST": "0"}},
		{"poller without key", map[string]string{"ENABLE_EMAIL_POLLER": "true"}},
		{"sampler out of range", map[string]string{"OTEL_TRACES_SAMPLER_ARG": "1.5"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoad_PollerWithKeyValidates(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENABLE_EMAIL_POLLER", "true")
	t.Setenv("GEMINI_API_KEY", "k")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Poller.Enabled {
		t.Fatalf("poller should be enabled")
	}
}

func TestGraphConfig_Enabled(t *testing.T) {
	g := GraphConfig{TenantID: "t", ClientID: "c", ClientSecret: "s", UserUPN: "u"}
	if !g.Enabled() {
		t.Fatalf("full credentials should enable")
	}
	g.ClientSecret = ""
	if g.Enabled() {
		t.Fatalf("partial credentials must not enable")
	}
}

func TestNormalizeBasePath(t *testing.T) {
	cases := map[string]string{
		"":         "/",
		"/":        "/",
		"api":      "/api",
		"/api/":    "/api",
		"/api/v1/": "/api/v1",
	}
	for in, want := range cases {
		if got := normalizeBasePath(in); got != want {
			t.Fatalf("normalizeBasePath(%q) = %q; want %q", in, got, want)
		}
	}
}
