package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ALLOWED_ORIGINS", "")
	t.Setenv("HOST", "http://localhost:8080")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StressThreshold != 0.5 {
		t.Fatalf("expected default threshold 0.5, got %v", cfg.StressThreshold)
	}
	if cfg.StepTimeout != 30*time.Second {
		t.Fatalf("expected default step timeout 30s, got %v", cfg.StepTimeout)
	}
	if cfg.SessionNamespace != "eyeGlaze" {
		t.Fatalf("expected namespace eyeGlaze, got %q", cfg.SessionNamespace)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != cfg.FrontendURL {
		t.Fatalf("expected origins to fall back to frontend url, got %v", cfg.AllowedOrigins)
	}
}

func TestLoadThresholdOverride(t *testing.T) {
	t.Setenv("STRESS_THRESHOLD", "0.92")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StressThreshold != 0.92 {
		t.Fatalf("expected threshold 0.92, got %v", cfg.StressThreshold)
	}
}

func TestLoadRejectsThresholdOutOfRange(t *testing.T) {
	for _, value := range []string{"0", "1", "1.5", "-0.2"} {
		t.Run(value, func(t *testing.T) {
			t.Setenv("STRESS_THRESHOLD", value)
			_, err := Load()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), "STRESS_THRESHOLD") {
				t.Fatalf("expected threshold error, got %v", err)
			}
		})
	}
}

func TestLoadParseError(t *testing.T) {
	t.Setenv("STEP_TIMEOUT", "soon")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}

func TestResolveOriginsAddsDomainVariants(t *testing.T) {
	origins := resolveOrigins([]string{" http://localhost:5173 ", ""}, "", "https://api.eyeglaze.app")

	want := []string{"http://localhost:5173", "https://eyeglaze.app", "https://www.eyeglaze.app"}
	if len(origins) != len(want) {
		t.Fatalf("expected %v, got %v", want, origins)
	}
	for i := range want {
		if origins[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, origins)
		}
	}
}

func TestHostName(t *testing.T) {
	tests := []struct{ host, want string }{
		{"http://localhost:8080", "localhost"},
		{"https://gateway.eyeglaze.app/x", "gateway.eyeglaze.app"},
		{"127.0.0.1", "127.0.0.1"},
	}
	for _, tt := range tests {
		cfg := Config{Host: tt.host}
		if got := cfg.HostName(); got != tt.want {
			t.Fatalf("%s: expected %q, got %q", tt.host, tt.want, got)
		}
	}
}
