package util

import (
	"testing"
	"time"
)

func TestDurationEnv(t *testing.T) {
	tests := []struct {
		raw  string
		want time.Duration
	}{
		{"", 5 * time.Second},
		{"90s", 90 * time.Second},
		{"2m", 2 * time.Minute},
		{"45", 45 * time.Second},
		{"1.5", 1500 * time.Millisecond},
		{"soon", 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			t.Setenv("TEST_DURATION", tt.raw)
			if got := DurationEnv("TEST_DURATION", 5*time.Second); got != tt.want {
				t.Errorf("DurationEnv(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestBoolEnv(t *testing.T) {
	t.Setenv("TEST_BOOL", "true")
	if !BoolEnv("TEST_BOOL", false) {
		t.Error("expected true")
	}
	t.Setenv("TEST_BOOL", "maybe")
	if BoolEnv("TEST_BOOL", false) {
		t.Error("expected default for invalid value")
	}
}

func TestEnvTrims(t *testing.T) {
	t.Setenv("TEST_STR", "  value  ")
	if got := Env("TEST_STR", "def"); got != "value" {
		t.Errorf("expected trimmed value, got %q", got)
	}
	t.Setenv("TEST_STR", "   ")
	if got := Env("TEST_STR", "def"); got != "def" {
		t.Errorf("expected default for blank value, got %q", got)
	}
}
