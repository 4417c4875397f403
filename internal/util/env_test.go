package util

import (
	"log/slog"
	"testing"
	"time"
)

func TestGetEnvDefault(t *testing.T) {
	t.Setenv("RT_TEST_STR", "  value ")
	if got := GetEnvDefault("RT_TEST_STR", "d"); got != "value" {
		t.Errorf("GetEnvDefault = %q, want %q", got, "value")
	}
	t.Setenv("RT_TEST_STR", "   ")
	if got := GetEnvDefault("RT_TEST_STR", "d"); got != "d" {
		t.Errorf("GetEnvDefault on blank = %q, want default", got)
	}
}

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		value string
		def   bool
		want  bool
	}{
		{"", true, true},
		{"true", false, true},
		{"YES", false, true},
		{"on", false, true},
		{"0", true, false},
		{"off", true, false},
		{"maybe", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("RT_TEST_BOOL", tt.value)
			if got := ParseBoolEnv("RT_TEST_BOOL", tt.def); got != tt.want {
				t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tt.value, tt.def, got, tt.want)
			}
		})
	}
}

func TestParseDurationEnv(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"", 5 * time.Second},
		{"250ms", 250 * time.Millisecond},
		{"1m", time.Minute},
		{"soon", 5 * time.Second},
		{"-1s", 5 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("RT_TEST_DUR", tt.value)
			if got := ParseDurationEnv("RT_TEST_DUR", 5*time.Second); got != tt.want {
				t.Errorf("ParseDurationEnv(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestParseLogLevelEnv(t *testing.T) {
	tests := []struct {
		value string
		want  slog.Level
	}{
		{"", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"8", slog.Level(8)},
		{"loud", slog.LevelDebug},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("RT_TEST_LEVEL", tt.value)
			if got := ParseLogLevelEnv("RT_TEST_LEVEL", slog.LevelDebug); got != tt.want {
				t.Errorf("ParseLogLevelEnv(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}
