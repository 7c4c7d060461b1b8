package util

import "testing"

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		name         string
		value        string
		defaultValue bool
		want         bool
	}{
		{"unset returns default", "", true, true},
		{"true", "true", false, true},
		{"one", "1", false, true},
		{"yes uppercase", "YES", false, true},
		{"on with whitespace", " on ", false, true},
		{"false", "false", true, false},
		{"zero", "0", true, false},
		{"off", "off", true, false},
		{"invalid returns default", "maybe", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != "" {
				t.Setenv("TEST_BOOL_ENV", tt.value)
			}
			if got := ParseBoolEnv("TEST_BOOL_ENV", tt.defaultValue); got != tt.want {
				t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tt.value, tt.defaultValue, got, tt.want)
			}
		})
	}
}

func TestParseIntEnv(t *testing.T) {
	tests := []struct {
		name         string
		value        string
		defaultValue int
		want         int
	}{
		{"unset returns default", "", 60, 60},
		{"valid integer", "300", 60, 300},
		{"whitespace trimmed", " 7 ", 0, 7},
		{"negative", "-1", 0, -1},
		{"invalid returns default", "sixty", 60, 60},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != "" {
				t.Setenv("TEST_INT_ENV", tt.value)
			}
			if got := ParseIntEnv("TEST_INT_ENV", tt.defaultValue); got != tt.want {
				t.Errorf("ParseIntEnv(%q, %d) = %d, want %d", tt.value, tt.defaultValue, got, tt.want)
			}
		})
	}
}

func TestGetenvDefault(t *testing.T) {
	if got := GetenvDefault("TEST_STRING_ENV_UNSET", "fallback"); got != "fallback" {
		t.Errorf("expected fallback for unset variable, got %q", got)
	}
	t.Setenv("TEST_STRING_ENV", "value")
	if got := GetenvDefault("TEST_STRING_ENV", "fallback"); got != "value" {
		t.Errorf("expected set value, got %q", got)
	}
}
