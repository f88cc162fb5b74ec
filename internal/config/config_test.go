package config

import (
	"os"
	"testing"
	"time"
)

func TestOneOf(t *testing.T) {
	tests := []struct {
		name      string
		value     string
		expected  string
		wantPanic bool
	}{
		{name: "default", value: "", expected: "simulated"},
		{name: "allowed value", value: "whatsmeow", expected: "whatsmeow"},
		{name: "case insensitive", value: "WhatsMeow", expected: "whatsmeow"},
		{name: "unknown value", value: "telegram", wantPanic: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_ONE_OF", tt.value)

			if tt.wantPanic {
				defer func() {
					if r := recover(); r == nil {
						t.Errorf("oneOf() should have panicked")
					}
				}()
			}

			result := oneOf("TEST_ONE_OF", "simulated", "simulated", "whatsmeow")
			if !tt.wantPanic && result != tt.expected {
				t.Errorf("oneOf() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestSplitAndTrim(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		expected []string
	}{
		{name: "empty", value: "", expected: nil},
		{name: "single value", value: "10.0.0.0/8", expected: []string{"10.0.0.0/8"}},
		{name: "spaces and quotes", value: ` "a.example", 'b.example' ,, c `, expected: []string{"a.example", "b.example", "c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := splitAndTrim(tt.value)
			if len(result) != len(tt.expected) {
				t.Fatalf("splitAndTrim() = %v, want %v", result, tt.expected)
			}
			for i := range result {
				if result[i] != tt.expected[i] {
					t.Errorf("splitAndTrim()[%d] = %v, want %v", i, result[i], tt.expected[i])
				}
			}
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"WAGATE_TRANSPORT", "WAGATE_LOGOUT_POLICY", "WAGATE_REDIS_ADDR", "WAGATE_QR_TTL"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.Transport != TransportSimulated {
		t.Errorf("Transport = %q, want %q", cfg.Transport, TransportSimulated)
	}
	if cfg.LogoutPolicy != "delete" {
		t.Errorf("LogoutPolicy = %q, want delete", cfg.LogoutPolicy)
	}
	if cfg.QRTTL != 60*time.Second {
		t.Errorf("QRTTL = %v, want 60s", cfg.QRTTL)
	}
	if cfg.RedisEnabled() {
		t.Error("redis should be disabled without an address")
	}
}

func TestLoadRejectsMissingRedisPassword(t *testing.T) {
	t.Setenv("WAGATE_REDIS_ADDR", "localhost:6379")
	t.Setenv("WAGATE_REDIS_PASSWORD_REQUIRED", "true")
	t.Setenv("WAGATE_REDIS_PASSWORD", "")

	defer func() {
		if r := recover(); r == nil {
			t.Errorf("Load() should have panicked")
		}
	}()
	Load()
}

func TestLoadRejectsNonPositiveIntervals(t *testing.T) {
	tests := []struct {
		key string
		val string
	}{
		{"WAGATE_REQUEST_TIMEOUT", "0s"},
		{"WAGATE_SEED_RELOAD_INTERVAL", "0"},
		{"WAGATE_SEED_RELOAD_INTERVAL", "-1m"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.val, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			defer func() {
				if r := recover(); r == nil {
					t.Errorf("Load() with %s=%s should have panicked", tt.key, tt.val)
				}
			}()
			Load()
		})
	}
}

func TestMustDuration(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		value    string
		def      time.Duration
		expected time.Duration
	}{
		{
			name:     "valid duration",
			key:      "TEST_DURATION",
			value:    "5s",
			def:      1 * time.Second,
			expected: 5 * time.Second,
		},
		{
			name:     "invalid duration uses default",
			key:      "TEST_DURATION_INVALID",
			value:    "invalid",
			def:      10 * time.Second,
			expected: 10 * time.Second,
		},
		{
			name:     "missing variable uses default",
			key:      "TEST_DURATION_MISSING",
			value:    "",
			def:      15 * time.Second,
			expected: 15 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != "" {
				if err := os.Setenv(tt.key, tt.value); err != nil {
					t.Fatalf("failed to set env var: %v", err)
				}
				defer func() {
					if err := os.Unsetenv(tt.key); err != nil {
						t.Errorf("failed to unset env var: %v", err)
					}
				}()
			}

			result := mustDuration(tt.key, tt.def)
			if result != tt.expected {
				t.Errorf("mustDuration() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestMustBool(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		value    string
		def      bool
		expected bool
	}{
		{
			name:     "true value",
			key:      "TEST_BOOL",
			value:    "true",
			def:      false,
			expected: true,
		},
		{
			name:     "false value",
			key:      "TEST_BOOL_FALSE",
			value:    "false",
			def:      true,
			expected: false,
		},
		{
			name:     "invalid value uses default",
			key:      "TEST_BOOL_INVALID",
			value:    "invalid",
			def:      true,
			expected: true,
		},
		{
			name:     "missing variable uses default",
			key:      "TEST_BOOL_MISSING",
			value:    "",
			def:      false,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != "" {
				if err := os.Setenv(tt.key, tt.value); err != nil {
					t.Fatalf("failed to set env var: %v", err)
				}
				defer func() {
					if err := os.Unsetenv(tt.key); err != nil {
						t.Errorf("failed to unset env var: %v", err)
					}
				}()
			}

			result := mustBool(tt.key, tt.def)
			if result != tt.expected {
				t.Errorf("mustBool() = %v, want %v", result, tt.expected)
			}
		})
	}
}
