package util

import (
	"testing"
	"time"
)

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		value        string
		defaultValue bool
		want         bool
	}{
		{"true", false, true},
		{"1", false, true},
		{"YES", false, true},
		{"on", false, true},
		{"false", true, false},
		{"0", true, false},
		{"No", true, false},
		{"off", true, false},
		{"", true, true},
		{"", false, false},
		{"maybe", true, true},
		{"maybe", false, false},
		{" true ", false, true},
	}
	for _, tc := range tests {
		t.Run(tc.value, func(t *testing.T) {
			t.Setenv("CRM_TEST_BOOL", tc.value)
			if got := ParseBoolEnv("CRM_TEST_BOOL", tc.defaultValue); got != tc.want {
				t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tc.value, tc.defaultValue, got, tc.want)
			}
		})
	}
}

func TestParseIntEnv(t *testing.T) {
	t.Setenv("CRM_TEST_INT", "42")
	if got := ParseIntEnv("CRM_TEST_INT", 7); got != 42 {
		t.Errorf("ParseIntEnv() = %d, want 42", got)
	}
	t.Setenv("CRM_TEST_INT", "abc")
	if got := ParseIntEnv("CRM_TEST_INT", 7); got != 7 {
		t.Errorf("ParseIntEnv() invalid = %d, want default 7", got)
	}
	t.Setenv("CRM_TEST_INT", "")
	if got := ParseIntEnv("CRM_TEST_INT", 7); got != 7 {
		t.Errorf("ParseIntEnv() empty = %d, want default 7", got)
	}
}

func TestParseDurationEnv(t *testing.T) {
	t.Setenv("CRM_TEST_DUR", "15s")
	if got := ParseDurationEnv("CRM_TEST_DUR", time.Minute); got != 15*time.Second {
		t.Errorf("ParseDurationEnv() = %v, want 15s", got)
	}
	t.Setenv("CRM_TEST_DUR", "bogus")
	if got := ParseDurationEnv("CRM_TEST_DUR", time.Minute); got != time.Minute {
		t.Errorf("ParseDurationEnv() invalid = %v, want default 1m", got)
	}
}
