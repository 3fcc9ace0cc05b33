package utils

import (
	"testing"
	"time"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name     string
		input    time.Duration
		expected string
	}{
		{"milliseconds", 45 * time.Millisecond, "45ms"},
		{"seconds", 1500 * time.Millisecond, "1.5s"},
		{"minutes and seconds", 2*time.Minute + 30*time.Second, "2m 30s"},
		{"exact minutes", 5 * time.Minute, "5m"},
		{"hours and minutes", time.Hour + 15*time.Minute, "1h 15m"},
		{"exact hours", 2 * time.Hour, "2h"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatDuration(tt.input); got != tt.expected {
				t.Errorf("FormatDuration(%v) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		input    int
		expected string
	}{
		{0, "0"},
		{123, "123"},
		{1234, "1,234"},
		{1234567, "1,234,567"},
	}

	for _, tt := range tests {
		if got := FormatNumber(tt.input); got != tt.expected {
			t.Errorf("FormatNumber(%d) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestTruncateText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		maxLen   int
		expected string
	}{
		{"short text unchanged", "hello", 10, "hello"},
		{"truncated with ellipsis", "hello world", 8, "hello..."},
		{"newlines collapsed", "line one\nline two", 50, "line one line two"},
		{"tiny max length", "hello", 3, "..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TruncateText(tt.input, tt.maxLen); got != tt.expected {
				t.Errorf("TruncateText(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.expected)
			}
		})
	}
}
