package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"paperbridge/internal/config"
	"paperbridge/internal/device"
	"paperbridge/internal/library"
)

func TestFormatCLIError_NetworkGuidance(t *testing.T) {
	err := &net.DNSError{Err: "no such host", Name: "api.example.org", IsTemporary: true}
	lines := formatCLIError(err)
	if !containsLine(lines, "hint: check library.api_url and network connectivity.") {
		t.Fatalf("expected connectivity guidance, got %v", lines)
	}
}

func TestFormatCLIError_APIAuthGuidance(t *testing.T) {
	err := fmt.Errorf("list items: %w", &library.APIError{Status: 403, Code: "forbidden", Message: "Forbidden"})
	lines := formatCLIError(err)
	if !containsLine(lines, "hint: verify library.api_key or PAPERBRIDGE_LIBRARY_API_KEY and its library permissions.") {
		t.Fatalf("expected auth guidance, got %v", lines)
	}
}

func TestFormatCLIError_RateLimitGuidance(t *testing.T) {
	err := &library.APIError{Status: 429, Code: "rate_limited", Message: "slow down", RetryAfter: "30"}
	lines := formatCLIError(err)
	if !containsLine(lines, "hint: library API is rate limiting; retry after 30s.") {
		t.Fatalf("expected rate-limit guidance, got %v", lines)
	}
}

func TestFormatCLIError_APIInternalGuidance(t *testing.T) {
	err := &library.APIError{Status: 503, Code: "internal", Message: "unavailable"}
	lines := formatCLIError(err)
	if !containsLine(lines, "hint: library API returned an internal error; retry later.") {
		t.Fatalf("expected internal-error guidance, got %v", lines)
	}
}

func TestFormatCLIError_DeviceGuidance(t *testing.T) {
	lines := formatCLIError(fmt.Errorf("ls /Zotero/read: %w", device.ErrBridgeUnavailable))
	if !containsLine(lines, "hint: install rmapi or point device.binary at it.") {
		t.Fatalf("expected bridge guidance, got %v", lines)
	}

	lines = formatCLIError(fmt.Errorf("ls: %w", device.ErrCommandFailed))
	if !containsLine(lines, "hint: run 'rmapi ls' to check that the bridge is authenticated.") {
		t.Fatalf("expected command guidance, got %v", lines)
	}
}

func TestFormatCLIError_ConfigAndUsageGuidance(t *testing.T) {
	lines := formatCLIError(fmt.Errorf("%w: unread_folder", config.ErrMissingRequired))
	if !containsLine(lines, "hint: create a starter config with: paperbridge config init") {
		t.Fatalf("expected config guidance, got %v", lines)
	}

	lines = formatCLIError(usageError{err: errors.New("mode is required")})
	if len(lines) != 2 || lines[0] != "mode is required" {
		t.Fatalf("expected message plus usage hint, got %v", lines)
	}
}

func TestFormatCLIError_TimeoutGuidance(t *testing.T) {
	lines := formatCLIError(fmt.Errorf("download: %w", context.DeadlineExceeded))
	if !containsLine(lines, "hint: request timed out; increase PAPERBRIDGE_HTTP_TIMEOUT for slow connections.") {
		t.Fatalf("expected timeout guidance, got %v", lines)
	}
}

func TestUniqueLines(t *testing.T) {
	got := uniqueLines([]string{"a", "", "b", "a"})
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected lines %v", got)
	}
}

func containsLine(lines []string, expected string) bool {
	for _, line := range lines {
		if line == expected {
			return true
		}
	}
	return false
}
