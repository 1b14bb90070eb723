package main

import (
	"context"
	"errors"
	"fmt"
	"net"

	"paperbridge/internal/config"
	"paperbridge/internal/device"
	"paperbridge/internal/library"
)

func formatCLIError(err error) []string {
	if err == nil {
		return nil
	}

	lines := []string{err.Error()}

	var usage usageError
	if errors.As(err, &usage) {
		lines = append(lines, "hint: run 'paperbridge --help' for usage.")
		return uniqueLines(lines)
	}

	if errors.Is(err, config.ErrMissingRequired) {
		lines = append(lines,
			"hint: create a starter config with: paperbridge config init",
			"hint: set values with: paperbridge config set <key> <value>",
		)
		return uniqueLines(lines)
	}

	if errors.Is(err, device.ErrBridgeUnavailable) {
		lines = append(lines, "hint: install rmapi or point device.binary at it.")
	}
	if errors.Is(err, device.ErrCommandFailed) {
		lines = append(lines, "hint: run 'rmapi ls' to check that the bridge is authenticated.")
	}

	var apiErr *library.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case "unauthorized", "forbidden":
			lines = append(lines, "hint: verify library.api_key or PAPERBRIDGE_LIBRARY_API_KEY and its library permissions.")
		case "rate_limited":
			if apiErr.RetryAfter != "" {
				lines = append(lines, fmt.Sprintf("hint: library API is rate limiting; retry after %ss.", apiErr.RetryAfter))
			} else {
				lines = append(lines, "hint: library API is rate limiting; retry shortly.")
			}
		}
		if apiErr.Status >= 500 {
			lines = append(lines, "hint: library API returned an internal error; retry later.")
		}
		return uniqueLines(lines)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		lines = append(lines, "hint: request timed out; increase PAPERBRIDGE_HTTP_TIMEOUT for slow connections.")
		return uniqueLines(lines)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		lines = append(lines, "hint: check library.api_url and network connectivity.")
		return uniqueLines(lines)
	}

	return uniqueLines(lines)
}

func uniqueLines(lines []string) []string {
	seen := make(map[string]struct{}, len(lines))
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}
