package main

import (
	"context"
	"errors"
	"net"
	"net/http"

	"docvault/internal/api"
)

// Server error codes the CLI has specific guidance for.
const (
	errorCodeSyncDisabled    = 2301
	errorCodeSessionRequired = 3004
)

func formatCLIError(err error) []string {
	if err == nil {
		return nil
	}

	lines := []string{err.Error()}

	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case "unauthorized", "forbidden":
			if apiErr.ErrorCode == errorCodeSessionRequired {
				lines = append(lines, "hint: create a session with: docvault session create <user>, then export the printed variables.")
			} else {
				lines = append(lines, "hint: verify DOCVAULT_API_TOKEN and DOCVAULT_ADMIN_TOKEN configuration.")
			}
		case "resource_exhausted":
			lines = append(lines, "hint: retry shortly or reduce concurrent uploads.")
		case "locked":
			lines = append(lines, "hint: another session holds the lock; list holders with: docvault locks list")
		case "failed_precondition":
			if apiErr.ErrorCode == errorCodeSyncDisabled {
				lines = append(lines, "hint: configure remote.url (or DOCVAULT_REMOTE_URL) to enable sync.")
			}
		}
		if apiErr.Code == "" {
			lines = append(lines, "hint: verify DOCVAULT_API_URL points to a docvault server.")
		}
		switch {
		case apiErr.Status == http.StatusBadGateway || apiErr.Status == http.StatusServiceUnavailable:
			lines = append(lines, "hint: the remote is unreachable or busy; retry the sync shortly.")
		case apiErr.Status >= 500:
			lines = append(lines, "hint: server returned an internal error; check server logs for details.")
		}
		return uniqueLines(lines)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		lines = append(lines, "hint: request timed out; check server health or increase DOCVAULT_HTTP_TIMEOUT.")
		return uniqueLines(lines)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		lines = append(lines,
			"hint: ensure a docvault server is running at DOCVAULT_API_URL.",
			"hint: start local server manually with: docvault srv",
			"hint: you can increase DOCVAULT_HTTP_TIMEOUT for slower environments.",
		)
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
