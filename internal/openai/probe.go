// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package openai

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/jeranaias/chatstream/internal/config"
	"github.com/jeranaias/chatstream/internal/util"
)

// =============================================================================
// SERVER STATUS PROBE
// =============================================================================

// CheckStatus is the outcome of one probe check.
type CheckStatus string

const (
	CheckOK      CheckStatus = "ok"
	CheckWarning CheckStatus = "warning"
	CheckFailed  CheckStatus = "error"
	CheckSkipped CheckStatus = "skipped"
)

// Check is one line of a probe report.
type Check struct {
	Name   string
	Status CheckStatus
	Detail string
}

// ProbeReport summarizes whether an endpoint is usable.
type ProbeReport struct {
	Endpoint string
	Checks   []Check
	Latency  time.Duration
	Reply    string
}

// OK reports whether no check failed. Warnings do not count as failures.
func (r ProbeReport) OK() bool {
	for _, c := range r.Checks {
		if c.Status == CheckFailed {
			return false
		}
	}
	return true
}

func (r *ProbeReport) add(name string, status CheckStatus, format string, args ...any) {
	r.Checks = append(r.Checks, Check{Name: name, Status: status, Detail: fmt.Sprintf(format, args...)})
}

// Probe checks that an endpoint's URL is well formed, flags plaintext
// traffic that would expose an API key, and sends a small non-streaming
// completion to confirm the server answers.
func (c *Client) Probe(ctx context.Context, ep config.Endpoint) ProbeReport {
	report := ProbeReport{Endpoint: ep.ServerURL}

	u, err := url.Parse(ep.ServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		report.add("url", CheckFailed, "not an http(s) URL: %q", ep.ServerURL)
		report.add("reachable", CheckSkipped, "invalid URL")
		report.add("cors", CheckSkipped, "browser-only check")
		return report
	}
	report.add("url", CheckOK, "%s", u.Redacted())

	switch {
	case u.Scheme == "https":
		report.add("transport", CheckOK, "TLS")
	case isLocalHost(u.Hostname()):
		report.add("transport", CheckOK, "plaintext on local network")
	case ep.APIKey != "":
		report.add("transport", CheckWarning, "API key would be sent unencrypted to %s", u.Hostname())
	default:
		report.add("transport", CheckWarning, "plaintext connection to public host %s", u.Hostname())
	}

	start := time.Now()
	resp, err := c.Chat(ctx, ep, []ChatMessage{{Role: "user", Content: "test"}})
	report.Latency = time.Since(start)
	switch {
	case err == nil:
		report.Reply = util.FirstLine(resp.Content())
		report.add("reachable", CheckOK, "%s answered in %s", ep.Model, report.Latency.Round(time.Millisecond))
	case IsStatus(err):
		report.add("reachable", CheckFailed, "%v", err)
	case IsTimeout(err):
		report.add("reachable", CheckFailed, "no answer within %s", c.config.RequestTimeout)
	default:
		report.add("reachable", CheckFailed, "%v", err)
	}

	report.add("cors", CheckSkipped, "browser-only check")
	return report
}

// isLocalHost reports whether host is loopback, private, link-local or an
// mDNS/localhost name.
func isLocalHost(host string) bool {
	h := strings.ToLower(host)
	if h == "localhost" || strings.HasSuffix(h, ".localhost") || strings.HasSuffix(h, ".local") {
		return true
	}
	ip := net.ParseIP(h)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast()
}
