// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jeranaias/chatstream/internal/config"
	"github.com/jeranaias/chatstream/internal/util"
)

// maxErrorBody caps how much of a failed response is read for its message.
const maxErrorBody = 4 * 1024

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig holds configuration options for the client.
type ClientConfig struct {
	// ConnectTimeout bounds dialing and the TLS handshake (default: 10s)
	ConnectTimeout time.Duration

	// RequestTimeout bounds non-streaming requests such as probes (default: 30s)
	RequestTimeout time.Duration

	// UserAgent is sent with every request.
	UserAgent string

	// Log receives request diagnostics. Defaults to the standard logger.
	Log *logrus.Entry
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		ConnectTimeout: 10 * time.Second,
		RequestTimeout: 30 * time.Second,
		UserAgent:      "chatstream",
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to one or more chat-completions endpoints. The endpoint is
// passed per call, so a single Client serves every saved configuration.
//
// The Client is thread-safe for concurrent use.
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
	log        *logrus.Entry
}

// NewClient creates a client with default configuration.
func NewClient() *Client {
	return NewClientWithConfig(DefaultConfig())
}

// NewClientWithConfig creates a client with custom configuration. Zero
// values are filled from DefaultConfig.
func NewClientWithConfig(cfg *ClientConfig) *Client {
	defaults := DefaultConfig()
	if cfg == nil {
		cfg = defaults
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = defaults.ConnectTimeout
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = defaults.RequestTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaults.UserAgent
	}
	log := cfg.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: cfg.ConnectTimeout,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Client{
		config: cfg,
		// No client-wide Timeout: it would cut long streams. Streams are
		// bounded by their context and the driver's read timeout.
		httpClient: &http.Client{Transport: transport},
		log:        log.WithField("component", "openai"),
	}
}

// Config returns the client configuration.
func (c *Client) Config() *ClientConfig {
	return c.config
}

// =============================================================================
// REQUESTS
// =============================================================================

// BuildRequest assembles the request body for an endpoint snapshot.
func BuildRequest(ep config.Endpoint, messages []ChatMessage, stream bool) ChatRequest {
	return ChatRequest{
		Model:            ep.Model,
		Messages:         messages,
		MaxTokens:        ep.MaxTokens,
		Temperature:      ep.Temperature,
		TopP:             ep.TopP,
		FrequencyPenalty: ep.FrequencyPenalty,
		PresencePenalty:  ep.PresencePenalty,
		Stream:           stream,
	}
}

func (c *Client) newRequest(ctx context.Context, ep config.Endpoint, body ChatRequest) (*http.Request, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidRequest, Message: "failed to marshal request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.ServerURL, bytes.NewReader(payload))
	if err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidRequest, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)
	if body.Stream {
		req.Header.Set("Accept", "text/event-stream")
	} else {
		req.Header.Set("Accept", "application/json")
	}
	if ep.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+ep.APIKey)
	}
	return req, nil
}

// OpenStream starts a streaming chat completion and returns the response
// body once the server has answered with a 2xx status. The caller owns the
// body and must close it. Canceling ctx aborts the request and any pending
// body read.
func (c *Client) OpenStream(ctx context.Context, ep config.Endpoint, messages []ChatMessage) (io.ReadCloser, error) {
	req, err := c.newRequest(ctx, ep, BuildRequest(ep, messages, true))
	if err != nil {
		return nil, err
	}

	c.log.WithFields(logrus.Fields{
		"url":      ep.ServerURL,
		"model":    ep.Model,
		"messages": len(messages),
	}).Debug("Opening stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer drainAndClose(resp.Body)
		return nil, statusError(resp.StatusCode, resp.Status, readErrorDetail(resp.Body))
	}

	if resp.Body == nil || resp.Body == http.NoBody {
		if resp.Body != nil {
			resp.Body.Close()
		}
		return nil, ErrNoBody
	}

	return resp.Body, nil
}

// Chat performs a non-streaming chat completion, bounded by RequestTimeout.
func (c *Client) Chat(ctx context.Context, ep config.Endpoint, messages []ChatMessage) (*ChatResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	req, err := c.newRequest(ctx, ep, BuildRequest(ep, messages, false))
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(resp.StatusCode, resp.Status, readErrorDetail(resp.Body))
	}

	var out ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode response", Cause: err}
	}
	return &out, nil
}

// readErrorDetail extracts the server's message from an error response,
// falling back to the first line of the raw body.
func readErrorDetail(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil || len(data) == 0 {
		return ""
	}
	var eb errorBody
	if json.Unmarshal(data, &eb) == nil {
		if msg := eb.message(); msg != "" {
			return msg
		}
	}
	return util.TruncateWidth(util.FirstLine(string(data)), 200)
}

// drainAndClose reads any remaining body so the connection can be reused.
func drainAndClose(r io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(r, maxErrorBody))
	_ = r.Close()
}

// String describes the client for debugging.
func (c *Client) String() string {
	return fmt.Sprintf("openai.Client{connect=%s, request=%s}", c.config.ConnectTimeout, c.config.RequestTimeout)
}
