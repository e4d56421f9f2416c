// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// =============================================================================
// URL HELPERS
// =============================================================================

// NormalizeURL trims the URL and prefixes http:// when no scheme is given,
// so "localhost:11434/v1/chat/completions" works as typed.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	lower := strings.ToLower(raw)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return raw
	}
	return "http://" + raw
}

// DefaultName derives an endpoint name from its URL: the hostname, or the
// raw text when it does not parse.
func DefaultName(rawURL string) string {
	u, err := url.Parse(NormalizeURL(rawURL))
	if err != nil || u.Hostname() == "" {
		if s := strings.TrimSpace(rawURL); s != "" {
			return s
		}
		return "endpoint"
	}
	return u.Hostname()
}

func newEndpointID() string {
	return uuid.NewString()
}

// =============================================================================
// SAVED ENDPOINTS
// =============================================================================

// findRef finds an endpoint by ID, then by case-insensitive name.
func (c *Config) findRef(key string) *Endpoint {
	for i := range c.Endpoints {
		if c.Endpoints[i].ID == key {
			return &c.Endpoints[i]
		}
	}
	for i := range c.Endpoints {
		if strings.EqualFold(c.Endpoints[i].Name, key) {
			return &c.Endpoints[i]
		}
	}
	return nil
}

// FindEndpoint returns a copy of the endpoint with the given ID or name.
func (c *Config) FindEndpoint(key string) (Endpoint, bool) {
	if ep := c.findRef(key); ep != nil {
		return *ep, true
	}
	return Endpoint{}, false
}

// AddEndpoint saves a new endpoint. The URL is normalised, a fresh ID is
// assigned, and an empty name defaults to the URL's hostname. The stored
// copy is returned.
func (c *Config) AddEndpoint(ep Endpoint) (Endpoint, error) {
	ep.ID = newEndpointID()
	fillEndpoint(&ep)

	if err := ValidateEndpoint(ep); err != nil {
		return Endpoint{}, err
	}
	if c.findRef(ep.Name) != nil {
		return Endpoint{}, fmt.Errorf("endpoint %q already exists", ep.Name)
	}
	c.Endpoints = append(c.Endpoints, ep)
	return ep, nil
}

// RemoveEndpoint deletes an endpoint by ID or name. The last endpoint cannot
// be removed. Removing the active endpoint makes the first one active.
func (c *Config) RemoveEndpoint(key string) error {
	target := c.findRef(key)
	if target == nil {
		return fmt.Errorf("%w: %q not found", ErrNoEndpoint, key)
	}
	if len(c.Endpoints) == 1 {
		return fmt.Errorf("cannot remove the only endpoint %q", target.Name)
	}

	id := target.ID
	wasActive := c.activeRef() == target
	kept := c.Endpoints[:0]
	for _, ep := range c.Endpoints {
		if ep.ID != id {
			kept = append(kept, ep)
		}
	}
	c.Endpoints = kept
	if wasActive {
		c.Active = ""
	}
	return nil
}

// RenameEndpoint changes an endpoint's display name.
func (c *Config) RenameEndpoint(key, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("endpoint name cannot be empty")
	}
	target := c.findRef(key)
	if target == nil {
		return fmt.Errorf("%w: %q not found", ErrNoEndpoint, key)
	}
	if other := c.findRef(name); other != nil && other != target {
		return fmt.Errorf("endpoint %q already exists", name)
	}
	if strings.EqualFold(c.Active, target.Name) {
		c.Active = target.ID
	}
	target.Name = name
	return nil
}

// SetActive selects the endpoint used for new sends.
func (c *Config) SetActive(key string) error {
	target := c.findRef(key)
	if target == nil {
		return fmt.Errorf("%w: %q not found", ErrNoEndpoint, key)
	}
	c.Active = target.ID
	return nil
}

// EditActive applies fn to the active endpoint in place. Validation is
// left to the caller, normally Store.Update.
func (c *Config) EditActive(fn func(*Endpoint)) error {
	target := c.activeRef()
	if target == nil {
		return ErrNoEndpoint
	}
	fn(target)
	fillEndpoint(target)
	return nil
}
