// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"strconv"
	"strings"
)

// =============================================================================
// OVERRIDES
// =============================================================================

// Overrides are settings taken from the environment or the command line.
// They sit on top of the saved configuration for the life of the process
// and are never written back to the config file. Empty fields are unset.
type Overrides struct {
	// Endpoint selects the active endpoint by ID or name.
	Endpoint string

	// ServerURL, Model and APIKey replace fields of the active endpoint.
	ServerURL string
	Model     string
	APIKey    string

	ReadTimeoutSecs *int
	LogLevel        string
}

// EnvOverrides reads the CHATSTREAM_* variables:
//   - CHATSTREAM_ENDPOINT: selects the active endpoint by ID or name
//   - CHATSTREAM_SERVER_URL: overrides the active endpoint's server_url
//   - CHATSTREAM_MODEL: overrides the active endpoint's model
//   - CHATSTREAM_API_KEY: overrides the active endpoint's api_key
//   - CHATSTREAM_READ_TIMEOUT: overrides stream.read_timeout_secs
//   - CHATSTREAM_LOG_LEVEL: overrides log.level
func EnvOverrides() Overrides {
	o := Overrides{
		Endpoint:  os.Getenv("CHATSTREAM_ENDPOINT"),
		ServerURL: os.Getenv("CHATSTREAM_SERVER_URL"),
		Model:     os.Getenv("CHATSTREAM_MODEL"),
		APIKey:    os.Getenv("CHATSTREAM_API_KEY"),
		LogLevel:  strings.ToLower(os.Getenv("CHATSTREAM_LOG_LEVEL")),
	}
	if secs := os.Getenv("CHATSTREAM_READ_TIMEOUT"); secs != "" {
		if n, err := strconv.Atoi(secs); err == nil {
			o.ReadTimeoutSecs = &n
		}
	}
	return o
}

// Merge returns o with every field set in other taking precedence.
func (o Overrides) Merge(other Overrides) Overrides {
	pick := func(a, b string) string {
		if b != "" {
			return b
		}
		return a
	}
	o.Endpoint = pick(o.Endpoint, other.Endpoint)
	o.ServerURL = pick(o.ServerURL, other.ServerURL)
	o.Model = pick(o.Model, other.Model)
	o.APIKey = pick(o.APIKey, other.APIKey)
	o.LogLevel = pick(o.LogLevel, other.LogLevel)
	if other.ReadTimeoutSecs != nil {
		o.ReadTimeoutSecs = other.ReadTimeoutSecs
	}
	return o
}

func (o Overrides) editsEndpoint() bool {
	return o.ServerURL != "" || o.Model != "" || o.APIKey != ""
}

// Apply writes the overrides into c. An Endpoint that names no saved
// endpoint is an ErrNoEndpoint error.
func (o Overrides) Apply(c *Config) error {
	if o.Endpoint != "" {
		if err := c.SetActive(o.Endpoint); err != nil {
			return err
		}
	}
	if o.editsEndpoint() {
		err := c.EditActive(func(ep *Endpoint) {
			if o.ServerURL != "" {
				ep.ServerURL = o.ServerURL
			}
			if o.Model != "" {
				ep.Model = o.Model
			}
			if o.APIKey != "" {
				ep.APIKey = o.APIKey
			}
		})
		if err != nil {
			return err
		}
	}
	if o.ReadTimeoutSecs != nil {
		c.Stream.ReadTimeoutSecs = *o.ReadTimeoutSecs
	}
	if o.LogLevel != "" {
		c.Log.Level = o.LogLevel
	}
	return nil
}

// Applied returns a validated copy of base with the overrides applied.
func (o Overrides) Applied(base *Config) (*Config, error) {
	eff := base.Clone()
	if err := o.Apply(eff); err != nil {
		return nil, err
	}
	if err := eff.Validate(); err != nil {
		return nil, err
	}
	return eff, nil
}

// settle drops the overrides that an explicit change has replaced. before
// and after are the targeted endpoint around the change.
func (o Overrides) settle(before, after Endpoint) Overrides {
	if before.ID != after.ID {
		o.Endpoint = ""
	}
	if after.ServerURL != before.ServerURL {
		o.ServerURL = ""
	}
	if after.Model != before.Model {
		o.Model = ""
	}
	if after.APIKey != before.APIKey {
		o.APIKey = ""
	}
	return o
}
