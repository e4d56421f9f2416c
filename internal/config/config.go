// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config handles loading and saving chatstream configuration.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/jeranaias/chatstream/internal/util"
)

// =============================================================================
// CONFIG TYPES
// =============================================================================

// Config is the top-level configuration structure.
type Config struct {
	// Version of the config file format
	Version string `toml:"version" json:"version"`

	// Active names the endpoint used for new sends, by ID or name.
	// Empty selects the first endpoint.
	Active string `toml:"active" json:"active"`

	// Endpoints are the saved server configurations.
	Endpoints []Endpoint `toml:"endpoints" json:"endpoints" validate:"required,min=1,dive"`

	Stream StreamConfig `toml:"stream" json:"stream"`
	UI     UIConfig     `toml:"ui" json:"ui"`
	Log    LogConfig    `toml:"log" json:"log"`
}

// Endpoint is one chat-completions server and the sampling parameters sent
// with every request to it. It is a plain value: a copy taken at send time
// is the immutable snapshot the request is built from.
type Endpoint struct {
	ID        string `toml:"id" json:"id"`
	Name      string `toml:"name" json:"name" validate:"required,max=64"`
	ServerURL string `toml:"server_url" json:"server_url" validate:"required,http_url"`
	Model     string `toml:"model" json:"model" validate:"required"`
	APIKey    string `toml:"api_key,omitempty" json:"api_key,omitempty"`

	Temperature      float64 `toml:"temperature" json:"temperature" validate:"gte=0,lte=2"`
	MaxTokens        int     `toml:"max_tokens" json:"max_tokens" validate:"gte=1,lte=1000000"`
	TopP             float64 `toml:"top_p" json:"top_p" validate:"gte=0,lte=1"`
	FrequencyPenalty float64 `toml:"frequency_penalty" json:"frequency_penalty" validate:"gte=-2,lte=2"`
	PresencePenalty  float64 `toml:"presence_penalty" json:"presence_penalty" validate:"gte=-2,lte=2"`
}

// StreamConfig controls the stream driver.
type StreamConfig struct {
	// ReadTimeoutSecs bounds each wait for the next body chunk. 0 disables it.
	ReadTimeoutSecs int `toml:"read_timeout_secs" json:"read_timeout_secs" validate:"gte=0,lte=3600"`

	// ConnectTimeoutSecs bounds dialing the server.
	ConnectTimeoutSecs int `toml:"connect_timeout_secs" json:"connect_timeout_secs" validate:"gte=0,lte=600"`

	// SendHistory sends the whole transcript instead of only the new message.
	SendHistory bool `toml:"send_history" json:"send_history"`

	// ChunkSize is the read buffer size for the response body.
	ChunkSize int `toml:"chunk_size" json:"chunk_size" validate:"gte=0,lte=1048576"`
}

// UIConfig holds render surface settings.
type UIConfig struct {
	Theme    string `toml:"theme" json:"theme" validate:"oneof=auto dark light"`
	Markdown bool   `toml:"markdown" json:"markdown"`

	// ScrollTolerance is how many lines from the bottom still count as
	// following new output.
	ScrollTolerance int `toml:"scroll_tolerance" json:"scroll_tolerance" validate:"gte=0,lte=100"`

	// MaxFPS caps how often streaming output is re-rendered.
	MaxFPS int `toml:"max_fps" json:"max_fps" validate:"gte=1,lte=120"`
}

// LogConfig controls the log file.
type LogConfig struct {
	Level string `toml:"level" json:"level" validate:"oneof=panic fatal error warn warning info debug trace"`
	File  string `toml:"file,omitempty" json:"file,omitempty"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

const (
	currentVersion = "1"

	DefaultServerURL   = "http://10.0.0.236:11434/v1/chat/completions"
	DefaultModel       = "qwen2.5"
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 150
	DefaultTopP        = 0.9
)

// DefaultEndpoint returns the endpoint used when nothing is configured.
func DefaultEndpoint() Endpoint {
	return Endpoint{
		ID:          "default",
		Name:        DefaultName(DefaultServerURL),
		ServerURL:   DefaultServerURL,
		Model:       DefaultModel,
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
		TopP:        DefaultTopP,
	}
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Version:   currentVersion,
		Endpoints: []Endpoint{DefaultEndpoint()},
		Stream: StreamConfig{
			ReadTimeoutSecs:    60,
			ConnectTimeoutSecs: 10,
			ChunkSize:          4096,
		},
		UI: UIConfig{
			Theme:           "auto",
			Markdown:        true,
			ScrollTolerance: 2,
			MaxFPS:          30,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the chatstream configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".chatstream"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// LogPath returns the log file path, honouring Log.File.
func (c *Config) LogPath() (string, error) {
	if c.Log.File != "" {
		return c.Log.File, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "chatstream.log"), nil
}

// ensureSecurePermissions checks and fixes permissions on config files.
// SECURITY: Config files should be 0600 (owner read/write only) to protect API keys.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads the saved configuration from the config directory.
// Tries TOML first, then JSON, and falls back to defaults. .env files are
// read into the process environment, where EnvOverrides picks them up; the
// returned config itself carries no overrides.
//
// The returned path is where the configuration should be saved back to.
func Load() (*Config, string, error) {
	loadDotEnv()

	tomlPath, err := ConfigPathTOML()
	if err != nil {
		return nil, "", err
	}
	if _, statErr := os.Stat(tomlPath); statErr == nil {
		cfg, err := LoadFromPath(tomlPath)
		return cfg, tomlPath, err
	}

	jsonPath, err := ConfigPathJSON()
	if err != nil {
		return nil, "", err
	}
	if _, statErr := os.Stat(jsonPath); statErr == nil {
		cfg, err := LoadFromPath(jsonPath)
		return cfg, jsonPath, err
	}

	return Default(), tomlPath, nil
}

// LoadFromPath loads the configuration saved at path with full validation.
// Files ending in .json are decoded as JSON, anything else as TOML.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes a TOML file over cfg.
// SECURITY: Checks and fixes file permissions on load.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	// Saved endpoints replace the defaults rather than merging into them.
	cfg.Endpoints = nil
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	fillDefaults(cfg)
	return nil
}

// LoadJSON decodes a JSON file over cfg.
// SECURITY: Checks and fixes file permissions on load.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	cfg.Endpoints = nil
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	fillDefaults(cfg)
	return nil
}

// fillDefaults fills in missing values. Sampling parameters for which zero
// is meaningful (temperature, penalties) are left as written.
func fillDefaults(cfg *Config) {
	defaults := Default()

	if cfg.Version == "" {
		cfg.Version = defaults.Version
	}
	if len(cfg.Endpoints) == 0 {
		cfg.Endpoints = defaults.Endpoints
	}
	for i := range cfg.Endpoints {
		fillEndpoint(&cfg.Endpoints[i])
	}

	if cfg.Stream.ChunkSize == 0 {
		cfg.Stream.ChunkSize = defaults.Stream.ChunkSize
	}
	if cfg.UI.Theme == "" {
		cfg.UI.Theme = defaults.UI.Theme
	}
	if cfg.UI.MaxFPS == 0 {
		cfg.UI.MaxFPS = defaults.UI.MaxFPS
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaults.Log.Level
	}
}

func fillEndpoint(ep *Endpoint) {
	ep.ServerURL = NormalizeURL(ep.ServerURL)
	if ep.ID == "" {
		ep.ID = newEndpointID()
	}
	if ep.Name == "" {
		ep.Name = DefaultName(ep.ServerURL)
	}
	if ep.Model == "" {
		ep.Model = DefaultModel
	}
	if ep.MaxTokens == 0 {
		ep.MaxTokens = DefaultMaxTokens
	}
}

// loadDotEnv reads .env from the working directory and the config
// directory. Existing environment variables win; missing files are skipped.
func loadDotEnv() {
	var files []string
	if _, err := os.Stat(".env"); err == nil {
		files = append(files, ".env")
	}
	if dir, err := ConfigDir(); err == nil {
		p := filepath.Join(dir, ".env")
		if _, err := os.Stat(p); err == nil {
			files = append(files, p)
		}
	}
	if len(files) == 0 {
		return
	}
	if err := godotenv.Load(files...); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not load .env: %v\n", err)
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// SaveTo writes cfg to path, as JSON when the path ends in .json and TOML
// otherwise.
func SaveTo(cfg *Config, path string) error {
	if strings.HasSuffix(path, ".json") {
		return SaveJSON(cfg, path)
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file.
// SECURITY: Creates config files with 0600 permissions (owner read/write only).
// RELIABILITY: Atomic write with fsync prevents data loss on crash
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# chatstream configuration file\n")
	buf.WriteString("# Generated by chatstream - edit with care\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON saves the configuration to a JSON file.
// SECURITY: Creates config files with 0600 permissions (owner read/write only).
func SaveJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// ACTIVE ENDPOINT
// =============================================================================

// ErrNoEndpoint is returned when the active endpoint cannot be resolved.
var ErrNoEndpoint = errors.New("no endpoint configured")

// ActiveEndpoint returns a copy of the endpoint selected by Active.
func (c *Config) ActiveEndpoint() (Endpoint, error) {
	if ep := c.activeRef(); ep != nil {
		return *ep, nil
	}
	if c.Active != "" && len(c.Endpoints) > 0 {
		return Endpoint{}, fmt.Errorf("%w: %q not found", ErrNoEndpoint, c.Active)
	}
	return Endpoint{}, ErrNoEndpoint
}

// activeRef resolves Active to a pointer into Endpoints, or nil.
func (c *Config) activeRef() *Endpoint {
	if len(c.Endpoints) == 0 {
		return nil
	}
	if c.Active == "" {
		return &c.Endpoints[0]
	}
	return c.findRef(c.Active)
}

// =============================================================================
// CLONE / STRING
// =============================================================================

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	if c.Endpoints != nil {
		clone.Endpoints = make([]Endpoint, len(c.Endpoints))
		copy(clone.Endpoints, c.Endpoints)
	}
	return &clone
}

// String returns a string representation of the config for debugging.
// SECURITY: Redacts API keys to prevent accidental exposure in logs.
func (c *Config) String() string {
	safe := c.Clone()
	for i := range safe.Endpoints {
		safe.Endpoints[i].APIKey = redact(safe.Endpoints[i].APIKey)
	}
	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}

// Redacted returns a copy of the endpoint safe to print.
func (e Endpoint) Redacted() Endpoint {
	e.APIKey = redact(e.APIKey)
	return e
}

func redact(key string) string {
	if key == "" {
		return ""
	}
	return "[REDACTED]"
}
