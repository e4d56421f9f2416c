// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"CHATSTREAM_ENDPOINT", "CHATSTREAM_SERVER_URL", "CHATSTREAM_MODEL",
		"CHATSTREAM_API_KEY", "CHATSTREAM_READ_TIMEOUT", "CHATSTREAM_LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	require.Len(t, cfg.Endpoints, 1)
	ep := cfg.Endpoints[0]
	assert.Equal(t, "http://10.0.0.236:11434/v1/chat/completions", ep.ServerURL)
	assert.Equal(t, "qwen2.5", ep.Model)
	assert.Equal(t, 0.7, ep.Temperature)
	assert.Equal(t, 150, ep.MaxTokens)
	assert.Equal(t, 0.9, ep.TopP)
	assert.Equal(t, 0.0, ep.FrequencyPenalty)
	assert.Equal(t, 0.0, ep.PresencePenalty)
	assert.Equal(t, "10.0.0.236", ep.Name)

	assert.NoError(t, cfg.Validate())
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"   ", ""},
		{"localhost:11434/v1/chat/completions", "http://localhost:11434/v1/chat/completions"},
		{"http://host/v1", "http://host/v1"},
		{"https://api.example.com/v1", "https://api.example.com/v1"},
		{"HTTPS://API.example.com", "HTTPS://API.example.com"},
		{"  10.0.0.5:8080  ", "http://10.0.0.5:8080"},
	}
	for _, tt := range tests {
		if got := NormalizeURL(tt.in); got != tt.want {
			t.Errorf("NormalizeURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDefaultName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"http://10.0.0.236:11434/v1/chat/completions", "10.0.0.236"},
		{"localhost:1234/v1", "localhost"},
		{"https://api.openai.com/v1/chat/completions", "api.openai.com"},
		{"", "endpoint"},
	}
	for _, tt := range tests {
		if got := DefaultName(tt.in); got != tt.want {
			t.Errorf("DefaultName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidate_Ranges(t *testing.T) {
	cfg := Default()
	cfg.Endpoints[0].Temperature = 3
	cfg.Endpoints[0].TopP = -0.1
	cfg.Endpoints[0].MaxTokens = 0
	cfg.Endpoints[0].ServerURL = "ftp://host"
	cfg.UI.Theme = "neon"

	err := cfg.Validate()
	require.Error(t, err)

	var verrs ValidateErrors
	require.True(t, errors.As(err, &verrs))

	fields := make(map[string]bool)
	for _, e := range verrs {
		fields[e.Field] = true
	}
	for _, f := range []string{
		"endpoints[0].temperature",
		"endpoints[0].top_p",
		"endpoints[0].max_tokens",
		"endpoints[0].server_url",
		"ui.theme",
	} {
		assert.True(t, fields[f], "expected validation error for %s, got %v", f, err)
	}
}

func TestValidate_UnknownActive(t *testing.T) {
	cfg := Default()
	cfg.Active = "missing"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "active")
}

func TestValidate_DuplicateNames(t *testing.T) {
	cfg := Default()
	dup := cfg.Endpoints[0]
	dup.ID = "other"
	cfg.Endpoints = append(cfg.Endpoints, dup)
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestEndpointLifecycle(t *testing.T) {
	cfg := Default()

	added, err := cfg.AddEndpoint(Endpoint{ServerURL: "lmstudio.local:1234/v1/chat/completions", Model: "llama3"})
	require.NoError(t, err)
	assert.Equal(t, "lmstudio.local", added.Name)
	assert.Equal(t, "http://lmstudio.local:1234/v1/chat/completions", added.ServerURL)
	assert.NotEmpty(t, added.ID)
	assert.Equal(t, DefaultMaxTokens, added.MaxTokens)

	_, err = cfg.AddEndpoint(Endpoint{ServerURL: "http://lmstudio.local:9999", Model: "x"})
	assert.Error(t, err, "duplicate default name must be rejected")

	require.NoError(t, cfg.SetActive("LMSTUDIO.local"))
	ep, err := cfg.ActiveEndpoint()
	require.NoError(t, err)
	assert.Equal(t, added.ID, ep.ID)

	require.NoError(t, cfg.RenameEndpoint(added.ID, "studio"))
	ep, _ = cfg.ActiveEndpoint()
	assert.Equal(t, "studio", ep.Name)

	require.NoError(t, cfg.RemoveEndpoint("studio"))
	ep, err = cfg.ActiveEndpoint()
	require.NoError(t, err)
	assert.Equal(t, "default", ep.ID, "removing the active endpoint falls back to the first")

	assert.Error(t, cfg.RemoveEndpoint("default"), "the last endpoint cannot be removed")
	assert.Error(t, cfg.SetActive("nope"))
	assert.NoError(t, cfg.Validate())
}

func TestActiveEndpointIsCopy(t *testing.T) {
	cfg := Default()
	ep, err := cfg.ActiveEndpoint()
	require.NoError(t, err)
	ep.Model = "changed"
	assert.Equal(t, DefaultModel, cfg.Endpoints[0].Model)
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHATSTREAM_SERVER_URL", "otherhost:8080/v1/chat/completions")
	t.Setenv("CHATSTREAM_MODEL", "mistral")
	t.Setenv("CHATSTREAM_API_KEY", "sk-test")
	t.Setenv("CHATSTREAM_READ_TIMEOUT", "5")
	t.Setenv("CHATSTREAM_LOG_LEVEL", "DEBUG")

	cfg := Default()
	require.NoError(t, EnvOverrides().Apply(cfg))

	ep, err := cfg.ActiveEndpoint()
	require.NoError(t, err)
	assert.Equal(t, "http://otherhost:8080/v1/chat/completions", ep.ServerURL)
	assert.Equal(t, "mistral", ep.Model)
	assert.Equal(t, "sk-test", ep.APIKey)
	assert.Equal(t, 5, cfg.Stream.ReadTimeoutSecs)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestStringRedactsKeys(t *testing.T) {
	cfg := Default()
	cfg.Endpoints[0].APIKey = "sk-secret-value"

	s := cfg.String()
	assert.NotContains(t, s, "sk-secret-value")
	assert.Contains(t, s, "[REDACTED]")
	assert.Equal(t, "sk-secret-value", cfg.Endpoints[0].APIKey, "String must not modify the config")
	assert.Equal(t, "[REDACTED]", cfg.Endpoints[0].Redacted().APIKey)
}

func TestCloneIsDeep(t *testing.T) {
	cfg := Default()
	clone := cfg.Clone()
	clone.Endpoints[0].Model = "other"
	assert.Equal(t, DefaultModel, cfg.Endpoints[0].Model)
}

func TestSaveAndLoadTOML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg := Default()
	_, err := cfg.AddEndpoint(Endpoint{Name: "cloud", ServerURL: "https://api.example.com/v1/chat/completions", Model: "gpt", APIKey: "k"})
	require.NoError(t, err)
	require.NoError(t, cfg.SetActive("cloud"))
	cfg.Endpoints[0].Temperature = 0
	require.NoError(t, SaveTOML(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := LoadFromPath(path)
	require.NoError(t, err)
	require.Len(t, loaded.Endpoints, 2)
	assert.Equal(t, 0.0, loaded.Endpoints[0].Temperature, "zero temperature survives a round trip")

	ep, err := loaded.ActiveEndpoint()
	require.NoError(t, err)
	assert.Equal(t, "cloud", ep.Name)
	assert.Equal(t, "k", ep.APIKey)
}

func TestLoadTOML_FillsMissingEndpointFields(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
[[endpoints]]
server_url = "gpu-box:11434/v1/chat/completions"
temperature = 0.2
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0600))

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	require.Len(t, cfg.Endpoints, 1)
	ep := cfg.Endpoints[0]
	assert.Equal(t, "gpu-box", ep.Name)
	assert.Equal(t, "http://gpu-box:11434/v1/chat/completions", ep.ServerURL)
	assert.Equal(t, DefaultModel, ep.Model)
	assert.Equal(t, DefaultMaxTokens, ep.MaxTokens)
	assert.Equal(t, 0.2, ep.Temperature)
	assert.NotEqual(t, "default", ep.ID)

	// Sections missing from the file keep their defaults.
	assert.Equal(t, 60, cfg.Stream.ReadTimeoutSecs)
	assert.True(t, cfg.UI.Markdown)
}

func TestLoadJSON(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, SaveJSON(Default(), path))

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultServerURL, cfg.Endpoints[0].ServerURL)
}

func TestLoadFromPath_Invalid(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[ui]\ntheme = \"neon\"\n"), 0600))

	_, err := LoadFromPath(path)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "ui.theme"), "got %v", err)
}

func TestLoad_UsesHomeAndDotEnv(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()
	t.Setenv("HOME", home)
	// godotenv never overrides a variable that is already set, even to "".
	require.NoError(t, os.Unsetenv("CHATSTREAM_MODEL"))
	require.NoError(t, os.MkdirAll(filepath.Join(home, ".chatstream"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(home, ".chatstream", ".env"), []byte("CHATSTREAM_MODEL=from-dotenv\n"), 0600))
	t.Cleanup(func() { os.Unsetenv("CHATSTREAM_MODEL") })

	cfg, path, err := Load()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".chatstream", "config.toml"), path)
	assert.Equal(t, DefaultModel, cfg.Endpoints[0].Model, "Load returns the saved config only")
	assert.Equal(t, "from-dotenv", EnvOverrides().Model)
}

func TestOverrides_MergePrefersLaterValues(t *testing.T) {
	secs := 7
	o := Overrides{Model: "env-model", APIKey: "sk-env"}.Merge(Overrides{Model: "flag-model", ReadTimeoutSecs: &secs})
	assert.Equal(t, "flag-model", o.Model)
	assert.Equal(t, "sk-env", o.APIKey)
	require.NotNil(t, o.ReadTimeoutSecs)
	assert.Equal(t, 7, *o.ReadTimeoutSecs)
}

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, SaveTOML(Default(), path))
	logger, _ := test.NewNullLogger()
	return NewStore(Default(), path, logrus.NewEntry(logger)), path
}

func TestStore_SnapshotImmutable(t *testing.T) {
	store, _ := newTestStore(t)

	snap, err := store.Snapshot()
	require.NoError(t, err)

	require.NoError(t, store.Update(func(c *Config) error {
		c.Endpoints[0].Model = "edited"
		return nil
	}))

	assert.Equal(t, DefaultModel, snap.Model, "a taken snapshot never changes")
	next, _ := store.Snapshot()
	assert.Equal(t, "edited", next.Model)
}

func TestStore_UpdateRejectsInvalid(t *testing.T) {
	store, path := newTestStore(t)
	before, _ := os.ReadFile(path)

	err := store.Update(func(c *Config) error {
		c.Endpoints[0].Temperature = 9
		return nil
	})
	require.Error(t, err)

	after, _ := os.ReadFile(path)
	assert.Equal(t, before, after, "file untouched on invalid update")
	ep, _ := store.Snapshot()
	assert.Equal(t, DefaultTemperature, ep.Temperature)
}

func TestStore_UpdatePersistsAndNotifies(t *testing.T) {
	store, path := newTestStore(t)

	var notified *Config
	store.OnChange(func(c *Config) { notified = c })

	require.NoError(t, store.Update(func(c *Config) error {
		_, err := c.AddEndpoint(Endpoint{Name: "second", ServerURL: "http://127.0.0.1:1234", Model: "m"})
		return err
	}))
	require.NotNil(t, notified)
	assert.Len(t, notified.Endpoints, 2)

	reloaded, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Len(t, reloaded.Endpoints, 2)
}

func TestStore_WatchReloads(t *testing.T) {
	store, path := newTestStore(t)

	changed := make(chan *Config, 4)
	store.OnChange(func(c *Config) { changed <- c })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, store.Watch(ctx))

	edited := Default()
	edited.Endpoints[0].Model = "hot-reloaded"
	require.NoError(t, SaveTOML(edited, path))

	select {
	case c := <-changed:
		assert.Equal(t, "hot-reloaded", c.Endpoints[0].Model)
	case <-time.After(5 * time.Second):
		t.Fatal("config change was not picked up")
	}

	ep, _ := store.Snapshot()
	assert.Equal(t, "hot-reloaded", ep.Model)
}

func TestEditActive(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.EditActive(func(ep *Endpoint) {
		ep.Model = "llama3.2"
		ep.ServerURL = "gpu.local:11434/v1/chat/completions"
	}))
	ep, err := cfg.ActiveEndpoint()
	require.NoError(t, err)
	assert.Equal(t, "llama3.2", ep.Model)
	assert.Equal(t, "http://gpu.local:11434/v1/chat/completions", ep.ServerURL)

	empty := &Config{}
	assert.ErrorIs(t, empty.EditActive(func(*Endpoint) {}), ErrNoEndpoint)
}

func TestStore_UpdateNeverSavesEnvAPIKey(t *testing.T) {
	store, path := newTestStore(t)
	t.Setenv("CHATSTREAM_API_KEY", "sk-secret-from-env")
	require.NoError(t, store.SetOverrides(EnvOverrides()))

	ep, err := store.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, "sk-secret-from-env", ep.APIKey)

	require.NoError(t, store.Update(func(c *Config) error {
		_, err := c.AddEndpoint(Endpoint{Name: "second", ServerURL: "http://127.0.0.1:1234", Model: "m"})
		return err
	}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "sk-secret-from-env")
	assert.Empty(t, store.Saved().Endpoints[0].APIKey)

	ep, err = store.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, "sk-secret-from-env", ep.APIKey, "the override still applies after saving")
}

func TestStore_ExplicitEditReplacesOverride(t *testing.T) {
	store, path := newTestStore(t)
	require.NoError(t, store.SetOverrides(Overrides{Model: "flag-model", APIKey: "sk-flag"}))

	require.NoError(t, store.Update(func(c *Config) error {
		return c.EditActive(func(ep *Endpoint) { ep.Model = "chosen-model" })
	}))

	ep, err := store.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, "chosen-model", ep.Model)
	assert.Equal(t, "sk-flag", ep.APIKey)

	reloaded, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "chosen-model", reloaded.Endpoints[0].Model)
	assert.Empty(t, reloaded.Endpoints[0].APIKey)
}

func TestStore_EndpointOverrideIsNotSaved(t *testing.T) {
	store, path := newTestStore(t)
	require.NoError(t, store.Update(func(c *Config) error {
		_, err := c.AddEndpoint(Endpoint{Name: "lab", ServerURL: "http://lab:8080/v1/chat/completions", Model: "mistral"})
		return err
	}))
	require.NoError(t, store.SetOverrides(Overrides{Endpoint: "lab"}))

	require.NoError(t, store.Update(func(c *Config) error {
		return c.EditActive(func(ep *Endpoint) { ep.Temperature = 0.2 })
	}))

	ep, err := store.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, "lab", ep.Name)
	assert.Equal(t, 0.2, ep.Temperature, "edits go to the endpoint in use")

	reloaded, err := LoadFromPath(path)
	require.NoError(t, err)
	active, err := reloaded.ActiveEndpoint()
	require.NoError(t, err)
	assert.Equal(t, DefaultEndpoint().Name, active.Name, "the saved selection is unchanged")
}

func TestStore_ReloadKeepsOverrides(t *testing.T) {
	store, path := newTestStore(t)
	require.NoError(t, store.SetOverrides(Overrides{Model: "cli-model"}))

	edited := Default()
	edited.Stream.ReadTimeoutSecs = 42
	require.NoError(t, SaveTOML(edited, path))
	require.NoError(t, store.Reload())

	assert.Equal(t, 42, store.Config().Stream.ReadTimeoutSecs)
	ep, err := store.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, "cli-model", ep.Model)
}

func TestStore_SetOverridesRejectsUnknownEndpoint(t *testing.T) {
	store, _ := newTestStore(t)
	err := store.SetOverrides(Overrides{Endpoint: "missing"})
	assert.ErrorIs(t, err, ErrNoEndpoint)

	ep, err := store.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, ep.Model)
}
