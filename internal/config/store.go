// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// reloadDebounce collapses the burst of events editors produce on save.
const reloadDebounce = 200 * time.Millisecond

// Store holds the live configuration and hands out endpoint snapshots.
// It keeps the saved configuration apart from the process overrides, so
// only the former is ever written to disk. It is safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	base      *Config
	cfg       *Config
	overrides Overrides
	path      string
	log       *logrus.Entry
	onChange  []func(*Config)
}

// NewStore wraps cfg, which is saved to and reloaded from path.
func NewStore(cfg *Config, path string, log *logrus.Entry) *Store {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Store{
		base: cfg.Clone(),
		cfg:  cfg.Clone(),
		path: path,
		log:  log.WithField("component", "config"),
	}
}

// SetOverrides layers o over the saved configuration. Nothing changes if
// the result is invalid.
func (s *Store) SetOverrides(o Overrides) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	eff, err := o.Applied(s.base)
	if err != nil {
		return err
	}
	s.overrides = o
	s.cfg = eff
	return nil
}

// Path returns the file the store persists to.
func (s *Store) Path() string {
	return s.path
}

// Config returns a deep copy of the effective configuration.
func (s *Store) Config() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Clone()
}

// Saved returns a deep copy of the configuration as written to disk.
func (s *Store) Saved() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.base.Clone()
}

// Snapshot returns a copy of the active endpoint. Later edits to the store
// never affect a snapshot already taken.
func (s *Store) Snapshot() (Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.ActiveEndpoint()
}

// OnChange registers fn to run with a copy of the new configuration after
// every successful Update or Reload.
func (s *Store) OnChange(fn func(*Config)) {
	s.mu.Lock()
	s.onChange = append(s.onChange, fn)
	s.mu.Unlock()
}

// Update applies fn to a copy of the saved configuration, validates the
// result, saves it and makes it current. Nothing changes if any step fails.
//
// fn sees the endpoint that is active for this process as the active one.
// An override that fn explicitly replaces (selecting another endpoint,
// editing the overridden field) is dropped; the others stay in memory.
func (s *Store) Update(fn func(*Config) error) error {
	s.mu.Lock()
	next, o, err := s.prepare(fn)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	eff, err := o.Applied(next)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("invalid config: %w", err)
	}
	if s.path != "" {
		if err := SaveTo(next, s.path); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	s.base, s.cfg, s.overrides = next, eff, o
	hooks := append([]func(*Config){}, s.onChange...)
	s.mu.Unlock()

	for _, h := range hooks {
		h(eff.Clone())
	}
	return nil
}

// prepare runs fn against the saved configuration with the process's
// active endpoint selected, then restores the saved selection unless fn
// chose another one. Called with mu held.
func (s *Store) prepare(fn func(*Config) error) (*Config, Overrides, error) {
	next := s.base.Clone()
	savedActive := ""
	if ep := s.base.activeRef(); ep != nil && s.base.Active != "" {
		savedActive = ep.ID
	}

	target, _ := s.cfg.ActiveEndpoint()
	if target.ID != "" && next.findRef(target.ID) != nil {
		next.Active = target.ID
	}
	before, _ := next.ActiveEndpoint()

	if err := fn(next); err != nil {
		return nil, Overrides{}, err
	}
	after, _ := next.ActiveEndpoint()
	o := s.overrides.settle(before, after)

	kept := next.Active == target.ID
	removed := next.Active == "" && next.findRef(target.ID) == nil
	if target.ID != "" && (kept || removed) {
		next.Active = ""
		if savedActive != "" && next.findRef(savedActive) != nil {
			next.Active = savedActive
		}
	}

	if err := next.Validate(); err != nil {
		return nil, Overrides{}, fmt.Errorf("invalid config: %w", err)
	}
	return next, o, nil
}

// Reload re-reads the configuration file and re-applies the overrides. On
// error the current configuration is kept.
func (s *Store) Reload() error {
	base, err := LoadFromPath(s.path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	eff, err := s.overrides.Applied(base)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("overrides no longer apply: %w", err)
	}
	s.base, s.cfg = base, eff
	hooks := append([]func(*Config){}, s.onChange...)
	s.mu.Unlock()

	s.log.WithField("path", s.path).Info("Configuration reloaded")
	for _, h := range hooks {
		h(eff.Clone())
	}
	return nil
}

// Watch reloads the configuration whenever its file changes, until ctx is
// done. The parent directory is watched so editors that replace the file
// by rename are picked up.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		return fmt.Errorf("store has no file to watch")
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	go s.watchLoop(ctx, watcher)
	return nil
}

func (s *Store) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()

	target := filepath.Clean(s.path)
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
			} else {
				timer.Reset(reloadDebounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			if _, err := os.Stat(s.path); err != nil {
				continue
			}
			if err := s.Reload(); err != nil {
				s.log.WithError(err).Warn("Ignoring invalid configuration change")
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.log.WithError(err).Warn("Config watcher error")
		}
	}
}
