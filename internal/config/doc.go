// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config handles loading and saving chatstream configuration.
//
// Configuration lives in ~/.chatstream/config.toml (config.json is read as
// a fallback). It holds the saved endpoints, the active selection, and
// stream, UI and log settings.
//
// # Loading Order
//
//  1. Built-in defaults
//  2. Config file (TOML, then JSON)
//  3. .env files (working directory, then config directory)
//  4. CHATSTREAM_* environment variables
//  5. --endpoint and --model flags
//
// Steps 4 and 5 are Overrides. They live only in memory: Store.Update saves
// the configuration from steps 1 and 2 and never writes an override, such
// as an API key from the environment, to disk.
//
// # Usage
//
//	cfg, path, err := config.Load()
//	store := config.NewStore(cfg, path, log)
//	err = store.SetOverrides(config.EnvOverrides().Merge(flags))
//	ep, err := store.Snapshot()
//
// Endpoint snapshots are plain values. A request built from one is not
// affected by later edits to the store.
package config
