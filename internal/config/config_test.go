// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolateHome points the home directory at a temp dir and clears overrides.
func isolateHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	for _, key := range []string{
		"CHATSAPP_API_URL", "CHATSAPP_API_TOKEN", "CHATSAPP_CABLE_URL", "CHATSAPP_MODELS",
		"CHATSAPP_ARCHIVE", "CHATSAPP_NO_ARCHIVE", "CHATSAPP_DEBUG",
	} {
		t.Setenv(key, "")
	}
	return home
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 100*time.Millisecond, cfg.Session.ClearDelay())
	assert.Equal(t, time.Second, cfg.Session.ReconnectBase())
	assert.Equal(t, 30*time.Second, cfg.Session.ReconnectCap())
	assert.Equal(t, 5, cfg.Session.ReconnectMaxAttempts)
	assert.Equal(t, []string{"gpt-4o", "claude-3.5-sonnet"}, cfg.Session.Models)
}

func TestLoad_NoFileReturnsDefaults(t *testing.T) {
	isolateHome(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default().API.BaseURL, cfg.API.BaseURL)
}

func TestLoad_TOML(t *testing.T) {
	home := isolateHome(t)
	dir := filepath.Join(home, ".chatsapp")
	require.NoError(t, os.MkdirAll(dir, 0700))
	content := `
[api]
base_url = "https://chat.example.com/api/v1"

[session]
models = ["gpt-4o"]
clear_delay_ms = 250
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0644))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://chat.example.com/api/v1", cfg.API.BaseURL)
	assert.Equal(t, []string{"gpt-4o"}, cfg.Session.Models)
	assert.Equal(t, 250*time.Millisecond, cfg.Session.ClearDelay())
	assert.Equal(t, Default().Cable.URL, cfg.Cable.URL, "missing values keep defaults")

	info, err := os.Stat(filepath.Join(dir, "config.toml"))
	require.NoError(t, err)
	if os.PathSeparator == '/' {
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm(), "permissions are tightened on load")
	}
}

func TestLoad_JSONFallback(t *testing.T) {
	home := isolateHome(t)
	dir := filepath.Join(home, ".chatsapp")
	require.NoError(t, os.MkdirAll(dir, 0700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"),
		[]byte(`{"cable":{"url":"wss://chat.example.com/cable"}}`), 0600))

	path, err := ActivePath()
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "config.json"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "wss://chat.example.com/cable", cfg.Cable.URL)
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolateHome(t)
	t.Setenv("CHATSAPP_API_URL", "https://env.example.com/api")
	t.Setenv("CHATSAPP_MODELS", "a, b,,c")
	t.Setenv("CHATSAPP_NO_ARCHIVE", "true")
	t.Setenv("CHATSAPP_DEBUG", "1")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com/api", cfg.API.BaseURL)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.Session.Models)
	assert.False(t, cfg.Storage.Enabled)
	assert.True(t, cfg.Debug)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad api scheme", func(c *Config) { c.API.BaseURL = "ftp://x" }, "api.base_url"},
		{"api without host", func(c *Config) { c.API.BaseURL = "http://" }, "api.base_url"},
		{"bad cable scheme", func(c *Config) { c.Cable.URL = "http://localhost/cable" }, "cable.url"},
		{"cap below base", func(c *Config) { c.Session.ReconnectCapMs = 10 }, "session.reconnect_cap_ms"},
		{"empty model", func(c *Config) { c.Session.Models = []string{"gpt-4o", " "} }, "session.models[1]"},
		{"bad theme", func(c *Config) { c.UI.Theme = "neon" }, "ui.theme"},
		{"negative delay", func(c *Config) { c.Session.ClearDelayMs = -1 }, "session.clear_delay_ms"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)

			var verrs ValidateErrors
			require.True(t, errors.As(err, &verrs))
			require.Len(t, verrs, 1)
			assert.Equal(t, tt.field, verrs[0].Field)
		})
	}
}

func TestGetSet(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Set("session.clear_delay_ms", "500"))
	assert.Equal(t, 500, cfg.Session.ClearDelayMs)

	require.NoError(t, cfg.Set("session.models", "x,y"))
	assert.Equal(t, []string{"x", "y"}, cfg.Session.Models)

	require.NoError(t, cfg.Set("ui.markdown", "false"))
	assert.False(t, cfg.UI.Markdown)

	v, err := cfg.Get("api.base_url")
	require.NoError(t, err)
	assert.Equal(t, Default().API.BaseURL, v)

	_, err = cfg.Get("api.nope")
	assert.Error(t, err)
	assert.Error(t, cfg.Set("session.clear_delay_ms", "soon"))
	assert.Error(t, cfg.Set("api.base_url.x", "y"))
}

func TestGetAllKeys_Resolve(t *testing.T) {
	cfg := Default()
	for _, key := range GetAllKeys() {
		_, err := cfg.Get(key)
		assert.NoError(t, err, key)
	}
}

func TestSaveAndLoadFromPath(t *testing.T) {
	isolateHome(t)
	for _, name := range []string{"config.toml", "config.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)
			cfg := Default()
			cfg.API.Token = "secret"
			cfg.Session.ReconnectMaxAttempts = 7

			require.NoError(t, SaveTo(cfg, path))
			loaded, err := LoadFromPath(path)
			require.NoError(t, err)
			assert.Equal(t, "secret", loaded.API.Token)
			assert.Equal(t, 7, loaded.Session.ReconnectMaxAttempts)
		})
	}
}

func TestString_RedactsToken(t *testing.T) {
	cfg := Default()
	cfg.API.Token = "super-secret"
	s := cfg.String()
	assert.NotContains(t, s, "super-secret")
	assert.Contains(t, s, "[REDACTED]")
	assert.Equal(t, "super-secret", cfg.API.Token, "original is not modified")
}

func TestClone_IsDeep(t *testing.T) {
	cfg := Default()
	cp := cfg.Clone()
	cp.Session.Models[0] = "changed"
	assert.Equal(t, "gpt-4o", cfg.Session.Models[0])
}

// TestConfig_ConcurrentAccess tests that Global and SetGlobal can be called
// concurrently. Run with: go test -race ./internal/config/
func TestConfig_ConcurrentAccess(t *testing.T) {
	isolateHome(t)
	ResetGlobalForTesting()
	t.Cleanup(ResetGlobalForTesting)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			SetGlobal(Default())
		}()
		go func() {
			defer wg.Done()
			if Global() == nil {
				t.Error("Global() returned nil")
			}
		}()
	}
	wg.Wait()
}
