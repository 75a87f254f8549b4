// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/chatsapp/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete chatsapp configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	// Debug enables per-token and per-frame logging.
	Debug bool `toml:"debug" json:"debug"`

	API     APIConfig     `toml:"api" json:"api"`
	Cable   CableConfig   `toml:"cable" json:"cable"`
	Session SessionConfig `toml:"session" json:"session"`
	Storage StorageConfig `toml:"storage" json:"storage"`
	UI      UIConfig      `toml:"ui" json:"ui"`
}

// APIConfig configures the REST backend.
type APIConfig struct {
	// BaseURL is the API root, e.g. http://localhost:3200/api/v1
	BaseURL string `toml:"base_url" json:"base_url"`
	// Token is sent as a bearer token when set.
	Token string `toml:"token" json:"token"`
	// TimeoutSecs bounds every REST call.
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`
	// RateLimit is the sustained request rate per second (0 = unlimited).
	RateLimit float64 `toml:"rate_limit" json:"rate_limit"`
	// RateBurst is the token bucket size.
	RateBurst int `toml:"rate_burst" json:"rate_burst"`
}

// CableConfig configures the real-time channel.
type CableConfig struct {
	// URL is the websocket endpoint, e.g. ws://localhost:3200/cable
	URL string `toml:"url" json:"url"`
	// Origin is sent on the websocket handshake (empty = derived from URL).
	Origin string `toml:"origin" json:"origin"`
	// HandshakeTimeoutSecs bounds the websocket handshake.
	HandshakeTimeoutSecs int `toml:"handshake_timeout_secs" json:"handshake_timeout_secs"`
}

// SessionConfig configures the streaming session coordinator.
type SessionConfig struct {
	// Models selected when no --models flag is given.
	Models []string `toml:"models" json:"models"`
	// ClearDelayMs is the grace period before a completed buffer is cleared.
	ClearDelayMs int `toml:"clear_delay_ms" json:"clear_delay_ms"`
	// ReconnectBaseMs is the first reconnection delay.
	ReconnectBaseMs int `toml:"reconnect_base_ms" json:"reconnect_base_ms"`
	// ReconnectCapMs caps the reconnection delay.
	ReconnectCapMs int `toml:"reconnect_cap_ms" json:"reconnect_cap_ms"`
	// ReconnectMaxAttempts is the number of attempts before giving up.
	ReconnectMaxAttempts int `toml:"reconnect_max_attempts" json:"reconnect_max_attempts"`
}

// StorageConfig configures the local archive.
type StorageConfig struct {
	Enabled bool `toml:"enabled" json:"enabled"`
	// Path of the SQLite database (empty = ~/.chatsapp/archive.db)
	Path string `toml:"path" json:"path"`
	// MaxConversations limits archived conversations (0 = unlimited)
	MaxConversations int `toml:"max_conversations" json:"max_conversations"`
}

// UIConfig contains terminal front-end settings.
type UIConfig struct {
	// Theme is one of: auto, dark, light, ascii
	Theme string `toml:"theme" json:"theme"`
	// Markdown renders assistant messages as markdown.
	Markdown bool `toml:"markdown" json:"markdown"`
	// ShowTimestamps prefixes messages with their time.
	ShowTimestamps bool `toml:"show_timestamps" json:"show_timestamps"`
}

// ClearDelay returns ClearDelayMs as a duration.
func (s SessionConfig) ClearDelay() time.Duration {
	return time.Duration(s.ClearDelayMs) * time.Millisecond
}

// ReconnectBase returns ReconnectBaseMs as a duration.
func (s SessionConfig) ReconnectBase() time.Duration {
	return time.Duration(s.ReconnectBaseMs) * time.Millisecond
}

// ReconnectCap returns ReconnectCapMs as a duration.
func (s SessionConfig) ReconnectCap() time.Duration {
	return time.Duration(s.ReconnectCapMs) * time.Millisecond
}

// Timeout returns TimeoutSecs as a duration.
func (a APIConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSecs) * time.Second
}

// HandshakeTimeout returns HandshakeTimeoutSecs as a duration.
func (c CableConfig) HandshakeTimeout() time.Duration {
	return time.Duration(c.HandshakeTimeoutSecs) * time.Second
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version: "1.0",
		API: APIConfig{
			BaseURL:     "http://localhost:3200/api/v1",
			TimeoutSecs: 30,
			RateLimit:   10,
			RateBurst:   5,
		},
		Cable: CableConfig{
			URL:                  "ws://localhost:3200/cable",
			HandshakeTimeoutSecs: 10,
		},
		Session: SessionConfig{
			Models:               []string{"gpt-4o", "claude-3.5-sonnet"},
			ClearDelayMs:         100,
			ReconnectBaseMs:      1000,
			ReconnectCapMs:       30000,
			ReconnectMaxAttempts: 5,
		},
		Storage: StorageConfig{
			Enabled:          true,
			MaxConversations: 500,
		},
		UI: UIConfig{
			Theme:    "auto",
			Markdown: true,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the chatsapp configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".chatsapp"), nil
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

// ActivePath returns the config file Load would read: the TOML file if it
// exists, else the JSON file if it exists, else the TOML path.
func ActivePath() (string, error) {
	tomlPath, err := ConfigPathTOML()
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(tomlPath); err == nil {
		return tomlPath, nil
	}
	jsonPath, err := ConfigPathJSON()
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(jsonPath); err == nil {
		return jsonPath, nil
	}
	return tomlPath, nil
}

// ensureSecurePermissions checks and fixes permissions on config files.
// SECURITY: Config files may carry an API token and must be 0600.
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

// Load loads configuration from the config file.
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	path, err := ActivePath()
	if err != nil {
		return finish(Default())
	}
	if _, statErr := os.Stat(path); statErr != nil {
		return finish(Default())
	}

	cfg := Default()
	if err := loadFile(cfg, path); err != nil {
		// Return defaults along with the load error for informational purposes
		def, verr := finish(Default())
		if verr != nil {
			return nil, verr
		}
		return def, err
	}
	return finish(cfg)
}

// LoadFromPath loads configuration from a specific file path with full validation.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if err := loadFile(cfg, path); err != nil {
		return nil, err
	}
	return finish(cfg)
}

func loadFile(cfg *Config, path string) error {
	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
		return nil
	}
	if err := LoadTOML(cfg, path); err != nil {
		return fmt.Errorf("failed to load TOML config from %s: %w", path, err)
	}
	return nil
}

// finish applies env overrides and defaults, then validates.
func finish(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	fillDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes a TOML file over cfg.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	fillDefaults(cfg)
	return nil
}

// LoadJSON decodes a JSON file over cfg.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	fillDefaults(cfg)
	return nil
}

// fillDefaults fills in any missing values with defaults.
func fillDefaults(cfg *Config) {
	defaults := Default()

	if cfg.Version == "" {
		cfg.Version = defaults.Version
	}

	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = defaults.API.BaseURL
	}
	if cfg.API.TimeoutSecs == 0 {
		cfg.API.TimeoutSecs = defaults.API.TimeoutSecs
	}
	if cfg.API.RateBurst == 0 {
		cfg.API.RateBurst = defaults.API.RateBurst
	}

	if cfg.Cable.URL == "" {
		cfg.Cable.URL = defaults.Cable.URL
	}
	if cfg.Cable.HandshakeTimeoutSecs == 0 {
		cfg.Cable.HandshakeTimeoutSecs = defaults.Cable.HandshakeTimeoutSecs
	}

	if len(cfg.Session.Models) == 0 {
		cfg.Session.Models = defaults.Session.Models
	}
	if cfg.Session.ClearDelayMs == 0 {
		cfg.Session.ClearDelayMs = defaults.Session.ClearDelayMs
	}
	if cfg.Session.ReconnectBaseMs == 0 {
		cfg.Session.ReconnectBaseMs = defaults.Session.ReconnectBaseMs
	}
	if cfg.Session.ReconnectCapMs == 0 {
		cfg.Session.ReconnectCapMs = defaults.Session.ReconnectCapMs
	}
	if cfg.Session.ReconnectMaxAttempts == 0 {
		cfg.Session.ReconnectMaxAttempts = defaults.Session.ReconnectMaxAttempts
	}

	if cfg.UI.Theme == "" {
		cfg.UI.Theme = defaults.UI.Theme
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("# chatsapp configuration file\n")
	buf.WriteString("# Generated by chatsapp - edit with care\n\n")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON saves the configuration to a JSON file with 0600 permissions.
func SaveJSON(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveTo writes cfg in the format implied by the path extension.
func SaveTo(cfg *Config, path string) error {
	if strings.HasSuffix(path, ".json") {
		return SaveJSON(cfg, path)
	}
	return SaveTOML(cfg, path)
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if err := validateURL(c.API.BaseURL, "http", "https"); err != "" {
		errs = append(errs, ValidationError{Field: "api.base_url", Message: err})
	}
	if c.API.TimeoutSecs < 0 || c.API.TimeoutSecs > 600 {
		errs = append(errs, ValidationError{
			Field:   "api.timeout_secs",
			Message: fmt.Sprintf("must be between 0 and 600, got %d", c.API.TimeoutSecs),
		})
	}
	if c.API.RateLimit < 0 {
		errs = append(errs, ValidationError{Field: "api.rate_limit", Message: "must not be negative"})
	}
	if c.API.RateBurst < 0 {
		errs = append(errs, ValidationError{Field: "api.rate_burst", Message: "must not be negative"})
	}

	if err := validateURL(c.Cable.URL, "ws", "wss"); err != "" {
		errs = append(errs, ValidationError{Field: "cable.url", Message: err})
	}
	if c.Cable.HandshakeTimeoutSecs < 0 {
		errs = append(errs, ValidationError{Field: "cable.handshake_timeout_secs", Message: "must not be negative"})
	}

	if c.Session.ClearDelayMs < 0 {
		errs = append(errs, ValidationError{Field: "session.clear_delay_ms", Message: "must not be negative"})
	}
	if c.Session.ReconnectBaseMs < 0 {
		errs = append(errs, ValidationError{Field: "session.reconnect_base_ms", Message: "must not be negative"})
	}
	if c.Session.ReconnectCapMs < c.Session.ReconnectBaseMs {
		errs = append(errs, ValidationError{
			Field:   "session.reconnect_cap_ms",
			Message: fmt.Sprintf("must be >= reconnect_base_ms (%d), got %d", c.Session.ReconnectBaseMs, c.Session.ReconnectCapMs),
		})
	}
	if c.Session.ReconnectMaxAttempts < 0 || c.Session.ReconnectMaxAttempts > 100 {
		errs = append(errs, ValidationError{
			Field:   "session.reconnect_max_attempts",
			Message: fmt.Sprintf("must be between 0 and 100, got %d", c.Session.ReconnectMaxAttempts),
		})
	}
	for i, m := range c.Session.Models {
		if strings.TrimSpace(m) == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("session.models[%d]", i),
				Message: "model id cannot be empty",
			})
		}
	}

	if c.Storage.MaxConversations < 0 {
		errs = append(errs, ValidationError{Field: "storage.max_conversations", Message: "must not be negative"})
	}

	validThemes := map[string]bool{"auto": true, "dark": true, "light": true, "ascii": true}
	if !validThemes[strings.ToLower(c.UI.Theme)] {
		errs = append(errs, ValidationError{
			Field:   "ui.theme",
			Message: fmt.Sprintf("invalid theme '%s', must be one of: auto, dark, light, ascii", c.UI.Theme),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// validateURL returns an empty string when raw is an absolute URL with one of
// the given schemes.
func validateURL(raw string, schemes ...string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Sprintf("invalid URL: %v", err)
	}
	if u.Host == "" {
		return fmt.Sprintf("URL '%s' has no host", raw)
	}
	for _, s := range schemes {
		if strings.EqualFold(u.Scheme, s) {
			return ""
		}
	}
	return fmt.Sprintf("URL scheme must be one of %s, got '%s'", strings.Join(schemes, ", "), u.Scheme)
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - CHATSAPP_API_URL: overrides api.base_url
//   - CHATSAPP_API_TOKEN: overrides api.token
//   - CHATSAPP_CABLE_URL: overrides cable.url
//   - CHATSAPP_MODELS: comma-separated session.models
//   - CHATSAPP_ARCHIVE: overrides storage.path
//   - CHATSAPP_NO_ARCHIVE: "1" or "true" disables the archive
//   - CHATSAPP_DEBUG: "1" or "true" enables debug logging
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("CHATSAPP_API_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("CHATSAPP_API_TOKEN"); v != "" {
		c.API.Token = v
	}
	if v := os.Getenv("CHATSAPP_CABLE_URL"); v != "" {
		c.Cable.URL = v
	}
	if v := os.Getenv("CHATSAPP_MODELS"); v != "" {
		c.Session.Models = splitList(v)
	}
	if v := os.Getenv("CHATSAPP_ARCHIVE"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("CHATSAPP_NO_ARCHIVE"); v != "" && parseBool(v) {
		c.Storage.Enabled = false
	}
	if v := os.Getenv("CHATSAPP_DEBUG"); v != "" {
		c.Debug = parseBool(v)
	}
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "1" || s == "true" || s == "yes"
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "api.base_url").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation (e.g., "session.clear_delay_ms").
func (c *Config) Set(key string, value interface{}) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

func (c *Config) lookup(key string) (reflect.Value, error) {
	if key == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)
		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})
		if !field.IsValid() {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts a snake_case or kebab-case name to its Go field equivalent.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var result strings.Builder
	for _, part := range parts {
		if len(part) > 0 {
			result.WriteString(strings.ToUpper(string(part[0])))
			result.WriteString(strings.ToLower(part[1:]))
		}
	}
	return result.String()
}

// setFieldValue sets a reflect.Value from an interface{} value with type conversion.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			field.SetBool(parseBool(strVal))
			return nil
		case reflect.Slice:
			if field.Type().Elem().Kind() == reflect.String {
				field.Set(reflect.ValueOf(splitList(strVal)))
				return nil
			}
		}
	}

	val := reflect.ValueOf(value)
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// GetAllKeys returns all configuration keys in dot notation.
func GetAllKeys() []string {
	return []string{
		"version",
		"debug",
		"api.base_url",
		"api.token",
		"api.timeout_secs",
		"api.rate_limit",
		"api.rate_burst",
		"cable.url",
		"cable.origin",
		"cable.handshake_timeout_secs",
		"session.models",
		"session.clear_delay_ms",
		"session.reconnect_base_ms",
		"session.reconnect_cap_ms",
		"session.reconnect_max_attempts",
		"storage.enabled",
		"storage.path",
		"storage.max_conversations",
		"ui.theme",
		"ui.markdown",
		"ui.show_timestamps",
	}
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Session.Models = append([]string(nil), c.Session.Models...)
	return &clone
}

// String returns the config as JSON with secrets redacted.
func (c *Config) String() string {
	safe := c.Clone()
	if safe.API.Token != "" {
		safe.API.Token = "[REDACTED]"
	}
	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance.
// Loads configuration on first access. Thread-safe.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
		}
		if cfg == nil {
			cfg = Default()
		}
		globalConfigMu.Lock()
		globalConfig = cfg
		globalConfigMu.Unlock()
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// SetGlobal sets the global configuration instance. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigOnce.Do(func() {})
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state for testing.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
