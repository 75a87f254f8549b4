// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// ModelConfig holds generation parameters for one model.
type ModelConfig struct {
	Temperature      float64 `json:"temperature" toml:"temperature"`
	MaxTokens        int     `json:"max_tokens" toml:"max_tokens"`
	TopP             float64 `json:"top_p,omitempty" toml:"top_p"`
	FrequencyPenalty float64 `json:"frequency_penalty,omitempty" toml:"frequency_penalty"`
	PresencePenalty  float64 `json:"presence_penalty,omitempty" toml:"presence_penalty"`
}

// ModelInfo describes a model that can take part in a conversation.
type ModelInfo struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Provider    string       `json:"provider"`
	Description string       `json:"description,omitempty"`
	Enabled     bool         `json:"enabled"`
	Config      *ModelConfig `json:"config,omitempty"`
}

// Clone returns a copy that does not share Config.
func (m ModelInfo) Clone() ModelInfo {
	if m.Config != nil {
		cfg := *m.Config
		m.Config = &cfg
	}
	return m
}

// DefaultModelConfig is applied to catalog entries.
func DefaultModelConfig() *ModelConfig {
	return &ModelConfig{Temperature: 0.7, MaxTokens: 4000}
}

// DefaultModels returns the built-in model catalog.
func DefaultModels() []ModelInfo {
	return []ModelInfo{
		{
			ID:          "gpt-4o",
			Name:        "GPT-4o",
			Provider:    "OpenAI",
			Description: "Most capable OpenAI model",
			Enabled:     true,
			Config:      DefaultModelConfig(),
		},
		{
			ID:          "claude-3.5-sonnet",
			Name:        "Claude 3.5 Sonnet",
			Provider:    "Anthropic",
			Description: "Balanced Anthropic model",
			Enabled:     true,
			Config:      DefaultModelConfig(),
		},
		{
			ID:          "gemini-pro",
			Name:        "Gemini Pro",
			Provider:    "Google",
			Description: "Google's multimodal model",
			Enabled:     false,
			Config:      DefaultModelConfig(),
		},
	}
}

// DefaultSelectedModels are the models selected on a fresh start.
func DefaultSelectedModels() []string {
	return []string{"gpt-4o", "claude-3.5-sonnet"}
}

// FindModel looks up id in models.
func FindModel(models []ModelInfo, id string) (ModelInfo, bool) {
	for _, m := range models {
		if m.ID == id {
			return m, true
		}
	}
	return ModelInfo{}, false
}
