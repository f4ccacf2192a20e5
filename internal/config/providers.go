package config

import "time"

// ProviderConfig describes the upstream OpenAI-compatible API.
type ProviderConfig struct {
	Type          string            `yaml:"type"`
	BaseURL       string            `yaml:"base_url"`
	APIKey        string            `yaml:"api_key"`
	MaxConcurrent int               `yaml:"max_concurrent"`
	Timeout       time.Duration     `yaml:"timeout"`
	MaxRetries    int               `yaml:"max_retries"`
	Headers       map[string]string `yaml:"headers,omitempty"`

	DefaultChatModel       string `yaml:"default_chat_model"`
	DefaultVisionModel     string `yaml:"default_vision_model"`
	DefaultCompletionModel string `yaml:"default_completion_model"`
	VisionSystemPrompt     string `yaml:"vision_system_prompt"`

	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

type CircuitBreakerConfig struct {
	FailureThreshold      int           `yaml:"failure_threshold"`
	RecoveryProbeInterval time.Duration `yaml:"recovery_probe_interval"`
}

func DefaultProviderConfig() *ProviderConfig {
	return &ProviderConfig{
		Type:                   "openai",
		MaxConcurrent:          16,
		Timeout:                60 * time.Second,
		DefaultChatModel:       "gpt-4o-mini",
		DefaultVisionModel:     "gpt-4o",
		DefaultCompletionModel: "gpt-4o-mini",
		VisionSystemPrompt:     "You are an expert in image understanding.",
		CircuitBreaker: CircuitBreakerConfig{
			FailureThreshold:      5,
			RecoveryProbeInterval: 15 * time.Second,
		},
	}
}
