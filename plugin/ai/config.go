package ai

import (
	"errors"
	"time"

	"github.com/officialmortgage/livbridge/internal/profile"
)

// Config represents AI configuration.
type Config struct {
	// Enabled is false when no chat model is reachable; the keyword responder takes over.
	Enabled bool

	LLM    LLMConfig
	Speech SpeechConfig
}

// LLMConfig represents LLM configuration.
type LLMConfig struct {
	Provider     string // deepseek, openai, ollama
	Model        string // gpt-4o-mini
	APIKey       string
	BaseURL      string
	MaxTokens    int     // default: 512
	Temperature  float32 // default: 0.4
	MaxRetries   int     // default: 2
	RetryBackoff time.Duration
}

// SpeechConfig represents text-to-speech configuration.
type SpeechConfig struct {
	Provider string // openai, elevenlabs, empty disables synthesis
	Model    string // tts-1 or eleven_turbo_v2
	Voice    string // voice name or ElevenLabs voice id
	APIKey   string
	BaseURL  string
}

// NewConfigFromProfile creates AI config from profile.
func NewConfigFromProfile(p *profile.Profile) *Config {
	cfg := &Config{
		Enabled: p.IsAIEnabled(),
	}

	cfg.LLM = LLMConfig{
		Provider:     p.AILLMProvider,
		Model:        p.AILLMModel,
		MaxTokens:    512,
		Temperature:  0.4,
		MaxRetries:   2,
		RetryBackoff: 250 * time.Millisecond,
	}

	switch p.AILLMProvider {
	case "deepseek":
		cfg.LLM.APIKey = p.AIDeepSeekAPIKey
		cfg.LLM.BaseURL = p.AIDeepSeekBaseURL
	case "openai":
		cfg.LLM.APIKey = p.AIOpenAIAPIKey
		cfg.LLM.BaseURL = p.AIOpenAIBaseURL
	case "ollama":
		cfg.LLM.BaseURL = p.AIOllamaBaseURL
	}

	switch p.TTSProvider {
	case "openai":
		cfg.Speech = SpeechConfig{
			Provider: "openai",
			Model:    p.TTSModel,
			Voice:    p.TTSVoice,
			APIKey:   p.AIOpenAIAPIKey,
			BaseURL:  p.AIOpenAIBaseURL,
		}
	case "elevenlabs":
		cfg.Speech = SpeechConfig{
			Provider: "elevenlabs",
			Model:    "eleven_turbo_v2",
			Voice:    p.ElevenLabsVoiceID,
			APIKey:   p.ElevenLabsAPIKey,
			BaseURL:  p.ElevenLabsBaseURL,
		}
	}

	return cfg
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Enabled {
		if c.LLM.Provider == "" {
			return errors.New("LLM provider is required")
		}
		if c.LLM.Model == "" {
			return errors.New("LLM model is required")
		}
		if c.LLM.Provider != "ollama" && c.LLM.APIKey == "" {
			return errors.New("LLM API key is required")
		}
	}

	switch c.Speech.Provider {
	case "":
	case "openai", "elevenlabs":
		if c.Speech.APIKey == "" {
			return errors.New("speech API key is required")
		}
		if c.Speech.Voice == "" {
			return errors.New("speech voice is required")
		}
	default:
		return errors.New("unsupported speech provider: " + c.Speech.Provider)
	}

	return nil
}
