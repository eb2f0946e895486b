package provider

import (
	"errors"
	"fmt"

	"github.com/mohammad-safakhou/hivemind/config"
	core "github.com/mohammad-safakhou/hivemind/internal/agent/core"
	openai_provider "github.com/mohammad-safakhou/hivemind/provider/openai"
)

// Client represents different LLM providers
type Client string

const (
	OpenAI        Client = "openai"
	Anthropic     Client = "anthropic"
	Gemini        Client = "gemini"
	Deterministic Client = "deterministic"
)

// NewAIService creates the completion collaborator from configuration.
func NewAIService(cfg config.LLMConfig) (core.AIService, error) {
	switch Client(cfg.Provider) {
	case OpenAI:
		if cfg.APIKey == "" {
			return nil, errors.New("llm.api_key not set")
		}
		return openai_provider.NewClient(cfg.APIKey, cfg.Model, cfg.Temperature, cfg.MaxTokens, cfg.Timeout), nil
	case Deterministic:
		return NewDeterministic(), nil
	case Anthropic:
		return nil, errors.New("anthropic client not implemented yet")
	case Gemini:
		return nil, errors.New("gemini client not implemented yet")
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}
