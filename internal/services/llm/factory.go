package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/equityresearch/internal/common"
	"github.com/ternarybob/equityresearch/internal/interfaces"
)

// ProviderFactory builds the LLM service for a model string
type ProviderFactory struct {
	config *common.Config
	logger arbor.ILogger
}

func NewProviderFactory(config *common.Config, logger arbor.ILogger) *ProviderFactory {
	return &ProviderFactory{config: config, logger: logger}
}

var providerPrefixes = []struct {
	prefix   string
	provider common.LLMProvider
}{
	{"groq/", common.LLMProviderGroq},
	{"gemini/", common.LLMProviderGemini},
	{"google/", common.LLMProviderGemini},
	{"claude/", common.LLMProviderClaude},
	{"anthropic/", common.LLMProviderClaude},
}

// DetectProvider determines the provider from a model string.
//   - "groq/llama-3.3-70b-versatile" -> groq
//   - "claude-sonnet-4-20250514" or "claude/..." -> claude
//   - "gemini-2.5-flash" or "gemini/..." -> gemini
//   - anything else, including "" -> [llm].default_provider
func (f *ProviderFactory) DetectProvider(model string) common.LLMProvider {
	lower := strings.ToLower(strings.TrimSpace(model))

	for _, p := range providerPrefixes {
		if strings.HasPrefix(lower, p.prefix) {
			return p.provider
		}
	}
	if strings.HasPrefix(lower, "claude-") {
		return common.LLMProviderClaude
	}
	if strings.HasPrefix(lower, "gemini-") {
		return common.LLMProviderGemini
	}
	if f.config.LLM.DefaultProvider == "" {
		return common.LLMProviderGroq
	}
	return f.config.LLM.DefaultProvider
}

// NormalizeModel strips a provider prefix
func (f *ProviderFactory) NormalizeModel(model string) string {
	model = strings.TrimSpace(model)
	for _, p := range providerPrefixes {
		if strings.HasPrefix(strings.ToLower(model), p.prefix) {
			return model[len(p.prefix):]
		}
	}
	return model
}

// DefaultModel returns the configured model for a provider
func (f *ProviderFactory) DefaultModel(provider common.LLMProvider) string {
	switch provider {
	case common.LLMProviderClaude:
		return f.config.Claude.Model
	case common.LLMProviderGemini:
		return f.config.Gemini.Model
	default:
		return f.config.Groq.Model
	}
}

// NewService creates the LLM service for model ("" uses [llm].model, then the provider default)
func (f *ProviderFactory) NewService(ctx context.Context, model string) (interfaces.LLMService, error) {
	if model == "" {
		model = f.config.LLM.Model
	}

	provider := f.DetectProvider(model)
	name := f.NormalizeModel(model)
	if name == "" {
		name = f.DefaultModel(provider)
	}

	keyName, envVar := common.ProviderKeyName(provider)
	apiKey, err := common.ResolveAPIKey(keyName, f.configKey(provider))
	if err != nil {
		return nil, fmt.Errorf("Please set your %s in the .env file: %w", envVar, err)
	}

	f.logger.Info().
		Str("provider", string(provider)).
		Str("model", name).
		Msg("Initializing LLM service")

	switch provider {
	case common.LLMProviderGroq:
		return NewGroqService(&f.config.Groq, name, apiKey, f.logger), nil
	case common.LLMProviderGemini:
		return NewGeminiService(ctx, &f.config.Gemini, name, apiKey, f.logger)
	case common.LLMProviderClaude:
		return NewClaudeService(&f.config.Claude, name, apiKey, f.logger), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", provider)
	}
}

func (f *ProviderFactory) configKey(provider common.LLMProvider) string {
	switch provider {
	case common.LLMProviderClaude:
		return f.config.Claude.APIKey
	case common.LLMProviderGemini:
		return f.config.Gemini.APIKey
	default:
		return f.config.Groq.APIKey
	}
}
