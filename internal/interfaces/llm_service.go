package interfaces

import (
	"context"

	"github.com/ternarybob/equityresearch/internal/models"
)

// ToolHooks observe tool execution inside an agent loop
type ToolHooks struct {
	OnToolStart func(tool Tool, input string)
	OnToolEnd   func(tool Tool, invocation models.ToolInvocation)
}

// AgentRequest is a provider-agnostic tool-calling conversation
type AgentRequest struct {
	SystemPrompt string
	UserPrompt   string
	Tools        []Tool
	MaxTurns     int
	Hooks        ToolHooks
}

// AgentResponse is the final answer of a tool-calling conversation
type AgentResponse struct {
	Text      string
	Provider  string
	Model     string
	Turns     int
	ToolCalls []models.ToolInvocation
}

// LLMService runs a tool-calling conversation until the model answers in text
type LLMService interface {
	RunAgent(ctx context.Context, request *AgentRequest) (*AgentResponse, error)
	ProviderName() string
	ModelName() string
}
