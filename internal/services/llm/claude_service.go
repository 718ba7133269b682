package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/equityresearch/internal/common"
	"github.com/ternarybob/equityresearch/internal/interfaces"
)

const defaultClaudeMaxTokens = 8192

// ClaudeService runs tool-use conversations against the Anthropic Messages API
type ClaudeService struct {
	client      anthropic.Client
	model       string
	maxTokens   int
	temperature float32
	logger      arbor.ILogger
}

var _ interfaces.LLMService = (*ClaudeService)(nil)

func NewClaudeService(config *common.ClaudeConfig, model, apiKey string, logger arbor.ILogger, opts ...option.RequestOption) *ClaudeService {
	if model == "" {
		model = config.Model
	}
	maxTokens := config.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultClaudeMaxTokens
	}

	clientOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if timeout := common.ParseDuration(config.Timeout, 0); timeout > 0 {
		clientOpts = append(clientOpts, option.WithRequestTimeout(timeout))
	}
	clientOpts = append(clientOpts, opts...)

	return &ClaudeService{
		client:      anthropic.NewClient(clientOpts...),
		model:       model,
		maxTokens:   maxTokens,
		temperature: config.Temperature,
		logger:      logger,
	}
}

func (s *ClaudeService) ProviderName() string { return string(common.LLMProviderClaude) }
func (s *ClaudeService) ModelName() string    { return s.model }

func (s *ClaudeService) RunAgent(ctx context.Context, request *interfaces.AgentRequest) (*interfaces.AgentResponse, error) {
	caller := newToolCaller(request, s.logger)
	limit := maxTurns(request)

	tools := make([]anthropic.ToolUnionParam, 0, len(request.Tools))
	for _, t := range request.Tools {
		p := t.Parameter()
		tools = append(tools, anthropic.ToolUnionParam{OfTool: &anthropic.ToolParam{
			Name:        t.Name(),
			Description: anthropic.String(t.Description()),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: map[string]any{
					p.Name: map[string]any{"type": "string", "description": p.Description},
				},
				Required: []string{p.Name},
			},
		}})
	}

	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(request.UserPrompt)),
	}

	for turn := 1; turn <= limit; turn++ {
		params := anthropic.MessageNewParams{
			Model:     anthropic.Model(s.model),
			MaxTokens: int64(s.maxTokens),
			Messages:  messages,
			Tools:     tools,
		}
		if request.SystemPrompt != "" {
			params.System = []anthropic.TextBlockParam{{Text: request.SystemPrompt}}
		}
		if s.temperature > 0 {
			params.Temperature = anthropic.Float(float64(s.temperature))
		}

		resp, err := s.client.Messages.New(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("Claude API call failed on turn %d: %w", turn, err)
		}

		var text strings.Builder
		var results []anthropic.ContentBlockParamUnion
		for _, block := range resp.Content {
			switch block.Type {
			case "text":
				text.WriteString(block.Text)
			case "tool_use":
				args := map[string]any{}
				if len(block.Input) > 0 {
					if err := json.Unmarshal(block.Input, &args); err != nil {
						args = map[string]any{"": string(block.Input)}
					}
				}
				output := caller.call(ctx, block.Name, args)
				results = append(results, anthropic.NewToolResultBlock(block.ID, output, false))
			}
		}

		s.logger.Debug().
			Int("turn", turn).
			Int("tool_calls", len(results)).
			Str("stop_reason", string(resp.StopReason)).
			Msg("Claude turn completed")

		if len(results) == 0 {
			answer := strings.TrimSpace(text.String())
			if answer == "" {
				return nil, ErrEmptyAnswer
			}
			return &interfaces.AgentResponse{
				Text:      answer,
				Provider:  s.ProviderName(),
				Model:     s.model,
				Turns:     turn,
				ToolCalls: caller.calls,
			}, nil
		}

		messages = append(messages, resp.ToParam(), anthropic.NewUserMessage(results...))
	}

	return nil, fmt.Errorf("%w (%d turns)", ErrMaxTurnsExceeded, limit)
}
