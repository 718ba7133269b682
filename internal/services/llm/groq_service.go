package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/packages/param"
	"github.com/openai/openai-go/v2/shared/constant"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/equityresearch/internal/common"
	"github.com/ternarybob/equityresearch/internal/interfaces"
)

// GroqService runs tool-calling conversations against Groq's OpenAI-compatible API.
// Any OpenAI-compatible endpoint works when base_url is changed.
type GroqService struct {
	client      openai.Client
	model       string
	temperature float32
	maxTokens   int
	logger      arbor.ILogger
}

var _ interfaces.LLMService = (*GroqService)(nil)

// NewGroqService creates the service. Requests are never retried.
func NewGroqService(config *common.GroqConfig, model, apiKey string, logger arbor.ILogger, opts ...option.RequestOption) *GroqService {
	if model == "" {
		model = config.Model
	}

	clientOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if config.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(config.BaseURL))
	}
	if timeout := common.ParseDuration(config.Timeout, 0); timeout > 0 {
		clientOpts = append(clientOpts, option.WithRequestTimeout(timeout))
	}
	clientOpts = append(clientOpts, opts...)

	return &GroqService{
		client:      openai.NewClient(clientOpts...),
		model:       model,
		temperature: config.Temperature,
		maxTokens:   config.MaxTokens,
		logger:      logger,
	}
}

func (s *GroqService) ProviderName() string { return string(common.LLMProviderGroq) }
func (s *GroqService) ModelName() string    { return s.model }

// RunAgent sends the conversation until the model answers without tool calls
func (s *GroqService) RunAgent(ctx context.Context, request *interfaces.AgentRequest) (*interfaces.AgentResponse, error) {
	caller := newToolCaller(request, s.logger)
	limit := maxTurns(request)

	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(request.SystemPrompt),
		openai.UserMessage(request.UserPrompt),
	}

	tools := make([]openai.ChatCompletionToolUnionParam, 0, len(request.Tools))
	for _, t := range request.Tools {
		tools = append(tools, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        t.Name(),
			Description: param.NewOpt(t.Description()),
			Parameters:  openai.FunctionParameters(toolSchema(t)),
		}))
	}

	for turn := 1; turn <= limit; turn++ {
		params := openai.ChatCompletionNewParams{
			Model:    openai.ChatModel(s.model),
			Messages: messages,
		}
		if len(tools) > 0 {
			params.Tools = tools
		}
		if s.temperature > 0 {
			params.Temperature = openai.Float(float64(s.temperature))
		}
		if s.maxTokens > 0 {
			params.MaxCompletionTokens = openai.Int(int64(s.maxTokens))
		}

		start := time.Now()
		resp, err := s.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("groq chat completion failed on turn %d: %w", turn, err)
		}
		if len(resp.Choices) == 0 {
			return nil, fmt.Errorf("groq returned no choices on turn %d", turn)
		}

		message := resp.Choices[0].Message

		s.logger.Debug().
			Int("turn", turn).
			Int("tool_calls", len(message.ToolCalls)).
			Dur("duration", time.Since(start)).
			Msg("Groq turn completed")

		if len(message.ToolCalls) == 0 {
			text := strings.TrimSpace(message.Content)
			if text == "" {
				return nil, ErrEmptyAnswer
			}
			return &interfaces.AgentResponse{
				Text:      text,
				Provider:  s.ProviderName(),
				Model:     s.model,
				Turns:     turn,
				ToolCalls: caller.calls,
			}, nil
		}

		messages = append(messages, assistantMessage(message))
		for _, call := range message.ToolCalls {
			output := caller.call(ctx, call.Function.Name, decodeArguments(call.Function.Arguments))
			messages = append(messages, openai.ToolMessage(output, call.ID))
		}
	}

	return nil, fmt.Errorf("%w (%d turns)", ErrMaxTurnsExceeded, limit)
}

// assistantMessage echoes the model's tool calls back into the history
func assistantMessage(message openai.ChatCompletionMessage) openai.ChatCompletionMessageParamUnion {
	assistant := &openai.ChatCompletionAssistantMessageParam{}
	if message.Content != "" {
		assistant.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
			OfString: param.NewOpt(message.Content),
		}
	}
	for _, call := range message.ToolCalls {
		arguments := call.Function.Arguments
		if arguments == "" {
			arguments = "{}"
		}
		assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
			OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
				ID: call.ID,
				Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
					Name:      call.Function.Name,
					Arguments: arguments,
				},
				Type: constant.ValueOf[constant.Function](),
			},
		})
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: assistant}
}
