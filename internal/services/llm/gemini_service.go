package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"google.golang.org/genai"

	"github.com/ternarybob/equityresearch/internal/common"
	"github.com/ternarybob/equityresearch/internal/interfaces"
)

// GeminiService runs tool-calling conversations with Gemini function declarations
type GeminiService struct {
	client      *genai.Client
	model       string
	temperature float32
	timeout     time.Duration
	logger      arbor.ILogger
}

var _ interfaces.LLMService = (*GeminiService)(nil)

// NewGeminiService creates a Gemini API client for apiKey
func NewGeminiService(ctx context.Context, config *common.GeminiConfig, model, apiKey string, logger arbor.ILogger) (*GeminiService, error) {
	if model == "" {
		model = config.Model
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: config.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiService{
		client:      client,
		model:       model,
		temperature: config.Temperature,
		timeout:     common.ParseDuration(config.Timeout, 0),
		logger:      logger,
	}, nil
}

func (s *GeminiService) ProviderName() string { return string(common.LLMProviderGemini) }
func (s *GeminiService) ModelName() string    { return s.model }

func (s *GeminiService) RunAgent(ctx context.Context, request *interfaces.AgentRequest) (*interfaces.AgentResponse, error) {
	caller := newToolCaller(request, s.logger)
	limit := maxTurns(request)

	declarations := make([]*genai.FunctionDeclaration, 0, len(request.Tools))
	for _, t := range request.Tools {
		p := t.Parameter()
		declarations = append(declarations, &genai.FunctionDeclaration{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					p.Name: {Type: genai.TypeString, Description: p.Description},
				},
				Required: []string{p.Name},
			},
		})
	}

	config := &genai.GenerateContentConfig{}
	if len(declarations) > 0 {
		config.Tools = []*genai.Tool{{FunctionDeclarations: declarations}}
	}
	if s.temperature > 0 {
		config.Temperature = genai.Ptr(s.temperature)
	}
	if request.SystemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(request.SystemPrompt, genai.RoleUser)
	}

	contents := []*genai.Content{genai.NewContentFromText(request.UserPrompt, genai.RoleUser)}

	for turn := 1; turn <= limit; turn++ {
		resp, err := s.generate(ctx, contents, config)
		if err != nil {
			return nil, fmt.Errorf("gemini generate failed on turn %d: %w", turn, err)
		}

		calls := resp.FunctionCalls()
		s.logger.Debug().Int("turn", turn).Int("tool_calls", len(calls)).Msg("Gemini turn completed")

		if len(calls) == 0 {
			text := strings.TrimSpace(resp.Text())
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

		if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
			contents = append(contents, resp.Candidates[0].Content)
		}

		parts := make([]*genai.Part, 0, len(calls))
		for _, call := range calls {
			output := caller.call(ctx, call.Name, call.Args)
			parts = append(parts, genai.NewPartFromFunctionResponse(call.Name, map[string]any{"output": output}))
		}
		contents = append(contents, genai.NewContentFromParts(parts, genai.RoleUser))
	}

	return nil, fmt.Errorf("%w (%d turns)", ErrMaxTurnsExceeded, limit)
}

func (s *GeminiService) generate(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return s.client.Models.GenerateContent(ctx, s.model, contents, config)
}
