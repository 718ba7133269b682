package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/equityresearch/internal/interfaces"
	"github.com/ternarybob/equityresearch/internal/models"
)

// ErrMaxTurnsExceeded is returned when the model keeps calling tools past the turn limit
var ErrMaxTurnsExceeded = errors.New("agent exceeded maximum turns without a final answer")

// ErrEmptyAnswer is returned when the model stops calling tools but produces no text
var ErrEmptyAnswer = errors.New("model returned an empty answer")

const defaultMaxTurns = 15

func maxTurns(request *interfaces.AgentRequest) int {
	if request.MaxTurns > 0 {
		return request.MaxTurns
	}
	return defaultMaxTurns
}

// toolCaller executes the tools a model asks for, one at a time, and records each call
type toolCaller struct {
	tools  map[string]interfaces.Tool
	hooks  interfaces.ToolHooks
	logger arbor.ILogger
	calls  []models.ToolInvocation
}

func newToolCaller(request *interfaces.AgentRequest, logger arbor.ILogger) *toolCaller {
	tools := make(map[string]interfaces.Tool, len(request.Tools))
	for _, t := range request.Tools {
		tools[t.Name()] = t
	}
	return &toolCaller{tools: tools, hooks: request.Hooks, logger: logger}
}

// call runs the named tool. Unknown tools are reported back to the model as text.
func (c *toolCaller) call(ctx context.Context, name string, args map[string]any) string {
	tool, ok := c.tools[name]
	if !ok {
		c.logger.Warn().Str("tool", name).Msg("Model requested unknown tool")
		return fmt.Sprintf("Error: unknown tool %q", name)
	}

	input := toolInput(tool.Parameter().Name, args)

	if c.hooks.OnToolStart != nil {
		c.hooks.OnToolStart(tool, input)
	}

	start := time.Now()
	output := tool.Execute(ctx, input)
	invocation := models.ToolInvocation{
		Tool:     name,
		Input:    input,
		Output:   output,
		Duration: time.Since(start),
	}
	c.calls = append(c.calls, invocation)

	c.logger.Debug().
		Str("tool", name).
		Str("input", input).
		Int("output_chars", len(output)).
		Dur("duration", invocation.Duration).
		Msg("Tool executed")

	if c.hooks.OnToolEnd != nil {
		c.hooks.OnToolEnd(tool, invocation)
	}

	return output
}

// decodeArguments parses a JSON arguments object. Anything that is not an
// object is kept as the raw string under the empty key.
func decodeArguments(raw string) map[string]any {
	raw = strings.TrimSpace(raw)
	args := map[string]any{}
	if raw == "" {
		return args
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		var s string
		if json.Unmarshal([]byte(raw), &s) == nil {
			raw = s
		}
		return map[string]any{"": raw}
	}
	return args
}

// toolInput picks the value for the tool's single parameter. Models sometimes
// rename the argument, so a lone argument is accepted under any name.
func toolInput(param string, args map[string]any) string {
	if v, ok := args[param]; ok {
		return stringify(v)
	}
	if len(args) == 1 {
		for _, v := range args {
			return stringify(v)
		}
	}
	return ""
}

func stringify(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	default:
		data, err := json.Marshal(value)
		if err != nil {
			return fmt.Sprintf("%v", value)
		}
		return string(data)
	}
}

// toolSchema is the JSON schema of a tool's single string parameter
func toolSchema(tool interfaces.Tool) map[string]any {
	param := tool.Parameter()
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			param.Name: map[string]any{
				"type":        "string",
				"description": param.Description,
			},
		},
		"required": []string{param.Name},
	}
}

// IsRateLimitError reports whether an error looks like a provider quota or rate limit
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "RESOURCE_EXHAUSTED") ||
		strings.Contains(errStr, "rate_limit") ||
		strings.Contains(errStr, "quota")
}
