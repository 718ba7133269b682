package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/equityresearch/internal/interfaces"
	"github.com/ternarybob/equityresearch/internal/models"
	"github.com/ternarybob/equityresearch/internal/services/agents"
)

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

// handleAgentTool runs one agent tool directly; its text output is returned as-is
func handleAgentTool(tool interfaces.Tool, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		param := tool.Parameter().Name
		input, err := request.RequireString(param)
		if err != nil || input == "" {
			return textResult(fmt.Sprintf("Error: %s parameter is required", param)), nil
		}

		logger.Debug().Str("tool", tool.Name()).Str("input", input).Msg("MCP tool call")
		return textResult(tool.Execute(ctx, input)), nil
	}
}

// handleGenerateProfile implements the generate_company_profile tool
func handleGenerateProfile(runner *agents.Runner, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		req := models.ResearchRequest{
			Company:          request.GetString("company", ""),
			Ticker:           request.GetString("ticker", ""),
			DocumentFilename: request.GetString("document_filename", ""),
		}

		report, err := runner.Run(ctx, req)
		if err != nil {
			logger.Error().Err(err).Str("company", req.Company).Msg("Profile generation failed")
			if errors.Is(err, agents.ErrMissingFields) {
				return textResult(err.Error()), nil
			}
			return textResult("An error occurred: " + err.Error()), nil
		}

		return textResult(report.Markdown), nil
	}
}
