package main

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/equityresearch/internal/app"
	"github.com/ternarybob/equityresearch/internal/interfaces"
)

// registerTools exposes every agent tool plus the full profile run
func registerTools(s *server.MCPServer, application *app.App, logger arbor.ILogger) {
	for _, tool := range application.Tools.All() {
		s.AddTool(createAgentTool(tool), handleAgentTool(tool, logger))
	}
	s.AddTool(createGenerateProfileTool(), handleGenerateProfile(application.Runner, logger))
}

// createAgentTool mirrors an agent tool's name, description and single string parameter
func createAgentTool(tool interfaces.Tool) mcp.Tool {
	param := tool.Parameter()
	return mcp.NewTool(tool.Name(),
		mcp.WithDescription(tool.Description()),
		mcp.WithString(param.Name,
			mcp.Required(),
			mcp.Description(param.Description),
		),
	)
}

// createGenerateProfileTool returns the generate_company_profile tool definition
func createGenerateProfileTool() mcp.Tool {
	return mcp.NewTool("generate_company_profile",
		mcp.WithDescription("Run the research agent and return the markdown Company Profile (Section 1, Top News, Highs & Lows). Takes several minutes."),
		mcp.WithString("company",
			mcp.Required(),
			mcp.Description("Company name, e.g. Reliance Industries"),
		),
		mcp.WithString("ticker",
			mcp.Required(),
			mcp.Description("Stock ticker, e.g. RELIANCE.NS"),
		),
		mcp.WithString("document_filename",
			mcp.Required(),
			mcp.Description("Annual report PDF filename in the reports folder, e.g. reliance.pdf"),
		),
	)
}
