package interfaces

import "context"

// ToolParameter describes the single string argument a tool accepts
type ToolParameter struct {
	Name        string
	Description string
}

// Tool is an external lookup capability the research agent may call.
// Execute never fails: problems are reported as text for the model to read.
type Tool interface {
	// Name is the function name sent to the model ([a-z_]+)
	Name() string
	// Title is the human label shown in progress updates
	Title() string
	// Description tells the model when to use the tool
	Description() string
	Parameter() ToolParameter
	Execute(ctx context.Context, input string) string
}
