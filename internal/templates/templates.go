// Package templates provides the embedded agent/task TOML templates with user override support.
// Templates are loaded with resolution order:
// 1. User override: templatesDir/{name}.toml
// 2. Embedded default: internal/templates/{name}.toml
package templates

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed *.toml
var fs embed.FS

// Agent is the persona the model plays
type Agent struct {
	Role      string   `toml:"role"`
	Goal      string   `toml:"goal"`
	Backstory string   `toml:"backstory"`
	Tools     []string `toml:"tools"` // Tool machine names; empty means every registered tool
}

// Task is the single unit of work handed to the agent.
// Description may reference {company}, {ticker} and {pdf_name}.
type Task struct {
	Description    string `toml:"description"`
	ExpectedOutput string `toml:"expected_output"`
}

// Template represents a loaded template
type Template struct {
	Name  string `toml:"-"`
	Agent Agent  `toml:"agent"`
	Task  Task   `toml:"task"`
}

var placeholder = regexp.MustCompile(`\{([a-z_]+)\}`)

// GetTemplate loads a template by name with resolution order:
// 1. User override: templatesDir/{name}.toml
// 2. Embedded default: internal/templates/{name}.toml
func GetTemplate(name string, templatesDir string) (*Template, error) {
	if templatesDir != "" {
		userPath := filepath.Join(templatesDir, name+".toml")
		if data, err := os.ReadFile(userPath); err == nil {
			return parseTemplate(name, data)
		}
	}

	data, err := fs.ReadFile(name + ".toml")
	if err != nil {
		return nil, fmt.Errorf("template '%s' not found (checked user override and embedded)", name)
	}
	return parseTemplate(name, data)
}

// ListEmbeddedTemplates returns names of all embedded templates
func ListEmbeddedTemplates() ([]string, error) {
	entries, err := fs.ReadDir(".")
	if err != nil {
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".toml") {
			names = append(names, strings.TrimSuffix(entry.Name(), ".toml"))
		}
	}
	sort.Strings(names)
	return names, nil
}

func parseTemplate(name string, data []byte) (*Template, error) {
	var t Template
	if err := toml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", name, err)
	}
	t.Name = name
	if err := t.validate(); err != nil {
		return nil, fmt.Errorf("invalid template '%s': %w", name, err)
	}
	return &t, nil
}

func (t *Template) validate() error {
	switch {
	case strings.TrimSpace(t.Agent.Role) == "":
		return fmt.Errorf("agent.role is required")
	case strings.TrimSpace(t.Agent.Goal) == "":
		return fmt.Errorf("agent.goal is required")
	case strings.TrimSpace(t.Task.Description) == "":
		return fmt.Errorf("task.description is required")
	case strings.TrimSpace(t.Task.ExpectedOutput) == "":
		return fmt.Errorf("task.expected_output is required")
	}
	return nil
}

// SystemPrompt introduces the agent persona
func (t *Template) SystemPrompt() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are %s. %s\n", strings.TrimSpace(t.Agent.Role), strings.TrimSpace(t.Agent.Backstory))
	fmt.Fprintf(&sb, "Your personal goal is: %s", strings.TrimSpace(t.Agent.Goal))
	return sb.String()
}

// TaskPrompt fills the task description with vars and appends the expected output.
// Unknown placeholders are left as written.
func (t *Template) TaskPrompt(vars map[string]string) string {
	description := placeholder.ReplaceAllStringFunc(t.Task.Description, func(m string) string {
		if v, ok := vars[m[1:len(m)-1]]; ok {
			return v
		}
		return m
	})

	var sb strings.Builder
	fmt.Fprintf(&sb, "Current Task: %s\n\n", strings.TrimSpace(description))
	fmt.Fprintf(&sb, "This is the expected criteria for your final answer: %s\n", strings.TrimSpace(t.Task.ExpectedOutput))
	sb.WriteString("You MUST return the actual complete content as the final answer, not a summary.")
	return sb.String()
}
