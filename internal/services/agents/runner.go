// Package agents runs the single-agent research crew: one persona, one task,
// three lookup tools, executed through a tool-calling LLM.
package agents

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/equityresearch/internal/common"
	"github.com/ternarybob/equityresearch/internal/interfaces"
	"github.com/ternarybob/equityresearch/internal/models"
	"github.com/ternarybob/equityresearch/internal/services/llm"
	"github.com/ternarybob/equityresearch/internal/templates"
	"github.com/ternarybob/equityresearch/internal/tools"
)

var (
	// ErrRunInProgress is returned when a run is requested while another is active
	ErrRunInProgress = errors.New("a report is already being generated")
	// ErrMissingFields is returned when any request field is blank
	ErrMissingFields = errors.New("Please fill in all fields.")
	// ErrRateLimited wraps provider quota and rate limit failures
	ErrRateLimited = errors.New("rate limited by the LLM provider")
)

// Progress labels shown while a tool runs
var progressLabels = map[string]string{
	"search_web_for_company_history": "Searching Web for History...",
	"read_annual_report":             "Reading Annual Report...",
	"fetch_financial_segments":       "Analyzing Financial Segments...",
}

const (
	MessageWorking  = "AI Agents are working..."
	MessageComplete = "Analysis Complete!"
)

// Status is a snapshot of the runner
type Status struct {
	State     models.RunState `json:"state"`
	RunID     string          `json:"run_id,omitempty"`
	Company   string          `json:"company,omitempty"`
	StartedAt *time.Time      `json:"started_at,omitempty"`
}

// Runner owns the idle/running state. Only one run executes at a time.
type Runner struct {
	llm      interfaces.LLMService
	registry *tools.Registry
	events   interfaces.EventService
	config   *common.AgentConfig
	validate *validator.Validate
	logger   arbor.ILogger

	mu     sync.Mutex
	status Status
}

// NewRunner creates an idle runner. events may be nil.
func NewRunner(
	llm interfaces.LLMService,
	registry *tools.Registry,
	events interfaces.EventService,
	config *common.AgentConfig,
	logger arbor.ILogger,
) *Runner {
	return &Runner{
		llm:      llm,
		registry: registry,
		events:   events,
		config:   config,
		validate: validator.New(),
		logger:   logger,
		status:   Status{State: models.RunStateIdle},
	}
}

// Status returns the current state
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Validate trims the request and checks every field is present
func (r *Runner) Validate(req *models.ResearchRequest) error {
	req.Normalize()
	if err := r.validate.Struct(req); err != nil {
		return ErrMissingFields
	}
	return nil
}

// Run executes one report run and blocks until the model gives its final answer.
// The runner returns to idle whatever the outcome. Nothing is retried.
func (r *Runner) Run(ctx context.Context, req models.ResearchRequest) (report *models.Report, err error) {
	if err := r.Validate(&req); err != nil {
		return nil, err
	}

	runID, startedAt, err := r.begin(req.Company)
	if err != nil {
		return nil, err
	}
	defer r.end()

	defer func() {
		if rec := recover(); rec != nil {
			perr := common.NewPanicError(rec)
			r.logger.Error().
				Str("run_id", runID).
				Str("panic", fmt.Sprintf("%v", perr.Value)).
				Str("stack", perr.Stack).
				Msg("Recovered from panic during run")
			report = nil
			err = fmt.Errorf("agent run failed: %w", perr)
		}
		if err != nil {
			r.publish(ctx, models.RunEvent{RunID: runID, Type: models.RunEventFailed, Message: "An error occurred: " + err.Error()})
		}
	}()

	r.logger.Info().
		Str("run_id", runID).
		Str("company", req.Company).
		Str("ticker", req.Ticker).
		Str("document", req.DocumentFilename).
		Msg("Research run started")

	r.publish(ctx, models.RunEvent{RunID: runID, Type: models.RunEventStarted, Message: MessageWorking})

	tmpl, err := templates.GetTemplate(r.templateName(), r.config.TemplatesDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load task template: %w", err)
	}

	agentTools, err := r.selectTools(tmpl.Agent.Tools)
	if err != nil {
		return nil, err
	}

	request := &interfaces.AgentRequest{
		SystemPrompt: tmpl.SystemPrompt(),
		UserPrompt: tmpl.TaskPrompt(map[string]string{
			"company":  req.Company,
			"ticker":   req.Ticker,
			"pdf_name": req.DocumentFilename,
		}),
		Tools:    agentTools,
		MaxTurns: r.config.MaxTurns,
		Hooks:    r.hooks(ctx, runID),
	}

	resp, err := r.llm.RunAgent(ctx, request)
	if err != nil {
		if llm.IsRateLimitError(err) {
			r.logger.Warn().Str("run_id", runID).Bool("rate_limited", true).Err(err).Msg("LLM provider rejected the run")
			return nil, fmt.Errorf("%w: %w", ErrRateLimited, err)
		}
		return nil, err
	}

	report = &models.Report{
		RunID:       runID,
		Company:     req.Company,
		Ticker:      req.Ticker,
		Markdown:    resp.Text,
		Filename:    models.ReportFilename(req.Company, "md"),
		Provider:    resp.Provider,
		Model:       resp.Model,
		ToolCalls:   resp.ToolCalls,
		StartedAt:   startedAt,
		CompletedAt: time.Now(),
	}

	r.logger.Info().
		Str("run_id", runID).
		Int("turns", resp.Turns).
		Int("tool_calls", len(resp.ToolCalls)).
		Int("chars", len(resp.Text)).
		Dur("duration", report.CompletedAt.Sub(startedAt)).
		Msg("Research run completed")

	r.publish(ctx, models.RunEvent{RunID: runID, Type: models.RunEventCompleted, Message: MessageComplete})
	return report, nil
}

func (r *Runner) begin(company string) (string, time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status.State == models.RunStateRunning {
		return "", time.Time{}, ErrRunInProgress
	}

	now := time.Now()
	r.status = Status{
		State:     models.RunStateRunning,
		RunID:     uuid.New().String(),
		Company:   company,
		StartedAt: &now,
	}
	return r.status.RunID, now, nil
}

func (r *Runner) end() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = Status{State: models.RunStateIdle}
}

func (r *Runner) templateName() string {
	if r.config.Template == "" {
		return "company_profile"
	}
	return r.config.Template
}

// selectTools resolves the template's tool list; an empty list means every tool
func (r *Runner) selectTools(names []string) ([]interfaces.Tool, error) {
	if len(names) == 0 {
		return r.registry.All(), nil
	}
	selected := make([]interfaces.Tool, 0, len(names))
	for _, name := range names {
		t, ok := r.registry.Get(name)
		if !ok {
			return nil, fmt.Errorf("template references unknown tool: %s", name)
		}
		selected = append(selected, t)
	}
	return selected, nil
}

func (r *Runner) hooks(ctx context.Context, runID string) interfaces.ToolHooks {
	return interfaces.ToolHooks{
		OnToolStart: func(tool interfaces.Tool, input string) {
			if r.config.Verbose {
				r.logger.Info().Str("run_id", runID).Str("tool", tool.Name()).Str("input", input).Msg("Tool started")
			}
			r.publish(ctx, models.RunEvent{
				RunID:   runID,
				Type:    models.RunEventToolStarted,
				Tool:    tool.Name(),
				Message: ProgressLabel(tool),
			})
		},
		OnToolEnd: func(tool interfaces.Tool, invocation models.ToolInvocation) {
			if r.config.Verbose {
				r.logger.Info().
					Str("run_id", runID).
					Str("tool", tool.Name()).
					Str("output", tools.Truncate(invocation.Output, 500)).
					Dur("duration", invocation.Duration).
					Msg("Tool finished")
			}
			r.publish(ctx, models.RunEvent{
				RunID:   runID,
				Type:    models.RunEventToolFinished,
				Tool:    tool.Name(),
				Message: tool.Title() + " finished",
			})
		},
	}
}

// ProgressLabel is the status line shown while tool runs
func ProgressLabel(tool interfaces.Tool) string {
	if label, ok := progressLabels[tool.Name()]; ok {
		return label
	}
	return tool.Title() + "..."
}

func (r *Runner) publish(ctx context.Context, event models.RunEvent) {
	if r.events == nil {
		return
	}
	event.Timestamp = time.Now()
	if err := r.events.PublishSync(ctx, event); err != nil {
		r.logger.Debug().Err(err).Str("event", string(event.Type)).Msg("Run event delivery failed")
	}
}
