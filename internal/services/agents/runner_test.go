package agents

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/equityresearch/internal/common"
	"github.com/ternarybob/equityresearch/internal/interfaces"
	"github.com/ternarybob/equityresearch/internal/models"
	"github.com/ternarybob/equityresearch/internal/services/events"
	"github.com/ternarybob/equityresearch/internal/services/llm"
	"github.com/ternarybob/equityresearch/internal/tools"
)

// scriptedLLM calls the named tools with fixed inputs, then answers
type scriptedLLM struct {
	calls   [][2]string // tool name, input
	answer  string
	err     error
	block   chan struct{}
	started chan struct{}
	panics  bool

	mu       sync.Mutex
	requests []*interfaces.AgentRequest
}

func (s *scriptedLLM) ProviderName() string { return "fake" }
func (s *scriptedLLM) ModelName() string    { return "fake-model" }

func (s *scriptedLLM) RunAgent(ctx context.Context, req *interfaces.AgentRequest) (*interfaces.AgentResponse, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	if s.started != nil {
		close(s.started)
	}
	if s.block != nil {
		<-s.block
	}
	if s.panics {
		panic("provider exploded")
	}

	byName := map[string]interfaces.Tool{}
	for _, t := range req.Tools {
		byName[t.Name()] = t
	}

	var invocations []models.ToolInvocation
	for _, c := range s.calls {
		tool := byName[c[0]]
		req.Hooks.OnToolStart(tool, c[1])
		out := tool.Execute(ctx, c[1])
		inv := models.ToolInvocation{Tool: c[0], Input: c[1], Output: out}
		invocations = append(invocations, inv)
		req.Hooks.OnToolEnd(tool, inv)
	}

	if s.err != nil {
		return nil, s.err
	}
	return &interfaces.AgentResponse{Text: s.answer, Provider: "fake", Model: "fake-model", Turns: len(s.calls) + 1, ToolCalls: invocations}, nil
}

type countingParser struct{ calls int }

func (c *countingParser) Name() string { return "counting" }
func (c *countingParser) Parse(ctx context.Context, path string) ([]models.ParsedDocument, error) {
	c.calls++
	return []models.ParsedDocument{{Text: "segment data"}}, nil
}

type staticSearch struct{}

func (staticSearch) Search(ctx context.Context, query string) ([]models.SearchResult, error) {
	return []models.SearchResult{{Title: "Jio launch", URL: "https://example.com"}}, nil
}

type staticMarket struct{}

func (staticMarket) GetCompanyProfile(ctx context.Context, ticker string) (*models.CompanyProfile, error) {
	return &models.CompanyProfile{Sector: "Energy"}, nil
}

type fixture struct {
	runner *Runner
	parser *countingParser
	events *eventLog
}

type eventLog struct {
	mu     sync.Mutex
	events []models.RunEvent
}

func (l *eventLog) add(ctx context.Context, e models.RunEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
	return nil
}

func (l *eventLog) messages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, string(e.Type)+"|"+e.Message)
	}
	return out
}

func newFixture(t *testing.T, fake *scriptedLLM) *fixture {
	t.Helper()
	logger := arbor.NewLogger()

	parser := &countingParser{}
	registry, err := tools.NewRegistry(
		tools.NewWebHistoryTool(staticSearch{}, logger),
		tools.NewAnnualReportTool(parser, t.TempDir(), 15000, logger),
		tools.NewFinancialsTool(staticMarket{}, logger),
	)
	require.NoError(t, err)

	bus := events.NewService(logger)
	log := &eventLog{}
	_, err = bus.Subscribe(interfaces.EventAll, log.add)
	require.NoError(t, err)

	cfg := common.NewDefaultConfig().Agent
	cfg.TemplatesDir = ""

	return &fixture{
		runner: NewRunner(fake, registry, bus, &cfg, logger),
		parser: parser,
		events: log,
	}
}

func relianceRequest() models.ResearchRequest {
	return models.ResearchRequest{Company: "Reliance Industries", Ticker: "RELIANCE.NS", DocumentFilename: "reliance.pdf"}
}

func TestRun_ProducesReport(t *testing.T) {
	fake := &scriptedLLM{
		calls: [][2]string{
			{"fetch_financial_segments", "RELIANCE.NS"},
			{"search_web_for_company_history", "Reliance Industries acquisitions"},
		},
		answer: "# Section 1: Company Profile",
	}
	f := newFixture(t, fake)

	report, err := f.runner.Run(context.Background(), relianceRequest())
	require.NoError(t, err)

	assert.Equal(t, "# Section 1: Company Profile", report.Markdown)
	assert.Equal(t, "Reliance Industries_Analysis.md", report.Filename)
	assert.Equal(t, "RELIANCE.NS", report.Ticker)
	assert.NotEmpty(t, report.RunID)
	assert.Len(t, report.ToolCalls, 2)
	assert.False(t, report.CompletedAt.Before(report.StartedAt))

	require.Len(t, fake.requests, 1)
	req := fake.requests[0]
	assert.Contains(t, req.SystemPrompt, "Corporate Historian & Strategist")
	assert.Contains(t, req.UserPrompt, "Analyze Reliance Industries (RELIANCE.NS) using PDF: reliance.pdf.")
	assert.Equal(t, 15, req.MaxTurns)
	require.Len(t, req.Tools, 3)
	assert.Equal(t, "search_web_for_company_history", req.Tools[0].Name())

	assert.Equal(t, []string{
		"run_started|AI Agents are working...",
		"tool_started|Analyzing Financial Segments...",
		"tool_finished|Fetch Financial Segments finished",
		"tool_started|Searching Web for History...",
		"tool_finished|Search Web for Company History finished",
		"run_completed|Analysis Complete!",
	}, f.events.messages())

	assert.Equal(t, models.RunStateIdle, f.runner.Status().State)
}

func TestRun_MissingReportIsToolText(t *testing.T) {
	fake := &scriptedLLM{
		calls:  [][2]string{{"read_annual_report", "missing.pdf"}},
		answer: "Annual report unavailable.",
	}
	f := newFixture(t, fake)

	req := relianceRequest()
	req.DocumentFilename = "missing.pdf"
	report, err := f.runner.Run(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, report.ToolCalls, 1)
	assert.Equal(t, "File not found.", report.ToolCalls[0].Output)
	assert.Equal(t, 0, f.parser.calls)
}

func TestRun_BlankFieldDoesNotStart(t *testing.T) {
	fake := &scriptedLLM{answer: "x"}
	f := newFixture(t, fake)

	req := relianceRequest()
	req.Ticker = "   "
	_, err := f.runner.Run(context.Background(), req)

	assert.ErrorIs(t, err, ErrMissingFields)
	assert.Equal(t, "Please fill in all fields.", err.Error())
	assert.Empty(t, fake.requests)
	assert.Empty(t, f.events.messages())
}

func TestRun_RejectsConcurrentRun(t *testing.T) {
	fake := &scriptedLLM{answer: "done", block: make(chan struct{}), started: make(chan struct{})}
	f := newFixture(t, fake)

	done := make(chan error, 1)
	go func() {
		_, err := f.runner.Run(context.Background(), relianceRequest())
		done <- err
	}()

	select {
	case <-fake.started:
	case <-time.After(2 * time.Second):
		t.Fatal("first run did not start")
	}

	status := f.runner.Status()
	assert.Equal(t, models.RunStateRunning, status.State)
	assert.Equal(t, "Reliance Industries", status.Company)

	_, err := f.runner.Run(context.Background(), relianceRequest())
	assert.ErrorIs(t, err, ErrRunInProgress)

	close(fake.block)
	require.NoError(t, <-done)
	assert.Equal(t, models.RunStateIdle, f.runner.Status().State)
}

func TestRun_ProviderErrorReturnsToIdle(t *testing.T) {
	fake := &scriptedLLM{err: fmt.Errorf("%w (15 turns)", llm.ErrMaxTurnsExceeded)}
	f := newFixture(t, fake)

	report, err := f.runner.Run(context.Background(), relianceRequest())
	assert.Nil(t, report)
	assert.ErrorIs(t, err, llm.ErrMaxTurnsExceeded)
	assert.NotErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, models.RunStateIdle, f.runner.Status().State)

	msgs := f.events.messages()
	require.NotEmpty(t, msgs)
	assert.Equal(t, "run_failed|An error occurred: "+err.Error(), msgs[len(msgs)-1])

	// A failed run never blocks the next one
	fake.err = nil
	fake.answer = "ok"
	_, err = f.runner.Run(context.Background(), relianceRequest())
	assert.NoError(t, err)
}

func TestRun_RateLimitIsReported(t *testing.T) {
	fake := &scriptedLLM{err: errors.New("POST /openai/v1/chat/completions: 429 Too Many Requests")}
	f := newFixture(t, fake)

	_, err := f.runner.Run(context.Background(), relianceRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Contains(t, err.Error(), "429 Too Many Requests")

	msgs := f.events.messages()
	require.NotEmpty(t, msgs)
	assert.Contains(t, msgs[len(msgs)-1], "run_failed|An error occurred: rate limited by the LLM provider")
	assert.Equal(t, models.RunStateIdle, f.runner.Status().State)
}

func TestRun_RecoversPanic(t *testing.T) {
	f := newFixture(t, &scriptedLLM{panics: true})

	_, err := f.runner.Run(context.Background(), relianceRequest())
	require.Error(t, err)

	var perr *common.PanicError
	assert.True(t, errors.As(err, &perr))
	assert.Equal(t, models.RunStateIdle, f.runner.Status().State)
}

func TestRun_UnknownTemplateTool(t *testing.T) {
	f := newFixture(t, &scriptedLLM{answer: "x"})
	_, err := f.runner.selectTools([]string{"read_annual_report", "delete_everything"})
	assert.EqualError(t, err, "template references unknown tool: delete_everything")
}
