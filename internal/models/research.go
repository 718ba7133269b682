package models

import (
	"regexp"
	"strings"
	"time"
)

// ResearchRequest is the user input for one report run
type ResearchRequest struct {
	Company          string `json:"company" validate:"required"`
	Ticker           string `json:"ticker" validate:"required"`
	DocumentFilename string `json:"document_filename" validate:"required"`
}

// Normalize trims surrounding whitespace from every field
func (r *ResearchRequest) Normalize() {
	r.Company = strings.TrimSpace(r.Company)
	r.Ticker = strings.TrimSpace(r.Ticker)
	r.DocumentFilename = strings.TrimSpace(r.DocumentFilename)
}

// ToolInvocation records one tool call made by the agent
type ToolInvocation struct {
	Tool     string        `json:"tool"`
	Input    string        `json:"input"`
	Output   string        `json:"output"`
	Duration time.Duration `json:"duration"`
}

// Report is the markdown produced by a completed run. It is never persisted.
type Report struct {
	RunID       string           `json:"run_id"`
	Company     string           `json:"company"`
	Ticker      string           `json:"ticker"`
	Markdown    string           `json:"markdown"`
	Filename    string           `json:"filename"`
	Provider    string           `json:"provider"`
	Model       string           `json:"model"`
	ToolCalls   []ToolInvocation `json:"tool_calls,omitempty"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt time.Time        `json:"completed_at"`
}

var unsafeFilenameChars = regexp.MustCompile(`[\\/:*?"<>|\x00-\x1f]`)

// ReportFilename derives the download name "{company}_Analysis.{ext}".
// Characters that are invalid in file names are replaced with '_'.
func ReportFilename(company, ext string) string {
	name := unsafeFilenameChars.ReplaceAllString(strings.TrimSpace(company), "_")
	if name == "" {
		name = "Company"
	}
	return name + "_Analysis." + strings.TrimPrefix(ext, ".")
}

// RunState is the agent runner state
type RunState string

const (
	RunStateIdle    RunState = "idle"
	RunStateRunning RunState = "running"
)

// RunEventType identifies progress events published during a run
type RunEventType string

const (
	RunEventStarted      RunEventType = "run_started"
	RunEventToolStarted  RunEventType = "tool_started"
	RunEventToolFinished RunEventType = "tool_finished"
	RunEventCompleted    RunEventType = "run_completed"
	RunEventFailed       RunEventType = "run_failed"
)

// RunEvent is a progress update for a run
type RunEvent struct {
	RunID     string       `json:"run_id"`
	Type      RunEventType `json:"type"`
	Tool      string       `json:"tool,omitempty"`
	Message   string       `json:"message"`
	Timestamp time.Time    `json:"timestamp"`
}
