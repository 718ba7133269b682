package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/equityresearch/internal/common"
	"github.com/ternarybob/equityresearch/internal/eodhd"
	"github.com/ternarybob/equityresearch/internal/handlers"
	"github.com/ternarybob/equityresearch/internal/interfaces"
	"github.com/ternarybob/equityresearch/internal/services/agents"
	"github.com/ternarybob/equityresearch/internal/services/events"
	"github.com/ternarybob/equityresearch/internal/services/llm"
	"github.com/ternarybob/equityresearch/internal/services/market"
	"github.com/ternarybob/equityresearch/internal/services/parser"
	"github.com/ternarybob/equityresearch/internal/services/report"
	"github.com/ternarybob/equityresearch/internal/services/search"
	"github.com/ternarybob/equityresearch/internal/tools"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	// Lookup services behind the agent tools
	SearchService interfaces.WebSearchService
	MarketService interfaces.MarketService
	ParserService *parser.Service

	// Agent
	Tools        *tools.Registry
	LLMService   interfaces.LLMService
	EventService interfaces.EventService
	Runner       *agents.Runner

	ReportService *report.Service

	// HTTP handlers
	APIHandler      *handlers.APIHandler
	PageHandler     *handlers.PageHandler
	ResearchHandler *handlers.ResearchHandler
	WSHandler       *handlers.WebSocketHandler

	loggerSubscription string
}

// New initializes the services and the web handlers
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	a, err := NewHeadless(cfg, logger)
	if err != nil {
		return nil, err
	}

	if err := a.initHandlers(); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	logger.Info().Msg("Application initialization complete")
	return a, nil
}

// NewHeadless initializes the services without any HTTP handlers (used by the MCP server)
func NewHeadless(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	a := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := a.initServices(); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return a, nil
}

// initServices wires lookup services, tools, the LLM provider and the runner
func (a *App) initServices() error {
	// 1. Web search
	a.SearchService = search.NewDuckDuckGo(&a.Config.Search, a.Logger)

	// 2. Market data; a missing key surfaces as tool error text per call
	eodhdKey, err := common.ResolveAPIKey("eodhd_api_key", a.Config.Market.APIKey)
	if err != nil {
		a.Logger.Warn().Msg("EODHD_API_KEY not set - fetch_financial_segments will return errors")
	}
	client := eodhd.NewClient(eodhdKey,
		eodhd.WithBaseURL(a.Config.Market.BaseURL),
		eodhd.WithRateLimit(a.Config.Market.RateLimit),
		eodhd.WithHTTPClient(&http.Client{Timeout: common.ParseDuration(a.Config.Market.Timeout, eodhd.DefaultTimeout)}),
		eodhd.WithLogger(a.Logger),
	)
	a.MarketService = market.NewService(client, a.Logger)

	// 3. Annual report parser
	a.ParserService, err = parser.NewService(&a.Config.Parser, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize parser: %w", err)
	}

	// 4. Tools
	a.Tools, err = tools.NewRegistry(
		tools.NewWebHistoryTool(a.SearchService, a.Logger),
		tools.NewFinancialsTool(a.MarketService, a.Logger),
		tools.NewAnnualReportTool(a.ParserService, a.Config.Reports.Dir, a.Config.Parser.MaxChars, a.Logger),
	)
	if err != nil {
		return fmt.Errorf("failed to register tools: %w", err)
	}

	// 5. LLM provider
	a.LLMService, err = llm.NewProviderFactory(a.Config, a.Logger).NewService(context.Background(), "")
	if err != nil {
		return err
	}

	// 6. Events
	a.EventService = events.NewService(a.Logger)
	a.loggerSubscription, err = events.SubscribeLogger(a.EventService, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to subscribe event logger: %w", err)
	}

	// 7. Runner and report rendering
	a.Runner = agents.NewRunner(a.LLMService, a.Tools, a.EventService, &a.Config.Agent, a.Logger)
	a.ReportService = report.NewService(a.Logger)

	a.Logger.Info().
		Str("provider", a.LLMService.ProviderName()).
		Str("model", a.LLMService.ModelName()).
		Strs("tools", a.Tools.Names()).
		Str("parser", a.ParserService.Name()).
		Msg("Services initialized")

	return nil
}

func (a *App) initHandlers() error {
	var err error

	provider, model := a.LLMService.ProviderName(), a.LLMService.ModelName()

	a.APIHandler = handlers.NewAPIHandler(a.Runner, provider, model, a.Logger)

	a.PageHandler, err = handlers.NewPageHandler(a.Runner, a.Config.Reports.Dir, provider, model, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to load page templates: %w", err)
	}

	a.ResearchHandler = handlers.NewResearchHandler(a.Runner, a.ReportService, a.PageHandler, a.Logger)

	a.WSHandler, err = handlers.NewWebSocketHandler(a.EventService, a.Runner, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to create WebSocket handler: %w", err)
	}

	return nil
}

// Close releases event subscriptions and connected clients
func (a *App) Close() error {
	if a.WSHandler != nil {
		a.WSHandler.Close()
	}

	if a.EventService != nil {
		if a.loggerSubscription != "" {
			if err := a.EventService.Unsubscribe(a.loggerSubscription); err != nil {
				a.Logger.Warn().Err(err).Msg("Failed to unsubscribe event logger")
			}
		}
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	a.Logger.Info().Msg("Application closed")
	return nil
}
