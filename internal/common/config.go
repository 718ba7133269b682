package common

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/ternarybob/equityresearch/internal/templates"
)

// Config represents the application configuration
type Config struct {
	Environment string        `toml:"environment"` // "development" or "production"
	Server      ServerConfig  `toml:"server"`
	Logging     LoggingConfig `toml:"logging"`
	LLM         LLMConfig     `toml:"llm"`
	Groq        GroqConfig    `toml:"groq"`
	Gemini      GeminiConfig  `toml:"gemini"`
	Claude      ClaudeConfig  `toml:"claude"`
	Agent       AgentConfig   `toml:"agent"`
	Search      SearchConfig  `toml:"search"`
	Market      MarketConfig  `toml:"market"`
	Parser      ParserConfig  `toml:"parser"`
	Reports     ReportsConfig `toml:"reports"`
}

type ServerConfig struct {
	Port         int    `toml:"port"`
	Host         string `toml:"host"`
	ReadTimeout  string `toml:"read_timeout"`  // e.g. "15s"
	WriteTimeout string `toml:"write_timeout"` // must cover a full report run, the page blocks until it ends
	IdleTimeout  string `toml:"idle_timeout"`
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // default "15:04:05"
}

// LLMProvider represents the AI provider type
type LLMProvider string

const (
	// LLMProviderGroq uses Groq's OpenAI-compatible chat completions API
	LLMProviderGroq LLMProvider = "groq"
	// LLMProviderGemini uses Google Gemini API
	LLMProviderGemini LLMProvider = "gemini"
	// LLMProviderClaude uses Anthropic Claude API
	LLMProviderClaude LLMProvider = "claude"
)

// LLMConfig selects the provider used by the research agent
type LLMConfig struct {
	DefaultProvider LLMProvider `toml:"default_provider"` // "groq" (default), "gemini" or "claude"
	Model           string      `toml:"model"`            // Optional override, may carry a provider prefix e.g. "groq/llama-3.3-70b-versatile"
}

// GroqConfig contains Groq API configuration
type GroqConfig struct {
	APIKey      string  `toml:"api_key"`     // GROQ_API_KEY takes priority
	BaseURL     string  `toml:"base_url"`    // OpenAI-compatible endpoint
	Model       string  `toml:"model"`       // default "llama-3.3-70b-versatile"
	MaxTokens   int     `toml:"max_tokens"`  // 0 = provider default
	Timeout     string  `toml:"timeout"`     // per request
	Temperature float32 `toml:"temperature"` // default 0.2
}

// GeminiConfig contains Google Gemini API configuration
type GeminiConfig struct {
	APIKey      string  `toml:"api_key"`
	BaseURL     string  `toml:"base_url"` // Empty uses the public Gemini API endpoint
	Model       string  `toml:"model"`
	Timeout     string  `toml:"timeout"`
	Temperature float32 `toml:"temperature"`
}

// ClaudeConfig contains Anthropic Claude API configuration
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	MaxTokens   int     `toml:"max_tokens"`
	Timeout     string  `toml:"timeout"`
	Temperature float32 `toml:"temperature"`
}

// AgentConfig controls the research agent
type AgentConfig struct {
	Template     string `toml:"template"`      // Task template name (default "company_profile")
	TemplatesDir string `toml:"templates_dir"` // User overrides for embedded templates
	MaxTurns     int    `toml:"max_turns"`     // Upper bound on model round trips per run
	Verbose      bool   `toml:"verbose"`       // Log tool inputs and outputs at info level
}

// SearchConfig configures the web history search (DuckDuckGo lite)
type SearchConfig struct {
	BaseURL    string `toml:"base_url"`
	UserAgent  string `toml:"user_agent"`
	MaxResults int    `toml:"max_results"`
	RateLimit  string `toml:"rate_limit"` // Minimum gap between queries
	Timeout    string `toml:"timeout"`
}

// MarketConfig configures the EODHD fundamentals client
type MarketConfig struct {
	APIKey    string `toml:"api_key"` // EODHD_API_KEY takes priority
	BaseURL   string `toml:"base_url"`
	RateLimit int    `toml:"rate_limit"` // Requests per second
	Timeout   string `toml:"timeout"`
}

// ParserConfig configures annual report extraction
type ParserConfig struct {
	Mode         string `toml:"mode"`    // "llamaparse" (default) or "local"
	APIKey       string `toml:"api_key"` // LLAMA_CLOUD_API_KEY takes priority
	BaseURL      string `toml:"base_url"`
	MaxChars     int    `toml:"max_chars"`     // Extracted text is cut to this many characters
	PollInterval string `toml:"poll_interval"` // LlamaParse job status poll interval
	Timeout      string `toml:"timeout"`       // Overall budget for one parse
}

// ReportsConfig locates annual report PDFs
type ReportsConfig struct {
	Dir string `toml:"dir"` // default "./annual_reports"
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port:         8501,
			Host:         "localhost",
			ReadTimeout:  "15s",
			WriteTimeout: "15m",
			IdleTimeout:  "60s",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05",
		},
		LLM: LLMConfig{
			DefaultProvider: LLMProviderGroq,
		},
		Groq: GroqConfig{
			BaseURL:     "https://api.groq.com/openai/v1",
			Model:       "llama-3.3-70b-versatile",
			Timeout:     "5m",
			Temperature: 0.2,
		},
		Gemini: GeminiConfig{
			Model:       "gemini-2.5-flash",
			Timeout:     "5m",
			Temperature: 0.2,
		},
		Claude: ClaudeConfig{
			Model:       "claude-sonnet-4-20250514",
			MaxTokens:   8192,
			Timeout:     "5m",
			Temperature: 0.2,
		},
		Agent: AgentConfig{
			Template:     "company_profile",
			TemplatesDir: "./templates",
			MaxTurns:     15,
		},
		Search: SearchConfig{
			BaseURL:    "https://lite.duckduckgo.com/lite/",
			UserAgent:  "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			MaxResults: 5,
			RateLimit:  "1s",
			Timeout:    "15s",
		},
		Market: MarketConfig{
			BaseURL:   "https://eodhd.com/api",
			RateLimit: 10,
			Timeout:   "30s",
		},
		Parser: ParserConfig{
			Mode:         ParserModeLlamaParse,
			BaseURL:      "https://api.cloud.llamaindex.ai",
			MaxChars:     15000,
			PollInterval: "2s",
			Timeout:      "5m",
		},
		Reports: ReportsConfig{
			Dir: "./annual_reports",
		},
	}
}

// Parser modes
const (
	ParserModeLlamaParse = "llamaparse"
	ParserModeLocal      = "local"
)

// LoadDotEnv loads .env files into the process environment.
// Missing files are ignored and existing variables are never overwritten.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", path, err)
		}
	}
	return nil
}

// LoadFromFiles loads configuration with priority: defaults -> file1 -> file2 -> ... -> env.
// CLI flags are applied afterwards by ApplyFlagOverrides.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("EQUITY_ENV"); env != "" {
		config.Environment = env
	}

	// Server
	if port := os.Getenv("EQUITY_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("EQUITY_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Logging
	if level := os.Getenv("EQUITY_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("EQUITY_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// LLM
	if provider := os.Getenv("EQUITY_LLM_PROVIDER"); provider != "" {
		config.LLM.DefaultProvider = LLMProvider(strings.ToLower(provider))
	}
	if model := os.Getenv("EQUITY_LLM_MODEL"); model != "" {
		config.LLM.Model = model
	}
	if model := os.Getenv("EQUITY_GROQ_MODEL"); model != "" {
		config.Groq.Model = model
	}
	if baseURL := os.Getenv("EQUITY_GROQ_BASE_URL"); baseURL != "" {
		config.Groq.BaseURL = baseURL
	}
	if model := os.Getenv("EQUITY_GEMINI_MODEL"); model != "" {
		config.Gemini.Model = model
	}
	if model := os.Getenv("EQUITY_CLAUDE_MODEL"); model != "" {
		config.Claude.Model = model
	}

	// Agent
	if maxTurns := os.Getenv("EQUITY_AGENT_MAX_TURNS"); maxTurns != "" {
		if mt, err := strconv.Atoi(maxTurns); err == nil {
			config.Agent.MaxTurns = mt
		}
	}
	if verbose := os.Getenv("EQUITY_AGENT_VERBOSE"); verbose != "" {
		if v, err := strconv.ParseBool(verbose); err == nil {
			config.Agent.Verbose = v
		}
	}

	// Parser
	if mode := os.Getenv("EQUITY_PARSER_MODE"); mode != "" {
		config.Parser.Mode = strings.ToLower(mode)
	}
	if maxChars := os.Getenv("EQUITY_PARSER_MAX_CHARS"); maxChars != "" {
		if mc, err := strconv.Atoi(maxChars); err == nil {
			config.Parser.MaxChars = mc
		}
	}

	// Reports
	if dir := os.Getenv("EQUITY_REPORTS_DIR"); dir != "" {
		config.Reports.Dir = dir
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// apiKeyEnvVars maps API key names to environment variables, highest priority first.
var apiKeyEnvVars = map[string][]string{
	"groq_api_key":        {"GROQ_API_KEY", "EQUITY_GROQ_API_KEY"},
	"gemini_api_key":      {"GEMINI_API_KEY", "GOOGLE_API_KEY", "EQUITY_GEMINI_API_KEY"},
	"anthropic_api_key":   {"ANTHROPIC_API_KEY", "EQUITY_CLAUDE_API_KEY"},
	"llama_cloud_api_key": {"LLAMA_CLOUD_API_KEY", "EQUITY_PARSER_API_KEY"},
	"eodhd_api_key":       {"EODHD_API_KEY", "EQUITY_MARKET_API_KEY"},
}

// ErrMissingAPIKey is returned when an API key cannot be resolved
var ErrMissingAPIKey = errors.New("API key not configured")

// ResolveAPIKey resolves an API key by name.
// Resolution order: environment variables -> config fallback -> error
func ResolveAPIKey(name string, configFallback string) (string, error) {
	for _, envVarName := range apiKeyEnvVars[name] {
		if envValue := strings.TrimSpace(os.Getenv(envVarName)); envValue != "" {
			return envValue, nil
		}
	}

	if configFallback = strings.TrimSpace(configFallback); configFallback != "" {
		return configFallback, nil
	}

	return "", fmt.Errorf("%w: '%s' not found in environment or config", ErrMissingAPIKey, name)
}

// ProviderKeyName returns the API key name and primary environment variable for a provider
func ProviderKeyName(provider LLMProvider) (keyName string, envVar string) {
	switch provider {
	case LLMProviderGemini:
		return "gemini_api_key", "GEMINI_API_KEY"
	case LLMProviderClaude:
		return "anthropic_api_key", "ANTHROPIC_API_KEY"
	default:
		return "groq_api_key", "GROQ_API_KEY"
	}
}

// ValidateLLMCredential checks that the credential for the configured provider is present.
// The returned error message is shown to the user verbatim.
func (c *Config) ValidateLLMCredential() error {
	keyName, envVar := ProviderKeyName(c.LLM.DefaultProvider)

	var fallback string
	switch c.LLM.DefaultProvider {
	case LLMProviderGemini:
		fallback = c.Gemini.APIKey
	case LLMProviderClaude:
		fallback = c.Claude.APIKey
	default:
		fallback = c.Groq.APIKey
	}

	if _, err := ResolveAPIKey(keyName, fallback); err != nil {
		return fmt.Errorf("Please set your %s in the .env file", envVar)
	}
	return nil
}

// Validate checks config values that cannot be defaulted at use sites
func (c *Config) Validate() error {
	switch c.LLM.DefaultProvider {
	case LLMProviderGroq, LLMProviderGemini, LLMProviderClaude:
	default:
		return fmt.Errorf("invalid llm.default_provider '%s': must be groq, gemini or claude", c.LLM.DefaultProvider)
	}

	switch c.Parser.Mode {
	case ParserModeLlamaParse, ParserModeLocal:
	default:
		return fmt.Errorf("invalid parser.mode '%s': must be llamaparse or local", c.Parser.Mode)
	}

	if c.Parser.MaxChars <= 0 {
		return fmt.Errorf("parser.max_chars must be greater than 0, got %d", c.Parser.MaxChars)
	}
	if c.Agent.MaxTurns <= 0 {
		return fmt.Errorf("agent.max_turns must be greater than 0, got %d", c.Agent.MaxTurns)
	}
	if strings.TrimSpace(c.Reports.Dir) == "" {
		return errors.New("reports.dir is required")
	}

	// Empty means the embedded company_profile template
	if name := strings.TrimSpace(c.Agent.Template); name != "" {
		if _, err := templates.GetTemplate(name, c.Agent.TemplatesDir); err != nil {
			embedded, _ := templates.ListEmbeddedTemplates()
			return fmt.Errorf("invalid agent.template: %w (embedded: %s)", err, strings.Join(embedded, ", "))
		}
	}

	return nil
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// ParseDuration parses a duration string, returning fallback when empty or invalid.
// A zero duration ("0s") is returned as-is so callers can disable timeouts.
func ParseDuration(value string, fallback time.Duration) time.Duration {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}
