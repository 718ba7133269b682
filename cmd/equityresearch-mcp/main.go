package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/ternarybob/equityresearch/internal/app"
	"github.com/ternarybob/equityresearch/internal/common"
)

func main() {
	envFile := flag.String("env", ".env", "Environment file with API keys")
	flag.Parse()

	if err := common.LoadDotEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load %s: %v\n", *envFile, err)
		os.Exit(1)
	}

	configPath := os.Getenv("EQUITY_CONFIG")
	if configPath == "" {
		configPath = "equityresearch.toml"
	}

	var paths []string
	if _, err := os.Stat(configPath); err == nil {
		paths = append(paths, configPath)
	}

	config, err := common.LoadFromFiles(paths...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// stdout carries the MCP protocol; log to file only
	config.Logging.Output = []string{"file"}
	if config.Logging.Level == "" || config.Logging.Level == "info" || config.Logging.Level == "debug" {
		config.Logging.Level = "warn"
	}
	logger := common.InitLogger(config)

	if err := config.ValidateLLMCredential(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	application, err := app.NewHeadless(config, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer application.Close()

	mcpServer := server.NewMCPServer(
		"equityresearch",
		common.GetVersion(),
		server.WithToolCapabilities(true),
	)

	registerTools(mcpServer, application, logger)

	// Start server (blocks on stdio)
	if err := server.ServeStdio(mcpServer); err != nil {
		logger.Fatal().Err(err).Msg("MCP server failed")
	}
}
