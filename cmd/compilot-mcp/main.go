// -----------------------------------------------------------------------
// compilot-mcp - Exposes compile and analyze operations as MCP tools
// Runs as a stdio MCP server for editor and agent integration
// -----------------------------------------------------------------------

package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"
	arbor_models "github.com/ternarybob/arbor/models"

	"github.com/ternarybob/compilot/internal/common"
	"github.com/ternarybob/compilot/internal/services/diagnosis"
	"github.com/ternarybob/compilot/internal/services/llm"
)

func main() {
	configPath := os.Getenv("COMPILOT_CONFIG")
	if configPath == "" {
		if _, err := os.Stat("compilot.toml"); err == nil {
			configPath = "compilot.toml"
		}
	}

	config, err := common.LoadFromFile(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Minimal logging to avoid cluttering MCP stdio
	logger := arbor.NewLogger().WithConsoleWriter(arbor_models.WriterConfiguration{
		Type:             arbor_models.LogWriterTypeConsole,
		TimeFormat:       "15:04:05",
		DisableTimestamp: false,
	}).WithLevelFromString("warn")

	oracle, err := llm.NewClient(&config.Oracle, config.OracleTimeout(), config.OracleRateLimit(), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize oracle client")
	}
	defer oracle.Close()

	handler := diagnosis.New(oracle, logger)

	mcpServer := server.NewMCPServer(
		"compilot",
		common.GetVersion(),
		server.WithToolCapabilities(true),
	)

	mcpServer.AddTool(createCompileProjectTool(), handleCompileProject(config, handler, logger))
	mcpServer.AddTool(createAnalyzeProjectTool(), handleAnalyzeProject(handler, logger))

	// Start server (blocks on stdio)
	if err := server.ServeStdio(mcpServer); err != nil {
		logger.Fatal().Err(err).Msg("MCP server failed")
	}
}
