package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/compilot/internal/analyzer"
	"github.com/ternarybob/compilot/internal/common"
	"github.com/ternarybob/compilot/internal/deps"
	"github.com/ternarybob/compilot/internal/engine"
	"github.com/ternarybob/compilot/internal/executor"
	"github.com/ternarybob/compilot/internal/models"
	"github.com/ternarybob/compilot/internal/services/diagnosis"
)

// handleCompileProject implements the compile_project tool
func handleCompileProject(config *common.Config, handler *diagnosis.Handler, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		projectPath, err := request.RequireString("project_path")
		if err != nil || projectPath == "" {
			return textResult("Error: project_path parameter is required"), nil
		}

		maxRetry := request.GetInt("max_retry", config.Engine.MaxRetry)
		if maxRetry <= 0 {
			maxRetry = config.Engine.MaxRetry
		}

		runner := executor.New(config.Engine.OutputLimitBytes, logger)
		eng := engine.New(engine.Options{
			Analyzer:  analyzer.New(handler, logger),
			Runner:    runner,
			Deps:      deps.New(runner, config.BuildTimeout(), config.PackageTimeout(), logger),
			Diagnoser: handler,
			MaxRetry:  maxRetry,
			Logger:    logger,
		})

		result, err := eng.Run(ctx, projectPath)
		if err != nil {
			logger.Error().Err(err).Str("project_path", projectPath).Msg("Compile run failed")
			return textResult(fmt.Sprintf("Compile error: %v", err)), nil
		}

		return textResult(formatRunResult(result)), nil
	}
}

// handleAnalyzeProject implements the analyze_project tool
func handleAnalyzeProject(handler *diagnosis.Handler, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		projectPath, err := request.RequireString("project_path")
		if err != nil || projectPath == "" {
			return textResult("Error: project_path parameter is required"), nil
		}

		project, err := analyzer.New(handler, logger).Analyze(ctx, projectPath)
		if err != nil {
			logger.Error().Err(err).Str("project_path", projectPath).Msg("Analysis failed")
			return textResult(fmt.Sprintf("Analysis error: %v", err)), nil
		}

		return textResult(formatProjectInfo(project)), nil
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

// formatRunResult renders a run outcome as markdown
func formatRunResult(result *models.RunResult) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# Compile Result: %s\n\n", result.State)
	fmt.Fprintf(&sb, "%s\n\n", result.Message())
	fmt.Fprintf(&sb, "- Exit code: %d\n", result.State.ExitCode())
	fmt.Fprintf(&sb, "- Attempts: %d\n", len(result.History))

	if len(result.MissingTools) > 0 {
		fmt.Fprintf(&sb, "- Missing tools: %s\n", strings.Join(result.MissingTools, ", "))
	}
	if len(result.Artifacts) > 0 {
		sb.WriteString("\n## Artifacts\n\n")
		for _, artifact := range result.Artifacts {
			fmt.Fprintf(&sb, "- %s\n", artifact)
		}
	}
	if len(result.History) > 0 {
		sb.WriteString("\n## Attempt History\n\n")
		for _, attempt := range result.History {
			fmt.Fprintf(&sb, "%d. `%s` (exit %d", attempt.Index, attempt.Command, attempt.ExitCode)
			if attempt.Reason != "" {
				fmt.Fprintf(&sb, ", %s", attempt.Reason)
			}
			sb.WriteString(")\n")
		}
	}

	return sb.String()
}

// formatProjectInfo renders project analysis as markdown
func formatProjectInfo(project *models.ProjectInfo) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# Project: %s\n\n", project.Name)
	fmt.Fprintf(&sb, "- Build system: %s\n", project.BuildSystem)
	fmt.Fprintf(&sb, "- Build root: %s\n", project.BuildRoot)
	fmt.Fprintf(&sb, "- Build command: `%s`\n", project.BuildCommand)
	if len(project.Languages) > 0 {
		fmt.Fprintf(&sb, "- Languages: %s\n", strings.Join(project.Languages, ", "))
	}
	if len(project.Dependencies) > 0 {
		fmt.Fprintf(&sb, "- Dependencies: %s\n", strings.Join(project.Dependencies, ", "))
	}
	fmt.Fprintf(&sb, "- README parsed: %t\n", project.ReadmeParsed)

	return sb.String()
}
