package main

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// createCompileProjectTool returns the compile_project tool definition
func createCompileProjectTool() mcp.Tool {
	return mcp.NewTool("compile_project",
		mcp.WithDescription("Compile a project from source with automatic failure diagnosis and repair retries"),
		mcp.WithString("project_path",
			mcp.Required(),
			mcp.Description("Absolute path to the project source directory"),
		),
		mcp.WithNumber("max_retry",
			mcp.Description("Maximum repair attempts (default: from config)"),
		),
	)
}

// createAnalyzeProjectTool returns the analyze_project tool definition
func createAnalyzeProjectTool() mcp.Tool {
	return mcp.NewTool("analyze_project",
		mcp.WithDescription("Analyze a project directory: build system, build root, languages, and the build command that would run"),
		mcp.WithString("project_path",
			mcp.Required(),
			mcp.Description("Absolute path to the project source directory"),
		),
	)
}
