// Package mcp exposes the file canvas as Model Context Protocol tools:
// extracting, analyzing and exporting sheets, listing and removing files,
// and running free-text commands.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"dataclean/internal"
	"dataclean/internal/apperr"
	"dataclean/internal/pipeline"
)

type ServerConfig struct {
	Service *pipeline.Service
	Version string
}

// tools holds what the handlers of one server share. mu serializes tool
// calls: mcp-go dispatches handlers concurrently, but derived files and flows
// must be created by one command at a time.
type tools struct {
	svc *pipeline.Service
	mu  sync.Mutex
}

func NewServer(cfg ServerConfig) *server.MCPServer {
	ver := cfg.Version
	if ver == "" {
		ver = "dev"
	}
	s := server.NewMCPServer("dataclean", ver, server.WithToolCapabilities(false))

	t := &tools{svc: cfg.Service}
	t.registerExtractTool(s)
	t.registerAnalyzeTool(s)
	t.registerExportTool(s)
	t.registerListFilesTool(s)
	t.registerRunCommandTool(s)
	t.registerRemoveFileTool(s)
	return s
}

// ServeStdio serves srv over stdin and stdout until ctx is done.
func ServeStdio(ctx context.Context, srv *server.MCPServer) error {
	return server.NewStdioServer(srv).Listen(ctx, os.Stdin, os.Stdout)
}

// resultJSON renders a command result. Failures are tool errors so the
// client sees the suggestion text.
func resultJSON(res apperr.Result) *mcp.CallToolResult {
	data, _ := json.MarshalIndent(res, "", "  ")
	if !res.Success {
		return mcp.NewToolResultError(string(data))
	}
	return mcp.NewToolResultText(string(data))
}

func (t *tools) registerExtractTool(s *server.MCPServer) {
	tool := mcp.NewTool("extract_data",
		mcp.WithDescription("Extract the sheets matching a target (e.g. 机票, 酒店, 对账单) from the loaded files into new JSON files linked to their sources."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("target",
			mcp.Required(),
			mcp.Description("Data category to extract, matched against sheet names"),
		),
		mcp.WithString("fileFilter",
			mcp.Description("Only consider files whose name contains this text"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		t.mu.Lock()
		defer t.mu.Unlock()

		target, err := req.RequireString("target")
		if err != nil || strings.TrimSpace(target) == "" {
			return mcp.NewToolResultError("target is required"), nil
		}
		filter := req.GetString("fileFilter", "")
		files, err := t.svc.Files(filter)
		if err != nil {
			return resultJSON(apperr.FromError(err, apperr.SystemUnknown)), nil
		}
		return resultJSON(t.svc.Extract(ctx, strings.TrimSpace(target), files)), nil
	})
}

func (t *tools) registerAnalyzeTool(s *server.MCPServer) {
	tool := mcp.NewTool("analyze_data",
		mcp.WithDescription("Report row counts, quality score, empty-cell ratio, duplicate rows, column types and inferred structure for a file's sheets."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("fileId",
			mcp.Required(),
			mcp.Description("File id from list_files"),
		),
		mcp.WithString("analysisType",
			mcp.Description("quality, structure or summary (default: summary)"),
			mcp.Enum("quality", "structure", "summary"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		t.mu.Lock()
		defer t.mu.Unlock()

		id, err := req.RequireString("fileId")
		if err != nil {
			return mcp.NewToolResultError("fileId is required"), nil
		}
		f, err := t.svc.File(id)
		if err != nil {
			return resultJSON(apperr.FromError(err, apperr.SystemUnknown)), nil
		}
		kind := req.GetString("analysisType", "summary")
		return resultJSON(t.svc.Analyze(ctx, kind, []internal.File{f})), nil
	})
}

func (t *tools) registerExportTool(s *server.MCPServer) {
	tool := mcp.NewTool("export_data",
		mcp.WithDescription("Write a file's active sheet as JSON, CSV or XLSX."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("fileId",
			mcp.Required(),
			mcp.Description("File id from list_files"),
		),
		mcp.WithString("format",
			mcp.Description("Output format (default: json)"),
			mcp.Enum("json", "csv", "xlsx"),
		),
		mcp.WithString("outputPath",
			mcp.Description("Destination path. Empty writes into the export directory."),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		t.mu.Lock()
		defer t.mu.Unlock()

		id, err := req.RequireString("fileId")
		if err != nil {
			return mcp.NewToolResultError("fileId is required"), nil
		}
		format := req.GetString("format", "")
		out := req.GetString("outputPath", "")
		return resultJSON(t.svc.Export(id, format, out)), nil
	})
}

func (t *tools) registerListFilesTool(s *server.MCPServer) {
	tool := mcp.NewTool("list_files",
		mcp.WithDescription("List the loaded files with their sheets, row counts and quality."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		t.mu.Lock()
		defer t.mu.Unlock()

		files, err := t.svc.ListFiles()
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("list files: %v", err)), nil
		}
		data, _ := json.MarshalIndent(files, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func (t *tools) registerRunCommandTool(s *server.MCPServer) {
	tool := mcp.NewTool("run_command",
		mcp.WithDescription("Run a free-text command such as \"提取机票数据\", \"分析数据质量\" or \"转成 CSV\" against all loaded files."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("command",
			mcp.Required(),
			mcp.Description("The command text"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		t.mu.Lock()
		defer t.mu.Unlock()

		command, err := req.RequireString("command")
		if err != nil || strings.TrimSpace(command) == "" {
			return mcp.NewToolResultError("command is required"), nil
		}
		return resultJSON(t.svc.Run(ctx, command)), nil
	})
}

func (t *tools) registerRemoveFileTool(s *server.MCPServer) {
	tool := mcp.NewTool("remove_file",
		mcp.WithDescription("Remove a file and every flow connected to it."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(true),
		mcp.WithString("fileId",
			mcp.Required(),
			mcp.Description("File id from list_files"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		t.mu.Lock()
		defer t.mu.Unlock()

		id, err := req.RequireString("fileId")
		if err != nil {
			return mcp.NewToolResultError("fileId is required"), nil
		}
		return resultJSON(t.svc.RemoveFile(id)), nil
	})
}
