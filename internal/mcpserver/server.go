// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Codetape session history to LLM clients via stdio
// transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/codetape/codetape/internal/replayservice"
)

// Server wraps the MCP server with Codetape tools.
type Server struct {
	mcp *server.MCPServer
	svc *replayservice.Service
}

// New creates a new MCP server with all Codetape tools registered.
func New(svc *replayservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Codetape",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("get_session",
		mcp.WithDescription("Return the current recording session (id, workspace root, start and end times)."),
	), s.getSession)

	s.mcp.AddTool(mcp.NewTool("list_events",
		mcp.WithDescription("List timeline events in a time range, ordered by timestamp then sequence. "+
			"Timestamps are unix milliseconds. Read the codetape://timeline resource for the event shape."),
		mcp.WithString("from", mcp.Description("Range start in unix milliseconds (empty for session start)")),
		mcp.WithString("to", mcp.Description("Range end in unix milliseconds (empty for now)")),
		mcp.WithString("kind", mcp.Description("Optional event kind filter: edit, create, delete, rename, terminal, bookmark")),
	), s.listEvents)

	s.mcp.AddTool(mcp.NewTool("content_at",
		mcp.WithDescription("Reconstruct the full content a file had at a past instant."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Workspace-relative file path")),
		mcp.WithString("ts", mcp.Required(), mcp.Description("Instant to reconstruct, unix milliseconds")),
	), s.contentAt)

	s.mcp.AddTool(mcp.NewTool("list_files",
		mcp.WithDescription("List every file touched during the session with its change count."),
	), s.listFiles)

	s.mcp.AddTool(mcp.NewTool("add_bookmark",
		mcp.WithDescription("Flag the current instant in the timeline so it can be jumped to later."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Short human-readable label")),
		mcp.WithString("kind", mcp.Description("Optional marker category (e.g. milestone, bug, question)")),
	), s.addBookmark)

	// Resource: timeline data contract.
	s.mcp.AddResource(
		mcp.NewResource("codetape://timeline", "Timeline Contract",
			mcp.WithResourceDescription("Shape of the session timeline: events, checkpoints, bookmarks, and how reconstruction works."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readTimelineResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) getSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.svc.GetSession(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(sess, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listEvents(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	fromTs, err := optionalMillis(req, "from")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	toTs, err := optionalMillis(req, "to")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	kind := ""
	if k, kErr := req.RequireString("kind"); kErr == nil {
		kind = k
	}

	events, err := s.svc.GetEvents(ctx, fromTs, toTs, kind)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(events, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) contentAt(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	raw, err := req.RequireString("ts")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("ts must be unix milliseconds: %v", err)), nil
	}

	content, err := s.svc.GetContentAt(ctx, path, ts)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("no content for %s at %d: %v", path, ts, err)), nil
	}
	return mcp.NewToolResultText(string(content)), nil
}

func (s *Server) listFiles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	files, err := s.svc.GetFiles(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(files) == 0 {
		return mcp.NewToolResultText("no files recorded yet"), nil
	}
	var lines []string
	for _, f := range files {
		lines = append(lines, fmt.Sprintf("%s (%d changes)", f.Path, f.Changes))
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) addBookmark(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	kind := ""
	if k, kErr := req.RequireString("kind"); kErr == nil {
		kind = k
	}

	seq, err := s.svc.AddBookmark(ctx, title, kind)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("bookmarked at seq %d: %s", seq, title)), nil
}

func (s *Server) readTimelineResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "codetape://timeline",
			MIMEType: "text/markdown",
			Text:     TimelineContract,
		},
	}, nil
}

// optionalMillis reads an optional unix-millisecond string argument.
// Missing or empty means 0.
func optionalMillis(req mcp.CallToolRequest, key string) (int64, error) {
	raw, err := req.RequireString(key)
	if err != nil || raw == "" {
		return 0, nil
	}
	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be unix milliseconds: %w", key, err)
	}
	return ts, nil
}
