package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/teambot/internal/models"
	"github.com/joescharf/teambot/internal/store"
)

// Server wraps the teambot data layer and exposes it as read-only MCP tools.
type Server struct {
	store   store.Store
	version string
}

// NewServer creates the MCP server wrapper.
func NewServer(s store.Store, version string) *Server {
	return &Server{store: s, version: version}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("teambot", s.version, server.WithToolCapabilities(true))

	srv.AddTool(s.listIdeasTool())
	srv.AddTool(s.userTasksTool())
	srv.AddTool(s.userKarmaTool())
	srv.AddTool(s.statsTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

type ideaOut struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Author      string `json:"author"`
	Priority    string `json:"priority"`
	Votes       int    `json:"votes"`
	CreatedAt   string `json:"created_at"`
}

type taskOut struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
	DueDate     string `json:"due_date"`
	CreatedAt   string `json:"created_at"`
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// teambot_list_ideas
func (s *Server) listIdeasTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("teambot_list_ideas",
		mcp.WithDescription("List every submitted idea, newest first, with author name and priority (low, medium, high)."),
		mcp.WithString("priority", mcp.Description("Only return ideas with this priority")),
	)
	return tool, s.handleListIdeas
}

func (s *Server) handleListIdeas(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	priority := models.Priority(request.GetString("priority", ""))
	if priority != "" && !priority.Valid() {
		return mcp.NewToolResultError(fmt.Sprintf("invalid priority: %s", priority)), nil
	}

	ideas, err := s.store.AllIdeas(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list ideas: %v", err)), nil
	}

	out := make([]ideaOut, 0, len(ideas))
	for _, i := range ideas {
		if priority != "" && i.Priority != priority {
			continue
		}
		out = append(out, ideaOut{
			ID:          i.ID,
			Title:       i.Title,
			Description: i.Description,
			Author:      i.AuthorName,
			Priority:    string(i.Priority),
			Votes:       i.Votes,
			CreatedAt:   i.CreatedAt.Format(time.RFC3339),
		})
	}
	return jsonResult(out)
}

// teambot_user_tasks
func (s *Server) userTasksTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("teambot_user_tasks",
		mcp.WithDescription("List the tasks assigned to a user, in creation order."),
		mcp.WithNumber("user_id", mcp.Required(), mcp.Description("Numeric chat user ID of the assignee")),
	)
	return tool, s.handleUserTasks
}

func (s *Server) handleUserTasks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := request.RequireInt("user_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: user_id"), nil
	}

	tasks, err := s.store.TasksFor(ctx, int64(userID))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list tasks: %v", err)), nil
	}

	out := make([]taskOut, len(tasks))
	for i, t := range tasks {
		out[i] = taskOut{
			ID:          t.ID,
			Title:       t.Title,
			Description: t.Description,
			Status:      string(t.Status),
			DueDate:     t.DueDate,
			CreatedAt:   t.CreatedAt.Format(time.RFC3339),
		}
	}
	return jsonResult(out)
}

// teambot_user_karma
func (s *Server) userKarmaTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("teambot_user_karma",
		mcp.WithDescription("Get a user's karma score. Unknown users have 0."),
		mcp.WithNumber("user_id", mcp.Required(), mcp.Description("Numeric chat user ID")),
	)
	return tool, s.handleUserKarma
}

func (s *Server) handleUserKarma(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := request.RequireInt("user_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: user_id"), nil
	}

	karma, err := s.store.KarmaOf(ctx, int64(userID))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get karma: %v", err)), nil
	}
	return jsonResult(map[string]any{"user_id": userID, "karma": karma})
}

// teambot_stats
func (s *Server) statsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("teambot_stats",
		mcp.WithDescription("Get counts of users, ideas and tasks plus total karma."),
	)
	return tool, s.handleStats
}

func (s *Server) handleStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := s.store.Stats(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get stats: %v", err)), nil
	}
	return jsonResult(map[string]int{
		"users":       st.Users,
		"ideas":       st.Ideas,
		"tasks":       st.Tasks,
		"total_karma": st.TotalKarma,
	})
}
