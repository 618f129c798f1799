package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/anchor/internal/question"
	"github.com/kalambet/anchor/internal/scoring"
	"github.com/kalambet/anchor/internal/storage"
)

// NewMCPServer creates an MCP server exposing the counselor chat and the
// question bank. MCP clients are trusted local tools, so user IDs are passed
// as arguments rather than tokens.
func NewMCPServer(deps Deps) *server.MCPServer {
	s := server.NewMCPServer(
		"anchor",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("anchor: recovery counselor chat that surveys the user and scores their priority areas."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("send_message",
			mcp.WithDescription("Send a user message to the counselor and return its reply. While the survey is running the reply is the next survey question."),
			mcp.WithString("user_id", mcp.Description("ID of the user the conversation belongs to"), mcp.Required()),
			mcp.WithString("content", mcp.Description("The user's message"), mcp.Required()),
		),
		mcpSendMessage(deps),
	)

	s.AddTool(
		mcp.NewTool("priority_areas",
			mcp.WithDescription("Return the user's latest priority areas with their 1-10 scores."),
			mcp.WithString("user_id", mcp.Description("ID of the user"), mcp.Required()),
		),
		mcpPriorityAreas(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"survey://questions",
			"Survey Questions",
			mcp.WithResourceDescription("The question bank the survey draws from, as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceQuestions(deps),
	)

	return s
}

func mcpSendMessage(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := req.RequireString("user_id")
		if err != nil || strings.TrimSpace(userID) == "" {
			return mcpError("user_id is required"), nil
		}
		content, err := req.RequireString("content")
		if err != nil || strings.TrimSpace(content) == "" {
			return mcpError("content is required"), nil
		}

		reply, err := deps.Sessions.Send(ctx, userID, content)
		if err != nil {
			return mcpError(fmt.Sprintf("could not open chat session: %v", err)), nil
		}

		b, err := json.Marshal(reply)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal reply: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpPriorityAreas(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := req.RequireString("user_id")
		if err != nil || strings.TrimSpace(userID) == "" {
			return mcpError("user_id is required"), nil
		}

		snap, err := deps.Store.LatestSnapshot(userID)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpText("[]"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("loading priority areas: %v", err)), nil
		}

		b, err := json.Marshal(struct {
			Areas []scoring.PriorityArea `json:"priority_areas"`
			At    string                 `json:"created_at"`
		}{snap.Areas, snap.CreatedAt.UTC().Format(time.RFC3339)})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal priority areas: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceQuestions(deps Deps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		bank, err := deps.Loader.Bank(ctx)
		if err != nil && !errors.Is(err, question.ErrLoad) {
			return nil, fmt.Errorf("failed to load questions: %w", err)
		}
		if bank == nil {
			bank = question.Bank{}
		}

		b, err := json.Marshal(bank)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal questions: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
