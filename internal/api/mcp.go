package api

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/itembank/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Items   StatusSource
	History HistoryStore
	Version string
}

// NewMCPServer creates an MCP server exposing loan status and history.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"itembank",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("itembank tracks who currently holds each shared community item and the loan history."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("item_status",
			mcp.WithDescription("Show whether shared items are available and who holds them."),
			mcp.WithString("item", mcp.Description("Item name; omit for every item")),
		),
		mcpItemStatus(deps),
	)

	s.AddTool(
		mcp.NewTool("loan_history",
			mcp.WithDescription("List recent borrow, return and reminder events, newest first."),
			mcp.WithString("item", mcp.Description("Restrict to one item")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of events (default 20)")),
		),
		mcpLoanHistory(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"itembank://ledger",
			"Loan Ledger",
			mcp.WithResourceDescription("Current status of every catalog item as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceLedger(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"itembank://history/recent",
			"Recent Loan Events",
			mcp.WithResourceDescription("Last 20 loan history events"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecent(deps),
	)

	return s
}

func mcpItemStatus(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		statuses := ToItemStatuses(deps.Items.Statuses())

		if item := req.GetString("item", ""); item != "" {
			st, ok := findItem(statuses, item)
			if !ok {
				return mcpError(fmt.Sprintf("unknown item %q", item)), nil
			}
			statuses = []ItemStatus{st}
		}

		b, err := json.Marshal(statuses)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal statuses: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func findItem(statuses []ItemStatus, name string) (ItemStatus, bool) {
	for _, st := range statuses {
		if st.Name == name {
			return st, true
		}
	}
	return ItemStatus{}, false
}

func mcpLoanHistory(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := clampLimit(req.GetInt("limit", defaultHistoryLimit))
		item := req.GetString("item", "")

		var stored []storage.Event
		var err error
		if item != "" {
			stored, err = deps.History.ItemEvents(item, limit)
		} else {
			stored, err = deps.History.RecentEvents(limit, 0)
		}
		if err != nil {
			return mcpError(fmt.Sprintf("reading history failed: %v", err)), nil
		}
		events := ToHistoryEvents(stored)
		if len(events) == 0 {
			return mcpText("[]"), nil
		}

		b, err := json.Marshal(events)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal events: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceLedger(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(ToItemStatuses(deps.Items.Statuses()))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal ledger: %w", err)
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

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		events, err := deps.History.RecentEvents(defaultHistoryLimit, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to get recent events: %w", err)
		}

		b, err := json.Marshal(ToHistoryEvents(events))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal events: %w", err)
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
