package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/cexll/issuedesk/internal/dto"
	"github.com/cexll/issuedesk/internal/tracker"
	"github.com/cexll/issuedesk/internal/transport"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ListIssuesParams defines the input parameters for list_issues
type ListIssuesParams struct {
	Query    string `json:"query,omitempty" jsonschema:"Search tokens; supports author: and assignee: prefixes"`
	Status   string `json:"status,omitempty" jsonschema:"Status key: todo, inprogress, done or all"`
	Assigned string `json:"assigned,omitempty" jsonschema:"all, assigned or unassigned"`
}

// IssueParams identifies one issue
type IssueParams struct {
	ID string `json:"id" jsonschema:"Issue id, with or without the leading #"`
}

// SetStatusParams defines the input parameters for set_issue_status
type SetStatusParams struct {
	ID     string `json:"id" jsonschema:"Issue id"`
	Status string `json:"status" jsonschema:"New status: todo, in progress or done"`
}

// AddTagParams defines the input parameters for add_tag
type AddTagParams struct {
	ID    string `json:"id" jsonschema:"Issue id"`
	Tag   string `json:"tag" jsonschema:"Tag label"`
	Color string `json:"color,omitempty" jsonschema:"Optional hex color for a new tag"`
}

// NoParams is the input of tools that take no arguments
type NoParams struct{}

// Handlers serves tool calls from the tracker caches.
type Handlers struct {
	tracker *tracker.Tracker
}

// NewHandlers creates tool handlers over t.
func NewHandlers(t *tracker.Tracker) *Handlers {
	return &Handlers{tracker: t}
}

// Register adds every tool to server.
func (h *Handlers) Register(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_issues",
		Description: "List cached issues, optionally filtered by search tokens, status and assignment",
	}, h.ListIssues)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_issue",
		Description: "Get one issue, fetching it from the tracker when it is not cached",
	}, h.GetIssue)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_tags",
		Description: "List the tag catalog",
	}, h.ListTags)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "refresh",
		Description: "Reload issues and tags from the tracker",
	}, h.Refresh)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "set_issue_status",
		Description: "Change the status of an issue",
	}, h.SetStatus)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_tag",
		Description: "Attach a tag to an issue, creating the tag when needed",
	}, h.AddTag)
	log.Println("[MCP Issue Server] Registered tools: list_issues, get_issue, list_tags, refresh, set_issue_status, add_tag")
}

// ListIssues handles the list_issues tool call
func (h *Handlers) ListIssues(ctx context.Context, req *mcp.CallToolRequest, params ListIssuesParams) (*mcp.CallToolResult, any, error) {
	assignment := tracker.Assignment(params.Assigned)
	if assignment == "" {
		assignment = tracker.AssignmentAll
	}
	issues := h.tracker.Query(tracker.Filter{Text: params.Query, Status: params.Status, Assignment: assignment})
	log.Printf("[MCP Issue Server] list_issues matched %d issue(s)", len(issues))
	return jsonResult(issues)
}

// GetIssue handles the get_issue tool call
func (h *Handlers) GetIssue(ctx context.Context, req *mcp.CallToolRequest, params IssueParams) (*mcp.CallToolResult, any, error) {
	if params.ID == "" {
		return nil, nil, fmt.Errorf("id parameter is required")
	}
	issue, err := h.tracker.LoadIssue(ctx, params.ID)
	if err != nil {
		return errorResult(err), nil, nil
	}
	return jsonResult(issue)
}

// ListTags handles the list_tags tool call
func (h *Handlers) ListTags(ctx context.Context, req *mcp.CallToolRequest, params NoParams) (*mcp.CallToolResult, any, error) {
	return jsonResult(h.tracker.Tags().Definitions)
}

// Refresh handles the refresh tool call
func (h *Handlers) Refresh(ctx context.Context, req *mcp.CallToolRequest, params NoParams) (*mcp.CallToolResult, any, error) {
	if err := h.tracker.Refresh(ctx); err != nil {
		return errorResult(err), nil, nil
	}
	if err := h.tracker.RefreshTags(ctx); err != nil {
		return errorResult(err), nil, nil
	}
	return jsonResult(map[string]int{
		"issues": len(h.tracker.Issues().Issues),
		"tags":   len(h.tracker.Tags().Definitions),
	})
}

// SetStatus handles the set_issue_status tool call
func (h *Handlers) SetStatus(ctx context.Context, req *mcp.CallToolRequest, params SetStatusParams) (*mcp.CallToolResult, any, error) {
	if params.ID == "" || params.Status == "" {
		return nil, nil, fmt.Errorf("id and status parameters are required")
	}
	status := dto.NormalizeStatus(params.Status)
	issue, err := h.tracker.UpdateIssue(ctx, params.ID, transport.IssuePatch{Status: &status})
	if err != nil {
		return errorResult(err), nil, nil
	}
	return jsonResult(issue)
}

// AddTag handles the add_tag tool call
func (h *Handlers) AddTag(ctx context.Context, req *mcp.CallToolRequest, params AddTagParams) (*mcp.CallToolResult, any, error) {
	if params.ID == "" {
		return nil, nil, fmt.Errorf("id parameter is required")
	}
	refs, err := h.tracker.AddTag(ctx, params.ID, transport.TagInput{Label: params.Tag, Color: params.Color})
	if err != nil {
		return errorResult(err), nil, nil
	}
	return jsonResult(refs)
}

func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("encode result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(data)},
		},
	}, nil, nil
}

func errorResult(err error) *mcp.CallToolResult {
	log.Printf("[MCP Issue Server] Tool failed: %v", err)
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{
				Text: fmt.Sprintf("Error: %v", err),
			},
		},
		IsError: true,
	}
}
