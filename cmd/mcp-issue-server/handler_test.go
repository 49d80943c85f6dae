package main

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/cexll/issuedesk/internal/dto"
	"github.com/cexll/issuedesk/internal/model"
	"github.com/cexll/issuedesk/internal/tracker"
	"github.com/cexll/issuedesk/internal/transport/transporttest"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func setupHandlers(t *testing.T) (*Handlers, *tracker.Tracker) {
	t.Helper()
	fake := transporttest.NewFake()
	fake.AddIssue(dto.Raw{"id": 1, "title": "Fix login bug", "author_id": "ana", "status": 1})
	fake.AddIssue(dto.Raw{"id": 2, "title": "Write docs", "assignedTo": "bo", "status": 3})
	fake.AddTag(dto.Raw{"id": 3, "tag": "bug", "color": "#fff"})

	tr := tracker.New(fake)
	t.Cleanup(func() { tr.Close(context.Background()) })
	return NewHandlers(tr), tr
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	text, ok := res.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("content = %T, want *mcp.TextContent", res.Content[0])
	}
	return text.Text
}

func TestRefreshThenListIssues(t *testing.T) {
	h, _ := setupHandlers(t)
	ctx := context.Background()

	res, _, err := h.Refresh(ctx, nil, NoParams{})
	if err != nil || res.IsError {
		t.Fatalf("Refresh failed: %v %+v", err, res)
	}
	if text := resultText(t, res); !strings.Contains(text, `"issues": 2`) || !strings.Contains(text, `"tags": 1`) {
		t.Fatalf("refresh result = %s", text)
	}

	res, _, err = h.ListIssues(ctx, nil, ListIssuesParams{Assigned: "unassigned"})
	if err != nil {
		t.Fatalf("ListIssues error: %v", err)
	}
	var issues []model.Issue
	if err := json.Unmarshal([]byte(resultText(t, res)), &issues); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(issues) != 1 || issues[0].ID != "#1" {
		t.Fatalf("issues = %+v", issues)
	}
}

func TestGetIssue(t *testing.T) {
	h, _ := setupHandlers(t)

	res, _, err := h.GetIssue(context.Background(), nil, IssueParams{ID: "#2"})
	if err != nil || res.IsError {
		t.Fatalf("GetIssue failed: %v %+v", err, res)
	}
	if !strings.Contains(resultText(t, res), "Write docs") {
		t.Fatalf("result = %s", resultText(t, res))
	}

	res, _, err = h.GetIssue(context.Background(), nil, IssueParams{ID: "404"})
	if err != nil {
		t.Fatalf("GetIssue error: %v", err)
	}
	if !res.IsError {
		t.Fatal("missing issue should produce an error result")
	}

	if _, _, err := h.GetIssue(context.Background(), nil, IssueParams{}); err == nil {
		t.Fatal("Expected error for empty id, got nil")
	}
}

func TestSetStatusAndAddTag(t *testing.T) {
	h, tr := setupHandlers(t)
	ctx := context.Background()
	if _, _, err := h.Refresh(ctx, nil, NoParams{}); err != nil {
		t.Fatalf("Refresh error: %v", err)
	}

	res, _, err := h.SetStatus(ctx, nil, SetStatusParams{ID: "1", Status: "in progress"})
	if err != nil || res.IsError {
		t.Fatalf("SetStatus failed: %v %+v", err, res)
	}
	if issue, _ := tr.Issue(1); issue.Status != model.StatusInProgress {
		t.Fatalf("Status = %q", issue.Status)
	}

	res, _, err = h.AddTag(ctx, nil, AddTagParams{ID: "1", Tag: "bug"})
	if err != nil || res.IsError {
		t.Fatalf("AddTag failed: %v %+v", err, res)
	}
	if issue, _ := tr.Issue(1); len(issue.Tags) != 1 || issue.Tags[0].Color != "#fff" {
		t.Fatalf("Tags = %+v", issue.Tags)
	}

	res, _, _ = h.ListTags(ctx, nil, NoParams{})
	if !strings.Contains(resultText(t, res), `"bug"`) {
		t.Fatalf("tags = %s", resultText(t, res))
	}

	if _, _, err := h.SetStatus(ctx, nil, SetStatusParams{ID: "1"}); err == nil {
		t.Fatal("Expected error for missing status, got nil")
	}
}

func TestRegister(t *testing.T) {
	h, _ := setupHandlers(t)
	server := mcp.NewServer(&mcp.Implementation{Name: "test", Version: "v0"}, nil)
	h.Register(server)
}
