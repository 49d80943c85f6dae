package github

import (
	"strings"

	gh "github.com/google/go-github/v66/github"

	"github.com/cexll/issuedesk/internal/dto"
)

func isStatusLabel(label *gh.Label) bool {
	return strings.EqualFold(strings.TrimSpace(label.GetName()), InProgressLabel)
}

func isDeletedLabel(label *gh.Label) bool {
	return strings.EqualFold(strings.TrimSpace(label.GetName()), DeletedLabel)
}

// isDeleted reports whether issue was removed through DeleteIssue.
func isDeleted(issue *gh.Issue) bool {
	if issue.GetState() != "closed" {
		return false
	}
	for _, label := range issue.Labels {
		if isDeletedLabel(label) {
			return true
		}
	}
	return false
}

// issueRaw renders a GitHub issue with the tracker API's field names.
func issueRaw(issue *gh.Issue) dto.Raw {
	raw := dto.Raw{
		"id":          issue.GetNumber(),
		"title":       issue.GetTitle(),
		"description": issue.GetBody(),
		"status":      issueStatus(issue),
		"tags":        labelsAny(issue.Labels),
	}
	if login := issue.GetUser().GetLogin(); login != "" {
		raw["author"] = login
	}
	if login := issue.GetAssignee().GetLogin(); login != "" {
		raw["assignedTo"] = login
	}
	if created := issue.GetCreatedAt(); !created.IsZero() {
		raw["created_at"] = created.Unix()
	}
	if title := issue.GetMilestone().GetTitle(); title != "" {
		raw["milestone_title"] = title
	}
	return raw
}

func issueStatus(issue *gh.Issue) string {
	if issue.GetState() == "closed" {
		return "done"
	}
	for _, label := range issue.Labels {
		if isStatusLabel(label) {
			return "in progress"
		}
	}
	return "todo"
}

func labelRaw(label *gh.Label) dto.Raw {
	raw := dto.Raw{
		"id":  label.GetID(),
		"tag": label.GetName(),
	}
	if color := strings.TrimSpace(label.GetColor()); color != "" {
		raw["color"] = "#" + strings.TrimPrefix(color, "#")
	}
	return raw
}

// labelsRaw converts labels, leaving out the status and deletion markers.
func labelsRaw(labels []*gh.Label) []dto.Raw {
	out := make([]dto.Raw, 0, len(labels))
	for _, label := range labels {
		if isStatusLabel(label) || isDeletedLabel(label) {
			continue
		}
		out = append(out, labelRaw(label))
	}
	return out
}

// labelsAny is labelsRaw shaped like a decoded JSON array.
func labelsAny(labels []*gh.Label) []any {
	raws := labelsRaw(labels)
	out := make([]any, 0, len(raws))
	for _, raw := range raws {
		out = append(out, map[string]any(raw))
	}
	return out
}

func commentRaw(c *gh.IssueComment) dto.Raw {
	raw := dto.Raw{
		"id":   c.GetID(),
		"text": c.GetBody(),
	}
	if login := c.GetUser().GetLogin(); login != "" {
		raw["author"] = login
	}
	if created := c.GetCreatedAt(); !created.IsZero() {
		raw["timestamp"] = created.Unix()
	}
	return raw
}

func milestoneRaw(milestone *gh.Milestone, members []*gh.Issue) dto.Raw {
	ids := make([]any, 0, len(members))
	for _, issue := range members {
		ids = append(ids, issue.GetNumber())
	}
	raw := dto.Raw{
		"id":          milestone.GetNumber(),
		"name":        milestone.GetTitle(),
		"description": milestone.GetDescription(),
		"issueIds":    ids,
	}
	if created := milestone.GetCreatedAt(); !created.IsZero() {
		raw["startDate"] = created.Format("2006-01-02")
	}
	if due := milestone.GetDueOn(); !due.IsZero() {
		raw["endDate"] = due.Format("2006-01-02")
	}
	return raw
}
