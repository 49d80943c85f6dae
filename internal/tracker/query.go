package tracker

import (
	"fmt"
	"strings"

	"github.com/cexll/issuedesk/internal/model"
)

// Assignment filters by whether an issue has an assignee.
type Assignment string

const (
	AssignmentAll        Assignment = "all"
	AssignmentAssigned   Assignment = "assigned"
	AssignmentUnassigned Assignment = "unassigned"
)

// Filter narrows an issue list the way the list view does.
type Filter struct {
	// Text is a whitespace separated token query. Plain tokens match the id,
	// author, assignee and tag labels; "author:" or "by:" tokens match the
	// author and "assignee:", "assigned:" or "signee:" tokens the assignee.
	Text string
	// Status is a status key (todo, inprogress, done); empty or "all" keeps
	// every status.
	Status string
	// Assignment defaults to AssignmentAll.
	Assignment Assignment
}

// Apply returns the issues matching f, in order.
func (f Filter) Apply(issues []model.Issue) []model.Issue {
	tokens := strings.Fields(strings.ToLower(f.Text))
	status := strings.ToLower(strings.TrimSpace(f.Status))

	out := make([]model.Issue, 0, len(issues))
	for _, issue := range issues {
		switch f.Assignment {
		case AssignmentAssigned:
			if issue.AssignedTo == "" {
				continue
			}
		case AssignmentUnassigned:
			if issue.AssignedTo != "" {
				continue
			}
		}
		if status != "" && status != "all" && issue.Status.Key() != status {
			continue
		}
		if !matchesTokens(issue, tokens) {
			continue
		}
		out = append(out, issue)
	}
	return out
}

func matchesTokens(issue model.Issue, tokens []string) bool {
	if len(tokens) == 0 {
		return true
	}

	var fields []string
	for _, f := range []string{issue.ID, issue.RawID.String(), issue.Author, issue.AssignedTo} {
		if f != "" {
			fields = append(fields, f)
		}
	}
	for _, ref := range issue.Tags {
		if ref.Label != "" {
			fields = append(fields, ref.Label)
		}
	}
	haystack := strings.ToLower(strings.Join(fields, " "))

	for _, token := range tokens {
		prefix, value, hasPrefix := strings.Cut(token, ":")
		if !hasPrefix {
			if !strings.Contains(haystack, token) {
				return false
			}
			continue
		}
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		switch prefix {
		case "author", "by":
			if !strings.Contains(strings.ToLower(issue.Author), value) {
				return false
			}
		case "assignee", "assigned", "signee":
			if !strings.Contains(strings.ToLower(issue.AssignedTo), value) {
				return false
			}
		default:
			if !strings.Contains(haystack, token) {
				return false
			}
		}
	}
	return true
}

// Counts tallies issues per status key.
type Counts struct {
	Todo       int `json:"todo"`
	InProgress int `json:"inprogress"`
	Done       int `json:"done"`
	All        int `json:"all"`
}

// StatusCounts counts issues per canonical status. Issues outside the
// vocabulary only count toward All.
func StatusCounts(issues []model.Issue) Counts {
	var c Counts
	for _, issue := range issues {
		switch issue.Status {
		case model.StatusTodo:
			c.Todo++
		case model.StatusInProgress:
			c.InProgress++
		case model.StatusDone:
			c.Done++
		}
		c.All++
	}
	return c
}

// Label renders a status key with its count, as the filter buttons show it.
func (c Counts) Label(key string) string {
	switch key {
	case "todo":
		return fmt.Sprintf("%s (%d)", model.StatusTodo, c.Todo)
	case "inprogress":
		return fmt.Sprintf("%s (%d)", model.StatusInProgress, c.InProgress)
	case "done":
		return fmt.Sprintf("%s (%d)", model.StatusDone, c.Done)
	default:
		return fmt.Sprintf("All (%d)", c.All)
	}
}

// Query filters the current issue snapshot.
func (t *Tracker) Query(f Filter) []model.Issue {
	return f.Apply(t.issues.State().Issues)
}
