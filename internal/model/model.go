// Package model holds the entity shapes kept in the issue and tag caches.
package model

import (
	"slices"
	"strings"

	"github.com/cexll/issuedesk/internal/identity"
)

// Placeholder values inserted when a payload lacks a field.
const (
	PlaceholderTitle   = "Untitled Issue"
	PlaceholderAuthor  = "Author"
	PlaceholderDate    = "Unknown date"
	DefaultTagColor    = "#49a3d8"
	DefaultTagLabel    = "Tag"
	DefaultCommentUser = "Unknown"
)

// Status is one of the tracker's canonical status labels.
type Status string

const (
	StatusTodo       Status = "To Be Done"
	StatusInProgress Status = "In Progress"
	StatusDone       Status = "Done"
)

// Key returns the short filter key used by list views: todo, inprogress, done,
// or the lowercased label for anything outside the closed vocabulary.
func (s Status) Key() string {
	switch s {
	case StatusTodo:
		return "todo"
	case StatusInProgress:
		return "inprogress"
	case StatusDone:
		return "done"
	default:
		return strings.ToLower(strings.TrimSpace(string(s)))
	}
}

// Issue is a cached issue record.
type Issue struct {
	RawID       identity.ID `json:"rawId"`
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Author      string      `json:"author"`
	AssignedTo  string      `json:"assignedTo"`
	Status      Status      `json:"status"`
	CreatedAt   string      `json:"createdAt"`
	Milestone   string      `json:"milestone"`
	Database    string      `json:"database,omitempty"`
	Tags        []TagRef    `json:"tags"`
	// Comments is nil when the payload that produced the issue did not carry
	// comments at all.
	Comments []Comment `json:"comments,omitempty"`
}

// IdentityValue exposes rawId, falling back to the display id.
func (i Issue) IdentityValue() any {
	if i.RawID.Valid() {
		return i.RawID
	}
	if i.ID == identity.Unknown {
		return nil
	}
	return i.ID
}

// Identity returns the canonical identity of the issue.
func (i Issue) Identity() identity.ID {
	return identity.Normalize(i)
}

// Normalized returns a copy with RawID resolved and the display ID derived
// from it. Unresolvable issues keep the Unknown display id.
func (i Issue) Normalized() Issue {
	out := i.Clone()
	id := i.Identity()
	out.RawID = id
	if id.Valid() || out.ID == "" {
		out.ID = id.Display()
	}
	return out
}

// Clone returns a copy that shares no slices with i.
func (i Issue) Clone() Issue {
	out := i
	out.Tags = slices.Clone(i.Tags)
	out.Comments = slices.Clone(i.Comments)
	return out
}

// HasSubstance reports whether the issue carries anything worth showing beyond
// placeholders.
func (i Issue) HasSubstance() bool {
	title := strings.TrimSpace(i.Title)
	return (title != "" && title != PlaceholderTitle) ||
		strings.TrimSpace(i.Description) != "" ||
		strings.TrimSpace(i.AssignedTo) != "" ||
		len(i.Tags) > 0
}

// TagRef is a denormalized copy of a tag definition held on an issue.
type TagRef struct {
	ID    identity.ID `json:"id"`
	Label string      `json:"label"`
	Color string      `json:"color"`
}

// TagDefinition is a global catalog entry for a tag.
type TagDefinition struct {
	ID    identity.ID `json:"id"`
	Label string      `json:"label"`
	Color string      `json:"color"`
}

// Normalized trims the label and fills the default color.
func (d TagDefinition) Normalized() TagDefinition {
	d.Label = strings.TrimSpace(d.Label)
	d.Color = strings.TrimSpace(d.Color)
	if d.Color == "" {
		d.Color = DefaultTagColor
	}
	return d
}

// Ref converts the definition into an inline tag reference.
func (d TagDefinition) Ref() TagRef {
	return TagRef{ID: d.ID, Label: d.Label, Color: d.Color}
}

// Definition converts a reference into a catalog entry.
func (r TagRef) Definition() TagDefinition {
	return TagDefinition{ID: r.ID, Label: r.Label, Color: r.Color}
}

// Comment is an issue comment as shown in the detail view.
type Comment struct {
	ID     identity.ID `json:"id"`
	Author string      `json:"author"`
	Date   string      `json:"date"`
	Text   string      `json:"text"`
}

// Milestone groups issues under a named delivery window.
type Milestone struct {
	ID          identity.ID   `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	StartDate   string        `json:"startDate"`
	EndDate     string        `json:"endDate"`
	IssueIDs    []identity.ID `json:"issueIds"`
}
