// Package dto maps the loosely shaped payloads the tracker backends return
// into model values. Field names are resolved through alias tables so the
// same mapper serves every endpoint and backend.
package dto

import (
	"math"
	"strings"
	"time"

	"github.com/cexll/issuedesk/internal/identity"
	"github.com/cexll/issuedesk/internal/model"
)

// DefaultDateLayout is the display layout for timestamps.
const DefaultDateLayout = "2006-01-02"

// millisThreshold separates unix seconds from unix milliseconds.
const millisThreshold = 1e12

// Mapper converts raw payloads into model values.
type Mapper struct {
	// Location for displayed dates. Nil means UTC.
	Location *time.Location
	// Layout for displayed dates. Empty means DefaultDateLayout.
	Layout string
	// Database, when set, labels every mapped issue with the active database.
	Database string
}

// Issue maps an issue payload. Tags and Comments stay nil when the payload
// does not carry them.
func (m Mapper) Issue(raw Raw) model.Issue {
	var idValue any
	if v, ok := Pick(raw, IDFields...); ok {
		idValue = v
	}
	rawID := identity.Normalize(idValue)

	title := PickString(raw, "title")
	if title == "" {
		title = model.PlaceholderTitle
	}
	author := PickString(raw, AuthorFields...)
	if author == "" {
		author = model.PlaceholderAuthor
	}
	createdAt, _ := Pick(raw, CreatedAtFields...)
	status, _ := Pick(raw, StatusFields...)

	database := m.Database
	if database == "" {
		database = PickString(raw, DatabaseFields...)
	}

	issue := model.Issue{
		RawID:       rawID,
		ID:          rawID.Display(),
		Title:       title,
		Description: PickString(raw, "description"),
		Author:      author,
		AssignedTo:  PickString(raw, AssignedToFields...),
		Status:      NormalizeStatus(status),
		CreatedAt:   m.FormatTimestamp(createdAt),
		Milestone:   PickString(raw, MilestoneFields...),
		Database:    database,
	}
	if v, ok := raw["tags"]; ok {
		issue.Tags = m.Tags(v)
	}
	if comments, ok := List(raw["comments"]); ok {
		issue.Comments = make([]model.Comment, 0, len(comments))
		for _, c := range comments {
			issue.Comments = append(issue.Comments, m.Comment(c))
		}
	}
	return issue
}

// Issues maps a list of issue payloads.
func (m Mapper) Issues(raws []Raw) []model.Issue {
	out := make([]model.Issue, 0, len(raws))
	for _, raw := range raws {
		out = append(out, m.Issue(raw))
	}
	return out
}

// Tags maps an inline tag list. Missing labels become "Tag", missing colors
// the default tag color. A non-list value yields an empty list.
func (m Mapper) Tags(v any) []model.TagRef {
	items, _ := List(v)
	out := make([]model.TagRef, 0, len(items))
	for _, t := range items {
		label := PickString(t, TagLabelFields...)
		if label == "" {
			label = model.DefaultTagLabel
		}
		color := PickString(t, "color")
		if color == "" {
			color = model.DefaultTagColor
		}
		out = append(out, model.TagRef{
			ID:    identity.Normalize(t["id"]),
			Label: label,
			Color: color,
		})
	}
	return out
}

// Definition maps a tag catalog payload. The color stays empty when absent so
// the tag cache can keep a previously known color.
func (m Mapper) Definition(raw Raw) model.TagDefinition {
	return model.TagDefinition{
		ID:    identity.Normalize(raw["id"]),
		Label: PickString(raw, DefinitionFields...),
		Color: PickString(raw, "color"),
	}
}

// Definitions maps a list of tag catalog payloads, skipping entries that carry
// neither an id nor a label.
func (m Mapper) Definitions(raws []Raw) []model.TagDefinition {
	out := make([]model.TagDefinition, 0, len(raws))
	for _, raw := range raws {
		def := m.Definition(raw)
		if !def.ID.Valid() && def.Label == "" {
			continue
		}
		out = append(out, def)
	}
	return out
}

// Comment maps a comment payload.
func (m Mapper) Comment(raw Raw) model.Comment {
	var idValue any
	if v, ok := Pick(raw, CommentIDFields...); ok {
		idValue = v
	}
	author := PickString(raw, AuthorFields...)
	if author == "" {
		author = model.DefaultCommentUser
	}
	date, _ := Pick(raw, CommentDateFields...)
	return model.Comment{
		ID:     identity.Normalize(idValue),
		Author: author,
		Date:   m.FormatTimestamp(date),
		Text:   PickString(raw, CommentTextFields...),
	}
}

// Comments maps a list of comment payloads. The result is never nil.
func (m Mapper) Comments(raws []Raw) []model.Comment {
	out := make([]model.Comment, 0, len(raws))
	for _, raw := range raws {
		out = append(out, m.Comment(raw))
	}
	return out
}

// Milestone maps a milestone payload.
func (m Mapper) Milestone(raw Raw) model.Milestone {
	name := PickString(raw, "name", "title")
	if name == "" {
		name = "Untitled milestone"
	}
	ms := model.Milestone{
		ID:          identity.Normalize(raw["id"]),
		Name:        name,
		Description: PickString(raw, "description"),
		StartDate:   PickString(raw, "startDate"),
		EndDate:     PickString(raw, "endDate"),
		IssueIDs:    []identity.ID{},
	}
	if ids, ok := raw["issueIds"].([]any); ok {
		for _, v := range ids {
			if id := identity.Normalize(v); id.Valid() {
				ms.IssueIDs = append(ms.IssueIDs, id)
			}
		}
	}
	return ms
}

// FormatTimestamp renders unix seconds or milliseconds (values above 1e12 are
// milliseconds) as a display date. Non-numeric strings pass through; missing
// or unusable values yield the placeholder date.
func (m Mapper) FormatTimestamp(v any) string {
	var t time.Time
	switch x := v.(type) {
	case nil:
		return model.PlaceholderDate
	case time.Time:
		if x.IsZero() {
			return model.PlaceholderDate
		}
		t = x
	case string:
		trimmed := strings.TrimSpace(x)
		if trimmed == "" {
			return model.PlaceholderDate
		}
		n, ok := Number(trimmed)
		if !ok {
			return trimmed
		}
		t = fromEpoch(n)
	default:
		n, ok := Number(x)
		if !ok {
			return model.PlaceholderDate
		}
		t = fromEpoch(n)
	}
	if t.IsZero() {
		return model.PlaceholderDate
	}
	loc := m.Location
	if loc == nil {
		loc = time.UTC
	}
	layout := m.Layout
	if layout == "" {
		layout = DefaultDateLayout
	}
	return t.In(loc).Format(layout)
}

func fromEpoch(n float64) time.Time {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return time.Time{}
	}
	if n > millisThreshold {
		return time.UnixMilli(int64(n))
	}
	return time.UnixMilli(int64(n * 1000))
}

// NormalizeStatus maps numeric codes, short codes and display strings onto the
// canonical status labels. Missing values are To Be Done; unrecognized display
// strings pass through trimmed.
func NormalizeStatus(v any) model.Status {
	text := String(v)
	if text == "" {
		return model.StatusTodo
	}
	switch strings.ToLower(text) {
	case "1", "todo", "to do", "to be done":
		return model.StatusTodo
	case "2", "in progress", "inprogress", "in_progress":
		return model.StatusInProgress
	case "3", "done":
		return model.StatusDone
	default:
		return model.Status(text)
	}
}
