// Package merge combines a cached entity with an incoming update so that a
// thin payload from one endpoint never regresses richer data from another.
package merge

import (
	"slices"
	"strings"

	"github.com/cexll/issuedesk/internal/model"
)

// placeholderRule names a string field whose placeholder value must not
// overwrite a known real value.
type placeholderRule struct {
	field       string
	placeholder string
	get         func(*model.Issue) *string
}

var issueRules = []placeholderRule{
	{field: "title", placeholder: model.PlaceholderTitle, get: func(i *model.Issue) *string { return &i.Title }},
	{field: "author", placeholder: model.PlaceholderAuthor, get: func(i *model.Issue) *string { return &i.Author }},
	{field: "createdAt", placeholder: model.PlaceholderDate, get: func(i *model.Issue) *string { return &i.CreatedAt }},
}

// IsPlaceholder reports whether value is the placeholder for field.
func IsPlaceholder(field, value string) bool {
	for _, r := range issueRules {
		if r.field == field {
			return isPlaceholder(value, r.placeholder)
		}
	}
	return false
}

func isPlaceholder(value, placeholder string) bool {
	v := strings.TrimSpace(value)
	return v == "" || v == placeholder
}

// Issue overlays incoming onto existing. Incoming wins field by field except
// that placeholder values never replace known values, and nil Tags/Comments
// mean "not carried" and keep the existing slice. existing may be nil. The
// result shares no slices with either input.
func Issue(existing *model.Issue, incoming model.Issue) model.Issue {
	next := incoming.Normalized()
	if existing == nil {
		return next
	}
	base := existing.Normalized()

	merged := next
	for _, r := range issueRules {
		in := r.get(&next)
		old := r.get(&base)
		if isPlaceholder(*in, r.placeholder) && !isPlaceholder(*old, r.placeholder) {
			*r.get(&merged) = *old
		}
	}
	if next.Tags == nil {
		merged.Tags = slices.Clone(base.Tags)
	}
	if next.Comments == nil {
		merged.Comments = slices.Clone(base.Comments)
	}
	if !next.RawID.Valid() && base.RawID.Valid() {
		merged.RawID = base.RawID
		merged.ID = base.ID
	}
	return merged
}

// Definition overlays incoming onto existing. An empty incoming color keeps
// the existing one; an empty incoming id keeps the existing id.
func Definition(existing *model.TagDefinition, incoming model.TagDefinition) model.TagDefinition {
	if existing == nil {
		return incoming.Normalized()
	}
	merged := incoming
	if strings.TrimSpace(merged.Color) == "" {
		merged.Color = existing.Color
	}
	if strings.TrimSpace(merged.Label) == "" {
		merged.Label = existing.Label
	}
	if !merged.ID.Valid() {
		merged.ID = existing.ID
	}
	return merged.Normalized()
}
