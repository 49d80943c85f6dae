// Package transport defines the contract between the caches and a tracker
// backend. Backends return raw payloads; normalizing them is the caller's
// job (see package dto).
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/cexll/issuedesk/internal/dto"
	"github.com/cexll/issuedesk/internal/identity"
	"github.com/cexll/issuedesk/internal/model"
)

var (
	// ErrNotFound is returned when the backend has no such entity.
	ErrNotFound = errors.New("transport: not found")
	// ErrMissingID is returned when a request needs an id and got none.
	ErrMissingID = errors.New("transport: missing id")
	// ErrEmptyPatch is returned when an update carries no fields.
	ErrEmptyPatch = errors.New("transport: nothing to update")
	// ErrTagRequired is returned when a tag request has no tag name.
	ErrTagRequired = errors.New("transport: tag name is required")
	// ErrUserRequired is returned when an assignment or comment has no user.
	ErrUserRequired = errors.New("transport: user is required")
	// ErrTextRequired is returned when a comment has no text.
	ErrTextRequired = errors.New("transport: comment text is required")
)

// StatusError reports a non-success HTTP response.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed for %s %s: %d %s", e.Method, e.Path, e.Code, strings.TrimSpace(e.Body))
}

// Is makes a 404 match ErrNotFound.
func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.Code == http.StatusNotFound
}

// Transport is a tracker backend.
type Transport interface {
	FetchIssues(ctx context.Context) ([]dto.Raw, error)
	FetchIssueByID(ctx context.Context, id identity.ID) (dto.Raw, error)
	FetchTagDefinitions(ctx context.Context) ([]dto.Raw, error)

	CreateIssue(ctx context.Context, req NewIssue) (dto.Raw, error)
	PatchIssueFields(ctx context.Context, id identity.ID, patch IssuePatch) error
	DeleteIssue(ctx context.Context, id identity.ID) error

	// AddTagToIssue attaches a tag and returns the issue's tags afterwards.
	AddTagToIssue(ctx context.Context, id identity.ID, tag TagInput) ([]dto.Raw, error)
	RemoveTagFromIssue(ctx context.Context, id identity.ID, label string) error
	UpdateTagDefinition(ctx context.Context, tagID identity.ID, patch TagPatch) (dto.Raw, error)
	DeleteTagDefinition(ctx context.Context, tagID identity.ID) error

	// AssignIssue and UnassignIssue return the updated issue.
	AssignIssue(ctx context.Context, id identity.ID, user string) (dto.Raw, error)
	UnassignIssue(ctx context.Context, id identity.ID) (dto.Raw, error)

	// LinkMilestone returns the updated milestone.
	LinkMilestone(ctx context.Context, milestoneID, id identity.ID) (dto.Raw, error)
	UnlinkMilestone(ctx context.Context, milestoneID, id identity.ID) error

	FetchComments(ctx context.Context, id identity.ID) ([]dto.Raw, error)
	// CreateComment returns the stored comment.
	CreateComment(ctx context.Context, id identity.ID, comment NewComment) (dto.Raw, error)
	UpdateComment(ctx context.Context, id, commentID identity.ID, text string) error
	DeleteComment(ctx context.Context, id, commentID identity.ID) error
}

// NewIssue is the body of an issue creation.
type NewIssue struct {
	Title       string
	Description string
	AuthorID    string
}

// IssuePatch lists the issue fields to change. Nil fields are left alone.
type IssuePatch struct {
	Title       *string
	Description *string
	Status      *model.Status
}

// Field is a single field/value pair of a patch.
type Field struct {
	Name  string `json:"field"`
	Value string `json:"value"`
}

// Fields returns the present fields in title, description, status order.
func (p IssuePatch) Fields() []Field {
	var fields []Field
	if p.Title != nil {
		fields = append(fields, Field{Name: "title", Value: *p.Title})
	}
	if p.Description != nil {
		fields = append(fields, Field{Name: "description", Value: *p.Description})
	}
	if p.Status != nil {
		fields = append(fields, Field{Name: "status", Value: string(*p.Status)})
	}
	return fields
}

// Empty reports whether the patch changes nothing.
func (p IssuePatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Status == nil
}

// Apply copies the patched fields onto issue.
func (p IssuePatch) Apply(issue model.Issue) model.Issue {
	if p.Title != nil {
		issue.Title = *p.Title
	}
	if p.Description != nil {
		issue.Description = *p.Description
	}
	if p.Status != nil {
		issue.Status = *p.Status
	}
	return issue
}

// TagInput names a tag to attach, with an optional color.
type TagInput struct {
	Label string
	Color string
}

// Normalized trims the input and checks the label.
func (t TagInput) Normalized() (TagInput, error) {
	t.Label = strings.TrimSpace(t.Label)
	t.Color = strings.TrimSpace(t.Color)
	if t.Label == "" {
		return t, ErrTagRequired
	}
	return t, nil
}

// TagPatch changes a tag definition. An empty Label and nil Color leave the
// respective field alone.
type TagPatch struct {
	Label string
	Color *string
}

// Validate rejects a patch that changes nothing.
func (p TagPatch) Validate() error {
	if strings.TrimSpace(p.Label) == "" && p.Color == nil {
		return ErrEmptyPatch
	}
	return nil
}

// NewComment is the body of a comment creation.
type NewComment struct {
	Text     string
	AuthorID string
}

// Normalized trims the comment and checks that text and author are present.
func (c NewComment) Normalized() (NewComment, error) {
	c.Text = strings.TrimSpace(c.Text)
	c.AuthorID = strings.TrimSpace(c.AuthorID)
	if c.Text == "" {
		return c, ErrTextRequired
	}
	if c.AuthorID == "" {
		return c, ErrUserRequired
	}
	return c, nil
}

// CommentText trims an edited comment body and rejects a blank one.
func CommentText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrTextRequired
	}
	return text, nil
}

// RequireID returns ErrMissingID for None.
func RequireID(id identity.ID) error {
	if !id.Valid() {
		return ErrMissingID
	}
	return nil
}
