package transport

import (
	"errors"
	"strings"
	"testing"

	"github.com/cexll/issuedesk/internal/identity"
	"github.com/cexll/issuedesk/internal/model"
)

func strPtr(s string) *string { return &s }

func TestIssuePatchFields(t *testing.T) {
	status := model.StatusDone
	tests := []struct {
		name  string
		patch IssuePatch
		want  []string
	}{
		{name: "empty", patch: IssuePatch{}, want: nil},
		{name: "title only", patch: IssuePatch{Title: strPtr("t")}, want: []string{"title"}},
		{name: "all", patch: IssuePatch{Status: &status, Description: strPtr(""), Title: strPtr("t")}, want: []string{"title", "description", "status"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := tt.patch.Fields()
			if len(fields) != len(tt.want) {
				t.Fatalf("Fields = %+v, want names %v", fields, tt.want)
			}
			for i, f := range fields {
				if f.Name != tt.want[i] {
					t.Fatalf("Fields[%d] = %q, want %q", i, f.Name, tt.want[i])
				}
			}
			if tt.patch.Empty() != (len(tt.want) == 0) {
				t.Fatalf("Empty = %v", tt.patch.Empty())
			}
		})
	}
}

func TestIssuePatchApply(t *testing.T) {
	status := model.StatusInProgress
	got := IssuePatch{Description: strPtr(""), Status: &status}.Apply(model.Issue{Title: "keep", Description: "old"})
	if got.Title != "keep" || got.Description != "" || got.Status != model.StatusInProgress {
		t.Fatalf("Apply = %+v", got)
	}
}

func TestTagInputNormalized(t *testing.T) {
	got, err := TagInput{Label: "  bug ", Color: " #fff "}.Normalized()
	if err != nil || got.Label != "bug" || got.Color != "#fff" {
		t.Fatalf("Normalized = %+v, %v", got, err)
	}
	if _, err := (TagInput{Label: "   "}).Normalized(); !errors.Is(err, ErrTagRequired) {
		t.Fatalf("expected ErrTagRequired, got %v", err)
	}
}

func TestTagPatchValidate(t *testing.T) {
	if err := (TagPatch{}).Validate(); !errors.Is(err, ErrEmptyPatch) {
		t.Fatalf("expected ErrEmptyPatch, got %v", err)
	}
	if err := (TagPatch{Color: strPtr("")}).Validate(); err != nil {
		t.Fatalf("color-only patch should be valid: %v", err)
	}
	if err := (TagPatch{Label: "bug"}).Validate(); err != nil {
		t.Fatalf("label-only patch should be valid: %v", err)
	}
}

func TestRequireID(t *testing.T) {
	if err := RequireID(identity.None); !errors.Is(err, ErrMissingID) {
		t.Fatalf("expected ErrMissingID, got %v", err)
	}
	if err := RequireID(identity.Int(1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestStatusErrorMessage(t *testing.T) {
	err := &StatusError{Method: "GET", Path: "/issues", Code: 500, Body: "boom\n"}
	if !strings.Contains(err.Error(), "GET /issues: 500 boom") {
		t.Fatalf("Error() = %q", err.Error())
	}
}

func TestStatusErrorIsNotFound(t *testing.T) {
	if !errors.Is(&StatusError{Code: 404}, ErrNotFound) {
		t.Fatal("404 should match ErrNotFound")
	}
	if errors.Is(&StatusError{Code: 500}, ErrNotFound) {
		t.Fatal("500 must not match ErrNotFound")
	}
}

func TestNewCommentNormalized(t *testing.T) {
	tests := []struct {
		name    string
		in      NewComment
		want    NewComment
		wantErr error
	}{
		{name: "trimmed", in: NewComment{Text: "  looks good ", AuthorID: " ana "}, want: NewComment{Text: "looks good", AuthorID: "ana"}},
		{name: "blank text", in: NewComment{Text: "  ", AuthorID: "ana"}, wantErr: ErrTextRequired},
		{name: "blank author", in: NewComment{Text: "hi", AuthorID: " "}, wantErr: ErrUserRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.in.Normalized()
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && got != tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestCommentText(t *testing.T) {
	if got, err := CommentText(" edited "); err != nil || got != "edited" {
		t.Fatalf("CommentText = %q, %v", got, err)
	}
	if _, err := CommentText("\n"); !errors.Is(err, ErrTextRequired) {
		t.Fatalf("expected ErrTextRequired, got %v", err)
	}
}
