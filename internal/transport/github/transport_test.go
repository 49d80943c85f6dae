package github

import (
	"context"
	"errors"
	"testing"
	"time"

	gh "github.com/google/go-github/v66/github"

	"github.com/cexll/issuedesk/internal/dto"
	"github.com/cexll/issuedesk/internal/identity"
	"github.com/cexll/issuedesk/internal/model"
	"github.com/cexll/issuedesk/internal/tracker"
	"github.com/cexll/issuedesk/internal/transport"
	"github.com/cexll/issuedesk/internal/transport/github/ghtest"
)

func newTestTransport(t *testing.T) (*Transport, *ghtest.Repo) {
	t.Helper()
	client, repo, cleanup := ghtest.NewMockGitHubClient()
	t.Cleanup(cleanup)
	return New(client, "owner", "repo"), repo
}

func TestFetchIssuesSkipsPullRequestsAndMapsFields(t *testing.T) {
	tr, repo := newTestTransport(t)
	bug := repo.AddLabel("bug", "ff0000")
	progress := repo.AddLabel(InProgressLabel, "0000ff")
	ms := repo.AddMilestone(1, "v1")
	created := gh.Timestamp{Time: time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)}

	repo.AddIssue(&gh.Issue{
		Number:    gh.Int(12),
		Title:     gh.String("Fix login bug"),
		Body:      gh.String("500 on submit"),
		User:      &gh.User{Login: gh.String("ana")},
		Assignee:  &gh.User{Login: gh.String("bo")},
		Labels:    []*gh.Label{bug, progress},
		Milestone: ms,
		CreatedAt: &created,
	})
	repo.AddIssue(&gh.Issue{Number: gh.Int(13), Title: gh.String("done"), State: gh.String("closed")})
	repo.AddIssue(&gh.Issue{Number: gh.Int(14), Title: gh.String("a PR"), PullRequestLinks: &gh.PullRequestLinks{}})

	raws, err := tr.FetchIssues(context.Background())
	if err != nil {
		t.Fatalf("FetchIssues error: %v", err)
	}
	if len(raws) != 2 {
		t.Fatalf("len = %d, want 2 (pull request skipped)", len(raws))
	}

	issues := dto.Mapper{}.Issues(raws)
	first := issues[0]
	if first.ID != "#12" || first.Title != "Fix login bug" || first.Description != "500 on submit" {
		t.Errorf("first = %+v", first)
	}
	if first.Author != "ana" || first.AssignedTo != "bo" || first.Milestone != "v1" {
		t.Errorf("people/milestone = %q/%q/%q", first.Author, first.AssignedTo, first.Milestone)
	}
	if first.Status != model.StatusInProgress || first.CreatedAt != "2024-03-05" {
		t.Errorf("status/createdAt = %q/%q", first.Status, first.CreatedAt)
	}
	if len(first.Tags) != 1 || first.Tags[0].Label != "bug" || first.Tags[0].Color != "#ff0000" || first.Tags[0].ID != identity.Int(bug.GetID()) {
		t.Errorf("Tags = %+v, want only bug", first.Tags)
	}
	if issues[1].Status != model.StatusDone {
		t.Errorf("closed issue status = %q", issues[1].Status)
	}
}

func TestFetchIssueByID(t *testing.T) {
	tr, repo := newTestTransport(t)
	repo.AddIssue(&gh.Issue{Number: gh.Int(5), Title: gh.String("five")})
	repo.AddIssue(&gh.Issue{Number: gh.Int(6), PullRequestLinks: &gh.PullRequestLinks{}})

	raw, err := tr.FetchIssueByID(context.Background(), identity.Parse("#5"))
	if err != nil {
		t.Fatalf("FetchIssueByID error: %v", err)
	}
	if raw["title"] != "five" {
		t.Fatalf("raw = %+v", raw)
	}

	for _, id := range []identity.ID{identity.Int(99), identity.Int(6), identity.Parse("abc")} {
		if _, err := tr.FetchIssueByID(context.Background(), id); !errors.Is(err, transport.ErrNotFound) {
			t.Errorf("FetchIssueByID(%s) error = %v, want ErrNotFound", id, err)
		}
	}
	if _, err := tr.FetchIssueByID(context.Background(), identity.None); !errors.Is(err, transport.ErrMissingID) {
		t.Errorf("expected ErrMissingID, got %v", err)
	}
}

func TestFetchTagDefinitionsHidesStatusLabel(t *testing.T) {
	tr, repo := newTestTransport(t)
	repo.AddLabel("bug", "ff0000")
	repo.AddLabel("In Progress", "0000ff")

	raws, err := tr.FetchTagDefinitions(context.Background())
	if err != nil {
		t.Fatalf("FetchTagDefinitions error: %v", err)
	}
	defs := dto.Mapper{}.Definitions(raws)
	if len(defs) != 1 || defs[0].Label != "bug" || defs[0].Color != "#ff0000" {
		t.Fatalf("defs = %+v", defs)
	}
}

func TestCreateIssue(t *testing.T) {
	tr, repo := newTestTransport(t)

	raw, err := tr.CreateIssue(context.Background(), transport.NewIssue{Title: "new", Description: "body"})
	if err != nil {
		t.Fatalf("CreateIssue error: %v", err)
	}
	issue := dto.Mapper{}.Issue(raw)
	if !issue.RawID.Valid() || issue.Title != "new" || issue.Author != "token-owner" {
		t.Fatalf("issue = %+v", issue)
	}
	if _, ok := repo.Issue(1); !ok {
		t.Fatal("issue should be stored")
	}
}

func TestPatchIssueFieldsStatus(t *testing.T) {
	tr, repo := newTestTransport(t)
	bug := repo.AddLabel("bug", "ff0000")
	repo.AddIssue(&gh.Issue{Number: gh.Int(3), Title: gh.String("old"), Labels: []*gh.Label{bug}})

	title := "new"
	status := model.StatusInProgress
	if err := tr.PatchIssueFields(context.Background(), identity.Int(3), transport.IssuePatch{Title: &title, Status: &status}); err != nil {
		t.Fatalf("PatchIssueFields error: %v", err)
	}
	got, _ := repo.Issue(3)
	if got.GetTitle() != "new" || got.GetState() != "open" || len(got.Labels) != 2 {
		t.Fatalf("issue = %+v", got)
	}

	status = model.StatusDone
	if err := tr.PatchIssueFields(context.Background(), identity.Int(3), transport.IssuePatch{Status: &status}); err != nil {
		t.Fatalf("PatchIssueFields error: %v", err)
	}
	got, _ = repo.Issue(3)
	if got.GetState() != "closed" || len(got.Labels) != 1 || got.Labels[0].GetName() != "bug" {
		t.Fatalf("issue = %+v", got)
	}

	if err := tr.PatchIssueFields(context.Background(), identity.Int(3), transport.IssuePatch{}); !errors.Is(err, transport.ErrEmptyPatch) {
		t.Fatalf("expected ErrEmptyPatch, got %v", err)
	}
}

func TestDeleteIssueHidesIssue(t *testing.T) {
	tr, repo := newTestTransport(t)
	repo.AddIssue(&gh.Issue{Number: gh.Int(8), Title: gh.String("obsolete")})
	repo.AddIssue(&gh.Issue{Number: gh.Int(9), Title: gh.String("shipped"), State: gh.String("closed")})
	ctx := context.Background()

	if err := tr.DeleteIssue(ctx, identity.Int(8)); err != nil {
		t.Fatalf("DeleteIssue error: %v", err)
	}
	got, _ := repo.Issue(8)
	if got.GetState() != "closed" || got.GetStateReason() != "not_planned" {
		t.Fatalf("state = %q (%q), want closed as not_planned", got.GetState(), got.GetStateReason())
	}

	raws, err := tr.FetchIssues(ctx)
	if err != nil {
		t.Fatalf("FetchIssues error: %v", err)
	}
	issues := dto.Mapper{}.Issues(raws)
	if len(issues) != 1 || issues[0].RawID != identity.Int(9) || issues[0].Status != model.StatusDone {
		t.Fatalf("issues = %+v, want only the done issue 9", issues)
	}

	if _, err := tr.FetchIssueByID(ctx, identity.Int(8)); !errors.Is(err, transport.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for deleted issue, got %v", err)
	}

	defs, err := tr.FetchTagDefinitions(ctx)
	if err != nil {
		t.Fatalf("FetchTagDefinitions error: %v", err)
	}
	for _, def := range defs {
		if def["tag"] == DeletedLabel {
			t.Fatalf("deletion marker leaked into the catalog: %+v", defs)
		}
	}
}

func TestDeletedIssueStaysGoneAfterRefresh(t *testing.T) {
	tr, repo := newTestTransport(t)
	repo.AddIssue(&gh.Issue{Number: gh.Int(1), Title: gh.String("keep")})
	repo.AddIssue(&gh.Issue{Number: gh.Int(2), Title: gh.String("drop")})
	ctx := context.Background()

	trk := tracker.New(tr)
	defer trk.Close(ctx)
	if err := trk.Refresh(ctx); err != nil {
		t.Fatalf("Refresh error: %v", err)
	}
	if err := trk.DeleteIssue(ctx, 2); err != nil {
		t.Fatalf("DeleteIssue error: %v", err)
	}
	if err := trk.Refresh(ctx); err != nil {
		t.Fatalf("Refresh error: %v", err)
	}

	issues := trk.Issues().Issues
	if len(issues) != 1 || issues[0].RawID != identity.Int(1) {
		t.Fatalf("issues after refresh = %+v, want only #1", issues)
	}
}

func TestComments(t *testing.T) {
	tr, repo := newTestTransport(t)
	repo.AddIssue(&gh.Issue{Number: gh.Int(4)})
	first := repo.AddComment(4, "ana", "first")
	ctx := context.Background()

	raws, err := tr.FetchComments(ctx, identity.Int(4))
	if err != nil {
		t.Fatalf("FetchComments error: %v", err)
	}
	comments := dto.Mapper{}.Comments(raws)
	if len(comments) != 1 || comments[0].Author != "ana" || comments[0].Text != "first" || comments[0].ID != identity.Int(first.GetID()) {
		t.Fatalf("comments = %+v", comments)
	}

	raw, err := tr.CreateComment(ctx, identity.Int(4), transport.NewComment{Text: "second", AuthorID: "bo"})
	if err != nil {
		t.Fatalf("CreateComment error: %v", err)
	}
	created := dto.Mapper{}.Comment(raw)
	if created.Author != "token-owner" || created.Text != "second" {
		t.Fatalf("created = %+v", created)
	}

	if err := tr.UpdateComment(ctx, identity.Int(4), created.ID, "second, edited"); err != nil {
		t.Fatalf("UpdateComment error: %v", err)
	}
	if err := tr.DeleteComment(ctx, identity.Int(4), identity.Int(first.GetID())); err != nil {
		t.Fatalf("DeleteComment error: %v", err)
	}
	if got := repo.Comments(4); len(got) != 1 || got[0] != "second, edited" {
		t.Fatalf("stored comments = %v", got)
	}

	if err := tr.DeleteComment(ctx, identity.Int(4), identity.Int(999999)); !errors.Is(err, transport.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := tr.FetchComments(ctx, identity.Int(77)); !errors.Is(err, transport.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown issue, got %v", err)
	}
}

func TestAddTagToIssueCreatesColoredLabel(t *testing.T) {
	tr, repo := newTestTransport(t)
	repo.AddLabel("bug", "ff0000")
	repo.AddIssue(&gh.Issue{Number: gh.Int(2)})

	raws, err := tr.AddTagToIssue(context.Background(), identity.Int(2), transport.TagInput{Label: "ui", Color: "#00ff00"})
	if err != nil {
		t.Fatalf("AddTagToIssue error: %v", err)
	}
	tags := dto.Mapper{}.Tags(raws)
	if len(tags) != 1 || tags[0].Label != "ui" || tags[0].Color != "#00ff00" {
		t.Fatalf("tags = %+v", tags)
	}

	// An existing label keeps its color.
	raws, err = tr.AddTagToIssue(context.Background(), identity.Int(2), transport.TagInput{Label: "bug", Color: "#123456"})
	if err != nil {
		t.Fatalf("AddTagToIssue existing error: %v", err)
	}
	tags = dto.Mapper{}.Tags(raws)
	if len(tags) != 2 || tags[1].Color != "#ff0000" {
		t.Fatalf("tags = %+v", tags)
	}
}

func TestRemoveTagFromIssue(t *testing.T) {
	tr, repo := newTestTransport(t)
	bug := repo.AddLabel("bug", "ff0000")
	repo.AddIssue(&gh.Issue{Number: gh.Int(2), Labels: []*gh.Label{bug}})

	if err := tr.RemoveTagFromIssue(context.Background(), identity.Int(2), "bug"); err != nil {
		t.Fatalf("RemoveTagFromIssue error: %v", err)
	}
	if got, _ := repo.Issue(2); len(got.Labels) != 0 {
		t.Fatalf("labels = %+v", got.Labels)
	}
	if err := tr.RemoveTagFromIssue(context.Background(), identity.Int(2), "bug"); !errors.Is(err, transport.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateAndDeleteTagDefinition(t *testing.T) {
	tr, repo := newTestTransport(t)
	bug := repo.AddLabel("bug", "ff0000")
	color := "#000000"

	raw, err := tr.UpdateTagDefinition(context.Background(), identity.Int(bug.GetID()), transport.TagPatch{Label: "defect", Color: &color})
	if err != nil {
		t.Fatalf("UpdateTagDefinition error: %v", err)
	}
	def := dto.Mapper{}.Definition(raw)
	if def.Label != "defect" || def.Color != "#000000" || def.ID != identity.Int(bug.GetID()) {
		t.Fatalf("def = %+v", def)
	}

	if err := tr.DeleteTagDefinition(context.Background(), identity.Int(bug.GetID())); err != nil {
		t.Fatalf("DeleteTagDefinition error: %v", err)
	}
	if names := repo.Labels(); len(names) != 0 {
		t.Fatalf("labels = %v", names)
	}
	if err := tr.DeleteTagDefinition(context.Background(), identity.Int(bug.GetID())); !errors.Is(err, transport.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAssignAndUnassign(t *testing.T) {
	tr, repo := newTestTransport(t)
	repo.AddIssue(&gh.Issue{Number: gh.Int(4)})

	raw, err := tr.AssignIssue(context.Background(), identity.Int(4), "ana")
	if err != nil {
		t.Fatalf("AssignIssue error: %v", err)
	}
	if got := (dto.Mapper{}).Issue(raw).AssignedTo; got != "ana" {
		t.Fatalf("AssignedTo = %q", got)
	}

	raw, err = tr.UnassignIssue(context.Background(), identity.Int(4))
	if err != nil {
		t.Fatalf("UnassignIssue error: %v", err)
	}
	if got := (dto.Mapper{}).Issue(raw).AssignedTo; got != "" {
		t.Fatalf("AssignedTo = %q, want empty", got)
	}
}

func TestMilestoneLinks(t *testing.T) {
	tr, repo := newTestTransport(t)
	repo.AddMilestone(2, "Q3")
	repo.AddIssue(&gh.Issue{Number: gh.Int(7)})
	repo.AddIssue(&gh.Issue{Number: gh.Int(8)})

	raw, err := tr.LinkMilestone(context.Background(), identity.Int(2), identity.Int(7))
	if err != nil {
		t.Fatalf("LinkMilestone error: %v", err)
	}
	ms := dto.Mapper{}.Milestone(raw)
	if ms.Name != "Q3" || len(ms.IssueIDs) != 1 || ms.IssueIDs[0] != identity.Int(7) {
		t.Fatalf("milestone = %+v", ms)
	}

	if err := tr.UnlinkMilestone(context.Background(), identity.Int(2), identity.Int(8)); !errors.Is(err, transport.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for issue outside milestone, got %v", err)
	}
	if err := tr.UnlinkMilestone(context.Background(), identity.Int(2), identity.Int(7)); err != nil {
		t.Fatalf("UnlinkMilestone error: %v", err)
	}
	if got, _ := repo.Issue(7); got.Milestone != nil {
		t.Fatalf("milestone still set: %+v", got.Milestone)
	}

	if _, err := tr.LinkMilestone(context.Background(), identity.Int(9), identity.Int(7)); err == nil {
		t.Fatal("expected error for unknown milestone")
	}
}
