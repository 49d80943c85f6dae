// Package github serves one GitHub repository as a tracker backend. Issues map
// to GitHub issues (pull requests are skipped), tags to labels and milestones
// to milestones. Status is carried by the issue state plus an "in progress"
// label. GitHub cannot delete issues, so a deleted issue is closed as not
// planned with DeletedLabel and hidden from every listing. Responses are converted to the same raw field names the tracker API
// uses so one mapper normalizes both backends.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	gh "github.com/google/go-github/v66/github"

	"github.com/cexll/issuedesk/internal/dto"
	"github.com/cexll/issuedesk/internal/identity"
	"github.com/cexll/issuedesk/internal/model"
	"github.com/cexll/issuedesk/internal/transport"
)

// InProgressLabel marks open issues that are being worked on.
const InProgressLabel = "in progress"

// DeletedLabel marks issues removed through DeleteIssue.
const DeletedLabel = "deleted"

const perPage = 100

// Transport adapts a go-github client to transport.Transport.
type Transport struct {
	client *gh.Client
	owner  string
	repo   string
}

var _ transport.Transport = (*Transport)(nil)

// New wraps an existing client.
func New(client *gh.Client, owner, repo string) *Transport {
	return &Transport{client: client, owner: owner, repo: repo}
}

// NewWithToken builds a client for api.github.com. An empty token makes
// unauthenticated requests.
func NewWithToken(token, owner, repo string, timeout time.Duration) *Transport {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	client := gh.NewClient(&http.Client{Timeout: timeout})
	if token != "" {
		client = client.WithAuthToken(token)
	}
	return New(client, owner, repo)
}

func (t *Transport) wrap(method, path string, err error) error {
	var errResp *gh.ErrorResponse
	if errors.As(err, &errResp) && errResp.Response != nil {
		return &transport.StatusError{
			Method: method,
			Path:   path,
			Code:   errResp.Response.StatusCode,
			Body:   errResp.Message,
		}
	}
	return fmt.Errorf("github %s %s: %w", method, path, err)
}

func (t *Transport) issuePath(number int) string {
	return fmt.Sprintf("/repos/%s/%s/issues/%d", t.owner, t.repo, number)
}

// number converts an identity to a GitHub issue or milestone number.
func number(id identity.ID) (int, error) {
	if err := transport.RequireID(id); err != nil {
		return 0, err
	}
	n, ok := id.Int64()
	if !ok || n <= 0 {
		return 0, fmt.Errorf("%w: %q is not a github number", transport.ErrNotFound, id.String())
	}
	return int(n), nil
}

// FetchIssues lists every issue in the repository, open and closed.
func (t *Transport) FetchIssues(ctx context.Context) ([]dto.Raw, error) {
	issues, err := t.listIssues(ctx, &gh.IssueListByRepoOptions{State: "all"})
	if err != nil {
		return nil, err
	}
	out := make([]dto.Raw, 0, len(issues))
	for _, issue := range issues {
		out = append(out, issueRaw(issue))
	}
	return out, nil
}

func (t *Transport) listIssues(ctx context.Context, opts *gh.IssueListByRepoOptions) ([]*gh.Issue, error) {
	opts.PerPage = perPage
	var all []*gh.Issue
	for {
		page, resp, err := t.client.Issues.ListByRepo(ctx, t.owner, t.repo, opts)
		if err != nil {
			return nil, t.wrap(http.MethodGet, fmt.Sprintf("/repos/%s/%s/issues", t.owner, t.repo), err)
		}
		for _, issue := range page {
			if issue.IsPullRequest() || isDeleted(issue) {
				continue
			}
			all = append(all, issue)
		}
		if resp == nil || resp.NextPage == 0 {
			return all, nil
		}
		opts.Page = resp.NextPage
	}
}

// FetchIssueByID loads one issue by number.
func (t *Transport) FetchIssueByID(ctx context.Context, id identity.ID) (dto.Raw, error) {
	n, err := number(id)
	if err != nil {
		return nil, err
	}
	issue, _, err := t.client.Issues.Get(ctx, t.owner, t.repo, n)
	if err != nil {
		return nil, t.wrap(http.MethodGet, t.issuePath(n), err)
	}
	if issue.IsPullRequest() {
		return nil, fmt.Errorf("%w: #%d is a pull request", transport.ErrNotFound, n)
	}
	if isDeleted(issue) {
		return nil, fmt.Errorf("%w: #%d was deleted", transport.ErrNotFound, n)
	}
	return issueRaw(issue), nil
}

// FetchTagDefinitions lists the repository labels, except the status label.
func (t *Transport) FetchTagDefinitions(ctx context.Context) ([]dto.Raw, error) {
	labels, err := t.listLabels(ctx)
	if err != nil {
		return nil, err
	}
	return labelsRaw(labels), nil
}

func (t *Transport) listLabels(ctx context.Context) ([]*gh.Label, error) {
	opts := &gh.ListOptions{PerPage: perPage}
	var all []*gh.Label
	for {
		page, resp, err := t.client.Issues.ListLabels(ctx, t.owner, t.repo, opts)
		if err != nil {
			return nil, t.wrap(http.MethodGet, fmt.Sprintf("/repos/%s/%s/labels", t.owner, t.repo), err)
		}
		all = append(all, page...)
		if resp == nil || resp.NextPage == 0 {
			return all, nil
		}
		opts.Page = resp.NextPage
	}
}

// labelName resolves a label id to its name, which the label endpoints key on.
func (t *Transport) labelName(ctx context.Context, tagID identity.ID) (string, error) {
	if err := transport.RequireID(tagID); err != nil {
		return "", err
	}
	labels, err := t.listLabels(ctx)
	if err != nil {
		return "", err
	}
	for _, label := range labels {
		if identity.Normalize(label.GetID()) == tagID {
			return label.GetName(), nil
		}
	}
	return "", fmt.Errorf("%w: label %s", transport.ErrNotFound, tagID.String())
}

// CreateIssue opens a new issue. The author is whoever owns the token.
func (t *Transport) CreateIssue(ctx context.Context, req transport.NewIssue) (dto.Raw, error) {
	issue, _, err := t.client.Issues.Create(ctx, t.owner, t.repo, &gh.IssueRequest{
		Title: gh.String(req.Title),
		Body:  gh.String(req.Description),
	})
	if err != nil {
		return nil, t.wrap(http.MethodPost, fmt.Sprintf("/repos/%s/%s/issues", t.owner, t.repo), err)
	}
	return issueRaw(issue), nil
}

// PatchIssueFields applies the patch in a single edit. A status change also
// rewrites the issue's labels to add or drop the in-progress label.
func (t *Transport) PatchIssueFields(ctx context.Context, id identity.ID, patch transport.IssuePatch) error {
	n, err := number(id)
	if err != nil {
		return err
	}
	if patch.Empty() {
		return transport.ErrEmptyPatch
	}

	req := &gh.IssueRequest{Title: patch.Title, Body: patch.Description}
	if patch.Status != nil {
		current, _, err := t.client.Issues.Get(ctx, t.owner, t.repo, n)
		if err != nil {
			return t.wrap(http.MethodGet, t.issuePath(n), err)
		}
		state, labels := statusEdit(*patch.Status, current.Labels)
		req.State = gh.String(state)
		req.Labels = &labels
	}

	if _, _, err := t.client.Issues.Edit(ctx, t.owner, t.repo, n, req); err != nil {
		return t.wrap(http.MethodPatch, t.issuePath(n), err)
	}
	return nil
}

// statusEdit returns the issue state and label names that encode status.
func statusEdit(status model.Status, current []*gh.Label) (string, []string) {
	labels := make([]string, 0, len(current)+1)
	for _, label := range current {
		if !isStatusLabel(label) {
			labels = append(labels, label.GetName())
		}
	}
	switch status {
	case model.StatusDone:
		return "closed", labels
	case model.StatusInProgress:
		return "open", append(labels, InProgressLabel)
	default:
		return "open", labels
	}
}

// DeleteIssue labels the issue DeletedLabel and closes it as not planned.
// Closing alone would read back as Done.
func (t *Transport) DeleteIssue(ctx context.Context, id identity.ID) error {
	n, err := number(id)
	if err != nil {
		return err
	}
	if _, _, err := t.client.Issues.AddLabelsToIssue(ctx, t.owner, t.repo, n, []string{DeletedLabel}); err != nil {
		return t.wrap(http.MethodPost, t.issuePath(n)+"/labels", err)
	}
	req := &gh.IssueRequest{State: gh.String("closed"), StateReason: gh.String("not_planned")}
	if _, _, err := t.client.Issues.Edit(ctx, t.owner, t.repo, n, req); err != nil {
		return t.wrap(http.MethodPatch, t.issuePath(n), err)
	}
	return nil
}

// AddTagToIssue adds a label. With a color, the label is created first so it
// gets that color; an existing label is left as is.
func (t *Transport) AddTagToIssue(ctx context.Context, id identity.ID, tag transport.TagInput) ([]dto.Raw, error) {
	n, err := number(id)
	if err != nil {
		return nil, err
	}
	tag, err = tag.Normalized()
	if err != nil {
		return nil, err
	}

	if tag.Color != "" {
		_, _, err := t.client.Issues.CreateLabel(ctx, t.owner, t.repo, &gh.Label{
			Name:  gh.String(tag.Label),
			Color: gh.String(strings.TrimPrefix(tag.Color, "#")),
		})
		var statusErr *transport.StatusError
		if err != nil {
			wrapped := t.wrap(http.MethodPost, fmt.Sprintf("/repos/%s/%s/labels", t.owner, t.repo), err)
			if !errors.As(wrapped, &statusErr) || statusErr.Code != http.StatusUnprocessableEntity {
				return nil, wrapped
			}
		}
	}

	labels, _, err := t.client.Issues.AddLabelsToIssue(ctx, t.owner, t.repo, n, []string{tag.Label})
	if err != nil {
		return nil, t.wrap(http.MethodPost, t.issuePath(n)+"/labels", err)
	}
	return labelsRaw(labels), nil
}

// RemoveTagFromIssue removes a label from the issue.
func (t *Transport) RemoveTagFromIssue(ctx context.Context, id identity.ID, label string) error {
	n, err := number(id)
	if err != nil {
		return err
	}
	label = strings.TrimSpace(label)
	if label == "" {
		return transport.ErrTagRequired
	}
	if _, err := t.client.Issues.RemoveLabelForIssue(ctx, t.owner, t.repo, n, label); err != nil {
		return t.wrap(http.MethodDelete, t.issuePath(n)+"/labels/"+label, err)
	}
	return nil
}

// UpdateTagDefinition renames or recolors a label.
func (t *Transport) UpdateTagDefinition(ctx context.Context, tagID identity.ID, patch transport.TagPatch) (dto.Raw, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	name, err := t.labelName(ctx, tagID)
	if err != nil {
		return nil, err
	}

	edit := &gh.Label{}
	if label := strings.TrimSpace(patch.Label); label != "" {
		edit.Name = gh.String(label)
	}
	if patch.Color != nil {
		edit.Color = gh.String(strings.TrimPrefix(strings.TrimSpace(*patch.Color), "#"))
	}
	label, _, err := t.client.Issues.EditLabel(ctx, t.owner, t.repo, name, edit)
	if err != nil {
		return nil, t.wrap(http.MethodPatch, fmt.Sprintf("/repos/%s/%s/labels/%s", t.owner, t.repo, name), err)
	}
	return labelRaw(label), nil
}

// DeleteTagDefinition deletes a label from the repository.
func (t *Transport) DeleteTagDefinition(ctx context.Context, tagID identity.ID) error {
	name, err := t.labelName(ctx, tagID)
	if err != nil {
		return err
	}
	if _, err := t.client.Issues.DeleteLabel(ctx, t.owner, t.repo, name); err != nil {
		return t.wrap(http.MethodDelete, fmt.Sprintf("/repos/%s/%s/labels/%s", t.owner, t.repo, name), err)
	}
	return nil
}

// AssignIssue makes user the only assignee.
func (t *Transport) AssignIssue(ctx context.Context, id identity.ID, user string) (dto.Raw, error) {
	n, err := number(id)
	if err != nil {
		return nil, err
	}
	user = strings.TrimSpace(user)
	if user == "" {
		return nil, transport.ErrUserRequired
	}
	return t.editAssignees(ctx, n, []string{user})
}

// UnassignIssue clears all assignees.
func (t *Transport) UnassignIssue(ctx context.Context, id identity.ID) (dto.Raw, error) {
	n, err := number(id)
	if err != nil {
		return nil, err
	}
	return t.editAssignees(ctx, n, []string{})
}

func (t *Transport) editAssignees(ctx context.Context, n int, assignees []string) (dto.Raw, error) {
	issue, _, err := t.client.Issues.Edit(ctx, t.owner, t.repo, n, &gh.IssueRequest{Assignees: &assignees})
	if err != nil {
		return nil, t.wrap(http.MethodPatch, t.issuePath(n), err)
	}
	return issueRaw(issue), nil
}

// LinkMilestone sets the issue's milestone and returns the milestone with the
// numbers of every issue now in it.
func (t *Transport) LinkMilestone(ctx context.Context, milestoneID, id identity.ID) (dto.Raw, error) {
	m, err := number(milestoneID)
	if err != nil {
		return nil, err
	}
	n, err := number(id)
	if err != nil {
		return nil, err
	}

	if _, _, err := t.client.Issues.Edit(ctx, t.owner, t.repo, n, &gh.IssueRequest{Milestone: gh.Int(m)}); err != nil {
		return nil, t.wrap(http.MethodPatch, t.issuePath(n), err)
	}

	milestone, _, err := t.client.Issues.GetMilestone(ctx, t.owner, t.repo, m)
	if err != nil {
		return nil, t.wrap(http.MethodGet, fmt.Sprintf("/repos/%s/%s/milestones/%d", t.owner, t.repo, m), err)
	}
	members, err := t.listIssues(ctx, &gh.IssueListByRepoOptions{State: "all", Milestone: strconv.Itoa(m)})
	if err != nil {
		return nil, err
	}
	return milestoneRaw(milestone, members), nil
}

// UnlinkMilestone clears the issue's milestone when it is milestoneID.
func (t *Transport) UnlinkMilestone(ctx context.Context, milestoneID, id identity.ID) error {
	m, err := number(milestoneID)
	if err != nil {
		return err
	}
	n, err := number(id)
	if err != nil {
		return err
	}

	issue, _, err := t.client.Issues.Get(ctx, t.owner, t.repo, n)
	if err != nil {
		return t.wrap(http.MethodGet, t.issuePath(n), err)
	}
	if issue.GetMilestone().GetNumber() != m {
		return fmt.Errorf("%w: #%d is not in milestone %d", transport.ErrNotFound, n, m)
	}
	if _, _, err := t.client.Issues.RemoveMilestone(ctx, t.owner, t.repo, n); err != nil {
		return t.wrap(http.MethodPatch, t.issuePath(n), err)
	}
	return nil
}

func commentNumber(id identity.ID) (int64, error) {
	if err := transport.RequireID(id); err != nil {
		return 0, err
	}
	n, ok := id.Int64()
	if !ok || n <= 0 {
		return 0, fmt.Errorf("%w: %q is not a github comment id", transport.ErrNotFound, id.String())
	}
	return n, nil
}

// FetchComments lists every comment on the issue.
func (t *Transport) FetchComments(ctx context.Context, id identity.ID) ([]dto.Raw, error) {
	n, err := number(id)
	if err != nil {
		return nil, err
	}
	opts := &gh.IssueListCommentsOptions{ListOptions: gh.ListOptions{PerPage: perPage}}
	var out []dto.Raw
	for {
		page, resp, err := t.client.Issues.ListComments(ctx, t.owner, t.repo, n, opts)
		if err != nil {
			return nil, t.wrap(http.MethodGet, t.issuePath(n)+"/comments", err)
		}
		for _, c := range page {
			out = append(out, commentRaw(c))
		}
		if resp == nil || resp.NextPage == 0 {
			return out, nil
		}
		opts.Page = resp.NextPage
	}
}

// CreateComment comments on the issue. The author is whoever owns the token.
func (t *Transport) CreateComment(ctx context.Context, id identity.ID, comment transport.NewComment) (dto.Raw, error) {
	n, err := number(id)
	if err != nil {
		return nil, err
	}
	comment, err = comment.Normalized()
	if err != nil {
		return nil, err
	}
	created, _, err := t.client.Issues.CreateComment(ctx, t.owner, t.repo, n, &gh.IssueComment{Body: gh.String(comment.Text)})
	if err != nil {
		return nil, t.wrap(http.MethodPost, t.issuePath(n)+"/comments", err)
	}
	return commentRaw(created), nil
}

// UpdateComment edits a comment. GitHub addresses comments by id alone.
func (t *Transport) UpdateComment(ctx context.Context, id, commentID identity.ID, text string) error {
	if _, err := number(id); err != nil {
		return err
	}
	c, err := commentNumber(commentID)
	if err != nil {
		return err
	}
	text, err = transport.CommentText(text)
	if err != nil {
		return err
	}
	if _, _, err := t.client.Issues.EditComment(ctx, t.owner, t.repo, c, &gh.IssueComment{Body: gh.String(text)}); err != nil {
		return t.wrap(http.MethodPatch, fmt.Sprintf("/repos/%s/%s/issues/comments/%d", t.owner, t.repo, c), err)
	}
	return nil
}

// DeleteComment deletes a comment.
func (t *Transport) DeleteComment(ctx context.Context, id, commentID identity.ID) error {
	if _, err := number(id); err != nil {
		return err
	}
	c, err := commentNumber(commentID)
	if err != nil {
		return err
	}
	if _, err := t.client.Issues.DeleteComment(ctx, t.owner, t.repo, c); err != nil {
		return t.wrap(http.MethodDelete, fmt.Sprintf("/repos/%s/%s/issues/comments/%d", t.owner, t.repo, c), err)
	}
	return nil
}
