// Package rest talks to the tracker's own HTTP API.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cexll/issuedesk/internal/dto"
	"github.com/cexll/issuedesk/internal/identity"
	"github.com/cexll/issuedesk/internal/transport"
)

// DefaultBaseURL is where the tracker API listens by default.
const DefaultBaseURL = "http://localhost:8600"

// Client is a thin JSON client for the tracker API.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

var _ transport.Transport = (*Client)(nil)

// NewClient creates a client for baseURL. An empty baseURL means
// DefaultBaseURL; a non-positive timeout means 20 seconds.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// do sends one request. body, when non-nil, is JSON encoded. A successful
// response body is decoded into out with numbers preserved as json.Number.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(body); err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = buf
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &transport.StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: string(data)}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func idPath(id identity.ID) string {
	return url.PathEscape(id.String())
}

// FetchIssues lists every issue.
func (c *Client) FetchIssues(ctx context.Context) ([]dto.Raw, error) {
	var out []dto.Raw
	if err := c.do(ctx, http.MethodGet, "/issues", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FetchIssueByID loads one issue. A 404 matches transport.ErrNotFound.
func (c *Client) FetchIssueByID(ctx context.Context, id identity.ID) (dto.Raw, error) {
	if err := transport.RequireID(id); err != nil {
		return nil, err
	}
	var out dto.Raw
	if err := c.do(ctx, http.MethodGet, "/issues/"+idPath(id), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FetchTagDefinitions lists the tag catalog.
func (c *Client) FetchTagDefinitions(ctx context.Context) ([]dto.Raw, error) {
	var out []dto.Raw
	if err := c.do(ctx, http.MethodGet, "/tags", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateIssue creates an issue. The author goes out under both spellings the
// server has accepted over time.
func (c *Client) CreateIssue(ctx context.Context, req transport.NewIssue) (dto.Raw, error) {
	body := map[string]any{
		"title":       req.Title,
		"description": req.Description,
		"authorId":    req.AuthorID,
		"author_id":   req.AuthorID,
	}
	var out dto.Raw
	if err := c.do(ctx, http.MethodPost, "/issues", body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// PatchIssueFields sends one field/value PATCH per present field, stopping at
// the first failure.
func (c *Client) PatchIssueFields(ctx context.Context, id identity.ID, patch transport.IssuePatch) error {
	if err := transport.RequireID(id); err != nil {
		return err
	}
	if patch.Empty() {
		return transport.ErrEmptyPatch
	}
	path := "/issues/" + idPath(id)
	for _, field := range patch.Fields() {
		if err := c.do(ctx, http.MethodPatch, path, field, nil); err != nil {
			return fmt.Errorf("patch %s: %w", field.Name, err)
		}
	}
	return nil
}

// DeleteIssue deletes an issue.
func (c *Client) DeleteIssue(ctx context.Context, id identity.ID) error {
	if err := transport.RequireID(id); err != nil {
		return err
	}
	return c.do(ctx, http.MethodDelete, "/issues/"+idPath(id), nil, nil)
}

// AddTagToIssue attaches a tag, creating it server-side when needed, and
// returns the issue's tags as the server now reports them.
func (c *Client) AddTagToIssue(ctx context.Context, id identity.ID, tag transport.TagInput) ([]dto.Raw, error) {
	if err := transport.RequireID(id); err != nil {
		return nil, err
	}
	tag, err := tag.Normalized()
	if err != nil {
		return nil, err
	}
	body := map[string]string{"tag": tag.Label}
	if tag.Color != "" {
		body["color"] = tag.Color
	}
	path := "/issues/" + idPath(id) + "/tags"
	if err := c.do(ctx, http.MethodPost, path, body, nil); err != nil {
		return nil, err
	}

	var out []dto.Raw
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// RemoveTagFromIssue detaches a tag by name.
func (c *Client) RemoveTagFromIssue(ctx context.Context, id identity.ID, label string) error {
	if err := transport.RequireID(id); err != nil {
		return err
	}
	label = strings.TrimSpace(label)
	if label == "" {
		return transport.ErrTagRequired
	}
	return c.do(ctx, http.MethodDelete, "/issues/"+idPath(id)+"/tags", map[string]string{"tag": label}, nil)
}

// UpdateTagDefinition renames or recolors a tag and returns the stored
// definition.
func (c *Client) UpdateTagDefinition(ctx context.Context, tagID identity.ID, patch transport.TagPatch) (dto.Raw, error) {
	if err := transport.RequireID(tagID); err != nil {
		return nil, err
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	body := map[string]string{}
	if label := strings.TrimSpace(patch.Label); label != "" {
		body["tag"] = label
	}
	if patch.Color != nil {
		body["color"] = *patch.Color
	}
	var out dto.Raw
	if err := c.do(ctx, http.MethodPatch, "/tags/"+idPath(tagID), body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteTagDefinition removes a tag from the catalog.
func (c *Client) DeleteTagDefinition(ctx context.Context, tagID identity.ID) error {
	if err := transport.RequireID(tagID); err != nil {
		return err
	}
	return c.do(ctx, http.MethodDelete, "/tags/"+idPath(tagID), nil, nil)
}

// AssignIssue assigns an issue to user and returns the updated issue.
func (c *Client) AssignIssue(ctx context.Context, id identity.ID, user string) (dto.Raw, error) {
	if err := transport.RequireID(id); err != nil {
		return nil, err
	}
	user = strings.TrimSpace(user)
	if user == "" {
		return nil, transport.ErrUserRequired
	}
	var out dto.Raw
	path := "/users/" + url.PathEscape(user) + "/issues"
	if err := c.do(ctx, http.MethodPost, path, map[string]any{"issueId": id}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UnassignIssue clears the assignee and returns the updated issue.
func (c *Client) UnassignIssue(ctx context.Context, id identity.ID) (dto.Raw, error) {
	if err := transport.RequireID(id); err != nil {
		return nil, err
	}
	var out dto.Raw
	if err := c.do(ctx, http.MethodPatch, "/issues/"+idPath(id)+"/unassign", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// LinkMilestone adds an issue to a milestone and returns the milestone.
func (c *Client) LinkMilestone(ctx context.Context, milestoneID, id identity.ID) (dto.Raw, error) {
	if err := transport.RequireID(milestoneID); err != nil {
		return nil, err
	}
	if err := transport.RequireID(id); err != nil {
		return nil, err
	}
	var out dto.Raw
	path := "/milestones/" + idPath(milestoneID) + "/issues/" + idPath(id)
	if err := c.do(ctx, http.MethodPost, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UnlinkMilestone removes an issue from a milestone.
func (c *Client) UnlinkMilestone(ctx context.Context, milestoneID, id identity.ID) error {
	if err := transport.RequireID(milestoneID); err != nil {
		return err
	}
	if err := transport.RequireID(id); err != nil {
		return err
	}
	return c.do(ctx, http.MethodDelete, "/milestones/"+idPath(milestoneID)+"/issues/"+idPath(id), nil, nil)
}

// FetchComments lists an issue's comments.
func (c *Client) FetchComments(ctx context.Context, id identity.ID) ([]dto.Raw, error) {
	if err := transport.RequireID(id); err != nil {
		return nil, err
	}
	var out []dto.Raw
	if err := c.do(ctx, http.MethodGet, "/issues/"+idPath(id)+"/comments", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateComment posts a comment. The author goes out under both spellings, as
// in CreateIssue.
func (c *Client) CreateComment(ctx context.Context, id identity.ID, comment transport.NewComment) (dto.Raw, error) {
	if err := transport.RequireID(id); err != nil {
		return nil, err
	}
	comment, err := comment.Normalized()
	if err != nil {
		return nil, err
	}
	body := map[string]string{
		"text":      comment.Text,
		"authorId":  comment.AuthorID,
		"author_id": comment.AuthorID,
	}
	var out dto.Raw
	if err := c.do(ctx, http.MethodPost, "/issues/"+idPath(id)+"/comments", body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateComment replaces a comment's text.
func (c *Client) UpdateComment(ctx context.Context, id, commentID identity.ID, text string) error {
	if err := transport.RequireID(id); err != nil {
		return err
	}
	if err := transport.RequireID(commentID); err != nil {
		return err
	}
	text, err := transport.CommentText(text)
	if err != nil {
		return err
	}
	path := "/issues/" + idPath(id) + "/comments/" + idPath(commentID)
	return c.do(ctx, http.MethodPatch, path, map[string]string{"text": text}, nil)
}

// DeleteComment removes a comment.
func (c *Client) DeleteComment(ctx context.Context, id, commentID identity.ID) error {
	if err := transport.RequireID(id); err != nil {
		return err
	}
	if err := transport.RequireID(commentID); err != nil {
		return err
	}
	return c.do(ctx, http.MethodDelete, "/issues/"+idPath(id)+"/comments/"+idPath(commentID), nil, nil)
}
