// Package transporttest provides an in-memory transport.Transport for tests.
package transporttest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cexll/issuedesk/internal/dto"
	"github.com/cexll/issuedesk/internal/identity"
	"github.com/cexll/issuedesk/internal/transport"
)

// Fake is an in-memory tracker backend. Payloads use the tracker API's field
// names. Set Err to make every call fail.
type Fake struct {
	mu         sync.Mutex
	issues     []dto.Raw
	tags       []dto.Raw
	milestones map[identity.ID]dto.Raw
	comments   map[identity.ID][]dto.Raw
	nextID     int64
	calls      []string

	Err error
	// FetchHook, when set, runs at the start of FetchIssues.
	FetchHook func()
}

var _ transport.Transport = (*Fake)(nil)

// NewFake returns an empty backend.
func NewFake() *Fake {
	return &Fake{milestones: map[identity.ID]dto.Raw{}, comments: map[identity.ID][]dto.Raw{}, nextID: 100}
}

// AddIssue stores raw as returned by the backend.
func (f *Fake) AddIssue(raw dto.Raw) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issues = append(f.issues, clone(raw))
}

// AddTag stores a catalog entry.
func (f *Fake) AddTag(raw dto.Raw) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tags = append(f.tags, clone(raw))
}

// AddMilestone stores a milestone.
func (f *Fake) AddMilestone(id int64, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.milestones[identity.Int(id)] = dto.Raw{"id": id, "name": name, "issueIds": []any{}}
}

// AddComment stores a comment payload on issue id.
func (f *Fake) AddComment(id int64, raw dto.Raw) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := identity.Int(id)
	f.comments[key] = append(f.comments[key], clone(raw))
}

// Calls returns the names of the methods called so far.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Issue returns the stored payload for id.
func (f *Fake) Issue(id identity.ID) (dto.Raw, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i := f.findIssue(id); i >= 0 {
		return clone(f.issues[i]), true
	}
	return nil, false
}

func (f *Fake) begin(name string) error {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	return f.Err
}

func (f *Fake) findIssue(id identity.ID) int {
	for i, raw := range f.issues {
		if identity.Normalize(raw["id"]) == id {
			return i
		}
	}
	return -1
}

func (f *Fake) issueAt(id identity.ID) (int, error) {
	if err := transport.RequireID(id); err != nil {
		return -1, err
	}
	i := f.findIssue(id)
	if i < 0 {
		return -1, &transport.StatusError{Method: "GET", Path: "/issues/" + id.String(), Code: 404, Body: "not found"}
	}
	return i, nil
}

func clone(raw dto.Raw) dto.Raw {
	out := make(dto.Raw, len(raw))
	for k, v := range raw {
		if list, ok := v.([]any); ok {
			copied := make([]any, len(list))
			for i, item := range list {
				if obj, ok := item.(map[string]any); ok {
					item = clone(obj)
				}
				copied[i] = item
			}
			v = copied
		}
		out[k] = v
	}
	return out
}

func cloneAll(raws []dto.Raw) []dto.Raw {
	out := make([]dto.Raw, 0, len(raws))
	for _, raw := range raws {
		out = append(out, clone(raw))
	}
	return out
}

// FetchIssues implements transport.Transport.
func (f *Fake) FetchIssues(ctx context.Context) ([]dto.Raw, error) {
	if f.FetchHook != nil {
		f.FetchHook()
	}
	err := f.begin("FetchIssues")
	defer f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return cloneAll(f.issues), nil
}

// FetchIssueByID implements transport.Transport.
func (f *Fake) FetchIssueByID(ctx context.Context, id identity.ID) (dto.Raw, error) {
	err := f.begin("FetchIssueByID")
	defer f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	i, err := f.issueAt(id)
	if err != nil {
		return nil, err
	}
	return clone(f.issues[i]), nil
}

// FetchTagDefinitions implements transport.Transport.
func (f *Fake) FetchTagDefinitions(ctx context.Context) ([]dto.Raw, error) {
	err := f.begin("FetchTagDefinitions")
	defer f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return cloneAll(f.tags), nil
}

// CreateIssue implements transport.Transport.
func (f *Fake) CreateIssue(ctx context.Context, req transport.NewIssue) (dto.Raw, error) {
	err := f.begin("CreateIssue")
	defer f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	f.nextID++
	raw := dto.Raw{
		"id":          f.nextID,
		"title":       req.Title,
		"description": req.Description,
		"author_id":   req.AuthorID,
		"status":      1,
		"tags":        []any{},
	}
	f.issues = append(f.issues, raw)
	return clone(raw), nil
}

// PatchIssueFields implements transport.Transport.
func (f *Fake) PatchIssueFields(ctx context.Context, id identity.ID, patch transport.IssuePatch) error {
	err := f.begin("PatchIssueFields")
	defer f.mu.Unlock()
	if err != nil {
		return err
	}
	if patch.Empty() {
		return transport.ErrEmptyPatch
	}
	i, err := f.issueAt(id)
	if err != nil {
		return err
	}
	for _, field := range patch.Fields() {
		f.issues[i][field.Name] = field.Value
	}
	return nil
}

// DeleteIssue implements transport.Transport.
func (f *Fake) DeleteIssue(ctx context.Context, id identity.ID) error {
	err := f.begin("DeleteIssue")
	defer f.mu.Unlock()
	if err != nil {
		return err
	}
	i, err := f.issueAt(id)
	if err != nil {
		return err
	}
	f.issues = append(f.issues[:i], f.issues[i+1:]...)
	return nil
}

func (f *Fake) catalogEntry(label string) dto.Raw {
	for _, tag := range f.tags {
		if strings.EqualFold(dto.PickString(tag, dto.TagLabelFields...), label) {
			return tag
		}
	}
	return nil
}

// AddTagToIssue implements transport.Transport.
func (f *Fake) AddTagToIssue(ctx context.Context, id identity.ID, tag transport.TagInput) ([]dto.Raw, error) {
	err := f.begin("AddTagToIssue")
	defer f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	i, err := f.issueAt(id)
	if err != nil {
		return nil, err
	}
	tag, err = tag.Normalized()
	if err != nil {
		return nil, err
	}

	entry := f.catalogEntry(tag.Label)
	if entry == nil {
		f.nextID++
		entry = dto.Raw{"id": f.nextID, "tag": tag.Label}
		if tag.Color != "" {
			entry["color"] = tag.Color
		}
		f.tags = append(f.tags, entry)
	}

	current, _ := dto.List(f.issues[i]["tags"])
	out := make([]any, 0, len(current)+1)
	for _, existing := range current {
		if !strings.EqualFold(dto.PickString(existing, dto.TagLabelFields...), tag.Label) {
			out = append(out, map[string]any(existing))
		}
	}
	out = append(out, map[string]any(clone(entry)))
	f.issues[i]["tags"] = out

	tags, _ := dto.List(out)
	return cloneAll(tags), nil
}

// RemoveTagFromIssue implements transport.Transport.
func (f *Fake) RemoveTagFromIssue(ctx context.Context, id identity.ID, label string) error {
	err := f.begin("RemoveTagFromIssue")
	defer f.mu.Unlock()
	if err != nil {
		return err
	}
	i, err := f.issueAt(id)
	if err != nil {
		return err
	}
	current, _ := dto.List(f.issues[i]["tags"])
	out := make([]any, 0, len(current))
	for _, existing := range current {
		if !strings.EqualFold(dto.PickString(existing, dto.TagLabelFields...), strings.TrimSpace(label)) {
			out = append(out, map[string]any(existing))
		}
	}
	f.issues[i]["tags"] = out
	return nil
}

// UpdateTagDefinition implements transport.Transport.
func (f *Fake) UpdateTagDefinition(ctx context.Context, tagID identity.ID, patch transport.TagPatch) (dto.Raw, error) {
	err := f.begin("UpdateTagDefinition")
	defer f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	for _, tag := range f.tags {
		if identity.Normalize(tag["id"]) != tagID {
			continue
		}
		if label := strings.TrimSpace(patch.Label); label != "" {
			tag["tag"] = label
		}
		if patch.Color != nil {
			tag["color"] = *patch.Color
		}
		return clone(tag), nil
	}
	return nil, &transport.StatusError{Method: "PATCH", Path: "/tags/" + tagID.String(), Code: 404, Body: "not found"}
}

// DeleteTagDefinition implements transport.Transport.
func (f *Fake) DeleteTagDefinition(ctx context.Context, tagID identity.ID) error {
	err := f.begin("DeleteTagDefinition")
	defer f.mu.Unlock()
	if err != nil {
		return err
	}
	for i, tag := range f.tags {
		if identity.Normalize(tag["id"]) == tagID {
			f.tags = append(f.tags[:i], f.tags[i+1:]...)
			return nil
		}
	}
	return &transport.StatusError{Method: "DELETE", Path: "/tags/" + tagID.String(), Code: 404, Body: "not found"}
}

// AssignIssue implements transport.Transport.
func (f *Fake) AssignIssue(ctx context.Context, id identity.ID, user string) (dto.Raw, error) {
	err := f.begin("AssignIssue")
	defer f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	i, err := f.issueAt(id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(user) == "" {
		return nil, transport.ErrUserRequired
	}
	f.issues[i]["assignedTo"] = strings.TrimSpace(user)
	return clone(f.issues[i]), nil
}

// UnassignIssue implements transport.Transport.
func (f *Fake) UnassignIssue(ctx context.Context, id identity.ID) (dto.Raw, error) {
	err := f.begin("UnassignIssue")
	defer f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	i, err := f.issueAt(id)
	if err != nil {
		return nil, err
	}
	delete(f.issues[i], "assignedTo")
	delete(f.issues[i], "assigned_to")
	return clone(f.issues[i]), nil
}

// LinkMilestone implements transport.Transport.
func (f *Fake) LinkMilestone(ctx context.Context, milestoneID, id identity.ID) (dto.Raw, error) {
	err := f.begin("LinkMilestone")
	defer f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	ms, ok := f.milestones[milestoneID]
	if !ok {
		return nil, fmt.Errorf("%w: milestone %s", transport.ErrNotFound, milestoneID.String())
	}
	i, err := f.issueAt(id)
	if err != nil {
		return nil, err
	}
	f.issues[i]["milestone_title"] = ms["name"]
	ids, _ := ms["issueIds"].([]any)
	ms["issueIds"] = append(ids, id.String())
	return clone(ms), nil
}

// UnlinkMilestone implements transport.Transport.
func (f *Fake) UnlinkMilestone(ctx context.Context, milestoneID, id identity.ID) error {
	err := f.begin("UnlinkMilestone")
	defer f.mu.Unlock()
	if err != nil {
		return err
	}
	ms, ok := f.milestones[milestoneID]
	if !ok {
		return fmt.Errorf("%w: milestone %s", transport.ErrNotFound, milestoneID.String())
	}
	i, err := f.issueAt(id)
	if err != nil {
		return err
	}
	delete(f.issues[i], "milestone_title")
	ids, _ := ms["issueIds"].([]any)
	kept := make([]any, 0, len(ids))
	for _, v := range ids {
		if identity.Normalize(v) != id {
			kept = append(kept, v)
		}
	}
	ms["issueIds"] = kept
	return nil
}

// FetchComments implements transport.Transport.
func (f *Fake) FetchComments(ctx context.Context, id identity.ID) ([]dto.Raw, error) {
	err := f.begin("FetchComments")
	defer f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if _, err := f.issueAt(id); err != nil {
		return nil, err
	}
	return cloneAll(f.comments[id]), nil
}

// CreateComment implements transport.Transport.
func (f *Fake) CreateComment(ctx context.Context, id identity.ID, comment transport.NewComment) (dto.Raw, error) {
	err := f.begin("CreateComment")
	defer f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if _, err := f.issueAt(id); err != nil {
		return nil, err
	}
	comment, err = comment.Normalized()
	if err != nil {
		return nil, err
	}
	f.nextID++
	raw := dto.Raw{"id": f.nextID, "text": comment.Text, "author_id": comment.AuthorID}
	f.comments[id] = append(f.comments[id], raw)
	return clone(raw), nil
}

func (f *Fake) commentAt(id, commentID identity.ID) (int, error) {
	if _, err := f.issueAt(id); err != nil {
		return -1, err
	}
	for i, raw := range f.comments[id] {
		if identity.Normalize(raw["id"]) == commentID {
			return i, nil
		}
	}
	return -1, &transport.StatusError{Method: "GET", Path: "/issues/" + id.String() + "/comments/" + commentID.String(), Code: 404, Body: "not found"}
}

// UpdateComment implements transport.Transport.
func (f *Fake) UpdateComment(ctx context.Context, id, commentID identity.ID, text string) error {
	err := f.begin("UpdateComment")
	defer f.mu.Unlock()
	if err != nil {
		return err
	}
	text, err = transport.CommentText(text)
	if err != nil {
		return err
	}
	i, err := f.commentAt(id, commentID)
	if err != nil {
		return err
	}
	f.comments[id][i]["text"] = text
	return nil
}

// DeleteComment implements transport.Transport.
func (f *Fake) DeleteComment(ctx context.Context, id, commentID identity.ID) error {
	err := f.begin("DeleteComment")
	defer f.mu.Unlock()
	if err != nil {
		return err
	}
	i, err := f.commentAt(id, commentID)
	if err != nil {
		return err
	}
	list := f.comments[id]
	f.comments[id] = append(list[:i], list[i+1:]...)
	return nil
}
