// Package tracker wires the issue and tag caches to a backend. Fetches run on
// the caller's goroutine; every resulting cache write is applied on a single
// dispatcher loop, so writes never interleave and subscribers always observe
// complete states.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"

	"github.com/cexll/issuedesk/internal/concurrency"
	"github.com/cexll/issuedesk/internal/dispatcher"
	"github.com/cexll/issuedesk/internal/dto"
	"github.com/cexll/issuedesk/internal/identity"
	"github.com/cexll/issuedesk/internal/issuecache"
	"github.com/cexll/issuedesk/internal/model"
	"github.com/cexll/issuedesk/internal/observable"
	"github.com/cexll/issuedesk/internal/reconcile"
	"github.com/cexll/issuedesk/internal/tagcache"
	"github.com/cexll/issuedesk/internal/transport"
)

// ErrRefreshInFlight is returned when a bulk refresh is already running.
var ErrRefreshInFlight = errors.New("tracker: refresh already in progress")

// Option configures a Tracker.
type Option func(*options)

type options struct {
	mapper    dto.Mapper
	queueSize int
	logger    observable.Logger
}

// WithMapper sets the payload mapper, e.g. to label issues with the active
// database or change the date layout.
func WithMapper(m dto.Mapper) Option {
	return func(o *options) { o.mapper = m }
}

// WithQueueSize bounds the mutation queue.
func WithQueueSize(n int) Option {
	return func(o *options) { o.queueSize = n }
}

// WithLogger routes cache subscriber failures to l.
func WithLogger(l observable.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Tracker owns the caches for one backend.
type Tracker struct {
	transport  transport.Transport
	mapper     dto.Mapper
	issues     *issuecache.Cache
	tags       *tagcache.Cache
	reconciler *reconcile.Reconciler
	detach     func()
	loop       *dispatcher.Loop
	guard      *concurrency.Manager
}

// New creates a tracker over t with empty caches.
func New(t transport.Transport, opts ...Option) *Tracker {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	var storeOpts []observable.Option
	if o.logger != nil {
		storeOpts = append(storeOpts, observable.WithLogger(o.logger))
	}

	issues := issuecache.New(storeOpts...)
	tags := tagcache.New(storeOpts...)
	r := reconcile.New(issues, tags)

	return &Tracker{
		transport:  t,
		mapper:     o.mapper,
		issues:     issues,
		tags:       tags,
		reconciler: r,
		detach:     r.Attach(),
		loop:       dispatcher.New(dispatcher.Config{QueueSize: o.queueSize}),
		guard:      concurrency.NewManager(),
	}
}

// Close stops reconciliation and drains pending cache writes.
func (t *Tracker) Close(ctx context.Context) {
	t.loop.Shutdown(ctx)
	t.detach()
}

// Issues returns the current issue snapshot.
func (t *Tracker) Issues() issuecache.State { return t.issues.State() }

// Tags returns the current tag catalog snapshot.
func (t *Tracker) Tags() tagcache.State { return t.tags.State() }

// SubscribeIssues registers fn for issue cache changes.
func (t *Tracker) SubscribeIssues(fn func(issuecache.State)) func() {
	return t.issues.Subscribe(fn)
}

// SubscribeTags registers fn for tag catalog changes.
func (t *Tracker) SubscribeTags(fn func(tagcache.State)) func() {
	return t.tags.Subscribe(fn)
}

// Issue returns the cached issue with identity id.
func (t *Tracker) Issue(id any) (model.Issue, bool) {
	return t.issues.Lookup(id)
}

// apply runs fn on the mutation loop and waits for it.
func (t *Tracker) apply(ctx context.Context, fn func()) error {
	return t.loop.Do(ctx, func() error {
		fn()
		return nil
	})
}

// patchCached edits a cached issue in place. Unknown ids are ignored. Must run
// on the loop.
func (t *Tracker) patchCached(id identity.ID, fn func(*model.Issue)) {
	issue, ok := t.issues.Lookup(id)
	if !ok {
		return
	}
	fn(&issue)
	t.issues.Upsert(issue)
}

// upsertIssue caches issue and merges the tags it carries into the catalog,
// so later catalog changes do not strip them. Must run on the loop.
func (t *Tracker) upsertIssue(issue model.Issue) {
	t.issues.Upsert(issue)
	if defs := definitionsOf(issue); len(defs) > 0 {
		t.tags.MergeDefinitions(defs...)
	}
}

func definitionsOf(issues ...model.Issue) []model.TagDefinition {
	var defs []model.TagDefinition
	for _, issue := range issues {
		for _, ref := range issue.Tags {
			defs = append(defs, ref.Definition())
		}
	}
	return defs
}

// Refresh reloads every issue, replacing the cache, and merges the tags seen
// on them into the catalog. Only one Refresh runs at a time.
func (t *Tracker) Refresh(ctx context.Context) error {
	if !t.guard.TryAcquire(concurrency.KeyRefreshIssues) {
		return ErrRefreshInFlight
	}
	defer t.guard.Release(concurrency.KeyRefreshIssues)

	raws, err := t.transport.FetchIssues(ctx)
	if err != nil {
		return fmt.Errorf("fetch issues: %w", err)
	}
	issues := t.mapper.Issues(raws)
	defs := definitionsOf(issues...)

	if err := t.apply(ctx, func() {
		t.issues.ReplaceAll(issues)
		t.tags.MergeDefinitions(defs...)
	}); err != nil {
		return err
	}
	log.Printf("[Tracker] Loaded %d issue(s), %d cached", len(issues), len(t.issues.State().Issues))
	return nil
}

// RefreshTags merges the backend's tag catalog into the cache.
func (t *Tracker) RefreshTags(ctx context.Context) error {
	if !t.guard.TryAcquire(concurrency.KeyRefreshTags) {
		return ErrRefreshInFlight
	}
	defer t.guard.Release(concurrency.KeyRefreshTags)

	raws, err := t.transport.FetchTagDefinitions(ctx)
	if err != nil {
		return fmt.Errorf("fetch tags: %w", err)
	}
	defs := t.mapper.Definitions(raws)
	return t.apply(ctx, func() {
		t.tags.MergeDefinitions(defs...)
	})
}

// LoadIssue returns the cached issue, fetching and caching it when missing.
func (t *Tracker) LoadIssue(ctx context.Context, id any) (model.Issue, error) {
	target := identity.Normalize(id)
	if !target.Valid() {
		return model.Issue{}, transport.ErrMissingID
	}
	if issue, ok := t.issues.Lookup(target); ok {
		return issue, nil
	}

	raw, err := t.transport.FetchIssueByID(ctx, target)
	if err != nil {
		return model.Issue{}, fmt.Errorf("fetch issue %s: %w", target.Display(), err)
	}
	issue := t.mapper.Issue(raw)
	if err := t.apply(ctx, func() { t.upsertIssue(issue) }); err != nil {
		return model.Issue{}, err
	}
	if cached, ok := t.issues.Lookup(issue); ok {
		return cached, nil
	}
	return issue, nil
}

// CreateIssue creates an issue on the backend and caches the result.
func (t *Tracker) CreateIssue(ctx context.Context, req transport.NewIssue) (model.Issue, error) {
	raw, err := t.transport.CreateIssue(ctx, req)
	if err != nil {
		return model.Issue{}, fmt.Errorf("create issue: %w", err)
	}
	issue := t.mapper.Issue(raw)
	if _, ok := dto.Pick(raw, "title"); !ok {
		issue.Title = req.Title
	}
	if _, ok := dto.Pick(raw, "description"); !ok {
		issue.Description = req.Description
	}
	if !issue.Identity().Valid() {
		log.Printf("[Tracker] Created issue %q has no id; not cached", req.Title)
		return issue, nil
	}
	if err := t.apply(ctx, func() { t.upsertIssue(issue) }); err != nil {
		return model.Issue{}, err
	}
	cached, _ := t.issues.Lookup(issue)
	return cached, nil
}

// UpdateIssue patches issue fields on the backend, then applies the same
// edit to the cached copy.
func (t *Tracker) UpdateIssue(ctx context.Context, id any, patch transport.IssuePatch) (model.Issue, error) {
	target := identity.Normalize(id)
	if err := t.transport.PatchIssueFields(ctx, target, patch); err != nil {
		return model.Issue{}, fmt.Errorf("update issue %s: %w", target.Display(), err)
	}
	if err := t.apply(ctx, func() {
		t.patchCached(target, func(issue *model.Issue) { *issue = patch.Apply(*issue) })
	}); err != nil {
		return model.Issue{}, err
	}
	issue, _ := t.issues.Lookup(target)
	return issue, nil
}

// DeleteIssue deletes the issue on the backend and drops it from the cache.
func (t *Tracker) DeleteIssue(ctx context.Context, id any) error {
	target := identity.Normalize(id)
	if err := t.transport.DeleteIssue(ctx, target); err != nil {
		return fmt.Errorf("delete issue %s: %w", target.Display(), err)
	}
	return t.apply(ctx, func() { t.issues.Remove(target) })
}

// AddTag attaches a tag to an issue. The issue's tags as reported by the
// backend replace the cached ones and are merged into the catalog.
func (t *Tracker) AddTag(ctx context.Context, id any, tag transport.TagInput) ([]model.TagRef, error) {
	target := identity.Normalize(id)
	raws, err := t.transport.AddTagToIssue(ctx, target, tag)
	if err != nil {
		return nil, fmt.Errorf("add tag to %s: %w", target.Display(), err)
	}
	refs := t.mapper.Tags(raws)
	defs := definitionsOf(model.Issue{Tags: refs})

	if err := t.apply(ctx, func() {
		t.patchCached(target, func(issue *model.Issue) { issue.Tags = refs })
		t.tags.MergeDefinitions(defs...)
	}); err != nil {
		return nil, err
	}
	return refs, nil
}

// RemoveTag detaches a tag, by label, from an issue.
func (t *Tracker) RemoveTag(ctx context.Context, id any, label string) error {
	target := identity.Normalize(id)
	if err := t.transport.RemoveTagFromIssue(ctx, target, label); err != nil {
		return fmt.Errorf("remove tag from %s: %w", target.Display(), err)
	}
	label = strings.TrimSpace(label)
	return t.apply(ctx, func() {
		t.patchCached(target, func(issue *model.Issue) {
			kept := make([]model.TagRef, 0, len(issue.Tags))
			for _, ref := range issue.Tags {
				if !strings.EqualFold(ref.Label, label) {
					kept = append(kept, ref)
				}
			}
			issue.Tags = kept
		})
	})
}

// UpdateTag renames or recolors a tag definition. The change reaches every
// cached issue through reconciliation.
func (t *Tracker) UpdateTag(ctx context.Context, tagID any, patch transport.TagPatch) (model.TagDefinition, error) {
	target := identity.Normalize(tagID)
	raw, err := t.transport.UpdateTagDefinition(ctx, target, patch)
	if err != nil {
		return model.TagDefinition{}, fmt.Errorf("update tag %s: %w", target.String(), err)
	}
	def := t.mapper.Definition(raw)
	if !def.ID.Valid() {
		def.ID = target
	}
	if err := t.apply(ctx, func() { t.tags.Upsert(def) }); err != nil {
		return model.TagDefinition{}, err
	}
	if stored, ok := t.tags.Index().ByID[def.ID]; ok {
		return stored, nil
	}
	return def.Normalized(), nil
}

// DeleteTag deletes a tag definition. References to it disappear from cached
// issues through reconciliation.
func (t *Tracker) DeleteTag(ctx context.Context, tagID any) error {
	target := identity.Normalize(tagID)
	if err := t.transport.DeleteTagDefinition(ctx, target); err != nil {
		return fmt.Errorf("delete tag %s: %w", target.String(), err)
	}
	return t.apply(ctx, func() { t.tags.RemoveDefinition(target) })
}

// Assign assigns an issue to user.
func (t *Tracker) Assign(ctx context.Context, id any, user string) (model.Issue, error) {
	target := identity.Normalize(id)
	raw, err := t.transport.AssignIssue(ctx, target, user)
	if err != nil {
		return model.Issue{}, fmt.Errorf("assign %s: %w", target.Display(), err)
	}
	assignee := strings.TrimSpace(user)
	return t.applyAssignment(ctx, target, raw, assignee)
}

// Unassign clears an issue's assignee.
func (t *Tracker) Unassign(ctx context.Context, id any) (model.Issue, error) {
	target := identity.Normalize(id)
	raw, err := t.transport.UnassignIssue(ctx, target)
	if err != nil {
		return model.Issue{}, fmt.Errorf("unassign %s: %w", target.Display(), err)
	}
	return t.applyAssignment(ctx, target, raw, "")
}

// applyAssignment merges the backend's copy of the issue when it returned
// one, and otherwise sets the assignee on the cached copy.
func (t *Tracker) applyAssignment(ctx context.Context, target identity.ID, raw dto.Raw, assignee string) (model.Issue, error) {
	err := t.apply(ctx, func() {
		if issue := t.mapper.Issue(raw); issue.Identity() == target {
			issue.AssignedTo = assignee
			t.upsertIssue(issue)
			return
		}
		t.patchCached(target, func(issue *model.Issue) { issue.AssignedTo = assignee })
	})
	if err != nil {
		return model.Issue{}, err
	}
	issue, _ := t.issues.Lookup(target)
	return issue, nil
}

// LinkMilestone adds an issue to a milestone.
func (t *Tracker) LinkMilestone(ctx context.Context, milestoneID, id any) (model.Milestone, error) {
	ms, target := identity.Normalize(milestoneID), identity.Normalize(id)
	raw, err := t.transport.LinkMilestone(ctx, ms, target)
	if err != nil {
		return model.Milestone{}, fmt.Errorf("link %s to milestone %s: %w", target.Display(), ms.String(), err)
	}
	milestone := t.mapper.Milestone(raw)
	if err := t.apply(ctx, func() {
		t.patchCached(target, func(issue *model.Issue) { issue.Milestone = milestone.Name })
	}); err != nil {
		return model.Milestone{}, err
	}
	return milestone, nil
}

// UnlinkMilestone removes an issue from a milestone.
func (t *Tracker) UnlinkMilestone(ctx context.Context, milestoneID, id any) error {
	ms, target := identity.Normalize(milestoneID), identity.Normalize(id)
	if err := t.transport.UnlinkMilestone(ctx, ms, target); err != nil {
		return fmt.Errorf("unlink %s from milestone %s: %w", target.Display(), ms.String(), err)
	}
	return t.apply(ctx, func() {
		t.patchCached(target, func(issue *model.Issue) { issue.Milestone = "" })
	})
}

// LoadComments fetches an issue's comments and stores them on the cached
// copy.
func (t *Tracker) LoadComments(ctx context.Context, id any) ([]model.Comment, error) {
	target := identity.Normalize(id)
	if !target.Valid() {
		return nil, transport.ErrMissingID
	}
	raws, err := t.transport.FetchComments(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("fetch comments for %s: %w", target.Display(), err)
	}
	comments := t.mapper.Comments(raws)
	if err := t.apply(ctx, func() {
		t.patchCached(target, func(issue *model.Issue) { issue.Comments = slices.Clone(comments) })
	}); err != nil {
		return nil, err
	}
	return comments, nil
}

// AddComment comments on an issue. The comment is appended to the cached
// copy only when its comments were already loaded.
func (t *Tracker) AddComment(ctx context.Context, id any, comment transport.NewComment) (model.Comment, error) {
	target := identity.Normalize(id)
	raw, err := t.transport.CreateComment(ctx, target, comment)
	if err != nil {
		return model.Comment{}, fmt.Errorf("comment on %s: %w", target.Display(), err)
	}
	created := t.mapper.Comment(raw)
	if _, ok := dto.Pick(raw, dto.CommentTextFields...); !ok {
		created.Text = strings.TrimSpace(comment.Text)
	}
	if err := t.apply(ctx, func() {
		t.patchCached(target, func(issue *model.Issue) {
			if issue.Comments != nil {
				issue.Comments = append(issue.Comments, created)
			}
		})
	}); err != nil {
		return model.Comment{}, err
	}
	return created, nil
}

// EditComment replaces a comment's text.
func (t *Tracker) EditComment(ctx context.Context, id, commentID any, text string) error {
	target, cid := identity.Normalize(id), identity.Normalize(commentID)
	if err := t.transport.UpdateComment(ctx, target, cid, text); err != nil {
		return fmt.Errorf("edit comment %s on %s: %w", cid.String(), target.Display(), err)
	}
	text = strings.TrimSpace(text)
	return t.apply(ctx, func() {
		t.patchCached(target, func(issue *model.Issue) {
			for i := range issue.Comments {
				if issue.Comments[i].ID == cid {
					issue.Comments[i].Text = text
				}
			}
		})
	})
}

// DeleteComment removes a comment.
func (t *Tracker) DeleteComment(ctx context.Context, id, commentID any) error {
	target, cid := identity.Normalize(id), identity.Normalize(commentID)
	if err := t.transport.DeleteComment(ctx, target, cid); err != nil {
		return fmt.Errorf("delete comment %s on %s: %w", cid.String(), target.Display(), err)
	}
	return t.apply(ctx, func() {
		t.patchCached(target, func(issue *model.Issue) {
			if issue.Comments == nil {
				return
			}
			kept := make([]model.Comment, 0, len(issue.Comments))
			for _, c := range issue.Comments {
				if c.ID != cid {
					kept = append(kept, c)
				}
			}
			issue.Comments = kept
		})
	})
}
