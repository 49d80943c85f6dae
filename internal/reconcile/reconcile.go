// Package reconcile keeps the tag references embedded in cached issues in
// line with the tag catalog.
package reconcile

import (
	"slices"
	"strings"

	"github.com/cexll/issuedesk/internal/issuecache"
	"github.com/cexll/issuedesk/internal/model"
	"github.com/cexll/issuedesk/internal/tagcache"
)

// Reconciler rewrites issue tag references from the tag catalog.
type Reconciler struct {
	issues *issuecache.Cache
	tags   *tagcache.Cache
}

// New creates a reconciler over the two caches. Call Attach to start
// following catalog changes.
func New(issues *issuecache.Cache, tags *tagcache.Cache) *Reconciler {
	return &Reconciler{issues: issues, tags: tags}
}

// Attach runs Sync on every catalog change and returns the detach func.
func (r *Reconciler) Attach() func() {
	return r.tags.Subscribe(func(tagcache.State) {
		r.Sync()
	})
}

// Sync resolves every tag reference against the catalog. References with an
// id resolve by id and are dropped when the id is gone from the catalog;
// references without an id resolve by lowercase label and are kept unchanged
// when no definition matches. The issue cache is only written, and its
// subscribers only notified, when at least one reference changed. Sync
// reports whether it wrote.
func (r *Reconciler) Sync() bool {
	idx := r.tags.Index()
	current := r.issues.State().Issues

	changed := false
	for _, issue := range current {
		if _, ok := resolve(issue.Tags, idx); ok {
			changed = true
			break
		}
	}
	if !changed {
		return false
	}

	r.issues.MapAll(func(issue model.Issue) model.Issue {
		if tags, ok := resolve(issue.Tags, idx); ok {
			issue.Tags = tags
		}
		return issue
	})
	return true
}

// resolve returns the reconciled references and whether they differ from refs.
func resolve(refs []model.TagRef, idx tagcache.Index) ([]model.TagRef, bool) {
	if len(refs) == 0 {
		return refs, false
	}
	out := make([]model.TagRef, 0, len(refs))
	for _, ref := range refs {
		if ref.ID.Valid() {
			def, ok := idx.ByID[ref.ID]
			if !ok {
				continue
			}
			out = append(out, def.Ref())
			continue
		}
		if def, ok := idx.ByName[strings.ToLower(strings.TrimSpace(ref.Label))]; ok {
			out = append(out, def.Ref())
			continue
		}
		out = append(out, ref)
	}
	if slices.Equal(out, refs) {
		return refs, false
	}
	return out, true
}
