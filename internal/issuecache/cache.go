// Package issuecache keeps the deduplicated, id-keyed list of issues that the
// views render. Every mutation replaces the whole list through the backing
// observable store, so each call notifies subscribers exactly once and
// published snapshots are never modified afterwards.
package issuecache

import (
	"github.com/cexll/issuedesk/internal/identity"
	"github.com/cexll/issuedesk/internal/merge"
	"github.com/cexll/issuedesk/internal/model"
	"github.com/cexll/issuedesk/internal/observable"
)

// State is an immutable snapshot of the cache.
type State struct {
	Issues []model.Issue `json:"issues"`
}

// Cache is the issue collection. Writes must come from one goroutine at a
// time; reads are safe from anywhere.
type Cache struct {
	store *observable.Store[State]
}

// New creates an empty cache.
func New(opts ...observable.Option) *Cache {
	opts = append([]observable.Option{observable.WithName("issues")}, opts...)
	return &Cache{store: observable.New(State{Issues: []model.Issue{}}, opts...)}
}

// State returns the current snapshot. Callers must treat it as read-only.
func (c *Cache) State() State {
	return c.store.Get()
}

// Subscribe registers fn for change notifications.
func (c *Cache) Subscribe(fn func(State)) func() {
	return c.store.Subscribe(fn)
}

// Lookup returns the cached issue whose identity matches id.
func (c *Cache) Lookup(id any) (model.Issue, bool) {
	target := identity.Normalize(id)
	if !target.Valid() {
		return model.Issue{}, false
	}
	for _, issue := range c.store.Get().Issues {
		if issue.Identity() == target {
			return issue.Clone(), true
		}
	}
	return model.Issue{}, false
}

// ReplaceAll rebuilds the cache from issues. Duplicates by identity are merged
// in input order (later wins, without placeholder regression). Issues without
// an identity are appended after the identified ones when they carry real
// data, and dropped otherwise.
func (c *Cache) ReplaceAll(issues []model.Issue) {
	c.store.Update(func(State) State {
		return State{Issues: build(issues)}
	})
}

func build(issues []model.Issue) []model.Issue {
	order := make([]identity.ID, 0, len(issues))
	byID := make(map[identity.ID]model.Issue, len(issues))
	var noID []model.Issue

	for _, issue := range issues {
		normalized := issue.Normalized()
		key := normalized.RawID
		if !key.Valid() {
			if normalized.HasSubstance() {
				noID = append(noID, normalized)
			}
			continue
		}
		existing, ok := byID[key]
		if !ok {
			order = append(order, key)
			byID[key] = normalized
			continue
		}
		byID[key] = merge.Issue(&existing, normalized)
	}

	out := make([]model.Issue, 0, len(order)+len(noID))
	for _, key := range order {
		out = append(out, byID[key])
	}
	return append(out, noID...)
}

// Upsert merges issue into the cache. An issue without an identity is ignored
// and no notification is sent. An existing entry is merged in place; a new
// one is inserted at the front.
func (c *Cache) Upsert(issue model.Issue) {
	target := issue.Identity()
	if !target.Valid() {
		return
	}
	c.store.Update(func(s State) State {
		next := make([]model.Issue, 0, len(s.Issues)+1)
		for i, current := range s.Issues {
			if current.Identity() == target {
				next = append(next, s.Issues[:i]...)
				next = append(next, merge.Issue(&current, issue))
				next = append(next, s.Issues[i+1:]...)
				return State{Issues: next}
			}
		}
		next = append(next, merge.Issue(nil, issue))
		next = append(next, s.Issues...)
		return State{Issues: next}
	})
}

// Remove drops every entry whose identity equals id. Removing an unknown id
// leaves the list unchanged but still notifies.
func (c *Cache) Remove(id any) {
	target := identity.Normalize(id)
	c.store.Update(func(s State) State {
		next := make([]model.Issue, 0, len(s.Issues))
		for _, issue := range s.Issues {
			if target.Valid() && issue.Identity() == target {
				continue
			}
			next = append(next, issue)
		}
		return State{Issues: next}
	})
}

// MapAll replaces every entry with fn(entry). fn receives a private copy.
func (c *Cache) MapAll(fn func(model.Issue) model.Issue) {
	c.store.Update(func(s State) State {
		next := make([]model.Issue, 0, len(s.Issues))
		for _, issue := range s.Issues {
			next = append(next, fn(issue.Clone()))
		}
		return State{Issues: next}
	})
}
