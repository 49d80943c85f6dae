// Package tagcache keeps the global tag catalog. Definitions are keyed by id
// when the backend has assigned one and by lowercase label otherwise.
//
// The two key spaces are independent: a tag first reported by label only and
// later reported with its id is held under both keys until the label-keyed
// entry is replaced or the catalog is reloaded. Consumers resolving tags must
// prefer id matches.
package tagcache

import (
	"strings"

	"github.com/cexll/issuedesk/internal/identity"
	"github.com/cexll/issuedesk/internal/merge"
	"github.com/cexll/issuedesk/internal/model"
	"github.com/cexll/issuedesk/internal/observable"
)

// State is an immutable snapshot of the catalog.
type State struct {
	Definitions []model.TagDefinition `json:"definitions"`
}

// Key is the identity key of a definition.
type Key struct {
	ID   identity.ID
	Name string
}

// KeyOf returns the id key when def has an id, else the lowercase label key.
func KeyOf(def model.TagDefinition) Key {
	if def.ID.Valid() {
		return Key{ID: def.ID}
	}
	return Key{Name: strings.ToLower(strings.TrimSpace(def.Label))}
}

// Index holds lookup tables built from one snapshot.
type Index struct {
	ByID   map[identity.ID]model.TagDefinition
	ByName map[string]model.TagDefinition
}

// Cache is the tag catalog. Writes must come from one goroutine at a time.
type Cache struct {
	store *observable.Store[State]
}

// New creates an empty catalog.
func New(opts ...observable.Option) *Cache {
	opts = append([]observable.Option{observable.WithName("tags")}, opts...)
	return &Cache{store: observable.New(State{Definitions: []model.TagDefinition{}}, opts...)}
}

// State returns the current snapshot.
func (c *Cache) State() State {
	return c.store.Get()
}

// Subscribe registers fn for change notifications.
func (c *Cache) Subscribe(fn func(State)) func() {
	return c.store.Subscribe(fn)
}

// MergeDefinitions overlays defs onto the catalog by identity key and replaces
// it. Definitions carrying neither id nor label are skipped.
func (c *Cache) MergeDefinitions(defs ...model.TagDefinition) {
	c.store.Update(func(s State) State {
		order := make([]Key, 0, len(s.Definitions)+len(defs))
		byKey := make(map[Key]model.TagDefinition, len(s.Definitions)+len(defs))
		put := func(def model.TagDefinition) {
			key := KeyOf(def)
			if !key.ID.Valid() && key.Name == "" {
				return
			}
			existing, ok := byKey[key]
			if !ok {
				order = append(order, key)
				byKey[key] = merge.Definition(nil, def)
				return
			}
			byKey[key] = merge.Definition(&existing, def)
		}

		for _, def := range s.Definitions {
			put(def)
		}
		for _, def := range defs {
			put(def)
		}

		out := make([]model.TagDefinition, 0, len(order))
		for _, key := range order {
			out = append(out, byKey[key])
		}
		return State{Definitions: out}
	})
}

// Upsert merges a single definition.
func (c *Cache) Upsert(def model.TagDefinition) {
	c.MergeDefinitions(def)
}

// RemoveDefinition drops definitions whose id equals id. Label-keyed entries
// without an id are left alone.
func (c *Cache) RemoveDefinition(id any) {
	target := identity.Normalize(id)
	c.store.Update(func(s State) State {
		out := make([]model.TagDefinition, 0, len(s.Definitions))
		for _, def := range s.Definitions {
			if target.Valid() && def.ID == target {
				continue
			}
			out = append(out, def)
		}
		return State{Definitions: out}
	})
}

// Index builds lookup tables for the current snapshot.
func (c *Cache) Index() Index {
	return IndexOf(c.State())
}

// IndexOf builds lookup tables for s. When several definitions share a label
// the last one wins the label slot.
func IndexOf(s State) Index {
	idx := Index{
		ByID:   make(map[identity.ID]model.TagDefinition, len(s.Definitions)),
		ByName: make(map[string]model.TagDefinition, len(s.Definitions)),
	}
	for _, def := range s.Definitions {
		if def.ID.Valid() {
			idx.ByID[def.ID] = def
		}
		if def.Label != "" {
			idx.ByName[strings.ToLower(def.Label)] = def
		}
	}
	return idx
}
