package tagcache

import (
	"testing"

	"github.com/cexll/issuedesk/internal/identity"
	"github.com/cexll/issuedesk/internal/model"
)

func TestCache_MergeDefinitionsByID(t *testing.T) {
	c := New()
	c.MergeDefinitions(
		model.TagDefinition{ID: identity.Int(1), Label: "bug", Color: "#f00"},
		model.TagDefinition{ID: identity.Int(2), Label: "ui"},
	)
	c.MergeDefinitions(model.TagDefinition{ID: identity.Int(1), Label: "defect"})

	defs := c.State().Definitions
	if len(defs) != 2 {
		t.Fatalf("len = %d, want 2: %+v", len(defs), defs)
	}
	if defs[0].Label != "defect" || defs[0].Color != "#f00" {
		t.Fatalf("defs[0] = %+v, want defect with kept color", defs[0])
	}
	if defs[1].Color != model.DefaultTagColor {
		t.Fatalf("defs[1] color = %q, want default", defs[1].Color)
	}
}

func TestCache_MergeDefinitionsByNameIsCaseInsensitive(t *testing.T) {
	c := New()
	c.MergeDefinitions(model.TagDefinition{Label: "Bug", Color: "#111"})
	c.MergeDefinitions(model.TagDefinition{Label: "bug", Color: "#222"})

	defs := c.State().Definitions
	if len(defs) != 1 || defs[0].Color != "#222" || defs[0].Label != "bug" {
		t.Fatalf("defs = %+v", defs)
	}
}

func TestCache_NameKeyAndIDKeyCoexist(t *testing.T) {
	c := New()
	c.MergeDefinitions(model.TagDefinition{Label: "bug"})
	c.MergeDefinitions(model.TagDefinition{ID: identity.Int(3), Label: "bug"})

	defs := c.State().Definitions
	if len(defs) != 2 {
		t.Fatalf("len = %d, want 2 (name key and id key): %+v", len(defs), defs)
	}
	if defs[0].ID.Valid() || defs[1].ID != identity.Int(3) {
		t.Fatalf("defs = %+v", defs)
	}
}

func TestCache_SkipsEmptyDefinitions(t *testing.T) {
	c := New()
	c.MergeDefinitions(model.TagDefinition{Color: "#000"}, model.TagDefinition{Label: "  "})
	if n := len(c.State().Definitions); n != 0 {
		t.Fatalf("len = %d, want 0", n)
	}
}

func TestCache_RemoveDefinition(t *testing.T) {
	c := New()
	c.MergeDefinitions(
		model.TagDefinition{ID: identity.Int(3), Label: "bug"},
		model.TagDefinition{Label: "bug"},
		model.TagDefinition{ID: identity.Int(4), Label: "ui"},
	)

	c.RemoveDefinition("3")

	defs := c.State().Definitions
	if len(defs) != 2 {
		t.Fatalf("len = %d, want 2: %+v", len(defs), defs)
	}
	for _, def := range defs {
		if def.ID == identity.Int(3) {
			t.Fatalf("definition 3 still present: %+v", defs)
		}
	}
	if defs[0].ID.Valid() || defs[0].Label != "bug" {
		t.Fatalf("name-keyed entry should survive id removal: %+v", defs)
	}
}

func TestCache_UpsertNotifiesOnce(t *testing.T) {
	c := New()
	n := 0
	c.Subscribe(func(State) { n++ })

	c.Upsert(model.TagDefinition{ID: identity.Int(1), Label: "bug"})

	if n != 1 {
		t.Fatalf("notifications = %d, want 1", n)
	}
}

func TestIndexOf(t *testing.T) {
	idx := IndexOf(State{Definitions: []model.TagDefinition{
		{ID: identity.Int(1), Label: "Bug"},
		{Label: "ui"},
	}})

	if _, ok := idx.ByID[identity.Int(1)]; !ok {
		t.Error("ByID should hold id 1")
	}
	if len(idx.ByID) != 1 {
		t.Errorf("ByID len = %d, want 1", len(idx.ByID))
	}
	if _, ok := idx.ByName["bug"]; !ok {
		t.Error("ByName should hold lowercased label")
	}
	if _, ok := idx.ByName["ui"]; !ok {
		t.Error("ByName should hold ui")
	}
}

func TestKeyOf(t *testing.T) {
	if got := KeyOf(model.TagDefinition{ID: identity.Int(2), Label: "x"}); got != (Key{ID: identity.Int(2)}) {
		t.Errorf("KeyOf with id = %+v", got)
	}
	if got := KeyOf(model.TagDefinition{Label: " Bug "}); got != (Key{Name: "bug"}) {
		t.Errorf("KeyOf without id = %+v", got)
	}
}
