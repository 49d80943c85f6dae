package dto

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Raw is an undecoded entity payload as the transport received it.
type Raw = map[string]any

// Alias sets: the accepted field names for each logical field, in priority
// order.
var (
	IDFields          = []string{"id"}
	AuthorFields      = []string{"author", "authorId", "author_id"}
	CreatedAtFields   = []string{"createdAt", "created_at"}
	AssignedToFields  = []string{"assignedTo", "assigned_to"}
	MilestoneFields   = []string{"milestone", "milestoneName", "milestone_title"}
	DatabaseFields    = []string{"database", "db"}
	StatusFields      = []string{"status"}
	CommentIDFields   = []string{"id", "commentId", "comment_id"}
	CommentDateFields = []string{"timestamp", "date"}
	CommentTextFields = []string{"text", "body"}
	TagLabelFields    = []string{"tag", "label"}
	DefinitionFields  = []string{"label", "tag"}
)

// Pick returns the first alias present in raw with a non-nil value.
func Pick(raw Raw, aliases ...string) (any, bool) {
	if raw == nil {
		return nil, false
	}
	for _, key := range aliases {
		if v, ok := raw[key]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// PickString is Pick followed by String. Blank values fall through to the
// next alias.
func PickString(raw Raw, aliases ...string) string {
	for _, key := range aliases {
		v, ok := Pick(raw, key)
		if !ok {
			continue
		}
		if s := String(v); s != "" {
			return s
		}
	}
	return ""
}

// String renders scalar payload values as trimmed text. Objects yield their
// "name", "title" or "login" field, in that order.
func String(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case map[string]any:
		return PickString(x, "name", "title", "login")
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}

// Number converts numeric payload values (including numeric strings) to
// float64.
func Number(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// List returns v as a slice of objects, skipping non-object entries. ok is
// false when v is not an array at all.
func List(v any) (out []Raw, ok bool) {
	items, isList := v.([]any)
	if !isList {
		if typed, isTyped := v.([]Raw); isTyped {
			return typed, true
		}
		return nil, false
	}
	out = make([]Raw, 0, len(items))
	for _, item := range items {
		if obj, isObj := item.(map[string]any); isObj {
			out = append(out, obj)
		}
	}
	return out, true
}
