package ld

import (
	"encoding/json"
	"strconv"
)

// Node is one expanded JSON-LD node object. Keys are absolute IRIs and each
// value is an array of value objects, node references or list objects.
//
// Accessors read the first entry only, so a document written in compact or
// expanded form yields the same answers once it has been through expansion.
type Node map[string]any

// Has reports whether key is present with at least one entry.
func (n Node) Has(key string) bool {
	_, ok := n.first(key)
	return ok
}

// Self returns the node's own @id, or "" for blank nodes.
func (n Node) Self() string {
	id, _ := n["@id"].(string)
	return id
}

// Value returns the @value of the first entry under key.
func (n Node) Value(key string) (any, bool) {
	entry, ok := n.first(key)
	if !ok {
		return nil, false
	}
	v, ok := entry["@value"]
	return v, ok
}

// String returns the first @value under key formatted as a string.
func (n Node) String(key string) (string, bool) {
	v, ok := n.Value(key)
	if !ok {
		return "", false
	}
	return FormatValue(v), true
}

// ID returns the @id of the first entry under key.
func (n Node) ID(key string) (string, bool) {
	entry, ok := n.first(key)
	if !ok {
		return "", false
	}
	id, ok := entry["@id"].(string)
	return id, ok && id != ""
}

// Embedded returns the first entry under key as a node when it carries
// properties of its own rather than being a bare reference.
func (n Node) Embedded(key string) (Node, bool) {
	entry, ok := n.first(key)
	if !ok {
		return nil, false
	}
	for k := range entry {
		if k != "@id" && k != "@type" && k != "@value" && k != "@list" && k != "@language" {
			return Node(entry), true
		}
	}
	return nil, false
}

// List returns the members of the first @list under key. Members that are
// not objects (which expansion never produces) are skipped.
func (n Node) List(key string) ([]Node, bool) {
	entry, ok := n.first(key)
	if !ok {
		return nil, false
	}
	raw, ok := entry["@list"].([]any)
	if !ok {
		return nil, false
	}
	items := make([]Node, 0, len(raw))
	for _, item := range raw {
		if m, ok := item.(map[string]any); ok {
			items = append(items, Node(m))
		}
	}
	return items, true
}

// ListIDs returns the @id of every member of the first @list under key,
// skipping members without one.
func (n Node) ListIDs(key string) ([]string, bool) {
	items, ok := n.List(key)
	if !ok {
		return nil, false
	}
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if id := item.Self(); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, true
}

// Raw returns the bare value of a list member such as {"@value": 3}.
func (n Node) Raw() (any, bool) {
	v, ok := n["@value"]
	return v, ok
}

func (n Node) first(key string) (map[string]any, bool) {
	if n == nil {
		return nil, false
	}
	switch v := n[key].(type) {
	case []any:
		if len(v) == 0 {
			return nil, false
		}
		m, ok := v[0].(map[string]any)
		return m, ok
	case map[string]any:
		return v, true
	default:
		return nil, false
	}
}

// FormatValue renders a JSON-LD literal the way it is shown to a user.
// Whole numbers print without a fractional part.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// EqualValues reports whether two response values denote the same literal.
// Numbers of different Go types compare by value, but a string never equals
// a number or a bool, so "1" and 1 are different answers.
func EqualValues(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if x, ok := number(a); ok {
		y, ok := number(b)
		return ok && x == y
	}
	if _, ok := number(b); ok {
		return false
	}
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		return ok && x == y
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	}
	switch b.(type) {
	case string, bool:
		return false
	}
	return FormatValue(a) == FormatValue(b)
}

func number(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
