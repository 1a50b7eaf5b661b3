package backend

import (
	"encoding/json"
	"sort"
	"strconv"
)

// NodeKind tags a catalog Node.
type NodeKind int

const (
	KindLeaf NodeKind = iota
	KindMap
	KindList
)

// Node is a decoded model catalog. Servers disagree on the catalog shape, so
// it is kept as a tree and searched for model names.
type Node struct {
	Kind   NodeKind
	Fields map[string]Node // KindMap
	Items  []Node          // KindList
	Value  string          // KindLeaf
	// IsString is set when the leaf came from a JSON string.
	IsString bool
}

// Leaf builds a string leaf.
func Leaf(s string) Node { return Node{Kind: KindLeaf, Value: s, IsString: true} }

// DecodeCatalog parses a JSON catalog body.
func DecodeCatalog(b []byte) (Node, error) {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return Node{}, err
	}
	return FromValue(v), nil
}

// FromValue converts a generic decoded JSON value into a Node.
func FromValue(v any) Node {
	switch t := v.(type) {
	case map[string]any:
		n := Node{Kind: KindMap, Fields: make(map[string]Node, len(t))}
		for k, c := range t {
			n.Fields[k] = FromValue(c)
		}
		return n
	case []any:
		n := Node{Kind: KindList, Items: make([]Node, 0, len(t))}
		for _, c := range t {
			n.Items = append(n.Items, FromValue(c))
		}
		return n
	case string:
		return Leaf(t)
	case float64:
		return Node{Kind: KindLeaf, Value: strconv.FormatFloat(t, 'f', -1, 64)}
	case bool:
		return Node{Kind: KindLeaf, Value: strconv.FormatBool(t)}
	default:
		return Node{Kind: KindLeaf}
	}
}

// Keys returns map keys in sorted order.
func (n Node) Keys() []string {
	keys := make([]string, 0, len(n.Fields))
	for k := range n.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ModelList builds a catalog of the form {"models":[{"name":...}]}.
func ModelList(names ...string) Node {
	items := make([]Node, 0, len(names))
	for _, n := range names {
		items = append(items, Node{Kind: KindMap, Fields: map[string]Node{"name": Leaf(n)}})
	}
	return Node{Kind: KindMap, Fields: map[string]Node{"models": {Kind: KindList, Items: items}}}
}
