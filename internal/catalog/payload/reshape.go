// Package payload turns flat form submissions into entry-creation payloads
package payload

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/VForWaTer/metacatalog-api/internal/catalog"
)

// MaxListIndex is the largest 1-based list index a form key may address
const MaxListIndex = 1000

// indexPattern matches path segments that address a list slot
var indexPattern = regexp.MustCompile(`^-?[0-9]+$`)

type nodeKind int

const (
	objectNode nodeKind = iota
	listNode
	leafNode
)

func (k nodeKind) String() string {
	switch k {
	case objectNode:
		return "object"
	case listNode:
		return "list"
	default:
		return "value"
	}
}

// node is the intermediate tree built while reshaping
type node struct {
	kind     nodeKind
	fields   map[string]*node
	slots    []*node
	elemKind nodeKind
	hasElem  bool
	value    string
	set      bool
}

func newNode(kind nodeKind) *node {
	n := &node{kind: kind}
	if kind == objectNode {
		n.fields = make(map[string]*node)
	}
	return n
}

// Reshape converts a flat map with dot-separated keys into a nested structure.
//
// A segment is a 1-based list index when the segment before it names a list,
// which is the case whenever a key's immediate child segment is digit-shaped:
// "authors.1.first_name" yields {"authors": [{"first_name": ...}]}. Missing
// indices are backfilled with empty objects (object lists) or nil (value lists).
// Index 0, negative indices and indices above MaxListIndex are rejected.
func Reshape(flat map[string]string) (map[string]any, error) {
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	root := newNode(objectNode)
	for _, key := range keys {
		if err := root.insert(key, flat[key]); err != nil {
			return nil, err
		}
	}

	return root.materialize().(map[string]any), nil
}

func (n *node) insert(key, value string) error {
	parts := strings.Split(key, ".")
	for _, part := range parts {
		if part == "" {
			return catalog.NewValidationError(key, "empty path segment")
		}
	}

	cur := n
	for i, part := range parts {
		kind := leafNode
		if i+1 < len(parts) {
			kind = objectNode
			if indexPattern.MatchString(parts[i+1]) {
				kind = listNode
			}
		}

		var (
			child *node
			err   error
		)
		if cur.kind == listNode {
			child, err = cur.slot(key, part, kind)
		} else {
			child, err = cur.field(key, part, kind)
		}
		if err != nil {
			return err
		}

		if kind == leafNode {
			if child.set {
				return catalog.NewValidationError(key, "duplicate path")
			}
			child.value = value
			child.set = true
		}
		cur = child
	}

	return nil
}

// field returns the named child of an object node, creating it if needed
func (n *node) field(key, name string, kind nodeKind) (*node, error) {
	child, ok := n.fields[name]
	if !ok {
		child = newNode(kind)
		n.fields[name] = child
		return child, nil
	}
	if child.kind != kind {
		return nil, catalog.NewValidationError(key, "%q is used as both %s and %s", name, child.kind, kind)
	}
	return child, nil
}

// slot returns the child at a 1-based index of a list node, growing the list as needed
func (n *node) slot(key, segment string, kind nodeKind) (*node, error) {
	idx, err := strconv.Atoi(segment)
	if err != nil {
		return nil, catalog.NewValidationError(key, "invalid list index %q", segment)
	}
	if idx <= 0 {
		return nil, catalog.NewValidationError(key, "list index must be 1 or greater, got %d", idx)
	}
	if idx > MaxListIndex {
		return nil, catalog.NewValidationError(key, "list index %d exceeds %d", idx, MaxListIndex)
	}

	if n.hasElem && n.elemKind != kind {
		return nil, catalog.NewValidationError(key, "list mixes %s and %s elements", n.elemKind, kind)
	}
	n.elemKind = kind
	n.hasElem = true

	for len(n.slots) < idx {
		n.slots = append(n.slots, nil)
	}
	if n.slots[idx-1] == nil {
		n.slots[idx-1] = newNode(kind)
	}
	return n.slots[idx-1], nil
}

// materialize converts the tree into maps, slices and strings
func (n *node) materialize() any {
	switch n.kind {
	case objectNode:
		out := make(map[string]any, len(n.fields))
		for name, child := range n.fields {
			out[name] = child.materialize()
		}
		return out
	case listNode:
		out := make([]any, len(n.slots))
		for i, child := range n.slots {
			if child != nil {
				out[i] = child.materialize()
				continue
			}
			switch n.elemKind {
			case objectNode:
				out[i] = map[string]any{}
			case listNode:
				out[i] = []any{}
			default:
				out[i] = nil
			}
		}
		return out
	default:
		return n.value
	}
}
