package qs

import (
	"sort"
	"strconv"
)

// node is an object under construction; keys keep first-seen order
type node struct {
	keys   []string
	fields map[string]any
	root   bool

	// next is one past the highest integer key seen
	next int
	// appended marks keys created by an empty "[]" segment
	appended map[string]bool
}

// list holds values collected under one key, either by repetition or because a
// scalar and a nested object collided
type list struct {
	items []any
}

func newNode() *node {
	return &node{fields: make(map[string]any)}
}

// Expand turns flat bracketed pairs into nested mappings and arrays. Pairs are
// applied in order, so repeated keys keep their arrival order.
func Expand(pairs []Pair) map[string]any {
	root := newNode()
	root.root = true
	for _, pair := range pairs {
		root.insert(SplitKey(pair.Key), pair.Value)
	}

	out := make(map[string]any, len(root.keys))
	for _, key := range root.keys {
		out[key] = resolve(root.fields[key])
	}
	return out
}

func (n *node) insert(segments []string, value any) {
	key := segments[0]
	if key == "" && !n.root {
		key = strconv.Itoa(n.next)
		if n.appended == nil {
			n.appended = make(map[string]bool)
		}
		n.appended[key] = true
	}

	existing, ok := n.fields[key]
	if !ok {
		n.keys = append(n.keys, key)
		if i, err := strconv.Atoi(key); err == nil && i >= n.next {
			n.next = i + 1
		}
	}

	if len(segments) == 1 {
		n.fields[key] = combine(existing, ok, value)
		return
	}

	n.fields[key] = descend(existing, ok, segments[1:], value)
}

func combine(existing any, ok bool, value any) any {
	if !ok {
		return value
	}
	if l, isList := existing.(*list); isList {
		l.items = append(l.items, value)
		return l
	}
	return &list{items: []any{existing, value}}
}

func descend(existing any, ok bool, segments []string, value any) any {
	if !ok {
		child := newNode()
		child.insert(segments, value)
		return child
	}

	switch e := existing.(type) {
	case *node:
		e.insert(segments, value)
		return e
	case *list:
		if last, isNode := e.items[len(e.items)-1].(*node); isNode {
			last.insert(segments, value)
			return e
		}
		child := newNode()
		child.insert(segments, value)
		e.items = append(e.items, child)
		return e
	default:
		child := newNode()
		child.insert(segments, value)
		return &list{items: []any{existing, child}}
	}
}

func resolve(v any) any {
	switch t := v.(type) {
	case *node:
		return t.resolve()
	case *list:
		items := make([]any, len(t.items))
		for i, item := range t.items {
			items[i] = resolve(item)
		}
		return items
	default:
		return v
	}
}

// resolve turns nodes whose keys are all indices into compacted arrays. The
// array limit applies to explicit indices only; appended keys always qualify.
func (n *node) resolve() any {
	indices := make([]int, 0, len(n.keys))
	for _, key := range n.keys {
		i, err := strconv.Atoi(key)
		if err != nil || i < 0 || (i > ArrayLimit && !n.appended[key]) || strconv.Itoa(i) != key {
			indices = nil
			break
		}
		indices = append(indices, i)
	}

	if indices != nil && len(indices) == len(n.keys) && len(n.keys) > 0 {
		sort.Ints(indices)
		items := make([]any, len(indices))
		for pos, i := range indices {
			items[pos] = resolve(n.fields[strconv.Itoa(i)])
		}
		return items
	}

	out := make(map[string]any, len(n.keys))
	for _, key := range n.keys {
		out[key] = resolve(n.fields[key])
	}
	return out
}
