// Package spantree assembles the merged spans of one trace into a tree. Nodes live in an arena
// owned by the Tree and are addressed by NodeID.
package spantree

import (
	"cmp"
	"errors"
	"slices"

	"gofr.dev/gofr-tracer/internal/model"
)

// NodeID addresses a node inside a Tree.
type NodeID int

// NoNode is the parent of the root.
const NoNode NodeID = -1

var (
	ErrEmptyTrace      = errors.New("trace was empty")
	ErrCycle           = errors.New("child would become its own ancestor")
	ErrAlreadyAttached = errors.New("child already has a parent")
)

type node struct {
	span     *model.Span
	parent   NodeID
	children []NodeID
}

// Tree is the span tree of a single trace. When no single root span was reported the root is a
// synthetic node without a span and the tree is headless.
type Tree struct {
	nodes []node
	root  NodeID
}

func (t *Tree) add(span *model.Span) NodeID {
	t.nodes = append(t.nodes, node{span: span, parent: NoNode})

	return NodeID(len(t.nodes) - 1)
}

func (t *Tree) valid(id NodeID) bool {
	return id >= 0 && int(id) < len(t.nodes)
}

func (t *Tree) Root() NodeID {
	return t.root
}

// Headless reports whether the root is synthetic.
func (t *Tree) Headless() bool {
	return t.nodes[t.root].span == nil
}

// Span returns the span of a node, or nil for the synthetic root. The span is owned by the tree and
// may be modified in place.
func (t *Tree) Span(id NodeID) *model.Span {
	if !t.valid(id) {
		return nil
	}

	return t.nodes[id].span
}

func (t *Tree) Parent(id NodeID) NodeID {
	if !t.valid(id) {
		return NoNode
	}

	return t.nodes[id].parent
}

// Children returns a copy of the ordered child list of a node.
func (t *Tree) Children(id NodeID) []NodeID {
	if !t.valid(id) {
		return nil
	}

	return slices.Clone(t.nodes[id].children)
}

// Len is the number of nodes that carry a span.
func (t *Tree) Len() int {
	n := 0

	for i := range t.nodes {
		if t.nodes[i].span != nil {
			n++
		}
	}

	return n
}

// AddChild attaches child under parent. It refuses self references, already attached children and
// attachments that would make child its own ancestor.
func (t *Tree) AddChild(parent, child NodeID) error {
	if !t.valid(parent) || !t.valid(child) || parent == child {
		return ErrCycle
	}

	if t.nodes[child].parent != NoNode {
		return ErrAlreadyAttached
	}

	for p := t.nodes[parent].parent; p != NoNode; p = t.nodes[p].parent {
		if p == child {
			return ErrCycle
		}
	}

	t.nodes[child].parent = parent
	t.nodes[parent].children = append(t.nodes[parent].children, child)

	return nil
}

// CompareNodes is the child order: ascending timestamp, nodes without a span or timestamp first.
func (t *Tree) CompareNodes(a, b NodeID) int {
	return cmp.Compare(t.timestamp(a), t.timestamp(b))
}

func (t *Tree) timestamp(id NodeID) int64 {
	if s := t.nodes[id].span; s != nil {
		return s.Timestamp
	}

	return 0
}

func (t *Tree) sortChildren() {
	for i := range t.nodes {
		slices.SortStableFunc(t.nodes[i].children, t.CompareNodes)
	}
}

// QueueRootMost returns the root when it has a span, otherwise the children of the synthetic root.
func (t *Tree) QueueRootMost() ([]NodeID, error) {
	if t == nil || len(t.nodes) == 0 {
		return nil, ErrEmptyTrace
	}

	if !t.Headless() {
		return []NodeID{t.root}, nil
	}

	queue := t.Children(t.root)
	if len(queue) == 0 {
		return nil, ErrEmptyTrace
	}

	return queue, nil
}

// BreadthFirst visits every span level by level starting from the root-most spans.
func (t *Tree) BreadthFirst(visit func(NodeID, *model.Span)) error {
	queue, err := t.QueueRootMost()
	if err != nil {
		return err
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		visit(id, t.nodes[id].span)
		queue = append(queue, t.nodes[id].children...)
	}

	return nil
}

// PreOrder visits a node and all of its descendants before its next sibling. The synthetic root is
// not visited.
func (t *Tree) PreOrder(visit func(NodeID, *model.Span)) {
	if t == nil || len(t.nodes) == 0 {
		return
	}

	stack := []NodeID{t.root}

	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if s := t.nodes[id].span; s != nil {
			visit(id, s)
		}

		children := t.nodes[id].children
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}
}
