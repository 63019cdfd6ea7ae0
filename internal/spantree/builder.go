package spantree

import (
	"gofr.dev/pkg/gofr/logging"

	"gofr.dev/gofr-tracer/internal/cleaner"
	"gofr.dev/gofr-tracer/internal/model"
)

// Builder turns the raw spans of one trace into a Tree.
type Builder struct {
	logger logging.Logger
}

func NewBuilder(logger logging.Logger) *Builder {
	if logger == nil {
		logger = logging.NewLogger(logging.INFO)
	}

	return &Builder{logger: logger}
}

// nodeKey addresses a node. The server half of a shared span is keyed by its endpoint as well, so
// the client and server of one RPC stay separate nodes.
type nodeKey struct {
	id       string
	shared   bool
	endpoint model.Endpoint
}

func newKey(id string, shared bool, endpoint *model.Endpoint) nodeKey {
	if !shared {
		return nodeKey{id: id}
	}

	k := nodeKey{id: id, shared: true}
	if endpoint != nil {
		k.endpoint = *endpoint
	}

	return k
}

type link struct {
	node      NodeID
	parent    nodeKey
	hasParent bool

	// fallback is tried when the client half of a shared span was never reported
	fallback    nodeKey
	hasFallback bool
}

// Build merges spans and links every span to its parent. Spans whose parent is missing, or whose
// parent would create a cycle, are attached to a synthetic root. The synthetic root is dropped when
// it ends up with a single child that is a real root span.
func (b *Builder) Build(spans []model.Span) (*Tree, error) {
	if len(spans) == 0 {
		return nil, ErrEmptyTrace
	}

	merged := cleaner.MergeByID(spans)

	t := &Tree{nodes: make([]node, 0, len(merged)+1)}
	synthetic := t.add(nil)
	t.root = synthetic

	sharedKeys := make(map[nodeKey]struct{})

	for i := range merged {
		if merged[i].Shared {
			sharedKeys[newKey(merged[i].ID, true, merged[i].LocalEndpoint)] = struct{}{}
		}
	}

	links := make([]link, 0, len(merged))
	keyToNode := make(map[nodeKey]NodeID, len(merged))
	register := func(k nodeKey, id NodeID) {
		if _, ok := keyToNode[k]; !ok {
			keyToNode[k] = id
		}
	}

	for i := range merged {
		s := merged[i]
		id := t.add(&s)
		l := link{node: id}

		switch {
		case s.Shared:
			l.parent, l.hasParent = nodeKey{id: s.ID}, true
			if s.ParentID != "" {
				l.fallback, l.hasFallback = nodeKey{id: s.ParentID}, true
			}
		case s.ParentID != "":
			// a span whose parent is a server half on the same host hangs off that server node
			l.parent, l.hasParent = newKey(s.ParentID, true, s.LocalEndpoint), true
			if _, ok := sharedKeys[l.parent]; !ok {
				l.parent = nodeKey{id: s.ParentID}
			}
		}

		links = append(links, l)

		if s.Shared {
			register(newKey(s.ID, true, s.LocalEndpoint), id)
		}

		register(newKey(s.ID, s.Shared, nil), id)
	}

	for _, l := range links {
		parent := synthetic

		if l.hasParent {
			p, ok := keyToNode[l.parent]
			if !ok && l.hasFallback {
				p, ok = keyToNode[l.fallback]
			}

			if ok {
				parent = p
			} else {
				b.logger.Debugf("attributing span missing parent to root: traceId=%s, spanId=%s, parentId=%s",
					t.nodes[l.node].span.TraceID, t.nodes[l.node].span.ID, l.parent.id)
			}
		}

		if err := t.AddChild(parent, l.node); err != nil {
			b.logger.Debugf("attributing span to root: traceId=%s, spanId=%s: %v",
				t.nodes[l.node].span.TraceID, t.nodes[l.node].span.ID, err)

			if err := t.AddChild(synthetic, l.node); err != nil {
				return nil, err
			}
		}
	}

	t.sortChildren()

	if top := t.nodes[synthetic].children; len(top) == 1 && t.nodes[top[0]].span.ParentID == "" {
		t.root = top[0]
		t.nodes[top[0]].parent = NoNode
		t.nodes[synthetic].children = nil
	}

	return t, nil
}
