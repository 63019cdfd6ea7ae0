// Package dependency derives service to service links from span trees.
package dependency

import (
	"gofr.dev/pkg/gofr/logging"

	"gofr.dev/gofr-tracer/internal/model"
	"gofr.dev/gofr-tracer/internal/spantree"
)

type pair struct {
	parent string
	child  string
}

// Linker accumulates links over any number of traces. RPC links are taken from SERVER spans; a
// CLIENT span only contributes when it is a leaf, which covers calls into uninstrumented services.
// A Linker is not safe for concurrent use.
type Linker struct {
	logger      logging.Logger
	order       []pair
	callCounts  map[pair]int64
	errorCounts map[pair]int64
}

func NewLinker(logger logging.Logger) *Linker {
	if logger == nil {
		logger = logging.NewLogger(logging.INFO)
	}

	return &Linker{
		logger:      logger,
		callCounts:  make(map[pair]int64),
		errorCounts: make(map[pair]int64),
	}
}

// PutTrace adds the links of one trace.
func (l *Linker) PutTrace(t *spantree.Tree) error {
	queue, err := t.QueueRootMost()
	if err != nil {
		return err
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		children := t.Children(current)
		queue = append(queue, children...)

		l.putSpan(t, current, len(children) > 0)
	}

	return nil
}

func (l *Linker) putSpan(t *spantree.Tree, current spantree.NodeID, hasChildren bool) {
	span := t.Span(current)
	kind := span.Kind

	// the server child carries the name the callee chose for itself
	if kind == model.KindClient && hasChildren {
		return
	}

	serviceName, remoteServiceName := span.LocalServiceName(), span.RemoteServiceName()

	if kind == "" {
		if serviceName == "" || remoteServiceName == "" {
			l.logger.Debugf("non remote span %s; skipping", span.ID)
			return
		}

		kind = model.KindClient
	}

	var parent, child string

	switch kind {
	case model.KindServer, model.KindConsumer:
		parent, child = remoteServiceName, serviceName

		if current == t.Root() && !t.Headless() && parent == "" {
			l.logger.Debugf("the client of root span %s is unknown; skipping", span.ID)
			return
		}
	case model.KindClient, model.KindProducer:
		parent, child = serviceName, remoteServiceName
	default:
		l.logger.Debugf("unknown kind %q of span %s; skipping", kind, span.ID)
		return
	}

	isError := span.HasErrorTag()

	if kind == model.KindProducer || kind == model.KindConsumer {
		if parent == "" || child == "" {
			l.logger.Debugf("cannot link messaging span %s to its broker; skipping", span.ID)
			return
		}

		l.addLink(parent, child, isError)

		return
	}

	// local spans may sit between the current node and its remote parent
	if ancestor := firstRemoteAncestor(t, current); ancestor != nil {
		if ancestorName := ancestor.LocalServiceName(); ancestorName != "" {
			// some instrumentation records the callee's name as the client's local service
			if kind == model.KindClient && serviceName != "" && ancestorName != serviceName {
				l.logger.Debugf("detected missing link to client span %s", span.ID)
				l.addLink(ancestorName, serviceName, false)
			}

			if kind == model.KindServer || parent == "" {
				parent = ancestorName
			}

			// an RPC split into client and server spans reports errors on the client side
			if !isError && ancestor.Kind == model.KindClient && span.ParentID != "" && span.ParentID == ancestor.ID {
				isError = ancestor.HasErrorTag()
			}
		}
	}

	if parent == "" || child == "" {
		l.logger.Debugf("cannot find remote ancestor of span %s; skipping", span.ID)
		return
	}

	l.addLink(parent, child, isError)
}

func firstRemoteAncestor(t *spantree.Tree, id spantree.NodeID) *model.Span {
	for p := t.Parent(id); p != spantree.NoNode; p = t.Parent(p) {
		if s := t.Span(p); s != nil && s.Kind != "" {
			return s
		}
	}

	return nil
}

func (l *Linker) addLink(parent, child string, isError bool) {
	key := pair{parent: parent, child: child}

	if _, ok := l.callCounts[key]; !ok {
		l.order = append(l.order, key)
	}

	l.callCounts[key]++

	if isError {
		l.errorCounts[key]++
	}
}

// Link returns the accumulated links in the order they were first seen.
func (l *Linker) Link() []model.DependencyLink {
	links := make([]model.DependencyLink, 0, len(l.order))

	for _, key := range l.order {
		links = append(links, model.DependencyLink{
			Parent:     key.parent,
			Child:      key.child,
			CallCount:  l.callCounts[key],
			ErrorCount: l.errorCounts[key],
		})
	}

	return links
}
