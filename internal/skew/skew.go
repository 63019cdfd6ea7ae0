// Package skew detects and corrects clock skew between the client and server hosts of an RPC.
package skew

import (
	"gofr.dev/pkg/gofr/logging"

	"gofr.dev/gofr-tracer/internal/model"
	"gofr.dev/gofr-tracer/internal/spantree"
)

// ClockSkew is the offset, in microseconds, of the clock of Endpoint. Subtracting Skew from a
// timestamp recorded on that host moves it onto the caller's clock.
type ClockSkew struct {
	Endpoint model.Endpoint
	Skew     int64
}

// IPsMatch reports whether two endpoints are known to be the same host.
func IPsMatch(a, b *model.Endpoint) bool {
	if a == nil || b == nil {
		return false
	}

	if a.IPv6 != "" && b.IPv6 != "" && a.IPv6 == b.IPv6 {
		return true
	}

	if a.IPv4 == "" && b.IPv4 == "" {
		return false
	}

	return a.IPv4 == b.IPv4
}

// Detect computes the skew of a server node relative to its client parent. It reports false when
// the pair is not a client/server pair on two known, distinct hosts or when the server timing is
// consistent with the client.
func Detect(t *spantree.Tree, id spantree.NodeID) (ClockSkew, bool) {
	server := t.Span(id)
	client := t.Span(t.Parent(id))

	if server == nil || client == nil || client.Kind != model.KindClient || server.Kind != model.KindServer {
		return ClockSkew{}, false
	}

	if client.Timestamp == 0 || server.Timestamp == 0 {
		return ClockSkew{}, false
	}

	clientEndpoint, serverEndpoint := client.LocalEndpoint, server.LocalEndpoint
	if !clientEndpoint.HasIP() || !serverEndpoint.HasIP() || IPsMatch(clientEndpoint, serverEndpoint) {
		return ClockSkew{}, false
	}

	var (
		clientDuration = client.Duration
		serverDuration = server.Duration
		skew           int64
	)

	// one-way, or a server that keeps running after the client stopped waiting
	if clientDuration == 0 || serverDuration == 0 || clientDuration < serverDuration {
		latency := server.Timestamp - client.Timestamp
		if latency > 0 {
			return ClockSkew{}, false
		}

		// the server cannot receive before the client sends: assume one unit of latency
		skew = latency - 1
	} else {
		clientReceive := client.Timestamp + clientDuration
		serverSend := server.Timestamp + serverDuration

		if client.Timestamp <= server.Timestamp && serverSend <= clientReceive {
			return ClockSkew{}, false
		}

		latency := (clientDuration - serverDuration) / 2
		if latency < 0 {
			return ClockSkew{}, false
		}

		skew = server.Timestamp - latency - client.Timestamp
	}

	if skew == 0 {
		return ClockSkew{}, false
	}

	return ClockSkew{Endpoint: *serverEndpoint, Skew: skew}, true
}

// Corrector adjusts the timestamps of a tree in place.
type Corrector struct {
	logger logging.Logger
}

func NewCorrector(logger logging.Logger) *Corrector {
	if logger == nil {
		logger = logging.NewLogger(logging.INFO)
	}

	return &Corrector{logger: logger}
}

type pending struct {
	node spantree.NodeID
	skew *ClockSkew
}

// Correct walks the tree top-down from its root. Skew found at a server is applied to that server
// and to every descendant recorded on the same host, unless a deeper server reports its own skew.
// Headless trees, including those with more than one root, are left unchanged.
func (c *Corrector) Correct(t *spantree.Tree) {
	if t.Headless() {
		c.logger.Debugf("skipping clock skew correction of headless trace")

		return
	}

	queue, err := t.QueueRootMost()
	if err != nil {
		return
	}

	stack := make([]pending, 0, len(queue))
	for i := len(queue) - 1; i >= 0; i-- {
		stack = append(stack, pending{node: queue[i]})
	}

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		skew := p.skew
		if s, ok := Detect(t, p.node); ok {
			skew = &s

			c.logger.Debugf("correcting clock skew of %dμs for %s in trace %s",
				s.Skew, s.Endpoint.ServiceName, t.Span(p.node).TraceID)
		}

		if skew != nil {
			adjustTimestamps(t.Span(p.node), skew)
		}

		children := t.Children(p.node)
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, pending{node: children[i], skew: skew})
		}
	}
}

func adjustTimestamps(span *model.Span, skew *ClockSkew) {
	if span == nil || !IPsMatch(&skew.Endpoint, span.LocalEndpoint) {
		return
	}

	if span.Timestamp != 0 {
		span.Timestamp -= skew.Skew
	}

	for i := range span.Annotations {
		span.Annotations[i].Timestamp -= skew.Skew
	}
}
