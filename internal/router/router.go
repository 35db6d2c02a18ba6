// Package router implements the subscription router: it owns
// the mapping from topic patterns to flow entry points and applies an
// ordered middleware chain (e.g. logging, metrics) to every inbound
// delivery before it reaches a flow's first component.
package router

import (
	"fmt"
	"strings"
	"sync"

	"github.com/tenzoki/cellorg/internal/broker"
)

// Middleware wraps a Handler, the way eventmux's router chains
// cross-cutting concerns around route dispatch.
type Middleware func(next broker.Handler) broker.Handler

// Router dispatches broker deliveries to the handler registered for the
// most specific matching pattern; patterns with no wildcard segments take
// priority over wildcard patterns, and among equally-specific patterns the
// first one registered wins, so overlapping subscriptions are resolved
// deterministically instead of fanning out unexpectedly.
type Router struct {
	mu      sync.RWMutex
	matcher broker.Matcher
	routes  []route
	mws     []Middleware
}

type route struct {
	pattern string
	handler broker.Handler
}

// New creates a Router using the wildcard matcher every broker driver
// shares.
func New() *Router {
	return &Router{matcher: broker.WildcardMatcher{}}
}

// Use appends mw to the middleware chain; middleware registered earlier
// wraps outer (runs first), matching eventmux's Use/applyMiddleware
// convention.
func (r *Router) Use(mw Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mws = append(r.mws, mw)
}

// Handle registers handler for pattern.
func (r *Router) Handle(pattern string, handler broker.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, route{pattern: pattern, handler: wrap(handler, r.mws)})
}

func wrap(h broker.Handler, mws []Middleware) broker.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// Dispatch delivers d to the most specific matching route's handler. It
// returns an error if no route matches, so callers can decide whether an
// unroutable delivery is a configuration problem or safely ignorable.
func (r *Router) Dispatch(d broker.Delivery) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *route
	bestSpecificity := -1
	for i := range r.routes {
		rt := &r.routes[i]
		if !r.matcher.Match(rt.pattern, d.Topic) {
			continue
		}
		spec := specificity(rt.pattern)
		if spec > bestSpecificity {
			best = rt
			bestSpecificity = spec
		}
	}
	if best == nil {
		return fmt.Errorf("router: no route matches topic %q", d.Topic)
	}
	best.handler(d)
	return nil
}

// specificity scores a pattern segment by segment so a literal segment beats
// "*" which beats a trailing ">" wherever two patterns both match the same
// topic; the per-segment scores are weighted so a single literal segment
// always outranks any number of wildcard segments.
func specificity(pattern string) int {
	segments := strings.Split(pattern, "/")
	score := 0
	for _, seg := range segments {
		score *= 3
		switch seg {
		case ">":
			score += 0
		case "*":
			score += 1
		default:
			score += 2
		}
	}
	return score
}
