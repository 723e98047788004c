package budget

import (
	"context"
	"sync"
)

type scope struct {
	guard  *Guard
	parent *scope
	limit  int
	spent  int
	closed bool
}

type scopeKey struct{}

// Scope installs a ceiling on the returned context for the duration of the
// wrapped region. A nil limit uses the guard's default scope limit; when no
// default is configured the scope only tracks spending. Ceilings are clamped
// to the process-wide limit and nest by taking the minimum. The restore func
// closes the scope so the parent ceiling applies again; it is idempotent and
// meant to be deferred.
func (g *Guard) Scope(ctx context.Context, limit *int) (context.Context, func()) {
	if ctx == nil {
		ctx = context.Background()
	}
	if g == nil {
		return ctx, func() {}
	}
	ceiling := g.limit
	switch {
	case limit != nil:
		ceiling = min(max(*limit, 0), g.limit)
	case g.defaultScope > 0:
		ceiling = min(g.defaultScope, g.limit)
	}
	parent, _ := ctx.Value(scopeKey{}).(*scope)
	s := &scope{guard: g, parent: parent, limit: ceiling}
	var once sync.Once
	restore := func() {
		once.Do(func() {
			g.mu.Lock()
			s.closed = true
			g.mu.Unlock()
		})
	}
	return context.WithValue(ctx, scopeKey{}, s), restore
}

// Within runs fn inside a scope and always restores it, including when fn
// panics.
func (g *Guard) Within(ctx context.Context, limit *int, fn func(context.Context) error) error {
	scoped, restore := g.Scope(ctx, limit)
	defer restore()
	return fn(scoped)
}

// Cap is a convenience for building the *int argument of Scope.
func Cap(n int) *int {
	return &n
}

func innermost(ctx context.Context) *scope {
	if ctx == nil {
		return nil
	}
	s, _ := ctx.Value(scopeKey{}).(*scope)
	return s
}

// activeLocked returns the open scopes of guard g starting at s, innermost
// first. Callers hold g.mu.
func (g *Guard) activeLocked(s *scope) []*scope {
	var chain []*scope
	for ; s != nil; s = s.parent {
		if s.guard != g || s.closed {
			continue
		}
		chain = append(chain, s)
	}
	return chain
}
