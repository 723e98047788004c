package budget

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopeTightensAndRestores(t *testing.T) {
	g := New(20)
	base := context.Background()
	require.Equal(t, 20, g.Ceiling(base))

	scoped, restore := g.Scope(base, Cap(2))
	assert.Equal(t, 2, g.Ceiling(scoped))
	require.NoError(t, g.TryConsume(scoped))
	require.NoError(t, g.TryConsume(scoped))
	err := g.TryConsume(scoped)
	require.True(t, errors.Is(err, ErrBudgetExhausted))
	var exhausted *ExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.True(t, exhausted.Scoped)

	restore()
	assert.Equal(t, 20, g.Ceiling(base))
	assert.Equal(t, 20, g.Ceiling(scoped), "closed scope no longer applies")
	assert.NoError(t, g.TryConsume(scoped))
	assert.Equal(t, 3, g.Used())
}

func TestNestedScopesTakeMinimum(t *testing.T) {
	g := New(30)
	outer, restoreOuter := g.Scope(context.Background(), Cap(5))
	defer restoreOuter()
	inner, restoreInner := g.Scope(outer, Cap(10))
	defer restoreInner()
	assert.Equal(t, 5, g.Ceiling(inner))

	innermost, restoreInnermost := g.Scope(inner, Cap(2))
	assert.Equal(t, 2, g.Ceiling(innermost))
	restoreInnermost()
	assert.Equal(t, 5, g.Ceiling(innermost))
}

func TestScopeNeverRaisesAboveLimit(t *testing.T) {
	g := New(3)
	scoped, restore := g.Scope(context.Background(), Cap(100))
	defer restore()
	assert.Equal(t, 3, g.Ceiling(scoped))
	for i := 0; i < 3; i++ {
		require.NoError(t, g.TryConsume(scoped))
	}
	assert.Error(t, g.TryConsume(scoped))
}

func TestScopeRestoredWhenBlockPanics(t *testing.T) {
	g := New(10)
	base := context.Background()
	var leaked context.Context
	func() {
		defer func() { _ = recover() }()
		_ = g.Within(base, Cap(1), func(ctx context.Context) error {
			leaked = ctx
			panic("agent blew up")
		})
	}()
	require.NotNil(t, leaked)
	assert.Equal(t, 10, g.Ceiling(leaked))
	assert.Equal(t, 10, g.Ceiling(base))
}

func TestScopeRestoredWhenBlockErrors(t *testing.T) {
	g := New(10)
	var inside context.Context
	err := g.Within(context.Background(), Cap(4), func(ctx context.Context) error {
		inside = ctx
		return errors.New("stage failed")
	})
	require.Error(t, err)
	assert.Equal(t, 10, g.Ceiling(inside))
}

func TestNilLimitUsesDefaultScope(t *testing.T) {
	g := New(10, WithDefaultScopeLimit(3))
	scoped, restore := g.Scope(context.Background(), nil)
	defer restore()
	assert.Equal(t, 3, g.Ceiling(scoped))

	plain := New(10)
	tracked, restorePlain := plain.Scope(context.Background(), nil)
	defer restorePlain()
	assert.Equal(t, 10, plain.Ceiling(tracked))
}

func TestSiblingScopesAreIndependent(t *testing.T) {
	g := New(10)
	a, restoreA := g.Scope(context.Background(), Cap(2))
	defer restoreA()
	b, restoreB := g.Scope(context.Background(), Cap(2))
	defer restoreB()
	require.NoError(t, g.TryConsume(a))
	require.NoError(t, g.TryConsume(a))
	assert.Error(t, g.TryConsume(a))
	assert.NoError(t, g.TryConsume(b))
	assert.Equal(t, 1, g.Remaining(b))
	assert.Equal(t, 3, g.Used())
}

func TestSharedCounterStillBindsInsideScope(t *testing.T) {
	g := New(2)
	require.NoError(t, g.TryConsume(context.Background()))
	scoped, restore := g.Scope(context.Background(), Cap(2))
	defer restore()
	require.NoError(t, g.TryConsume(scoped))
	err := g.TryConsume(scoped)
	var exhausted *ExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.False(t, exhausted.Scoped)
}

func TestRestoreIsIdempotent(t *testing.T) {
	g := New(5)
	scoped, restore := g.Scope(context.Background(), Cap(1))
	restore()
	restore()
	assert.Equal(t, 5, g.Ceiling(scoped))
}

func TestTightScopeDoesNotWarnOnLargeBudget(t *testing.T) {
	var warnings []Warning
	g := New(100, WithWarningHook(func(w Warning) { warnings = append(warnings, w) }))
	scoped, restore := g.Scope(context.Background(), Cap(2))
	defer restore()
	require.NoError(t, g.TryConsume(scoped))
	require.NoError(t, g.TryConsume(scoped))
	require.Error(t, g.TryConsume(scoped))
	assert.Empty(t, warnings, "scope ceilings alone never warn")
}

func TestWarningFollowsProcessCounterInsideScope(t *testing.T) {
	var warnings []Warning
	g := New(5, WithWarningHook(func(w Warning) { warnings = append(warnings, w) }))
	for i := 0; i < 3; i++ {
		require.NoError(t, g.TryConsume(context.Background()))
	}
	scoped, restore := g.Scope(context.Background(), Cap(10))
	defer restore()
	// threshold is 1: only the call that starts with one unit left warns.
	require.NoError(t, g.TryConsume(scoped))
	assert.Empty(t, warnings)
	require.NoError(t, g.TryConsume(scoped))
	require.Len(t, warnings, 1)
	assert.Equal(t, 0, warnings[0].Remaining)
	assert.Equal(t, 5, warnings[0].Used)
}
