package budget

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ErrBudgetExhausted is returned by TryConsume once the binding ceiling has
// been reached. It is never retried inside the guard.
var ErrBudgetExhausted = errors.New("budget: research budget exhausted")

// ExhaustedError describes which ceiling refused a consumption.
type ExhaustedError struct {
	// Ceiling is the limit that refused the call.
	Ceiling int
	// Used is how many units were already spent against that ceiling.
	Used int
	// Scoped is true when a scope ceiling (rather than the run-wide limit)
	// was the binding one.
	Scoped bool
}

func (e *ExhaustedError) Error() string {
	where := "run"
	if e.Scoped {
		where = "scope"
	}
	return fmt.Sprintf("budget: research budget exhausted (%s ceiling %d, used %d)", where, e.Ceiling, e.Used)
}

// Unwrap lets callers match with errors.Is(err, ErrBudgetExhausted).
func (e *ExhaustedError) Unwrap() error {
	return ErrBudgetExhausted
}

// Warning is emitted when a consumption succeeds but the process-wide
// remaining budget is at or below the warning threshold. Scope ceilings do
// not trigger it.
type Warning struct {
	Remaining int
	Threshold int
	Used      int
	Limit     int
}

// Guard is the process-wide research budget. Used only ever grows.
type Guard struct {
	mu           sync.Mutex
	used         int
	limit        int
	threshold    int
	defaultScope int
	onWarning    func(Warning)
	logger       *zap.Logger
}

// Option customizes a Guard.
type Option func(*Guard)

// WithLogger routes low-budget warnings and exhaustion events to logger.
func WithLogger(logger *zap.Logger) Option {
	return func(g *Guard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithWarningHook registers a callback for low-budget warnings. The hook runs
// outside the guard's lock.
func WithWarningHook(hook func(Warning)) Option {
	return func(g *Guard) {
		g.onWarning = hook
	}
}

// WithDefaultScopeLimit sets the ceiling used by Scope when the caller passes
// a nil limit. Zero means such scopes add no ceiling of their own.
func WithDefaultScopeLimit(limit int) Option {
	return func(g *Guard) {
		if limit > 0 {
			g.defaultScope = limit
		}
	}
}

// New builds a guard allowing limit consumptions for the life of the process.
func New(limit int, opts ...Option) *Guard {
	if limit < 0 {
		limit = 0
	}
	g := &Guard{
		limit:     limit,
		threshold: WarningThreshold(limit),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// WarningThreshold returns min(3, max(1, limit/5)).
func WarningThreshold(limit int) int {
	return min(3, max(1, limit/5))
}

// Limit returns the process-wide limit.
func (g *Guard) Limit() int {
	if g == nil {
		return 0
	}
	return g.limit
}

// Threshold returns the low-budget warning threshold.
func (g *Guard) Threshold() int {
	if g == nil {
		return 0
	}
	return g.threshold
}

// Used returns how many consumptions have succeeded so far.
func (g *Guard) Used() int {
	if g == nil {
		return 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.used
}

// TryConsume atomically checks every ceiling in effect for ctx and, when all
// of them have room, spends one unit against each. A refused call changes
// nothing. A nil guard never refuses.
func (g *Guard) TryConsume(ctx context.Context) error {
	if g == nil {
		return nil
	}
	g.mu.Lock()
	chain := g.activeLocked(innermost(ctx))
	remaining, binding := g.remainingLocked(chain)
	if remaining <= 0 {
		err := g.exhaustedLocked(binding)
		g.mu.Unlock()
		g.logger.Warn("research budget exhausted",
			zap.Int("used", err.Used),
			zap.Int("ceiling", err.Ceiling),
			zap.Bool("scoped", err.Scoped),
		)
		return err
	}
	// Scopes only bound exhaustion; the warning tracks the run-wide counter.
	var warn *Warning
	if left := g.limit - g.used; left <= g.threshold {
		warn = &Warning{Remaining: left - 1, Threshold: g.threshold, Used: g.used + 1, Limit: g.limit}
	}
	g.used++
	for _, s := range chain {
		s.spent++
	}
	g.mu.Unlock()
	if warn != nil {
		g.emitWarning(*warn)
	}
	return nil
}

// Remaining reports how many more consumptions ctx may make right now.
func (g *Guard) Remaining(ctx context.Context) int {
	if g == nil {
		return 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	remaining, _ := g.remainingLocked(g.activeLocked(innermost(ctx)))
	return max(0, remaining)
}

// Ceiling reports the effective ceiling for ctx: the minimum of the
// process-wide limit and every open scope installed on ctx.
func (g *Guard) Ceiling(ctx context.Context) int {
	if g == nil {
		return 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	ceiling := g.limit
	for _, s := range g.activeLocked(innermost(ctx)) {
		ceiling = min(ceiling, s.limit)
	}
	return ceiling
}

func (g *Guard) remainingLocked(chain []*scope) (int, *scope) {
	remaining := g.limit - g.used
	var binding *scope
	for _, s := range chain {
		if left := s.limit - s.spent; left < remaining {
			remaining = left
			binding = s
		}
	}
	return remaining, binding
}

func (g *Guard) exhaustedLocked(binding *scope) *ExhaustedError {
	if binding != nil {
		return &ExhaustedError{Ceiling: binding.limit, Used: binding.spent, Scoped: true}
	}
	return &ExhaustedError{Ceiling: g.limit, Used: g.used}
}

func (g *Guard) emitWarning(w Warning) {
	g.logger.Warn("research budget running low",
		zap.Int("remaining", w.Remaining),
		zap.Int("threshold", w.Threshold),
		zap.Int("used", w.Used),
		zap.Int("limit", w.Limit),
	)
	if g.onWarning == nil {
		return
	}
	defer func() {
		_ = recover()
	}()
	g.onWarning(w)
}
