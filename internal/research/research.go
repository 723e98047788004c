// Package research provides the costly external research operation agents
// use to pull page content, and the budget-guarded wrapper every call goes
// through.
package research

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kingrea/market-lattice/internal/budget"
)

// Page is the extracted content of one URL.
type Page struct {
	URL     string `json:"url"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content"`
}

// Extractor pulls page content for a set of URLs. One call is one unit of
// research budget regardless of how many URLs it carries.
type Extractor interface {
	Extract(ctx context.Context, urls []string) ([]Page, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, urls []string) ([]Page, error)

// Extract calls f.
func (f ExtractorFunc) Extract(ctx context.Context, urls []string) ([]Page, error) {
	return f(ctx, urls)
}

// Guarded charges one unit of the budget before every delegated call.
type Guarded struct {
	inner  Extractor
	guard  *budget.Guard
	logger *zap.Logger
}

// NewGuarded wraps inner with guard. A nil guard never refuses.
func NewGuarded(inner Extractor, guard *budget.Guard, logger *zap.Logger) *Guarded {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guarded{inner: inner, guard: guard, logger: logger}
}

// Extract consumes budget and delegates. When the budget is exhausted the
// call is not made and the returned error matches budget.ErrBudgetExhausted.
func (g *Guarded) Extract(ctx context.Context, urls []string) ([]Page, error) {
	if len(urls) == 0 {
		return nil, nil
	}
	if err := g.guard.TryConsume(ctx); err != nil {
		return nil, fmt.Errorf("research: extract %d urls: %w", len(urls), err)
	}
	pages, err := g.inner.Extract(ctx, urls)
	if err != nil {
		g.logger.Warn("research extract failed", zap.Strings("urls", urls), zap.Error(err))
		return nil, fmt.Errorf("research: extract: %w", err)
	}
	return pages, nil
}
