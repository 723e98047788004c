package research

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// MaxPageText caps the text kept per fetched page.
const MaxPageText = 50_000

// FetchExtractor downloads pages directly and strips them to visible text.
// It is the fallback when no hosted extract endpoint is configured.
type FetchExtractor struct {
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
	logger    *zap.Logger
}

// NewFetchExtractor builds a direct fetcher limited to perSecond requests.
func NewFetchExtractor(perSecond float64, logger *zap.Logger) *FetchExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &FetchExtractor{
		client:    &http.Client{Timeout: 30 * time.Second},
		limiter:   rate.NewLimiter(limit, 1),
		userAgent: "market-lattice/1.0",
		logger:    logger,
	}
}

// Extract fetches every url in turn. URLs that fail are logged and skipped;
// the call fails only if no page could be read.
func (f *FetchExtractor) Extract(ctx context.Context, urls []string) ([]Page, error) {
	var pages []Page
	var lastErr error
	for _, url := range urls {
		if err := f.limiter.Wait(ctx); err != nil {
			return pages, fmt.Errorf("research: wait for rate limit: %w", err)
		}
		page, err := f.fetch(ctx, url)
		if err != nil {
			f.logger.Debug("fetch failed", zap.String("url", url), zap.Error(err))
			lastErr = err
			continue
		}
		pages = append(pages, page)
	}
	if len(pages) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return pages, nil
}

func (f *FetchExtractor) fetch(ctx context.Context, url string) (Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Page{}, fmt.Errorf("research: build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	resp, err := f.client.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("research: fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Page{}, fmt.Errorf("research: HTTP %d for %s", resp.StatusCode, url)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 5*1024*1024))
	if err != nil {
		return Page{}, fmt.Errorf("research: read %s: %w", url, err)
	}
	title, text, err := PageText(body)
	if err != nil {
		return Page{}, fmt.Errorf("research: parse %s: %w", url, err)
	}
	return Page{URL: url, Title: title, Content: text}, nil
}

// PageText returns the document title and the whitespace-collapsed visible
// body text of an HTML document.
func PageText(html []byte) (string, string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return "", "", err
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())
	doc.Find("script, style, nav, header, footer, noscript, iframe").Remove()
	text := strings.Join(strings.Fields(doc.Find("body").Text()), " ")
	if len(text) > MaxPageText {
		text = text[:MaxPageText]
	}
	return title, text, nil
}
