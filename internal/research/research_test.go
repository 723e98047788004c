package research

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/market-lattice/internal/budget"
)

func TestGuardedChargesOncePerCall(t *testing.T) {
	calls := 0
	inner := ExtractorFunc(func(_ context.Context, urls []string) ([]Page, error) {
		calls++
		return []Page{{URL: urls[0], Content: "ok"}}, nil
	})
	guard := budget.New(2)
	g := NewGuarded(inner, guard, nil)

	for i := 0; i < 2; i++ {
		_, err := g.Extract(context.Background(), []string{"https://a.test", "https://b.test"})
		require.NoError(t, err)
	}
	_, err := g.Extract(context.Background(), []string{"https://a.test"})
	assert.ErrorIs(t, err, budget.ErrBudgetExhausted)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, guard.Used())
}

func TestGuardedRespectsScope(t *testing.T) {
	guard := budget.New(10)
	g := NewGuarded(ExtractorFunc(func(context.Context, []string) ([]Page, error) { return nil, nil }), guard, nil)
	err := guard.Within(context.Background(), budget.Cap(1), func(ctx context.Context) error {
		if _, err := g.Extract(ctx, []string{"u"}); err != nil {
			return err
		}
		_, err := g.Extract(ctx, []string{"u"})
		return err
	})
	assert.ErrorIs(t, err, budget.ErrBudgetExhausted)
	assert.Equal(t, 1, guard.Used())
}

func TestGuardedEmptyURLsCostNothing(t *testing.T) {
	guard := budget.New(1)
	g := NewGuarded(ExtractorFunc(func(context.Context, []string) ([]Page, error) {
		t.Fatal("inner should not be called")
		return nil, nil
	}), guard, nil)
	pages, err := g.Extract(context.Background(), nil)
	assert.NoError(t, err)
	assert.Nil(t, pages)
	assert.Zero(t, guard.Used())
}

func TestGuardedWrapsInnerError(t *testing.T) {
	boom := errors.New("upstream down")
	g := NewGuarded(ExtractorFunc(func(context.Context, []string) ([]Page, error) { return nil, boom }), nil, nil)
	_, err := g.Extract(context.Background(), []string{"u"})
	assert.ErrorIs(t, err, boom)
}

func TestHTTPClientExtract(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var req extractRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"https://acme.test"}, req.URLs)
		_, _ = w.Write([]byte(`{"results":[{"url":"https://acme.test","title":"Acme","raw_content":"About Acme"}],"failed_results":[{"url":"https://x.test","error":"timeout"}]}`))
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, "secret", WithRateLimit(0, 0))
	pages, err := client.Extract(context.Background(), []string{"https://acme.test"})
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, Page{URL: "https://acme.test", Title: "Acme", Content: "About Acme"}, pages[0])
}

func TestHTTPClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL, "", WithRateLimit(0, 0)).Extract(context.Background(), []string{"u"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")

	_, err = NewHTTPClient("", "").Extract(context.Background(), []string{"u"})
	assert.Error(t, err)
}

func TestPageTextStripsChrome(t *testing.T) {
	html := `<html><head><title> Acme Corp </title><style>.x{}</style></head>
<body><nav>Home | About</nav><h1>Acme</h1>
<p>Builds   widgets.</p><script>var x = 1;</script><footer>(c)</footer></body></html>`
	title, text, err := PageText([]byte(html))
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", title)
	assert.Equal(t, "Acme Builds widgets.", text)
}

func TestFetchExtractorSkipsFailedPages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/missing") {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`<html><head><title>Vendor</title></head><body><p>Hello</p></body></html>`))
	}))
	defer srv.Close()

	f := NewFetchExtractor(0, nil)
	pages, err := f.Extract(context.Background(), []string{srv.URL + "/missing", srv.URL + "/about"})
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "Vendor", pages[0].Title)
	assert.Equal(t, "Hello", pages[0].Content)

	_, err = f.Extract(context.Background(), []string{srv.URL + "/missing"})
	assert.Error(t, err)
}
