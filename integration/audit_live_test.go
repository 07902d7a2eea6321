//go:build integration

package integration

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/http/httputil"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noindex-seo/internal/cache"
	"noindex-seo/internal/classifier"
	"noindex-seo/internal/crawler"
	"noindex-seo/internal/middleware"
	"noindex-seo/internal/models"
	"noindex-seo/internal/robots"
	"noindex-seo/internal/settings"
	"noindex-seo/internal/store"
)

func TestWikipediaSearchPage(t *testing.T) {
	// Search result pages are served with a noindex robots meta (subject to change).
	u := "https://en.wikipedia.org/w/index.php?search=toaster&fulltext=1"

	client := crawler.NewHTTPClient(25*time.Second, 5*time.Second, 5*1024*1024)
	a := crawler.NewAuditor(client, 25*time.Second)

	rep, err := a.Audit(context.Background(), u)
	if err != nil {
		t.Skipf("skipping: fetch failed due to network: %v", err)
		return
	}
	if rep.Status != http.StatusOK {
		t.Skipf("skipping: got status %d", rep.Status)
		return
	}
	assert.True(t, rep.Effective.Has(models.NoIndex), "effective: %s", rep.Effective)
}

func TestProxyAudit(t *testing.T) {
	ctx := context.Background()

	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, "<html><head><title>%s</title></head><body>ok</body></html>", r.URL.Path)
	}))
	defer origin.Close()

	db, err := store.Open(store.OpenOptions{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "seo.db")})
	require.NoError(t, err)
	st := store.NewGorm(db)
	svc := settings.NewService(st, st, cache.NewMemory())
	require.NoError(t, svc.Activate(ctx))
	require.NoError(t, svc.Save(ctx, settings.Form{
		Values: map[string]string{
			models.OptionKey(models.NoIndex, models.ContextCategory):  "1",
			models.OptionKey(models.NoFollow, models.ContextCategory): "1",
		},
		Method: string(models.MethodBoth),
	}))

	cl, err := classifier.New(nil)
	require.NoError(t, err)
	upstream, err := url.Parse(origin.URL)
	require.NoError(t, err)
	rb := middleware.NewRobots(svc, robots.NewEngine(nil), cl)
	proxy := httptest.NewServer(rb.Handler(httputil.NewSingleHostReverseProxy(upstream)))
	defer proxy.Close()

	a := crawler.NewAuditor(crawler.NewHTTPClient(10*time.Second, 5*time.Second, 5*1024*1024), 10*time.Second)
	results := a.AuditAll(ctx, []string{
		proxy.URL + "/category/news/",
		proxy.URL + "/hello-world/",
	}, 2)
	require.Len(t, results, 2)

	category := results[0].Result
	require.NotNil(t, category, results[0].Error)
	assert.Equal(t, []string{"noindex, nofollow"}, category.Header)
	assert.Equal(t, models.DirectiveSet{models.NoIndex, models.NoFollow}, category.Meta)

	page := results[1].Result
	require.NotNil(t, page, results[1].Error)
	assert.Empty(t, page.Header)
	assert.Empty(t, page.Effective)
}
