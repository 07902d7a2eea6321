package parser

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"noindex-seo/internal/models"
)

const sampleHTML = `<!doctype html><html lang="en"><head>
<title>Test Page</title>
<meta name="description" content="A short description">
</head><body>
<h1>Hello</h1>
<p>Go is great for network services.</p>
</body></html>`

var noindexNofollow = models.NewDirectiveSet(models.NoIndex, models.NoFollow)

func TestInject(t *testing.T) {
	p := New()

	t.Run("should append a robots tag to head", func(t *testing.T) {
		out, ct, err := p.Inject(strings.NewReader(sampleHTML), "text/html; charset=utf-8", noindexNofollow)
		require.NoError(t, err)
		assert.Equal(t, "text/html; charset=utf-8", ct)

		html := string(out)
		assert.Contains(t, html, `<meta name="robots" content="noindex, nofollow"/>`)
		assert.Less(t, strings.Index(html, `name="robots"`), strings.Index(html, "</head>"))
		assert.Contains(t, html, "<title>Test Page</title>")
	})

	t.Run("should merge into an existing tag", func(t *testing.T) {
		doc := `<html><head><META NAME="Robots" content="max-snippet:50, nofollow"></head><body></body></html>`
		out, _, err := p.Inject(strings.NewReader(doc), "text/html", noindexNofollow)
		require.NoError(t, err)
		assert.Contains(t, string(out), `content="max-snippet:50, nofollow, noindex"`)
		assert.Equal(t, 1, strings.Count(strings.ToLower(string(out)), `name="robots"`))
	})

	t.Run("should fold duplicate robots tags", func(t *testing.T) {
		doc := `<html><head><meta name="robots" content="noarchive"><meta name="robots" content="nosnippet"></head></html>`
		out, _, err := p.Inject(strings.NewReader(doc), "text/html", models.NewDirectiveSet(models.NoIndex))
		require.NoError(t, err)
		assert.Contains(t, string(out), `content="noarchive, noindex, nosnippet"`)
		assert.Equal(t, 1, strings.Count(string(out), `name="robots"`))
	})

	t.Run("empty set leaves the document without a tag", func(t *testing.T) {
		out, _, err := p.Inject(strings.NewReader(sampleHTML), "text/html", models.DirectiveSet{})
		require.NoError(t, err)
		assert.NotContains(t, string(out), `name="robots"`)
	})

	t.Run("should convert other charsets to utf-8", func(t *testing.T) {
		latin, err := charmap.ISO8859_1.NewEncoder().String(`<html><head><meta charset="iso-8859-1"></head><body><p>café</p></body></html>`)
		require.NoError(t, err)
		out, ct, err := p.Inject(bytes.NewReader([]byte(latin)), "text/html; charset=iso-8859-1", noindexNofollow)
		require.NoError(t, err)
		assert.Equal(t, "text/html; charset=utf-8", ct)
		assert.Contains(t, string(out), "café")
		assert.Contains(t, string(out), `charset="utf-8"`)
	})

	t.Run("should refuse non-html", func(t *testing.T) {
		_, _, err := p.Inject(strings.NewReader("{}"), "application/json", noindexNofollow)
		assert.ErrorIs(t, err, ErrNotHTML)
	})
}

func TestExtract(t *testing.T) {
	p := New()

	t.Run("should collect directives from every robots tag", func(t *testing.T) {
		doc := `<html><head><meta name="robots" content="NOINDEX, max-image-preview:large"><meta name="robots" content="nosnippet"></head></html>`
		got, err := p.Extract(strings.NewReader(doc), "text/html; charset=utf-8")
		require.NoError(t, err)
		assert.Equal(t, models.DirectiveSet{models.NoIndex, models.NoSnippet}, got)
	})

	t.Run("no tag means no directives", func(t *testing.T) {
		got, err := p.Extract(strings.NewReader(sampleHTML), "")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("round-trips through inject", func(t *testing.T) {
		out, _, err := p.Inject(strings.NewReader(sampleHTML), "text/html", noindexNofollow)
		require.NoError(t, err)
		got, err := p.Extract(bytes.NewReader(out), "text/html")
		require.NoError(t, err)
		assert.Equal(t, noindexNofollow, got)
	})
}

func TestIsHTML(t *testing.T) {
	assert.True(t, IsHTML("text/html; charset=utf-8"))
	assert.True(t, IsHTML("application/xhtml+xml"))
	assert.True(t, IsHTML(""))
	assert.False(t, IsHTML("application/rss+xml"))
	assert.False(t, IsHTML("text/plain"))
}
