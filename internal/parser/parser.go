package parser

import (
	"bytes"
	"errors"
	"io"
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"

	"noindex-seo/internal/models"
)

var ErrNotHTML = errors.New("not an html document")

type Parser struct{}

func New() *Parser { return &Parser{} }

// IsHTML reports whether a Content-Type names an HTML document. An empty type
// counts, some origins omit it.
func IsHTML(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, _ := mime.ParseMediaType(contentType)
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

// decode returns data as UTF-8 and whether it had to be converted.
func decode(data []byte, contentType string) ([]byte, bool, error) {
	enc, name, certain := charset.DetermineEncoding(data, contentType)
	if name == "utf-8" || (!certain && utf8.Valid(data)) {
		return data, false, nil
	}
	utf8data, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		// fallback: if already utf-8, continue
		if !utf8.Valid(data) {
			return nil, false, err
		}
		return data, false, nil
	}
	return utf8data, true, nil
}

func (p *Parser) document(r io.Reader, contentType string) (*goquery.Document, bool, error) {
	if !IsHTML(contentType) {
		return nil, false, ErrNotHTML
	}
	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, r); err != nil {
		return nil, false, err
	}
	data, converted, err := decode(buf.Bytes(), contentType)
	if err != nil {
		return nil, false, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, false, err
	}
	return doc, converted, nil
}

func robotsMeta(doc *goquery.Document) *goquery.Selection {
	return doc.Find("meta[name]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.EqualFold(strings.TrimSpace(s.AttrOr("name", "")), "robots")
	})
}

// Inject merges set into the document's robots meta tag, appending a tag to
// <head> when there is none. Existing tokens such as max-snippet are kept.
// The result is always UTF-8; the returned content type says so when the
// input used another charset.
func (p *Parser) Inject(r io.Reader, contentType string, set models.DirectiveSet) ([]byte, string, error) {
	doc, converted, err := p.document(r, contentType)
	if err != nil {
		return nil, "", err
	}

	if existing := robotsMeta(doc); existing.Length() > 0 {
		tag := existing.First()
		tag.SetAttr("content", mergeContent(tag.AttrOr("content", ""), set))
		// Later duplicates are folded into the first tag.
		existing.Slice(1, existing.Length()).Each(func(_ int, s *goquery.Selection) {
			extra := models.ParseDirectives(s.AttrOr("content", ""))
			tag.SetAttr("content", mergeContent(tag.AttrOr("content", ""), extra))
			s.Remove()
		})
	} else if len(set) > 0 {
		doc.Find("head").First().AppendHtml(`<meta name="robots" content="` + strings.Join(set.Strings(), ", ") + `"/>`)
	}

	if converted {
		doc.Find("meta[charset]").SetAttr("charset", "utf-8")
		doc.Find("meta[http-equiv]").Each(func(_ int, s *goquery.Selection) {
			if strings.EqualFold(s.AttrOr("http-equiv", ""), "content-type") {
				s.SetAttr("content", "text/html; charset=utf-8")
			}
		})
		contentType = "text/html; charset=utf-8"
	}

	out, err := doc.Html()
	if err != nil {
		return nil, "", err
	}
	return []byte(out), contentType, nil
}

// mergeContent appends the directives missing from an existing content value.
func mergeContent(content string, set models.DirectiveSet) string {
	var tokens []string
	have := map[string]bool{}
	for _, t := range strings.Split(content, ",") {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		tokens = append(tokens, t)
		have[strings.ToLower(t)] = true
	}
	for _, d := range set {
		if !have[string(d)] {
			tokens = append(tokens, string(d))
		}
	}
	return strings.Join(tokens, ", ")
}

// Extract returns the known directives of every robots meta tag in a page.
func (p *Parser) Extract(r io.Reader, contentType string) (models.DirectiveSet, error) {
	doc, _, err := p.document(r, contentType)
	if err != nil {
		return nil, err
	}
	var names []models.Directive
	robotsMeta(doc).Each(func(_ int, s *goquery.Selection) {
		names = append(names, models.ParseDirectives(s.AttrOr("content", ""))...)
	})
	return models.NewDirectiveSet(names...), nil
}
