package crawler

import (
	"context"
	"strings"
	"sync"
	"time"

	"noindex-seo/internal/models"
	"noindex-seo/internal/parser"
	"noindex-seo/internal/robots"
)

// Auditor reports which robots directives live URLs actually send.
type Auditor struct {
	client  *HTTPClient
	parser  *parser.Parser
	timeout time.Duration
}

func NewAuditor(client *HTTPClient, timeout time.Duration) *Auditor {
	return &Auditor{client: client, parser: parser.New(), timeout: timeout}
}

type AuditResult struct {
	URL    string               `json:"url"`
	Result *models.RobotsReport `json:"result,omitempty"`
	Error  string               `json:"error,omitempty"`
}

func (a *Auditor) Audit(ctx context.Context, rawURL string) (models.RobotsReport, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	resp, err := a.client.Fetch(ctx, rawURL)
	if err != nil {
		return models.RobotsReport{}, err
	}
	defer resp.Body.Close()

	rep := models.RobotsReport{
		URL:      rawURL,
		FinalURL: resp.FinalURL,
		Status:   resp.Status,
		FetchMs:  resp.Elapsed.Milliseconds(),
		Header:   resp.Header.Values(robots.HeaderName),
	}
	if parser.IsHTML(resp.ContentType) {
		if rep.Meta, err = a.parser.Extract(resp.Body, resp.ContentType); err != nil {
			return models.RobotsReport{}, err
		}
	}

	names := append([]models.Directive{}, rep.Meta...)
	for _, v := range rep.Header {
		names = append(names, HeaderDirectives(v)...)
	}
	rep.Effective = models.NewDirectiveSet(names...)
	return rep, nil
}

// AuditAll runs Audit over urls with bounded concurrency. Results keep the
// input order.
func (a *Auditor) AuditAll(ctx context.Context, urls []string, concurrency int) []AuditResult {
	if concurrency <= 0 {
		concurrency = 10
	}
	results := make([]AuditResult, len(urls))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, u := range urls {
		if u == "" {
			results[i] = AuditResult{URL: u, Error: "empty url"}
			continue
		}
		i, u := i, u
		sem <- struct{}{} // acquire
		wg.Add(1)
		go func() {
			defer func() { <-sem; wg.Done() }()
			rep, err := a.Audit(ctx, u)
			if err != nil {
				results[i] = AuditResult{URL: u, Error: err.Error()}
				return
			}
			results[i] = AuditResult{URL: u, Result: &rep}
		}()
	}
	wg.Wait()
	return results
}

// HeaderDirectives parses one X-Robots-Tag value. A leading "agent:" scope is
// dropped.
func HeaderDirectives(v string) models.DirectiveSet {
	if i := strings.Index(v, ":"); i >= 0 && !strings.Contains(v[:i], ",") {
		v = v[i+1:]
	}
	return models.ParseDirectives(v)
}
