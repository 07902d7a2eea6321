// Package middleware applies robots directives to HTTP responses.
package middleware

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"

	"noindex-seo/internal/classifier"
	"noindex-seo/internal/crawler"
	"noindex-seo/internal/metrics"
	"noindex-seo/internal/models"
	"noindex-seo/internal/parser"
	"noindex-seo/internal/robots"
	"noindex-seo/pkg/logger"
)

// SettingsSource is the read side of settings.Service.
type SettingsSource interface {
	Load(ctx context.Context) (models.GlobalConfig, error)
	GetOverride(ctx context.Context, itemID uint64) (*models.Override, error)
}

const DefaultMaxBody = 5 * 1024 * 1024

type Robots struct {
	settings   SettingsSource
	engine     *robots.Engine
	classifier atomic.Pointer[classifier.Classifier]
	parser     *parser.Parser
	log        *logger.Logger
	metrics    *metrics.Metrics
	maxBody    int64
}

type Option func(*Robots)

func WithLogger(l *logger.Logger) Option { return func(m *Robots) { m.log = l } }

func WithMetrics(mt *metrics.Metrics) Option { return func(m *Robots) { m.metrics = mt } }

// WithMaxBody caps how much HTML is buffered for meta injection. Larger
// documents pass through untouched.
func WithMaxBody(n int64) Option {
	return func(m *Robots) {
		if n > 0 {
			m.maxBody = n
		}
	}
}

func NewRobots(s SettingsSource, e *robots.Engine, c *classifier.Classifier, opts ...Option) *Robots {
	m := &Robots{
		settings: s,
		engine:   e,
		parser:   parser.New(),
		log:      logger.Discard(),
		maxBody:  DefaultMaxBody,
	}
	m.classifier.Store(c)
	for _, o := range opts {
		o(m)
	}
	return m
}

// SetClassifier swaps the route rules, e.g. after a config reload.
func (m *Robots) SetClassifier(c *classifier.Classifier) { m.classifier.Store(c) }

func (m *Robots) Classify(r *http.Request) models.Query {
	return m.classifier.Load().Classify(r)
}

// Decide evaluates a classified request against the current settings.
func (m *Robots) Decide(ctx context.Context, q models.Query, headersSent bool) (models.Decision, error) {
	cfg, err := m.settings.Load(ctx)
	if err != nil {
		return models.Decision{}, err
	}
	return m.decide(ctx, cfg, q, headersSent)
}

func (m *Robots) decide(ctx context.Context, cfg models.GlobalConfig, q models.Query, headersSent bool) (models.Decision, error) {
	flags := classifier.Flags(q)
	req := robots.Request{Flags: flags, Config: cfg, HeadersSent: headersSent}
	if cfg.GranularEnabled && q.ItemID > 0 && robots.IsSingular(flags) {
		ov, err := m.settings.GetOverride(ctx, q.ItemID)
		if err != nil {
			return models.Decision{}, err
		}
		req.Override = ov
	}
	return m.engine.Evaluate(req), nil
}

func (m *Robots) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cfg, err := m.settings.Load(r.Context())
		if err != nil {
			m.log.WithError(err).Errorf("robots: settings unavailable, serving %s without directives", r.URL.Path)
			next.ServeHTTP(w, r)
			return
		}
		rw := &responseWriter{
			ResponseWriter: w,
			m:              m,
			r:              r,
			cfg:            cfg,
			query:          m.Classify(r),
		}
		next.ServeHTTP(rw, r)
		rw.finish()
	})
}

type responseWriter struct {
	http.ResponseWriter
	m     *Robots
	r     *http.Request
	cfg   models.GlobalConfig
	query models.Query

	decided   bool
	status    int
	decision  models.Decision
	buffering bool
	buf       bytes.Buffer
}

func (w *responseWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func (w *responseWriter) WriteHeader(code int) {
	if code >= 100 && code < 200 && code != http.StatusSwitchingProtocols {
		w.ResponseWriter.WriteHeader(code)
		return
	}
	if w.decided {
		return
	}
	w.decide(code)
	if !w.buffering {
		w.ResponseWriter.WriteHeader(code)
	}
}

func (w *responseWriter) Write(p []byte) (int, error) {
	if !w.decided {
		w.WriteHeader(http.StatusOK)
	}
	if !w.buffering {
		return w.ResponseWriter.Write(p)
	}
	if int64(w.buf.Len()+len(p)) > w.m.maxBody {
		w.m.log.Warnf("robots: %s exceeds %d bytes, meta tag not injected", w.r.URL.Path, w.m.maxBody)
		w.m.metrics.RecordInjectionError()
		if err := w.release(); err != nil {
			return 0, err
		}
		return w.ResponseWriter.Write(p)
	}
	return w.buf.Write(p)
}

func (w *responseWriter) Flush() {
	if !w.decided {
		w.WriteHeader(http.StatusOK)
	}
	if w.buffering {
		return
	}
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// decide runs once per response, before the status line goes out.
func (w *responseWriter) decide(code int) {
	w.decided = true
	w.status = code
	h := w.Header()
	w.query = classifier.ApplyResponse(w.query, code, h)

	d, err := w.m.decide(w.r.Context(), w.cfg, w.query, false)
	if err != nil {
		w.m.log.WithError(err).Errorf("robots: override lookup failed for %s", w.r.URL.Path)
		d = w.m.engine.Evaluate(robots.Request{Flags: classifier.Flags(w.query), Config: w.cfg})
	}
	w.decision = d
	if d.Plan.Empty() {
		return
	}

	w.m.log.WithFields(map[string]any{
		"path":       w.r.URL.Path,
		"context":    d.Context,
		"source":     d.Source,
		"directives": d.Directives.String(),
	}).Debugf("robots decision")

	if d.Plan.HasHeader {
		robots.ApplyHeader(h, d.Plan)
		w.m.metrics.RecordEmission("header", d.Source)
	}
	if d.Plan.Fallback {
		w.m.metrics.RecordFallback()
	}
	if d.Plan.HasMeta && w.injectable(code) {
		w.buffering = true
	}
}

func (w *responseWriter) injectable(code int) bool {
	if w.r.Method == http.MethodHead || code == http.StatusNoContent || code == http.StatusNotModified {
		return false
	}
	h := w.Header()
	ct := h.Get("Content-Type")
	if ct == "" || !parser.IsHTML(ct) {
		return false
	}
	switch h.Get("Content-Encoding") {
	case "", "identity", "gzip", "x-gzip":
		return true
	}
	return false
}

// release stops buffering and sends what was held back unchanged.
func (w *responseWriter) release() error {
	w.buffering = false
	w.ResponseWriter.WriteHeader(w.status)
	_, err := w.ResponseWriter.Write(w.buf.Bytes())
	w.buf.Reset()
	return err
}

func (w *responseWriter) finish() {
	if !w.decided {
		// handler wrote nothing; net/http would send an empty 200
		w.WriteHeader(http.StatusOK)
	}
	if !w.buffering {
		return
	}
	out, err := w.inject()
	if err != nil {
		w.m.log.WithError(err).Warnf("robots: meta injection failed for %s", w.r.URL.Path)
		w.m.metrics.RecordInjectionError()
		_ = w.release()
		return
	}
	w.buffering = false
	w.Header().Set("Content-Length", strconv.Itoa(len(out)))
	w.Header().Del("ETag")
	w.ResponseWriter.WriteHeader(w.status)
	if _, err := w.ResponseWriter.Write(out); err != nil {
		w.m.log.WithError(err).Debugf("robots: client went away")
		return
	}
	w.m.metrics.RecordEmission("meta", w.decision.Source)
}

func (w *responseWriter) inject() ([]byte, error) {
	h := w.Header()
	encoding := h.Get("Content-Encoding")
	body, err := crawler.Decompress(io.NopCloser(bytes.NewReader(w.buf.Bytes())), encoding)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	html, contentType, err := w.m.parser.Inject(body, h.Get("Content-Type"), w.decision.Plan.MetaFlags)
	if err != nil {
		return nil, err
	}
	h.Set("Content-Type", contentType)

	if encoding == "" || encoding == "identity" {
		return html, nil
	}
	var zipped bytes.Buffer
	gz := gzip.NewWriter(&zipped)
	if _, err := gz.Write(html); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return zipped.Bytes(), nil
}
