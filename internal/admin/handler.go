// Package admin is the HTTP API behind the settings screen and the per-item
// editor controls.
package admin

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"noindex-seo/internal/classifier"
	"noindex-seo/internal/crawler"
	"noindex-seo/internal/middleware"
	"noindex-seo/internal/models"
	"noindex-seo/internal/settings"
	"noindex-seo/pkg/logger"
)

const (
	NonceHeader = "X-Admin-Nonce"
	nonceField  = "_nonce"
	claimsKey   = "claims"
	maxAuditURL = 100
)

type Handler struct {
	settings     *settings.Service
	auth         *Authenticator
	robots       *middleware.Robots
	auditor      *crawler.Auditor
	integrations func() []string
	log          *logger.Logger
}

type Deps struct {
	Settings *settings.Service
	Auth     *Authenticator
	Robots   *middleware.Robots
	Auditor  *crawler.Auditor
	// Integrations lists the SEO integrations currently active on the site.
	Integrations func() []string
	Log          *logger.Logger
}

func NewHandler(d Deps) *Handler {
	h := &Handler{
		settings:     d.Settings,
		auth:         d.Auth,
		robots:       d.Robots,
		auditor:      d.Auditor,
		integrations: d.Integrations,
		log:          d.Log,
	}
	if h.integrations == nil {
		h.integrations = func() []string { return nil }
	}
	if h.log == nil {
		h.log = logger.Discard()
	}
	return h
}

// Register mounts the API under /admin.
func (h *Handler) Register(r gin.IRouter) {
	g := r.Group("/admin", h.authenticate())

	g.GET("/nonce", h.nonce)

	opts := g.Group("", h.require(CapManageOptions))
	opts.GET("/settings", h.getSettings)
	opts.POST("/settings", h.verifyNonce(ActionSettings), h.saveSettings)
	opts.GET("/notices", h.notices)
	opts.GET("/resolve", h.resolve)
	if h.auditor != nil {
		opts.POST("/audit", h.audit)
	}

	items := g.Group("", h.require(CapEditPosts))
	items.GET("/overrides", h.listOverrides)
	items.GET("/items/:id/override", h.getOverride)
	items.PUT("/items/:id/override", h.verifyNonce(ActionOverride), h.putOverride)
	items.DELETE("/items/:id/override", h.verifyNonce(ActionOverride), h.deleteOverride)
	items.POST("/items/:id/quick-edit", h.verifyNonce(ActionOverride), h.quickEdit)
	items.GET("/items/:id/preview", h.preview)
	items.POST("/items/bulk", h.verifyNonce(ActionBulk), h.bulk)
}

func (h *Handler) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(raw, "Bearer ")
		if !ok || token == "" {
			failure(c, http.StatusUnauthorized, "missing or invalid authorization header", nil)
			return
		}
		claims, err := h.auth.ValidateToken(token)
		if err != nil {
			failure(c, http.StatusUnauthorized, "invalid or expired token", err)
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

func claimsOf(c *gin.Context) *Claims {
	v, _ := c.Get(claimsKey)
	claims, _ := v.(*Claims)
	return claims
}

func (h *Handler) require(capability string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims := claimsOf(c); claims == nil || !claims.Can(capability) {
			failure(c, http.StatusForbidden, "insufficient capability", ErrForbidden)
			return
		}
		c.Next()
	}
}

func (h *Handler) verifyNonce(action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		nonce := c.GetHeader(NonceHeader)
		if nonce == "" {
			nonce = c.PostForm(nonceField)
		}
		claims := claimsOf(c)
		if err := h.auth.VerifyNonce(nonce, claims.Subject, action); err != nil {
			h.log.WithField("action", action).WithError(err).Warnf("admin: nonce rejected")
			failure(c, http.StatusForbidden, "invalid nonce", err)
			return
		}
		c.Next()
	}
}

// GET /admin/nonce?action=...
func (h *Handler) nonce(c *gin.Context) {
	action := c.Query("action")
	nonce, err := h.auth.IssueNonce(claimsOf(c), action)
	switch {
	case errors.Is(err, ErrForbidden):
		failure(c, http.StatusForbidden, "insufficient capability", err)
	case err != nil:
		failure(c, http.StatusBadRequest, "unknown action", err)
	default:
		success(c, "nonce issued", gin.H{"action": action, "nonce": nonce})
	}
}

type settingsView struct {
	Config     models.GlobalConfig `json:"config"`
	HeaderOnly []models.Context    `json:"headerOnly"`
	Contexts   []models.Context    `json:"contexts"`
}

func (h *Handler) view(c *gin.Context) (settingsView, bool) {
	cfg, err := h.settings.Load(c.Request.Context())
	if err != nil {
		failure(c, http.StatusInternalServerError, "failed to load settings", err)
		return settingsView{}, false
	}
	var headerOnly []models.Context
	for _, ctx := range models.AllContexts {
		if ctx.HeaderOnly() {
			headerOnly = append(headerOnly, ctx)
		}
	}
	return settingsView{Config: cfg, HeaderOnly: headerOnly, Contexts: models.AllContexts}, true
}

func (h *Handler) getSettings(c *gin.Context) {
	if v, ok := h.view(c); ok {
		success(c, "settings", v)
	}
}

// POST /admin/settings accepts the classic form encoding or a JSON config.
func (h *Handler) saveSettings(c *gin.Context) {
	var form settings.Form
	if strings.HasPrefix(c.ContentType(), "application/json") {
		var cfg models.GlobalConfig
		if err := c.ShouldBindJSON(&cfg); err != nil {
			failure(c, http.StatusBadRequest, "invalid payload", err)
			return
		}
		form = settings.FormFromConfig(cfg)
	} else {
		if err := c.Request.ParseForm(); err != nil {
			failure(c, http.StatusBadRequest, "invalid form", err)
			return
		}
		form = settings.FormFromValues(c.Request.PostForm)
	}
	if err := h.settings.Save(c.Request.Context(), form); err != nil {
		failure(c, http.StatusInternalServerError, "failed to save settings", err)
		return
	}
	if v, ok := h.view(c); ok {
		success(c, "settings saved", v)
	}
}

func (h *Handler) notices(c *gin.Context) {
	cfg, err := h.settings.Load(c.Request.Context())
	if err != nil {
		failure(c, http.StatusInternalServerError, "failed to load settings", err)
		return
	}
	notices := []gin.H{}
	if in, ok := settings.DetectConflict(cfg, h.integrations()); ok {
		notices = append(notices, gin.H{
			"type":        "conflict",
			"integration": in,
			"message":     in.Name + " also manages robots directives; both may emit conflicting tags.",
		})
	}
	success(c, "notices", notices)
}

// GET /admin/resolve?path=/category/news/&status=200&context=... dry-runs a request.
func (h *Handler) resolve(c *gin.Context) {
	if h.robots == nil {
		failure(c, http.StatusNotImplemented, "resolver not configured", nil)
		return
	}
	path := c.DefaultQuery("path", "/")
	if !strings.HasPrefix(path, "/") {
		failure(c, http.StatusBadRequest, "path must start with /", nil)
		return
	}
	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodGet, path, nil)
	if err != nil {
		failure(c, http.StatusBadRequest, "invalid path", err)
		return
	}
	q := h.robots.Classify(req)

	status, _ := strconv.Atoi(c.DefaultQuery("status", "200"))
	hints := http.Header{}
	if v := c.Query("context"); v != "" {
		hints.Set(classifier.HintContext, v)
	}
	if v := c.Query("item"); v != "" {
		hints.Set(classifier.HintItem, v)
	}
	q = classifier.ApplyResponse(q, status, hints)

	d, err := h.robots.Decide(c.Request.Context(), q, c.Query("headers_sent") == "1")
	if err != nil {
		failure(c, http.StatusInternalServerError, "failed to resolve", err)
		return
	}
	success(c, "decision", gin.H{"query": q, "decision": d})
}

type auditRequest struct {
	URLs        []string `json:"urls" binding:"required"`
	Concurrency int      `json:"concurrency"`
}

func (h *Handler) audit(c *gin.Context) {
	var req auditRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.URLs) == 0 {
		failure(c, http.StatusBadRequest, "invalid payload", err)
		return
	}
	if len(req.URLs) > maxAuditURL {
		failure(c, http.StatusBadRequest, "too many urls", nil)
		return
	}
	success(c, "audit finished", h.auditor.AuditAll(c.Request.Context(), req.URLs, req.Concurrency))
}

func itemID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		failure(c, http.StatusBadRequest, "invalid item id", err)
		return 0, false
	}
	return id, true
}

// writeError maps settings errors onto status codes.
func writeError(c *gin.Context, err error) {
	if errors.Is(err, settings.ErrGranularDisabled) {
		failure(c, http.StatusConflict, "granular control is disabled", err)
		return
	}
	failure(c, http.StatusInternalServerError, "operation failed", err)
}

type itemView struct {
	ItemID uint64             `json:"itemId"`
	State  settings.ItemState `json:"state"`
}

func (h *Handler) listOverrides(c *gin.Context) {
	ctx := c.Request.Context()
	ids, err := h.settings.ItemsWithOverride(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]itemView, 0, len(ids))
	for _, id := range ids {
		st, err := h.settings.State(ctx, id)
		if err != nil {
			writeError(c, err)
			return
		}
		out = append(out, itemView{ItemID: id, State: st})
	}
	success(c, "overrides", out)
}

func (h *Handler) getOverride(c *gin.Context) {
	id, ok := itemID(c)
	if !ok {
		return
	}
	st, err := h.settings.State(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	success(c, "override", itemView{ItemID: id, State: st})
}

func (h *Handler) putOverride(c *gin.Context) {
	id, ok := itemID(c)
	if !ok {
		return
	}
	var ov models.Override
	if err := c.ShouldBindJSON(&ov); err != nil {
		failure(c, http.StatusBadRequest, "invalid payload", err)
		return
	}
	h.saveOverride(c, id, ov)
}

func (h *Handler) saveOverride(c *gin.Context, id uint64, ov models.Override) {
	ctx := c.Request.Context()
	if err := h.settings.SaveOverride(ctx, id, ov); err != nil {
		writeError(c, err)
		return
	}
	st, err := h.settings.State(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	success(c, "override saved", itemView{ItemID: id, State: st})
}

func (h *Handler) deleteOverride(c *gin.Context) {
	id, ok := itemID(c)
	if !ok {
		return
	}
	if err := h.settings.DeleteItem(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	success(c, "override removed", gin.H{"itemId": id})
}

// quickEdit takes either the row's cached "state" JSON or one field per key
// ("override", "noindex", ...).
func (h *Handler) quickEdit(c *gin.Context) {
	id, ok := itemID(c)
	if !ok {
		return
	}
	var st settings.ItemState
	if raw, ok := c.GetPostForm("state"); ok {
		if st, ok = settings.ParseState(raw); !ok {
			failure(c, http.StatusBadRequest, "invalid state", nil)
			return
		}
	} else {
		st = settings.ItemState{settings.StateKeyOverride: absFormInt(c, settings.StateKeyOverride)}
		for _, d := range models.AllDirectives {
			st[string(d)] = absFormInt(c, string(d))
		}
	}
	h.saveOverride(c, id, st.Override())
}

func absFormInt(c *gin.Context, key string) int {
	n, err := strconv.Atoi(strings.TrimSpace(c.PostForm(key)))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func (h *Handler) preview(c *gin.Context) {
	id, ok := itemID(c)
	if !ok {
		return
	}
	p, err := h.settings.Preview(c.Request.Context(), id, c.Query("type") == "page")
	if err != nil {
		writeError(c, err)
		return
	}
	success(c, "preview", p)
}

type bulkRequest struct {
	Action string   `json:"action" binding:"required,oneof=enable disable"`
	IDs    []uint64 `json:"ids" binding:"required"`
}

func (h *Handler) bulk(c *gin.Context) {
	var req bulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failure(c, http.StatusBadRequest, "invalid payload", err)
		return
	}
	ctx := c.Request.Context()
	var (
		n   int
		err error
	)
	if req.Action == "enable" {
		n, err = h.settings.BulkEnable(ctx, req.IDs)
	} else {
		n, err = h.settings.BulkDisable(ctx, req.IDs)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	success(c, "bulk "+req.Action+" done", gin.H{"updated": n})
}
