package http

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/a-h/templ"
	"github.com/gin-gonic/gin"

	"github.com/aidanjnn/sketchy/internal/auth"
	genservice "github.com/aidanjnn/sketchy/internal/generation/service"
	"github.com/aidanjnn/sketchy/internal/platform/apierr"
	"github.com/aidanjnn/sketchy/internal/projects/domain"
	"github.com/aidanjnn/sketchy/internal/projects/service"
	"github.com/aidanjnn/sketchy/internal/render"
	"github.com/aidanjnn/sketchy/internal/session"
	"github.com/aidanjnn/sketchy/internal/session/ws"
)

func (h *Handler) fail(c *gin.Context, err error) {
	e := apierr.From(err)
	if e.Status >= http.StatusInternalServerError {
		h.log.ForContext(c.Request.Context()).Error("request failed",
			"path", c.FullPath(), "reason", e.Reason, "error", err)
	}
	c.JSON(e.Status, gin.H{"ok": false, "error": e})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": &apierr.Error{
		Status: http.StatusBadRequest, Reason: "bad_request", Message: msg,
	}})
}

func queryLimit(c *gin.Context) (int, bool) {
	raw := strings.TrimSpace(c.Query("limit"))
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func (h *Handler) list(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		badRequest(c, "invalid limit")
		return
	}
	items, err := h.projects.List(c.Request.Context(), auth.OwnerID(c), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "projects": items})
}

func (h *Handler) create(c *gin.Context) {
	var req createReq
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid body")
			return
		}
	}

	p, err := h.projects.Create(c.Request.Context(), auth.OwnerID(c), req.Name, req.CanvasSnapshot)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ok": true, "project": p})
}

func (h *Handler) get(c *gin.Context) {
	p, err := h.projects.Get(c.Request.Context(), auth.OwnerID(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "project": p})
}

func (h *Handler) update(c *gin.Context) {
	var req updateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body")
		return
	}

	p, err := h.projects.Update(c.Request.Context(), auth.OwnerID(c), c.Param("id"), domain.ProjectUpdate{
		Name:           req.Name,
		CanvasSnapshot: req.CanvasSnapshot,
		LiveArtifact:   req.LiveArtifact,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "project": p})
}

func (h *Handler) delete(c *gin.Context) {
	ok, err := h.projects.Delete(c.Request.Context(), auth.OwnerID(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if !ok {
		h.fail(c, domain.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) listVersions(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		badRequest(c, "invalid limit")
		return
	}

	seq, err := h.versions.List(c.Request.Context(), auth.OwnerID(c), c.Param("id"), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	items := make([]domain.VersionSummary, 0)
	for v, err := range seq {
		if err != nil {
			h.fail(c, err)
			return
		}
		items = append(items, v)
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "versions": items})
}

// appendVersion records a milestone. Omitted fields default to the live values.
func (h *Handler) appendVersion(c *gin.Context) {
	var req appendVersionReq
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid body")
			return
		}
	}

	ctx := c.Request.Context()
	owner, id := auth.OwnerID(c), c.Param("id")
	if req.CanvasSnapshot == nil || req.Artifact == nil {
		p, err := h.projects.Get(ctx, owner, id)
		if err != nil {
			h.fail(c, err)
			return
		}
		if req.CanvasSnapshot == nil {
			req.CanvasSnapshot = p.CanvasSnapshot
		}
		if req.Artifact == nil {
			req.Artifact = &p.LiveArtifact
		}
	}

	v, err := h.versions.Append(ctx, owner, id, req.CanvasSnapshot, *req.Artifact)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ok": true, "version": v})
}

func (h *Handler) getVersion(c *gin.Context) {
	v, err := h.versions.Get(c.Request.Context(), auth.OwnerID(c), c.Param("id"), c.Param("versionId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "version": v})
}

func (h *Handler) restoreVersion(c *gin.Context) {
	p, err := h.versions.Restore(c.Request.Context(), auth.OwnerID(c), c.Param("id"), c.Param("versionId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "project": p})
}

func (h *Handler) generate(c *gin.Context) {
	var req generateReq
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid body")
			return
		}
	}

	res, err := h.pipeline.Run(c.Request.Context(), genservice.Request{
		ProjectID:   c.Param("id"),
		OwnerID:     auth.OwnerID(c),
		Snapshot:    req.CanvasSnapshot,
		Selection:   req.Selection,
		Style:       req.Style,
		Instruction: req.Instruction,
		Incremental: req.Incremental,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "generation": res})
}

func (h *Handler) document(c *gin.Context) {
	p, err := h.projects.Get(c.Request.Context(), auth.OwnerID(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.writeDocument(c, p.Name, p.LiveArtifact)
}

func (h *Handler) versionDocument(c *gin.Context) {
	v, err := h.versions.Get(c.Request.Context(), auth.OwnerID(c), c.Param("id"), c.Param("versionId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.writeDocument(c, fmt.Sprintf("Version %d", v.VersionNumber), v.GeneratedArtifact)
}

func (h *Handler) writeDocument(c *gin.Context, title string, a domain.Artifact) {
	c.Header("Cache-Control", "no-store")
	templ.Handler(render.Document(title, a),
		templ.WithContentType(render.ContentType),
		templ.WithErrorHandler(func(r *http.Request, err error) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Del("Content-Type")
				w.Header().Del("Cache-Control")
				h.fail(c, err)
			})
		}),
	).ServeHTTP(c.Writer, c.Request)
}

// session upgrades to a WebSocket editing session. Ownership is checked
// before the upgrade so a missing project is a plain 404.
func (h *Handler) session(c *gin.Context) {
	ctx := c.Request.Context()
	owner, id := auth.OwnerID(c), c.Param("id")
	if _, err := h.projects.Get(ctx, owner, id); err != nil {
		h.fail(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.ForContext(ctx).Warn("websocket upgrade failed", "error", err)
		return
	}

	ctl := session.NewController(session.Options{
		ProjectID: id,
		OwnerID:   owner,
		Store:     service.NewOwnerStore(owner, h.projects, h.versions),
		Generator: h.pipeline,
		Debounce:  h.debounce,
		Log:       h.log,
	})
	if err := ws.NewSession(conn, ctl, h.log).Serve(ctx); err != nil {
		h.log.ForContext(ctx).Debug("session ended", "error", err)
	}
}
