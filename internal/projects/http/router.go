package http

import "github.com/gin-gonic/gin"

// Register attaches project routes to the given router group. generate is
// the middleware chain placed in front of the generate endpoint.
func (h *Handler) Register(rg *gin.RouterGroup, generate ...gin.HandlerFunc) {
	rg.GET("", h.list)
	rg.POST("", h.create)
	rg.GET("/:id", h.get)
	rg.PUT("/:id", h.update)
	rg.DELETE("/:id", h.delete)

	rg.GET("/:id/versions", h.listVersions)
	rg.POST("/:id/versions", h.appendVersion)
	rg.GET("/:id/versions/:versionId", h.getVersion)
	rg.POST("/:id/versions/:versionId", h.restoreVersion)

	rg.POST("/:id/generate", append(generate, h.generate)...)

	rg.GET("/:id/document", h.document)
	rg.GET("/:id/versions/:versionId/document", h.versionDocument)
	rg.GET("/:id/session", h.session)
}
