package routes

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/aidanjnn/sketchy/internal/api/http/middleware"
	"github.com/aidanjnn/sketchy/internal/auth"
	genservice "github.com/aidanjnn/sketchy/internal/generation/service"
	"github.com/aidanjnn/sketchy/internal/platform/logger"
	projecthttp "github.com/aidanjnn/sketchy/internal/projects/http"
	"github.com/aidanjnn/sketchy/internal/projects/service"
)

type V1Deps struct {
	// Auth resolves the owner of each request.
	Auth            gin.HandlerFunc
	Projects        *service.ProjectService
	Versions        *service.VersionService
	Pipeline        *genservice.Pipeline
	Upgrader        *websocket.Upgrader
	GenerateLimiter *middleware.RateLimiter
	Debounce        time.Duration
	Log             *logger.Logger
}

func RegisterV1(r *gin.Engine, dep V1Deps) {
	api := r.Group("/api/v1")
	if dep.Auth != nil {
		api.Use(dep.Auth)
	}

	h := projecthttp.New(projecthttp.Deps{
		Projects: dep.Projects,
		Versions: dep.Versions,
		Pipeline: dep.Pipeline,
		Upgrader: dep.Upgrader,
		Debounce: dep.Debounce,
		Log:      dep.Log,
	})

	var generate []gin.HandlerFunc
	if dep.GenerateLimiter != nil {
		generate = append(generate, middleware.RateLimitBy(dep.GenerateLimiter, auth.OwnerID))
	}
	h.Register(api.Group("/projects"), generate...)
}
