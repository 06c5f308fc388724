package http

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aidanjnn/sketchy/internal/generation/prompt"
	genservice "github.com/aidanjnn/sketchy/internal/generation/service"
	"github.com/aidanjnn/sketchy/internal/platform/logger"
	"github.com/aidanjnn/sketchy/internal/projects/domain"
	"github.com/aidanjnn/sketchy/internal/projects/service"
)

// Handler bundles the dependencies for projects HTTP endpoints.
type Handler struct {
	projects *service.ProjectService
	versions *service.VersionService
	pipeline *genservice.Pipeline
	upgrader *websocket.Upgrader
	debounce time.Duration
	log      *logger.Logger
}

type Deps struct {
	Projects *service.ProjectService
	Versions *service.VersionService
	Pipeline *genservice.Pipeline
	Upgrader *websocket.Upgrader
	// Debounce is the auto-save delay of editing sessions.
	Debounce time.Duration
	Log      *logger.Logger
}

func New(dep Deps) *Handler {
	log := dep.Log
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{
		projects: dep.Projects,
		versions: dep.Versions,
		pipeline: dep.Pipeline,
		upgrader: dep.Upgrader,
		debounce: dep.Debounce,
		log:      log.With("component", "projects_http"),
	}
}

type createReq struct {
	Name           string          `json:"name"`
	CanvasSnapshot json.RawMessage `json:"canvas_snapshot"`
}

type updateReq struct {
	Name           *string          `json:"name"`
	CanvasSnapshot json.RawMessage  `json:"canvas_snapshot"`
	LiveArtifact   *domain.Artifact `json:"live_artifact"`
}

type appendVersionReq struct {
	CanvasSnapshot json.RawMessage  `json:"canvas_snapshot"`
	Artifact       *domain.Artifact `json:"artifact"`
}

type generateReq struct {
	CanvasSnapshot json.RawMessage `json:"canvas_snapshot"`
	Selection      []string        `json:"selection"`
	Style          prompt.Style    `json:"style"`
	Instruction    string          `json:"instruction"`
	Incremental    bool            `json:"incremental"`
}
