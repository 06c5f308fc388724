// Package service runs the generation pipeline: build the payload, call the
// model, parse its output and record the result.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aidanjnn/sketchy/internal/generation/artifact"
	"github.com/aidanjnn/sketchy/internal/generation/canvas"
	"github.com/aidanjnn/sketchy/internal/generation/prompt"
	"github.com/aidanjnn/sketchy/internal/generation/upstream"
	"github.com/aidanjnn/sketchy/internal/metrics"
	"github.com/aidanjnn/sketchy/internal/platform/logger"
	"github.com/aidanjnn/sketchy/internal/projects/domain"
)

type Projects interface {
	Get(ctx context.Context, ownerID, id string) (*domain.Project, error)
}

// Versions records a generation. Record must append the version and set the
// live artifact atomically.
type Versions interface {
	Record(ctx context.Context, ownerID, projectID string, snapshot json.RawMessage, a domain.Artifact) (*domain.Version, *domain.Project, error)
}

type Generator interface {
	Generate(ctx context.Context, key string, p *prompt.Payload) (string, error)
}

type Request struct {
	ProjectID string
	OwnerID   string
	// Snapshot overrides the persisted canvas; nil uses the stored one.
	Snapshot    json.RawMessage
	Selection   []string
	Style       prompt.Style
	Instruction string
	Incremental bool
	// Baseline overrides the stored live artifact used on the incremental path.
	Baseline *domain.Artifact
}

type Result struct {
	Artifact domain.Artifact `json:"artifact"`
	Version  *domain.Version `json:"version"`
	Project  *domain.Project `json:"project"`
	Stage    artifact.Stage  `json:"parse_stage"`
	Analysis json.RawMessage `json:"analysis,omitempty"`
	Changes  string          `json:"changes,omitempty"`
}

type Pipeline struct {
	builder   *prompt.Builder
	generator Generator
	projects  Projects
	versions  Versions
	log       *logger.Logger
}

func NewPipeline(builder *prompt.Builder, generator Generator, projects Projects, versions Versions, log *logger.Logger) *Pipeline {
	if log == nil {
		log = logger.Nop()
	}
	return &Pipeline{
		builder:   builder,
		generator: generator,
		projects:  projects,
		versions:  versions,
		log:       log.With("component", "generation_pipeline"),
	}
}

// Run generates a new artifact for the project. On success a version is
// appended and its artifact becomes live in a single write. A failed write
// after a successful generation is returned as a PersistenceError and leaves
// the project unchanged.
func (p *Pipeline) Run(ctx context.Context, req Request) (res *Result, err error) {
	log := p.log.ForContext(ctx).With("project_id", req.ProjectID, "incremental", req.Incremental)
	defer func() {
		metrics.GenerationsTotal.WithLabelValues(Outcome(err)).Inc()
	}()

	project, err := p.projects.Get(ctx, req.OwnerID, req.ProjectID)
	if err != nil {
		return nil, err
	}

	snapshot := req.Snapshot
	if snapshot == nil {
		snapshot = project.CanvasSnapshot
	}

	var previous *domain.Artifact
	if req.Incremental {
		previous = &project.LiveArtifact
		if req.Baseline != nil {
			previous = req.Baseline
		}
	}

	payload, err := p.builder.Build(ctx, prompt.Input{
		Snapshot:    snapshot,
		Selection:   req.Selection,
		Style:       req.Style,
		Previous:    previous,
		Instruction: req.Instruction,
	})
	if err != nil {
		return nil, err
	}

	raw, err := p.generator.Generate(ctx, req.ProjectID, payload)
	if err != nil {
		return nil, err
	}

	out, err := artifact.ParseOutput(raw)
	if err != nil {
		log.Warn("model output could not be parsed", "error", err, "chars", len(raw))
		return nil, err
	}
	metrics.ParseStageTotal.WithLabelValues(string(out.Stage)).Inc()

	version, updated, err := p.versions.Record(ctx, req.OwnerID, req.ProjectID, snapshot, out.Artifact)
	if err != nil {
		return nil, domain.NewPersistenceError("record generation", err)
	}

	log.Info("generation recorded", "version", version.VersionNumber, "parse_stage", out.Stage)
	return &Result{
		Artifact: out.Artifact,
		Version:  version,
		Project:  updated,
		Stage:    out.Stage,
		Analysis: out.Analysis,
		Changes:  out.Changes,
	}, nil
}

// Outcome maps a pipeline error to its metrics label.
func Outcome(err error) string {
	var (
		pe  *artifact.ParseError
		per *domain.PersistenceError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, canvas.ErrEmptyCanvas):
		return "empty_canvas"
	case errors.Is(err, upstream.ErrBusy):
		return "busy"
	case upstream.ReasonOf(err) != "":
		return string(upstream.ReasonOf(err))
	case errors.As(err, &pe):
		return "parse"
	case errors.As(err, &per):
		return "persistence"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

// Describe returns a short user-facing message for a pipeline error.
func Describe(err error) string {
	switch Outcome(err) {
	case "empty_canvas":
		return "Draw something on the canvas first."
	case "busy":
		return "A generation is already running for this project."
	case string(upstream.ReasonTimeout):
		return "The model took too long to respond. Try again."
	case string(upstream.ReasonTruncated):
		return "The response was cut off. Try simplifying the sketch."
	case string(upstream.ReasonRejected):
		return "The model declined this request."
	case string(upstream.ReasonTransport):
		return "Could not reach the model. Try again."
	case "parse":
		return "The model returned an unreadable response. Try again."
	case "persistence":
		return "The result was generated but could not be saved."
	case "not_found":
		return "Project not found."
	default:
		return fmt.Sprintf("Generation failed: %v", err)
	}
}
