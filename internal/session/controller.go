// Package session reconciles the live document with historical previews for
// one editing session and schedules its auto-save.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/aidanjnn/sketchy/internal/generation/prompt"
	genservice "github.com/aidanjnn/sketchy/internal/generation/service"
	"github.com/aidanjnn/sketchy/internal/platform/logger"
	"github.com/aidanjnn/sketchy/internal/projects/domain"
)

type Mode string

const (
	ModeLive       Mode = "LIVE"
	ModePreviewing Mode = "PREVIEWING"
)

var (
	ErrNotLoaded            = errors.New("session not loaded")
	ErrReadOnlyPreview      = errors.New("previewed versions are read-only")
	ErrNotPreviewing        = errors.New("no version is being previewed")
	ErrGenerationInProgress = errors.New("a generation is already in progress")
	ErrStaleGeneration      = errors.New("generation result superseded")
	ErrRestoreInProgress    = errors.New("a restore is in progress")
)

// Store is the owner-scoped persistence a session works against.
type Store interface {
	GetProject(ctx context.Context, projectID string) (*domain.Project, error)
	SaveSnapshot(ctx context.Context, projectID string, snapshot json.RawMessage) error
	GetVersion(ctx context.Context, projectID, versionID string) (*domain.Version, error)
	ListVersions(ctx context.Context, projectID string, limit int) ([]domain.VersionSummary, error)
	RestoreVersion(ctx context.Context, projectID, versionID string) (*domain.Project, error)
}

type Generator interface {
	Run(ctx context.Context, req genservice.Request) (*genservice.Result, error)
}

// Display is what the editor shows: a canvas and the artifact rendered next to it.
type Display struct {
	Snapshot json.RawMessage `json:"snapshot"`
	Artifact domain.Artifact `json:"artifact"`
}

type State struct {
	Mode       Mode                   `json:"mode"`
	Display    Display                `json:"display"`
	Version    *domain.VersionSummary `json:"version,omitempty"`
	Generating bool                   `json:"generating"`
	Restoring  bool                   `json:"restoring"`
}

type GenerateOptions struct {
	Style       prompt.Style
	Selection   []string
	Instruction string
	Incremental bool
}

type Options struct {
	ProjectID string
	OwnerID   string
	Store     Store
	Generator Generator
	Debounce  time.Duration
	Log       *logger.Logger
}

// Controller owns the LIVE/PREVIEWING state of one editing session. While a
// version is previewed the live display is held in a cache and restored
// unchanged on exit.
type Controller struct {
	projectID string
	ownerID   string
	store     Store
	generator Generator
	saver     *AutoSaver
	log       *logger.Logger

	mu         sync.Mutex
	loaded     bool
	mode       Mode
	display    Display
	cache      *Display
	previewed  *domain.VersionSummary
	generating bool
	restoring  bool
	token      uint64
}

func NewController(opts Options) *Controller {
	log := opts.Log
	if log == nil {
		log = logger.Nop()
	}
	log = log.With("project_id", opts.ProjectID)
	return &Controller{
		projectID: opts.ProjectID,
		ownerID:   opts.OwnerID,
		store:     opts.Store,
		generator: opts.Generator,
		saver:     NewAutoSaver(opts.ProjectID, opts.Store, opts.Debounce, log),
		log:       log.With("component", "session"),
		mode:      ModeLive,
	}
}

func (c *Controller) ProjectID() string {
	return c.projectID
}

func (c *Controller) AutoSaver() *AutoSaver {
	return c.saver
}

// Load fetches the project and shows its live state. Any outstanding
// generation is invalidated.
func (c *Controller) Load(ctx context.Context) (State, error) {
	p, err := c.store.GetProject(ctx, c.projectID)
	if err != nil {
		return State{}, err
	}

	c.mu.Lock()
	c.loaded = true
	c.mode = ModeLive
	c.display = Display{Snapshot: domain.NormalizeSnapshot(p.CanvasSnapshot), Artifact: p.LiveArtifact}
	c.cache = nil
	c.previewed = nil
	c.generating = false
	c.token++
	st := c.stateLocked()
	c.mu.Unlock()

	c.saver.MarkLoaded(st.Display.Snapshot)
	return st, nil
}

// Edit replaces the live canvas and schedules an auto-save.
func (c *Controller) Edit(snapshot json.RawMessage) (State, error) {
	c.mu.Lock()
	if !c.loaded {
		c.mu.Unlock()
		return State{}, ErrNotLoaded
	}
	if c.mode == ModePreviewing {
		c.mu.Unlock()
		return State{}, ErrReadOnlyPreview
	}
	c.display.Snapshot = domain.NormalizeSnapshot(snapshot)
	st := c.stateLocked()
	c.mu.Unlock()

	c.saver.Notify(st.Display.Snapshot)
	return st, nil
}

// Preview shows a historical version. The live display is cached before the
// swap; previewing another version keeps the original cache. Previewing is
// allowed while a generation runs.
func (c *Controller) Preview(ctx context.Context, versionID string) (State, error) {
	c.mu.Lock()
	loaded, restoring := c.loaded, c.restoring
	c.mu.Unlock()
	switch {
	case !loaded:
		return State{}, ErrNotLoaded
	case restoring:
		return State{}, ErrRestoreInProgress
	}

	v, err := c.store.GetVersion(ctx, c.projectID, versionID)
	if err != nil {
		return State{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.restoring {
		return State{}, ErrRestoreInProgress
	}
	if c.cache == nil {
		live := c.display
		c.cache = &live
	}
	summary := v.Summary()
	c.previewed = &summary
	c.display = Display{Snapshot: domain.NormalizeSnapshot(v.CanvasSnapshot), Artifact: v.GeneratedArtifact}
	c.mode = ModePreviewing
	return c.stateLocked(), nil
}

// ExitToLive returns to the cached live display without persisting anything.
func (c *Controller) ExitToLive() (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.restoring {
		return State{}, ErrRestoreInProgress
	}
	c.exitLocked()
	return c.stateLocked(), nil
}

func (c *Controller) exitLocked() {
	if c.mode != ModePreviewing {
		return
	}
	if c.cache != nil {
		c.display = *c.cache
	}
	c.cache = nil
	c.previewed = nil
	c.mode = ModeLive
}

// Restore promotes the previewed version to live. Auto-save is suspended for
// the duration; on failure the session stays in preview and the cached live
// snapshot is scheduled for saving again.
func (c *Controller) Restore(ctx context.Context) (State, error) {
	c.mu.Lock()
	if c.mode != ModePreviewing || c.previewed == nil {
		c.mu.Unlock()
		return State{}, ErrNotPreviewing
	}
	if err := c.checkIdle(); err != nil {
		c.mu.Unlock()
		return State{}, err
	}
	c.restoring = true
	versionID := c.previewed.ID
	c.mu.Unlock()

	c.saver.Suspend()
	p, err := c.store.RestoreVersion(ctx, c.projectID, versionID)

	c.mu.Lock()
	c.restoring = false
	if err != nil {
		live := c.liveLocked()
		c.mu.Unlock()
		c.saver.Resume(live.Snapshot)
		c.log.ForContext(ctx).Warn("restore failed", "version_id", versionID, "error", err)
		return State{}, err
	}

	c.display = Display{Snapshot: domain.NormalizeSnapshot(p.CanvasSnapshot), Artifact: p.LiveArtifact}
	c.cache = nil
	c.previewed = nil
	c.mode = ModeLive
	st := c.stateLocked()
	c.mu.Unlock()

	c.saver.Rebase(st.Display.Snapshot)
	c.log.ForContext(ctx).Info("version restored", "version_id", versionID)
	return st, nil
}

// Generate runs the pipeline against the live canvas. While previewing the
// live baseline comes from the cache and the result lands there too.
func (c *Controller) Generate(ctx context.Context, opts GenerateOptions) (*genservice.Result, State, error) {
	c.mu.Lock()
	if !c.loaded {
		c.mu.Unlock()
		return nil, State{}, ErrNotLoaded
	}
	if err := c.checkIdle(); err != nil {
		c.mu.Unlock()
		return nil, State{}, err
	}
	c.generating = true
	c.token++
	token := c.token
	live := c.liveLocked()
	c.mu.Unlock()

	req := genservice.Request{
		ProjectID:   c.projectID,
		OwnerID:     c.ownerID,
		Snapshot:    live.Snapshot,
		Selection:   opts.Selection,
		Style:       opts.Style,
		Instruction: opts.Instruction,
		Incremental: opts.Incremental,
	}
	if opts.Incremental {
		baseline := live.Artifact
		req.Baseline = &baseline
	}

	res, err := c.generator.Run(ctx, req)

	c.mu.Lock()
	defer c.mu.Unlock()
	if token != c.token {
		return nil, c.stateLocked(), ErrStaleGeneration
	}
	c.generating = false
	if err != nil {
		return nil, c.stateLocked(), err
	}

	if c.mode == ModePreviewing && c.cache != nil {
		c.cache.Artifact = res.Artifact
	} else {
		c.display.Artifact = res.Artifact
	}
	return res, c.stateLocked(), nil
}

func (c *Controller) Versions(ctx context.Context, limit int) ([]domain.VersionSummary, error) {
	return c.store.ListVersions(ctx, c.projectID, limit)
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// Flush persists any pending live edit immediately.
func (c *Controller) Flush(ctx context.Context) error {
	return c.saver.Flush(ctx)
}

func (c *Controller) Close(ctx context.Context) error {
	return c.saver.Close(ctx)
}

func (c *Controller) checkIdle() error {
	switch {
	case c.restoring:
		return ErrRestoreInProgress
	case c.generating:
		return ErrGenerationInProgress
	}
	return nil
}

func (c *Controller) liveLocked() Display {
	if c.mode == ModePreviewing && c.cache != nil {
		return *c.cache
	}
	return c.display
}

func (c *Controller) stateLocked() State {
	st := State{
		Mode:       c.mode,
		Display:    c.display,
		Generating: c.generating,
		Restoring:  c.restoring,
	}
	if c.previewed != nil {
		v := *c.previewed
		st.Version = &v
	}
	return st
}
