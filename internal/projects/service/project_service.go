package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aidanjnn/sketchy/internal/metrics"
	"github.com/aidanjnn/sketchy/internal/projects/domain"
)

const maxNameLength = 200

// ProjectStore is the persistence the project service needs.
type ProjectStore interface {
	Create(ctx context.Context, ownerID, name string, snapshot json.RawMessage) (*domain.Project, error)
	List(ctx context.Context, ownerID string, limit int) ([]domain.Project, error)
	Get(ctx context.Context, ownerID, id string) (*domain.Project, error)
	Update(ctx context.Context, ownerID, id string, u domain.ProjectUpdate) (*domain.Project, error)
	SoftDelete(ctx context.Context, ownerID, id string) (bool, error)
	PurgeDeleted(ctx context.Context, cutoff time.Time) (int64, error)
}

// ProjectService handles project-related business logic
type ProjectService struct {
	repo ProjectStore
}

// NewProjectService creates a new project service
func NewProjectService(repo ProjectStore) *ProjectService {
	return &ProjectService{
		repo: repo,
	}
}

// Create creates a new project. An empty name selects the next placeholder name.
func (s *ProjectService) Create(ctx context.Context, ownerID, name string, snapshot json.RawMessage) (*domain.Project, error) {
	name = strings.TrimSpace(name)
	if err := validateName(name, true); err != nil {
		return nil, err
	}
	if err := validateSnapshot(snapshot); err != nil {
		return nil, err
	}
	return s.repo.Create(ctx, ownerID, name, snapshot)
}

// List returns the owner's projects, most recently updated first
func (s *ProjectService) List(ctx context.Context, ownerID string, limit int) ([]domain.Project, error) {
	return s.repo.List(ctx, ownerID, limit)
}

func (s *ProjectService) Get(ctx context.Context, ownerID, id string) (*domain.Project, error) {
	return s.repo.Get(ctx, ownerID, id)
}

// Update applies a partial update of name, snapshot and live artifact
func (s *ProjectService) Update(ctx context.Context, ownerID, id string, u domain.ProjectUpdate) (*domain.Project, error) {
	if u.Name != nil {
		trimmed := strings.TrimSpace(*u.Name)
		if err := validateName(trimmed, false); err != nil {
			return nil, err
		}
		u.Name = &trimmed
	}
	if err := validateSnapshot(u.CanvasSnapshot); err != nil {
		return nil, err
	}
	if u.IsEmpty() {
		return s.repo.Get(ctx, ownerID, id)
	}

	p, err := s.repo.Update(ctx, ownerID, id, u)
	if err != nil {
		return nil, domain.NewPersistenceError("update project", err)
	}
	return p, nil
}

// SaveSnapshot persists only the canvas snapshot. Used by auto-save.
func (s *ProjectService) SaveSnapshot(ctx context.Context, ownerID, id string, snapshot json.RawMessage) error {
	_, err := s.Update(ctx, ownerID, id, domain.ProjectUpdate{CanvasSnapshot: domain.NormalizeSnapshot(snapshot)})
	return err
}

// SetLiveArtifact replaces the live artifact without recording a version.
func (s *ProjectService) SetLiveArtifact(ctx context.Context, ownerID, id string, a domain.Artifact) (*domain.Project, error) {
	return s.Update(ctx, ownerID, id, domain.ProjectUpdate{LiveArtifact: &a})
}

// Delete soft-deletes a project
func (s *ProjectService) Delete(ctx context.Context, ownerID, id string) (bool, error) {
	return s.repo.SoftDelete(ctx, ownerID, id)
}

// Purge removes projects soft-deleted longer than retention ago.
func (s *ProjectService) Purge(ctx context.Context, retention time.Duration) (int64, error) {
	if retention < 0 {
		return 0, fmt.Errorf("retention must not be negative")
	}
	n, err := s.repo.PurgeDeleted(ctx, time.Now().UTC().Add(-retention))
	if err != nil {
		return 0, err
	}
	metrics.PurgedProjectsTotal.Add(float64(n))
	return n, nil
}

func validateName(name string, allowEmpty bool) error {
	if name == "" && !allowEmpty {
		return fmt.Errorf("%w: name must not be empty", domain.ErrInvalidName)
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return fmt.Errorf("%w: name longer than %d characters", domain.ErrInvalidName, maxNameLength)
	}
	return nil
}

func validateSnapshot(s json.RawMessage) error {
	if len(s) == 0 {
		return nil
	}
	if !json.Valid(s) {
		return domain.ErrInvalidSnapshot
	}
	return nil
}
