package service

import (
	"context"
	"encoding/json"
	"iter"

	"github.com/aidanjnn/sketchy/internal/metrics"
	"github.com/aidanjnn/sketchy/internal/projects/domain"
)

// VersionStore is the append-only version log.
type VersionStore interface {
	Append(ctx context.Context, projectID string, snapshot json.RawMessage, a domain.Artifact) (*domain.Version, error)
	Record(ctx context.Context, projectID string, snapshot json.RawMessage, a domain.Artifact) (*domain.Version, *domain.Project, error)
	List(ctx context.Context, projectID string, limit int) iter.Seq2[domain.VersionSummary, error]
	Get(ctx context.Context, projectID, versionID string) (*domain.Version, error)
	Restore(ctx context.Context, projectID, versionID string) (*domain.Project, error)
}

// VersionService scopes version operations to the project owner.
type VersionService struct {
	projects ProjectStore
	versions VersionStore
}

func NewVersionService(projects ProjectStore, versions VersionStore) *VersionService {
	return &VersionService{projects: projects, versions: versions}
}

func (s *VersionService) authorize(ctx context.Context, ownerID, projectID string) error {
	_, err := s.projects.Get(ctx, ownerID, projectID)
	return err
}

// Append records a milestone. Failures are surfaced as PersistenceError.
func (s *VersionService) Append(ctx context.Context, ownerID, projectID string, snapshot json.RawMessage, a domain.Artifact) (*domain.Version, error) {
	if err := s.authorize(ctx, ownerID, projectID); err != nil {
		return nil, domain.NewPersistenceError("append version", err)
	}
	if err := validateSnapshot(snapshot); err != nil {
		return nil, err
	}
	v, err := s.versions.Append(ctx, projectID, snapshot, a)
	if err != nil {
		return nil, domain.NewPersistenceError("append version", err)
	}
	metrics.VersionsAppendedTotal.Inc()
	return v, nil
}

// Record appends a generated version and promotes its artifact to live in one
// write. Failures are surfaced as PersistenceError and leave the project as it
// was.
func (s *VersionService) Record(ctx context.Context, ownerID, projectID string, snapshot json.RawMessage, a domain.Artifact) (*domain.Version, *domain.Project, error) {
	if err := s.authorize(ctx, ownerID, projectID); err != nil {
		return nil, nil, domain.NewPersistenceError("record generation", err)
	}
	v, p, err := s.versions.Record(ctx, projectID, snapshot, a)
	if err != nil {
		return nil, nil, domain.NewPersistenceError("record generation", err)
	}
	metrics.VersionsAppendedTotal.Inc()
	return v, p, nil
}

// List returns the lazy version sequence, newest first.
func (s *VersionService) List(ctx context.Context, ownerID, projectID string, limit int) (iter.Seq2[domain.VersionSummary, error], error) {
	if err := s.authorize(ctx, ownerID, projectID); err != nil {
		return nil, err
	}
	return s.versions.List(ctx, projectID, limit), nil
}

func (s *VersionService) ListAll(ctx context.Context, ownerID, projectID string, limit int) ([]domain.VersionSummary, error) {
	seq, err := s.List(ctx, ownerID, projectID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]domain.VersionSummary, 0, 16)
	for v, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *VersionService) Get(ctx context.Context, ownerID, projectID, versionID string) (*domain.Version, error) {
	if err := s.authorize(ctx, ownerID, projectID); err != nil {
		return nil, err
	}
	return s.versions.Get(ctx, projectID, versionID)
}

// Restore moves the live pointer back to a version. No version is appended.
func (s *VersionService) Restore(ctx context.Context, ownerID, projectID, versionID string) (*domain.Project, error) {
	if err := s.authorize(ctx, ownerID, projectID); err != nil {
		return nil, err
	}
	p, err := s.versions.Restore(ctx, projectID, versionID)
	if err != nil {
		return nil, domain.NewPersistenceError("restore version", err)
	}
	metrics.VersionsRestoredTotal.Inc()
	return p, nil
}
