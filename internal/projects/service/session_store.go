package service

import (
	"context"
	"encoding/json"

	"github.com/aidanjnn/sketchy/internal/projects/domain"
)

// OwnerStore binds the project and version services to one owner, which is
// the view an editing session works against.
type OwnerStore struct {
	ownerID  string
	projects *ProjectService
	versions *VersionService
}

func NewOwnerStore(ownerID string, projects *ProjectService, versions *VersionService) *OwnerStore {
	return &OwnerStore{ownerID: ownerID, projects: projects, versions: versions}
}

func (s *OwnerStore) GetProject(ctx context.Context, projectID string) (*domain.Project, error) {
	return s.projects.Get(ctx, s.ownerID, projectID)
}

func (s *OwnerStore) SaveSnapshot(ctx context.Context, projectID string, snapshot json.RawMessage) error {
	return s.projects.SaveSnapshot(ctx, s.ownerID, projectID, snapshot)
}

func (s *OwnerStore) GetVersion(ctx context.Context, projectID, versionID string) (*domain.Version, error) {
	return s.versions.Get(ctx, s.ownerID, projectID, versionID)
}

func (s *OwnerStore) ListVersions(ctx context.Context, projectID string, limit int) ([]domain.VersionSummary, error) {
	return s.versions.ListAll(ctx, s.ownerID, projectID, limit)
}

func (s *OwnerStore) RestoreVersion(ctx context.Context, projectID, versionID string) (*domain.Project, error) {
	return s.versions.Restore(ctx, s.ownerID, projectID, versionID)
}
