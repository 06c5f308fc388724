// Package memstore is an in-memory project and version store with the same
// semantics as the Postgres repositories. It backs tests and offline tooling.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aidanjnn/sketchy/internal/projects/domain"
)

type project struct {
	domain.Project
	seq       int
	deletedAt *time.Time
}

type Store struct {
	mu       sync.Mutex
	now      func() time.Time
	nextID   int
	projects map[string]*project
	versions map[string][]domain.Version

	failWrites error
}

func New() *Store {
	return &Store{
		now:      time.Now,
		projects: make(map[string]*project),
		versions: make(map[string][]domain.Version),
	}
}

// SetClock replaces the time source.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// FailWrites makes every later mutating call return err; nil clears it.
func (s *Store) FailWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWrites = err
}

func (s *Store) tick() time.Time {
	return s.now().UTC()
}

func (s *Store) Create(_ context.Context, ownerID, name string, snapshot json.RawMessage) (*domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWrites != nil {
		return nil, s.failWrites
	}
	if strings.TrimSpace(ownerID) == "" {
		return nil, fmt.Errorf("owner id required")
	}

	name = strings.TrimSpace(name)
	if name == "" {
		var existing []string
		for _, p := range s.projects {
			if p.OwnerID == ownerID {
				existing = append(existing, p.Name)
			}
		}
		name = domain.NextUntitledName(existing)
	}

	s.nextID++
	now := s.tick()
	p := &project{Project: domain.Project{
		ID:             fmt.Sprintf("site-%05d-%04d", 10000+s.nextID, s.nextID%10000),
		OwnerID:        ownerID,
		Name:           name,
		CanvasSnapshot: domain.NormalizeSnapshot(snapshot),
		CreatedAt:      now,
		UpdatedAt:      now,
	}}
	s.projects[p.ID] = p
	out := p.Project
	return &out, nil
}

func (s *Store) List(_ context.Context, ownerID string, limit int) ([]domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Project, 0)
	for _, p := range s.projects {
		if p.OwnerID == ownerID && p.deletedAt == nil {
			out = append(out, p.Project)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if limit <= 0 {
		limit = 20
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) Get(_ context.Context, ownerID, id string) (*domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.live(id)
	if !ok || p.OwnerID != ownerID {
		return nil, domain.ErrNotFound
	}
	out := p.Project
	return &out, nil
}

func (s *Store) Update(_ context.Context, ownerID, id string, u domain.ProjectUpdate) (*domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWrites != nil {
		return nil, s.failWrites
	}
	p, ok := s.live(id)
	if !ok || p.OwnerID != ownerID {
		return nil, domain.ErrNotFound
	}
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.CanvasSnapshot != nil {
		p.CanvasSnapshot = domain.NormalizeSnapshot(u.CanvasSnapshot)
	}
	if u.LiveArtifact != nil {
		p.LiveArtifact = *u.LiveArtifact
	}
	p.UpdatedAt = s.tick()
	out := p.Project
	return &out, nil
}

func (s *Store) SoftDelete(_ context.Context, ownerID, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.live(id)
	if !ok || p.OwnerID != ownerID {
		return false, nil
	}
	now := s.tick()
	p.deletedAt = &now
	p.UpdatedAt = now
	return true, nil
}

func (s *Store) PurgeDeleted(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, p := range s.projects {
		if p.deletedAt != nil && p.deletedAt.Before(cutoff) {
			delete(s.projects, id)
			delete(s.versions, id)
			n++
		}
	}
	return n, nil
}

// Versions is the version-log view of a Store.
type Versions struct {
	s *Store
}

// Versions returns the version log sharing this store's projects.
func (s *Store) Versions() *Versions {
	return &Versions{s: s}
}

func (vs *Versions) Append(_ context.Context, projectID string, snapshot json.RawMessage, a domain.Artifact) (*domain.Version, error) {
	s := vs.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWrites != nil {
		return nil, s.failWrites
	}
	p, ok := s.live(projectID)
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s.appendLocked(p, snapshot, a), nil
}

// Record appends a version and sets the live artifact under one lock.
func (vs *Versions) Record(_ context.Context, projectID string, snapshot json.RawMessage, a domain.Artifact) (*domain.Version, *domain.Project, error) {
	s := vs.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWrites != nil {
		return nil, nil, s.failWrites
	}
	p, ok := s.live(projectID)
	if !ok {
		return nil, nil, domain.ErrNotFound
	}
	v := s.appendLocked(p, snapshot, a)
	p.LiveArtifact = a
	out := p.Project
	return v, &out, nil
}

func (s *Store) appendLocked(p *project, snapshot json.RawMessage, a domain.Artifact) *domain.Version {
	projectID := p.ID

	maxStored := 0
	for _, v := range s.versions[projectID] {
		maxStored = max(maxStored, v.VersionNumber)
	}
	next := max(p.seq, maxStored) + 1
	p.seq = next
	now := s.tick()
	p.UpdatedAt = now

	v := domain.Version{
		ID:                uuid.NewString(),
		ProjectID:         projectID,
		VersionNumber:     next,
		CanvasSnapshot:    domain.NormalizeSnapshot(snapshot),
		GeneratedArtifact: a,
		CreatedAt:         now,
	}
	s.versions[projectID] = append(s.versions[projectID], v)
	return &v
}

// List yields summaries newest first; every range takes a fresh snapshot.
func (vs *Versions) List(_ context.Context, projectID string, limit int) iter.Seq2[domain.VersionSummary, error] {
	if limit <= 0 {
		limit = 50
	}
	limit = min(limit, 100)
	return func(yield func(domain.VersionSummary, error) bool) {
		vs.s.mu.Lock()
		stored := append([]domain.Version(nil), vs.s.versions[projectID]...)
		vs.s.mu.Unlock()

		sort.Slice(stored, func(i, j int) bool { return stored[i].VersionNumber > stored[j].VersionNumber })
		for i, v := range stored {
			if i >= limit {
				return
			}
			if !yield(v.Summary(), nil) {
				return
			}
		}
	}
}

func (vs *Versions) Get(_ context.Context, projectID, versionID string) (*domain.Version, error) {
	s := vs.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, v := range s.versions[projectID] {
		if v.ID == versionID {
			out := v
			return &out, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (vs *Versions) Restore(_ context.Context, projectID, versionID string) (*domain.Project, error) {
	s := vs.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWrites != nil {
		return nil, s.failWrites
	}
	p, ok := s.live(projectID)
	if !ok {
		return nil, domain.ErrNotFound
	}
	for _, v := range s.versions[projectID] {
		if v.ID == versionID {
			p.CanvasSnapshot = v.CanvasSnapshot
			p.LiveArtifact = v.GeneratedArtifact
			p.UpdatedAt = s.tick()
			out := p.Project
			return &out, nil
		}
	}
	return nil, domain.ErrNotFound
}

// DeleteVersion removes a stored version, as an operator cleanup would.
func (s *Store) DeleteVersion(projectID, versionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	vs := s.versions[projectID]
	for i, v := range vs {
		if v.ID == versionID {
			s.versions[projectID] = append(vs[:i:i], vs[i+1:]...)
			return true
		}
	}
	return false
}

// VersionCount returns the number of stored versions for a project.
func (s *Store) VersionCount(projectID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.versions[projectID])
}

func (s *Store) live(id string) (*project, bool) {
	p, ok := s.projects[id]
	if !ok || p.deletedAt != nil {
		return nil, false
	}
	return p, true
}
