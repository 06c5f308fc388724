package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/google/uuid"

	"github.com/aidanjnn/sketchy/internal/projects/domain"
)

// VersionRepository provides persistence operations for project versions.
// Versions are append-only; only the owning project's live fields ever change.
type VersionRepository struct {
	db *sql.DB
}

// NewVersionRepository creates a new version repository
func NewVersionRepository(db *sql.DB) *VersionRepository {
	return &VersionRepository{db: db}
}

// Append records an immutable version. The number is one past the highest
// number ever issued for the project, so deleted numbers are never reused.
// The project row lock serializes concurrent appends.
func (r *VersionRepository) Append(ctx context.Context, projectID string, snapshot json.RawMessage, artifact domain.Artifact) (*domain.Version, error) {
	if strings.TrimSpace(projectID) == "" {
		return nil, fmt.Errorf("project id required")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	ver, err := insertVersion(ctx, tx, projectID, snapshot, artifact)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
update projects
set version_seq = $2,
    updated_at = now()
where id = $1
`, projectID, ver.VersionNumber); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return ver, nil
}

// Record appends a version and makes its artifact the project's live
// artifact in one transaction. Either both writes land or neither does.
func (r *VersionRepository) Record(ctx context.Context, projectID string, snapshot json.RawMessage, artifact domain.Artifact) (*domain.Version, *domain.Project, error) {
	if strings.TrimSpace(projectID) == "" {
		return nil, nil, fmt.Errorf("project id required")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	ver, err := insertVersion(ctx, tx, projectID, snapshot, artifact)
	if err != nil {
		return nil, nil, err
	}

	p, err := scanProject(tx.QueryRowContext(ctx, `
update projects
set version_seq = $2,
    live_markup = $3,
    live_styles = $4,
    live_script = $5,
    updated_at = now()
where id = $1
returning `+projectColumns,
		projectID, ver.VersionNumber, artifact.Markup, artifact.Styles, artifact.Script))
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return ver, p, nil
}

// insertVersion locks the project row and inserts the next version. The
// caller advances version_seq before committing.
func insertVersion(ctx context.Context, tx *sql.Tx, projectID string, snapshot json.RawMessage, artifact domain.Artifact) (*domain.Version, error) {
	var seq int
	err := tx.QueryRowContext(ctx, `
select version_seq
from projects
where id = $1
  and deleted_at is null
for update
`, projectID).Scan(&seq)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	var maxExisting int
	if err := tx.QueryRowContext(ctx, `
select coalesce(max(version_number), 0)
from project_versions
where project_id = $1
`, projectID).Scan(&maxExisting); err != nil {
		return nil, err
	}

	next := nextVersionNumber(seq, maxExisting)

	ver := domain.Version{
		ID:                uuid.NewString(),
		ProjectID:         projectID,
		VersionNumber:     next,
		CanvasSnapshot:    domain.NormalizeSnapshot(snapshot),
		GeneratedArtifact: artifact,
	}

	err = tx.QueryRowContext(ctx, `
insert into project_versions (
  id, project_id, version_number, canvas_snapshot, markup, styles, script
)
values ($1, $2, $3, $4::jsonb, $5, $6, $7)
returning created_at
`, ver.ID, projectID, next, snapshotArg(snapshot),
		artifact.Markup, artifact.Styles, artifact.Script,
	).Scan(&ver.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("version %d already exists for %s: %w", next, projectID, err)
		}
		return nil, err
	}
	return &ver, nil
}

// nextVersionNumber is one past both the highest number ever issued and the
// highest number still stored.
func nextVersionNumber(seq, maxExisting int) int {
	return max(seq, maxExisting) + 1
}

// List yields version summaries newest first, at most limit of them.
// Each range over the sequence runs a fresh query.
func (r *VersionRepository) List(ctx context.Context, projectID string, limit int) iter.Seq2[domain.VersionSummary, error] {
	limit = clampLimit(limit, DefaultVersionLimit)
	return func(yield func(domain.VersionSummary, error) bool) {
		rows, err := r.db.QueryContext(ctx, `
select id, project_id, version_number, created_at
from project_versions
where project_id = $1
order by version_number desc
limit $2
`, projectID, limit)
		if err != nil {
			yield(domain.VersionSummary{}, err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			var v domain.VersionSummary
			if err := rows.Scan(&v.ID, &v.ProjectID, &v.VersionNumber, &v.CreatedAt); err != nil {
				yield(domain.VersionSummary{}, err)
				return
			}
			if !yield(v, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(domain.VersionSummary{}, err)
		}
	}
}

// ListAll collects List into a slice.
func (r *VersionRepository) ListAll(ctx context.Context, projectID string, limit int) ([]domain.VersionSummary, error) {
	out := make([]domain.VersionSummary, 0, 16)
	for v, err := range r.List(ctx, projectID, limit) {
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Get returns one version of a project.
func (r *VersionRepository) Get(ctx context.Context, projectID, versionID string) (*domain.Version, error) {
	if _, err := uuid.Parse(versionID); err != nil {
		return nil, domain.ErrNotFound
	}

	var v domain.Version
	var snapshot string
	err := r.db.QueryRowContext(ctx, `
select id, project_id, version_number, canvas_snapshot::text, markup, styles, script, created_at
from project_versions
where id = $1 and project_id = $2
`, versionID, projectID).Scan(
		&v.ID, &v.ProjectID, &v.VersionNumber, &snapshot,
		&v.GeneratedArtifact.Markup, &v.GeneratedArtifact.Styles, &v.GeneratedArtifact.Script,
		&v.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	v.CanvasSnapshot = domain.NormalizeSnapshot(json.RawMessage(snapshot))
	return &v, nil
}

// Restore copies a version's snapshot and artifact into the project's live
// fields. No version is created.
func (r *VersionRepository) Restore(ctx context.Context, projectID, versionID string) (*domain.Project, error) {
	if _, err := uuid.Parse(versionID); err != nil {
		return nil, domain.ErrNotFound
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var ok string
	err = tx.QueryRowContext(ctx, `
select id
from projects
where id = $1
  and deleted_at is null
for update
`, projectID).Scan(&ok)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	p, err := scanProject(tx.QueryRowContext(ctx, `
update projects p
set canvas_snapshot = v.canvas_snapshot,
    live_markup = v.markup,
    live_styles = v.styles,
    live_script = v.script,
    updated_at = now()
from project_versions v
where p.id = $1
  and v.id = $2
  and v.project_id = p.id
returning p.id, p.owner_id, p.name, p.canvas_snapshot::text, p.live_markup, p.live_styles, p.live_script, p.created_at, p.updated_at
`, projectID, versionID))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return p, nil
}
