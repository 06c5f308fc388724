package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aidanjnn/sketchy/internal/projects/domain"
	"github.com/aidanjnn/sketchy/internal/projects/utils"
)

const projectIDPrefix = "site"

// ProjectRepository provides persistence operations for projects
type ProjectRepository struct {
	db *sql.DB
}

// NewProjectRepository creates a new project repository
func NewProjectRepository(db *sql.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// Create inserts a new project. An empty name gets the next placeholder name
// for the owner; placeholder assignment is serialized per owner.
func (r *ProjectRepository) Create(ctx context.Context, ownerID, name string, snapshot json.RawMessage) (*domain.Project, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, fmt.Errorf("owner id required")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	name = strings.TrimSpace(name)
	if name == "" {
		if _, err := tx.ExecContext(ctx, `select pg_advisory_xact_lock(hashtext($1))`, ownerID); err != nil {
			return nil, err
		}
		existing, err := placeholderNames(ctx, tx, ownerID)
		if err != nil {
			return nil, err
		}
		name = domain.NextUntitledName(existing)
	}

	for i := 0; i < 5; i++ {
		id, err := utils.NewTextID(projectIDPrefix)
		if err != nil {
			return nil, err
		}

		p, err := scanProject(tx.QueryRowContext(ctx, `
insert into projects (id, owner_id, name, canvas_snapshot)
values ($1, $2, $3, $4::jsonb)
on conflict (id) do nothing
returning `+projectColumns,
			id, ownerID, name, snapshotArg(snapshot)))
		if errors.Is(err, domain.ErrNotFound) {
			// id collision → retry
			continue
		}
		if err != nil {
			return nil, err
		}

		if err := tx.Commit(); err != nil {
			return nil, err
		}
		return p, nil
	}

	return nil, fmt.Errorf("failed to generate unique project id")
}

// placeholderNames returns the owner's placeholder names, including soft-deleted
// projects that have not been purged yet.
func placeholderNames(ctx context.Context, tx *sql.Tx, ownerID string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `
select name
from projects
where owner_id = $1
  and name like $2
`, ownerID, domain.UntitledBase+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// List returns the owner's live projects, most recently updated first.
func (r *ProjectRepository) List(ctx context.Context, ownerID string, limit int) ([]domain.Project, error) {
	rows, err := r.db.QueryContext(ctx, `
select `+projectColumns+`
from projects
where owner_id = $1 and deleted_at is null
order by updated_at desc
limit $2
`, ownerID, clampLimit(limit, DefaultProjectLimit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Project, 0, 16)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns a live project owned by ownerID.
func (r *ProjectRepository) Get(ctx context.Context, ownerID, id string) (*domain.Project, error) {
	return scanProject(r.db.QueryRowContext(ctx, `
select `+projectColumns+`
from projects
where owner_id = $1 and id = $2 and deleted_at is null
`, ownerID, id))
}

// Update applies a partial update to the live fields and bumps updated_at.
func (r *ProjectRepository) Update(ctx context.Context, ownerID, id string, u domain.ProjectUpdate) (*domain.Project, error) {
	var name, snapshot, markup, styles, script sql.NullString
	if u.Name != nil {
		name = sql.NullString{String: *u.Name, Valid: true}
	}
	if u.CanvasSnapshot != nil {
		snapshot = sql.NullString{String: snapshotArg(u.CanvasSnapshot), Valid: true}
	}
	if u.LiveArtifact != nil {
		markup = sql.NullString{String: u.LiveArtifact.Markup, Valid: true}
		styles = sql.NullString{String: u.LiveArtifact.Styles, Valid: true}
		script = sql.NullString{String: u.LiveArtifact.Script, Valid: true}
	}

	return scanProject(r.db.QueryRowContext(ctx, `
update projects
set name = coalesce($3, name),
    canvas_snapshot = coalesce($4::jsonb, canvas_snapshot),
    live_markup = coalesce($5, live_markup),
    live_styles = coalesce($6, live_styles),
    live_script = coalesce($7, live_script),
    updated_at = now()
where owner_id = $1 and id = $2 and deleted_at is null
returning `+projectColumns,
		ownerID, id, name, snapshot, markup, styles, script))
}

// SoftDelete marks a project as deleted (soft delete).
func (r *ProjectRepository) SoftDelete(ctx context.Context, ownerID, id string) (bool, error) {
	const q = `
update projects
set deleted_at = now(), updated_at = now()
where owner_id = $1 and id = $2 and deleted_at is null
`
	result, err := r.db.ExecContext(ctx, q, ownerID, id)
	if err != nil {
		return false, err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected > 0, nil
}

// PurgeDeleted physically removes projects soft-deleted before cutoff.
// Their versions go with them through the foreign key cascade.
func (r *ProjectRepository) PurgeDeleted(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
delete from projects
where deleted_at is not null and deleted_at < $1
`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
