package repository

import (
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/aidanjnn/sketchy/internal/projects/domain"
)

const (
	DefaultProjectLimit = 20
	DefaultVersionLimit = 50
	MaxListLimit        = 100
)

type rowScanner interface {
	Scan(dest ...any) error
}

const projectColumns = `id, owner_id, name, canvas_snapshot::text, live_markup, live_styles, live_script, created_at, updated_at`

func scanProject(row rowScanner) (*domain.Project, error) {
	var p domain.Project
	var snapshot string
	err := row.Scan(
		&p.ID, &p.OwnerID, &p.Name, &snapshot,
		&p.LiveArtifact.Markup, &p.LiveArtifact.Styles, &p.LiveArtifact.Script,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	p.CanvasSnapshot = domain.NormalizeSnapshot(json.RawMessage(snapshot))
	return &p, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func clampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

func snapshotArg(s json.RawMessage) string {
	return string(domain.NormalizeSnapshot(s))
}
