package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidanjnn/sketchy/internal/projects/domain"
)

var projectRowColumns = []string{
	"id", "owner_id", "name", "canvas_snapshot", "live_markup", "live_styles", "live_script", "created_at", "updated_at",
}

func setupProjectRepo(t *testing.T) (*ProjectRepository, sqlmock.Sqlmock, *sql.DB) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return NewProjectRepository(db), mock, db
}

func projectRow(id, name, snapshot string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(projectRowColumns).
		AddRow(id, "user-1", name, snapshot, "<p/>", "p{}", "", now, now)
}

func TestProjectRepository_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("placeholder name from existing names", func(t *testing.T) {
		repo, mock, db := setupProjectRepo(t)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectExec(`select pg_advisory_xact_lock`).WithArgs("user-1").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`select name\s+from projects`).WithArgs("user-1", "Untitled document%").
			WillReturnRows(sqlmock.NewRows([]string{"name"}).
				AddRow("Untitled document").
				AddRow("Untitled document (2)"))
		mock.ExpectQuery(`insert into projects`).
			WithArgs(sqlmock.AnyArg(), "user-1", "Untitled document (3)", "null").
			WillReturnRows(projectRow("site-12345-6789", "Untitled document (3)", "null"))
		mock.ExpectCommit()

		p, err := repo.Create(ctx, "user-1", "", nil)
		require.NoError(t, err)
		assert.Equal(t, "Untitled document (3)", p.Name)
		assert.Equal(t, json.RawMessage("null"), p.CanvasSnapshot)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("explicit name skips placeholder scan", func(t *testing.T) {
		repo, mock, db := setupProjectRepo(t)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectQuery(`insert into projects`).
			WithArgs(sqlmock.AnyArg(), "user-1", "Portfolio", `{"shapes":[]}`).
			WillReturnRows(projectRow("site-12345-6789", "Portfolio", `{"shapes":[]}`))
		mock.ExpectCommit()

		p, err := repo.Create(ctx, "user-1", "  Portfolio ", json.RawMessage(`{"shapes":[]}`))
		require.NoError(t, err)
		assert.Equal(t, "Portfolio", p.Name)
		assert.JSONEq(t, `{"shapes":[]}`, string(p.CanvasSnapshot))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("id collision retries", func(t *testing.T) {
		repo, mock, db := setupProjectRepo(t)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectQuery(`insert into projects`).
			WillReturnRows(sqlmock.NewRows(projectRowColumns))
		mock.ExpectQuery(`insert into projects`).
			WillReturnRows(projectRow("site-22222-3333", "Blog", "null"))
		mock.ExpectCommit()

		p, err := repo.Create(ctx, "user-1", "Blog", nil)
		require.NoError(t, err)
		assert.Equal(t, "site-22222-3333", p.ID)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("owner required", func(t *testing.T) {
		repo, _, db := setupProjectRepo(t)
		defer db.Close()

		_, err := repo.Create(ctx, " ", "x", nil)
		assert.Error(t, err)
	})
}

func TestProjectRepository_List(t *testing.T) {
	repo, mock, db := setupProjectRepo(t)
	defer db.Close()

	mock.ExpectQuery(`order by updated_at desc`).WithArgs("user-1", DefaultProjectLimit).
		WillReturnRows(projectRow("site-1", "A", "null").
			AddRow("site-2", "user-1", "B", "null", "", "", "", time.Now(), time.Now()))

	items, err := repo.List(context.Background(), "user-1", 0)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "site-1", items[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProjectRepository_Get(t *testing.T) {
	repo, mock, db := setupProjectRepo(t)
	defer db.Close()

	mock.ExpectQuery(`from projects`).WithArgs("user-1", "site-1").
		WillReturnRows(projectRow("site-1", "A", `{"shapes":[{"id":"a"}]}`))
	mock.ExpectQuery(`from projects`).WithArgs("user-1", "missing").
		WillReturnRows(sqlmock.NewRows(projectRowColumns))

	p, err := repo.Get(context.Background(), "user-1", "site-1")
	require.NoError(t, err)
	assert.Equal(t, domain.Artifact{Markup: "<p/>", Styles: "p{}"}, p.LiveArtifact)

	_, err = repo.Get(context.Background(), "user-1", "missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProjectRepository_Update(t *testing.T) {
	repo, mock, db := setupProjectRepo(t)
	defer db.Close()

	name := "Renamed"
	mock.ExpectQuery(`update projects`).
		WithArgs("user-1", "site-1",
			sql.NullString{String: "Renamed", Valid: true},
			sql.NullString{},
			sql.NullString{}, sql.NullString{}, sql.NullString{}).
		WillReturnRows(projectRow("site-1", "Renamed", "null"))

	p, err := repo.Update(context.Background(), "user-1", "site-1", domain.ProjectUpdate{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", p.Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProjectRepository_SoftDelete(t *testing.T) {
	repo, mock, db := setupProjectRepo(t)
	defer db.Close()

	mock.ExpectExec(`set deleted_at = now\(\)`).WithArgs("user-1", "site-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`set deleted_at = now\(\)`).WithArgs("user-1", "site-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.SoftDelete(context.Background(), "user-1", "site-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.SoftDelete(context.Background(), "user-1", "site-1")
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProjectRepository_PurgeDeleted(t *testing.T) {
	repo, mock, db := setupProjectRepo(t)
	defer db.Close()

	cutoff := time.Now().Add(-30 * 24 * time.Hour)
	mock.ExpectExec(`delete from projects`).WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.PurgeDeleted(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	require.NoError(t, mock.ExpectationsWereMet())
}
