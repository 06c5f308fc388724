package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidanjnn/sketchy/internal/projects/domain"
)

const (
	v1ID = "11111111-1111-1111-1111-111111111111"
	v2ID = "22222222-2222-2222-2222-222222222222"
	v3ID = "33333333-3333-3333-3333-333333333333"
)

func setupVersionRepo(t *testing.T) (*VersionRepository, sqlmock.Sqlmock, *sql.DB) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return NewVersionRepository(db), mock, db
}

func expectAppend(mock sqlmock.Sqlmock, projectID string, seq, maxExisting, want int) {
	mock.ExpectBegin()
	mock.ExpectQuery(`select version_seq`).WithArgs(projectID).
		WillReturnRows(sqlmock.NewRows([]string{"version_seq"}).AddRow(seq))
	mock.ExpectQuery(`select coalesce\(max\(version_number\), 0\)`).WithArgs(projectID).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(maxExisting))
	mock.ExpectQuery(`insert into project_versions`).
		WithArgs(sqlmock.AnyArg(), projectID, want, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mock.ExpectExec(`set version_seq = \$2`).WithArgs(projectID, want).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
}

func TestVersionRepository_Append(t *testing.T) {
	ctx := context.Background()
	art := domain.Artifact{Markup: "<p/>", Styles: "p{}", Script: ""}

	t.Run("first version is 1", func(t *testing.T) {
		repo, mock, db := setupVersionRepo(t)
		defer db.Close()

		expectAppend(mock, "site-1", 0, 0, 1)

		v, err := repo.Append(ctx, "site-1", json.RawMessage(`{"shapes":[]}`), art)
		require.NoError(t, err)
		assert.Equal(t, 1, v.VersionNumber)
		assert.Equal(t, art, v.GeneratedArtifact)
		assert.NotEmpty(t, v.ID)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("deleted top version is not reused", func(t *testing.T) {
		repo, mock, db := setupVersionRepo(t)
		defer db.Close()

		// 1..5 issued, 5 deleted: max stored is 4, sequence remembers 5.
		expectAppend(mock, "site-1", 5, 4, 6)

		v, err := repo.Append(ctx, "site-1", nil, art)
		require.NoError(t, err)
		assert.Equal(t, 6, v.VersionNumber)
		assert.Equal(t, json.RawMessage("null"), v.CanvasSnapshot)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rows written before the sequence column existed", func(t *testing.T) {
		repo, mock, db := setupVersionRepo(t)
		defer db.Close()

		expectAppend(mock, "site-1", 0, 3, 4)

		v, err := repo.Append(ctx, "site-1", nil, art)
		require.NoError(t, err)
		assert.Equal(t, 4, v.VersionNumber)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing project", func(t *testing.T) {
		repo, mock, db := setupVersionRepo(t)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectQuery(`select version_seq`).WithArgs("missing").
			WillReturnRows(sqlmock.NewRows([]string{"version_seq"}))
		mock.ExpectRollback()

		_, err := repo.Append(ctx, "missing", nil, art)
		assert.True(t, errors.Is(err, domain.ErrNotFound))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func expectInsertVersion(mock sqlmock.Sqlmock, projectID string, seq, want int) {
	mock.ExpectBegin()
	mock.ExpectQuery(`select version_seq`).WithArgs(projectID).
		WillReturnRows(sqlmock.NewRows([]string{"version_seq"}).AddRow(seq))
	mock.ExpectQuery(`select coalesce\(max\(version_number\), 0\)`).WithArgs(projectID).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(seq))
	mock.ExpectQuery(`insert into project_versions`).
		WithArgs(sqlmock.AnyArg(), projectID, want, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
}

func TestVersionRepository_Record(t *testing.T) {
	ctx := context.Background()
	art := domain.Artifact{Markup: "<h1>new</h1>", Styles: "h1{}", Script: ""}

	t.Run("version and live artifact commit together", func(t *testing.T) {
		repo, mock, db := setupVersionRepo(t)
		defer db.Close()

		expectInsertVersion(mock, "site-1", 2, 3)
		mock.ExpectQuery(`live_markup = \$3`).
			WithArgs("site-1", 3, art.Markup, art.Styles, art.Script).
			WillReturnRows(sqlmock.NewRows(projectRowColumns).
				AddRow("site-1", "user-1", "A", `{"shapes":[]}`, art.Markup, art.Styles, art.Script, time.Now(), time.Now()))
		mock.ExpectCommit()

		v, p, err := repo.Record(ctx, "site-1", json.RawMessage(`{"shapes":[]}`), art)
		require.NoError(t, err)
		assert.Equal(t, 3, v.VersionNumber)
		assert.Equal(t, art, p.LiveArtifact)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failed insert rolls back without touching the project", func(t *testing.T) {
		repo, mock, db := setupVersionRepo(t)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectQuery(`select version_seq`).WithArgs("site-1").
			WillReturnRows(sqlmock.NewRows([]string{"version_seq"}).AddRow(1))
		mock.ExpectQuery(`select coalesce\(max\(version_number\), 0\)`).WithArgs("site-1").
			WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(1))
		mock.ExpectQuery(`insert into project_versions`).WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()

		_, _, err := repo.Record(ctx, "site-1", nil, art)
		assert.EqualError(t, err, "disk full")
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failed live update rolls back the version", func(t *testing.T) {
		repo, mock, db := setupVersionRepo(t)
		defer db.Close()

		expectInsertVersion(mock, "site-1", 0, 1)
		mock.ExpectQuery(`live_markup = \$3`).WillReturnError(errors.New("conn reset"))
		mock.ExpectRollback()

		_, _, err := repo.Record(ctx, "site-1", nil, art)
		assert.EqualError(t, err, "conn reset")
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing project", func(t *testing.T) {
		repo, mock, db := setupVersionRepo(t)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectQuery(`select version_seq`).WithArgs("gone").
			WillReturnRows(sqlmock.NewRows([]string{"version_seq"}))
		mock.ExpectRollback()

		_, _, err := repo.Record(ctx, "gone", nil, art)
		assert.True(t, errors.Is(err, domain.ErrNotFound))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func summaryRows(numbers ...int) *sqlmock.Rows {
	ids := map[int]string{1: v1ID, 2: v2ID, 3: v3ID}
	rows := sqlmock.NewRows([]string{"id", "project_id", "version_number", "created_at"})
	for _, n := range numbers {
		rows.AddRow(ids[n], "site-1", n, time.Now())
	}
	return rows
}

func TestVersionRepository_List(t *testing.T) {
	repo, mock, db := setupVersionRepo(t)
	defer db.Close()

	mock.ExpectQuery(`order by version_number desc`).WithArgs("site-1", DefaultVersionLimit).
		WillReturnRows(summaryRows(3, 2, 1))
	mock.ExpectQuery(`order by version_number desc`).WithArgs("site-1", DefaultVersionLimit).
		WillReturnRows(summaryRows(3, 2, 1))

	seq := repo.List(context.Background(), "site-1", 0)

	var first []int
	for v, err := range seq {
		require.NoError(t, err)
		first = append(first, v.VersionNumber)
	}
	assert.Equal(t, []int{3, 2, 1}, first)

	// Restartable: a second range re-queries.
	var second []int
	for v, err := range seq {
		require.NoError(t, err)
		second = append(second, v.VersionNumber)
	}
	assert.Equal(t, first, second)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVersionRepository_ListEarlyStopAndCap(t *testing.T) {
	repo, mock, db := setupVersionRepo(t)
	defer db.Close()

	mock.ExpectQuery(`order by version_number desc`).WithArgs("site-1", MaxListLimit).
		WillReturnRows(summaryRows(3, 2, 1))

	count := 0
	for _, err := range repo.List(context.Background(), "site-1", 1000) {
		require.NoError(t, err)
		count++
		if count == 1 {
			break
		}
	}
	assert.Equal(t, 1, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVersionRepository_ListAllError(t *testing.T) {
	repo, mock, db := setupVersionRepo(t)
	defer db.Close()

	mock.ExpectQuery(`order by version_number desc`).WillReturnError(errors.New("boom"))

	_, err := repo.ListAll(context.Background(), "site-1", 10)
	assert.EqualError(t, err, "boom")
}

func TestVersionRepository_Get(t *testing.T) {
	repo, mock, db := setupVersionRepo(t)
	defer db.Close()

	cols := []string{"id", "project_id", "version_number", "canvas_snapshot", "markup", "styles", "script", "created_at"}
	mock.ExpectQuery(`from project_versions`).WithArgs(v2ID, "site-1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(v2ID, "site-1", 2, `{"shapes":[]}`, "<h1>v2</h1>", "", "", time.Now()))
	mock.ExpectQuery(`from project_versions`).WithArgs(v3ID, "site-1").
		WillReturnRows(sqlmock.NewRows(cols))

	v, err := repo.Get(context.Background(), "site-1", v2ID)
	require.NoError(t, err)
	assert.Equal(t, 2, v.VersionNumber)
	assert.Equal(t, "<h1>v2</h1>", v.GeneratedArtifact.Markup)

	_, err = repo.Get(context.Background(), "site-1", v3ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = repo.Get(context.Background(), "site-1", "not-a-uuid")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVersionRepository_Restore(t *testing.T) {
	ctx := context.Background()

	t.Run("copies version into live without appending", func(t *testing.T) {
		repo, mock, db := setupVersionRepo(t)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectQuery(`select id\s+from projects`).WithArgs("site-1").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("site-1"))
		mock.ExpectQuery(`update projects p`).WithArgs("site-1", v2ID).
			WillReturnRows(sqlmock.NewRows(projectRowColumns).
				AddRow("site-1", "user-1", "A", `{"shapes":[]}`, "<h1>v2</h1>", "h1{}", "", time.Now(), time.Now()))
		mock.ExpectCommit()

		p, err := repo.Restore(ctx, "site-1", v2ID)
		require.NoError(t, err)
		assert.Equal(t, "<h1>v2</h1>", p.LiveArtifact.Markup)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing version aborts", func(t *testing.T) {
		repo, mock, db := setupVersionRepo(t)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectQuery(`select id\s+from projects`).WithArgs("site-1").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("site-1"))
		mock.ExpectQuery(`update projects p`).WithArgs("site-1", v3ID).
			WillReturnRows(sqlmock.NewRows(projectRowColumns))
		mock.ExpectRollback()

		_, err := repo.Restore(ctx, "site-1", v3ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing project aborts", func(t *testing.T) {
		repo, mock, db := setupVersionRepo(t)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectQuery(`select id\s+from projects`).WithArgs("gone").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectRollback()

		_, err := repo.Restore(ctx, "gone", v2ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

// versionModel mirrors the stored state the numbering rule sees.
type versionModel struct {
	seq    int
	stored []int
}

func (m *versionModel) append() int {
	maxStored := 0
	for _, n := range m.stored {
		maxStored = max(maxStored, n)
	}
	next := nextVersionNumber(m.seq, maxStored)
	m.seq = next
	m.stored = append(m.stored, next)
	return next
}

func (m *versionModel) deleteAt(i int) {
	if len(m.stored) == 0 {
		return
	}
	i %= len(m.stored)
	m.stored = append(m.stored[:i], m.stored[i+1:]...)
}

func TestNextVersionNumberProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(777)
	parameters.MinSuccessfulTests = 300

	properties := gopter.NewProperties(parameters)

	properties.Property("appends increase by one and never reuse a number", prop.ForAll(
		func(ops []int) bool {
			m := &versionModel{}
			issued := map[int]bool{}
			last := 0
			for _, op := range ops {
				if op < 0 {
					m.deleteAt(-op)
					continue
				}
				n := m.append()
				if n != last+1 || issued[n] {
					return false
				}
				issued[n] = true
				last = n
			}
			return true
		},
		gen.SliceOf(gen.IntRange(-10, 10)),
	))

	properties.TestingRun(t)
}
