package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bulletin-api/internal/models"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var bulletinRowColumns = []string{"id", "student_id", "period", "school_year", "average", "mention", "rank", "total_students",
	"published", "remark", "pdf_path", "published_at", "published_by", "created_at", "updated_at"}

func scopeRows(now time.Time, averages map[string]float64, order ...string) *sqlmock.Rows {
	rows := sqlmock.NewRows(bulletinRowColumns)
	for i, id := range order {
		rows.AddRow(id, "s-"+id, "trimestre_1", "2025-2026", averages[id], "Bien", 1, 3, false, nil, nil, nil, nil, now.Add(time.Duration(i)*time.Second), now)
	}
	return rows
}

func byAverageDesc(cards []models.Bulletin) []models.RankAssignment {
	out := make([]models.RankAssignment, 0, len(cards))
	for _, c := range cards {
		rank := 1
		for _, other := range cards {
			if other.Average > c.Average {
				rank++
			}
		}
		out = append(out, models.RankAssignment{BulletinID: c.ID, Rank: rank})
	}
	return out
}

var testScope = models.RankScope{ClassID: "class-1", Period: models.PeriodTerm1, SchoolYear: "2025-2026"}

func TestBulletinRepositoryCreateDuplicate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBulletinRepository(db)

	mock.ExpectExec("INSERT INTO bulletins").WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), &models.Bulletin{StudentID: "s1", Period: models.PeriodTerm1, SchoolYear: "2025-2026"})
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulletinRepositoryCreateAssignsID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBulletinRepository(db)

	mock.ExpectExec("INSERT INTO bulletins").WillReturnResult(sqlmock.NewResult(0, 1))

	b := &models.Bulletin{StudentID: "s1", Period: models.PeriodTerm1, SchoolYear: "2025-2026", Average: 12.5}
	require.NoError(t, repo.Create(context.Background(), b))
	assert.NotEmpty(t, b.ID)
	assert.False(t, b.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulletinRepositoryRerankWritesWholeScope(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBulletinRepository(db)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE s.class_id = $1 AND b.period = $2 AND b.school_year = $3") + "(?s).*FOR UPDATE OF b").
		WithArgs("class-1", models.PeriodTerm1, "2025-2026").
		WillReturnRows(scopeRows(now, map[string]float64{"a": 17, "b": 10, "c": 10}, "a", "b", "c"))
	mock.ExpectExec("UPDATE bulletins AS b SET rank = u.rank").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), 3, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	assignments, err := repo.Rerank(context.Background(), testScope, 3, byAverageDesc)
	require.NoError(t, err)
	assert.Equal(t, []models.RankAssignment{{BulletinID: "a", Rank: 1}, {BulletinID: "b", Rank: 2}, {BulletinID: "c", Rank: 2}}, assignments)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulletinRepositoryRerankEmptyScope(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBulletinRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE OF b").WillReturnRows(sqlmock.NewRows(bulletinRowColumns))
	mock.ExpectCommit()

	assignments, err := repo.Rerank(context.Background(), testScope, 30, byAverageDesc)
	require.NoError(t, err)
	assert.Empty(t, assignments)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulletinRepositoryRerankRollsBackOnWriteFailure(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBulletinRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE OF b").WillReturnRows(scopeRows(time.Now(), map[string]float64{"a": 12}, "a"))
	mock.ExpectExec("UPDATE bulletins AS b").WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	_, err := repo.Rerank(context.Background(), testScope, 1, byAverageDesc)
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulletinRepositoryInsertAndRerank(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBulletinRepository(db)

	staged := []models.Bulletin{
		{ID: "a", StudentID: "s-a", Period: models.PeriodTerm1, SchoolYear: "2025-2026", Average: 17, Mention: models.MentionExcellent, Rank: 1, TotalStudents: 3},
		{ID: "dup", StudentID: "s-dup", Period: models.PeriodTerm1, SchoolYear: "2025-2026", Average: 9, Mention: models.MentionPass, Rank: 1, TotalStudents: 3},
		{ID: "b", StudentID: "s-b", Period: models.PeriodTerm1, SchoolYear: "2025-2026", Average: 10, Mention: models.MentionFairlyGood, Rank: 1, TotalStudents: 3},
	}

	mock.ExpectBegin()
	mock.ExpectExec("(?s)INSERT INTO bulletins.*ON CONFLICT").WithArgs(stagedInsertArgs(1)...).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("(?s)INSERT INTO bulletins.*ON CONFLICT").WithArgs(stagedInsertArgs(1)...).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("(?s)INSERT INTO bulletins.*ON CONFLICT").WithArgs(stagedInsertArgs(1)...).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("FOR UPDATE OF b").
		WillReturnRows(scopeRows(time.Now(), map[string]float64{"a": 17, "b": 10, "old": 12}, "old", "a", "b"))
	mock.ExpectExec("UPDATE bulletins AS b SET rank").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	inserted, conflicts, err := repo.InsertAndRerank(context.Background(), testScope, staged, 3, byAverageDesc)
	require.NoError(t, err)
	require.Len(t, inserted, 2)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "s-dup", conflicts[0].StudentID)
	assert.Equal(t, 1, inserted[0].Rank)
	assert.Equal(t, 3, inserted[1].Rank)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// stagedInsertArgs matches the named insert with only the rank pinned. Columns
// follow insertBulletinQuery.
func stagedInsertArgs(rank int) []driver.Value {
	args := make([]driver.Value, 12)
	for i := range args {
		args[i] = sqlmock.AnyArg()
	}
	args[6] = rank
	return args
}

func TestBulletinRepositoryInsertAndRerankRowsAffectedError(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBulletinRepository(db)

	staged := []models.Bulletin{{ID: "a", StudentID: "s-a", Period: models.PeriodTerm1, SchoolYear: "2025-2026", Average: 12, Mention: models.MentionGood, Rank: 1, TotalStudents: 1}}

	mock.ExpectBegin()
	mock.ExpectExec("(?s)INSERT INTO bulletins.*ON CONFLICT").
		WithArgs(stagedInsertArgs(1)...).
		WillReturnResult(sqlmock.NewErrorResult(sql.ErrConnDone))
	mock.ExpectRollback()

	inserted, conflicts, err := repo.InsertAndRerank(context.Background(), testScope, staged, 1, byAverageDesc)
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.Nil(t, inserted)
	assert.Nil(t, conflicts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulletinRepositoryDeleteMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBulletinRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM bulletins WHERE id = $1")).WithArgs("nope").WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.Delete(context.Background(), "nope"), sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulletinRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBulletinRepository(db)
	published := true
	now := time.Now()

	cols := append(append([]string{}, bulletinRowColumns...), "student_name", "enrollment_number", "class_id", "class_name")
	rows := sqlmock.NewRows(cols).AddRow("b1", "s1", "trimestre_1", "2025-2026", 14.5, "Très bien", 2, 30, true, nil, nil, now, "admin", now, now, "Awa Diop", "MAT-001", "class-1", "TS1")

	mock.ExpectQuery(regexp.QuoteMeta("WHERE 1=1 AND b.student_id = ANY($1) AND b.published = $2 ORDER BY b.rank ASC, b.id LIMIT 20 OFFSET 0")).
		WithArgs(sqlmock.AnyArg(), true).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM bulletins b")).
		WithArgs(sqlmock.AnyArg(), true).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	items, total, err := repo.List(context.Background(), models.BulletinFilter{StudentIDs: []string{"s1"}, Published: &published, SortBy: "rank", SortOrder: "asc"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, models.MentionVeryGood, items[0].Mention)
	assert.Equal(t, "Awa Diop", items[0].StudentName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulletinRepositoryListScopes(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBulletinRepository(db)

	mock.ExpectQuery("SELECT DISTINCT s.class_id, b.period, b.school_year").
		WillReturnRows(sqlmock.NewRows([]string{"class_id", "period", "school_year"}).
			AddRow("c1", "trimestre_1", "2025-2026").
			AddRow("c2", "trimestre_2", "2025-2026"))

	scopes, err := repo.ListScopes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.RankScope{
		{ClassID: "c1", Period: models.PeriodTerm1, SchoolYear: "2025-2026"},
		{ClassID: "c2", Period: models.PeriodTerm2, SchoolYear: "2025-2026"},
	}, scopes)
	assert.NoError(t, mock.ExpectationsWereMet())
}
