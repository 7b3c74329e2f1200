package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/bulletin-api/internal/models"
	"github.com/noah-isme/bulletin-api/pkg/database"
)

// RankFunc turns the bulletins of one scope into rank assignments.
type RankFunc func([]models.Bulletin) []models.RankAssignment

const bulletinColumns = `b.id, b.student_id, b.period, b.school_year, b.average, b.mention, b.rank, b.total_students,
        b.published, b.remark, b.pdf_path, b.published_at, b.published_by, b.created_at, b.updated_at`

const bulletinDetailJoins = `FROM bulletins b
        JOIN students s ON s.id = b.student_id
        JOIN users u ON u.id = s.user_id
        JOIN classes c ON c.id = s.class_id`

// BulletinRepository persists report cards.
type BulletinRepository struct {
	db *sqlx.DB
}

// NewBulletinRepository creates a bulletin repository.
func NewBulletinRepository(db *sqlx.DB) *BulletinRepository {
	return &BulletinRepository{db: db}
}

// FindByID returns a bulletin with student and class context.
func (r *BulletinRepository) FindByID(ctx context.Context, id string) (*models.BulletinDetail, error) {
	query := `SELECT ` + bulletinColumns + `, u.full_name AS student_name, s.enrollment_number, s.class_id, c.name AS class_name
        ` + bulletinDetailJoins + ` WHERE b.id = $1`
	var detail models.BulletinDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find bulletin: %w", err)
	}
	return &detail, nil
}

// FindByStudentPeriod returns the bulletin of a student for one period and year.
func (r *BulletinRepository) FindByStudentPeriod(ctx context.Context, studentID string, period models.Period, schoolYear string) (*models.Bulletin, error) {
	query := `SELECT ` + bulletinColumns + ` FROM bulletins b WHERE b.student_id = $1 AND b.period = $2 AND b.school_year = $3`
	var bulletin models.Bulletin
	if err := r.db.GetContext(ctx, &bulletin, query, studentID, period, schoolYear); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find bulletin by student: %w", err)
	}
	return &bulletin, nil
}

// List returns bulletins matching the filter along with the total count.
func (r *BulletinRepository) List(ctx context.Context, filter models.BulletinFilter) ([]models.BulletinDetail, int, error) {
	var conditions []string
	var args []interface{}

	if len(filter.StudentIDs) > 0 {
		conditions = append(conditions, fmt.Sprintf("b.student_id = ANY($%d)", len(args)+1))
		args = append(args, pq.Array(filter.StudentIDs))
	}
	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("s.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.Period != "" {
		conditions = append(conditions, fmt.Sprintf("b.period = $%d", len(args)+1))
		args = append(args, filter.Period)
	}
	if filter.SchoolYear != "" {
		conditions = append(conditions, fmt.Sprintf("b.school_year = $%d", len(args)+1))
		args = append(args, filter.SchoolYear)
	}
	if filter.Published != nil {
		conditions = append(conditions, fmt.Sprintf("b.published = $%d", len(args)+1))
		args = append(args, *filter.Published)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(u.full_name) LIKE $%d OR LOWER(s.enrollment_number) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	where := " WHERE 1=1"
	if len(conditions) > 0 {
		where += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := map[string]string{
		"created_at": "b.created_at",
		"average":    "b.average",
		"rank":       "b.rank",
		"student":    "u.full_name",
	}[filter.SortBy]
	if sortBy == "" {
		sortBy = "b.created_at"
	}
	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "DESC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s, u.full_name AS student_name, s.enrollment_number, s.class_id, c.name AS class_name %s%s ORDER BY %s %s, b.id LIMIT %d OFFSET %d",
		bulletinColumns, bulletinDetailJoins, where, sortBy, sortOrder, pageSize, offset)
	var bulletins []models.BulletinDetail
	if err := r.db.SelectContext(ctx, &bulletins, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list bulletins: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+bulletinDetailJoins+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count bulletins: %w", err)
	}
	return bulletins, total, nil
}

// ListScope returns every bulletin of a class for one period and year.
func (r *BulletinRepository) ListScope(ctx context.Context, scope models.RankScope) ([]models.Bulletin, error) {
	return r.listScope(ctx, r.db, scope, false)
}

func (r *BulletinRepository) listScope(ctx context.Context, q sqlx.QueryerContext, scope models.RankScope, forUpdate bool) ([]models.Bulletin, error) {
	query := `SELECT ` + bulletinColumns + ` FROM bulletins b
        JOIN students s ON s.id = b.student_id
        WHERE s.class_id = $1 AND b.period = $2 AND b.school_year = $3
        ORDER BY b.created_at, b.id`
	if forUpdate {
		query += " FOR UPDATE OF b"
	}
	var bulletins []models.Bulletin
	if err := sqlx.SelectContext(ctx, q, &bulletins, query, scope.ClassID, scope.Period, scope.SchoolYear); err != nil {
		return nil, fmt.Errorf("list bulletin scope: %w", err)
	}
	return bulletins, nil
}

// Ranking returns the ranking board of a scope ordered by rank.
func (r *BulletinRepository) Ranking(ctx context.Context, scope models.RankScope) ([]models.RankingEntry, error) {
	const query = `SELECT b.id, b.student_id, u.full_name AS student_name, s.enrollment_number, b.average, b.mention, b.rank, b.total_students, b.published
        FROM bulletins b
        JOIN students s ON s.id = b.student_id
        JOIN users u ON u.id = s.user_id
        WHERE s.class_id = $1 AND b.period = $2 AND b.school_year = $3
        ORDER BY b.rank, u.full_name`
	var entries []models.RankingEntry
	if err := r.db.SelectContext(ctx, &entries, query, scope.ClassID, scope.Period, scope.SchoolYear); err != nil {
		return nil, fmt.Errorf("list ranking: %w", err)
	}
	return entries, nil
}

// ListScopes returns every distinct (class, period, year) owning bulletins.
func (r *BulletinRepository) ListScopes(ctx context.Context) ([]models.RankScope, error) {
	const query = `SELECT DISTINCT s.class_id, b.period, b.school_year
        FROM bulletins b
        JOIN students s ON s.id = b.student_id
        ORDER BY b.school_year, s.class_id, b.period`
	rows, err := r.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list bulletin scopes: %w", err)
	}
	defer rows.Close()
	var scopes []models.RankScope
	for rows.Next() {
		var scope models.RankScope
		if err := rows.Scan(&scope.ClassID, &scope.Period, &scope.SchoolYear); err != nil {
			return nil, fmt.Errorf("scan bulletin scope: %w", err)
		}
		scopes = append(scopes, scope)
	}
	return scopes, rows.Err()
}

// Create inserts a bulletin. A second bulletin for the same student, period
// and year yields ErrDuplicate.
func (r *BulletinRepository) Create(ctx context.Context, bulletin *models.Bulletin) error {
	prepareBulletin(bulletin, time.Now().UTC())
	if _, err := r.db.NamedExecContext(ctx, insertBulletinQuery, bulletin); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create bulletin: %w", err)
	}
	return nil
}

const insertBulletinQuery = `INSERT INTO bulletins (id, student_id, period, school_year, average, mention, rank, total_students, published, remark, created_at, updated_at)
        VALUES (:id, :student_id, :period, :school_year, :average, :mention, :rank, :total_students, :published, :remark, :created_at, :updated_at)`

func prepareBulletin(b *models.Bulletin, now time.Time) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
}

// Update writes the mutable fields of a bulletin.
func (r *BulletinRepository) Update(ctx context.Context, bulletin *models.Bulletin) error {
	bulletin.UpdatedAt = time.Now().UTC()
	const query = `UPDATE bulletins SET average = :average, mention = :mention, rank = :rank, total_students = :total_students,
        published = :published, remark = :remark, published_at = :published_at, published_by = :published_by, updated_at = :updated_at
        WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, bulletin)
	if err != nil {
		return fmt.Errorf("update bulletin: %w", err)
	}
	return expectAffected(res)
}

// MarkPublished flags a bulletin as published by actorID.
func (r *BulletinRepository) MarkPublished(ctx context.Context, id, actorID string, at time.Time) error {
	const query = `UPDATE bulletins SET published = TRUE, published_at = $2, published_by = $3, updated_at = $2 WHERE id = $1`
	var publishedBy interface{}
	if actorID != "" {
		publishedBy = actorID
	}
	res, err := r.db.ExecContext(ctx, query, id, at, publishedBy)
	if err != nil {
		return fmt.Errorf("publish bulletin: %w", err)
	}
	return expectAffected(res)
}

// SetPDFPath records where the rendered PDF of a bulletin is stored.
func (r *BulletinRepository) SetPDFPath(ctx context.Context, id, path string) error {
	const query = `UPDATE bulletins SET pdf_path = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, path, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set bulletin pdf path: %w", err)
	}
	return expectAffected(res)
}

// Delete removes a bulletin.
func (r *BulletinRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM bulletins WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete bulletin: %w", err)
	}
	return expectAffected(res)
}

// Rerank recomputes rank and total for a whole scope in one transaction. The
// scope rows are locked while rank runs so a concurrent insert cannot slip
// between the read and the write.
func (r *BulletinRepository) Rerank(ctx context.Context, scope models.RankScope, total int, rank RankFunc) ([]models.RankAssignment, error) {
	var assignments []models.RankAssignment
	err := database.WithTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		var err error
		assignments, err = r.rerankTx(ctx, tx, scope, total, rank)
		return err
	})
	if err != nil {
		return nil, err
	}
	return assignments, nil
}

// InsertAndRerank inserts staged bulletins and re-ranks their scope in the
// same transaction, so provisional ranks are never visible to readers.
// Staged bulletins that collide with an existing one are skipped and returned
// as conflicts.
func (r *BulletinRepository) InsertAndRerank(ctx context.Context, scope models.RankScope, staged []models.Bulletin, total int, rank RankFunc) (inserted, conflicts []models.Bulletin, err error) {
	err = database.WithTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		now := time.Now().UTC()
		const query = insertBulletinQuery + ` ON CONFLICT (student_id, period, school_year) DO NOTHING`
		for i := range staged {
			card := staged[i]
			prepareBulletin(&card, now)
			res, execErr := tx.NamedExecContext(ctx, query, card)
			if execErr != nil {
				return fmt.Errorf("insert staged bulletin: %w", execErr)
			}
			n, affErr := res.RowsAffected()
			if affErr != nil {
				return fmt.Errorf("insert staged bulletin: %w", affErr)
			}
			if n == 0 {
				conflicts = append(conflicts, card)
				continue
			}
			inserted = append(inserted, card)
		}
		if len(inserted) == 0 {
			return nil
		}
		assignments, rerankErr := r.rerankTx(ctx, tx, scope, total, rank)
		if rerankErr != nil {
			return rerankErr
		}
		ranks := make(map[string]int, len(assignments))
		for _, a := range assignments {
			ranks[a.BulletinID] = a.Rank
		}
		for i := range inserted {
			inserted[i].Rank = ranks[inserted[i].ID]
			inserted[i].TotalStudents = total
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return inserted, conflicts, nil
}

func (r *BulletinRepository) rerankTx(ctx context.Context, tx *sqlx.Tx, scope models.RankScope, total int, rank RankFunc) ([]models.RankAssignment, error) {
	cards, err := r.listScope(ctx, tx, scope, true)
	if err != nil {
		return nil, err
	}
	if len(cards) == 0 {
		return nil, nil
	}
	assignments := rank(cards)
	ids := make([]string, len(assignments))
	ranks := make([]int64, len(assignments))
	for i, a := range assignments {
		ids[i] = a.BulletinID
		ranks[i] = int64(a.Rank)
	}
	const query = `UPDATE bulletins AS b SET rank = u.rank, total_students = $3, updated_at = $4
        FROM unnest($1::uuid[], $2::int[]) AS u(id, rank)
        WHERE b.id = u.id`
	if _, err := tx.ExecContext(ctx, query, pq.StringArray(ids), pq.Int64Array(ranks), total, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("write ranks: %w", err)
	}
	return assignments, nil
}

func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
