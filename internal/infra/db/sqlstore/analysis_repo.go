package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	domain "github.com/uxnareal/audit-api/internal/domain/audits"
)

const analysisColumns = `id, user_id, project_name, product_type, device, interaction_type, flow_type,
       screenshots_json, status, result_json, created_at, updated_at, completed_at`

// AnalysisRepository persists analysis records in audit_analyses.
type AnalysisRepository struct {
	db *sql.DB
	d  Dialect
}

func NewAnalysisRepository(db *sql.DB, d Dialect) *AnalysisRepository {
	return &AnalysisRepository{db: db, d: d}
}

// Create inserts a new record.
func (r *AnalysisRepository) Create(ctx context.Context, rec *domain.Record) error {
	const q = `
INSERT INTO audit_analyses
(id, user_id, project_name, product_type, device, interaction_type, flow_type,
 screenshots_json, status, result_json, created_at, updated_at, completed_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`

	shots, err := json.Marshal(nonNilShots(rec.Screenshots))
	if err != nil {
		return eris.Wrap(err, "encode screenshots")
	}
	result, err := encodeResult(rec.Result)
	if err != nil {
		return err
	}
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	updated := rec.UpdatedAt
	if updated.IsZero() {
		updated = created
	}
	var completed sql.NullTime
	if rec.CompletedAt != nil {
		completed = sql.NullTime{Time: *rec.CompletedAt, Valid: true}
	}

	_, err = r.db.ExecContext(ctx, r.d.Rebind(q),
		string(rec.ID), rec.UserID, rec.ProjectName,
		string(rec.Context.ProductType), string(rec.Context.Device), rec.Context.InteractionType, rec.Context.FlowType,
		string(shots), string(rec.Status), result,
		created, updated, completed,
	)
	return eris.Wrapf(err, "insert analysis %s", rec.ID)
}

// Get by ID
func (r *AnalysisRepository) Get(ctx context.Context, id domain.ID) (*domain.Record, error) {
	q := `SELECT ` + analysisColumns + ` FROM audit_analyses WHERE id = ? LIMIT 1`
	rec, err := scanRecord(r.db.QueryRowContext(ctx, r.d.Rebind(q), string(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "get analysis %s", id)
	}
	return rec, nil
}

// Transition is a guarded update: the row changes only while its status is
// one of the states next may be entered from.
func (r *AnalysisRepository) Transition(ctx context.Context, id domain.ID, next domain.Status, result *domain.AnalysisResult, at time.Time) error {
	from := domain.AllowedFrom(next)
	if len(from) == 0 {
		return eris.Wrapf(domain.ErrInvalidTransition, "no transition into %s", next)
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}

	var (
		set  string
		args []any
	)
	if next == domain.StatusCompleted {
		encoded, err := encodeResult(result)
		if err != nil {
			return err
		}
		set = `status = ?, result_json = ?, completed_at = ?, updated_at = ?`
		args = append(args, string(next), encoded, at, at)
	} else {
		set = `status = ?, updated_at = ?`
		args = append(args, string(next), at)
	}
	args = append(args, string(id))
	for _, s := range from {
		args = append(args, string(s))
	}

	q := `UPDATE audit_analyses SET ` + set + ` WHERE id = ? AND status IN (` + placeholders(len(from)) + `)`
	res, err := r.db.ExecContext(ctx, r.d.Rebind(q), args...)
	if err != nil {
		return eris.Wrapf(err, "transition %s to %s", id, next)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n > 0 {
		return nil
	}

	var current string
	err = r.db.QueryRowContext(ctx, r.d.Rebind(`SELECT status FROM audit_analyses WHERE id = ?`), string(id)).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return eris.Wrapf(err, "read status of %s", id)
	}
	return eris.Wrapf(domain.ErrInvalidTransition, "%s -> %s", current, next)
}

// Paginate returns one page of a user's records, newest first, and the total count.
// A non-empty query keeps only records whose project name contains it, ignoring case.
func (r *AnalysisRepository) Paginate(ctx context.Context, userID, query string, page, pageSize int) ([]*domain.Record, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	where := `user_id = ?`
	args := []any{userID}
	if query != "" {
		where += ` AND LOWER(project_name) LIKE ? ESCAPE '!'`
		args = append(args, "%"+likeEscaper.Replace(strings.ToLower(query))+"%")
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, r.d.Rebind(`SELECT COUNT(*) FROM audit_analyses WHERE `+where), args...).Scan(&total); err != nil {
		return nil, 0, eris.Wrap(err, "count analyses")
	}

	q := `SELECT ` + analysisColumns + `
FROM audit_analyses
WHERE ` + where + `
ORDER BY created_at DESC, id DESC
LIMIT ? OFFSET ?`
	recs, err := r.query(ctx, q, append(args, pageSize, (page-1)*pageSize)...)
	if err != nil {
		return nil, 0, err
	}
	return recs, total, nil
}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// Since returns a user's records created at or after since.
func (r *AnalysisRepository) Since(ctx context.Context, userID string, since time.Time) ([]*domain.Record, error) {
	q := `SELECT ` + analysisColumns + `
FROM audit_analyses
WHERE user_id = ? AND created_at >= ?
ORDER BY created_at DESC`
	return r.query(ctx, q, userID, since)
}

func (r *AnalysisRepository) query(ctx context.Context, q string, args ...any) ([]*domain.Record, error) {
	rows, err := r.db.QueryContext(ctx, r.d.Rebind(q), args...)
	if err != nil {
		return nil, eris.Wrap(err, "query analyses")
	}
	defer rows.Close()

	out := []*domain.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "scan analysis")
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*domain.Record, error) {
	var (
		rec       domain.Record
		id        string
		product   string
		device    string
		status    string
		shots     string
		result    sql.NullString
		completed sql.NullTime
	)
	if err := row.Scan(
		&id, &rec.UserID, &rec.ProjectName, &product, &device, &rec.Context.InteractionType, &rec.Context.FlowType,
		&shots, &status, &result, &rec.CreatedAt, &rec.UpdatedAt, &completed,
	); err != nil {
		return nil, err
	}
	rec.ID = domain.ID(id)
	rec.Context.ProductType = domain.ProductType(product)
	rec.Context.Device = domain.Device(device)
	rec.Status = domain.Status(status)
	if err := json.Unmarshal([]byte(shots), &rec.Screenshots); err != nil {
		return nil, eris.Wrapf(err, "decode screenshots of %s", id)
	}
	if result.Valid && strings.TrimSpace(result.String) != "" {
		var res domain.AnalysisResult
		if err := json.Unmarshal([]byte(result.String), &res); err != nil {
			return nil, eris.Wrapf(err, "decode result of %s", id)
		}
		rec.Result = &res
	}
	if completed.Valid {
		t := completed.Time
		rec.CompletedAt = &t
	}
	return &rec, nil
}

func encodeResult(res *domain.AnalysisResult) (sql.NullString, error) {
	if res == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(res)
	if err != nil {
		return sql.NullString{}, eris.Wrap(err, "encode result")
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func nonNilShots(s []domain.Screenshot) []domain.Screenshot {
	if s == nil {
		return []domain.Screenshot{}
	}
	return s
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
