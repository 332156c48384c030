package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/uxnareal/audit-api/internal/domain/auditerrors"
)

// FailureRepository persists pipeline failures in audit_errors.
type FailureRepository struct {
	db *sql.DB
	d  Dialect
}

func NewFailureRepository(db *sql.DB, d Dialect) *FailureRepository {
	return &FailureRepository{db: db, d: d}
}

func (r *FailureRepository) Save(ctx context.Context, e *auditerrors.Entry) error {
	const q = `
INSERT INTO audit_errors
  (user_id, analysis_id, phase, message, details_json, created_at)
VALUES (?,?,?,?,?,?)`

	msg := e.Message
	if strings.TrimSpace(msg) == "" {
		msg = "-"
	}
	details := e.DetailsJSON
	if strings.TrimSpace(details) == "" {
		details = "{}"
	} else {
		// ensure valid json; if invalid, wrap as string field
		var js any
		if json.Unmarshal([]byte(details), &js) != nil {
			b, _ := json.Marshal(map[string]string{"raw": details})
			details = string(b)
		}
	}
	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, r.d.Rebind(q),
		dashIfEmpty(e.UserID), dashIfEmpty(e.AnalysisID), dashIfEmpty(string(e.Phase)), msg, details, created)
	return eris.Wrapf(err, "insert failure of %s", e.AnalysisID)
}

func (r *FailureRepository) ListByAnalysis(ctx context.Context, userID, analysisID string, limit int) ([]*auditerrors.Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT id, user_id, analysis_id, phase, message, details_json, created_at
FROM audit_errors
WHERE user_id = ? AND analysis_id = ?
ORDER BY created_at DESC, id DESC
LIMIT ?`
	rows, err := r.db.QueryContext(ctx, r.d.Rebind(q), userID, analysisID, limit)
	if err != nil {
		return nil, eris.Wrap(err, "query failures")
	}
	defer rows.Close()

	out := []*auditerrors.Entry{}
	for rows.Next() {
		var (
			e     auditerrors.Entry
			phase string
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.AnalysisID, &phase, &e.Message, &e.DetailsJSON, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "scan failure")
		}
		e.Phase = auditerrors.Phase(phase)
		out = append(out, &e)
	}
	return out, rows.Err()
}

// dashIfEmpty returns "-" when the input is empty/whitespace
func dashIfEmpty(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
