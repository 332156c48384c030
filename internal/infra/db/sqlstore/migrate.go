package sqlstore

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

var schema = map[Dialect][]string{
	Postgres: {
		`CREATE TABLE IF NOT EXISTS audit_analyses (
  id               VARCHAR(64) PRIMARY KEY,
  user_id          VARCHAR(128) NOT NULL,
  project_name     VARCHAR(255) NOT NULL,
  product_type     VARCHAR(32) NOT NULL,
  device           VARCHAR(16) NOT NULL,
  interaction_type VARCHAR(255) NOT NULL,
  flow_type        VARCHAR(255) NOT NULL,
  screenshots_json JSONB NOT NULL,
  status           VARCHAR(16) NOT NULL,
  result_json      JSONB NULL,
  created_at       TIMESTAMPTZ NOT NULL,
  updated_at       TIMESTAMPTZ NOT NULL,
  completed_at     TIMESTAMPTZ NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_analyses_user_created ON audit_analyses (user_id, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS audit_errors (
  id           BIGSERIAL PRIMARY KEY,
  user_id      VARCHAR(128) NOT NULL,
  analysis_id  VARCHAR(64) NOT NULL,
  phase        VARCHAR(16) NOT NULL,
  message      TEXT NOT NULL,
  details_json JSONB NOT NULL,
  created_at   TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_errors_analysis ON audit_errors (user_id, analysis_id)`,
	},
	MySQL: {
		`CREATE TABLE IF NOT EXISTS audit_analyses (
  id               VARCHAR(64) PRIMARY KEY,
  user_id          VARCHAR(128) NOT NULL,
  project_name     VARCHAR(255) NOT NULL,
  product_type     VARCHAR(32) NOT NULL,
  device           VARCHAR(16) NOT NULL,
  interaction_type VARCHAR(255) NOT NULL,
  flow_type        VARCHAR(255) NOT NULL,
  screenshots_json JSON NOT NULL,
  status           VARCHAR(16) NOT NULL,
  result_json      JSON NULL,
  created_at       DATETIME(6) NOT NULL,
  updated_at       DATETIME(6) NOT NULL,
  completed_at     DATETIME(6) NULL,
  INDEX idx_audit_analyses_user_created (user_id, created_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		`CREATE TABLE IF NOT EXISTS audit_errors (
  id           BIGINT AUTO_INCREMENT PRIMARY KEY,
  user_id      VARCHAR(128) NOT NULL,
  analysis_id  VARCHAR(64) NOT NULL,
  phase        VARCHAR(16) NOT NULL,
  message      TEXT NOT NULL,
  details_json JSON NOT NULL,
  created_at   DATETIME(6) NOT NULL,
  INDEX idx_audit_errors_analysis (user_id, analysis_id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	},
	SQLite: {
		`CREATE TABLE IF NOT EXISTS audit_analyses (
  id               TEXT PRIMARY KEY,
  user_id          TEXT NOT NULL,
  project_name     TEXT NOT NULL,
  product_type     TEXT NOT NULL,
  device           TEXT NOT NULL,
  interaction_type TEXT NOT NULL,
  flow_type        TEXT NOT NULL,
  screenshots_json TEXT NOT NULL,
  status           TEXT NOT NULL,
  result_json      TEXT NULL,
  created_at       TIMESTAMP NOT NULL,
  updated_at       TIMESTAMP NOT NULL,
  completed_at     TIMESTAMP NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_analyses_user_created ON audit_analyses (user_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS audit_errors (
  id           INTEGER PRIMARY KEY AUTOINCREMENT,
  user_id      TEXT NOT NULL,
  analysis_id  TEXT NOT NULL,
  phase        TEXT NOT NULL,
  message      TEXT NOT NULL,
  details_json TEXT NOT NULL,
  created_at   TIMESTAMP NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_errors_analysis ON audit_errors (user_id, analysis_id)`,
	},
}

// Migrate creates the tables if they do not exist yet.
func Migrate(ctx context.Context, db *sql.DB, d Dialect) error {
	stmts, ok := schema[d]
	if !ok {
		return eris.Errorf("no schema for %s", d)
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return eris.Wrapf(err, "migrate %s", d)
		}
	}
	zap.L().Info("schema ready", zap.String("dialect", string(d)), zap.Int("statements", len(stmts)))
	return nil
}
