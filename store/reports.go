package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"vaultredact/redaction"
)

const reportsSchema = `
CREATE TABLE IF NOT EXISTS redaction_reports (
	id           BIGSERIAL PRIMARY KEY,
	document     TEXT        NOT NULL,
	format       TEXT        NOT NULL,
	entities     INTEGER     NOT NULL,
	attempts     INTEGER     NOT NULL,
	verified     BOOLEAN     NOT NULL,
	detail       JSONB       NOT NULL,
	completed_at TIMESTAMPTZ NOT NULL
)`

// ReportStore writes audit reports to Postgres.
type ReportStore struct {
	db *sqlx.DB
}

// OpenReportStore connects and ensures the schema exists.
func OpenReportStore(ctx context.Context, dsn string) (*ReportStore, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(8)
	db.SetConnMaxLifetime(time.Hour)
	if _, err := db.ExecContext(ctx, reportsSchema); err != nil {
		db.Close()
		return nil, err
	}
	return &ReportStore{db: db}, nil
}

func (s *ReportStore) Close() error { return s.db.Close() }

// Save records one completed redaction.
func (s *ReportStore) Save(ctx context.Context, report redaction.Report) error {
	detail, err := json.Marshal(report)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO redaction_reports (document, format, entities, attempts, verified, detail, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		report.Document, report.Format, report.Entities, report.Attempts,
		report.Verified, detail, report.CompletedAt)
	return err
}

// storedReport mirrors a row for reads.
type storedReport struct {
	ID          int64           `db:"id"`
	Document    string          `db:"document"`
	Format      string          `db:"format"`
	Entities    int             `db:"entities"`
	Attempts    int             `db:"attempts"`
	Verified    bool            `db:"verified"`
	Detail      json.RawMessage `db:"detail"`
	CompletedAt time.Time       `db:"completed_at"`
}

// Recent returns the latest reports, newest first.
func (s *ReportStore) Recent(ctx context.Context, limit int) ([]redaction.Report, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []storedReport
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, document, format, entities, attempts, verified, detail, completed_at
		 FROM redaction_reports ORDER BY completed_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	out := make([]redaction.Report, 0, len(rows))
	for _, row := range rows {
		var report redaction.Report
		if err := json.Unmarshal(row.Detail, &report); err != nil {
			return nil, err
		}
		out = append(out, report)
	}
	return out, nil
}
