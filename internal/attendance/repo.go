package attendance

import (
	"context"
	"database/sql"
	"errors"
)

// Repository persists ledger records in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// InsertRecord writes a record. Replaying the same record is a no-op.
func (r *Repository) InsertRecord(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		return errors.New("record id required")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_records (id, identity_name, occurred_at, status, confidence)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`, rec.ID, rec.IdentityName, rec.Timestamp, string(rec.Status), rec.Confidence)
	return err
}

// ClearRecords deletes every record.
func (r *Repository) ClearRecords(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM attendance_records`)
	return err
}

// ListRecords returns records newest-first by insertion order.
func (r *Repository) ListRecords(ctx context.Context, limit, offset int) ([]Record, error) {
	if offset < 0 {
		offset = 0
	}
	query := `SELECT id, identity_name, occurred_at, status, confidence FROM attendance_records ORDER BY seq DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1 OFFSET $2`
		args = append(args, limit, offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Record
	for rows.Next() {
		var (
			rec    Record
			status string
		)
		if err := rows.Scan(&rec.ID, &rec.IdentityName, &rec.Timestamp, &status, &rec.Confidence); err != nil {
			return nil, err
		}
		rec.Status = Status(status)
		res = append(res, rec)
	}
	return res, rows.Err()
}
