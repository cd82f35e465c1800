package enrollment

import (
	"context"
	"database/sql"
	"errors"
)

// Repository persists enrolled identities in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// InsertIdentity stores an identity. Replays are ignored.
func (r *Repository) InsertIdentity(ctx context.Context, id Identity) error {
	if id.ID == "" {
		return errors.New("identity id required")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO identities (id, name, reference_image, enrolled_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`, id.ID, id.Name, id.ReferenceImage, id.EnrolledAt)
	return err
}

// DeleteIdentity removes an identity. Deleting an unknown id is not an error.
func (r *Repository) DeleteIdentity(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM identities WHERE id = $1`, id)
	return err
}

// ListIdentities returns all identities in enrollment order.
func (r *Repository) ListIdentities(ctx context.Context) ([]Identity, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, reference_image, enrolled_at
		FROM identities
		ORDER BY seq
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Identity
	for rows.Next() {
		var id Identity
		if err := rows.Scan(&id.ID, &id.Name, &id.ReferenceImage, &id.EnrolledAt); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
