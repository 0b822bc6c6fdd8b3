package journal

import (
	"context"
	"database/sql"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS commit_batches (
	batch_id     UUID PRIMARY KEY,
	operator     TEXT NOT NULL,
	class_id     BIGINT NOT NULL,
	att_date     DATE NOT NULL,
	committed_at TIMESTAMPTZ NOT NULL,
	recorded_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS commit_entries (
	batch_id        UUID NOT NULL REFERENCES commit_batches (batch_id) ON DELETE CASCADE,
	registration_id BIGINT NOT NULL,
	status          TEXT NOT NULL,
	remarks         TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (batch_id, registration_id)
);
CREATE INDEX IF NOT EXISTS commit_batches_class_date ON commit_batches (class_id, att_date);
`

// Repository persists the commit journal in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// EnsureSchema creates the journal tables if missing.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, schema)
	return err
}

// Save writes an event and its entries in one transaction. Saving a batch id
// that already exists is a no-op and reports false.
func (r *Repository) Save(ctx context.Context, evt Event) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO commit_batches (batch_id, operator, class_id, att_date, committed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (batch_id) DO NOTHING
	`, evt.BatchID, evt.Operator, evt.ClassID, evt.Date.String(), evt.CommittedAt)
	if err != nil {
		return false, fmt.Errorf("insert batch: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	for _, e := range evt.Entries {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO commit_entries (batch_id, registration_id, status, remarks)
			VALUES ($1, $2, $3, $4)
		`, evt.BatchID, e.RegistrationID, string(e.Status), e.Remarks); err != nil {
			return false, fmt.Errorf("insert entry %d: %w", e.RegistrationID, err)
		}
	}
	return true, tx.Commit()
}

// Batch summarises one journalled commit.
type Batch struct {
	BatchID  string `json:"batch_id"`
	Operator string `json:"operator"`
	Date     string `json:"date"`
	Entries  int    `json:"entries"`
}

// ListBatches returns the most recent batches for a class, newest first.
func (r *Repository) ListBatches(ctx context.Context, classID int64, limit int) ([]Batch, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT b.batch_id, b.operator, to_char(b.att_date, 'YYYY-MM-DD'), COUNT(e.registration_id)
		FROM commit_batches b
		LEFT JOIN commit_entries e ON e.batch_id = b.batch_id
		WHERE b.class_id = $1
		GROUP BY b.batch_id
		ORDER BY b.committed_at DESC
		LIMIT $2
	`, classID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Batch
	for rows.Next() {
		var b Batch
		if err := rows.Scan(&b.BatchID, &b.Operator, &b.Date, &b.Entries); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
