package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	apperrors "github.com/mainframe-kb/incident-search/pkg/errors"
	"github.com/mainframe-kb/incident-search/pkg/postgres"
)

// Postgres reads incident records from the kb_records table.
type Postgres struct {
	client *postgres.Client
}

// NewPostgres wraps an existing PostgreSQL client.
func NewPostgres(client *postgres.Client) *Postgres {
	return &Postgres{client: client}
}

const recordColumns = `id, title, problem, solution, category, tags,
	usage_count, success_count, failure_count, created_at, updated_at`

func (p *Postgres) List(ctx context.Context) ([]Record, error) {
	rows, err := p.client.DB.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM kb_records ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (p *Postgres) Get(ctx context.Context, id string) (Record, error) {
	row := p.client.DB.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM kb_records WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return Record{}, apperrors.Newf(apperrors.ErrRecordNotFound, 404, "record %s", id)
	}
	if err != nil {
		return Record{}, fmt.Errorf("loading record %s: %w", id, err)
	}
	return rec, nil
}

// ScanLexical is the degraded search path: a case-insensitive substring match
// across the three text fields, ordered by usage. It bypasses the index
// entirely so it keeps working when the enhanced pipeline is down.
func (p *Postgres) ScanLexical(ctx context.Context, query string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 10
	}
	pattern := "%" + query + "%"
	rows, err := p.client.DB.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM kb_records
		 WHERE title ILIKE $1 OR problem ILIKE $1 OR solution ILIKE $1
		 ORDER BY usage_count DESC, id ASC
		 LIMIT $2`, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("lexical scan: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var rec Record
	var tags pq.StringArray
	err := row.Scan(
		&rec.ID, &rec.Title, &rec.Problem, &rec.Solution, &rec.Category,
		&tags, &rec.UsageCount, &rec.SuccessCount, &rec.FailureCount,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	rec.Tags = tags
	return rec, err
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	records := make([]Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning record row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating record rows: %w", err)
	}
	return records, nil
}
