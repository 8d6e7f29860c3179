package records

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/mainframe-kb/incident-search/internal/store"
	apperrors "github.com/mainframe-kb/incident-search/pkg/errors"
	"github.com/mainframe-kb/incident-search/pkg/kafka"
	"github.com/mainframe-kb/incident-search/pkg/postgres"
)

// Publisher persists record mutations in PostgreSQL and publishes the
// corresponding events to Kafka. PostgreSQL is the source of truth: a write
// that fails is an error, while a Kafka publish that fails is logged and
// repaired by the next index rebuild.
type Publisher struct {
	db       *postgres.Client
	producer *kafka.Producer
	logger   *slog.Logger
}

func New(db *postgres.Client, producer *kafka.Producer) *Publisher {
	return &Publisher{
		db:       db,
		producer: producer,
		logger:   slog.Default().With("component", "record-publisher"),
	}
}

const returningColumns = `id, title, problem, solution, category, tags,
	usage_count, success_count, failure_count, created_at, updated_at`

// Upsert creates or replaces a record. A request without an ID always
// creates; with an ID it replaces the record's content while keeping its
// usage history.
func (p *Publisher) Upsert(ctx context.Context, req *UpsertRequest) (store.Record, error) {
	var rec store.Record
	err := p.db.InTx(ctx, func(tx *sql.Tx) error {
		var row *sql.Row
		if req.ID == "" {
			row = tx.QueryRowContext(ctx,
				`INSERT INTO kb_records (title, problem, solution, category, tags)
				 VALUES ($1, $2, $3, $4, $5)
				 RETURNING `+returningColumns,
				req.Title, req.Problem, req.Solution, req.Category, pq.StringArray(req.Tags))
		} else {
			row = tx.QueryRowContext(ctx,
				`INSERT INTO kb_records (id, title, problem, solution, category, tags)
				 VALUES ($1, $2, $3, $4, $5, $6)
				 ON CONFLICT (id) DO UPDATE SET
				   title = EXCLUDED.title,
				   problem = EXCLUDED.problem,
				   solution = EXCLUDED.solution,
				   category = EXCLUDED.category,
				   tags = EXCLUDED.tags,
				   updated_at = NOW()
				 RETURNING `+returningColumns,
				req.ID, req.Title, req.Problem, req.Solution, req.Category, pq.StringArray(req.Tags))
		}
		var scanned error
		rec, scanned = scanRecord(row)
		return scanned
	})
	if err != nil {
		return store.Record{}, fmt.Errorf("upserting record: %w", err)
	}

	p.publish(ctx, store.RecordEvent{
		Type:     store.EventUpsert,
		Record:   rec,
		Occurred: time.Now().UTC().Format(time.RFC3339),
	})
	p.logger.Info("record upserted", "record_id", rec.ID, "category", rec.Category)
	return rec, nil
}

// Delete removes a record. The published event carries the category so
// search instances can invalidate narrowly.
func (p *Publisher) Delete(ctx context.Context, id string) error {
	var category string
	err := p.db.DB.QueryRowContext(ctx,
		`DELETE FROM kb_records WHERE id = $1 RETURNING category`, id).Scan(&category)
	if err == sql.ErrNoRows {
		return apperrors.Newf(apperrors.ErrRecordNotFound, 404, "record %s", id)
	}
	if err != nil {
		return fmt.Errorf("deleting record %s: %w", id, err)
	}

	p.publish(ctx, store.RecordEvent{
		Type:     store.EventDelete,
		Record:   store.Record{ID: id, Category: category},
		Occurred: time.Now().UTC().Format(time.RFC3339),
	})
	p.logger.Info("record deleted", "record_id", id, "category", category)
	return nil
}

// Feedback records one use of a record and its outcome, then republishes the
// record so search rankings see the fresh counters.
func (p *Publisher) Feedback(ctx context.Context, id, outcome string) (store.Record, error) {
	row := p.db.DB.QueryRowContext(ctx,
		`UPDATE kb_records SET
		   usage_count = usage_count + 1,
		   success_count = success_count + CASE WHEN $2 = 'success' THEN 1 ELSE 0 END,
		   failure_count = failure_count + CASE WHEN $2 = 'failure' THEN 1 ELSE 0 END,
		   updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+returningColumns, id, outcome)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return store.Record{}, apperrors.Newf(apperrors.ErrRecordNotFound, 404, "record %s", id)
	}
	if err != nil {
		return store.Record{}, fmt.Errorf("recording feedback for %s: %w", id, err)
	}

	p.publish(ctx, store.RecordEvent{
		Type:     store.EventUpsert,
		Record:   rec,
		Occurred: time.Now().UTC().Format(time.RFC3339),
	})
	p.logger.Info("feedback recorded",
		"record_id", id,
		"outcome", outcome,
		"usage_count", rec.UsageCount,
	)
	return rec, nil
}

func (p *Publisher) publish(ctx context.Context, event store.RecordEvent) {
	if p.producer == nil {
		return
	}
	if err := p.producer.Publish(ctx, kafka.Event{Key: event.Record.ID, Value: event}); err != nil {
		p.logger.Error("failed to publish record event, index out of step until next rebuild",
			"record_id", event.Record.ID,
			"type", event.Type,
			"error", err,
		)
	}
}

func scanRecord(row *sql.Row) (store.Record, error) {
	var rec store.Record
	var tags pq.StringArray
	err := row.Scan(
		&rec.ID, &rec.Title, &rec.Problem, &rec.Solution, &rec.Category,
		&tags, &rec.UsageCount, &rec.SuccessCount, &rec.FailureCount,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	rec.Tags = tags
	return rec, err
}
