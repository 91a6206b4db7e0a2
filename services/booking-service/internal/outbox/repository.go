package outbox

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/slotbook/libs/db"
)

// Record is an event as stored in the outbox, with its position in commit order.
type Record struct {
	Seq int64
	Event
}

// Store hands out unpublished events. Claim passes up to limit of them, oldest first, to fn
// and marks them published only if fn returns nil. Concurrent claimers never see the same
// record.
type Store interface {
	Claim(ctx context.Context, limit int, fn func([]Record) error) error
}

// Insert writes ev inside the caller's transaction.
func Insert(ctx context.Context, tx pgx.Tx, ev Event) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO outbox_events
			(event_id, business_id, aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, ev.ID, ev.BusinessID, ev.AggregateType, ev.AggregateID, ev.EventType, ev.Payload, ev.Traceparent, ev.Tracestate, ev.CreatedAt)
	return err
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

func (r *Repository) Claim(ctx context.Context, limit int, fn func([]Record) error) error {
	return r.pool.InTx(ctx, 0, func(tx pgx.Tx) error {
		records, err := r.fetchUnpublished(ctx, tx, limit)
		if err != nil || len(records) == 0 {
			return err
		}
		if err := fn(records); err != nil {
			return err
		}
		seqs := make([]int64, 0, len(records))
		for _, rec := range records {
			seqs = append(seqs, rec.Seq)
		}
		return r.markPublished(ctx, tx, seqs)
	})
}

func (r *Repository) fetchUnpublished(ctx context.Context, tx pgx.Tx, limit int) ([]Record, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, event_id, business_id, aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate, created_at
		FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var createdAt time.Time
		if err := rows.Scan(&rec.Seq, &rec.ID, &rec.BusinessID, &rec.AggregateType, &rec.AggregateID, &rec.EventType,
			&rec.Payload, &rec.Traceparent, &rec.Tracestate, &createdAt); err != nil {
			return nil, err
		}
		rec.CreatedAt = createdAt
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

func (r *Repository) markPublished(ctx context.Context, tx pgx.Tx, seqs []int64) error {
	_, err := tx.Exec(ctx, `
		UPDATE outbox_events
		SET published_at = now()
		WHERE id = ANY($1)
	`, seqs)
	return err
}
