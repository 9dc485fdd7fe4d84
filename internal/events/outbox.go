package events

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PgOutbox reads unpublished rows from event_logs.
type PgOutbox struct {
	pool *pgxpool.Pool
}

func NewPgOutbox(pool *pgxpool.Pool) *PgOutbox {
	return &PgOutbox{pool: pool}
}

// Process claims up to limit unpublished events with FOR UPDATE SKIP LOCKED so
// concurrent relays never deliver the same batch, hands them to fn in id
// order and marks the ones fn accepted. Processing stops at the first error;
// the remaining rows stay unpublished for the next run.
func (o *PgOutbox) Process(ctx context.Context, limit int, fn func(context.Context, Event) error) (int, error) {
	tx, err := o.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin outbox tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT id, event_type, appointment_id, doctor_id, patient_id, payload, created_at
		FROM event_logs
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return 0, fmt.Errorf("claim events: %w", err)
	}

	var batch []Event
	for rows.Next() {
		var ev Event
		var payload []byte
		if err := rows.Scan(&ev.ID, &ev.Type, &ev.AppointmentID, &ev.DoctorID, &ev.PatientID, &payload, &ev.CreatedAt); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan event: %w", err)
		}
		ev.Payload = payload
		batch = append(batch, ev)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate events: %w", err)
	}

	var done []int64
	var fnErr error
	for _, ev := range batch {
		if fnErr = fn(ctx, ev); fnErr != nil {
			break
		}
		done = append(done, ev.ID)
	}

	if len(done) > 0 {
		if _, err := tx.Exec(ctx, `UPDATE event_logs SET published_at = now() WHERE id = ANY($1)`, done); err != nil {
			return 0, fmt.Errorf("mark published: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit outbox tx: %w", err)
	}
	return len(done), fnErr
}
