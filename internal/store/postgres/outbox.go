package postgres

import (
	"context"
	"errors"

	"upets/platform-service/internal/store"

	"github.com/jackc/pgx/v5"
)

// outboxStampLock serializes publish-order stamping between relays.
const outboxStampLock int64 = 0x75706574

// ListOutboxEvents returns committed events in publish order. seq comes
// from a sequence at insert time and commits can land out of that order, so
// rows are given a publish_seq once they are visible. A late commit is
// stamped after everything already handed out and is never behind a
// consumer's offset.
func (s *Store) ListOutboxEvents(ctx context.Context, afterSeq int64, limit int) ([]store.OutboxEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, outboxStampLock); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			WITH top AS (
				SELECT COALESCE(MAX(publish_seq), 0) AS seq FROM outbox_events
			), pending AS (
				SELECT seq, row_number() OVER (ORDER BY seq) AS n
				FROM outbox_events
				WHERE publish_seq IS NULL
				ORDER BY seq
				LIMIT $1
			)
			UPDATE outbox_events o
			SET publish_seq = top.seq + pending.n
			FROM top, pending
			WHERE o.seq = pending.seq
		`, limit)
		return err
	})
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT publish_seq, event_id, type, payload_json, created_at
		FROM outbox_events
		WHERE publish_seq > $1
		ORDER BY publish_seq ASC
		LIMIT $2
	`, afterSeq, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []store.OutboxEvent
	for rows.Next() {
		var event store.OutboxEvent
		var payload []byte
		if err := rows.Scan(&event.Seq, &event.EventID, &event.Type, &payload, &event.CreatedAt); err != nil {
			return nil, err
		}
		event.Payload = payload
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *Store) GetOutboxOffset(ctx context.Context, consumer string) (int64, error) {
	var seq int64
	err := s.pool.QueryRow(ctx, `SELECT last_seq FROM outbox_offsets WHERE consumer = $1`, consumer).Scan(&seq)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return seq, nil
}

func (s *Store) SetOutboxOffset(ctx context.Context, consumer string, seq int64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO outbox_offsets (consumer, last_seq, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (consumer) DO UPDATE SET last_seq = GREATEST(outbox_offsets.last_seq, EXCLUDED.last_seq), updated_at = now()
	`, consumer, seq)
	return err
}
