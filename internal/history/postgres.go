package history

import (
	"context"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS inbound_messages (
	id          UUID PRIMARY KEY,
	user_id     TEXT NOT NULL,
	chat_id     BIGINT,
	type        TEXT NOT NULL,
	content     TEXT NOT NULL DEFAULT '',
	payload     JSONB NOT NULL,
	received_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS inbound_messages_chat_received_idx
	ON inbound_messages (chat_id, received_at DESC);
`

// PostgresStore keeps records in PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a store on pool. Call EnsureSchema before use.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: pool}
}

// EnsureSchema creates the table and index if missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create inbound_messages: %w", err)
	}
	return nil
}

// Insert writes rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (s *PostgresStore) Insert(ctx context.Context, rows []Record) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO inbound_messages (id, user_id, chat_id, type, content, payload, received_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO NOTHING
		`, r.ID, r.UserID, r.ChatID, r.Type, r.Content, r.Payload, r.ReceivedAt)
	}

	results := s.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, fmt.Errorf("insert inbound message: %w", err)
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}

// Recent returns up to limit records, oldest first.
func (s *PostgresStore) Recent(ctx context.Context, chatID int64, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, user_id, chat_id, type, content, payload, received_at
		FROM inbound_messages
		WHERE ($1::bigint = 0 OR chat_id = $1::bigint)
		ORDER BY received_at DESC
		LIMIT $2
	`
	rows, err := s.db.Query(ctx, query, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("query inbound_messages: %w", err)
	}

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		var r Record
		err := row.Scan(&r.ID, &r.UserID, &r.ChatID, &r.Type, &r.Content, &r.Payload, &r.ReceivedAt)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan inbound_messages: %w", err)
	}

	slices.Reverse(records)
	return records, nil
}
