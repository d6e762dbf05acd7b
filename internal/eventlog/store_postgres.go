package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	id "dplay/pkg/domain"
	txcontext "dplay/pkg/platform/tx"
)

// PostgresStore implements Store on a registry_events outbox table. Events
// written inside a ledger transaction commit or roll back with it; the
// forwarding worker publishes committed rows and stamps published_at.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = s.execer(ctx).ExecContext(ctx, `
		INSERT INTO registry_events (id, kind, listing_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		event.ID, string(event.Kind), int64(event.ListingID), payload, event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByListing(ctx context.Context, listingID id.ListingID) ([]Event, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT payload FROM registry_events
		WHERE listing_id = $1
		ORDER BY created_at, id`,
		int64(listingID),
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *PostgresStore) ListPending(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT payload FROM registry_events
		WHERE published_at IS NULL
		ORDER BY created_at, id
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *PostgresStore) MarkPublished(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	idStrings := make([]string, len(ids))
	for i, eventID := range ids {
		idStrings[i] = eventID.String()
	}
	_, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE registry_events SET published_at = now()
		WHERE id = ANY($1::uuid[])`,
		pgUUIDArray(idStrings),
	)
	if err != nil {
		return fmt.Errorf("mark events published: %w", err)
	}
	return nil
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	var out []Event
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		var event Event
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, fmt.Errorf("unmarshal event: %w", err)
		}
		out = append(out, event)
	}
	return out, rows.Err()
}

// pgUUIDArray renders a Postgres array literal; both pgx and pq accept the
// text form for ANY($1::uuid[]) parameters.
func pgUUIDArray(ids []string) string {
	out := "{"
	for i, s := range ids {
		if i > 0 {
			out += ","
		}
		out += s
	}
	return out + "}"
}
