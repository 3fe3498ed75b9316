package audit

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Masterminds/squirrel"
)

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

var eventColumns = []string{
	"id", "action", "entity", "entity_id", "actor_id", "actor_role",
	"ip_address", "request_id", "message", "metadata", "created_at",
}

// PostgresRepo stores events in audit_events (see pgstore migrations).
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	var metadata any
	if len(e.Metadata) > 0 {
		metadata = string(e.Metadata)
	}
	query, args, err := psql.Insert("audit_events").Columns(eventColumns...).Values(
		e.ID, e.Action, e.Entity, e.EntityID, e.ActorID, e.ActorRole,
		e.IPAddress, e.RequestID, e.Message, metadata, e.CreatedAt,
	).ToSql()
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("audit append %s: %w", e.Name(), err)
	}
	return nil
}

func (r *PostgresRepo) List(ctx context.Context, f Filter) ([]Event, error) {
	q := psql.Select(eventColumns...).From("audit_events").
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(f.limit()))
	if f.Entity != "" {
		q = q.Where(squirrel.Eq{"entity": f.Entity})
	}
	if f.EntityID != "" {
		q = q.Where(squirrel.Eq{"entity_id": f.EntityID})
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit list: %w", err)
	}
	defer rows.Close()

	out := make([]Event, 0)
	for rows.Next() {
		var (
			e        Event
			metadata []byte
		)
		if err := rows.Scan(&e.ID, &e.Action, &e.Entity, &e.EntityID, &e.ActorID, &e.ActorRole,
			&e.IPAddress, &e.RequestID, &e.Message, &metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		if len(metadata) > 0 {
			e.Metadata = metadata
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
