package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgtype"

	"telecom-routing/internal/routing"
	"telecom-routing/pkg/utils"
)

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// Store is the Postgres-backed routing.Store.
//
// Reference checks run inside the write transaction and take FOR KEY SHARE
// on the referenced row; delete guards take FOR UPDATE on the target. The two
// lock modes conflict, so a referrer and a delete of the same row serialize.
// Foreign keys back both up.
type Store struct {
	conn
	db  *sql.DB
	now func() time.Time
}

func New(db *sql.DB) *Store {
	return &Store{conn: conn{q: db}, db: db, now: time.Now}
}

var _ routing.Store = (*Store)(nil)

// View runs fn inside a read-only repeatable-read transaction.
func (s *Store) View(ctx context.Context, fn func(routing.Snapshot) error) error {
	opts := &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	return utils.WithTx(ctx, s.db, opts, func(ctx context.Context, tx *sql.Tx) error {
		return fn(conn{q: tx})
	})
}

func (s *Store) inTx(ctx context.Context, fn func(ctx context.Context, c conn) error) error {
	return utils.WithTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, conn{q: tx})
	})
}

func (s *Store) stamp(t time.Time) time.Time {
	if t.IsZero() {
		return s.now().UTC()
	}
	return t
}

// conn runs queries against a pool or a transaction. It implements the read
// half of the store, so a transaction-bound conn is a routing.Snapshot.
type conn struct {
	q querier
}

func (c conn) queryRow(ctx context.Context, b squirrel.Sqlizer) (*sql.Row, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	return c.q.QueryRowContext(ctx, query, args...), nil
}

func (c conn) query(ctx context.Context, b squirrel.Sqlizer) (*sql.Rows, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	return c.q.QueryContext(ctx, query, args...)
}

func (c conn) exec(ctx context.Context, b squirrel.Sqlizer) (sql.Result, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	return c.q.ExecContext(ctx, query, args...)
}

// execOne runs b and reports ErrNotFound when no row was touched.
func (c conn) execOne(ctx context.Context, b squirrel.Sqlizer) error {
	res, err := c.exec(ctx, b)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return routing.ErrNotFound
	}
	return nil
}

func (c conn) exists(ctx context.Context, b squirrel.SelectBuilder) (bool, error) {
	row, err := c.queryRow(ctx, b)
	if err != nil {
		return false, err
	}
	var one int
	switch err := row.Scan(&one); {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}

func (c conn) count(ctx context.Context, b squirrel.SelectBuilder) (int, error) {
	row, err := c.queryRow(ctx, b)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// collect scans every row with scan. A fresh pgtype.Map is used per query;
// Map caches scan plans and is not safe for concurrent use.
func collect[T any](ctx context.Context, c conn, b squirrel.Sqlizer, scan func(rowScanner, *pgtype.Map) (T, error)) ([]T, error) {
	rows, err := c.query(ctx, b)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	m := pgtype.NewMap()
	var out []T
	for rows.Next() {
		v, err := scan(rows, m)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func one[T any](ctx context.Context, c conn, b squirrel.Sqlizer, scan func(rowScanner, *pgtype.Map) (T, error)) (T, error) {
	var zero T
	row, err := c.queryRow(ctx, b)
	if err != nil {
		return zero, err
	}
	return scan(row, pgtype.NewMap())
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func jsonArg(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func rawOrNil(b []byte) json.RawMessage {
	if len(b) == 0 {
		return nil
	}
	return json.RawMessage(b)
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
