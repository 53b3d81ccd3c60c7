// Package sqldb holds the database/sql plumbing shared by the drivers that
// sit on top of it (mysql, sqlite, duckdb): read-only transactions, row
// wrapping and single-column helpers. Each driver supplies its own error
// mapper so callers still see *errs.Error kinds.
package sqldb

import (
	"context"
	"database/sql"

	"github.com/koustreak/askdb/internal/database"
	"github.com/koustreak/askdb/internal/errs"
)

// ErrorMapper translates a driver error into *errs.Error.
type ErrorMapper func(err error, msg string) *errs.Error

// Options configures a Conn.
type Options struct {
	// ReadOnlyTx runs every Query inside a transaction opened with
	// sql.TxOptions{ReadOnly: true}. Drivers whose engine enforces
	// read-only at the connection level leave it off.
	ReadOnlyTx bool

	// MapError classifies driver errors. Required.
	MapError ErrorMapper
}

// Conn wraps a *sql.DB. It is safe for concurrent use.
type Conn struct {
	db   *sql.DB
	opts Options
}

// New wraps db.
func New(db *sql.DB, opts Options) *Conn {
	return &Conn{db: db, opts: opts}
}

// DB exposes the underlying pool for driver-specific setup.
func (c *Conn) DB() *sql.DB {
	return c.db
}

// Ping verifies the database is reachable.
func (c *Conn) Ping(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return c.opts.MapError(err, "ping failed")
	}
	return nil
}

// Close drains the pool.
func (c *Conn) Close() {
	_ = c.db.Close()
}

// Query executes sql and returns its rows. With ReadOnlyTx the rows hold
// the transaction open until Close, which rolls it back.
func (c *Conn) Query(ctx context.Context, query string, args ...any) (database.Rows, error) {
	if !c.opts.ReadOnlyTx {
		rows, err := c.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, c.opts.MapError(err, "query failed")
		}
		return &Rows{rows: rows, mapErr: c.opts.MapError}, nil
	}

	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, c.opts.MapError(err, "failed to begin read-only transaction")
	}
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		_ = tx.Rollback()
		return nil, c.opts.MapError(err, "query failed")
	}
	return &Rows{rows: rows, tx: tx, mapErr: c.opts.MapError}, nil
}

// Strings runs a query returning a single text column.
func (c *Conn) Strings(ctx context.Context, query, errMsg string, args ...any) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, c.opts.MapError(err, errMsg)
	}
	defer func() { _ = rows.Close() }()

	var list []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, c.opts.MapError(err, errMsg)
		}
		list = append(list, s)
	}
	if err := rows.Err(); err != nil {
		return nil, c.opts.MapError(err, errMsg)
	}
	return list, nil
}

// Rows adapts *sql.Rows to database.Rows.
type Rows struct {
	rows   *sql.Rows
	tx     *sql.Tx
	mapErr ErrorMapper
}

func (r *Rows) Next() bool                 { return r.rows.Next() }
func (r *Rows) Scan(dest ...any) error     { return r.rows.Scan(dest...) }
func (r *Rows) Columns() ([]string, error) { return r.rows.Columns() }

func (r *Rows) Close() {
	_ = r.rows.Close()
	if r.tx != nil {
		_ = r.tx.Rollback()
	}
}

func (r *Rows) Err() error {
	if err := r.rows.Err(); err != nil {
		return r.mapErr(err, "error during row iteration")
	}
	return nil
}
