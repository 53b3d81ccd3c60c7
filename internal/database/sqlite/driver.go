// Package sqlite implements database.DB on the pure-Go modernc.org/sqlite
// engine. It opens database files read-only and can load a SQL script into
// a private in-memory database.
package sqlite

import (
	"context"
	"database/sql"
	"net/url"
	"sort"
	"strings"

	"github.com/koustreak/askdb/internal/database"
	"github.com/koustreak/askdb/internal/database/sqldb"
	"github.com/koustreak/askdb/internal/errs"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// Driver is a SQLite implementation of database.DB.
type Driver struct {
	conn *sqldb.Conn
}

// Open opens the database file at cfg.DSN. The DSN may be a bare path or
// carry a sqlite:// prefix. With cfg.ReadOnly the file is opened with
// mode=ro and query_only, and a missing file is an error instead of being
// created.
func Open(ctx context.Context, cfg *database.Config) (*Driver, error) {
	path := strings.TrimPrefix(cfg.DSN, "sqlite://")
	if path == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "sqlite path is empty")
	}

	db, err := sql.Open("sqlite", fileDSN(path, cfg.ReadOnly))
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "invalid DSN", err)
	}
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(int(cfg.MaxConns))
	}

	d := NewFromDB(db)
	if err := d.ping(ctx, cfg); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

// scriptDenied are statements a loaded script may not run: they reach
// files outside the in-memory database.
var scriptDenied = []string{"ATTACH", "DETACH", "VACUUM"}

// OpenScript creates a private in-memory database, runs script against it
// and, with cfg.ReadOnly, switches the connection to query_only. The pool
// is pinned to a single connection that never expires, because every new
// connection to :memory: would see an empty database.
func OpenScript(ctx context.Context, script string, cfg *database.Config) (*Driver, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "failed to open in-memory database", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	d := NewFromDB(db)
	if err := d.ping(ctx, cfg); err != nil {
		d.Close()
		return nil, err
	}

	// Scripts may come from anywhere; they only get to touch the in-memory
	// database.
	if err := database.CheckScript(script, scriptDenied...); err != nil {
		d.Close()
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to load SQL script", err)
	}
	if _, err := db.ExecContext(ctx, script); err != nil {
		d.Close()
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to load SQL script", mapError(err, "script"))
	}
	if cfg.ReadOnly {
		if _, err := db.ExecContext(ctx, "PRAGMA query_only = ON"); err != nil {
			d.Close()
			return nil, mapError(err, "failed to enable query_only")
		}
	}
	return d, nil
}

// NewFromDB wraps an already opened pool.
func NewFromDB(db *sql.DB) *Driver {
	return &Driver{conn: sqldb.New(db, sqldb.Options{MapError: mapError})}
}

func fileDSN(path string, readOnly bool) string {
	if !readOnly {
		return path
	}
	q := url.Values{}
	q.Set("mode", "ro")
	q.Add("_pragma", "query_only(1)")
	return "file:" + path + "?" + q.Encode()
}

func (d *Driver) ping(ctx context.Context, cfg *database.Config) error {
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}
	if err := d.Ping(ctx); err != nil {
		if errs.IsTimeout(err) || errs.IsConnectionFailed(err) {
			return err
		}
		return errs.Wrap(errs.ErrKindConnectionFailed, "failed to open database", err)
	}
	return nil
}

// --- database.DB implementation ---

func (d *Driver) Driver() database.Driver { return database.DriverSQLite }

func (d *Driver) Ping(ctx context.Context) error { return d.conn.Ping(ctx) }

func (d *Driver) Close() { d.conn.Close() }

func (d *Driver) Query(ctx context.Context, sql string, args ...any) (database.Rows, error) {
	return d.conn.Query(ctx, sql, args...)
}

func (d *Driver) ListTables(ctx context.Context) ([]string, error) {
	const q = `
		SELECT name
		FROM sqlite_master
		WHERE type = 'table'
		  AND name NOT LIKE 'sqlite_%'
		ORDER BY name`

	return d.conn.Strings(ctx, q, "failed to list tables")
}

func (d *Driver) InspectSchema(ctx context.Context) (*database.Schema, error) {
	tables, err := d.ListTables(ctx)
	if err != nil {
		return nil, err
	}

	schema := &database.Schema{Tables: make([]*database.TableInfo, 0, len(tables))}
	for _, tableName := range tables {
		info, err := d.inspectTable(ctx, tableName)
		if err != nil {
			return nil, err
		}
		schema.Tables = append(schema.Tables, info)
	}
	return schema, nil
}

func (d *Driver) inspectTable(ctx context.Context, table string) (*database.TableInfo, error) {
	columns, pks, err := d.fetchColumns(ctx, table)
	if err != nil {
		return nil, err
	}

	uniqueCols, err := d.fetchUniqueColumns(ctx, table)
	if err != nil {
		return nil, err
	}

	fks, err := d.fetchForeignKeys(ctx, table)
	if err != nil {
		return nil, err
	}

	info := &database.TableInfo{
		Name:        table,
		Columns:     columns,
		PrimaryKey:  pks,
		ForeignKeys: fks,
	}
	info.MarkKeys(pks, uniqueCols)
	return info, nil
}

// fetchColumns reads pragma_table_info. The pk column holds the 1-based
// position of the column within the primary key, 0 when not part of it.
func (d *Driver) fetchColumns(ctx context.Context, table string) ([]*database.ColumnInfo, []string, error) {
	const q = `
		SELECT name, type, "notnull", dflt_value, pk
		FROM pragma_table_info(?)
		ORDER BY cid`

	rows, err := d.conn.DB().QueryContext(ctx, q, table)
	if err != nil {
		return nil, nil, mapError(err, "failed to fetch columns")
	}
	defer func() { _ = rows.Close() }()

	type pkCol struct {
		name string
		pos  int
	}
	var cols []*database.ColumnInfo
	var keyed []pkCol

	for rows.Next() {
		var c database.ColumnInfo
		var notNull bool
		var pk int
		if err := rows.Scan(&c.Name, &c.DataType, &notNull, &c.Default, &pk); err != nil {
			return nil, nil, mapError(err, "failed to scan column info")
		}
		c.Nullable = !notNull
		if pk > 0 {
			keyed = append(keyed, pkCol{name: c.Name, pos: pk})
		}
		cols = append(cols, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, mapError(err, "failed to fetch columns")
	}

	sort.Slice(keyed, func(i, j int) bool { return keyed[i].pos < keyed[j].pos })
	pks := make([]string, len(keyed))
	for i, k := range keyed {
		pks[i] = k.name
	}
	return cols, pks, nil
}

// fetchUniqueColumns returns columns covered by a single-column UNIQUE
// constraint.
func (d *Driver) fetchUniqueColumns(ctx context.Context, table string) ([]string, error) {
	const q = `
		SELECT ii.name
		FROM pragma_index_list(?) il
		JOIN pragma_index_info(il.name) ii
		WHERE il."unique" = 1
		  AND il.origin   = 'u'
		  AND (SELECT count(*) FROM pragma_index_info(il.name)) = 1`

	return d.conn.Strings(ctx, q, "failed to fetch unique columns", table)
}

func (d *Driver) fetchForeignKeys(ctx context.Context, table string) ([]*database.ForeignKey, error) {
	const q = `
		SELECT "from", "table", coalesce("to", '')
		FROM pragma_foreign_key_list(?)
		ORDER BY id, seq`

	rows, err := d.conn.DB().QueryContext(ctx, q, table)
	if err != nil {
		return nil, mapError(err, "failed to fetch foreign keys")
	}
	defer func() { _ = rows.Close() }()

	var fks []*database.ForeignKey
	for rows.Next() {
		fk := &database.ForeignKey{}
		if err := rows.Scan(&fk.Column, &fk.RefTable, &fk.RefColumn); err != nil {
			return nil, mapError(err, "failed to scan foreign key")
		}
		fks = append(fks, fk)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "failed to fetch foreign keys")
	}
	return fks, nil
}
