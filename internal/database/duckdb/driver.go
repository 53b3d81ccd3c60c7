// Package duckdb implements database.DB for DuckDB database files.
package duckdb

import (
	"context"
	"database/sql"
	"strings"

	"github.com/koustreak/askdb/internal/database"
	"github.com/koustreak/askdb/internal/database/sqldb"
	"github.com/koustreak/askdb/internal/errs"

	_ "github.com/marcboeker/go-duckdb/v2" // register "duckdb" driver
)

// Driver is a DuckDB implementation of database.DB.
type Driver struct {
	conn *sqldb.Conn
}

// Open opens the DuckDB file at cfg.DSN (bare path or duckdb:// prefix).
// With cfg.ReadOnly the file is attached with access_mode=READ_ONLY, which
// also lets several askdb processes share it.
func Open(ctx context.Context, cfg *database.Config) (*Driver, error) {
	path := strings.TrimPrefix(cfg.DSN, "duckdb://")
	if path == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "duckdb path is empty")
	}

	dsn := path
	if cfg.ReadOnly {
		dsn += "?access_mode=READ_ONLY"
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, mapError(err, "failed to open duckdb")
	}
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(int(cfg.MaxConns))
	}

	d := NewFromDB(db)

	pingCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}
	if err := d.Ping(pingCtx); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

// NewFromDB wraps an already opened pool.
func NewFromDB(db *sql.DB) *Driver {
	return &Driver{conn: sqldb.New(db, sqldb.Options{MapError: mapError})}
}

// --- database.DB implementation ---

func (d *Driver) Driver() database.Driver { return database.DriverDuckDB }

func (d *Driver) Ping(ctx context.Context) error { return d.conn.Ping(ctx) }

func (d *Driver) Close() { d.conn.Close() }

func (d *Driver) Query(ctx context.Context, sql string, args ...any) (database.Rows, error) {
	return d.conn.Query(ctx, sql, args...)
}

func (d *Driver) ListTables(ctx context.Context) ([]string, error) {
	const q = `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = current_schema()
		  AND table_type   = 'BASE TABLE'
		ORDER BY table_name`

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
	columns, err := d.fetchColumns(ctx, table)
	if err != nil {
		return nil, err
	}

	pks, err := d.fetchConstraintColumns(ctx, table, "PRIMARY KEY", "failed to fetch primary keys")
	if err != nil {
		return nil, err
	}

	uniqueCols, err := d.fetchConstraintColumns(ctx, table, "UNIQUE", "failed to fetch unique columns")
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

func (d *Driver) fetchColumns(ctx context.Context, table string) ([]*database.ColumnInfo, error) {
	const q = `
		SELECT column_name,
		       data_type,
		       is_nullable = 'YES',
		       column_default
		FROM information_schema.columns
		WHERE table_schema = current_schema()
		  AND table_name   = ?
		ORDER BY ordinal_position`

	rows, err := d.conn.DB().QueryContext(ctx, q, table)
	if err != nil {
		return nil, mapError(err, "failed to fetch columns")
	}
	defer func() { _ = rows.Close() }()

	var cols []*database.ColumnInfo
	for rows.Next() {
		var c database.ColumnInfo
		if err := rows.Scan(&c.Name, &c.DataType, &c.Nullable, &c.Default); err != nil {
			return nil, mapError(err, "failed to scan column info")
		}
		cols = append(cols, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "failed to fetch columns")
	}
	return cols, nil
}

// fetchConstraintColumns reads duckdb_constraints(), which keeps the
// constrained columns as a list.
func (d *Driver) fetchConstraintColumns(ctx context.Context, table, kind, errMsg string) ([]string, error) {
	const q = `
		SELECT unnest(constraint_column_names)
		FROM duckdb_constraints()
		WHERE schema_name     = current_schema()
		  AND table_name      = ?
		  AND constraint_type = ?`

	return d.conn.Strings(ctx, q, errMsg, table, kind)
}

func (d *Driver) fetchForeignKeys(ctx context.Context, table string) ([]*database.ForeignKey, error) {
	const q = `
		SELECT unnest(constraint_column_names),
		       referenced_table,
		       unnest(referenced_column_names)
		FROM duckdb_constraints()
		WHERE schema_name     = current_schema()
		  AND table_name      = ?
		  AND constraint_type = 'FOREIGN KEY'`

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
