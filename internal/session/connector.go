// Package session turns a user-supplied location into a live, read-only
// database session and keeps track of the one the chat is using.
package session

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/koustreak/askdb/internal/database"
	"github.com/koustreak/askdb/internal/database/duckdb"
	"github.com/koustreak/askdb/internal/database/mysql"
	"github.com/koustreak/askdb/internal/database/postgres"
	"github.com/koustreak/askdb/internal/database/sqlite"
	"github.com/koustreak/askdb/internal/errs"
	"github.com/koustreak/askdb/internal/logger"
	"github.com/koustreak/askdb/internal/source"
)

// SampleLocation is the location keyword that selects the configured
// sample database.
const SampleLocation = "sample"

// Connector opens sessions.
type Connector struct {
	// Pool carries pool sizing, MaxRows and ReadOnly for every session.
	// Driver and DSN are ignored.
	Pool database.Config

	// QueryTimeout bounds each Execute. 0 disables the bound.
	QueryTimeout time.Duration

	// SampleRows is how many rows per table Describe includes.
	SampleRows int

	// Sample is the location "sample" resolves to.
	Sample string

	// Loader fetches SQL scripts for script locations.
	Loader *source.Loader

	Logger *logger.Logger
}

// NewConnector returns a Connector with askdb's defaults: read-only, 1000
// row cap, 30s query timeout, 3 sample rows.
func NewConnector() *Connector {
	return &Connector{
		Pool:         *database.DefaultConfig("", ""),
		QueryTimeout: 30 * time.Second,
		SampleRows:   3,
		Loader:       &source.Loader{},
		Logger:       logger.Nop(),
	}
}

// Connect opens location and returns a session on it. See Kind for the
// accepted location forms.
func (c *Connector) Connect(ctx context.Context, location string) (*Session, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "database location is empty")
	}
	if location == SampleLocation {
		if c.Sample == "" || c.Sample == SampleLocation {
			return nil, errs.New(errs.ErrKindInvalidInput, "no sample database is configured")
		}
		location = c.Sample
	}

	start := time.Now()
	db, err := c.open(ctx, location)
	if err != nil {
		return nil, err
	}

	s := NewSession(db, location, c.Pool.MaxRows, c.QueryTimeout, c.SampleRows)
	c.log().InfoWith("database connected", logger.Fields{
		"location":    s.location,
		"driver":      string(db.Driver()),
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return s, nil
}

func (c *Connector) open(ctx context.Context, location string) (database.DB, error) {
	cfg := c.Pool
	cfg.DSN = location

	switch kind := Kind(location); kind {
	case database.DriverPostgres:
		cfg.Driver = kind
		return postgres.New(ctx, &cfg)
	case database.DriverMySQL:
		cfg.Driver = kind
		return mysql.New(ctx, &cfg)
	case database.DriverDuckDB:
		cfg.Driver = kind
		return duckdb.Open(ctx, &cfg)
	case database.DriverSQLite:
		cfg.Driver = kind
		if !source.IsScript(location) {
			return sqlite.Open(ctx, &cfg)
		}
		loader := c.Loader
		if loader == nil {
			loader = &source.Loader{}
		}
		script, err := loader.Load(ctx, location)
		if err != nil {
			return nil, err
		}
		c.log().DebugWith("loading SQL script", logger.Fields{"location": Redact(location), "bytes": len(script)})
		return sqlite.OpenScript(ctx, script, &cfg)
	default:
		return nil, errs.New(errs.ErrKindInvalidInput, "unsupported database location: "+Redact(location))
	}
}

func (c *Connector) log() *logger.Logger {
	if c.Logger == nil {
		return logger.Nop()
	}
	return c.Logger
}

// Kind reports which driver serves location, or "" when none does.
//
//	postgres://, postgresql://                 postgres
//	mysql://                                   mysql
//	duckdb://, *.duckdb                        duckdb (read-only file)
//	sqlite://, *.db, *.sqlite, *.sqlite3       sqlite (read-only file)
//	http(s)://, s3://, *.sql                   sqlite (in-memory, loaded from the script)
func Kind(location string) database.Driver {
	lower := strings.ToLower(location)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return database.DriverPostgres
	case strings.HasPrefix(lower, "mysql://"):
		return database.DriverMySQL
	case source.IsScript(location):
		return database.DriverSQLite
	case strings.HasPrefix(lower, "duckdb://"), strings.HasSuffix(lower, ".duckdb"):
		return database.DriverDuckDB
	case strings.HasPrefix(lower, "sqlite://"),
		strings.HasSuffix(lower, ".db"),
		strings.HasSuffix(lower, ".sqlite"),
		strings.HasSuffix(lower, ".sqlite3"):
		return database.DriverSQLite
	default:
		return ""
	}
}

// Redact hides the password of URL-shaped locations.
func Redact(location string) string {
	u, err := url.Parse(location)
	if err != nil || u.User == nil {
		return location
	}
	return u.Redacted()
}
