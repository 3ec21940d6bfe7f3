// Package migrate applies the Postgres schema the storefront expects.
//
// Migrations are embedded SQL files named NNNN_description.sql. They run in
// version order inside one session, each in its own transaction, and every
// applied version is recorded in schema_migrations so reruns skip it.
package migrate

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

//go:embed sql/*.sql
var embedded embed.FS

const createVersionTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version BIGINT PRIMARY KEY,
	name TEXT NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Migration is one versioned schema change.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// Result reports what Apply did.
type Result struct {
	Applied []Migration
	Skipped int
}

// Embedded returns the migrations compiled into the binary.
func Embedded() ([]Migration, error) {
	sub, err := fs.Sub(embedded, "sql")
	if err != nil {
		return nil, err
	}
	return Load(sub)
}

// Load reads every .sql file at the root of fsys, ordered by version.
func Load(fsys fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}
	var out []Migration
	seen := make(map[int]string)
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".sql" {
			continue
		}
		version, name, err := parseName(e.Name())
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[version]; ok {
			return nil, fmt.Errorf("duplicate migration version %d: %s and %s", version, prev, e.Name())
		}
		seen[version] = e.Name()

		data, err := fs.ReadFile(fsys, e.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", e.Name(), err)
		}
		out = append(out, Migration{Version: version, Name: name, SQL: string(data)})
	}
	slices.SortFunc(out, func(a, b Migration) int { return a.Version - b.Version })
	return out, nil
}

func parseName(file string) (int, string, error) {
	base := strings.TrimSuffix(file, ".sql")
	num, name, ok := strings.Cut(base, "_")
	if !ok || name == "" {
		return 0, "", fmt.Errorf("invalid migration file name %q: want NNNN_name.sql", file)
	}
	version, err := strconv.Atoi(num)
	if err != nil || version <= 0 {
		return 0, "", fmt.Errorf("invalid migration version in %q", file)
	}
	return version, name, nil
}

// Pending returns the migrations whose versions are not in applied.
func Pending(all []Migration, applied map[int]bool) []Migration {
	var out []Migration
	for _, m := range all {
		if !applied[m.Version] {
			out = append(out, m)
		}
	}
	return out
}

// Migrator applies migrations over a single Postgres connection.
type Migrator struct {
	conn       *pgx.Conn
	migrations []Migration
	log        *zap.Logger
}

// Connect opens a session to dsn for the embedded migrations.
func Connect(ctx context.Context, dsn string, log *zap.Logger) (*Migrator, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database url is required")
	}
	migrations, err := Embedded()
	if err != nil {
		return nil, err
	}
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Migrator{conn: conn, migrations: migrations, log: log}, nil
}

// Close ends the session.
func (m *Migrator) Close(ctx context.Context) error {
	return m.conn.Close(ctx)
}

// Applied returns the recorded versions.
func (m *Migrator) Applied(ctx context.Context) (map[int]bool, error) {
	if _, err := m.conn.Exec(ctx, createVersionTable); err != nil {
		return nil, fmt.Errorf("failed to create schema_migrations: %w", err)
	}
	rows, err := m.conn.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema_migrations: %w", err)
	}
	versions, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("failed to read schema_migrations: %w", err)
	}
	applied := make(map[int]bool, len(versions))
	for _, v := range versions {
		applied[int(v)] = true
	}
	return applied, nil
}

// Pending lists migrations not yet applied to the database.
func (m *Migrator) Pending(ctx context.Context) ([]Migration, error) {
	applied, err := m.Applied(ctx)
	if err != nil {
		return nil, err
	}
	return Pending(m.migrations, applied), nil
}

// Apply runs every pending migration in order. It stops at the first
// failure; migrations applied before it stay recorded.
func (m *Migrator) Apply(ctx context.Context) (*Result, error) {
	pending, err := m.Pending(ctx)
	if err != nil {
		return nil, err
	}
	res := &Result{Skipped: len(m.migrations) - len(pending)}
	for _, mig := range pending {
		if err := m.applyOne(ctx, mig); err != nil {
			return res, err
		}
		res.Applied = append(res.Applied, mig)
		m.log.Info("migration applied", zap.Int("version", mig.Version), zap.String("name", mig.Name))
	}
	return res, nil
}

func (m *Migrator) applyOne(ctx context.Context, mig Migration) error {
	tx, err := m.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin migration %d: %w", mig.Version, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, mig.SQL); err != nil {
		return fmt.Errorf("migration %d (%s) failed: %w", mig.Version, mig.Name, err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`,
		mig.Version, mig.Name); err != nil {
		return fmt.Errorf("failed to record migration %d: %w", mig.Version, err)
	}
	return tx.Commit(ctx)
}
