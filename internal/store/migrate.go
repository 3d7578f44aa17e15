package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"
)

// migrationLockKey serialises migration runs between the API and the admin CLI.
const migrationLockKey = 0x6372_7261_6674

var migrationName = regexp.MustCompile(`^(\d+)_([a-z0-9_]+)\.(up|down)\.sql$`)

type Migration struct {
	Version  string
	Name     string
	UpPath   string
	DownPath string
}

// ID is the value recorded in schema_migrations.
func (m Migration) ID() string {
	return m.Version + "_" + m.Name + ".up.sql"
}

type MigrationState struct {
	Migration
	AppliedAt *time.Time
}

// LoadMigrations reads a migrations directory into version order. Every
// version must ship both an up and a down file.
func LoadMigrations(dir string) ([]Migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	byVersion := map[string]*Migration{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := migrationName.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		version, name, direction := match[1], match[2], match[3]
		m := byVersion[version]
		if m == nil {
			m = &Migration{Version: version, Name: name}
			byVersion[version] = m
		}
		if m.Name != name {
			return nil, fmt.Errorf("migration %s has mismatched names %q and %q", version, m.Name, name)
		}
		path := filepath.Join(dir, entry.Name())
		switch direction {
		case "up":
			m.UpPath = path
		case "down":
			m.DownPath = path
		}
	}

	out := make([]Migration, 0, len(byVersion))
	for version, m := range byVersion {
		if m.UpPath == "" || m.DownPath == "" {
			return nil, fmt.Errorf("migration %s must include both up and down files", version)
		}
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// ApplyMigrations runs every pending up migration, each in its own
// transaction, under a session advisory lock.
func ApplyMigrations(ctx context.Context, db *sql.DB, migrationsDir string) error {
	migrations, err := LoadMigrations(migrationsDir)
	if err != nil {
		return err
	}
	return withMigrationLock(ctx, db, func(conn *sql.Conn) error {
		applied, err := appliedMigrations(ctx, conn)
		if err != nil {
			return err
		}
		for _, m := range migrations {
			if _, ok := applied[m.ID()]; ok {
				continue
			}
			if err := runMigration(ctx, conn, m.UpPath, m.ID(), `INSERT INTO schema_migrations(version) VALUES($1)`); err != nil {
				return err
			}
		}
		return nil
	})
}

// RollbackMigration reverts the most recently applied migration. It returns
// false when nothing is applied.
func RollbackMigration(ctx context.Context, db *sql.DB, migrationsDir string) (Migration, bool, error) {
	migrations, err := LoadMigrations(migrationsDir)
	if err != nil {
		return Migration{}, false, err
	}
	var reverted Migration
	var found bool
	err = withMigrationLock(ctx, db, func(conn *sql.Conn) error {
		applied, err := appliedMigrations(ctx, conn)
		if err != nil {
			return err
		}
		for i := len(migrations) - 1; i >= 0; i-- {
			m := migrations[i]
			if _, ok := applied[m.ID()]; !ok {
				continue
			}
			if err := runMigration(ctx, conn, m.DownPath, m.ID(), `DELETE FROM schema_migrations WHERE version = $1`); err != nil {
				return err
			}
			reverted, found = m, true
			return nil
		}
		return nil
	})
	return reverted, found, err
}

// MigrationStatus lists every known migration with its applied time.
func MigrationStatus(ctx context.Context, db *sql.DB, migrationsDir string) ([]MigrationState, error) {
	migrations, err := LoadMigrations(migrationsDir)
	if err != nil {
		return nil, err
	}
	var out []MigrationState
	err = withMigrationLock(ctx, db, func(conn *sql.Conn) error {
		applied, err := appliedMigrations(ctx, conn)
		if err != nil {
			return err
		}
		out = make([]MigrationState, 0, len(migrations))
		for _, m := range migrations {
			state := MigrationState{Migration: m}
			if at, ok := applied[m.ID()]; ok {
				state.AppliedAt = &at
			}
			out = append(out, state)
		}
		return nil
	})
	return out, err
}

func withMigrationLock(ctx context.Context, db *sql.DB, fn func(conn *sql.Conn) error) (err error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire migration conn: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, migrationLockKey); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		if _, unlockErr := conn.ExecContext(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, migrationLockKey); unlockErr != nil && err == nil {
			err = fmt.Errorf("release migration lock: %w", unlockErr)
		}
	}()

	if _, err := conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	return fn(conn)
}

func appliedMigrations(ctx context.Context, conn *sql.Conn) (map[string]time.Time, error) {
	rows, err := conn.QueryContext(ctx, `SELECT version, applied_at FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	defer rows.Close()
	out := map[string]time.Time{}
	for rows.Next() {
		var version string
		var at time.Time
		if err := rows.Scan(&version, &at); err != nil {
			return nil, fmt.Errorf("scan applied migration: %w", err)
		}
		out[version] = at
	}
	return out, rows.Err()
}

func runMigration(ctx context.Context, conn *sql.Conn, path, id, record string) error {
	contents, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", filepath.Base(path), err)
	}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx %s: %w", id, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, string(contents)); err != nil {
		return fmt.Errorf("execute migration %s: %w", filepath.Base(path), err)
	}
	if _, err := tx.ExecContext(ctx, record, id); err != nil {
		return fmt.Errorf("record migration %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", id, err)
	}
	return nil
}
