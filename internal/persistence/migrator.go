package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// Migration is one versioned schema step loaded from the migrations
// directory. Files follow {version}_{name}.up.sql / {version}_{name}.down.sql.
type Migration struct {
	Version  int64
	Name     string
	UpFile   string
	DownFile string
}

// Migrator applies venue schema migrations in version order and records
// them in public.schema_history, so reruns at startup are no-ops.
type Migrator struct {
	db  *sql.DB
	dir string
	log zerolog.Logger
}

func NewMigrator(db *sql.DB, dir string, log zerolog.Logger) *Migrator {
	return &Migrator{db: db, dir: dir, log: log}
}

// Up applies every migration not yet recorded in the history table.
func (m *Migrator) Up(ctx context.Context) error {
	if err := m.ensureHistory(ctx); err != nil {
		return fmt.Errorf("ensure schema history: %w", err)
	}
	migrations, err := LoadMigrations(m.dir)
	if err != nil {
		return err
	}
	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return fmt.Errorf("read schema history: %w", err)
	}

	for _, mig := range migrations {
		if applied[mig.Version] {
			continue
		}
		err := m.runStep(ctx, mig.UpFile,
			`INSERT INTO public.schema_history (version, name) VALUES ($1, $2)`,
			mig.Version, mig.Name)
		if err != nil {
			return fmt.Errorf("apply %s: %w", mig.UpFile, err)
		}
		m.log.Info().Int64("version", mig.Version).Str("name", mig.Name).Msg("migration applied")
	}
	return nil
}

// Down rolls back the most recently applied migration.
func (m *Migrator) Down(ctx context.Context) error {
	if err := m.ensureHistory(ctx); err != nil {
		return fmt.Errorf("ensure schema history: %w", err)
	}

	var version int64
	err := m.db.QueryRowContext(ctx,
		`SELECT version FROM public.schema_history ORDER BY version DESC LIMIT 1`,
	).Scan(&version)
	if err == sql.ErrNoRows {
		m.log.Info().Msg("no migrations to roll back")
		return nil
	}
	if err != nil {
		return fmt.Errorf("read schema history: %w", err)
	}

	migrations, err := LoadMigrations(m.dir)
	if err != nil {
		return err
	}
	var target *Migration
	for i := range migrations {
		if migrations[i].Version == version {
			target = &migrations[i]
			break
		}
	}
	if target == nil || target.DownFile == "" {
		return fmt.Errorf("no down migration for applied version %d", version)
	}

	err = m.runStep(ctx, target.DownFile,
		`DELETE FROM public.schema_history WHERE version = $1`, version)
	if err != nil {
		return fmt.Errorf("roll back %s: %w", target.DownFile, err)
	}
	m.log.Info().Int64("version", version).Str("name", target.Name).Msg("migration rolled back")
	return nil
}

// runStep executes one migration script and its history record in a single
// transaction: either the schema change and its bookkeeping both land, or
// neither does.
func (m *Migrator) runStep(ctx context.Context, file, record string, args ...interface{}) error {
	script, err := os.ReadFile(filepath.Join(m.dir, file))
	if err != nil {
		return err
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, string(script)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, record, args...); err != nil {
		return err
	}
	return tx.Commit()
}

func (m *Migrator) ensureHistory(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS public.schema_history (
			version    BIGINT PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

func (m *Migrator) appliedVersions(ctx context.Context) (map[int64]bool, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT version FROM public.schema_history`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int64]bool)
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

// LoadMigrations scans a directory and pairs up/down scripts by version.
// Non-migration files are ignored; a down script without a matching up
// script is an error.
func LoadMigrations(dir string) ([]Migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	byVersion := make(map[int64]*Migration)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		var down bool
		switch {
		case strings.HasSuffix(name, ".up.sql"):
		case strings.HasSuffix(name, ".down.sql"):
			down = true
		default:
			continue
		}

		version, base, err := splitMigrationName(name)
		if err != nil {
			return nil, err
		}
		mig := byVersion[version]
		if mig == nil {
			mig = &Migration{Version: version, Name: base}
			byVersion[version] = mig
		}
		if down {
			mig.DownFile = name
		} else {
			mig.UpFile = name
		}
	}

	result := make([]Migration, 0, len(byVersion))
	for _, mig := range byVersion {
		if mig.UpFile == "" {
			return nil, fmt.Errorf("migration version %d has a down script but no up script", mig.Version)
		}
		result = append(result, *mig)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Version < result[j].Version })
	return result, nil
}

func splitMigrationName(filename string) (int64, string, error) {
	prefix, rest, ok := strings.Cut(filename, "_")
	if !ok {
		return 0, "", fmt.Errorf("migration %q: want {version}_{name}.up.sql", filename)
	}
	version, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("migration %q: bad version prefix: %w", filename, err)
	}
	base := strings.TrimSuffix(strings.TrimSuffix(rest, ".up.sql"), ".down.sql")
	return version, base, nil
}
