package store

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"time"
)

// Las migraciones viven embebidas en el binario (paquete migrations).
// Formato de archivo: {version}_{name}.sql (ej: 0001_init.sql)

// MigrationDB es lo mínimo que necesita el Migrator de un driver.
type MigrationDB interface {
	ExecSQL(ctx context.Context, query string, args ...any) error
	QueryInts(ctx context.Context, query string) ([]int, error)
}

// Migration es una migración individual.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// MigrationResult resultado de aplicar migraciones.
type MigrationResult struct {
	Applied  []int
	Skipped  []int
	Duration time.Duration
}

// Migrator aplica migraciones SQL de un directorio de fsys.
type Migrator struct {
	fsys        fs.FS
	dir         string
	placeholder func(n int) string
}

var migrationFilePattern = regexp.MustCompile(`^(\d+)_(.+)\.sql$`)

// NewMigrator crea un Migrator. dialect "postgres" usa $n, el resto ?.
func NewMigrator(fsys fs.FS, dir, dialect string) *Migrator {
	ph := func(int) string { return "?" }
	if dialect == "postgres" {
		ph = func(n int) string { return "$" + strconv.Itoa(n) }
	}
	return &Migrator{fsys: fsys, dir: dir, placeholder: ph}
}

// Parse lee las migraciones ordenadas por versión.
func (m *Migrator) Parse() ([]Migration, error) {
	entries, err := fs.ReadDir(m.fsys, m.dir)
	if err != nil {
		return nil, fmt.Errorf("migrations: read dir %s: %w", m.dir, err)
	}
	var out []Migration
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		match := migrationFilePattern.FindStringSubmatch(e.Name())
		if match == nil {
			continue
		}
		version, _ := strconv.Atoi(match[1])
		content, err := fs.ReadFile(m.fsys, path.Join(m.dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("migrations: read %s: %w", e.Name(), err)
		}
		out = append(out, Migration{Version: version, Name: match[2], SQL: string(content)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Run aplica las migraciones pendientes.
func (m *Migrator) Run(ctx context.Context, db MigrationDB) (*MigrationResult, error) {
	start := time.Now()
	res := &MigrationResult{}

	if err := db.ExecSQL(ctx, `CREATE TABLE IF NOT EXISTS _migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL
	)`); err != nil {
		return res, fmt.Errorf("migrations: create table: %w", err)
	}
	versions, err := db.QueryInts(ctx, "SELECT version FROM _migrations")
	if err != nil {
		return res, fmt.Errorf("migrations: applied versions: %w", err)
	}
	applied := make(map[int]bool, len(versions))
	for _, v := range versions {
		applied[v] = true
	}

	migs, err := m.Parse()
	if err != nil {
		return res, err
	}
	insert := fmt.Sprintf("INSERT INTO _migrations (version, name) VALUES (%s, %s)", m.placeholder(1), m.placeholder(2))
	for _, mig := range migs {
		if applied[mig.Version] {
			res.Skipped = append(res.Skipped, mig.Version)
			continue
		}
		if err := db.ExecSQL(ctx, mig.SQL); err != nil {
			return res, fmt.Errorf("migrations: apply %d_%s: %w", mig.Version, mig.Name, err)
		}
		if err := db.ExecSQL(ctx, insert, mig.Version, mig.Name); err != nil {
			return res, fmt.Errorf("migrations: record %d: %w", mig.Version, err)
		}
		res.Applied = append(res.Applied, mig.Version)
	}
	res.Duration = time.Since(start)
	return res, nil
}
