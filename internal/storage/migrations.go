package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// MigrationManager applies the embedded schema migrations.
type MigrationManager struct {
	db     *sql.DB
	driver string // "sqlite" or "postgres"
	files  fs.FS
}

// MigrationStatus describes applied and pending migrations.
type MigrationStatus struct {
	UpToDate bool
	Applied  []string
	Pending  []string
	Total    int
}

// NewMigrationManager creates a migration manager over the embedded migrations.
func NewMigrationManager(db *sql.DB, driver string) *MigrationManager {
	sub, _ := fs.Sub(migrationFiles, "migrations")
	return &MigrationManager{db: db, driver: driver, files: sub}
}

// Migrate applies all pending migrations and returns the resulting status.
func Migrate(ctx context.Context, db *sql.DB, driver string) (*MigrationStatus, error) {
	m := NewMigrationManager(db, driver)
	status, err := m.CheckMigrations(ctx)
	if err != nil {
		return nil, err
	}
	if err := m.RunMigrations(ctx, status); err != nil {
		return nil, err
	}
	return m.CheckMigrations(ctx)
}

// CheckMigrations compares the embedded migrations with schema_migrations.
func (m *MigrationManager) CheckMigrations(ctx context.Context) (*MigrationStatus, error) {
	if err := m.ensureSchemaMigrationsTable(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema_migrations table: %w", err)
	}

	migrations, err := m.listMigrationFiles()
	if err != nil {
		return nil, fmt.Errorf("list migration files: %w", err)
	}

	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return nil, fmt.Errorf("read applied migrations: %w", err)
	}

	status := &MigrationStatus{Total: len(migrations), Pending: []string{}}
	for _, name := range migrations {
		if applied[name] {
			status.Applied = append(status.Applied, name)
		} else {
			status.Pending = append(status.Pending, name)
		}
	}
	status.UpToDate = len(status.Pending) == 0
	return status, nil
}

// RunMigrations applies the pending migrations in name order.
func (m *MigrationManager) RunMigrations(ctx context.Context, status *MigrationStatus) error {
	pending := append([]string(nil), status.Pending...)
	sort.Strings(pending)

	for _, name := range pending {
		if err := m.runMigration(ctx, name); err != nil {
			return fmt.Errorf("run migration %s: %w", name, err)
		}
	}
	return nil
}

func (m *MigrationManager) ensureSchemaMigrationsTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`
	_, err := m.db.ExecContext(ctx, query)
	return err
}

// listMigrationFiles returns one file per migration: the _sqlite.sql variant
// for sqlite when present, the plain .sql file otherwise.
func (m *MigrationManager) listMigrationFiles() ([]string, error) {
	entries, err := fs.ReadDir(m.files, ".")
	if err != nil {
		return nil, err
	}

	sqliteMigrations := make(map[string]string)
	regularMigrations := make(map[string]string)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		if strings.HasSuffix(name, "_sqlite.sql") {
			sqliteMigrations[strings.TrimSuffix(name, "_sqlite.sql")] = name
		} else {
			regularMigrations[strings.TrimSuffix(name, ".sql")] = name
		}
	}

	var migrations []string
	for base, regular := range regularMigrations {
		if m.driver == "sqlite" {
			if sqliteFile, ok := sqliteMigrations[base]; ok {
				migrations = append(migrations, sqliteFile)
				continue
			}
		}
		migrations = append(migrations, regular)
	}
	if m.driver == "sqlite" {
		for base, sqliteFile := range sqliteMigrations {
			if _, ok := regularMigrations[base]; !ok {
				migrations = append(migrations, sqliteFile)
			}
		}
	}
	sort.Strings(migrations)
	return migrations, nil
}

func (m *MigrationManager) appliedVersions(ctx context.Context) (map[string]bool, error) {
	rows, err := m.db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func (m *MigrationManager) runMigration(ctx context.Context, name string) error {
	data, err := fs.ReadFile(m.files, name)
	if err != nil {
		return fmt.Errorf("read migration file: %w", err)
	}

	return withTx(ctx, m.db, func(tx DB) error {
		if m.driver == "sqlite" {
			for _, stmt := range splitSQLStatements(string(data)) {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return fmt.Errorf("execute migration statement %q: %w", firstLine(stmt), err)
				}
			}
		} else if _, err := tx.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("execute migration: %w", err)
		}

		_, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", name)
		return err
	})
}

// splitSQLStatements splits on semicolons that end a line. The schema files
// contain no triggers or string literals with semicolons.
func splitSQLStatements(content string) []string {
	var statements []string
	var current strings.Builder
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteString("\n")
		if strings.HasSuffix(trimmed, ";") {
			statements = append(statements, strings.TrimSpace(current.String()))
			current.Reset()
		}
	}
	if rest := strings.TrimSpace(current.String()); rest != "" {
		statements = append(statements, rest)
	}
	return statements
}

func firstLine(stmt string) string {
	if i := strings.IndexByte(stmt, '\n'); i >= 0 {
		return stmt[:i]
	}
	return stmt
}
