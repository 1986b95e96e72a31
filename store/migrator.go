package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Migration System Overview:
//
// Schema version is an integer stored in system_setting under SCHEMA_VERSION.
//
// Migration Flow:
// 1. preMigrate: Check if DB is initialized. If not, apply LATEST.sql and record the
//    version of the newest migration file.
// 2. Migrate: Apply every migration file newer than the recorded version, in order.
// 3. Demo mode (sqlite only): Seed the database with sample leads.
//
// Migration Files:
// - Location: store/migration/{driver}/NN__description.sql
// - Naming: NN is the zero-padded schema version, description is human-readable
// - LATEST.sql: Full schema for new installations

//go:embed migration
var migrationFS embed.FS

//go:embed seed
var seedFS embed.FS

const (
	// MigrateFileNameSplit is the split character between the version and the description in the migration file name.
	// For example, "01__lead_status_index.sql".
	MigrateFileNameSplit = "__"
	// LatestSchemaFileName is the name of the latest schema file.
	LatestSchemaFileName = "LATEST.sql"

	schemaVersionKey = "SCHEMA_VERSION"

	modeDemo = "demo"
)

// Migrate brings the database schema up to date.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.preMigrate(ctx); err != nil {
		return errors.Wrap(err, "failed to pre-migrate")
	}

	current, err := s.getCurrentSchemaVersion(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get current schema version")
	}
	files, err := s.migrationFiles()
	if err != nil {
		return err
	}

	tx, err := s.driver.GetDB().BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to start transaction")
	}
	defer tx.Rollback()

	target := current
	migrationsApplied := 0
	for _, file := range files {
		if file.version <= current {
			continue
		}
		bytes, err := migrationFS.ReadFile(file.path)
		if err != nil {
			return errors.Wrapf(err, "failed to read migration file %s", file.path)
		}
		slog.Info("applying migration", slog.String("file", file.path), slog.Int("version", file.version))
		if err := s.execute(ctx, tx, string(bytes)); err != nil {
			return errors.Wrapf(err, "failed to execute migration %s", file.path)
		}
		target = file.version
		migrationsApplied++
	}
	if migrationsApplied > 0 {
		if err := s.updateCurrentSchemaVersion(ctx, tx, target); err != nil {
			return errors.Wrap(err, "failed to update current schema version")
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit migration transaction")
	}
	if migrationsApplied > 0 {
		slog.Info("migration completed", slog.Int("migrationsApplied", migrationsApplied), slog.Int("schemaVersion", target))
	}

	if s.profile != nil && s.profile.Mode == modeDemo {
		if err := s.seed(ctx); err != nil {
			return errors.Wrap(err, "failed to seed")
		}
	}
	return nil
}

// preMigrate checks if the database is initialized and applies the latest schema if not.
func (s *Store) preMigrate(ctx context.Context) error {
	initialized, err := s.driver.IsInitialized(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to check if database is initialized")
	}
	if initialized {
		return nil
	}

	filePath := s.getMigrationBasePath() + LatestSchemaFileName
	bytes, err := migrationFS.ReadFile(filePath)
	if err != nil {
		return errors.Errorf("failed to read latest schema file: %s", err)
	}
	files, err := s.migrationFiles()
	if err != nil {
		return err
	}
	schemaVersion := 0
	if len(files) > 0 {
		schemaVersion = files[len(files)-1].version
	}

	tx, err := s.driver.GetDB().BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to start transaction")
	}
	defer tx.Rollback()
	slog.Info("initializing new database with latest schema", slog.String("file", filePath))
	if err := s.execute(ctx, tx, string(bytes)); err != nil {
		return errors.Errorf("failed to execute SQL file %s, err %s", filePath, err)
	}
	if err := s.updateCurrentSchemaVersion(ctx, tx, schemaVersion); err != nil {
		return errors.Wrap(err, "failed to update current schema version")
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	slog.Info("database initialized successfully", slog.Int("schemaVersion", schemaVersion))
	return nil
}

func (s *Store) driverName() string {
	if s.profile == nil || s.profile.Driver == "" {
		return "sqlite"
	}
	return s.profile.Driver
}

func (s *Store) getMigrationBasePath() string {
	return fmt.Sprintf("migration/%s/", s.driverName())
}

func (s *Store) getSeedBasePath() string {
	return fmt.Sprintf("seed/%s/", s.driverName())
}

type migrationFile struct {
	path    string
	version int
}

// migrationFiles returns the versioned migration files of the driver, oldest first.
func (s *Store) migrationFiles() ([]migrationFile, error) {
	paths, err := fs.Glob(migrationFS, s.getMigrationBasePath()+"*.sql")
	if err != nil {
		return nil, errors.Wrap(err, "failed to read migration files")
	}

	var files []migrationFile
	for _, p := range paths {
		name := path.Base(p)
		if name == LatestSchemaFileName {
			continue
		}
		version, err := parseMigrationVersion(name)
		if err != nil {
			return nil, err
		}
		files = append(files, migrationFile{path: p, version: version})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].version < files[j].version })
	return files, nil
}

func parseMigrationVersion(name string) (int, error) {
	raw, _, ok := strings.Cut(name, MigrateFileNameSplit)
	if !ok {
		return 0, errors.Errorf("invalid migration file name: %s", name)
	}
	version, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to convert version to int: %s", raw)
	}
	return version, nil
}

func (s *Store) getCurrentSchemaVersion(ctx context.Context) (int, error) {
	var raw string
	query := "SELECT value FROM system_setting WHERE name = " + s.placeholder(1)
	if err := s.driver.GetDB().QueryRowContext(ctx, query, schemaVersionKey).Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, err
	}
	return strconv.Atoi(raw)
}

func (s *Store) updateCurrentSchemaVersion(ctx context.Context, tx *sql.Tx, version int) error {
	stmt := fmt.Sprintf(`INSERT INTO system_setting (name, value) VALUES (%s, %s)
		ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value`, s.placeholder(1), s.placeholder(2))
	_, err := tx.ExecContext(ctx, stmt, schemaVersionKey, strconv.Itoa(version))
	return err
}

func (s *Store) placeholder(n int) string {
	if s.driverName() == "postgres" {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// seed seeds the database with sample leads.
// This is only supported for SQLite databases and is used in demo mode.
func (s *Store) seed(ctx context.Context) error {
	if s.driverName() != "sqlite" {
		slog.Warn("seed is only supported for SQLite, skipping for other databases")
		return nil
	}

	filenames, err := fs.Glob(seedFS, s.getSeedBasePath()+"*.sql")
	if err != nil {
		return errors.Wrap(err, "failed to read seed files")
	}
	sort.Strings(filenames)

	tx, err := s.driver.GetDB().BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to start transaction")
	}
	defer tx.Rollback()
	for _, filename := range filenames {
		bytes, err := seedFS.ReadFile(filename)
		if err != nil {
			return errors.Wrapf(err, "failed to read seed file, filename=%s", filename)
		}
		if err := s.execute(ctx, tx, string(bytes)); err != nil {
			return errors.Wrapf(err, "seed error: %s", filename)
		}
	}
	return tx.Commit()
}

// execute executes a SQL script within a transaction context.
// For PostgreSQL, it splits multi-statement SQL and executes each separately.
func (s *Store) execute(ctx context.Context, tx *sql.Tx, stmt string) error {
	if s.driverName() == "postgres" {
		for i, one := range splitSQL(stmt) {
			if _, err := tx.ExecContext(ctx, one); err != nil {
				return errors.Wrapf(err, "failed to execute statement %d: %s", i+1, one)
			}
		}
		return nil
	}
	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return errors.Wrap(err, "failed to execute statement")
	}
	return nil
}

// splitSQL splits a multi-statement SQL script on semicolons that are outside of
// single-quoted strings and comments. Comment lines are dropped.
func splitSQL(script string) []string {
	var statements []string
	var current strings.Builder
	inQuote := false

	flush := func() {
		if stmt := strings.TrimSpace(current.String()); stmt != "" {
			statements = append(statements, stmt)
		}
		current.Reset()
	}

	for _, line := range strings.Split(script, "\n") {
		if !inQuote && strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		for i := 0; i < len(line); i++ {
			ch := line[i]
			switch {
			case ch == '\'':
				inQuote = !inQuote
				current.WriteByte(ch)
			case ch == '-' && !inQuote && i+1 < len(line) && line[i+1] == '-':
				// Trailing comment.
				i = len(line)
			case ch == ';' && !inQuote:
				flush()
			default:
				current.WriteByte(ch)
			}
		}
		current.WriteByte('\n')
	}
	flush()
	return statements
}
