// Package registry persists the translation files known to the index and
// assigns each one a stable numeric identity.
package registry

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	perrors "github.com/Aman-CERP/propindex/internal/errors"
	"github.com/Aman-CERP/propindex/internal/properties"
)

// FileName is the registry database name inside the index data directory.
const FileName = "registry.db"

// Registry maps workspace-relative paths to descriptors with stable IDs.
type Registry struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	closed bool
}

// validateIntegrity checks an existing database before opening it.
func validateIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

// Open opens or creates the registry at path. An empty path opens an in-memory registry.
func Open(path string) (*Registry, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, perrors.New(perrors.ErrCodeRegistryIO, "failed to create registry directory", err)
		}

		if validErr := validateIntegrity(path); validErr != nil {
			// IDs are re-assigned on the next reindex; the bleve index is rebuilt with them.
			slog.Warn("registry_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))
			if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
				return nil, perrors.New(perrors.ErrCodeCorruptIndex,
					fmt.Sprintf("registry corrupted at %s and cannot be removed", path), removeErr)
			}
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, perrors.New(perrors.ErrCodeRegistryIO, "failed to open registry", err)
	}

	// One connection: :memory: databases are per-connection, and writes are serialized anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, perrors.New(perrors.ErrCodeRegistryIO, "failed to set pragma", err)
		}
	}

	r := &Registry{db: db, path: path}
	if err := r.initSchema(); err != nil {
		_ = db.Close()
		return nil, perrors.New(perrors.ErrCodeRegistryIO, "failed to initialize registry schema", err)
	}
	return r, nil
}

func (r *Registry) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS descriptors (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		path      TEXT NOT NULL UNIQUE,
		project   TEXT NOT NULL,
		version   TEXT NOT NULL,
		base_name TEXT NOT NULL,
		locale    TEXT NOT NULL,
		master    INTEGER NOT NULL
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	_, err := r.db.Exec(schema)
	return err
}

// Resolve returns d with its registry ID, registering it first if the path is new.
// IDs are never reused, so a file that is deleted and re-created gets a new identity.
func (r *Registry) Resolve(ctx context.Context, d properties.Descriptor) (properties.Descriptor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return d, perrors.New(perrors.ErrCodeRegistryIO, "registry is closed", nil)
	}

	master := 0
	if d.Master {
		master = 1
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO descriptors (path, project, version, base_name, locale, master)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO NOTHING`,
		d.Path, d.Project, d.Version, d.BaseName, d.Locale, master)
	if err != nil {
		return d, perrors.New(perrors.ErrCodeRegistryIO, "failed to register "+d.Path, err)
	}

	var id int64
	if err := r.db.QueryRowContext(ctx, `SELECT id FROM descriptors WHERE path = ?`, d.Path).Scan(&id); err != nil {
		return d, perrors.New(perrors.ErrCodeRegistryIO, "failed to resolve "+d.Path, err)
	}
	return d.WithID(id), nil
}

// Lookup returns the registered descriptor for path.
func (r *Registry) Lookup(ctx context.Context, path string) (properties.Descriptor, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return properties.Descriptor{}, false, perrors.New(perrors.ErrCodeRegistryIO, "registry is closed", nil)
	}

	row := r.db.QueryRowContext(ctx, `
		SELECT id, path, project, version, base_name, locale, master
		FROM descriptors WHERE path = ?`, path)
	d, err := scanDescriptor(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return properties.Descriptor{}, false, nil
	}
	if err != nil {
		return properties.Descriptor{}, false, perrors.New(perrors.ErrCodeRegistryIO, "failed to look up "+path, err)
	}
	return d, true, nil
}

// Remove unregisters path and returns the descriptor it had.
func (r *Registry) Remove(ctx context.Context, path string) (properties.Descriptor, bool, error) {
	d, ok, err := r.Lookup(ctx, path)
	if err != nil || !ok {
		return d, ok, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.db.ExecContext(ctx, `DELETE FROM descriptors WHERE id = ?`, d.ID); err != nil {
		return d, false, perrors.New(perrors.ErrCodeRegistryIO, "failed to remove "+path, err)
	}
	return d, true, nil
}

// List returns every registered descriptor ordered by path.
func (r *Registry) List(ctx context.Context) ([]properties.Descriptor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, perrors.New(perrors.ErrCodeRegistryIO, "registry is closed", nil)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, path, project, version, base_name, locale, master
		FROM descriptors ORDER BY path`)
	if err != nil {
		return nil, perrors.New(perrors.ErrCodeRegistryIO, "failed to list descriptors", err)
	}
	defer rows.Close()

	var out []properties.Descriptor
	for rows.Next() {
		d, err := scanDescriptor(rows)
		if err != nil {
			return nil, perrors.New(perrors.ErrCodeRegistryIO, "failed to scan descriptor", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, perrors.New(perrors.ErrCodeRegistryIO, "failed to list descriptors", err)
	}
	return out, nil
}

// Count returns the number of registered descriptors.
func (r *Registry) Count(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, perrors.New(perrors.ErrCodeRegistryIO, "registry is closed", nil)
	}

	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM descriptors`).Scan(&n); err != nil {
		return 0, perrors.New(perrors.ErrCodeRegistryIO, "failed to count descriptors", err)
	}
	return n, nil
}

// Close closes the database. It is safe to call more than once.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDescriptor(s scanner) (properties.Descriptor, error) {
	var (
		d      properties.Descriptor
		master int
	)
	if err := s.Scan(&d.ID, &d.Path, &d.Project, &d.Version, &d.BaseName, &d.Locale, &master); err != nil {
		return properties.Descriptor{}, err
	}
	d.Master = master == 1
	return d, nil
}
