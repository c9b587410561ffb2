package results

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/findfoci/internal/findfoci"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLStore is a Store backed by a SQLite database.
type SQLStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLStore opens (or creates) the database at path and migrates it to
// the latest schema.
func OpenSQLStore(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open results database: %w", err)
	}
	// A single connection keeps the pragmas below in force for every query.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	s, err := NewSQLStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLStore wraps an open database and migrates it to the latest schema.
func NewSQLStore(db *sql.DB) (*SQLStore, error) {
	if err := migrateUp(db); err != nil {
		return nil, err
	}
	return &SQLStore{db: db, now: time.Now}, nil
}

// Close closes the underlying database.
func (s *SQLStore) Close() error { return s.db.Close() }

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to read embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = migrateLogger{}
	// m is not closed: closing it would close db.

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	version, dirty, err := m.Version()
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	diagf("schema at version %d (dirty=%v)", version, dirty)
	return nil
}

// migrateLogger forwards golang-migrate output to the diag stream.
type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) { diagf("[migrate] "+format, v...) }
func (migrateLogger) Verbose() bool                          { return false }

const fociColumns = `rank, focus_id, x, y, z, max_value, count, intensity,
	intensity_above_background, average, average_above_background,
	saddle_value, saddle_neighbour_id, count_above_saddle,
	intensity_above_saddle, absolute_height, relative_height, intensity_minus_min`

func (s *SQLStore) Save(ctx context.Context, name string, run Run) (Run, error) {
	if err := checkName(name); err != nil {
		return Run{}, err
	}
	run = prepare(run, s.now())
	params, err := json.Marshal(run.Params)
	if err != nil {
		return Run{}, fmt.Errorf("failed to encode params: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Run{}, fmt.Errorf("failed to begin save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM foci WHERE set_name = ?`, name); err != nil {
		return Run{}, fmt.Errorf("failed to clear foci for %q: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM result_sets WHERE name = ?`, name); err != nil {
		return Run{}, fmt.Errorf("failed to clear result set %q: %w", name, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO result_sets (name, run_id, params_json, background, truncated, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, name, run.ID, string(params), run.Background, run.Truncated, run.CreatedAt.UnixNano())
	if err != nil {
		return Run{}, fmt.Errorf("failed to insert result set %q: %w", name, err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO foci (set_name, `+fociColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return Run{}, fmt.Errorf("failed to prepare foci insert: %w", err)
	}
	defer stmt.Close()
	for i, f := range run.Foci {
		_, err := stmt.ExecContext(ctx, name, i,
			f.ID, f.X, f.Y, f.Z, f.MaxValue, f.Count, f.Intensity,
			f.IntensityAboveBackground, f.Average, f.AverageAboveBackground,
			f.SaddleValue, f.SaddleNeighbourID, f.CountAboveSaddle,
			f.IntensityAboveSaddle, f.AbsoluteHeight, f.RelativeHeight, f.IntensityMinusMin)
		if err != nil {
			return Run{}, fmt.Errorf("failed to insert focus %d of %q: %w", f.ID, name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Run{}, fmt.Errorf("failed to commit result set %q: %w", name, err)
	}
	diagf("saved %d foci as %q (run %s)", len(run.Foci), name, run.ID)
	return run, nil
}

func (s *SQLStore) Load(ctx context.Context, name string) (Run, error) {
	var (
		run     Run
		params  string
		created int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT run_id, params_json, background, truncated, created_at
		FROM result_sets WHERE name = ?
	`, name).Scan(&run.ID, &params, &run.Background, &run.Truncated, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("load %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("failed to load result set %q: %w", name, err)
	}
	if err := json.Unmarshal([]byte(params), &run.Params); err != nil {
		return Run{}, fmt.Errorf("failed to decode params of %q: %w", name, err)
	}
	run.CreatedAt = time.Unix(0, created).UTC()

	rows, err := s.db.QueryContext(ctx, `SELECT `+fociColumns+` FROM foci WHERE set_name = ? ORDER BY rank`, name)
	if err != nil {
		return Run{}, fmt.Errorf("failed to query foci of %q: %w", name, err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			rank int
			f    findfoci.FociRecord
		)
		if err := rows.Scan(&rank,
			&f.ID, &f.X, &f.Y, &f.Z, &f.MaxValue, &f.Count, &f.Intensity,
			&f.IntensityAboveBackground, &f.Average, &f.AverageAboveBackground,
			&f.SaddleValue, &f.SaddleNeighbourID, &f.CountAboveSaddle,
			&f.IntensityAboveSaddle, &f.AbsoluteHeight, &f.RelativeHeight, &f.IntensityMinusMin); err != nil {
			return Run{}, fmt.Errorf("failed to scan focus of %q: %w", name, err)
		}
		run.Foci = append(run.Foci, f)
	}
	if err := rows.Err(); err != nil {
		return Run{}, fmt.Errorf("failed to read foci of %q: %w", name, err)
	}
	tracef("loaded %d foci from %q", len(run.Foci), name)
	return run, nil
}

// Names returns the stored names in ascending order.
func (s *SQLStore) Names(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM result_sets ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list result sets: %w", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan result set name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *SQLStore) Delete(ctx context.Context, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin delete: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM foci WHERE set_name = ?`, name); err != nil {
		return fmt.Errorf("failed to delete foci of %q: %w", name, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM result_sets WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete result set %q: %w", name, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("failed to delete result set %q: %w", name, err)
	} else if n == 0 {
		return fmt.Errorf("delete %q: %w", name, ErrNotFound)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete of %q: %w", name, err)
	}
	opsf("deleted result set %q", name)
	return nil
}
