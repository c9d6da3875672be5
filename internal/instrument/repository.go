package instrument

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/wschoenell/chimera-manager/internal/infrastructure/database"
)

// Repository persists instrument status rows and their keys.
type Repository interface {
	// Get returns the status of one instrument, or ErrNotFound.
	Get(ctx context.Context, instrument string) (*Status, error)

	// List returns every instrument ordered by name.
	List(ctx context.Context) ([]Status, error)

	// Ensure creates an UNSET row for instrument if none exists and returns the current row.
	Ensure(ctx context.Context, instrument string, now time.Time) (*Status, error)

	// Update loads (creating if needed) the instrument inside a transaction,
	// lets fn mutate it and writes the result back in the same transaction.
	// An error from fn rolls everything back.
	Update(ctx context.Context, instrument string, now time.Time, fn func(*Status) error) (*Status, error)
}

// SQLiteRepository implements Repository on the instrument_status and
// instrument_key tables.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository over db.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Get returns one instrument with its keys.
func (r *SQLiteRepository) Get(ctx context.Context, instrument string) (*Status, error) {
	st, _, err := loadStatus(ctx, r.db, instrument)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// List returns every instrument with its keys, ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Status, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT instrument FROM instrument_status ORDER BY instrument`)
	if err != nil {
		return nil, fmt.Errorf("listing instruments: %w", err)
	}
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close() //nolint:errcheck // already failing
			return nil, fmt.Errorf("scanning instrument: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		rows.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("iterating instruments: %w", err)
	}
	rows.Close() //nolint:errcheck // read-only query

	result := make([]Status, 0, len(names))
	for _, name := range names {
		st, err := r.Get(ctx, name)
		if err != nil {
			return nil, err
		}
		result = append(result, *st)
	}
	return result, nil
}

// Ensure creates the instrument row if missing.
func (r *SQLiteRepository) Ensure(ctx context.Context, instrument string, now time.Time) (*Status, error) {
	if instrument == "" {
		return nil, ErrInvalidName
	}
	if _, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO instrument_status (instrument, flag, last_update) VALUES (?, ?, ?)`,
		instrument, string(FlagUnset), database.FormatTime(now),
	); err != nil {
		return nil, fmt.Errorf("creating instrument %s: %w", instrument, err)
	}
	return r.Get(ctx, instrument)
}

// Update performs the transactional read-modify-write.
func (r *SQLiteRepository) Update(ctx context.Context, instrument string, now time.Time, fn func(*Status) error) (*Status, error) {
	if instrument == "" {
		return nil, ErrInvalidName
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO instrument_status (instrument, flag, last_update) VALUES (?, ?, ?)`,
		instrument, string(FlagUnset), database.FormatTime(now),
	); err != nil {
		return nil, fmt.Errorf("creating instrument %s: %w", instrument, err)
	}

	st, id, err := loadStatus(ctx, tx, instrument)
	if err != nil {
		return nil, err
	}

	if err := fn(st); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE instrument_status SET flag = ?, last_update = ?, last_change = ? WHERE id = ?`,
		string(st.Flag), database.FormatTime(st.LastUpdate), database.NullableTime(st.LastChange), id,
	); err != nil {
		return nil, fmt.Errorf("updating instrument %s: %w", instrument, err)
	}

	for _, k := range st.Keys {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO instrument_key (instrument_id, key, active, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (instrument_id, key) DO UPDATE SET
				active = excluded.active,
				updated_at = excluded.updated_at`,
			id, k.Key, database.BoolToInt(k.Active), database.FormatTime(k.UpdatedAt),
		); err != nil {
			return nil, fmt.Errorf("writing key %s for %s: %w", k.Key, instrument, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing instrument %s: %w", instrument, err)
	}
	return st, nil
}

func loadStatus(ctx context.Context, q queryer, instrument string) (*Status, int64, error) {
	var (
		id         int64
		flag       string
		lastUpdate string
		lastChange sql.NullString
	)
	err := q.QueryRowContext(ctx,
		`SELECT id, flag, last_update, last_change FROM instrument_status WHERE instrument = ?`, instrument,
	).Scan(&id, &flag, &lastUpdate, &lastChange)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("querying instrument %s: %w", instrument, err)
	}

	st := &Status{Instrument: instrument, Flag: Flag(flag)}
	updated, err := database.ParseTime(sql.NullString{String: lastUpdate, Valid: true})
	if err != nil {
		return nil, 0, err
	}
	if updated != nil {
		st.LastUpdate = *updated
	}
	if st.LastChange, err = database.ParseTime(lastChange); err != nil {
		return nil, 0, err
	}

	rows, err := q.QueryContext(ctx,
		`SELECT key, active, updated_at FROM instrument_key WHERE instrument_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, 0, fmt.Errorf("querying keys for %s: %w", instrument, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			k         Key
			active    int
			updatedAt string
		)
		if err := rows.Scan(&k.Key, &active, &updatedAt); err != nil {
			return nil, 0, fmt.Errorf("scanning key: %w", err)
		}
		k.Active = active == 1
		if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
			k.UpdatedAt = t
		}
		st.Keys = append(st.Keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating keys: %w", err)
	}
	return st, id, nil
}
