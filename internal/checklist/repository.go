package checklist

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/wschoenell/chimera-manager/internal/infrastructure/database"
)

// Repository defines the interface for monitored item persistence.
type Repository interface {
	// ListActive returns every active item with its chains, ordered by id.
	ListActive(ctx context.Context) ([]Item, error)

	// List returns every item with its chains, ordered by id.
	List(ctx context.Context) ([]Item, error)

	// GetByName returns one item with its chains, or ErrItemNotFound.
	GetByName(ctx context.Context, name string) (*Item, error)

	// Save inserts the item or, if the name exists, replaces its flags and
	// chains while keeping its status and timestamps. It.ID is filled in.
	Save(ctx context.Context, it *Item) error

	// Delete removes an item and its chains.
	Delete(ctx context.Context, name string) error

	// SetActive flips the active flag of an item.
	SetActive(ctx context.Context, name string, active bool) error

	// UpdateStatus stamps the evaluation outcome. A nil lastChange keeps the stored value.
	UpdateStatus(ctx context.Context, id int64, status Status, lastUpdate time.Time, lastChange *time.Time) error

	// UpdateCheckReference persists a check's reference time (nil clears it).
	UpdateCheckReference(ctx context.Context, checkID int64, ref *time.Time) error
}

const itemColumns = `id, name, active, eager, eager_response, status, last_update, last_change`

// SQLiteRepository implements Repository on the monitored_item, item_check
// and item_response tables.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// ListActive retrieves active items ordered by id.
func (r *SQLiteRepository) ListActive(ctx context.Context) ([]Item, error) {
	return r.queryItems(ctx, `SELECT `+itemColumns+` FROM monitored_item WHERE active = 1 ORDER BY id`)
}

// List retrieves all items ordered by id.
func (r *SQLiteRepository) List(ctx context.Context) ([]Item, error) {
	return r.queryItems(ctx, `SELECT `+itemColumns+` FROM monitored_item ORDER BY id`)
}

// GetByName retrieves one item by name.
func (r *SQLiteRepository) GetByName(ctx context.Context, name string) (*Item, error) {
	items, err := r.queryItems(ctx, `SELECT `+itemColumns+` FROM monitored_item WHERE name = ?`, name)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrItemNotFound, name)
	}
	return &items[0], nil
}

// Save inserts or replaces an item definition in one transaction.
func (r *SQLiteRepository) Save(ctx context.Context, it *Item) error {
	if it.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidItem)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	var id int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM monitored_item WHERE name = ?`, it.Name).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		res, insErr := tx.ExecContext(ctx,
			`INSERT INTO monitored_item (name, active, eager, eager_response, status) VALUES (?, ?, ?, ?, ?)`,
			it.Name, database.BoolToInt(it.Active), database.BoolToInt(it.Eager),
			database.BoolToInt(it.EagerResponse), int(StatusUnknown),
		)
		if insErr != nil {
			if database.IsUniqueConstraintError(insErr) {
				return fmt.Errorf("%w: %s", ErrItemExists, it.Name)
			}
			return fmt.Errorf("inserting item %s: %w", it.Name, insErr)
		}
		if id, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("reading item id: %w", err)
		}
		it.Status = StatusUnknown
	case err != nil:
		return fmt.Errorf("querying item %s: %w", it.Name, err)
	default:
		if _, err := tx.ExecContext(ctx,
			`UPDATE monitored_item SET active = ?, eager = ?, eager_response = ? WHERE id = ?`,
			database.BoolToInt(it.Active), database.BoolToInt(it.Eager),
			database.BoolToInt(it.EagerResponse), id,
		); err != nil {
			return fmt.Errorf("updating item %s: %w", it.Name, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM item_check WHERE item_id = ?`, id); err != nil {
			return fmt.Errorf("clearing checks of %s: %w", it.Name, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM item_response WHERE item_id = ?`, id); err != nil {
			return fmt.Errorf("clearing responses of %s: %w", it.Name, err)
		}
	}
	it.ID = id

	for i := range it.Checks {
		c := &it.Checks[i]
		c.ItemID, c.Position = id, i
		params, err := marshalParams(c.Params)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO item_check (item_id, position, kind, mode, params, reference_time) VALUES (?, ?, ?, ?, ?, ?)`,
			id, i, c.Kind, c.Mode, params, database.NullableTime(c.ReferenceTime),
		)
		if err != nil {
			return fmt.Errorf("inserting check %d of %s: %w", i, it.Name, err)
		}
		if c.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("reading check id: %w", err)
		}
	}

	for i := range it.Responses {
		rsp := &it.Responses[i]
		rsp.ItemID, rsp.Position = id, i
		params, err := marshalParams(rsp.Params)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO item_response (item_id, position, kind, mode, params) VALUES (?, ?, ?, ?, ?)`,
			id, i, rsp.Kind, rsp.Mode, params,
		)
		if err != nil {
			return fmt.Errorf("inserting response %d of %s: %w", i, it.Name, err)
		}
		if rsp.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("reading response id: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing item %s: %w", it.Name, err)
	}
	return nil
}

// Delete removes an item; chains go with it through ON DELETE CASCADE.
func (r *SQLiteRepository) Delete(ctx context.Context, name string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM monitored_item WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("deleting item %s: %w", name, err)
	}
	return requireRow(res, name)
}

// SetActive flips the active flag.
func (r *SQLiteRepository) SetActive(ctx context.Context, name string, active bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE monitored_item SET active = ? WHERE name = ?`, database.BoolToInt(active), name)
	if err != nil {
		return fmt.Errorf("updating item %s: %w", name, err)
	}
	return requireRow(res, name)
}

// UpdateStatus stamps status, last_update and optionally last_change.
func (r *SQLiteRepository) UpdateStatus(ctx context.Context, id int64, status Status, lastUpdate time.Time, lastChange *time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE monitored_item
		SET status = ?, last_update = ?, last_change = COALESCE(?, last_change)
		WHERE id = ?`,
		int(status), database.FormatTime(lastUpdate), database.NullableTime(lastChange), id,
	)
	if err != nil {
		return fmt.Errorf("updating status of item %d: %w", id, err)
	}
	return nil
}

// UpdateCheckReference persists the reference time of one check.
func (r *SQLiteRepository) UpdateCheckReference(ctx context.Context, checkID int64, ref *time.Time) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE item_check SET reference_time = ? WHERE id = ?`, database.NullableTime(ref), checkID,
	); err != nil {
		return fmt.Errorf("updating reference time of check %d: %w", checkID, err)
	}
	return nil
}

func requireRow(res sql.Result, name string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrItemNotFound, name)
	}
	return nil
}

// queryItems runs an item query and attaches the chains. Rows are fully
// read before the chains are queried, so a single-connection pool works.
func (r *SQLiteRepository) queryItems(ctx context.Context, query string, args ...any) ([]Item, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying items: %w", err)
	}

	var items []Item
	for rows.Next() {
		it, scanErr := scanItem(rows)
		if scanErr != nil {
			rows.Close() //nolint:errcheck // already failing
			return nil, scanErr
		}
		items = append(items, *it)
	}
	if err := rows.Err(); err != nil {
		rows.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("iterating items: %w", err)
	}
	rows.Close() //nolint:errcheck // read-only query

	for i := range items {
		if items[i].Checks, err = r.loadChecks(ctx, items[i].ID); err != nil {
			return nil, err
		}
		if items[i].Responses, err = r.loadResponses(ctx, items[i].ID); err != nil {
			return nil, err
		}
	}
	return items, nil
}

func scanItem(rows *sql.Rows) (*Item, error) {
	var (
		it                       Item
		active, eager, eagerResp int
		status                   int
		lastUpdate, lastChange   sql.NullString
	)
	if err := rows.Scan(&it.ID, &it.Name, &active, &eager, &eagerResp, &status, &lastUpdate, &lastChange); err != nil {
		return nil, fmt.Errorf("scanning item: %w", err)
	}
	it.Active, it.Eager, it.EagerResponse = active == 1, eager == 1, eagerResp == 1
	it.Status = Status(status)

	var err error
	if it.LastUpdate, err = database.ParseTime(lastUpdate); err != nil {
		return nil, err
	}
	if it.LastChange, err = database.ParseTime(lastChange); err != nil {
		return nil, err
	}
	return &it, nil
}

func (r *SQLiteRepository) loadChecks(ctx context.Context, itemID int64) ([]Check, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, position, kind, mode, params, reference_time FROM item_check WHERE item_id = ? ORDER BY position`, itemID)
	if err != nil {
		return nil, fmt.Errorf("querying checks: %w", err)
	}
	defer rows.Close()

	var checks []Check
	for rows.Next() {
		var (
			c      Check
			params string
			ref    sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.Position, &c.Kind, &c.Mode, &params, &ref); err != nil {
			return nil, fmt.Errorf("scanning check: %w", err)
		}
		c.ItemID = itemID
		if c.Params, err = unmarshalParams(params); err != nil {
			return nil, err
		}
		if c.ReferenceTime, err = database.ParseTime(ref); err != nil {
			return nil, err
		}
		checks = append(checks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating checks: %w", err)
	}
	return checks, nil
}

func (r *SQLiteRepository) loadResponses(ctx context.Context, itemID int64) ([]Response, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, position, kind, mode, params FROM item_response WHERE item_id = ? ORDER BY position`, itemID)
	if err != nil {
		return nil, fmt.Errorf("querying responses: %w", err)
	}
	defer rows.Close()

	var responses []Response
	for rows.Next() {
		var (
			rsp    Response
			params string
		)
		if err := rows.Scan(&rsp.ID, &rsp.Position, &rsp.Kind, &rsp.Mode, &params); err != nil {
			return nil, fmt.Errorf("scanning response: %w", err)
		}
		rsp.ItemID = itemID
		if rsp.Params, err = unmarshalParams(params); err != nil {
			return nil, err
		}
		responses = append(responses, rsp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating responses: %w", err)
	}
	return responses, nil
}

func marshalParams(p Params) (string, error) {
	if len(p) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	return string(b), nil
}

func unmarshalParams(s string) (Params, error) {
	var p Params
	if s == "" {
		return p, nil
	}
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	return p, nil
}
