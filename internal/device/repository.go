package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Repository defines persistence for device state.
type Repository interface {
	// Get returns the current state row for a device.
	// Returns ErrNotFound if the device has never been written.
	Get(ctx context.Context, name string) (*Record, error)

	// List returns the current state of every persisted device.
	List(ctx context.Context) ([]Record, error)

	// Upsert writes the current state of a device and appends a history row
	// recording the transition.
	Upsert(ctx context.Context, rec *Record) error
}

// SQLiteRepository persists device state in SQLite.
//
// Two tables back it: device_states holds one row per device with the
// current value, device_history appends one row per transition. Parameters
// are stored as a JSON TEXT column.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new device state repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Get returns the current state row for a device.
func (r *SQLiteRepository) Get(ctx context.Context, name string) (*Record, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT device_name, device_type, state, value, last_updated, updated_by
		 FROM device_states WHERE device_name = ?`, name)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("querying device state: %w", err)
	}
	return rec, nil
}

// List returns the current state of every persisted device.
func (r *SQLiteRepository) List(ctx context.Context) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT device_name, device_type, state, value, last_updated, updated_by
		 FROM device_states ORDER BY device_name`)
	if err != nil {
		return nil, fmt.Errorf("listing device states: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only rows

	var records []Record
	for rows.Next() {
		rec, scanErr := scanRecord(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning device state: %w", scanErr)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating device states: %w", err)
	}
	return records, nil
}

// Upsert writes the current state of a device and appends a history row.
// Both writes happen in one transaction so history never diverges from the
// current state.
func (r *SQLiteRepository) Upsert(ctx context.Context, rec *Record) error {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	if rec.UpdatedBy == "" {
		rec.UpdatedBy = "system"
	}

	valueJSON, err := json.Marshal(rec.Value)
	if err != nil {
		return fmt.Errorf("marshalling device value: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	// Previous state for the history row; empty when first write.
	var previous sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT state FROM device_states WHERE device_name = ?`, rec.Name).Scan(&previous)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("reading previous state: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO device_states (device_name, device_type, state, value, last_updated, updated_by)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(device_name) DO UPDATE SET
		   state = excluded.state,
		   value = excluded.value,
		   last_updated = excluded.last_updated,
		   updated_by = excluded.updated_by`,
		rec.Name, string(rec.Kind), rec.State, string(valueJSON),
		rec.UpdatedAt.Format(time.RFC3339), rec.UpdatedBy,
	)
	if err != nil {
		return fmt.Errorf("upserting device state: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO device_history (device_name, device_type, previous_state, new_state, value, changed_by, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.Name, string(rec.Kind), nullableString(previous.String), rec.State,
		string(valueJSON), rec.UpdatedBy, rec.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting device history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing device state: %w", err)
	}
	return nil
}

// scanner abstracts sql.Row and sql.Rows for scanRecord.
type scanner interface {
	Scan(dest ...any) error
}

// scanRecord reads one device state row.
func scanRecord(s scanner) (*Record, error) {
	var rec Record
	var kind, valueJSON, updatedAt string

	if err := s.Scan(&rec.Name, &kind, &rec.State, &valueJSON, &updatedAt, &rec.UpdatedBy); err != nil {
		return nil, err
	}

	rec.Kind = Kind(kind)

	if valueJSON != "" {
		if err := json.Unmarshal([]byte(valueJSON), &rec.Value); err != nil {
			return nil, fmt.Errorf("unmarshalling device value: %w", err)
		}
	}

	ts, err := time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing last_updated: %w", err)
	}
	rec.UpdatedAt = ts

	return &rec, nil
}

// nullableString returns nil for empty strings, for nullable TEXT columns.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// SeedDefaults inserts an unknown-state row for every catalogue device that
// has no row yet. Called at server startup so status queries always return
// the full catalogue.
func SeedDefaults(ctx context.Context, repo Repository) error {
	for _, d := range Known() {
		if _, err := repo.Get(ctx, d.Name); err == nil {
			continue
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		rec := &Record{
			Name:      d.Name,
			Kind:      d.Kind,
			State:     StateUnknown,
			Value:     map[string]any{},
			UpdatedBy: "system",
		}
		if err := repo.Upsert(ctx, rec); err != nil {
			return fmt.Errorf("seeding device %s: %w", d.Name, err)
		}
	}
	return nil
}
